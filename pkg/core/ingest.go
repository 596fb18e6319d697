package core

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/duomem/duomem-go/pkg/extraction"
	"github.com/duomem/duomem-go/pkg/storage"
)

// Ingest stores a memory fact and enriches the relationship graph.
//
// The write order is fixed:
//  1. Embed the content
//  2. Extract entities and relations (best-effort)
//  3. Write the fact to the similarity store (hard failure aborts)
//  4. Write entities, relations, and the fact ledger to the relation store
//     (failure degrades to a partial_consistency warning and flags the fact
//     for reconciliation)
//
// A failed extraction or graph write never fails the ingestion; the result
// carries warnings instead. Only a similarity store failure is fatal.
//
// Example:
//
//	result, err := engine.Ingest(ctx, "Sarah Johnson works with Alex",
//	    core.WithOwnerID("user_001"),
//	)
func (e *Engine) Ingest(ctx context.Context, content string, opts ...IngestOption) (*IngestResult, error) {
	options := applyIngestOptions(opts)

	if content == "" {
		return nil, NewEngineError("Ingest", KindValidationError,
			fmt.Errorf("%w: content must not be empty", ErrInvalidInput))
	}
	if options.OwnerID == "" {
		return nil, NewEngineError("Ingest", KindValidationError,
			fmt.Errorf("%w: owner_id is required", ErrInvalidInput))
	}

	embedCtx, cancel := e.storeCtx(ctx)
	embedding, err := e.embedder.Embed(embedCtx, content)
	cancel()
	if err != nil {
		return nil, NewEngineError("Ingest", KindInternal, fmt.Errorf("embed content: %w", err))
	}

	// Duplicate suppression: when an existing fact is close enough, return
	// it instead of writing a new one.
	if e.config.Engine.DedupThreshold > 0 {
		if dup := e.findDuplicate(ctx, embedding, options.OwnerID); dup != nil {
			return &IngestResult{
				Fact: dup,
				Warnings: []Warning{{
					Kind:    WarnDuplicate,
					Message: fmt.Sprintf("content matches existing fact %d", dup.ID),
				}},
			}, nil
		}
	}

	result := &IngestResult{}

	var drafts *extraction.Result
	if !options.SkipExtraction && e.extractor != nil {
		extractCtx, cancel := context.WithTimeout(ctx, e.config.Engine.ExtractionTimeout)
		drafts, err = e.extractor.Extract(extractCtx, content)
		cancel()
		if err != nil {
			e.logger.Warn("extraction failed, storing fact without graph enrichment",
				zap.String("owner_id", options.OwnerID),
				zap.Error(err),
			)
			result.Warnings = append(result.Warnings, Warning{
				Kind:    WarnExtractionFailed,
				Message: err.Error(),
			})
			drafts = nil
		}
	}

	now := time.Now()
	fact := &Fact{
		ID:        e.snowflakeNode.Generate().Int64(),
		OwnerID:   options.OwnerID,
		Content:   content,
		Embedding: embedding,
		Metadata:  cloneMetadata(options.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}

	entities, relations := e.resolveDrafts(options.OwnerID, fact.ID, drafts)

	// Entity IDs ride along in metadata so queries can fan out into the
	// graph from a similarity hit.
	if len(entities) > 0 {
		if fact.Metadata == nil {
			fact.Metadata = make(map[string]interface{})
		}
		ids := make([]interface{}, len(entities))
		for i, ent := range entities {
			ids[i] = ent.ID
		}
		fact.Metadata["entities"] = ids
	}

	upsertCtx, cancel := e.storeCtx(ctx)
	err = e.similarity.Upsert(upsertCtx, toStorageFact(fact))
	cancel()
	if err != nil {
		return nil, NewEngineError("Ingest", KindStorageUnavailable,
			fmt.Errorf("%w: %v", ErrStorageUnavailable, err))
	}

	result.Fact = fact

	if e.relations == nil {
		return result, nil
	}

	if err := e.writeGraph(ctx, fact, entities, relations); err != nil {
		e.logger.Warn("graph write failed, flagging fact for reconciliation",
			zap.Int64("fact_id", fact.ID),
			zap.String("owner_id", fact.OwnerID),
			zap.Error(err),
		)

		fact.GraphPending = true
		flagCtx, cancel := e.storeCtx(ctx)
		if ferr := e.similarity.Upsert(flagCtx, toStorageFact(fact)); ferr != nil {
			e.logger.Error("failed to flag fact as graph pending",
				zap.Int64("fact_id", fact.ID),
				zap.Error(ferr),
			)
		}
		cancel()

		result.Warnings = append(result.Warnings, Warning{
			Kind:    WarnPartialConsistency,
			Message: fmt.Sprintf("fact stored but graph write failed: %v", err),
		})
		return result, nil
	}

	result.Entities = entities
	result.Relations = relations
	return result, nil
}

// resolveDrafts canonicalizes extraction drafts into entities and relations
// with deterministic identities.
func (e *Engine) resolveDrafts(ownerID string, factID int64, drafts *extraction.Result) ([]*Entity, []*Relation) {
	if drafts == nil {
		return nil, nil
	}

	now := time.Now()
	byCanonical := make(map[string]*Entity)
	var entities []*Entity

	for _, draft := range drafts.Entities {
		canonical := extraction.Canonicalize(draft.Name)
		if canonical == "" || byCanonical[canonical] != nil {
			continue
		}
		entity := &Entity{
			ID:        extraction.EntityID(ownerID, canonical),
			OwnerID:   ownerID,
			Name:      canonical,
			Type:      EntityType(draft.Type),
			CreatedAt: now,
		}
		byCanonical[canonical] = entity
		entities = append(entities, entity)
	}

	var relations []*Relation
	for _, draft := range drafts.Relations {
		source := byCanonical[extraction.Canonicalize(draft.Source)]
		target := byCanonical[extraction.Canonicalize(draft.Target)]
		if source == nil || target == nil {
			continue
		}
		relations = append(relations, &Relation{
			OwnerID:    ownerID,
			SourceID:   source.ID,
			SourceName: source.Name,
			Label:      draft.Label,
			TargetID:   target.ID,
			TargetName: target.Name,
			FactID:     factID,
			Confidence: draft.Confidence,
			CreatedAt:  now,
		})
	}

	return entities, relations
}

// writeGraph writes entities, relations, and the fact ledger entry to the
// relation store. Entity upserts are serialized per (owner, name) so
// concurrent ingestions of the same entity cannot race.
func (e *Engine) writeGraph(ctx context.Context, fact *Fact, entities []*Entity, relations []*Relation) error {
	for _, entity := range entities {
		key := entity.OwnerID + "\x00" + entity.Name
		e.entityLocks.Lock(key)
		err := e.relationCall(ctx, func(ctx context.Context) error {
			return e.relations.UpsertEntity(ctx, toStorageEntity(entity))
		})
		e.entityLocks.Unlock(key)
		if err != nil {
			return fmt.Errorf("upsert entity %s: %w", entity.Name, err)
		}
	}

	for _, relation := range relations {
		sr := toStorageRelation(relation)
		err := e.relationCall(ctx, func(ctx context.Context) error {
			return e.relations.InsertRelation(ctx, sr)
		})
		if err != nil {
			return fmt.Errorf("insert relation %s-[%s]->%s: %w",
				relation.SourceName, relation.Label, relation.TargetName, err)
		}
		relation.ID = sr.ID
	}

	return e.relationCall(ctx, func(ctx context.Context) error {
		return e.relations.RecordFact(ctx, &storage.FactRecord{
			FactID:    fact.ID,
			OwnerID:   fact.OwnerID,
			CreatedAt: fact.CreatedAt,
		})
	})
}

// findDuplicate returns an existing fact whose similarity meets the dedup
// threshold, or nil. Lookup failures are treated as no duplicate.
func (e *Engine) findDuplicate(ctx context.Context, embedding []float64, ownerID string) *Fact {
	searchCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	hits, err := e.similarity.Search(searchCtx, embedding, &storage.SearchOptions{
		OwnerID: ownerID,
		Limit:   1,
	})
	if err != nil || len(hits) == 0 {
		return nil
	}
	if hits[0].Score < e.config.Engine.DedupThreshold {
		return nil
	}
	return fromStorageFact(hits[0])
}

// Get retrieves a fact by ID.
//
// When an owner scope is given, facts of other owners read as not found.
func (e *Engine) Get(ctx context.Context, id int64, opts ...GetOption) (*Fact, error) {
	options := applyGetOptions(opts)

	getCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	fact, err := e.similarity.Get(getCtx, id, &storage.GetOptions{OwnerID: options.OwnerID})
	if err != nil {
		return nil, NewEngineError("Get", KindNotFound, fmt.Errorf("%w: %d", ErrNotFound, id))
	}

	return fromStorageFact(fact), nil
}

// GetAll lists facts, newest first, with pagination.
func (e *Engine) GetAll(ctx context.Context, opts ...GetAllOption) ([]*Fact, error) {
	options := applyGetAllOptions(opts)

	getCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	stored, err := e.similarity.GetAll(getCtx, &storage.GetAllOptions{
		OwnerID: options.OwnerID,
		Limit:   options.Limit,
		Offset:  options.Offset,
	})
	if err != nil {
		return nil, NewEngineError("GetAll", KindStorageUnavailable, err)
	}

	facts := make([]*Fact, len(stored))
	for i, f := range stored {
		facts[i] = fromStorageFact(f)
	}
	return facts, nil
}

// Update rewrites a fact's content in place, bumping its version.
//
// The fact keeps its identity; the embedding is regenerated and the graph
// enrichment is rebuilt: relations derived from the old content are
// tombstoned and extraction runs again on the new content. Graph failures
// degrade to the graph_pending flag, mirroring Ingest.
func (e *Engine) Update(ctx context.Context, id int64, content string, opts ...UpdateOption) (*Fact, error) {
	options := applyUpdateOptions(opts)

	if content == "" {
		return nil, NewEngineError("Update", KindValidationError,
			fmt.Errorf("%w: content must not be empty", ErrInvalidInput))
	}

	// Serialize concurrent updates of the same fact.
	lockKey := "fact\x00" + strconv.FormatInt(id, 10)
	e.entityLocks.Lock(lockKey)
	defer e.entityLocks.Unlock(lockKey)

	getCtx, cancel := e.storeCtx(ctx)
	stored, err := e.similarity.Get(getCtx, id, &storage.GetOptions{OwnerID: options.OwnerID})
	cancel()
	if err != nil {
		return nil, NewEngineError("Update", KindNotFound, fmt.Errorf("%w: %d", ErrNotFound, id))
	}
	fact := fromStorageFact(stored)

	embedCtx, cancel := e.storeCtx(ctx)
	embedding, err := e.embedder.Embed(embedCtx, content)
	cancel()
	if err != nil {
		return nil, NewEngineError("Update", KindInternal, fmt.Errorf("embed content: %w", err))
	}

	var drafts *extraction.Result
	if e.extractor != nil {
		extractCtx, cancel := context.WithTimeout(ctx, e.config.Engine.ExtractionTimeout)
		drafts, err = e.extractor.Extract(extractCtx, content)
		cancel()
		if err != nil {
			e.logger.Warn("extraction failed during update",
				zap.Int64("fact_id", id),
				zap.Error(err),
			)
			drafts = nil
		}
	}

	fact.Content = content
	fact.Embedding = embedding
	fact.UpdatedAt = time.Now()
	fact.Version++
	fact.GraphPending = false
	if options.Metadata != nil {
		fact.Metadata = cloneMetadata(options.Metadata)
	}

	entities, relations := e.resolveDrafts(fact.OwnerID, fact.ID, drafts)
	if len(entities) > 0 {
		if fact.Metadata == nil {
			fact.Metadata = make(map[string]interface{})
		}
		ids := make([]interface{}, len(entities))
		for i, ent := range entities {
			ids[i] = ent.ID
		}
		fact.Metadata["entities"] = ids
	} else if fact.Metadata != nil {
		delete(fact.Metadata, "entities")
	}

	upsertCtx, cancel := e.storeCtx(ctx)
	err = e.similarity.Upsert(upsertCtx, toStorageFact(fact))
	cancel()
	if err != nil {
		return nil, NewEngineError("Update", KindStorageUnavailable,
			fmt.Errorf("%w: %v", ErrStorageUnavailable, err))
	}

	if e.relations != nil {
		graphErr := e.relationCall(ctx, func(ctx context.Context) error {
			return e.relations.DeleteByFact(ctx, fact.ID)
		})
		if graphErr == nil {
			graphErr = e.writeGraph(ctx, fact, entities, relations)
		}
		if graphErr != nil {
			e.logger.Warn("graph refresh failed during update",
				zap.Int64("fact_id", fact.ID),
				zap.Error(graphErr),
			)
			fact.GraphPending = true
			flagCtx, cancel := e.storeCtx(ctx)
			_ = e.similarity.Upsert(flagCtx, toStorageFact(fact))
			cancel()
		}
	}

	return fact, nil
}

// Delete removes a fact and tombstones its graph enrichment.
//
// The similarity store delete is authoritative; the graph cascade is
// best-effort and only logged on failure, since the relations are already
// unreachable through queries once the fact is gone.
func (e *Engine) Delete(ctx context.Context, id int64, opts ...DeleteOption) error {
	options := applyDeleteOptions(opts)

	delCtx, cancel := e.storeCtx(ctx)
	err := e.similarity.Delete(delCtx, id, &storage.DeleteOptions{OwnerID: options.OwnerID})
	cancel()
	if err != nil {
		return NewEngineError("Delete", KindNotFound, fmt.Errorf("%w: %d", ErrNotFound, id))
	}

	if e.relations != nil {
		if gerr := e.relationCall(ctx, func(ctx context.Context) error {
			return e.relations.DeleteByFact(ctx, id)
		}); gerr != nil {
			e.logger.Warn("graph cascade failed during delete",
				zap.Int64("fact_id", id),
				zap.Error(gerr),
			)
		}
	}

	return nil
}

// DeleteAll removes all facts for an owner, cascading into the graph per
// fact before the similarity store wipe.
func (e *Engine) DeleteAll(ctx context.Context, opts ...DeleteAllOption) error {
	options := applyDeleteAllOptions(opts)

	if e.relations != nil {
		const pageSize = 500
		for offset := 0; ; offset += pageSize {
			listCtx, cancel := e.storeCtx(ctx)
			facts, err := e.similarity.GetAll(listCtx, &storage.GetAllOptions{
				OwnerID: options.OwnerID,
				Limit:   pageSize,
				Offset:  offset,
			})
			cancel()
			if err != nil {
				break
			}
			for _, fact := range facts {
				factID := fact.ID
				if gerr := e.relationCall(ctx, func(ctx context.Context) error {
					return e.relations.DeleteByFact(ctx, factID)
				}); gerr != nil {
					e.logger.Warn("graph cascade failed during delete all",
						zap.Int64("fact_id", factID),
						zap.Error(gerr),
					)
				}
			}
			if len(facts) < pageSize {
				break
			}
		}
	}

	delCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.similarity.DeleteAll(delCtx, &storage.DeleteAllOptions{OwnerID: options.OwnerID}); err != nil {
		return NewEngineError("DeleteAll", KindStorageUnavailable, err)
	}

	return nil
}

// cloneMetadata copies a caller-supplied metadata map so the engine's own
// annotations never leak back into the caller's map.
func cloneMetadata(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
