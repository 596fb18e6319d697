package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/duomem/duomem-go/pkg/storage"
)

// maxNeighborFanout bounds the number of concurrent graph traversals per
// query.
const maxNeighborFanout = 4

// Search runs a merged query: similarity search over facts, then a graph
// traversal around each hit's entities.
//
// The similarity store is authoritative; if it fails the query fails. The
// graph side degrades: any relation store failure marks the result as
// graph_unavailable and returns similarity-only hits rather than erroring.
//
// Example:
//
//	result, err := engine.Search(ctx, "who does Sarah work with",
//	    core.WithOwnerIDForSearch("user_001"),
//	    core.WithLimit(5),
//	)
func (e *Engine) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResult, error) {
	options := applySearchOptions(opts)

	if query == "" {
		return nil, NewEngineError("Search", KindValidationError,
			fmt.Errorf("%w: query must not be empty", ErrInvalidInput))
	}
	if options.Limit <= 0 {
		options.Limit = e.config.Engine.SearchLimit
	}

	embedCtx, cancel := e.storeCtx(ctx)
	embedding, err := e.embedder.Embed(embedCtx, query)
	cancel()
	if err != nil {
		return nil, NewEngineError("Search", KindInternal, fmt.Errorf("embed query: %w", err))
	}

	searchCtx, cancel := e.storeCtx(ctx)
	stored, err := e.similarity.Search(searchCtx, embedding, &storage.SearchOptions{
		OwnerID:  options.OwnerID,
		Limit:    options.Limit,
		MinScore: options.MinScore,
		Filters:  options.Filters,
	})
	cancel()
	if err != nil {
		return nil, NewEngineError("Search", KindStorageUnavailable,
			fmt.Errorf("%w: %v", ErrStorageUnavailable, err))
	}

	result := &SearchResult{
		Hits: make([]*SearchHit, len(stored)),
	}
	for i, f := range stored {
		result.Hits[i] = &SearchHit{
			Fact:  fromStorageFact(f),
			Score: f.Score,
		}
	}

	if options.SkipGraph || len(result.Hits) == 0 {
		return result, nil
	}
	if e.relations == nil {
		result.GraphUnavailable = true
		return result, nil
	}

	e.attachNeighbors(ctx, result, options.OwnerID)
	return result, nil
}

// attachNeighbors fans out graph traversals for each hit's entities, with
// bounded concurrency. The first traversal failure flips the result to
// graph_unavailable; hits keep whatever neighbors were already gathered for
// other hits only if the whole pass stayed healthy.
func (e *Engine) attachNeighbors(ctx context.Context, result *SearchResult, ownerID string) {
	depth := e.config.Engine.GraphTraverseDepth
	if depth < 0 {
		return
	}

	var unavailable atomic.Bool
	sem := make(chan struct{}, maxNeighborFanout)
	var wg sync.WaitGroup

	for _, hit := range result.Hits {
		entityIDs := entityIDsFromMetadata(hit.Fact.Metadata)
		if len(entityIDs) == 0 {
			continue
		}

		wg.Add(1)
		go func(hit *SearchHit, entityIDs []string) {
			defer wg.Done()

			seen := make(map[string]bool)
			for _, entityID := range entityIDs {
				if unavailable.Load() {
					return
				}

				sem <- struct{}{}
				var neighbors []*storage.Neighbor
				err := e.relationCall(ctx, func(ctx context.Context) error {
					var nerr error
					neighbors, nerr = e.relations.Neighbors(ctx, entityID, ownerID, depth)
					return nerr
				})
				<-sem

				if err != nil {
					e.logger.Warn("graph traversal failed, degrading to similarity-only",
						zap.String("entity_id", entityID),
						zap.Error(err),
					)
					unavailable.Store(true)
					return
				}

				for _, n := range neighbors {
					if seen[n.Entity.ID] {
						continue
					}
					seen[n.Entity.ID] = true
					hit.Neighbors = append(hit.Neighbors, fromStorageNeighbor(n))
				}
			}
		}(hit, entityIDs)
	}

	wg.Wait()

	if unavailable.Load() {
		result.GraphUnavailable = true
		for _, hit := range result.Hits {
			hit.Neighbors = nil
		}
	}
}

// Relations lists live graph relations for an owner, newest first. Returns
// an empty slice with no error when the graph is disabled.
func (e *Engine) Relations(ctx context.Context, ownerID string, limit int) ([]*Relation, error) {
	if e.relations == nil {
		return nil, nil
	}

	var stored []*storage.Relation
	err := e.relationCall(ctx, func(ctx context.Context) error {
		var rerr error
		stored, rerr = e.relations.RelationsForOwner(ctx, ownerID, limit)
		return rerr
	})
	if err != nil {
		return nil, NewEngineError("Relations", KindStorageUnavailable, err)
	}

	relations := make([]*Relation, len(stored))
	for i, r := range stored {
		relations[i] = fromStorageRelation(r)
	}
	return relations, nil
}

// entityIDsFromMetadata pulls the entity ID list written during ingestion
// out of fact metadata. Metadata that round-tripped through JSON arrives as
// []interface{}.
func entityIDsFromMetadata(metadata map[string]interface{}) []string {
	if metadata == nil {
		return nil
	}

	raw, ok := metadata["entities"]
	if !ok {
		return nil
	}

	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				ids = append(ids, s)
			}
		}
		return ids
	default:
		return nil
	}
}
