// Package storage provides interfaces and types for the two duomem storage
// backends: the similarity-indexed fact store and the relationship-indexed
// graph store.
//
// It defines the SimilarityStore and RelationStore interfaces that all
// backend implementations must satisfy, along with the storage-level types
// and per-operation options.
package storage

import (
	"context"
	"time"
)

// OwnerAll is the elevated scope that crosses owner boundaries.
//
// Regular operations are always owner-scoped; passing OwnerAll as the owner
// filter requests all owners explicitly.
const OwnerAll = "*"

// Fact represents a memory fact as persisted in the similarity store.
//
// This type is defined in the storage package to avoid circular dependencies
// with the core package. It mirrors the core.Fact structure.
type Fact struct {
	// ID is the unique identifier of the fact.
	ID int64

	// OwnerID identifies the owning user or session scope.
	OwnerID string

	// Content is the text content of the fact.
	Content string

	// Embedding is the vector embedding for similarity search.
	Embedding []float64

	// Metadata contains additional structured information.
	Metadata map[string]interface{}

	// CreatedAt is when the fact was created.
	CreatedAt time.Time

	// UpdatedAt is when the fact was last updated.
	UpdatedAt time.Time

	// Version counts explicit updates, starting at 1.
	Version int

	// GraphPending marks a fact awaiting graph reconciliation.
	GraphPending bool

	// Score is the similarity score from search operations.
	Score float64
}

// Entity represents a graph node as persisted in the relation store.
type Entity struct {
	// ID is the deterministic identifier (owner scope + canonical name).
	ID string

	// OwnerID identifies the owning user or session scope.
	OwnerID string

	// Name is the canonical name, e.g. "sarah_johnson".
	Name string

	// Type is the entity type tag (person, project, technology,
	// organization, other).
	Type string

	// CreatedAt is when the entity was first upserted.
	CreatedAt time.Time
}

// Relation represents a directed labeled edge as persisted in the relation
// store. Relations are append-only; deletion is a soft tombstone cascaded
// from the source fact.
type Relation struct {
	// ID is the unique identifier of the relation row.
	ID string

	// OwnerID identifies the owning user or session scope.
	OwnerID string

	// SourceID and TargetID reference entities that must already exist;
	// entity creation and edge insertion happen in the same unit of work.
	SourceID string
	TargetID string

	// SourceName and TargetName carry the canonical entity names for
	// display without a join.
	SourceName string
	TargetName string

	// Label is the relationship label, e.g. "works_with".
	Label string

	// FactID references the fact this relation was derived from.
	FactID int64

	// Confidence is the extraction confidence (0.0-1.0).
	Confidence float64

	// CreatedAt is when the relation was inserted.
	CreatedAt time.Time
}

// Neighbor is one result of a graph traversal.
type Neighbor struct {
	// Entity is the neighboring entity.
	Entity *Entity

	// Relation is the edge that reached it.
	Relation *Relation

	// Distance is the hop count from the traversal origin (1-based).
	Distance int
}

// FactRecord is a fact-ledger entry in the relation store.
//
// The ledger upholds the dual-write consistency invariant: every fact in the
// similarity store has a corresponding record (or tombstone) here, written in
// the same unit of work as the fact's entities and relations.
type FactRecord struct {
	// FactID is the similarity-store fact identifier.
	FactID int64

	// OwnerID identifies the owning user or session scope.
	OwnerID string

	// Tombstone is true once the fact has been deleted.
	Tombstone bool

	// CreatedAt is when the record was written.
	CreatedAt time.Time
}

// SimilarityStore defines the interface for similarity-indexed fact storage.
//
// The similarity store is the source of truth for whether a fact exists at
// all; the relation store is best-effort enrichment layered on top of it.
// Implementations must be safe for concurrent use.
type SimilarityStore interface {
	// Upsert inserts a fact, or replaces it if the ID already exists.
	Upsert(ctx context.Context, fact *Fact) error

	// Search performs vector similarity search.
	//
	// Returns matching facts sorted by similarity (highest first), at most
	// opts.Limit results, never crossing the owner boundary in opts unless
	// the owner is OwnerAll.
	Search(ctx context.Context, embedding []float64, opts *SearchOptions) ([]*Fact, error)

	// Get retrieves a fact by ID, scoped to the owner when one is given.
	Get(ctx context.Context, id int64, opts *GetOptions) (*Fact, error)

	// GetAll retrieves facts with optional filtering and pagination.
	GetAll(ctx context.Context, opts *GetAllOptions) ([]*Fact, error)

	// Delete deletes a fact by ID, scoped to the owner when one is given.
	Delete(ctx context.Context, id int64, opts *DeleteOptions) error

	// DeleteAll deletes all facts matching the given filters.
	DeleteAll(ctx context.Context, opts *DeleteAllOptions) error

	// Close closes the store and releases resources.
	Close() error
}

// RelationStore defines the interface for relationship-indexed graph storage.
//
// Implementations must be safe for concurrent use. UpsertEntity must be
// idempotent by (owner, canonical name): re-upserting the same entity never
// creates a duplicate.
type RelationStore interface {
	// UpsertEntity creates the entity if it does not exist, or refreshes
	// it if it does. Idempotent by entity ID.
	UpsertEntity(ctx context.Context, entity *Entity) error

	// InsertRelation appends a relation edge. Both referenced entities
	// must already exist.
	InsertRelation(ctx context.Context, relation *Relation) error

	// Neighbors traverses up to depth hops from the given entity and
	// returns the entities and edges found, owner-scoped.
	Neighbors(ctx context.Context, entityID, ownerID string, depth int) ([]*Neighbor, error)

	// RelationsForOwner lists live (non-tombstoned) relations for an
	// owner, newest first, at most limit rows.
	RelationsForOwner(ctx context.Context, ownerID string, limit int) ([]*Relation, error)

	// RecordFact writes the fact-ledger entry for a fact.
	RecordFact(ctx context.Context, record *FactRecord) error

	// DeleteByFact tombstones the ledger entry and all relations derived
	// from the given fact (cascading soft-delete).
	DeleteByFact(ctx context.Context, factID int64) error

	// Close closes the store and releases resources.
	Close() error
}

// SearchOptions contains options for similarity search operations.
type SearchOptions struct {
	// OwnerID filters results to a specific owner scope. Use OwnerAll to
	// cross owner boundaries explicitly.
	OwnerID string

	// Limit sets the maximum number of results to return.
	Limit int

	// MinScore sets the minimum similarity score for results.
	MinScore float64

	// Filters provides additional metadata equality filters.
	Filters map[string]interface{}
}

// GetOptions contains options for get operations with owner scoping.
type GetOptions struct {
	// OwnerID restricts access to facts belonging to this owner. If set,
	// Get fails when the fact's owner does not match.
	OwnerID string
}

// GetAllOptions contains options for GetAll operations.
type GetAllOptions struct {
	// OwnerID filters results to a specific owner scope.
	OwnerID string

	// Limit sets the maximum number of results to return.
	Limit int

	// Offset sets the number of results to skip (for pagination).
	Offset int
}

// DeleteOptions contains options for delete operations with owner scoping.
type DeleteOptions struct {
	// OwnerID restricts deletion to facts belonging to this owner.
	OwnerID string
}

// DeleteAllOptions contains options for DeleteAll operations.
type DeleteAllOptions struct {
	// OwnerID filters deletions to a specific owner scope.
	OwnerID string
}
