// Package core provides the duomem engine: dual-store ingestion and retrieval
// of conversational memory facts.
package core

import "time"

// Fact represents a single derived memory statement.
//
// A fact is the unit of storage in the similarity store. It is immutable once
// written except through the explicit Update and Delete operations, which
// supersede or tombstone it.
//
// Example:
//
//	fact := &core.Fact{
//	    ID:      1234567890,
//	    OwnerID: "user_001",
//	    Content: "Sarah Johnson is the CTO",
//	    Metadata: map[string]interface{}{
//	        "source": "conversation",
//	    },
//	}
type Fact struct {
	// ID is the unique identifier of the fact.
	ID int64 `json:"id"`

	// OwnerID identifies the user or session scope that owns this fact.
	// Queries never cross owner boundaries unless the elevated "all" scope
	// is requested explicitly.
	OwnerID string `json:"owner_id"`

	// Content is the text content of the fact.
	Content string `json:"content"`

	// Embedding is the vector representation used for similarity search.
	// Omitted from JSON to reduce payload size.
	Embedding []float64 `json:"embedding,omitempty"`

	// Metadata contains additional structured information about the fact.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the fact was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the fact was last updated.
	UpdatedAt time.Time `json:"updated_at"`

	// Version counts explicit updates. A new fact starts at 1.
	Version int `json:"version,omitempty"`

	// GraphPending marks a fact whose graph enrichment failed and is
	// awaiting an out-of-band reconciliation pass.
	GraphPending bool `json:"graph_pending,omitempty"`

	// Score is the similarity score from search operations (0.0-1.0).
	Score float64 `json:"score,omitempty"`
}

// EntityType tags the kind of a graph entity.
type EntityType string

const (
	// EntityPerson is a human being.
	EntityPerson EntityType = "person"

	// EntityProject is a project or initiative.
	EntityProject EntityType = "project"

	// EntityTechnology is a technology, tool, or language.
	EntityTechnology EntityType = "technology"

	// EntityOrganization is a company, team, or institution.
	EntityOrganization EntityType = "organization"

	// EntityOther covers everything that does not fit the other types.
	EntityOther EntityType = "other"
)

// Entity is a canonical named node in the relationship graph.
//
// Entities are idempotently created: deriving the same canonical name for the
// same owner always yields the same identifier, so repeated ingestion of
// equivalent text upserts rather than duplicates.
type Entity struct {
	// ID is the deterministic identifier derived from the owner scope and
	// the canonical name.
	ID string `json:"id"`

	// OwnerID identifies the owning user or session scope.
	OwnerID string `json:"owner_id"`

	// Name is the canonical name (case-normalized, whitespace collapsed to
	// underscores), e.g. "sarah_johnson".
	Name string `json:"name"`

	// Type is the entity type tag.
	Type EntityType `json:"type"`

	// CreatedAt is when the entity was first seen.
	CreatedAt time.Time `json:"created_at"`
}

// Relation is a directed, labeled edge between two entities.
//
// Relations are append-only; a relation is never overwritten, only logically
// superseded when its source fact is deleted (cascading soft-delete).
type Relation struct {
	// ID is the unique identifier of the relation row.
	ID string `json:"id"`

	// OwnerID identifies the owning user or session scope.
	OwnerID string `json:"owner_id"`

	// SourceID is the entity ID the edge starts from.
	SourceID string `json:"source_id"`

	// SourceName is the canonical name of the source entity.
	SourceName string `json:"source"`

	// Label is the relationship label, e.g. "works_with".
	Label string `json:"relationship"`

	// TargetID is the entity ID the edge points to.
	TargetID string `json:"target_id"`

	// TargetName is the canonical name of the target entity.
	TargetName string `json:"target"`

	// FactID references the fact this relation was derived from, so that
	// deleting the fact can cascade.
	FactID int64 `json:"fact_id"`

	// Confidence is the extraction confidence (0.0-1.0).
	Confidence float64 `json:"confidence,omitempty"`

	// CreatedAt is when the relation was inserted.
	CreatedAt time.Time `json:"created_at"`
}

// WarningKind classifies non-fatal degradations reported by an operation.
type WarningKind string

const (
	// WarnExtractionFailed means the extraction capability failed and the
	// fact was stored without graph enrichment.
	WarnExtractionFailed WarningKind = "extraction_failed"

	// WarnPartialConsistency means the fact was stored but the relation
	// store write failed; the fact is flagged for reconciliation.
	WarnPartialConsistency WarningKind = "partial_consistency"

	// WarnDuplicate means ingestion was suppressed because an existing
	// fact exceeded the configured duplicate threshold.
	WarnDuplicate WarningKind = "duplicate_of"
)

// Warning describes a non-fatal degradation attached to a successful result.
type Warning struct {
	// Kind is the stable warning classification.
	Kind WarningKind `json:"kind"`

	// Message is the human-readable detail.
	Message string `json:"message"`
}

// IngestResult is the outcome of a successful ingestion.
//
// Ingestion degrades rather than fails: the result may carry warnings when
// extraction or the relation store misbehaved, but Fact is always populated.
type IngestResult struct {
	// Fact is the stored memory fact.
	Fact *Fact `json:"fact"`

	// Entities lists the graph entities upserted for this fact.
	Entities []*Entity `json:"entities,omitempty"`

	// Relations lists the graph relations added for this fact.
	Relations []*Relation `json:"relations_added,omitempty"`

	// Warnings lists degradations encountered during ingestion.
	Warnings []Warning `json:"warnings,omitempty"`
}

// GraphNeighbor annotates a search hit with a nearby graph entity.
type GraphNeighbor struct {
	// Entity is the neighboring entity.
	Entity *Entity `json:"entity"`

	// Relation is the edge that connects it.
	Relation *Relation `json:"relation"`

	// Distance is the number of hops from the hit's own entity (1-based).
	Distance int `json:"distance"`
}

// SearchHit is one ranked result from a merged query.
type SearchHit struct {
	// Fact is the matching memory fact.
	Fact *Fact `json:"fact"`

	// Score is the similarity score that ranked this hit.
	Score float64 `json:"score"`

	// Neighbors lists graph entities found within the configured traversal
	// depth of the hit's associated entities, deduplicated by entity ID.
	Neighbors []*GraphNeighbor `json:"neighbors,omitempty"`
}

// SearchResult is the merged, ranked outcome of a query.
type SearchResult struct {
	// Hits is the ranked result list, ordered by descending similarity.
	Hits []*SearchHit `json:"results"`

	// GraphUnavailable is true when the relation store could not be
	// reached; hits are then similarity-only.
	GraphUnavailable bool `json:"graph_unavailable,omitempty"`
}
