// Package extraction turns free-form memory text into entity and relation
// drafts for the graph store.
//
// It defines the Extractor interface, the draft types produced by
// extraction, and the canonical entity identity rules shared by every
// component that names entities.
package extraction

import "context"

// EntityDraft is a candidate graph node proposed by extraction, before
// canonicalization assigns it an identity.
type EntityDraft struct {
	// Name is the entity name as extracted, e.g. "Sarah Johnson".
	Name string `json:"name"`

	// Type is the entity type tag: person, project, technology,
	// organization, or other. Unknown types degrade to other.
	Type string `json:"type"`
}

// RelationDraft is a candidate directed edge proposed by extraction. Source
// and Target reference entity drafts by name.
type RelationDraft struct {
	// Source is the source entity name.
	Source string `json:"source"`

	// Label is the relationship label, e.g. "works_with".
	Label string `json:"label"`

	// Target is the target entity name.
	Target string `json:"target"`

	// Confidence is the extraction confidence (0.0-1.0).
	Confidence float64 `json:"confidence"`
}

// Result is the outcome of a successful extraction pass.
type Result struct {
	// Entities are the proposed graph nodes.
	Entities []EntityDraft

	// Relations are the proposed edges. Every Source and Target names an
	// entry in Entities.
	Relations []RelationDraft
}

// Extractor defines the interface for entity and relation extraction.
//
// Extraction is best-effort: a failed extraction must not block fact
// storage, so callers treat errors as a degradation signal rather than a
// hard failure.
type Extractor interface {
	// Extract proposes entities and relations for the given text.
	Extract(ctx context.Context, text string) (*Result, error)
}
