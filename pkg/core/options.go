package core

// IngestOption is a function type for configuring Ingest operations.
//
// Options are applied using the functional options pattern, allowing
// flexible configuration without requiring all parameters.
type IngestOption func(*IngestOptions)

// IngestOptions contains configuration options for Ingest operations.
type IngestOptions struct {
	// OwnerID identifies the user or session scope that owns the fact.
	OwnerID string

	// Metadata contains additional metadata about the fact.
	Metadata map[string]interface{}

	// SkipExtraction stores the fact without attempting entity or
	// relation extraction.
	SkipExtraction bool
}

// SearchOption is a function type for configuring Search operations.
type SearchOption func(*SearchOptions)

// SearchOptions contains configuration options for Search operations.
type SearchOptions struct {
	// OwnerID scopes the search to a single owner.
	OwnerID string

	// Limit caps the number of results.
	Limit int

	// MinScore drops results below this similarity score.
	MinScore float64

	// Filters provides additional metadata equality filters.
	Filters map[string]interface{}

	// SkipGraph returns similarity-only results without neighbor fan-out.
	SkipGraph bool
}

// GetOption is a function type for configuring Get operations.
type GetOption func(*GetOptions)

// GetOptions contains configuration options for Get operations.
type GetOptions struct {
	// OwnerID restricts access to facts belonging to this owner.
	OwnerID string
}

// GetAllOption is a function type for configuring GetAll operations.
type GetAllOption func(*GetAllOptions)

// GetAllOptions contains configuration options for GetAll operations.
type GetAllOptions struct {
	// OwnerID scopes the listing to a single owner.
	OwnerID string

	// Limit caps the number of results.
	Limit int

	// Offset skips the first N results (for pagination).
	Offset int
}

// UpdateOption is a function type for configuring Update operations.
type UpdateOption func(*UpdateOptions)

// UpdateOptions contains configuration options for Update operations.
type UpdateOptions struct {
	// OwnerID restricts the update to facts belonging to this owner.
	OwnerID string

	// Metadata replaces the fact's metadata when non-nil.
	Metadata map[string]interface{}
}

// DeleteOption is a function type for configuring Delete operations.
type DeleteOption func(*DeleteOptions)

// DeleteOptions contains configuration options for Delete operations.
type DeleteOptions struct {
	// OwnerID restricts deletion to facts belonging to this owner.
	OwnerID string
}

// DeleteAllOption is a function type for configuring DeleteAll operations.
type DeleteAllOption func(*DeleteAllOptions)

// DeleteAllOptions contains configuration options for DeleteAll operations.
type DeleteAllOptions struct {
	// OwnerID scopes the deletion to a single owner.
	OwnerID string
}

// WithOwnerID sets the owner scope for Ingest operations.
//
// Example:
//
//	result, _ := engine.Ingest(ctx, "content", core.WithOwnerID("user_001"))
func WithOwnerID(ownerID string) IngestOption {
	return func(opts *IngestOptions) {
		opts.OwnerID = ownerID
	}
}

// WithMetadata sets metadata for Ingest operations.
//
// Example:
//
//	result, _ := engine.Ingest(ctx, "content",
//	    core.WithOwnerID("user_001"),
//	    core.WithMetadata(map[string]interface{}{"source": "chat"}))
func WithMetadata(metadata map[string]interface{}) IngestOption {
	return func(opts *IngestOptions) {
		opts.Metadata = metadata
	}
}

// WithSkipExtraction stores the fact without graph enrichment.
func WithSkipExtraction() IngestOption {
	return func(opts *IngestOptions) {
		opts.SkipExtraction = true
	}
}

// WithOwnerIDForSearch sets the owner scope for Search operations.
//
// Example:
//
//	results, _ := engine.Search(ctx, "query", core.WithOwnerIDForSearch("user_001"))
func WithOwnerIDForSearch(ownerID string) SearchOption {
	return func(opts *SearchOptions) {
		opts.OwnerID = ownerID
	}
}

// WithLimit caps the number of Search results.
func WithLimit(limit int) SearchOption {
	return func(opts *SearchOptions) {
		opts.Limit = limit
	}
}

// WithMinScore drops Search results below the given similarity score.
func WithMinScore(minScore float64) SearchOption {
	return func(opts *SearchOptions) {
		opts.MinScore = minScore
	}
}

// WithFilters sets metadata equality filters for Search operations.
func WithFilters(filters map[string]interface{}) SearchOption {
	return func(opts *SearchOptions) {
		opts.Filters = filters
	}
}

// WithSkipGraph returns similarity-only Search results.
func WithSkipGraph() SearchOption {
	return func(opts *SearchOptions) {
		opts.SkipGraph = true
	}
}

// WithOwnerIDForGet sets the owner scope for Get operations.
func WithOwnerIDForGet(ownerID string) GetOption {
	return func(opts *GetOptions) {
		opts.OwnerID = ownerID
	}
}

// WithOwnerIDForGetAll sets the owner scope for GetAll operations.
//
// Example:
//
//	facts, _ := engine.GetAll(ctx, core.WithOwnerIDForGetAll("user_001"))
func WithOwnerIDForGetAll(ownerID string) GetAllOption {
	return func(opts *GetAllOptions) {
		opts.OwnerID = ownerID
	}
}

// WithLimitForGetAll caps the number of GetAll results.
func WithLimitForGetAll(limit int) GetAllOption {
	return func(opts *GetAllOptions) {
		opts.Limit = limit
	}
}

// WithOffsetForGetAll skips the first N GetAll results.
func WithOffsetForGetAll(offset int) GetAllOption {
	return func(opts *GetAllOptions) {
		opts.Offset = offset
	}
}

// WithOwnerIDForUpdate sets the owner scope for Update operations.
func WithOwnerIDForUpdate(ownerID string) UpdateOption {
	return func(opts *UpdateOptions) {
		opts.OwnerID = ownerID
	}
}

// WithMetadataForUpdate replaces the fact's metadata during Update.
func WithMetadataForUpdate(metadata map[string]interface{}) UpdateOption {
	return func(opts *UpdateOptions) {
		opts.Metadata = metadata
	}
}

// WithOwnerIDForDelete sets the owner scope for Delete operations.
func WithOwnerIDForDelete(ownerID string) DeleteOption {
	return func(opts *DeleteOptions) {
		opts.OwnerID = ownerID
	}
}

// WithOwnerIDForDeleteAll sets the owner scope for DeleteAll operations.
//
// Example:
//
//	_ = engine.DeleteAll(ctx, core.WithOwnerIDForDeleteAll("user_001"))
func WithOwnerIDForDeleteAll(ownerID string) DeleteAllOption {
	return func(opts *DeleteAllOptions) {
		opts.OwnerID = ownerID
	}
}

func applyIngestOptions(opts []IngestOption) *IngestOptions {
	options := &IngestOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func applySearchOptions(opts []SearchOption) *SearchOptions {
	options := &SearchOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func applyGetOptions(opts []GetOption) *GetOptions {
	options := &GetOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func applyGetAllOptions(opts []GetAllOption) *GetAllOptions {
	options := &GetAllOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func applyUpdateOptions(opts []UpdateOption) *UpdateOptions {
	options := &UpdateOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func applyDeleteOptions(opts []DeleteOption) *DeleteOptions {
	options := &DeleteOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func applyDeleteAllOptions(opts []DeleteAllOption) *DeleteAllOptions {
	options := &DeleteAllOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
