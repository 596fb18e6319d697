// Package chromem provides an embedded, pure-Go similarity store built on
// chromem-go. It needs no external services, which makes it the default
// backend for local runs and tests.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/duomem/duomem-go/pkg/storage"
)

// Client is a chromem-go backed similarity store.
type Client struct {
	db          *chromemgo.DB
	collections map[string]*chromemgo.Collection

	mu    sync.RWMutex
	facts map[int64]*storage.Fact
}

// NewClient creates a new in-memory chromem similarity store.
func NewClient() (*Client, error) {
	return &Client{
		db:          chromemgo.NewDB(),
		collections: make(map[string]*chromemgo.Collection),
		facts:       make(map[int64]*storage.Fact),
	}, nil
}

// getOrCreateCollection returns the per-owner collection. Each owner gets
// its own collection for namespace isolation.
func (c *Client) getOrCreateCollection(ownerID string) (*chromemgo.Collection, error) {
	name := collectionName(ownerID)

	c.mu.RLock()
	col, ok := c.collections[name]
	c.mu.RUnlock()
	if ok {
		return col, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if col, ok := c.collections[name]; ok {
		return col, nil
	}

	// Embeddings are always supplied by the caller, so no embedding func.
	col, err := c.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	c.collections[name] = col
	return col, nil
}

// Upsert inserts or replaces a fact.
func (c *Client) Upsert(ctx context.Context, fact *storage.Fact) error {
	col, err := c.getOrCreateCollection(fact.OwnerID)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	metadataJSON, err := json.Marshal(fact.Metadata)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	stored := cloneFact(fact)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.UpdatedAt = time.Now()
	if stored.Version == 0 {
		stored.Version = 1
	}

	doc := chromemgo.Document{
		ID:        strconv.FormatInt(fact.ID, 10),
		Content:   fact.Content,
		Embedding: toFloat32(fact.Embedding),
		Metadata: map[string]string{
			"owner_id": fact.OwnerID,
			"metadata": string(metadataJSON),
		},
	}

	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	c.mu.Lock()
	c.facts[stored.ID] = stored
	c.mu.Unlock()

	return nil
}

// Search performs vector search over the owner's collection. The elevated
// scope crosses owner boundaries, so it fans out over every collection and
// merges the ranked results.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*storage.Fact, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	cols, err := c.searchTargets(opts.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	var facts []*storage.Fact
	for _, col := range cols {
		results, err := c.queryCollection(ctx, col, embedding, limit)
		if err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}

		for _, r := range results {
			id, err := strconv.ParseInt(r.ID, 10, 64)
			if err != nil {
				continue
			}

			c.mu.RLock()
			stored, ok := c.facts[id]
			c.mu.RUnlock()
			if !ok {
				continue
			}

			f := cloneFact(stored)
			f.Score = float64(r.Similarity)
			if opts.MinScore > 0 && f.Score < opts.MinScore {
				continue
			}
			if !matchesFilters(f.Metadata, opts.Filters) {
				continue
			}
			facts = append(facts, f)
		}
	}

	sort.SliceStable(facts, func(i, j int) bool {
		return facts[i].Score > facts[j].Score
	})
	if len(facts) > limit {
		facts = facts[:limit]
	}

	return facts, nil
}

// searchTargets resolves which collections a search covers: the owner's own
// collection, or all of them when the all-owners scope is requested.
func (c *Client) searchTargets(ownerID string) ([]*chromemgo.Collection, error) {
	if ownerID == "" || ownerID == storage.OwnerAll {
		c.mu.RLock()
		defer c.mu.RUnlock()
		cols := make([]*chromemgo.Collection, 0, len(c.collections))
		for _, col := range c.collections {
			cols = append(cols, col)
		}
		return cols, nil
	}

	col, err := c.getOrCreateCollection(ownerID)
	if err != nil {
		return nil, err
	}
	return []*chromemgo.Collection{col}, nil
}

// queryCollection retries with smaller nResults because chromem rejects
// queries that ask for more results than the collection holds.
func (c *Client) queryCollection(ctx context.Context, col *chromemgo.Collection, embedding []float64, limit int) ([]chromemgo.Result, error) {
	for n := limit; n >= 1; n-- {
		results, err := col.QueryEmbedding(ctx, toFloat32(embedding), n, nil, nil)
		if err == nil {
			return results, nil
		}
		if isInsufficientDocsError(err) {
			if n == 1 {
				return nil, nil
			}
			continue
		}
		return nil, err
	}
	return nil, nil
}

// Get retrieves a fact by ID with optional owner scoping.
func (c *Client) Get(ctx context.Context, id int64, opts *storage.GetOptions) (*storage.Fact, error) {
	c.mu.RLock()
	stored, ok := c.facts[id]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("Get: not found or access denied")
	}
	if opts != nil && opts.OwnerID != "" && opts.OwnerID != storage.OwnerAll && stored.OwnerID != opts.OwnerID {
		return nil, fmt.Errorf("Get: not found or access denied")
	}

	return cloneFact(stored), nil
}

// GetAll retrieves all facts with optional filtering and pagination.
func (c *Client) GetAll(ctx context.Context, opts *storage.GetAllOptions) ([]*storage.Fact, error) {
	c.mu.RLock()
	var facts []*storage.Fact
	for _, stored := range c.facts {
		if opts.OwnerID != "" && opts.OwnerID != storage.OwnerAll && stored.OwnerID != opts.OwnerID {
			continue
		}
		facts = append(facts, cloneFact(stored))
	}
	c.mu.RUnlock()

	sort.SliceStable(facts, func(i, j int) bool {
		return facts[i].CreatedAt.After(facts[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(facts) {
			return nil, nil
		}
		facts = facts[opts.Offset:]
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(facts) > limit {
		facts = facts[:limit]
	}

	return facts, nil
}

// Delete removes a fact by ID with optional owner scoping.
func (c *Client) Delete(ctx context.Context, id int64, opts *storage.DeleteOptions) error {
	c.mu.RLock()
	stored, ok := c.facts[id]
	c.mu.RUnlock()

	if !ok {
		return fmt.Errorf("Delete: not found or access denied")
	}
	if opts != nil && opts.OwnerID != "" && opts.OwnerID != storage.OwnerAll && stored.OwnerID != opts.OwnerID {
		return fmt.Errorf("Delete: not found or access denied")
	}

	col, err := c.getOrCreateCollection(stored.OwnerID)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}

	if err := col.Delete(ctx, nil, nil, strconv.FormatInt(id, 10)); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}

	c.mu.Lock()
	delete(c.facts, id)
	c.mu.Unlock()

	return nil
}

// DeleteAll removes all facts for the given owner, or all facts when the
// owner is unset.
func (c *Client) DeleteAll(ctx context.Context, opts *storage.DeleteAllOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if opts.OwnerID == "" || opts.OwnerID == storage.OwnerAll {
		if err := c.db.Reset(); err != nil {
			return fmt.Errorf("DeleteAll: %w", err)
		}
		c.collections = make(map[string]*chromemgo.Collection)
		c.facts = make(map[int64]*storage.Fact)
		return nil
	}

	name := collectionName(opts.OwnerID)
	if _, ok := c.collections[name]; ok {
		if err := c.db.DeleteCollection(name); err != nil {
			return fmt.Errorf("DeleteAll: %w", err)
		}
		delete(c.collections, name)
	}
	for id, stored := range c.facts {
		if stored.OwnerID == opts.OwnerID {
			delete(c.facts, id)
		}
	}

	return nil
}

// Close releases resources. chromem keeps everything in memory, so there is
// nothing to tear down.
func (c *Client) Close() error {
	return nil
}

func collectionName(ownerID string) string {
	if ownerID == "" || ownerID == storage.OwnerAll {
		return "global"
	}
	return "owner_" + ownerID
}

func cloneFact(f *storage.Fact) *storage.Fact {
	clone := *f
	clone.Embedding = append([]float64(nil), f.Embedding...)
	if f.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(f.Metadata))
		for k, v := range f.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func matchesFilters(metadata map[string]interface{}, filters map[string]interface{}) bool {
	for key, want := range filters {
		got, ok := metadata[key]
		if !ok || fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
