package core_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/duomem/duomem-go/pkg/core"
	"github.com/duomem/duomem-go/pkg/extraction"
	"github.com/duomem/duomem-go/pkg/storage"
)

// fakeExtractor returns a canned extraction result without an LLM.
type fakeExtractor struct {
	result *extraction.Result
	err    error
}

func (f *fakeExtractor) Extract(ctx context.Context, text string) (*extraction.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &extraction.Result{}, nil
}

// failingRelationStore fails every call, simulating a dead graph backend.
type failingRelationStore struct{}

var errGraphDown = errors.New("graph backend down")

func (f *failingRelationStore) UpsertEntity(ctx context.Context, entity *storage.Entity) error {
	return errGraphDown
}

func (f *failingRelationStore) InsertRelation(ctx context.Context, relation *storage.Relation) error {
	return errGraphDown
}

func (f *failingRelationStore) Neighbors(ctx context.Context, entityID, ownerID string, depth int) ([]*storage.Neighbor, error) {
	return nil, errGraphDown
}

func (f *failingRelationStore) RelationsForOwner(ctx context.Context, ownerID string, limit int) ([]*storage.Relation, error) {
	return nil, errGraphDown
}

func (f *failingRelationStore) RecordFact(ctx context.Context, record *storage.FactRecord) error {
	return errGraphDown
}

func (f *failingRelationStore) DeleteByFact(ctx context.Context, factID int64) error {
	return errGraphDown
}

func (f *failingRelationStore) Close() error {
	return nil
}

func teamExtraction() *extraction.Result {
	return &extraction.Result{
		Entities: []extraction.EntityDraft{
			{Name: "Sarah Johnson", Type: "person"},
			{Name: "Alex", Type: "person"},
		},
		Relations: []extraction.RelationDraft{
			{Source: "Sarah Johnson", Label: "works_with", Target: "Alex", Confidence: 0.9},
		},
	}
}

func testConfig(t *testing.T) *core.Config {
	dir := t.TempDir()
	return &core.Config{
		LLM:      core.LLMConfig{Provider: "none"},
		Embedder: core.EmbedderConfig{Provider: "simple", Dimensions: 256},
		SimilarityStore: core.SimilarityStoreConfig{
			Provider: "sqlite",
			Config:   map[string]interface{}{"db_path": filepath.Join(dir, "facts.db")},
		},
		RelationStore: core.RelationStoreConfig{
			Provider: "sqlite",
			Config:   map[string]interface{}{"db_path": filepath.Join(dir, "graph.db")},
		},
	}
}

func newTestEngine(t *testing.T, opts ...core.Option) *core.Engine {
	opts = append(opts, core.WithLogger(zap.NewNop()))
	engine, err := core.New(testConfig(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func TestEngine_IngestAndSearch(t *testing.T) {
	engine := newTestEngine(t, core.WithExtractor(&fakeExtractor{result: teamExtraction()}))
	ctx := context.Background()

	result, err := engine.Ingest(ctx,
		"Sarah Johnson is the CTO and works with Alex on architecture",
		core.WithOwnerID("alex"),
	)
	require.NoError(t, err)
	require.NotNil(t, result.Fact)
	assert.Empty(t, result.Warnings)
	assert.Len(t, result.Entities, 2)
	assert.Len(t, result.Relations, 1)
	assert.Equal(t, "sarah_johnson", result.Relations[0].SourceName)
	assert.Equal(t, "works_with", result.Relations[0].Label)
	assert.Equal(t, "alex", result.Relations[0].TargetName)

	search, err := engine.Search(ctx, "who works with Alex?",
		core.WithOwnerIDForSearch("alex"),
		core.WithLimit(5),
	)
	require.NoError(t, err)
	require.Len(t, search.Hits, 1)
	assert.False(t, search.GraphUnavailable)
	assert.Equal(t, result.Fact.ID, search.Hits[0].Fact.ID)

	names := make(map[string]bool)
	for _, n := range search.Hits[0].Neighbors {
		names[n.Entity.Name] = true
	}
	assert.True(t, names["sarah_johnson"], "expected sarah_johnson as graph neighbor")
}

func TestEngine_IngestValidation(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Ingest(ctx, "", core.WithOwnerID("u1"))
	assert.Equal(t, core.KindValidationError, core.KindOf(err))

	_, err = engine.Ingest(ctx, "some content")
	assert.Equal(t, core.KindValidationError, core.KindOf(err))
}

func TestEngine_IngestExtractionFailureDegrades(t *testing.T) {
	engine := newTestEngine(t, core.WithExtractor(&fakeExtractor{err: errors.New("model unavailable")}))
	ctx := context.Background()

	result, err := engine.Ingest(ctx, "Alex prefers Go", core.WithOwnerID("u1"))
	require.NoError(t, err)
	require.NotNil(t, result.Fact)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, core.WarnExtractionFailed, result.Warnings[0].Kind)
	assert.Empty(t, result.Entities)

	// The fact must still be retrievable.
	fact, err := engine.Get(ctx, result.Fact.ID, core.WithOwnerIDForGet("u1"))
	require.NoError(t, err)
	assert.Equal(t, "Alex prefers Go", fact.Content)
}

func TestEngine_IngestGraphFailurePartialConsistency(t *testing.T) {
	engine := newTestEngine(t,
		core.WithExtractor(&fakeExtractor{result: teamExtraction()}),
		core.WithRelationStore(&failingRelationStore{}),
	)
	ctx := context.Background()

	result, err := engine.Ingest(ctx,
		"Sarah Johnson works with Alex",
		core.WithOwnerID("u1"),
	)
	require.NoError(t, err)
	require.NotNil(t, result.Fact)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, core.WarnPartialConsistency, result.Warnings[0].Kind)

	// The fact is flagged for reconciliation.
	fact, err := engine.Get(ctx, result.Fact.ID, core.WithOwnerIDForGet("u1"))
	require.NoError(t, err)
	assert.True(t, fact.GraphPending)
}

func TestEngine_SearchGraphUnavailableFallback(t *testing.T) {
	engine := newTestEngine(t,
		core.WithExtractor(&fakeExtractor{result: teamExtraction()}),
		core.WithRelationStore(&failingRelationStore{}),
	)
	ctx := context.Background()

	_, err := engine.Ingest(ctx, "Sarah Johnson works with Alex", core.WithOwnerID("u1"))
	require.NoError(t, err)

	search, err := engine.Search(ctx, "Sarah Johnson", core.WithOwnerIDForSearch("u1"))
	require.NoError(t, err)
	require.Len(t, search.Hits, 1)
	assert.True(t, search.GraphUnavailable)
	assert.Empty(t, search.Hits[0].Neighbors)
}

func TestEngine_SearchValidation(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.Search(context.Background(), "", core.WithOwnerIDForSearch("u1"))
	assert.Equal(t, core.KindValidationError, core.KindOf(err))
}

func TestEngine_OwnerIsolation(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Ingest(ctx, "Alex likes espresso", core.WithOwnerID("alex"))
	require.NoError(t, err)
	_, err = engine.Ingest(ctx, "Morgan likes espresso", core.WithOwnerID("morgan"))
	require.NoError(t, err)

	search, err := engine.Search(ctx, "espresso", core.WithOwnerIDForSearch("alex"))
	require.NoError(t, err)
	require.Len(t, search.Hits, 1)
	assert.Equal(t, "alex", search.Hits[0].Fact.OwnerID)

	// The elevated scope sees everything.
	all, err := engine.Search(ctx, "espresso", core.WithOwnerIDForSearch(storage.OwnerAll))
	require.NoError(t, err)
	assert.Len(t, all.Hits, 2)
}

func TestEngine_UpdateBumpsVersion(t *testing.T) {
	engine := newTestEngine(t, core.WithExtractor(&fakeExtractor{result: teamExtraction()}))
	ctx := context.Background()

	result, err := engine.Ingest(ctx, "Sarah Johnson works with Alex", core.WithOwnerID("u1"))
	require.NoError(t, err)

	updated, err := engine.Update(ctx, result.Fact.ID, "Sarah Johnson now works with Morgan",
		core.WithOwnerIDForUpdate("u1"),
	)
	require.NoError(t, err)
	assert.Equal(t, result.Fact.ID, updated.ID)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "Sarah Johnson now works with Morgan", updated.Content)

	fact, err := engine.Get(ctx, result.Fact.ID, core.WithOwnerIDForGet("u1"))
	require.NoError(t, err)
	assert.Equal(t, 2, fact.Version)
}

func TestEngine_UpdateNotFound(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.Update(context.Background(), 424242, "new content",
		core.WithOwnerIDForUpdate("u1"),
	)
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
}

func TestEngine_DeleteCascadesIntoGraph(t *testing.T) {
	engine := newTestEngine(t, core.WithExtractor(&fakeExtractor{result: teamExtraction()}))
	ctx := context.Background()

	result, err := engine.Ingest(ctx, "Sarah Johnson works with Alex", core.WithOwnerID("u1"))
	require.NoError(t, err)

	relations, err := engine.Relations(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, relations, 1)

	require.NoError(t, engine.Delete(ctx, result.Fact.ID, core.WithOwnerIDForDelete("u1")))

	_, err = engine.Get(ctx, result.Fact.ID, core.WithOwnerIDForGet("u1"))
	assert.Equal(t, core.KindNotFound, core.KindOf(err))

	relations, err = engine.Relations(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, relations)
}

func TestEngine_DeleteRespectsOwner(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Ingest(ctx, "Alex likes espresso", core.WithOwnerID("alex"))
	require.NoError(t, err)

	err = engine.Delete(ctx, result.Fact.ID, core.WithOwnerIDForDelete("morgan"))
	assert.Equal(t, core.KindNotFound, core.KindOf(err))

	// Still there for the real owner.
	_, err = engine.Get(ctx, result.Fact.ID, core.WithOwnerIDForGet("alex"))
	assert.NoError(t, err)
}

func TestEngine_DeleteAll(t *testing.T) {
	engine := newTestEngine(t, core.WithExtractor(&fakeExtractor{result: teamExtraction()}))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := engine.Ingest(ctx, "Sarah Johnson works with Alex", core.WithOwnerID("u1"))
		require.NoError(t, err)
	}
	_, err := engine.Ingest(ctx, "Morgan likes espresso", core.WithOwnerID("u2"))
	require.NoError(t, err)

	require.NoError(t, engine.DeleteAll(ctx, core.WithOwnerIDForDeleteAll("u1")))

	facts, err := engine.GetAll(ctx, core.WithOwnerIDForGetAll("u1"))
	require.NoError(t, err)
	assert.Empty(t, facts)

	relations, err := engine.Relations(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, relations)

	// The other owner is untouched.
	facts, err = engine.GetAll(ctx, core.WithOwnerIDForGetAll("u2"))
	require.NoError(t, err)
	assert.Len(t, facts, 1)
}

func TestEngine_DedupSuppressesNearDuplicates(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.DedupThreshold = 0.95

	engine, err := core.New(cfg, core.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	ctx := context.Background()

	first, err := engine.Ingest(ctx, "Alex prefers Go for backend services", core.WithOwnerID("u1"))
	require.NoError(t, err)
	require.Empty(t, first.Warnings)

	second, err := engine.Ingest(ctx, "Alex prefers Go for backend services", core.WithOwnerID("u1"))
	require.NoError(t, err)
	require.Len(t, second.Warnings, 1)
	assert.Equal(t, core.WarnDuplicate, second.Warnings[0].Kind)
	assert.Equal(t, first.Fact.ID, second.Fact.ID)
}

func TestEngine_GraphDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.RelationStore = core.RelationStoreConfig{Provider: "none"}

	engine, err := core.New(cfg, core.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	assert.False(t, engine.GraphEnabled())

	ctx := context.Background()
	_, err = engine.Ingest(ctx, "Alex likes espresso", core.WithOwnerID("u1"))
	require.NoError(t, err)

	search, err := engine.Search(ctx, "espresso", core.WithOwnerIDForSearch("u1"))
	require.NoError(t, err)
	assert.True(t, search.GraphUnavailable)

	relations, err := engine.Relations(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Nil(t, relations)
}

func TestEngine_SkipGraphSearch(t *testing.T) {
	engine := newTestEngine(t, core.WithExtractor(&fakeExtractor{result: teamExtraction()}))
	ctx := context.Background()

	_, err := engine.Ingest(ctx, "Sarah Johnson works with Alex", core.WithOwnerID("u1"))
	require.NoError(t, err)

	search, err := engine.Search(ctx, "Sarah Johnson",
		core.WithOwnerIDForSearch("u1"),
		core.WithSkipGraph(),
	)
	require.NoError(t, err)
	require.Len(t, search.Hits, 1)
	assert.Empty(t, search.Hits[0].Neighbors)
	assert.False(t, search.GraphUnavailable)
}

func TestEngine_IngestDoesNotMutateCallerMetadata(t *testing.T) {
	engine := newTestEngine(t, core.WithExtractor(&fakeExtractor{result: teamExtraction()}))
	ctx := context.Background()

	meta := map[string]interface{}{"source": "chat"}

	first, err := engine.Ingest(ctx, "Sarah Johnson works with Alex",
		core.WithOwnerID("alex"),
		core.WithMetadata(meta),
	)
	require.NoError(t, err)
	assert.Contains(t, first.Fact.Metadata, "entities")

	// The caller's map stays untouched and can be reused.
	assert.Equal(t, map[string]interface{}{"source": "chat"}, meta)

	second, err := engine.Ingest(ctx, "Alex pairs with Sarah Johnson daily",
		core.WithOwnerID("alex"),
		core.WithMetadata(meta),
	)
	require.NoError(t, err)
	assert.Equal(t, "chat", second.Fact.Metadata["source"])
	assert.Equal(t, map[string]interface{}{"source": "chat"}, meta)

	_, err = engine.Update(ctx, first.Fact.ID, "Sarah Johnson leads the team",
		core.WithOwnerIDForUpdate("alex"),
		core.WithMetadataForUpdate(meta),
	)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"source": "chat"}, meta)
}

func TestEngine_TraversalDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.GraphTraverseDepth = -1

	engine, err := core.New(cfg,
		core.WithExtractor(&fakeExtractor{result: teamExtraction()}),
		core.WithLogger(zap.NewNop()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	ctx := context.Background()
	_, err = engine.Ingest(ctx, "Sarah Johnson works with Alex", core.WithOwnerID("alex"))
	require.NoError(t, err)

	res, err := engine.Search(ctx, "who works with Alex?", core.WithOwnerIDForSearch("alex"))
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	assert.Empty(t, res.Hits[0].Neighbors)
	assert.False(t, res.GraphUnavailable)
}
