package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duomem/duomem-go/pkg/storage"
	sqliteStore "github.com/duomem/duomem-go/pkg/storage/sqlite"
)

func setupSQLiteTest(t *testing.T) storage.SimilarityStore {
	store, err := sqliteStore.NewClient(&sqliteStore.Config{
		DBPath: filepath.Join(t.TempDir(), "facts.db"),
	})
	require.NoError(t, err)
	require.NotNil(t, store)

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testFact(id int64, ownerID, content string, embedding []float64) *storage.Fact {
	return &storage.Fact{
		ID:        id,
		OwnerID:   ownerID,
		Content:   content,
		Embedding: embedding,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Version:   1,
	}
}

func TestSQLiteClient_UpsertAndGet(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	fact := testFact(100, "u1", "Alex prefers Go", []float64{0.1, 0.2, 0.3})
	fact.Metadata = map[string]interface{}{"source": "chat"}

	require.NoError(t, store.Upsert(ctx, fact))

	got, err := store.Get(ctx, 100, &storage.GetOptions{OwnerID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "Alex prefers Go", got.Content)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, got.Embedding)
	assert.Equal(t, "chat", got.Metadata["source"])
	assert.Equal(t, 1, got.Version)
}

func TestSQLiteClient_UpsertReplaces(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, testFact(1, "u1", "v1", []float64{1})))

	updated := testFact(1, "u1", "v2", []float64{1})
	updated.Version = 2
	updated.GraphPending = true
	require.NoError(t, store.Upsert(ctx, updated))

	got, err := store.Get(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content)
	assert.Equal(t, 2, got.Version)
	assert.True(t, got.GraphPending)
}

func TestSQLiteClient_GetOwnerScoped(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, testFact(1, "u1", "private", []float64{1})))

	_, err := store.Get(ctx, 1, &storage.GetOptions{OwnerID: "u2"})
	assert.Error(t, err)

	// The elevated scope crosses owner boundaries.
	got, err := store.Get(ctx, 1, &storage.GetOptions{OwnerID: storage.OwnerAll})
	require.NoError(t, err)
	assert.Equal(t, "private", got.Content)
}

func TestSQLiteClient_SearchRanksByCosine(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, testFact(1, "u1", "exact", []float64{1, 0, 0})))
	require.NoError(t, store.Upsert(ctx, testFact(2, "u1", "close", []float64{0.9, 0.1, 0})))
	require.NoError(t, store.Upsert(ctx, testFact(3, "u1", "orthogonal", []float64{0, 1, 0})))

	results, err := store.Search(ctx, []float64{1, 0, 0}, &storage.SearchOptions{
		OwnerID: "u1",
		Limit:   2,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ID)
	assert.Equal(t, int64(2), results[1].ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSQLiteClient_SearchMinScore(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, testFact(1, "u1", "match", []float64{1, 0})))
	require.NoError(t, store.Upsert(ctx, testFact(2, "u1", "miss", []float64{0, 1})))

	results, err := store.Search(ctx, []float64{1, 0}, &storage.SearchOptions{
		OwnerID:  "u1",
		Limit:    10,
		MinScore: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].ID)
}

func TestSQLiteClient_SearchFilters(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	tagged := testFact(1, "u1", "tagged", []float64{1, 0})
	tagged.Metadata = map[string]interface{}{"topic": "go"}
	require.NoError(t, store.Upsert(ctx, tagged))

	other := testFact(2, "u1", "other", []float64{1, 0})
	other.Metadata = map[string]interface{}{"topic": "rust"}
	require.NoError(t, store.Upsert(ctx, other))

	results, err := store.Search(ctx, []float64{1, 0}, &storage.SearchOptions{
		OwnerID: "u1",
		Limit:   10,
		Filters: map[string]interface{}{"topic": "go"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].ID)
}

func TestSQLiteClient_GetAllPagination(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		fact := testFact(i, "u1", "content", []float64{1})
		fact.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		require.NoError(t, store.Upsert(ctx, fact))
	}

	page, err := store.GetAll(ctx, &storage.GetAllOptions{OwnerID: "u1", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	rest, err := store.GetAll(ctx, &storage.GetAllOptions{OwnerID: "u1", Limit: 10, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, rest, 3)
}

func TestSQLiteClient_Delete(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, testFact(1, "u1", "bye", []float64{1})))

	// Wrong owner cannot delete.
	err := store.Delete(ctx, 1, &storage.DeleteOptions{OwnerID: "u2"})
	assert.Error(t, err)

	require.NoError(t, store.Delete(ctx, 1, &storage.DeleteOptions{OwnerID: "u1"}))

	_, err = store.Get(ctx, 1, nil)
	assert.Error(t, err)

	// Deleting a missing fact reports an error.
	err = store.Delete(ctx, 1, nil)
	assert.Error(t, err)
}

func TestSQLiteClient_DeleteAllByOwner(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, testFact(1, "u1", "a", []float64{1})))
	require.NoError(t, store.Upsert(ctx, testFact(2, "u1", "b", []float64{1})))
	require.NoError(t, store.Upsert(ctx, testFact(3, "u2", "c", []float64{1})))

	require.NoError(t, store.DeleteAll(ctx, &storage.DeleteAllOptions{OwnerID: "u1"}))

	mine, err := store.GetAll(ctx, &storage.GetAllOptions{OwnerID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, mine)

	theirs, err := store.GetAll(ctx, &storage.GetAllOptions{OwnerID: "u2"})
	require.NoError(t, err)
	assert.Len(t, theirs, 1)
}
