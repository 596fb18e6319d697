package core_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/duomem/duomem-go/pkg/core"
)

func newTestAsyncEngine(t *testing.T) *core.AsyncEngine {
	engine, err := core.NewAsyncEngine(testConfig(t), core.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func TestAsyncEngine_IngestAndSearch(t *testing.T) {
	engine := newTestAsyncEngine(t)
	ctx := context.Background()

	ingest := <-engine.IngestAsync(ctx, "Alex prefers Go", core.WithOwnerID("u1"))
	require.NoError(t, ingest.Error)
	require.NotNil(t, ingest.Result.Fact)

	search := <-engine.SearchAsync(ctx, "Go", core.WithOwnerIDForSearch("u1"))
	require.NoError(t, search.Error)
	assert.Len(t, search.Result.Hits, 1)

	got := <-engine.GetAsync(ctx, ingest.Result.Fact.ID, core.WithOwnerIDForGet("u1"))
	require.NoError(t, got.Error)
	assert.Equal(t, "Alex prefers Go", got.Fact.Content)

	require.NoError(t, <-engine.DeleteAsync(ctx, ingest.Result.Fact.ID, core.WithOwnerIDForDelete("u1")))
}

func TestAsyncEngine_ConcurrentIngests(t *testing.T) {
	engine := newTestAsyncEngine(t)
	ctx := context.Background()

	contents := []string{
		"Alex prefers Go",
		"Sarah leads the platform team",
		"Phoenix launches in March",
		"Morgan reviews every release",
	}

	var wg sync.WaitGroup
	for _, content := range contents {
		wg.Add(1)
		go func(content string) {
			defer wg.Done()
			result := <-engine.IngestAsync(ctx, content, core.WithOwnerID("u1"))
			assert.NoError(t, result.Error)
		}(content)
	}
	wg.Wait()
	engine.Wait()

	facts, err := engine.GetAll(ctx, core.WithOwnerIDForGetAll("u1"))
	require.NoError(t, err)
	assert.Len(t, facts, len(contents))
}
