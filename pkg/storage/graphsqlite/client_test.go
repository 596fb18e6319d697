package graphsqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duomem/duomem-go/pkg/storage"
	"github.com/duomem/duomem-go/pkg/storage/graphsqlite"
)

func setupGraphTest(t *testing.T) storage.RelationStore {
	store, err := graphsqlite.NewClient(&graphsqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "graph.db"),
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func entity(id, owner, name string) *storage.Entity {
	return &storage.Entity{ID: id, OwnerID: owner, Name: name, Type: "person"}
}

func relation(owner, sourceID, sourceName, label, targetID, targetName string, factID int64) *storage.Relation {
	return &storage.Relation{
		OwnerID:    owner,
		SourceID:   sourceID,
		SourceName: sourceName,
		Label:      label,
		TargetID:   targetID,
		TargetName: targetName,
		FactID:     factID,
		Confidence: 0.9,
	}
}

func TestGraphClient_UpsertEntityIdempotent(t *testing.T) {
	store := setupGraphTest(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertEntity(ctx, entity("e1", "u1", "sarah_johnson")))
	// Same ID again with a refreshed type must not error or duplicate.
	refreshed := entity("e1", "u1", "sarah_johnson")
	refreshed.Type = "other"
	require.NoError(t, store.UpsertEntity(ctx, refreshed))

	require.NoError(t, store.UpsertEntity(ctx, entity("e2", "u1", "alex")))
	require.NoError(t, store.InsertRelation(ctx,
		relation("u1", "e1", "sarah_johnson", "works_with", "e2", "alex", 10)))

	neighbors, err := store.Neighbors(ctx, "e2", "u1", 1)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, "other", neighbors[0].Entity.Type)
}

func TestGraphClient_InsertRelationAssignsID(t *testing.T) {
	store := setupGraphTest(t)
	ctx := context.Background()

	rel := relation("u1", "e1", "a", "knows", "e2", "b", 1)
	require.NoError(t, store.InsertRelation(ctx, rel))
	assert.NotEmpty(t, rel.ID)
}

func TestGraphClient_NeighborsBothDirections(t *testing.T) {
	store := setupGraphTest(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertEntity(ctx, entity("e1", "u1", "sarah_johnson")))
	require.NoError(t, store.UpsertEntity(ctx, entity("e2", "u1", "alex")))
	require.NoError(t, store.InsertRelation(ctx,
		relation("u1", "e1", "sarah_johnson", "works_with", "e2", "alex", 10)))

	// Traversal follows the edge regardless of direction.
	fromSource, err := store.Neighbors(ctx, "e1", "u1", 1)
	require.NoError(t, err)
	require.Len(t, fromSource, 1)
	assert.Equal(t, "alex", fromSource[0].Entity.Name)
	assert.Equal(t, 1, fromSource[0].Distance)

	fromTarget, err := store.Neighbors(ctx, "e2", "u1", 1)
	require.NoError(t, err)
	require.Len(t, fromTarget, 1)
	assert.Equal(t, "sarah_johnson", fromTarget[0].Entity.Name)
}

func TestGraphClient_NeighborsDepthTwo(t *testing.T) {
	store := setupGraphTest(t)
	ctx := context.Background()

	// e1 - e2 - e3 chain.
	require.NoError(t, store.UpsertEntity(ctx, entity("e1", "u1", "sarah")))
	require.NoError(t, store.UpsertEntity(ctx, entity("e2", "u1", "alex")))
	require.NoError(t, store.UpsertEntity(ctx, entity("e3", "u1", "phoenix")))
	require.NoError(t, store.InsertRelation(ctx, relation("u1", "e1", "sarah", "works_with", "e2", "alex", 1)))
	require.NoError(t, store.InsertRelation(ctx, relation("u1", "e2", "alex", "works_on", "e3", "phoenix", 2)))

	shallow, err := store.Neighbors(ctx, "e1", "u1", 1)
	require.NoError(t, err)
	assert.Len(t, shallow, 1)

	deep, err := store.Neighbors(ctx, "e1", "u1", 2)
	require.NoError(t, err)
	require.Len(t, deep, 2)

	distances := map[string]int{}
	for _, n := range deep {
		distances[n.Entity.Name] = n.Distance
	}
	assert.Equal(t, 1, distances["alex"])
	assert.Equal(t, 2, distances["phoenix"])
}

func TestGraphClient_NeighborsOwnerScoped(t *testing.T) {
	store := setupGraphTest(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertEntity(ctx, entity("e1", "u1", "sarah")))
	require.NoError(t, store.UpsertEntity(ctx, entity("e2", "u1", "alex")))
	require.NoError(t, store.InsertRelation(ctx, relation("u1", "e1", "sarah", "works_with", "e2", "alex", 1)))

	neighbors, err := store.Neighbors(ctx, "e1", "u2", 2)
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestGraphClient_DeleteByFactTombstones(t *testing.T) {
	store := setupGraphTest(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertEntity(ctx, entity("e1", "u1", "sarah")))
	require.NoError(t, store.UpsertEntity(ctx, entity("e2", "u1", "alex")))
	require.NoError(t, store.InsertRelation(ctx, relation("u1", "e1", "sarah", "works_with", "e2", "alex", 10)))
	require.NoError(t, store.RecordFact(ctx, &storage.FactRecord{FactID: 10, OwnerID: "u1"}))

	require.NoError(t, store.DeleteByFact(ctx, 10))

	neighbors, err := store.Neighbors(ctx, "e1", "u1", 2)
	require.NoError(t, err)
	assert.Empty(t, neighbors)

	relations, err := store.RelationsForOwner(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, relations)
}

func TestGraphClient_RelationsForOwner(t *testing.T) {
	store := setupGraphTest(t)
	ctx := context.Background()

	require.NoError(t, store.InsertRelation(ctx, relation("u1", "e1", "a", "knows", "e2", "b", 1)))
	require.NoError(t, store.InsertRelation(ctx, relation("u1", "e2", "b", "knows", "e3", "c", 2)))
	require.NoError(t, store.InsertRelation(ctx, relation("u2", "e4", "d", "knows", "e5", "e", 3)))

	relations, err := store.RelationsForOwner(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, relations, 2)

	limited, err := store.RelationsForOwner(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestGraphClient_RequiresDBPath(t *testing.T) {
	_, err := graphsqlite.NewClient(&graphsqlite.Config{})
	assert.Error(t, err)
}
