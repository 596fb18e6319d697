package sqlite

import (
	"math"
	"sort"

	"github.com/duomem/duomem-go/pkg/storage"
)

// buildWhereClause builds an owner-scoped WHERE clause.
//
// The OwnerAll sentinel crosses owner boundaries and produces no condition.
func buildWhereClause(ownerID string) (string, []interface{}) {
	if ownerID == "" || ownerID == storage.OwnerAll {
		return "", nil
	}
	return "WHERE owner_id = ?", []interface{}{ownerID}
}

// matchesFilters checks metadata equality filters in memory.
//
// SQLite stores metadata as a JSON string, so filters are applied after
// scanning rather than pushed into SQL.
func matchesFilters(metadata map[string]interface{}, filters map[string]interface{}) bool {
	for k, want := range filters {
		got, ok := metadata[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sortByScore sorts facts by score (descending) and limits the result count.
func sortByScore(facts []*storage.Fact, limit int) []*storage.Fact {
	sort.SliceStable(facts, func(i, j int) bool {
		return facts[i].Score > facts[j].Score
	})

	if limit > 0 && len(facts) > limit {
		return facts[:limit]
	}
	return facts
}
