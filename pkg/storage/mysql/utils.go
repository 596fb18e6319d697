package mysql

import (
	"fmt"
	"math"
	"sort"

	"github.com/duomem/duomem-go/pkg/storage"
)

// buildWhereClause builds a WHERE clause for owner scoping.
func buildWhereClause(ownerID string) (string, []interface{}) {
	if ownerID == "" || ownerID == storage.OwnerAll {
		return "", nil
	}
	return "WHERE owner_id = ?", []interface{}{ownerID}
}

// matchesFilters checks metadata equality filters in memory.
func matchesFilters(metadata map[string]interface{}, filters map[string]interface{}) bool {
	for key, want := range filters {
		got, ok := metadata[key]
		if !ok || fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

// cosineSimilarity computes the cosine similarity of two vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
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
