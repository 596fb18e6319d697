package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/duomem/duomem-go/pkg/storage"
)

// vectorToString converts a float64 slice to pgvector literal format.
func vectorToString(embedding []float64) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	}
	sb.WriteByte(']')
	return sb.String()
}

// parseVectorString parses a pgvector literal back into a float64 slice.
func parseVectorString(s string) ([]float64, error) {
	s = strings.Trim(s, "[]")
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	embedding := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		embedding[i] = v
	}

	return embedding, nil
}

// buildWhereClauseWithOffset builds a WHERE clause for owner scoping with
// parameter numbering starting at startIdx.
func buildWhereClauseWithOffset(ownerID string, startIdx int) (string, []interface{}) {
	if ownerID == "" || ownerID == storage.OwnerAll {
		return "", nil
	}
	return fmt.Sprintf("WHERE owner_id = $%d", startIdx), []interface{}{ownerID}
}
