// Package simple provides a local, deterministic embedder that needs no
// network access. Tokens are hashed into a fixed number of buckets, so texts
// that share words produce similar vectors. Useful for tests and offline
// runs; not a substitute for a real embedding model.
package simple

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Client is a hashed bag-of-words embedder.
type Client struct {
	dimensions int
}

// New creates a new simple embedder. A dimensions value of 0 selects the
// default of 384.
func New(dimensions int) *Client {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &Client{dimensions: dimensions}
}

// Embed converts text into a normalized token-frequency vector. The same
// text always yields the same vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	embedding := make([]float64, c.dimensions)

	for _, token := range tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		hash := h.Sum64()

		bucket := int(hash % uint64(c.dimensions))
		// The high bits decide the sign so colliding tokens do not all
		// push the bucket the same way.
		sign := 1.0
		if hash>>63 == 1 {
			sign = -1.0
		}
		embedding[bucket] += sign
	}

	return normalize(embedding), nil
}

// EmbedBatch embeds each text independently.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	embeddings := make([][]float64, len(texts))
	for i, text := range texts {
		emb, err := c.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding size.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close releases resources. Nothing to release here.
func (c *Client) Close() error {
	return nil
}

// tokenize lowercases the text and splits on anything that is not a letter
// or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// normalize converts the vector to unit length.
func normalize(vec []float64) []float64 {
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}

	norm = math.Sqrt(norm)
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
