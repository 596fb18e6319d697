package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/duomem/duomem-go/pkg/llm"
)

// LLMExtractor extracts entities and relations from text using an LLM.
//
// Example usage:
//
//	extractor := NewLLMExtractor(llmProvider, 0.5)
//	result, err := extractor.Extract(ctx, "Sarah works with Alex")
type LLMExtractor struct {
	// llm is the LLM provider for extraction.
	llm llm.Provider

	// customPrompt is an optional custom prompt. If empty, uses the
	// default prompt.
	customPrompt string

	// minConfidence drops relations below this confidence.
	minConfidence float64
}

// NewLLMExtractor creates a new LLM-backed extractor. Relations with a
// confidence below minConfidence are discarded.
func NewLLMExtractor(provider llm.Provider, minConfidence float64) *LLMExtractor {
	return &LLMExtractor{
		llm:           provider,
		minConfidence: minConfidence,
	}
}

// NewLLMExtractorWithPrompt creates a new extractor with a custom prompt.
func NewLLMExtractorWithPrompt(provider llm.Provider, minConfidence float64, customPrompt string) *LLMExtractor {
	return &LLMExtractor{
		llm:           provider,
		customPrompt:  customPrompt,
		minConfidence: minConfidence,
	}
}

// Extract proposes entities and relations for the given text.
//
// The extraction process:
//  1. Calls the LLM with the extraction prompt
//  2. Parses the JSON response into drafts
//  3. Normalizes entity types and drops malformed or low-confidence rows
func (e *LLMExtractor) Extract(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return &Result{}, nil
	}

	systemPrompt := e.customPrompt
	if systemPrompt == "" {
		systemPrompt = defaultPrompt
	}

	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf("Input:\n%s", text)},
	}

	response, err := e.llm.GenerateWithMessages(ctx, messages, llm.WithTemperature(0.0))
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	result, err := e.parseResponse(response)
	if err != nil {
		return nil, fmt.Errorf("extract: parse response: %w", err)
	}

	return result, nil
}

// parseResponse parses the LLM response into a validated Result.
func (e *LLMExtractor) parseResponse(response string) (*Result, error) {
	response = removeCodeBlocks(response)

	var raw struct {
		Entities  []EntityDraft   `json:"entities"`
		Relations []RelationDraft `json:"relations"`
	}
	if err := json.Unmarshal([]byte(response), &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}

	result := &Result{}

	// Dedupe entities by canonical name, keeping the first occurrence.
	seen := make(map[string]bool)
	for _, ent := range raw.Entities {
		canonical := Canonicalize(ent.Name)
		if canonical == "" || seen[canonical] {
			continue
		}
		seen[canonical] = true
		result.Entities = append(result.Entities, EntityDraft{
			Name: ent.Name,
			Type: NormalizeType(ent.Type),
		})
	}

	for _, rel := range raw.Relations {
		if rel.Label == "" {
			continue
		}
		// Endpoints must reference extracted entities.
		if !seen[Canonicalize(rel.Source)] || !seen[Canonicalize(rel.Target)] {
			continue
		}
		if rel.Confidence < e.minConfidence {
			continue
		}
		result.Relations = append(result.Relations, rel)
	}

	return result, nil
}

// removeCodeBlocks removes markdown code fences from a response.
func removeCodeBlocks(response string) string {
	response = strings.ReplaceAll(response, "```json", "")
	response = strings.ReplaceAll(response, "```", "")
	return strings.TrimSpace(response)
}
