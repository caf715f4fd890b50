package search

import (
	"math"
	"regexp"

	"github.com/openharbor-io/beacon/internal/registry/model"
)

// Lexical boost weights. A hit on the routing path outranks one on the name,
// which outranks description and tag hits; every matching tool adds a fixed
// bonus on top.
const (
	boostPath        = 5.0
	boostName        = 3.0
	boostDescription = 2.0
	boostTag         = 1.5
	boostPerTool     = 1.0
)

// CosineSimilarity computes the cosine similarity of two vectors, in
// [-1, 1]. Zero-norm inputs yield 0.
func CosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// TextBoost scores how strongly a document matches the query tokens
// lexically. pattern may be nil (no usable tokens), which scores 0.
func TextBoost(doc *model.SearchDocument, pattern *regexp.Regexp) float64 {
	if pattern == nil {
		return 0
	}
	var boost float64
	if pattern.MatchString(doc.Path) {
		boost += boostPath
	}
	if pattern.MatchString(doc.Metadata.Name) {
		boost += boostName
	}
	if doc.Metadata.Description != "" && pattern.MatchString(doc.Metadata.Description) {
		boost += boostDescription
	}
	for _, tag := range doc.Metadata.Tags {
		if pattern.MatchString(tag) {
			boost += boostTag
			break
		}
	}
	for _, tool := range doc.Metadata.Tools {
		if pattern.MatchString(tool.Name) || (tool.Description != "" && pattern.MatchString(tool.Description)) {
			boost += boostPerTool
		}
	}
	return boost
}

// HybridScore folds the raw vector similarity and the lexical boost into the
// final relevance score: similarity normalized from [-1,1] to [0,1], plus a
// tenth of the boost, clamped to [0,1].
func HybridScore(vectorScore, textBoost float64) float64 {
	score := (vectorScore+1)/2 + 0.1*textBoost
	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}

// MatchingTools returns the subset of doc's tools whose name or description
// matches the query pattern.
func MatchingTools(doc *model.SearchDocument, pattern *regexp.Regexp) []model.ToolDef {
	if pattern == nil {
		return nil
	}
	var out []model.ToolDef
	for _, tool := range doc.Metadata.Tools {
		if pattern.MatchString(tool.Name) || (tool.Description != "" && pattern.MatchString(tool.Description)) {
			out = append(out, tool)
		}
	}
	return out
}
