package services

import (
	"context"
	"strings"

	"github.com/qapilot/backend/internal/logger"
)

// Classification methods, by tier.
const (
	MethodAPI      = "api"
	MethodLocal    = "local"
	MethodFallback = "fallback"
)

const fallbackLabel = "manual-review-needed"

// candidateLabels is the fixed label set handed to both inference tiers.
var candidateLabels = []string{
	"functional requirement",
	"non-functional requirement",
	"use case",
	"constraint",
}

// Category is one requirement classification with a confidence score in [0,1].
type Category struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// AnalysisResult is the combined output of classification and entity
// extraction for one document. Category order is the classifier's output
// order and is meaningful downstream: synthesized test cases follow it.
type AnalysisResult struct {
	Categories []Category `json:"categories"`
	Entities   []Entity   `json:"entities"`
	Method     string     `json:"method"`
}

// Classifier is one tier of the classification chain.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, text string) ([]Category, error)
}

// RequirementAnalyzer walks an ordered list of classifier tiers until one
// succeeds. Tiers run strictly sequentially, each with its own timeout; a
// later tier only starts after the previous one has definitively failed.
type RequirementAnalyzer struct {
	tiers    []Classifier
	entities *EntityExtractor
}

func NewRequirementAnalyzer(tiers ...Classifier) *RequirementAnalyzer {
	return &RequirementAnalyzer{
		tiers:    tiers,
		entities: NewEntityExtractor(),
	}
}

// Analyze never fails: the heuristic tier cannot error, and even a
// misconfigured chain degrades to the synthetic fallback result. Entities are
// extracted independently of classification; the fallback result carries an
// empty entity set.
func (ra *RequirementAnalyzer) Analyze(ctx context.Context, text string) *AnalysisResult {
	for _, tier := range ra.tiers {
		categories, err := tier.Classify(ctx, text)
		if err != nil {
			logger.WithClassifier(tier.Name()).Warnf("classifier tier failed, escalating: %v", err)
			continue
		}

		result := &AnalysisResult{
			Categories: categories,
			Entities:   []Entity{},
			Method:     tier.Name(),
		}
		if tier.Name() != MethodFallback {
			result.Entities = ra.entities.Extract(text)
		}
		return result
	}

	// Only reachable when the chain was built without the heuristic tier.
	return fallbackResult()
}

func fallbackResult() *AnalysisResult {
	return &AnalysisResult{
		Categories: []Category{{Label: fallbackLabel, Score: 1.0}},
		Entities:   []Entity{},
		Method:     MethodFallback,
	}
}

// HeuristicClassifier is the terminal tier: it always succeeds with a single
// synthetic category so the chain is guaranteed to terminate.
type HeuristicClassifier struct{}

func NewHeuristicClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{}
}

func (hc *HeuristicClassifier) Name() string {
	return MethodFallback
}

func (hc *HeuristicClassifier) Classify(ctx context.Context, text string) ([]Category, error) {
	return []Category{{Label: fallbackLabel, Score: 1.0}}, nil
}

const (
	maxSanitizedLength = 2000
	minSanitizedLength = 10
)

// sanitizeText strips non-printable characters, collapses whitespace and
// truncates to the bounded inference input length.
func sanitizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lastSpace := true
	for _, r := range text {
		if r < 0x20 || r > 0x7e {
			r = ' '
		}
		if r == ' ' {
			if lastSpace {
				continue
			}
			lastSpace = true
		} else {
			lastSpace = false
		}
		b.WriteRune(r)
	}

	clean := strings.TrimSpace(b.String())
	if len(clean) > maxSanitizedLength {
		clean = clean[:maxSanitizedLength]
	}
	return clean
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
