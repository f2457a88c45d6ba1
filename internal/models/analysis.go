// Package models contains domain types for the financial document analysis wizard.
package models

import "fmt"

// AnalysisKind identifies one of the analyses a user can request.
type AnalysisKind string

const (
	KindNER       AnalysisKind = "ner"
	KindSentiment AnalysisKind = "sentiment"
	KindClauses   AnalysisKind = "clauses"
)

// AllKinds lists every analysis kind in priority order.
var AllKinds = []AnalysisKind{KindNER, KindSentiment, KindClauses}

// ParseAnalysisKind converts an identifier into an AnalysisKind.
func ParseAnalysisKind(s string) (AnalysisKind, error) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown analysis kind: %q", s)
}

// FeatureSelection records which analyses are enabled.
// The all-false state is valid to hold; callers check Any before processing.
type FeatureSelection struct {
	NER       bool `json:"ner" msgpack:"ner"`
	Sentiment bool `json:"sentiment" msgpack:"sentiment"`
	Clauses   bool `json:"clauses" msgpack:"clauses"`
}

// DefaultFeatures returns the selection a fresh wizard starts with.
func DefaultFeatures() FeatureSelection {
	return FeatureSelection{NER: true, Sentiment: true, Clauses: false}
}

// Enabled reports whether the given kind is selected.
func (f FeatureSelection) Enabled(kind AnalysisKind) bool {
	switch kind {
	case KindNER:
		return f.NER
	case KindSentiment:
		return f.Sentiment
	case KindClauses:
		return f.Clauses
	}
	return false
}

// With returns a copy of the selection with kind set to enabled.
func (f FeatureSelection) With(kind AnalysisKind, enabled bool) FeatureSelection {
	switch kind {
	case KindNER:
		f.NER = enabled
	case KindSentiment:
		f.Sentiment = enabled
	case KindClauses:
		f.Clauses = enabled
	}
	return f
}

// Any reports whether at least one analysis is selected.
func (f FeatureSelection) Any() bool {
	return f.NER || f.Sentiment || f.Clauses
}

// Kinds returns the selected kinds in priority order.
func (f FeatureSelection) Kinds() []AnalysisKind {
	kinds := make([]AnalysisKind, 0, len(AllKinds))
	for _, k := range AllKinds {
		if f.Enabled(k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
