package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureSelection(t *testing.T) {
	f := DefaultFeatures()
	assert.True(t, f.Enabled(KindNER))
	assert.True(t, f.Enabled(KindSentiment))
	assert.False(t, f.Enabled(KindClauses))
	assert.Equal(t, []AnalysisKind{KindNER, KindSentiment}, f.Kinds())

	none := FeatureSelection{}
	assert.False(t, none.Any())
	assert.Empty(t, none.Kinds())

	f = none.With(KindClauses, true)
	assert.True(t, f.Any())
	assert.Equal(t, []AnalysisKind{KindClauses}, f.Kinds())
	assert.False(t, none.Clauses, "With must not mutate the receiver")
}

func TestFeatureSelection_JSONShape(t *testing.T) {
	data, err := json.Marshal(FeatureSelection{NER: true, Clauses: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ner":true,"sentiment":false,"clauses":true}`, string(data))
}

func TestParseAnalysisKind(t *testing.T) {
	k, err := ParseAnalysisKind("sentiment")
	require.NoError(t, err)
	assert.Equal(t, KindSentiment, k)

	_, err = ParseAnalysisKind("clause")
	assert.Error(t, err)
}

func TestWizardStep_Text(t *testing.T) {
	data, err := json.Marshal(struct {
		Step WizardStep `json:"step"`
	}{StepFeatures})
	require.NoError(t, err)
	assert.JSONEq(t, `{"step":"features"}`, string(data))

	var s WizardStep
	require.NoError(t, s.UnmarshalText([]byte("Review")))
	assert.Equal(t, StepReview, s)
	assert.Error(t, s.UnmarshalText([]byte("done")))
	assert.True(t, StepUpload < StepFeatures && StepFeatures < StepReview)
}
