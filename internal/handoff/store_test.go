package handoff

import (
	"context"
	"errors"
	"testing"

	"github.com/fin-ner/wizard/internal/models"
	"github.com/fin-ner/wizard/internal/sessionstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore() (*Store, *sessionstore.Memory) {
	mem := sessionstore.NewMemory()
	return New(sessionstore.NewArea(mem, "tab-1"), nil), mem
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore()

	rec := models.HandoffRecord{
		SelectedAnalyses:  models.FeatureSelection{NER: true, Sentiment: false, Clauses: true},
		UploadedFileNames: []string{"a.pdf", "b.docx"},
	}
	require.NoError(t, s.Write(ctx, rec))

	got, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	again, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, got, again, "re-reads return the same record")
}

func TestStore_ReadBeforeWrite(t *testing.T) {
	s, _ := newStore()

	got, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.False(t, got.SelectedAnalyses.Any())
	assert.NotNil(t, got.UploadedFileNames)
	assert.Empty(t, got.UploadedFileNames)
}

func TestStore_WireLayout(t *testing.T) {
	ctx := context.Background()
	s, mem := newStore()

	require.NoError(t, s.Write(ctx, models.HandoffRecord{
		SelectedAnalyses:  models.FeatureSelection{Sentiment: true},
		UploadedFileNames: []string{"q3.pdf"},
	}))

	features, ok, _ := mem.Get(ctx, "tab-1", KeySelectedAnalyses)
	require.True(t, ok)
	assert.JSONEq(t, `{"ner":false,"sentiment":true,"clauses":false}`, features)

	files, ok, _ := mem.Get(ctx, "tab-1", KeyUploadedFiles)
	require.True(t, ok)
	assert.JSONEq(t, `["q3.pdf"]`, files)
}

func TestStore_OverwritesAndNilNames(t *testing.T) {
	ctx := context.Background()
	s, mem := newStore()

	require.NoError(t, s.Write(ctx, models.HandoffRecord{UploadedFileNames: []string{"old.pdf"}}))
	require.NoError(t, s.Write(ctx, models.HandoffRecord{SelectedAnalyses: models.FeatureSelection{NER: true}}))

	files, _, _ := mem.Get(ctx, "tab-1", KeyUploadedFiles)
	assert.Equal(t, "[]", files)

	got, err := s.Read(ctx)
	require.NoError(t, err)
	assert.True(t, got.SelectedAnalyses.NER)
	assert.Empty(t, got.UploadedFileNames)
}

func TestStore_CorruptEntriesReadAsDefaults(t *testing.T) {
	ctx := context.Background()
	s, mem := newStore()
	require.NoError(t, mem.SetMany(ctx, "tab-1", map[string]string{
		KeySelectedAnalyses: "{not json",
		KeyUploadedFiles:    `["kept.pdf"]`,
	}))

	got, err := s.Read(ctx)
	require.NoError(t, err)
	assert.False(t, got.SelectedAnalyses.Any())
	assert.Equal(t, []string{"kept.pdf"}, got.UploadedFileNames)
}

type failingArea struct{}

func (failingArea) GetItem(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk gone")
}

func (failingArea) SetItems(context.Context, map[string]string) error {
	return errors.New("disk gone")
}

func TestStore_PropagatesStorageErrors(t *testing.T) {
	s := New(failingArea{}, nil)

	assert.ErrorContains(t, s.Write(context.Background(), models.EmptyHandoff()), "disk gone")

	_, err := s.Read(context.Background())
	assert.ErrorContains(t, err, "disk gone")
}
