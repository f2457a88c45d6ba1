// Package handoff passes the wizard's final selections to the results view.
//
// The record is stored as two JSON-encoded entries in a session-scoped
// storage area: one for the feature selection, one for the file names.
package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/fin-ner/wizard/internal/models"
)

// Storage keys.
const (
	KeySelectedAnalyses = "selectedAnalyses"
	KeyUploadedFiles    = "uploadedFiles"
)

// Area is the session-scoped storage the record lives in.
type Area interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItems(ctx context.Context, items map[string]string) error
}

// Store reads and writes HandoffRecords.
type Store struct {
	area   Area
	logger *slog.Logger
}

// New creates a handoff store over area.
func New(area Area, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{area: area, logger: logger}
}

// Write stores rec, replacing any previous record. Both entries are
// written in a single atomic update.
func (s *Store) Write(ctx context.Context, rec models.HandoffRecord) error {
	names := rec.UploadedFileNames
	if names == nil {
		names = []string{}
	}

	features, err := json.Marshal(rec.SelectedAnalyses)
	if err != nil {
		return fmt.Errorf("encoding selected analyses: %w", err)
	}
	files, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("encoding uploaded files: %w", err)
	}

	if err := s.area.SetItems(ctx, map[string]string{
		KeySelectedAnalyses: string(features),
		KeyUploadedFiles:    string(files),
	}); err != nil {
		return fmt.Errorf("writing handoff: %w", err)
	}
	return nil
}

// Read returns the stored record. Entries that were never written, or
// that cannot be decoded, read as their defaults: no analyses selected
// and no files.
func (s *Store) Read(ctx context.Context) (models.HandoffRecord, error) {
	rec := models.EmptyHandoff()

	raw, ok, err := s.area.GetItem(ctx, KeySelectedAnalyses)
	if err != nil {
		return rec, fmt.Errorf("reading %s: %w", KeySelectedAnalyses, err)
	}
	if ok {
		var features models.FeatureSelection
		if err := json.Unmarshal([]byte(raw), &features); err != nil {
			s.logger.Warn("ignoring corrupt handoff entry", "key", KeySelectedAnalyses, "error", err)
		} else {
			rec.SelectedAnalyses = features
		}
	}

	raw, ok, err = s.area.GetItem(ctx, KeyUploadedFiles)
	if err != nil {
		return rec, fmt.Errorf("reading %s: %w", KeyUploadedFiles, err)
	}
	if ok {
		var names []string
		if err := json.Unmarshal([]byte(raw), &names); err != nil {
			s.logger.Warn("ignoring corrupt handoff entry", "key", KeyUploadedFiles, "error", err)
		} else if names != nil {
			rec.UploadedFileNames = names
		}
	}

	return rec, nil
}
