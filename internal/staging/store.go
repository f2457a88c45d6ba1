// Package staging holds the files a user has picked before processing.
package staging

import (
	"github.com/fin-ner/wizard/internal/models"
	"github.com/google/uuid"
)

// Candidate describes a file the client wants to stage.
type Candidate struct {
	// ID, when set, becomes the entry id. Otherwise a new one is generated.
	ID        string
	Name      string
	SizeBytes int64
}

// Store is an ordered collection of staged files, unique by name.
// It is not safe for concurrent use; the wizard serializes access.
type Store struct {
	entries []models.FileEntry
	newID   func() string
}

// New creates an empty staging store.
func New() *Store {
	return &Store{newID: func() string { return uuid.New().String() }}
}

// Add stages every candidate whose name is not already present and
// returns the entries that were created. Colliding names are dropped.
func (s *Store) Add(candidates ...Candidate) []models.FileEntry {
	var added []models.FileEntry
	for _, c := range candidates {
		if c.Name == "" || s.hasName(c.Name) {
			continue
		}
		size := c.SizeBytes
		if size < 0 {
			size = 0
		}
		id := c.ID
		if id == "" {
			id = s.newID()
		}
		entry := models.FileEntry{
			ID:        id,
			Name:      c.Name,
			SizeBytes: size,
		}
		s.entries = append(s.entries, entry)
		added = append(added, entry)
	}
	return added
}

// Remove deletes the entry with the given id. Unknown ids are ignored.
func (s *Store) Remove(id string) bool {
	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the entry with the given id.
func (s *Store) Get(id string) (models.FileEntry, bool) {
	for _, e := range s.entries {
		if e.ID == id {
			return e, true
		}
	}
	return models.FileEntry{}, false
}

// Entries returns a copy of the staged entries in insertion order.
func (s *Store) Entries() []models.FileEntry {
	out := make([]models.FileEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Names returns the staged file names in insertion order.
func (s *Store) Names() []string {
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.Name
	}
	return names
}

// Len returns the number of staged files.
func (s *Store) Len() int {
	return len(s.entries)
}

// Clear removes every staged file and returns what was removed.
func (s *Store) Clear() []models.FileEntry {
	removed := s.entries
	s.entries = nil
	return removed
}

func (s *Store) hasName(name string) bool {
	for _, e := range s.entries {
		if e.Name == name {
			return true
		}
	}
	return false
}
