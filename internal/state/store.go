// Package state persists deployment records to a local JSON document
// and detects drift between the persisted snapshot and a supplied
// desired state.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/lakeforge-io/lakeforge/internal/lake"
)

// document is the on-disk layout: the current snapshot plus the full
// deployment history, most recent first.
type document struct {
	Current *lake.DesiredState      `json:"current,omitempty"`
	History []lake.DeploymentRecord `json:"history"`
}

// Store is a file-backed deployment store. Writes are atomic: the
// document is written to a temp file in the same directory and renamed
// over the target.
type Store struct {
	path string
}

// NewStore returns a store over the given state file path. The file
// does not have to exist yet.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Persist appends the record to the history. The current snapshot is
// replaced only by a successful non-dry run.
func (s *Store) Persist(record lake.DeploymentRecord) error {
	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.History = append([]lake.DeploymentRecord{record}, doc.History...)
	if record.Success && !record.DryRun {
		desired := record.Desired
		doc.Current = &desired
	}
	return s.save(doc)
}

// Current returns the snapshot of the last successful deployment, or
// nil when none has completed yet.
func (s *Store) Current() (*lake.DesiredState, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Current, nil
}

// History returns all persisted records, most recent first.
func (s *Store) History() ([]lake.DeploymentRecord, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.History, nil
}

// LastSuccessful returns the most recent successful non-dry-run record,
// or nil when none exists.
func (s *Store) LastSuccessful() (*lake.DeploymentRecord, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range doc.History {
		rec := doc.History[i]
		if rec.Success && !rec.DryRun {
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *Store) load() (*document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing state file %s: %w", s.path, err)
	}
	return &doc, nil
}

func (s *Store) save(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
