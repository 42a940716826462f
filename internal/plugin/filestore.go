package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore persists one JSON document per plugin under a data directory.
// Plugin ids are restricted to reverse-domain characters, so the id is safe
// to use as a file name directly.
type FileStore struct {
	dir string
}

// NewFileStore creates the data directory if needed and returns a store
// backed by it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating plugin data dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Get returns the record for a plugin id.
func (s *FileStore) Get(id string) (*Record, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPluginNotFound
		}
		return nil, fmt.Errorf("reading plugin record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding plugin record %s: %w", id, err)
	}
	return &rec, nil
}

// Put saves a record atomically (write to temp file, rename over).
func (s *FileStore) Put(rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding plugin record %s: %w", rec.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir, rec.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing plugin record: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing plugin record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing plugin record: %w", err)
	}

	if err := os.Rename(tmpName, s.path(rec.ID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing plugin record: %w", err)
	}
	return nil
}

// Delete removes a record.
func (s *FileStore) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting plugin record: %w", err)
	}
	return nil
}

// List returns all records ordered by install time then id.
func (s *FileStore) List() ([]*Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing plugin records: %w", err)
	}

	var recs []*Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		rec, err := s.Get(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	sortRecords(recs)
	return recs, nil
}

// path returns the record file for a plugin id.
func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}
