// Package settings is a key-path settings store over a single JSON document,
// persisted to disk. Paths use gjson syntax ("site.title", "plugins.x.y").
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrKeyNotFound is returned when no value exists at a path.
var ErrKeyNotFound = errors.New("setting not found")

// Store holds the settings document. Safe for concurrent use; writes are
// persisted atomically.
type Store struct {
	mu   sync.RWMutex
	path string
	doc  []byte
}

// Open loads the settings document at path, creating an empty one if the
// file does not exist.
func Open(path string) (*Store, error) {
	doc, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		doc = []byte("{}")
	case err != nil:
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	if !gjson.ValidBytes(doc) {
		return nil, fmt.Errorf("settings document %s is not valid JSON", path)
	}
	return &Store{path: path, doc: doc}, nil
}

// Get returns the value at a path.
func (s *Store) Get(path string) (gjson.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := gjson.GetBytes(s.doc, path)
	if !result.Exists() {
		return gjson.Result{}, fmt.Errorf("%q: %w", path, ErrKeyNotFound)
	}
	return result, nil
}

// GetString returns the string value at a path, or fallback if absent.
func (s *Store) GetString(path, fallback string) string {
	result, err := s.Get(path)
	if err != nil {
		return fallback
	}
	return result.String()
}

// Set writes a value at a path and persists the document.
func (s *Store) Set(path string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := sjson.SetBytes(s.doc, path, value)
	if err != nil {
		return fmt.Errorf("setting %q: %w", path, err)
	}
	if err := s.persist(doc); err != nil {
		return err
	}
	s.doc = doc
	return nil
}

// Delete removes the value at a path. Deleting an absent path is not an
// error.
func (s *Store) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := sjson.DeleteBytes(s.doc, path)
	if err != nil {
		return fmt.Errorf("deleting %q: %w", path, err)
	}
	if err := s.persist(doc); err != nil {
		return err
	}
	s.doc = doc
	return nil
}

// Document returns a copy of the raw JSON document.
func (s *Store) Document() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := make([]byte, len(s.doc))
	copy(doc, s.doc)
	return doc
}

// persist writes the document atomically. Must be called with mu held.
func (s *Store) persist(doc []byte) error {
	if s.path == "" {
		return nil // in-memory store
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings.*.tmp")
	if err != nil {
		return fmt.Errorf("persisting settings: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("persisting settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("persisting settings: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("persisting settings: %w", err)
	}
	return nil
}

// NewMemory creates a Store that never touches disk.
func NewMemory() *Store {
	return &Store{doc: []byte("{}")}
}

// Escape makes a single path segment literal by escaping gjson/sjson
// metacharacters. Needed for segments containing dots, such as
// reverse-domain plugin ids.
func Escape(segment string) string {
	var b strings.Builder
	for _, r := range segment {
		switch r {
		case '.', '*', '?', '\\', '|', '#', '@':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
