// Package storage provides the upload backend plugins reach through the
// permission-gated facade.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Storage errors.
var (
	// ErrNotFound is returned when no upload exists at a name.
	ErrNotFound = errors.New("upload not found")

	// ErrUnsafeName is returned when a name escapes the upload root.
	ErrUnsafeName = errors.New("unsafe upload name")
)

// Backend stores uploaded files under host control.
type Backend interface {
	// Read returns the contents of an upload, or ErrNotFound.
	Read(ctx context.Context, name string) ([]byte, error)

	// Write stores an upload, creating parent directories as needed.
	Write(ctx context.Context, name string, data []byte) error

	// List returns upload names under a prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes an upload. Deleting a missing name is not an error.
	Delete(ctx context.Context, name string) error
}

// LocalBackend stores uploads under a root directory. Every name is resolved
// and checked to stay inside the root.
type LocalBackend struct {
	root string
}

// NewLocalBackend creates the upload root if needed.
func NewLocalBackend(root string) (*LocalBackend, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving upload root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload root: %w", err)
	}
	return &LocalBackend{root: abs}, nil
}

// Read returns the contents of an upload.
func (b *LocalBackend) Read(ctx context.Context, name string) ([]byte, error) {
	path, err := b.resolve(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("reading upload %q: %w", name, err)
	}
	return data, nil
}

// Write stores an upload.
func (b *LocalBackend) Write(ctx context.Context, name string, data []byte) error {
	path, err := b.resolve(name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("writing upload %q: %w", name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing upload %q: %w", name, err)
	}
	return nil
}

// List returns upload names under a prefix, sorted.
func (b *LocalBackend) List(ctx context.Context, prefix string) ([]string, error) {
	if prefix != "" {
		if _, err := b.resolve(prefix); err != nil {
			return nil, err
		}
	}

	var names []string
	err := filepath.WalkDir(b.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing uploads: %w", err)
	}

	sort.Strings(names)
	return names, nil
}

// Delete removes an upload.
func (b *LocalBackend) Delete(ctx context.Context, name string) error {
	path, err := b.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting upload %q: %w", name, err)
	}
	return nil
}

// resolve maps an upload name to an absolute path inside the root, rejecting
// names that escape it.
func (b *LocalBackend) resolve(name string) (string, error) {
	if name == "" || strings.Contains(name, "\\") {
		return "", fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}

	path := filepath.Join(b.root, filepath.FromSlash(name))
	rel, err := filepath.Rel(b.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}
	return path, nil
}
