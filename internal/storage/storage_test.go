package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestLocalBackendRoundTrip(t *testing.T) {
	backend, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend() error = %v", err)
	}
	ctx := context.Background()

	if err := backend.Write(ctx, "2026/08/cover.png", []byte("png-bytes")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := backend.Read(ctx, "2026/08/cover.png")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("Read() = %q, want png-bytes", data)
	}

	if _, err := backend.Read(ctx, "2026/08/missing.png"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read(missing) error = %v, want ErrNotFound", err)
	}

	if err := backend.Delete(ctx, "2026/08/cover.png"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := backend.Read(ctx, "2026/08/cover.png"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read(deleted) error = %v, want ErrNotFound", err)
	}
	if err := backend.Delete(ctx, "2026/08/cover.png"); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
}

func TestLocalBackendList(t *testing.T) {
	backend, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend() error = %v", err)
	}
	ctx := context.Background()

	for _, name := range []string{"a/one.txt", "a/two.txt", "b/three.txt"} {
		if err := backend.Write(ctx, name, []byte(name)); err != nil {
			t.Fatalf("Write(%s) error = %v", name, err)
		}
	}

	names, err := backend.List(ctx, "a/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"a/one.txt", "a/two.txt"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("List(a/) = %v, want %v", names, want)
	}

	all, err := backend.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List(\"\") = %v, want 3 names", all)
	}
}

func TestLocalBackendRejectsEscapingNames(t *testing.T) {
	backend, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend() error = %v", err)
	}
	ctx := context.Background()

	for _, name := range []string{"../outside.txt", "a/../../outside.txt", "", `a\b.txt`} {
		if err := backend.Write(ctx, name, []byte("x")); !errors.Is(err, ErrUnsafeName) {
			t.Errorf("Write(%q) error = %v, want ErrUnsafeName", name, err)
		}
		if _, err := backend.Read(ctx, name); !errors.Is(err, ErrUnsafeName) {
			t.Errorf("Read(%q) error = %v, want ErrUnsafeName", name, err)
		}
	}
}
