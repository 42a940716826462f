package plugin

import (
	"errors"
	"testing"
	"time"

	"github.com/goldpress/goldpress/internal/plugin/registry"
)

func testRecord(id string, installedAt time.Time) *Record {
	return &Record{
		ID: id,
		Manifest: &Manifest{
			Package:     PackageInfo{ID: id, Name: "Plugin", Version: "1.0.0"},
			Permissions: []registry.PermissionKey{registry.PermPostRead},
		},
		Status:      StatusDisabled,
		Granted:     map[registry.PermissionKey]bool{registry.PermPostRead: true},
		InstalledAt: installedAt,
		UpdatedAt:   installedAt,
	}
}

func runStoreTests(t *testing.T, store Store) {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := store.Get("com.example.missing"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrPluginNotFound", err)
	}

	// Insert out of install order; List must sort by install time.
	second := testRecord("com.example.beta", base.Add(time.Hour))
	first := testRecord("com.example.gamma", base)
	for _, rec := range []*Record{second, first} {
		if err := store.Put(rec); err != nil {
			t.Fatalf("Put(%s) error = %v", rec.ID, err)
		}
	}

	got, err := store.Get("com.example.beta")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusDisabled || !got.Granted[registry.PermPostRead] {
		t.Errorf("Get() = %+v, round-trip mismatch", got)
	}
	if got.Manifest == nil || got.Manifest.Package.Version != "1.0.0" {
		t.Errorf("Manifest did not round-trip: %+v", got.Manifest)
	}
	if !got.InstalledAt.Equal(second.InstalledAt) {
		t.Errorf("InstalledAt = %v, want %v", got.InstalledAt, second.InstalledAt)
	}

	recs, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "com.example.gamma" || recs[1].ID != "com.example.beta" {
		ids := make([]string, len(recs))
		for i, rec := range recs {
			ids[i] = rec.ID
		}
		t.Errorf("List() order = %v, want [com.example.gamma com.example.beta]", ids)
	}

	// Overwrite updates in place.
	second.Status = StatusEnabled
	if err := store.Put(second); err != nil {
		t.Fatalf("Put(update) error = %v", err)
	}
	got, err = store.Get("com.example.beta")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusEnabled {
		t.Errorf("Status after overwrite = %v, want Enabled", got.Status)
	}

	if err := store.Delete("com.example.beta"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get("com.example.beta"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("Get(deleted) error = %v, want ErrPluginNotFound", err)
	}
	// Deleting a missing id is not an error.
	if err := store.Delete("com.example.beta"); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	runStoreTests(t, store)
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	rec := testRecord("com.example.summary", time.Now().UTC())
	rec.Status = StatusPendingReview
	rec.Previous = rec.Manifest.Clone()
	if err := store.Put(rec); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	reopened, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore(reopen) error = %v", err)
	}
	got, err := reopened.Get("com.example.summary")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusPendingReview {
		t.Errorf("Status = %v, want PendingReview", got.Status)
	}
	if got.Previous == nil {
		t.Error("Previous manifest lost across reopen")
	}
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	store := NewMemoryStore()
	rec := testRecord("com.example.summary", time.Now().UTC())
	if err := store.Put(rec); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Get("com.example.summary")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.Granted[registry.PermUserWrite] = true
	got.Status = StatusEnabled

	again, err := store.Get("com.example.summary")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if again.Granted[registry.PermUserWrite] || again.Status != StatusDisabled {
		t.Error("mutation of a returned record leaked into the store")
	}
}
