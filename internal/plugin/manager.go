package plugin

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/goldpress/goldpress/internal/plugin/registry"
)

// Manager owns plugin lifecycle state. All transitions on one plugin id are
// serialized: at most one in-flight transition per id, so a concurrent
// enable/disable can never race an update-triggered review.
type Manager struct {
	store Store
	log   zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	handlerMu sync.RWMutex
	handlers  []EventHandler
}

// EventHandler handles lifecycle events. Handlers must be non-blocking and
// must not perform state transitions on the Manager, which would deadlock on
// the plugin's transition lock. Read methods such as Get and List are safe.
// Panics in handlers are recovered.
type EventHandler func(event Event)

// Event represents one lifecycle change.
type Event struct {
	Type     EventType
	PluginID string

	// Record is a snapshot taken after the transition. Nil for
	// EventUninstalled.
	Record *Record
}

// EventType is the type of lifecycle event.
type EventType int

const (
	// EventInstalled is emitted when a plugin is installed.
	EventInstalled EventType = iota
	// EventEnabled is emitted when a plugin becomes Enabled.
	EventEnabled
	// EventDisabled is emitted when a plugin becomes Disabled.
	EventDisabled
	// EventUpdated is emitted when a plugin's manifest is replaced.
	EventUpdated
	// EventReviewed is emitted when a pending review is resolved.
	EventReviewed
	// EventGrantsChanged is emitted when optional grants change outside
	// an update.
	EventGrantsChanged
	// EventUninstalled is emitted when a plugin is purged.
	EventUninstalled
)

// String returns a string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventInstalled:
		return "installed"
	case EventEnabled:
		return "enabled"
	case EventDisabled:
		return "disabled"
	case EventUpdated:
		return "updated"
	case EventReviewed:
		return "reviewed"
	case EventGrantsChanged:
		return "grants_changed"
	case EventUninstalled:
		return "uninstalled"
	default:
		return "unknown"
	}
}

// NewManager creates a lifecycle manager over a record store.
func NewManager(store Store, log zerolog.Logger) *Manager {
	return &Manager{
		store: store,
		log:   log.With().Str("component", "plugin-manager").Logger(),
		locks: make(map[string]*sync.Mutex),
	}
}

// Install validates the manifest, creates the plugin record, and grants
// permissions per install policy: required permissions auto-true, optional
// permissions from initialGrants (default false). Initial grant keys the
// manifest does not declare as optional are dropped with a warning. The
// plugin starts Enabled or Disabled per the enable flag.
func (m *Manager) Install(manifest *Manifest, initialGrants map[registry.PermissionKey]bool, enable bool) (*Record, error) {
	if manifest == nil {
		return nil, ErrNilManifest
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	id := manifest.Package.ID
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if _, err := m.store.Get(id); err == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrPluginExists)
	}

	granted := make(map[registry.PermissionKey]bool, len(manifest.Permissions)+len(manifest.OptionalPermissions))
	for _, key := range manifest.Permissions {
		granted[key] = true
	}
	for key := range manifest.OptionalPermissions {
		granted[key] = initialGrants[key]
	}
	for key := range initialGrants {
		if _, ok := granted[key]; !ok {
			m.log.Warn().Str("plugin", id).Str("permission", string(key)).
				Msg("dropping initial grant for undeclared permission")
		}
	}

	status := StatusDisabled
	if enable {
		status = StatusEnabled
	}

	now := time.Now().UTC()
	rec := &Record{
		ID:          id,
		Manifest:    manifest.Clone(),
		Status:      status,
		Granted:     granted,
		InstalledAt: now,
		UpdatedAt:   now,
	}
	if err := m.store.Put(rec); err != nil {
		return nil, err
	}

	m.log.Info().Str("plugin", id).Str("version", manifest.Package.Version).
		Stringer("status", status).Msg("plugin installed")
	m.emitEvent(Event{Type: EventInstalled, PluginID: id, Record: rec.Clone()})

	return rec.Clone(), nil
}

// Enable transitions Disabled→Enabled. Enabling an already-Enabled plugin is
// a no-op. Fails with *InvalidTransition from PendingReview: the pending
// permissions must be reviewed first.
func (m *Manager) Enable(id string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	rec, err := m.store.Get(id)
	if err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}

	switch rec.Status {
	case StatusEnabled:
		return nil
	case StatusDisabled:
		// Legal transition.
	default:
		return &InvalidTransition{PluginID: id, From: rec.Status, Op: "enable"}
	}

	rec.Status = StatusEnabled
	rec.UpdatedAt = time.Now().UTC()
	if err := m.store.Put(rec); err != nil {
		return err
	}

	m.log.Info().Str("plugin", id).Msg("plugin enabled")
	m.emitEvent(Event{Type: EventEnabled, PluginID: id, Record: rec.Clone()})
	return nil
}

// Disable transitions to Disabled. Legal from any state; disabling an
// already-Disabled plugin is a no-op. Disabling out of PendingReview clears
// the stored previous manifest and leaves the un-reviewed permissions
// ungranted.
func (m *Manager) Disable(id string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	rec, err := m.store.Get(id)
	if err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}

	if rec.Status == StatusDisabled {
		return nil
	}

	rec.Status = StatusDisabled
	rec.Previous = nil
	rec.UpdatedAt = time.Now().UTC()
	if err := m.store.Put(rec); err != nil {
		return err
	}

	m.log.Info().Str("plugin", id).Msg("plugin disabled")
	m.emitEvent(Event{Type: EventDisabled, PluginID: id, Record: rec.Clone()})
	return nil
}

// Update validates and installs a new manifest version, running the
// inflation detector against the last approved manifest. An empty diff
// replaces the manifest in place; any added permission forces PendingReview
// with the last approved manifest stored for the reviewer's diff. Grants for
// keys outside the diff are preserved; grants for permissions the new
// manifest no longer declares are pruned.
func (m *Manager) Update(newManifest *Manifest) (*Record, error) {
	if newManifest == nil {
		return nil, ErrNilManifest
	}
	if err := newManifest.Validate(); err != nil {
		return nil, err
	}

	id := newManifest.Package.ID
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	rec, err := m.store.Get(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	if rec.ID != id {
		return nil, fmt.Errorf("%s: %w", id, ErrIDMismatch)
	}

	// Diff against the last approved manifest. While PendingReview the
	// current manifest is itself un-reviewed, so the baseline stays the
	// stored previous manifest.
	baseline := rec.Manifest
	if rec.Status == StatusPendingReview && rec.Previous != nil {
		baseline = rec.Previous
	}
	diff := DiffManifests(baseline, newManifest)

	granted := make(map[registry.PermissionKey]bool)
	added := make(map[registry.PermissionKey]bool, len(diff.Added))
	for _, key := range diff.Added {
		added[key] = true
	}
	for key := range declaredSet(newManifest) {
		if added[key] {
			continue // awaits review (or stays false if never reviewed)
		}
		granted[key] = rec.Granted[key]
	}

	prevStatus := rec.Status
	rec.Manifest = newManifest.Clone()
	rec.Granted = granted
	rec.UpdatedAt = time.Now().UTC()

	if diff.Inflated() {
		rec.Status = StatusPendingReview
		rec.Previous = baseline.Clone()
		m.log.Info().Str("plugin", id).Str("version", newManifest.Package.Version).
			Interface("added", diff.Added).Stringer("from", prevStatus).
			Msg("update inflates permissions, forcing review")
	} else {
		m.log.Info().Str("plugin", id).Str("version", newManifest.Package.Version).
			Msg("plugin updated")
	}

	if err := m.store.Put(rec); err != nil {
		return nil, err
	}

	m.emitEvent(Event{Type: EventUpdated, PluginID: id, Record: rec.Clone()})
	return rec.Clone(), nil
}

// Review resolves PendingReview→Enabled. Approved grants apply only to keys
// in the stored diff; diff keys absent from approved default to false, and
// the plugin runs without that grant. Approved keys outside the diff are
// ignored. The previous manifest is cleared.
func (m *Manager) Review(id string, approved map[registry.PermissionKey]bool) (*Record, error) {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	rec, err := m.store.Get(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	if rec.Status != StatusPendingReview {
		return nil, &InvalidTransition{PluginID: id, From: rec.Status, Op: "review"}
	}

	diff := DiffManifests(rec.Previous, rec.Manifest)
	inDiff := make(map[registry.PermissionKey]bool, len(diff.Added))
	for _, key := range diff.Added {
		inDiff[key] = true
		rec.Granted[key] = approved[key]
	}
	for key := range approved {
		if !inDiff[key] {
			m.log.Warn().Str("plugin", id).Str("permission", string(key)).
				Msg("ignoring reviewed grant for key outside the pending diff")
		}
	}

	rec.Status = StatusEnabled
	rec.Previous = nil
	rec.UpdatedAt = time.Now().UTC()
	if err := m.store.Put(rec); err != nil {
		return nil, err
	}

	m.log.Info().Str("plugin", id).Interface("reviewed", diff.Added).Msg("pending review resolved")
	m.emitEvent(Event{Type: EventReviewed, PluginID: id, Record: rec.Clone()})
	return rec.Clone(), nil
}

// SetGrant changes one optional permission grant outside an update. Required
// permissions cannot be revoked while the plugin is installed; keys the
// manifest does not declare are rejected. Revocation affects future host API
// calls only.
func (m *Manager) SetGrant(id string, key registry.PermissionKey, granted bool) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	rec, err := m.store.Get(id)
	if err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}

	if _, ok := rec.Manifest.OptionalPermissions[key]; !ok {
		if rec.Manifest.DeclaresPermission(key) {
			return &ValidationError{Field: "granted", Message: fmt.Sprintf("%q is a required permission and cannot be changed", key)}
		}
		return &ValidationError{Field: "granted", Message: fmt.Sprintf("plugin does not declare permission %q", key)}
	}

	if rec.Granted[key] == granted {
		return nil
	}

	rec.Granted[key] = granted
	rec.UpdatedAt = time.Now().UTC()
	if err := m.store.Put(rec); err != nil {
		return err
	}

	m.log.Info().Str("plugin", id).Str("permission", string(key)).Bool("granted", granted).
		Msg("optional grant changed")
	m.emitEvent(Event{Type: EventGrantsChanged, PluginID: id, Record: rec.Clone()})
	return nil
}

// Uninstall purges the plugin record and all its grants. Legal from any
// state; terminal.
func (m *Manager) Uninstall(id string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if _, err := m.store.Get(id); err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}
	if err := m.store.Delete(id); err != nil {
		return err
	}

	m.log.Info().Str("plugin", id).Msg("plugin uninstalled")
	m.emitEvent(Event{Type: EventUninstalled, PluginID: id})
	return nil
}

// Get returns a snapshot of a plugin record.
func (m *Manager) Get(id string) (*Record, error) {
	rec, err := m.store.Get(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	return rec, nil
}

// List returns snapshots of all plugin records in install order.
func (m *Manager) List() ([]*Record, error) {
	return m.store.List()
}

// Authorize is the single enforcement check for host API calls: the plugin
// must be Enabled and hold the permission. Returns *PluginNotActive or
// *PermissionDenied, both recoverable conditions the plugin must handle.
func (m *Manager) Authorize(id string, key registry.PermissionKey) error {
	rec, err := m.store.Get(id)
	if err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}
	if rec.Status != StatusEnabled {
		return &PluginNotActive{PluginID: id, Status: rec.Status}
	}
	if !rec.Granted[key] {
		return &PermissionDenied{PluginID: id, Permission: key}
	}
	return nil
}

// Subscribe adds a lifecycle event handler.
// Returns an unsubscribe function to remove the handler.
func (m *Manager) Subscribe(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	m.handlerMu.Lock()
	m.handlers = append(m.handlers, handler)
	index := len(m.handlers) - 1
	m.handlerMu.Unlock()

	return func() {
		m.handlerMu.Lock()
		defer m.handlerMu.Unlock()
		// Set to nil instead of removing to avoid index shifting issues
		if index < len(m.handlers) {
			m.handlers[index] = nil
		}
	}
}

// emitEvent sends an event to all handlers.
// Handlers run with the plugin's transition lock held; panics are recovered.
func (m *Manager) emitEvent(event Event) {
	m.handlerMu.RLock()
	handlers := make([]EventHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.handlerMu.RUnlock()

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		func() {
			defer func() {
				recover() // Ignore panics from handlers
			}()
			handler(event)
		}()
	}
}

// lockFor returns the transition lock for a plugin id.
func (m *Manager) lockFor(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	return lock
}
