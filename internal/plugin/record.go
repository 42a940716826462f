package plugin

import (
	"time"

	"github.com/goldpress/goldpress/internal/plugin/registry"
)

// Record is the host's persistent view of one installed plugin: its current
// manifest, lifecycle status, and per-permission grant state.
type Record struct {
	// ID is the plugin's reverse-domain identifier.
	ID string `json:"id"`

	// Manifest is the currently installed manifest.
	Manifest *Manifest `json:"manifest"`

	// Status is the lifecycle state.
	Status Status `json:"status"`

	// Granted maps each declared permission to its grant state. Required
	// permissions are always true while the plugin is active.
	Granted map[registry.PermissionKey]bool `json:"granted"`

	// Previous holds the pre-update manifest while an inflating update
	// awaits review, so the reviewer can see what changed. Nil otherwise.
	Previous *Manifest `json:"previous,omitempty"`

	// InstalledAt is when the plugin was first installed.
	InstalledAt time.Time `json:"installed_at"`

	// UpdatedAt is when the record last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// HasGrant returns true if the permission is currently granted.
func (r *Record) HasGrant(key registry.PermissionKey) bool {
	return r.Granted[key]
}

// GrantedKeys returns the currently granted permissions.
func (r *Record) GrantedKeys() []registry.PermissionKey {
	keys := make([]registry.PermissionKey, 0, len(r.Granted))
	for key, ok := range r.Granted {
		if ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// Clone creates a deep copy of the record.
func (r *Record) Clone() *Record {
	clone := *r

	if r.Manifest != nil {
		clone.Manifest = r.Manifest.Clone()
	}
	if r.Previous != nil {
		clone.Previous = r.Previous.Clone()
	}
	if r.Granted != nil {
		clone.Granted = make(map[registry.PermissionKey]bool, len(r.Granted))
		for k, v := range r.Granted {
			clone.Granted[k] = v
		}
	}

	return &clone
}
