package plugin

import (
	"fmt"
	"regexp"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/goldpress/goldpress/internal/plugin/registry"
)

// Manifest describes a plugin's identity, requested permissions, and the
// hooks it wants to receive. It is the unit the install-time gatekeeper
// validates and the inflation detector diffs.
type Manifest struct {
	// Package identifies the plugin.
	Package PackageInfo `toml:"package" json:"package"`

	// Permissions are required: auto-granted at install and non-revocable
	// while the plugin is active.
	Permissions []registry.PermissionKey `toml:"permissions" json:"permissions"`

	// OptionalPermissions map keys an administrator may grant or revoke to
	// a description of why the plugin wants them.
	OptionalPermissions map[registry.PermissionKey]string `toml:"optional_permissions" json:"optional_permissions,omitempty"`

	// Hooks the plugin wants delivered.
	Hooks []string `toml:"hooks" json:"hooks"`
}

// PackageInfo holds plugin identity fields.
type PackageInfo struct {
	// ID is a unique reverse-domain identifier (e.g. "com.example.summary").
	ID string `toml:"id" json:"id"`

	// Name is a human-readable plugin name.
	Name string `toml:"name" json:"name"`

	// Version is semver (e.g. "1.2.0").
	Version string `toml:"version" json:"version"`

	// Description is a short description.
	Description string `toml:"description,omitempty" json:"description,omitempty"`

	// Author is an author name or org.
	Author string `toml:"author,omitempty" json:"author,omitempty"`
}

// idPattern validates reverse-domain plugin ids: at least two dot-separated
// lowercase segments.
var idPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*(\.[a-z][a-z0-9-]*)+$`)

// semverPattern validates version strings (simplified semver).
var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

// ParseManifest decodes and validates a manifest.toml document. It is a pure
// function: nothing is persisted on failure.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("malformed TOML: %v", err)}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks the manifest against the host registry. Returns
// *ValidationError for malformed fields and *SecurityViolation for hooks the
// plugin has no possible path to being granted.
func (m *Manifest) Validate() error {
	if m.Package.ID == "" {
		return &ValidationError{Field: "package.id", Message: "is required"}
	}
	if !idPattern.MatchString(m.Package.ID) {
		return &ValidationError{Field: "package.id", Message: fmt.Sprintf("%q is not a reverse-domain identifier", m.Package.ID)}
	}

	if m.Package.Name == "" {
		return &ValidationError{Field: "package.name", Message: "is required"}
	}

	if m.Package.Version == "" {
		return &ValidationError{Field: "package.version", Message: "is required"}
	}
	if !semverPattern.MatchString(m.Package.Version) {
		return &ValidationError{Field: "package.version", Message: fmt.Sprintf("%q is not valid semver", m.Package.Version)}
	}

	seen := make(map[registry.PermissionKey]bool, len(m.Permissions))
	for _, key := range m.Permissions {
		if !registry.IsValidPermission(key) {
			return &ValidationError{Field: "permissions", Message: fmt.Sprintf("unknown permission %q", key)}
		}
		if seen[key] {
			return &ValidationError{Field: "permissions", Message: fmt.Sprintf("duplicate permission %q", key)}
		}
		seen[key] = true
	}

	for key := range m.OptionalPermissions {
		if !registry.IsValidPermission(key) {
			return &ValidationError{Field: "optional_permissions", Message: fmt.Sprintf("unknown permission %q", key)}
		}
		if seen[key] {
			return &ValidationError{Field: "optional_permissions", Message: fmt.Sprintf("%q is already a required permission", key)}
		}
	}

	seenHooks := make(map[string]bool, len(m.Hooks))
	for _, hook := range m.Hooks {
		if seenHooks[hook] {
			return &ValidationError{Field: "hooks", Message: fmt.Sprintf("duplicate hook %q", hook)}
		}
		seenHooks[hook] = true

		def, ok := registry.GetHookDef(hook)
		if !ok {
			return &SecurityViolation{PluginID: m.Package.ID, Hook: hook}
		}

		// A plugin may never declare a hook it has no path to being
		// granted the permission for.
		if def.RequiredPermission != "" && !m.DeclaresPermission(def.RequiredPermission) {
			return &SecurityViolation{
				PluginID: m.Package.ID,
				Hook:     hook,
				Required: def.RequiredPermission,
			}
		}
	}

	return nil
}

// DeclaresPermission returns true if key appears in the manifest's required
// permissions or optional permission keys.
func (m *Manifest) DeclaresPermission(key registry.PermissionKey) bool {
	for _, p := range m.Permissions {
		if p == key {
			return true
		}
	}
	_, ok := m.OptionalPermissions[key]
	return ok
}

// HasHook returns true if the plugin declared the hook.
func (m *Manifest) HasHook(name string) bool {
	for _, h := range m.Hooks {
		if h == name {
			return true
		}
	}
	return false
}

// RequiredSet returns the required permissions as a set.
func (m *Manifest) RequiredSet() map[registry.PermissionKey]bool {
	set := make(map[registry.PermissionKey]bool, len(m.Permissions))
	for _, key := range m.Permissions {
		set[key] = true
	}
	return set
}

// String returns a string representation of the manifest.
func (m *Manifest) String() string {
	return fmt.Sprintf("%s v%s", m.Package.ID, m.Package.Version)
}

// Clone creates a deep copy of the manifest.
func (m *Manifest) Clone() *Manifest {
	clone := *m

	if m.Permissions != nil {
		clone.Permissions = make([]registry.PermissionKey, len(m.Permissions))
		copy(clone.Permissions, m.Permissions)
	}

	if m.OptionalPermissions != nil {
		clone.OptionalPermissions = make(map[registry.PermissionKey]string, len(m.OptionalPermissions))
		for k, v := range m.OptionalPermissions {
			clone.OptionalPermissions[k] = v
		}
	}

	if m.Hooks != nil {
		clone.Hooks = make([]string, len(m.Hooks))
		copy(clone.Hooks, m.Hooks)
	}

	return &clone
}
