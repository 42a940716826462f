// Package registry defines the host-side truth for plugin permissions and
// hooks. The tables are compiled in and immutable: a plugin can never mint a
// permission or hook the host did not ship with.
package registry

import (
	"sort"
	"strings"
)

// PermissionKey identifies a capability a plugin can request, in
// namespace:action form (e.g. "post:read").
type PermissionKey string

// Permissions plugins can request.
const (
	PermPostRead      PermissionKey = "post:read"
	PermPostWrite     PermissionKey = "post:write"
	PermUserRead      PermissionKey = "user:read"
	PermUserWrite     PermissionKey = "user:write"
	PermAIChat        PermissionKey = "ai:chat"
	PermSettingsRead  PermissionKey = "settings:read"
	PermSettingsWrite PermissionKey = "settings:write"
	PermUploadRead    PermissionKey = "upload:read"
	PermUploadWrite   PermissionKey = "upload:write"
)

// PermissionInfo provides metadata about a permission.
type PermissionInfo struct {
	// Key is the permission identifier.
	Key PermissionKey

	// DisplayName is a human-readable name.
	DisplayName string

	// Description explains what the permission allows.
	Description string

	// Risk indicates how dangerous granting this permission is.
	Risk RiskLevel
}

// RiskLevel indicates the security risk of a permission.
type RiskLevel int

const (
	// RiskLow indicates minimal security risk.
	RiskLow RiskLevel = iota

	// RiskMedium indicates moderate security risk.
	RiskMedium

	// RiskHigh indicates significant security risk.
	RiskHigh
)

// String returns a string representation of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// permissionRegistry holds metadata about all known permissions.
var permissionRegistry = map[PermissionKey]PermissionInfo{
	PermPostRead: {
		Key:         PermPostRead,
		DisplayName: "Read Posts",
		Description: "Read published posts and their categories",
		Risk:        RiskMedium,
	},
	PermPostWrite: {
		Key:         PermPostWrite,
		DisplayName: "Write Posts",
		Description: "Create and modify posts",
		Risk:        RiskHigh,
	},
	PermUserRead: {
		Key:         PermUserRead,
		DisplayName: "Read Users",
		Description: "Read user profile data",
		Risk:        RiskHigh,
	},
	PermUserWrite: {
		Key:         PermUserWrite,
		DisplayName: "Write Users",
		Description: "Modify user data and authentication flow",
		Risk:        RiskHigh,
	},
	PermAIChat: {
		Key:         PermAIChat,
		DisplayName: "AI Chat",
		Description: "Send chat completion requests to the AI provider",
		Risk:        RiskMedium,
	},
	PermSettingsRead: {
		Key:         PermSettingsRead,
		DisplayName: "Read Settings",
		Description: "Read site settings",
		Risk:        RiskMedium,
	},
	PermSettingsWrite: {
		Key:         PermSettingsWrite,
		DisplayName: "Write Settings",
		Description: "Modify site settings",
		Risk:        RiskHigh,
	},
	PermUploadRead: {
		Key:         PermUploadRead,
		DisplayName: "Read Uploads",
		Description: "Read uploaded files",
		Risk:        RiskMedium,
	},
	PermUploadWrite: {
		Key:         PermUploadWrite,
		DisplayName: "Write Uploads",
		Description: "Store uploaded files",
		Risk:        RiskHigh,
	},
}

// Valid returns true if the key is syntactically a namespace:action pair.
// Registry membership is checked separately via IsValidPermission.
func (k PermissionKey) Valid() bool {
	ns, action, ok := strings.Cut(string(k), ":")
	return ok && ns != "" && action != ""
}

// GetPermissionInfo returns information about a permission.
func GetPermissionInfo(key PermissionKey) (PermissionInfo, bool) {
	info, ok := permissionRegistry[key]
	return info, ok
}

// IsValidPermission returns true if the permission is known to the host.
func IsValidPermission(key PermissionKey) bool {
	_, ok := permissionRegistry[key]
	return ok
}

// AllPermissions returns all known permissions sorted by key.
func AllPermissions() []PermissionKey {
	keys := make([]PermissionKey, 0, len(permissionRegistry))
	for key := range permissionRegistry {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
