package registry

import "sort"

// HookKind distinguishes the two hook calling conventions.
type HookKind int

const (
	// KindAction hooks are fire-and-forget notifications. Handlers receive
	// a data snapshot and return nothing.
	KindAction HookKind = iota

	// KindFilter hooks form a synchronous transformation chain. Each
	// handler receives the prior handler's output and returns a value.
	KindFilter
)

// String returns a string representation of the hook kind.
func (k HookKind) String() string {
	switch k {
	case KindAction:
		return "action"
	case KindFilter:
		return "filter"
	default:
		return "unknown"
	}
}

// Sensitivity classifies the data a hook carries.
type Sensitivity int

const (
	// SensitivityNone marks hooks that carry no sensitive payload.
	SensitivityNone Sensitivity = iota

	// SensitivityContent marks hooks that carry post content.
	SensitivityContent

	// SensitivityIdentity marks hooks that carry user data.
	SensitivityIdentity
)

// String returns a string representation of the sensitivity level.
func (s Sensitivity) String() string {
	switch s {
	case SensitivityNone:
		return "none"
	case SensitivityContent:
		return "content"
	case SensitivityIdentity:
		return "identity"
	default:
		return "unknown"
	}
}

// HookDef describes one recognized hook: its calling convention, the
// permission a plugin must hold to receive it, and what it carries.
type HookDef struct {
	// Name is the hook identifier plugins declare in their manifest.
	Name string

	// Kind selects the Action or Filter calling convention.
	Kind HookKind

	// RequiredPermission must be granted for a plugin to receive this
	// hook. Empty means the hook carries nothing sensitive and any
	// enabled plugin that declared it is eligible.
	RequiredPermission PermissionKey

	// Sensitivity classifies the payload.
	Sensitivity Sensitivity

	// Description explains when the hook fires.
	Description string
}

// Hook names recognized by the host.
const (
	HookActionPostPublished  = "action_post_published"
	HookFilterPostPublished  = "filter_post_published"
	HookActionUserCreated    = "action_user_created"
	HookActionUserLogin      = "action_user_login"
	HookFilterAuthenticate   = "filter_authenticate"
	HookActionSystemStartup  = "action_system_startup"
	HookActionSystemShutdown = "action_system_shutdown"
)

// hookRegistry defines all valid hooks and their permission requirements.
// Hooks carrying post content require post permissions; hooks carrying user
// data require user permissions; pure notification hooks require nothing.
var hookRegistry = map[string]HookDef{
	HookActionPostPublished: {
		Name:               HookActionPostPublished,
		Kind:               KindAction,
		RequiredPermission: PermPostRead,
		Sensitivity:        SensitivityContent,
		Description:        "Fires after a post is published (receives the full post)",
	},
	HookFilterPostPublished: {
		Name:               HookFilterPostPublished,
		Kind:               KindFilter,
		RequiredPermission: PermPostWrite,
		Sensitivity:        SensitivityContent,
		Description:        "Transforms a post as it is published",
	},
	HookActionUserCreated: {
		Name:               HookActionUserCreated,
		Kind:               KindAction,
		RequiredPermission: PermUserRead,
		Sensitivity:        SensitivityIdentity,
		Description:        "Fires when a new user is created",
	},
	HookActionUserLogin: {
		Name:               HookActionUserLogin,
		Kind:               KindAction,
		RequiredPermission: PermUserRead,
		Sensitivity:        SensitivityIdentity,
		Description:        "Fires when a user logs in",
	},
	HookFilterAuthenticate: {
		Name:               HookFilterAuthenticate,
		Kind:               KindFilter,
		RequiredPermission: PermUserWrite,
		Sensitivity:        SensitivityIdentity,
		Description:        "Transforms the authentication outcome",
	},
	HookActionSystemStartup: {
		Name:        HookActionSystemStartup,
		Kind:        KindAction,
		Sensitivity: SensitivityNone,
		Description: "Fires when the host starts up",
	},
	HookActionSystemShutdown: {
		Name:        HookActionSystemShutdown,
		Kind:        KindAction,
		Sensitivity: SensitivityNone,
		Description: "Fires when the host shuts down",
	},
}

// GetHookDef returns the definition for a hook name.
func GetHookDef(name string) (HookDef, bool) {
	def, ok := hookRegistry[name]
	return def, ok
}

// IsValidHook returns true if the hook is known to the host.
func IsValidHook(name string) bool {
	_, ok := hookRegistry[name]
	return ok
}

// HookPermission returns the permission required to receive the hook.
// The second return is false if the hook requires none.
func HookPermission(name string) (PermissionKey, bool) {
	def, ok := hookRegistry[name]
	if !ok || def.RequiredPermission == "" {
		return "", false
	}
	return def.RequiredPermission, true
}

// AllHooks returns all known hook definitions sorted by name.
func AllHooks() []HookDef {
	defs := make([]HookDef, 0, len(hookRegistry))
	for _, def := range hookRegistry {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}
