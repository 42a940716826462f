package plugin

import (
	"errors"
	"fmt"

	"github.com/goldpress/goldpress/internal/plugin/registry"
)

// Plugin system errors.
var (
	// ErrPluginNotFound is returned when no record exists for a plugin id.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrPluginExists is returned when installing an id that is already installed.
	ErrPluginExists = errors.New("plugin already installed")

	// ErrNilManifest is returned when a nil manifest is provided.
	ErrNilManifest = errors.New("manifest is nil")

	// ErrIDMismatch is returned when an update manifest carries a different plugin id.
	ErrIDMismatch = errors.New("manifest id does not match installed plugin")
)

// ValidationError reports a malformed manifest. Nothing is persisted; the
// caller must fix the manifest and retry.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid manifest: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid manifest: %s", e.Message)
}

// SecurityViolation reports a manifest that declares a hook without any path
// to being granted the hook's required permission, or an unknown hook.
type SecurityViolation struct {
	PluginID string
	Hook     string
	Required registry.PermissionKey
}

// Error implements the error interface.
func (e *SecurityViolation) Error() string {
	if e.Required == "" {
		return fmt.Sprintf("security violation: unknown hook %q", e.Hook)
	}
	return fmt.Sprintf("security violation: %s requires %s", e.Hook, e.Required)
}

// InvalidTransition reports an illegal lifecycle operation, surfaced to the
// admin caller.
type InvalidTransition struct {
	PluginID string
	From     Status
	Op       string
}

// Error implements the error interface.
func (e *InvalidTransition) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s plugin %q while %s", e.Op, e.PluginID, e.From)
}

// PermissionDenied reports a host API call made without the required grant.
// It is a recoverable, expected condition the plugin must handle.
type PermissionDenied struct {
	PluginID   string
	Permission registry.PermissionKey
}

// Error implements the error interface.
func (e *PermissionDenied) Error() string {
	return fmt.Sprintf("permission denied: plugin %q lacks %s", e.PluginID, e.Permission)
}

// PluginNotActive reports a host API call or hook delivery attempted while
// the plugin is not Enabled.
type PluginNotActive struct {
	PluginID string
	Status   Status
}

// Error implements the error interface.
func (e *PluginNotActive) Error() string {
	return fmt.Sprintf("plugin %q is not active (status %s)", e.PluginID, e.Status)
}
