package plugin

import "fmt"

// Status represents the lifecycle state of an installed plugin.
type Status int

// Plugin statuses.
const (
	// StatusDisabled - installed but receiving no hooks and making no host calls.
	StatusDisabled Status = iota

	// StatusEnabled - live; eligible for hooks and host API calls.
	StatusEnabled

	// StatusPendingReview - an update introduced new permissions awaiting
	// administrator review.
	StatusPendingReview

	// StatusUninstalled - terminal; the record is purged.
	StatusUninstalled
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusDisabled:
		return "disabled"
	case StatusEnabled:
		return "enabled"
	case StatusPendingReview:
		return "pending_review"
	case StatusUninstalled:
		return "uninstalled"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler for persistence.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "disabled":
		*s = StatusDisabled
	case "enabled":
		*s = StatusEnabled
	case "pending_review":
		*s = StatusPendingReview
	case "uninstalled":
		*s = StatusUninstalled
	default:
		return fmt.Errorf("unknown plugin status %q", text)
	}
	return nil
}
