package plugin

import (
	"sort"

	"github.com/goldpress/goldpress/internal/plugin/registry"
)

// Diff is the permission delta between two manifest versions.
type Diff struct {
	// Added = (new.required − prev.required) ∪ (new.optional − prev.optional),
	// compared per group. Any addition gates the update behind review.
	Added []registry.PermissionKey

	// Removed permissions are declared by the old manifest (required or
	// optional) but by neither group of the new one. Their grants are
	// pruned regardless of the review outcome.
	Removed []registry.PermissionKey
}

// Inflated returns true if the new manifest requests any permission the old
// one did not. Only additions gate an update behind review.
func (d Diff) Inflated() bool {
	return len(d.Added) > 0
}

// Empty returns true if the permission surface is unchanged.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// DiffManifests computes the permission delta from prev to next. A nil prev
// yields an empty diff: a fresh install has nothing to inflate from.
func DiffManifests(prev, next *Manifest) Diff {
	if prev == nil || next == nil {
		return Diff{}
	}

	prevRequired := prev.RequiredSet()

	var diff Diff
	added := make(map[registry.PermissionKey]bool)
	for _, key := range next.Permissions {
		if !prevRequired[key] && !added[key] {
			added[key] = true
			diff.Added = append(diff.Added, key)
		}
	}
	for key := range next.OptionalPermissions {
		if _, ok := prev.OptionalPermissions[key]; !ok && !added[key] {
			added[key] = true
			diff.Added = append(diff.Added, key)
		}
	}

	nextSet := declaredSet(next)
	for key := range declaredSet(prev) {
		if !nextSet[key] {
			diff.Removed = append(diff.Removed, key)
		}
	}

	sort.Slice(diff.Added, func(i, j int) bool { return diff.Added[i] < diff.Added[j] })
	sort.Slice(diff.Removed, func(i, j int) bool { return diff.Removed[i] < diff.Removed[j] })

	return diff
}

// declaredSet collects required and optional permission keys.
func declaredSet(m *Manifest) map[registry.PermissionKey]bool {
	set := make(map[registry.PermissionKey]bool, len(m.Permissions)+len(m.OptionalPermissions))
	for _, key := range m.Permissions {
		set[key] = true
	}
	for key := range m.OptionalPermissions {
		set[key] = true
	}
	return set
}
