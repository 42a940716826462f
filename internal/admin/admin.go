// Package admin is the administrative surface over the plugin subsystem:
// install, update, enable, grants, review, uninstall. Callers arrive already
// authenticated; the Identity is used for audit logging only.
package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/goldpress/goldpress/internal/plugin"
	"github.com/goldpress/goldpress/internal/plugin/registry"
	"github.com/goldpress/goldpress/internal/plugin/rpk"
	"github.com/goldpress/goldpress/internal/storage"
)

// Identity is the authenticated administrator performing an operation.
type Identity struct {
	Name string
	Role string
}

// GuestRuntime loads and unloads plugin guest modules. The Lua runtime
// implements it.
type GuestRuntime interface {
	Load(pluginID string, source []byte) error
	Unload(pluginID string)
}

// Service exposes the admin operations.
type Service struct {
	manager  *plugin.Manager
	runtime  GuestRuntime
	archives storage.Backend
	log      zerolog.Logger
}

// NewService creates the admin service. Archives persist installed RPK bytes
// so guests can be reloaded across restarts and enables.
func NewService(manager *plugin.Manager, runtime GuestRuntime, archives storage.Backend, log zerolog.Logger) *Service {
	return &Service{
		manager:  manager,
		runtime:  runtime,
		archives: archives,
		log:      log.With().Str("component", "admin").Logger(),
	}
}

// List returns all installed plugins with their status, in install order.
func (s *Service) List() ([]*plugin.Record, error) {
	return s.manager.List()
}

// Get returns one plugin record.
func (s *Service) Get(id string) (*plugin.Record, error) {
	return s.manager.Get(id)
}

// Install validates an uploaded RPK, creates the plugin record with the
// given initial optional grants, persists the archive, and loads the guest
// if the plugin starts enabled.
func (s *Service) Install(ctx context.Context, actor Identity, rpkBytes []byte, initialGrants map[registry.PermissionKey]bool, enable bool) (*plugin.Record, error) {
	pkg, err := rpk.ReadPackage(rpkBytes)
	if err != nil {
		return nil, err
	}

	rec, err := s.manager.Install(pkg.Manifest, initialGrants, enable)
	if err != nil {
		return nil, err
	}

	if err := s.archives.Write(ctx, archiveName(rec.ID), rpkBytes); err != nil {
		// Roll back: a record without its archive cannot be reloaded.
		_ = s.manager.Uninstall(rec.ID)
		return nil, fmt.Errorf("persisting archive: %w", err)
	}

	if rec.Status == plugin.StatusEnabled {
		if err := s.runtime.Load(rec.ID, pkg.Module); err != nil {
			s.log.Error().Err(err).Str("plugin", rec.ID).Msg("guest failed to load")
		}
	}

	s.audit(actor, rec.ID).Str("version", rec.Manifest.Package.Version).
		Bool("enabled", enable).Msg("plugin installed")
	return rec, nil
}

// Update validates an uploaded RPK for an installed plugin and runs the
// inflation detector. An inflating update lands in PendingReview with the
// guest unloaded until an administrator reviews the new permissions.
func (s *Service) Update(ctx context.Context, actor Identity, rpkBytes []byte) (*plugin.Record, error) {
	pkg, err := rpk.ReadPackage(rpkBytes)
	if err != nil {
		return nil, err
	}

	rec, err := s.manager.Update(pkg.Manifest)
	if err != nil {
		return nil, err
	}

	if err := s.archives.Write(ctx, archiveName(rec.ID), rpkBytes); err != nil {
		return nil, fmt.Errorf("persisting archive: %w", err)
	}

	switch rec.Status {
	case plugin.StatusEnabled:
		if err := s.runtime.Load(rec.ID, pkg.Module); err != nil {
			s.log.Error().Err(err).Str("plugin", rec.ID).Msg("guest failed to reload")
		}
	default:
		s.runtime.Unload(rec.ID)
	}

	s.audit(actor, rec.ID).Str("version", rec.Manifest.Package.Version).
		Stringer("status", rec.Status).Msg("plugin updated")
	return rec, nil
}

// SetEnabled enables or disables a plugin, loading or unloading its guest.
func (s *Service) SetEnabled(ctx context.Context, actor Identity, id string, enabled bool) error {
	if enabled {
		if err := s.manager.Enable(id); err != nil {
			return err
		}
		if err := s.loadGuest(ctx, id); err != nil {
			s.log.Error().Err(err).Str("plugin", id).Msg("guest failed to load")
		}
	} else {
		if err := s.manager.Disable(id); err != nil {
			return err
		}
		s.runtime.Unload(id)
	}

	s.audit(actor, id).Bool("enabled", enabled).Msg("plugin toggled")
	return nil
}

// Grants returns the plugin's current grant map alongside its manifest, for
// the permissions admin page.
func (s *Service) Grants(id string) (map[registry.PermissionKey]bool, *plugin.Manifest, error) {
	rec, err := s.manager.Get(id)
	if err != nil {
		return nil, nil, err
	}
	return rec.Granted, rec.Manifest, nil
}

// SetGrant changes one optional permission grant.
func (s *Service) SetGrant(actor Identity, id string, key registry.PermissionKey, granted bool) error {
	if err := s.manager.SetGrant(id, key, granted); err != nil {
		return err
	}
	s.audit(actor, id).Str("permission", string(key)).Bool("granted", granted).
		Msg("grant changed")
	return nil
}

// PendingDiff returns the permission diff awaiting review.
func (s *Service) PendingDiff(id string) (plugin.Diff, error) {
	rec, err := s.manager.Get(id)
	if err != nil {
		return plugin.Diff{}, err
	}
	if rec.Status != plugin.StatusPendingReview {
		return plugin.Diff{}, &plugin.InvalidTransition{PluginID: id, From: rec.Status, Op: "review"}
	}
	return plugin.DiffManifests(rec.Previous, rec.Manifest), nil
}

// Review resolves a pending review with the administrator's grant decisions
// and brings the plugin back online.
func (s *Service) Review(ctx context.Context, actor Identity, id string, approved map[registry.PermissionKey]bool) (*plugin.Record, error) {
	rec, err := s.manager.Review(id, approved)
	if err != nil {
		return nil, err
	}

	if err := s.loadGuest(ctx, id); err != nil {
		s.log.Error().Err(err).Str("plugin", id).Msg("guest failed to load after review")
	}

	s.audit(actor, id).Interface("approved", approved).Msg("pending review resolved")
	return rec, nil
}

// Uninstall purges the plugin: record, guest, and stored archive.
func (s *Service) Uninstall(ctx context.Context, actor Identity, id string) error {
	if err := s.manager.Uninstall(id); err != nil {
		return err
	}

	s.runtime.Unload(id)
	if err := s.archives.Delete(ctx, archiveName(id)); err != nil {
		s.log.Error().Err(err).Str("plugin", id).Msg("deleting archive")
	}

	s.audit(actor, id).Msg("plugin uninstalled")
	return nil
}

// LoadEnabled loads guests for every enabled plugin from stored archives.
// Called at host startup.
func (s *Service) LoadEnabled(ctx context.Context) error {
	records, err := s.manager.List()
	if err != nil {
		return err
	}

	var firstErr error
	for _, rec := range records {
		if rec.Status != plugin.StatusEnabled {
			continue
		}
		if err := s.loadGuest(ctx, rec.ID); err != nil {
			s.log.Error().Err(err).Str("plugin", rec.ID).Msg("guest failed to load at startup")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// loadGuest reads the stored archive and loads the guest module.
func (s *Service) loadGuest(ctx context.Context, id string) error {
	data, err := s.archives.Read(ctx, archiveName(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no archive stored for plugin %s", id)
		}
		return err
	}

	pkg, err := rpk.ReadPackage(data)
	if err != nil {
		return err
	}
	return s.runtime.Load(id, pkg.Module)
}

// audit starts an audit log entry carrying the acting administrator.
func (s *Service) audit(actor Identity, pluginID string) *zerolog.Event {
	return s.log.Info().Str("actor", actor.Name).Str("role", actor.Role).Str("plugin", pluginID)
}

// archiveName is the stored archive path for a plugin id.
func archiveName(id string) string {
	return "archives/" + id + ".rpk"
}
