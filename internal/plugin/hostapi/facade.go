// Package hostapi is the single channel from plugin code into host
// resources. Every method declares its required permission and authorizes
// before delegating; a denied call never reaches the collaborator behind it.
package hostapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/goldpress/goldpress/internal/ai"
	"github.com/goldpress/goldpress/internal/content"
	"github.com/goldpress/goldpress/internal/plugin/registry"
	"github.com/goldpress/goldpress/internal/settings"
	"github.com/goldpress/goldpress/internal/storage"
)

// ErrNotAvailable is returned when a facade surface has no collaborator
// configured on this host.
var ErrNotAvailable = errors.New("host surface not available")

// Authorizer decides whether a plugin may use a permission right now. The
// lifecycle manager implements it; status and grant are both checked per
// call, so a revocation applies to every subsequent call.
type Authorizer interface {
	Authorize(pluginID string, key registry.PermissionKey) error
}

// SettingsStore is the slice of the settings store the facade needs.
type SettingsStore interface {
	Get(path string) (gjson.Result, error)
	Set(path string, value any) error
}

// Facade exposes host resources to plugin code, gated per call.
type Facade struct {
	auth Authorizer
	log  zerolog.Logger

	posts    content.Repository
	settings SettingsStore
	provider ai.Provider
	uploads  storage.Backend
}

// Option configures a Facade surface.
type Option func(*Facade)

// WithPosts wires the content repository behind post:read/post:write.
func WithPosts(repo content.Repository) Option {
	return func(f *Facade) { f.posts = repo }
}

// WithSettings wires the settings store behind settings:read/settings:write.
func WithSettings(store SettingsStore) Option {
	return func(f *Facade) { f.settings = store }
}

// WithAI wires the chat provider behind ai:chat.
func WithAI(provider ai.Provider) Option {
	return func(f *Facade) { f.provider = provider }
}

// WithUploads wires the upload backend behind upload:read/upload:write.
func WithUploads(backend storage.Backend) Option {
	return func(f *Facade) { f.uploads = backend }
}

// NewFacade creates a facade over the authorizer. Surfaces without a wired
// collaborator fail with ErrNotAvailable after the permission check.
func NewFacade(auth Authorizer, log zerolog.Logger, opts ...Option) *Facade {
	f := &Facade{
		auth: auth,
		log:  log.With().Str("component", "host-api").Logger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// RecentPosts returns up to limit published posts. Requires post:read.
func (f *Facade) RecentPosts(ctx context.Context, pluginID string, limit int) ([]*content.Post, error) {
	if err := f.authorize(pluginID, registry.PermPostRead); err != nil {
		return nil, err
	}
	if f.posts == nil {
		return nil, ErrNotAvailable
	}
	return f.posts.Recent(ctx, limit)
}

// GetPost returns one post by id. Requires post:read.
func (f *Facade) GetPost(ctx context.Context, pluginID, postID string) (*content.Post, error) {
	if err := f.authorize(pluginID, registry.PermPostRead); err != nil {
		return nil, err
	}
	if f.posts == nil {
		return nil, ErrNotAvailable
	}
	return f.posts.Get(ctx, postID)
}

// SavePost creates or updates a post. Requires post:write.
func (f *Facade) SavePost(ctx context.Context, pluginID string, post *content.Post) error {
	if err := f.authorize(pluginID, registry.PermPostWrite); err != nil {
		return err
	}
	if f.posts == nil {
		return ErrNotAvailable
	}
	return f.posts.Save(ctx, post)
}

// CategoryStats returns published post counts per category. Requires
// post:read.
func (f *Facade) CategoryStats(ctx context.Context, pluginID string) (map[string]int, error) {
	if err := f.authorize(pluginID, registry.PermPostRead); err != nil {
		return nil, err
	}
	if f.posts == nil {
		return nil, ErrNotAvailable
	}
	return f.posts.CategoryStats(ctx)
}

// Chat sends a chat completion request. Requires ai:chat.
func (f *Facade) Chat(ctx context.Context, pluginID string, req ai.Request) (string, error) {
	if err := f.authorize(pluginID, registry.PermAIChat); err != nil {
		return "", err
	}
	if f.provider == nil {
		return "", ErrNotAvailable
	}
	return f.provider.Chat(ctx, req)
}

// GetSetting reads one key from the plugin's own settings namespace.
// Requires settings:read.
func (f *Facade) GetSetting(pluginID, key string) (string, error) {
	if err := f.authorize(pluginID, registry.PermSettingsRead); err != nil {
		return "", err
	}
	if f.settings == nil {
		return "", ErrNotAvailable
	}

	result, err := f.settings.Get(settingPath(pluginID, key))
	if err != nil {
		return "", err
	}
	return result.String(), nil
}

// SetSetting writes one key in the plugin's own settings namespace.
// Requires settings:write.
func (f *Facade) SetSetting(pluginID, key string, value any) error {
	if err := f.authorize(pluginID, registry.PermSettingsWrite); err != nil {
		return err
	}
	if f.settings == nil {
		return ErrNotAvailable
	}
	return f.settings.Set(settingPath(pluginID, key), value)
}

// ReadUpload returns the contents of an upload. Requires upload:read.
func (f *Facade) ReadUpload(ctx context.Context, pluginID, name string) ([]byte, error) {
	if err := f.authorize(pluginID, registry.PermUploadRead); err != nil {
		return nil, err
	}
	if f.uploads == nil {
		return nil, ErrNotAvailable
	}
	return f.uploads.Read(ctx, name)
}

// WriteUpload stores an upload. Requires upload:write.
func (f *Facade) WriteUpload(ctx context.Context, pluginID, name string, data []byte) error {
	if err := f.authorize(pluginID, registry.PermUploadWrite); err != nil {
		return err
	}
	if f.uploads == nil {
		return ErrNotAvailable
	}
	return f.uploads.Write(ctx, name, data)
}

// ListUploads returns upload names under a prefix. Requires upload:read.
func (f *Facade) ListUploads(ctx context.Context, pluginID, prefix string) ([]string, error) {
	if err := f.authorize(pluginID, registry.PermUploadRead); err != nil {
		return nil, err
	}
	if f.uploads == nil {
		return nil, ErrNotAvailable
	}
	return f.uploads.List(ctx, prefix)
}

// authorize runs the per-call permission check and logs denials.
func (f *Facade) authorize(pluginID string, key registry.PermissionKey) error {
	if err := f.auth.Authorize(pluginID, key); err != nil {
		f.log.Debug().Str("plugin", pluginID).Str("permission", string(key)).
			Err(err).Msg("host call denied")
		return err
	}
	return nil
}

// settingPath namespaces a key under the plugin's id. The id contains dots,
// so it is escaped to stay a single object key.
func settingPath(pluginID, key string) string {
	return fmt.Sprintf("plugins.%s.%s", settings.Escape(pluginID), key)
}
