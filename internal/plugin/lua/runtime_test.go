package lua

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/goldpress/goldpress/internal/content"
	"github.com/goldpress/goldpress/internal/plugin"
	"github.com/goldpress/goldpress/internal/plugin/hostapi"
	"github.com/goldpress/goldpress/internal/plugin/registry"
	"github.com/goldpress/goldpress/internal/settings"
)

// runtimeFixture wires a real manager, facade, and runtime with in-memory
// collaborators.
type runtimeFixture struct {
	manager *plugin.Manager
	posts   *content.MemoryRepository
	runtime *Runtime
}

func newRuntimeFixture(t *testing.T, perms []registry.PermissionKey, source string) *runtimeFixture {
	t.Helper()

	manager := plugin.NewManager(plugin.NewMemoryStore(), zerolog.Nop())
	manifest := &plugin.Manifest{
		Package:     plugin.PackageInfo{ID: "com.example.guest", Name: "Guest", Version: "1.0.0"},
		Permissions: perms,
	}
	if _, err := manager.Install(manifest, nil, true); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	posts := content.NewMemoryRepository()
	facade := hostapi.NewFacade(manager, zerolog.Nop(),
		hostapi.WithPosts(posts),
		hostapi.WithSettings(settings.NewMemory()),
	)

	runtime := NewRuntime(facade, zerolog.Nop())
	t.Cleanup(runtime.Close)
	if err := runtime.Load("com.example.guest", []byte(source)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	return &runtimeFixture{manager: manager, posts: posts, runtime: runtime}
}

func TestRuntimeHandleAction(t *testing.T) {
	source := `
		seen = {}
		function handle_action(hook, event)
			seen.hook = hook
			seen.post_id = event.post_id
		end
		function get_seen() return seen.hook, seen.post_id end
	`
	f := newRuntimeFixture(t, nil, source)

	err := f.runtime.HandleAction(context.Background(), "com.example.guest",
		registry.HookActionPostPublished, map[string]any{"post_id": "p1"})
	if err != nil {
		t.Fatalf("HandleAction() error = %v", err)
	}

	state, err := f.runtime.guest("com.example.guest")
	if err != nil {
		t.Fatalf("guest() error = %v", err)
	}
	results, err := state.CallGlobal("get_seen")
	if err != nil {
		t.Fatalf("get_seen() error = %v", err)
	}
	if len(results) != 2 || results[0].String() != registry.HookActionPostPublished || results[1].String() != "p1" {
		t.Errorf("guest saw %v, want hook and post id", results)
	}
}

func TestRuntimeHandleFilterTransforms(t *testing.T) {
	source := `
		function handle_filter(hook, value)
			value.title = value.title .. " (filtered)"
			return value
		end
	`
	f := newRuntimeFixture(t, nil, source)

	got, err := f.runtime.HandleFilter(context.Background(), "com.example.guest",
		registry.HookFilterPostPublished, map[string]any{"title": "post"})
	if err != nil {
		t.Fatalf("HandleFilter() error = %v", err)
	}
	if got["title"] != "post (filtered)" {
		t.Errorf("title = %q, want transformed", got["title"])
	}
}

func TestRuntimeHandleFilterBadReturn(t *testing.T) {
	source := `function handle_filter(hook, value) return "not a table" end`
	f := newRuntimeFixture(t, nil, source)

	_, err := f.runtime.HandleFilter(context.Background(), "com.example.guest",
		registry.HookFilterPostPublished, map[string]any{})
	if err == nil || !strings.Contains(err.Error(), "want table") {
		t.Errorf("HandleFilter() error = %v, want table-type complaint", err)
	}
}

func TestRuntimeMissingEntryPoint(t *testing.T) {
	f := newRuntimeFixture(t, nil, `x = 1`)

	err := f.runtime.HandleAction(context.Background(), "com.example.guest",
		registry.HookActionPostPublished, nil)
	if err == nil {
		t.Error("HandleAction() without handle_action succeeded, want error")
	}
}

func TestRuntimeHostModuleGrantedCall(t *testing.T) {
	source := `
		function handle_action(hook, event)
			local id, err = host.save_post({title = "From Guest", published = true})
			if err then error(err) end
			saved_id = id
		end
	`
	f := newRuntimeFixture(t, []registry.PermissionKey{registry.PermPostWrite}, source)

	err := f.runtime.HandleAction(context.Background(), "com.example.guest",
		registry.HookActionPostPublished, nil)
	if err != nil {
		t.Fatalf("HandleAction() error = %v", err)
	}

	posts, err := f.posts.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(posts) != 1 || posts[0].Title != "From Guest" {
		t.Errorf("posts = %v, want the guest's post", posts)
	}
}

func TestRuntimeHostModuleDenialIsRecoverable(t *testing.T) {
	// No post:write grant: the guest sees (nil, err) and degrades instead
	// of crashing.
	source := `
		function handle_action(hook, event)
			local id, err = host.save_post({title = "Denied"})
			if id ~= nil then error("expected denial") end
			denial = err
		end
		function get_denial() return denial end
	`
	f := newRuntimeFixture(t, nil, source)

	err := f.runtime.HandleAction(context.Background(), "com.example.guest",
		registry.HookActionPostPublished, nil)
	if err != nil {
		t.Fatalf("HandleAction() error = %v", err)
	}

	state, _ := f.runtime.guest("com.example.guest")
	results, err := state.CallGlobal("get_denial")
	if err != nil {
		t.Fatalf("get_denial() error = %v", err)
	}
	if len(results) != 1 || !strings.Contains(results[0].String(), "permission denied") {
		t.Errorf("denial message = %v, want permission denied", results)
	}

	// The repository never saw the call.
	posts, _ := f.posts.Recent(context.Background(), 10)
	if len(posts) != 0 {
		t.Errorf("repository has %d posts after denied call, want 0", len(posts))
	}
}

func TestRuntimeSettingsRoundTrip(t *testing.T) {
	source := `
		function handle_action(hook, event)
			host.set_setting("max_length", 280)
			stored = host.get_setting("max_length")
		end
		function get_stored() return stored end
	`
	f := newRuntimeFixture(t,
		[]registry.PermissionKey{registry.PermSettingsRead, registry.PermSettingsWrite}, source)

	err := f.runtime.HandleAction(context.Background(), "com.example.guest",
		registry.HookActionPostPublished, nil)
	if err != nil {
		t.Fatalf("HandleAction() error = %v", err)
	}

	state, _ := f.runtime.guest("com.example.guest")
	results, err := state.CallGlobal("get_stored")
	if err != nil {
		t.Fatalf("get_stored() error = %v", err)
	}
	if len(results) != 1 || results[0].String() != "280" {
		t.Errorf("stored = %v, want 280", results)
	}
}

func TestRuntimeUnloadAndReload(t *testing.T) {
	f := newRuntimeFixture(t, nil, `function handle_action(h, e) end`)

	if !f.runtime.Loaded("com.example.guest") {
		t.Fatal("Loaded() = false after Load")
	}

	f.runtime.Unload("com.example.guest")
	if f.runtime.Loaded("com.example.guest") {
		t.Fatal("Loaded() = true after Unload")
	}
	if err := f.runtime.HandleAction(context.Background(), "com.example.guest",
		registry.HookActionPostPublished, nil); err == nil {
		t.Error("HandleAction() on unloaded guest succeeded")
	}

	// Reload replaces cleanly.
	if err := f.runtime.Load("com.example.guest", []byte(`function handle_action(h, e) end`)); err != nil {
		t.Fatalf("reload error = %v", err)
	}
	if err := f.runtime.HandleAction(context.Background(), "com.example.guest",
		registry.HookActionPostPublished, nil); err != nil {
		t.Errorf("HandleAction() after reload error = %v", err)
	}
}

func TestRuntimeLoadRejectsBrokenSource(t *testing.T) {
	runtime := NewRuntime(hostapi.NewFacade(
		plugin.NewManager(plugin.NewMemoryStore(), zerolog.Nop()), zerolog.Nop()), zerolog.Nop())
	defer runtime.Close()

	if err := runtime.Load("com.example.broken", []byte(`function(`)); err == nil {
		t.Error("Load() accepted invalid Lua")
	}
	if runtime.Loaded("com.example.broken") {
		t.Error("broken guest left loaded")
	}
}
