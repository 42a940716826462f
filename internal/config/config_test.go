package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "goldpress.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Plugins.DataDir != "data/plugins" {
		t.Errorf("DataDir = %q, want default", cfg.Plugins.DataDir)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Level = %q, want info", cfg.Log.Level)
	}
	if got := cfg.Plugins.HookTimeoutDuration(); got != 5*time.Second {
		t.Errorf("HookTimeoutDuration() = %v, want 5s", got)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "debug"
pretty = true

[plugins]
data_dir = "/var/lib/goldpress/plugins"
hook_timeout = "250ms"

[ai]
api_key = "sk-test"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" || !cfg.Log.Pretty {
		t.Errorf("Log = %+v, want debug/pretty", cfg.Log)
	}
	if cfg.Plugins.DataDir != "/var/lib/goldpress/plugins" {
		t.Errorf("DataDir = %q", cfg.Plugins.DataDir)
	}
	if got := cfg.Plugins.HookTimeoutDuration(); got != 250*time.Millisecond {
		t.Errorf("HookTimeoutDuration() = %v, want 250ms", got)
	}
	if cfg.AI.APIKey != "sk-test" {
		t.Errorf("APIKey = %q", cfg.AI.APIKey)
	}

	// Untouched sections keep defaults.
	if cfg.Content.UploadDir != "data/uploads" {
		t.Errorf("UploadDir = %q, want default", cfg.Content.UploadDir)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	if _, err := Load(writeConfig(t, `[plugins]`+"\n"+`hook_timeout = "soon"`)); err == nil {
		t.Error("Load() accepted an unparseable hook_timeout")
	}
	if _, err := Load(writeConfig(t, `[plugins]`+"\n"+`data_dir = ""`)); err == nil {
		t.Error("Load() accepted an empty data_dir")
	}
	if _, err := Load(writeConfig(t, `not toml [`)); err == nil {
		t.Error("Load() accepted malformed TOML")
	}
}
