// Package config loads the host configuration from TOML.
package config

import (
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is the host configuration.
type Config struct {
	// Log configures logging.
	Log LogConfig `toml:"log"`

	// Plugins configures the plugin subsystem.
	Plugins PluginConfig `toml:"plugins"`

	// Content configures the content collaborators.
	Content ContentConfig `toml:"content"`

	// AI configures the chat provider.
	AI AIConfig `toml:"ai"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is the zerolog level name (trace..panic).
	Level string `toml:"level"`

	// Pretty enables human-readable console output.
	Pretty bool `toml:"pretty"`
}

// PluginConfig configures the plugin subsystem.
type PluginConfig struct {
	// DataDir holds plugin records and installed archives.
	DataDir string `toml:"data_dir"`

	// DropDir is watched for *.rpk files to install or update.
	DropDir string `toml:"drop_dir"`

	// HookTimeout bounds one hook handler invocation, as a Go duration
	// string ("5s", "500ms").
	HookTimeout string `toml:"hook_timeout"`
}

// HookTimeoutDuration parses the configured hook timeout.
func (c PluginConfig) HookTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.HookTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// ContentConfig configures the content collaborators.
type ContentConfig struct {
	// UploadDir is the root of the upload backend.
	UploadDir string `toml:"upload_dir"`

	// SettingsPath is the settings JSON document.
	SettingsPath string `toml:"settings_path"`
}

// AIConfig configures the chat provider.
type AIConfig struct {
	// APIKey authenticates to the provider. Empty disables the ai:chat
	// surface.
	APIKey string `toml:"api_key"`

	// Model overrides the default model.
	Model string `toml:"model"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Plugins: PluginConfig{
			DataDir:     "data/plugins",
			DropDir:     "data/plugins/incoming",
			HookTimeout: "5s",
		},
		Content: ContentConfig{
			UploadDir:    "data/uploads",
			SettingsPath: "data/settings.json",
		},
	}
}

// Load reads a TOML config file, applying defaults for absent fields. A
// missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Plugins.DataDir == "" {
		return fmt.Errorf("plugins.data_dir must not be empty")
	}
	if c.Plugins.HookTimeout != "" {
		if _, err := time.ParseDuration(c.Plugins.HookTimeout); err != nil {
			return fmt.Errorf("plugins.hook_timeout: %w", err)
		}
	}
	return nil
}
