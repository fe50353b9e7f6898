package repo

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/renameio"
)

// Storage backends selectable in config.
const (
	StorageLoose  = "loose"
	StorageSQLite = "sqlite"
)

// Config stores repository-local settings, persisted as .geogot/config.toml.
type Config struct {
	Core    CoreConfig              `toml:"core"`
	User    UserConfig              `toml:"user"`
	Remotes map[string]RemoteConfig `toml:"remotes,omitempty"`
}

// CoreConfig selects the storage backend.
type CoreConfig struct {
	Storage  string `toml:"storage"`
	Compress bool   `toml:"compress"`
}

// UserConfig is the default commit identity.
type UserConfig struct {
	Name  string `toml:"name,omitempty"`
	Email string `toml:"email,omitempty"`
}

// RemoteConfig locates another repository on the local filesystem.
type RemoteConfig struct {
	Path string `toml:"path"`
}

// DefaultConfig is the configuration written by Init.
func DefaultConfig() *Config {
	return &Config{
		Core:    CoreConfig{Storage: StorageLoose, Compress: true},
		Remotes: make(map[string]RemoteConfig),
	}
}

// Identity renders "Name <email>", falling back to whichever part is set.
func (c *Config) Identity() string {
	name := strings.TrimSpace(c.User.Name)
	email := strings.TrimSpace(c.User.Email)
	switch {
	case name != "" && email != "":
		return fmt.Sprintf("%s <%s>", name, email)
	case name != "":
		return name
	case email != "":
		return "<" + email + ">"
	default:
		return ""
	}
}

func configPath(dir string) string {
	return filepath.Join(dir, "config.toml")
}

// ReadConfig reads config.toml from a .geogot directory. A missing file
// yields the defaults.
func ReadConfig(dir string) (*Config, error) {
	cfg := DefaultConfig()
	_, err := toml.DecodeFile(configPath(dir), cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if cfg.Remotes == nil {
		cfg.Remotes = make(map[string]RemoteConfig)
	}
	switch cfg.Core.Storage {
	case StorageLoose, StorageSQLite:
	default:
		return nil, fmt.Errorf("read config: unknown storage %q", cfg.Core.Storage)
	}
	return cfg, nil
}

// WriteConfig atomically writes config.toml into a .geogot directory.
func WriteConfig(dir string, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("write config: encode: %w", err)
	}
	if err := renameio.WriteFile(configPath(dir), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SaveConfig persists r.Config. In-memory repositories keep it in memory.
func (r *Repo) SaveConfig() error {
	if r.Dir == "" {
		return nil
	}
	return WriteConfig(r.Dir, r.Config)
}

// SetRemote stores or updates a named remote.
func (r *Repo) SetRemote(name, path string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("set remote: remote name is required")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("set remote: remote path is required")
	}
	if r.Config.Remotes == nil {
		r.Config.Remotes = make(map[string]RemoteConfig)
	}
	r.Config.Remotes[name] = RemoteConfig{Path: path}
	return r.SaveConfig()
}

// RemotePath returns the configured path for the given remote name.
func (r *Repo) RemotePath(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("remote name is required")
	}
	rc, ok := r.Config.Remotes[name]
	if !ok || strings.TrimSpace(rc.Path) == "" {
		return "", fmt.Errorf("remote %q is not configured", name)
	}
	return rc.Path, nil
}
