package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SourceConfig describes one ICS feed mirrored into the event store.
type SourceConfig struct {
	// ID tags imported events; it must be unique across sources.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label used in logs and the export.
	Name string `yaml:"name" json:"name"`
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// Color is applied to every event of this source.
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

type StoreConfig struct {
	// Driver is "memory" or "file".
	Driver string `yaml:"driver" json:"driver"`
	// Path is the JSON document used by the file driver.
	Path string `yaml:"path" json:"path"`
	// Seed preloads the demo events into an empty store.
	Seed bool `yaml:"seed" json:"seed"`
}

type BackupConfig struct {
	// Cron schedules JSON snapshots of the store. Empty disables backups.
	Cron string `yaml:"cron" json:"cron"`
	Dir  string `yaml:"dir" json:"dir"`
	// Keep is the number of snapshots retained.
	Keep int `yaml:"keep" json:"keep"`
}

type SessionsConfig struct {
	// IdleMinutes is how long an unused calendar cursor is kept.
	IdleMinutes int    `yaml:"idle_minutes" json:"idle_minutes"`
	PruneCron   string `yaml:"prune_cron" json:"prune_cron"`
}

type ImportsConfig struct {
	// Refresh is a cron schedule for feed imports. Empty means manual only.
	Refresh  string         `yaml:"refresh" json:"refresh"`
	CacheDir string         `yaml:"cache_dir" json:"cache_dir"`
	Sources  []SourceConfig `yaml:"sources" json:"sources"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the page and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used for day bucketing and display.
	// Empty means the process local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is the first column of the month grid:
	//   - "sunday" (default)
	//   - "monday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Store    StoreConfig    `yaml:"store" json:"store"`
	Backup   BackupConfig   `yaml:"backup" json:"backup"`
	Sessions SessionsConfig `yaml:"sessions" json:"sessions"`
	Imports  ImportsConfig  `yaml:"imports" json:"imports"`
}

const (
	DriverMemory = "memory"
	DriverFile   = "file"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:    "127.0.0.1:8080",
		Timezone:  "",
		WeekStart: "sunday",
		LogLevel:  "info",
		Store: StoreConfig{
			Driver: DriverMemory,
			Path:   "/var/lib/evcal/events.json",
		},
		Backup: BackupConfig{
			Dir:  "/var/lib/evcal/backup",
			Keep: 7,
		},
		Sessions: SessionsConfig{
			IdleMinutes: 720,
			PruneCron:   "*/30 * * * *",
		},
		Imports: ImportsConfig{
			CacheDir: "/var/lib/evcal/ics-cache",
			Sources:  []SourceConfig{},
		},
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	switch strings.ToLower(strings.TrimSpace(c.WeekStart)) {
	case "monday":
		c.WeekStart = "monday"
	default:
		// Unknown values fall back to sunday.
		c.WeekStart = "sunday"
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}

	switch c.Store.Driver {
	case DriverMemory, DriverFile:
	default:
		c.Store.Driver = DriverMemory
	}
	if c.Store.Path == "" {
		c.Store.Path = def.Store.Path
	}

	if c.Backup.Dir == "" {
		c.Backup.Dir = def.Backup.Dir
	}
	if c.Backup.Keep <= 0 {
		c.Backup.Keep = def.Backup.Keep
	}

	if c.Sessions.IdleMinutes <= 0 {
		c.Sessions.IdleMinutes = def.Sessions.IdleMinutes
	}
	if c.Sessions.PruneCron == "" {
		c.Sessions.PruneCron = def.Sessions.PruneCron
	}

	if c.Imports.CacheDir == "" {
		c.Imports.CacheDir = def.Imports.CacheDir
	}
	if c.Imports.Sources == nil {
		c.Imports.Sources = []SourceConfig{}
	}
}

// Validate reports configuration that cannot be fixed by Normalize.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Imports.Sources))
	for i, s := range c.Imports.Sources {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("imports.sources[%d]: id is required", i)
		}
		if strings.TrimSpace(s.URL) == "" {
			return fmt.Errorf("imports.sources[%d] (%s): url is required", i, s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("imports.sources[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// Location resolves Timezone; empty means time.Local.
func (c *Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SessionIdle is the idle timeout for calendar cursors.
func (c *Config) SessionIdle() time.Duration {
	return time.Duration(c.Sessions.IdleMinutes) * time.Minute
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and returned.
//   - Otherwise the YAML is unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory with 0700.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".evcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
