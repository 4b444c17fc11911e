package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kamusis/gemhub/internal/fsutil"
)

// Environment keys that override the config file.
const (
	EnvConfig      = "GEMHUB_CONFIG"
	EnvRoot        = "GEMHUB_ROOT"
	EnvLogLevel    = "GEMHUB_LOG_LEVEL"
	EnvLockTimeout = "GEMHUB_LOCK_TIMEOUT"
)

// Config is the in-memory representation of ~/.gemhub/gemhub.yaml.
type Config struct {
	Root          string        `yaml:"root"`
	LogLevel      string        `yaml:"log_level,omitempty"`
	LockTimeout   time.Duration `yaml:"lock_timeout,omitempty"`
	RepairWorkers int           `yaml:"repair_workers,omitempty"`
}

// Layout is the on-disk arrangement of a repository root.
type Layout struct {
	Root      string
	Gems      string
	Quick     string
	IndexDir  string
	Snapshot  string
	Locks     string
	CatalogDB string
}

// Layout derives every repository path from c.Root.
func (c *Config) Layout() Layout {
	return NewLayout(c.Root)
}

// NewLayout derives every repository path from root.
func NewLayout(root string) Layout {
	return Layout{
		Root:      root,
		Gems:      filepath.Join(root, "gems"),
		Quick:     filepath.Join(root, "quick"),
		IndexDir:  filepath.Join(root, "index"),
		Snapshot:  filepath.Join(root, "index", "source_index"),
		Locks:     filepath.Join(root, "locks"),
		CatalogDB: filepath.Join(root, "catalog.db"),
	}
}

// Dirs lists the directories Init creates.
func (l Layout) Dirs() []string {
	return []string{l.Root, l.Gems, l.Quick, l.IndexDir, l.Locks}
}

// HubDir returns the absolute path to ~/.gemhub/.
func HubDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".gemhub"), nil
}

// ConfigPath returns the config file path: $GEMHUB_CONFIG when set, else
// ~/.gemhub/gemhub.yaml.
func ConfigPath() (string, error) {
	if p := os.Getenv(EnvConfig); p != "" {
		return ExpandPath(p)
	}
	dir, err := HubDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "gemhub.yaml"), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

// DefaultConfig returns the default Config written on first gemhub init.
func DefaultConfig() (*Config, error) {
	dir, err := HubDir()
	if err != nil {
		return nil, err
	}
	return &Config{
		Root:          filepath.Join(dir, "repo"),
		LogLevel:      "info",
		LockTimeout:   30 * time.Second,
		RepairWorkers: 4,
	}, nil
}

// Load reads the config file at path ("" means ConfigPath) and applies
// environment overrides. A missing file yields DefaultConfig with overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		if path, err = ConfigPath(); err != nil {
			return nil, err
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
		}
	}

	if err := applyOverrides(cfg); err != nil {
		return nil, err
	}
	cfg.Root, err = ExpandPath(cfg.Root)
	if err != nil {
		return nil, err
	}
	if cfg.RepairWorkers <= 0 {
		cfg.RepairWorkers = 4
	}
	return cfg, nil
}

func applyOverrides(cfg *Config) error {
	if v, err := GetConfigValue(EnvRoot); err != nil {
		return err
	} else if v != "" {
		cfg.Root = v
	}
	if v, err := GetConfigValue(EnvLogLevel); err != nil {
		return err
	} else if v != "" {
		cfg.LogLevel = v
	}
	v, err := GetConfigValue(EnvLockTimeout)
	if err != nil {
		return err
	}
	if v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvLockTimeout, v, err)
		}
		cfg.LockTimeout = d
	}
	return nil
}

// parseDuration accepts Go durations ("30s") or a bare number of seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// Save marshals cfg and writes it to path ("" means ConfigPath).
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		if path, err = ConfigPath(); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := fsutil.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write config %s: %w", path, err)
	}
	return nil
}
