// Package config loads captree settings from defaults, an optional YAML
// file and CAPTREE_ environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable: log.level is read from
// CAPTREE_LOG_LEVEL.
const EnvPrefix = "CAPTREE"

// Config is the decoded configuration. Packages receive plain values from
// it, never the viper instance.
type Config struct {
	// DB is the SQLite database path.
	DB        string
	Log       Log
	Duplicate Duplicate
	Evaluator Evaluator

	// File is the config file that was read, empty if none.
	File string
}

// Log configures the logger and its optional rotating file.
type Log struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Duplicate holds the duplication policy.
type Duplicate struct {
	// GlobalSharedRefs keeps shared-ref-* identifiers from outside the
	// template unsuffixed in copies. Off by default.
	GlobalSharedRefs bool
	// SharedTables lists table IDs that are never copied.
	SharedTables []string
}

// Evaluator holds evaluation settings.
type Evaluator struct {
	ContainsFallback bool
	MaxDepth         int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db", "captree.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("duplicate.global_shared_refs", false)
	v.SetDefault("duplicate.shared_tables", []string{})

	v.SetDefault("evaluator.contains_fallback", true)
	v.SetDefault("evaluator.max_depth", 32)
}

// Load reads the configuration. An explicit path must exist. Without one,
// ./captree.yaml and then <user config dir>/captree/config.yaml are tried,
// and having neither is fine.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	file := path
	if file == "" {
		file = discover()
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := &Config{
		DB: v.GetString("db"),
		Log: Log{
			Level:      v.GetString("log.level"),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
		Duplicate: Duplicate{
			GlobalSharedRefs: v.GetBool("duplicate.global_shared_refs"),
			SharedTables:     v.GetStringSlice("duplicate.shared_tables"),
		},
		Evaluator: Evaluator{
			ContainsFallback: v.GetBool("evaluator.contains_fallback"),
			MaxDepth:         v.GetInt("evaluator.max_depth"),
		},
		File: file,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func discover() string {
	candidates := []string{"captree.yaml"}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "captree", "config.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		} else if !errors.Is(err, fs.ErrNotExist) {
			slog.Debug("config candidate not readable", "path", c, "error", err)
		}
	}
	return ""
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DB) == "" {
		return fmt.Errorf("config: db must not be empty")
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("config: log.level %q: %w", c.Log.Level, err)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("config: log rotation limits must not be negative")
	}
	if c.Evaluator.MaxDepth < 1 {
		return fmt.Errorf("config: evaluator.max_depth must be at least 1, got %d", c.Evaluator.MaxDepth)
	}
	return nil
}

// SharedTableSet returns SharedTables as a set.
func (d Duplicate) SharedTableSet() map[string]bool {
	out := make(map[string]bool, len(d.SharedTables))
	for _, id := range d.SharedTables {
		out[id] = true
	}
	return out
}
