// Package config loads Zimi's runtime configuration from environment
// variables, per spec.md §6, with plain os.Getenv/strconv parsing
// matching cmd/chrc/main.go's env() helper. An optional zimi.yaml file
// can override the same fields, loaded with gopkg.in/yaml.v3 — the
// teacher stack already carries that dependency; no env-var-loading
// library (viper, envconfig, ...) appears anywhere in the example
// corpus, so none is introduced here.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// AutoUpdateFreq is the auto-update cadence, per spec.md §6.
type AutoUpdateFreq string

const (
	FreqDaily   AutoUpdateFreq = "daily"
	FreqWeekly  AutoUpdateFreq = "weekly"
	FreqMonthly AutoUpdateFreq = "monthly"
)

// Config is every environment-driven setting in spec.md §6's table.
type Config struct {
	ArchiveDir     string         `yaml:"archive_dir"`
	DataDir        string         `yaml:"data_dir"`
	ManageEnabled  bool           `yaml:"manage_enabled"`
	ManagePassword string         `yaml:"manage_password"`
	AutoUpdate     bool           `yaml:"auto_update"`
	AutoUpdateFreq AutoUpdateFreq `yaml:"auto_update_freq"`
	RateLimit      int            `yaml:"rate_limit"`
	Port           int            `yaml:"port"`
	LogLevel       string         `yaml:"log_level"`
}

// Load builds a Config from environment variables, falling back to
// spec.md §6's defaults, then applies any overrides found in
// <archive_dir>/zimi.yaml (or ZIMI_CONFIG_FILE, if set) — the
// environment wins for any field present in both, since env vars are
// spec.md's primary interface and the YAML file is an optional extra
// layered on top of those environment defaults.
func Load() (*Config, error) {
	c := &Config{
		ArchiveDir:     env("ZIMI_ARCHIVE_DIR", "/zims"),
		ManageEnabled:  envBool("ZIMI_MANAGE_ENABLED", true),
		ManagePassword: env("ZIMI_MANAGE_PASSWORD", ""),
		AutoUpdate:     envBool("ZIMI_AUTO_UPDATE", false),
		AutoUpdateFreq: AutoUpdateFreq(env("ZIMI_AUTO_UPDATE_FREQ", string(FreqWeekly))),
		RateLimit:      envInt("ZIMI_RATE_LIMIT", 60),
		Port:           envInt("ZIMI_PORT", 8899),
		LogLevel:       env("LOG_LEVEL", "info"),
	}
	c.DataDir = env("ZIMI_DATA_DIR", filepath.Join(c.ArchiveDir, ".zimi"))

	yamlPath := env("ZIMI_CONFIG_FILE", filepath.Join(c.ArchiveDir, "zimi.yaml"))
	if err := c.applyYAMLOverride(yamlPath); err != nil {
		return nil, err
	}
	return c, nil
}

// applyYAMLOverride merges path's contents into c if the file exists.
// A missing file is not an error; a malformed one is.
func (c *Config) applyYAMLOverride(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return err
	}
	mergeNonZero(c, &override)
	return nil
}

// mergeNonZero copies every non-zero-valued field of override into c,
// so an override file only needs to mention the settings it changes.
// A field whose environment variable is set keeps its environment value.
func mergeNonZero(c, override *Config) {
	envSet := func(key string) bool { return os.Getenv(key) != "" }
	if override.ArchiveDir != "" && !envSet("ZIMI_ARCHIVE_DIR") {
		c.ArchiveDir = override.ArchiveDir
	}
	if override.DataDir != "" && !envSet("ZIMI_DATA_DIR") {
		c.DataDir = override.DataDir
	}
	if override.ManageEnabled && !envSet("ZIMI_MANAGE_ENABLED") {
		c.ManageEnabled = true
	}
	if override.ManagePassword != "" && !envSet("ZIMI_MANAGE_PASSWORD") {
		c.ManagePassword = override.ManagePassword
	}
	if override.AutoUpdate && !envSet("ZIMI_AUTO_UPDATE") {
		c.AutoUpdate = true
	}
	if override.AutoUpdateFreq != "" && !envSet("ZIMI_AUTO_UPDATE_FREQ") {
		c.AutoUpdateFreq = override.AutoUpdateFreq
	}
	if override.RateLimit != 0 && !envSet("ZIMI_RATE_LIMIT") {
		c.RateLimit = override.RateLimit
	}
	if override.Port != 0 && !envSet("ZIMI_PORT") {
		c.Port = override.Port
	}
	if override.LogLevel != "" && !envSet("LOG_LEVEL") {
		c.LogLevel = override.LogLevel
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
