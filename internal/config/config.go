// Package config loads and validates the application configuration from
// a YAML file, environment variables, and defaults, in that order of
// precedence (environment wins).
package config

import (
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/spf13/viper"

	"github.com/clovenbradshaw-ctrl/eosync/pkg/errors"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/resolve"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/syncer"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/tracker"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// EOSYNC_REMOTE_TOKEN.
const EnvPrefix = "EOSYNC"

// Config is the full application configuration.
type Config struct {
	LogLevel  string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
	LogFormat string `yaml:"log_format" validate:"omitempty,oneof=auto json console"`

	Direction    syncer.Direction `yaml:"direction"`
	Strategy     resolve.Strategy `yaml:"strategy"`
	SyncInterval time.Duration    `yaml:"sync_interval" validate:"min=10s"`

	BatchSize    int           `yaml:"batch_size" validate:"min=1"`
	BatchDelay   time.Duration `yaml:"batch_delay" validate:"min=100ms"`
	UndoCapacity int           `yaml:"undo_capacity" validate:"min=1"`

	Remote    Remote    `yaml:"remote"`
	Activity  Activity  `yaml:"activity"`
	Workspace Workspace `yaml:"workspace"`
}

// Remote configures the remote tabular store adapter.
type Remote struct {
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	Token   string `yaml:"token"`
	Table   string `yaml:"table"`
}

// Activity configures the activity log store. An empty path selects the
// in-memory store, which does not survive the process.
type Activity struct {
	Path string `yaml:"path"`
}

// Workspace configures the local entity store.
type Workspace struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used when nothing else is specified.
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		LogFormat:    "auto",
		Direction:    syncer.Bidirectional,
		Strategy:     resolve.StrategySuperposition,
		SyncInterval: syncer.DefaultInterval,
		BatchSize:    tracker.DefaultBatchSize,
		BatchDelay:   tracker.DefaultBatchDelay,
		UndoCapacity: tracker.DefaultUndoCapacity,
		Activity:     Activity{Path: "eosync-activity.db"},
		Workspace:    Workspace{Path: "eosync-workspace.yaml"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (if any), then EOSYNC_* environment overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.NewConfigError("config", "read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.NewConfigError("config", "parse config file", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides individual fields from the environment.
func applyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if s := v.GetString("log_level"); s != "" {
		cfg.LogLevel = s
	}
	if s := v.GetString("log_format"); s != "" {
		cfg.LogFormat = s
	}
	if s := v.GetString("direction"); s != "" {
		cfg.Direction = syncer.Direction(s)
	}
	if s := v.GetString("strategy"); s != "" {
		cfg.Strategy = resolve.Strategy(s)
	}
	if d := v.GetDuration("sync_interval"); d > 0 {
		cfg.SyncInterval = d
	}
	if n := v.GetInt("batch_size"); n > 0 {
		cfg.BatchSize = n
	}
	if d := v.GetDuration("batch_delay"); d > 0 {
		cfg.BatchDelay = d
	}
	if n := v.GetInt("undo_capacity"); n > 0 {
		cfg.UndoCapacity = n
	}
	if s := v.GetString("remote.base_url"); s != "" {
		cfg.Remote.BaseURL = s
	}
	if s := v.GetString("remote.token"); s != "" {
		cfg.Remote.Token = s
	}
	if s := v.GetString("remote.table"); s != "" {
		cfg.Remote.Table = s
	}
	if s := v.GetString("activity.path"); s != "" {
		cfg.Activity.Path = s
	}
	if s := v.GetString("workspace.path"); s != "" {
		cfg.Workspace.Path = s
	}
}

// Validate checks bounds and enum values.
func (c *Config) Validate() error {
	if !c.Direction.Valid() {
		return errors.NewValidationError("direction", string(c.Direction), "must be bidirectional, remote-to-local or local-to-remote")
	}
	if !c.Strategy.Valid() {
		return errors.NewValidationError("strategy", string(c.Strategy), "unknown conflict strategy")
	}
	if err := validator.New().Struct(c); err != nil {
		return errors.NewConfigError("config", "invalid configuration", err)
	}
	return nil
}
