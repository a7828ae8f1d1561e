package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/varoOP/biblestore/internal/domain"
	"github.com/varoOP/biblestore/internal/logger"
)

const (
	DefaultDatabaseName  = "BibleStudy.sqlite"
	DefaultBundleName    = "BibleData.sqlite"
	DefaultBundleVersion = 3
)

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", ".")
	v.SetDefault("database_name", DefaultDatabaseName)
	v.SetDefault("bundle_dir", "")
	v.SetDefault("bundle_name", DefaultBundleName)
	v.SetDefault("bundle_version", DefaultBundleVersion)
	v.SetDefault("mode", string(domain.ModeProduction))
	v.SetDefault("log_level", "info")
	v.SetDefault("integrity_schedule", "0 4 * * *")
	v.SetDefault("cache_purge_schedule", "@hourly")
	v.SetDefault("optimize_schedule", "0 5 * * 0")
	v.SetDefault("auto_recover", false)
}

// Load loads configuration from multiple sources:
// 1. Config file (config.yaml, optional)
// 2. Environment variables (BIBLESTORE_*)
func Load() (*domain.Config, error) {
	SetDefaults(viper.GetViper())
	return LoadFrom(viper.GetViper())
}

// LoadFrom builds and validates a config from v.
func LoadFrom(v *viper.Viper) (*domain.Config, error) {
	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Mode == "" {
		cfg.Mode = domain.ModeProduction
	}
	cfg.Mode = domain.Mode(strings.ToLower(string(cfg.Mode)))
	if cfg.Mode != domain.ModeDebug && cfg.Mode != domain.ModeProduction {
		return nil, fmt.Errorf("invalid mode: %s (must be 'debug' or 'production')", cfg.Mode)
	}

	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required (set via config.yaml or BIBLESTORE_DATA_DIR environment variable)")
	}
	if cfg.DatabaseName == "" {
		return nil, fmt.Errorf("database_name must not be empty")
	}
	if cfg.BundleDir != "" && cfg.BundleVersion < 1 {
		return nil, fmt.Errorf("invalid bundle_version: %d (must be positive when bundle_dir is set)", cfg.BundleVersion)
	}

	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	schedules := map[string]string{
		"integrity_schedule":   cfg.IntegritySchedule,
		"cache_purge_schedule": cfg.CachePurgeSchedule,
		"optimize_schedule":    cfg.OptimizeSchedule,
	}
	for key, spec := range schedules {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", key, spec, err)
		}
	}

	return cfg, nil
}
