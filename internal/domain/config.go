package domain

import "path/filepath"

// Mode selects how startup failures are handled.
type Mode string

const (
	// ModeDebug - startup errors are returned to the caller and abort the process
	ModeDebug Mode = "debug"
	// ModeProduction - startup errors are logged and reported, the app keeps running on whatever state exists
	ModeProduction Mode = "production"
)

type Config struct {
	DataDir           string `toml:"data_dir" mapstructure:"data_dir"`
	DatabaseName      string `toml:"database_name" mapstructure:"database_name"`
	BundleDir         string `toml:"bundle_dir" mapstructure:"bundle_dir"`
	BundleName        string `toml:"bundle_name" mapstructure:"bundle_name"`
	BundleVersion     int    `toml:"bundle_version" mapstructure:"bundle_version"`
	Mode              Mode   `toml:"mode" mapstructure:"mode"`
	LogLevel          string `toml:"log_level" mapstructure:"log_level"`
	DiscordWebhookURL string `toml:"discord_webhook_url" mapstructure:"discord_webhook_url"`
	MetricsTextfile   string `toml:"metrics_textfile" mapstructure:"metrics_textfile"`

	IntegritySchedule  string `toml:"integrity_schedule" mapstructure:"integrity_schedule"`
	CachePurgeSchedule string `toml:"cache_purge_schedule" mapstructure:"cache_purge_schedule"`
	OptimizeSchedule   string `toml:"optimize_schedule" mapstructure:"optimize_schedule"`
	AutoRecover        bool   `toml:"auto_recover" mapstructure:"auto_recover"`
}

// DatabasePath is the location of the working database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, c.DatabaseName)
}

// PreferencesPath is the key-value document kept next to the database.
func (c *Config) PreferencesPath() string {
	return filepath.Join(c.DataDir, "preferences.yaml")
}

// HasBundle reports whether a bundled dataset is declared for this build.
func (c *Config) HasBundle() bool {
	return c.BundleDir != "" && c.BundleName != ""
}
