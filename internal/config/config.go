// Package config loads the bot's environment-supplied configuration. Every
// knob comes from a TIMECLOCK_* variable; a local .env file is loaded by the
// caller before this runs.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Token is the Discord bot credential. Required.
	Token string `mapstructure:"token"`
	// DB is the database DSN. A sqlite path by default; anything else is
	// treated as a Postgres connection string.
	DB string `mapstructure:"db"`
	// Timezone is the IANA zone all calendar-day boundaries are computed in.
	Timezone string `mapstructure:"timezone"`
	// AdminIDs is a comma-separated allow-list of user IDs permitted to run
	// the destructive clearall command.
	AdminIDs string `mapstructure:"admin_ids"`
	// Prefix is the command prefix.
	Prefix string `mapstructure:"prefix"`
	// WindowDays is the size of the recent-leaderboard window.
	WindowDays int `mapstructure:"window_days"`
	// StatsdAddr enables statsd metrics when set.
	StatsdAddr string `mapstructure:"statsd_addr"`
	// LogFile redirects logs to a rotating file when set; stderr otherwise.
	LogFile string `mapstructure:"log_file"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TIMECLOCK")
	v.AutomaticEnv()

	v.SetDefault("token", "")
	v.SetDefault("db", "timeclock.db")
	v.SetDefault("timezone", "America/New_York")
	v.SetDefault("admin_ids", "")
	v.SetDefault("prefix", "!")
	v.SetDefault("window_days", 30)
	v.SetDefault("statsd_addr", "")
	v.SetDefault("log_file", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.WindowDays <= 0 {
		return nil, fmt.Errorf("TIMECLOCK_WINDOW_DAYS must be positive, got %d", cfg.WindowDays)
	}

	return &cfg, nil
}

// Admins parses the allow-list into individual user IDs.
func (c *Config) Admins() []string {
	var admins []string
	for _, id := range strings.Split(c.AdminIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			admins = append(admins, id)
		}
	}
	return admins
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("time.LoadLocation: %w", err)
	}
	return loc, nil
}

// IsSQLite reports whether the DSN points at a sqlite database rather than a
// Postgres server.
func (c *Config) IsSQLite() bool {
	return strings.HasSuffix(c.DB, ".db") ||
		strings.HasPrefix(c.DB, "file:") ||
		c.DB == ":memory:"
}
