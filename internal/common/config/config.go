// Package config provides configuration management for the cron server.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	NATS          NATSConfig          `mapstructure:"nats"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	GitHub        GitHubConfig        `mapstructure:"github"`
	Roster        RosterConfig        `mapstructure:"roster"`
	Reports       ReportsConfig       `mapstructure:"reports"`
	Schedules     []ScheduleConfig    `mapstructure:"schedules"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// DatabaseConfig selects the report blob backend.
// Driver is one of "sqlite", "postgres" or "fs".
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"` // sqlite file or fs directory
	DSN      string `mapstructure:"dsn"`  // postgres connection string
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// NATSConfig holds NATS messaging configuration. An empty URL selects the in-memory bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
	SubjectPrefix string `mapstructure:"subjectPrefix"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// RepositoryConfig identifies one repository included in contribution reports.
type RepositoryConfig struct {
	Owner   string `mapstructure:"owner"`
	Name    string `mapstructure:"name"`
	Enabled bool   `mapstructure:"enabled"`
}

// GitHubConfig configures the VCS client.
type GitHubConfig struct {
	Token          string             `mapstructure:"token"`
	BaseURL        string             `mapstructure:"baseUrl"` // GitHub Enterprise API root, optional
	Repositories   []RepositoryConfig `mapstructure:"repositories"`
	OrgDomains     []string           `mapstructure:"orgDomains"`
	RequestTimeout int                `mapstructure:"requestTimeout"` // in seconds
}

// RosterConfig points at the team roster file.
type RosterConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}

// ReportsConfig tunes report generation and retention.
type ReportsConfig struct {
	FreshnessHours     int    `mapstructure:"freshnessHours"`
	TaskRetentionHours int    `mapstructure:"taskRetentionHours"`
	RepositoryDelayMs  int    `mapstructure:"repositoryDelayMs"`
	TimeZone           string `mapstructure:"timeZone"`
}

// ScheduleConfig binds a cron expression to a report kind.
type ScheduleConfig struct {
	Name        string `mapstructure:"name"`
	Cron        string `mapstructure:"cron"`
	Kind        string `mapstructure:"kind"`
	Destination string `mapstructure:"destination"`
	Enabled     bool   `mapstructure:"enabled"`
}

// ChannelConfig configures one outbound delivery channel.
type ChannelConfig struct {
	Name     string   `mapstructure:"name"`
	Provider string   `mapstructure:"provider"` // webhook, apprise, log
	URL      string   `mapstructure:"url"`
	URLs     []string `mapstructure:"urls"`
}

// NotificationsConfig holds delivery channels and the default destination.
type NotificationsConfig struct {
	DefaultDestination string          `mapstructure:"defaultDestination"`
	Channels           []ChannelConfig `mapstructure:"channels"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// Addr returns host:port for the HTTP listener.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RequestTimeoutDuration returns the per-call VCS timeout.
func (g *GitHubConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(g.RequestTimeout) * time.Second
}

// FreshnessWindow returns how long a cached preview may be reused.
func (r *ReportsConfig) FreshnessWindow() time.Duration {
	return time.Duration(r.FreshnessHours) * time.Hour
}

// TaskRetention returns how long finished tasks are kept in memory.
func (r *ReportsConfig) TaskRetention() time.Duration {
	return time.Duration(r.TaskRetentionHours) * time.Hour
}

// RepositoryDelay returns the pause inserted between repositories.
func (r *ReportsConfig) RepositoryDelay() time.Duration {
	return time.Duration(r.RepositoryDelayMs) * time.Millisecond
}

// Location resolves the configured time zone, falling back to UTC.
func (r *ReportsConfig) Location() *time.Location {
	if r.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/reports.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "naverworks-cron")
	v.SetDefault("nats.maxReconnects", 10)
	v.SetDefault("nats.subjectPrefix", "naverworks")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("github.token", "")
	v.SetDefault("github.baseUrl", "")
	v.SetDefault("github.orgDomains", []string{})
	v.SetDefault("github.requestTimeout", 30)

	v.SetDefault("roster.path", "./config/roster.yaml")
	v.SetDefault("roster.watch", true)

	v.SetDefault("reports.freshnessHours", 24)
	v.SetDefault("reports.taskRetentionHours", 24)
	v.SetDefault("reports.repositoryDelayMs", 1000)
	v.SetDefault("reports.timeZone", "Asia/Seoul")

	v.SetDefault("notifications.defaultDestination", "")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix NAVERWORKS_CRON_ with "." replaced by "_".
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("NAVERWORKS_CRON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// camelCase keys do not map onto SNAKE_CASE env names automatically
	_ = v.BindEnv("github.token", "GITHUB_TOKEN", "NAVERWORKS_CRON_GITHUB_TOKEN")
	_ = v.BindEnv("roster.path", "NAVERWORKS_CRON_ROSTER_PATH")
	_ = v.BindEnv("reports.freshnessHours", "NAVERWORKS_CRON_REPORTS_FRESHNESS_HOURS")
	_ = v.BindEnv("database.driver", "NAVERWORKS_CRON_DB_DRIVER")
	_ = v.BindEnv("database.path", "NAVERWORKS_CRON_DB_PATH")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/naverworks-cron/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// EnabledRepositories returns the repositories with Enabled set.
func (c *Config) EnabledRepositories() []RepositoryConfig {
	var out []RepositoryConfig
	for _, r := range c.GitHub.Repositories {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	switch strings.ToLower(cfg.Database.Driver) {
	case "sqlite", "fs":
		if cfg.Database.Path == "" {
			errs = append(errs, "database.path is required for sqlite and fs drivers")
		}
	case "postgres":
		if cfg.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for the postgres driver")
		}
	default:
		errs = append(errs, "database.driver must be one of: sqlite, postgres, fs")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	for i, r := range cfg.GitHub.Repositories {
		if r.Owner == "" || r.Name == "" {
			errs = append(errs, fmt.Sprintf("github.repositories[%d] requires owner and name", i))
		}
	}
	if cfg.GitHub.RequestTimeout <= 0 {
		errs = append(errs, "github.requestTimeout must be positive")
	}

	if cfg.Reports.FreshnessHours <= 0 {
		errs = append(errs, "reports.freshnessHours must be positive")
	}
	if cfg.Reports.TaskRetentionHours <= 0 {
		errs = append(errs, "reports.taskRetentionHours must be positive")
	}
	if cfg.Reports.RepositoryDelayMs < 0 {
		errs = append(errs, "reports.repositoryDelayMs must not be negative")
	}

	for i, s := range cfg.Schedules {
		if s.Cron == "" || s.Kind == "" {
			errs = append(errs, fmt.Sprintf("schedules[%d] requires cron and kind", i))
		}
	}

	for i, ch := range cfg.Notifications.Channels {
		switch ch.Provider {
		case "webhook":
			if ch.URL == "" {
				errs = append(errs, fmt.Sprintf("notifications.channels[%d] webhook requires url", i))
			}
		case "apprise":
			if len(ch.URLs) == 0 {
				errs = append(errs, fmt.Sprintf("notifications.channels[%d] apprise requires urls", i))
			}
		case "log":
		default:
			errs = append(errs, fmt.Sprintf("notifications.channels[%d] has unknown provider %q", i, ch.Provider))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
