package config

import "time"

// Config holds the full runtime configuration of the bot.
type Config struct {
	AppEnv string `mapstructure:"-"`

	Bot       BotConfig       `mapstructure:"bot" validate:"required"`
	Storage   StorageConfig   `mapstructure:"storage" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Server    ServerConfig    `mapstructure:"server"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
}

// BotConfig configures the Telegram connection and bot identity.
type BotConfig struct {
	Token string `mapstructure:"token" validate:"required"`
	// Mode is accepted for forward compatibility; only polling is served.
	Mode string `mapstructure:"mode" validate:"omitempty,oneof=polling webhook"`
	// OwnerID seeds the owner list on first start.
	OwnerID     int64         `mapstructure:"owner_id" validate:"required"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	// Timezone anchors all daily-bonus and stake date math.
	Timezone string `mapstructure:"timezone"`
}

// StorageConfig selects and configures the state document backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=file postgres"`
	// Path is the state file location for the file driver.
	Path string `mapstructure:"path"`
	// DSN is the PostgreSQL connection string for the postgres driver.
	DSN string `mapstructure:"dsn"`
}

// RedisConfig configures the optional Redis backend for flow sessions.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig configures structured logging output.
type LogConfig struct {
	Level  string        `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string        `mapstructure:"format" validate:"omitempty,oneof=text json"`
	File   LogFileConfig `mapstructure:"file"`
}

// LogFileConfig configures the rotating log file sink.
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// ServerConfig configures the observability HTTP server.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// BroadcastConfig tunes the broadcast fan-out.
type BroadcastConfig struct {
	Pause time.Duration `mapstructure:"pause"`
}

// applyDefaults fills zero values with working defaults so a minimal config
// file is enough to run.
func (c *Config) applyDefaults() {
	if c.Bot.Mode == "" {
		c.Bot.Mode = "polling"
	}
	if c.Bot.PollTimeout == 0 {
		c.Bot.PollTimeout = 10 * time.Second
	}
	if c.Bot.Timezone == "" {
		c.Bot.Timezone = "Asia/Kolkata"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/state.json"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.File.Path == "" {
		c.Log.File.Path = "logs/bot.log"
	}
	if c.Log.File.MaxSizeMB == 0 {
		c.Log.File.MaxSizeMB = 50
	}
	if c.Log.File.MaxBackups == 0 {
		c.Log.File.MaxBackups = 5
	}
	if c.Log.File.MaxAgeDays == 0 {
		c.Log.File.MaxAgeDays = 30
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
}
