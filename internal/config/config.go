package config

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	DefaultPort            = "8080"
	DefaultDatabasePath    = "registry.db"
	DefaultProgramID       = "6XkQn6ub71Drxp74UE6LrrvNH6K6GnCbxXwCH6NrDLb"
	DefaultSignatureWindow = 300 * time.Second
	DefaultLockTTL         = 5 * time.Second
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	DatabaseURL         string // postgres DSN; takes precedence over DatabasePath
	DatabasePath        string // sqlite file, ":memory:" in tests
	RedisURL            string // optional; enables shared locks, replay guard and request stats
	ProgramID           string
	SignatureWindow     time.Duration
	LockTTL             time.Duration
	LogLevel            zerolog.Level
	FrontendURLEndsWith string
	DevPassword         string
	HealthAdminKey      string
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", DefaultPort)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("DATABASE_PATH", DefaultDatabasePath)
	v.SetDefault("PROGRAM_ID", DefaultProgramID)
	v.SetDefault("SIGNATURE_WINDOW_SECONDS", int(DefaultSignatureWindow/time.Second))
	v.SetDefault("LOCK_TTL_MS", int(DefaultLockTTL/time.Millisecond))
	v.SetDefault("LOG_LEVEL", "info")

	level, err := zerolog.ParseLevel(strings.ToLower(v.GetString("LOG_LEVEL")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	window := time.Duration(v.GetInt("SIGNATURE_WINDOW_SECONDS")) * time.Second
	if window <= 0 {
		window = DefaultSignatureWindow
	}
	lockTTL := time.Duration(v.GetInt("LOCK_TTL_MS")) * time.Millisecond
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}

	return &Config{
		Env:                 v.GetString("APP_ENV"),
		Port:                v.GetString("PORT"),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		DatabasePath:        v.GetString("DATABASE_PATH"),
		RedisURL:            v.GetString("REDIS_URL"),
		ProgramID:           v.GetString("PROGRAM_ID"),
		SignatureWindow:     window,
		LockTTL:             lockTTL,
		LogLevel:            level,
		FrontendURLEndsWith: v.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         v.GetString("DEV_PASSWORD"),
		HealthAdminKey:      v.GetString("HEALTH_ADMIN_KEY"),
	}, nil
}

// DSN is what database.Open receives.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DatabasePath
}
