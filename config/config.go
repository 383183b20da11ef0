package config

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Site resolution policies.
const (
	PolicyAutoRegister = "auto_register"
	PolicyStrict       = "strict"
)

// Ingest processing modes.
const (
	ModeBatch    = "batch"
	ModePerEvent = "per_event"
)

// Config holds all application configuration. It is built once at startup
// and passed by pointer; nothing downstream reads the environment.
type Config struct {
	App        AppConfig
	Log        LogConfig
	Database   DatabaseConfig
	ClickHouse ClickHouseConfig
	Ingest     IngestConfig
	JWT        JWTConfig
}

// AppConfig holds HTTP server settings.
type AppConfig struct {
	Port     string
	GinMode  string
	FEOrigin string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL            string
	MigrateOnStart bool
}

// ClickHouseConfig holds the optional analytics mirror connection. The mirror
// is disabled when Host is empty.
type ClickHouseConfig struct {
	Host       string
	NativePort int
	DBName     string
	Username   string
	Password   string
}

// Enabled reports whether the analytics mirror is configured.
func (c ClickHouseConfig) Enabled() bool {
	return c.Host != ""
}

// IngestConfig holds the ingest endpoint settings.
type IngestConfig struct {
	SecretKey        string
	OwnerUserID      string
	Path             string
	ResolutionPolicy string
	ProcessingMode   string
	Diagnostics      bool
	RateLimit        float64
	RateBurst        int
}

// Missing returns the names of required ingest settings that are unset.
func (c IngestConfig) Missing() []string {
	var missing []string
	if c.SecretKey == "" {
		missing = append(missing, "INGEST_SECRET_KEY")
	}
	if c.OwnerUserID == "" {
		missing = append(missing, "OWNER_USER_ID")
	}
	return missing
}

// JWTConfig holds the dashboard read-token settings.
type JWTConfig struct {
	Secret string
}

// Load reads configuration from an optional .env file and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env: %v", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Port:     v.GetString("PORT"),
			GinMode:  v.GetString("GIN_MODE"),
			FEOrigin: v.GetString("FE_ORIGIN"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Database: DatabaseConfig{
			URL:            v.GetString("DATABASE_URL"),
			MigrateOnStart: v.GetBool("MIGRATE_ON_START"),
		},
		ClickHouse: ClickHouseConfig{
			Host:       v.GetString("CLICKHOUSE_HOST"),
			NativePort: v.GetInt("CLICKHOUSE_NATIVE_PORT"),
			DBName:     v.GetString("CLICKHOUSE_DB_NAME"),
			Username:   v.GetString("CLICKHOUSE_USERNAME"),
			Password:   v.GetString("CLICKHOUSE_PASSWORD"),
		},
		Ingest: IngestConfig{
			SecretKey:        v.GetString("INGEST_SECRET_KEY"),
			OwnerUserID:      v.GetString("OWNER_USER_ID"),
			Path:             v.GetString("INGEST_PATH"),
			ResolutionPolicy: v.GetString("INGEST_RESOLUTION_POLICY"),
			ProcessingMode:   v.GetString("INGEST_PROCESSING_MODE"),
			Diagnostics:      v.GetBool("INGEST_DIAGNOSTICS"),
			RateLimit:        v.GetFloat64("INGEST_RATE_LIMIT"),
			RateBurst:        v.GetInt("INGEST_RATE_BURST"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET_KEY"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("MIGRATE_ON_START", true)
	v.SetDefault("CLICKHOUSE_NATIVE_PORT", 9000)
	v.SetDefault("CLICKHOUSE_DB_NAME", "default")
	v.SetDefault("INGEST_PATH", "/api/ingest")
	v.SetDefault("INGEST_RESOLUTION_POLICY", PolicyAutoRegister)
	v.SetDefault("INGEST_PROCESSING_MODE", ModeBatch)
	v.SetDefault("INGEST_DIAGNOSTICS", true)
	v.SetDefault("INGEST_RATE_LIMIT", 0)
	v.SetDefault("INGEST_RATE_BURST", 20)
}

// Validate rejects settings that can never work. Missing ingest credentials
// are not rejected here: the ingest endpoint fails closed per request instead.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	switch c.Ingest.ResolutionPolicy {
	case PolicyAutoRegister, PolicyStrict:
	default:
		return fmt.Errorf("invalid INGEST_RESOLUTION_POLICY %q (want %q or %q)",
			c.Ingest.ResolutionPolicy, PolicyAutoRegister, PolicyStrict)
	}
	switch c.Ingest.ProcessingMode {
	case ModeBatch, ModePerEvent:
	default:
		return fmt.Errorf("invalid INGEST_PROCESSING_MODE %q (want %q or %q)",
			c.Ingest.ProcessingMode, ModeBatch, ModePerEvent)
	}
	if c.Ingest.RateLimit < 0 {
		return fmt.Errorf("INGEST_RATE_LIMIT must not be negative")
	}
	if c.ClickHouse.Enabled() && c.ClickHouse.NativePort <= 0 {
		return fmt.Errorf("invalid CLICKHOUSE_NATIVE_PORT: %d", c.ClickHouse.NativePort)
	}
	return nil
}
