package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

type ServerConfig struct {
	Port      int `toml:"port"`
	RateLimit int `toml:"rate_limit"` // requests per minute per IP, 0 disables
}

type DatabaseConfig struct {
	Driver       string `toml:"driver"` // "sqlite" (pure Go), "sqlite3" (cgo) or "postgres"
	DSN          string `toml:"dsn"`
	MaxOpenConns int    `toml:"max_open_conns"`
}

type JWTConfig struct {
	Secret   string `toml:"secret"` // For JWT signing
	TTLHours int    `toml:"ttl_hours"`
}

type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	JWT      JWTConfig      `toml:"jwt"`
	Log      LogConfig      `toml:"log"`
}

// Default returns the configuration used when no file overrides a value
func Default() *Config {
	var config Config

	config.Server.Port = 3000
	config.Server.RateLimit = 100

	config.Database.Driver = "sqlite"
	config.Database.DSN = "data/mailcopy.db"
	config.Database.MaxOpenConns = 10

	config.JWT.TTLHours = 24
	config.Log.Level = "info"

	return &config
}

// LoadConfig reads the TOML file at filepath over the defaults. A missing
// file is not an error; environment overrides are applied last.
func LoadConfig(filepath string) (*Config, error) {
	config := Default()

	if _, err := toml.DecodeFile(filepath, config); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	// Deployments hand the database location over the environment
	if dsn := os.Getenv("WEBMAIL_DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	} else if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		config.Database.Driver = "postgres"
		config.Database.DSN = dsn
	}
	if secret := os.Getenv("WEBMAIL_JWT_SECRET"); secret != "" {
		config.JWT.Secret = secret
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	return config, nil
}

// Validate checks that the configuration can start a server
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}

	if len(c.JWT.Secret) < 16 {
		return fmt.Errorf("jwt secret must be at least 16 characters")
	}

	if c.JWT.TTLHours <= 0 {
		return fmt.Errorf("jwt ttl_hours must be positive")
	}

	return nil
}
