package main

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// BotTag is the push name used to find this bot's device in the store.
	BotTag      string `env:"BOT_TAG" envDefault:"ESPIAR_BOT"`
	DatabaseURL string `env:"DATABASE_URL"`
	Port        string `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"INFO"`
	OwnerNumber string `env:"OWNER_NUMBER"`

	MongoURI        string        `env:"MONGO_URI"`
	MongoDB         string        `env:"MONGO_DB" envDefault:"espiar"`
	RedisURL        string        `env:"REDIS_URL"`
	PremiumCacheTTL time.Duration `env:"PREMIUM_CACHE_TTL" envDefault:"5m"`
	PremiumFile     string        `env:"PREMIUM_FILE" envDefault:"premium.yaml"`

	AdminToken string `env:"ADMIN_TOKEN"`

	MediaReupload        bool          `env:"MEDIA_REUPLOAD" envDefault:"true"`
	MediaReuploadTimeout time.Duration `env:"MEDIA_REUPLOAD_TIMEOUT" envDefault:"30s"`
	PairWait             time.Duration `env:"PAIR_WAIT" envDefault:"10s"`
}

// LoadConfig reads the environment, after loading a .env file if present.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Store returns the sqlstore dialect and address for the device session
// database, falling back to a local SQLite file.
func (c *Config) Store() (dialect, address string) {
	if c.DatabaseURL == "" {
		return "sqlite3", "file:espiar.db?_foreign_keys=on"
	}
	return "postgres", c.DatabaseURL
}
