package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		ListenAddr      string   `env:"LISTEN_ADDR" envDefault:"[::]:3333"`
		LogLevel        string   `env:"LOG_LEVEL" envDefault:"info"`
		BusCapacity     int      `env:"BUS_CAPACITY" envDefault:"16"`
		MaxPayloadBytes int64    `env:"MAX_PAYLOAD_BYTES" envDefault:"5000000"`
		AllowedOrigins  []string `env:"ALLOWED_ORIGINS" envSeparator:","`
		Storage         Storage
	}

	// Storage selects and configures the canvas store backend.
	Storage struct {
		Type             string `env:"STORAGE_TYPE" envDefault:"sqlite"`
		DBPath           string `env:"DB_PATH" envDefault:"/tmp/odaichat.db"`
		LocalStoragePath string `env:"LOCAL_STORAGE_PATH" envDefault:"./data"`
		S3Bucket         string `env:"S3_BUCKET_NAME"`
		S3Prefix         string `env:"S3_PREFIX" envDefault:"canvases/"`
	}
)

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the .env file.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}
	return Parse()
}

// Parse reads the configuration from the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.BusCapacity <= 0 {
		return Config{}, fmt.Errorf("parse env: BUS_CAPACITY must be positive, got %d", cfg.BusCapacity)
	}
	if cfg.MaxPayloadBytes <= 0 {
		return Config{}, fmt.Errorf("parse env: MAX_PAYLOAD_BYTES must be positive, got %d", cfg.MaxPayloadBytes)
	}
	return cfg, nil
}
