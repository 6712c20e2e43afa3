// Package config loads service settings from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/Brownie44l1/leaf-api/internal/history"
	"github.com/Brownie44l1/leaf-api/internal/logging"
	"github.com/Brownie44l1/leaf-api/internal/postprocess"
)

type Config struct {
	Server  ServerConfig        `yaml:"server"`
	Model   ModelConfig         `yaml:"model"`
	Catalog postprocess.Catalog `yaml:"catalog"`
	History history.Config      `yaml:"history"`
	Cache   CacheConfig         `yaml:"cache"`
	Log     logging.Config      `yaml:"log"`
}

type ServerConfig struct {
	Addr           string          `yaml:"addr"`
	ReadTimeout    time.Duration   `yaml:"read_timeout"`
	WriteTimeout   time.Duration   `yaml:"write_timeout"`
	MaxUploadMB    int64           `yaml:"max_upload_mb"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig is a token bucket; RPS <= 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ModelConfig struct {
	Path        string `yaml:"path"`
	Metadata    string `yaml:"metadata"`
	LibraryPath string `yaml:"library_path"`
}

type CacheConfig struct {
	Size int `yaml:"size"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxUploadMB:    10,
			AllowedOrigins: []string{"*"},
			RateLimit:      RateLimitConfig{RPS: 10, Burst: 20},
		},
		Model: ModelConfig{
			Path:     "models/leaf_disease_model.onnx",
			Metadata: "models/model_metadata.json",
		},
		Catalog: postprocess.DefaultCatalog(),
		History: history.Config{
			Driver:         history.DriverSQLite,
			DSN:            "data/history.db",
			ConnectTimeout: 30 * time.Second,
			ListLimit:      history.DefaultListLimit,
		},
		Cache: CacheConfig{Size: 256},
		Log:   logging.Config{Level: "info", Format: "console", MaxSizeMB: 50, MaxBackups: 3, MaxAgeDays: 28},
	}
}

// Load reads .env (if present), then the YAML file at path (if non-empty),
// then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return fmt.Errorf("PORT %q is not a number", port)
		}
		c.Server.Addr = ":" + port
	}
	overrides := map[string]*string{
		"LEAF_ADDR":           &c.Server.Addr,
		"LEAF_MODEL_PATH":     &c.Model.Path,
		"LEAF_MODEL_METADATA": &c.Model.Metadata,
		"LEAF_ONNX_LIBRARY":   &c.Model.LibraryPath,
		"LEAF_DB_DRIVER":      &c.History.Driver,
		"LEAF_DB_DSN":         &c.History.DSN,
		"LEAF_LOG_LEVEL":      &c.Log.Level,
	}
	for key, dst := range overrides {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	return nil
}

// Validate checks the settings once at startup.
func (c *Config) Validate() error {
	switch c.History.Driver {
	case history.DriverSQLite, history.DriverPostgres, history.DriverMemory:
	default:
		return fmt.Errorf("history.driver: unknown driver %q", c.History.Driver)
	}
	if c.History.Driver != history.DriverMemory && c.History.DSN == "" {
		return fmt.Errorf("history.dsn is required for driver %q", c.History.Driver)
	}
	if c.History.ListLimit <= 0 || c.History.ListLimit > history.DefaultListLimit {
		return fmt.Errorf("history.list_limit must be in 1..%d, got %d", history.DefaultListLimit, c.History.ListLimit)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("cache.size must not be negative")
	}
	if err := c.Catalog.Validate(); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	return nil
}
