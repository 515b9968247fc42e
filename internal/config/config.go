package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
)

// EnvPrefix is stripped from environment variables before they are mapped
// onto config keys, e.g. CLASSIFIER_SERVER_ADDR -> server.addr.
const EnvPrefix = "CLASSIFIER_"

// ServerConfig defines the prediction service listeners.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	GRPCAddr        string        `koanf:"grpcaddr"`
	ShutdownTimeout time.Duration `koanf:"shutdowntimeout"`
	MaxUploadBytes  int64         `koanf:"maxuploadbytes"`
	AllowOrigins    []string      `koanf:"alloworigins"`
	Version         string        `koanf:"version"`
}

// ModelConfig points at the artifact produced by the training pipeline.
type ModelConfig struct {
	Path          string `koanf:"path"`
	Metadata      string `koanf:"metadata"`
	SharedLibrary string `koanf:"sharedlibrary"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string `koanf:"level"`
}

// DatabaseConfig enables prediction history when DSN is set.
type DatabaseConfig struct {
	DSN          string        `koanf:"dsn"`
	MaxIdleConns int           `koanf:"maxidleconns"`
	MaxOpenConns int           `koanf:"maxopenconns"`
	ConnLifetime time.Duration `koanf:"connlifetime"`
}

// RedisConfig enables the prediction cache when Addr is set.
type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	TTL      time.Duration `koanf:"ttl"`
}

// FormConfig configures the upload form front end.
type FormConfig struct {
	Addr       string        `koanf:"addr"`
	PredictURL string        `koanf:"predicturl"`
	HealthAddr string        `koanf:"healthaddr"`
	Timeout    time.Duration `koanf:"timeout"`
}

// Config is the full process configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Model    ModelConfig    `koanf:"model"`
	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Form     FormConfig     `koanf:"form"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.addr":            ":8000",
		"server.grpcaddr":        "",
		"server.shutdowntimeout": "15s",
		"server.maxuploadbytes":  int64(10 << 20),
		"server.alloworigins":    []string{"*"},
		"server.version":         "1.0.0",
		"model.path":             "models/model.onnx",
		"model.metadata":         "",
		"log.level":              "info",
		"database.maxidleconns":  5,
		"database.maxopenconns":  10,
		"database.connlifetime":  "1h",
		"redis.ttl":              "10m",
		"form.addr":              ":5000",
		"form.predicturl":        "http://localhost:8000/predict",
		"form.timeout":           "30s",
	}
}

// Load assembles the configuration from defaults, an optional YAML file and
// CLASSIFIER_* environment variables, in increasing order of precedence.
func Load(filePath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if filePath != "" {
		if err := k.Load(file.Provider(filePath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", filePath, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(s string, v string) (string, any) {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
		if strings.Contains(v, ",") {
			return key, strings.Split(strings.TrimSpace(v), ",")
		}
		return key, v
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields the services cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.maxuploadbytes must be positive"))
	}
	if c.Model.Path == "" {
		errs = append(errs, errors.New("model.path is required"))
	}
	if c.Redis.Addr != "" && c.Redis.TTL <= 0 {
		errs = append(errs, errors.New("redis.ttl must be positive when redis is enabled"))
	}
	return errors.Join(errs...)
}
