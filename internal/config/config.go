// Package config loads the runtime configuration for the webp-converter
// server and CLI.
//
// Values are layered, later sources winning:
//
//	defaults < config file < environment variables < command-line flags
//
// Config files may be YAML (.yaml/.yml, parsed with gopkg.in/yaml.v3) or
// JSON with comments (.json/.jsonc, stripped with github.com/tidwall/jsonc
// and parsed with encoding/json). Flags are applied by the cli package after
// Load returns.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/addiskers/webp/internal/model"
)

const (
	// DefaultHost binds every interface, as a container entry point must.
	DefaultHost = "0.0.0.0"

	// DefaultPort is the listening port declared by the container image.
	DefaultPort = 5008

	// DefaultSecretKey signs the flash-message cookie during development.
	// Deployments are expected to override it via SECRET_KEY.
	DefaultSecretKey = "dev-secret"

	// DefaultMaxContentLength caps a single upload request at 64 MiB.
	DefaultMaxContentLength int64 = 64 * 1024 * 1024

	// DefaultQuality is the lossy WebP quality factor.
	DefaultQuality = 95
)

// Environment variable names read by Load.
const (
	EnvHost             = "HOST"
	EnvPort             = "PORT"
	EnvSecretKey        = "SECRET_KEY"
	EnvMaxContentLength = "MAX_CONTENT_LENGTH"
	EnvQuality          = "WEBP_QUALITY"
	EnvWorkers          = "WEBP_WORKERS"
	EnvLogLevel         = "LOG_LEVEL"
	EnvLogFormat        = "LOG_FORMAT"
)

// Config holds every tunable of the server and conversion pipeline.
// The yaml and json tags define the config file schema.
type Config struct {
	// Host is the address the HTTP server binds to.
	Host string `yaml:"host" json:"host"`

	// Port is the TCP port the HTTP server listens on.
	Port int `yaml:"port" json:"port"`

	// SecretKey signs the session cookie that carries flash messages.
	SecretKey string `yaml:"secretKey" json:"secretKey"`

	// MaxContentLength is the maximum accepted request body in bytes.
	// Larger uploads are rejected with 413.
	MaxContentLength int64 `yaml:"maxContentLength" json:"maxContentLength"`

	// Quality is the lossy WebP quality factor (0-100).
	Quality int `yaml:"quality" json:"quality"`

	// Lossless switches WebP encoding to lossless mode.
	Lossless bool `yaml:"lossless" json:"lossless"`

	// Workers bounds concurrent conversions per request. 0 means GOMAXPROCS.
	Workers int `yaml:"workers" json:"workers"`

	// LogLevel is a logrus level name (debug, info, warn, error).
	LogLevel string `yaml:"logLevel" json:"logLevel"`

	// LogFormat selects the logrus formatter: "text" or "json".
	LogFormat string `yaml:"logFormat" json:"logFormat"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host:             DefaultHost,
		Port:             DefaultPort,
		SecretKey:        DefaultSecretKey,
		MaxContentLength: DefaultMaxContentLength,
		Quality:          DefaultQuality,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load builds a Config from defaults, the optional config file at path and
// the process environment. An empty path skips the file layer.
//
// Returns a CLIError with ExitInvalidConfig if the file cannot be parsed,
// an environment variable is malformed, or the result fails Validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidConfig, "invalid environment", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidConfig, "invalid configuration", err)
	}
	return cfg, nil
}

// loadFile overlays the contents of a YAML or JSONC file onto cfg.
// Fields absent from the file keep their current values.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.WrapCLIError(model.ExitInvalidConfig,
				fmt.Sprintf("config file not found: %s", path), err)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return model.WrapCLIError(model.ExitInvalidConfig,
				fmt.Sprintf("failed to parse %s", path), err)
		}
	case ".json", ".jsonc":
		// Comments and trailing commas are allowed in JSON config files.
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return model.WrapCLIError(model.ExitInvalidConfig,
				fmt.Sprintf("failed to parse %s", path), err)
		}
	default:
		return model.NewCLIError(model.ExitInvalidConfig,
			fmt.Sprintf("unsupported config file extension %q (valid: .yaml, .yml, .json, .jsonc)", filepath.Ext(path)))
	}
	return nil
}

// lookupFunc matches os.LookupEnv; tests substitute a map-backed version.
type lookupFunc func(key string) (string, bool)

// applyEnv overlays environment variables onto cfg. Unset variables are
// ignored; set-but-malformed numeric variables are errors.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	if v, ok := lookup(EnvHost); ok && v != "" {
		cfg.Host = v
	}
	if v, ok := lookup(EnvSecretKey); ok && v != "" {
		cfg.SecretKey = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		cfg.LogFormat = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvPort, &cfg.Port},
		{EnvQuality, &cfg.Quality},
		{EnvWorkers, &cfg.Workers},
	}
	for _, e := range ints {
		v, ok := lookup(e.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s=%q is not an integer", e.key, v)
		}
		*e.dst = n
	}

	if v, ok := lookup(EnvMaxContentLength); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s=%q is not an integer", EnvMaxContentLength, v)
		}
		cfg.MaxContentLength = n
	}
	return nil
}

// Validate checks ranges and enumerations. It collects every problem so a
// misconfigured deployment sees all of them at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Port < 1 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range (1-65535)", c.Port))
	}
	if c.Quality < 0 || c.Quality > 100 {
		problems = append(problems, fmt.Sprintf("quality %d out of range (0-100)", c.Quality))
	}
	if c.MaxContentLength <= 0 {
		problems = append(problems, fmt.Sprintf("maxContentLength %d must be positive", c.MaxContentLength))
	}
	if c.Workers < 0 {
		problems = append(problems, fmt.Sprintf("workers %d must not be negative", c.Workers))
	}
	if c.SecretKey == "" {
		problems = append(problems, "secretKey must not be empty")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("logFormat %q invalid (valid: text, json)", c.LogFormat))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}
