// Package config loads the docdex server configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persistence drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverValkey = "valkey"
	DriverMinio  = "minio"
)

// Config holds the docdex server configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Auth        AuthConfig        `yaml:"auth"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Engine      EngineConfig      `yaml:"engine"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds admin API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds admin HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// PersistenceConfig selects and configures the page store.
type PersistenceConfig struct {
	Driver           string `yaml:"driver"` // memory, redis, valkey, minio (default: memory)
	KeyPrefix        string `yaml:"key_prefix"`
	Compression      string `yaml:"compression"` // zstd, lz4, none (default: zstd)
	ReadinessTimeout int    `yaml:"readiness_timeout_sec"`

	// redis, valkey
	Addrs      []string `yaml:"addrs"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	DB         int      `yaml:"db"`
	Standalone bool     `yaml:"standalone"`

	// minio
	Endpoint        string `yaml:"endpoint"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
}

// EngineConfig tunes the query engine.
type EngineConfig struct {
	PlanCacheSize int `yaml:"plan_cache_size"`
	ScanBatchSize int `yaml:"scan_batch_size"`
	// SampleSeed makes $sample deterministic when set.
	SampleSeed *uint64 `yaml:"sample_seed"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes YAML, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Persistence.Driver == "" {
		c.Persistence.Driver = DriverMemory
	}
	if c.Persistence.KeyPrefix == "" {
		c.Persistence.KeyPrefix = "docdex:"
	}
	if c.Persistence.Compression == "" {
		c.Persistence.Compression = "zstd"
	}
	if c.Persistence.ReadinessTimeout <= 0 {
		c.Persistence.ReadinessTimeout = 10
	}
	if c.Engine.PlanCacheSize <= 0 {
		c.Engine.PlanCacheSize = 256
	}
	if c.Engine.ScanBatchSize <= 0 {
		c.Engine.ScanBatchSize = 128
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	p := c.Persistence
	switch p.Driver {
	case DriverMemory:
	case DriverRedis, DriverValkey:
		if len(p.Addrs) == 0 {
			return fmt.Errorf("persistence.addrs is required for driver %q", p.Driver)
		}
	case DriverMinio:
		if p.Endpoint == "" || p.Bucket == "" {
			return fmt.Errorf("persistence.endpoint and persistence.bucket are required for driver %q", p.Driver)
		}
	default:
		return fmt.Errorf("persistence.driver must be memory, redis, valkey or minio, got %q", p.Driver)
	}
	switch p.Compression {
	case "zstd", "lz4", "none":
	default:
		return fmt.Errorf("persistence.compression must be zstd, lz4 or none, got %q", p.Compression)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
