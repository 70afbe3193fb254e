package docdex

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/docdex/internal/config"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	persistence      config.PersistenceConfig
	readinessTimeout time.Duration

	planCacheSize int
	batchSize     int
	seed          *uint64

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithMemory keeps all data in process memory (default).
func WithMemory() Option {
	return optionFunc(func(c *clientConfig) {
		c.persistence.Driver = config.DriverMemory
	})
}

// WithValkey mirrors every write into a Valkey instance and reloads it on Open.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.persistence.Driver = config.DriverValkey
		c.persistence.Addrs = []string{addr}
		c.persistence.Password = password
	})
}

// WithRedis mirrors every write into a Redis instance and reloads it on Open.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.persistence.Driver = config.DriverRedis
		c.persistence.Addrs = []string{addr}
		c.persistence.Password = password
	})
}

// WithStandalone disables cluster topology discovery.
// Use for standalone Valkey/Redis instances.
func WithStandalone() Option {
	return optionFunc(func(c *clientConfig) {
		c.persistence.Standalone = true
	})
}

// WithMinio mirrors every write into an S3-compatible bucket. The bucket is
// created when missing.
func WithMinio(endpoint, bucket, accessKeyID, secretAccessKey string, useSSL bool) Option {
	return optionFunc(func(c *clientConfig) {
		c.persistence.Driver = config.DriverMinio
		c.persistence.Endpoint = endpoint
		c.persistence.Bucket = bucket
		c.persistence.AccessKeyID = accessKeyID
		c.persistence.SecretAccessKey = secretAccessKey
		c.persistence.UseSSL = useSSL
	})
}

// WithKeyPrefix namespaces persisted keys. Default: "docdex:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.persistence.KeyPrefix = prefix
	})
}

// WithCompression selects page compression: "zstd" (default), "lz4" or "none".
func WithCompression(name string) Option {
	return optionFunc(func(c *clientConfig) {
		c.persistence.Compression = name
	})
}

// WithReadinessTimeout bounds the initial connection wait. Default: 10s.
func WithReadinessTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.readinessTimeout = d
	})
}

// WithPlanCacheSize sets how many query shapes keep a cached plan.
func WithPlanCacheSize(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.planCacheSize = n
	})
}

// WithBatchSize sets how many documents a scan reads per lock acquisition.
func WithBatchSize(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.batchSize = n
	})
}

// WithSeed makes $sample deterministic.
func WithSeed(seed uint64) Option {
	return optionFunc(func(c *clientConfig) {
		c.seed = &seed
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
