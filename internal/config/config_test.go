package config

import (
	"strings"
	"testing"
)

func TestValidate_Drivers(t *testing.T) {
	tests := []struct {
		name    string
		p       PersistenceConfig
		wantErr string
	}{
		{"memory", PersistenceConfig{Driver: DriverMemory, Compression: "zstd"}, ""},
		{"redis ok", PersistenceConfig{Driver: DriverRedis, Addrs: []string{"localhost:6379"}, Compression: "lz4"}, ""},
		{"valkey without addrs", PersistenceConfig{Driver: DriverValkey, Compression: "zstd"}, "persistence.addrs is required"},
		{"minio without bucket", PersistenceConfig{Driver: DriverMinio, Endpoint: "minio:9000", Compression: "zstd"}, "persistence.bucket"},
		{"minio ok", PersistenceConfig{Driver: DriverMinio, Endpoint: "minio:9000", Bucket: "b", Compression: "none"}, ""},
		{"unknown driver", PersistenceConfig{Driver: "sqlite", Compression: "zstd"}, "persistence.driver must be"},
		{"bad compression", PersistenceConfig{Driver: DriverMemory, Compression: "gzip"}, "persistence.compression must be"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{HTTP: HTTPConfig{Port: 8080}, Persistence: tt.p}
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Config{
		HTTP:        HTTPConfig{Port: 0},
		Persistence: PersistenceConfig{Driver: DriverMemory, Compression: "zstd"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 10 {
		t.Errorf("expected WriteTimeoutSec=10, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Persistence.Driver != DriverMemory {
		t.Errorf("expected Driver=memory, got %q", cfg.Persistence.Driver)
	}
	if cfg.Persistence.KeyPrefix != "docdex:" {
		t.Errorf("expected KeyPrefix='docdex:', got %q", cfg.Persistence.KeyPrefix)
	}
	if cfg.Persistence.Compression != "zstd" {
		t.Errorf("expected Compression=zstd, got %q", cfg.Persistence.Compression)
	}
	if cfg.Persistence.ReadinessTimeout != 10 {
		t.Errorf("expected ReadinessTimeout=10, got %d", cfg.Persistence.ReadinessTimeout)
	}
	if cfg.Engine.PlanCacheSize != 256 {
		t.Errorf("expected PlanCacheSize=256, got %d", cfg.Engine.PlanCacheSize)
	}
	if cfg.Engine.ScanBatchSize != 128 {
		t.Errorf("expected ScanBatchSize=128, got %d", cfg.Engine.ScanBatchSize)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:        HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Persistence: PersistenceConfig{Driver: DriverRedis, KeyPrefix: "custom:", Compression: "lz4"},
		Engine:      EngineConfig{PlanCacheSize: 16, ScanBatchSize: 4},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Persistence.Driver != DriverRedis || cfg.Persistence.KeyPrefix != "custom:" {
		t.Errorf("persistence overridden: %+v", cfg.Persistence)
	}
	if cfg.Engine.PlanCacheSize != 16 || cfg.Engine.ScanBatchSize != 4 {
		t.Errorf("engine overridden: %+v", cfg.Engine)
	}
}

func TestParse_ExpandsEnvVars(t *testing.T) {
	t.Setenv("DOCDEX_TEST_PORT", "9090")
	t.Setenv("DOCDEX_TEST_PASSWORD", "")

	cfg, err := Parse([]byte(`
http:
  port: ${DOCDEX_TEST_PORT}
persistence:
  driver: redis
  addrs: ["${DOCDEX_TEST_ADDR:-localhost:6379}"]
  password: ${DOCDEX_TEST_PASSWORD:-secret}
engine:
  sample_seed: 42
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}
	if len(cfg.Persistence.Addrs) != 1 || cfg.Persistence.Addrs[0] != "localhost:6379" {
		t.Errorf("unexpected addrs: %v", cfg.Persistence.Addrs)
	}
	if cfg.Persistence.Password != "secret" {
		t.Errorf("expected default password, got %q", cfg.Persistence.Password)
	}
	if cfg.Engine.SampleSeed == nil || *cfg.Engine.SampleSeed != 42 {
		t.Errorf("unexpected seed: %v", cfg.Engine.SampleSeed)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("http: [")); err == nil {
		t.Error("expected yaml error")
	}
	if _, err := Parse([]byte("http:\n  port: 8080\npersistence:\n  driver: nope\n")); err == nil {
		t.Error("expected validation error")
	}
}

func TestLoad_LocalConfig(t *testing.T) {
	cfg, err := Load("local")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port == 0 {
		t.Error("expected port from local.yaml")
	}
}
