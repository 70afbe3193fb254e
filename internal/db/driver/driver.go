// Package driver builds the configured page store.
package driver

import (
	"fmt"

	"github.com/kailas-cloud/docdex/internal/config"
	"github.com/kailas-cloud/docdex/internal/db"
	"github.com/kailas-cloud/docdex/internal/db/memory"
	dbMinio "github.com/kailas-cloud/docdex/internal/db/minio"
	dbRedis "github.com/kailas-cloud/docdex/internal/db/redis"
)

// New creates the store selected by cfg.Driver. Valkey speaks the Redis
// protocol and shares its store.
func New(cfg config.PersistenceConfig) (db.Store, error) {
	switch cfg.Driver {
	case "", config.DriverMemory:
		return memory.NewStore(), nil
	case config.DriverRedis, config.DriverValkey:
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:      cfg.Addrs,
			Username:   cfg.Username,
			Password:   cfg.Password,
			DB:         cfg.DB,
			Standalone: cfg.Standalone,
		})
		if err != nil {
			return nil, fmt.Errorf("%s store: %w", cfg.Driver, err)
		}
		return s, nil
	case config.DriverMinio:
		s, err := dbMinio.NewStore(dbMinio.Config{
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			UseSSL:          cfg.UseSSL,
			Bucket:          cfg.Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("minio store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown persistence driver %q", cfg.Driver)
	}
}
