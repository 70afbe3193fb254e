package db

import (
	"context"
	"fmt"
	"time"
)

// Store is the page store behind the engine: opaque values under string keys.
type Store interface {
	Pinger
	Get(ctx context.Context, key string) ([]byte, error)
	// Apply writes a batch. Backends that support it apply the batch
	// atomically; deletes run before sets.
	Apply(ctx context.Context, b Batch) error
	// Scan lists every key starting with prefix.
	Scan(ctx context.Context, prefix string) ([]string, error)
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Entry is one key and value to write.
type Entry struct {
	Key   string
	Value []byte
}

// Batch is a set of writes applied together.
type Batch struct {
	Sets []Entry
	Dels []string
}

// Empty reports whether the batch writes nothing.
func (b Batch) Empty() bool { return len(b.Sets) == 0 && len(b.Dels) == 0 }

// WaitForReady polls p until it responds or timeout expires.
func WaitForReady(ctx context.Context, p Pinger, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := p.Ping(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
