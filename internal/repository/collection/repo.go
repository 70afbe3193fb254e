// Package collection stores collection metadata: options, validator and
// secondary index definitions.
package collection

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kailas-cloud/docdex/internal/catalog"
	"github.com/kailas-cloud/docdex/internal/db"
	"github.com/kailas-cloud/docdex/internal/domain"
)

// store is the consumer interface for collections (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Scan(ctx context.Context, prefix string) ([]string, error)
}

// Repo reads and lays out collection metadata.
type Repo struct {
	store  store
	prefix string
}

// New creates a collection repository. prefix namespaces every key.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

func (r *Repo) keyPrefix() string { return r.prefix + "col:" }

// Key returns the metadata key of a collection.
func (r *Repo) Key(name string) string { return r.keyPrefix() + name }

// Entry encodes metadata into a store write.
func (r *Repo) Entry(m catalog.Metadata) (db.Entry, error) {
	data, err := encodeMeta(m)
	if err != nil {
		return db.Entry{}, err
	}
	return db.Entry{Key: r.Key(m.Collection.Name()), Value: data}, nil
}

// Get returns the metadata of one collection.
func (r *Repo) Get(ctx context.Context, name string) (catalog.Metadata, error) {
	data, err := r.store.Get(ctx, r.Key(name))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return catalog.Metadata{}, domain.ErrCollectionNotFound
		}
		return catalog.Metadata{}, fmt.Errorf("get %s: %w", r.Key(name), err)
	}
	return decodeMeta(data)
}

// List returns the metadata of every stored collection, sorted by name.
func (r *Repo) List(ctx context.Context) ([]catalog.Metadata, error) {
	keys, err := r.store.Scan(ctx, r.keyPrefix())
	if err != nil {
		return nil, fmt.Errorf("scan collections: %w", err)
	}
	out := make([]catalog.Metadata, 0, len(keys))
	for _, key := range keys {
		data, err := r.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, db.ErrKeyNotFound) {
				// dropped between SCAN and GET
				continue
			}
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		m, err := decodeMeta(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Collection.Name() < out[j].Collection.Name()
	})
	return out, nil
}
