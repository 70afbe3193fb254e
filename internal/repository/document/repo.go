package document

import (
	"context"
	"encoding/base64"
	"fmt"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/docdex/internal/catalog"
	"github.com/kailas-cloud/docdex/internal/db"
	domdoc "github.com/kailas-cloud/docdex/internal/domain/document"
)

// loadConcurrency bounds parallel page reads per collection.
const loadConcurrency = 16

// store is the consumer interface for pages (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Scan(ctx context.Context, prefix string) ([]string, error)
}

// Repo reads and lays out document pages.
type Repo struct {
	store  store
	codec  Codec
	prefix string
}

// New creates a page repository. prefix namespaces every key.
func New(s store, codec Codec, prefix string) *Repo {
	return &Repo{store: s, codec: codec, prefix: prefix}
}

// Prefix returns the key prefix shared by every page of a collection.
func (r *Repo) Prefix(collectionName string) string {
	return r.prefix + "doc:" + collectionName + ":"
}

// Key returns the page key for a canonical id key. The id key is encoded
// because it may contain any byte.
func (r *Repo) Key(collectionName, idKey string) string {
	return r.Prefix(collectionName) + base64.RawURLEncoding.EncodeToString([]byte(idKey))
}

// Entry encodes a page into a store write.
func (r *Repo) Entry(collectionName string, p catalog.Page) (db.Entry, error) {
	data, err := r.codec.Encode(p)
	if err != nil {
		return db.Entry{}, fmt.Errorf("encode page %s: %w", p.Doc.IDKey(), err)
	}
	return db.Entry{Key: r.Key(collectionName, p.Doc.IDKey()), Value: data}, nil
}

// Keys lists every page key of a collection.
func (r *Repo) Keys(ctx context.Context, collectionName string) ([]string, error) {
	keys, err := r.store.Scan(ctx, r.Prefix(collectionName))
	if err != nil {
		return nil, fmt.Errorf("scan pages of %s: %w", collectionName, err)
	}
	return keys, nil
}

// Load reads every page of a collection in parallel. Order is unspecified.
func (r *Repo) Load(ctx context.Context, collectionName string) ([]catalog.Page, error) {
	keys, err := r.Keys(ctx, collectionName)
	if err != nil {
		return nil, err
	}
	pages := make([]catalog.Page, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			data, err := r.store.Get(gctx, key)
			if err != nil {
				return fmt.Errorf("get %s: %w", key, err)
			}
			p, err := r.codec.Decode(data)
			if err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
			pages[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

// MarshalDocument encodes a standalone document, keeping value kinds.
func MarshalDocument(d *domdoc.Document) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(docToRows(d))
}

// UnmarshalDocument decodes a document written by MarshalDocument.
func UnmarshalDocument(data []byte) (*domdoc.Document, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var rows []fieldRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return rowsToDoc(rows)
}
