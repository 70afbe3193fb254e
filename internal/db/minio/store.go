// Package minio implements db.Store on an S3-compatible object store. Each
// key is one object under the configured prefix.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kailas-cloud/docdex/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Config holds object store connection settings.
type Config struct {
	Endpoint        string // e.g. "minio:9000"
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	// Prefix is prepended to every object name.
	Prefix string
}

// Store implements db.Store with one object per key. Object stores have no
// multi-object transactions, so Apply is not atomic across keys.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewStore connects to the object store. The bucket is created on first
// WaitForReady if it does not exist.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Store{client: mc, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *Store) object(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *Store) key(object string) string {
	if s.prefix == "" {
		return object
	}
	return strings.TrimPrefix(strings.TrimPrefix(object, s.prefix), "/")
}

// Ping checks that the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return &db.Error{Op: db.OpBucket, Err: err}
	}
	if !ok {
		return &db.Error{Op: db.OpBucket, Err: fmt.Errorf("bucket %q does not exist", s.bucket)}
	}
	return nil
}

// EnsureBucket creates the bucket if it does not exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return &db.Error{Op: db.OpBucket, Err: err}
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return &db.Error{Op: db.OpBucket, Err: err}
	}
	return nil
}

// Get reads the object stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.object(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.readErr(err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.readErr(err)
	}
	return data, nil
}

func (s *Store) readErr(err error) error {
	if isNotFound(err) {
		return db.ErrKeyNotFound
	}
	return &db.Error{Op: db.OpGet, Err: err}
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// Apply removes then uploads objects one by one.
func (s *Store) Apply(ctx context.Context, b db.Batch) error {
	for _, k := range b.Dels {
		err := s.client.RemoveObject(ctx, s.bucket, s.object(k), minio.RemoveObjectOptions{})
		if err != nil && !isNotFound(err) {
			return &db.Error{Op: db.OpDel, Err: fmt.Errorf("key %s: %w", k, err)}
		}
	}
	for _, e := range b.Sets {
		_, err := s.client.PutObject(ctx, s.bucket, s.object(e.Key),
			bytes.NewReader(e.Value), int64(len(e.Value)),
			minio.PutObjectOptions{ContentType: "application/octet-stream"})
		if err != nil {
			return &db.Error{Op: db.OpSet, Err: fmt.Errorf("key %s: %w", e.Key, err)}
		}
	}
	return nil
}

// Scan lists keys starting with prefix in ascending order.
func (s *Store) Scan(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.object(prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, &db.Error{Op: db.OpScan, Err: obj.Err}
		}
		if k := s.key(obj.Key); k != "" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Close is a no-op; the client holds no long-lived connections.
func (s *Store) Close() {}

// WaitForReady creates the bucket if needed and polls it until reachable.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		if err := s.EnsureBucket(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for object store: %w", ctx.Err())
		case <-time.After(250 * time.Millisecond):
		}
	}
}
