package redis

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/docdex/internal/db"
)

const scanCount = 500

// Get retrieves a value by key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := s.b().Get().Key(key).Build()
	data, err := s.do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return data, nil
}

// Apply writes a batch inside MULTI/EXEC so it lands as one unit.
func (s *Store) Apply(ctx context.Context, b db.Batch) error {
	if b.Empty() {
		return nil
	}

	cmds := make(rueidis.Commands, 0, len(b.Sets)+3)
	cmds = append(cmds, s.b().Multi().Build())
	if len(b.Dels) > 0 {
		cmds = append(cmds, s.b().Del().Key(b.Dels...).Build())
	}
	for _, e := range b.Sets {
		cmds = append(cmds, s.b().Set().Key(e.Key).Value(rueidis.BinaryString(e.Value)).Build())
	}
	cmds = append(cmds, s.b().Exec().Build())

	results := s.client.DoMulti(ctx, cmds...)
	for _, res := range results[:len(results)-1] {
		if err := res.Error(); err != nil {
			return &db.Error{Op: db.OpExec, Err: err}
		}
	}
	replies, err := results[len(results)-1].ToArray()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return &db.Error{Op: db.OpExec, Err: errors.New("transaction aborted")}
		}
		return &db.Error{Op: db.OpExec, Err: err}
	}
	for _, m := range replies {
		if err := m.Error(); err != nil {
			return &db.Error{Op: db.OpExec, Err: err}
		}
	}
	return nil
}

// Scan lists keys starting with prefix.
func (s *Store) Scan(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeGlob(prefix) + "*"
	var keys []string
	var cursor uint64

	for {
		cmd := s.b().Scan().Cursor(cursor).Match(pattern).Count(scanCount).Build()
		res, err := s.do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, &db.Error{Op: db.OpScan, Err: err}
		}
		keys = append(keys, res.Elements...)
		cursor = res.Cursor
		if cursor == 0 {
			break
		}
	}

	// SCAN may return a key more than once.
	slices.Sort(keys)
	return slices.Compact(keys), nil
}

// escapeGlob quotes the characters SCAN MATCH treats as wildcards.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
