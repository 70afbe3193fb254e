package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/docdex/internal/db"
)

// --- client.go tests ---

func TestPing_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	err := s.Ping(context.Background())
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpPing {
		t.Fatalf("expected db.Error with op PING, got %v", err)
	}
}

func TestNewStore_RequiresAddrs(t *testing.T) {
	if _, err := NewStore(Config{}); err == nil {
		t.Fatal("expected error for empty addrs")
	}
}

// --- kv.go tests ---

func TestGet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "docdex:doc:users:k1")).
		Return(mock.Result(mock.RedisBlobString("\x00payload")))

	s := NewStoreForTest(c)
	got, err := s.Get(context.Background(), "docdex:doc:users:k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "\x00payload" {
		t.Errorf("got %q", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "missing")).
		Return(mock.Result(mock.RedisNil()))

	s := NewStoreForTest(c)
	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestGet_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "k")).
		Return(mock.ErrorResult(errors.New("conn reset")))

	s := NewStoreForTest(c)
	_, err := s.Get(context.Background(), "k")
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpGet {
		t.Fatalf("expected db.Error with op GET, got %v", err)
	}
}

func TestApply_MultiExec(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmds ...rueidis.Completed) []rueidis.RedisResult {
			want := []string{"MULTI", "DEL", "SET", "SET", "EXEC"}
			if len(cmds) != len(want) {
				t.Fatalf("expected %d commands, got %d", len(want), len(cmds))
			}
			for i, cmd := range cmds {
				if got := cmd.Commands()[0]; got != want[i] {
					t.Errorf("command %d = %s, want %s", i, got, want[i])
				}
			}
			return []rueidis.RedisResult{
				mock.Result(mock.RedisString("OK")),
				mock.Result(mock.RedisString("QUEUED")),
				mock.Result(mock.RedisString("QUEUED")),
				mock.Result(mock.RedisString("QUEUED")),
				mock.Result(mock.RedisArray(
					mock.RedisInt64(1),
					mock.RedisString("OK"),
					mock.RedisString("OK"),
				)),
			}
		})

	s := NewStoreForTest(c)
	err := s.Apply(context.Background(), db.Batch{
		Sets: []db.Entry{{Key: "a", Value: []byte("1")}, {Key: "b", Value: []byte("2")}},
		Dels: []string{"c"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApply_ExecReplyError(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisString("OK")),
			mock.Result(mock.RedisString("QUEUED")),
			mock.Result(mock.RedisArray(mock.RedisError("OOM command not allowed"))),
		})

	s := NewStoreForTest(c)
	err := s.Apply(context.Background(), db.Batch{Sets: []db.Entry{{Key: "a", Value: []byte("1")}}})
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpExec {
		t.Fatalf("expected db.Error with op EXEC, got %v", err)
	}
}

func TestApply_Empty(t *testing.T) {
	s := NewStoreForTest(nil) // client not called
	if err := s.Apply(context.Background(), db.Batch{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestScan_SinglePage(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SCAN" && cmd[3] == `docdex:col:\*`
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(0), // cursor=0 means done
			mock.RedisArray(mock.RedisString("key2"), mock.RedisString("key1")),
		)))

	s := NewStoreForTest(c)
	keys, err := s.Scan(context.Background(), "docdex:col:*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 || keys[0] != "key1" {
		t.Fatalf("expected sorted keys, got %v", keys)
	}
}

func TestScan_MultiPageDeduplicates(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	first := true
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SCAN"
		})).
		DoAndReturn(func(_ context.Context, _ rueidis.Completed) rueidis.RedisResult {
			if first {
				first = false
				return mock.Result(mock.RedisArray(
					mock.RedisInt64(42), // cursor=42 means more
					mock.RedisArray(mock.RedisString("key1")),
				))
			}
			return mock.Result(mock.RedisArray(
				mock.RedisInt64(0),
				mock.RedisArray(mock.RedisString("key1"), mock.RedisString("key2")),
			))
		}).Times(2)

	s := NewStoreForTest(c)
	keys, err := s.Scan(context.Background(), "prefix:")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
}

func TestEscapeGlob(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain:", "plain:"},
		{"a*b", `a\*b`},
		{"[x]?", `\[x\]\?`},
		{`back\slash`, `back\\slash`},
	}
	for _, tc := range tests {
		if got := escapeGlob(tc.in); got != tc.want {
			t.Errorf("escapeGlob(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
