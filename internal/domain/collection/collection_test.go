package collection

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
)

func TestNew_Valid(t *testing.T) {
	before := time.Now().UnixMilli()

	col, err := New("my.collection-1", Options{Capped: &Capped{Size: 4096, Max: 10}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after := time.Now().UnixMilli()

	if col.Name() != "my.collection-1" {
		t.Errorf("Name() = %q", col.Name())
	}
	if !col.IsCapped() || col.Capped().Max != 10 {
		t.Errorf("Capped() = %+v", col.Capped())
	}
	if col.Validator() != nil {
		t.Error("Validator() should be nil")
	}
	if col.CreatedAt() < before || col.CreatedAt() > after {
		t.Errorf("CreatedAt() = %d, want between %d and %d", col.CreatedAt(), before, after)
	}
	if col.Revision() != 1 {
		t.Errorf("Revision() = %d, want 1", col.Revision())
	}
}

func TestNew_InvalidNames(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"too long", strings.Repeat("a", MaxNameLength+1)},
		{"space", "my collection"},
		{"dollar", "a$b"},
		{"system prefix", "system.users"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.in, Options{})
			if !errors.Is(err, domain.ErrInvalidSpec) {
				t.Errorf("expected ErrInvalidSpec, got %v", err)
			}
		})
	}
}

func TestNew_MaxLengthAccepted(t *testing.T) {
	if _, err := New(strings.Repeat("a", MaxNameLength), Options{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_InvalidCapped(t *testing.T) {
	for _, c := range []*Capped{{Size: 0}, {Size: 10, Max: -1}} {
		if _, err := New("c", Options{Capped: c}); !errors.Is(err, domain.ErrInvalidSpec) {
			t.Errorf("capped %+v: expected ErrInvalidSpec, got %v", c, err)
		}
	}
}

func TestValidatorDefaults(t *testing.T) {
	col, err := New("c", Options{Validator: &Validator{Rules: document.New()}})
	if err != nil {
		t.Fatal(err)
	}
	v := col.Validator()
	if v.Action != ActionError || v.Level != LevelStrict {
		t.Errorf("defaults = %s/%s, want error/strict", v.Action, v.Level)
	}

	if _, err := New("c", Options{Validator: &Validator{Rules: document.New(), Action: "ignore"}}); !errors.Is(err, domain.ErrInvalidSpec) {
		t.Errorf("expected ErrInvalidSpec for bad action, got %v", err)
	}
	if _, err := New("c", Options{Validator: &Validator{}}); !errors.Is(err, domain.ErrInvalidSpec) {
		t.Errorf("expected ErrInvalidSpec for missing rules, got %v", err)
	}
}

func TestWithValidator_BumpsRevision(t *testing.T) {
	col, _ := New("c", Options{})
	next, err := col.WithValidator(&Validator{Rules: document.New(), Action: ActionWarn, Level: LevelModerate})
	if err != nil {
		t.Fatal(err)
	}
	if next.Revision() != 2 || next.Validator().Action != ActionWarn {
		t.Errorf("got revision %d action %s", next.Revision(), next.Validator().Action)
	}
	if col.Validator() != nil {
		t.Error("original collection mutated")
	}
	cleared, err := next.WithValidator(nil)
	if err != nil || cleared.Validator() != nil {
		t.Errorf("removing validator failed: %v", err)
	}
}

func TestReconstruct(t *testing.T) {
	col := Reconstruct("c", nil, nil, 1000, 3)
	if col.CreatedAt() != 1000 || col.Revision() != 3 || col.IsCapped() {
		t.Errorf("Reconstruct mismatch: %+v", col)
	}
}
