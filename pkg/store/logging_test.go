package store

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggingStoreResults(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	inner := NewMemoryStore("mem")
	s := NewLoggingStore(inner, zap.New(core))
	ctx := context.Background()

	missing := s.Locate("x.test", "/", "missing")
	corrupt := s.Locate("x.test", "/", "corrupt")
	good := s.Locate("x.test", "/", "good")
	inner.PutRaw(corrupt, []byte("nope"))

	if err := s.Write(ctx, good, testSnapshot("ok")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := s.Read(ctx, good); err != nil {
		t.Fatalf("Read good: %v", err)
	}
	if _, err := s.Read(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var parseErr *ParseError
	if _, err := s.Read(ctx, corrupt); !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError to pass through, got %v", err)
	}

	results := map[string]int{}
	for _, e := range logs.FilterMessage("snapshot_read").All() {
		results[e.ContextMap()["lookup_result"].(string)]++
	}
	for _, want := range []string{"hit", "miss", "parse_error"} {
		if results[want] != 1 {
			t.Fatalf("expected one %s read log, got %v", want, results)
		}
	}

	warns := logs.FilterMessage("snapshot_read").FilterLevelExact(zapcore.WarnLevel).All()
	if len(warns) != 1 {
		t.Fatalf("parse errors should be logged at warn, got %d warn entries", len(warns))
	}

	writes := logs.FilterMessage("snapshot_write").All()
	if len(writes) != 1 || writes[0].ContextMap()["fingerprint"] != "good" {
		t.Fatalf("unexpected write logs: %v", writes)
	}
}

func TestLookupResult(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "hit"},
		{ErrNotFound, "miss"},
		{&ParseError{Location: "x", Err: errors.New("bad")}, "parse_error"},
		{errors.New("io"), "error"},
	}
	for _, tt := range tests {
		if got := lookupResult(tt.err); got != tt.want {
			t.Errorf("lookupResult(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
