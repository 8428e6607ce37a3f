package store

import "testing"

func TestNewStore(t *testing.T) {
	tests := []struct {
		backend string
		check   func(Store) bool
		wantErr bool
	}{
		{"", func(s Store) bool { _, ok := s.(*FileStore); return ok }, false},
		{BackendFile, func(s Store) bool { _, ok := s.(*FileStore); return ok }, false},
		{BackendMemory, func(s Store) bool { _, ok := s.(*MemoryStore); return ok }, false},
		{BackendRedis, nil, true}, // no client
		{"s3", nil, true},
	}

	for _, tt := range tests {
		s, err := NewStore(Config{Backend: tt.backend, BaseDir: t.TempDir()}, nil)
		if tt.wantErr {
			if err == nil {
				t.Errorf("backend %q: expected error", tt.backend)
			}
			continue
		}
		if err != nil {
			t.Errorf("backend %q: unexpected error %v", tt.backend, err)
			continue
		}
		if !tt.check(s) {
			t.Errorf("backend %q: unexpected store type %T", tt.backend, s)
		}
	}
}
