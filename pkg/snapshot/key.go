package snapshot

import (
	"context"
	"net/http"
)

type keyKind int

const (
	keyLiteral keyKind = iota + 1
	keyStructured
)

// Key is what a naming rule returns: either a literal snapshot name used
// verbatim, or any JSON-serializable value that gets hashed.
type Key struct {
	kind    keyKind
	literal string
	value   any
}

// Literal names the snapshot file directly.
func Literal(name string) Key {
	return Key{kind: keyLiteral, literal: name}
}

// Structured hashes v's canonical JSON into the snapshot name.
func Structured(v any) Key {
	return Key{kind: keyStructured, value: v}
}

// IsZero reports whether k was never set.
func (k Key) IsZero() bool { return k.kind == 0 }

// NameFunc derives the snapshot key for a request. The request it receives
// is a clone whose body can be read freely.
type NameFunc func(ctx context.Context, req *http.Request) (Key, error)
