package token

import (
	"github.com/google/uuid"
)

// Source produces participant tokens. Tokens are compared lexicographically
// and must almost certainly differ between participants.
type Source interface {
	NewToken() string
}

// SourceFunc adapts a plain function to a Source.
type SourceFunc func() string

func (f SourceFunc) NewToken() string {
	return f()
}

// UUIDSource issues UUIDv7 strings. The timestamp prefix keeps them time
// ordered, so among simultaneous contenders the later joiner wins ties.
type UUIDSource struct{}

func (UUIDSource) NewToken() string {
	id, err := uuid.NewV7()
	if err != nil {
		// v7 only fails when the random source does; fall back to v4
		return uuid.NewString()
	}
	return id.String()
}

// Default is the source used when a caller does not supply one.
var Default Source = UUIDSource{}

// Fixed returns a source that always yields t. Intended for tests that need
// a known tie-break order.
func Fixed(t string) Source {
	return SourceFunc(func() string { return t })
}

// Compare orders two tokens: -1 if a < b, 0 if equal, +1 if a > b.
func Compare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
