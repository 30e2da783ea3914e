package token_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	. "leaderbus/pkg/token"
)

func TestUUIDSource_Unique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		tok := Default.NewToken()
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token %s after %d draws", tok, i)
		}
		seen[tok] = struct{}{}
	}
}

func TestUUIDSource_TimeOrdered(t *testing.T) {
	first := Default.NewToken()
	second := Default.NewToken()
	assert.Equal(t, -1, Compare(first, second), "later token should compare greater")
}

func TestFixed(t *testing.T) {
	src := Fixed("a")
	assert.Equal(t, "a", src.NewToken())
	assert.Equal(t, "a", src.NewToken())
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, Compare("a", "b"))
	assert.Equal(t, 1, Compare("b", "a"))
	assert.Equal(t, 0, Compare("a", "a"))
}
