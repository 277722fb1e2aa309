package ids

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorUniqueAndIncreasing(t *testing.T) {
	g := NewGenerator(7)
	seen := make(map[int64]struct{}, 10000)
	var last int64
	for i := 0; i < 10000; i++ {
		id := g.Next()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %d", id)
		seen[id] = struct{}{}
		require.Greater(t, id, last)
		last = id
	}
}

func TestGeneratorClockBackwards(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cur := base
	g := NewGenerator(3)
	g.now = func() time.Time { return cur }

	a := g.Next()
	cur = base.Add(-time.Second)
	b := g.Next()
	assert.Greater(t, b, a)
	assert.Equal(t, int64(3), (b>>seqBits)&maxNode)
}

func TestNodeOutOfRange(t *testing.T) {
	assert.Equal(t, int64(1), NewGenerator(4096).node)
	assert.Equal(t, int64(1), NewGenerator(-1).node)
}
