package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPresence(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPresence("gw-1")

	info, err := p.Lookup(ctx, "x")
	require.NoError(t, err)
	assert.False(t, info.Online)

	require.NoError(t, p.Set(ctx, "x", 2))
	info, _ = p.Lookup(ctx, "x")
	assert.True(t, info.Online)
	assert.Equal(t, 2, info.Connections)
	assert.Equal(t, "gw-1", info.Node)

	require.NoError(t, p.Set(ctx, "x", 0))
	info, _ = p.Lookup(ctx, "x")
	assert.False(t, info.Online)
	assert.Zero(t, info.Connections)
}

type recordingPresence struct {
	*MemoryPresence
	mu   sync.Mutex
	sets []int
}

func (r *recordingPresence) Set(ctx context.Context, userID string, n int) error {
	r.mu.Lock()
	r.sets = append(r.sets, n)
	r.mu.Unlock()
	return r.MemoryPresence.Set(ctx, userID, n)
}

func TestAsyncPresenceCoalescesAndFlushesOnStop(t *testing.T) {
	inner := &recordingPresence{MemoryPresence: NewMemoryPresence("gw")}
	a := NewAsyncPresence(inner, 0, nil)

	// Run 未启动前排队的写只保留最后一次
	ctx := context.Background()
	require.NoError(t, a.Set(ctx, "x", 1))
	require.NoError(t, a.Set(ctx, "x", 2))
	require.NoError(t, a.Set(ctx, "x", 3))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		_ = a.Run(runCtx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		info, _ := a.Lookup(ctx, "x")
		return info.Connections == 3
	}, time.Second, 5*time.Millisecond)

	inner.mu.Lock()
	assert.Equal(t, []int{3}, inner.sets)
	inner.mu.Unlock()

	require.NoError(t, a.Set(ctx, "y", 1))
	cancel()
	<-done
	info, _ := a.Lookup(ctx, "y")
	assert.True(t, info.Online)
}

func TestAsyncPresenceRefreshesFromSnapshot(t *testing.T) {
	inner := NewMemoryPresence("gw")
	a := NewAsyncPresence(inner, 10*time.Millisecond, func(context.Context) map[string]int {
		return map[string]int{"z": 4}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Run(ctx) }()

	require.Eventually(t, func() bool {
		info, _ := inner.Lookup(context.Background(), "z")
		return info.Connections == 4
	}, time.Second, 5*time.Millisecond)
}
