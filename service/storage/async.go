package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"EchoChat/logger"
)

// AsyncPresence 写操作排队由后台协程执行，调用方永不阻塞。
// 同一用户排队期间只保留最后一次的连接数
type AsyncPresence struct {
	next Presence

	mu      sync.Mutex
	pending map[string]int
	wake    chan struct{}

	refreshEvery time.Duration
	snapshot     func(ctx context.Context) map[string]int

	failed atomic.Int64
}

// NewAsyncPresence snapshot 用于周期性续期 TTL，可为 nil
func NewAsyncPresence(next Presence, refreshEvery time.Duration, snapshot func(ctx context.Context) map[string]int) *AsyncPresence {
	return &AsyncPresence{
		next:         next,
		pending:      make(map[string]int),
		wake:         make(chan struct{}, 1),
		refreshEvery: refreshEvery,
		snapshot:     snapshot,
	}
}

// Set 非阻塞
func (a *AsyncPresence) Set(_ context.Context, userID string, connections int) error {
	a.mu.Lock()
	a.pending[userID] = connections
	a.mu.Unlock()
	select {
	case a.wake <- struct{}{}:
	default:
	}
	return nil
}

func (a *AsyncPresence) Lookup(ctx context.Context, userID string) (PresenceInfo, error) {
	return a.next.Lookup(ctx, userID)
}

func (a *AsyncPresence) Failed() int64 { return a.failed.Load() }

func (a *AsyncPresence) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if a.refreshEvery > 0 && a.snapshot != nil {
		t := time.NewTicker(a.refreshEvery)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			a.flush(context.Background())
			return nil
		case <-a.wake:
			a.flush(ctx)
		case <-tick:
			snap := a.snapshot(ctx)
			a.mu.Lock()
			for u, n := range snap {
				if _, queued := a.pending[u]; !queued {
					a.pending[u] = n
				}
			}
			a.mu.Unlock()
			a.flush(ctx)
		}
	}
}

func (a *AsyncPresence) flush(ctx context.Context) {
	a.mu.Lock()
	batch := a.pending
	a.pending = make(map[string]int, len(batch))
	a.mu.Unlock()

	for u, n := range batch {
		if err := a.next.Set(ctx, u, n); err != nil {
			a.failed.Add(1)
			logger.Warnf("[Presence] set user=%s connections=%d failed: %v", u, n, err)
		}
	}
}
