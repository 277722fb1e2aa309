package storage

import (
	"context"
	"sync"
	"time"
)

// PresenceInfo 用户在线状态
type PresenceInfo struct {
	UserID      string    `json:"userId"`
	Online      bool      `json:"online"`
	Connections int       `json:"connections"`
	Node        string    `json:"node,omitempty"`
	SeenAt      time.Time `json:"seenAt,omitempty"`
}

// Presence 在线状态镜像。connections<=0 表示下线
type Presence interface {
	Set(ctx context.Context, userID string, connections int) error
	Lookup(ctx context.Context, userID string) (PresenceInfo, error)
}

// MemoryPresence 未配置 Redis 时用
type MemoryPresence struct {
	mu   sync.RWMutex
	node string
	m    map[string]PresenceInfo
	now  func() time.Time
}

func NewMemoryPresence(node string) *MemoryPresence {
	return &MemoryPresence{node: node, m: make(map[string]PresenceInfo), now: time.Now}
}

func (p *MemoryPresence) Set(_ context.Context, userID string, connections int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if connections <= 0 {
		delete(p.m, userID)
		return nil
	}
	p.m[userID] = PresenceInfo{
		UserID:      userID,
		Online:      true,
		Connections: connections,
		Node:        p.node,
		SeenAt:      p.now().UTC(),
	}
	return nil
}

func (p *MemoryPresence) Lookup(_ context.Context, userID string) (PresenceInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if info, ok := p.m[userID]; ok {
		return info, nil
	}
	return PresenceInfo{UserID: userID}, nil
}
