package chat

import (
	"context"
	"sync"
	"time"

	"EchoChat/logger"
	"EchoChat/service/metrics"
	"EchoChat/tools/errs"
)

// ===== 配置 =====

type ManagerConf struct {
	UnauthTTL  time.Duration    // 未 register 连接的存活时间（如 60s）
	SweepEvery time.Duration    // 清理周期（如 10s）
	Clock      func() time.Time // 可注入时钟（单测用）；nil => time.Now
}

func (c *ManagerConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 10 * time.Second
	}
	if c.UnauthTTL <= 0 {
		c.UnauthTTL = 60 * time.Second
	}
}

// ConnManager 连接ID -> 传输会话。只管传输层，用户归属在 Registry
type ConnManager struct {
	mu   sync.RWMutex
	byID map[string]*Client
	conf ManagerConf
	gwID string
}

func NewConnManager(conf ManagerConf, gwID string) *ConnManager {
	conf.norm()
	return &ConnManager{
		byID: make(map[string]*Client),
		conf: conf,
		gwID: gwID,
	}
}

func (m *ConnManager) GwID() string { return m.gwID }

func (m *ConnManager) Now() time.Time { return m.conf.Clock() }

func (m *ConnManager) Add(c *Client) error {
	if c == nil || c.ConnID == "" {
		return errs.ErrArgs.WrapMsg("client/connID empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[c.ConnID]; exists {
		return errs.ErrArgs.WrapMsg("connID exists", "connId", c.ConnID)
	}
	m.byID[c.ConnID] = c
	metrics.LiveConnections.Inc()
	return nil
}

// Get 连接已移除返回 nil
func (m *ConnManager) Get(connID string) *Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byID[connID]
}

// Remove 只摘索引，不关连接
func (m *ConnManager) Remove(connID string) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[connID]
	if !ok {
		return nil
	}
	delete(m.byID, connID)
	metrics.LiveConnections.Dec()
	return c
}

func (m *ConnManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// Oldest 在给定连接里选最早建立的
func (m *ConnManager) Oldest(connIDs []string) *Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var oldest *Client
	for _, id := range connIDs {
		c := m.byID[id]
		if c == nil {
			continue
		}
		if oldest == nil || c.CreatedAt.Before(oldest.CreatedAt) {
			oldest = c
		}
	}
	return oldest
}

// CloseAll 关闭所有连接，读循环随后各自走下线流程
func (m *ConnManager) CloseAll(reason string) {
	m.mu.RLock()
	all := make([]*Client, 0, len(m.byID))
	for _, c := range m.byID {
		all = append(all, c)
	}
	m.mu.RUnlock()
	for _, c := range all {
		c.Close(reason)
	}
}

// ===== 清理协程 =====

// Sweeper 周期性踢掉超时未 register 的连接
func (m *ConnManager) Sweeper(ctx context.Context) {
	t := time.NewTicker(m.conf.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.sweepOnce(m.conf.Clock()); n > 0 {
				logger.Infof("[ConnMgr] swept %d unregistered connections", n)
			}
		}
	}
}

func (m *ConnManager) sweepOnce(now time.Time) int {
	var expired []*Client

	m.mu.RLock()
	for _, c := range m.byID {
		if !c.Registered() && now.Sub(c.CreatedAt) > m.conf.UnauthTTL {
			expired = append(expired, c)
		}
	}
	m.mu.RUnlock()

	// 持锁期间不关 socket
	for _, c := range expired {
		c.Close("register timeout")
	}
	return len(expired)
}
