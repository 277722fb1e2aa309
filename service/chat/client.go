package chat

import (
	"sync"
	"sync/atomic"
	"time"

	"EchoChat/logger"

	"github.com/gorilla/websocket"
)

// Client 一条 websocket 传输会话。Send 只由写协程消费，从不关闭，
// 关闭信号走 done
type Client struct {
	ConnID     string
	AuthUserID string // 握手时 token 里的用户
	WS         *websocket.Conn
	Send       chan []byte
	CreatedAt  time.Time

	user      atomic.Pointer[string] // register 之后才有
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(connID, authUserID string, ws *websocket.Conn, sendQueueSize int, now time.Time) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 256
	}
	return &Client{
		ConnID:     connID,
		AuthUserID: authUserID,
		WS:         ws,
		Send:       make(chan []byte, sendQueueSize),
		CreatedAt:  now,
		done:       make(chan struct{}),
	}
}

// UserID register 之前为空
func (c *Client) UserID() string {
	if p := c.user.Load(); p != nil {
		return *p
	}
	return ""
}

func (c *Client) Registered() bool { return c.user.Load() != nil }

func (c *Client) setUser(userID string) { c.user.Store(&userID) }

func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Enqueue 非阻塞；连接已关或队列满返回 false
func (c *Client) Enqueue(payload []byte) bool {
	if c.Closed() {
		return false
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

// Close 幂等。会打断阻塞中的读循环
func (c *Client) Close(reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.WS == nil {
			return
		}
		_ = c.WS.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
			time.Now().Add(time.Second))
		_ = c.WS.Close()
		logger.Debugf("[WS] closed conn=%s user=%s reason=%s", c.ConnID, c.UserID(), reason)
	})
}

// writePump 唯一写协程：业务帧优先，其次定时 ping
func (c *Client) writePump(pingInterval, writeWait time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close("write pump exit")
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.Send:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WS.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Infof("[WS] write payload err conn=%s user=%s err=%v", c.ConnID, c.UserID(), err)
				return
			}
		case <-ticker.C:
			if err := c.WS.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				logger.Infof("[WS] ping err conn=%s user=%s err=%v", c.ConnID, c.UserID(), err)
				return
			}
		}
	}
}
