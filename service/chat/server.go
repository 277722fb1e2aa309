package chat

import (
	"context"
	"time"

	"EchoChat/logger"
	"EchoChat/service/metrics"
	"EchoChat/service/storage"
	"EchoChat/tools/errs"
	"EchoChat/tools/safe"

	midsec "EchoChat/middleware/security"
)

type Options struct {
	NodeID         string
	SendQueue      int
	EventQueue     int
	UnauthTTL      time.Duration
	SweepEvery     time.Duration
	MaxPerUser     int // <=0 不限制；超出时踢掉该用户最老的连接
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxFrameBytes  int64
	AllowedOrigins []string
	Auth           *midsec.Options // nil 则不校验 token（仅测试）
	Clock          func() time.Time
}

func (o *Options) norm() {
	if o.SendQueue <= 0 {
		o.SendQueue = 256
	}
	if o.EventQueue <= 0 {
		o.EventQueue = 8192
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.PongWait <= o.PingInterval {
		o.PongWait = o.PingInterval * 12 / 5
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = 1 << 20
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Server 实时层。注册表的所有读写和扇出解析都在 Run 的单个协程里串行执行
type Server struct {
	opts Options

	reg     *Registry
	connMgr *ConnManager
	fanout  *FanoutRouter
	disp    *Dispatcher

	presence storage.Presence
	sink     EventSink

	events  chan func()
	stopped chan struct{}
}

type Option func(*Server)

// WithPresence 在线状态镜像，调用方负责保证 Set 不阻塞
func WithPresence(p storage.Presence) Option {
	return func(s *Server) { s.presence = p }
}

func WithEventSink(sink EventSink) Option {
	return func(s *Server) { s.sink = sink }
}

func NewServer(opts Options, options ...Option) *Server {
	opts.norm()
	s := &Server{
		opts:    opts,
		reg:     NewRegistry(),
		disp:    NewDispatcher(),
		events:  make(chan func(), opts.EventQueue),
		stopped: make(chan struct{}),
	}
	for _, o := range options {
		o(s)
	}
	s.connMgr = NewConnManager(ManagerConf{
		UnauthTTL:  opts.UnauthTTL,
		SweepEvery: opts.SweepEvery,
		Clock:      opts.Clock,
	}, opts.NodeID)
	s.fanout = NewFanoutRouter(s.reg, s.connMgr, s.sink)
	return s
}

func (s *Server) Disp() *Dispatcher { return s.disp }

func (s *Server) ConnMgr() *ConnManager { return s.connMgr }

// Registry 只能在事件循环里用（Handler 内部）
func (s *Server) Registry() *Registry { return s.reg }

// Fanout 只能在事件循环里用（Handler 内部）
func (s *Server) Fanout() *FanoutRouter { return s.fanout }

func (s *Server) NodeID() string { return s.opts.NodeID }

// Run 事件循环，ctx 结束后关闭所有连接
func (s *Server) Run(ctx context.Context) error {
	sweepCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	safe.SafeGo("conn-sweeper", func() { s.connMgr.Sweeper(sweepCtx) })

	logger.Infof("[Server] event loop started node=%s", s.opts.NodeID)
	defer func() {
		close(s.stopped)
		s.connMgr.CloseAll("server shutdown")
		logger.Infof("[Server] event loop stopped node=%s", s.opts.NodeID)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-s.events:
			s.exec(fn)
		}
	}
}

func (s *Server) exec(fn func()) {
	defer safe.Recover("event-loop")
	fn()
}

// submit 投递到事件循环；循环已停止返回 false
func (s *Server) submit(fn func()) bool {
	select {
	case s.events <- fn:
		return true
	case <-s.stopped:
		return false
	}
}

// call 投递并等待执行完成
func (s *Server) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !s.submit(func() { fn(); close(done) }) {
		return errs.ErrInternalServer.WrapMsg("event loop stopped")
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return errs.ErrInternalServer.WrapMsg("event loop stopped")
	}
}

// ===== 以下方法只在事件循环内调用 =====

func (s *Server) handleFrame(c *Client, f *Frame) {
	if c.Closed() {
		return
	}
	if err := s.disp.Dispatch(&Context{S: s, Client: c}, f); err != nil {
		logger.Debugf("[Server] frame type=%s conn=%s rejected: %v", f.Type, c.ConnID, err)
		c.Enqueue(BuildErrorFrame(err))
	}
}

// Register 把连接挂到用户下，必要时淘汰该用户最老的连接
func (s *Server) Register(c *Client, userID string) {
	if cur, ok := s.reg.UserOf(c.ConnID); ok && cur == userID {
		return
	}
	if s.opts.MaxPerUser > 0 {
		for s.reg.Count(userID) >= s.opts.MaxPerUser {
			oldest := s.connMgr.Oldest(s.reg.ConnectionsFor([]string{userID}))
			if oldest == nil {
				break
			}
			logger.Infof("[Server] evict conn=%s user=%s max=%d", oldest.ConnID, userID, s.opts.MaxPerUser)
			s.reg.Unregister(oldest.ConnID)
			oldest.Close("evicted by newer connection")
		}
	}
	prev := c.UserID()
	s.reg.Register(c.ConnID, userID)
	c.setUser(userID)
	if prev != "" && prev != userID {
		s.publishPresence(prev)
	}
	s.publishPresence(userID)
	logger.Infof("[Server] register conn=%s user=%s conns=%d", c.ConnID, userID, s.reg.Count(userID))
}

func (s *Server) unregister(c *Client) {
	s.connMgr.Remove(c.ConnID)
	user, ok := s.reg.UserOf(c.ConnID)
	s.reg.Unregister(c.ConnID)
	if ok {
		s.publishPresence(user)
		logger.Infof("[Server] unregister conn=%s user=%s left=%d", c.ConnID, user, s.reg.Count(user))
	}
}

func (s *Server) publishPresence(userID string) {
	metrics.OnlineUsers.Set(float64(s.reg.Users()))
	if s.presence == nil {
		return
	}
	if err := s.presence.Set(context.Background(), userID, s.reg.Count(userID)); err != nil {
		logger.Warnf("[Presence] set user=%s err=%v", userID, err)
	}
}

// ===== 对外的同步查询，经事件循环执行 =====

// OnlineCounts user -> 在线连接数
func (s *Server) OnlineCounts(ctx context.Context) map[string]int {
	var out map[string]int
	if err := s.call(ctx, func() { out = s.reg.Snapshot() }); err != nil {
		return nil
	}
	return out
}

// ConnectionsFor 给测试和运维查询用
func (s *Server) ConnectionsFor(ctx context.Context, userIDs ...string) ([]string, error) {
	var out []string
	err := s.call(ctx, func() { out = s.reg.ConnectionsFor(userIDs) })
	return out, err
}

// Attach 接入一条新传输会话（握手成功后调用）
func (s *Server) Attach(c *Client) error {
	if err := s.connMgr.Add(c); err != nil {
		return err
	}
	b, _ := EncodeFrame(TypeConnected, ConnectedPayload{
		ConnectionID: c.ConnID,
		UserID:       c.AuthUserID,
		Node:         s.opts.NodeID,
	})
	c.Enqueue(b)
	return nil
}

// Receive 入站帧交给事件循环
func (s *Server) Receive(c *Client, f *Frame) bool {
	return s.submit(func() { s.handleFrame(c, f) })
}

// Detach 传输关闭，等同于 unregister
func (s *Server) Detach(c *Client) {
	c.Close("detached")
	if !s.submit(func() { s.unregister(c) }) {
		s.connMgr.Remove(c.ConnID)
	}
}
