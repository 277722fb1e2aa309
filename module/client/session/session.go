// Package session 一个登录用户的客户端会话：会话列表、当前打开会话的消息、实时通道
package session

import (
	"context"
	"sync/atomic"

	"EchoChat/logger"
	"EchoChat/module/chat/model"
	"EchoChat/module/client/conversations"
	"EchoChat/module/client/messages"
	"EchoChat/service/chat"
	"EchoChat/tools/errs"
	"EchoChat/tools/safe"
)

// Event 状态变化通知，给 UI 刷新用
type Event struct {
	Kind           string // 帧类型，或 "live" / "history"
	ConversationID string
}

type Option func(*Session)

// WithNotify 回调在会话的事件协程里执行，不能阻塞
func WithNotify(fn func(Event)) Option {
	return func(s *Session) { s.notify = fn }
}

// Session 状态只在 Run 的协程里读写；异步结果都带着目标会话 id，
// 和当前打开的会话不一致就丢弃
type Session struct {
	me  string
	api API

	conn *Conn
	live atomic.Bool

	index *conversations.Index
	store *messages.Store
	open  string

	notify  func(Event)
	events  chan func()
	stopped chan struct{}
}

func New(me string, api API, opts ...Option) *Session {
	s := &Session{
		me:      me,
		api:     api,
		index:   conversations.NewIndex(),
		store:   messages.NewStore(),
		events:  make(chan func(), 256),
		stopped: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) Me() string { return s.me }

// Live 实时通道是否可用；false 时只能靠拉取
func (s *Session) Live() bool { return s.live.Load() }

// Run 事件协程
func (s *Session) Run(ctx context.Context) error {
	defer close(s.stopped)
	for {
		select {
		case <-ctx.Done():
			if s.conn != nil {
				_ = s.conn.Close()
			}
			return nil
		case fn := <-s.events:
			func() {
				defer safe.Recover("session-loop")
				fn()
			}()
		}
	}
}

func (s *Session) submit(fn func()) bool {
	select {
	case s.events <- fn:
		return true
	case <-s.stopped:
		return false
	}
}

func (s *Session) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !s.submit(func() { fn(); close(done) }) {
		return errs.ErrInternalServer.WrapMsg("session stopped")
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return errs.ErrInternalServer.WrapMsg("session stopped")
	}
}

func (s *Session) emit(kind, convID string) {
	if s.notify != nil {
		s.notify(Event{Kind: kind, ConversationID: convID})
	}
}

// Connect 建立实时通道并 register。断线后 Live() 变为 false
func (s *Session) Connect(ctx context.Context, wsURL, token string) error {
	conn, err := Dial(ctx, wsURL, token)
	if err != nil {
		return err
	}
	if err := conn.Send(chat.TypeRegister, chat.RegisterPayload{UserID: s.me, ConnectionID: conn.ConnID}); err != nil {
		_ = conn.Close()
		return errs.WrapMsg(err, "register")
	}
	if err := s.call(ctx, func() { s.conn = conn }); err != nil {
		_ = conn.Close()
		return err
	}
	s.live.Store(true)
	safe.SafeGo("session-read", func() { s.readLoop(conn) })
	logger.Infof("[Session] live user=%s conn=%s node=%s", s.me, conn.ConnID, conn.Node)
	return nil
}

func (s *Session) readLoop(conn *Conn) {
	defer func() {
		s.live.Store(false)
		s.submit(func() { s.emit("live", "") })
	}()
	for {
		f, err := conn.Read()
		if err != nil {
			logger.Infof("[Session] live channel lost user=%s err=%v", s.me, err)
			return
		}
		if !s.submit(func() { s.handleFrame(f) }) {
			return
		}
	}
}

func (s *Session) handleFrame(f *chat.Frame) {
	switch f.Type {
	case chat.TypeMessage:
		var m model.Message
		if err := f.DecodeData(&m); err != nil {
			logger.Debugf("[Session] bad message frame: %v", err)
			return
		}
		if m.ConversationID != s.open {
			return
		}
		s.store.ApplyIncoming(m)
		s.emit(f.Type, m.ConversationID)
	case chat.TypeLatestActivity:
		var p chat.LatestActivityPayload
		if err := f.DecodeData(&p); err != nil {
			logger.Debugf("[Session] bad latest-activity frame: %v", err)
			return
		}
		if s.index.PatchLatestActivity(p.ConversationID, p.UpdatedAt, p.Message) {
			s.emit(f.Type, p.ConversationID)
		}
	case chat.TypeConversationCreated:
		var p chat.CreateConversationPayload
		if err := f.DecodeData(&p); err != nil {
			logger.Debugf("[Session] bad conversation-created frame: %v", err)
			return
		}
		s.index.AddConversation(p.Conversation)
		s.emit(f.Type, p.Conversation.ID)
	case chat.TypeError:
		var p chat.ErrorPayload
		_ = f.DecodeData(&p)
		logger.Warnf("[Session] server error code=%d msg=%s", p.Code, p.Msg)
	}
}

// LoadConversations 全量拉取会话列表
func (s *Session) LoadConversations(ctx context.Context) error {
	list, err := s.api.ListConversations(ctx)
	if err != nil {
		return err
	}
	return s.call(ctx, func() {
		s.index.LoadAll(list)
		s.emit("history", "")
	})
}

// Open 切换打开的会话：先清空，再合并历史。拉取期间到达的推送照常应用
func (s *Session) Open(ctx context.Context, convID string) error {
	if err := s.call(ctx, func() {
		s.open = convID
		s.store.Reset()
	}); err != nil {
		return err
	}
	msgs, err := s.api.ListMessages(ctx, convID)
	if err != nil {
		return err
	}
	return s.call(ctx, func() {
		if s.open != convID {
			logger.Debugf("[Session] drop stale history conv=%s open=%s", convID, s.open)
			return
		}
		s.store.LoadHistory(msgs)
		s.emit("history", convID)
	})
}

// Send 先落库，再本地应用，最后发 message 帧触发扇出
func (s *Session) Send(ctx context.Context, text string, att *model.Attachment) (*model.Message, error) {
	var (
		convID     string
		recipients []string
	)
	if err := s.call(ctx, func() {
		convID = s.open
		if sum, ok := s.index.Get(convID); ok {
			for _, id := range sum.MemberIDs() {
				if id != s.me {
					recipients = append(recipients, id)
				}
			}
		}
	}); err != nil {
		return nil, err
	}
	if convID == "" {
		return nil, errs.ErrArgs.WrapMsg("no conversation open")
	}

	msg, err := s.api.CreateMessage(ctx, convID, text, att)
	if err != nil {
		return nil, err
	}
	var conn *Conn
	if err := s.call(ctx, func() {
		if s.open == convID {
			s.store.ApplyIncoming(*msg)
		}
		s.index.PatchLatestActivity(msg.ConversationID, msg.CreatedAt, *msg)
		conn = s.conn
	}); err != nil {
		return msg, err
	}

	if conn != nil && s.Live() {
		if err := conn.Send(chat.TypeMessage, chat.MessagePayload{Message: *msg, RecipientUserIDs: recipients}); err != nil {
			logger.Warnf("[Session] push message id=%s err=%v", msg.ID, err)
		}
	}
	return msg, nil
}

// Create 新建会话并通知其他成员
func (s *Session) Create(ctx context.Context, name, image string, memberIDs []string) (*model.ConversationSummary, error) {
	sum, err := s.api.CreateConversation(ctx, model.NewConversation{Name: name, Image: image, MemberIDs: memberIDs})
	if err != nil {
		return nil, err
	}
	var conn *Conn
	if err := s.call(ctx, func() {
		s.index.AddConversation(*sum)
		conn = s.conn
	}); err != nil {
		return sum, err
	}
	if conn != nil && s.Live() {
		if err := conn.Send(chat.TypeCreateConversation, chat.CreateConversationPayload{Conversation: *sum}); err != nil {
			logger.Warnf("[Session] push conversation id=%s err=%v", sum.ID, err)
		}
	}
	return sum, nil
}

// OpenID 当前打开的会话
func (s *Session) OpenID(ctx context.Context) string {
	var id string
	_ = s.call(ctx, func() { id = s.open })
	return id
}

// Messages 当前打开会话的消息快照，已排序
func (s *Session) Messages(ctx context.Context) []model.Message {
	var out []model.Message
	_ = s.call(ctx, func() { out = s.store.Messages() })
	return out
}

// Conversations 会话列表快照，最近活跃在前；query 非空时过滤
func (s *Session) Conversations(ctx context.Context, query string) []model.ConversationSummary {
	var out []model.ConversationSummary
	_ = s.call(ctx, func() {
		for sum := range conversations.Filter(s.index.OrderedSummaries(), query) {
			out = append(out, sum)
		}
	})
	return out
}
