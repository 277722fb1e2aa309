// Package memory 进程内 Store，开发和测试用
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"EchoChat/data/database"
	"EchoChat/module/chat/model"
	"EchoChat/tools/errs"

	"github.com/google/uuid"
)

var _ database.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	users    map[string]model.User
	convs    map[string]*model.Conversation
	members  map[string][]model.Member  // convID -> 按入会顺序
	messages map[string][]model.Message // convID -> 写入顺序
	msgConv  map[string]string          // msgID -> convID

	now func() time.Time
}

type Option func(*Store)

// WithClock 测试用的时钟
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		users:    make(map[string]model.User),
		convs:    make(map[string]*model.Conversation),
		members:  make(map[string][]model.Member),
		messages: make(map[string][]model.Message),
		msgConv:  make(map[string]string),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) ListUsers(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpsertUser(_ context.Context, u model.User) error {
	if u.ID == "" {
		return errs.ErrArgs.WrapMsg("user id is empty")
	}
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
	return nil
}

func (s *Store) ListConversations(_ context.Context, userID string) ([]model.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ConversationSummary, 0)
	for id, c := range s.convs {
		if !s.isMemberLocked(id, userID) {
			continue
		}
		out = append(out, s.summaryLocked(c))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) summaryLocked(c *model.Conversation) model.ConversationSummary {
	sum := model.ConversationSummary{
		ID:        c.ID,
		Name:      c.Name,
		Image:     c.Image,
		UpdatedAt: c.UpdatedAt,
		Messages:  []model.Message{},
		Members:   make([]model.Member, 0, len(s.members[c.ID])),
	}
	for _, m := range s.members[c.ID] {
		m.User = s.userLocked(m.MemberID)
		sum.Members = append(sum.Members, m)
	}
	var latest *model.Message
	msgs := s.messages[c.ID]
	for i := range msgs {
		if latest == nil || latest.Less(msgs[i]) {
			latest = &msgs[i]
		}
	}
	if latest != nil {
		sum.Messages = append(sum.Messages, cloneMessage(*latest))
	}
	return sum
}

func (s *Store) userLocked(id string) model.User {
	if u, ok := s.users[id]; ok {
		return u
	}
	return model.User{ID: id}
}

func (s *Store) CreateConversation(_ context.Context, n model.NewConversation) (*model.ConversationSummary, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	c := &model.Conversation{
		ID:        uuid.NewString(),
		Name:      n.Name,
		Image:     n.Image,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[c.ID] = c
	for _, id := range n.Members() {
		s.members[c.ID] = append(s.members[c.ID], model.Member{
			ConversationID: c.ID,
			MemberID:       id,
			JoinedAt:       now,
		})
	}
	sum := s.summaryLocked(c)
	return &sum, nil
}

func (s *Store) IsMember(_ context.Context, conversationID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.convs[conversationID]; !ok {
		return false, errs.ErrRecordNotFound.WrapMsg("conversation not found", "conversationId", conversationID)
	}
	return s.isMemberLocked(conversationID, userID), nil
}

func (s *Store) isMemberLocked(conversationID, userID string) bool {
	for _, m := range s.members[conversationID] {
		if m.MemberID == userID {
			return true
		}
	}
	return false
}

func (s *Store) ListMessages(_ context.Context, conversationID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.convs[conversationID]; !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("conversation not found", "conversationId", conversationID)
	}
	msgs := s.messages[conversationID]
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, cloneMessage(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}

func (s *Store) CreateMessage(_ context.Context, n model.NewMessage) (*model.Message, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[n.ConversationID]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("conversation not found", "conversationId", n.ConversationID)
	}
	if !s.isMemberLocked(n.ConversationID, n.SenderID) {
		return nil, errs.ErrNoPermission.WrapMsg("sender is not a member", "conversationId", n.ConversationID, "senderId", n.SenderID)
	}

	msg := model.Message{
		ID:             uuid.NewString(),
		ConversationID: n.ConversationID,
		SenderID:       n.SenderID,
		Text:           n.Text,
		CreatedAt:      s.now().UTC(),
	}
	if n.Attachment != nil {
		att := *n.Attachment
		att.ID = uuid.NewString()
		msg.Attachment = &att
	}
	s.messages[c.ID] = append(s.messages[c.ID], msg)
	s.msgConv[msg.ID] = c.ID
	if msg.CreatedAt.After(c.UpdatedAt) {
		c.UpdatedAt = msg.CreatedAt
	}

	out := cloneMessage(msg)
	return &out, nil
}

func (s *Store) SetAttachment(_ context.Context, messageID string, a model.Attachment) (*model.Message, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	convID, ok := s.msgConv[messageID]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("message not found", "messageId", messageID)
	}
	msgs := s.messages[convID]
	for i := range msgs {
		if msgs[i].ID != messageID {
			continue
		}
		if msgs[i].Attachment != nil {
			return nil, errs.ErrArgs.WrapMsg("message already has an attachment", "messageId", messageID)
		}
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		msgs[i].Attachment = &a
		out := cloneMessage(msgs[i])
		return &out, nil
	}
	return nil, errs.ErrRecordNotFound.WrapMsg("message not found", "messageId", messageID)
}

func (s *Store) Close(context.Context) error { return nil }

func cloneMessage(m model.Message) model.Message {
	if m.Attachment != nil {
		att := *m.Attachment
		m.Attachment = &att
	}
	return m
}
