package model

import (
	"time"

	"EchoChat/tools/errs"
)

// User 展示用的用户信息
type User struct {
	ID    string `json:"id" bson:"_id"`
	Name  string `json:"name" bson:"name"`
	Image string `json:"image" bson:"image"`
	Email string `json:"email" bson:"email"`
}

func (u *User) GetTableName() string { return "user" }

// Member 会话成员，JoinedAt 决定成员顺序
type Member struct {
	ConversationID string    `json:"conversationId" bson:"conversation_id"`
	MemberID       string    `json:"memberId" bson:"member_id"`
	JoinedAt       time.Time `json:"joinedAt" bson:"joined_at"`
	User           User      `json:"user" bson:"-"`
}

func (m *Member) GetTableName() string { return "users_to_conversation" }

// Conversation 持久化的会话行
type Conversation struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Image     string    `json:"image" bson:"image"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"` // 最近活跃时间
}

func (c *Conversation) GetTableName() string { return "conversation" }

// ConversationSummary 会话列表项：只带最新一条消息和成员资料
type ConversationSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Image     string    `json:"image"`
	UpdatedAt time.Time `json:"updatedAt"`
	Messages  []Message `json:"messages"`
	Members   []Member  `json:"members"`
}

// Latest 最新消息，没有返回 nil
func (s *ConversationSummary) Latest() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[0]
}

// MemberIDs 按入会顺序
func (s *ConversationSummary) MemberIDs() []string {
	out := make([]string, 0, len(s.Members))
	for _, m := range s.Members {
		out = append(out, m.MemberID)
	}
	return out
}

func (s *ConversationSummary) HasMember(userID string) bool {
	for _, m := range s.Members {
		if m.MemberID == userID {
			return true
		}
	}
	return false
}

// NewConversation 创建会话入参，创建者会被自动加入成员
type NewConversation struct {
	Name      string   `json:"name"`
	Image     string   `json:"image"`
	MemberIDs []string `json:"memberIds"`
	CreatorID string   `json:"-"`
}

func (n *NewConversation) Validate() error {
	if n.CreatorID == "" {
		return errs.ErrArgs.WrapMsg("creator is empty")
	}
	if len(n.Members()) < 2 {
		return errs.ErrArgs.WrapMsg("conversation needs at least one other member")
	}
	return nil
}

// Members 创建者在前，去重去空
func (n *NewConversation) Members() []string {
	seen := make(map[string]struct{}, len(n.MemberIDs)+1)
	out := make([]string, 0, len(n.MemberIDs)+1)
	for _, id := range append([]string{n.CreatorID}, n.MemberIDs...) {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
