package database

import (
	"context"

	"EchoChat/module/chat/model"
)

// Table 持久化实体对应的表/集合名
type Table interface {
	GetTableName() string
}

// Store 会话/消息的持久化读写口，实时层只通过它访问数据
type Store interface {
	ListUsers(ctx context.Context) ([]model.User, error)
	UpsertUser(ctx context.Context, u model.User) error

	// ListConversations 只返回 userID 参与的会话，按最近活跃倒序，
	// 每个会话附带最新一条消息和成员资料
	ListConversations(ctx context.Context, userID string) ([]model.ConversationSummary, error)
	CreateConversation(ctx context.Context, n model.NewConversation) (*model.ConversationSummary, error)
	IsMember(ctx context.Context, conversationID, userID string) (bool, error)

	// ListMessages 按创建时间升序
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	// CreateMessage 分配 id/时间，并把会话的最近活跃时间推到消息时间
	CreateMessage(ctx context.Context, n model.NewMessage) (*model.Message, error)
	SetAttachment(ctx context.Context, messageID string, a model.Attachment) (*model.Message, error)

	Close(ctx context.Context) error
}

// DemoUsers 开发环境的种子用户
var DemoUsers = []model.User{
	{ID: "u-alice", Name: "Alice Smith", Email: "alice@example.com"},
	{ID: "u-bob", Name: "Bob Jones", Email: "bob@example.com"},
	{ID: "u-carol", Name: "Carol White", Email: "carol@example.com"},
}

func Seed(ctx context.Context, s Store, users []model.User) error {
	for _, u := range users {
		if err := s.UpsertUser(ctx, u); err != nil {
			return err
		}
	}
	return nil
}
