package database

import (
	"context"
	"time"

	"EchoChat/module/chat/model"
	"EchoChat/service/metrics"
)

// Instrument 给 Store 包一层耗时统计
func Instrument(driver string, s Store) Store {
	return &instrumented{driver: driver, next: s}
}

type instrumented struct {
	driver string
	next   Store
}

func (i *instrumented) observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.StoreLatency.WithLabelValues(i.driver, op).Observe(time.Since(start).Seconds())
	}
}

func (i *instrumented) ListUsers(ctx context.Context) ([]model.User, error) {
	defer i.observe("list_users")()
	return i.next.ListUsers(ctx)
}

func (i *instrumented) UpsertUser(ctx context.Context, u model.User) error {
	defer i.observe("upsert_user")()
	return i.next.UpsertUser(ctx, u)
}

func (i *instrumented) ListConversations(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	defer i.observe("list_conversations")()
	return i.next.ListConversations(ctx, userID)
}

func (i *instrumented) CreateConversation(ctx context.Context, n model.NewConversation) (*model.ConversationSummary, error) {
	defer i.observe("create_conversation")()
	return i.next.CreateConversation(ctx, n)
}

func (i *instrumented) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	defer i.observe("is_member")()
	return i.next.IsMember(ctx, conversationID, userID)
}

func (i *instrumented) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	defer i.observe("list_messages")()
	return i.next.ListMessages(ctx, conversationID)
}

func (i *instrumented) CreateMessage(ctx context.Context, n model.NewMessage) (*model.Message, error) {
	defer i.observe("create_message")()
	return i.next.CreateMessage(ctx, n)
}

func (i *instrumented) SetAttachment(ctx context.Context, messageID string, a model.Attachment) (*model.Message, error) {
	defer i.observe("set_attachment")()
	return i.next.SetAttachment(ctx, messageID, a)
}

func (i *instrumented) Close(ctx context.Context) error {
	return i.next.Close(ctx)
}
