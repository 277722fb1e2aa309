package handlers

import (
	"EchoChat/service/chat"
	"EchoChat/tools/errs"
)

// MessageHandler message 帧：消息已经落库，这里只做扇出。
// 目标 = 收件人 + 发送者本人，origin 连接在 FanoutRouter 里排除
type MessageHandler struct{}

func (MessageHandler) Type() string { return chat.TypeMessage }

func (MessageHandler) Handle(ctx *chat.Context, f *chat.Frame) error {
	c := ctx.Client
	if !c.Registered() {
		return errs.ErrNoPermission.WrapMsg("connection not registered")
	}
	var p chat.MessagePayload
	if err := f.DecodeData(&p); err != nil {
		return err
	}
	msg := p.Message
	if msg.ID == "" || msg.ConversationID == "" {
		return errs.ErrArgs.WrapMsg("message id/conversationId is empty")
	}
	if msg.SenderID != c.UserID() {
		return errs.ErrNoPermission.WrapMsg("senderId does not match connection", "senderId", msg.SenderID)
	}

	targets := withUser(p.RecipientUserIDs, msg.SenderID)
	fan := ctx.S.Fanout()
	fan.MessageCreated(c.ConnID, msg, targets)
	fan.LatestActivityChanged(c.ConnID, msg, targets)
	return nil
}

func withUser(users []string, u string) []string {
	out := make([]string, 0, len(users)+1)
	seen := make(map[string]struct{}, len(users)+1)
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range users {
		add(id)
	}
	add(u)
	return out
}
