package handlers

import (
	"EchoChat/service/chat"
	"EchoChat/tools/errs"
)

// CreateConversationHandler create-conversation 帧：推给所有成员的连接
type CreateConversationHandler struct{}

func (CreateConversationHandler) Type() string { return chat.TypeCreateConversation }

func (CreateConversationHandler) Handle(ctx *chat.Context, f *chat.Frame) error {
	c := ctx.Client
	if !c.Registered() {
		return errs.ErrNoPermission.WrapMsg("connection not registered")
	}
	var p chat.CreateConversationPayload
	if err := f.DecodeData(&p); err != nil {
		return err
	}
	sum := p.Conversation
	if sum.ID == "" {
		return errs.ErrArgs.WrapMsg("conversation id is empty")
	}
	if !sum.HasMember(c.UserID()) {
		return errs.ErrNoPermission.WrapMsg("creator is not a member", "conversationId", sum.ID)
	}
	ctx.S.Fanout().ConversationCreated(c.ConnID, sum, sum.MemberIDs())
	return nil
}
