package handlers

import (
	"EchoChat/service/chat"
	"EchoChat/tools/errs"
)

// RegisterHandler register 帧：把当前连接挂到用户下
type RegisterHandler struct{}

func (RegisterHandler) Type() string { return chat.TypeRegister }

func (RegisterHandler) Handle(ctx *chat.Context, f *chat.Frame) error {
	var p chat.RegisterPayload
	if err := f.DecodeData(&p); err != nil {
		return err
	}
	c := ctx.Client
	if p.UserID == "" {
		return errs.ErrArgs.WrapMsg("userId is empty")
	}
	// 只能注册自己的连接
	if p.ConnectionID != "" && p.ConnectionID != c.ConnID {
		return errs.ErrNoPermission.WrapMsg("connectionId does not match transport", "connectionId", p.ConnectionID)
	}
	if c.AuthUserID != "" && p.UserID != c.AuthUserID {
		return errs.ErrNoPermission.WrapMsg("userId does not match token", "userId", p.UserID)
	}
	ctx.S.Register(c, p.UserID)
	return nil
}
