package handlers

import (
	"time"

	"EchoChat/service/chat"
)

// PingHandler 应用层心跳，回 pong
type PingHandler struct{}

func (PingHandler) Type() string { return chat.TypePing }

func (PingHandler) Handle(ctx *chat.Context, _ *chat.Frame) error {
	b, err := chat.EncodeFrame(chat.TypePong, map[string]int64{"ts": time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	ctx.Client.Enqueue(b)
	return nil
}
