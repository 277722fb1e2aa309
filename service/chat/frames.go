package chat

import (
	"time"

	"EchoChat/module/chat/model"
	"EchoChat/tools/errs"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// 帧类型
const (
	// client -> server
	TypeRegister           = "register"
	TypeMessage            = "message"
	TypeCreateConversation = "create-conversation"
	TypePing               = "ping"

	// server -> client，message 双向共用
	TypeConnected           = "connected"
	TypeLatestActivity      = "latest-activity"
	TypeConversationCreated = "conversation-created"
	TypePong                = "pong"
	TypeError               = "error"
)

// Frame 线上信封：{"type": "...", "data": {...}}
type Frame struct {
	Type string              `json:"type"`
	Data jsoniter.RawMessage `json:"data,omitempty"`
}

type RegisterPayload struct {
	UserID       string `json:"userId"`
	ConnectionID string `json:"connectionId"`
}

type MessagePayload struct {
	Message          model.Message `json:"message"`
	RecipientUserIDs []string      `json:"recipientUserIds"`
}

// LatestActivityPayload 会话最近活跃变化，Message 用作列表预览
type LatestActivityPayload struct {
	ConversationID string        `json:"conversationId"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	Message        model.Message `json:"message"`
}

type CreateConversationPayload struct {
	Conversation model.ConversationSummary `json:"conversation"`
}

type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId,omitempty"`
	Node         string `json:"node"`
}

type ErrorPayload struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func ParseFrameJSON(raw []byte) (*Frame, error) {
	f := &Frame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, errs.ErrArgs.WrapMsg("unmarshal frame failed", "err", err)
	}
	if f.Type == "" {
		return nil, errs.ErrArgs.WrapMsg("frame type missing")
	}
	return f, nil
}

// DecodeData 把 data 解到 v
func (f *Frame) DecodeData(v any) error {
	if len(f.Data) == 0 {
		return errs.ErrArgs.WrapMsg("frame data missing", "type", f.Type)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return errs.ErrArgs.WrapMsg("decode frame data failed", "type", f.Type, "err", err)
	}
	return nil
}

// EncodeFrame 组装完整帧
func EncodeFrame(typ string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errs.WrapMsg(err, "marshal frame data", "type", typ)
	}
	return json.Marshal(Frame{Type: typ, Data: raw})
}

func BuildErrorFrame(err error) []byte {
	p := ErrorPayload{Code: errs.ServerInternalError, Msg: err.Error()}
	if ce, ok := errs.AsCode(err); ok {
		p.Code = ce.Code
		p.Msg = ce.Msg
		if ce.Detail != "" {
			p.Msg += ": " + ce.Detail
		}
	}
	b, _ := EncodeFrame(TypeError, p)
	return b
}
