package natsx

import "context"

// NatsxMessage 是从 NATS 收到的一条聊天事件；Data 为原始 JSON 帧
type NatsxMessage struct {
	Subject string
	Data    []byte
	Header  map[string]string
}

// Kind 取 subject 最后一段，即事件类型（message / latest-activity / ...）
func (m NatsxMessage) Kind() string {
	for i := len(m.Subject) - 1; i >= 0; i-- {
		if m.Subject[i] == '.' {
			return m.Subject[i+1:]
		}
	}
	return m.Subject
}

type NatsxHandler func(ctx context.Context, msg NatsxMessage) error

// NatsxMiddleware 包一层处理（去重、日志）
type NatsxMiddleware func(NatsxHandler) NatsxHandler

// NatsxChain 按声明顺序包裹，mws[0] 最外层
func NatsxChain(h NatsxHandler, mws ...NatsxMiddleware) NatsxHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
