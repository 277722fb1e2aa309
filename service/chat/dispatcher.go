package chat

import "EchoChat/tools/errs"

// Handler 处理一种入站帧。Handle 在事件循环里执行，不能阻塞
type Handler interface {
	Type() string
	Handle(ctx *Context, f *Frame) error
}

// Context 单帧处理上下文
type Context struct {
	S      *Server
	Client *Client
}

type Dispatcher struct {
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(hs ...Handler) {
	for _, h := range hs {
		d.handlers[h.Type()] = h
	}
}

func (d *Dispatcher) GetHandler(typ string) Handler {
	return d.handlers[typ]
}

func (d *Dispatcher) Dispatch(ctx *Context, f *Frame) error {
	h, ok := d.handlers[f.Type]
	if !ok {
		return errs.ErrArgs.WrapMsg("no handler for frame", "type", f.Type)
	}
	return h.Handle(ctx, f)
}
