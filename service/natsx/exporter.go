package natsx

import (
	"context"
	"sync/atomic"
	"time"

	"EchoChat/logger"
)

const (
	HeaderOrigin = "Echo-Origin-Conn"
	HeaderNode   = "Echo-Node"
)

type exportItem struct {
	kind    string
	id      string
	origin  string
	payload []byte
}

// Exporter 把实时事件异步导出到 NATS。Export 从不阻塞调用方，队列满直接丢
type Exporter struct {
	p      *NatsxProducer
	node   string
	ch     chan exportItem
	routes map[string]struct{}

	dropped atomic.Int64
}

// NewExporter 为每种事件注册 <prefix>.<kind> 路由
func NewExporter(c *NatsxClient, prefix, node string, kinds []string, buf int) (*Exporter, error) {
	if buf <= 0 {
		buf = 1024
	}
	e := &Exporter{
		p:      NewNatsxProducer(c),
		node:   node,
		ch:     make(chan exportItem, buf),
		routes: make(map[string]struct{}, len(kinds)),
	}
	for _, k := range kinds {
		if err := c.RegisterRoute(NatsxRoute{Biz: k, Subject: prefix + "." + k}); err != nil {
			return nil, err
		}
		e.routes[k] = struct{}{}
	}
	return e, nil
}

func (e *Exporter) Export(kind, id, origin string, payload []byte) {
	if _, ok := e.routes[kind]; !ok {
		return
	}
	select {
	case e.ch <- exportItem{kind: kind, id: id, origin: origin, payload: payload}:
	default:
		if n := e.dropped.Add(1); n%1000 == 1 {
			logger.Warnf("[NATS] export queue full, dropped=%d", n)
		}
	}
}

func (e *Exporter) Dropped() int64 { return e.dropped.Load() }

// Run 发送循环，ctx 结束后把队列里剩下的尽量发完
func (e *Exporter) Run(ctx context.Context) error {
	for {
		select {
		case it := <-e.ch:
			e.publish(ctx, it)
		case <-ctx.Done():
			e.drain()
			return nil
		}
	}
}

func (e *Exporter) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case it := <-e.ch:
			e.publish(ctx, it)
		default:
			return
		}
	}
}

func (e *Exporter) publish(ctx context.Context, it exportItem) {
	hdr := map[string]string{HeaderNode: e.node}
	if it.origin != "" {
		hdr[HeaderOrigin] = it.origin
	}
	if err := e.p.PublishOnce(ctx, it.kind, it.payload, hdr, it.id); err != nil {
		logger.Warnf("[NATS] publish kind=%s id=%s failed: %v", it.kind, it.id, err)
	}
}

// Subscriber 订阅导出的事件，echoctl 用
type Subscriber struct {
	c  *NatsxClient
	cs *NatsxConsumer
}

func NewSubscriber(c *NatsxClient, prefix string, kinds []string, mws ...NatsxMiddleware) (*Subscriber, error) {
	for _, k := range kinds {
		if err := c.RegisterRoute(NatsxRoute{Biz: k, Subject: prefix + "." + k}); err != nil {
			return nil, err
		}
	}
	return &Subscriber{c: c, cs: NewNatsxConsumer(c, mws...)}, nil
}

func (s *Subscriber) Subscribe(ctx context.Context, kinds []string, h NatsxHandler) error {
	for _, k := range kinds {
		if err := s.cs.Subscribe(ctx, k, h); err != nil {
			return err
		}
	}
	return nil
}
