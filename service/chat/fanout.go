package chat

import (
	"EchoChat/logger"
	"EchoChat/module/chat/model"
	"EchoChat/service/metrics"
)

// EventSink 事件导出（NATS 等），实现方不得阻塞
type EventSink interface {
	Export(kind, id, origin string, payload []byte)
}

// FanoutRouter 把事件推给目标用户的所有在线连接，origin 连接总是排除。
// 投递尽力而为：每条在线连接至多一次，不排队不重试
type FanoutRouter struct {
	reg   ConnectionRegistry
	conns *ConnManager
	sink  EventSink
}

func NewFanoutRouter(reg ConnectionRegistry, conns *ConnManager, sink EventSink) *FanoutRouter {
	return &FanoutRouter{reg: reg, conns: conns, sink: sink}
}

// MessageCreated 发送方本连接已经有这条消息，不回推
func (f *FanoutRouter) MessageCreated(origin string, msg model.Message, recipients []string) int {
	payload, err := EncodeFrame(TypeMessage, msg)
	if err != nil {
		logger.Warnf("[Fanout] encode message id=%s err=%v", msg.ID, err)
		return 0
	}
	n := f.push(TypeMessage, origin, recipients, payload)
	f.export(TypeMessage, msg.ID, origin, payload)
	return n
}

// LatestActivityChanged recipients 应包含发送者，这样发送者的其他标签页也会重排
func (f *FanoutRouter) LatestActivityChanged(origin string, msg model.Message, recipients []string) int {
	payload, err := EncodeFrame(TypeLatestActivity, LatestActivityPayload{
		ConversationID: msg.ConversationID,
		UpdatedAt:      msg.CreatedAt,
		Message:        msg,
	})
	if err != nil {
		logger.Warnf("[Fanout] encode latest-activity id=%s err=%v", msg.ID, err)
		return 0
	}
	n := f.push(TypeLatestActivity, origin, recipients, payload)
	f.export(TypeLatestActivity, msg.ID, origin, payload)
	return n
}

// ConversationCreated 创建者本连接从同步创建结果里拿数据，不回推
func (f *FanoutRouter) ConversationCreated(origin string, sum model.ConversationSummary, members []string) int {
	payload, err := EncodeFrame(TypeConversationCreated, CreateConversationPayload{Conversation: sum})
	if err != nil {
		logger.Warnf("[Fanout] encode conversation-created id=%s err=%v", sum.ID, err)
		return 0
	}
	n := f.push(TypeConversationCreated, origin, members, payload)
	f.export(TypeConversationCreated, sum.ID, origin, payload)
	return n
}

func (f *FanoutRouter) push(event, origin string, targets []string, payload []byte) int {
	delivered := 0
	for _, connID := range f.reg.ConnectionsFor(targets) {
		if connID == origin {
			continue
		}
		c := f.conns.Get(connID)
		if c == nil {
			// 解析后连接已断开，静默丢弃
			metrics.FanoutDropped.WithLabelValues(event, "gone").Inc()
			continue
		}
		if !c.Enqueue(payload) {
			metrics.FanoutDropped.WithLabelValues(event, "full").Inc()
			logger.Debugf("[Fanout] drop event=%s conn=%s (closed or queue full)", event, connID)
			continue
		}
		metrics.FanoutPushes.WithLabelValues(event).Inc()
		delivered++
	}
	return delivered
}

func (f *FanoutRouter) export(kind, id, origin string, payload []byte) {
	if f.sink == nil {
		return
	}
	f.sink.Export(kind, kind+":"+id, origin, payload)
}
