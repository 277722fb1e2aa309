// Package handlers 入站帧处理器
package handlers

import "EchoChat/service/chat"

// RegisterAll 装配全部处理器
func RegisterAll(s *chat.Server) {
	s.Disp().Register(
		RegisterHandler{},
		MessageHandler{},
		CreateConversationHandler{},
		PingHandler{},
	)
}
