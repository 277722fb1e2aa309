package chat

import (
	"net"
	"net/http"
	"time"

	"EchoChat/logger"
	"EchoChat/middleware"
	midsec "EchoChat/middleware/security"
	"EchoChat/service/metrics"
	"EchoChat/tools/errs"
	"EchoChat/tools/ids"
	"EchoChat/tools/safe"
	sec "EchoChat/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     middleware.OriginChecker(s.opts.AllowedOrigins),
	}
}

// authenticate 握手阶段校验 token，返回用户ID
func (s *Server) authenticate(r *http.Request) (string, error) {
	if s.opts.Auth == nil {
		return "", nil
	}
	token := midsec.TokenFrom(r, s.opts.Auth)
	if token == "" {
		return "", errs.ErrTokenMissing.Wrap()
	}
	claims, err := sec.Verify(s.opts.Auth.JWT, token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// HandleWS websocket 入口：鉴权 -> 升级 -> 写协程 -> 读循环 -> 下线
func (s *Server) HandleWS(c *gin.Context) {
	userID, err := s.authenticate(c.Request)
	if err != nil {
		logger.Infof("[WS] handshake rejected remote=%s err=%v", c.ClientIP(), err)
		ce, ok := errs.AsCode(err)
		if !ok {
			ce = &errs.ErrTokenInvalid
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, errs.NewCodeError(ce.Code, ce.Msg))
		return
	}

	up := s.upgrader()
	ws, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 非 WebSocket 请求/握手失败，Upgrade 已写回错误
		logger.Infof("[WS] upgrade websocket error: %v", err)
		return
	}

	client := NewClient(ids.GenerateString(), userID, ws, s.opts.SendQueue, s.opts.Clock())
	if err := s.Attach(client); err != nil {
		logger.Warnf("[WS] attach conn=%s err=%v", client.ConnID, err)
		_ = ws.Close()
		return
	}
	logger.Infof("[WS] connected conn=%s auth_user=%s remote=%s", client.ConnID, userID, ws.RemoteAddr())

	safe.SafeGo("ws-write-"+client.ConnID, func() {
		client.writePump(s.opts.PingInterval, s.opts.WriteWait)
	})
	s.readLoop(client)
	s.Detach(client)
}

// readLoop 只读不写；出错即退出
func (s *Server) readLoop(c *Client) {
	ws := c.WS
	ws.SetReadLimit(s.opts.MaxFrameBytes)
	_ = ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[WS] peer closed conn=%s user=%s", c.ConnID, c.UserID())
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[WS] read timeout conn=%s user=%s", c.ConnID, c.UserID())
			} else if !c.Closed() {
				logger.Infof("[WS] read err conn=%s user=%s err=%v", c.ConnID, c.UserID(), rerr)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		// 任何业务帧都算活跃
		_ = ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))

		f, perr := ParseFrameJSON(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("[WS] ParseFrameJSON err conn=%s err=%v sample=%q len=%d", c.ConnID, perr, sample, len(data))
			metrics.FramesReceived.WithLabelValues("invalid").Inc()
			c.Enqueue(BuildErrorFrame(perr))
			continue
		}
		metrics.FramesReceived.WithLabelValues(frameLabel(f.Type)).Inc()
		if !s.Receive(c, f) {
			return
		}
	}
}

// frameLabel 限制指标标签的基数
func frameLabel(t string) string {
	switch t {
	case TypeRegister, TypeMessage, TypeCreateConversation, TypePing:
		return t
	default:
		return "other"
	}
}
