package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"EchoChat/service/chat"
	"EchoChat/tools/errs"

	"github.com/gorilla/websocket"
)

// Conn 客户端一侧的 websocket 传输
type Conn struct {
	ws     *websocket.Conn
	ConnID string
	Node   string

	wmu sync.Mutex
}

// Dial 握手并等待 connected 帧拿到服务端分配的连接ID
func Dial(ctx context.Context, url, token string) (*Conn, error) {
	hdr := http.Header{}
	if token != "" {
		hdr.Set("Authorization", "Bearer "+token)
	}
	d := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, resp, err := d.DialContext(ctx, url, hdr)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "dial websocket", "url", url)
	}

	c := &Conn{ws: ws}
	if dl, ok := ctx.Deadline(); ok {
		_ = ws.SetReadDeadline(dl)
	}
	f, err := c.Read()
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	_ = ws.SetReadDeadline(time.Time{})
	if f.Type != chat.TypeConnected {
		_ = ws.Close()
		return nil, errs.ErrArgs.WrapMsg("expected connected frame", "type", f.Type)
	}
	var p chat.ConnectedPayload
	if err := f.DecodeData(&p); err != nil {
		_ = ws.Close()
		return nil, err
	}
	c.ConnID, c.Node = p.ConnectionID, p.Node
	return c, nil
}

// Send 可并发调用
func (c *Conn) Send(typ string, data any) error {
	b, err := chat.EncodeFrame(typ, data)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

// Read 只能由一个协程调用
func (c *Conn) Read() (*chat.Frame, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return chat.ParseFrameJSON(data)
}

func (c *Conn) Close() error {
	c.wmu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second))
	c.wmu.Unlock()
	return c.ws.Close()
}
