package handlers

import (
	"context"
	"testing"
	"time"

	"EchoChat/module/chat/model"
	"EchoChat/service/chat"
	"EchoChat/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t      *testing.T
	s      *chat.Server
	cancel context.CancelFunc
}

func newHarness(t *testing.T, opts chat.Options) *harness {
	t.Helper()
	if opts.NodeID == "" {
		opts.NodeID = "gw-test"
	}
	s := chat.NewServer(opts)
	RegisterAll(s)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &harness{t: t, s: s, cancel: cancel}
}

// attach 新连接并吃掉 connected 帧
func (h *harness) attach(connID, authUser string) *chat.Client {
	h.t.Helper()
	c := chat.NewClient(connID, authUser, nil, 32, time.Now())
	require.NoError(h.t, h.s.Attach(c))
	frames := h.drain(c)
	require.Len(h.t, frames, 1)
	require.Equal(h.t, chat.TypeConnected, frames[0].Type)
	return c
}

func (h *harness) send(c *chat.Client, typ string, data any) {
	h.t.Helper()
	raw, err := chat.EncodeFrame(typ, data)
	require.NoError(h.t, err)
	f, err := chat.ParseFrameJSON(raw)
	require.NoError(h.t, err)
	require.True(h.t, h.s.Receive(c, f))
	h.sync()
}

// sync 事件循环按 FIFO 执行，查询返回即之前的帧都已处理
func (h *harness) sync() {
	h.t.Helper()
	_, err := h.s.ConnectionsFor(context.Background())
	require.NoError(h.t, err)
}

func (h *harness) register(c *chat.Client, userID string) {
	h.t.Helper()
	h.send(c, chat.TypeRegister, chat.RegisterPayload{UserID: userID, ConnectionID: c.ConnID})
}

func (h *harness) drain(c *chat.Client) []chat.Frame {
	var out []chat.Frame
	for {
		select {
		case b := <-c.Send:
			f, err := chat.ParseFrameJSON(b)
			require.NoError(h.t, err)
			out = append(out, *f)
		default:
			return out
		}
	}
}

func (h *harness) connsFor(users ...string) []string {
	out, err := h.s.ConnectionsFor(context.Background(), users...)
	require.NoError(h.t, err)
	return out
}

func errorCode(t *testing.T, frames []chat.Frame) int {
	t.Helper()
	require.Len(t, frames, 1)
	require.Equal(t, chat.TypeError, frames[0].Type)
	var p chat.ErrorPayload
	require.NoError(t, frames[0].DecodeData(&p))
	return p.Code
}

func TestRegisterAndDisconnect(t *testing.T) {
	h := newHarness(t, chat.Options{})
	c1 := h.attach("c1", "")
	c2 := h.attach("c2", "")

	h.register(c1, "x")
	h.register(c2, "x")
	h.register(c2, "x")
	assert.Equal(t, []string{"c1", "c2"}, h.connsFor("x"))
	assert.Empty(t, h.drain(c1))

	h.s.Detach(c1)
	assert.Equal(t, []string{"c2"}, h.connsFor("x"))
	h.s.Detach(c2)
	assert.Empty(t, h.connsFor("x"))
	assert.Empty(t, h.s.OnlineCounts(context.Background()))
}

func TestRegisterRejectsForeignConnectionAndUser(t *testing.T) {
	h := newHarness(t, chat.Options{})
	c1 := h.attach("c1", "alice")

	h.send(c1, chat.TypeRegister, chat.RegisterPayload{UserID: "alice", ConnectionID: "someone-else"})
	assert.Equal(t, errs.NoPermissionError, errorCode(t, h.drain(c1)))

	h.send(c1, chat.TypeRegister, chat.RegisterPayload{UserID: "bob", ConnectionID: "c1"})
	assert.Equal(t, errs.NoPermissionError, errorCode(t, h.drain(c1)))

	h.send(c1, chat.TypeRegister, chat.RegisterPayload{ConnectionID: "c1"})
	assert.Equal(t, errs.ArgsError, errorCode(t, h.drain(c1)))

	assert.Empty(t, h.connsFor("alice", "bob"))
}

func TestUnknownFrameTypeReturnsError(t *testing.T) {
	h := newHarness(t, chat.Options{})
	c1 := h.attach("c1", "")
	h.send(c1, "typing", map[string]string{"x": "y"})
	assert.Equal(t, errs.ArgsError, errorCode(t, h.drain(c1)))
}

func TestMessageFanoutAcrossTabs(t *testing.T) {
	h := newHarness(t, chat.Options{})
	c1 := h.attach("c1", "")
	c2 := h.attach("c2", "")
	c3 := h.attach("c3", "")
	h.register(c1, "x")
	h.register(c2, "x")
	h.register(c3, "y")

	msg := model.Message{ID: "m1", ConversationID: "conv", SenderID: "x", Text: "hello", CreatedAt: time.Now().UTC()}
	h.send(c1, chat.TypeMessage, chat.MessagePayload{Message: msg, RecipientUserIDs: []string{"y"}})

	assert.Empty(t, h.drain(c1))
	for _, c := range []*chat.Client{c2, c3} {
		frames := h.drain(c)
		require.Len(t, frames, 2, c.ConnID)
		assert.Equal(t, chat.TypeMessage, frames[0].Type)
		assert.Equal(t, chat.TypeLatestActivity, frames[1].Type)
		var got model.Message
		require.NoError(t, frames[0].DecodeData(&got))
		assert.Equal(t, "hello", got.Text)
	}
}

func TestMessageRequiresRegisteredSender(t *testing.T) {
	h := newHarness(t, chat.Options{})
	c1 := h.attach("c1", "")
	c2 := h.attach("c2", "")
	h.register(c2, "y")

	msg := model.Message{ID: "m1", ConversationID: "conv", SenderID: "x"}
	h.send(c1, chat.TypeMessage, chat.MessagePayload{Message: msg, RecipientUserIDs: []string{"y"}})
	assert.Equal(t, errs.NoPermissionError, errorCode(t, h.drain(c1)))

	h.register(c1, "z")
	h.send(c1, chat.TypeMessage, chat.MessagePayload{Message: msg, RecipientUserIDs: []string{"y"}})
	assert.Equal(t, errs.NoPermissionError, errorCode(t, h.drain(c1)), "spoofed senderId")
	assert.Empty(t, h.drain(c2))
}

func TestConversationCreatedReachesMembers(t *testing.T) {
	h := newHarness(t, chat.Options{})
	c1 := h.attach("c1", "")
	c2 := h.attach("c2", "")
	c3 := h.attach("c3", "")
	h.register(c1, "x")
	h.register(c2, "y")
	h.register(c3, "z")

	sum := model.ConversationSummary{
		ID:      "conv",
		Members: []model.Member{{ConversationID: "conv", MemberID: "x"}, {ConversationID: "conv", MemberID: "y"}},
	}
	h.send(c1, chat.TypeCreateConversation, chat.CreateConversationPayload{Conversation: sum})

	assert.Empty(t, h.drain(c1))
	frames := h.drain(c2)
	require.Len(t, frames, 1)
	assert.Equal(t, chat.TypeConversationCreated, frames[0].Type)
	assert.Empty(t, h.drain(c3))

	// 创建者不在成员里
	h.send(c3, chat.TypeCreateConversation, chat.CreateConversationPayload{Conversation: sum})
	assert.Equal(t, errs.NoPermissionError, errorCode(t, h.drain(c3)))
}

func TestPingPong(t *testing.T) {
	h := newHarness(t, chat.Options{})
	c1 := h.attach("c1", "")
	h.send(c1, chat.TypePing, struct{}{})
	frames := h.drain(c1)
	require.Len(t, frames, 1)
	assert.Equal(t, chat.TypePong, frames[0].Type)
}

func TestMaxPerUserEvictsOldest(t *testing.T) {
	h := newHarness(t, chat.Options{MaxPerUser: 2})
	c1 := h.attach("c1", "")
	time.Sleep(time.Millisecond)
	c2 := h.attach("c2", "")
	time.Sleep(time.Millisecond)
	c3 := h.attach("c3", "")

	h.register(c1, "x")
	h.register(c2, "x")
	h.register(c3, "x")

	assert.Equal(t, []string{"c2", "c3"}, h.connsFor("x"))
	assert.True(t, c1.Closed())
	assert.False(t, c3.Closed())
}

func TestWithUserDoesNotMutateInput(t *testing.T) {
	in := make([]string, 1, 4)
	in[0] = "y"
	out := withUser(in, "x")
	assert.Equal(t, []string{"y", "x"}, out)
	assert.Equal(t, []string{"y"}, in)
	assert.Equal(t, []string{"x"}, withUser([]string{"x", "", "x"}, "x"))
}
