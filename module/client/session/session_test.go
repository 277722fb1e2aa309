package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"EchoChat/module/chat/model"
	"EchoChat/service/chat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI ListMessages 可以被卡住，用来制造乱序返回
type fakeAPI struct {
	mu    sync.Mutex
	convs []model.ConversationSummary
	msgs  map[string][]model.Message
	gates map[string]chan struct{}
	seq   int
}

func (f *fakeAPI) ListConversations(context.Context) ([]model.ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ConversationSummary(nil), f.convs...), nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, convID string) ([]model.Message, error) {
	f.mu.Lock()
	gate := f.gates[convID]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Message(nil), f.msgs[convID]...), nil
}

func (f *fakeAPI) CreateMessage(_ context.Context, convID, text string, _ *model.Attachment) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	m := model.Message{ID: "new-" + string(rune('0'+f.seq)), ConversationID: convID, SenderID: "me", Text: text, CreatedAt: time.Now().UTC()}
	f.msgs[convID] = append(f.msgs[convID], m)
	return &m, nil
}

func (f *fakeAPI) CreateConversation(_ context.Context, n model.NewConversation) (*model.ConversationSummary, error) {
	sum := &model.ConversationSummary{ID: "created", Name: n.Name, UpdatedAt: time.Now().UTC()}
	return sum, nil
}

func startSession(t *testing.T, me string, api API) *Session {
	t.Helper()
	s := New(me, api)
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
	return s
}

func frame(t *testing.T, typ string, data any) *chat.Frame {
	t.Helper()
	b, err := chat.EncodeFrame(typ, data)
	require.NoError(t, err)
	f, err := chat.ParseFrameJSON(b)
	require.NoError(t, err)
	return f
}

func (s *Session) push(t *testing.T, typ string, data any) {
	t.Helper()
	f := frame(t, typ, data)
	require.NoError(t, s.call(context.Background(), func() { s.handleFrame(f) }))
}

func msgIDs(ms []model.Message) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}

var now0 = time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

func TestStaleHistoryIsDiscarded(t *testing.T) {
	api := &fakeAPI{
		msgs: map[string][]model.Message{
			"a": {{ID: "a1", ConversationID: "a", CreatedAt: now0}},
			"b": {{ID: "b1", ConversationID: "b", CreatedAt: now0}},
		},
		gates: map[string]chan struct{}{"a": make(chan struct{})},
	}
	s := startSession(t, "me", api)
	ctx := context.Background()

	errA := make(chan error, 1)
	go func() { errA <- s.Open(ctx, "a") }()
	require.Eventually(t, func() bool { return s.OpenID(ctx) == "a" }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Open(ctx, "b"))
	close(api.gates["a"])
	require.NoError(t, <-errA)

	assert.Equal(t, "b", s.OpenID(ctx))
	assert.Equal(t, []string{"b1"}, msgIDs(s.Messages(ctx)))
}

func TestPushDuringFetchSurvivesHistory(t *testing.T) {
	api := &fakeAPI{
		msgs:  map[string][]model.Message{"a": {{ID: "a1", ConversationID: "a", CreatedAt: now0}}},
		gates: map[string]chan struct{}{"a": make(chan struct{})},
	}
	s := startSession(t, "me", api)
	ctx := context.Background()

	errA := make(chan error, 1)
	go func() { errA <- s.Open(ctx, "a") }()
	require.Eventually(t, func() bool { return s.OpenID(ctx) == "a" }, time.Second, 5*time.Millisecond)

	live := model.Message{ID: "a2", ConversationID: "a", CreatedAt: now0.Add(time.Minute)}
	s.push(t, chat.TypeMessage, live)
	s.push(t, chat.TypeMessage, live)
	s.push(t, chat.TypeMessage, model.Message{ID: "x1", ConversationID: "other", CreatedAt: now0})

	close(api.gates["a"])
	require.NoError(t, <-errA)
	assert.Equal(t, []string{"a1", "a2"}, msgIDs(s.Messages(ctx)))
}

func TestLatestActivityReordersIndex(t *testing.T) {
	api := &fakeAPI{
		convs: []model.ConversationSummary{
			{ID: "a", UpdatedAt: now0},
			{ID: "b", UpdatedAt: now0.Add(time.Minute)},
			{ID: "c", UpdatedAt: now0.Add(2 * time.Minute)},
		},
		msgs: map[string][]model.Message{},
	}
	s := startSession(t, "me", api)
	ctx := context.Background()
	require.NoError(t, s.LoadConversations(ctx))

	d := now0.Add(time.Hour)
	s.push(t, chat.TypeLatestActivity, chat.LatestActivityPayload{ConversationID: "a", UpdatedAt: d, Message: model.Message{ID: "m", ConversationID: "a", CreatedAt: d}})
	s.push(t, chat.TypeLatestActivity, chat.LatestActivityPayload{ConversationID: "unknown", UpdatedAt: d})
	s.push(t, chat.TypeConversationCreated, chat.CreateConversationPayload{Conversation: model.ConversationSummary{ID: "n", UpdatedAt: d.Add(time.Second)}})

	var order []string
	for _, sum := range s.Conversations(ctx, "") {
		order = append(order, sum.ID)
	}
	assert.Equal(t, []string{"n", "a", "c", "b"}, order)
}

func TestSendWithoutLiveChannelStillPersists(t *testing.T) {
	api := &fakeAPI{
		convs: []model.ConversationSummary{{ID: "a", UpdatedAt: now0}},
		msgs:  map[string][]model.Message{},
	}
	s := startSession(t, "me", api)
	ctx := context.Background()
	require.NoError(t, s.LoadConversations(ctx))

	_, err := s.Send(ctx, "hi", nil)
	assert.Error(t, err, "nothing open")

	require.NoError(t, s.Open(ctx, "a"))
	assert.False(t, s.Live())
	m, err := s.Send(ctx, "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{m.ID}, msgIDs(s.Messages(ctx)))

	list := s.Conversations(ctx, "")
	require.Len(t, list, 1)
	assert.True(t, list[0].UpdatedAt.Equal(m.CreatedAt))
}
