package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnManagerAddGetRemove(t *testing.T) {
	m := NewConnManager(ManagerConf{}, "gw-1")
	c := NewClient("c1", "", nil, 4, time.Now())

	require.NoError(t, m.Add(c))
	assert.Error(t, m.Add(c), "duplicate connID")
	assert.Error(t, m.Add(nil))
	assert.Same(t, c, m.Get("c1"))
	assert.Equal(t, 1, m.Len())

	assert.Same(t, c, m.Remove("c1"))
	assert.Nil(t, m.Remove("c1"))
	assert.Nil(t, m.Get("c1"))
	assert.False(t, c.Closed(), "Remove must not close the transport")
}

func TestConnManagerSweepsOnlyStaleUnregistered(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewConnManager(ManagerConf{UnauthTTL: time.Minute}, "gw-1")

	stale := NewClient("stale", "", nil, 4, t0)
	fresh := NewClient("fresh", "", nil, 4, t0.Add(50*time.Second))
	registered := NewClient("reg", "", nil, 4, t0)
	registered.setUser("x")
	for _, c := range []*Client{stale, fresh, registered} {
		require.NoError(t, m.Add(c))
	}

	assert.Equal(t, 1, m.sweepOnce(t0.Add(61*time.Second)))
	assert.True(t, stale.Closed())
	assert.False(t, fresh.Closed())
	assert.False(t, registered.Closed())
}

func TestConnManagerOldest(t *testing.T) {
	t0 := time.Now()
	m := NewConnManager(ManagerConf{}, "gw-1")
	a := NewClient("a", "", nil, 4, t0.Add(2*time.Second))
	b := NewClient("b", "", nil, 4, t0)
	require.NoError(t, m.Add(a))
	require.NoError(t, m.Add(b))

	assert.Same(t, b, m.Oldest([]string{"a", "b", "missing"}))
	assert.Nil(t, m.Oldest([]string{"missing"}))
}

func TestClientEnqueueAfterClose(t *testing.T) {
	c := NewClient("c1", "", nil, 1, time.Now())
	assert.True(t, c.Enqueue([]byte("a")))
	assert.False(t, c.Enqueue([]byte("b")), "queue full")
	c.Close("bye")
	c.Close("again")
	<-c.Send
	assert.False(t, c.Enqueue([]byte("c")))
}

func TestParseFrameRejectsGarbage(t *testing.T) {
	_, err := ParseFrameJSON([]byte("not json"))
	assert.Error(t, err)
	_, err = ParseFrameJSON([]byte(`{"data":{}}`))
	assert.Error(t, err)

	f, err := ParseFrameJSON([]byte(`{"type":"register","data":{"userId":"x","connectionId":"c1"}}`))
	require.NoError(t, err)
	var p RegisterPayload
	require.NoError(t, f.DecodeData(&p))
	assert.Equal(t, RegisterPayload{UserID: "x", ConnectionID: "c1"}, p)
}

func TestBuildErrorFrameCarriesCode(t *testing.T) {
	f, err := ParseFrameJSON(BuildErrorFrame(assert.AnError))
	require.NoError(t, err)
	assert.Equal(t, TypeError, f.Type)
	var p ErrorPayload
	require.NoError(t, f.DecodeData(&p))
	assert.NotZero(t, p.Code)
}
