package chat

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryMultipleConnections(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", "x")
	r.Register("c2", "x")
	r.Register("c3", "y")

	assert.Equal(t, []string{"c1", "c2"}, r.ConnectionsFor([]string{"x"}))
	assert.Equal(t, []string{"c1", "c2", "c3"}, r.ConnectionsFor([]string{"x", "y", "x"}))
	assert.Empty(t, r.ConnectionsFor([]string{"nobody"}))
	assert.Empty(t, r.ConnectionsFor(nil))

	r.Unregister("c1")
	assert.Equal(t, []string{"c2"}, r.ConnectionsFor([]string{"x"}))
	r.Unregister("c2")
	assert.Empty(t, r.ConnectionsFor([]string{"x"}))
	assert.Equal(t, 0, r.Count("x"))
	_, ok := r.byUser["x"]
	assert.False(t, ok, "offline user must not keep an empty set")
}

func TestRegistryIdempotentAndNoops(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", "x")
	r.Register("c1", "x")
	assert.Equal(t, 1, r.Count("x"))
	assert.Equal(t, 1, r.Connections())

	r.Unregister("unknown")
	r.Unregister("c1")
	r.Unregister("c1")
	assert.Equal(t, 0, r.Users())

	r.Register("", "x")
	r.Register("c9", "")
	assert.Equal(t, 0, r.Connections())
}

func TestRegistryRebindMovesConnection(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", "x")
	r.Register("c1", "y")
	assert.Empty(t, r.ConnectionsFor([]string{"x"}))
	assert.Equal(t, []string{"c1"}, r.ConnectionsFor([]string{"y"}))
	u, ok := r.UserOf("c1")
	require.True(t, ok)
	assert.Equal(t, "y", u)
}

// 快速重连：新连接先注册，旧连接的断开后到
func TestRegistryFastReconnect(t *testing.T) {
	r := NewRegistry()
	r.Register("old", "x")
	r.Register("new", "x")
	r.Unregister("old")
	assert.Equal(t, []string{"new"}, r.ConnectionsFor([]string{"x"}))

	// 断开先于注册到达：unregister 是 no-op，随后的 register 正常生效
	r2 := NewRegistry()
	r2.Unregister("c1")
	r2.Register("c1", "x")
	assert.Equal(t, []string{"c1"}, r2.ConnectionsFor([]string{"x"}))
}

// 任意 register/unregister 交错后，结果与参考模型一致
func TestRegistryMatchesModelUnderRandomInterleavings(t *testing.T) {
	users := []string{"u0", "u1", "u2", "u3"}
	for seed := int64(1); seed <= 50; seed++ {
		rnd := rand.New(rand.NewSource(seed))
		r := NewRegistry()
		model := map[string]string{} // conn -> user

		// 每条连接恰好一次 register 和一次 unregister，顺序随机
		type op struct {
			reg  bool
			conn string
			user string
		}
		var ops []op
		for i := 0; i < 40; i++ {
			conn := fmt.Sprintf("c%d", i)
			user := users[rnd.Intn(len(users))]
			ops = append(ops, op{reg: true, conn: conn, user: user}, op{reg: false, conn: conn})
		}
		rnd.Shuffle(len(ops), func(i, j int) { ops[i], ops[j] = ops[j], ops[i] })

		for i, o := range ops {
			if o.reg {
				r.Register(o.conn, o.user)
				model[o.conn] = o.user
			} else {
				r.Unregister(o.conn)
				delete(model, o.conn)
			}
			if i%7 == 0 {
				assertMatchesModel(t, r, model, users)
			}
		}
		assertMatchesModel(t, r, model, users)
	}
}

func assertMatchesModel(t *testing.T, r *Registry, model map[string]string, users []string) {
	t.Helper()
	for _, u := range users {
		var want []string
		for c, owner := range model {
			if owner == u {
				want = append(want, c)
			}
		}
		sort.Strings(want)
		got := r.ConnectionsFor([]string{u})
		if len(want) == 0 {
			assert.Empty(t, got, "user %s", u)
			_, present := r.byUser[u]
			assert.False(t, present, "user %s kept with empty set", u)
			continue
		}
		assert.Equal(t, want, got, "user %s", u)
	}
}

func TestRegistrySnapshot(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", "x")
	r.Register("c2", "x")
	r.Register("c3", "y")
	assert.Equal(t, map[string]int{"x": 2, "y": 1}, r.Snapshot())
}
