package global

import (
	"context"
	"testing"
	"time"

	"EchoChat/global/config"
	"EchoChat/module/chat/model"
	sec "EchoChat/tools/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	t.Setenv("ECHO_JWT_SECRET", "bootstrap-secret")
	t.Setenv("ECHO_CONN_MAX_PER_USER", "3")
	c, err := config.Load("")
	require.NoError(t, err)
	return c
}

func TestServerOptionsFromConfig(t *testing.T) {
	c := testConfig(t)
	o := ServerOptions(c)
	assert.Equal(t, c.Node.ID, o.NodeID)
	assert.Equal(t, 3, o.MaxPerUser)
	assert.Equal(t, 60*time.Second, o.UnauthTTL)
	require.NotNil(t, o.Auth)

	token, _, err := sec.Generate(o.Auth.JWT, "u-1", nil)
	require.NoError(t, err)
	claims, err := sec.Verify(JWTOptions(c), token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
}

func TestMemoryStoreIsSeeded(t *testing.T) {
	c := testConfig(t)
	ctx := context.Background()
	s, err := ConfigStore(ctx, c)
	require.NoError(t, err)
	defer s.Close(ctx)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, users)

	sum, err := s.CreateConversation(ctx, model.NewConversation{CreatorID: users[0].ID, MemberIDs: []string{users[1].ID}})
	require.NoError(t, err)
	assert.Len(t, sum.Members, 2)
}

func TestPresenceFallsBackToMemory(t *testing.T) {
	c := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := ConfigPresence(ctx, c, func(context.Context) map[string]int { return nil })
	require.NoError(t, err)
	go func() { _ = p.Run(ctx) }()

	require.NoError(t, p.Set(ctx, "u-1", 1))
	require.Eventually(t, func() bool {
		info, err := p.Lookup(ctx, "u-1")
		return err == nil && info.Online
	}, time.Second, 5*time.Millisecond)

	nc, err := ConfigNats(c)
	assert.NoError(t, err)
	assert.Nil(t, nc)
}
