package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"EchoChat/data/database"
	"EchoChat/data/database/memory"
	"EchoChat/global"
	"EchoChat/global/config"
	"EchoChat/middleware"
	"EchoChat/module/chat/api"
	"EchoChat/module/chat/model"
	"EchoChat/service/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSURL(t *testing.T) {
	a := &app{}
	for in, want := range map[string]string{
		"http://127.0.0.1:8080/": "ws://127.0.0.1:8080/ws",
		"https://chat.example":   "wss://chat.example/ws",
	} {
		a.flags.server = in
		assert.Equal(t, want, a.wsURL())
	}
}

func TestTitleFallsBackToMemberFirstNames(t *testing.T) {
	sum := model.ConversationSummary{Members: []model.Member{
		{MemberID: "u-alice", User: model.User{Name: "Alice Smith"}},
		{MemberID: "u-bob", User: model.User{Name: "Bob Jones"}},
		{MemberID: "u-x"},
	}}
	assert.Equal(t, "Bob, u-x", title(sum, "u-alice"))
	sum.Name = "team"
	assert.Equal(t, "team", title(sum, "u-alice"))
}

func TestRendererPrintsEachMessageOnce(t *testing.T) {
	var buf bytes.Buffer
	r := &renderer{app: &app{out: &buf}, names: map[string]string{"x": "Xavier"}, printed: map[string]struct{}{}}
	t0 := time.Now().Add(-time.Hour)
	msgs := []model.Message{
		{ID: "1", SenderID: "x", Text: "one", CreatedAt: t0},
		{ID: "2", SenderID: "x", Text: "two", CreatedAt: t0.Add(30 * time.Second)},
	}
	r.render(msgs)
	r.render(append(msgs, model.Message{ID: "3", SenderID: "x", Text: "three", CreatedAt: t0.Add(400 * time.Second)}))

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "one"))
	assert.Equal(t, 2, strings.Count(out, "Xavier:"))
	assert.Equal(t, 2, strings.Count(out, "--- "))
}

func TestUsersAndTokenCommands(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("ECHO_JWT_SECRET", "ctl-secret")
	cfg, err := config.Load("")
	require.NoError(t, err)

	store := memory.New()
	require.NoError(t, database.Seed(context.Background(), store, database.DemoUsers))
	r := gin.New()
	api.New(store, storage.NewMemoryPresence("gw")).Mount(middleware.NewRouter(r.Group("/api"), global.AuthOptions(cfg)))
	ts := httptest.NewServer(r)
	defer ts.Close()

	run := func(args ...string) string {
		var out bytes.Buffer
		cmd := newRootCmd()
		cmd.SetOut(&out)
		cmd.SetArgs(append(args, "--server", ts.URL))
		require.NoError(t, cmd.Execute())
		return out.String()
	}

	out := run("users")
	for _, u := range database.DemoUsers {
		assert.Contains(t, out, u.ID)
	}

	out = run("presence", "u-bob", "--user", "u-alice")
	assert.Contains(t, out, "u-bob offline")

	assert.NotEmpty(t, strings.TrimSpace(run("token")))
}
