package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"EchoChat/global"
	"EchoChat/global/config"
	"EchoChat/module/chat/api"
	"EchoChat/service/chat"
	"EchoChat/service/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineRoutes(t *testing.T) {
	t.Setenv("ECHO_JWT_SECRET", "gw-secret")
	cfg, err := config.Load("")
	require.NoError(t, err)

	store, err := global.ConfigStore(context.Background(), cfg)
	require.NoError(t, err)
	srv := chat.NewServer(global.ServerOptions(cfg))
	r := newEngine(cfg, srv, api.New(store, storage.NewMemoryPresence(cfg.Node.ID)))

	for path, want := range map[string]int{
		"/healthz":           http.StatusOK,
		"/metrics":           http.StatusOK,
		"/api/users":         http.StatusOK,
		"/api/conversations": http.StatusUnauthorized,
		"/ws":                http.StatusUnauthorized,
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, w.Code, path)
	}
}
