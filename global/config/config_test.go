package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithEnvSecret(t *testing.T) {
	t.Setenv("ECHO_JWT_SECRET", "s3cret")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, c.Store.Driver)
	assert.Equal(t, ":8080", c.Node.HTTPAddr)
	assert.Equal(t, 60*time.Second, c.Conn.UnauthTTL)
	assert.Equal(t, 256, c.Conn.SendQueue)
	assert.Equal(t, "s3cret", c.JWT.Secret)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
node:
  id: gw-test
conn:
  max_per_user: 3
  unauth_ttl: 5s
  allowed_origins: "a.example,b.example"
store:
  driver: postgres
  postgres_url: postgres://localhost/echo
jwt:
  secret: from-file
`), 0o600))
	t.Setenv("ECHO_NODE_ID", "gw-env")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gw-env", c.Node.ID)
	assert.Equal(t, 3, c.Conn.MaxPerUser)
	assert.Equal(t, 5*time.Second, c.Conn.UnauthTTL)
	assert.Equal(t, []string{"a.example", "b.example"}, c.Conn.AllowedOrigins)
	assert.Equal(t, StorePostgres, c.Store.Driver)
	assert.Equal(t, "from-file", c.JWT.Secret)
}

func TestValidateRejects(t *testing.T) {
	t.Setenv("ECHO_JWT_SECRET", "x")
	t.Setenv("ECHO_STORE_DRIVER", "mongo")
	_, err := Load("")
	require.Error(t, err)

	t.Setenv("ECHO_STORE_DRIVER", "sqlite")
	_, err = Load("")
	require.Error(t, err)
}

func TestMissingSecret(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
}
