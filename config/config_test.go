package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := New()

	assert.Equal(t, "ircserv", cfg.ServerName)
	assert.Equal(t, 6667, cfg.Port)
	assert.Equal(t, ":6667", cfg.ListenAddr())
	assert.Equal(t, "127.0.0.1:8090", cfg.AdminAddr())
	assert.True(t, cfg.Admin.Metrics)
	assert.False(t, cfg.Admin.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "ircd.yaml", `
server_name: irc.test.local
port: 6697
password: sekret
motd:
  - Welcome aboard
  - Enjoy your stay
operators:
  - name: root
    hash: $2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy
admin:
  enabled: true
  port: 9001
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "irc.test.local", cfg.ServerName)
	assert.Equal(t, 6697, cfg.Port)
	assert.Equal(t, "sekret", cfg.Password)
	assert.Equal(t, []string{"Welcome aboard", "Enjoy your stay"}, cfg.MOTD)
	assert.True(t, cfg.Admin.Enabled)
	assert.Equal(t, "127.0.0.1:9001", cfg.AdminAddr())
	assert.Equal(t, path, cfg.Source)

	op, ok := cfg.FindOperator("root")
	require.True(t, ok)
	assert.NotEmpty(t, op.Hash)

	_, ok = cfg.FindOperator("nobody")
	assert.False(t, ok)
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "ircd.toml", `
server_name = "irc.toml.local"
port = 7000

[admin]
enabled = true
host = "0.0.0.0"
port = 9000
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "irc.toml.local", cfg.ServerName)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "0.0.0.0:9000", cfg.AdminAddr())
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "ircd.json", `{"server_name": "irc.json.local", "port": 7001}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "irc.json.local", cfg.ServerName)
	assert.Equal(t, 7001, cfg.Port)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "ircd.yaml", "server_name: from.file\nport: 7000\n")

	t.Setenv("IRCD_SERVER_NAME", "from.env")
	t.Setenv("IRCD_PORT", "7100")
	t.Setenv("IRCD_MOTD", "line one|line two")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from.env", cfg.ServerName)
	assert.Equal(t, 7100, cfg.Port)
	assert.Equal(t, []string{"line one", "line two"}, cfg.MOTD)
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := New()
	cfg.Port = 80
	assert.Error(t, cfg.Validate())

	cfg.Port = 70000
	assert.Error(t, cfg.Validate())

	cfg.Port = 6667
	cfg.ServerName = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsIncompleteOperator(t *testing.T) {
	cfg := New()
	cfg.Operators = []Operator{{Name: "root"}}
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
