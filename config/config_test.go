package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/younglifestyle/rsap4go/session"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rsapd.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadCardBackend(t *testing.T) {
	path := writeConfig(t, `
backend = "card"

[log]
debug = true
file = "/var/log/rsapd.log"

[card]
reader = "Gemalto"
wait = "3s"

[session]
connect_reply = "status_only"
strict_ordering = true

[relay]
submit_timeout = "12s"

[network]
listen = "0.0.0.0:7300"
idle_timeout = "2m"

[network.tls]
cert_file = "server.crt"
key_file = "server.key"
ca_file = "ca.crt"

[rpc]
listen = "127.0.0.1:8080"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendCard, cfg.Backend)
	assert.Equal(t, "Gemalto", cfg.Card.Reader)
	assert.Equal(t, "/rpc", cfg.RPC.Path)
	assert.True(t, cfg.Network.TLS.Mutual)

	timeouts := cfg.Timeouts()
	assert.Equal(t, 12*time.Second, timeouts.Submit)
	assert.Equal(t, 3*time.Second, timeouts.CardWait)
	assert.Equal(t, 5*time.Second, timeouts.Handshake)
	assert.Equal(t, 2*time.Minute, timeouts.Idle)

	opts := cfg.SessionOptions(nil)
	assert.Equal(t, session.ConnectReplyStatusOnly, opts.ConnectReply)
	assert.True(t, opts.StrictOrdering)
	assert.Equal(t, uint16(0xFFFF), opts.MaxMsgSize)

	zo := cfg.ZapOptions()
	assert.True(t, zo.DebugLevel)
	assert.Equal(t, "/var/log/rsapd.log", zo.LogFile)
	assert.Equal(t, 100, zo.MaxSize)
}

func TestLoadRemoteBackend(t *testing.T) {
	path := writeConfig(t, `
backend = "remote"

[network]
remote = "card-host:7300"

[network.tls]
cert_file = "client.crt"
key_file = "client.key"
ca_file = "ca.crt"
server_name = "card-host"

[grpc]
listen = ":9090"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendRemote, cfg.Backend)
	assert.Equal(t, "card-host", cfg.Network.TLS.ServerName)
	assert.Equal(t, ":9090", cfg.GRPC.Listen)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "backend = \"card\"\ncolour = \"blue\"\n[rpc]\nlisten = \":1\"\n"},
		{"unknown backend", "backend = \"modem\"\n[rpc]\nlisten = \":1\"\n"},
		{"remote without address", "backend = \"remote\"\n[rpc]\nlisten = \":1\"\n"},
		{"bad connect reply", "[session]\nconnect_reply = \"never\"\n[rpc]\nlisten = \":1\"\n"},
		{"listener without certificate", "[network]\nlisten = \":7300\"\n"},
		{"mutual without ca", "[network]\nlisten = \":7300\"\n[network.tls]\ncert_file = \"a\"\nkey_file = \"b\"\n"},
		{"no listener", "backend = \"card\"\n"},
		{"bad duration", "[card]\nwait = \"soon\"\n[rpc]\nlisten = \":1\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidateNormalisesBackend(t *testing.T) {
	cfg := Default()
	cfg.Backend = " CARD "
	cfg.RPC.Listen = ":8080"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendCard, cfg.Backend)
}
