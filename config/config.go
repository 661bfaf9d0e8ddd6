// Package config loads the rsapd configuration file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/younglifestyle/rsap4go/codec"
	"github.com/younglifestyle/rsap4go/common"
	"github.com/younglifestyle/rsap4go/rsap"
	"github.com/younglifestyle/rsap4go/session"
	"github.com/younglifestyle/rsap4go/transport/tlsconf"
)

const (
	BackendCard   = "card"
	BackendRemote = "remote"
)

var ErrInvalid = errors.New("config: invalid configuration")

type Config struct {
	// Backend is "card" for a local reader or "remote" to forward to another
	// rsapd over QUIC.
	Backend string        `toml:"backend"`
	Log     LogConfig     `toml:"log"`
	Card    CardConfig    `toml:"card"`
	Session SessionConfig `toml:"session"`
	Relay   RelayConfig   `toml:"relay"`
	Network NetworkConfig `toml:"network"`
	RPC     RPCConfig     `toml:"rpc"`
	GRPC    GRPCConfig    `toml:"grpc"`
}

type LogConfig struct {
	Debug      bool   `toml:"debug"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
	Console    bool   `toml:"console"`
}

type CardConfig struct {
	Reader string        `toml:"reader"`
	Wait   time.Duration `toml:"wait"`
}

type SessionConfig struct {
	// ConnectReply is "both" or "status_only".
	ConnectReply   string `toml:"connect_reply"`
	StrictOrdering bool   `toml:"strict_ordering"`
	MaxMsgSize     uint16 `toml:"max_msg_size"`
	MinMaxMsgSize  uint16 `toml:"min_max_msg_size"`
}

type RelayConfig struct {
	SubmitTimeout time.Duration `toml:"submit_timeout"`
}

// NetworkConfig covers the QUIC channel: Listen serves the local backend,
// Remote is the server a remote backend forwards to.
type NetworkConfig struct {
	Listen         string        `toml:"listen"`
	Remote         string        `toml:"remote"`
	Handshake      time.Duration `toml:"handshake_timeout"`
	Idle           time.Duration `toml:"idle_timeout"`
	MaxMessageSize int           `toml:"max_message_size"`
	TLS            tlsconf.Files `toml:"tls"`
}

type RPCConfig struct {
	Listen         string `toml:"listen"`
	Path           string `toml:"path"`
	MaxRequestSize int    `toml:"max_request_size"`
}

type GRPCConfig struct {
	Listen string `toml:"listen"`
	// TLS serves gRPC with the [network.tls] material.
	TLS bool `toml:"tls"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() Config {
	t := common.NewTimeouts()
	return Config{
		Backend: BackendCard,
		Log:     LogConfig{MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 30},
		Card:    CardConfig{Wait: t.CardWait},
		Session: SessionConfig{
			ConnectReply: session.ConnectReplyBoth.String(),
			MaxMsgSize:   rsap.DefaultMaxFrameSize,
		},
		Relay: RelayConfig{SubmitTimeout: t.Submit},
		Network: NetworkConfig{
			Handshake:      t.Handshake,
			Idle:           t.Idle,
			MaxMessageSize: codec.DefaultMaxMessageSize,
			TLS:            tlsconf.Files{Mutual: true},
		},
		RPC: RPCConfig{Path: "/rpc", MaxRequestSize: codec.DefaultMaxMessageSize},
	}
}

// Load reads path over Default and validates the result. Unknown keys are
// rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%w: unknown keys %s", ErrInvalid, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration can be composed into a daemon.
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case BackendCard:
	case BackendRemote:
		if c.Network.Remote == "" {
			return fmt.Errorf("%w: backend %q needs network.remote", ErrInvalid, c.Backend)
		}
		if c.Network.Listen != "" {
			return fmt.Errorf("%w: a remote backend cannot serve network.listen", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Backend)
	}

	if _, ok := session.ParseConnectReply(c.Session.ConnectReply); !ok {
		return fmt.Errorf("%w: unknown session.connect_reply %q", ErrInvalid, c.Session.ConnectReply)
	}
	if c.Session.MinMaxMsgSize > c.Session.MaxMsgSize && c.Session.MaxMsgSize != 0 {
		return fmt.Errorf("%w: session.min_max_msg_size above session.max_msg_size", ErrInvalid)
	}

	needsTLS := c.Network.Listen != "" || c.GRPC.TLS
	if needsTLS && (c.Network.TLS.CertFile == "" || c.Network.TLS.KeyFile == "") {
		return fmt.Errorf("%w: network.tls cert_file and key_file are required", ErrInvalid)
	}
	if c.Network.TLS.Mutual && (needsTLS || c.Backend == BackendRemote) && c.Network.TLS.CAFile == "" {
		return fmt.Errorf("%w: network.tls.ca_file is required for mutual TLS", ErrInvalid)
	}

	if c.Network.Listen == "" && c.RPC.Listen == "" && c.GRPC.Listen == "" {
		return fmt.Errorf("%w: no listener configured", ErrInvalid)
	}
	return nil
}

// Timeouts returns the waits configured across sections.
func (c *Config) Timeouts() *common.Timeouts {
	t := &common.Timeouts{
		Submit:    c.Relay.SubmitTimeout,
		CardWait:  c.Card.Wait,
		Handshake: c.Network.Handshake,
		Idle:      c.Network.Idle,
	}
	t.ApplyDefaults()
	return t
}

// SessionOptions returns the session options for a card backend.
func (c *Config) SessionOptions(logger common.Logger) session.Options {
	reply, _ := session.ParseConnectReply(c.Session.ConnectReply)
	return session.Options{
		ConnectReply:   reply,
		StrictOrdering: c.Session.StrictOrdering,
		MaxMsgSize:     c.Session.MaxMsgSize,
		MinMaxMsgSize:  c.Session.MinMaxMsgSize,
		Logger:         logger,
	}
}

// ZapOptions returns the logger options of the [log] section.
func (c *Config) ZapOptions() common.ZapLoggerOptions {
	return common.ZapLoggerOptions{
		LogFile:    c.Log.File,
		MaxSize:    c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
		DebugLevel: c.Log.Debug,
		Console:    c.Log.Console,
	}
}
