// Package tlsconf builds the TLS configurations used by the network adapters.
package tlsconf

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// NextProto is the ALPN protocol negotiated on relay channels.
const NextProto = "rsap/1"

var ErrNoCertificate = errors.New("tlsconf: certificate and key are required")

// Files names the PEM material for one side of a channel.
type Files struct {
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
	CAFile   string `toml:"ca_file"`
	// ServerName overrides the name checked against the server certificate.
	ServerName string `toml:"server_name"`
	// Mutual requires a client certificate on servers and sends one from clients.
	Mutual bool `toml:"mutual"`
}

// Server returns a config for a listener. With Mutual set, clients must
// present a certificate signed by CAFile.
func Server(f Files) (*tls.Config, error) {
	if f.CertFile == "" || f.KeyFile == "" {
		return nil, ErrNoCertificate
	}
	cert, err := tls.LoadX509KeyPair(f.CertFile, f.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("tlsconf: load server key pair: %w", err)
	}
	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.NoClientCert,
		NextProtos:   []string{NextProto},
	}
	if f.Mutual {
		pool, err := loadPool(f.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
		cfg.ClientCAs = pool
	}
	return cfg, nil
}

// Client returns a config for dialling addr. The server name defaults to the
// host part of addr.
func Client(f Files, addr string) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS13,
		NextProtos: []string{NextProto},
	}

	serverName := strings.TrimSpace(f.ServerName)
	if serverName == "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("tlsconf: server name from %q: %w", addr, err)
		}
		serverName = host
	}
	cfg.ServerName = serverName

	if f.CAFile != "" {
		pool, err := loadPool(f.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}

	if f.Mutual {
		if f.CertFile == "" || f.KeyFile == "" {
			return nil, ErrNoCertificate
		}
		cert, err := tls.LoadX509KeyPair(f.CertFile, f.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("tlsconf: load client key pair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func loadPool(path string) (*x509.CertPool, error) {
	caPEM, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tlsconf: read ca bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("tlsconf: parse ca bundle: %s", path)
	}
	return pool, nil
}
