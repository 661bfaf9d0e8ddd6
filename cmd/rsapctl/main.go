// Command rsapctl replays a scripted RSAP conversation against an rsapd
// endpoint and prints every chunk sent and reply received.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/younglifestyle/rsap4go/rsap"
	"github.com/younglifestyle/rsap4go/transport/grpcrelay"
	"github.com/younglifestyle/rsap4go/transport/jsonrpc"
	"github.com/younglifestyle/rsap4go/transport/quicnet"
	"github.com/younglifestyle/rsap4go/transport/tlsconf"
)

type exchangeFunc func(ctx context.Context, chunk []byte) ([]byte, error)

func main() {
	rpcURL := flag.String("rpc", "", "JSON-RPC endpoint, e.g. http://127.0.0.1:8080/rpc")
	quicAddr := flag.String("quic", "", "QUIC endpoint, e.g. 127.0.0.1:7300")
	grpcAddr := flag.String("grpc", "", "gRPC endpoint, e.g. 127.0.0.1:9090")
	certFile := flag.String("cert", "", "client certificate (QUIC, gRPC with TLS)")
	keyFile := flag.String("key", "", "client key")
	caFile := flag.String("ca", "", "CA bundle for the server certificate")
	serverName := flag.String("server-name", "", "expected server name")
	maxMsgSize := flag.String("max-msg-size", "300", "MaxMsgSize proposed in CONNECT_REQ")
	timeout := flag.Duration("timeout", 10*time.Second, "per exchange timeout")
	flag.Parse()

	size, err := cast.ToUint16E(*maxMsgSize)
	if err != nil {
		log.Fatalf("invalid -max-msg-size %q: %v", *maxMsgSize, err)
	}

	files := tlsconf.Files{
		CertFile:   *certFile,
		KeyFile:    *keyFile,
		CAFile:     *caFile,
		ServerName: *serverName,
		Mutual:     *certFile != "",
	}

	ctx := context.Background()
	var exchange exchangeFunc
	switch {
	case *rpcURL != "":
		c := jsonrpc.NewClient(*rpcURL, nil)
		if err := c.InitCard(ctx); err != nil {
			log.Fatalf("init card: %v", err)
		}
		exchange = c.ProcessAPDU
	case *quicAddr != "":
		tlsConf, err := tlsconf.Client(files, *quicAddr)
		if err != nil {
			log.Fatalf("tls: %v", err)
		}
		c := quicnet.NewClient(*quicAddr, tlsConf, quicnet.ClientOptions{})
		defer c.Close()
		exchange = c.Process
	case *grpcAddr != "":
		tlsConf := grpcTLS(files, *grpcAddr)
		c, err := grpcrelay.Dial(*grpcAddr, tlsConf)
		if err != nil {
			log.Fatalf("dial: %v", err)
		}
		defer c.Close()
		if err := c.InitCard(ctx); err != nil {
			log.Fatalf("init card: %v", err)
		}
		exchange = c.Submit
	default:
		fmt.Fprintln(os.Stderr, "rsapctl: one of -rpc, -quic or -grpc is required")
		flag.Usage()
		os.Exit(2)
	}

	script, err := defaultScript(size)
	if err != nil {
		log.Fatalf("build script: %v", err)
	}
	if err := replay(ctx, exchange, script, *timeout); err != nil {
		log.Fatalf("%v", err)
	}
}

// grpcTLS returns nil, for plaintext, unless a CA bundle is given.
func grpcTLS(files tlsconf.Files, addr string) *tls.Config {
	if files.CAFile == "" {
		return nil
	}
	tlsConf, err := tlsconf.Client(files, addr)
	if err != nil {
		log.Fatalf("tls: %v", err)
	}
	return tlsConf
}

func replay(ctx context.Context, exchange exchangeFunc, script []step, timeout time.Duration) error {
	for _, s := range script {
		fmt.Printf("< %-24s %s\n", s.name, hexString(s.chunk))

		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		reply, err := exchange(stepCtx, s.chunk)
		cancel()
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}

		if len(reply) == 0 {
			fmt.Println(">  (awaiting more data)")
			continue
		}
		fmt.Printf("> %s\n", hexString(reply))
		for _, f := range describeReply(reply) {
			fmt.Printf("    %s\n", f)
		}
	}
	return nil
}

// describeReply decodes the frames packed in a reply.
func describeReply(reply []byte) []string {
	var out []string
	for len(reply) > 0 {
		n, complete, err := rsap.FrameLength(reply, rsap.DefaultLimits())
		if err != nil {
			return append(out, fmt.Sprintf("undecodable: %v", err))
		}
		if !complete {
			return append(out, fmt.Sprintf("incomplete frame: %d bytes", len(reply)))
		}
		f, err := rsap.Decode(reply[:n])
		if err != nil {
			return append(out, fmt.Sprintf("undecodable: %v", err))
		}
		out = append(out, f.String())
		reply = reply[n:]
	}
	return out
}

func hexString(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, " ")
}
