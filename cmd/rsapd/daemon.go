package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/younglifestyle/rsap4go/card"
	"github.com/younglifestyle/rsap4go/codec"
	"github.com/younglifestyle/rsap4go/common"
	"github.com/younglifestyle/rsap4go/config"
	"github.com/younglifestyle/rsap4go/relay"
	"github.com/younglifestyle/rsap4go/session"
	"github.com/younglifestyle/rsap4go/transport/grpcrelay"
	"github.com/younglifestyle/rsap4go/transport/jsonrpc"
	"github.com/younglifestyle/rsap4go/transport/quicnet"
	"github.com/younglifestyle/rsap4go/transport/tlsconf"
)

type daemon struct {
	cfg      config.Config
	logger   common.Logger
	timeouts *common.Timeouts

	dispatcher *relay.Dispatcher
	quic       *quicnet.Server
	http       *http.Server
	grpc       *grpc.Server
}

func newDaemon(path string) (*daemon, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger := common.NewZapLogger(cfg.ZapOptions())
	return &daemon{
		cfg:      cfg,
		logger:   logger,
		timeouts: cfg.Timeouts(),
	}, nil
}

// backend returns the processor the dispatcher drives.
func (d *daemon) backend() (relay.Processor, error) {
	switch d.cfg.Backend {
	case config.BackendRemote:
		tlsConf, err := tlsconf.Client(d.cfg.Network.TLS, d.cfg.Network.Remote)
		if err != nil {
			return nil, err
		}
		return quicnet.NewClient(d.cfg.Network.Remote, tlsConf, quicnet.ClientOptions{
			Timeouts: d.timeouts,
			Stream:   codec.StreamOptions{MaxMessageSize: d.cfg.Network.MaxMessageSize},
			Logger:   d.logger,
		}), nil
	default:
		reader := card.NewPCSC(card.PCSCOptions{
			Reader:   d.cfg.Card.Reader,
			CardWait: d.timeouts.CardWait,
			Logger:   d.logger,
		})
		s := session.New(reader, d.cfg.SessionOptions(d.logger))
		s.PhaseChanged.AddCallback(func(data map[string]interface{}) {
			if data["current"] == session.PhaseApduLoop {
				d.logger.Info("client attached to card", "reader", d.cfg.Card.Reader)
			}
		})
		return s, nil
	}
}

func (d *daemon) run() error {
	defer func() { _ = common.Sync(d.logger) }()

	proc, err := d.backend()
	if err != nil {
		return err
	}
	d.dispatcher = relay.NewDispatcher(proc, relay.Options{Timeout: d.timeouts.Submit, Logger: d.logger})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, d.timeouts.CardWait)
	if err := d.dispatcher.InitCard(initCtx); err != nil {
		d.logger.Warn("card not ready at startup, clients may retry InitCard", "error", err)
	}
	cancel()

	errCh := make(chan error, 3)
	if err := d.startAdapters(ctx, errCh); err != nil {
		d.shutdown()
		return err
	}
	d.logger.Info("rsapd running", "backend", d.cfg.Backend)

	select {
	case <-ctx.Done():
		d.logger.Info("signal received, shutting down")
	case err = <-errCh:
		d.logger.Error("adapter failed", "error", err)
	}
	d.shutdown()
	return err
}

func (d *daemon) startAdapters(ctx context.Context, errCh chan<- error) error {
	if addr := d.cfg.Network.Listen; addr != "" {
		tlsConf, err := tlsconf.Server(d.cfg.Network.TLS)
		if err != nil {
			return err
		}
		d.quic = quicnet.NewServer(d.dispatcher, tlsConf, quicnet.ServerOptions{
			Timeouts: d.timeouts,
			Stream:   codec.StreamOptions{MaxMessageSize: d.cfg.Network.MaxMessageSize},
			Logger:   d.logger,
		})
		if err := d.quic.Start(ctx, addr); err != nil {
			return err
		}
	}

	if addr := d.cfg.RPC.Listen; addr != "" {
		h, err := jsonrpc.NewHandler(d.dispatcher, jsonrpc.Options{
			MaxRequestSize: d.cfg.RPC.MaxRequestSize,
			Logger:         d.logger,
		})
		if err != nil {
			return err
		}
		mux := http.NewServeMux()
		mux.Handle(d.cfg.RPC.Path, h)
		d.http = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: d.timeouts.Handshake}
		go func() {
			d.logger.Info("json-rpc listener started", "addr", addr, "path", d.cfg.RPC.Path)
			if err := d.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("json-rpc: %w", err)
			}
		}()
	}

	if addr := d.cfg.GRPC.Listen; addr != "" {
		opts := grpcrelay.Options{Logger: d.logger}
		if d.cfg.GRPC.TLS {
			tlsConf, err := tlsconf.Server(d.cfg.Network.TLS)
			if err != nil {
				return err
			}
			opts.TLS = tlsConf
		}
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("grpc: listen %s: %w", addr, err)
		}
		d.grpc = grpcrelay.NewServer(d.dispatcher, opts)
		go func() {
			d.logger.Info("grpc listener started", "addr", lis.Addr().String())
			if err := d.grpc.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}
	return nil
}

// shutdown stops the adapters first so no exchange reaches a closed
// dispatcher, then releases the card.
func (d *daemon) shutdown() {
	if d.quic != nil {
		if err := d.quic.Close(); err != nil {
			d.logger.Warn("quic close failed", "error", err)
		}
	}
	if d.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.http.Shutdown(ctx); err != nil {
			d.logger.Warn("json-rpc shutdown failed", "error", err)
		}
		cancel()
	}
	if d.grpc != nil {
		d.grpc.GracefulStop()
	}
	d.dispatcher.Shutdown()
}
