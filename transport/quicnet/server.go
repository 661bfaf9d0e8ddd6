// Package quicnet carries relay exchanges over mutually authenticated QUIC
// streams, one length-prefixed request and reply per exchange.
package quicnet

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
	"go.uber.org/atomic"

	"github.com/younglifestyle/rsap4go/codec"
	"github.com/younglifestyle/rsap4go/common"
	"github.com/younglifestyle/rsap4go/rsap"
)

var ErrServerClosed = errors.New("quicnet: server closed")

const (
	codeNoError  quic.ApplicationErrorCode = 0x00
	codeShutdown quic.ApplicationErrorCode = 0x01
)

// Submitter is the dispatcher surface a server relays into.
type Submitter interface {
	Submit(ctx context.Context, req []byte) ([]byte, error)
}

// pendingDiscarder is implemented by submitters fronting a session that
// buffers partial frames between exchanges.
type pendingDiscarder interface {
	DiscardPending(ctx context.Context) error
}

// ServerOptions configures a Server. The zero value is usable.
type ServerOptions struct {
	Timeouts *common.Timeouts
	Stream   codec.StreamOptions
	Logger   common.Logger
}

func (o *ServerOptions) applyDefaults() {
	if o.Timeouts == nil {
		o.Timeouts = common.NewTimeouts()
	} else {
		o.Timeouts.ApplyDefaults()
	}
	o.Logger = common.OrNop(o.Logger)
}

func quicConfig(t *common.Timeouts) *quic.Config {
	return &quic.Config{
		HandshakeIdleTimeout: t.Handshake,
		MaxIdleTimeout:       t.Idle,
		KeepAlivePeriod:      t.Idle / 3,
	}
}

// Server accepts QUIC connections and relays every stream message through a
// Submitter.
type Server struct {
	sub     Submitter
	tlsConf *tls.Config
	opts    ServerOptions
	logger  common.Logger

	ln     *quic.Listener
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[string]quic.Connection

	active *atomic.Int32
	served *atomic.Uint64
	closed *atomic.Bool
}

func NewServer(sub Submitter, tlsConf *tls.Config, opts ServerOptions) *Server {
	opts.applyDefaults()
	return &Server{
		sub:     sub,
		tlsConf: tlsConf,
		opts:    opts,
		logger:  opts.Logger,
		conns:   make(map[string]quic.Connection),
		active:  atomic.NewInt32(0),
		served:  atomic.NewUint64(0),
		closed:  atomic.NewBool(false),
	}
}

// Start listens on addr and serves connections until ctx is cancelled or
// Close is called.
func (s *Server) Start(ctx context.Context, addr string) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	ln, err := quic.ListenAddr(addr, s.tlsConf, quicConfig(s.opts.Timeouts))
	if err != nil {
		return fmt.Errorf("quicnet: listen %s: %w", addr, err)
	}
	s.ln = ln

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.acceptConnections(ctx)

	s.logger.Info("quic listener started", "addr", ln.Addr().String())
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ActiveConnections returns the number of connections being served.
func (s *Server) ActiveConnections() int {
	return int(s.active.Load())
}

// Exchanges returns the number of request/reply exchanges completed.
func (s *Server) Exchanges() uint64 {
	return s.served.Load()
}

func (s *Server) acceptConnections(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || s.closed.Load() {
				return
			}
			s.logger.Error("accept connection failed", "error", err)
			continue
		}

		id := uuid.NewString()
		s.track(id, conn)
		s.wg.Add(1)
		go s.serveConnection(ctx, id, conn)
	}
}

func (s *Server) track(id string, conn quic.Connection) {
	s.mu.Lock()
	s.conns[id] = conn
	s.mu.Unlock()
	s.active.Inc()
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
	s.active.Dec()
}

func (s *Server) serveConnection(ctx context.Context, id string, conn quic.Connection) {
	defer s.wg.Done()
	defer s.untrack(id)

	logger := common.With(s.logger, "conn", id, "remote", conn.RemoteAddr().String())
	state := conn.ConnectionState().TLS
	if len(state.PeerCertificates) > 0 {
		logger = common.With(logger, "peer", state.PeerCertificates[0].Subject.CommonName)
	}
	logger.Info("connection accepted")
	defer s.discardPending(logger)

	var streams sync.WaitGroup
	defer streams.Wait()
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			logger.Info("connection closed", "reason", err)
			return
		}
		streams.Add(1)
		go func() {
			defer streams.Done()
			s.serveStream(ctx, logger, stream)
		}()
	}
}

func (s *Server) serveStream(ctx context.Context, logger common.Logger, stream quic.Stream) {
	sc := codec.NewStreamCodec(stream, s.opts.Stream)
	defer sc.Close()

	for {
		if err := sc.SetReadDeadline(time.Now().Add(s.opts.Timeouts.Idle)); err != nil {
			logger.Error("set read deadline failed", "error", err)
			return
		}
		req, err := sc.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			logger.Error("receive failed", "stream", stream.StreamID(), "error", err)
			return
		}

		reply, err := s.sub.Submit(ctx, req)
		if err != nil {
			logger.Warn("exchange failed, answering with ERROR_RESP", "error", err)
			if reply, err = rsap.Encode(rsap.NewErrorResp()); err != nil {
				return
			}
		}

		if err := sc.SetWriteDeadline(time.Now().Add(s.opts.Timeouts.Idle)); err != nil {
			logger.Error("set write deadline failed", "error", err)
			return
		}
		if err := sc.Send(reply); err != nil {
			logger.Error("send failed", "stream", stream.StreamID(), "error", err)
			return
		}
		s.served.Inc()
	}
}

// discardPending drops any partial frame the departed connection left in the
// session, so the next connection starts on a frame boundary.
func (s *Server) discardPending(logger common.Logger) {
	pd, ok := s.sub.(pendingDiscarder)
	if !ok || s.closed.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeouts.Submit)
	defer cancel()
	if err := pd.DiscardPending(ctx); err != nil {
		logger.Warn("discard partial frame failed", "error", err)
	}
}

// Close stops accepting, closes every connection and waits for the serving
// goroutines to finish.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	for id, conn := range s.conns {
		if err := conn.CloseWithError(codeShutdown, "server shutting down"); err != nil {
			s.logger.Warn("close connection failed", "conn", id, "error", err)
		}
	}
	s.mu.Unlock()

	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	s.wg.Wait()
	s.logger.Info("quic listener stopped")
	return err
}
