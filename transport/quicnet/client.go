package quicnet

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/younglifestyle/rsap4go/codec"
	"github.com/younglifestyle/rsap4go/common"
)

var ErrClientClosed = errors.New("quicnet: client closed")

// ClientOptions configures a Client. The zero value is usable.
type ClientOptions struct {
	Timeouts *common.Timeouts
	Stream   codec.StreamOptions
	// DialAttempts bounds the dials made for one exchange.
	DialAttempts int
	// BackoffBase is the delay after the first failed dial; it doubles per
	// attempt up to BackoffMax.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Logger      common.Logger
}

func (o *ClientOptions) applyDefaults() {
	if o.Timeouts == nil {
		o.Timeouts = common.NewTimeouts()
	} else {
		o.Timeouts.ApplyDefaults()
	}
	if o.DialAttempts <= 0 {
		o.DialAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 200 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 5 * time.Second
	}
	o.Logger = common.OrNop(o.Logger)
}

// Client forwards exchanges to a remote Server over a single stream. It
// implements relay.Processor and relay.Initializer so a dispatcher can front
// a card that lives on another host.
type Client struct {
	addr    string
	tlsConf *tls.Config
	opts    ClientOptions
	logger  common.Logger

	mu       sync.Mutex
	conn     quic.Connection
	sc       *codec.StreamCodec
	attempts int
	closed   bool
}

func NewClient(addr string, tlsConf *tls.Config, opts ClientOptions) *Client {
	opts.applyDefaults()
	return &Client{
		addr:    addr,
		tlsConf: tlsConf,
		opts:    opts,
		logger:  common.With(opts.Logger, "remote", addr),
	}
}

// Init dials the server if no connection is open.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensure(ctx)
}

// Process sends chunk and waits for the reply. A failed exchange drops the
// connection; the next call redials.
func (c *Client) Process(ctx context.Context, chunk []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensure(ctx); err != nil {
		return nil, err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.opts.Timeouts.Submit)
	}
	if err := c.sc.SetWriteDeadline(deadline); err != nil {
		return nil, c.fail(err)
	}
	if err := c.sc.SetReadDeadline(deadline); err != nil {
		return nil, c.fail(err)
	}

	if err := c.sc.Send(chunk); err != nil {
		return nil, c.fail(fmt.Errorf("quicnet: send: %w", err))
	}
	reply, err := c.sc.Receive()
	if err != nil {
		return nil, c.fail(fmt.Errorf("quicnet: receive: %w", err))
	}
	return reply, nil
}

func (c *Client) ensure(ctx context.Context) error {
	if c.closed {
		return ErrClientClosed
	}
	if c.sc != nil {
		return nil
	}

	var lastErr error
	for i := 0; i < c.opts.DialAttempts; i++ {
		if i > 0 {
			delay := c.backoffDelay()
			c.logger.Info("redialling", "attempt", c.attempts+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("quicnet: dial %s: %w", c.addr, ctx.Err())
			}
		}
		if lastErr = c.dial(ctx); lastErr == nil {
			c.attempts = 0
			return nil
		}
		c.attempts++
		c.logger.Warn("dial failed", "attempt", c.attempts, "error", lastErr)
	}
	return fmt.Errorf("quicnet: dial %s: %w", c.addr, lastErr)
}

func (c *Client) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.Timeouts.Handshake)
	defer cancel()

	conn, err := quic.DialAddr(dialCtx, c.addr, c.tlsConf, quicConfig(c.opts.Timeouts))
	if err != nil {
		return err
	}
	stream, err := conn.OpenStreamSync(dialCtx)
	if err != nil {
		_ = conn.CloseWithError(codeNoError, "")
		return err
	}

	c.conn = conn
	c.sc = codec.NewStreamCodec(stream, c.opts.Stream)
	c.logger.Info("connected", "local", conn.LocalAddr().String())
	return nil
}

// backoffDelay returns BackoffBase * 2^(attempts-1), capped at BackoffMax.
func (c *Client) backoffDelay() time.Duration {
	if c.attempts < 1 {
		return c.opts.BackoffBase
	}
	delay := float64(c.opts.BackoffBase) * math.Pow(2, float64(c.attempts-1))
	if delay > float64(c.opts.BackoffMax) {
		delay = float64(c.opts.BackoffMax)
	}
	return time.Duration(delay)
}

func (c *Client) fail(err error) error {
	c.logger.Error("exchange failed, dropping connection", "error", err)
	c.drop("exchange failed")
	return err
}

func (c *Client) drop(reason string) {
	if c.sc != nil {
		_ = c.sc.Close()
		c.sc = nil
	}
	if c.conn != nil {
		_ = c.conn.CloseWithError(codeNoError, reason)
		c.conn = nil
	}
}

// Close releases the connection. Later exchanges fail with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.drop("client closed")
	c.logger.Info("disconnected")
	return nil
}
