package quicnet

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/younglifestyle/rsap4go/common"
	"github.com/younglifestyle/rsap4go/internal/testutil/tlstest"
	"github.com/younglifestyle/rsap4go/relay"
	"github.com/younglifestyle/rsap4go/rsap"
	"github.com/younglifestyle/rsap4go/session"
	"github.com/younglifestyle/rsap4go/transport/tlsconf"
)

var (
	_ relay.Processor   = (*Client)(nil)
	_ relay.Initializer = (*Client)(nil)
	_ pendingDiscarder  = (*relay.Dispatcher)(nil)
)

type echoSubmitter struct {
	err error
}

func (e echoSubmitter) Submit(_ context.Context, req []byte) ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return append([]byte{0xEC}, req...), nil
}

func testTimeouts() *common.Timeouts {
	return &common.Timeouts{
		Submit:    5 * time.Second,
		Handshake: 2 * time.Second,
		Idle:      10 * time.Second,
	}
}

func startServer(t *testing.T, pki *tlstest.PKI, sub Submitter) *Server {
	t.Helper()
	srvConf, err := tlsconf.Server(pki.ServerFiles())
	require.NoError(t, err)

	srv := NewServer(sub, srvConf, ServerOptions{Timeouts: testTimeouts()})
	require.NoError(t, srv.Start(context.Background(), "127.0.0.1:0"))
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func newTestClient(t *testing.T, files tlsconf.Files, addr string) *Client {
	t.Helper()
	cliConf, err := tlsconf.Client(files, addr)
	require.NoError(t, err)

	c := NewClient(addr, cliConf, ClientOptions{
		Timeouts:     testTimeouts(),
		DialAttempts: 1,
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRoundTrip(t *testing.T) {
	pki := tlstest.NewPKI(t)
	srv := startServer(t, pki, echoSubmitter{})
	c := newTestClient(t, pki.ClientFiles(), srv.Addr().String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Init(ctx))

	for _, req := range [][]byte{{0x01}, {}, bytes.Repeat([]byte{0x5A}, 4096)} {
		reply, err := c.Process(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, append([]byte{0xEC}, req...), reply)
	}
	assert.Equal(t, uint64(3), srv.Exchanges())
	assert.Equal(t, 1, srv.ActiveConnections())
}

func TestSubmitErrorBecomesErrorResp(t *testing.T) {
	pki := tlstest.NewPKI(t)
	srv := startServer(t, pki, echoSubmitter{err: relay.ErrTimeout})
	c := newTestClient(t, pki.ClientFiles(), srv.Addr().String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := c.Process(ctx, []byte{0x00})
	require.NoError(t, err)

	f, err := rsap.Decode(reply)
	require.NoError(t, err)
	assert.Equal(t, rsap.ErrorResp, f.MessageID)
}

func TestClientWithoutCertificateIsRejected(t *testing.T) {
	pki := tlstest.NewPKI(t)
	srv := startServer(t, pki, echoSubmitter{})

	files := pki.ClientFiles()
	files.Mutual = false
	c := newTestClient(t, files, srv.Addr().String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := c.Process(ctx, []byte{0x01})
	assert.Error(t, err)
	assert.Equal(t, uint64(0), srv.Exchanges())
}

func TestClientClosed(t *testing.T) {
	c := NewClient("127.0.0.1:1", nil, ClientOptions{})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.Process(context.Background(), []byte{0x01})
	assert.True(t, errors.Is(err, ErrClientClosed))
}

func TestBackoffDelay(t *testing.T) {
	c := NewClient("127.0.0.1:1", nil, ClientOptions{
		BackoffBase: 100 * time.Millisecond,
		BackoffMax:  time.Second,
	})

	want := []time.Duration{
		100 * time.Millisecond,
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for attempts, d := range want {
		c.attempts = attempts
		assert.Equal(t, d, c.backoffDelay(), "attempts=%d", attempts)
	}
}

type atrCard struct{}

func (atrCard) ATR() ([]byte, error) { return []byte{0x3B, 0x9F}, nil }
func (atrCard) Transmit(apdu []byte) ([]byte, byte, byte, error) {
	return []byte{0x01, 0x02}, 0x90, 0x00, nil
}

// A dispatcher fronting a remote card server behaves like a local session.
func TestRemoteSessionThroughDispatchers(t *testing.T) {
	pki := tlstest.NewPKI(t)

	cardSide := relay.NewDispatcher(session.New(atrCard{}, session.Options{}), relay.Options{})
	defer cardSide.Shutdown()
	srv := startServer(t, pki, cardSide)

	cliConf, err := tlsconf.Client(pki.ClientFiles(), srv.Addr().String())
	require.NoError(t, err)
	remote := relay.NewDispatcher(NewClient(srv.Addr().String(), cliConf, ClientOptions{Timeouts: testTimeouts()}), relay.Options{})
	defer remote.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, remote.InitCard(ctx))

	script := []struct {
		req  rsap.Frame
		want []rsap.Frame
	}{
		{rsap.NewConnectReq(0x0100), []rsap.Frame{rsap.NewConnectResp(rsap.ConnectionOK), rsap.NewStatusInd(rsap.StatusCardReset)}},
		{rsap.NewAtrReq(), []rsap.Frame{rsap.NewAtrResp([]byte{0x3B, 0x9F})}},
		{rsap.NewApduReq([]byte{0x00, 0xA4, 0x00, 0x00}), []rsap.Frame{rsap.NewApduResp(rsap.ResultOK, []byte{0x01, 0x02, 0x90, 0x00})}},
	}
	for _, step := range script {
		req, err := rsap.Encode(step.req)
		require.NoError(t, err)
		want, err := rsap.EncodeAll(step.want...)
		require.NoError(t, err)

		reply, err := remote.Submit(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, want, reply, "request %s", step.req.String())
	}
}

func TestDepartedClientLeavesNoPartialFrame(t *testing.T) {
	pki := tlstest.NewPKI(t)

	cardSide := relay.NewDispatcher(session.New(atrCard{}, session.Options{}), relay.Options{})
	defer cardSide.Shutdown()
	srv := startServer(t, pki, cardSide)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	connect, err := rsap.Encode(rsap.NewConnectReq(0x0100))
	require.NoError(t, err)

	first := newTestClient(t, pki.ClientFiles(), srv.Addr().String())
	reply, err := first.Process(ctx, connect[:6])
	require.NoError(t, err)
	assert.Empty(t, reply)
	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return srv.ActiveConnections() == 0 }, 5*time.Second, 10*time.Millisecond)

	second := newTestClient(t, pki.ClientFiles(), srv.Addr().String())
	reply, err = second.Process(ctx, connect)
	require.NoError(t, err)
	want, err := rsap.EncodeAll(rsap.NewConnectResp(rsap.ConnectionOK), rsap.NewStatusInd(rsap.StatusCardReset))
	require.NoError(t, err)
	assert.Equal(t, want, reply)
}
