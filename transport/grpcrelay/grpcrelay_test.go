package grpcrelay

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/younglifestyle/rsap4go/relay"
	"github.com/younglifestyle/rsap4go/rsap"
	"github.com/younglifestyle/rsap4go/session"
)

type stubDispatcher struct {
	err     error
	initErr error
}

func (s stubDispatcher) TrySubmit(_ context.Context, req []byte) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]byte, len(req))
	for i, b := range req {
		out[len(req)-1-i] = b
	}
	return out, nil
}

func (s stubDispatcher) InitCard(context.Context) error { return s.initErr }

func startBufServer(t *testing.T, d Dispatcher) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(d, Options{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := Dial("passthrough:///bufnet", nil,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRawCodec(t *testing.T) {
	c := rawCodec{}
	b, err := c.Marshal([]byte{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, b)

	in := []byte{3}
	b, err = c.Marshal(&in)
	require.NoError(t, err)
	assert.Equal(t, []byte{3}, b)

	_, err = c.Marshal("text")
	assert.Error(t, err)

	var out []byte
	require.NoError(t, c.Unmarshal([]byte{4, 5}, &out))
	assert.Equal(t, []byte{4, 5}, out)
	assert.Error(t, c.Unmarshal([]byte{4}, out))
	assert.Equal(t, CodecName, c.Name())
}

func TestSubmitAndInit(t *testing.T) {
	c := startBufServer(t, stubDispatcher{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := c.Submit(ctx, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 2, 1}, reply)

	reply, err = c.Submit(ctx, []byte{})
	require.NoError(t, err)
	assert.Empty(t, reply)

	require.NoError(t, c.InitCard(ctx))
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{relay.ErrBusy, codes.ResourceExhausted},
		{relay.ErrTimeout, codes.DeadlineExceeded},
		{relay.ErrClosed, codes.Unavailable},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.code, status.Code(toStatus(tt.err)))

			c := startBufServer(t, stubDispatcher{err: tt.err, initErr: tt.err})
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_, err := c.Submit(ctx, []byte{0x00})
			require.Error(t, err)
			if tt.code == codes.Internal {
				assert.Equal(t, codes.Internal, status.Code(err))
			} else {
				assert.ErrorIs(t, err, tt.err)
			}
			assert.Error(t, c.InitCard(ctx))
		})
	}
	assert.NoError(t, toStatus(nil))
}

type okCard struct{}

func (okCard) ATR() ([]byte, error) { return []byte{0x3B, 0x00}, nil }
func (okCard) Transmit(apdu []byte) ([]byte, byte, byte, error) {
	return []byte{0xAA}, 0x90, 0x00, nil
}

func TestSessionOverGRPC(t *testing.T) {
	d := relay.NewDispatcher(session.New(okCard{}, session.Options{}), relay.Options{})
	defer d.Shutdown()
	c := startBufServer(t, d)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.InitCard(ctx))

	req, err := rsap.EncodeAll(rsap.NewConnectReq(0x0100))
	require.NoError(t, err)
	_, err = c.Submit(ctx, req)
	require.NoError(t, err)

	req, err = rsap.Encode(rsap.NewAtrReq())
	require.NoError(t, err)
	reply, err := c.Submit(ctx, req)
	require.NoError(t, err)
	f, err := rsap.Decode(reply)
	require.NoError(t, err)
	assert.Equal(t, rsap.TransferAtrResp, f.MessageID)
}
