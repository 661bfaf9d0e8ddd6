package grpcrelay

import (
	"context"
	"crypto/tls"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/younglifestyle/rsap4go/relay"
)

// Client calls a remote rsap.Relay service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for target. A nil tlsConf dials in plaintext.
func Dial(target string, tlsConf *tls.Config, extra ...grpc.DialOption) (*Client, error) {
	creds := insecure.NewCredentials()
	if tlsConf != nil {
		creds = credentials.NewTLS(tlsConf)
	}
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rawCodec{})),
	}, extra...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpcrelay: dial %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// Submit relays one chunk. Busy, timeout and closed failures wrap the
// matching relay errors; an unreachable server also reports as closed.
func (c *Client) Submit(ctx context.Context, req []byte) ([]byte, error) {
	var reply []byte
	if err := c.conn.Invoke(ctx, SubmitMethod, req, &reply); err != nil {
		return nil, fromStatus(err)
	}
	if reply == nil {
		reply = []byte{}
	}
	return reply, nil
}

func (c *Client) InitCard(ctx context.Context) error {
	var reply []byte
	if err := c.conn.Invoke(ctx, InitCardMethod, []byte{}, &reply); err != nil {
		return fromStatus(err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.ResourceExhausted:
		return fmt.Errorf("%w: %s", relay.ErrBusy, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", relay.ErrTimeout, st.Message())
	case codes.Unavailable:
		return fmt.Errorf("%w: %s", relay.ErrClosed, st.Message())
	}
	return err
}
