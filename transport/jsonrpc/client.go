package jsonrpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/rpc/v2/json2"

	"github.com/younglifestyle/rsap4go/relay"
)

// Client calls a remote RSAP service.
type Client struct {
	url  string
	http *http.Client
}

// NewClient returns a client for the service at url. A nil httpClient uses
// one with a 30 second timeout.
func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{url: url, http: httpClient}
}

func (c *Client) InitCard(ctx context.Context) error {
	return c.call(ctx, ServiceName+".InitCard", &InitCardArgs{}, &InitCardReply{})
}

// ProcessAPDU relays one chunk and returns the reply bytes. Busy, timeout and
// closed failures wrap the matching relay errors.
func (c *Client) ProcessAPDU(ctx context.Context, data []byte) ([]byte, error) {
	var reply ProcessAPDUReply
	if err := c.call(ctx, ServiceName+".ProcessAPDU", &ProcessAPDUArgs{Data: data}, &reply); err != nil {
		return nil, err
	}
	if reply.Data == nil {
		return []byte{}, nil
	}
	return reply.Data, nil
}

func (c *Client) call(ctx context.Context, method string, args, reply interface{}) error {
	body, err := json2.EncodeClientRequest(method, args)
	if err != nil {
		return fmt.Errorf("jsonrpc: encode %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("jsonrpc: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("jsonrpc: %s: %w", method, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if err := json2.DecodeClientResponse(resp.Body, reply); err != nil {
		var rpcErr *json2.Error
		if errors.As(err, &rpcErr) {
			return unmapError(rpcErr)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("jsonrpc: %s: http status %d", method, resp.StatusCode)
		}
		return fmt.Errorf("jsonrpc: decode %s: %w", method, err)
	}
	return nil
}

func unmapError(e *json2.Error) error {
	switch e.Code {
	case CodeBusy:
		return fmt.Errorf("%w: %s", relay.ErrBusy, e.Message)
	case CodeTimeout:
		return fmt.Errorf("%w: %s", relay.ErrTimeout, e.Message)
	case CodeClosed:
		return fmt.Errorf("%w: %s", relay.ErrClosed, e.Message)
	}
	return e
}
