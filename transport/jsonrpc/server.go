// Package jsonrpc exposes a dispatcher as a JSON-RPC 2.0 service over HTTP.
//
// The service is registered as "RSAP" with two methods:
//
//	RSAP.InitCard     {}                 -> {}
//	RSAP.ProcessAPDU  {"data": <base64>} -> {"data": <base64>}
//
// Dispatcher failures are reported as JSON-RPC server errors with the codes
// CodeBusy, CodeTimeout and CodeClosed.
package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"

	"github.com/younglifestyle/rsap4go/codec"
	"github.com/younglifestyle/rsap4go/common"
	"github.com/younglifestyle/rsap4go/relay"
)

const ServiceName = "RSAP"

const (
	CodeBusy    json2.ErrorCode = -32001
	CodeTimeout json2.ErrorCode = -32002
	CodeClosed  json2.ErrorCode = -32003
)

// Dispatcher is the relay surface the service calls into.
type Dispatcher interface {
	TrySubmit(ctx context.Context, req []byte) ([]byte, error)
	InitCard(ctx context.Context) error
}

// Options configures the handler. The zero value is usable.
type Options struct {
	// MaxRequestSize rejects larger ProcessAPDU payloads as bad params.
	MaxRequestSize int
	Logger         common.Logger
}

func (o *Options) applyDefaults() {
	if o.MaxRequestSize <= 0 {
		o.MaxRequestSize = codec.DefaultMaxMessageSize
	}
	o.Logger = common.OrNop(o.Logger)
}

type InitCardArgs struct{}

type InitCardReply struct{}

type ProcessAPDUArgs struct {
	Data []byte `json:"data"`
}

type ProcessAPDUReply struct {
	Data []byte `json:"data"`
}

// Service implements the RSAP methods.
type Service struct {
	d      Dispatcher
	logger common.Logger
}

func (s *Service) InitCard(r *http.Request, _ *InitCardArgs, _ *InitCardReply) error {
	if err := s.d.InitCard(r.Context()); err != nil {
		return err
	}
	s.logger.Info("card initialised", "remote", r.RemoteAddr)
	return nil
}

func (s *Service) ProcessAPDU(r *http.Request, args *ProcessAPDUArgs, reply *ProcessAPDUReply) error {
	data, err := s.d.TrySubmit(r.Context(), args.Data)
	if err != nil {
		return err
	}
	reply.Data = data
	return nil
}

// NewHandler returns an http.Handler serving the RSAP service for d.
func NewHandler(d Dispatcher, opts Options) (http.Handler, error) {
	opts.applyDefaults()
	logger := opts.Logger

	s := rpc.NewServer()
	s.RegisterCodec(json2.NewCustomCodecWithErrorMapper(rpc.DefaultEncoderSelector, mapError), "application/json")
	s.RegisterValidateRequestFunc(func(_ *rpc.RequestInfo, args interface{}) error {
		if a, ok := args.(*ProcessAPDUArgs); ok && len(a.Data) > opts.MaxRequestSize {
			return &json2.Error{
				Code:    json2.E_BAD_PARAMS,
				Message: fmt.Sprintf("request of %d bytes exceeds %d", len(a.Data), opts.MaxRequestSize),
			}
		}
		return nil
	})
	s.RegisterAfterFunc(func(i *rpc.RequestInfo) {
		if i.Error != nil {
			logger.Warn("rpc call failed", "method", i.Method, "error", i.Error)
			return
		}
		logger.Debug("rpc call", "method", i.Method)
	})

	if err := s.RegisterService(&Service{d: d, logger: logger}, ServiceName); err != nil {
		return nil, fmt.Errorf("jsonrpc: register service: %w", err)
	}
	return s, nil
}

func mapError(err error) error {
	code := json2.E_SERVER
	switch {
	case errors.Is(err, relay.ErrBusy):
		code = CodeBusy
	case errors.Is(err, relay.ErrTimeout):
		code = CodeTimeout
	case errors.Is(err, relay.ErrClosed):
		code = CodeClosed
	}
	return &json2.Error{Code: code, Message: err.Error()}
}
