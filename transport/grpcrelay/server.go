// Package grpcrelay exposes a dispatcher as the gRPC service rsap.Relay.
// Payloads are raw bytes carried by a pass-through codec.
package grpcrelay

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"

	"github.com/younglifestyle/rsap4go/common"
	"github.com/younglifestyle/rsap4go/relay"
)

const (
	ServiceName    = "rsap.Relay"
	SubmitMethod   = "/rsap.Relay/Submit"
	InitCardMethod = "/rsap.Relay/InitCard"
)

// Dispatcher is the relay surface the service calls into.
type Dispatcher interface {
	TrySubmit(ctx context.Context, req []byte) ([]byte, error)
	InitCard(ctx context.Context) error
}

// RelayServer is the server API of rsap.Relay.
type RelayServer interface {
	Submit(ctx context.Context, req []byte) ([]byte, error)
	InitCard(ctx context.Context) error
}

func submitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	var in []byte
	if err := dec(&in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RelayServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SubmitMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RelayServer).Submit(ctx, *req.(*[]byte))
	}
	return interceptor(ctx, &in, info, handler)
}

func initCardHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	var in []byte
	if err := dec(&in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, _ any) (any, error) {
		return []byte{}, srv.(RelayServer).InitCard(ctx)
	}
	if interceptor == nil {
		return call(ctx, &in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: InitCardMethod}
	return interceptor(ctx, &in, info, call)
}

// ServiceDesc describes rsap.Relay for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RelayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: submitHandler},
		{MethodName: "InitCard", Handler: initCardHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rsap/relay",
}

type relayService struct {
	d Dispatcher
}

func (s *relayService) Submit(ctx context.Context, req []byte) ([]byte, error) {
	reply, err := s.d.TrySubmit(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply, nil
}

func (s *relayService) InitCard(ctx context.Context) error {
	return toStatus(s.d.InitCard(ctx))
}

func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, relay.ErrBusy):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, relay.ErrTimeout):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, relay.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// Options configures NewServer. The zero value serves plaintext.
type Options struct {
	TLS    *tls.Config
	Logger common.Logger
}

// NewServer returns a grpc.Server with rsap.Relay registered for d.
func NewServer(d Dispatcher, opts Options) *grpc.Server {
	logger := common.OrNop(opts.Logger)

	serverOpts := []grpc.ServerOption{
		grpc.ForceServerCodec(rawCodec{}),
		grpc.UnaryInterceptor(loggingInterceptor(logger)),
	}
	if opts.TLS != nil {
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(opts.TLS)))
	}

	s := grpc.NewServer(serverOpts...)
	s.RegisterService(&ServiceDesc, &relayService{d: d})
	return s
}

func loggingInterceptor(logger common.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warn("grpc call failed", "method", info.FullMethod, "code", status.Code(err), "error", err)
			return resp, err
		}
		logger.Debug("grpc call", "method", info.FullMethod, "elapsed", time.Since(start))
		return resp, nil
	}
}
