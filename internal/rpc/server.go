// Package rpc exposes the state service over gRPC. Messages are
// google.protobuf.Struct values carrying the same JSON shapes as the HTTP API,
// so no generated code is needed on either side.
package rpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/danielpatrickdp/eventsim/internal/catalog"
	"github.com/danielpatrickdp/eventsim/internal/engine"
	"github.com/danielpatrickdp/eventsim/internal/metrics"
	"github.com/danielpatrickdp/eventsim/internal/service"
	"github.com/danielpatrickdp/eventsim/internal/state"
	"github.com/danielpatrickdp/eventsim/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "eventsim.v1.StateService"

// #region messages
// AppendEventRequest is the AppendEvent payload.
type AppendEventRequest struct {
	EntityID string             `json:"entity_id"`
	Event    service.EventInput `json:"event"`
}

// StateAtRequest is the StateAt payload.
type StateAtRequest struct {
	EntityID string    `json:"entity_id"`
	At       time.Time `json:"at"`
	Save     bool      `json:"save"`
}

// #endregion messages

// #region service-desc
// StateServiceServer is the server API for the state service.
type StateServiceServer interface {
	CreateEntity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AppendEvent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StateAt(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type method func(StateServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call method) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(StateServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(StateServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the state service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StateServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateEntity", StateServiceServer.CreateEntity),
		unary("AppendEvent", StateServiceServer.AppendEvent),
		unary("StateAt", StateServiceServer.StateAt),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "eventsim/v1/state.proto",
}

// Register registers srv with s.
func Register(s *grpc.Server, srv StateServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// #endregion service-desc

// #region server
// Server implements StateServiceServer on top of a service.Service.
type Server struct {
	svc *service.Service
	log *slog.Logger
}

// NewServer creates a gRPC server implementation.
func NewServer(svc *service.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, log: logger}
}

// NewGRPCServer creates a grpc.Server with the state service and request metrics
// installed.
func NewGRPCServer(svc *service.Service, logger *slog.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(MetricsInterceptor))
	s := grpc.NewServer(opts...)
	Register(s, NewServer(svc, logger))
	return s
}

func (s *Server) CreateEntity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var a state.Anchor
	if err := fromStruct(req, &a); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode anchor: %v", err)
	}
	out, err := s.svc.CreateEntity(ctx, a)
	if err != nil {
		return nil, s.toStatus("CreateEntity", err)
	}
	return toStruct(out)
}

func (s *Server) AppendEvent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in AppendEventRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode event: %v", err)
	}
	ev, err := s.svc.AppendEvent(ctx, in.EntityID, in.Event)
	if err != nil {
		return nil, s.toStatus("AppendEvent", err)
	}
	return toStruct(ev)
}

func (s *Server) StateAt(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in StateAtRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode query: %v", err)
	}
	res, err := s.svc.StateAt(ctx, in.EntityID, in.At, service.QueryOptions{Save: in.Save, Source: "grpc"})
	if err != nil {
		return nil, s.toStatus("StateAt", err)
	}
	return toStruct(res)
}

func (s *Server) toStatus(method string, err error) error {
	code := Code(err)
	if code == codes.Internal {
		s.log.Error("rpc failed", "method", method, "error", err)
	}
	return status.Error(code, err.Error())
}

// #endregion server

// #region errors
// Code maps a service error to a gRPC status code.
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, engine.ErrNoAnchor), errors.Is(err, store.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, engine.ErrAnchorExists):
		return codes.AlreadyExists
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, catalog.ErrUnknownEventType):
		return codes.InvalidArgument
	}
	return codes.Internal
}

// MetricsInterceptor counts unary calls by method and status code.
func MetricsInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	metrics.RequestsTotal.WithLabelValues("grpc", info.FullMethod, status.Code(err).String()).Inc()
	return resp, err
}

// #endregion errors
