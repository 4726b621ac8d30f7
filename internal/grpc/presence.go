// Package grpc exposes presence lookups to other services over gRPC.
package grpc

import (
	"context"
	"math"
	"strconv"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"chat-realtime/internal/observability"
)

const (
	PresenceServiceName     = "chat.realtime.v1.Presence"
	checkOnlineStatusMethod = "/" + PresenceServiceName + "/CheckOnlineStatus"
	maxLookup               = 500
)

// PresenceChecker reports which users have at least one live connection.
type PresenceChecker interface {
	OnlineStatus(userIDs []int) map[int]bool
}

type presenceService interface {
	CheckOnlineStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// PresenceServer answers {"userIds": [..]} with {"<id>": bool}.
type PresenceServer struct {
	presence PresenceChecker
}

func NewPresenceServer(presence PresenceChecker) *PresenceServer {
	return &PresenceServer{presence: presence}
}

func (s *PresenceServer) CheckOnlineStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	list := req.GetFields()["userIds"].GetListValue()
	if list == nil {
		return nil, status.Error(codes.InvalidArgument, "userIds must be a list")
	}
	if len(list.GetValues()) > maxLookup {
		return nil, status.Errorf(codes.InvalidArgument, "at most %d userIds", maxLookup)
	}

	ids := make([]int, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok || n.NumberValue <= 0 || n.NumberValue > math.MaxInt32 || n.NumberValue != math.Trunc(n.NumberValue) {
			return nil, status.Errorf(codes.InvalidArgument, "invalid user id %v", v.AsInterface())
		}
		ids = append(ids, int(n.NumberValue))
	}

	out := make(map[string]any, len(ids))
	for id, online := range s.presence.OnlineStatus(ids) {
		out[strconv.Itoa(id)] = online
	}
	return structpb.NewStruct(out)
}

var presenceServiceDesc = grpc.ServiceDesc{
	ServiceName: PresenceServiceName,
	HandlerType: (*presenceService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckOnlineStatus", Handler: checkOnlineStatusHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func checkOnlineStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(presenceService).CheckOnlineStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: checkOnlineStatusMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(presenceService).CheckOnlineStatus(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// NewServer builds the gRPC server with presence, health and reflection, plus tracing and metrics.
func NewServer(presence PresenceChecker) *grpc.Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	srv.RegisterService(&presenceServiceDesc, NewPresenceServer(presence))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(PresenceServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	return srv
}

// PresenceClient calls a remote presence service.
type PresenceClient struct {
	cc grpc.ClientConnInterface
}

func NewPresenceClient(cc grpc.ClientConnInterface) *PresenceClient {
	return &PresenceClient{cc: cc}
}

// CheckOnlineStatus returns the online flag of each id.
func (c *PresenceClient) CheckOnlineStatus(ctx context.Context, userIDs []int) (map[int]bool, error) {
	values := make([]any, 0, len(userIDs))
	for _, id := range userIDs {
		values = append(values, id)
	}
	req, err := structpb.NewStruct(map[string]any{"userIds": values})
	if err != nil {
		return nil, err
	}

	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, checkOnlineStatusMethod, req, resp); err != nil {
		return nil, err
	}

	out := make(map[int]bool, len(resp.GetFields()))
	for key, v := range resp.GetFields() {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "bad presence key %q", key)
		}
		out[id] = v.GetBoolValue()
	}
	return out, nil
}
