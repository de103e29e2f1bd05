package rpctransport

import (
	"context"

	"google.golang.org/grpc"
)

// Handler is implemented by the resource manager core. Every method takes
// the already fencing-checked request; the fencing check itself happens in
// the unary interceptor, before the handler is ever invoked.
type Handler interface {
	RegisterJobManager(ctx context.Context, req *RegisterJobManagerRequest) (*RegisterJobManagerResponse, error)
	RegisterTaskExecutor(ctx context.Context, req *RegisterTaskExecutorRequest) (*RegisterTaskExecutorResponse, error)
	SendSlotReport(ctx context.Context, req *SendSlotReportRequest) (*Ack, error)
	HeartbeatFromTaskManager(ctx context.Context, req *HeartbeatFromTaskManagerRequest) (*Ack, error)
	HeartbeatFromJobManager(ctx context.Context, req *HeartbeatFromJobManagerRequest) (*Ack, error)
	DisconnectTaskManager(ctx context.Context, req *DisconnectTaskManagerRequest) (*Ack, error)
	DisconnectJobManager(ctx context.Context, req *DisconnectJobManagerRequest) (*Ack, error)
	RequestSlot(ctx context.Context, req *RequestSlotRequest) (*Ack, error)
	CancelSlotRequest(ctx context.Context, req *CancelSlotRequestRequest) (*Ack, error)
	DeregisterApplication(ctx context.Context, req *DeregisterApplicationRequest) (*Ack, error)
	GetNumberOfRegisteredTaskManagers(ctx context.Context, req *NumberOfRegisteredTaskManagersRequest) (*NumberOfRegisteredTaskManagersResponse, error)
	RequestTaskManagerInfo(ctx context.Context, req *RequestTaskManagerInfoRequest) (*RequestTaskManagerInfoResponse, error)
	RequestResourceOverview(ctx context.Context, req *RequestResourceOverviewRequest) (*ResourceOverview, error)
	// NotifySlotAvailable reports a slot freed by a completed or cancelled
	// task back to the slot manager.
	NotifySlotAvailable(ctx context.Context, req *NotifySlotAvailableRequest) (*Ack, error)
	// RequestTaskManagerMetricQueryServiceAddresses fans out to every
	// registered task executor and collects the addresses that answered.
	RequestTaskManagerMetricQueryServiceAddresses(ctx context.Context, req *RequestTaskManagerMetricQueryServiceAddressesRequest) (*TaskManagerMetricQueryServiceAddressesResponse, error)
	// RequestTaskManagerFileUpload relays a file upload request to one
	// registered task executor.
	RequestTaskManagerFileUpload(ctx context.Context, req *RequestTaskManagerFileUploadRequest) (*TaskManagerFileUploadResponse, error)
	// GetLeaderToken is the one RPC in this service that is never fenced: a
	// task executor or job manager calls it to learn the current leader's
	// fencing token before it can send anything else, the same bootstrap
	// problem the original solves by publishing the fencing token alongside
	// the leader address through leader retrieval.
	GetLeaderToken(ctx context.Context, req *GetLeaderTokenRequest) (*GetLeaderTokenResponse, error)
}

// ServiceName is the gRPC service name advertised in the hand-built
// ServiceDesc, in lieu of one generated from a .proto file.
const ServiceName = "flink.resourcemanager.ResourceManager"

func unaryHandler[Req any, Resp any](call func(Handler, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		handler := srv.(Handler)
		if interceptor == nil {
			return call(handler, ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName}
		return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
			return call(handler, ctx, req.(*Req))
		})
	}
}

// ServiceDesc is the hand-built description of the resource manager's gRPC
// service, standing in for what protoc would otherwise generate.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RegisterJobManager", Handler: unaryHandler(Handler.RegisterJobManager)},
		{MethodName: "RegisterTaskExecutor", Handler: unaryHandler(Handler.RegisterTaskExecutor)},
		{MethodName: "SendSlotReport", Handler: unaryHandler(Handler.SendSlotReport)},
		{MethodName: "HeartbeatFromTaskManager", Handler: unaryHandler(Handler.HeartbeatFromTaskManager)},
		{MethodName: "HeartbeatFromJobManager", Handler: unaryHandler(Handler.HeartbeatFromJobManager)},
		{MethodName: "DisconnectTaskManager", Handler: unaryHandler(Handler.DisconnectTaskManager)},
		{MethodName: "DisconnectJobManager", Handler: unaryHandler(Handler.DisconnectJobManager)},
		{MethodName: "RequestSlot", Handler: unaryHandler(Handler.RequestSlot)},
		{MethodName: "CancelSlotRequest", Handler: unaryHandler(Handler.CancelSlotRequest)},
		{MethodName: "DeregisterApplication", Handler: unaryHandler(Handler.DeregisterApplication)},
		{MethodName: "GetNumberOfRegisteredTaskManagers", Handler: unaryHandler(Handler.GetNumberOfRegisteredTaskManagers)},
		{MethodName: "RequestTaskManagerInfo", Handler: unaryHandler(Handler.RequestTaskManagerInfo)},
		{MethodName: "RequestResourceOverview", Handler: unaryHandler(Handler.RequestResourceOverview)},
		{MethodName: "NotifySlotAvailable", Handler: unaryHandler(Handler.NotifySlotAvailable)},
		{MethodName: "RequestTaskManagerMetricQueryServiceAddresses", Handler: unaryHandler(Handler.RequestTaskManagerMetricQueryServiceAddresses)},
		{MethodName: "RequestTaskManagerFileUpload", Handler: unaryHandler(Handler.RequestTaskManagerFileUpload)},
		{MethodName: "GetLeaderToken", Handler: unaryHandler(Handler.GetLeaderToken)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "resourcemanager.proto",
}

// RegisterHandler registers h against s, serving it with the JSON codec's
// content subtype.
func RegisterHandler(s *grpc.Server, h Handler) {
	s.RegisterService(&ServiceDesc, h)
}
