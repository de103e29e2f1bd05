package rpctransport

import (
	"context"

	"google.golang.org/grpc"
)

// ResourceManagerClient is the inbound-direction counterpart to client: the
// stand-in for a generated stub that a task executor or job manager process
// dials to reach the resource manager's Handler RPCs.
type ResourceManagerClient struct {
	c *client
}

// DialResourceManager connects to the resource manager listening at addr.
func DialResourceManager(ctx context.Context, addr string, dialOpt ...grpc.DialOption) (*ResourceManagerClient, error) {
	conn, err := grpc.DialContext(ctx, addr, append([]grpc.DialOption{grpc.WithInsecure(), grpc.WithBlock()}, dialOpt...)...)
	if err != nil {
		return nil, err
	}
	return &ResourceManagerClient{c: &client{conn: conn}}, nil
}

func (r *ResourceManagerClient) Close() error { return r.c.conn.Close() }

func (r *ResourceManagerClient) RegisterTaskExecutor(ctx context.Context, req *RegisterTaskExecutorRequest) (*RegisterTaskExecutorResponse, error) {
	resp := new(RegisterTaskExecutorResponse)
	if err := r.c.call(ctx, "RegisterTaskExecutor", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *ResourceManagerClient) RegisterJobManager(ctx context.Context, req *RegisterJobManagerRequest) (*RegisterJobManagerResponse, error) {
	resp := new(RegisterJobManagerResponse)
	if err := r.c.call(ctx, "RegisterJobManager", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *ResourceManagerClient) SendSlotReport(ctx context.Context, req *SendSlotReportRequest) (*Ack, error) {
	resp := new(Ack)
	if err := r.c.call(ctx, "SendSlotReport", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *ResourceManagerClient) HeartbeatFromTaskManager(ctx context.Context, req *HeartbeatFromTaskManagerRequest) (*Ack, error) {
	resp := new(Ack)
	if err := r.c.call(ctx, "HeartbeatFromTaskManager", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *ResourceManagerClient) HeartbeatFromJobManager(ctx context.Context, req *HeartbeatFromJobManagerRequest) (*Ack, error) {
	resp := new(Ack)
	if err := r.c.call(ctx, "HeartbeatFromJobManager", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *ResourceManagerClient) DisconnectTaskManager(ctx context.Context, req *DisconnectTaskManagerRequest) (*Ack, error) {
	resp := new(Ack)
	if err := r.c.call(ctx, "DisconnectTaskManager", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *ResourceManagerClient) RequestSlot(ctx context.Context, req *RequestSlotRequest) (*Ack, error) {
	resp := new(Ack)
	if err := r.c.call(ctx, "RequestSlot", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *ResourceManagerClient) GetLeaderToken(ctx context.Context) (*GetLeaderTokenResponse, error) {
	resp := new(GetLeaderTokenResponse)
	if err := r.c.call(ctx, "GetLeaderToken", &GetLeaderTokenRequest{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *ResourceManagerClient) GetNumberOfRegisteredTaskManagers(ctx context.Context, req *NumberOfRegisteredTaskManagersRequest) (*NumberOfRegisteredTaskManagersResponse, error) {
	resp := new(NumberOfRegisteredTaskManagersResponse)
	if err := r.c.call(ctx, "GetNumberOfRegisteredTaskManagers", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *ResourceManagerClient) NotifySlotAvailable(ctx context.Context, req *NotifySlotAvailableRequest) (*Ack, error) {
	resp := new(Ack)
	if err := r.c.call(ctx, "NotifySlotAvailable", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *ResourceManagerClient) RequestTaskManagerMetricQueryServiceAddresses(ctx context.Context, req *RequestTaskManagerMetricQueryServiceAddressesRequest) (*TaskManagerMetricQueryServiceAddressesResponse, error) {
	resp := new(TaskManagerMetricQueryServiceAddressesResponse)
	if err := r.c.call(ctx, "RequestTaskManagerMetricQueryServiceAddresses", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *ResourceManagerClient) RequestTaskManagerFileUpload(ctx context.Context, req *RequestTaskManagerFileUploadRequest) (*TaskManagerFileUploadResponse, error) {
	resp := new(TaskManagerFileUploadResponse)
	if err := r.c.call(ctx, "RequestTaskManagerFileUpload", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
