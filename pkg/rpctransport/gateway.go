package rpctransport

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc"

	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
	"github.com/ElliotVilhelm/flink/pkg/rmerrors"
)

// client is the thinnest possible stand-in for a generated gRPC client
// stub: one invoke call per RPC, routed through the connection's JSON
// codec.
type client struct {
	conn *grpc.ClientConn
}

func (c *client) call(ctx context.Context, method string, req, resp any) error {
	fullMethod := "/" + ServiceName + "/" + method
	return c.conn.Invoke(ctx, fullMethod, req, resp, grpc.CallContentSubtype(codecName))
}

// TaskExecutorGateway is the outbound interface the resource manager calls
// a registered task executor through.
type TaskExecutorGateway interface {
	RequestSlot(ctx context.Context, slotID string, req *RequestSlotRequest) (*Ack, error)
	StopTaskExecutor(ctx context.Context) (*Ack, error)

	// RequestHeartbeat is the sender-style heartbeat request the resource
	// manager's heartbeat manager issues on every monitored target; the
	// task executor replies out-of-band via heartbeatFromTaskManager.
	RequestHeartbeat(ctx context.Context) (*Ack, error)
	// DisconnectResourceManager tells a task executor that the resource
	// manager is severing its registration, on an explicit disconnect or a
	// heartbeat timeout.
	DisconnectResourceManager(ctx context.Context, cause string) (*Ack, error)
	RequestMetricQueryServiceAddress(ctx context.Context, timeout time.Duration) (string, error)
	RequestFileUpload(ctx context.Context, fileType clustermodel.FileType, timeout time.Duration) (*TaskManagerFileUploadResponse, error)
}

// JobManagerGateway is the outbound interface the resource manager calls a
// registered job manager through.
type JobManagerGateway interface {
	// RequestHeartbeat is the sender-style heartbeat request issued on every
	// monitored job manager; it replies out-of-band via
	// heartbeatFromJobManager.
	RequestHeartbeat(ctx context.Context) (*Ack, error)
	// DisconnectResourceManager additionally carries the current fencing
	// token so the remote side can verify it against its own bookkeeping.
	DisconnectResourceManager(ctx context.Context, token clustermodel.ResourceManagerID, cause string) (*Ack, error)
	// NotifyAllocationFailure forwards an allocation that could not be
	// satisfied back to the job manager that requested it.
	NotifyAllocationFailure(ctx context.Context, allocationID clustermodel.AllocationID, cause string) (*Ack, error)
}

type taskExecutorClient struct{ *client }

func (c *taskExecutorClient) RequestSlot(ctx context.Context, _ string, req *RequestSlotRequest) (*Ack, error) {
	resp := new(Ack)
	if err := c.call(ctx, "RequestSlot", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *taskExecutorClient) StopTaskExecutor(ctx context.Context) (*Ack, error) {
	resp := new(Ack)
	if err := c.call(ctx, "StopTaskExecutor", &Ack{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *taskExecutorClient) RequestHeartbeat(ctx context.Context) (*Ack, error) {
	resp := new(Ack)
	if err := c.call(ctx, "RequestHeartbeat", &Ack{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *taskExecutorClient) DisconnectResourceManager(ctx context.Context, cause string) (*Ack, error) {
	resp := new(Ack)
	req := &DisconnectTaskManagerRequest{Cause: cause}
	if err := c.call(ctx, "DisconnectResourceManager", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *taskExecutorClient) RequestMetricQueryServiceAddress(ctx context.Context, timeout time.Duration) (string, error) {
	resp := new(metricQueryServiceAddressResponse)
	req := &metricQueryServiceAddressRequest{Timeout: timeout}
	if err := c.call(ctx, "RequestMetricQueryServiceAddress", req, resp); err != nil {
		return "", err
	}
	return resp.Address, nil
}

func (c *taskExecutorClient) RequestFileUpload(ctx context.Context, fileType clustermodel.FileType, timeout time.Duration) (*TaskManagerFileUploadResponse, error) {
	resp := new(TaskManagerFileUploadResponse)
	req := &fileUploadRequest{FileType: fileType, Timeout: timeout}
	if err := c.call(ctx, "RequestFileUpload", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

type jobManagerClient struct{ *client }

func (c *jobManagerClient) RequestHeartbeat(ctx context.Context) (*Ack, error) {
	resp := new(Ack)
	if err := c.call(ctx, "RequestHeartbeat", &Ack{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *jobManagerClient) DisconnectResourceManager(ctx context.Context, token clustermodel.ResourceManagerID, cause string) (*Ack, error) {
	resp := new(Ack)
	req := &DisconnectJobManagerRequest{FencingToken: token, Cause: cause}
	if err := c.call(ctx, "DisconnectResourceManager", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *jobManagerClient) NotifyAllocationFailure(ctx context.Context, allocationID clustermodel.AllocationID, cause string) (*Ack, error) {
	resp := new(Ack)
	req := &notifyAllocationFailureRequest{AllocationID: allocationID, Cause: cause}
	if err := c.call(ctx, "NotifyAllocationFailure", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// metricQueryServiceAddressRequest and metricQueryServiceAddressResponse
// carry the per-executor metric query address leg of
// requestTaskManagerMetricQueryServiceAddresses; the resource manager fans
// this call out to every registered task executor and collects the
// responses.
type metricQueryServiceAddressRequest struct {
	Timeout time.Duration
}

type metricQueryServiceAddressResponse struct {
	Address string
}

type fileUploadRequest struct {
	FileType clustermodel.FileType
	Timeout  time.Duration
}

type notifyAllocationFailureRequest struct {
	AllocationID clustermodel.AllocationID
	Cause        string
}

// GatewayPool dials and caches one connection per address, generalized over
// the gateway interface T it hands out. It is grounded on the teacher's
// FailoverRpcClients: same dial-once-cache-by-address shape, minus the
// failover-across-peers behavior, since a task executor or job manager has
// exactly one address, not a list of interchangeable peers.
type GatewayPool[T any] struct {
	mu      sync.Mutex
	conns   map[string]*grpc.ClientConn
	wrap    func(*client) T
	dialOpt []grpc.DialOption
}

// NewGatewayPool creates a pool that wraps each dialed *grpc.ClientConn with
// wrap to produce the gateway interface T callers want.
func NewGatewayPool[T any](wrap func(*client) T, dialOpt ...grpc.DialOption) *GatewayPool[T] {
	return &GatewayPool[T]{
		conns: make(map[string]*grpc.ClientConn),
		wrap:  wrap,
		dialOpt: dialOpt,
	}
}

// Get returns the gateway for addr, dialing and caching a connection on
// first use.
func (p *GatewayPool[T]) Get(ctx context.Context, addr string) (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var zero T
	conn, ok := p.conns[addr]
	if !ok {
		var err error
		conn, err = grpc.DialContext(ctx, addr, append([]grpc.DialOption{grpc.WithInsecure()}, p.dialOpt...)...)
		if err != nil {
			return zero, rmerrors.ErrGatewayConnectFailed.Wrap(err).GenWithStackByArgs(addr)
		}
		p.conns[addr] = conn
	}
	return p.wrap(&client{conn: conn}), nil
}

// Close closes every cached connection.
func (p *GatewayPool[T]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for addr, conn := range p.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.conns, addr)
	}
	return firstErr
}

// NewTaskExecutorGatewayPool creates a GatewayPool of TaskExecutorGateway.
func NewTaskExecutorGatewayPool(dialOpt ...grpc.DialOption) *GatewayPool[TaskExecutorGateway] {
	return NewGatewayPool(func(c *client) TaskExecutorGateway { return &taskExecutorClient{c} }, dialOpt...)
}

// NewJobManagerGatewayPool creates a GatewayPool of JobManagerGateway.
func NewJobManagerGatewayPool(dialOpt ...grpc.DialOption) *GatewayPool[JobManagerGateway] {
	return NewGatewayPool(func(c *client) JobManagerGateway { return &jobManagerClient{c} }, dialOpt...)
}
