package rpctransport

import (
	"context"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
	"github.com/ElliotVilhelm/flink/pkg/rmerrors"
)

// fencedRequest is implemented by every request message that carries a
// fencing token, which in this service is all of them except the
// bootstrap GetLeaderTokenRequest — read-only
// introspection RPCs are fenced too, since an RPC answered by a resource
// manager that has already lost leadership is itself stale.
type fencedRequest interface {
	fencingToken() clustermodel.ResourceManagerID
}

// CurrentTokenFunc returns the resource manager's current fencing token, or
// ok=false while it does not hold leadership.
type CurrentTokenFunc func() (clustermodel.ResourceManagerID, bool)

// FencingInterceptor rejects any request whose fencing token does not match
// the resource manager's current one, before the request reaches the
// handler. It is the server-side half of the "fencing enforced at RPC
// entry" guarantee; the actor loop's own RunFenced check is the second,
// belt-and-suspenders half for calls that originate in-process.
func FencingInterceptor(currentToken CurrentTokenFunc) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		fenced, ok := req.(fencedRequest)
		if !ok {
			return handler(ctx, req)
		}

		cur, leading := currentToken()
		if !leading {
			return nil, rmerrors.ErrNotLeader.GenWithStackByArgs()
		}
		if fenced.fencingToken() != cur {
			log.Warn("rejecting rpc with stale fencing token",
				zap.String("method", info.FullMethod),
				zap.String("request-token", string(fenced.fencingToken())),
				zap.String("current-token", string(cur)))
			return nil, rmerrors.ErrFencingTokenMismatch.GenWithStackByArgs(fenced.fencingToken(), cur)
		}
		return handler(ctx, req)
	}
}

// RecoveryInterceptor turns a panic inside a handler into an error instead
// of crashing the server process, chained ahead of FencingInterceptor.
func RecoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic while handling rpc", zap.String("method", info.FullMethod), zap.Any("panic", r))
				err = rmerrors.ErrNotLeader.GenWithStackByArgs()
			}
		}()
		return handler(ctx, req)
	}
}

// ChainUnaryInterceptors composes interceptors with go-grpc-middleware's
// chaining helper, matching the teacher's dependency on that package.
func ChainUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) grpc.ServerOption {
	return grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(interceptors...))
}

func (r *RegisterJobManagerRequest) fencingToken() clustermodel.ResourceManagerID       { return r.FencingToken }
func (r *RegisterTaskExecutorRequest) fencingToken() clustermodel.ResourceManagerID     { return r.FencingToken }
func (r *SendSlotReportRequest) fencingToken() clustermodel.ResourceManagerID           { return r.FencingToken }
func (r *HeartbeatFromTaskManagerRequest) fencingToken() clustermodel.ResourceManagerID { return r.FencingToken }
func (r *HeartbeatFromJobManagerRequest) fencingToken() clustermodel.ResourceManagerID  { return r.FencingToken }
func (r *DisconnectTaskManagerRequest) fencingToken() clustermodel.ResourceManagerID    { return r.FencingToken }
func (r *DisconnectJobManagerRequest) fencingToken() clustermodel.ResourceManagerID     { return r.FencingToken }
func (r *RequestSlotRequest) fencingToken() clustermodel.ResourceManagerID              { return r.FencingToken }
func (r *CancelSlotRequestRequest) fencingToken() clustermodel.ResourceManagerID        { return r.FencingToken }
func (r *DeregisterApplicationRequest) fencingToken() clustermodel.ResourceManagerID    { return r.FencingToken }
func (r *NumberOfRegisteredTaskManagersRequest) fencingToken() clustermodel.ResourceManagerID {
	return r.FencingToken
}
func (r *RequestTaskManagerInfoRequest) fencingToken() clustermodel.ResourceManagerID { return r.FencingToken }
func (r *RequestResourceOverviewRequest) fencingToken() clustermodel.ResourceManagerID {
	return r.FencingToken
}
func (r *NotifySlotAvailableRequest) fencingToken() clustermodel.ResourceManagerID { return r.FencingToken }
func (r *RequestTaskManagerMetricQueryServiceAddressesRequest) fencingToken() clustermodel.ResourceManagerID {
	return r.FencingToken
}
func (r *RequestTaskManagerFileUploadRequest) fencingToken() clustermodel.ResourceManagerID {
	return r.FencingToken
}
