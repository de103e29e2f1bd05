package rpctransport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
)

func TestFencingInterceptorRejectsWithoutLeadership(t *testing.T) {
	interceptor := FencingInterceptor(func() (clustermodel.ResourceManagerID, bool) {
		return "", false
	})

	_, err := interceptor(context.Background(), &HeartbeatFromJobManagerRequest{FencingToken: "rm-1"},
		&grpc.UnaryServerInfo{FullMethod: "HeartbeatFromJobManager"},
		func(context.Context, any) (any, error) { t.Fatal("handler must not run"); return nil, nil })
	require.Error(t, err)
}

func TestFencingInterceptorRejectsMismatchedToken(t *testing.T) {
	interceptor := FencingInterceptor(func() (clustermodel.ResourceManagerID, bool) {
		return "rm-current", true
	})

	_, err := interceptor(context.Background(), &HeartbeatFromJobManagerRequest{FencingToken: "rm-stale"},
		&grpc.UnaryServerInfo{FullMethod: "HeartbeatFromJobManager"},
		func(context.Context, any) (any, error) { t.Fatal("handler must not run"); return nil, nil })
	require.Error(t, err)
}

func TestFencingInterceptorAcceptsMatchingToken(t *testing.T) {
	interceptor := FencingInterceptor(func() (clustermodel.ResourceManagerID, bool) {
		return "rm-current", true
	})

	ran := false
	_, err := interceptor(context.Background(), &HeartbeatFromJobManagerRequest{FencingToken: "rm-current"},
		&grpc.UnaryServerInfo{FullMethod: "HeartbeatFromJobManager"},
		func(context.Context, any) (any, error) { ran = true; return &Ack{}, nil })
	require.NoError(t, err)
	require.True(t, ran)
}

func TestFencingInterceptorPassesThroughUnfencedRequests(t *testing.T) {
	interceptor := FencingInterceptor(func() (clustermodel.ResourceManagerID, bool) {
		return "", false
	})

	ran := false
	_, err := interceptor(context.Background(), "not-a-fenced-request",
		&grpc.UnaryServerInfo{FullMethod: "Unknown"},
		func(context.Context, any) (any, error) { ran = true; return nil, nil })
	require.NoError(t, err)
	require.True(t, ran)
}

func TestJSONCodecRoundTrips(t *testing.T) {
	c := jsonCodec{}
	req := &RegisterTaskExecutorRequest{ResourceID: "te-1", Address: "1.2.3.4:1234"}
	data, err := c.Marshal(req)
	require.NoError(t, err)

	got := new(RegisterTaskExecutorRequest)
	require.NoError(t, c.Unmarshal(data, got))
	require.Equal(t, req.ResourceID, got.ResourceID)
	require.Equal(t, req.Address, got.Address)
}
