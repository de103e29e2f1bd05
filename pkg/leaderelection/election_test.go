package leaderelection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeElection struct {
	winCh chan struct{}
	lose  context.CancelFunc
}

func newFakeElection() (*fakeElection, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	return &fakeElection{winCh: make(chan struct{}, 1), lose: cancel}, ctx
}

func (f *fakeElection) Campaign(ctx context.Context, _ NodeID) (context.Context, context.CancelFunc, error) {
	leaderCtx, cancel := context.WithCancel(context.Background())
	f.lose = cancel
	select {
	case f.winCh <- struct{}{}:
	default:
	}
	return leaderCtx, func() {}, nil
}

type fakeContender struct {
	mu      sync.Mutex
	granted []clustermodel.ResourceManagerID
	revokes int
}

func (c *fakeContender) GrantLeadership(token clustermodel.ResourceManagerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.granted = append(c.granted, token)
}

func (c *fakeContender) RevokeLeadership() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revokes++
}

func (c *fakeContender) snapshot() ([]clustermodel.ResourceManagerID, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]clustermodel.ResourceManagerID, len(c.granted))
	copy(out, c.granted)
	return out, c.revokes
}

func TestServiceGrantsLeadershipOnWin(t *testing.T) {
	election, _ := newFakeElection()
	contender := &fakeContender{}
	svc := NewService(election, NewMockEpochGenerator(), "node-1", contender)

	go svc.Run(context.Background())
	defer svc.Stop()

	require.Eventually(t, func() bool {
		granted, _ := contender.snapshot()
		return len(granted) == 1
	}, time.Second, time.Millisecond)

	granted, _ := contender.snapshot()
	require.Equal(t, clustermodel.ResourceManagerID("node-1-1"), granted[0])
}

func TestServiceRevokesLeadershipOnSessionLoss(t *testing.T) {
	election, _ := newFakeElection()
	contender := &fakeContender{}
	svc := NewService(election, NewMockEpochGenerator(), "node-1", contender)

	go svc.Run(context.Background())
	defer svc.Stop()

	require.Eventually(t, func() bool {
		granted, _ := contender.snapshot()
		return len(granted) == 1
	}, time.Second, time.Millisecond)

	election.lose()

	require.Eventually(t, func() bool {
		_, revokes := contender.snapshot()
		return revokes == 1
	}, time.Second, time.Millisecond)
}

func TestMockEpochGeneratorIsMonotonic(t *testing.T) {
	gen := NewMockEpochGenerator()
	first, err := gen.GenerateEpoch(context.Background())
	require.NoError(t, err)
	second, err := gen.GenerateEpoch(context.Background())
	require.NoError(t, err)
	require.Greater(t, second, first)
}
