package heartbeat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ElliotVilhelm/flink/pkg/clock"
	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTarget struct {
	mu       sync.Mutex
	requests int
}

func (f *fakeTarget) RequestHeartbeat(clustermodel.ResourceID, struct{}) {
	f.mu.Lock()
	f.requests++
	f.mu.Unlock()
}

func (f *fakeTarget) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

type fakeListener struct {
	mu        sync.Mutex
	timedOut  []clustermodel.ResourceID
	payloads  []int
	retrieved int
}

func (f *fakeListener) NotifyHeartbeatTimeout(id clustermodel.ResourceID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timedOut = append(f.timedOut, id)
}

func (f *fakeListener) ReportPayload(_ clustermodel.ResourceID, payload int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
}

func (f *fakeListener) RetrievePayload(clustermodel.ResourceID) struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieved++
	return struct{}{}
}

func (f *fakeListener) snapshotTimedOut() []clustermodel.ResourceID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]clustermodel.ResourceID, len(f.timedOut))
	copy(out, f.timedOut)
	return out
}

func TestReceiveHeartbeatReportsPayloadAndReArms(t *testing.T) {
	mockClock := clock.NewMock()
	listener := &fakeListener{}
	m := NewManager[int, struct{}]("rm-1", time.Minute, time.Second, listener, mockClock)
	defer m.Stop()

	target := &fakeTarget{}
	m.MonitorTarget("te-1", target)

	m.ReceiveHeartbeat("te-1", 42)

	listener.mu.Lock()
	require.Equal(t, []int{42}, listener.payloads)
	listener.mu.Unlock()

	_, ok := m.LastHeartbeatFrom("te-1")
	require.True(t, ok)
}

func TestReceiveHeartbeatFromUnmonitoredIsDropped(t *testing.T) {
	mockClock := clock.NewMock()
	listener := &fakeListener{}
	m := NewManager[int, struct{}]("rm-1", time.Minute, time.Second, listener, mockClock)
	defer m.Stop()

	m.ReceiveHeartbeat("ghost", 7)

	listener.mu.Lock()
	require.Empty(t, listener.payloads)
	listener.mu.Unlock()
}

func TestUnmonitorTargetStopsTimeoutReporting(t *testing.T) {
	mockClock := clock.NewMock()
	listener := &fakeListener{}
	timeout := 10 * time.Millisecond
	m := NewManager[int, struct{}]("rm-1", timeout, timeout/2, listener, mockClock)
	defer m.Stop()

	m.MonitorTarget("te-1", &fakeTarget{})
	m.UnmonitorTarget("te-1")

	_, ok := m.LastHeartbeatFrom("te-1")
	require.False(t, ok)

	mockClock.Add(2 * timeout)
	require.Empty(t, listener.snapshotTimedOut())
}

func TestCheckTimeoutsReportsExpiredTargets(t *testing.T) {
	mockClock := clock.NewMock()
	listener := &fakeListener{}
	timeout := 100 * time.Millisecond
	m := NewManager[int, struct{}]("rm-1", timeout, timeout/4, listener, mockClock)
	defer m.Stop()

	m.MonitorTarget("te-1", &fakeTarget{})

	require.Eventually(t, func() bool {
		mockClock.Add(timeout / 4)
		return len(listener.snapshotTimedOut()) == 1
	}, 2*time.Second, time.Millisecond)

	require.Equal(t, []clustermodel.ResourceID{"te-1"}, listener.snapshotTimedOut())
	_, ok := m.LastHeartbeatFrom("te-1")
	require.False(t, ok, "a timed-out target must be unmonitored")
}
