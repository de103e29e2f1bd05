package jobleader

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ElliotVilhelm/flink/pkg/clock"
	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRetrieval struct {
	mu       sync.Mutex
	listener Listener
	stopped  bool
}

func (f *fakeRetrieval) Start(listener Listener) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = listener
	return nil
}

func (f *fakeRetrieval) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeRetrieval) push(leaderID clustermodel.JobMasterID, addr string) {
	f.mu.Lock()
	l := f.listener
	f.mu.Unlock()
	l.NotifyLeaderAddress(leaderID, addr)
}

type fakeFactory struct {
	mu        sync.Mutex
	retrievals map[clustermodel.JobID]*fakeRetrieval
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{retrievals: make(map[clustermodel.JobID]*fakeRetrieval)}
}

func (f *fakeFactory) CreateRetrievalService(jobID clustermodel.JobID) (RetrievalService, error) {
	r := &fakeRetrieval{}
	f.mu.Lock()
	f.retrievals[jobID] = r
	f.mu.Unlock()
	return r, nil
}

func (f *fakeFactory) retrievalFor(jobID clustermodel.JobID) *fakeRetrieval {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retrievals[jobID]
}

type fakeActions struct {
	mu      sync.Mutex
	lost    []clustermodel.JobID
	timeout []clustermodel.JobID
}

func (a *fakeActions) JobLeaderLostLeadership(jobID clustermodel.JobID, _ clustermodel.JobMasterID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lost = append(a.lost, jobID)
}

func (a *fakeActions) NotifyJobTimeout(jobID clustermodel.JobID, _ uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.timeout = append(a.timeout, jobID)
}

func TestAddJobThenLeaderAddressResolvesFuture(t *testing.T) {
	factory := newFakeFactory()
	actions := &fakeActions{}
	svc := NewService(factory, actions, clock.New(), time.Minute)

	require.NoError(t, svc.AddJob("job-1"))
	require.True(t, svc.ContainsJob("job-1"))

	fut, err := svc.LeaderID("job-1")
	require.NoError(t, err)
	require.False(t, fut.IsResolved())

	factory.retrievalFor("job-1").push("jm-1", "1.2.3.4:1234")

	fut, err = svc.LeaderID("job-1")
	require.NoError(t, err)
	leaderID, err := fut.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, clustermodel.JobMasterID("jm-1"), leaderID)
}

func TestLeaderChangeNotifiesLostLeadership(t *testing.T) {
	factory := newFakeFactory()
	actions := &fakeActions{}
	svc := NewService(factory, actions, clock.New(), time.Minute)
	require.NoError(t, svc.AddJob("job-1"))

	r := factory.retrievalFor("job-1")
	r.push("jm-1", "addr-1")
	r.push("jm-2", "addr-2")

	actions.mu.Lock()
	defer actions.mu.Unlock()
	require.Equal(t, []clustermodel.JobID{"job-1"}, actions.lost)
}

func TestRemoveJobStopsRetrieval(t *testing.T) {
	factory := newFakeFactory()
	actions := &fakeActions{}
	svc := NewService(factory, actions, clock.New(), time.Minute)
	require.NoError(t, svc.AddJob("job-1"))

	svc.RemoveJob("job-1")
	require.False(t, svc.ContainsJob("job-1"))

	r := factory.retrievalFor("job-1")
	r.mu.Lock()
	defer r.mu.Unlock()
	require.True(t, r.stopped)
}

func TestIsValidTimeoutRejectsStaleID(t *testing.T) {
	factory := newFakeFactory()
	actions := &fakeActions{}
	svc := NewService(factory, actions, clock.New(), time.Minute)
	require.NoError(t, svc.AddJob("job-1"))

	require.False(t, svc.IsValidTimeout("job-1", uuid.New()))
	require.False(t, svc.IsValidTimeout("unknown-job", uuid.New()))
}

func TestClearStopsAllJobs(t *testing.T) {
	factory := newFakeFactory()
	actions := &fakeActions{}
	svc := NewService(factory, actions, clock.New(), time.Minute)
	require.NoError(t, svc.AddJob("job-1"))
	require.NoError(t, svc.AddJob("job-2"))

	require.NoError(t, svc.Clear())
	require.False(t, svc.ContainsJob("job-1"))
	require.False(t, svc.ContainsJob("job-2"))
}
