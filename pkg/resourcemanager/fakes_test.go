package resourcemanager

import (
	"context"
	"sync"

	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
	"github.com/ElliotVilhelm/flink/pkg/jobleader"
)

// fakeFatalHandler records fatal errors instead of terminating the process,
// following the teacher's hand-rolled test-double style rather than a
// generated mock.
type fakeFatalHandler struct {
	mu   sync.Mutex
	errs []error
}

func (f *fakeFatalHandler) OnFatalError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *fakeFatalHandler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errs)
}

// fakeRetrieval never pushes a leader change; AddJob always succeeds.
type fakeRetrieval struct {
	mu       sync.Mutex
	listener jobleader.Listener
}

func (f *fakeRetrieval) Start(listener jobleader.Listener) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = listener
	return nil
}

func (f *fakeRetrieval) Stop() error { return nil }

type fakeRetrievalFactory struct{}

func (fakeRetrievalFactory) CreateRetrievalService(clustermodel.JobID) (jobleader.RetrievalService, error) {
	return &fakeRetrieval{}, nil
}

// fakeProvisioner recognizes every ResourceID it is told StartNewWorker for
// ahead of time was never called; WorkerStarted always succeeds, matching a
// standalone-style deployment the tests don't need to distinguish from a
// managed one.
type fakeProvisioner struct {
	mu      sync.Mutex
	stopped []clustermodel.InstanceID
}

func (p *fakeProvisioner) Initialize(context.Context) error             { return nil }
func (p *fakeProvisioner) PrepareLeadershipAsync(context.Context) error { return nil }
func (p *fakeProvisioner) ClearStateAsync(context.Context) error        { return nil }
func (p *fakeProvisioner) StartNewWorker(context.Context, clustermodel.ResourceProfile) error {
	return nil
}
func (p *fakeProvisioner) WorkerStarted(resourceID clustermodel.ResourceID, _ clustermodel.InstanceID) (clustermodel.ResourceID, bool) {
	return resourceID, true
}
func (p *fakeProvisioner) StopWorker(_ context.Context, instanceID clustermodel.InstanceID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = append(p.stopped, instanceID)
	return nil
}
func (p *fakeProvisioner) InternalDeregisterApplication(clustermodel.ApplicationStatus, string) error {
	return nil
}
