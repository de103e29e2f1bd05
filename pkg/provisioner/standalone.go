package provisioner

import (
	"context"
	"sync"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
)

// Standalone is the WorkerProvisioner for a statically provisioned cluster:
// task executors are started by the operator out of band, and the backend
// only ever recognizes a worker once it shows up and registers. It never
// issues a StartNewWorker request of its own; requests that can't be
// satisfied by an already-registered task executor simply wait.
type Standalone struct {
	mu      sync.Mutex
	workers map[clustermodel.ResourceID]clustermodel.InstanceID
}

// NewStandalone creates a Standalone provisioner.
func NewStandalone() *Standalone {
	return &Standalone{workers: make(map[clustermodel.ResourceID]clustermodel.InstanceID)}
}

func (s *Standalone) Initialize(context.Context) error { return nil }

func (s *Standalone) PrepareLeadershipAsync(context.Context) error { return nil }

func (s *Standalone) ClearStateAsync(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = make(map[clustermodel.ResourceID]clustermodel.InstanceID)
	return nil
}

// StartNewWorker is a no-op: in standalone mode there is nothing to start,
// so the request stays pending until an operator-started process registers.
func (s *Standalone) StartNewWorker(_ context.Context, profile clustermodel.ResourceProfile) error {
	log.Info("standalone provisioner cannot start workers on demand; waiting for manual registration",
		zap.Float64("cpu-cores", profile.CPUCores), zap.Int64("memory-bytes", profile.MemoryBytes))
	return nil
}

func (s *Standalone) WorkerStarted(resourceID clustermodel.ResourceID, instanceID clustermodel.InstanceID) (clustermodel.ResourceID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[resourceID] = instanceID
	return resourceID, true
}

func (s *Standalone) StopWorker(_ context.Context, instanceID clustermodel.InstanceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for resourceID, id := range s.workers {
		if id == instanceID {
			delete(s.workers, resourceID)
			break
		}
	}
	log.Info("standalone provisioner cannot stop a worker process; operator must terminate it",
		zap.String("instance-id", instanceID.String()))
	return nil
}

func (s *Standalone) InternalDeregisterApplication(status clustermodel.ApplicationStatus, diagnostics string) error {
	log.Info("application deregistered", zap.String("status", status.String()), zap.String("diagnostics", diagnostics))
	return nil
}
