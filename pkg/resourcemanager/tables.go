package resourcemanager

import (
	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
)

// jobManagerEntry is one row of the job manager registration table (C1).
type jobManagerEntry struct {
	registration clustermodel.JobManagerRegistration
	gateway      jobManagerGateway
}

// jobManagerTable indexes registered job managers by JobID, since a job has
// at most one registered leader at a time.
type jobManagerTable struct {
	byJobID map[clustermodel.JobID]*jobManagerEntry
}

func newJobManagerTable() *jobManagerTable {
	return &jobManagerTable{byJobID: make(map[clustermodel.JobID]*jobManagerEntry)}
}

func (t *jobManagerTable) get(jobID clustermodel.JobID) (*jobManagerEntry, bool) {
	e, ok := t.byJobID[jobID]
	return e, ok
}

func (t *jobManagerTable) put(e *jobManagerEntry) {
	t.byJobID[e.registration.JobID] = e
}

func (t *jobManagerTable) remove(jobID clustermodel.JobID) {
	delete(t.byJobID, jobID)
}

func (t *jobManagerTable) count() int {
	return len(t.byJobID)
}

// taskExecutorEntry is one row of the task executor registration table,
// plus the monotonically increasing attempt counter used to detect a
// pending-registration race (§9's redesign: a counter in place of
// CompletableFuture pointer identity, since Go futures aren't comparable).
type taskExecutorEntry struct {
	registration clustermodel.WorkerRegistration[any]
	gateway      taskExecutorGateway
	attempt      uint64
}

// taskExecutorTable indexes registered task executors by ResourceID, and
// keeps an inverted index from InstanceID so releaseResource does not need
// a linear scan (§9's resolved open question), with the linear scan kept
// as findByInstanceIDSlow for the case the index and table ever disagree.
type taskExecutorTable struct {
	byResourceID map[clustermodel.ResourceID]*taskExecutorEntry
	byInstanceID map[clustermodel.InstanceID]clustermodel.ResourceID

	// pendingAttempts holds the latest registration attempt number per
	// ResourceID. RegisterTaskExecutor takes a number and checks it is
	// still the newest within the same actor-loop turn; because the whole
	// registration runs in that one turn, no other attempt can come in
	// between, so the check always passes and no registration is declined
	// as outdated.
	pendingAttempts map[clustermodel.ResourceID]uint64
}

func newTaskExecutorTable() *taskExecutorTable {
	return &taskExecutorTable{
		byResourceID:    make(map[clustermodel.ResourceID]*taskExecutorEntry),
		byInstanceID:    make(map[clustermodel.InstanceID]clustermodel.ResourceID),
		pendingAttempts: make(map[clustermodel.ResourceID]uint64),
	}
}

func (t *taskExecutorTable) get(resourceID clustermodel.ResourceID) (*taskExecutorEntry, bool) {
	e, ok := t.byResourceID[resourceID]
	return e, ok
}

func (t *taskExecutorTable) put(e *taskExecutorEntry) {
	t.byResourceID[e.registration.ResourceID] = e
	t.byInstanceID[e.registration.InstanceID] = e.registration.ResourceID
}

func (t *taskExecutorTable) remove(resourceID clustermodel.ResourceID) {
	if e, ok := t.byResourceID[resourceID]; ok {
		delete(t.byInstanceID, e.registration.InstanceID)
	}
	delete(t.byResourceID, resourceID)
}

func (t *taskExecutorTable) findByInstanceID(instanceID clustermodel.InstanceID) (*taskExecutorEntry, bool) {
	resourceID, ok := t.byInstanceID[instanceID]
	if !ok {
		return nil, false
	}
	return t.get(resourceID)
}

// findByInstanceIDSlow is the documented fallback: a linear scan that stays
// correct even if the inverted index is ever dropped or found to disagree
// with the table it indexes.
func (t *taskExecutorTable) findByInstanceIDSlow(instanceID clustermodel.InstanceID) (*taskExecutorEntry, bool) {
	for _, e := range t.byResourceID {
		if e.registration.InstanceID == instanceID {
			return e, true
		}
	}
	return nil, false
}

func (t *taskExecutorTable) nextAttempt(resourceID clustermodel.ResourceID) uint64 {
	next := t.pendingAttempts[resourceID] + 1
	t.pendingAttempts[resourceID] = next
	return next
}

func (t *taskExecutorTable) isNewestAttempt(resourceID clustermodel.ResourceID, attempt uint64) bool {
	return t.pendingAttempts[resourceID] == attempt
}

func (t *taskExecutorTable) count() int {
	return len(t.byResourceID)
}
