package slotmanager

import (
	"sync"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
	"github.com/ElliotVilhelm/flink/pkg/rmerrors"
)

type slotEntry struct {
	status     clustermodel.SlotStatus
	instanceID clustermodel.InstanceID
	allocation clustermodel.AllocationID
	allocated  bool
}

// InMemory is a reference SlotManager with no persistence, matching the
// non-goal that scheduling policy and storage are out of scope for the
// core: it satisfies every waiting request with the first free slot whose
// profile matches, first-fit, and keeps no history.
type InMemory struct {
	mu sync.Mutex

	actions    ResourceActions
	started    bool
	failUnfulfillable bool

	slots map[clustermodel.SlotID]*slotEntry
	// bySource indexes slots by the InstanceID of the task-executor
	// incarnation that reported them, not by ResourceID, so that
	// UnregisterTaskExecutor only ever drops the slots of the instance it
	// names (spec.md §3 Invariant 4).
	bySource map[clustermodel.InstanceID][]clustermodel.SlotID

	pending []clustermodel.SlotRequest
}

// NewInMemory creates an unstarted in-memory slot manager.
func NewInMemory() *InMemory {
	return &InMemory{
		slots:    make(map[clustermodel.SlotID]*slotEntry),
		bySource: make(map[clustermodel.InstanceID][]clustermodel.SlotID),
	}
}

func (m *InMemory) Start(_ clustermodel.ResourceManagerID, actions ResourceActions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = actions
	m.started = true
	return nil
}

func (m *InMemory) Suspend() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	m.actions = nil
	m.slots = make(map[clustermodel.SlotID]*slotEntry)
	m.bySource = make(map[clustermodel.InstanceID][]clustermodel.SlotID)
	m.pending = nil
}

func (m *InMemory) RegisterTaskExecutor(resourceID clustermodel.ResourceID, instanceID clustermodel.InstanceID, report clustermodel.SlotReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return rmerrors.ErrNotLeader.GenWithStackByArgs()
	}
	for _, status := range report.Slots {
		m.slots[status.SlotID] = &slotEntry{status: status, instanceID: instanceID}
		m.bySource[instanceID] = append(m.bySource[instanceID], status.SlotID)
	}
	m.tryFulfillLocked()
	return nil
}

func (m *InMemory) UnregisterTaskExecutor(instanceID clustermodel.InstanceID, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, slotID := range m.bySource[instanceID] {
		delete(m.slots, slotID)
	}
	delete(m.bySource, instanceID)
	log.Info("unregistered task executor from slot manager", zap.String("instance-id", instanceID.String()), zap.Error(cause))
}

func (m *InMemory) ReportSlotStatus(resourceID clustermodel.ResourceID, instanceID clustermodel.InstanceID, report clustermodel.SlotReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return rmerrors.ErrNotLeader.GenWithStackByArgs()
	}
	for _, status := range report.Slots {
		entry, ok := m.slots[status.SlotID]
		if !ok {
			m.slots[status.SlotID] = &slotEntry{status: status, instanceID: instanceID}
			m.bySource[instanceID] = append(m.bySource[instanceID], status.SlotID)
			continue
		}
		entry.status = status
	}
	m.tryFulfillLocked()
	return nil
}

func (m *InMemory) ProcessResourceRequirements(request clustermodel.SlotRequest) (clustermodel.SlotID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return clustermodel.SlotID{}, rmerrors.ErrNotLeader.GenWithStackByArgs()
	}

	if slotID, ok := m.firstFitLocked(request.ResourceProfile); ok {
		m.slots[slotID].allocated = true
		m.slots[slotID].allocation = request.AllocationID
		return slotID, nil
	}

	if m.failUnfulfillable {
		return clustermodel.SlotID{}, rmerrors.ErrUnfulfillableSlotRequest.GenWithStackByArgs(request.AllocationID)
	}

	m.pending = append(m.pending, request)
	actions := m.actions
	go func() {
		if err := actions.AllocateResource(request.ResourceProfile); err != nil {
			log.Warn("allocate resource failed", zap.Error(err))
			actions.NotifyAllocationFailure(request.JobID, request.AllocationID, err)
		}
	}()
	return clustermodel.SlotID{}, nil
}

func (m *InMemory) FreeSlot(slotID clustermodel.SlotID, allocationID clustermodel.AllocationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.slots[slotID]
	if !ok {
		return rmerrors.ErrUnknownTaskExecutor.GenWithStackByArgs(slotID.ResourceID)
	}
	if entry.allocated && entry.allocation != allocationID {
		return nil
	}
	entry.allocated = false
	entry.allocation = ""
	m.tryFulfillLocked()
	return nil
}

func (m *InMemory) SetFailUnfulfillableRequest(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failUnfulfillable = fail
}

func (m *InMemory) FreeSlotCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, entry := range m.slots {
		if !entry.allocated {
			count++
		}
	}
	return count
}

func (m *InMemory) RegisteredTaskExecutorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bySource)
}

func (m *InMemory) firstFitLocked(profile clustermodel.ResourceProfile) (clustermodel.SlotID, bool) {
	for slotID, entry := range m.slots {
		if !entry.allocated && entry.status.ResourceProfile.Matches(profile) {
			return slotID, true
		}
	}
	return clustermodel.SlotID{}, false
}

func (m *InMemory) tryFulfillLocked() {
	remaining := m.pending[:0]
	for _, req := range m.pending {
		slotID, ok := m.firstFitLocked(req.ResourceProfile)
		if !ok {
			remaining = append(remaining, req)
			continue
		}
		m.slots[slotID].allocated = true
		m.slots[slotID].allocation = req.AllocationID
	}
	m.pending = remaining
}
