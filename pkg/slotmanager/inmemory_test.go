package slotmanager

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
)

type fakeActions struct {
	mu        sync.Mutex
	allocated []clustermodel.ResourceProfile
	failed    []clustermodel.AllocationID
}

func (f *fakeActions) ReleaseResource(clustermodel.InstanceID, error) {}

func (f *fakeActions) AllocateResource(profile clustermodel.ResourceProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allocated = append(f.allocated, profile)
	return nil
}

func (f *fakeActions) NotifyAllocationFailure(_ clustermodel.JobID, allocationID clustermodel.AllocationID, _ error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, allocationID)
}

func profile(cpu float64) clustermodel.ResourceProfile {
	return clustermodel.ResourceProfile{CPUCores: cpu, MemoryBytes: 1 << 20}
}

func TestRegisterTaskExecutorFulfillsPendingRequest(t *testing.T) {
	m := NewInMemory()
	actions := &fakeActions{}
	require.NoError(t, m.Start("rm-1", actions))

	slotID, err := m.ProcessResourceRequirements(clustermodel.SlotRequest{
		JobID:           "job-1",
		AllocationID:    "alloc-1",
		ResourceProfile: profile(1),
	})
	require.NoError(t, err)
	require.Empty(t, slotID.ResourceID, "no slot free yet, request must be pending")

	require.NoError(t, m.RegisterTaskExecutor("te-1", "te-1-instance", clustermodel.SlotReport{
		ResourceID: "te-1",
		Slots: []clustermodel.SlotStatus{
			{SlotID: clustermodel.SlotID{ResourceID: "te-1", Index: 0}, ResourceProfile: profile(1)},
		},
	}))

	require.Equal(t, 0, m.FreeSlotCount(), "the one slot must now be allocated to the pending request")
}

func TestProcessResourceRequirementsReturnsImmediateMatch(t *testing.T) {
	m := NewInMemory()
	actions := &fakeActions{}
	require.NoError(t, m.Start("rm-1", actions))

	require.NoError(t, m.RegisterTaskExecutor("te-1", "te-1-instance", clustermodel.SlotReport{
		ResourceID: "te-1",
		Slots: []clustermodel.SlotStatus{
			{SlotID: clustermodel.SlotID{ResourceID: "te-1", Index: 0}, ResourceProfile: profile(2)},
		},
	}))

	slotID, err := m.ProcessResourceRequirements(clustermodel.SlotRequest{
		JobID:           "job-1",
		AllocationID:    "alloc-1",
		ResourceProfile: profile(2),
	})
	require.NoError(t, err)
	require.Equal(t, clustermodel.ResourceID("te-1"), slotID.ResourceID)
	require.Equal(t, 0, m.FreeSlotCount())
}

func TestUnfulfillableRequestAsksForAllocation(t *testing.T) {
	m := NewInMemory()
	actions := &fakeActions{}
	require.NoError(t, m.Start("rm-1", actions))

	_, err := m.ProcessResourceRequirements(clustermodel.SlotRequest{
		JobID:           "job-1",
		AllocationID:    "alloc-1",
		ResourceProfile: profile(4),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		actions.mu.Lock()
		defer actions.mu.Unlock()
		return len(actions.allocated) == 1
	}, time.Second, time.Millisecond)
}

func TestFreeSlotReturnsItToThePool(t *testing.T) {
	m := NewInMemory()
	require.NoError(t, m.Start("rm-1", &fakeActions{}))

	slotID := clustermodel.SlotID{ResourceID: "te-1", Index: 0}
	require.NoError(t, m.RegisterTaskExecutor("te-1", "te-1-instance", clustermodel.SlotReport{
		ResourceID: "te-1",
		Slots:      []clustermodel.SlotStatus{{SlotID: slotID, ResourceProfile: profile(1)}},
	}))
	got, err := m.ProcessResourceRequirements(clustermodel.SlotRequest{
		JobID: "job-1", AllocationID: "alloc-1", ResourceProfile: profile(1),
	})
	require.NoError(t, err)
	require.Equal(t, slotID, got)
	require.Equal(t, 0, m.FreeSlotCount())

	require.NoError(t, m.FreeSlot(slotID, "alloc-1"))
	require.Equal(t, 1, m.FreeSlotCount())
}

func TestFailUnfulfillableRequestRejectsImmediately(t *testing.T) {
	m := NewInMemory()
	require.NoError(t, m.Start("rm-1", &fakeActions{}))
	m.SetFailUnfulfillableRequest(true)

	_, err := m.ProcessResourceRequirements(clustermodel.SlotRequest{
		JobID:           "job-1",
		AllocationID:    "alloc-1",
		ResourceProfile: profile(4),
	})
	require.Error(t, err)
	require.Empty(t, m.pending, "an unfulfillable request must not be queued once fail-fast is enabled")
}

func TestUnregisterTaskExecutorRemovesItsSlots(t *testing.T) {
	m := NewInMemory()
	require.NoError(t, m.Start("rm-1", &fakeActions{}))
	require.NoError(t, m.RegisterTaskExecutor("te-1", "te-1-instance", clustermodel.SlotReport{
		ResourceID: "te-1",
		Slots:      []clustermodel.SlotStatus{{SlotID: clustermodel.SlotID{ResourceID: "te-1"}, ResourceProfile: profile(1)}},
	}))
	require.Equal(t, 1, m.RegisteredTaskExecutorCount())

	m.UnregisterTaskExecutor("te-1-instance", nil)
	require.Equal(t, 0, m.RegisteredTaskExecutorCount())
	require.Equal(t, 0, m.FreeSlotCount())
}
