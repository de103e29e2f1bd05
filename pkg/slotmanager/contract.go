// Package slotmanager defines the slot manager and resource actions
// contracts the resource manager dispatches slot requests through
// (components C6/C7), plus an in-memory reference implementation. Neither
// interface is owned by the resource manager's actor loop; the reference
// implementation serializes its own state with a mutex so it can also be
// driven directly from tests without going through the actor.
package slotmanager

import (
	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
)

// ResourceActions is the callback surface the slot manager uses to ask the
// resource manager to do something about the cluster's worker population:
// release a worker that is no longer needed, start allocating a new one to
// satisfy a profile, or report that an allocation could not be satisfied.
// The resource manager implements this interface (C7); ReleaseResource and
// NotifyAllocationFailure run on its actor loop, AllocateResource runs on
// the caller's goroutine.
type ResourceActions interface {
	ReleaseResource(instanceID clustermodel.InstanceID, cause error)
	AllocateResource(profile clustermodel.ResourceProfile) error
	NotifyAllocationFailure(jobID clustermodel.JobID, allocationID clustermodel.AllocationID, cause error)
}

// SlotManager tracks every task executor's advertised slots and matches
// them against outstanding requests. It is started once leadership is
// confirmed and suspended on leadership loss.
type SlotManager interface {
	Start(resourceManagerID clustermodel.ResourceManagerID, actions ResourceActions) error
	Suspend()

	RegisterTaskExecutor(resourceID clustermodel.ResourceID, instanceID clustermodel.InstanceID, report clustermodel.SlotReport) error
	// UnregisterTaskExecutor drops every slot owned by instanceID. It is
	// keyed by InstanceID, not ResourceID, so that a registration's slots
	// are never dropped by a stale unregister call racing a newer
	// registration of the same ResourceID (spec.md §3 Invariant 4).
	UnregisterTaskExecutor(instanceID clustermodel.InstanceID, cause error)
	ReportSlotStatus(resourceID clustermodel.ResourceID, instanceID clustermodel.InstanceID, report clustermodel.SlotReport) error

	ProcessResourceRequirements(request clustermodel.SlotRequest) (clustermodel.SlotID, error)
	FreeSlot(slotID clustermodel.SlotID, allocationID clustermodel.AllocationID) error

	// SetFailUnfulfillableRequest toggles whether a request that no
	// currently free slot matches fails immediately instead of waiting for
	// a matching slot to be registered or freed.
	SetFailUnfulfillableRequest(fail bool)

	FreeSlotCount() int
	RegisteredTaskExecutorCount() int
}
