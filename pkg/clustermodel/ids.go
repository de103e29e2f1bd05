// Package clustermodel defines the entities shared by the resource manager,
// job managers and task executors: opaque identifiers, registration tuples
// and the small value types that travel over the RPC surface.
package clustermodel

import "fmt"

// ResourceID identifies a physical host or process. It is stable across
// reconnects: a task executor keeps the same ResourceID every time it
// re-registers after a restart of the resource manager.
type ResourceID string

func (r ResourceID) String() string { return string(r) }

// InstanceID is minted fresh on every successful task-executor
// registration. A new InstanceID invalidates whatever the slot manager
// knew about the previous incarnation of the same ResourceID.
type InstanceID string

func (i InstanceID) String() string { return string(i) }

// JobID identifies a job for the lifetime of that job.
type JobID string

func (j JobID) String() string { return string(j) }

// JobMasterID is the fencing token carried by a job manager replica. Only
// the replica whose JobMasterID matches the job-leader-id service's
// current answer is trusted.
type JobMasterID string

func (j JobMasterID) String() string { return string(j) }

// ResourceManagerID is the fencing token of a resource-manager leadership
// epoch. It is the elected node's id joined with the epoch minted for that
// leadership term.
type ResourceManagerID string

func (r ResourceManagerID) String() string { return string(r) }

// AllocationID identifies one reservation of a slot by one job.
type AllocationID string

func (a AllocationID) String() string { return string(a) }

// SlotID names one execution slot hosted by a task executor.
type SlotID struct {
	ResourceID ResourceID
	Index      int
}

func (s SlotID) String() string { return fmt.Sprintf("%s:%d", s.ResourceID, s.Index) }

// ResourceProfile describes the shape (cpu/memory/...) of one slot.
type ResourceProfile struct {
	CPUCores    float64
	MemoryBytes int64
}

// Matches reports whether this profile can satisfy a request for want.
func (p ResourceProfile) Matches(want ResourceProfile) bool {
	return p.CPUCores >= want.CPUCores && p.MemoryBytes >= want.MemoryBytes
}

// HardwareDescription is the static description a task executor reports
// about the host it runs on.
type HardwareDescription struct {
	CPUCores    float64
	MemoryBytes int64
}

// ClusterInformation is the static metadata handed to a task executor on
// successful registration.
type ClusterInformation struct {
	BlobServerAddress string
}

// SlotRequest is a job's ask for one slot of a given shape.
type SlotRequest struct {
	JobID               JobID
	AllocationID        AllocationID
	ResourceProfile     ResourceProfile
	TargetResourceID    ResourceID // optional placement preference, "" if none
}

// SlotStatus is one line of a task executor's slot report: the slot, the
// allocation (if any) that currently owns it, and its profile.
type SlotStatus struct {
	SlotID          SlotID
	AllocationID    AllocationID // zero value if the slot is free
	ResourceProfile ResourceProfile
}

// SlotReport is a task executor's self-reported snapshot of all its slots.
type SlotReport struct {
	ResourceID ResourceID
	Slots      []SlotStatus
}

// ApplicationStatus is the final state reported by deregisterApplication.
type ApplicationStatus int

const (
	ApplicationSucceeded ApplicationStatus = iota
	ApplicationFailed
	ApplicationCanceled
	ApplicationUnknown
)

func (s ApplicationStatus) String() string {
	switch s {
	case ApplicationSucceeded:
		return "SUCCEEDED"
	case ApplicationFailed:
		return "FAILED"
	case ApplicationCanceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// FileType distinguishes the kind of file a caller wants a task executor to
// upload (logs, stdout, ...).
type FileType int

const (
	FileTypeLog FileType = iota
	FileTypeStdout
)
