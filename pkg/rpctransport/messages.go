package rpctransport

import (
	"time"

	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
)

// RegisterJobManagerRequest is the wire form of a job manager's
// registration attempt.
type RegisterJobManagerRequest struct {
	FencingToken clustermodel.ResourceManagerID
	JobMasterID  clustermodel.JobMasterID
	JobID        clustermodel.JobID
	ResourceID   clustermodel.ResourceID
	Address      string
}

// RegisterJobManagerResponse is either a success carrying the resource
// manager's own id, or a decline carrying a human-readable reason.
type RegisterJobManagerResponse struct {
	Success               bool
	ResourceManagerAddress string
	DeclineReason          string
}

// RegisterTaskExecutorRequest is the wire form of a task executor's
// registration attempt.
type RegisterTaskExecutorRequest struct {
	FencingToken        clustermodel.ResourceManagerID
	ResourceID          clustermodel.ResourceID
	Address             string
	DataPort            int
	HardwareDescription clustermodel.HardwareDescription
}

// RegisterTaskExecutorResponse mirrors RegisterJobManagerResponse, plus the
// cluster information a newly admitted task executor needs.
type RegisterTaskExecutorResponse struct {
	Success            bool
	InstanceID         clustermodel.InstanceID
	ClusterInformation clustermodel.ClusterInformation
	DeclineReason      string
}

// SendSlotReportRequest carries a task executor's full slot snapshot.
type SendSlotReportRequest struct {
	FencingToken clustermodel.ResourceManagerID
	ResourceID   clustermodel.ResourceID
	InstanceID   clustermodel.InstanceID
	Report       clustermodel.SlotReport
}

// Ack is the empty success reply for RPCs with no payload to return.
type Ack struct {
	Error string
}

// HeartbeatFromTaskManagerRequest is a task executor's heartbeat, carrying
// its current slot report as payload.
type HeartbeatFromTaskManagerRequest struct {
	FencingToken clustermodel.ResourceManagerID
	ResourceID   clustermodel.ResourceID
	Report       clustermodel.SlotReport
}

// HeartbeatFromJobManagerRequest is a job manager's heartbeat, with no
// payload beyond identification.
type HeartbeatFromJobManagerRequest struct {
	FencingToken clustermodel.ResourceManagerID
	ResourceID   clustermodel.ResourceID
}

// DisconnectTaskManagerRequest reports a task executor disconnecting
// voluntarily.
type DisconnectTaskManagerRequest struct {
	FencingToken clustermodel.ResourceManagerID
	ResourceID   clustermodel.ResourceID
	Cause        string
}

// DisconnectJobManagerRequest reports a job manager disconnecting
// voluntarily.
type DisconnectJobManagerRequest struct {
	FencingToken clustermodel.ResourceManagerID
	JobID        clustermodel.JobID
	Cause        string
}

// RequestSlotRequest asks the resource manager to satisfy a slot request on
// behalf of a job.
type RequestSlotRequest struct {
	FencingToken clustermodel.ResourceManagerID
	Request      clustermodel.SlotRequest
}

// CancelSlotRequestRequest cancels a previously issued slot request.
type CancelSlotRequestRequest struct {
	FencingToken clustermodel.ResourceManagerID
	AllocationID clustermodel.AllocationID
}

// DeregisterApplicationRequest reports the whole application finishing.
type DeregisterApplicationRequest struct {
	FencingToken clustermodel.ResourceManagerID
	Status       clustermodel.ApplicationStatus
	Diagnostics  string
}

// NumberOfRegisteredTaskManagersRequest has no fields beyond the fencing
// token; it exists so every RPC, including read-only introspection, goes
// through the same fencing check.
type NumberOfRegisteredTaskManagersRequest struct {
	FencingToken clustermodel.ResourceManagerID
}

// NumberOfRegisteredTaskManagersResponse carries the count.
type NumberOfRegisteredTaskManagersResponse struct {
	Count int
}

// RequestTaskManagerInfoRequest asks for one or all registered task
// executors; ResourceID is empty to mean "all".
type RequestTaskManagerInfoRequest struct {
	FencingToken clustermodel.ResourceManagerID
	ResourceID   clustermodel.ResourceID
}

// TaskManagerInfo is the introspection view of one registered task
// executor.
type TaskManagerInfo struct {
	ResourceID          clustermodel.ResourceID
	InstanceID          clustermodel.InstanceID
	Address             string
	DataPort            int
	HardwareDescription clustermodel.HardwareDescription
	LastHeartbeat        int64 // unix nanos
}

// RequestTaskManagerInfoResponse carries either one or all task manager
// infos, depending on what was asked for.
type RequestTaskManagerInfoResponse struct {
	Infos []TaskManagerInfo
	Error string
}

// ResourceOverview is the aggregate introspection view of the whole
// cluster.
type ResourceOverview struct {
	NumberOfTaskExecutors int
	NumberOfRegisteredSlots int
	NumberOfFreeSlots       int
}

// RequestResourceOverviewRequest has no fields beyond fencing.
type RequestResourceOverviewRequest struct {
	FencingToken clustermodel.ResourceManagerID
}

// NotifySlotAvailableRequest reports a slot freed by a completed or
// cancelled task, identified by the InstanceID of the task executor that
// owns it so a stale notification from a superseded registration is
// rejected rather than freeing the wrong incarnation's slot.
type NotifySlotAvailableRequest struct {
	FencingToken clustermodel.ResourceManagerID
	InstanceID   clustermodel.InstanceID
	SlotID       clustermodel.SlotID
	AllocationID clustermodel.AllocationID
}

// RequestTaskManagerMetricQueryServiceAddressesRequest asks every
// registered task executor for its metric query service address.
type RequestTaskManagerMetricQueryServiceAddressesRequest struct {
	FencingToken clustermodel.ResourceManagerID
	Timeout      time.Duration
}

// TaskManagerMetricQueryServiceAddressesResponse carries the addresses
// collected from every task executor that answered within the timeout;
// executors that returned none are dropped rather than represented with a
// placeholder.
type TaskManagerMetricQueryServiceAddressesResponse struct {
	Addresses []string
}

// RequestTaskManagerFileUploadRequest asks one registered task executor to
// upload a file of the given type.
type RequestTaskManagerFileUploadRequest struct {
	FencingToken clustermodel.ResourceManagerID
	ResourceID   clustermodel.ResourceID
	FileType     clustermodel.FileType
	Timeout      time.Duration
}

// TaskManagerFileUploadResponse reports whether the relayed upload
// succeeded, or an error if the executor is unknown or the upload failed.
type TaskManagerFileUploadResponse struct {
	Success bool
	Error   string
}

// GetLeaderTokenRequest carries no fencing token; it is the bootstrap call
// a task executor or job manager makes before it has one.
type GetLeaderTokenRequest struct{}

// GetLeaderTokenResponse reports whether this node currently holds
// leadership and, if so, the token every subsequent fenced RPC must carry.
type GetLeaderTokenResponse struct {
	IsLeader bool
	Token    clustermodel.ResourceManagerID
}
