package resourcemanager

import (
	"context"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
	"github.com/ElliotVilhelm/flink/pkg/rmerrors"
	"github.com/ElliotVilhelm/flink/pkg/rpctransport"
)

// RequestSlot implements the slot-request dispatcher (C6): it checks that a
// job manager is registered for the request's job before handing the
// request to the slot manager. The request carries no job master id, so
// the caller's leadership is not compared against that registration.
func (s *Server) RequestSlot(ctx context.Context, req *rpctransport.RequestSlotRequest) (*rpctransport.Ack, error) {
	var ackErr error
	err := s.loop.RunFenced(req.FencingToken, func() {
		if _, ok := s.jobManagers.get(req.Request.JobID); !ok {
			ackErr = rmerrors.ErrUnregisteredJobManager.GenWithStackByArgs(req.Request.JobID)
			return
		}
		if _, err := s.slots.ProcessResourceRequirements(req.Request); err != nil {
			ackErr = err
		}
	})
	if err != nil {
		return nil, err
	}
	if ackErr != nil {
		return &rpctransport.Ack{Error: ackErr.Error()}, nil
	}
	return &rpctransport.Ack{}, nil
}

// CancelSlotRequest implements slot request cancellation by logging it. The
// slot manager is not told, so a pending request or an allocated slot for
// the allocation is left as it is.
func (s *Server) CancelSlotRequest(ctx context.Context, req *rpctransport.CancelSlotRequestRequest) (*rpctransport.Ack, error) {
	err := s.loop.RunFenced(req.FencingToken, func() {
		log.Info("canceling slot request", zap.String("allocation-id", req.AllocationID.String()))
	})
	if err != nil {
		return nil, err
	}
	return &rpctransport.Ack{}, nil
}

// NotifySlotAvailable implements the slot-request dispatcher's other half
// (C6): a slot freed by a completed or cancelled task is returned to the
// pool only if the reporting InstanceID still matches the current
// registration for its ResourceID; a stale notification from a superseded
// incarnation is ignored rather than freeing a slot the newer incarnation
// never reported (spec.md §4.6).
func (s *Server) NotifySlotAvailable(ctx context.Context, req *rpctransport.NotifySlotAvailableRequest) (*rpctransport.Ack, error) {
	err := s.loop.RunFenced(req.FencingToken, func() {
		entry, ok := s.taskExecutors.get(req.SlotID.ResourceID)
		if !ok || entry.registration.InstanceID != req.InstanceID {
			log.Debug("ignoring stale slot-available notification",
				zap.String("slot-id", req.SlotID.String()), zap.String("instance-id", req.InstanceID.String()))
			return
		}
		if err := s.slots.FreeSlot(req.SlotID, req.AllocationID); err != nil {
			log.Warn("failed to free slot", zap.String("slot-id", req.SlotID.String()), zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}
	return &rpctransport.Ack{}, nil
}

// resourceActions implements slotmanager.ResourceActions (C7): the bridge
// the slot manager uses to ask the resource manager to change the worker
// population. Its methods are called from the slot manager's own
// goroutines. ReleaseResource and NotifyAllocationFailure re-enter the
// actor loop rather than touching resource manager state directly;
// AllocateResource calls the worker provisioner directly on the caller's
// goroutine.
type resourceActions struct {
	s *Server
}

// ReleaseResource stops the worker before tearing down its registration:
// the disconnect path only runs on a successful stopWorker, and a release
// for an instance with no surviving table entry still unregisters it from
// the slot manager so no stale bookkeeping lingers (spec.md §4.7).
func (a *resourceActions) ReleaseResource(instanceID clustermodel.InstanceID, cause error) {
	if err := a.s.loop.RunUnfenced(func() {
		entry, ok := a.s.taskExecutors.findByInstanceID(instanceID)
		if !ok {
			entry, ok = a.s.taskExecutors.findByInstanceIDSlow(instanceID)
		}
		if !ok {
			a.s.slots.UnregisterTaskExecutor(instanceID, cause)
			return
		}
		if err := a.s.workers.StopWorker(context.Background(), instanceID); err != nil {
			log.Warn("failed to stop worker", zap.String("instance-id", instanceID.String()), zap.Error(err))
			return
		}
		a.s.closeTaskManagerConnection(entry.registration.ResourceID, cause)
	}); err != nil {
		log.Warn("dropped release resource request", zap.String("instance-id", instanceID.String()), zap.Error(err))
	}
}

func (a *resourceActions) AllocateResource(profile clustermodel.ResourceProfile) error {
	return a.s.workers.StartNewWorker(context.Background(), profile)
}

func (a *resourceActions) NotifyAllocationFailure(jobID clustermodel.JobID, allocationID clustermodel.AllocationID, cause error) {
	if err := a.s.loop.RunUnfenced(func() {
		entry, ok := a.s.jobManagers.get(jobID)
		if !ok {
			// the job manager disconnected before its allocation failed;
			// silently drop, matching the original's documented behavior.
			return
		}
		log.Warn("notifying job manager of allocation failure",
			zap.String("job-id", jobID.String()),
			zap.String("resource-id", entry.registration.ResourceID.String()),
			zap.String("allocation-id", allocationID.String()),
			zap.Error(cause))
		if entry.gateway == nil {
			return
		}
		gateway := entry.gateway
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
			defer cancel()
			if _, err := gateway.NotifyAllocationFailure(ctx, allocationID, cause.Error()); err != nil {
				log.Debug("failed to notify job manager of allocation failure",
					zap.String("job-id", jobID.String()), zap.Error(err))
			}
		}()
	}); err != nil {
		log.Warn("dropped allocation failure notification", zap.String("job-id", jobID.String()), zap.Error(err))
	}
}
