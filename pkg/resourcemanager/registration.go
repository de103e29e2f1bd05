package resourcemanager

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
	"github.com/ElliotVilhelm/flink/pkg/rmerrors"
	"github.com/ElliotVilhelm/flink/pkg/rpctransport"
)

// gatewayCallTimeout bounds every outbound gateway call the resource
// manager core issues off its own actor loop: heartbeat requests,
// disconnect notifications, and allocation-failure callbacks.
const gatewayCallTimeout = 5 * time.Second

func rmErrTaskManagerHeartbeatTimeout(resourceID clustermodel.ResourceID) error {
	return errors.Errorf("task executor %s heartbeat timed out", resourceID)
}

func rmErrJobManagerHeartbeatTimeout(resourceID clustermodel.ResourceID) error {
	return errors.Errorf("job manager %s heartbeat timed out", resourceID)
}

// RegisterJobManager implements the registration half of the job manager
// side of the registration state machine (C5). When the job leader id
// service already knows the job's leader, the caller's claimed JobMasterID
// is compared against it and a mismatch is declined. When the leader is
// not yet known, the registration is admitted without that comparison and
// does not wait for the leader to be resolved.
func (s *Server) RegisterJobManager(ctx context.Context, req *rpctransport.RegisterJobManagerRequest) (*rpctransport.RegisterJobManagerResponse, error) {
	var resp *rpctransport.RegisterJobManagerResponse
	err := s.loop.RunFenced(req.FencingToken, func() {
		resp = s.registerJobManagerLocked(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Server) registerJobManagerLocked(ctx context.Context, req *rpctransport.RegisterJobManagerRequest) *rpctransport.RegisterJobManagerResponse {
	if err := s.jobLeaders.AddJob(req.JobID); err != nil {
		return declineJobManager(err.Error())
	}

	fut, err := s.jobLeaders.LeaderID(req.JobID)
	if err != nil {
		return declineJobManager(err.Error())
	}

	if fut.IsResolved() {
		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		leaderID, getErr := fut.Get(waitCtx)
		cancel()
		if getErr == nil && leaderID != req.JobMasterID {
			return declineJobManager(rmerrors.ErrLeaderIDMismatch.GenWithStackByArgs(leaderID, req.JobMasterID).Error())
		}
	}

	if old, ok := s.jobManagers.get(req.JobID); ok {
		s.jmHeartbeats.UnmonitorTarget(old.registration.ResourceID)
	}

	entry := &jobManagerEntry{
		registration: clustermodel.JobManagerRegistration{
			JobID:       req.JobID,
			ResourceID:  req.ResourceID,
			Address:     req.Address,
			JobMasterID: req.JobMasterID,
		},
	}
	if s.jmGateways != nil {
		if gw, gwErr := s.jmGateways.Get(ctx, req.Address); gwErr != nil {
			log.Warn("failed to dial job manager gateway", zap.String("address", req.Address), zap.Error(gwErr))
		} else {
			entry.gateway = gw
		}
	}

	s.jobManagers.put(entry)
	s.jmHeartbeats.MonitorTarget(req.ResourceID, &gatewayHeartbeatTarget{resourceID: req.ResourceID, gateway: entry.gateway})

	log.Info("registered job manager", zap.String("job-id", req.JobID.String()), zap.String("resource-id", req.ResourceID.String()))
	return &rpctransport.RegisterJobManagerResponse{Success: true, ResourceManagerAddress: string(s.resourceID)}
}

func declineJobManager(reason string) *rpctransport.RegisterJobManagerResponse {
	return &rpctransport.RegisterJobManagerResponse{Success: false, DeclineReason: reason}
}

// RegisterTaskExecutor implements the task executor side of the
// registration state machine (C5): admitting a new registration always
// replaces whatever was registered under the same ResourceID before,
// invalidating the old InstanceID (and therefore the old slot-manager
// view) rather than merging with it.
func (s *Server) RegisterTaskExecutor(ctx context.Context, req *rpctransport.RegisterTaskExecutorRequest) (*rpctransport.RegisterTaskExecutorResponse, error) {
	var resp *rpctransport.RegisterTaskExecutorResponse
	err := s.loop.RunFenced(req.FencingToken, func() {
		resp = s.registerTaskExecutorLocked(req)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Server) registerTaskExecutorLocked(req *rpctransport.RegisterTaskExecutorRequest) *rpctransport.RegisterTaskExecutorResponse {
	attempt := s.taskExecutors.nextAttempt(req.ResourceID)

	if !s.taskExecutors.isNewestAttempt(req.ResourceID, attempt) {
		return declineTaskExecutor(rmerrors.ErrOutdatedTaskExecutorRegistration.GenWithStackByArgs(req.ResourceID).Error())
	}

	instanceID := clustermodel.InstanceID(uuid.New().String())
	worker, ok := s.workers.WorkerStarted(req.ResourceID, instanceID)
	if !ok {
		return declineTaskExecutor(rmerrors.ErrUnrecognizedTaskExecutor.GenWithStackByArgs(req.ResourceID).Error())
	}

	if old, ok := s.taskExecutors.get(req.ResourceID); ok {
		s.tmHeartbeats.UnmonitorTarget(old.registration.ResourceID)
		s.slots.UnregisterTaskExecutor(old.registration.InstanceID, rmerrors.ErrOutdatedTaskExecutorRegistration.GenWithStackByArgs(req.ResourceID))
	}

	entry := &taskExecutorEntry{
		registration: clustermodel.WorkerRegistration[any]{
			ResourceID:          req.ResourceID,
			InstanceID:          instanceID,
			Address:             req.Address,
			DataPort:            req.DataPort,
			HardwareDescription: req.HardwareDescription,
			Worker:              worker,
		},
		attempt: attempt,
	}
	if s.teGateways != nil {
		if gw, gwErr := s.teGateways.Get(context.Background(), req.Address); gwErr != nil {
			log.Warn("failed to dial task executor gateway", zap.String("address", req.Address), zap.Error(gwErr))
		} else {
			entry.gateway = gw
		}
	}
	s.taskExecutors.put(entry)
	s.tmHeartbeats.MonitorTarget(req.ResourceID, &gatewayHeartbeatTarget{resourceID: req.ResourceID, gateway: entry.gateway})
	s.metrics.SetRegisteredTaskExecutors(s.taskExecutors.count())

	log.Info("registered task executor", zap.String("resource-id", req.ResourceID.String()), zap.String("instance-id", instanceID.String()))
	return &rpctransport.RegisterTaskExecutorResponse{
		Success:            true,
		InstanceID:         instanceID,
		ClusterInformation: clustermodel.ClusterInformation{},
	}
}

func declineTaskExecutor(reason string) *rpctransport.RegisterTaskExecutorResponse {
	return &rpctransport.RegisterTaskExecutorResponse{Success: false, DeclineReason: reason}
}

// SendSlotReport implements the introspection/bookkeeping RPC a task
// executor calls right after registering. A report naming an InstanceID
// that does not match the current registration is rejected outright rather
// than dereferencing a registration that was never found (§9's resolved
// open question).
func (s *Server) SendSlotReport(ctx context.Context, req *rpctransport.SendSlotReportRequest) (*rpctransport.Ack, error) {
	var ackErr error
	err := s.loop.RunFenced(req.FencingToken, func() {
		entry, ok := s.taskExecutors.get(req.ResourceID)
		if !ok {
			ackErr = rmerrors.ErrUnknownTaskExecutor.GenWithStackByArgs(req.ResourceID)
			return
		}
		if entry.registration.InstanceID != req.InstanceID {
			ackErr = rmerrors.ErrStaleSlotReport.GenWithStackByArgs(req.ResourceID, req.InstanceID, entry.registration.InstanceID)
			return
		}
		s.handleSlotReport(req.ResourceID, req.Report)
	})
	if err != nil {
		return nil, err
	}
	if ackErr != nil {
		return &rpctransport.Ack{Error: ackErr.Error()}, nil
	}
	return &rpctransport.Ack{}, nil
}

func (s *Server) handleSlotReport(resourceID clustermodel.ResourceID, report clustermodel.SlotReport) {
	entry, ok := s.taskExecutors.get(resourceID)
	if !ok {
		log.Debug("dropping slot report for unknown task executor", zap.String("resource-id", resourceID.String()))
		return
	}
	if err := s.slots.ReportSlotStatus(resourceID, entry.registration.InstanceID, report); err != nil {
		log.Warn("slot manager rejected slot report", zap.String("resource-id", resourceID.String()), zap.Error(err))
	}
}

// HeartbeatFromTaskManager feeds the task manager heartbeat monitor.
func (s *Server) HeartbeatFromTaskManager(ctx context.Context, req *rpctransport.HeartbeatFromTaskManagerRequest) (*rpctransport.Ack, error) {
	err := s.loop.RunFenced(req.FencingToken, func() {
		s.tmHeartbeats.ReceiveHeartbeat(req.ResourceID, req.Report)
	})
	if err != nil {
		return nil, err
	}
	return &rpctransport.Ack{}, nil
}

// HeartbeatFromJobManager feeds the job manager heartbeat monitor.
func (s *Server) HeartbeatFromJobManager(ctx context.Context, req *rpctransport.HeartbeatFromJobManagerRequest) (*rpctransport.Ack, error) {
	err := s.loop.RunFenced(req.FencingToken, func() {
		s.jmHeartbeats.ReceiveHeartbeat(req.ResourceID, struct{}{})
	})
	if err != nil {
		return nil, err
	}
	return &rpctransport.Ack{}, nil
}

// DisconnectTaskManager tears down a voluntary disconnect, same table
// cleanup as a heartbeat timeout.
func (s *Server) DisconnectTaskManager(ctx context.Context, req *rpctransport.DisconnectTaskManagerRequest) (*rpctransport.Ack, error) {
	err := s.loop.RunFenced(req.FencingToken, func() {
		s.closeTaskManagerConnection(req.ResourceID, errors.New(req.Cause))
	})
	if err != nil {
		return nil, err
	}
	return &rpctransport.Ack{}, nil
}

// DisconnectJobManager tears down a voluntary disconnect.
func (s *Server) DisconnectJobManager(ctx context.Context, req *rpctransport.DisconnectJobManagerRequest) (*rpctransport.Ack, error) {
	err := s.loop.RunFenced(req.FencingToken, func() {
		if entry, ok := s.jobManagers.get(req.JobID); ok {
			s.closeJobManagerConnection(req.JobID, entry.registration.JobMasterID, req.Cause)
		}
	})
	if err != nil {
		return nil, err
	}
	return &rpctransport.Ack{}, nil
}

// closeTaskManagerConnection tears down every trace of a task executor's
// registration: the table entry, its heartbeat monitor, and its slot
// manager bookkeeping, keyed by the registration's own InstanceID so a
// stale call for a superseded incarnation can never drop a newer one's
// slots (spec.md §3 Invariant 4). The remote side is told last, on a
// best-effort basis, matching §4.5's "tell the remote side via
// disconnectResourceManager".
func (s *Server) closeTaskManagerConnection(resourceID clustermodel.ResourceID, cause error) {
	entry, ok := s.taskExecutors.get(resourceID)
	if !ok {
		return
	}
	s.taskExecutors.remove(resourceID)
	s.tmHeartbeats.UnmonitorTarget(resourceID)
	s.slots.UnregisterTaskExecutor(entry.registration.InstanceID, cause)
	s.metrics.SetRegisteredTaskExecutors(s.taskExecutors.count())
	log.Info("closed task executor connection", zap.String("resource-id", resourceID.String()), zap.Error(cause))

	if entry.gateway != nil {
		gateway := entry.gateway
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
			defer cancel()
			if _, err := gateway.DisconnectResourceManager(ctx, cause.Error()); err != nil {
				log.Debug("failed to notify task executor of disconnect", zap.String("resource-id", resourceID.String()), zap.Error(err))
			}
		}()
	}
}

func (s *Server) closeJobManagerConnectionByResourceID(resourceID clustermodel.ResourceID, cause error) {
	for jobID, entry := range s.jobManagers.byJobID {
		if entry.registration.ResourceID == resourceID {
			s.closeJobManagerConnection(jobID, entry.registration.JobMasterID, cause.Error())
			return
		}
	}
}

// DeregisterApplication forwards a whole-application shutdown to the
// worker provisioner.
func (s *Server) DeregisterApplication(ctx context.Context, req *rpctransport.DeregisterApplicationRequest) (*rpctransport.Ack, error) {
	var callErr error
	err := s.loop.RunFenced(req.FencingToken, func() {
		callErr = s.workers.InternalDeregisterApplication(req.Status, req.Diagnostics)
	})
	if err != nil {
		return nil, err
	}
	if callErr != nil {
		return &rpctransport.Ack{Error: callErr.Error()}, nil
	}
	return &rpctransport.Ack{}, nil
}

// heartbeatRequester is the common shape of TaskExecutorGateway and
// JobManagerGateway's outbound heartbeat request method, letting a single
// gatewayHeartbeatTarget serve both heartbeat managers.
type heartbeatRequester interface {
	RequestHeartbeat(ctx context.Context) (*rpctransport.Ack, error)
}

// gatewayHeartbeatTarget satisfies heartbeat.Target by issuing the
// sender-style request §4.2 requires: the resource manager asks the
// remote side for a heartbeat, which it answers out-of-band through
// heartbeatFromTaskManager or heartbeatFromJobManager. The call runs in
// its own goroutine so one slow or unreachable remote cannot stall the
// monitor's shared request ticker; liveness is still judged by whether a
// reply lands before the monitor's own timeout, not by whether this call
// succeeds.
type gatewayHeartbeatTarget struct {
	resourceID clustermodel.ResourceID
	gateway    heartbeatRequester
}

func (t *gatewayHeartbeatTarget) RequestHeartbeat(clustermodel.ResourceID, struct{}) {
	if t.gateway == nil {
		return
	}
	gateway := t.gateway
	resourceID := t.resourceID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
		defer cancel()
		if _, err := gateway.RequestHeartbeat(ctx); err != nil {
			log.Debug("heartbeat request failed", zap.String("resource-id", resourceID.String()), zap.Error(err))
		}
	}()
}
