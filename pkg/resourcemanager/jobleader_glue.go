package resourcemanager

import (
	"context"

	"github.com/google/uuid"
	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
)

// jobLeaderActions adapts jobleader.Service's callbacks onto the actor
// loop. The service itself is not actor-owned, but every side effect of its
// callbacks (closing a job manager connection, notifying a timeout) must
// run serialized with the rest of the resource manager's state.
type jobLeaderActions struct {
	s *Server
}

func (a *jobLeaderActions) JobLeaderLostLeadership(jobID clustermodel.JobID, oldLeaderID clustermodel.JobMasterID) {
	if err := a.s.loop.RunUnfenced(func() {
		a.s.closeJobManagerConnection(jobID, oldLeaderID,
			"the job's leadership moved to a different job master")
	}); err != nil {
		log.Warn("dropped job leader lost leadership notification", zap.String("job-id", jobID.String()), zap.Error(err))
	}
}

func (a *jobLeaderActions) NotifyJobTimeout(jobID clustermodel.JobID, timeoutID uuid.UUID) {
	if err := a.s.loop.RunUnfenced(func() {
		if !a.s.jobLeaders.IsValidTimeout(jobID, timeoutID) {
			return
		}
		if entry, ok := a.s.jobManagers.get(jobID); ok {
			a.s.closeJobManagerConnection(jobID, entry.registration.JobMasterID,
				"the job's leader id was not resolved within the job timeout")
		}
		a.s.jobLeaders.RemoveJob(jobID)
		log.Info("job leader id idle timeout, no job manager registered in time", zap.String("job-id", jobID.String()))
	}); err != nil {
		log.Warn("dropped job leader timeout notification", zap.String("job-id", jobID.String()), zap.Error(err))
	}
}

// closeJobManagerConnection drops the table entry for jobID if its current
// registration is the one carrying oldLeaderID, unmonitors its heartbeat,
// and tells the remote side on a best-effort basis, carrying the current
// fencing token so it can verify the disconnect came from the leader it
// still believes is in charge (spec.md §4.5).
func (s *Server) closeJobManagerConnection(jobID clustermodel.JobID, expectedLeaderID clustermodel.JobMasterID, cause string) {
	entry, ok := s.jobManagers.get(jobID)
	if !ok || entry.registration.JobMasterID != expectedLeaderID {
		return
	}
	s.jobManagers.remove(jobID)
	s.jmHeartbeats.UnmonitorTarget(entry.registration.ResourceID)
	log.Info("closed job manager connection", zap.String("job-id", jobID.String()), zap.String("cause", cause))

	if entry.gateway != nil {
		gateway := entry.gateway
		token, _ := s.CurrentToken()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
			defer cancel()
			if _, err := gateway.DisconnectResourceManager(ctx, token, cause); err != nil {
				log.Debug("failed to notify job manager of disconnect", zap.String("job-id", jobID.String()), zap.Error(err))
			}
		}()
	}
}
