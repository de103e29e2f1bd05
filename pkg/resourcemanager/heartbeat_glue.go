package resourcemanager

import (
	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
)

// tmHeartbeatListener adapts the task-manager heartbeat monitor's callbacks
// onto the actor loop, matching the original's TaskManagerHeartbeatListener
// inner class.
type tmHeartbeatListener struct {
	s *Server
}

func (l *tmHeartbeatListener) NotifyHeartbeatTimeout(resourceID clustermodel.ResourceID) {
	if err := l.s.loop.RunUnfenced(func() {
		maybeInjectFailpoint("task-executor-heartbeat-timeout", func() {})
		l.s.closeTaskManagerConnection(resourceID, rmErrTaskManagerHeartbeatTimeout(resourceID))
	}); err != nil {
		log.Warn("dropped task executor heartbeat timeout", zap.String("resource-id", resourceID.String()), zap.Error(err))
	}
}

func (l *tmHeartbeatListener) ReportPayload(resourceID clustermodel.ResourceID, report clustermodel.SlotReport) {
	if err := l.s.loop.RunUnfenced(func() {
		l.s.handleSlotReport(resourceID, report)
	}); err != nil {
		log.Warn("dropped task executor slot report", zap.String("resource-id", resourceID.String()), zap.Error(err))
	}
}

func (l *tmHeartbeatListener) RetrievePayload(clustermodel.ResourceID) struct{} {
	return struct{}{}
}

// jmHeartbeatListener is the job-manager equivalent; it carries no payload.
type jmHeartbeatListener struct {
	s *Server
}

func (l *jmHeartbeatListener) NotifyHeartbeatTimeout(resourceID clustermodel.ResourceID) {
	if err := l.s.loop.RunUnfenced(func() {
		l.s.closeJobManagerConnectionByResourceID(resourceID, rmErrJobManagerHeartbeatTimeout(resourceID))
	}); err != nil {
		log.Warn("dropped job manager heartbeat timeout", zap.String("resource-id", resourceID.String()), zap.Error(err))
	}
}

func (l *jmHeartbeatListener) ReportPayload(clustermodel.ResourceID, struct{}) {}

func (l *jmHeartbeatListener) RetrievePayload(clustermodel.ResourceID) struct{} {
	return struct{}{}
}
