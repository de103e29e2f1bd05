// Package resourcemanager is the core of the control plane: the actor-owned
// registration tables (C1), the registration state machine for job
// managers and task executors (C5), the slot-request dispatcher and
// resource-actions bridge (C6/C7), and the read-only introspection RPCs
// (C9). It wires together the heartbeat monitors, leader election, job
// leader id service and actor loop built in their own packages.
package resourcemanager

import (
	"context"
	"errors"
	"time"

	"github.com/pingcap/failpoint"
	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/ElliotVilhelm/flink/pkg/actor"
	"github.com/ElliotVilhelm/flink/pkg/clock"
	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
	"github.com/ElliotVilhelm/flink/pkg/heartbeat"
	"github.com/ElliotVilhelm/flink/pkg/jobleader"
	"github.com/ElliotVilhelm/flink/pkg/provisioner"
	"github.com/ElliotVilhelm/flink/pkg/rmerrors"
	"github.com/ElliotVilhelm/flink/pkg/rpctransport"
	"github.com/ElliotVilhelm/flink/pkg/slotmanager"
)

type jobManagerGateway = rpctransport.JobManagerGateway
type taskExecutorGateway = rpctransport.TaskExecutorGateway

// FatalErrorHandler receives unrecoverable errors, e.g. a failure to start
// or stop a core service. Implementations typically terminate the process
// after logging; OnFatalError itself must never panic (§7).
type FatalErrorHandler interface {
	OnFatalError(err error)
}

// Config bundles the timeout knobs the server needs. It mirrors the
// teacher's lib/config.TimeoutConfig, generalized to separate job-manager
// and task-executor pairs.
type Config struct {
	TaskManagerHeartbeatTimeout  time.Duration
	TaskManagerHeartbeatInterval time.Duration
	JobManagerHeartbeatTimeout   time.Duration
	JobManagerHeartbeatInterval  time.Duration
	JobTimeout                   time.Duration
}

// Server is the resource manager. It is safe for concurrent RPC dispatch:
// every externally visible operation either runs on the actor loop or is
// read-only against state the loop itself doesn't mutate concurrently.
type Server struct {
	cfg     Config
	clk     clock.Clock
	loop    *actor.Loop[clustermodel.ResourceManagerID]
	fatal   FatalErrorHandler

	resourceID clustermodel.ResourceID

	jobManagers   *jobManagerTable
	taskExecutors *taskExecutorTable

	tmHeartbeats *heartbeat.Manager[clustermodel.SlotReport, struct{}]
	jmHeartbeats *heartbeat.Manager[struct{}, struct{}]

	jobLeaders *jobleader.Service
	slots      slotmanager.SlotManager
	workers    provisioner.WorkerProvisioner[clustermodel.ResourceID]

	teGateways *rpctransport.GatewayPool[taskExecutorGateway]
	jmGateways *rpctransport.GatewayPool[jobManagerGateway]

	metrics MetricSink
}

// MetricSink is the contract-only metrics surface (supplemented feature:
// registerSlotAndTaskExecutorMetrics). A no-op implementation is fine when
// metrics aren't wired to a real backend.
type MetricSink interface {
	SetRegisteredTaskExecutors(n int)
	SetFreeSlots(n int)
	SetRegisteredSlots(n int)
}

// NoopMetricSink discards every metric.
type NoopMetricSink struct{}

func (NoopMetricSink) SetRegisteredTaskExecutors(int) {}
func (NoopMetricSink) SetFreeSlots(int)                {}
func (NoopMetricSink) SetRegisteredSlots(int)          {}

// NewServer creates a Server without leadership. Leadership arrives when a
// leader election service calls GrantLeadership; until then, every fenced
// RPC is rejected.
func NewServer(
	resourceID clustermodel.ResourceID,
	cfg Config,
	clk clock.Clock,
	fatal FatalErrorHandler,
	retrievalFactory jobleader.RetrievalFactory,
	slots slotmanager.SlotManager,
	workers provisioner.WorkerProvisioner[clustermodel.ResourceID],
	teGateways *rpctransport.GatewayPool[taskExecutorGateway],
	jmGateways *rpctransport.GatewayPool[jobManagerGateway],
	metrics MetricSink,
) *Server {
	s := &Server{
		cfg:           cfg,
		clk:           clk,
		loop:          actor.New[clustermodel.ResourceManagerID]("resource-manager"),
		fatal:         fatal,
		resourceID:    resourceID,
		jobManagers:   newJobManagerTable(),
		taskExecutors: newTaskExecutorTable(),
		slots:         slots,
		workers:       workers,
		teGateways:    teGateways,
		jmGateways:    jmGateways,
		metrics:       metrics,
	}
	if s.metrics == nil {
		s.metrics = NoopMetricSink{}
	}

	s.jobLeaders = jobleader.NewService(retrievalFactory, &jobLeaderActions{s: s}, clk, cfg.JobTimeout)
	s.tmHeartbeats = heartbeat.NewManager[clustermodel.SlotReport, struct{}](
		resourceID, cfg.TaskManagerHeartbeatTimeout, cfg.TaskManagerHeartbeatInterval, &tmHeartbeatListener{s: s}, clk)
	s.jmHeartbeats = heartbeat.NewManager[struct{}, struct{}](
		resourceID, cfg.JobManagerHeartbeatTimeout, cfg.JobManagerHeartbeatInterval, &jmHeartbeatListener{s: s}, clk)

	return s
}

// Loop exposes the server's actor loop. The leader election service does
// not use it; it calls GrantLeadership/RevokeLeadership directly.
func (s *Server) Loop() *actor.Loop[clustermodel.ResourceManagerID] {
	return s.loop
}

// CurrentToken satisfies rpctransport.CurrentTokenFunc for wiring the
// fencing interceptor.
func (s *Server) CurrentToken() (clustermodel.ResourceManagerID, bool) {
	return s.loop.CurrentToken()
}

// GrantLeadership implements leaderelection.Contender. It runs on the actor
// loop unfenced, since a leadership grant is the event that installs the
// very token RunFenced checks for.
func (s *Server) GrantLeadership(token clustermodel.ResourceManagerID) {
	if err := s.loop.RunUnfenced(func() {
		s.loop.SetToken(token)
		if err := s.startServicesOnLeadership(context.Background()); err != nil {
			s.onFatalError(rmerrors.ErrStartResourceManagerServicesFailed.Wrap(err).GenWithStackByArgs())
		}
	}); err != nil {
		log.Warn("failed to enqueue leadership grant", zap.Error(err))
	}
}

// RevokeLeadership implements leaderelection.Contender.
func (s *Server) RevokeLeadership() {
	if err := s.loop.RunUnfenced(func() {
		s.clearStateOnLeadershipLoss()
		s.loop.ClearToken()
	}); err != nil {
		log.Warn("failed to enqueue leadership revocation", zap.Error(err))
	}
}

func (s *Server) startServicesOnLeadership(ctx context.Context) error {
	if err := s.workers.PrepareLeadershipAsync(ctx); err != nil {
		return err
	}
	if err := s.slots.Start(s.resourceIDAsLeaderToken(), &resourceActions{s: s}); err != nil {
		return err
	}
	s.metrics.SetRegisteredTaskExecutors(s.taskExecutors.count())
	log.Info("resource manager started services after winning leadership")
	return nil
}

func (s *Server) resourceIDAsLeaderToken() clustermodel.ResourceManagerID {
	token, _ := s.loop.CurrentToken()
	return token
}

func (s *Server) clearStateOnLeadershipLoss() {
	s.slots.Suspend()
	if err := s.jobLeaders.Clear(); err != nil {
		log.Warn("failed to clear job leader id service on leadership loss", zap.Error(err))
	}
	if err := s.workers.ClearStateAsync(context.Background()); err != nil {
		log.Warn("failed to clear provisioner state on leadership loss", zap.Error(err))
	}
	s.jobManagers = newJobManagerTable()
	s.taskExecutors = newTaskExecutorTable()
	log.Info("resource manager cleared state after losing leadership")
}

// Stop tears down every sub-service, aggregating failures instead of
// stopping at the first one (the suppressed-exception aggregation behavior
// carried over from the original's stopResourceManagerServices).
func (s *Server) Stop() error {
	var errs []error
	s.tmHeartbeats.Stop()
	s.jmHeartbeats.Stop()
	if err := s.jobLeaders.Clear(); err != nil {
		errs = append(errs, err)
	}
	if err := s.workers.InternalDeregisterApplication(clustermodel.ApplicationSucceeded, ""); err != nil {
		errs = append(errs, err)
	}
	s.loop.Close()
	return errors.Join(errs...)
}

// onFatalError logs a fatal condition and forwards it to the registered
// handler. The logging itself is guarded against panicking, matching the
// original's defensive wrapping around its own error-logging call.
func (s *Server) onFatalError(err error) {
	defer func() {
		if r := recover(); r != nil {
			// last resort: nothing further to log to.
			_ = r
		}
	}()
	log.Error("fatal error in resource manager", zap.Error(err))
	if s.fatal != nil {
		s.fatal.OnFatalError(err)
	}
}

// maybeInjectFailpoint is a chaos-testing hook at a named decision point;
// it is a no-op unless the named failpoint is enabled by a test.
func maybeInjectFailpoint(name string, f func()) {
	failpoint.Inject(name, func(_ failpoint.Value) {
		f()
	})
}
