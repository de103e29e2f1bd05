// Package jobleader implements the job leader id service (component C4):
// for every job the resource manager is told about, it watches that job's
// leader election and hands out a Future of the currently leading job
// master id, so a job manager's registration can be checked against the
// job's current leadership, even before any job manager has registered
// with the resource manager.
package jobleader

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/ElliotVilhelm/flink/pkg/clock"
	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
	"github.com/ElliotVilhelm/flink/pkg/future"
	"github.com/ElliotVilhelm/flink/pkg/rmerrors"
)

// Listener is notified of a job's leader address changes by a
// RetrievalService. leaderID is the empty string when a job's leadership is
// lost rather than transferred.
type Listener interface {
	NotifyLeaderAddress(leaderID clustermodel.JobMasterID, leaderAddress string)
}

// RetrievalService watches one job's leader election in whatever service
// discovery backend tracks it (etcd in production, an in-memory fake in
// tests) and delivers changes to a Listener.
type RetrievalService interface {
	Start(listener Listener) error
	Stop() error
}

// RetrievalFactory creates a RetrievalService for a given job. Production
// code backs this with a per-job etcd watch; tests supply a fake that lets
// the test push leader changes directly.
type RetrievalFactory interface {
	CreateRetrievalService(jobID clustermodel.JobID) (RetrievalService, error)
}

// Actions receives the service's two callbacks. Both are expected to be
// wrapped by the caller so they run on the resource manager's actor loop.
type Actions interface {
	JobLeaderLostLeadership(jobID clustermodel.JobID, oldLeaderID clustermodel.JobMasterID)
	NotifyJobTimeout(jobID clustermodel.JobID, timeoutID uuid.UUID)
}

type jobEntry struct {
	retrieval RetrievalService
	future    *future.Future[clustermodel.JobMasterID]
	leaderID  clustermodel.JobMasterID
	hasLeader bool

	timeoutID uuid.UUID
	timer     *timer
}

type timer struct {
	stop func()
}

// Service is the job leader id service. It is not itself an actor; all of
// its exported methods are expected to be called from a single owner
// goroutine (the resource manager's actor loop), matching how the
// surrounding registration tables are owned.
type Service struct {
	factory   RetrievalFactory
	actions   Actions
	clk       clock.Clock
	jobTimeout time.Duration

	mu   sync.Mutex
	jobs map[clustermodel.JobID]*jobEntry
}

// NewService creates a job leader id service. jobTimeout is how long a job
// may go without a resolvable leader before NotifyJobTimeout fires.
func NewService(factory RetrievalFactory, actions Actions, clk clock.Clock, jobTimeout time.Duration) *Service {
	return &Service{
		factory:    factory,
		actions:    actions,
		clk:        clk,
		jobTimeout: jobTimeout,
		jobs:       make(map[clustermodel.JobID]*jobEntry),
	}
}

// ContainsJob reports whether jobID is currently being watched.
func (s *Service) ContainsJob(jobID clustermodel.JobID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[jobID]
	return ok
}

// AddJob starts watching jobID's leader election. Adding a job that is
// already being watched is a no-op, matching the idempotent add semantics
// of the registration tables it feeds.
func (s *Service) AddJob(jobID clustermodel.JobID) error {
	s.mu.Lock()
	if _, ok := s.jobs[jobID]; ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	retrieval, err := s.factory.CreateRetrievalService(jobID)
	if err != nil {
		return rmerrors.ErrJobLeaderServiceAddJob.Wrap(err).GenWithStackByArgs(jobID)
	}

	entry := &jobEntry{
		retrieval: retrieval,
		future:    future.New[clustermodel.JobMasterID](),
		timeoutID: uuid.New(),
	}
	entry.timer = s.armTimeout(jobID, entry)

	s.mu.Lock()
	s.jobs[jobID] = entry
	s.mu.Unlock()

	listener := &jobListener{service: s, jobID: jobID}
	if err := retrieval.Start(listener); err != nil {
		s.mu.Lock()
		delete(s.jobs, jobID)
		s.mu.Unlock()
		entry.timer.stop()
		return rmerrors.ErrJobLeaderServiceAddJob.Wrap(err).GenWithStackByArgs(jobID)
	}
	return nil
}

// RemoveJob stops watching jobID. Removing an unknown job is a no-op.
func (s *Service) RemoveJob(jobID clustermodel.JobID) {
	s.mu.Lock()
	entry, ok := s.jobs[jobID]
	if ok {
		delete(s.jobs, jobID)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	entry.timer.stop()
	if err := entry.retrieval.Stop(); err != nil {
		log.Warn("failed to stop job leader retrieval service", zap.String("job-id", jobID.String()), zap.Error(err))
	}
}

// LeaderID returns the Future of jobID's currently leading job master id.
func (s *Service) LeaderID(jobID clustermodel.JobID) (*future.Future[clustermodel.JobMasterID], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.jobs[jobID]
	if !ok {
		return nil, rmerrors.ErrJobLeaderServiceGetLeaderID.GenWithStackByArgs(jobID)
	}
	return entry.future, nil
}

// IsValidTimeout reports whether timeoutID is the currently outstanding
// timeout token for jobID. A timeout delivered after a newer leader change
// has already re-armed the timer carries a stale id and must be ignored.
func (s *Service) IsValidTimeout(jobID clustermodel.JobID, timeoutID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.jobs[jobID]
	if !ok {
		return false
	}
	return entry.timeoutID == timeoutID
}

// Clear stops watching every job.
func (s *Service) Clear() error {
	s.mu.Lock()
	jobs := s.jobs
	s.jobs = make(map[clustermodel.JobID]*jobEntry)
	s.mu.Unlock()

	var firstErr error
	for jobID, entry := range jobs {
		entry.timer.stop()
		if err := entry.retrieval.Stop(); err != nil {
			log.Warn("failed to stop job leader retrieval service during clear",
				zap.String("job-id", jobID.String()), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return rmerrors.ErrJobLeaderServiceClearFailed.Wrap(firstErr).GenWithStackByArgs()
	}
	return nil
}

func (s *Service) armTimeout(jobID clustermodel.JobID, entry *jobEntry) *timer {
	timeoutID := entry.timeoutID
	t := s.clk.AfterFunc(s.jobTimeout, func() {
		s.actions.NotifyJobTimeout(jobID, timeoutID)
	})
	return &timer{stop: func() { t.Stop() }}
}

// jobListener adapts per-job leader change notifications into the service's
// internal bookkeeping: installing a fresh future (resolved to the new
// leader, or unresolved when leadership is lost) and arming the idle
// timeout only while the job has no leader.
type jobListener struct {
	service *Service
	jobID   clustermodel.JobID
}

func (l *jobListener) NotifyLeaderAddress(leaderID clustermodel.JobMasterID, _ string) {
	s := l.service
	s.mu.Lock()
	entry, ok := s.jobs[l.jobID]
	if !ok {
		s.mu.Unlock()
		return
	}

	oldLeaderID := entry.leaderID
	hadLeader := entry.hasLeader

	entry.timer.stop()
	entry.timeoutID = uuid.New()

	if leaderID == "" {
		entry.timer = s.armTimeout(l.jobID, entry)
		entry.hasLeader = false
		entry.future = future.New[clustermodel.JobMasterID]()
		s.mu.Unlock()
		if hadLeader {
			s.actions.JobLeaderLostLeadership(l.jobID, oldLeaderID)
		}
		return
	}

	entry.timer = &timer{stop: func() {}}
	entry.leaderID = leaderID
	entry.hasLeader = true
	entry.future = future.Resolved(leaderID)
	s.mu.Unlock()

	if hadLeader && oldLeaderID != leaderID {
		s.actions.JobLeaderLostLeadership(l.jobID, oldLeaderID)
	}
}
