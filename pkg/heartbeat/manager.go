// Package heartbeat implements the two independent liveness monitors the
// resource manager runs (component C2): one for task executors, carrying
// slot reports as payload, and one for job managers, carrying no payload.
// Each Manager is a sender: on its own ticker it asks every monitored
// target for a heartbeat, and expects the target to reply through
// ReceiveHeartbeat before the per-target deadline. A target that never
// answers in time is reported to the Listener as timed out.
package heartbeat

import (
	"sync"
	"time"

	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/ElliotVilhelm/flink/pkg/clock"
	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
)

// Target is the outbound half of a monitored participant: asking it for a
// heartbeat, with the payload the manager currently holds for it (usually
// nothing more than a marker).
type Target[Q any] interface {
	RequestHeartbeat(resourceID clustermodel.ResourceID, payload Q)
}

// Listener receives the manager's three callbacks. All three are delivered
// from the manager's internal goroutine; a caller that needs them to run on
// some other single-threaded owner (the resource manager's actor loop) must
// wrap the Listener it supplies so each method re-dispatches there.
type Listener[P, Q any] interface {
	NotifyHeartbeatTimeout(resourceID clustermodel.ResourceID)
	ReportPayload(resourceID clustermodel.ResourceID, payload P)
	RetrievePayload(resourceID clustermodel.ResourceID) Q
}

type monitoredTarget[Q any] struct {
	target     Target[Q]
	lastSeen   time.Time
	heartbeats *atomic.Int64
}

// Manager is one liveness monitor. P is the payload carried inbound (task
// executor slot reports, or struct{} for job managers); Q is the payload
// carried outbound (always struct{} in this spec, kept generic for parity
// with the two-type-parameter heartbeat contract it is modeled on).
type Manager[P, Q any] struct {
	ownResourceID clustermodel.ResourceID
	listener      Listener[P, Q]
	clk           clock.Clock

	timeout  time.Duration
	interval time.Duration

	mu      sync.Mutex
	targets map[clustermodel.ResourceID]*monitoredTarget[Q]

	closeCh chan struct{}
	doneCh  chan struct{}
	closed  atomic.Bool
}

// NewManager creates and starts a heartbeat manager. timeout is how long a
// target may go without replying before it is reported as timed out;
// interval is how often the manager asks each target for a heartbeat.
func NewManager[P, Q any](
	ownResourceID clustermodel.ResourceID,
	timeout, interval time.Duration,
	listener Listener[P, Q],
	clk clock.Clock,
) *Manager[P, Q] {
	m := &Manager[P, Q]{
		ownResourceID: ownResourceID,
		listener:      listener,
		clk:           clk,
		timeout:       timeout,
		interval:      interval,
		targets:       make(map[clustermodel.ResourceID]*monitoredTarget[Q]),
		closeCh:       make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	go m.run()
	return m
}

// MonitorTarget begins monitoring resourceID. Must be called once per
// successful registration (§4.2): "Monitoring is added at the moment of
// successful registration and removed before the corresponding table
// entry is dropped."
func (m *Manager[P, Q]) MonitorTarget(resourceID clustermodel.ResourceID, target Target[Q]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets[resourceID] = &monitoredTarget[Q]{
		target:     target,
		lastSeen:   m.clk.Now(),
		heartbeats: atomic.NewInt64(0),
	}
}

// UnmonitorTarget stops monitoring resourceID. Idempotent: unmonitoring an
// unknown target is a no-op.
func (m *Manager[P, Q]) UnmonitorTarget(resourceID clustermodel.ResourceID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.targets, resourceID)
}

// ReceiveHeartbeat re-arms the timer for resourceID and, for the
// task-manager monitor, delivers payload to the listener. Heartbeats from
// an unmonitored resourceID are dropped.
func (m *Manager[P, Q]) ReceiveHeartbeat(resourceID clustermodel.ResourceID, payload P) {
	m.mu.Lock()
	t, ok := m.targets[resourceID]
	if ok {
		t.lastSeen = m.clk.Now()
		t.heartbeats.Inc()
	}
	m.mu.Unlock()

	if !ok {
		log.L().Debug("heartbeat from unmonitored target dropped", zap.String("resource-id", resourceID.String()))
		return
	}
	m.listener.ReportPayload(resourceID, payload)
}

// LastHeartbeatFrom reports when resourceID was last heard from.
func (m *Manager[P, Q]) LastHeartbeatFrom(resourceID clustermodel.ResourceID) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[resourceID]
	if !ok {
		return time.Time{}, false
	}
	return t.lastSeen, true
}

// Stop tears down the manager's ticking goroutine. Safe to call multiple
// times.
func (m *Manager[P, Q]) Stop() {
	if !m.closed.CAS(false, true) {
		return
	}
	close(m.closeCh)
	<-m.doneCh
}

func (m *Manager[P, Q]) run() {
	defer close(m.doneCh)

	requestTicker := m.clk.Ticker(m.interval)
	defer requestTicker.Stop()
	checkTicker := m.clk.Ticker(m.timeout / 2)
	defer checkTicker.Stop()

	for {
		select {
		case <-m.closeCh:
			return
		case <-requestTicker.C:
			m.requestHeartbeats()
		case <-checkTicker.C:
			m.checkTimeouts()
		}
	}
}

func (m *Manager[P, Q]) requestHeartbeats() {
	m.mu.Lock()
	snapshot := make(map[clustermodel.ResourceID]Target[Q], len(m.targets))
	for id, t := range m.targets {
		snapshot[id] = t.target
	}
	m.mu.Unlock()

	for id, target := range snapshot {
		payload := m.listener.RetrievePayload(id)
		target.RequestHeartbeat(id, payload)
	}
}

func (m *Manager[P, Q]) checkTimeouts() {
	now := m.clk.Now()

	m.mu.Lock()
	var expired []clustermodel.ResourceID
	for id, t := range m.targets {
		if now.Sub(t.lastSeen) > m.timeout {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(m.targets, id)
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.listener.NotifyHeartbeatTimeout(id)
	}
}
