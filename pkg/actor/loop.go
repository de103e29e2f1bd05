// Package actor implements the single-threaded main-thread executor that
// the resource manager uses to serialize every mutation of its registration
// tables, heartbeat monitors and leader state (component C8). All state
// transitions run as closures submitted to a Loop; the loop drains its
// mailbox on one goroutine, so handlers never need locks of their own.
package actor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/edwingeng/deque"
	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/ElliotVilhelm/flink/pkg/rmerrors"
)

// Loop is the actor's mailbox and run goroutine. T is the fencing-token
// type (ResourceManagerID for the resource manager's own loop).
type Loop[T comparable] struct {
	mailbox deque.Deque
	signal  chan struct{}

	mu       sync.RWMutex
	token    T
	hasToken bool

	closed  atomic.Bool
	closeCh chan struct{}
	doneCh  chan struct{}

	name string
}

// New creates a Loop and starts its run goroutine. name is used only for
// log lines identifying which loop a dropped command belonged to.
func New[T comparable](name string) *Loop[T] {
	l := &Loop[T]{
		mailbox: deque.NewDeque(),
		signal:  make(chan struct{}, 1),
		closeCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
		name:    name,
	}
	go l.run()
	return l
}

func (l *Loop[T]) run() {
	defer close(l.doneCh)
	for {
		select {
		case <-l.closeCh:
			l.drainOnClose()
			return
		case <-l.signal:
		}

		for {
			v := l.mailbox.PopFront()
			if v == nil {
				break
			}
			fn, _ := v.(func())
			if fn != nil {
				fn()
			}
			select {
			case <-l.closeCh:
				l.drainOnClose()
				return
			default:
			}
		}
	}
}

func (l *Loop[T]) drainOnClose() {
	for {
		v := l.mailbox.PopFront()
		if v == nil {
			return
		}
	}
}

func (l *Loop[T]) wake() {
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// enqueue appends fn to the mailbox. It never blocks on the run goroutine;
// the deque grows as needed, matching the teacher's unbounded eventQueue
// pattern but with an explicit close check so callers get a clear error
// instead of writing into a closed actor forever.
func (l *Loop[T]) enqueue(fn func()) error {
	if l.closed.Load() {
		return rmerrors.ErrActorClosed.GenWithStackByArgs()
	}
	l.mailbox.PushBack(fn)
	l.wake()
	return nil
}

// RunUnfenced submits fn to run on the loop without a fencing check. This
// is reserved for leadership-transition handlers (grantLeadership,
// revokeLeadership), which by definition run while the fencing token is
// changing.
func (l *Loop[T]) RunUnfenced(fn func()) error {
	return l.enqueue(fn)
}

// RunFenced submits fn to run on the loop only if callerToken matches the
// loop's current fencing token. The check happens here, at the RPC entry
// point, before fn is ever enqueued — a mismatched or absent token never
// reaches the handler body.
func (l *Loop[T]) RunFenced(callerToken T, fn func()) error {
	cur, ok := l.CurrentToken()
	if !ok {
		return rmerrors.ErrNotLeader.GenWithStackByArgs()
	}
	if cur != callerToken {
		return rmerrors.ErrFencingTokenMismatch.GenWithStackByArgs(callerToken, cur)
	}
	return l.enqueue(fn)
}

// ScheduleFenced submits fn to run on the loop after d, subject to the same
// fencing check as RunFenced, evaluated at submission time after the delay
// elapses (not when Schedule is called).
func (l *Loop[T]) ScheduleFenced(d time.Duration, callerToken T, fn func()) {
	time.AfterFunc(d, func() {
		if err := l.RunFenced(callerToken, fn); err != nil {
			log.L().Debug("scheduled fenced command dropped",
				zap.String("loop", l.name), zap.Error(err))
		}
	})
}

// ScheduleUnfenced submits fn to run on the loop after d, without a fencing
// check.
func (l *Loop[T]) ScheduleUnfenced(d time.Duration, fn func()) {
	time.AfterFunc(d, func() {
		if err := l.RunUnfenced(fn); err != nil {
			log.L().Debug("scheduled command dropped", zap.String("loop", l.name), zap.Error(err))
		}
	})
}

// CurrentToken returns a snapshot of the loop's fencing token. Safe to call
// from any goroutine; only the loop itself mutates the token, always from
// within a command it is currently running.
func (l *Loop[T]) CurrentToken() (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.token, l.hasToken
}

// SetToken installs a new fencing token. Must only be called from within a
// command running on the loop.
func (l *Loop[T]) SetToken(t T) {
	l.mu.Lock()
	l.token = t
	l.hasToken = true
	l.mu.Unlock()
}

// ClearToken removes the fencing token, so subsequent RunFenced calls are
// rejected until a new one is set. Must only be called from within a
// command running on the loop.
func (l *Loop[T]) ClearToken() {
	l.mu.Lock()
	var zero T
	l.token = zero
	l.hasToken = false
	l.mu.Unlock()
}

// Close stops the run goroutine. Pending commands are dropped. Close blocks
// until the run goroutine has exited.
func (l *Loop[T]) Close() {
	if !l.closed.CompareAndSwap(false, true) {
		return
	}
	close(l.closeCh)
	<-l.doneCh
}
