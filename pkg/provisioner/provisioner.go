// Package provisioner defines the pluggable, framework-specific worker
// lifecycle backend the resource manager drives: the only part of the
// control plane that knows how a worker process actually comes into being
// (a standalone process the operator starts by hand, a container, a cloud
// instance). W is the opaque worker handle the backend mints; the resource
// manager never interprets it.
package provisioner

import (
	"context"

	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
)

// WorkerProvisioner is implemented once per deployment target. All methods
// run on, or are scheduled back onto, the resource manager's actor loop by
// the caller; none of them may block for long without returning a future
// the caller awaits asynchronously.
type WorkerProvisioner[W any] interface {
	// Initialize is called once, before the provisioner does anything else.
	Initialize(ctx context.Context) error

	// PrepareLeadershipAsync runs whatever bookkeeping the backend needs
	// before the resource manager starts granting leadership-dependent
	// requests (e.g. reconciling already-running workers against the new
	// leader's empty tables).
	PrepareLeadershipAsync(ctx context.Context) error

	// ClearStateAsync discards whatever PrepareLeadershipAsync built, on
	// leadership loss.
	ClearStateAsync(ctx context.Context) error

	// StartNewWorker asks the backend to bring up a worker matching
	// profile. The resource manager calls WorkerStarted later, potentially
	// much later, once the worker actually registers.
	StartNewWorker(ctx context.Context, profile clustermodel.ResourceProfile) error

	// WorkerStarted is called by the resource manager once a task executor
	// claiming resourceID has successfully registered, so the backend can
	// mint and return the framework-specific handle W for it. ok is false
	// if the backend does not recognize resourceID as a worker it started.
	WorkerStarted(resourceID clustermodel.ResourceID, instanceID clustermodel.InstanceID) (worker W, ok bool)

	// StopWorker asks the backend to tear down the worker behind instanceID.
	StopWorker(ctx context.Context, instanceID clustermodel.InstanceID) error

	// InternalDeregisterApplication tells the backend the whole application
	// is shutting down with the given final status.
	InternalDeregisterApplication(status clustermodel.ApplicationStatus, diagnostics string) error
}
