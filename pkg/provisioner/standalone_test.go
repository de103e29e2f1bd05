package provisioner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
)

func TestStandaloneWorkerStartedTracksInstance(t *testing.T) {
	var p WorkerProvisioner[clustermodel.ResourceID] = NewStandalone()

	worker, ok := p.WorkerStarted("te-1", "instance-1")
	require.True(t, ok)
	require.Equal(t, clustermodel.ResourceID("te-1"), worker)
}

func TestStandaloneStopWorkerForgetsInstance(t *testing.T) {
	p := NewStandalone()
	_, _ = p.WorkerStarted("te-1", "instance-1")

	require.NoError(t, p.StopWorker(context.Background(), "instance-1"))
	require.Empty(t, p.workers)
}

func TestStandaloneClearStateResetsTracking(t *testing.T) {
	p := NewStandalone()
	_, _ = p.WorkerStarted("te-1", "instance-1")

	require.NoError(t, p.ClearStateAsync(context.Background()))
	require.Empty(t, p.workers)
}
