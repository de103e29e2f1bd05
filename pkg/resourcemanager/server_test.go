package resourcemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ElliotVilhelm/flink/pkg/clock"
	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
	"github.com/ElliotVilhelm/flink/pkg/rpctransport"
	"github.com/ElliotVilhelm/flink/pkg/slotmanager"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testToken clustermodel.ResourceManagerID = "rm-test-1"

func newTestServer(t *testing.T) (*Server, *fakeFatalHandler) {
	fatal := &fakeFatalHandler{}
	s := NewServer(
		"rm-1",
		Config{
			TaskManagerHeartbeatTimeout:  time.Minute,
			TaskManagerHeartbeatInterval: time.Second,
			JobManagerHeartbeatTimeout:   time.Minute,
			JobManagerHeartbeatInterval:  time.Second,
			JobTimeout:                   time.Minute,
		},
		clock.New(),
		fatal,
		fakeRetrievalFactory{},
		slotmanager.NewInMemory(),
		&fakeProvisioner{},
		nil,
		nil,
		NoopMetricSink{},
	)
	t.Cleanup(func() { require.NoError(t, s.Stop()) })

	s.GrantLeadership(testToken)
	require.Eventually(t, func() bool {
		tok, ok := s.CurrentToken()
		return ok && tok == testToken
	}, time.Second, time.Millisecond)
	return s, fatal
}

func TestRegisterTaskExecutorSucceeds(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.RegisterTaskExecutor(context.Background(), &rpctransport.RegisterTaskExecutorRequest{
		FencingToken: testToken,
		ResourceID:   "te-1",
		Address:      "10.0.0.1:1234",
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.InstanceID)
}

func TestRegisterTaskExecutorRejectsStaleFencingToken(t *testing.T) {
	s, _ := newTestServer(t)

	_, err := s.RegisterTaskExecutor(context.Background(), &rpctransport.RegisterTaskExecutorRequest{
		FencingToken: "some-other-token",
		ResourceID:   "te-1",
	})
	require.Error(t, err)
}

func TestReRegisteringTaskExecutorReplacesInstanceID(t *testing.T) {
	s, _ := newTestServer(t)

	first, err := s.RegisterTaskExecutor(context.Background(), &rpctransport.RegisterTaskExecutorRequest{
		FencingToken: testToken, ResourceID: "te-1",
	})
	require.NoError(t, err)

	second, err := s.RegisterTaskExecutor(context.Background(), &rpctransport.RegisterTaskExecutorRequest{
		FencingToken: testToken, ResourceID: "te-1",
	})
	require.NoError(t, err)
	require.NotEqual(t, first.InstanceID, second.InstanceID)
}

func TestSendSlotReportRejectsUnknownTaskExecutor(t *testing.T) {
	s, _ := newTestServer(t)

	ack, err := s.SendSlotReport(context.Background(), &rpctransport.SendSlotReportRequest{
		FencingToken: testToken,
		ResourceID:   "ghost",
		InstanceID:   "whatever",
		Report:       clustermodel.SlotReport{},
	})
	require.NoError(t, err)
	require.NotEmpty(t, ack.Error)
}

func TestSendSlotReportRejectsStaleInstanceID(t *testing.T) {
	s, _ := newTestServer(t)

	reg, err := s.RegisterTaskExecutor(context.Background(), &rpctransport.RegisterTaskExecutorRequest{
		FencingToken: testToken, ResourceID: "te-1",
	})
	require.NoError(t, err)

	ack, err := s.SendSlotReport(context.Background(), &rpctransport.SendSlotReportRequest{
		FencingToken: testToken,
		ResourceID:   "te-1",
		InstanceID:   clustermodel.InstanceID("not-" + string(reg.InstanceID)),
		Report:       clustermodel.SlotReport{ResourceID: "te-1"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, ack.Error)
}

func TestHeartbeatFromTaskManagerIsAccepted(t *testing.T) {
	s, _ := newTestServer(t)
	_, err := s.RegisterTaskExecutor(context.Background(), &rpctransport.RegisterTaskExecutorRequest{
		FencingToken: testToken, ResourceID: "te-1",
	})
	require.NoError(t, err)

	ack, err := s.HeartbeatFromTaskManager(context.Background(), &rpctransport.HeartbeatFromTaskManagerRequest{
		FencingToken: testToken,
		ResourceID:   "te-1",
	})
	require.NoError(t, err)
	require.Empty(t, ack.Error)
}

func TestDisconnectTaskManagerRemovesRegistration(t *testing.T) {
	s, _ := newTestServer(t)
	_, err := s.RegisterTaskExecutor(context.Background(), &rpctransport.RegisterTaskExecutorRequest{
		FencingToken: testToken, ResourceID: "te-1",
	})
	require.NoError(t, err)

	_, err = s.DisconnectTaskManager(context.Background(), &rpctransport.DisconnectTaskManagerRequest{
		FencingToken: testToken,
		ResourceID:   "te-1",
		Cause:        "test disconnect",
	})
	require.NoError(t, err)

	resp, err := s.RequestTaskManagerInfo(context.Background(), &rpctransport.RequestTaskManagerInfoRequest{
		FencingToken: testToken,
		ResourceID:   "te-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Error)
}

func TestRegisterJobManagerSucceedsWithoutAPriorLeader(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.RegisterJobManager(context.Background(), &rpctransport.RegisterJobManagerRequest{
		FencingToken: testToken,
		JobMasterID:  "jm-1",
		JobID:        "job-1",
		ResourceID:   "jm-resource-1",
		Address:      "10.0.0.2:4321",
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
}

func TestGetNumberOfRegisteredTaskManagers(t *testing.T) {
	s, _ := newTestServer(t)
	_, err := s.RegisterTaskExecutor(context.Background(), &rpctransport.RegisterTaskExecutorRequest{
		FencingToken: testToken, ResourceID: "te-1",
	})
	require.NoError(t, err)
	_, err = s.RegisterTaskExecutor(context.Background(), &rpctransport.RegisterTaskExecutorRequest{
		FencingToken: testToken, ResourceID: "te-2",
	})
	require.NoError(t, err)

	resp, err := s.GetNumberOfRegisteredTaskManagers(context.Background(), &rpctransport.NumberOfRegisteredTaskManagersRequest{
		FencingToken: testToken,
	})
	require.NoError(t, err)
	require.Equal(t, 2, resp.Count)
}

func TestRevokeLeadershipRejectsSubsequentRequests(t *testing.T) {
	s, _ := newTestServer(t)
	s.RevokeLeadership()

	require.Eventually(t, func() bool {
		_, ok := s.CurrentToken()
		return !ok
	}, time.Second, time.Millisecond)

	_, err := s.RegisterTaskExecutor(context.Background(), &rpctransport.RegisterTaskExecutorRequest{
		FencingToken: testToken, ResourceID: "te-1",
	})
	require.Error(t, err)
}
