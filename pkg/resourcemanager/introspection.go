package resourcemanager

import (
	"context"
	"sync"
	"time"

	"github.com/ElliotVilhelm/flink/pkg/rmerrors"
	"github.com/ElliotVilhelm/flink/pkg/rpctransport"
)

// defaultIntrospectionTimeout bounds a fan-out or relay introspection call
// whose request did not specify its own timeout.
const defaultIntrospectionTimeout = 5 * time.Second

// GetNumberOfRegisteredTaskManagers implements a read-only introspection
// RPC (C9).
func (s *Server) GetNumberOfRegisteredTaskManagers(ctx context.Context, req *rpctransport.NumberOfRegisteredTaskManagersRequest) (*rpctransport.NumberOfRegisteredTaskManagersResponse, error) {
	var count int
	err := s.loop.RunFenced(req.FencingToken, func() {
		count = s.taskExecutors.count()
	})
	if err != nil {
		return nil, err
	}
	return &rpctransport.NumberOfRegisteredTaskManagersResponse{Count: count}, nil
}

// RequestTaskManagerInfo returns one or all registered task executors. An
// empty ResourceID in the request means "all".
func (s *Server) RequestTaskManagerInfo(ctx context.Context, req *rpctransport.RequestTaskManagerInfoRequest) (*rpctransport.RequestTaskManagerInfoResponse, error) {
	var resp rpctransport.RequestTaskManagerInfoResponse
	err := s.loop.RunFenced(req.FencingToken, func() {
		if req.ResourceID != "" {
			entry, ok := s.taskExecutors.get(req.ResourceID)
			if !ok {
				resp.Error = "unknown task executor"
				return
			}
			resp.Infos = []rpctransport.TaskManagerInfo{s.taskManagerInfo(entry)}
			return
		}
		for _, entry := range s.taskExecutors.byResourceID {
			resp.Infos = append(resp.Infos, s.taskManagerInfo(entry))
		}
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *Server) taskManagerInfo(entry *taskExecutorEntry) rpctransport.TaskManagerInfo {
	lastSeen, _ := s.tmHeartbeats.LastHeartbeatFrom(entry.registration.ResourceID)
	return rpctransport.TaskManagerInfo{
		ResourceID:          entry.registration.ResourceID,
		InstanceID:          entry.registration.InstanceID,
		Address:             entry.registration.Address,
		DataPort:            entry.registration.DataPort,
		HardwareDescription: entry.registration.HardwareDescription,
		LastHeartbeat:       lastSeen.UnixNano(),
	}
}

// GetLeaderToken is the one unfenced RPC in the service: it lets a task
// executor or job manager that has just resolved this node's address
// through leader retrieval learn the fencing token it must stamp on every
// subsequent request. It is answered directly off the actor loop's own
// token snapshot rather than RunFenced, since a request without a token
// can never pass the fencing check.
func (s *Server) GetLeaderToken(ctx context.Context, req *rpctransport.GetLeaderTokenRequest) (*rpctransport.GetLeaderTokenResponse, error) {
	token, ok := s.CurrentToken()
	return &rpctransport.GetLeaderTokenResponse{IsLeader: ok, Token: token}, nil
}

// RequestResourceOverview aggregates the cluster's current resource
// occupancy.
func (s *Server) RequestResourceOverview(ctx context.Context, req *rpctransport.RequestResourceOverviewRequest) (*rpctransport.ResourceOverview, error) {
	var overview rpctransport.ResourceOverview
	err := s.loop.RunFenced(req.FencingToken, func() {
		overview.NumberOfTaskExecutors = s.taskExecutors.count()
		overview.NumberOfFreeSlots = s.slots.FreeSlotCount()
	})
	if err != nil {
		return nil, err
	}
	return &overview, nil
}

// RequestTaskManagerMetricQueryServiceAddresses fans out to every
// registered task executor and collects the addresses that answered within
// the timeout; an executor that returned none, or that didn't answer at
// all, is simply dropped rather than represented with a placeholder
// (spec.md §6). The gateways are snapshotted on the actor loop and the
// actual network calls run off it, so one slow executor cannot stall every
// other request the resource manager is serving.
func (s *Server) RequestTaskManagerMetricQueryServiceAddresses(ctx context.Context, req *rpctransport.RequestTaskManagerMetricQueryServiceAddressesRequest) (*rpctransport.TaskManagerMetricQueryServiceAddressesResponse, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultIntrospectionTimeout
	}

	var gateways []taskExecutorGateway
	err := s.loop.RunFenced(req.FencingToken, func() {
		for _, entry := range s.taskExecutors.byResourceID {
			if entry.gateway != nil {
				gateways = append(gateways, entry.gateway)
			}
		}
	})
	if err != nil {
		return nil, err
	}

	var (
		mu        sync.Mutex
		addresses []string
		wg        sync.WaitGroup
	)
	for _, gateway := range gateways {
		gateway := gateway
		wg.Add(1)
		go func() {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			addr, err := gateway.RequestMetricQueryServiceAddress(callCtx, timeout)
			if err != nil || addr == "" {
				return
			}
			mu.Lock()
			addresses = append(addresses, addr)
			mu.Unlock()
		}()
	}
	wg.Wait()

	return &rpctransport.TaskManagerMetricQueryServiceAddressesResponse{Addresses: addresses}, nil
}

// RequestTaskManagerFileUpload relays a file upload request to one
// registered task executor, failing with an unknown-executor error if it
// is not currently registered (spec.md §6).
func (s *Server) RequestTaskManagerFileUpload(ctx context.Context, req *rpctransport.RequestTaskManagerFileUploadRequest) (*rpctransport.TaskManagerFileUploadResponse, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultIntrospectionTimeout
	}

	var gateway taskExecutorGateway
	err := s.loop.RunFenced(req.FencingToken, func() {
		entry, ok := s.taskExecutors.get(req.ResourceID)
		if !ok {
			return
		}
		gateway = entry.gateway
	})
	if err != nil {
		return nil, err
	}
	if gateway == nil {
		return &rpctransport.TaskManagerFileUploadResponse{
			Success: false,
			Error:   rmerrors.ErrUnknownTaskExecutor.GenWithStackByArgs(req.ResourceID).Error(),
		}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := gateway.RequestFileUpload(callCtx, req.FileType, timeout)
	if err != nil {
		return &rpctransport.TaskManagerFileUploadResponse{Success: false, Error: err.Error()}, nil
	}
	return resp, nil
}
