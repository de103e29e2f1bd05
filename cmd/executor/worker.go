package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
	"github.com/ElliotVilhelm/flink/pkg/rpctransport"
)

const defaultHeartbeatInterval = 3 * time.Second

func runExecutor(ctx context.Context, o *executorOptions) error {
	if _, _, err := log.InitLogger(&log.Config{Level: o.logLevel}); err != nil {
		return err
	}

	resourceID := o.resourceID
	if resourceID == "" {
		resourceID = uuid.New().String()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cli, err := rpctransport.DialResourceManager(ctx, o.resourceManagerAddr)
	if err != nil {
		return err
	}
	defer cli.Close()

	token, err := awaitLeaderToken(ctx, cli)
	if err != nil {
		return err
	}
	log.Info("discovered resource manager leader", zap.String("token", token.String()))

	regResp, err := cli.RegisterTaskExecutor(ctx, &rpctransport.RegisterTaskExecutorRequest{
		FencingToken: token,
		ResourceID:   clustermodel.ResourceID(resourceID),
		Address:      o.listenAddr,
	})
	if err != nil {
		return err
	}
	if !regResp.Success {
		log.Error("task executor registration rejected", zap.String("reason", regResp.DeclineReason))
		return nil
	}
	log.Info("registered with resource manager", zap.String("instance-id", regResp.InstanceID.String()))

	if _, err := cli.SendSlotReport(ctx, &rpctransport.SendSlotReportRequest{
		FencingToken: token,
		ResourceID:   clustermodel.ResourceID(resourceID),
		InstanceID:   regResp.InstanceID,
		Report:       clustermodel.SlotReport{ResourceID: clustermodel.ResourceID(resourceID)},
	}); err != nil {
		log.Warn("initial slot report failed", zap.Error(err))
	}

	interval := o.heartbeatInterval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := cli.HeartbeatFromTaskManager(ctx, &rpctransport.HeartbeatFromTaskManagerRequest{
				FencingToken: token,
				ResourceID:   clustermodel.ResourceID(resourceID),
			}); err != nil {
				log.Warn("heartbeat failed", zap.Error(err))
			}
		case <-sigCh:
			_, _ = cli.DisconnectTaskManager(ctx, &rpctransport.DisconnectTaskManagerRequest{
				FencingToken: token,
				ResourceID:   clustermodel.ResourceID(resourceID),
				Cause:        "task executor shutting down",
			})
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func awaitLeaderToken(ctx context.Context, cli *rpctransport.ResourceManagerClient) (clustermodel.ResourceManagerID, error) {
	for {
		resp, err := cli.GetLeaderToken(ctx)
		if err != nil {
			return "", err
		}
		if resp.IsLeader {
			return resp.Token, nil
		}
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
