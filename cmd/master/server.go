package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pingcap/log"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/ElliotVilhelm/flink/pkg/clock"
	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
	"github.com/ElliotVilhelm/flink/pkg/config"
	"github.com/ElliotVilhelm/flink/pkg/jobleader/etcdretrieval"
	"github.com/ElliotVilhelm/flink/pkg/leaderelection"
	"github.com/ElliotVilhelm/flink/pkg/provisioner"
	"github.com/ElliotVilhelm/flink/pkg/resourcemanager"
	"github.com/ElliotVilhelm/flink/pkg/rpctransport"
	"github.com/ElliotVilhelm/flink/pkg/slotmanager"
)

type fatalLogger struct{}

func (fatalLogger) OnFatalError(err error) {
	log.Error("resource manager reported a fatal error; exiting", zap.Error(err))
	os.Exit(1)
}

func runMaster(ctx context.Context, cfg *config.Config) error {
	if err := initLogger(cfg); err != nil {
		return err
	}
	log.Info("starting resource manager", zap.String("config", cfg.String()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	etcdCli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.EtcdEndpoints(),
		DialTimeout: cfg.EtcdDialTimeout,
	})
	if err != nil {
		return err
	}
	defer etcdCli.Close()

	nodeID := cfg.Name
	if nodeID == "" {
		nodeID = uuid.New().String()
	}

	teGateways := rpctransport.NewTaskExecutorGatewayPool()
	jmGateways := rpctransport.NewJobManagerGatewayPool()
	defer teGateways.Close()
	defer jmGateways.Close()

	srv := resourcemanager.NewServer(
		clustermodel.ResourceID(nodeID),
		resourcemanager.Config{
			TaskManagerHeartbeatTimeout:  cfg.Timeouts.TaskManagerHeartbeatTimeout,
			TaskManagerHeartbeatInterval: cfg.Timeouts.TaskManagerHeartbeatInterval,
			JobManagerHeartbeatTimeout:   cfg.Timeouts.JobManagerHeartbeatTimeout,
			JobManagerHeartbeatInterval:  cfg.Timeouts.JobManagerHeartbeatInterval,
			JobTimeout:                   cfg.Timeouts.JobTimeout,
		},
		clock.New(),
		fatalLogger{},
		etcdretrieval.NewFactory(etcdCli),
		slotmanager.NewInMemory(),
		provisioner.NewStandalone(),
		teGateways,
		jmGateways,
		resourcemanager.NoopMetricSink{},
	)
	defer srv.Stop()

	election, err := leaderelection.NewEtcdElection(ctx, etcdCli, nil, leaderelection.Config{
		CreateSessionTimeout: cfg.EtcdDialTimeout,
		TTL:                  ttlFromHeartbeat(cfg),
		Prefix:               "/flink/resourcemanager/leader",
	})
	if err != nil {
		return err
	}
	electionSvc := leaderelection.NewService(election, leaderelection.NewEtcdEpochGenerator(etcdCli), nodeID, srv)
	go electionSvc.Run(ctx)
	defer electionSvc.Stop()

	grpcServer := grpc.NewServer(rpctransport.ChainUnaryInterceptors(
		rpctransport.RecoveryInterceptor(),
		rpctransport.FencingInterceptor(srv.CurrentToken),
	))
	rpctransport.RegisterHandler(grpcServer, srv)

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	log.Info("resource manager rpc server listening", zap.String("addr", cfg.Addr))

	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Warn("grpc server stopped", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	grpcServer.GracefulStop()
	return nil
}

func ttlFromHeartbeat(cfg *config.Config) time.Duration {
	return cfg.Timeouts.TaskManagerHeartbeatTimeout
}

func initLogger(cfg *config.Config) error {
	_, _, err := log.InitLogger(&log.Config{
		Level: cfg.LogLevel,
		File:  log.FileLogConfig{Filename: cfg.LogFile},
	})
	return err
}
