// Package etcdretrieval is the production jobleader.RetrievalFactory: it
// watches each job's leader-election key in etcd the way the pack's
// srvdiscovery runner watches service nodes, and turns put/delete events
// into jobleader.Listener callbacks.
package etcdretrieval

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pingcap/log"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
	"github.com/ElliotVilhelm/flink/pkg/jobleader"
)

const keyPrefix = "/flink/jobmanager/leader/"

// leaderRecord is the JSON payload a job manager puts at its leader key
// when it wins that job's own leader election.
type leaderRecord struct {
	JobMasterID clustermodel.JobMasterID `json:"job_master_id"`
	Address     string                   `json:"address"`
}

// Factory creates one etcd watch per job.
type Factory struct {
	cli *clientv3.Client
}

// NewFactory returns a jobleader.RetrievalFactory backed by cli.
func NewFactory(cli *clientv3.Client) *Factory {
	return &Factory{cli: cli}
}

func (f *Factory) CreateRetrievalService(jobID clustermodel.JobID) (jobleader.RetrievalService, error) {
	ctx, cancel := context.WithCancel(context.Background())
	return &retrieval{
		cli:    f.cli,
		jobID:  jobID,
		key:    keyPrefix + jobID.String(),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

type retrieval struct {
	cli   *clientv3.Client
	jobID clustermodel.JobID
	key   string

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	done chan struct{}
}

func (r *retrieval) Start(listener jobleader.Listener) error {
	resp, err := r.cli.Get(r.ctx, r.key)
	if err != nil {
		return err
	}
	if len(resp.Kvs) > 0 {
		notify(listener, resp.Kvs[0].Value)
	}

	r.mu.Lock()
	r.done = make(chan struct{})
	r.mu.Unlock()

	watchCh := r.cli.Watch(r.ctx, r.key)
	go func() {
		defer close(r.done)
		for resp := range watchCh {
			for _, ev := range resp.Events {
				switch ev.Type {
				case clientv3.EventTypePut:
					notify(listener, ev.Kv.Value)
				case clientv3.EventTypeDelete:
					listener.NotifyLeaderAddress("", "")
				}
			}
		}
	}()
	return nil
}

func (r *retrieval) Stop() error {
	r.cancel()
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
	return nil
}

func notify(listener jobleader.Listener, raw []byte) {
	var rec leaderRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		log.Warn("failed to decode job leader record", zap.Error(err))
		return
	}
	listener.NotifyLeaderAddress(rec.JobMasterID, rec.Address)
}
