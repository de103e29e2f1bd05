// Package leaderelection wraps an etcd campaign into the grant/revoke
// leadership contract the resource manager runs on (component C3). Each
// successful campaign mints a fresh fencing token via the epoch generator;
// that token is handed to the Contender as the new ResourceManagerID and
// stamped on every RPC the leader accepts for the remainder of its term.
package leaderelection

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ElliotVilhelm/flink/pkg/clustermodel"
	"github.com/ElliotVilhelm/flink/pkg/rmerrors"
)

// NodeID identifies a campaigning process in the etcd election key space.
type NodeID = string

// EpochGenerator mints monotonically increasing fencing tokens. The etcd
// implementation derives one from the revision of a throwaway Put; tests
// use an in-memory counter.
type EpochGenerator interface {
	GenerateEpoch(ctx context.Context) (int64, error)
}

// NewEtcdEpochGenerator returns an EpochGenerator backed by cli's revision
// counter, one fake key write per call.
func NewEtcdEpochGenerator(cli *clientv3.Client) EpochGenerator {
	return &etcdEpochGenerator{cli: cli}
}

type etcdEpochGenerator struct {
	cli *clientv3.Client
}

const (
	epochFakeKey   = "/flink/resourcemanager/epoch"
	epochFakeValue = "epoch"
)

func (g *etcdEpochGenerator) GenerateEpoch(ctx context.Context) (int64, error) {
	resp, err := g.cli.Put(ctx, epochFakeKey, epochFakeValue)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return resp.Header.Revision, nil
}

// NewMockEpochGenerator returns an EpochGenerator suitable for tests, with
// no etcd dependency.
func NewMockEpochGenerator() EpochGenerator {
	return &mockEpochGenerator{}
}

type mockEpochGenerator struct {
	epoch int64
}

func (g *mockEpochGenerator) GenerateEpoch(context.Context) (int64, error) {
	return atomic.AddInt64(&g.epoch, 1), nil
}

// Contender is granted and revoked leadership by the Service. Both methods
// are expected to run the actual state transition on the resource manager's
// actor loop via RunUnfenced, since a leadership change is by definition a
// change of the fencing token the loop checks.
type Contender interface {
	GrantLeadership(token clustermodel.ResourceManagerID)
	RevokeLeadership()
}

// Config configures the etcd-backed election.
type Config struct {
	CreateSessionTimeout time.Duration
	TTL                  time.Duration
	Prefix               string
}

// Election is the minimal campaign contract a Service needs; it exists so
// tests can substitute an in-memory fake.
type Election interface {
	Campaign(ctx context.Context, selfID NodeID) (leaderCtx context.Context, resign context.CancelFunc, err error)
}

// EtcdElection campaigns for leadership through a concurrency.Election,
// retrying on a rate limit whenever a campaign attempt fails.
type EtcdElection struct {
	etcdClient *clientv3.Client
	election   *concurrency.Election
	session    *concurrency.Session
	rl         *rate.Limiter
}

// NewEtcdElection creates a new session (unless one is supplied) and an
// election rooted at config.Prefix.
func NewEtcdElection(ctx context.Context, etcdClient *clientv3.Client, session *concurrency.Session, config Config) (*EtcdElection, error) {
	ctx, cancel := context.WithTimeout(ctx, config.CreateSessionTimeout)
	defer cancel()

	sess := session
	if sess == nil {
		var err error
		sess, err = concurrency.NewSession(etcdClient,
			concurrency.WithContext(ctx),
			concurrency.WithTTL(int(config.TTL.Seconds())))
		if err != nil {
			return nil, rmerrors.ErrLeaderElectionServiceFailed.Wrap(err).GenWithStackByArgs()
		}
	}

	return &EtcdElection{
		etcdClient: etcdClient,
		election:   concurrency.NewElection(sess, config.Prefix),
		session:    sess,
		rl:         rate.NewLimiter(rate.Every(time.Second), 1),
	}, nil
}

// Campaign blocks until selfID wins the election, returning a context that
// is canceled when the session is lost and a resign function that releases
// the election key.
func (e *EtcdElection) Campaign(ctx context.Context, selfID NodeID) (context.Context, context.CancelFunc, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, nil, rmerrors.ErrLeaderElectionServiceFailed.Wrap(ctx.Err()).GenWithStackByArgs()
		default:
		}

		if err := e.rl.Wait(ctx); err != nil {
			return nil, nil, rmerrors.ErrLeaderElectionServiceFailed.Wrap(err).GenWithStackByArgs()
		}

		retCtx, resign, err := e.doCampaign(ctx, selfID)
		if err != nil {
			log.Warn("campaign for leader failed, retrying", zap.Error(err))
			continue
		}
		return retCtx, resign, nil
	}
}

func (e *EtcdElection) doCampaign(ctx context.Context, selfID NodeID) (context.Context, context.CancelFunc, error) {
	if err := e.election.Campaign(ctx, selfID); err != nil {
		return nil, nil, errors.Trace(err)
	}
	retCtx := &sessionCtx{Context: ctx, sess: e.session}
	resignFn := func() {
		resignCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := e.election.Resign(resignCtx); err != nil {
			log.Warn("resign leader failed", zap.Error(err))
		}
	}
	return retCtx, resignFn, nil
}

type sessionCtx struct {
	context.Context
	sess *concurrency.Session
}

func (c *sessionCtx) Done() <-chan struct{} {
	doneCh := make(chan struct{})
	go func() {
		select {
		case <-c.Context.Done():
		case <-c.sess.Done():
		}
		close(doneCh)
	}()
	return doneCh
}

// Service drives the campaign/grant/revoke/resign cycle in a loop until
// Stop is called. It owns the mapping from "won an etcd campaign" to "holds
// a fencing token": every time leadership is won, a new token is minted so
// a resource manager that loses and regains leadership never reuses a
// token a stale RPC might still be carrying.
type Service struct {
	election  Election
	epochGen  EpochGenerator
	selfID    NodeID
	contender Contender

	closeCh chan struct{}
	doneCh  chan struct{}
}

// NewService creates a Service. Call Run to start campaigning.
func NewService(election Election, epochGen EpochGenerator, selfID NodeID, contender Contender) *Service {
	return &Service{
		election:  election,
		epochGen:  epochGen,
		selfID:    selfID,
		contender: contender,
		closeCh:   make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Run campaigns in a loop, granting and revoking leadership on the
// contender as terms are won and lost. It returns once Stop is called.
func (s *Service) Run(ctx context.Context) {
	defer close(s.doneCh)
	for {
		select {
		case <-s.closeCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		leaderCtx, resign, err := s.election.Campaign(ctx, s.selfID)
		if err != nil {
			log.Warn("leader election campaign terminated with an error", zap.Error(err))
			return
		}

		epoch, err := s.epochGen.GenerateEpoch(ctx)
		if err != nil {
			log.Warn("failed to mint a fencing token after winning an election", zap.Error(err))
			resign()
			continue
		}

		token := clustermodel.ResourceManagerID(nodeTokenString(s.selfID, epoch))
		log.Info("won resource manager leadership", zap.String("token", token.String()))
		s.contender.GrantLeadership(token)

		select {
		case <-leaderCtx.Done():
			log.Info("lost resource manager leadership", zap.String("token", token.String()))
			s.contender.RevokeLeadership()
		case <-s.closeCh:
			s.contender.RevokeLeadership()
			resign()
			return
		case <-ctx.Done():
			s.contender.RevokeLeadership()
			resign()
			return
		}
	}
}

// Stop ends the campaign loop and blocks until Run has returned.
func (s *Service) Stop() {
	close(s.closeCh)
	<-s.doneCh
}

func nodeTokenString(selfID NodeID, epoch int64) string {
	return selfID + "-" + strconv.FormatInt(epoch, 10)
}
