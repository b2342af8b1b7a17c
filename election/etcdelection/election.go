// Package etcdelection implements election.Election over an etcd
// lease-backed concurrency.Election, the way util/election2/etcd does
// for Trillian's own log signer.
package etcdelection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/yungchin/certificate-transparency/ctlog/ctlogerr"
	"github.com/yungchin/certificate-transparency/election"
)

// Election is an etcd-backed election.Election.
type Election struct {
	client   *clientv3.Client
	lockName string
	leaseTTL time.Duration

	mu      sync.Mutex
	session *concurrency.Session
	elec    *concurrency.Election
}

// Factory constructs etcd-backed Elections sharing a client and a
// lease TTL.
type Factory struct {
	Client   *clientv3.Client
	LeaseTTL time.Duration
}

// NewElection implements election.Factory.
func (f *Factory) NewElection(ctx context.Context, resourceID string) (election.Election, error) {
	return &Election{
		client:   f.Client,
		lockName: fmt.Sprintf("/ct/%s/election/", resourceID),
		leaseTTL: f.LeaseTTL,
	}, nil
}

func (e *Election) Await(ctx context.Context) error {
	sess, err := concurrency.NewSession(e.client, concurrency.WithTTL(int(e.leaseTTL.Seconds())))
	if err != nil {
		return ctlogerr.Wrap(ctlogerr.Transient, "create etcd session", err)
	}
	elec := concurrency.NewElection(sess, e.lockName)
	if err := elec.Campaign(ctx, e.lockName); err != nil {
		sess.Close()
		return ctlogerr.Wrap(ctlogerr.Transient, "campaign for mastership", err)
	}
	e.mu.Lock()
	e.session = sess
	e.elec = elec
	e.mu.Unlock()
	glog.Infof("etcdelection: won mastership of %s", e.lockName)
	return nil
}

func (e *Election) WithMastership(ctx context.Context) (context.Context, error) {
	e.mu.Lock()
	sess := e.session
	e.mu.Unlock()
	if sess == nil {
		return nil, ctlogerr.New(ctlogerr.Fatal, "WithMastership called before Await succeeded")
	}
	mctx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		select {
		case <-sess.Done():
			glog.Warningf("etcdelection: lease for %s expired or was revoked", e.lockName)
		case <-ctx.Done():
		}
	}()
	return mctx, nil
}

func (e *Election) Resign(ctx context.Context) error {
	e.mu.Lock()
	elec := e.elec
	e.mu.Unlock()
	if elec == nil {
		return nil
	}
	if err := elec.Resign(ctx); err != nil {
		return ctlogerr.Wrap(ctlogerr.Transient, "resign mastership", err)
	}
	return nil
}

func (e *Election) Close(ctx context.Context) error {
	e.mu.Lock()
	sess := e.session
	e.session = nil
	e.elec = nil
	e.mu.Unlock()
	if sess == nil {
		return nil
	}
	if err := sess.Close(); err != nil {
		return ctlogerr.Wrap(ctlogerr.Transient, "close etcd session", err)
	}
	return nil
}
