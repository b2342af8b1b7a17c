// Package cluster implements the Cluster State Controller: every node
// publishes its own replication progress, watches its peers', and
// advances the serving STH once a quorum of nodes can back it.
package cluster

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/yungchin/certificate-transparency/ctlog"
	"github.com/yungchin/certificate-transparency/ctlog/ctlogerr"
	"github.com/yungchin/certificate-transparency/internal/clock"
	"github.com/yungchin/certificate-transparency/storage/consistentstore"
	"github.com/yungchin/certificate-transparency/storage/entrydb"
)

// Controller runs on every node, leader or not.
type Controller struct {
	cfg    *ctlog.Config
	nodeID string
	store  consistentstore.Store
	db     entrydb.DB
	clock  clock.TimeSource
}

// New returns a Controller for this node.
func New(cfg *ctlog.Config, nodeID string, store consistentstore.Store, db entrydb.DB, ts clock.TimeSource) *Controller {
	return &Controller{cfg: cfg, nodeID: nodeID, store: store, db: db, clock: ts}
}

// Pass runs one iteration: publish this node's state, then recompute
// and, if it advances, publish the serving STH.
func (c *Controller) Pass(ctx context.Context) error {
	if err := c.publish(ctx); err != nil {
		return err
	}
	return c.advanceServingSTH(ctx)
}

func (c *Controller) publish(ctx context.Context) error {
	sth, err := c.db.LatestTreeHead(ctx)
	if err != nil {
		return ctlogerr.Wrap(ctlogerr.Transient, "read local tree head", err)
	}
	contiguous, err := c.db.LatestContiguousSequence(ctx)
	if err != nil {
		return ctlogerr.Wrap(ctlogerr.Transient, "read local contiguous sequence", err)
	}
	state := &ctlog.NodeState{
		NodeID:             c.nodeID,
		NewestSTH:          sth,
		ContiguousTreeSize: contiguous,
		UpdatedAt:          uint64(c.clock.Now().UnixMilli()),
	}
	if err := c.store.SetClusterNodeState(ctx, state); err != nil {
		return ctlogerr.Wrap(ctlogerr.Transient, "publish cluster node state", err)
	}
	return nil
}

func (c *Controller) advanceServingSTH(ctx context.Context) error {
	states, err := c.store.GetClusterNodeStates(ctx)
	if err != nil {
		return ctlogerr.Wrap(ctlogerr.Transient, "read cluster node states", err)
	}
	candidate := selectServingSTH(states, c.cfg.ClusterQuorum, c.cfg.ServingFreshnessWindow, c.clock.Now())
	if candidate == nil {
		return nil
	}
	current, err := c.store.GetServingSTH(ctx)
	if err != nil {
		return ctlogerr.Wrap(ctlogerr.Transient, "read current serving sth", err)
	}
	if current != nil && candidate.TreeSize <= current.TreeSize {
		return nil
	}
	if err := c.store.SetServingSTH(ctx, candidate); err != nil {
		if ctlogerr.Is(err, ctlogerr.Conflict) {
			// Another node advanced it first; not an error.
			return nil
		}
		return ctlogerr.Wrap(ctlogerr.Transient, "advance serving sth", err)
	}
	glog.Infof("cluster: advanced serving sth to size %d", candidate.TreeSize)
	return nil
}

// selectServingSTH returns the largest-tree_size STH among states'
// reported newest_sth values for which at least quorum nodes report
// contiguous_tree_size at least that large, and whose timestamp is
// within freshnessWindow of now. Returns nil if no candidate qualifies.
func selectServingSTH(states []*ctlog.NodeState, quorum int, freshnessWindow time.Duration, now time.Time) *ctlog.STH {
	var best *ctlog.STH
	for _, st := range states {
		cand := st.NewestSTH
		if cand == nil {
			continue
		}
		if best != nil && cand.TreeSize <= best.TreeSize {
			continue
		}
		age := now.Sub(time.UnixMilli(int64(cand.Timestamp)))
		if age > freshnessWindow {
			continue
		}
		count := 0
		for _, peer := range states {
			if peer.ContiguousTreeSize >= cand.TreeSize {
				count++
			}
		}
		if count < quorum {
			continue
		}
		best = cand
	}
	return best
}
