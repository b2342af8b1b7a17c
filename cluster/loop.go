package cluster

import (
	"context"

	"github.com/golang/glog"
)

// RunLoop runs Pass at a fixed interval until ctx is done. Unlike the
// Tree Signer's loop, this one runs unconditionally on every node,
// master or not.
func (c *Controller) RunLoop(ctx context.Context) {
	for {
		if err := c.Pass(ctx); err != nil {
			glog.Warningf("cluster: pass failed: %v", err)
		}
		if err := c.clock.SleepContext(ctx, c.cfg.SigningInterval); err != nil {
			return
		}
	}
}
