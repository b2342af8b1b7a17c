package logsigner

import (
	"context"

	"github.com/golang/glog"

	"github.com/yungchin/certificate-transparency/election"
)

// RunLoop repeatedly campaigns for mastership and, once won, runs
// sequencing passes at cfg.SigningInterval until mastership is lost or
// ctx is done. It never returns while ctx remains open; callers run it
// in its own goroutine, mirroring OperationManager's OperationLoop.
func (s *Signer) RunLoop(ctx context.Context, elec election.Election) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := elec.Await(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			glog.Warningf("logsigner: failed to win mastership: %v", err)
			continue
		}

		mctx, err := elec.WithMastership(ctx)
		if err != nil {
			glog.Warningf("logsigner: WithMastership failed: %v", err)
			continue
		}
		if err := s.Resume(mctx); err != nil {
			glog.Errorf("logsigner: resume failed, refusing to sign: %v", err)
			elec.Resign(ctx)
			continue
		}

		s.runWhileMaster(mctx)

		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Signer) runWhileMaster(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := s.SequenceBatch(ctx)
		if err != nil {
			glog.Errorf("logsigner: sequencing pass failed: %v", err)
			if ctx.Err() != nil {
				return
			}
		} else if n > 0 {
			glog.V(1).Infof("logsigner: sequenced %d entries", n)
		}
		if err := s.clock.SleepContext(ctx, s.cfg.SigningInterval); err != nil {
			return
		}
	}
}
