// Package logsigner implements the Tree Signer: the sequencing loop
// that drains pending entries, assigns sequence numbers, extends the
// compact Merkle tree, and publishes a new signed tree head. It runs
// only while the node holds mastership of the log.
package logsigner

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/golang/glog"

	"github.com/yungchin/certificate-transparency/ctcrypto"
	"github.com/yungchin/certificate-transparency/ctlog"
	"github.com/yungchin/certificate-transparency/ctlog/ctlogerr"
	"github.com/yungchin/certificate-transparency/internal/clock"
	"github.com/yungchin/certificate-transparency/merkle/compact"
	"github.com/yungchin/certificate-transparency/merkle/hashers"
	"github.com/yungchin/certificate-transparency/storage/consistentstore"
	"github.com/yungchin/certificate-transparency/storage/entrydb"
)

// Signer runs the sequencing loop for a single log while this node is
// master. It owns the compact tree exclusively; nothing else may
// mutate it.
type Signer struct {
	cfg    *ctlog.Config
	hasher hashers.LogHasher
	db     entrydb.DB
	store  consistentstore.Store
	crypto *ctcrypto.Signer
	clock  clock.TimeSource

	tree *compact.Tree
}

// New returns a Signer. Resume must be called once, after construction
// and before SequenceBatch, to recover the compact tree's state.
func New(cfg *ctlog.Config, hasher hashers.LogHasher, db entrydb.DB, store consistentstore.Store, signer *ctcrypto.Signer, ts clock.TimeSource) *Signer {
	return &Signer{cfg: cfg, hasher: hasher, db: db, store: store, crypto: signer, clock: ts}
}

// Resume recomputes the compact tree from the Entry Database up to the
// latest contiguous sequence, and checks it against the latest stored
// tree head — the crash-consistency self-check the signer needs before
// it can trust its in-memory tree after a restart. No STH is published
// until the recomputed root matches the assigned range.
func (s *Signer) Resume(ctx context.Context) error {
	contiguous, err := s.db.LatestContiguousSequence(ctx)
	if err != nil {
		return ctlogerr.Wrap(ctlogerr.Fatal, "read latest contiguous sequence", err)
	}
	sth, err := s.db.LatestTreeHead(ctx)
	if err != nil {
		return ctlogerr.Wrap(ctlogerr.Fatal, "read latest tree head", err)
	}

	tree := compact.NewTree(s.hasher)
	for i := uint64(0); i < contiguous; i++ {
		entry, err := s.db.Read(ctx, i)
		if err != nil {
			return ctlogerr.Wrap(ctlogerr.Fatal, "replay entry during resume", err)
		}
		if err := tree.AppendLeafHash(s.hasher.HashLeaf(entry.LeafInput)); err != nil {
			return ctlogerr.Wrap(ctlogerr.Fatal, "replay leaf during resume", err)
		}
	}

	if sth != nil {
		if uint64(tree.Size()) < sth.TreeSize {
			return ctlogerr.New(ctlogerr.Fatal, "entry database has fewer contiguous entries than the last published tree size")
		}
		if uint64(tree.Size()) == sth.TreeSize {
			root := tree.CurrentRoot()
			if !bytes.Equal(root, sth.RootHash[:]) {
				return ctlogerr.New(ctlogerr.Fatal, "recomputed root does not match last published tree head: entry database may be corrupt")
			}
		}
	}
	s.tree = tree
	glog.Infof("logsigner: resumed at tree size %d", tree.Size())
	return nil
}

// SequenceBatch runs one sequencing pass: drain up to
// cfg.SigningBatchLimit pending entries, assign sequence numbers,
// extend the tree, and publish a new STH if anything was sequenced.
// Returns the number of entries sequenced.
func (s *Signer) SequenceBatch(ctx context.Context) (int, error) {
	if s.tree == nil {
		return 0, ctlogerr.New(ctlogerr.Fatal, "SequenceBatch called before Resume")
	}

	currentSTH, err := s.db.LatestTreeHead(ctx)
	if err != nil {
		return 0, ctlogerr.Wrap(ctlogerr.Transient, "read latest tree head", err)
	}
	var prevSize, prevTimestamp uint64
	if currentSTH != nil {
		prevSize = currentSTH.TreeSize
		prevTimestamp = currentSTH.Timestamp
		if prevSize != uint64(s.tree.Size()) {
			return 0, ctlogerr.New(ctlogerr.Fatal, "compact tree size diverged from last published tree head")
		}
	}
	// No STH has ever been published: Resume already validated the
	// compact tree against the entry database's contiguous range, so
	// there's nothing to diverge from yet. A crash after entries were
	// sequenced but before the first STH is signed is exactly the
	// "partially-assigned batch, extend next time" case — s.tree.Size()
	// already reflects that progress and the batch below extends it.

	now := uint64(s.clock.Now().UnixMilli())

	pending, err := s.store.GetPendingEntries(ctx, s.cfg.SigningBatchLimit)
	if err != nil {
		return 0, ctlogerr.Wrap(ctlogerr.Transient, "get pending entries", err)
	}
	if s.cfg.SigningGuardWindow > 0 {
		pending = withheldByGuardWindow(pending, now, s.cfg.SigningGuardWindow)
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Timestamp != pending[j].Timestamp {
			return pending[i].Timestamp < pending[j].Timestamp
		}
		return bytes.Compare(pending[i].LeafHash[:], pending[j].LeafHash[:]) < 0
	})

	sequenced := 0
	var covered [][32]byte
	for _, pe := range pending {
		if _, err := s.db.LookupByHash(ctx, pe.LeafHash); err == nil {
			// Already sequenced by a previous, possibly crashed, pass.
			covered = append(covered, pe.LeafHash)
			continue
		}

		// Step 2 filters against /sequence_mapping, not just the entry
		// database: a prior, possibly crashed, master may have already
		// CAS-recorded ownership of a sequence for this leaf hash
		// without having committed it to the entry database yet. That
		// assignment is authoritative and must be adopted rather than
		// re-reserved.
		seq, found, err := s.store.GetSequenceForHash(ctx, pe.LeafHash)
		if err != nil {
			return sequenced, ctlogerr.Wrap(ctlogerr.Transient, "look up existing sequence assignment", err)
		}
		if !found {
			seq, err = s.store.NextAvailableSequenceNumber(ctx)
			if err != nil {
				return sequenced, ctlogerr.Wrap(ctlogerr.Transient, "reserve sequence number", err)
			}
			if err := s.store.AssignSequenceNumber(ctx, pe.LeafHash, seq); err != nil {
				if !ctlogerr.Is(err, ctlogerr.Conflict) {
					return sequenced, err
				}
				// Another party raced us: either it already owns this
				// exact leaf hash under a sequence of its own, or it
				// took the seq we just reserved for a different leaf
				// hash. The seq we reserved is abandoned either way —
				// there is no rollback for NextAvailableSequenceNumber's
				// counter — but the entry itself must not be: adopt
				// whatever sequence the store actually recorded for it.
				seq, found, err = s.store.GetSequenceForHash(ctx, pe.LeafHash)
				if err != nil {
					return sequenced, ctlogerr.Wrap(ctlogerr.Transient, "look up sequence after conflict", err)
				}
				if !found {
					glog.Infof("logsigner: lost race reserving sequence for leaf %x, retrying next pass", pe.LeafHash)
					continue
				}
			}
		}
		if err := s.db.PutPending(ctx, pe.LeafHash, &pe.Entry); err != nil {
			return sequenced, ctlogerr.Wrap(ctlogerr.Fatal, "stage entry before assigning sequence", err)
		}
		if err := s.db.AssignSequence(ctx, pe.LeafHash, seq); err != nil {
			return sequenced, ctlogerr.Wrap(ctlogerr.Fatal, "assign sequence in entry database", err)
		}
		if err := s.tree.AppendLeafHash(s.hasher.HashLeaf(pe.Entry.LeafInput)); err != nil {
			return sequenced, ctlogerr.Wrap(ctlogerr.Fatal, "extend compact tree", err)
		}
		sequenced++
		covered = append(covered, pe.LeafHash)
	}

	if sequenced == 0 {
		return 0, nil
	}

	newSize := uint64(s.tree.Size())
	var root [32]byte
	copy(root[:], s.tree.CurrentRoot())

	timestamp := now
	if timestamp <= prevTimestamp {
		timestamp = prevTimestamp + 1
	}
	skew := time.Duration(int64(prevTimestamp)-int64(now)) * time.Millisecond
	if s.cfg.SkewObserver != nil {
		s.cfg.SkewObserver(skew)
	}
	if skew > 0 && skew > s.cfg.ClockSkewBound {
		return sequenced, ctlogerr.New(ctlogerr.Fatal, "clock skew exceeds configured bound; refusing to sign")
	}

	sth, err := s.crypto.SignSTH(newSize, timestamp, root)
	if err != nil {
		return sequenced, err
	}
	if err := s.db.StoreTreeHead(ctx, sth); err != nil {
		return sequenced, ctlogerr.Wrap(ctlogerr.Fatal, "store new tree head locally", err)
	}
	if err := s.store.SetSTH(ctx, sth); err != nil {
		return sequenced, ctlogerr.Wrap(ctlogerr.Transient, "publish new tree head", err)
	}

	for _, h := range covered {
		if err := s.store.DeletePending(ctx, h); err != nil {
			glog.Warningf("logsigner: failed to garbage-collect pending entry %x: %v", h, err)
		}
	}

	glog.Infof("logsigner: published STH size=%d timestamp=%d sequenced=%d", newSize, timestamp, sequenced)
	return sequenced, nil
}

// withheldByGuardWindow drops entries submitted too recently relative
// to now, so a batch never includes an entry whose submission
// timestamp hasn't yet cleared the guard window. The entries it drops
// stay pending and are picked up by a later pass.
func withheldByGuardWindow(pending []*ctlog.PendingEntry, now uint64, window time.Duration) []*ctlog.PendingEntry {
	guardMillis := uint64(window / time.Millisecond)
	out := pending[:0]
	for _, pe := range pending {
		if now < pe.Timestamp || now-pe.Timestamp >= guardMillis {
			out = append(out, pe)
		}
	}
	return out
}
