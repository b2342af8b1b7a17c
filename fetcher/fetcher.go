// Package fetcher implements mirror mode: a read-only follower that
// pulls entries from an upstream log, verifies them against the
// upstream's signed tree head, and writes them into a local Entry
// Database. A mirror never signs STHs of its own.
package fetcher

import (
	"context"
	"crypto"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/yungchin/certificate-transparency/ctcrypto"
	"github.com/yungchin/certificate-transparency/ctlog"
	"github.com/yungchin/certificate-transparency/ctlog/ctlogerr"
	"github.com/yungchin/certificate-transparency/merkle/hashers"
	"github.com/yungchin/certificate-transparency/merkle/verifier"
	"github.com/yungchin/certificate-transparency/storage/entrydb"
)

// Upstream is the subset of the upstream log's interface a mirror
// needs. It is an external collaborator at the HTTP/RPC layer; this
// package only depends on this narrow contract.
type Upstream interface {
	GetSTH(ctx context.Context) (*ctlog.STH, error)
	GetEntries(ctx context.Context, start, end uint64) ([]*ctlog.Entry, error)
	GetInclusionProof(ctx context.Context, leafIndex, treeSize uint64) ([][]byte, error)
}

// Fetcher pulls entries from Upstream into a local Entry Database.
type Fetcher struct {
	cfg         *ctlog.Config
	hasher      hashers.LogHasher
	verifier    verifier.LogVerifier
	upstreamKey crypto.PublicKey
	upstream    Upstream
	db          entrydb.DB
}

// New returns a Fetcher pulling from upstream, verifying leaves with
// hasher and upstream STH signatures with upstreamKey.
func New(cfg *ctlog.Config, hasher hashers.LogHasher, upstream Upstream, upstreamKey crypto.PublicKey, db entrydb.DB) *Fetcher {
	return &Fetcher{
		cfg:         cfg,
		hasher:      hasher,
		verifier:    verifier.New(hasher),
		upstreamKey: upstreamKey,
		upstream:    upstream,
		db:          db,
	}
}

// window is a non-overlapping range of sequence numbers a single
// goroutine is responsible for pulling.
type window struct {
	start, end uint64 // [start, end)
}

// Sync pulls every entry the upstream log has beyond this mirror's
// local contiguous size, up to the upstream's current STH, verifying
// each window's entries against an inclusion proof anchored to that
// STH's root before committing them locally.
func (f *Fetcher) Sync(ctx context.Context) error {
	sth, err := f.upstream.GetSTH(ctx)
	if err != nil {
		return ctlogerr.Wrap(ctlogerr.Transient, "fetch upstream sth", err)
	}
	if err := ctcrypto.VerifySTHSignature(f.upstreamKey, sth.TreeSize, sth.Timestamp, sth.RootHash, sth.Signature); err != nil {
		return ctlogerr.Wrap(ctlogerr.Validation, "upstream sth signature invalid", err)
	}

	local, err := f.db.LatestContiguousSequence(ctx)
	if err != nil {
		return ctlogerr.Wrap(ctlogerr.Transient, "read local contiguous sequence", err)
	}
	if local >= sth.TreeSize {
		return nil
	}

	windows := partition(local, sth.TreeSize, f.cfg.FetcherWindowSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.FetcherParallelism)
	for _, w := range windows {
		w := w
		g.Go(func() error {
			return f.pullWindow(gctx, w, sth)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := f.db.StoreTreeHead(ctx, sth); err != nil {
		return ctlogerr.Wrap(ctlogerr.Fatal, "adopt upstream tree head", err)
	}
	glog.Infof("fetcher: synced to tree size %d", sth.TreeSize)
	return nil
}

func (f *Fetcher) pullWindow(ctx context.Context, w window, sth *ctlog.STH) error {
	entries, err := f.upstream.GetEntries(ctx, w.start, w.end)
	if err != nil {
		return ctlogerr.Wrap(ctlogerr.Transient, "fetch entries window", err)
	}
	if uint64(len(entries)) != w.end-w.start {
		return ctlogerr.New(ctlogerr.Validation, "upstream returned wrong number of entries for window")
	}

	// An inclusion proof binds exactly one leaf index to the root; it
	// says nothing about any other leaf. A window is only as trustworthy
	// as its least-verified entry, so every entry in it needs its own
	// proof against the upstream root, not just the window's last one.
	for i, entry := range entries {
		seq := w.start + uint64(i)
		proof, err := f.upstream.GetInclusionProof(ctx, seq, sth.TreeSize)
		if err != nil {
			return ctlogerr.Wrap(ctlogerr.Transient, "fetch inclusion proof for mirrored entry", err)
		}
		if err := f.verifier.VerifyInclusionProof(int64(seq), int64(sth.TreeSize), proof, sth.RootHash[:], entry.LeafInput); err != nil {
			return ctlogerr.Wrap(ctlogerr.Validation, "mirrored entry failed inclusion verification", err)
		}

		leafHash := f.hasher.HashLeaf(entry.LeafInput)
		var h [32]byte
		copy(h[:], leafHash)
		if err := f.db.PutPending(ctx, h, entry); err != nil {
			return ctlogerr.Wrap(ctlogerr.Fatal, "stage mirrored entry", err)
		}
		if err := f.db.AssignSequence(ctx, h, seq); err != nil {
			return ctlogerr.Wrap(ctlogerr.Fatal, "assign sequence for mirrored entry", err)
		}
	}
	return nil
}

func partition(start, end, windowSize uint64) []window {
	var out []window
	for s := start; s < end; s += windowSize {
		e := s + windowSize
		if e > end {
			e = end
		}
		out = append(out, window{start: s, end: e})
	}
	return out
}
