// Package lookup implements the Log Lookup read-side index: a
// leaf-hash to sequence mapping plus the full Merkle tree needed to
// answer inclusion and consistency proof queries.
package lookup

import (
	"context"
	"sync"

	"github.com/yungchin/certificate-transparency/ctlog"
	"github.com/yungchin/certificate-transparency/ctlog/ctlogerr"
	"github.com/yungchin/certificate-transparency/merkle/hashers"
	"github.com/yungchin/certificate-transparency/merkle/tree"
	"github.com/yungchin/certificate-transparency/storage/entrydb"
)

// Index is the Log Lookup component. It is rebuilt incrementally as the
// serving STH advances and is otherwise read-only.
type Index struct {
	mu     sync.RWMutex
	hasher hashers.LogHasher
	db     entrydb.DB

	tree      *tree.Tree
	hashToSeq map[[32]byte]uint64
}

// New returns an empty Index.
func New(hasher hashers.LogHasher, db entrydb.DB) *Index {
	return &Index{
		hasher:    hasher,
		db:        db,
		tree:      tree.New(hasher),
		hashToSeq: make(map[[32]byte]uint64),
	}
}

// Advance extends the index to cover sequences [currentSize, upTo),
// reading them from the Entry Database. Call it whenever the serving
// STH adopts a new tree size.
func (ix *Index) Advance(ctx context.Context, upTo uint64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	start := uint64(ix.tree.Size())
	for seq := start; seq < upTo; seq++ {
		entry, err := ix.db.Read(ctx, seq)
		if err != nil {
			return ctlogerr.Wrap(ctlogerr.Transient, "read entry for index advance", err)
		}
		leafHash := ix.hasher.HashLeaf(entry.LeafInput)
		idx := ix.tree.AppendLeafHash(leafHash)
		var h [32]byte
		copy(h[:], leafHash)
		ix.hashToSeq[h] = uint64(idx)
	}
	return nil
}

// Size returns the number of entries currently indexed.
func (ix *Index) Size() uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return uint64(ix.tree.Size())
}

// GetEntryAndProof returns the entry at seq and its inclusion proof
// against treeSize.
func (ix *Index) GetEntryAndProof(ctx context.Context, seq, treeSize uint64) (*ctlog.Entry, [][]byte, error) {
	entry, err := ix.db.Read(ctx, seq)
	if err != nil {
		return nil, nil, ctlogerr.Wrap(ctlogerr.Validation, "read entry", err)
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	proof, err := ix.tree.InclusionProof(int64(seq), int64(treeSize))
	if err != nil {
		return nil, nil, ctlogerr.Wrap(ctlogerr.Validation, "compute inclusion proof", err)
	}
	return entry, proof, nil
}

// GetProofByHash returns the sequence number assigned to leafHash and
// its inclusion proof against treeSize, or a Validation error if
// leafHash has not been indexed.
func (ix *Index) GetProofByHash(ctx context.Context, leafHash [32]byte, treeSize uint64) (uint64, [][]byte, error) {
	ix.mu.RLock()
	seq, ok := ix.hashToSeq[leafHash]
	ix.mu.RUnlock()
	if !ok {
		return 0, nil, ctlogerr.New(ctlogerr.Validation, "leaf hash not indexed")
	}
	_, proof, err := ix.GetEntryAndProof(ctx, seq, treeSize)
	if err != nil {
		return 0, nil, err
	}
	return seq, proof, nil
}

// GetConsistency returns the consistency proof between oldSize and
// newSize.
func (ix *Index) GetConsistency(ctx context.Context, oldSize, newSize uint64) ([][]byte, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	proof, err := ix.tree.ConsistencyProof(int64(oldSize), int64(newSize))
	if err != nil {
		return nil, ctlogerr.Wrap(ctlogerr.Validation, "compute consistency proof", err)
	}
	return proof, nil
}

// Root returns the root hash at size.
func (ix *Index) Root(size uint64) ([]byte, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	root, err := ix.tree.RootAtSize(int64(size))
	if err != nil {
		return nil, ctlogerr.Wrap(ctlogerr.Validation, "compute root", err)
	}
	return root, nil
}
