// Package compact implements a compact Merkle tree: a streaming
// representation that can append leaves and recompute the current root
// in O(log n) time and O(log n) space, without retaining leaf history.
//
// It is the data structure the Tree Signer carries across sequencing
// passes: on each pass it appends the newly sequenced leaves' hashes and
// asks for the new root, without needing to re-read the whole log. Its
// state (size plus the per-level "right edge" root hashes) is available
// through Hashes and can be restored with NewTreeWithState; the Tree
// Signer does not persist it, and rebuilds the tree on Resume by
// replaying the entry database.
package compact

import (
	"bytes"
	"fmt"
	"math/bits"

	"github.com/yungchin/certificate-transparency/merkle/hashers"
)

// Tree is a compact Merkle tree.
type Tree struct {
	hasher hashers.LogHasher
	size   int64
	// nodes[level] holds the root hash of the rightmost perfect subtree
	// of 2^level leaves, valid only when bit `level` of size is set.
	nodes [][]byte
}

// NewTree returns an empty compact tree.
func NewTree(hasher hashers.LogHasher) *Tree {
	return &Tree{hasher: hasher}
}

// NewTreeWithState reconstructs a compact tree from previously persisted
// state, verifying that it recomputes to expectedRoot.
func NewTreeWithState(hasher hashers.LogHasher, size int64, nodeHashes [][]byte, expectedRoot []byte) (*Tree, error) {
	t := &Tree{hasher: hasher, size: size, nodes: append([][]byte(nil), nodeHashes...)}
	root := t.CurrentRoot()
	if !bytes.Equal(root, expectedRoot) {
		return nil, fmt.Errorf("compact tree state at size %d recomputes to root %x, want %x", size, root, expectedRoot)
	}
	return t, nil
}

// Size returns the number of leaves appended so far.
func (t *Tree) Size() int64 {
	return t.size
}

// Hashes returns the current per-level right-edge root hashes, for
// persistence. The slice is indexed by level; entries for levels whose
// bit is unset in Size() may be nil or hold stale hashes and must be
// ignored.
func (t *Tree) Hashes() [][]byte {
	return append([][]byte(nil), t.nodes...)
}

// AppendLeaf hashes data as a new leaf and folds it into the tree.
func (t *Tree) AppendLeaf(data []byte) error {
	return t.AppendLeafHash(t.hasher.HashLeaf(data))
}

// AppendLeafHash folds a precomputed leaf hash into the tree.
func (t *Tree) AppendLeafHash(h []byte) error {
	level := 0
	for t.size&(1<<uint(level)) != 0 {
		h = t.hasher.HashChildren(t.nodes[level], h)
		level++
	}
	for level >= len(t.nodes) {
		t.nodes = append(t.nodes, nil)
	}
	t.nodes[level] = h
	t.size++
	return nil
}

// CurrentRoot returns MTH over all leaves folded in so far.
func (t *Tree) CurrentRoot() []byte {
	if t.size == 0 {
		return t.hasher.HashEmpty()
	}
	// Fold from the smallest (rightmost) subtree upwards: each larger
	// subtree is the left child of everything to its right.
	var root []byte
	first := true
	for level := 0; level < bits.Len64(uint64(t.size)); level++ {
		if t.size&(1<<uint(level)) == 0 {
			continue
		}
		if first {
			root = t.nodes[level]
			first = false
			continue
		}
		root = t.hasher.HashChildren(t.nodes[level], root)
	}
	return root
}

// String renders the tree's size and per-level state, for logging.
func (t *Tree) String() string {
	return fmt.Sprintf("compact.Tree{size: %d, levels: %d}", t.size, len(t.nodes))
}
