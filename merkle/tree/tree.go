// Package tree implements the dense, fully in-memory Merkle Tree Engine:
// a log's complete leaf hash history plus the internal node hashes needed
// to answer root, inclusion-proof and consistency-proof queries against
// any historical tree size.
//
// Internal node hashes are not stored eagerly. They are memoised the first
// time a query needs them and invalidated wholesale on the next append,
// so a long run of appends costs O(1) each and a burst of proof requests
// against a stable tree size is cheap after the first request warms the
// cache.
//
// Leaves are indexed from 0, matching RFC 6962, unlike the 1-based
// indexing used by some Merkle tree implementations ported from the CT
// C++ reference code.
package tree

import (
	"fmt"

	"github.com/yungchin/certificate-transparency/merkle/hashers"
)

// Tree is a dense, append-only Merkle tree over leaf hashes.
//
// Not safe for concurrent use without external synchronization, even for
// queries, since they fill the memo; lookup.Index guards its Tree with
// its own mutex.
type Tree struct {
	hasher hashers.LogHasher
	leaves [][]byte
	memo   map[rangeKey][]byte
}

type rangeKey struct {
	lo, hi int64
}

// New returns an empty Tree using hasher for leaf and node hashing.
func New(hasher hashers.LogHasher) *Tree {
	return &Tree{hasher: hasher}
}

// Size returns the number of leaves appended so far.
func (t *Tree) Size() int64 {
	return int64(len(t.leaves))
}

// AppendLeaf hashes data as a new leaf and appends it, returning its
// 0-based index.
func (t *Tree) AppendLeaf(data []byte) int64 {
	return t.AppendLeafHash(t.hasher.HashLeaf(data))
}

// AppendLeafHash appends a precomputed leaf hash, returning its 0-based
// index. Used when replaying leaves already hashed by the Entry Database.
func (t *Tree) AppendLeafHash(h []byte) int64 {
	idx := int64(len(t.leaves))
	t.leaves = append(t.leaves, h)
	t.memo = nil
	return idx
}

// LeafHash returns the stored hash of the leaf at idx.
func (t *Tree) LeafHash(idx int64) ([]byte, error) {
	if idx < 0 || idx >= t.Size() {
		return nil, fmt.Errorf("leaf index %d out of range [0,%d)", idx, t.Size())
	}
	return t.leaves[idx], nil
}

// CurrentRoot returns MTH over all leaves appended so far.
func (t *Tree) CurrentRoot() []byte {
	h, _ := t.RootAtSize(t.Size())
	return h
}

// RootAtSize returns MTH(D[0:size]), the root hash of the tree as it
// stood when it had exactly size leaves. size must be in [0, Size()].
func (t *Tree) RootAtSize(size int64) ([]byte, error) {
	if size < 0 || size > t.Size() {
		return nil, fmt.Errorf("size %d out of range [0,%d]", size, t.Size())
	}
	if size == 0 {
		return t.hasher.HashEmpty(), nil
	}
	return t.rangeHash(0, size-1), nil
}

// rangeHash returns MTH(D[lo:hi+1]), memoising the result.
func (t *Tree) rangeHash(lo, hi int64) []byte {
	if lo == hi {
		return t.leaves[lo]
	}
	key := rangeKey{lo, hi}
	if t.memo == nil {
		t.memo = make(map[rangeKey][]byte)
	}
	if h, ok := t.memo[key]; ok {
		return h
	}
	k := largestPowerOfTwoLessThan(hi - lo + 1)
	left := t.rangeHash(lo, lo+k-1)
	right := t.rangeHash(lo+k, hi)
	h := t.hasher.HashChildren(left, right)
	t.memo[key] = h
	return h
}

// InclusionProof returns the audit path proving that the leaf at
// leafIndex is included in the tree of the given size.
func (t *Tree) InclusionProof(leafIndex, size int64) ([][]byte, error) {
	if size < 1 || size > t.Size() {
		return nil, fmt.Errorf("size %d out of range [1,%d]", size, t.Size())
	}
	if leafIndex < 0 || leafIndex >= size {
		return nil, fmt.Errorf("leaf index %d out of range [0,%d)", leafIndex, size)
	}
	return t.inclusionPath(0, size-1, leafIndex), nil
}

func (t *Tree) inclusionPath(lo, hi, leafIndex int64) [][]byte {
	if lo == hi {
		return nil
	}
	k := largestPowerOfTwoLessThan(hi - lo + 1)
	if leafIndex < lo+k {
		return append(t.inclusionPath(lo, lo+k-1, leafIndex), t.rangeHash(lo+k, hi))
	}
	return append(t.inclusionPath(lo+k, hi, leafIndex), t.rangeHash(lo, lo+k-1))
}

// ConsistencyProof returns the proof that the tree at size m is a prefix
// of the tree at size n, per RFC 6962 section 2.1.2.
func (t *Tree) ConsistencyProof(m, n int64) ([][]byte, error) {
	if m < 0 || n > t.Size() || m > n {
		return nil, fmt.Errorf("invalid sizes m=%d n=%d (tree size %d)", m, n, t.Size())
	}
	if m == 0 || m == n {
		return nil, nil
	}
	return t.subProof(m, 0, n-1, true), nil
}

func (t *Tree) subProof(m, lo, hi int64, haveRoot bool) [][]byte {
	n := hi - lo + 1
	if m == n {
		if haveRoot {
			return nil
		}
		return [][]byte{t.rangeHash(lo, hi)}
	}
	k := largestPowerOfTwoLessThan(n)
	if m <= k {
		return append(t.subProof(m, lo, lo+k-1, haveRoot), t.rangeHash(lo+k, hi))
	}
	return append(t.subProof(m-k, lo+k, hi, false), t.rangeHash(lo, lo+k-1))
}

// largestPowerOfTwoLessThan returns the largest k = 2^x with k < n, for
// n > 1.
func largestPowerOfTwoLessThan(n int64) int64 {
	k := int64(1)
	for k*2 < n {
		k *= 2
	}
	return k
}
