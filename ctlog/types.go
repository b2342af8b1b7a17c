// Package ctlog holds the data model shared by every component of the
// log coordination engine: entries, tree heads, timestamps and cluster
// node state, plus the process-wide Config.
package ctlog

import "fmt"

// EntryType distinguishes the two kinds of submission RFC 6962 defines.
type EntryType uint16

const (
	// X509Entry is a submitted end-entity certificate chain.
	X509Entry EntryType = 0
	// PrecertEntry is a submitted precertificate chain.
	PrecertEntry EntryType = 1
)

// Entry is an immutable submitted record. Once sequenced, the pair
// (sequence, Entry) never changes.
type Entry struct {
	LeafInput []byte
	ExtraData []byte
	Timestamp uint64 // milliseconds since the Unix epoch
	Type      EntryType
}

// LeafHash returns SHA256(0x00 || leaf_input), the RFC 6962 leaf hash
// used to index this entry everywhere in the system.
func (e *Entry) LeafHash(hasher LeafHasher) []byte {
	return hasher.HashLeaf(e.LeafInput)
}

// LeafHasher is the subset of hashers.LogHasher the data model needs;
// kept narrow here to avoid an import cycle with merkle/hashers callers
// that only need leaf hashing.
type LeafHasher interface {
	HashLeaf([]byte) []byte
}

// STH is a Signed Tree Head: a cryptographic commitment to the entire
// log state at tree_size.
type STH struct {
	TreeSize  uint64
	Timestamp uint64 // milliseconds since the Unix epoch
	RootHash  [32]byte
	Signature []byte
}

// String renders an STH for logs, omitting the signature bytes.
func (s *STH) String() string {
	return fmt.Sprintf("STH{size=%d ts=%d root=%x}", s.TreeSize, s.Timestamp, s.RootHash)
}

// SCT is a Signed Certificate Timestamp: the log's promise, issued at
// submission time, to include an entry within the maximum merge delay.
type SCT struct {
	LogID     [32]byte
	Timestamp uint64
	Extensions []byte
	Signature []byte
}

// PendingEntry is an entry that has an SCT but no assigned sequence
// number yet.
type PendingEntry struct {
	LeafHash  [32]byte
	Entry     Entry
	SCT       SCT
	Timestamp uint64 // the SCT's promised timestamp; used for FIFO ordering
}

// NodeState is what each cluster node publishes about itself for the
// Cluster State Controller to read.
type NodeState struct {
	NodeID             string
	NewestSTH          *STH
	ContiguousTreeSize uint64
	UpdatedAt          uint64 // milliseconds since the Unix epoch
}
