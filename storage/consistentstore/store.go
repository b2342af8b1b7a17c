// Package consistentstore implements the Consistent Store: the
// replicated control plane holding the pending queue, sequence
// counter, cluster membership, current STH and serving STH, backed by
// an external quorum-replicated key-value service (etcd).
package consistentstore

import (
	"context"

	"github.com/yungchin/certificate-transparency/ctlog"
)

// EventType classifies a Watch notification.
type EventType int

const (
	EventCreated EventType = iota
	EventModified
	EventDeleted
)

// Event is a single change notification from Watch.
type Event struct {
	Type EventType
	Key  string
}

// Store is the Consistent Store's capability set, namespaced per log.
// Mutations that depend on the current value are CAS-protected;
// DeletePending and SetClusterNodeState write unconditionally.
type Store interface {
	// AddPending CAS-inserts entry under its leaf hash. If an entry is
	// already staged under that hash, created is false and
	// existingTimestamp is the timestamp of the existing entry — the
	// caller (frontend) must treat this as success, returning the
	// existing SCT.
	AddPending(ctx context.Context, leafHash [32]byte, entry *ctlog.Entry, sct *ctlog.SCT) (created bool, existingTimestamp uint64, err error)

	// GetPendingEntries returns up to limit staged pending entries,
	// oldest promised-timestamp first (ties broken by leaf hash). Entries
	// that already have a sequence number but have not yet been deleted
	// are included; callers filter them.
	GetPendingEntries(ctx context.Context, limit int) ([]*ctlog.PendingEntry, error)

	// AssignSequenceNumber CAS-records that leafHash owns seq. Returns
	// a Conflict error if leafHash already has a different sequence,
	// or if seq is already owned by a different leaf hash. On a
	// Conflict against a different sequence already owned by leafHash,
	// callers should look up that sequence with GetSequenceForHash
	// rather than abandon the entry: another party already
	// completed this exact assignment under /sequence_mapping, and the
	// reserved seq that lost the race should be treated as unused.
	AssignSequenceNumber(ctx context.Context, leafHash [32]byte, seq uint64) error

	// GetSequenceForHash returns the sequence number already recorded
	// for leafHash under /sequence_mapping, if any. found is false if
	// no sequence has been assigned to this leaf hash yet.
	GetSequenceForHash(ctx context.Context, leafHash [32]byte) (seq uint64, found bool, err error)

	// NextAvailableSequenceNumber atomically reserves and returns the
	// next unused sequence number.
	NextAvailableSequenceNumber(ctx context.Context) (uint64, error)

	// DeletePending removes the staged entry under leafHash. Called
	// once the entry is durably sequenced and covered by a published
	// STH.
	DeletePending(ctx context.Context, leafHash [32]byte) error

	// SetClusterNodeState publishes this node's heartbeat. It attaches
	// no lease or TTL: the state stays until the node overwrites it, so a
	// crashed node's last state does not expire. (EtcdStore also offers
	// SetClusterNodeStateWithLease, which does attach a lease.)
	SetClusterNodeState(ctx context.Context, state *ctlog.NodeState) error

	// GetClusterNodeStates returns the most recently published state
	// for every node that has published one and whose state has not
	// been removed; states are not filtered by age.
	GetClusterNodeStates(ctx context.Context) ([]*ctlog.NodeState, error)

	// SetSTH CAS-publishes a new authoritative STH. Requires the
	// caller to hold a currently valid leader lease; the store itself
	// does not enforce this — callers must present a lease-scoped
	// context built by the election package.
	SetSTH(ctx context.Context, sth *ctlog.STH) error

	// GetSTH returns the latest published STH, or nil if none exists.
	GetSTH(ctx context.Context) (*ctlog.STH, error)

	// SetServingSTH CAS-updates the STH served to external clients.
	// Fails if sth.TreeSize is smaller than the current serving STH's,
	// or if the two disagree on root hash at equal tree size.
	SetServingSTH(ctx context.Context, sth *ctlog.STH) error

	// GetServingSTH returns the current serving STH, or nil if none
	// has been set yet.
	GetServingSTH(ctx context.Context) (*ctlog.STH, error)

	// Watch returns a channel of change events under prefix. The
	// channel is closed when ctx is done.
	Watch(ctx context.Context, prefix string) (<-chan Event, error)
}
