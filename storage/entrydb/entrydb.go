// Package entrydb defines the Entry Database contract: a durable
// mapping from sequence number to entry and from leaf hash to sequence
// number. It is defined by its capability set, not an inheritance
// hierarchy — any backend (in-memory, on-disk ordered KV, embedded
// relational store) that implements DB is a valid Entry Database.
package entrydb

import (
	"context"

	"github.com/yungchin/certificate-transparency/ctlog"
)

// DB is the capability set every Entry Database backend must provide.
type DB interface {
	// PutPending stages entry under leafHash before sequencing. Calling
	// it twice for the same leafHash is a no-op on the second call.
	PutPending(ctx context.Context, leafHash [32]byte, entry *ctlog.Entry) error

	// AssignSequence atomically promotes the pending entry at leafHash
	// to a sequenced entry at seq. Returns a Conflict error if seq is
	// already assigned to a different leaf hash.
	AssignSequence(ctx context.Context, leafHash [32]byte, seq uint64) error

	// LookupByHash returns the sequence number assigned to leafHash, or
	// a Validation error if none has been assigned.
	LookupByHash(ctx context.Context, leafHash [32]byte) (uint64, error)

	// Read returns the entry sequenced at seq, or a Validation error if
	// nothing is sequenced there.
	Read(ctx context.Context, seq uint64) (*ctlog.Entry, error)

	// LatestContiguousSequence returns the largest n such that every
	// sequence in [0,n) is present.
	LatestContiguousSequence(ctx context.Context) (uint64, error)

	// LatestTreeHead returns the most recently signed or adopted STH,
	// or nil if none has been stored yet.
	LatestTreeHead(ctx context.Context) (*ctlog.STH, error)

	// StoreTreeHead persists sth as the latest tree head this node
	// knows about.
	StoreTreeHead(ctx context.Context, sth *ctlog.STH) error
}
