package consistentstore

import (
	"bytes"
	"context"
	"sync"

	"github.com/yungchin/certificate-transparency/ctlog"
	"github.com/yungchin/certificate-transparency/ctlog/ctlogerr"
)

// MemoryStore is an in-memory Store, for tests and single-process
// deployments that don't need real cross-node replication. It
// implements the same CAS semantics as EtcdStore without requiring a
// running etcd cluster, the way the teacher's storage/testonly package
// stands in for real backends in unit tests.
type MemoryStore struct {
	mu sync.Mutex

	pending map[[32]byte]pendingRecordEntry
	seqByHash map[[32]byte]uint64
	hashBySeq map[uint64][32]byte
	nextSeq   uint64

	nodeStates map[string]*ctlog.NodeState

	sth        *ctlog.STH
	servingSTH *ctlog.STH

	watchers map[string][]chan Event
}

type pendingRecordEntry struct {
	entry ctlog.Entry
	sct   ctlog.SCT
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pending:    make(map[[32]byte]pendingRecordEntry),
		seqByHash:  make(map[[32]byte]uint64),
		hashBySeq:  make(map[uint64][32]byte),
		nodeStates: make(map[string]*ctlog.NodeState),
		watchers:   make(map[string][]chan Event),
	}
}

func (s *MemoryStore) AddPending(ctx context.Context, leafHash [32]byte, entry *ctlog.Entry, sct *ctlog.SCT) (bool, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.pending[leafHash]; ok {
		return false, existing.sct.Timestamp, nil
	}
	s.pending[leafHash] = pendingRecordEntry{entry: *entry, sct: *sct}
	s.notify("/entries/", EventCreated)
	return true, sct.Timestamp, nil
}

func (s *MemoryStore) GetPendingEntries(ctx context.Context, limit int) ([]*ctlog.PendingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ctlog.PendingEntry, 0, len(s.pending))
	for h, p := range s.pending {
		out = append(out, &ctlog.PendingEntry{
			LeafHash:  h,
			Entry:     p.entry,
			SCT:       p.sct,
			Timestamp: p.sct.Timestamp,
		})
	}
	sortPendingByTimestampThenHash(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) AssignSequenceNumber(ctx context.Context, leafHash [32]byte, seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existingSeq, ok := s.seqByHash[leafHash]; ok {
		if existingSeq != seq {
			return ctlogerr.New(ctlogerr.Conflict, "leaf hash already has an assigned sequence")
		}
		return nil
	}
	if _, ok := s.hashBySeq[seq]; ok {
		return ctlogerr.New(ctlogerr.Conflict, "sequence number already assigned")
	}
	s.seqByHash[leafHash] = seq
	s.hashBySeq[seq] = leafHash
	return nil
}

func (s *MemoryStore) GetSequenceForHash(ctx context.Context, leafHash [32]byte) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.seqByHash[leafHash]
	return seq, ok, nil
}

func (s *MemoryStore) NextAvailableSequenceNumber(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.nextSeq
	s.nextSeq++
	return next, nil
}

func (s *MemoryStore) DeletePending(ctx context.Context, leafHash [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, leafHash)
	s.notify("/entries/", EventDeleted)
	return nil
}

func (s *MemoryStore) SetClusterNodeState(ctx context.Context, state *ctlog.NodeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *state
	s.nodeStates[state.NodeID] = &cp
	s.notify("/nodes/", EventModified)
	return nil
}

func (s *MemoryStore) GetClusterNodeStates(ctx context.Context) ([]*ctlog.NodeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ctlog.NodeState, 0, len(s.nodeStates))
	for _, st := range s.nodeStates {
		cp := *st
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) SetSTH(ctx context.Context, sth *ctlog.STH) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sth != nil {
		if sth.TreeSize < s.sth.TreeSize {
			return ctlogerr.New(ctlogerr.Conflict, "tree size must not regress")
		}
		if sth.TreeSize == s.sth.TreeSize && !bytes.Equal(sth.RootHash[:], s.sth.RootHash[:]) {
			return ctlogerr.New(ctlogerr.Fatal, "two STHs at the same tree size disagree on root hash")
		}
	}
	cp := *sth
	s.sth = &cp
	s.notify("/sth", EventModified)
	return nil
}

func (s *MemoryStore) GetSTH(ctx context.Context) (*ctlog.STH, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sth == nil {
		return nil, nil
	}
	cp := *s.sth
	return &cp, nil
}

func (s *MemoryStore) SetServingSTH(ctx context.Context, sth *ctlog.STH) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.servingSTH != nil {
		if sth.TreeSize < s.servingSTH.TreeSize {
			return ctlogerr.New(ctlogerr.Conflict, "serving tree size must not regress")
		}
		if sth.TreeSize == s.servingSTH.TreeSize && !bytes.Equal(sth.RootHash[:], s.servingSTH.RootHash[:]) {
			return ctlogerr.New(ctlogerr.Fatal, "two serving STHs at the same tree size disagree on root hash")
		}
	}
	cp := *sth
	s.servingSTH = &cp
	s.notify("/serving_sth", EventModified)
	return nil
}

func (s *MemoryStore) GetServingSTH(ctx context.Context) (*ctlog.STH, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.servingSTH == nil {
		return nil, nil
	}
	cp := *s.servingSTH
	return &cp, nil
}

func (s *MemoryStore) Watch(ctx context.Context, prefix string) (<-chan Event, error) {
	ch := make(chan Event, 16)
	s.mu.Lock()
	s.watchers[prefix] = append(s.watchers[prefix], ch)
	s.mu.Unlock()
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		chans := s.watchers[prefix]
		for i, c := range chans {
			if c == ch {
				s.watchers[prefix] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

// notify must be called with s.mu held.
func (s *MemoryStore) notify(prefix string, t EventType) {
	for watchedPrefix, chans := range s.watchers {
		if !hasPrefix(prefix, watchedPrefix) {
			continue
		}
		for _, ch := range chans {
			select {
			case ch <- Event{Type: t, Key: prefix}:
			default:
			}
		}
	}
}

func hasPrefix(key, prefix string) bool {
	return len(key) >= len(prefix) && key[:len(prefix)] == prefix
}
