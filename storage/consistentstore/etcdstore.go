package consistentstore

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/golang/glog"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/yungchin/certificate-transparency/ctlog"
	"github.com/yungchin/certificate-transparency/ctlog/ctlogerr"
)

// EtcdStore is a Store backed by an etcd cluster. Every read-modify-write
// mutation (AddPending, AssignSequenceNumber, NextAvailableSequenceNumber,
// SetSTH, SetServingSTH) is wrapped in a software transaction
// (concurrency.STM) the way quota/etcd/storage builds its CAS updates:
// read the current value(s) inside the closure, decide, write, and let
// etcd's MVCC detect any interleaving writer and retry the whole closure.
// DeletePending and the node-state writes are plain deletes and puts.
type EtcdStore struct {
	client *clientv3.Client
	logID  string
}

// NewEtcdStore returns a Store namespacing all keys under the given
// logID.
func NewEtcdStore(client *clientv3.Client, logID string) *EtcdStore {
	return &EtcdStore{client: client, logID: logID}
}

func (s *EtcdStore) base() string {
	return fmt.Sprintf("/ct/%s", s.logID)
}

func (s *EtcdStore) pendingKey(leafHash [32]byte) string {
	return fmt.Sprintf("%s/entries/%s", s.base(), hex.EncodeToString(leafHash[:]))
}

func (s *EtcdStore) seqByHashKey(leafHash [32]byte) string {
	return fmt.Sprintf("%s/sequence_mapping/by_hash/%s", s.base(), hex.EncodeToString(leafHash[:]))
}

func (s *EtcdStore) seqKey(seq uint64) string {
	return fmt.Sprintf("%s/sequence_mapping/by_seq/%020d", s.base(), seq)
}

func (s *EtcdStore) nextSeqKey() string {
	return fmt.Sprintf("%s/sequence_mapping/next", s.base())
}

func (s *EtcdStore) nodeKey(nodeID string) string {
	return fmt.Sprintf("%s/nodes/%s", s.base(), nodeID)
}

func (s *EtcdStore) sthKey() string {
	return fmt.Sprintf("%s/sth", s.base())
}

func (s *EtcdStore) servingSTHKey() string {
	return fmt.Sprintf("%s/serving_sth", s.base())
}

func (s *EtcdStore) pendingPrefix() string {
	return fmt.Sprintf("%s/entries/", s.base())
}

func (s *EtcdStore) nodesPrefix() string {
	return fmt.Sprintf("%s/nodes/", s.base())
}

// doSTM runs apply as a serializable software transaction, retrying on
// conflicting concurrent writers.
func (s *EtcdStore) doSTM(ctx context.Context, apply func(concurrency.STM) error) error {
	_, err := concurrency.NewSTM(s.client, apply, concurrency.WithAbortContext(ctx))
	if err != nil {
		if _, ok := err.(*ctlogerr.Error); ok {
			// Returned by apply itself (e.g. a Conflict); keep its kind.
			return err
		}
		return ctlogerr.Wrap(ctlogerr.Transient, "consistent store transaction failed", err)
	}
	return nil
}

func (s *EtcdStore) AddPending(ctx context.Context, leafHash [32]byte, entry *ctlog.Entry, sct *ctlog.SCT) (bool, uint64, error) {
	var created bool
	var existingTimestamp uint64
	key := s.pendingKey(leafHash)
	err := s.doSTM(ctx, func(stm concurrency.STM) error {
		if v := stm.Get(key); v != "" {
			existing, err := unmarshalPendingRecord([]byte(v))
			if err != nil {
				return err
			}
			created = false
			existingTimestamp = existing.timestamp
			return nil
		}
		rec := &pendingRecord{
			leafInput: entry.LeafInput,
			extraData: entry.ExtraData,
			timestamp: sct.Timestamp,
			entryType: uint64(entry.Type),
			sctSig:    sct.Signature,
			sctExt:    sct.Extensions,
		}
		stm.Put(key, string(rec.marshal()))
		created = true
		existingTimestamp = sct.Timestamp
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return created, existingTimestamp, nil
}

func (s *EtcdStore) GetPendingEntries(ctx context.Context, limit int) ([]*ctlog.PendingEntry, error) {
	resp, err := s.client.Get(ctx, s.pendingPrefix(), clientv3.WithPrefix())
	if err != nil {
		return nil, ctlogerr.Wrap(ctlogerr.Transient, "get pending entries", err)
	}
	out := make([]*ctlog.PendingEntry, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		hashHex := string(kv.Key[len(s.pendingPrefix()):])
		hashBytes, err := hex.DecodeString(hashHex)
		if err != nil || len(hashBytes) != 32 {
			glog.Warningf("consistentstore: skipping malformed pending key %q", kv.Key)
			continue
		}
		rec, err := unmarshalPendingRecord(kv.Value)
		if err != nil {
			glog.Warningf("consistentstore: skipping malformed pending record at %q: %v", kv.Key, err)
			continue
		}
		var leafHash [32]byte
		copy(leafHash[:], hashBytes)
		pe := &ctlog.PendingEntry{
			LeafHash: leafHash,
			Entry: ctlog.Entry{
				LeafInput: rec.leafInput,
				ExtraData: rec.extraData,
				Timestamp: rec.timestamp,
				Type:      ctlog.EntryType(rec.entryType),
			},
			SCT: ctlog.SCT{
				Timestamp:  rec.timestamp,
				Extensions: rec.sctExt,
				Signature:  rec.sctSig,
			},
			Timestamp: rec.timestamp,
		}
		out = append(out, pe)
	}
	sortPendingByTimestampThenHash(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortPendingByTimestampThenHash(entries []*ctlog.PendingEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0; j-- {
			a, b := entries[j-1], entries[j]
			if a.Timestamp < b.Timestamp || (a.Timestamp == b.Timestamp && bytes.Compare(a.LeafHash[:], b.LeafHash[:]) <= 0) {
				break
			}
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}

func (s *EtcdStore) AssignSequenceNumber(ctx context.Context, leafHash [32]byte, seq uint64) error {
	hashKey := s.seqByHashKey(leafHash)
	seqKey := s.seqKey(seq)
	return s.doSTM(ctx, func(stm concurrency.STM) error {
		if v := stm.Get(hashKey); v != "" {
			if v == fmt.Sprintf("%d", seq) {
				return nil
			}
			return ctlogerr.New(ctlogerr.Conflict, "leaf hash already has an assigned sequence")
		}
		if v := stm.Get(seqKey); v != "" {
			return ctlogerr.New(ctlogerr.Conflict, "sequence number already assigned")
		}
		stm.Put(hashKey, fmt.Sprintf("%d", seq))
		stm.Put(seqKey, hex.EncodeToString(leafHash[:]))
		return nil
	})
}

// GetSequenceForHash returns the sequence number already recorded for
// leafHash under /sequence_mapping, if any.
func (s *EtcdStore) GetSequenceForHash(ctx context.Context, leafHash [32]byte) (uint64, bool, error) {
	resp, err := s.client.Get(ctx, s.seqByHashKey(leafHash))
	if err != nil {
		return 0, false, ctlogerr.Wrap(ctlogerr.Transient, "get sequence for hash", err)
	}
	if len(resp.Kvs) == 0 {
		return 0, false, nil
	}
	var seq uint64
	if _, err := fmt.Sscanf(string(resp.Kvs[0].Value), "%d", &seq); err != nil {
		return 0, false, ctlogerr.Wrap(ctlogerr.Fatal, "parse sequence for hash", err)
	}
	return seq, true, nil
}

func (s *EtcdStore) NextAvailableSequenceNumber(ctx context.Context) (uint64, error) {
	var next uint64
	key := s.nextSeqKey()
	err := s.doSTM(ctx, func(stm concurrency.STM) error {
		cur := uint64(0)
		if v := stm.Get(key); v != "" {
			if _, err := fmt.Sscanf(v, "%d", &cur); err != nil {
				return ctlogerr.Wrap(ctlogerr.Fatal, "parse next sequence counter", err)
			}
		}
		next = cur
		stm.Put(key, fmt.Sprintf("%d", cur+1))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *EtcdStore) DeletePending(ctx context.Context, leafHash [32]byte) error {
	_, err := s.client.Delete(ctx, s.pendingKey(leafHash))
	if err != nil {
		return ctlogerr.Wrap(ctlogerr.Transient, "delete pending entry", err)
	}
	return nil
}

func (s *EtcdStore) SetClusterNodeState(ctx context.Context, state *ctlog.NodeState) error {
	rec := &nodeStateRecord{
		nodeID:             state.NodeID,
		contiguousTreeSize: state.ContiguousTreeSize,
		updatedAt:          state.UpdatedAt,
	}
	if state.NewestSTH != nil {
		rec.newestSTH = &sthRecord{
			treeSize:  state.NewestSTH.TreeSize,
			timestamp: state.NewestSTH.Timestamp,
			rootHash:  state.NewestSTH.RootHash[:],
			signature: state.NewestSTH.Signature,
		}
	}
	_, err := s.client.Put(ctx, s.nodeKey(state.NodeID), string(rec.marshal()))
	if err != nil {
		return ctlogerr.Wrap(ctlogerr.Transient, "publish node state", err)
	}
	return nil
}

// SetClusterNodeStateWithLease is like SetClusterNodeState but attaches
// lease, so the key expires automatically if this node stops
// heartbeating — the mechanism by which a crashed node drops out of
// quorum computation without manual cleanup.
func (s *EtcdStore) SetClusterNodeStateWithLease(ctx context.Context, state *ctlog.NodeState, lease clientv3.LeaseID) error {
	rec := &nodeStateRecord{
		nodeID:             state.NodeID,
		contiguousTreeSize: state.ContiguousTreeSize,
		updatedAt:          state.UpdatedAt,
	}
	if state.NewestSTH != nil {
		rec.newestSTH = &sthRecord{
			treeSize:  state.NewestSTH.TreeSize,
			timestamp: state.NewestSTH.Timestamp,
			rootHash:  state.NewestSTH.RootHash[:],
			signature: state.NewestSTH.Signature,
		}
	}
	_, err := s.client.Put(ctx, s.nodeKey(state.NodeID), string(rec.marshal()), clientv3.WithLease(lease))
	if err != nil {
		return ctlogerr.Wrap(ctlogerr.Transient, "publish node state", err)
	}
	return nil
}

func (s *EtcdStore) GetClusterNodeStates(ctx context.Context) ([]*ctlog.NodeState, error) {
	resp, err := s.client.Get(ctx, s.nodesPrefix(), clientv3.WithPrefix())
	if err != nil {
		return nil, ctlogerr.Wrap(ctlogerr.Transient, "get cluster node states", err)
	}
	out := make([]*ctlog.NodeState, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		rec, err := unmarshalNodeStateRecord(kv.Value)
		if err != nil {
			glog.Warningf("consistentstore: skipping malformed node state at %q: %v", kv.Key, err)
			continue
		}
		ns := &ctlog.NodeState{
			NodeID:             rec.nodeID,
			ContiguousTreeSize: rec.contiguousTreeSize,
			UpdatedAt:          rec.updatedAt,
		}
		if rec.newestSTH != nil {
			ns.NewestSTH = sthFromRecord(rec.newestSTH)
		}
		out = append(out, ns)
	}
	return out, nil
}

func sthFromRecord(rec *sthRecord) *ctlog.STH {
	sth := &ctlog.STH{TreeSize: rec.treeSize, Timestamp: rec.timestamp, Signature: rec.signature}
	copy(sth.RootHash[:], rec.rootHash)
	return sth
}

func (s *EtcdStore) putSTH(ctx context.Context, key string, sth *ctlog.STH, enforceMonotonic bool) error {
	rec := &sthRecord{
		treeSize:  sth.TreeSize,
		timestamp: sth.Timestamp,
		rootHash:  sth.RootHash[:],
		signature: sth.Signature,
	}
	return s.doSTM(ctx, func(stm concurrency.STM) error {
		if v := stm.Get(key); v != "" && enforceMonotonic {
			existing, err := unmarshalSTHRecord([]byte(v))
			if err != nil {
				return err
			}
			if sth.TreeSize < existing.treeSize {
				return ctlogerr.New(ctlogerr.Conflict, "tree size must not regress")
			}
			if sth.TreeSize == existing.treeSize && !bytes.Equal(sth.RootHash[:], existing.rootHash) {
				return ctlogerr.New(ctlogerr.Fatal, "two STHs at the same tree size disagree on root hash")
			}
		}
		stm.Put(key, string(rec.marshal()))
		return nil
	})
}

func (s *EtcdStore) SetSTH(ctx context.Context, sth *ctlog.STH) error {
	return s.putSTH(ctx, s.sthKey(), sth, true)
}

func (s *EtcdStore) GetSTH(ctx context.Context) (*ctlog.STH, error) {
	return s.getSTH(ctx, s.sthKey())
}

func (s *EtcdStore) SetServingSTH(ctx context.Context, sth *ctlog.STH) error {
	return s.putSTH(ctx, s.servingSTHKey(), sth, true)
}

func (s *EtcdStore) GetServingSTH(ctx context.Context) (*ctlog.STH, error) {
	return s.getSTH(ctx, s.servingSTHKey())
}

func (s *EtcdStore) getSTH(ctx context.Context, key string) (*ctlog.STH, error) {
	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return nil, ctlogerr.Wrap(ctlogerr.Transient, "get sth", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}
	rec, err := unmarshalSTHRecord(resp.Kvs[0].Value)
	if err != nil {
		return nil, ctlogerr.Wrap(ctlogerr.Fatal, "unmarshal sth record", err)
	}
	return sthFromRecord(rec), nil
}

func (s *EtcdStore) Watch(ctx context.Context, prefix string) (<-chan Event, error) {
	out := make(chan Event)
	wch := s.client.Watch(ctx, fmt.Sprintf("%s%s", s.base(), prefix), clientv3.WithPrefix())
	go func() {
		defer close(out)
		for resp := range wch {
			for _, ev := range resp.Events {
				var t EventType
				switch {
				case ev.IsCreate():
					t = EventCreated
				case ev.Type.String() == "DELETE":
					t = EventDeleted
				default:
					t = EventModified
				}
				select {
				case out <- Event{Type: t, Key: string(ev.Kv.Key)}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
