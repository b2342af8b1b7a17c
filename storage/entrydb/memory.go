package entrydb

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"
	"github.com/yungchin/certificate-transparency/ctlog"
	"github.com/yungchin/certificate-transparency/ctlog/ctlogerr"
)

// MemoryDB is an in-memory Entry Database backed by two B-trees, the
// way storage/memory indexes leaves in the teacher repo. It exists for
// tests and single-process deployments; it holds nothing durably across
// restarts.
type MemoryDB struct {
	mu sync.Mutex

	pending map[[32]byte]*ctlog.Entry

	bySeq  *btree.BTree // of seqItem
	byHash *btree.BTree // of hashItem

	contiguous uint64
	sth        *ctlog.STH
}

// NewMemoryDB returns an empty MemoryDB.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		pending: make(map[[32]byte]*ctlog.Entry),
		bySeq:   btree.New(32),
		byHash:  btree.New(32),
	}
}

type seqItem struct {
	seq   uint64
	entry *ctlog.Entry
}

func (a seqItem) Less(than btree.Item) bool {
	return a.seq < than.(seqItem).seq
}

type hashItem struct {
	hash [32]byte
	seq  uint64
}

func (a hashItem) Less(than btree.Item) bool {
	b := than.(hashItem)
	return bytes.Compare(a.hash[:], b.hash[:]) < 0
}

func (db *MemoryDB) PutPending(ctx context.Context, leafHash [32]byte, entry *ctlog.Entry) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.pending[leafHash]; ok {
		return nil
	}
	if db.byHash.Has(hashItem{hash: leafHash}) {
		return nil
	}
	db.pending[leafHash] = entry
	return nil
}

func (db *MemoryDB) AssignSequence(ctx context.Context, leafHash [32]byte, seq uint64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if existing := db.byHash.Get(hashItem{hash: leafHash}); existing != nil {
		if existing.(hashItem).seq != seq {
			return ctlogerr.New(ctlogerr.Conflict, "leaf hash already assigned a different sequence")
		}
		return nil
	}
	if db.bySeq.Has(seqItem{seq: seq}) {
		return ctlogerr.New(ctlogerr.Conflict, "sequence already assigned to a different leaf hash")
	}
	entry, ok := db.pending[leafHash]
	if !ok {
		return ctlogerr.New(ctlogerr.Validation, "no pending entry staged for leaf hash")
	}
	db.bySeq.ReplaceOrInsert(seqItem{seq: seq, entry: entry})
	db.byHash.ReplaceOrInsert(hashItem{hash: leafHash, seq: seq})
	delete(db.pending, leafHash)

	for db.bySeq.Has(seqItem{seq: db.contiguous}) {
		db.contiguous++
	}
	return nil
}

func (db *MemoryDB) LookupByHash(ctx context.Context, leafHash [32]byte) (uint64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	item := db.byHash.Get(hashItem{hash: leafHash})
	if item == nil {
		return 0, ctlogerr.New(ctlogerr.Validation, "leaf hash not found")
	}
	return item.(hashItem).seq, nil
}

func (db *MemoryDB) Read(ctx context.Context, seq uint64) (*ctlog.Entry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	item := db.bySeq.Get(seqItem{seq: seq})
	if item == nil {
		return nil, ctlogerr.New(ctlogerr.Validation, "sequence not found")
	}
	return item.(seqItem).entry, nil
}

func (db *MemoryDB) LatestContiguousSequence(ctx context.Context) (uint64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.contiguous, nil
}

func (db *MemoryDB) LatestTreeHead(ctx context.Context) (*ctlog.STH, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.sth, nil
}

func (db *MemoryDB) StoreTreeHead(ctx context.Context, sth *ctlog.STH) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.sth != nil && sth.TreeSize < db.sth.TreeSize {
		return ctlogerr.New(ctlogerr.Validation, "tree head size must not regress")
	}
	db.sth = sth
	return nil
}
