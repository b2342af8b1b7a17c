package consistentstore

import (
	"context"
	"testing"

	"github.com/yungchin/certificate-transparency/ctlog"
	"github.com/yungchin/certificate-transparency/ctlog/ctlogerr"
)

func TestMemoryStoreAddPendingIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	var leafHash [32]byte
	leafHash[0] = 1
	entry := &ctlog.Entry{LeafInput: []byte("leaf")}

	created, ts, err := s.AddPending(ctx, leafHash, entry, &ctlog.SCT{Timestamp: 100})
	if err != nil {
		t.Fatalf("AddPending: %v", err)
	}
	if !created || ts != 100 {
		t.Fatalf("AddPending first call = (created=%v, ts=%d), want (true, 100)", created, ts)
	}

	created, ts, err = s.AddPending(ctx, leafHash, entry, &ctlog.SCT{Timestamp: 999})
	if err != nil {
		t.Fatalf("AddPending: %v", err)
	}
	if created {
		t.Error("AddPending second call with same leaf hash: created = true, want false")
	}
	if ts != 100 {
		t.Errorf("AddPending second call timestamp = %d, want 100 (the original SCT's, not the new call's)", ts)
	}
}

func TestMemoryStoreSetSTHRejectsRegression(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.SetSTH(ctx, &ctlog.STH{TreeSize: 10}); err != nil {
		t.Fatalf("SetSTH: %v", err)
	}
	err := s.SetSTH(ctx, &ctlog.STH{TreeSize: 5})
	if !ctlogerr.Is(err, ctlogerr.Conflict) {
		t.Errorf("SetSTH with smaller tree size: err = %v, want Conflict", err)
	}
}

func TestMemoryStoreSetSTHFatalsOnRootDisagreementAtEqualSize(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	var root1, root2 [32]byte
	root1[0] = 0xAA
	root2[0] = 0xBB

	if err := s.SetSTH(ctx, &ctlog.STH{TreeSize: 10, RootHash: root1}); err != nil {
		t.Fatalf("SetSTH: %v", err)
	}
	err := s.SetSTH(ctx, &ctlog.STH{TreeSize: 10, RootHash: root2})
	if !ctlogerr.Is(err, ctlogerr.Fatal) {
		t.Errorf("SetSTH with disagreeing root at equal tree size: err = %v, want Fatal", err)
	}

	// Same size, same root: not a disagreement, must not fault.
	if err := s.SetSTH(ctx, &ctlog.STH{TreeSize: 10, RootHash: root1}); err != nil {
		t.Errorf("SetSTH repeating the same (size, root): %v", err)
	}
}

func TestMemoryStoreAssignSequenceNumberConflictAndAdoption(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	var h1, h2 [32]byte
	h1[0] = 1
	h2[0] = 2

	if err := s.AssignSequenceNumber(ctx, h1, 10); err != nil {
		t.Fatalf("AssignSequenceNumber(h1, 10): %v", err)
	}
	// Re-asserting the same hash/seq pair is not a conflict.
	if err := s.AssignSequenceNumber(ctx, h1, 10); err != nil {
		t.Errorf("AssignSequenceNumber(h1, 10) repeated: %v", err)
	}
	// A different seq for the same hash is a conflict.
	if err := s.AssignSequenceNumber(ctx, h1, 11); !ctlogerr.Is(err, ctlogerr.Conflict) {
		t.Errorf("AssignSequenceNumber(h1, 11): err = %v, want Conflict", err)
	}
	// The same seq for a different hash is a conflict.
	if err := s.AssignSequenceNumber(ctx, h2, 10); !ctlogerr.Is(err, ctlogerr.Conflict) {
		t.Errorf("AssignSequenceNumber(h2, 10): err = %v, want Conflict", err)
	}

	seq, found, err := s.GetSequenceForHash(ctx, h1)
	if err != nil || !found || seq != 10 {
		t.Errorf("GetSequenceForHash(h1) = (%d, %v, %v), want (10, true, nil)", seq, found, err)
	}
	if _, found, err := s.GetSequenceForHash(ctx, h2); err != nil || found {
		t.Errorf("GetSequenceForHash(h2) = (_, %v, %v), want found=false", found, err)
	}
}

func TestMemoryStoreGetPendingEntriesOrdersByTimestampThenHash(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	var hA, hB [32]byte
	hA[0] = 0xAA
	hB[0] = 0xBB

	if _, _, err := s.AddPending(ctx, hB, &ctlog.Entry{}, &ctlog.SCT{Timestamp: 5}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.AddPending(ctx, hA, &ctlog.Entry{}, &ctlog.SCT{Timestamp: 5}); err != nil {
		t.Fatal(err)
	}

	out, err := s.GetPendingEntries(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingEntries: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("GetPendingEntries returned %d entries, want 2", len(out))
	}
	if out[0].LeafHash != hA || out[1].LeafHash != hB {
		t.Errorf("GetPendingEntries order = [%x, %x], want hash-ascending tiebreak [%x, %x]", out[0].LeafHash, out[1].LeafHash, hA, hB)
	}
}
