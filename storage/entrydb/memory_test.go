package entrydb

import (
	"context"
	"testing"

	"github.com/yungchin/certificate-transparency/ctlog"
	"github.com/yungchin/certificate-transparency/ctlog/ctlogerr"
)

func TestAssignSequenceDenseAndGapFree(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()

	var hashes [][32]byte
	for i := 0; i < 5; i++ {
		var h [32]byte
		h[0] = byte(i)
		hashes = append(hashes, h)
		if err := db.PutPending(ctx, h, &ctlog.Entry{LeafInput: []byte{byte(i)}}); err != nil {
			t.Fatalf("PutPending(%d): %v", i, err)
		}
	}

	// Assign out of order; latest_contiguous_sequence must only ever
	// reflect a gap-free prefix.
	order := []int{2, 0, 1, 4, 3}
	wantContiguous := []uint64{0, 1, 3, 3, 5}
	for step, i := range order {
		if err := db.AssignSequence(ctx, hashes[i], uint64(i)); err != nil {
			t.Fatalf("AssignSequence(%d): %v", i, err)
		}
		contiguous, err := db.LatestContiguousSequence(ctx)
		if err != nil {
			t.Fatal(err)
		}
		t.Logf("after assigning seq %d: contiguous=%d", i, contiguous)
		if contiguous != wantContiguous[step] {
			t.Errorf("after assigning seq %d: contiguous = %d, want %d", i, contiguous, wantContiguous[step])
		}
	}

	contiguous, err := db.LatestContiguousSequence(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if contiguous != 5 {
		t.Errorf("LatestContiguousSequence() = %d, want 5", contiguous)
	}
}

func TestAssignSequenceConflict(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()

	var h1, h2 [32]byte
	h1[0], h2[0] = 1, 2
	db.PutPending(ctx, h1, &ctlog.Entry{LeafInput: []byte("a")})
	db.PutPending(ctx, h2, &ctlog.Entry{LeafInput: []byte("b")})

	if err := db.AssignSequence(ctx, h1, 0); err != nil {
		t.Fatalf("AssignSequence(h1, 0): %v", err)
	}
	if err := db.AssignSequence(ctx, h2, 0); !ctlogerr.Is(err, ctlogerr.Conflict) {
		t.Errorf("AssignSequence(h2, 0) after h1 took seq 0: got %v, want Conflict", err)
	}
}

func TestLookupByHashStable(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	var h [32]byte
	h[0] = 7
	db.PutPending(ctx, h, &ctlog.Entry{LeafInput: []byte("x")})
	if err := db.AssignSequence(ctx, h, 3); err != nil {
		t.Fatal(err)
	}
	// Re-assigning the same (hash, seq) pair must be idempotent.
	if err := db.AssignSequence(ctx, h, 3); err != nil {
		t.Errorf("repeated AssignSequence with same seq: %v", err)
	}
	seq, err := db.LookupByHash(ctx, h)
	if err != nil {
		t.Fatal(err)
	}
	if seq != 3 {
		t.Errorf("LookupByHash = %d, want 3", seq)
	}
}

func TestStoreTreeHeadRejectsRegression(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	if err := db.StoreTreeHead(ctx, &ctlog.STH{TreeSize: 10}); err != nil {
		t.Fatal(err)
	}
	if err := db.StoreTreeHead(ctx, &ctlog.STH{TreeSize: 5}); err == nil {
		t.Error("StoreTreeHead with smaller tree_size: want error, got nil")
	}
}
