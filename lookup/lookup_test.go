package lookup

import (
	"context"
	"testing"

	"github.com/yungchin/certificate-transparency/ctlog"
	"github.com/yungchin/certificate-transparency/merkle/rfc6962"
	"github.com/yungchin/certificate-transparency/merkle/verifier"
	"github.com/yungchin/certificate-transparency/storage/entrydb"
)

func seedDB(t *testing.T, ctx context.Context, db entrydb.DB, n int) {
	t.Helper()
	hasher := rfc6962.New()
	for i := 0; i < n; i++ {
		leafInput := []byte{byte(i)}
		var h [32]byte
		copy(h[:], hasher.HashLeaf(leafInput))
		if err := db.PutPending(ctx, h, &ctlog.Entry{LeafInput: leafInput}); err != nil {
			t.Fatal(err)
		}
		if err := db.AssignSequence(ctx, h, uint64(i)); err != nil {
			t.Fatal(err)
		}
	}
}

func TestAdvanceAndProofByHash(t *testing.T) {
	ctx := context.Background()
	db := entrydb.NewMemoryDB()
	seedDB(t, ctx, db, 8)

	hasher := rfc6962.New()
	ix := New(hasher, db)
	if err := ix.Advance(ctx, 8); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if ix.Size() != 8 {
		t.Fatalf("Size() = %d, want 8", ix.Size())
	}

	var h3 [32]byte
	copy(h3[:], hasher.HashLeaf([]byte{3}))
	seq, proof, err := ix.GetProofByHash(ctx, h3, 8)
	if err != nil {
		t.Fatalf("GetProofByHash: %v", err)
	}
	if seq != 3 {
		t.Fatalf("GetProofByHash seq = %d, want 3", seq)
	}

	root, err := ix.Root(8)
	if err != nil {
		t.Fatal(err)
	}
	v := verifier.New(hasher)
	if err := v.VerifyInclusionProof(int64(seq), 8, proof, root, []byte{3}); err != nil {
		t.Errorf("VerifyInclusionProof: %v", err)
	}
}

func TestAdvanceIsIncremental(t *testing.T) {
	ctx := context.Background()
	db := entrydb.NewMemoryDB()
	seedDB(t, ctx, db, 10)

	ix := New(rfc6962.New(), db)
	if err := ix.Advance(ctx, 4); err != nil {
		t.Fatal(err)
	}
	if ix.Size() != 4 {
		t.Fatalf("Size() after first Advance = %d, want 4", ix.Size())
	}
	if err := ix.Advance(ctx, 10); err != nil {
		t.Fatal(err)
	}
	if ix.Size() != 10 {
		t.Fatalf("Size() after second Advance = %d, want 10", ix.Size())
	}
}

func TestGetConsistencyAfterAdvance(t *testing.T) {
	ctx := context.Background()
	db := entrydb.NewMemoryDB()
	seedDB(t, ctx, db, 6)

	ix := New(rfc6962.New(), db)
	if err := ix.Advance(ctx, 6); err != nil {
		t.Fatal(err)
	}
	proof, err := ix.GetConsistency(ctx, 2, 6)
	if err != nil {
		t.Fatalf("GetConsistency: %v", err)
	}
	root2, err := ix.Root(2)
	if err != nil {
		t.Fatal(err)
	}
	root6, err := ix.Root(6)
	if err != nil {
		t.Fatal(err)
	}
	v := verifier.New(rfc6962.New())
	if err := v.VerifyConsistencyProof(2, 6, root2, root6, proof); err != nil {
		t.Errorf("VerifyConsistencyProof: %v", err)
	}
}
