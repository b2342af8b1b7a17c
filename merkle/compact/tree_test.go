package compact

import (
	"bytes"
	"testing"

	"github.com/yungchin/certificate-transparency/merkle/rfc6962"
	"github.com/yungchin/certificate-transparency/merkle/tree"
)

// TestMatchesDenseTree checks that the compact tree's streaming root
// recomputation agrees with the dense Merkle Tree Engine at every
// prefix size, since both must implement the same RFC 6962 MTH.
func TestMatchesDenseTree(t *testing.T) {
	ct := NewTree(rfc6962.New())
	dt := tree.New(rfc6962.New())

	for i := 0; i < 37; i++ {
		leaf := []byte{byte(i)}
		if err := ct.AppendLeaf(leaf); err != nil {
			t.Fatalf("AppendLeaf(%d): %v", i, err)
		}
		dt.AppendLeaf(leaf)

		wantRoot, err := dt.RootAtSize(dt.Size())
		if err != nil {
			t.Fatalf("dense RootAtSize(%d): %v", dt.Size(), err)
		}
		if gotRoot := ct.CurrentRoot(); !bytes.Equal(gotRoot, wantRoot) {
			t.Errorf("at size %d: compact root = %x, dense root = %x", ct.Size(), gotRoot, wantRoot)
		}
	}
}

func TestEmptyTreeRoot(t *testing.T) {
	ct := NewTree(rfc6962.New())
	if ct.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", ct.Size())
	}
	empty := rfc6962.New().HashEmpty()
	if got := ct.CurrentRoot(); !bytes.Equal(got, empty) {
		t.Errorf("empty tree root = %x, want %x", got, empty)
	}
}

func TestNewTreeWithStateRejectsMismatch(t *testing.T) {
	ct := NewTree(rfc6962.New())
	for i := 0; i < 5; i++ {
		ct.AppendLeaf([]byte{byte(i)})
	}
	badRoot := make([]byte, 32)
	if _, err := NewTreeWithState(rfc6962.New(), ct.Size(), ct.Hashes(), badRoot); err == nil {
		t.Error("NewTreeWithState with wrong expected root: want error, got nil")
	}
	goodRoot := ct.CurrentRoot()
	restored, err := NewTreeWithState(rfc6962.New(), ct.Size(), ct.Hashes(), goodRoot)
	if err != nil {
		t.Fatalf("NewTreeWithState with correct root: %v", err)
	}
	if !bytes.Equal(restored.CurrentRoot(), goodRoot) {
		t.Errorf("restored root = %x, want %x", restored.CurrentRoot(), goodRoot)
	}
}
