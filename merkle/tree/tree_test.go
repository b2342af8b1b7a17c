package tree

import (
	"encoding/hex"
	"testing"

	"github.com/yungchin/certificate-transparency/merkle/rfc6962"
	"github.com/yungchin/certificate-transparency/merkle/verifier"
)

func mustDecode(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("hex.DecodeString(%q): %v", s, err)
	}
	return b
}

func TestEmptyTreeRoot(t *testing.T) {
	tr := New(rfc6962.New())
	root, err := tr.RootAtSize(0)
	if err != nil {
		t.Fatalf("RootAtSize(0): %v", err)
	}
	want := mustDecode(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
	if got := hex.EncodeToString(root); got != hex.EncodeToString(want) {
		t.Errorf("empty tree root = %s, want %s", got, hex.EncodeToString(want))
	}
}

func TestSingleLeafRoot(t *testing.T) {
	tr := New(rfc6962.New())
	tr.AppendLeaf([]byte("a"))
	root, err := tr.RootAtSize(1)
	if err != nil {
		t.Fatalf("RootAtSize(1): %v", err)
	}
	want := mustDecode(t, "022a6979e6dab7aa5ae4c3e5e45f7e977112a7e63593820dbec1ec738a24f93c")
	if hex.EncodeToString(root) != hex.EncodeToString(want) {
		t.Errorf("root_at(1) = %x, want %x", root, want)
	}
	proof, err := tr.InclusionProof(0, 1)
	if err != nil {
		t.Fatalf("InclusionProof(0,1): %v", err)
	}
	if len(proof) != 0 {
		t.Errorf("InclusionProof(0,1) = %v, want empty", proof)
	}
}

func TestConsistencyProofTwoLeaves(t *testing.T) {
	tr := New(rfc6962.New())
	tr.AppendLeaf([]byte("a"))
	tr.AppendLeaf([]byte("b"))

	proof, err := tr.ConsistencyProof(1, 2)
	if err != nil {
		t.Fatalf("ConsistencyProof(1,2): %v", err)
	}
	if len(proof) != 1 {
		t.Fatalf("ConsistencyProof(1,2) has %d components, want 1", len(proof))
	}
	wantSibling := rfc6962.New().HashLeaf([]byte("b"))
	if hex.EncodeToString(proof[0]) != hex.EncodeToString(wantSibling) {
		t.Errorf("proof[0] = %x, want %x", proof[0], wantSibling)
	}

	root1, err := tr.RootAtSize(1)
	if err != nil {
		t.Fatal(err)
	}
	root2, err := tr.RootAtSize(2)
	if err != nil {
		t.Fatal(err)
	}
	v := verifier.New(rfc6962.New())
	if err := v.VerifyConsistencyProof(1, 2, root1, root2, proof); err != nil {
		t.Errorf("VerifyConsistencyProof: %v", err)
	}
}

func TestInclusionProofsVerify(t *testing.T) {
	tr := New(rfc6962.New())
	leaves := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d"), []byte("e")}
	for _, l := range leaves {
		tr.AppendLeaf(l)
	}
	size := tr.Size()
	root, err := tr.RootAtSize(size)
	if err != nil {
		t.Fatal(err)
	}
	v := verifier.New(rfc6962.New())
	for i, l := range leaves {
		proof, err := tr.InclusionProof(int64(i), size)
		if err != nil {
			t.Fatalf("InclusionProof(%d, %d): %v", i, size, err)
		}
		if err := v.VerifyInclusionProof(int64(i), size, proof, root, l); err != nil {
			t.Errorf("leaf %d: VerifyInclusionProof failed: %v", i, err)
		}
	}
}

func TestConsistencyAcrossAllSizes(t *testing.T) {
	tr := New(rfc6962.New())
	var leaves [][]byte
	for i := 0; i < 17; i++ {
		leaves = append(leaves, []byte{byte(i)})
		tr.AppendLeaf(leaves[i])
	}
	v := verifier.New(rfc6962.New())
	for a := int64(0); a <= tr.Size(); a++ {
		for b := a; b <= tr.Size(); b++ {
			rootA, err := tr.RootAtSize(a)
			if err != nil {
				t.Fatal(err)
			}
			rootB, err := tr.RootAtSize(b)
			if err != nil {
				t.Fatal(err)
			}
			proof, err := tr.ConsistencyProof(a, b)
			if err != nil {
				t.Fatalf("ConsistencyProof(%d,%d): %v", a, b, err)
			}
			if err := v.VerifyConsistencyProof(a, b, rootA, rootB, proof); err != nil {
				t.Errorf("VerifyConsistencyProof(%d,%d) failed: %v", a, b, err)
			}
		}
	}
}

func TestInvalidRangeRejected(t *testing.T) {
	tr := New(rfc6962.New())
	for i := 0; i < 3; i++ {
		tr.AppendLeaf([]byte{byte(i)})
	}
	if _, err := tr.ConsistencyProof(3, 1); err == nil {
		t.Error("ConsistencyProof(3,1) with old>new: want error, got nil")
	}
	if _, err := tr.RootAtSize(100); err == nil {
		t.Error("RootAtSize(100) beyond tree size: want error, got nil")
	}
}
