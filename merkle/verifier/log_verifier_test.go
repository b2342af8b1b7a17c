package verifier

import (
	"testing"

	"github.com/yungchin/certificate-transparency/merkle/rfc6962"
	"github.com/yungchin/certificate-transparency/merkle/tree"
)

func TestVerifyInclusionProofRejectsWrongRoot(t *testing.T) {
	tr := tree.New(rfc6962.New())
	for i := 0; i < 4; i++ {
		tr.AppendLeaf([]byte{byte(i)})
	}
	proof, err := tr.InclusionProof(1, 4)
	if err != nil {
		t.Fatal(err)
	}
	v := New(rfc6962.New())
	badRoot := make([]byte, 32)
	err = v.VerifyInclusionProof(1, 4, proof, badRoot, []byte{1})
	if err == nil {
		t.Fatal("VerifyInclusionProof with wrong root: want error, got nil")
	}
	if _, ok := err.(RootMismatchError); !ok {
		t.Errorf("error type = %T, want RootMismatchError", err)
	}
}

func TestVerifyInclusionProofRejectsOutOfRangeLeaf(t *testing.T) {
	v := New(rfc6962.New())
	if _, err := v.RootFromInclusionProof(5, 4, nil, []byte("x")); err == nil {
		t.Error("RootFromInclusionProof with leafIndex >= treeSize: want error, got nil")
	}
}

func TestVerifyConsistencyProofEqualSnapshotsRequireEmptyProof(t *testing.T) {
	v := New(rfc6962.New())
	root := make([]byte, 32)
	if err := v.VerifyConsistencyProof(3, 3, root, root, [][]byte{{1}}); err == nil {
		t.Error("VerifyConsistencyProof(3,3) with non-empty proof: want error, got nil")
	}
	if err := v.VerifyConsistencyProof(3, 3, root, root, nil); err != nil {
		t.Errorf("VerifyConsistencyProof(3,3) with matching roots: %v", err)
	}
}
