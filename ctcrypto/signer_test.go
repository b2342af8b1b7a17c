package ctcrypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"testing"
)

func newTestKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return key
}

func newTestRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return key
}

func TestSignAndVerifySTH(t *testing.T) {
	key := newTestKey(t)
	var logID [32]byte
	s := NewSigner(logID, key)

	var root [32]byte
	root[0] = 0xAB
	sth, err := s.SignSTH(42, 1234567890, root)
	if err != nil {
		t.Fatalf("SignSTH: %v", err)
	}
	if sth.TreeSize != 42 || sth.Timestamp != 1234567890 {
		t.Errorf("SignSTH produced STH %+v", sth)
	}
	if err := VerifySTHSignature(&key.PublicKey, sth.TreeSize, sth.Timestamp, sth.RootHash, sth.Signature); err != nil {
		t.Errorf("VerifySTHSignature: %v", err)
	}
}

func TestVerifySTHSignatureRejectsTamperedRoot(t *testing.T) {
	key := newTestKey(t)
	var logID [32]byte
	s := NewSigner(logID, key)

	var root [32]byte
	sth, err := s.SignSTH(1, 1, root)
	if err != nil {
		t.Fatal(err)
	}
	tampered := sth.RootHash
	tampered[0] ^= 0xFF
	if err := VerifySTHSignature(&key.PublicKey, sth.TreeSize, sth.Timestamp, tampered, sth.Signature); err == nil {
		t.Error("VerifySTHSignature with tampered root: want error, got nil")
	}
}

func TestSignAndVerifySTHWithRSAKey(t *testing.T) {
	key := newTestRSAKey(t)
	var logID [32]byte
	s := NewSigner(logID, key)

	var root [32]byte
	root[0] = 0xCD
	sth, err := s.SignSTH(7, 999, root)
	if err != nil {
		t.Fatalf("SignSTH: %v", err)
	}
	if err := VerifySTHSignature(&key.PublicKey, sth.TreeSize, sth.Timestamp, sth.RootHash, sth.Signature); err != nil {
		t.Errorf("VerifySTHSignature with RSA key: %v", err)
	}
}

func TestSignSCT(t *testing.T) {
	key := newTestKey(t)
	var logID [32]byte
	logID[0] = 1
	s := NewSigner(logID, key)

	sct, err := s.SignSCT(0, []byte("leaf-input"), nil, 555)
	if err != nil {
		t.Fatalf("SignSCT: %v", err)
	}
	if sct.LogID != logID {
		t.Errorf("SignSCT logID = %x, want %x", sct.LogID, logID)
	}
	if len(sct.Signature) == 0 {
		t.Error("SignSCT produced empty signature")
	}
}
