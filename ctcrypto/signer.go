package ctcrypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"

	"github.com/yungchin/certificate-transparency/ctlog"
	"github.com/yungchin/certificate-transparency/ctlog/ctlogerr"
)

// Signer produces signed tree heads and signed certificate timestamps.
// It wraps an opaque crypto.Signer supplied by the caller; key loading
// and format are entirely the caller's concern.
type Signer struct {
	logID  [32]byte
	signer crypto.Signer
}

// NewSigner returns a Signer that signs with key, identifying itself
// under logID (the SHA-256 hash of the log's public key, per RFC 6962).
func NewSigner(logID [32]byte, key crypto.Signer) *Signer {
	return &Signer{logID: logID, signer: key}
}

// LogID returns the log identifier this signer signs under.
func (s *Signer) LogID() [32]byte {
	return s.logID
}

func (s *Signer) sign(digest []byte) ([]byte, error) {
	// crypto.SHA256 here is the SignerOpts hash tag, not a re-hash: it
	// tells rsa.Sign(PKCS1v15) which ASN.1 DigestInfo prefix to embed so
	// it lines up with VerifyPKCS1v15(..., crypto.SHA256, ...) below.
	// ecdsa.Sign ignores the tag and is unaffected either way.
	return s.signer.Sign(rand.Reader, digest, crypto.SHA256)
}

// SignSTH signs a new tree head for (treeSize, timestamp, rootHash).
func (s *Signer) SignSTH(treeSize, timestamp uint64, rootHash [32]byte) (*ctlog.STH, error) {
	input, err := sthSignatureInput(treeSize, timestamp, rootHash)
	if err != nil {
		return nil, ctlogerr.Wrap(ctlogerr.Fatal, "marshal STH signature input", err)
	}
	sig, err := s.sign(hashForSigning(input))
	if err != nil {
		return nil, ctlogerr.Wrap(ctlogerr.Fatal, "sign STH", err)
	}
	return &ctlog.STH{
		TreeSize:  treeSize,
		Timestamp: timestamp,
		RootHash:  rootHash,
		Signature: sig,
	}, nil
}

// SignSCT issues a signed certificate timestamp for an entry submitted
// at timestamp.
func (s *Signer) SignSCT(entryType ctlog.EntryType, leafInput, extensions []byte, timestamp uint64) (*ctlog.SCT, error) {
	input, err := sctSignatureInput(uint16(entryType), leafInput, extensions, timestamp)
	if err != nil {
		return nil, ctlogerr.Wrap(ctlogerr.Fatal, "marshal SCT signature input", err)
	}
	sig, err := s.sign(hashForSigning(input))
	if err != nil {
		return nil, ctlogerr.Wrap(ctlogerr.Fatal, "sign SCT", err)
	}
	return &ctlog.SCT{
		LogID:      s.logID,
		Timestamp:  timestamp,
		Extensions: extensions,
		Signature:  sig,
	}, nil
}

// hashForSigning applies SHA-256 ahead of signing, matching the
// DigitallySigned hash algorithm RFC 6962 mandates (hash_algo=sha256).
// crypto.Signer implementations that need the raw digest (ECDSA, RSA
// PKCS#1v1.5) get it this way regardless of key type.
func hashForSigning(msg []byte) []byte {
	h := sha256.Sum256(msg)
	return h[:]
}

// VerifySTHSignature checks sig against the signature input for
// (treeSize, timestamp, rootHash) using pub.
func VerifySTHSignature(pub crypto.PublicKey, treeSize, timestamp uint64, rootHash [32]byte, sig []byte) error {
	input, err := sthSignatureInput(treeSize, timestamp, rootHash)
	if err != nil {
		return ctlogerr.Wrap(ctlogerr.Validation, "marshal STH signature input", err)
	}
	return verify(pub, hashForSigning(input), sig)
}

func verify(pub crypto.PublicKey, digest, sig []byte) error {
	var ok bool
	switch k := pub.(type) {
	case *ecdsa.PublicKey:
		ok = ecdsa.VerifyASN1(k, digest, sig)
	case *rsa.PublicKey:
		ok = rsa.VerifyPKCS1v15(k, crypto.SHA256, digest, sig) == nil
	default:
		return ctlogerr.New(ctlogerr.Fatal, fmt.Sprintf("unsupported public key type %T", pub))
	}
	if !ok {
		return ctlogerr.New(ctlogerr.Validation, "signature verification failed")
	}
	return nil
}
