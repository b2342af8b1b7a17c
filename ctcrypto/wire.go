// Package ctcrypto signs and verifies the RFC 6962 structures (STHs and
// SCTs) using TLS-encoded signature inputs, matching the wire format the
// rest of the CT ecosystem expects.
package ctcrypto

import "github.com/google/certificate-transparency-go/tls"

// version and signatureType are fixed at 0 for the v1 log format this
// repository implements; RFC 6962 reserves other values for future use.
const (
	v1                   uint8 = 0
	sigTypeTreeHash      uint8 = 0
	sigTypeCertTimestamp uint8 = 0
)

// treeHeadSignature is the TLS struct RFC 6962 section 3.5 signs to
// produce an STH signature.
type treeHeadSignature struct {
	Version        uint8
	SignatureType  uint8
	Timestamp      uint64
	TreeSize       uint64
	SHA256RootHash [32]byte
}

// digitallySignedInput is the TLS struct RFC 6962 section 3.2 signs to
// produce an SCT signature.
type digitallySignedInput struct {
	Version      uint8
	SignatureType uint8
	Timestamp    uint64
	EntryType    uint16
	SignedEntry  []byte `tls:"minlen:1,maxlen:16777215"`
	Extensions   []byte `tls:"minlen:0,maxlen:65535"`
}

// sthSignatureInput returns the TLS-encoded bytes signed to produce an
// STH signature.
func sthSignatureInput(treeSize, timestamp uint64, rootHash [32]byte) ([]byte, error) {
	return tls.Marshal(treeHeadSignature{
		Version:        v1,
		SignatureType:  sigTypeTreeHash,
		Timestamp:      timestamp,
		TreeSize:       treeSize,
		SHA256RootHash: rootHash,
	})
}

// sctSignatureInput returns the TLS-encoded bytes signed to produce an
// SCT signature over the given entry.
func sctSignatureInput(entryType uint16, signedEntry, extensions []byte, timestamp uint64) ([]byte, error) {
	return tls.Marshal(digitallySignedInput{
		Version:       v1,
		SignatureType: sigTypeCertTimestamp,
		Timestamp:     timestamp,
		EntryType:     entryType,
		SignedEntry:   signedEntry,
		Extensions:    extensions,
	})
}
