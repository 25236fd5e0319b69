package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// PublicKeySize is the length of a compressed secp256k1 public key in bytes.
// The spec's normative data model describes a 32-byte public key; this
// implementation instead keeps the teacher's secp256k1/Schnorr identity
// scheme (compressed, 33 bytes) — see DESIGN.md "Identity/signing scheme".
const PublicKeySize = 33

// SignatureSize is the length of a Schnorr signature in bytes.
const SignatureSize = 64

// PublicKey identifies a farmer or account: the recipient of coinbase
// rewards, the sender/receiver of credit transactions, and the signer of
// proofs and content.
type PublicKey [PublicKeySize]byte

// IsZero reports whether the public key is unset.
func (k PublicKey) IsZero() bool {
	return k == PublicKey{}
}

// Bytes returns a copy of the public key as a byte slice.
func (k PublicKey) Bytes() []byte {
	b := make([]byte, PublicKeySize)
	copy(b, k[:])
	return b
}

// String returns the hex-encoded public key.
func (k PublicKey) String() string {
	return hex.EncodeToString(k[:])
}

// PublicKeyFromBytes builds a PublicKey from a 33-byte compressed key.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var k PublicKey
	if len(b) != PublicKeySize {
		return k, fmt.Errorf("public key must be %d bytes, got %d", PublicKeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// MarshalJSON encodes the public key as a hex string.
func (k PublicKey) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// UnmarshalJSON decodes a hex string into a public key.
func (k *PublicKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("public key: %w", err)
	}
	parsed, err := PublicKeyFromBytes(b)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Signature is a Schnorr signature over a proof-id or content-id.
type Signature [SignatureSize]byte

// IsZero reports whether the signature is unset.
func (s Signature) IsZero() bool {
	return s == Signature{}
}

// Bytes returns a copy of the signature as a byte slice.
func (s Signature) Bytes() []byte {
	b := make([]byte, SignatureSize)
	copy(b, s[:])
	return b
}

// String returns the hex-encoded signature.
func (s Signature) String() string {
	return hex.EncodeToString(s[:])
}

// SignatureFromBytes builds a Signature from a 64-byte buffer.
func SignatureFromBytes(b []byte) (Signature, error) {
	var s Signature
	if len(b) != SignatureSize {
		return s, fmt.Errorf("signature must be %d bytes, got %d", SignatureSize, len(b))
	}
	copy(s[:], b)
	return s, nil
}

// MarshalJSON encodes the signature as a hex string.
func (s Signature) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON decodes a hex string into a signature.
func (s *Signature) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	b, err := hex.DecodeString(str)
	if err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	parsed, err := SignatureFromBytes(b)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
