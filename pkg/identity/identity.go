// Package identity provides the secp256k1/Schnorr keypair every farmer and
// account uses to sign proofs, content and credit transactions.
package identity

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"

	"github.com/klingon-tech/plotchain/pkg/types"
)

// PrivateKey wraps a secp256k1 private key for Schnorr signing.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// Generate creates a new random secp256k1 private key.
func Generate() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// FromSeed derives a private key from a 32-byte seed, as produced by the
// wallet's mnemonic-to-seed expansion.
func FromSeed(seed []byte) (*PrivateKey, error) {
	if len(seed) != 32 {
		return nil, fmt.Errorf("identity: seed must be 32 bytes, got %d", len(seed))
	}
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(seed)}, nil
}

// Sign produces a Schnorr signature over a 32-byte id (a proof-id,
// content-id or tx-id).
func (pk *PrivateKey) Sign(id types.Hash) (types.Signature, error) {
	sig, err := schnorr.Sign(pk.key, id[:])
	if err != nil {
		return types.Signature{}, fmt.Errorf("identity: schnorr sign: %w", err)
	}
	return types.SignatureFromBytes(sig.Serialize())
}

// PublicKey returns the compressed 33-byte public key.
func (pk *PrivateKey) PublicKey() (types.PublicKey, error) {
	return types.PublicKeyFromBytes(pk.key.PubKey().SerializeCompressed())
}

// Bytes returns the 32-byte private key scalar.
func (pk *PrivateKey) Bytes() []byte {
	return pk.key.Serialize()
}

// Zero securely zeroes the private key memory. Call this when a keystore
// session ends.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// Verify checks a Schnorr signature over id against pub. It returns false
// on any malformed input rather than an error, matching the validation
// contract's "cryptographic validity" check, which only needs a boolean.
func Verify(id types.Hash, sig types.Signature, pub types.PublicKey) bool {
	pubKey, err := secp256k1.ParsePubKey(pub.Bytes())
	if err != nil {
		return false
	}
	parsed, err := schnorr.ParseSignature(sig.Bytes())
	if err != nil {
		return false
	}
	return parsed.Verify(id[:], pubKey)
}
