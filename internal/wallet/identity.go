package wallet

import (
	"fmt"

	"github.com/klingon-tech/plotchain/pkg/identity"
)

// IdentityFromSeed derives the single farmer/account keypair for a wallet
// from its BIP-39 seed. plotchain has no HD tree of derived accounts: one
// seed carries exactly one secp256k1/Schnorr identity, so only the first
// 32 bytes of the 64-byte BIP-39 seed are used as the signing scalar.
func IdentityFromSeed(seed []byte) (*identity.PrivateKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	return identity.FromSeed(seed[:32])
}
