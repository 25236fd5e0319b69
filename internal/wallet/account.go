package wallet

import "github.com/klingon-tech/plotchain/pkg/types"

// Account represents a wallet's single farmer/account identity: a
// user-facing label and the public key that identifies it on-chain.
// plotchain derives exactly one keypair per seed, so there is no
// derivation index to track.
type Account struct {
	Name      string
	PublicKey types.PublicKey
}
