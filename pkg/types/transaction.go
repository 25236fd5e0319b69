package types

import (
	"crypto/sha256"
	"fmt"

	"github.com/klingon-tech/plotchain/pkg/codec"
)

// TxKind tags which variant of Transaction is populated.
type TxKind uint8

const (
	TxCoinbase TxKind = iota
	TxCredit
)

func (k TxKind) String() string {
	switch k {
	case TxCoinbase:
		return "coinbase"
	case TxCredit:
		return "credit"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Transaction is a tagged union: a Coinbase reward mint or a Credit
// transfer between two accounts. Only the fields belonging to Kind are
// meaningful; the zero value of the other variant's fields is ignored.
//
// tx_id = SHA-256(canonical_encode(txUnsigned)) — Signature is excluded
// from the hashed image, same discipline as Content.
type Transaction struct {
	Kind TxKind `cbor:"1,keyasint"`

	// Coinbase fields (To is also the recipient of a credit).
	Reward  uint64    `cbor:"2,keyasint,omitempty"`
	To      PublicKey `cbor:"3,keyasint,omitempty"`
	ProofID Hash      `cbor:"4,keyasint,omitempty"`

	// Credit fields.
	From      PublicKey `cbor:"5,keyasint,omitempty"`
	Amount    uint64    `cbor:"6,keyasint,omitempty"`
	Nonce     uint64    `cbor:"7,keyasint,omitempty"`
	Signature Signature `cbor:"8,keyasint,omitempty"`
}

// txUnsigned mirrors Transaction minus Signature, for tx_id hashing.
type txUnsigned struct {
	Kind    TxKind    `cbor:"1,keyasint"`
	Reward  uint64    `cbor:"2,keyasint,omitempty"`
	To      PublicKey `cbor:"3,keyasint,omitempty"`
	ProofID Hash      `cbor:"4,keyasint,omitempty"`
	From    PublicKey `cbor:"5,keyasint,omitempty"`
	Amount  uint64    `cbor:"6,keyasint,omitempty"`
	Nonce   uint64    `cbor:"7,keyasint,omitempty"`
}

func (tx Transaction) unsigned() txUnsigned {
	return txUnsigned{
		Kind:    tx.Kind,
		Reward:  tx.Reward,
		To:      tx.To,
		ProofID: tx.ProofID,
		From:    tx.From,
		Amount:  tx.Amount,
		Nonce:   tx.Nonce,
	}
}

// ID computes tx_id = SHA-256(canonical_encode(tx_without_signature)).
func (tx Transaction) ID() (Hash, error) {
	b, err := codec.Marshal(tx.unsigned())
	if err != nil {
		return Hash{}, err
	}
	return Hash(sha256.Sum256(b)), nil
}

// NewCoinbase builds the single reward-minting transaction a block's
// content must list first.
func NewCoinbase(to PublicKey, reward uint64, proofID Hash) Transaction {
	return Transaction{Kind: TxCoinbase, To: to, Reward: reward, ProofID: proofID}
}

// NewCredit builds an unsigned account-to-account transfer; the caller
// signs it and sets Signature before broadcasting.
func NewCredit(from, to PublicKey, amount, nonce uint64) Transaction {
	return Transaction{Kind: TxCredit, From: from, To: to, Amount: amount, Nonce: nonce}
}

// AccountState is the balance and replay-protection nonce tracked per
// public key on the confirmed chain.
type AccountState struct {
	Balance uint64 `cbor:"1,keyasint"`
	Nonce   uint64 `cbor:"2,keyasint"`
}
