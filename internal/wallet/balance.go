package wallet

import "github.com/klingon-tech/plotchain/pkg/types"

// Balance mirrors the account state the chain tracks for a public key:
// its confirmed credit balance and the nonce the next outgoing credit
// transaction must use.
type Balance struct {
	Confirmed uint64
	Nonce     uint64
}

// BalanceFromAccountState converts a ledger account state into the
// wallet's display form.
func BalanceFromAccountState(s types.AccountState) Balance {
	return Balance{Confirmed: s.Balance, Nonce: s.Nonce}
}
