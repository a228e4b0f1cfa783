package vault

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInsufficientFunds is returned when a non-external account would go
// negative.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrNonPositiveAmount is returned for zero or negative transfer amounts.
var ErrNonPositiveAmount = errors.New("transfer amount must be positive")

// Vault is the token ledger backing the settlement engine. Balances are
// tracked double-entry: every transfer debits one account and credits
// another, so the sum over all accounts (mint boundary included) is zero.
// Owned by the single engine goroutine; not safe for concurrent use.
type Vault struct {
	balances map[AccountKey]int64
}

func NewVault() *Vault {
	return &Vault{
		balances: make(map[AccountKey]int64),
	}
}

// Balance returns the current balance for an account.
func (v *Vault) Balance(key AccountKey) int64 {
	return v.balances[key]
}

// Transfer moves amount from the credit account to the debit account and
// returns the applied journal entry. The mint boundary may go negative;
// every other account is checked for sufficiency first.
func (v *Vault) Transfer(
	batchID uuid.UUID,
	from, to AccountKey,
	amount int64,
	jt JournalType,
	opRef string,
	timestamp int64,
) (Journal, error) {
	if amount <= 0 {
		return Journal{}, fmt.Errorf("%w: %d", ErrNonPositiveAmount, amount)
	}
	if from == to {
		return Journal{}, fmt.Errorf("self-transfer on account %s", from.AccountPath())
	}
	if from.Scope != AccountScopeExternal && v.balances[from] < amount {
		return Journal{}, fmt.Errorf("%w: account %s has %d, need %d",
			ErrInsufficientFunds, from.AccountPath(), v.balances[from], amount)
	}

	j := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		OpRef:         opRef,
		DebitAccount:  to,
		CreditAccount: from,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     timestamp,
	}

	v.apply(j)
	return j, nil
}

func (v *Vault) apply(j Journal) {
	v.balances[j.DebitAccount] += j.Amount
	v.balances[j.CreditAccount] -= j.Amount
}

// ValidateZeroSum verifies the ledger is zero-sum across all accounts.
func (v *Vault) ValidateZeroSum() error {
	var total int64
	for _, balance := range v.balances {
		total += balance
	}
	if total != 0 {
		return fmt.Errorf("global balance is non-zero: %d", total)
	}
	return nil
}

// ValidateNonNegative checks that a specific account balance is >= 0.
// The mint boundary is exempt.
func (v *Vault) ValidateNonNegative(key AccountKey) error {
	if key.Scope == AccountScopeExternal {
		return nil
	}
	if balance := v.balances[key]; balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// Snapshot returns a copy of all balances.
func (v *Vault) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(v.balances))
	for k, bal := range v.balances {
		snapshot[k] = bal
	}
	return snapshot
}

// Restore overwrites a single balance; used when rebuilding state from
// persisted journal rows on startup.
func (v *Vault) Restore(key AccountKey, balance int64) {
	v.balances[key] = balance
}

// Replay re-applies a persisted journal entry without validation.
func (v *Vault) Replay(j Journal) {
	v.apply(j)
}
