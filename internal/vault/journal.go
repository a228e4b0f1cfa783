package vault

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	// JournalTypeDeposit moves tokens across the mint boundary into a
	// bettor account.
	JournalTypeDeposit JournalType = iota
	// JournalTypeStake escrows a bet's stake into the round vault.
	JournalTypeStake
	// JournalTypeFeeCollect moves the settlement fee to the treasury.
	JournalTypeFeeCollect
	// JournalTypeWinnerPayout pays a winning claim from the round vault.
	JournalTypeWinnerPayout
	// JournalTypeDrawRefund returns a draw bet's stake from the round vault.
	JournalTypeDrawRefund
	// JournalTypeWithdrawal moves tokens back across the mint boundary.
	JournalTypeWithdrawal
)

func (jt JournalType) String() string {
	switch jt {
	case JournalTypeDeposit:
		return "deposit"
	case JournalTypeStake:
		return "stake"
	case JournalTypeFeeCollect:
		return "fee_collect"
	case JournalTypeWinnerPayout:
		return "winner_payout"
	case JournalTypeDrawRefund:
		return "draw_refund"
	case JournalTypeWithdrawal:
		return "withdrawal"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Unique identifier
	BatchID       uuid.UUID   // Groups entries of one engine operation
	OpRef         string      // Idempotency key of the source operation
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	Amount        int64       // Token base units (ALWAYS positive)
	JournalType   JournalType // Entry type
	Timestamp     int64       // Engine clock, unix seconds
}

// Batch groups all journal entries emitted by one engine operation.
// Each entry is a balanced transfer by construction (a single positive amount
// moves from credit account to debit account), so Σ debits == Σ credits is
// guaranteed per-entry.
type Batch struct {
	BatchID   uuid.UUID
	OpRef     string
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed.
func (b *Batch) Validate() error {
	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}
		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}
		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
	}
	return nil
}
