package vault_test

import (
	"errors"
	"testing"

	"RoundLedger/internal/vault"

	"github.com/google/uuid"
)

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_BettorPath(t *testing.T) {
	bettor := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	key := vault.NewBettorAccount(bettor)

	path := key.AccountPath()
	expected := "bettor:550e8400-e29b-41d4-a716-446655440000"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_RoundVaultPath(t *testing.T) {
	key := vault.NewRoundVaultAccount(42)

	if got := key.AccountPath(); got != "vault:round:42" {
		t.Errorf("got %q, want %q", got, "vault:round:42")
	}
	if got := key.RoundID(); got != 42 {
		t.Errorf("RoundID: got %d, want 42", got)
	}
}

func TestAccountKey_MintBoundaryPath(t *testing.T) {
	if got := vault.MintBoundaryAccount().AccountPath(); got != "external:mint" {
		t.Errorf("got %q, want %q", got, "external:mint")
	}
}

func TestParseAccountPath_RoundTrip(t *testing.T) {
	keys := []vault.AccountKey{
		vault.NewBettorAccount(uuid.New()),
		vault.NewRoundVaultAccount(7),
		vault.NewTreasuryAccount(uuid.New()),
		vault.MintBoundaryAccount(),
	}

	for _, key := range keys {
		parsed, err := vault.ParseAccountPath(key.AccountPath())
		if err != nil {
			t.Fatalf("ParseAccountPath(%q): %v", key.AccountPath(), err)
		}
		if parsed != key {
			t.Errorf("round trip mismatch for %q", key.AccountPath())
		}
	}
}

func TestParseAccountPath_Unknown(t *testing.T) {
	if _, err := vault.ParseAccountPath("system:fees:USDT"); err == nil {
		t.Error("expected error for unknown path")
	}
}

// ============================================================================
// Test: Vault transfers
// ============================================================================

func TestVault_DepositFromMintBoundary(t *testing.T) {
	v := vault.NewVault()
	bettor := vault.NewBettorAccount(uuid.New())

	_, err := v.Transfer(uuid.New(), vault.MintBoundaryAccount(), bettor,
		1_000_000, vault.JournalTypeDeposit, "deposit-1", 1700000000)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	if got := v.Balance(bettor); got != 1_000_000 {
		t.Errorf("bettor balance: got %d, want 1_000_000", got)
	}
	if err := v.ValidateZeroSum(); err != nil {
		t.Errorf("zero-sum violated: %v", err)
	}
}

func TestVault_InsufficientFunds(t *testing.T) {
	v := vault.NewVault()
	bettor := vault.NewBettorAccount(uuid.New())
	roundVault := vault.NewRoundVaultAccount(1)

	_, err := v.Transfer(uuid.New(), bettor, roundVault,
		100, vault.JournalTypeStake, "bet-1", 1700000000)
	if !errors.Is(err, vault.ErrInsufficientFunds) {
		t.Errorf("want ErrInsufficientFunds, got %v", err)
	}
}

func TestVault_NonPositiveAmountRejected(t *testing.T) {
	v := vault.NewVault()
	bettor := vault.NewBettorAccount(uuid.New())

	for _, amount := range []int64{0, -100} {
		_, err := v.Transfer(uuid.New(), vault.MintBoundaryAccount(), bettor,
			amount, vault.JournalTypeDeposit, "deposit-1", 1700000000)
		if !errors.Is(err, vault.ErrNonPositiveAmount) {
			t.Errorf("amount %d: want ErrNonPositiveAmount, got %v", amount, err)
		}
	}
}

func TestVault_SelfTransferRejected(t *testing.T) {
	v := vault.NewVault()
	bettor := vault.NewBettorAccount(uuid.New())

	_, err := v.Transfer(uuid.New(), bettor, bettor,
		100, vault.JournalTypeStake, "bet-1", 1700000000)
	if err == nil {
		t.Error("expected error for self-transfer")
	}
}

func TestVault_StakeAndPayoutZeroSum(t *testing.T) {
	v := vault.NewVault()
	bettor := vault.NewBettorAccount(uuid.New())
	roundVault := vault.NewRoundVaultAccount(1)
	treasury := vault.NewTreasuryAccount(uuid.New())

	mustTransfer := func(from, to vault.AccountKey, amount int64, jt vault.JournalType) {
		t.Helper()
		if _, err := v.Transfer(uuid.New(), from, to, amount, jt, "op", 1700000000); err != nil {
			t.Fatalf("Transfer %s: %v", jt, err)
		}
	}

	mustTransfer(vault.MintBoundaryAccount(), bettor, 1_000_000, vault.JournalTypeDeposit)
	mustTransfer(bettor, roundVault, 800_000, vault.JournalTypeStake)
	mustTransfer(roundVault, treasury, 24_000, vault.JournalTypeFeeCollect)
	mustTransfer(roundVault, bettor, 776_000, vault.JournalTypeWinnerPayout)

	if got := v.Balance(roundVault); got != 0 {
		t.Errorf("round vault should be drained, got %d", got)
	}
	if got := v.Balance(treasury); got != 24_000 {
		t.Errorf("treasury: got %d, want 24_000", got)
	}
	if err := v.ValidateZeroSum(); err != nil {
		t.Errorf("zero-sum violated: %v", err)
	}
}

func TestVault_SnapshotIsolation(t *testing.T) {
	v := vault.NewVault()
	bettor := vault.NewBettorAccount(uuid.New())

	if _, err := v.Transfer(uuid.New(), vault.MintBoundaryAccount(), bettor,
		999, vault.JournalTypeDeposit, "deposit-1", 1700000000); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	snap := v.Snapshot()
	for k := range snap {
		snap[k] = 0
	}

	if v.Balance(bettor) != 999 {
		t.Error("vault balance should not be affected by snapshot mutation")
	}
}

// ============================================================================
// Test: Batch validation
// ============================================================================

func TestBatchValidate_MismatchedBatchID_Fails(t *testing.T) {
	batchID := uuid.New()
	batch := &vault.Batch{
		BatchID: batchID,
		Journals: []vault.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       uuid.New(), // Different batch ID
				DebitAccount:  vault.NewBettorAccount(uuid.New()),
				CreditAccount: vault.MintBoundaryAccount(),
				Amount:        100,
			},
		},
	}

	if err := batch.Validate(); err == nil {
		t.Error("mismatched batch ID should fail validation")
	}
}

func TestBatchValidate_ValidBatch_Passes(t *testing.T) {
	batchID := uuid.New()
	batch := &vault.Batch{
		BatchID: batchID,
		Journals: []vault.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  vault.NewBettorAccount(uuid.New()),
				CreditAccount: vault.MintBoundaryAccount(),
				Amount:        1_000_000,
			},
		},
	}

	if err := batch.Validate(); err != nil {
		t.Errorf("valid batch should pass: %v", err)
	}
}
