package vault

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	// AccountScopeBettor holds a bettor's spendable token balance.
	AccountScopeBettor AccountScope = iota
	// AccountScopeRoundVault escrows all stakes of one round.
	AccountScopeRoundVault
	// AccountScopeTreasury accumulates settlement fees.
	AccountScopeTreasury
	// AccountScopeExternal is the mint boundary; it may go negative so the
	// ledger stays zero-sum across deposits.
	AccountScopeExternal
)

// AccountKey is the in-memory key for balance tracking (17 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID for bettors/treasury, encoded round id for vaults
}

// NewBettorAccount creates a key for a bettor's token account.
func NewBettorAccount(bettor uuid.UUID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeBettor,
		EntityID: bettor,
	}
}

// NewRoundVaultAccount creates the escrow key for a round.
func NewRoundVaultAccount(roundID uint64) AccountKey {
	var entityID [16]byte
	binary.BigEndian.PutUint64(entityID[8:], roundID)
	return AccountKey{
		Scope:    AccountScopeRoundVault,
		EntityID: entityID,
	}
}

// NewTreasuryAccount creates the fee treasury key.
func NewTreasuryAccount(treasury uuid.UUID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeTreasury,
		EntityID: treasury,
	}
}

// MintBoundaryAccount is the external mint counterparty for deposits and
// withdrawals.
func MintBoundaryAccount() AccountKey {
	return AccountKey{Scope: AccountScopeExternal}
}

// RoundID decodes the round id from a round-vault key.
func (k AccountKey) RoundID() uint64 {
	return binary.BigEndian.Uint64(k.EntityID[8:])
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeBettor:
		return fmt.Sprintf("bettor:%s", uuid.UUID(k.EntityID).String())
	case AccountScopeRoundVault:
		return fmt.Sprintf("vault:round:%d", k.RoundID())
	case AccountScopeTreasury:
		return fmt.Sprintf("treasury:%s", uuid.UUID(k.EntityID).String())
	case AccountScopeExternal:
		return "external:mint"
	}
	return "unknown"
}

// ParseAccountPath is the inverse of AccountPath, used when restoring
// balances from persisted rows.
func ParseAccountPath(path string) (AccountKey, error) {
	switch {
	case strings.HasPrefix(path, "bettor:"):
		id, err := uuid.Parse(strings.TrimPrefix(path, "bettor:"))
		if err != nil {
			return AccountKey{}, fmt.Errorf("parse bettor account %q: %w", path, err)
		}
		return NewBettorAccount(id), nil

	case strings.HasPrefix(path, "vault:round:"):
		roundID, err := strconv.ParseUint(strings.TrimPrefix(path, "vault:round:"), 10, 64)
		if err != nil {
			return AccountKey{}, fmt.Errorf("parse vault account %q: %w", path, err)
		}
		return NewRoundVaultAccount(roundID), nil

	case strings.HasPrefix(path, "treasury:"):
		id, err := uuid.Parse(strings.TrimPrefix(path, "treasury:"))
		if err != nil {
			return AccountKey{}, fmt.Errorf("parse treasury account %q: %w", path, err)
		}
		return NewTreasuryAccount(id), nil

	case path == "external:mint":
		return MintBoundaryAccount(), nil
	}

	return AccountKey{}, fmt.Errorf("unknown account path %q", path)
}
