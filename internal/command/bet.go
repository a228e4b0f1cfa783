package command

import "RoundLedger/internal/state"

// Deposit credits a bettor's ledger account across the mint boundary.
type Deposit struct {
	Base
	Amount int64
}

func (*Deposit) Name() string { return "deposit" }

// Withdraw debits a bettor's ledger account back across the mint boundary.
type Withdraw struct {
	Base
	Amount int64
}

func (*Withdraw) Name() string { return "withdraw" }

// PlaceBet escrows a stake on an active round.
type PlaceBet struct {
	Base
	RoundID   uint64
	GroupID   *uint64
	Amount    int64
	Direction state.Direction
}

func (*PlaceBet) Name() string { return "place_bet" }

// ClaimReward pays out a settled bet to its owner.
type ClaimReward struct {
	Base
	RoundID uint64
	BetID   uint64
}

func (*ClaimReward) Name() string { return "claim_reward" }
