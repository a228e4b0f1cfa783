package engine

import (
	"fmt"
	"time"

	fpmath "RoundLedger/internal/math"
	"RoundLedger/internal/state"
	"RoundLedger/internal/vault"

	"github.com/google/uuid"
)

// Deposit moves tokens across the mint boundary into the caller's ledger
// account. The shell calls this when an external deposit has been confirmed.
func (e *Engine) Deposit(caller uuid.UUID, amount int64) error {
	const op = "deposit"
	defer e.observeOp(op, time.Now())

	if _, err := e.activeConfig(); err != nil {
		return e.reject(op, err)
	}
	if caller == uuid.Nil {
		return e.reject(op, ErrUnauthorized)
	}

	j, err := e.vault.Transfer(
		uuid.New(),
		vault.MintBoundaryAccount(),
		vault.NewBettorAccount(caller),
		amount,
		vault.JournalTypeDeposit,
		fmt.Sprintf("deposit:%s", caller),
		e.now(),
	)
	if err != nil {
		return e.reject(op, err)
	}

	e.emit(op, nil, []vault.Journal{j}, EntityDelta{})
	return nil
}

// Withdraw moves tokens from the caller's ledger account back across the
// mint boundary. Fails with ErrInsufficientFunds when the balance is short.
func (e *Engine) Withdraw(caller uuid.UUID, amount int64) error {
	const op = "withdraw"
	defer e.observeOp(op, time.Now())

	if _, err := e.activeConfig(); err != nil {
		return e.reject(op, err)
	}
	if caller == uuid.Nil {
		return e.reject(op, ErrUnauthorized)
	}

	j, err := e.vault.Transfer(
		uuid.New(),
		vault.NewBettorAccount(caller),
		vault.MintBoundaryAccount(),
		amount,
		vault.JournalTypeWithdrawal,
		fmt.Sprintf("withdraw:%s", caller),
		e.now(),
	)
	if err != nil {
		return e.reject(op, err)
	}

	e.emit(op, nil, []vault.Journal{j}, EntityDelta{})
	return nil
}

// PlaceBet stakes amount on a round in the given direction. Any funded
// account may bet while the round is active and before the cutoff. The stake
// moves into the round vault and the bet's payout weight is fixed from the
// direction and placement time.
func (e *Engine) PlaceBet(caller uuid.UUID, roundID uint64, groupID *uint64, amount int64, dir state.Direction) (uint64, error) {
	const op = "place_bet"
	defer e.observeOp(op, time.Now())

	cfg, err := e.activeConfig()
	if err != nil {
		return 0, e.reject(op, err)
	}
	if caller == uuid.Nil {
		return 0, e.reject(op, ErrUnauthorized)
	}
	round, ok := e.store.Round(roundID)
	if !ok {
		return 0, e.reject(op, fmt.Errorf("%w: round %d", ErrRoundNotFound, roundID))
	}
	if round.Status != state.RoundStatusActive {
		return 0, e.reject(op, fmt.Errorf("%w: round is %s",
			ErrRoundNotActive, round.Status))
	}
	now := e.now()
	if now >= round.BetCutoffTime {
		return 0, e.reject(op, fmt.Errorf("%w: cutoff was %d, now %d",
			ErrBetCutoffClosed, round.BetCutoffTime, now))
	}
	if amount < cfg.MinBetAmount {
		return 0, e.reject(op, fmt.Errorf("%w: %d < %d",
			ErrBetBelowMinimum, amount, cfg.MinBetAmount))
	}

	switch round.MarketType {
	case state.MarketTypeSingleAsset:
		if groupID != nil {
			return 0, e.reject(op, ErrGroupNotAllowed)
		}
	case state.MarketTypeGroupBattle:
		if groupID == nil {
			return 0, e.reject(op, ErrGroupRequired)
		}
		if _, ok := e.store.Group(roundID, *groupID); !ok {
			return 0, e.reject(op, fmt.Errorf("%w: group %d in round %d",
				ErrInvalidGroupAssetAccount, *groupID, roundID))
		}
	}

	df := directionFactorBps(cfg, round.MarketType, dir)
	tf := betTimeFactorBps(cfg, round, now)
	weight, err := fpmath.BetWeight(amount, df, tf)
	if err != nil {
		return 0, e.reject(op, err)
	}

	betID := round.TotalBets + 1
	j, err := e.vault.Transfer(
		uuid.New(),
		vault.NewBettorAccount(caller),
		vault.NewRoundVaultAccount(roundID),
		amount,
		vault.JournalTypeStake,
		fmt.Sprintf("place_bet:%d:%d", roundID, betID),
		now,
	)
	if err != nil {
		return 0, e.reject(op, err)
	}

	round.TotalBets = betID
	round.TotalPool += amount

	bet := &state.Bet{
		ID:        betID,
		RoundID:   roundID,
		Bettor:    caller,
		Amount:    amount,
		Direction: dir,
		Weight:    weight,
		Status:    state.BetStatusPending,
		CreatedAt: now,
	}
	if groupID != nil {
		g := *groupID
		bet.GroupID = &g
	}
	e.store.PutBet(bet)
	if e.metrics != nil {
		e.metrics.BetsPlaced.Inc()
	}

	e.emit(op, &roundID, []vault.Journal{j}, EntityDelta{
		Rounds: []*state.Round{round.Clone()},
		Bets:   []*state.Bet{bet.Clone()},
	})
	e.log.Info().
		Uint64("round_id", roundID).
		Uint64("bet_id", betID).
		Str("bettor", caller.String()).
		Int64("amount", amount).
		Str("direction", dir.String()).
		Int64("weight", weight).
		Msg("bet placed")
	return betID, nil
}
