package engine

import (
	"context"
	"fmt"
	"time"

	fpmath "RoundLedger/internal/math"
	"RoundLedger/internal/state"
	"RoundLedger/internal/vault"

	"github.com/google/uuid"
)

// resolveSettleBatch validates a settlement batch: bounded, duplicate-free,
// every bet known to the round and still pending.
func (e *Engine) resolveSettleBatch(round *state.Round, betIDs []uint64) ([]*state.Bet, error) {
	if len(betIDs) > state.MaxBatchRefs {
		return nil, fmt.Errorf("%w: %d refs exceeds max %d",
			ErrInvalidBatchLength, len(betIDs), state.MaxBatchRefs)
	}
	bets := make([]*state.Bet, 0, len(betIDs))
	seen := make(map[uint64]struct{}, len(betIDs))
	for _, id := range betIDs {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate bet %d", ErrInvalidBatchLength, id)
		}
		seen[id] = struct{}{}
		bet, ok := e.store.Bet(round.ID, id)
		if !ok {
			return nil, fmt.Errorf("%w: bet %d in round %d", ErrBetNotFound, id, round.ID)
		}
		if bet.Status != state.BetStatusPending {
			return nil, fmt.Errorf("%w: bet %d is %s", ErrBetAlreadySettled, id, bet.Status)
		}
		bets = append(bets, bet)
	}
	return bets, nil
}

// classifySingleOutcome resolves a single-asset bet against the locked start
// and final prices. Up/Down compare price direction, with an unchanged price
// as a draw. Percentage bets compare the realized change against the target:
// inside the tolerance wins, on the boundary draws, outside loses. The
// tolerance is the bet's time factor, so earlier bets get a wider window.
func classifySingleOutcome(cfg *state.Config, round *state.Round, bet *state.Bet) (state.BetStatus, error) {
	start := *round.StartPrice
	final := *round.FinalPrice
	change := final - start

	switch bet.Direction.Kind {
	case state.DirectionUp:
		if change == 0 {
			return state.BetStatusDraw, nil
		}
		if change > 0 {
			return state.BetStatusWon, nil
		}
		return state.BetStatusLost, nil
	case state.DirectionDown:
		if change == 0 {
			return state.BetStatusDraw, nil
		}
		if change < 0 {
			return state.BetStatusWon, nil
		}
		return state.BetStatusLost, nil
	case state.DirectionPercentChange:
		actual, err := fpmath.GrowthRateBps(start, final)
		if err != nil {
			return state.BetStatusPending, err
		}
		diff := actual - int64(bet.Direction.TargetBps)
		if diff < 0 {
			diff = -diff
		}
		tolerance := betTimeFactorBps(cfg, round, bet.CreatedAt)
		switch {
		case diff < tolerance:
			return state.BetStatusWon, nil
		case diff == tolerance:
			return state.BetStatusDraw, nil
		default:
			return state.BetStatusLost, nil
		}
	default:
		return state.BetStatusPending, fmt.Errorf("unknown direction kind %d", bet.Direction.Kind)
	}
}

// classifyGroupOutcome resolves a group-battle bet: its group winning decides
// the outcome, the direction only shaped the bet's weight. An all-tied round
// is a full draw and refunds everyone.
func classifyGroupOutcome(round *state.Round, bet *state.Bet) state.BetStatus {
	if round.IsFullDraw() {
		return state.BetStatusDraw
	}
	if bet.GroupID != nil && round.IsWinnerGroup(*bet.GroupID) {
		return state.BetStatusWon
	}
	return state.BetStatusLost
}

// applySettleBatch classifies the batch, accumulates pool bookkeeping, and on
// completion collects the fee and locks the reward pool. Returns the fee
// journal when one was taken.
func (e *Engine) applySettleBatch(
	cfg *state.Config,
	round *state.Round,
	bets []*state.Bet,
	classify func(*state.Bet) (state.BetStatus, error),
) ([]vault.Journal, error) {
	// Classify everything before mutating so a bad bet leaves the round
	// untouched.
	outcomes := make([]state.BetStatus, len(bets))
	for i, bet := range bets {
		status, err := classify(bet)
		if err != nil {
			return nil, err
		}
		outcomes[i] = status
	}

	for i, bet := range bets {
		bet.Status = outcomes[i]
		switch outcomes[i] {
		case state.BetStatusWon:
			round.WinnersWeight += bet.Weight
		case state.BetStatusDraw:
			round.TotalDrawStake += bet.Amount
		}
		if e.metrics != nil {
			e.metrics.BetsSettled.WithLabelValues(outcomes[i].String()).Inc()
		}
	}
	round.SettledBets += uint64(len(bets))

	if round.SettledBets < round.TotalBets {
		return nil, nil
	}

	// Final batch: draws are refunded in full, the fee comes out of the
	// remaining pot, and what is left becomes the reward pool. Truncation
	// dust stays in the round vault.
	feeBps := cfg.FeeSingleBps
	if round.MarketType == state.MarketTypeGroupBattle {
		feeBps = cfg.FeeGroupBps
	}
	pot := round.TotalPool - round.TotalDrawStake
	fee, err := fpmath.FeeAmount(pot, feeBps)
	if err != nil {
		return nil, err
	}

	var journals []vault.Journal
	if fee > 0 {
		j, err := e.vault.Transfer(
			uuid.New(),
			vault.NewRoundVaultAccount(round.ID),
			vault.NewTreasuryAccount(cfg.Treasury),
			fee,
			vault.JournalTypeFeeCollect,
			fmt.Sprintf("settle_fee:%d", round.ID),
			e.now(),
		)
		if err != nil {
			return nil, err
		}
		journals = append(journals, j)
	}

	round.TotalFeeCollected = fee
	round.TotalRewardPool = pot - fee
	round.Status = state.RoundStatusEnded
	now := e.now()
	round.SettledAt = &now

	if e.metrics != nil {
		e.metrics.RoundsSettled.WithLabelValues(round.MarketType.String()).Inc()
		e.metrics.FeesCollected.Add(float64(fee))
	}
	return journals, nil
}

// SettleSingleRound settles a batch of a single-asset round's bets. Keeper
// only, after the end time. The first call locks the final price from the
// oracle; the call whose batch completes settlement collects the fee, locks
// the reward pool, and ends the round. Callers partition the bet ids into
// disjoint batches and repeat until done.
func (e *Engine) SettleSingleRound(ctx context.Context, caller uuid.UUID, roundID uint64, betIDs []uint64) error {
	const op = "settle_single_round"
	defer e.observeOp(op, time.Now())

	cfg, err := e.keeperConfig(caller)
	if err != nil {
		return e.reject(op, err)
	}
	round, ok := e.store.Round(roundID)
	if !ok {
		return e.reject(op, fmt.Errorf("%w: round %d", ErrRoundNotFound, roundID))
	}
	if round.MarketType != state.MarketTypeSingleAsset {
		return e.reject(op, ErrInvalidMarketType)
	}
	if round.Status == state.RoundStatusScheduled {
		return e.reject(op, fmt.Errorf("%w: round is %s", ErrRoundNotActive, round.Status))
	}
	if round.SettledAt != nil {
		return e.reject(op, ErrAllBetsSettled)
	}
	now := e.now()
	if now < round.EndTime {
		return e.reject(op, fmt.Errorf("%w: ends at %d, now %d",
			ErrRoundNotReadyForSettle, round.EndTime, now))
	}

	if round.FinalPrice == nil {
		price, err := e.readNormalizedPrice(ctx, cfg, cfg.OracleFeed)
		if err != nil {
			return e.reject(op, err)
		}
		round.FinalPrice = &price
	}

	bets, err := e.resolveSettleBatch(round, betIDs)
	if err != nil {
		return e.reject(op, err)
	}
	journals, err := e.applySettleBatch(cfg, round, bets, func(b *state.Bet) (state.BetStatus, error) {
		return classifySingleOutcome(cfg, round, b)
	})
	if err != nil {
		return e.reject(op, err)
	}

	delta := EntityDelta{Rounds: []*state.Round{round.Clone()}}
	for _, b := range bets {
		delta.Bets = append(delta.Bets, b.Clone())
	}
	e.emit(op, &roundID, journals, delta)
	e.log.Info().
		Uint64("round_id", roundID).
		Int("batch", len(bets)).
		Uint64("settled", round.SettledBets).
		Uint64("total", round.TotalBets).
		Bool("complete", round.SettledAt != nil).
		Msg("single round settlement batch applied")
	return nil
}

// SettleGroupRound settles a batch of a group-battle round's bets. Keeper
// only, after the winner groups are finalized. No oracle read happens here:
// outcomes follow from the already-finalized winner set.
func (e *Engine) SettleGroupRound(caller uuid.UUID, roundID uint64, betIDs []uint64) error {
	const op = "settle_group_round"
	defer e.observeOp(op, time.Now())

	cfg, err := e.keeperConfig(caller)
	if err != nil {
		return e.reject(op, err)
	}
	round, ok := e.store.Round(roundID)
	if !ok {
		return e.reject(op, fmt.Errorf("%w: round %d", ErrRoundNotFound, roundID))
	}
	if round.MarketType != state.MarketTypeGroupBattle {
		return e.reject(op, ErrInvalidMarketType)
	}
	if round.Status == state.RoundStatusScheduled {
		return e.reject(op, fmt.Errorf("%w: round is %s", ErrRoundNotActive, round.Status))
	}
	if round.SettledAt != nil {
		return e.reject(op, ErrAllBetsSettled)
	}
	if len(round.WinnerGroupIDs) == 0 {
		return e.reject(op, fmt.Errorf("%w: winner groups not finalized", ErrRoundNotReady))
	}

	bets, err := e.resolveSettleBatch(round, betIDs)
	if err != nil {
		return e.reject(op, err)
	}
	journals, err := e.applySettleBatch(cfg, round, bets, func(b *state.Bet) (state.BetStatus, error) {
		return classifyGroupOutcome(round, b), nil
	})
	if err != nil {
		return e.reject(op, err)
	}

	delta := EntityDelta{Rounds: []*state.Round{round.Clone()}}
	for _, b := range bets {
		delta.Bets = append(delta.Bets, b.Clone())
	}
	e.emit(op, &roundID, journals, delta)
	e.log.Info().
		Uint64("round_id", roundID).
		Int("batch", len(bets)).
		Uint64("settled", round.SettledBets).
		Uint64("total", round.TotalBets).
		Bool("complete", round.SettledAt != nil).
		Msg("group round settlement batch applied")
	return nil
}

// ClaimReward pays out a settled bet to its bettor, once. Winners receive
// their weight's share of the reward pool, draws are refunded their stake,
// losing bets cannot claim.
func (e *Engine) ClaimReward(caller uuid.UUID, roundID, betID uint64) (int64, error) {
	const op = "claim_reward"
	defer e.observeOp(op, time.Now())

	_, err := e.activeConfig()
	if err != nil {
		return 0, e.reject(op, err)
	}
	round, ok := e.store.Round(roundID)
	if !ok {
		return 0, e.reject(op, fmt.Errorf("%w: round %d", ErrRoundNotFound, roundID))
	}
	if round.Status != state.RoundStatusEnded || round.SettledAt == nil {
		return 0, e.reject(op, fmt.Errorf("%w: settlement incomplete", ErrRoundNotEnded))
	}
	bet, ok := e.store.Bet(roundID, betID)
	if !ok {
		return 0, e.reject(op, fmt.Errorf("%w: bet %d in round %d", ErrBetNotFound, betID, roundID))
	}
	if caller != bet.Bettor {
		return 0, e.reject(op, ErrUnauthorized)
	}
	if bet.Status == state.BetStatusPending {
		return 0, e.reject(op, ErrClaimPendingBet)
	}
	if bet.Claimed {
		return 0, e.reject(op, ErrAlreadyClaimed)
	}
	if bet.Status == state.BetStatusLost {
		return 0, e.reject(op, ErrClaimLosingBet)
	}

	var (
		amount int64
		jt     vault.JournalType
	)
	switch bet.Status {
	case state.BetStatusWon:
		if round.WinnersWeight <= 0 {
			return 0, e.reject(op, fmt.Errorf("round %d has no winners weight", roundID))
		}
		amount, err = fpmath.WinnerPayout(bet.Weight, round.TotalRewardPool, round.WinnersWeight)
		if err != nil {
			return 0, e.reject(op, err)
		}
		jt = vault.JournalTypeWinnerPayout
	case state.BetStatusDraw:
		amount = bet.Amount
		jt = vault.JournalTypeDrawRefund
	}

	var journals []vault.Journal
	if amount > 0 {
		j, err := e.vault.Transfer(
			uuid.New(),
			vault.NewRoundVaultAccount(roundID),
			vault.NewBettorAccount(bet.Bettor),
			amount,
			jt,
			fmt.Sprintf("claim_reward:%d:%d", roundID, betID),
			e.now(),
		)
		if err != nil {
			return 0, e.reject(op, err)
		}
		journals = append(journals, j)
	}

	bet.Claimed = true
	if e.metrics != nil {
		e.metrics.ClaimsPaid.WithLabelValues(bet.Status.String()).Inc()
	}
	e.emit(op, &roundID, journals, EntityDelta{Bets: []*state.Bet{bet.Clone()}})
	e.log.Info().
		Uint64("round_id", roundID).
		Uint64("bet_id", betID).
		Str("status", bet.Status.String()).
		Int64("amount", amount).
		Msg("reward claimed")
	return amount, nil
}
