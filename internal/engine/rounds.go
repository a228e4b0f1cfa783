package engine

import (
	"context"
	"fmt"
	"time"

	"RoundLedger/internal/state"

	"github.com/google/uuid"
)

func validSymbol(symbol string) bool {
	if symbol == "" || len(symbol) > state.MaxSymbolLen {
		return false
	}
	for i := 0; i < len(symbol); i++ {
		c := symbol[i]
		ok := c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
		if !ok {
			return false
		}
	}
	return true
}

// CreateRound schedules a new round and allocates its id. Admin only. The
// start must lie in the future and the end after the start; the bet cutoff is
// derived from the configured window, clamped to the start.
func (e *Engine) CreateRound(caller uuid.UUID, marketType state.MarketType, startTime, endTime int64) (uint64, error) {
	const op = "create_round"
	defer e.observeOp(op, time.Now())

	cfg, err := e.adminConfig(caller)
	if err != nil {
		return 0, e.reject(op, err)
	}
	if marketType != state.MarketTypeSingleAsset && marketType != state.MarketTypeGroupBattle {
		return 0, e.reject(op, ErrInvalidMarketType)
	}
	now := e.now()
	if startTime <= now || endTime <= startTime {
		return 0, e.reject(op, fmt.Errorf("%w: start=%d end=%d now=%d",
			ErrInvalidTimestamps, startTime, endTime, now))
	}

	cutoff := endTime - cfg.BetCutoffWindowSecs
	if cutoff < startTime {
		cutoff = startTime
	}

	cfg.RoundCounter++
	round := &state.Round{
		ID:            cfg.RoundCounter,
		MarketType:    marketType,
		Status:        state.RoundStatusScheduled,
		StartTime:     startTime,
		EndTime:       endTime,
		BetCutoffTime: cutoff,
		CreatedAt:     now,
	}
	e.store.PutRound(round)

	e.emit(op, &round.ID, nil, EntityDelta{
		Config: cfg.Clone(),
		Rounds: []*state.Round{round.Clone()},
	})
	e.log.Info().
		Uint64("round_id", round.ID).
		Str("market_type", marketType.String()).
		Int64("start", startTime).
		Int64("end", endTime).
		Msg("round created")
	return round.ID, nil
}

// InsertGroupAsset adds a battle group to a scheduled group-battle round and
// allocates its id. Admin only, pre-start.
func (e *Engine) InsertGroupAsset(caller uuid.UUID, roundID uint64, symbol string) (uint64, error) {
	const op = "insert_group_asset"
	defer e.observeOp(op, time.Now())

	_, err := e.adminConfig(caller)
	if err != nil {
		return 0, e.reject(op, err)
	}
	round, ok := e.store.Round(roundID)
	if !ok {
		return 0, e.reject(op, fmt.Errorf("%w: round %d", ErrRoundNotFound, roundID))
	}
	if round.MarketType != state.MarketTypeGroupBattle {
		return 0, e.reject(op, ErrInvalidMarketType)
	}
	if round.Status != state.RoundStatusScheduled {
		return 0, e.reject(op, fmt.Errorf("%w: round is %s",
			ErrInvalidRoundStatus, round.Status))
	}
	if !validSymbol(symbol) {
		return 0, e.reject(op, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol))
	}
	if round.TotalGroups >= state.MaxGroupsPerRound {
		return 0, e.reject(op, ErrMaxGroupsReached)
	}

	round.TotalGroups++
	group := &state.GroupAsset{
		ID:        round.TotalGroups,
		RoundID:   roundID,
		Symbol:    symbol,
		CreatedAt: e.now(),
	}
	e.store.PutGroup(group)

	e.emit(op, &roundID, nil, EntityDelta{
		Rounds: []*state.Round{round.Clone()},
		Groups: []*state.GroupAsset{group.Clone()},
	})
	e.log.Info().
		Uint64("round_id", roundID).
		Uint64("group_id", group.ID).
		Str("symbol", symbol).
		Msg("group added")
	return group.ID, nil
}

// InsertAsset adds a tracked asset to a battle group and allocates its id
// within the group. Admin only, pre-start. The oracle feed is fixed here and
// every later capture for this asset must present the same feed.
func (e *Engine) InsertAsset(caller uuid.UUID, roundID, groupID uint64, symbol string, feed state.FeedID) (uint64, error) {
	const op = "insert_asset"
	defer e.observeOp(op, time.Now())

	_, err := e.adminConfig(caller)
	if err != nil {
		return 0, e.reject(op, err)
	}
	round, ok := e.store.Round(roundID)
	if !ok {
		return 0, e.reject(op, fmt.Errorf("%w: round %d", ErrRoundNotFound, roundID))
	}
	if round.MarketType != state.MarketTypeGroupBattle {
		return 0, e.reject(op, ErrInvalidMarketType)
	}
	if round.Status != state.RoundStatusScheduled {
		return 0, e.reject(op, fmt.Errorf("%w: round is %s",
			ErrInvalidRoundStatus, round.Status))
	}
	group, ok := e.store.Group(roundID, groupID)
	if !ok {
		return 0, e.reject(op, fmt.Errorf("%w: group %d in round %d",
			ErrInvalidGroupAssetAccount, groupID, roundID))
	}
	if !validSymbol(symbol) {
		return 0, e.reject(op, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol))
	}
	if feed.IsZero() {
		return 0, e.reject(op, fmt.Errorf("%w: zero feed id", ErrInvalidPriceFeed))
	}
	if group.TotalAssets >= state.MaxAssetsPerGroup {
		return 0, e.reject(op, ErrMaxAssetsReached)
	}

	group.TotalAssets++
	asset := &state.Asset{
		ID:        group.TotalAssets,
		GroupID:   groupID,
		RoundID:   roundID,
		Symbol:    symbol,
		Feed:      feed,
		CreatedAt: e.now(),
	}
	e.store.PutAsset(asset)

	e.emit(op, &roundID, nil, EntityDelta{
		Groups: []*state.GroupAsset{group.Clone()},
		Assets: []*state.Asset{asset.Clone()},
	})
	e.log.Info().
		Uint64("round_id", roundID).
		Uint64("group_id", groupID).
		Uint64("asset_id", asset.ID).
		Str("symbol", symbol).
		Msg("asset added")
	return asset.ID, nil
}

// StartRound activates a scheduled round once its start time has passed.
// Keeper only. Single-asset rounds lock the start price from the configured
// oracle feed; group-battle rounds require every group's start prices to be
// finalized first and read no price themselves.
func (e *Engine) StartRound(ctx context.Context, caller uuid.UUID, roundID uint64) error {
	const op = "start_round"
	defer e.observeOp(op, time.Now())

	cfg, err := e.keeperConfig(caller)
	if err != nil {
		return e.reject(op, err)
	}
	round, ok := e.store.Round(roundID)
	if !ok {
		return e.reject(op, fmt.Errorf("%w: round %d", ErrRoundNotFound, roundID))
	}
	if round.Status != state.RoundStatusScheduled {
		return e.reject(op, fmt.Errorf("%w: round is %s",
			ErrInvalidRoundStatus, round.Status))
	}
	now := e.now()
	if now < round.StartTime {
		return e.reject(op, fmt.Errorf("%w: starts at %d, now %d",
			ErrRoundNotReadyForStart, round.StartTime, now))
	}

	switch round.MarketType {
	case state.MarketTypeSingleAsset:
		price, err := e.readNormalizedPrice(ctx, cfg, cfg.OracleFeed)
		if err != nil {
			return e.reject(op, err)
		}
		round.StartPrice = &price
	case state.MarketTypeGroupBattle:
		if round.TotalGroups == 0 || round.CapturedStartGroups != round.TotalGroups {
			return e.reject(op, fmt.Errorf("%w: %d of %d groups captured",
				ErrRoundNotReady, round.CapturedStartGroups, round.TotalGroups))
		}
	}

	round.Status = state.RoundStatusActive
	e.emit(op, &roundID, nil, EntityDelta{Rounds: []*state.Round{round.Clone()}})
	e.log.Info().
		Uint64("round_id", roundID).
		Str("market_type", round.MarketType.String()).
		Msg("round started")
	return nil
}
