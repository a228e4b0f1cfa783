package command

import (
	"RoundLedger/internal/engine"
	"RoundLedger/internal/state"
)

// CreateRound schedules a new round.
type CreateRound struct {
	Base
	MarketType state.MarketType
	StartTime  int64
	EndTime    int64
}

func (*CreateRound) Name() string { return "create_round" }

// InsertGroupAsset adds a group to a scheduled group-battle round.
type InsertGroupAsset struct {
	Base
	RoundID uint64
	Symbol  string
}

func (*InsertGroupAsset) Name() string { return "insert_group_asset" }

// InsertAsset adds an asset to a group.
type InsertAsset struct {
	Base
	RoundID uint64
	GroupID uint64
	Symbol  string
	Feed    state.FeedID
}

func (*InsertAsset) Name() string { return "insert_asset" }

// StartRound activates a scheduled round once its start time passes.
type StartRound struct {
	Base
	RoundID uint64
}

func (*StartRound) Name() string { return "start_round" }

// CaptureStartPrice records start prices for one group's full asset roster.
type CaptureStartPrice struct {
	Base
	RoundID uint64
	GroupID uint64
	Refs    []engine.AssetPriceRef
}

func (*CaptureStartPrice) Name() string { return "capture_start_price" }

// CaptureEndPrice records end prices for one group's full asset roster.
type CaptureEndPrice struct {
	Base
	RoundID uint64
	GroupID uint64
	Refs    []engine.AssetPriceRef
}

func (*CaptureEndPrice) Name() string { return "capture_end_price" }

// FinalizeStartGroupAsset recounts a group's captured start prices.
type FinalizeStartGroupAsset struct {
	Base
	RoundID  uint64
	GroupID  uint64
	AssetIDs []uint64
}

func (*FinalizeStartGroupAsset) Name() string { return "finalize_start_group_asset" }

// FinalizeEndGroupAsset recounts a group's captured end prices and, once
// complete, computes the group's growth rates.
type FinalizeEndGroupAsset struct {
	Base
	RoundID  uint64
	GroupID  uint64
	AssetIDs []uint64
}

func (*FinalizeEndGroupAsset) Name() string { return "finalize_end_group_asset" }

// FinalizeStartGroups recounts start-captured groups across the round.
type FinalizeStartGroups struct {
	Base
	RoundID  uint64
	GroupIDs []uint64
}

func (*FinalizeStartGroups) Name() string { return "finalize_start_groups" }

// FinalizeEndGroups determines the winner groups of a group-battle round.
type FinalizeEndGroups struct {
	Base
	RoundID  uint64
	GroupIDs []uint64
}

func (*FinalizeEndGroups) Name() string { return "finalize_end_groups" }

// SettleSingleRound settles a batch of bets on a single-asset round.
type SettleSingleRound struct {
	Base
	RoundID uint64
	BetIDs  []uint64
}

func (*SettleSingleRound) Name() string { return "settle_single_round" }

// SettleGroupRound settles a batch of bets on a group-battle round.
type SettleGroupRound struct {
	Base
	RoundID uint64
	BetIDs  []uint64
}

func (*SettleGroupRound) Name() string { return "settle_group_round" }
