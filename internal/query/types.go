package query

import "github.com/google/uuid"

// ConfigResponse is the program configuration projection.
type ConfigResponse struct {
	Admin                     uuid.UUID   `json:"admin"`
	Keepers                   []uuid.UUID `json:"keepers"`
	Treasury                  uuid.UUID   `json:"treasury"`
	OracleFeed                string      `json:"oracle_feed"`
	MaxPriceAgeSecs           int64       `json:"max_price_age_secs"`
	FeeSingleBps              int64       `json:"fee_single_bps"`
	FeeGroupBps               int64       `json:"fee_group_bps"`
	MinBetAmount              int64       `json:"min_bet_amount"`
	BetCutoffWindowSecs       int64       `json:"bet_cutoff_window_secs"`
	MinTimeFactorBps          int64       `json:"min_time_factor_bps"`
	MaxTimeFactorBps          int64       `json:"max_time_factor_bps"`
	DefaultDirectionFactorBps int64       `json:"default_direction_factor_bps"`
	RoundCounter              uint64      `json:"round_counter"`
	Status                    string      `json:"status"`
	Version                   int32       `json:"version"`
	AsOfSequence              int64       `json:"as_of_sequence"`
}

// RoundResponse is a round projection.
type RoundResponse struct {
	RoundID             uint64   `json:"round_id"`
	MarketType          string   `json:"market_type"`
	Status              string   `json:"status"`
	StartTime           int64    `json:"start_time"`
	EndTime             int64    `json:"end_time"`
	BetCutoffTime       int64    `json:"bet_cutoff_time"`
	StartPrice          *int64   `json:"start_price,omitempty"`
	FinalPrice          *int64   `json:"final_price,omitempty"`
	TotalBets           uint64   `json:"total_bets"`
	SettledBets         uint64   `json:"settled_bets"`
	TotalGroups         uint64   `json:"total_groups"`
	CapturedStartGroups uint64   `json:"captured_start_groups"`
	CapturedEndGroups   uint64   `json:"captured_end_groups"`
	WinnerGroupIDs      []uint64 `json:"winner_group_ids"`
	TotalPool           int64    `json:"total_pool"`
	TotalDrawStake      int64    `json:"total_draw_stake"`
	TotalFeeCollected   int64    `json:"total_fee_collected"`
	TotalRewardPool     int64    `json:"total_reward_pool"`
	WinnersWeight       int64    `json:"winners_weight"`
	CreatedAt           int64    `json:"created_at"`
	SettledAt           *int64   `json:"settled_at,omitempty"`
	AsOfSequence        int64    `json:"as_of_sequence"`
}

// GroupResponse is a group projection.
type GroupResponse struct {
	RoundID                   uint64 `json:"round_id"`
	GroupID                   uint64 `json:"group_id"`
	Symbol                    string `json:"symbol"`
	TotalAssets               uint64 `json:"total_assets"`
	FinalizedStartPriceAssets uint64 `json:"finalized_start_price_assets"`
	StartPriceAt              *int64 `json:"start_price_at,omitempty"`
	FinalizedEndPriceAssets   uint64 `json:"finalized_end_price_assets"`
	EndPriceCaptured          bool   `json:"end_price_captured"`
	TotalGrowthRateBps        int64  `json:"total_growth_rate_bps"`
	AvgGrowthRateBps          *int64 `json:"avg_growth_rate_bps,omitempty"`
	AsOfSequence              int64  `json:"as_of_sequence"`
}

// AssetResponse is an asset projection.
type AssetResponse struct {
	RoundID       uint64 `json:"round_id"`
	GroupID       uint64 `json:"group_id"`
	AssetID       uint64 `json:"asset_id"`
	Symbol        string `json:"symbol"`
	Feed          string `json:"feed"`
	StartPrice    *int64 `json:"start_price,omitempty"`
	FinalPrice    *int64 `json:"final_price,omitempty"`
	GrowthRateBps *int64 `json:"growth_rate_bps,omitempty"`
	AsOfSequence  int64  `json:"as_of_sequence"`
}

// BetResponse is a bet projection.
type BetResponse struct {
	RoundID      uint64    `json:"round_id"`
	BetID        uint64    `json:"bet_id"`
	GroupID      *uint64   `json:"group_id,omitempty"`
	Bettor       uuid.UUID `json:"bettor"`
	Amount       int64     `json:"amount"`
	Direction    string    `json:"direction"`
	TargetBps    int32     `json:"target_bps,omitempty"`
	Weight       int64     `json:"weight"`
	Status       string    `json:"status"`
	Claimed      bool      `json:"claimed"`
	CreatedAt    int64     `json:"created_at"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// BalanceResponse is a bettor's ledger balance derived from the journal.
type BalanceResponse struct {
	Bettor       uuid.UUID `json:"bettor"`
	Balance      int64     `json:"balance"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// JournalEntryResponse is one journal row touching an account.
type JournalEntryResponse struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	OpRef         string `json:"op_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}
