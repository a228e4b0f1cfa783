package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"RoundLedger/internal/command"
	"RoundLedger/internal/engine"
	"RoundLedger/internal/state"
)

// ParseCommand converts a JSON payload into a typed command. The command type
// comes from the NATS subject suffix (or the HTTP route), not the payload.
func ParseCommand(commandType string, data []byte) (command.Command, error) {
	switch commandType {
	case "initialize":
		return parseInitialize(data)
	case "update_config":
		return parseUpdateConfig(data)
	case "emergency_pause":
		return parseEmergencyPause(data)
	case "emergency_unpause":
		return parseEmergencyUnpause(data)
	case "create_round":
		return parseCreateRound(data)
	case "insert_group_asset":
		return parseInsertGroupAsset(data)
	case "insert_asset":
		return parseInsertAsset(data)
	case "start_round":
		return parseStartRound(data)
	case "capture_start_price":
		return parseCapturePrice(data, false)
	case "capture_end_price":
		return parseCapturePrice(data, true)
	case "finalize_start_group_asset":
		return parseFinalizeGroupAsset(data, false)
	case "finalize_end_group_asset":
		return parseFinalizeGroupAsset(data, true)
	case "finalize_start_groups":
		return parseFinalizeGroups(data, false)
	case "finalize_end_groups":
		return parseFinalizeGroups(data, true)
	case "settle_single_round":
		return parseSettleRound(data, false)
	case "settle_group_round":
		return parseSettleRound(data, true)
	case "deposit":
		return parseDeposit(data)
	case "withdraw":
		return parseWithdraw(data)
	case "place_bet":
		return parsePlaceBet(data)
	case "claim_reward":
		return parseClaimReward(data)
	default:
		return nil, fmt.Errorf("unknown command type: %s", commandType)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers.

type baseJSON struct {
	CommandID string `json:"command_id"`
	Caller    string `json:"caller"`
}

func (b baseJSON) base() (command.Base, error) {
	caller, err := uuid.Parse(b.Caller)
	if err != nil {
		return command.Base{}, fmt.Errorf("parse caller: %w", err)
	}
	return command.Base{ID: b.CommandID, Caller: caller}, nil
}

type configParamsJSON struct {
	baseJSON
	Keepers                   []string `json:"keepers"`
	Treasury                  string   `json:"treasury"`
	OracleFeed                string   `json:"oracle_feed"`
	MaxPriceAgeSecs           int64    `json:"max_price_age_secs"`
	FeeSingleBps              int64    `json:"fee_single_bps"`
	FeeGroupBps               int64    `json:"fee_group_bps"`
	MinBetAmount              int64    `json:"min_bet_amount"`
	BetCutoffWindowSecs       int64    `json:"bet_cutoff_window_secs"`
	MinTimeFactorBps          int64    `json:"min_time_factor_bps"`
	MaxTimeFactorBps          int64    `json:"max_time_factor_bps"`
	DefaultDirectionFactorBps int64    `json:"default_direction_factor_bps"`
}

func (j configParamsJSON) params() (engine.ConfigParams, error) {
	var p engine.ConfigParams

	for i, k := range j.Keepers {
		keeper, err := uuid.Parse(k)
		if err != nil {
			return p, fmt.Errorf("parse keeper %d: %w", i, err)
		}
		p.Keepers = append(p.Keepers, keeper)
	}

	treasury, err := uuid.Parse(j.Treasury)
	if err != nil {
		return p, fmt.Errorf("parse treasury: %w", err)
	}
	feed, err := state.ParseFeedID(j.OracleFeed)
	if err != nil {
		return p, fmt.Errorf("parse oracle_feed: %w", err)
	}

	p.Treasury = treasury
	p.OracleFeed = feed
	p.MaxPriceAgeSecs = j.MaxPriceAgeSecs
	p.FeeSingleBps = j.FeeSingleBps
	p.FeeGroupBps = j.FeeGroupBps
	p.MinBetAmount = j.MinBetAmount
	p.BetCutoffWindowSecs = j.BetCutoffWindowSecs
	p.MinTimeFactorBps = j.MinTimeFactorBps
	p.MaxTimeFactorBps = j.MaxTimeFactorBps
	p.DefaultDirectionFactorBps = j.DefaultDirectionFactorBps
	return p, nil
}

func parseInitialize(data []byte) (*command.Initialize, error) {
	var j configParamsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse initialize: %w", err)
	}
	base, err := j.base()
	if err != nil {
		return nil, err
	}
	params, err := j.params()
	if err != nil {
		return nil, err
	}
	return &command.Initialize{Base: base, Params: params}, nil
}

func parseUpdateConfig(data []byte) (*command.UpdateConfig, error) {
	var j configParamsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse update_config: %w", err)
	}
	base, err := j.base()
	if err != nil {
		return nil, err
	}
	params, err := j.params()
	if err != nil {
		return nil, err
	}
	return &command.UpdateConfig{Base: base, Params: params}, nil
}

func parseEmergencyPause(data []byte) (*command.EmergencyPause, error) {
	var j baseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse emergency_pause: %w", err)
	}
	base, err := j.base()
	if err != nil {
		return nil, err
	}
	return &command.EmergencyPause{Base: base}, nil
}

func parseEmergencyUnpause(data []byte) (*command.EmergencyUnpause, error) {
	var j baseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse emergency_unpause: %w", err)
	}
	base, err := j.base()
	if err != nil {
		return nil, err
	}
	return &command.EmergencyUnpause{Base: base}, nil
}

type createRoundJSON struct {
	baseJSON
	MarketType string `json:"market_type"`
	StartTime  int64  `json:"start_time"`
	EndTime    int64  `json:"end_time"`
}

func parseCreateRound(data []byte) (*command.CreateRound, error) {
	var j createRoundJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse create_round: %w", err)
	}
	base, err := j.base()
	if err != nil {
		return nil, err
	}

	var marketType state.MarketType
	switch j.MarketType {
	case "single_asset":
		marketType = state.MarketTypeSingleAsset
	case "group_battle":
		marketType = state.MarketTypeGroupBattle
	default:
		return nil, fmt.Errorf("unknown market_type: %q", j.MarketType)
	}

	return &command.CreateRound{
		Base:       base,
		MarketType: marketType,
		StartTime:  j.StartTime,
		EndTime:    j.EndTime,
	}, nil
}

type insertGroupJSON struct {
	baseJSON
	RoundID uint64 `json:"round_id"`
	Symbol  string `json:"symbol"`
}

func parseInsertGroupAsset(data []byte) (*command.InsertGroupAsset, error) {
	var j insertGroupJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse insert_group_asset: %w", err)
	}
	base, err := j.base()
	if err != nil {
		return nil, err
	}
	return &command.InsertGroupAsset{Base: base, RoundID: j.RoundID, Symbol: j.Symbol}, nil
}

type insertAssetJSON struct {
	baseJSON
	RoundID uint64 `json:"round_id"`
	GroupID uint64 `json:"group_id"`
	Symbol  string `json:"symbol"`
	Feed    string `json:"feed"`
}

func parseInsertAsset(data []byte) (*command.InsertAsset, error) {
	var j insertAssetJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse insert_asset: %w", err)
	}
	base, err := j.base()
	if err != nil {
		return nil, err
	}
	feed, err := state.ParseFeedID(j.Feed)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return &command.InsertAsset{
		Base:    base,
		RoundID: j.RoundID,
		GroupID: j.GroupID,
		Symbol:  j.Symbol,
		Feed:    feed,
	}, nil
}

type startRoundJSON struct {
	baseJSON
	RoundID uint64 `json:"round_id"`
}

func parseStartRound(data []byte) (*command.StartRound, error) {
	var j startRoundJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse start_round: %w", err)
	}
	base, err := j.base()
	if err != nil {
		return nil, err
	}
	return &command.StartRound{Base: base, RoundID: j.RoundID}, nil
}

type priceRefJSON struct {
	AssetID uint64 `json:"asset_id"`
	Feed    string `json:"feed"`
}

type captureJSON struct {
	baseJSON
	RoundID uint64         `json:"round_id"`
	GroupID uint64         `json:"group_id"`
	Refs    []priceRefJSON `json:"refs"`
}

func parseCapturePrice(data []byte, end bool) (command.Command, error) {
	var j captureJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse capture price: %w", err)
	}
	base, err := j.base()
	if err != nil {
		return nil, err
	}

	refs := make([]engine.AssetPriceRef, 0, len(j.Refs))
	for i, r := range j.Refs {
		feed, err := state.ParseFeedID(r.Feed)
		if err != nil {
			return nil, fmt.Errorf("parse ref %d feed: %w", i, err)
		}
		refs = append(refs, engine.AssetPriceRef{AssetID: r.AssetID, Feed: feed})
	}

	if end {
		return &command.CaptureEndPrice{
			Base: base, RoundID: j.RoundID, GroupID: j.GroupID, Refs: refs,
		}, nil
	}
	return &command.CaptureStartPrice{
		Base: base, RoundID: j.RoundID, GroupID: j.GroupID, Refs: refs,
	}, nil
}

type finalizeGroupAssetJSON struct {
	baseJSON
	RoundID  uint64   `json:"round_id"`
	GroupID  uint64   `json:"group_id"`
	AssetIDs []uint64 `json:"asset_ids"`
}

func parseFinalizeGroupAsset(data []byte, end bool) (command.Command, error) {
	var j finalizeGroupAssetJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse finalize group asset: %w", err)
	}
	base, err := j.base()
	if err != nil {
		return nil, err
	}
	if end {
		return &command.FinalizeEndGroupAsset{
			Base: base, RoundID: j.RoundID, GroupID: j.GroupID, AssetIDs: j.AssetIDs,
		}, nil
	}
	return &command.FinalizeStartGroupAsset{
		Base: base, RoundID: j.RoundID, GroupID: j.GroupID, AssetIDs: j.AssetIDs,
	}, nil
}

type finalizeGroupsJSON struct {
	baseJSON
	RoundID  uint64   `json:"round_id"`
	GroupIDs []uint64 `json:"group_ids"`
}

func parseFinalizeGroups(data []byte, end bool) (command.Command, error) {
	var j finalizeGroupsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse finalize groups: %w", err)
	}
	base, err := j.base()
	if err != nil {
		return nil, err
	}
	if end {
		return &command.FinalizeEndGroups{Base: base, RoundID: j.RoundID, GroupIDs: j.GroupIDs}, nil
	}
	return &command.FinalizeStartGroups{Base: base, RoundID: j.RoundID, GroupIDs: j.GroupIDs}, nil
}

type settleJSON struct {
	baseJSON
	RoundID uint64   `json:"round_id"`
	BetIDs  []uint64 `json:"bet_ids"`
}

func parseSettleRound(data []byte, group bool) (command.Command, error) {
	var j settleJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse settle round: %w", err)
	}
	base, err := j.base()
	if err != nil {
		return nil, err
	}
	if group {
		return &command.SettleGroupRound{Base: base, RoundID: j.RoundID, BetIDs: j.BetIDs}, nil
	}
	return &command.SettleSingleRound{Base: base, RoundID: j.RoundID, BetIDs: j.BetIDs}, nil
}

type amountJSON struct {
	baseJSON
	Amount int64 `json:"amount"`
}

func parseDeposit(data []byte) (*command.Deposit, error) {
	var j amountJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse deposit: %w", err)
	}
	base, err := j.base()
	if err != nil {
		return nil, err
	}
	return &command.Deposit{Base: base, Amount: j.Amount}, nil
}

func parseWithdraw(data []byte) (*command.Withdraw, error) {
	var j amountJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse withdraw: %w", err)
	}
	base, err := j.base()
	if err != nil {
		return nil, err
	}
	return &command.Withdraw{Base: base, Amount: j.Amount}, nil
}

type placeBetJSON struct {
	baseJSON
	RoundID   uint64  `json:"round_id"`
	GroupID   *uint64 `json:"group_id,omitempty"`
	Amount    int64   `json:"amount"`
	Direction string  `json:"direction"`
	TargetBps int32   `json:"target_bps"`
}

func parsePlaceBet(data []byte) (*command.PlaceBet, error) {
	var j placeBetJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse place_bet: %w", err)
	}
	base, err := j.base()
	if err != nil {
		return nil, err
	}

	var dir state.Direction
	switch j.Direction {
	case "up":
		dir = state.Up()
	case "down":
		dir = state.Down()
	case "percent_change":
		dir = state.PercentChange(j.TargetBps)
	default:
		return nil, fmt.Errorf("unknown direction: %q", j.Direction)
	}

	return &command.PlaceBet{
		Base:      base,
		RoundID:   j.RoundID,
		GroupID:   j.GroupID,
		Amount:    j.Amount,
		Direction: dir,
	}, nil
}

type claimJSON struct {
	baseJSON
	RoundID uint64 `json:"round_id"`
	BetID   uint64 `json:"bet_id"`
}

func parseClaimReward(data []byte) (*command.ClaimReward, error) {
	var j claimJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse claim_reward: %w", err)
	}
	base, err := j.base()
	if err != nil {
		return nil, err
	}
	return &command.ClaimReward{Base: base, RoundID: j.RoundID, BetID: j.BetID}, nil
}
