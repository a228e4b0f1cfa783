package ingestion_test

import (
	"encoding/json"
	"strings"
	"testing"

	"RoundLedger/internal/command"
	"RoundLedger/internal/ingestion"
	"RoundLedger/internal/state"
)

func marshalPayload(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

const (
	testCallerID = "550e8400-e29b-41d4-a716-446655440000"
	testFeedHex  = "11ce6ac915d93c8e9a9a2e7f2f8a3b4c5d6e7f8090a0b0c0d0e0f01020304050"
)

func TestParseCreateRound(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":  "cmd-001",
		"caller":      testCallerID,
		"market_type": "group_battle",
		"start_time":  int64(1_700_000_060),
		"end_time":    int64(1_700_003_660),
	}

	cmd, err := ingestion.ParseCommand("create_round", marshalPayload(t, payload))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cr, ok := cmd.(*command.CreateRound)
	if !ok {
		t.Fatalf("expected *command.CreateRound, got %T", cmd)
	}

	if cr.CommandID() != "cmd-001" {
		t.Errorf("command id: got %s, want cmd-001", cr.CommandID())
	}
	if cr.CallerID().String() != testCallerID {
		t.Errorf("caller: got %s, want %s", cr.CallerID(), testCallerID)
	}
	if cr.MarketType != state.MarketTypeGroupBattle {
		t.Errorf("market type: got %v, want group_battle", cr.MarketType)
	}
	if cr.StartTime != 1_700_000_060 || cr.EndTime != 1_700_003_660 {
		t.Errorf("window: got [%d, %d]", cr.StartTime, cr.EndTime)
	}
}

func TestParseCreateRoundUnknownMarketType(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":  "cmd-002",
		"caller":      testCallerID,
		"market_type": "ternary",
		"start_time":  int64(1),
		"end_time":    int64(2),
	}

	_, err := ingestion.ParseCommand("create_round", marshalPayload(t, payload))
	if err == nil {
		t.Fatal("expected error for unknown market type")
	}
	if !strings.Contains(err.Error(), "market_type") {
		t.Errorf("error should name market_type, got: %v", err)
	}
}

func TestParsePlaceBet(t *testing.T) {
	tests := []struct {
		name      string
		direction string
		targetBps int32
		want      state.Direction
	}{
		{"up", "up", 0, state.Up()},
		{"down", "down", 0, state.Down()},
		{"percent change", "percent_change", -250, state.PercentChange(-250)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := map[string]interface{}{
				"command_id": "cmd-bet",
				"caller":     testCallerID,
				"round_id":   uint64(7),
				"amount":     int64(25_000),
				"direction":  tt.direction,
				"target_bps": tt.targetBps,
			}

			cmd, err := ingestion.ParseCommand("place_bet", marshalPayload(t, payload))
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}

			pb, ok := cmd.(*command.PlaceBet)
			if !ok {
				t.Fatalf("expected *command.PlaceBet, got %T", cmd)
			}
			if pb.RoundID != 7 {
				t.Errorf("round id: got %d, want 7", pb.RoundID)
			}
			if pb.Amount != 25_000 {
				t.Errorf("amount: got %d, want 25_000", pb.Amount)
			}
			if pb.Direction != tt.want {
				t.Errorf("direction: got %+v, want %+v", pb.Direction, tt.want)
			}
			if pb.GroupID != nil {
				t.Errorf("group id should be nil, got %d", *pb.GroupID)
			}
		})
	}
}

func TestParsePlaceBetWithGroup(t *testing.T) {
	payload := map[string]interface{}{
		"command_id": "cmd-bet-group",
		"caller":     testCallerID,
		"round_id":   uint64(3),
		"group_id":   uint64(2),
		"amount":     int64(10_000),
		"direction":  "up",
	}

	cmd, err := ingestion.ParseCommand("place_bet", marshalPayload(t, payload))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	pb := cmd.(*command.PlaceBet)
	if pb.GroupID == nil || *pb.GroupID != 2 {
		t.Fatalf("group id: got %v, want 2", pb.GroupID)
	}
}

func TestParsePlaceBetUnknownDirection(t *testing.T) {
	payload := map[string]interface{}{
		"command_id": "cmd-bad-dir",
		"caller":     testCallerID,
		"round_id":   uint64(1),
		"amount":     int64(10_000),
		"direction":  "sideways",
	}

	_, err := ingestion.ParseCommand("place_bet", marshalPayload(t, payload))
	if err == nil {
		t.Fatal("expected error for unknown direction")
	}
}

func TestParseInitialize(t *testing.T) {
	keeper := "660e8400-e29b-41d4-a716-446655440001"
	treasury := "770e8400-e29b-41d4-a716-446655440002"
	payload := map[string]interface{}{
		"command_id":                   "cmd-init",
		"caller":                       testCallerID,
		"keepers":                      []string{keeper},
		"treasury":                     treasury,
		"oracle_feed":                  testFeedHex,
		"max_price_age_secs":           int64(30),
		"fee_single_bps":               int64(300),
		"fee_group_bps":                int64(200),
		"min_bet_amount":               int64(1_000),
		"bet_cutoff_window_secs":       int64(600),
		"min_time_factor_bps":          int64(10_000),
		"max_time_factor_bps":          int64(20_000),
		"default_direction_factor_bps": int64(10_000),
	}

	cmd, err := ingestion.ParseCommand("initialize", marshalPayload(t, payload))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	init, ok := cmd.(*command.Initialize)
	if !ok {
		t.Fatalf("expected *command.Initialize, got %T", cmd)
	}
	if len(init.Params.Keepers) != 1 || init.Params.Keepers[0].String() != keeper {
		t.Errorf("keepers: got %v", init.Params.Keepers)
	}
	if init.Params.Treasury.String() != treasury {
		t.Errorf("treasury: got %s", init.Params.Treasury)
	}
	if init.Params.OracleFeed.String() != testFeedHex {
		t.Errorf("oracle feed: got %s", init.Params.OracleFeed)
	}
	if init.Params.FeeSingleBps != 300 || init.Params.FeeGroupBps != 200 {
		t.Errorf("fees: got %d/%d", init.Params.FeeSingleBps, init.Params.FeeGroupBps)
	}
}

func TestParseCaptureStartPrice(t *testing.T) {
	payload := map[string]interface{}{
		"command_id": "cmd-capture",
		"caller":     testCallerID,
		"round_id":   uint64(4),
		"group_id":   uint64(1),
		"refs": []map[string]interface{}{
			{"asset_id": uint64(1), "feed": testFeedHex},
			{"asset_id": uint64(2), "feed": testFeedHex},
		},
	}

	cmd, err := ingestion.ParseCommand("capture_start_price", marshalPayload(t, payload))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cp, ok := cmd.(*command.CaptureStartPrice)
	if !ok {
		t.Fatalf("expected *command.CaptureStartPrice, got %T", cmd)
	}
	if len(cp.Refs) != 2 {
		t.Fatalf("refs: got %d, want 2", len(cp.Refs))
	}
	if cp.Refs[0].AssetID != 1 || cp.Refs[1].AssetID != 2 {
		t.Errorf("asset ids: got %d, %d", cp.Refs[0].AssetID, cp.Refs[1].AssetID)
	}
	if cp.Refs[0].Feed.String() != testFeedHex {
		t.Errorf("feed: got %s", cp.Refs[0].Feed)
	}
}

func TestParseSettleSingleRound(t *testing.T) {
	payload := map[string]interface{}{
		"command_id": "cmd-settle",
		"caller":     testCallerID,
		"round_id":   uint64(9),
		"bet_ids":    []uint64{1, 2, 3},
	}

	cmd, err := ingestion.ParseCommand("settle_single_round", marshalPayload(t, payload))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	sr, ok := cmd.(*command.SettleSingleRound)
	if !ok {
		t.Fatalf("expected *command.SettleSingleRound, got %T", cmd)
	}
	if sr.RoundID != 9 || len(sr.BetIDs) != 3 {
		t.Errorf("got round %d with %d bets", sr.RoundID, len(sr.BetIDs))
	}
}

func TestParseInvalidCaller(t *testing.T) {
	payload := map[string]interface{}{
		"command_id": "cmd-bad-caller",
		"caller":     "not-a-uuid",
		"amount":     int64(5_000),
	}

	_, err := ingestion.ParseCommand("deposit", marshalPayload(t, payload))
	if err == nil {
		t.Fatal("expected error for invalid caller uuid")
	}
}

func TestParseUnknownCommandType(t *testing.T) {
	_, err := ingestion.ParseCommand("transmogrify", []byte("{}"))
	if err == nil {
		t.Fatal("expected error for unknown command type")
	}
}
