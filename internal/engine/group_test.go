package engine_test

import (
	"context"
	"errors"
	"testing"

	"RoundLedger/internal/engine"
	"RoundLedger/internal/state"
	"RoundLedger/internal/vault"

	"github.com/google/uuid"
)

var (
	feedDOG1 = mustFeed("a1")
	feedDOG2 = mustFeed("a2")
	feedCAT1 = mustFeed("b1")
	feedCAT2 = mustFeed("b2")
)

// groupScenario stands up a scheduled group-battle round with two groups of
// two assets each.
type groupScenario struct {
	f       *fixture
	roundID uint64
	dogs    uint64 // group 1: feedDOG1, feedDOG2
	cats    uint64 // group 2: feedCAT1, feedCAT2
}

func newGroupScenario(t *testing.T) *groupScenario {
	t.Helper()
	f := newFixture(t)
	f.initialize()

	roundID, err := f.eng.CreateRound(testAdmin, state.MarketTypeGroupBattle, f.now+60, f.now+3660)
	if err != nil {
		t.Fatalf("CreateRound failed: %v", err)
	}
	s := &groupScenario{f: f, roundID: roundID}

	s.dogs = s.mustGroup("DOGS")
	s.cats = s.mustGroup("CATS")
	s.mustAsset(s.dogs, "DOG1", feedDOG1)
	s.mustAsset(s.dogs, "DOG2", feedDOG2)
	s.mustAsset(s.cats, "CAT1", feedCAT1)
	s.mustAsset(s.cats, "CAT2", feedCAT2)
	return s
}

func (s *groupScenario) mustGroup(symbol string) uint64 {
	s.f.t.Helper()
	id, err := s.f.eng.InsertGroupAsset(testAdmin, s.roundID, symbol)
	if err != nil {
		s.f.t.Fatalf("InsertGroupAsset %s failed: %v", symbol, err)
	}
	return id
}

func (s *groupScenario) mustAsset(groupID uint64, symbol string, feed state.FeedID) uint64 {
	s.f.t.Helper()
	id, err := s.f.eng.InsertAsset(testAdmin, s.roundID, groupID, symbol, feed)
	if err != nil {
		s.f.t.Fatalf("InsertAsset %s failed: %v", symbol, err)
	}
	return id
}

func (s *groupScenario) groupRefs(groupID uint64) []engine.AssetPriceRef {
	s.f.t.Helper()
	var refs []engine.AssetPriceRef
	for _, a := range s.f.store.AssetsOfGroup(s.roundID, groupID) {
		refs = append(refs, engine.AssetPriceRef{AssetID: a.ID, Feed: a.Feed})
	}
	return refs
}

// captureAndFinalizeStart publishes the given start prices, captures both
// groups, finalizes them, and rolls the counts up to the round.
func (s *groupScenario) captureAndFinalizeStart(prices map[state.FeedID]int64) {
	t := s.f.t
	t.Helper()
	ctx := context.Background()
	for feed, price := range prices {
		s.f.setPrice(feed, price, -6)
	}
	for _, g := range []uint64{s.dogs, s.cats} {
		if err := s.f.eng.CaptureStartPrice(ctx, testKeeper, s.roundID, g, s.groupRefs(g)); err != nil {
			t.Fatalf("CaptureStartPrice group %d failed: %v", g, err)
		}
		if err := s.f.eng.FinalizeStartGroupAsset(testKeeper, s.roundID, g, []uint64{1, 2}); err != nil {
			t.Fatalf("FinalizeStartGroupAsset group %d failed: %v", g, err)
		}
	}
	if err := s.f.eng.FinalizeStartGroups(testKeeper, s.roundID, []uint64{s.dogs, s.cats}); err != nil {
		t.Fatalf("FinalizeStartGroups failed: %v", err)
	}
}

// activate starts the round once start capture is complete.
func (s *groupScenario) activate() {
	s.f.t.Helper()
	s.f.advance(60)
	if err := s.f.eng.StartRound(context.Background(), testKeeper, s.roundID); err != nil {
		s.f.t.Fatalf("StartRound failed: %v", err)
	}
}

// captureAndFinalizeEnd publishes end prices after the round end, captures
// both groups, and finalizes winner groups.
func (s *groupScenario) captureAndFinalizeEnd(prices map[state.FeedID]int64) {
	t := s.f.t
	t.Helper()
	ctx := context.Background()
	s.f.now = s.f.round(s.roundID).EndTime
	for feed, price := range prices {
		s.f.setPrice(feed, price, -6)
	}
	for _, g := range []uint64{s.dogs, s.cats} {
		if err := s.f.eng.CaptureEndPrice(ctx, testKeeper, s.roundID, g, s.groupRefs(g)); err != nil {
			t.Fatalf("CaptureEndPrice group %d failed: %v", g, err)
		}
		if err := s.f.eng.FinalizeEndGroupAsset(testKeeper, s.roundID, g, []uint64{1, 2}); err != nil {
			t.Fatalf("FinalizeEndGroupAsset group %d failed: %v", g, err)
		}
	}
	if err := s.f.eng.FinalizeEndGroups(testKeeper, s.roundID, []uint64{s.dogs, s.cats}); err != nil {
		t.Fatalf("FinalizeEndGroups failed: %v", err)
	}
}

func (s *groupScenario) group(id uint64) *state.GroupAsset {
	s.f.t.Helper()
	g, ok := s.f.store.Group(s.roundID, id)
	if !ok {
		s.f.t.Fatalf("group %d not found", id)
	}
	return g
}

var startPrices = map[state.FeedID]int64{
	feedDOG1: 1_000_000_000,
	feedDOG2: 1_000_000_000,
	feedCAT1: 2_000_000_000,
	feedCAT2: 2_000_000_000,
}

// dogsWinPrices: DOGS average +15% (bps 1000 and 2000), CATS average +5%.
var dogsWinPrices = map[state.FeedID]int64{
	feedDOG1: 1_100_000_000,
	feedDOG2: 1_200_000_000,
	feedCAT1: 2_100_000_000,
	feedCAT2: 2_100_000_000,
}

// ============================================================================
// Test: Group Setup
// ============================================================================

func TestInsertGroupAsset_Limits(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	roundID, err := f.eng.CreateRound(testAdmin, state.MarketTypeGroupBattle, f.now+60, f.now+3660)
	if err != nil {
		t.Fatalf("CreateRound failed: %v", err)
	}

	if _, err := f.eng.InsertGroupAsset(testAdmin, roundID, "toolongsymbol"); !errors.Is(err, engine.ErrInvalidSymbol) {
		t.Fatalf("expected ErrInvalidSymbol, got %v", err)
	}

	for i := 0; i < state.MaxGroupsPerRound; i++ {
		symbol := string(rune('A'+i)) + "GRP"
		if _, err := f.eng.InsertGroupAsset(testAdmin, roundID, symbol); err != nil {
			t.Fatalf("group %d failed: %v", i, err)
		}
	}
	if _, err := f.eng.InsertGroupAsset(testAdmin, roundID, "OVER"); !errors.Is(err, engine.ErrMaxGroupsReached) {
		t.Fatalf("expected ErrMaxGroupsReached, got %v", err)
	}
}

func TestInsertAsset_MaxPerGroup_Fails(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	roundID, err := f.eng.CreateRound(testAdmin, state.MarketTypeGroupBattle, f.now+60, f.now+3660)
	if err != nil {
		t.Fatalf("CreateRound failed: %v", err)
	}
	groupID, err := f.eng.InsertGroupAsset(testAdmin, roundID, "DOGS")
	if err != nil {
		t.Fatalf("InsertGroupAsset failed: %v", err)
	}

	for i := 0; i < state.MaxAssetsPerGroup; i++ {
		symbol := string(rune('A'+i)) + "DOG"
		if _, err := f.eng.InsertAsset(testAdmin, roundID, groupID, symbol, mustFeed("c1")); err != nil {
			t.Fatalf("asset %d failed: %v", i, err)
		}
	}
	if _, err := f.eng.InsertAsset(testAdmin, roundID, groupID, "OVER", mustFeed("c2")); !errors.Is(err, engine.ErrMaxAssetsReached) {
		t.Fatalf("expected ErrMaxAssetsReached, got %v", err)
	}
}

func TestInsertAsset_SingleAssetRound_Fails(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	id := f.createSingleRound()

	if _, err := f.eng.InsertGroupAsset(testAdmin, id, "DOGS"); !errors.Is(err, engine.ErrInvalidMarketType) {
		t.Fatalf("expected ErrInvalidMarketType, got %v", err)
	}
}

// ============================================================================
// Test: Start Capture
// ============================================================================

func TestCaptureStartPrice_ShortBatch_LeavesPricesUnset(t *testing.T) {
	s := newGroupScenario(t)
	s.f.setPrice(feedDOG1, 1_000_000_000, -6)

	refs := s.groupRefs(s.dogs)[:1]
	err := s.f.eng.CaptureStartPrice(context.Background(), testKeeper, s.roundID, s.dogs, refs)
	if !errors.Is(err, engine.ErrInvalidBatchLength) {
		t.Fatalf("expected ErrInvalidBatchLength, got %v", err)
	}
	for _, a := range s.f.store.AssetsOfGroup(s.roundID, s.dogs) {
		if a.StartPrice != nil {
			t.Fatalf("asset %d price must stay unset", a.ID)
		}
	}
}

func TestCaptureStartPrice_WrongFeed_Fails(t *testing.T) {
	s := newGroupScenario(t)

	refs := s.groupRefs(s.dogs)
	refs[0].Feed = feedCAT1
	err := s.f.eng.CaptureStartPrice(context.Background(), testKeeper, s.roundID, s.dogs, refs)
	if !errors.Is(err, engine.ErrInvalidPriceFeed) {
		t.Fatalf("expected ErrInvalidPriceFeed, got %v", err)
	}
}

func TestFinalizeStartGroupAsset_CountTracksCapture(t *testing.T) {
	s := newGroupScenario(t)

	// Nothing captured yet: count 0, no stamp.
	if err := s.f.eng.FinalizeStartGroupAsset(testKeeper, s.roundID, s.dogs, []uint64{1, 2}); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	g := s.group(s.dogs)
	if g.FinalizedStartPriceAssets != 0 || g.StartPriceAt != nil {
		t.Fatalf("expected count 0 and no stamp, got %d / %v",
			g.FinalizedStartPriceAssets, g.StartPriceAt)
	}

	for feed, price := range startPrices {
		s.f.setPrice(feed, price, -6)
	}
	if err := s.f.eng.CaptureStartPrice(context.Background(), testKeeper, s.roundID, s.dogs, s.groupRefs(s.dogs)); err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	if err := s.f.eng.FinalizeStartGroupAsset(testKeeper, s.roundID, s.dogs, []uint64{1, 2}); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	g = s.group(s.dogs)
	if g.FinalizedStartPriceAssets != g.TotalAssets {
		t.Fatalf("expected full count, got %d/%d", g.FinalizedStartPriceAssets, g.TotalAssets)
	}
	if g.StartPriceAt == nil {
		t.Fatal("expected start stamp once count equals total")
	}

	// Re-finalizing a stamped group fails.
	err := s.f.eng.FinalizeStartGroupAsset(testKeeper, s.roundID, s.dogs, []uint64{1, 2})
	if !errors.Is(err, engine.ErrGroupAlreadyFinalizedStart) {
		t.Fatalf("expected ErrGroupAlreadyFinalizedStart, got %v", err)
	}
}

func TestFinalizeStartGroups_Progression(t *testing.T) {
	s := newGroupScenario(t)
	s.captureAndFinalizeStart(startPrices)

	r := s.f.round(s.roundID)
	if r.CapturedStartGroups != r.TotalGroups {
		t.Fatalf("expected all groups captured, got %d/%d", r.CapturedStartGroups, r.TotalGroups)
	}

	err := s.f.eng.FinalizeStartGroups(testKeeper, s.roundID, []uint64{s.dogs, s.cats})
	if !errors.Is(err, engine.ErrRoundAlreadyCapturedStartPrice) {
		t.Fatalf("expected ErrRoundAlreadyCapturedStartPrice, got %v", err)
	}
}

func TestStartRound_GroupBattle_RequiresCapturedGroups(t *testing.T) {
	s := newGroupScenario(t)
	s.f.advance(60)

	err := s.f.eng.StartRound(context.Background(), testKeeper, s.roundID)
	if !errors.Is(err, engine.ErrRoundNotReady) {
		t.Fatalf("expected ErrRoundNotReady, got %v", err)
	}

	s.captureAndFinalizeStart(startPrices)
	if err := s.f.eng.StartRound(context.Background(), testKeeper, s.roundID); err != nil {
		t.Fatalf("StartRound failed: %v", err)
	}
	if s.f.round(s.roundID).Status != state.RoundStatusActive {
		t.Fatal("round must be active")
	}
}

// ============================================================================
// Test: End Capture and Winner Determination
// ============================================================================

func TestCaptureEndPrice_BeforeEnd_Fails(t *testing.T) {
	s := newGroupScenario(t)
	s.captureAndFinalizeStart(startPrices)
	s.activate()

	err := s.f.eng.CaptureEndPrice(context.Background(), testKeeper, s.roundID, s.dogs, s.groupRefs(s.dogs))
	if !errors.Is(err, engine.ErrRoundNotReadyForSettle) {
		t.Fatalf("expected ErrRoundNotReadyForSettle, got %v", err)
	}
}

func TestFinalizeEndGroupAsset_ComputesGrowth(t *testing.T) {
	s := newGroupScenario(t)
	s.captureAndFinalizeStart(startPrices)
	s.activate()
	s.captureAndFinalizeEnd(dogsWinPrices)

	g := s.group(s.dogs)
	if !g.EndPriceCaptured {
		t.Fatal("dogs group must be end-captured")
	}
	// +10% and +20% average to +15%.
	if g.TotalGrowthRateBps != 3000 {
		t.Errorf("expected total growth 3000 bps, got %d", g.TotalGrowthRateBps)
	}
	if g.AvgGrowthRateBps == nil || *g.AvgGrowthRateBps != 1500 {
		t.Errorf("expected avg growth 1500 bps, got %v", g.AvgGrowthRateBps)
	}

	err := s.f.eng.FinalizeEndGroupAsset(testKeeper, s.roundID, s.dogs, []uint64{1, 2})
	if !errors.Is(err, engine.ErrGroupAlreadyCapturedEndPrice) {
		t.Fatalf("expected ErrGroupAlreadyCapturedEndPrice, got %v", err)
	}
}

func TestFinalizeEndGroups_PicksMaxAvgGrowth(t *testing.T) {
	s := newGroupScenario(t)
	s.captureAndFinalizeStart(startPrices)
	s.activate()
	s.captureAndFinalizeEnd(dogsWinPrices)

	r := s.f.round(s.roundID)
	if len(r.WinnerGroupIDs) != 1 || r.WinnerGroupIDs[0] != s.dogs {
		t.Fatalf("expected winners [%d], got %v", s.dogs, r.WinnerGroupIDs)
	}
	if r.IsFullDraw() {
		t.Fatal("round must not be a full draw")
	}

	err := s.f.eng.FinalizeEndGroups(testKeeper, s.roundID, []uint64{s.dogs, s.cats})
	if !errors.Is(err, engine.ErrWinnersAlreadyFinalized) {
		t.Fatalf("expected ErrWinnersAlreadyFinalized, got %v", err)
	}
}

func TestFinalizeEndGroups_AllTied_IsFullDraw(t *testing.T) {
	s := newGroupScenario(t)
	s.captureAndFinalizeStart(startPrices)
	s.activate()
	// Both groups grow exactly +5%.
	s.captureAndFinalizeEnd(map[state.FeedID]int64{
		feedDOG1: 1_050_000_000,
		feedDOG2: 1_050_000_000,
		feedCAT1: 2_100_000_000,
		feedCAT2: 2_100_000_000,
	})

	r := s.f.round(s.roundID)
	if !r.IsFullDraw() {
		t.Fatalf("expected full draw, winners %v", r.WinnerGroupIDs)
	}
}

// ============================================================================
// Test: Group Settlement
// ============================================================================

func TestSettleGroupRound_WinnersAndLosers(t *testing.T) {
	s := newGroupScenario(t)
	s.captureAndFinalizeStart(startPrices)
	s.activate()

	dogBettor := uuid.New()
	catBettor := uuid.New()
	s.f.fund(dogBettor, 100_000)
	s.f.fund(catBettor, 100_000)

	dogBet, err := s.f.eng.PlaceBet(dogBettor, s.roundID, &s.dogs, 10_000, state.Up())
	if err != nil {
		t.Fatalf("dog bet failed: %v", err)
	}
	catBet, err := s.f.eng.PlaceBet(catBettor, s.roundID, &s.cats, 10_000, state.Up())
	if err != nil {
		t.Fatalf("cat bet failed: %v", err)
	}

	s.captureAndFinalizeEnd(dogsWinPrices)

	if err := s.f.eng.SettleGroupRound(testKeeper, s.roundID, []uint64{dogBet, catBet}); err != nil {
		t.Fatalf("SettleGroupRound failed: %v", err)
	}

	if got := s.f.bet(s.roundID, dogBet).Status; got != state.BetStatusWon {
		t.Errorf("dog bet: expected won, got %s", got)
	}
	if got := s.f.bet(s.roundID, catBet).Status; got != state.BetStatusLost {
		t.Errorf("cat bet: expected lost, got %s", got)
	}

	r := s.f.round(s.roundID)
	if r.Status != state.RoundStatusEnded {
		t.Fatalf("expected ended, got %s", r.Status)
	}
	// Group fee: 2% of the 20_000 pot.
	if r.TotalFeeCollected != 400 {
		t.Errorf("expected fee 400, got %d", r.TotalFeeCollected)
	}

	amount, err := s.f.eng.ClaimReward(dogBettor, s.roundID, dogBet)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if amount != r.TotalRewardPool {
		t.Fatalf("sole winner must take the whole reward pool %d, got %d",
			r.TotalRewardPool, amount)
	}
}

func TestSettleGroupRound_FullDraw_RefundsEveryone(t *testing.T) {
	s := newGroupScenario(t)
	s.captureAndFinalizeStart(startPrices)
	s.activate()

	bettor := uuid.New()
	s.f.fund(bettor, 100_000)
	betID, err := s.f.eng.PlaceBet(bettor, s.roundID, &s.dogs, 10_000, state.Up())
	if err != nil {
		t.Fatalf("bet failed: %v", err)
	}

	s.captureAndFinalizeEnd(map[state.FeedID]int64{
		feedDOG1: 1_050_000_000,
		feedDOG2: 1_050_000_000,
		feedCAT1: 2_100_000_000,
		feedCAT2: 2_100_000_000,
	})

	if err := s.f.eng.SettleGroupRound(testKeeper, s.roundID, []uint64{betID}); err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	r := s.f.round(s.roundID)
	if got := s.f.bet(s.roundID, betID).Status; got != state.BetStatusDraw {
		t.Fatalf("expected draw, got %s", got)
	}
	if r.TotalFeeCollected != 0 {
		t.Fatalf("full draw must take no fee, got %d", r.TotalFeeCollected)
	}

	amount, err := s.f.eng.ClaimReward(bettor, s.roundID, betID)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if amount != 10_000 {
		t.Fatalf("expected full refund 10_000, got %d", amount)
	}
	if got := s.f.vault.Balance(vault.NewBettorAccount(bettor)); got != 100_000 {
		t.Fatalf("bettor must be made whole, got %d", got)
	}
}

func TestSettleGroupRound_BeforeWinners_Fails(t *testing.T) {
	s := newGroupScenario(t)
	s.captureAndFinalizeStart(startPrices)
	s.activate()

	err := s.f.eng.SettleGroupRound(testKeeper, s.roundID, nil)
	if !errors.Is(err, engine.ErrRoundNotReady) {
		t.Fatalf("expected ErrRoundNotReady, got %v", err)
	}
}

func TestPlaceBet_GroupBattleWithoutGroup_Fails(t *testing.T) {
	s := newGroupScenario(t)
	s.captureAndFinalizeStart(startPrices)
	s.activate()

	bettor := uuid.New()
	s.f.fund(bettor, 100_000)

	if _, err := s.f.eng.PlaceBet(bettor, s.roundID, nil, 10_000, state.Up()); !errors.Is(err, engine.ErrGroupRequired) {
		t.Fatalf("expected ErrGroupRequired, got %v", err)
	}

	unknown := uint64(99)
	if _, err := s.f.eng.PlaceBet(bettor, s.roundID, &unknown, 10_000, state.Up()); !errors.Is(err, engine.ErrInvalidGroupAssetAccount) {
		t.Fatalf("expected ErrInvalidGroupAssetAccount, got %v", err)
	}
}
