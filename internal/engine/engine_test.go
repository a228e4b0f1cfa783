package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"RoundLedger/internal/engine"
	"RoundLedger/internal/oracle"
	"RoundLedger/internal/state"
	"RoundLedger/internal/vault"

	"github.com/google/uuid"
)

// --- Test helpers ---

var (
	testAdmin    = uuid.New()
	testKeeper   = uuid.New()
	testTreasury = uuid.New()
	testFeed     = mustFeed("11")
)

func mustFeed(firstByte string) state.FeedID {
	hex := firstByte
	for len(hex) < 64 {
		hex += "00"
	}
	f, err := state.ParseFeedID(hex)
	if err != nil {
		panic(err)
	}
	return f
}

// fixture wires an engine to a controllable clock, a static oracle, a real
// vault, and a buffered persist channel.
type fixture struct {
	t       *testing.T
	eng     *engine.Engine
	store   *state.Store
	vault   *vault.Vault
	oracle  *oracle.StaticReader
	now     int64
	persist chan engine.Output
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:       t,
		store:   state.NewStore(),
		vault:   vault.NewVault(),
		oracle:  oracle.NewStaticReader(),
		now:     1_700_000_000,
		persist: make(chan engine.Output, 1024),
	}
	f.eng = engine.New(f.store, f.vault, f.oracle, engine.Options{
		Clock:       func() time.Time { return time.Unix(f.now, 0) },
		PersistChan: f.persist,
	})
	return f
}

func defaultParams() engine.ConfigParams {
	return engine.ConfigParams{
		Keepers:                   []uuid.UUID{testKeeper},
		Treasury:                  testTreasury,
		OracleFeed:                testFeed,
		MaxPriceAgeSecs:           30,
		FeeSingleBps:              300,
		FeeGroupBps:               200,
		MinBetAmount:              1_000,
		BetCutoffWindowSecs:       600,
		MinTimeFactorBps:          10_000,
		MaxTimeFactorBps:          20_000,
		DefaultDirectionFactorBps: 10_000,
	}
}

func (f *fixture) initialize() {
	f.t.Helper()
	if err := f.eng.Initialize(testAdmin, defaultParams()); err != nil {
		f.t.Fatalf("Initialize failed: %v", err)
	}
}

func (f *fixture) advance(secs int64) {
	f.now += secs
}

// setPrice publishes a fresh price on a feed at the fixture's current time.
func (f *fixture) setPrice(feed state.FeedID, price int64, expo int32) {
	f.oracle.Set(feed, oracle.Price{Price: price, Exponent: expo, PublishTime: f.now})
}

func (f *fixture) fund(bettor uuid.UUID, amount int64) {
	f.t.Helper()
	if err := f.eng.Deposit(bettor, amount); err != nil {
		f.t.Fatalf("Deposit failed: %v", err)
	}
}

// createSingleRound schedules a single-asset round starting in 60s and
// running for one hour, then returns its id.
func (f *fixture) createSingleRound() uint64 {
	f.t.Helper()
	id, err := f.eng.CreateRound(testAdmin, state.MarketTypeSingleAsset, f.now+60, f.now+3660)
	if err != nil {
		f.t.Fatalf("CreateRound failed: %v", err)
	}
	return id
}

// startSingleRound moves the clock past the start time, publishes startPrice
// on the config feed, and activates the round.
func (f *fixture) startSingleRound(roundID uint64, startPrice int64) {
	f.t.Helper()
	f.advance(60)
	f.setPrice(testFeed, startPrice, -6)
	if err := f.eng.StartRound(context.Background(), testKeeper, roundID); err != nil {
		f.t.Fatalf("StartRound failed: %v", err)
	}
}

func (f *fixture) round(id uint64) *state.Round {
	f.t.Helper()
	r, ok := f.store.Round(id)
	if !ok {
		f.t.Fatalf("round %d not found", id)
	}
	return r
}

func (f *fixture) bet(roundID, betID uint64) *state.Bet {
	f.t.Helper()
	b, ok := f.store.Bet(roundID, betID)
	if !ok {
		f.t.Fatalf("bet %d in round %d not found", betID, roundID)
	}
	return b
}

func (f *fixture) drainOutputs() []engine.Output {
	var outputs []engine.Output
	for {
		select {
		case o := <-f.persist:
			outputs = append(outputs, o)
		default:
			return outputs
		}
	}
}

// ============================================================================
// Test: Initialize
// ============================================================================

func TestInitialize_EmptyKeepers_Fails(t *testing.T) {
	f := newFixture(t)
	p := defaultParams()
	p.Keepers = nil

	err := f.eng.Initialize(testAdmin, p)
	if !errors.Is(err, engine.ErrInvalidKeeperAuthorities) {
		t.Fatalf("expected ErrInvalidKeeperAuthorities, got %v", err)
	}
	if f.store.Config() != nil {
		t.Fatal("config must not be created on rejection")
	}
}

func TestInitialize_SetsTreasuryAndDefaults(t *testing.T) {
	f := newFixture(t)
	f.initialize()

	cfg := f.store.Config()
	if cfg == nil {
		t.Fatal("config not created")
	}
	if cfg.Treasury != testTreasury {
		t.Errorf("expected treasury %s, got %s", testTreasury, cfg.Treasury)
	}
	if cfg.Admin != testAdmin {
		t.Errorf("expected admin %s, got %s", testAdmin, cfg.Admin)
	}
	if cfg.RoundCounter != 0 {
		t.Errorf("expected round counter 0, got %d", cfg.RoundCounter)
	}
	if cfg.Status != state.ProgramStatusActive {
		t.Errorf("expected active status, got %s", cfg.Status)
	}
}

func TestInitialize_Twice_Fails(t *testing.T) {
	f := newFixture(t)
	f.initialize()

	err := f.eng.Initialize(testAdmin, defaultParams())
	if !errors.Is(err, engine.ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestInitialize_InvalidBounds_Fail(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*engine.ConfigParams)
		wantErr error
	}{
		{"fee over 100%", func(p *engine.ConfigParams) { p.FeeSingleBps = 10_001 }, engine.ErrInvalidFee},
		{"negative group fee", func(p *engine.ConfigParams) { p.FeeGroupBps = -1 }, engine.ErrInvalidFee},
		{"zero min bet", func(p *engine.ConfigParams) { p.MinBetAmount = 0 }, engine.ErrInvalidMinBetAmount},
		{"min above max time factor", func(p *engine.ConfigParams) { p.MinTimeFactorBps = 30_000 }, engine.ErrInvalidTimeFactorRange},
		{"zero direction factor", func(p *engine.ConfigParams) { p.DefaultDirectionFactorBps = 0 }, engine.ErrInvalidDirectionFactor},
		{"zero price age", func(p *engine.ConfigParams) { p.MaxPriceAgeSecs = 0 }, engine.ErrInvalidPriceAge},
		{"negative cutoff window", func(p *engine.ConfigParams) { p.BetCutoffWindowSecs = -1 }, engine.ErrInvalidCutoffWindow},
		{"too many keepers", func(p *engine.ConfigParams) {
			p.Keepers = nil
			for i := 0; i < state.MaxKeepers+1; i++ {
				p.Keepers = append(p.Keepers, uuid.New())
			}
		}, engine.ErrInvalidKeeperAuthorities},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p := defaultParams()
			tt.mutate(&p)
			if err := f.eng.Initialize(testAdmin, p); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestUpdateConfig_NonAdmin_Fails(t *testing.T) {
	f := newFixture(t)
	f.initialize()

	err := f.eng.UpdateConfig(testKeeper, defaultParams())
	if !errors.Is(err, engine.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestUpdateConfig_BumpsVersion(t *testing.T) {
	f := newFixture(t)
	f.initialize()

	p := defaultParams()
	p.MinBetAmount = 5_000
	if err := f.eng.UpdateConfig(testAdmin, p); err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}

	cfg := f.store.Config()
	if cfg.Version != 2 {
		t.Errorf("expected version 2, got %d", cfg.Version)
	}
	if cfg.MinBetAmount != 5_000 {
		t.Errorf("expected min bet 5000, got %d", cfg.MinBetAmount)
	}
}

// ============================================================================
// Test: Emergency Pause
// ============================================================================

func TestEmergencyPause_BlocksMutations(t *testing.T) {
	f := newFixture(t)
	f.initialize()

	if err := f.eng.EmergencyPause(testAdmin); err != nil {
		t.Fatalf("EmergencyPause failed: %v", err)
	}

	_, err := f.eng.CreateRound(testAdmin, state.MarketTypeSingleAsset, f.now+60, f.now+3660)
	if !errors.Is(err, engine.ErrEmergencyPaused) {
		t.Fatalf("expected ErrEmergencyPaused, got %v", err)
	}
	if err := f.eng.Deposit(uuid.New(), 1_000); !errors.Is(err, engine.ErrEmergencyPaused) {
		t.Fatalf("expected ErrEmergencyPaused for deposit, got %v", err)
	}
}

func TestEmergencyPause_Twice_Fails(t *testing.T) {
	f := newFixture(t)
	f.initialize()

	if err := f.eng.EmergencyPause(testAdmin); err != nil {
		t.Fatalf("first pause failed: %v", err)
	}
	if err := f.eng.EmergencyPause(testAdmin); !errors.Is(err, engine.ErrAlreadyEmergencyPaused) {
		t.Fatalf("expected ErrAlreadyEmergencyPaused, got %v", err)
	}
}

func TestEmergencyUnpause_Restores(t *testing.T) {
	f := newFixture(t)
	f.initialize()

	if err := f.eng.EmergencyUnpause(testAdmin); !errors.Is(err, engine.ErrNotEmergencyPaused) {
		t.Fatalf("expected ErrNotEmergencyPaused, got %v", err)
	}

	if err := f.eng.EmergencyPause(testAdmin); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if err := f.eng.EmergencyUnpause(testAdmin); err != nil {
		t.Fatalf("unpause failed: %v", err)
	}

	if _, err := f.eng.CreateRound(testAdmin, state.MarketTypeSingleAsset, f.now+60, f.now+3660); err != nil {
		t.Fatalf("CreateRound after unpause failed: %v", err)
	}
}

func TestEmergencyPause_NonAdmin_Fails(t *testing.T) {
	f := newFixture(t)
	f.initialize()

	if err := f.eng.EmergencyPause(testKeeper); !errors.Is(err, engine.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

// ============================================================================
// Test: Round Creation
// ============================================================================

func TestCreateRound_PastStart_Fails(t *testing.T) {
	f := newFixture(t)
	f.initialize()

	_, err := f.eng.CreateRound(testAdmin, state.MarketTypeSingleAsset, f.now-3, f.now+3600)
	if !errors.Is(err, engine.ErrInvalidTimestamps) {
		t.Fatalf("expected ErrInvalidTimestamps, got %v", err)
	}
}

func TestCreateRound_EndBeforeStart_Fails(t *testing.T) {
	f := newFixture(t)
	f.initialize()

	_, err := f.eng.CreateRound(testAdmin, state.MarketTypeSingleAsset, f.now+3600, f.now+60)
	if !errors.Is(err, engine.ErrInvalidTimestamps) {
		t.Fatalf("expected ErrInvalidTimestamps, got %v", err)
	}
}

func TestCreateRound_AllocatesSequentialIDs(t *testing.T) {
	f := newFixture(t)
	f.initialize()

	id1, err := f.eng.CreateRound(testAdmin, state.MarketTypeSingleAsset, f.now+60, f.now+3660)
	if err != nil {
		t.Fatalf("CreateRound 1 failed: %v", err)
	}
	id2, err := f.eng.CreateRound(testAdmin, state.MarketTypeGroupBattle, f.now+60, f.now+3660)
	if err != nil {
		t.Fatalf("CreateRound 2 failed: %v", err)
	}

	if id1 != 1 || id2 != 2 {
		t.Errorf("expected ids 1 and 2, got %d and %d", id1, id2)
	}

	r := f.round(id1)
	if r.Status != state.RoundStatusScheduled {
		t.Errorf("expected scheduled, got %s", r.Status)
	}
	if r.BetCutoffTime != r.EndTime-600 {
		t.Errorf("expected cutoff %d, got %d", r.EndTime-600, r.BetCutoffTime)
	}
}

func TestCreateRound_NonAdmin_Fails(t *testing.T) {
	f := newFixture(t)
	f.initialize()

	_, err := f.eng.CreateRound(testKeeper, state.MarketTypeSingleAsset, f.now+60, f.now+3660)
	if !errors.Is(err, engine.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

// ============================================================================
// Test: Round Start (single asset)
// ============================================================================

func TestStartRound_BeforeStartTime_Fails(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	id := f.createSingleRound()

	err := f.eng.StartRound(context.Background(), testKeeper, id)
	if !errors.Is(err, engine.ErrRoundNotReadyForStart) {
		t.Fatalf("expected ErrRoundNotReadyForStart, got %v", err)
	}
}

func TestStartRound_NonKeeper_Fails(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	id := f.createSingleRound()
	f.advance(60)

	err := f.eng.StartRound(context.Background(), uuid.New(), id)
	if !errors.Is(err, engine.ErrUnauthorizedKeeper) {
		t.Fatalf("expected ErrUnauthorizedKeeper, got %v", err)
	}
}

func TestStartRound_LocksStartPrice(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	id := f.createSingleRound()
	f.startSingleRound(id, 50_000_000_000) // 50,000.000000 at expo -6

	r := f.round(id)
	if r.Status != state.RoundStatusActive {
		t.Fatalf("expected active, got %s", r.Status)
	}
	if r.StartPrice == nil || *r.StartPrice != 50_000_000_000 {
		t.Fatalf("expected start price 50_000_000_000, got %v", r.StartPrice)
	}
}

func TestStartRound_StalePrice_Fails(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	id := f.createSingleRound()

	f.setPrice(testFeed, 50_000_000_000, -6)
	f.advance(120) // price now older than MaxPriceAgeSecs

	err := f.eng.StartRound(context.Background(), testKeeper, id)
	if !errors.Is(err, engine.ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}
	if f.round(id).Status != state.RoundStatusScheduled {
		t.Fatal("round must stay scheduled after a stale read")
	}
}

func TestStartRound_Twice_Fails(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	id := f.createSingleRound()
	f.startSingleRound(id, 50_000_000_000)

	err := f.eng.StartRound(context.Background(), testKeeper, id)
	if !errors.Is(err, engine.ErrInvalidRoundStatus) {
		t.Fatalf("expected ErrInvalidRoundStatus, got %v", err)
	}
}

// ============================================================================
// Test: Deposits and Withdrawals
// ============================================================================

func TestDeposit_CreditsBettorAccount(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	bettor := uuid.New()

	f.fund(bettor, 10_000)

	if got := f.vault.Balance(vault.NewBettorAccount(bettor)); got != 10_000 {
		t.Fatalf("expected balance 10_000, got %d", got)
	}
	if err := f.vault.ValidateZeroSum(); err != nil {
		t.Fatalf("zero-sum violated: %v", err)
	}
}

func TestWithdraw_InsufficientFunds_Fails(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	bettor := uuid.New()
	f.fund(bettor, 500)

	err := f.eng.Withdraw(bettor, 600)
	if !errors.Is(err, vault.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := f.vault.Balance(vault.NewBettorAccount(bettor)); got != 500 {
		t.Fatalf("balance must be unchanged, got %d", got)
	}
}

// ============================================================================
// Test: Place Bet
// ============================================================================

func TestPlaceBet_BelowMinimum_Fails(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	id := f.createSingleRound()
	f.startSingleRound(id, 50_000_000_000)

	bettor := uuid.New()
	f.fund(bettor, 10_000)

	_, err := f.eng.PlaceBet(bettor, id, nil, 999, state.Up())
	if !errors.Is(err, engine.ErrBetBelowMinimum) {
		t.Fatalf("expected ErrBetBelowMinimum, got %v", err)
	}
}

func TestPlaceBet_AtMinimum_Succeeds(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	id := f.createSingleRound()
	f.startSingleRound(id, 50_000_000_000)

	bettor := uuid.New()
	f.fund(bettor, 10_000)

	betID, err := f.eng.PlaceBet(bettor, id, nil, 1_000, state.Up())
	if err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}

	b := f.bet(id, betID)
	if b.Status != state.BetStatusPending {
		t.Errorf("expected pending, got %s", b.Status)
	}
	if b.Weight <= 0 {
		t.Errorf("expected positive weight, got %d", b.Weight)
	}

	r := f.round(id)
	if r.TotalBets != 1 || r.TotalPool != 1_000 {
		t.Errorf("expected total_bets=1 pool=1000, got %d/%d", r.TotalBets, r.TotalPool)
	}
	if got := f.vault.Balance(vault.NewRoundVaultAccount(id)); got != 1_000 {
		t.Errorf("expected round vault 1000, got %d", got)
	}
	if got := f.vault.Balance(vault.NewBettorAccount(bettor)); got != 9_000 {
		t.Errorf("expected bettor balance 9000, got %d", got)
	}
}

func TestPlaceBet_ScheduledRound_Fails(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	id := f.createSingleRound()

	bettor := uuid.New()
	f.fund(bettor, 10_000)

	_, err := f.eng.PlaceBet(bettor, id, nil, 1_000, state.Up())
	if !errors.Is(err, engine.ErrRoundNotActive) {
		t.Fatalf("expected ErrRoundNotActive, got %v", err)
	}
}

func TestPlaceBet_AfterCutoff_Fails(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	id := f.createSingleRound()
	f.startSingleRound(id, 50_000_000_000)

	bettor := uuid.New()
	f.fund(bettor, 10_000)

	// Move inside the cutoff window (600s before the end).
	f.now = f.round(id).BetCutoffTime

	_, err := f.eng.PlaceBet(bettor, id, nil, 1_000, state.Up())
	if !errors.Is(err, engine.ErrBetCutoffClosed) {
		t.Fatalf("expected ErrBetCutoffClosed, got %v", err)
	}
}

func TestPlaceBet_InsufficientFunds_Fails(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	id := f.createSingleRound()
	f.startSingleRound(id, 50_000_000_000)

	bettor := uuid.New()
	f.fund(bettor, 500)

	_, err := f.eng.PlaceBet(bettor, id, nil, 1_000, state.Up())
	if !errors.Is(err, vault.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if f.round(id).TotalBets != 0 {
		t.Fatal("rejected bet must not count")
	}
}

func TestPlaceBet_GroupRefOnSingleRound_Fails(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	id := f.createSingleRound()
	f.startSingleRound(id, 50_000_000_000)

	bettor := uuid.New()
	f.fund(bettor, 10_000)

	groupID := uint64(1)
	_, err := f.eng.PlaceBet(bettor, id, &groupID, 1_000, state.Up())
	if !errors.Is(err, engine.ErrGroupNotAllowed) {
		t.Fatalf("expected ErrGroupNotAllowed, got %v", err)
	}
}

func TestPlaceBet_EarlierBetGetsHigherWeight(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	id := f.createSingleRound()
	f.startSingleRound(id, 50_000_000_000)

	early := uuid.New()
	late := uuid.New()
	f.fund(early, 10_000)
	f.fund(late, 10_000)

	earlyID, err := f.eng.PlaceBet(early, id, nil, 1_000, state.Up())
	if err != nil {
		t.Fatalf("early bet failed: %v", err)
	}

	f.advance(1800) // halfway through the round

	lateID, err := f.eng.PlaceBet(late, id, nil, 1_000, state.Up())
	if err != nil {
		t.Fatalf("late bet failed: %v", err)
	}

	if f.bet(id, earlyID).Weight <= f.bet(id, lateID).Weight {
		t.Fatalf("early weight %d must exceed late weight %d",
			f.bet(id, earlyID).Weight, f.bet(id, lateID).Weight)
	}
}

// ============================================================================
// Test: Output Emission
// ============================================================================

func TestOutputs_SequencesAreMonotonic(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	id := f.createSingleRound()
	f.startSingleRound(id, 50_000_000_000)

	bettor := uuid.New()
	f.fund(bettor, 10_000)
	if _, err := f.eng.PlaceBet(bettor, id, nil, 1_000, state.Up()); err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}

	outputs := f.drainOutputs()
	// initialize, create_round, start_round, deposit, place_bet
	if len(outputs) != 5 {
		t.Fatalf("expected 5 outputs, got %d", len(outputs))
	}
	for i, o := range outputs {
		if o.Envelope.Sequence != int64(i+1) {
			t.Errorf("output %d: expected sequence %d, got %d", i, i+1, o.Envelope.Sequence)
		}
		if o.Envelope.IdempotencyKey == "" {
			t.Errorf("output %d: empty idempotency key", i)
		}
	}
	if outputs[4].Envelope.Op != "place_bet" {
		t.Errorf("expected place_bet envelope, got %s", outputs[4].Envelope.Op)
	}
	if len(outputs[4].Journals) != 1 {
		t.Errorf("expected 1 journal on place_bet, got %d", len(outputs[4].Journals))
	}
}

func TestRejectedOperation_EmitsNothing(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	f.drainOutputs()

	if _, err := f.eng.CreateRound(testKeeper, state.MarketTypeSingleAsset, f.now+60, f.now+3660); err == nil {
		t.Fatal("expected rejection")
	}
	if outputs := f.drainOutputs(); len(outputs) != 0 {
		t.Fatalf("expected no outputs after rejection, got %d", len(outputs))
	}
}
