package engine

import (
	"fmt"
	"time"

	"RoundLedger/internal/state"

	"github.com/google/uuid"
)

// ConfigParams carries the tunable protocol parameters shared by Initialize
// and UpdateConfig.
type ConfigParams struct {
	Keepers  []uuid.UUID
	Treasury uuid.UUID

	OracleFeed      state.FeedID
	MaxPriceAgeSecs int64

	FeeSingleBps int64
	FeeGroupBps  int64

	MinBetAmount        int64
	BetCutoffWindowSecs int64

	MinTimeFactorBps          int64
	MaxTimeFactorBps          int64
	DefaultDirectionFactorBps int64
}

func validateConfigParams(p ConfigParams) error {
	if len(p.Keepers) == 0 || len(p.Keepers) > state.MaxKeepers {
		return fmt.Errorf("%w: got %d keepers, want 1..%d",
			ErrInvalidKeeperAuthorities, len(p.Keepers), state.MaxKeepers)
	}
	seen := make(map[uuid.UUID]struct{}, len(p.Keepers))
	for _, k := range p.Keepers {
		if k == uuid.Nil {
			return fmt.Errorf("%w: nil keeper id", ErrInvalidKeeperAuthorities)
		}
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: duplicate keeper %s", ErrInvalidKeeperAuthorities, k)
		}
		seen[k] = struct{}{}
	}
	if p.FeeSingleBps < 0 || p.FeeSingleBps > state.BpsDenominator {
		return fmt.Errorf("%w: fee_single_bps=%d", ErrInvalidFee, p.FeeSingleBps)
	}
	if p.FeeGroupBps < 0 || p.FeeGroupBps > state.BpsDenominator {
		return fmt.Errorf("%w: fee_group_bps=%d", ErrInvalidFee, p.FeeGroupBps)
	}
	if p.MinBetAmount <= 0 {
		return ErrInvalidMinBetAmount
	}
	if p.BetCutoffWindowSecs < 0 {
		return ErrInvalidCutoffWindow
	}
	if p.MinTimeFactorBps <= 0 || p.MinTimeFactorBps > p.MaxTimeFactorBps {
		return fmt.Errorf("%w: min=%d max=%d",
			ErrInvalidTimeFactorRange, p.MinTimeFactorBps, p.MaxTimeFactorBps)
	}
	if p.DefaultDirectionFactorBps <= 0 {
		return ErrInvalidDirectionFactor
	}
	if p.MaxPriceAgeSecs <= 0 {
		return ErrInvalidPriceAge
	}
	return nil
}

func applyConfigParams(cfg *state.Config, p ConfigParams) {
	cfg.Keepers = make([]uuid.UUID, len(p.Keepers))
	copy(cfg.Keepers, p.Keepers)
	cfg.Treasury = p.Treasury
	cfg.OracleFeed = p.OracleFeed
	cfg.MaxPriceAgeSecs = p.MaxPriceAgeSecs
	cfg.FeeSingleBps = p.FeeSingleBps
	cfg.FeeGroupBps = p.FeeGroupBps
	cfg.MinBetAmount = p.MinBetAmount
	cfg.BetCutoffWindowSecs = p.BetCutoffWindowSecs
	cfg.MinTimeFactorBps = p.MinTimeFactorBps
	cfg.MaxTimeFactorBps = p.MaxTimeFactorBps
	cfg.DefaultDirectionFactorBps = p.DefaultDirectionFactorBps
}

// Initialize creates the protocol configuration singleton. The caller becomes
// the admin. Fails once a configuration exists.
func (e *Engine) Initialize(caller uuid.UUID, p ConfigParams) error {
	const op = "initialize"
	defer e.observeOp(op, time.Now())

	if e.store.Config() != nil {
		return e.reject(op, ErrAlreadyInitialized)
	}
	if caller == uuid.Nil {
		return e.reject(op, ErrUnauthorized)
	}
	if err := validateConfigParams(p); err != nil {
		return e.reject(op, err)
	}

	cfg := &state.Config{
		Admin:   caller,
		Status:  state.ProgramStatusActive,
		Version: 1,
	}
	applyConfigParams(cfg, p)
	e.store.SetConfig(cfg)

	e.emit(op, nil, nil, EntityDelta{Config: cfg.Clone()})
	e.log.Info().
		Str("admin", caller.String()).
		Int("keepers", len(cfg.Keepers)).
		Msg("configuration initialized")
	return nil
}

// UpdateConfig replaces the tunable parameters. Admin only. Live rounds keep
// running; factor and fee changes apply to operations from this point on.
func (e *Engine) UpdateConfig(caller uuid.UUID, p ConfigParams) error {
	const op = "update_config"
	defer e.observeOp(op, time.Now())

	cfg, err := e.adminConfig(caller)
	if err != nil {
		return e.reject(op, err)
	}
	if err := validateConfigParams(p); err != nil {
		return e.reject(op, err)
	}

	applyConfigParams(cfg, p)
	cfg.Version++

	e.emit(op, nil, nil, EntityDelta{Config: cfg.Clone()})
	e.log.Info().Int32("version", cfg.Version).Msg("configuration updated")
	return nil
}

// EmergencyPause halts every mutating operation until EmergencyUnpause.
// Admin only; pausing twice fails.
func (e *Engine) EmergencyPause(caller uuid.UUID) error {
	const op = "emergency_pause"
	defer e.observeOp(op, time.Now())

	cfg, err := e.config()
	if err != nil {
		return e.reject(op, err)
	}
	if caller != cfg.Admin {
		return e.reject(op, ErrUnauthorized)
	}
	if cfg.Status == state.ProgramStatusEmergencyPaused {
		return e.reject(op, ErrAlreadyEmergencyPaused)
	}

	cfg.Status = state.ProgramStatusEmergencyPaused
	e.emit(op, nil, nil, EntityDelta{Config: cfg.Clone()})
	e.log.Warn().Msg("program emergency paused")
	return nil
}

// EmergencyUnpause resumes normal operation. Admin only; fails unless paused.
func (e *Engine) EmergencyUnpause(caller uuid.UUID) error {
	const op = "emergency_unpause"
	defer e.observeOp(op, time.Now())

	cfg, err := e.config()
	if err != nil {
		return e.reject(op, err)
	}
	if caller != cfg.Admin {
		return e.reject(op, ErrUnauthorized)
	}
	if cfg.Status != state.ProgramStatusEmergencyPaused {
		return e.reject(op, ErrNotEmergencyPaused)
	}

	cfg.Status = state.ProgramStatusActive
	e.emit(op, nil, nil, EntityDelta{Config: cfg.Clone()})
	e.log.Warn().Msg("program unpaused")
	return nil
}
