package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	fpmath "RoundLedger/internal/math"
	"RoundLedger/internal/observability"
	"RoundLedger/internal/oracle"
	"RoundLedger/internal/state"
	"RoundLedger/internal/vault"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Envelope describes one applied operation in the operation log.
type Envelope struct {
	Sequence       int64
	Op             string
	IdempotencyKey string
	RoundID        *uint64
	Timestamp      int64
}

// EntityDelta carries deep copies of every entity an operation touched,
// ready for the persistence worker to upsert.
type EntityDelta struct {
	Config *state.Config
	Rounds []*state.Round
	Groups []*state.GroupAsset
	Assets []*state.Asset
	Bets   []*state.Bet
}

// Output is what the engine emits per applied operation: the envelope, the
// journal entries of the operation's transfers, and the entity delta.
type Output struct {
	Envelope Envelope
	Journals []vault.Journal
	Delta    EntityDelta
}

// Engine is the single-threaded settlement core. All mutating operations run
// on one goroutine; concurrency lives in the shell (ingestion, persistence,
// query) around it.
type Engine struct {
	store   *state.Store
	vault   *vault.Vault
	oracle  oracle.PriceReader
	clock   func() time.Time
	log     zerolog.Logger
	metrics *observability.Metrics

	sequence int64

	persistChan chan<- Output
	publishChan chan<- Output
}

// Options configures optional engine collaborators. Zero values disable the
// corresponding feature (no emission, wall clock, discard logger).
type Options struct {
	Clock         func() time.Time
	Logger        *zerolog.Logger
	Metrics       *observability.Metrics
	PersistChan   chan<- Output
	PublishChan   chan<- Output
	StartSequence int64
}

func New(store *state.Store, v *vault.Vault, pr oracle.PriceReader, opts Options) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	return &Engine{
		store:       store,
		vault:       v,
		oracle:      pr,
		clock:       clock,
		log:         log,
		metrics:     opts.Metrics,
		sequence:    opts.StartSequence,
		persistChan: opts.PersistChan,
		publishChan: opts.PublishChan,
	}
}

// Store exposes the entity arena for read-side snapshots. Must only be used
// from the engine goroutine.
func (e *Engine) Store() *state.Store {
	return e.store
}

// Vault exposes the token ledger. Must only be used from the engine goroutine.
func (e *Engine) Vault() *vault.Vault {
	return e.vault
}

// Sequence returns the operation log sequence of the last applied operation.
func (e *Engine) Sequence() int64 {
	return e.sequence
}

func (e *Engine) now() int64 {
	return e.clock().Unix()
}

// --- Guards ---

func (e *Engine) config() (*state.Config, error) {
	cfg := e.store.Config()
	if cfg == nil {
		return nil, ErrNotInitialized
	}
	return cfg, nil
}

// activeConfig rejects every mutating operation while emergency paused.
// Only EmergencyUnpause bypasses this guard.
func (e *Engine) activeConfig() (*state.Config, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	if cfg.Status == state.ProgramStatusEmergencyPaused {
		return nil, ErrEmergencyPaused
	}
	return cfg, nil
}

func (e *Engine) adminConfig(caller uuid.UUID) (*state.Config, error) {
	cfg, err := e.activeConfig()
	if err != nil {
		return nil, err
	}
	if caller != cfg.Admin {
		return nil, ErrUnauthorized
	}
	return cfg, nil
}

func (e *Engine) keeperConfig(caller uuid.UUID) (*state.Config, error) {
	cfg, err := e.activeConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.IsKeeper(caller) {
		return nil, ErrUnauthorizedKeeper
	}
	return cfg, nil
}

// --- Emission ---

// emit assigns the next sequence and pushes the output downstream. The
// persist channel uses a BLOCKING send so the engine stalls rather than lose
// an operation; the publish channel drops on full.
func (e *Engine) emit(op string, roundID *uint64, journals []vault.Journal, delta EntityDelta) {
	e.sequence++

	out := Output{
		Envelope: Envelope{
			Sequence:       e.sequence,
			Op:             op,
			IdempotencyKey: fmt.Sprintf("%s:%d", op, e.sequence),
			RoundID:        roundID,
			Timestamp:      e.now(),
		},
		Journals: journals,
		Delta:    delta,
	}

	if e.persistChan != nil {
		select {
		case e.persistChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.PersistBackpressure.Inc()
			}
			e.persistChan <- out
		}
	}

	if e.publishChan != nil {
		select {
		case e.publishChan <- out:
		default:
			// Dropped — subscribers rebuild from the operation log.
			if e.metrics != nil {
				e.metrics.PublishDrops.Inc()
			}
		}
	}

	if e.metrics != nil {
		e.metrics.EngineOpsApplied.WithLabelValues(op).Inc()
		e.metrics.EngineSequence.Set(float64(e.sequence))
	}

	e.log.Debug().
		Str("op", op).
		Int64("sequence", e.sequence).
		Int("journals", len(journals)).
		Msg("operation applied")
}

func (e *Engine) reject(op string, err error) error {
	if e.metrics != nil {
		e.metrics.EngineOpsRejected.WithLabelValues(op).Inc()
	}
	e.log.Debug().Str("op", op).Err(err).Msg("operation rejected")
	return err
}

func (e *Engine) observeOp(op string, start time.Time) {
	if e.metrics != nil {
		e.metrics.EngineOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// --- Oracle ---

// readNormalizedPrice reads a feed, enforces max_price_age against the
// engine clock, and normalizes to the canonical 6-decimal fixed point.
func (e *Engine) readNormalizedPrice(ctx context.Context, cfg *state.Config, feed state.FeedID) (int64, error) {
	p, err := e.oracle.ReadPrice(ctx, feed)
	if err != nil {
		if e.metrics != nil {
			e.metrics.OracleReads.WithLabelValues("error").Inc()
		}
		return 0, fmt.Errorf("%w: %v", ErrInvalidAssetPrice, err)
	}

	if age := e.now() - p.PublishTime; age > cfg.MaxPriceAgeSecs {
		if e.metrics != nil {
			e.metrics.OracleReads.WithLabelValues("stale").Inc()
		}
		return 0, fmt.Errorf("%w: feed %s is %ds old (max %ds)",
			ErrStalePrice, feed, age, cfg.MaxPriceAgeSecs)
	}

	normalized, err := fpmath.NormalizePrice(p.Price, p.Exponent)
	if err != nil {
		if e.metrics != nil {
			e.metrics.OracleReads.WithLabelValues("invalid").Inc()
		}
		return 0, errors.Join(ErrInvalidAssetPrice, err)
	}

	if e.metrics != nil {
		e.metrics.OracleReads.WithLabelValues("ok").Inc()
	}
	return normalized, nil
}

// --- Factors ---

// directionFactorBps resolves a bet direction into its payout-weight factor.
func directionFactorBps(cfg *state.Config, marketType state.MarketType, dir state.Direction) int64 {
	switch dir.Kind {
	case state.DirectionUp, state.DirectionDown:
		return cfg.DefaultDirectionFactorBps
	case state.DirectionPercentChange:
		if marketType == state.MarketTypeGroupBattle {
			return fpmath.PercentFactorBpsGroup(dir.TargetBps)
		}
		return fpmath.PercentFactorBpsSingle(dir.TargetBps)
	default:
		return cfg.DefaultDirectionFactorBps
	}
}

// betTimeFactorBps computes the time factor for a bet placed at placedAt.
// The same factor doubles as the tolerance window for percentage bets.
func betTimeFactorBps(cfg *state.Config, round *state.Round, placedAt int64) int64 {
	return fpmath.TimeFactorBps(placedAt, round.StartTime, round.EndTime,
		cfg.MinTimeFactorBps, cfg.MaxTimeFactorBps)
}
