package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"RoundLedger/internal/command"
	"RoundLedger/internal/engine"
	"RoundLedger/internal/observability"
)

// ErrDuplicateCommand is returned when a command ID was already processed.
// On the NATS path this acks the redelivery; HTTP maps it to 409.
var ErrDuplicateCommand = errors.New("duplicate command")

// Deduper tracks processed command IDs across restarts.
type Deduper interface {
	Seen(ctx context.Context, commandID string) (bool, error)
	MarkProcessed(ctx context.Context, commandID string) error
}

// Result carries a command's outcome back to its submitter. Value holds the
// allocated ID or payout for commands that return one, nil otherwise.
type Result struct {
	Value any
	Err   error
}

type request struct {
	ctx   context.Context
	cmd   command.Command
	reply chan Result
}

// Dispatcher is the engine's front door. The engine itself is
// single-threaded, so every surface (NATS, HTTP) submits here and one
// goroutine applies commands in arrival order.
type Dispatcher struct {
	eng      *engine.Engine
	requests chan request
	deduper  Deduper
	log      zerolog.Logger
	metrics  *observability.Metrics
}

func NewDispatcher(
	eng *engine.Engine,
	deduper Deduper,
	buffer int,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Dispatcher {
	return &Dispatcher{
		eng:      eng,
		requests: make(chan request, buffer),
		deduper:  deduper,
		log:      log,
		metrics:  metrics,
	}
}

// Run applies submitted commands until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-d.requests:
			value, err := d.apply(req.ctx, req.cmd)
			req.reply <- Result{Value: value, Err: err}
		}
	}
}

// Submit queues a command and waits for its result.
func (d *Dispatcher) Submit(ctx context.Context, cmd command.Command) (any, error) {
	reply := make(chan Result, 1)
	select {
	case d.requests <- request{ctx: ctx, cmd: cmd, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) apply(ctx context.Context, cmd command.Command) (any, error) {
	name := cmd.Name()
	if d.metrics != nil {
		d.metrics.CommandsReceived.WithLabelValues(name).Inc()
	}

	if id := cmd.CommandID(); id != "" && d.deduper != nil {
		seen, err := d.deduper.Seen(ctx, id)
		if err != nil {
			d.log.Warn().Err(err).Str("command", name).
				Msg("dedupe lookup failed, processing anyway")
		} else if seen {
			d.countError(name, "duplicate")
			return nil, ErrDuplicateCommand
		}
	}

	value, err := d.run(ctx, cmd)
	if err != nil {
		d.countError(name, "rejected")
		return nil, err
	}

	if id := cmd.CommandID(); id != "" && d.deduper != nil {
		if err := d.deduper.MarkProcessed(ctx, id); err != nil {
			d.log.Warn().Err(err).Str("command", name).
				Msg("dedupe mark failed")
		}
	}
	return value, nil
}

func (d *Dispatcher) run(ctx context.Context, cmd command.Command) (any, error) {
	caller := cmd.CallerID()

	switch c := cmd.(type) {
	case *command.Initialize:
		return nil, d.eng.Initialize(caller, c.Params)
	case *command.UpdateConfig:
		return nil, d.eng.UpdateConfig(caller, c.Params)
	case *command.EmergencyPause:
		return nil, d.eng.EmergencyPause(caller)
	case *command.EmergencyUnpause:
		return nil, d.eng.EmergencyUnpause(caller)

	case *command.CreateRound:
		return d.eng.CreateRound(caller, c.MarketType, c.StartTime, c.EndTime)
	case *command.InsertGroupAsset:
		return d.eng.InsertGroupAsset(caller, c.RoundID, c.Symbol)
	case *command.InsertAsset:
		return d.eng.InsertAsset(caller, c.RoundID, c.GroupID, c.Symbol, c.Feed)
	case *command.StartRound:
		return nil, d.eng.StartRound(ctx, caller, c.RoundID)

	case *command.CaptureStartPrice:
		return nil, d.eng.CaptureStartPrice(ctx, caller, c.RoundID, c.GroupID, c.Refs)
	case *command.CaptureEndPrice:
		return nil, d.eng.CaptureEndPrice(ctx, caller, c.RoundID, c.GroupID, c.Refs)
	case *command.FinalizeStartGroupAsset:
		return nil, d.eng.FinalizeStartGroupAsset(caller, c.RoundID, c.GroupID, c.AssetIDs)
	case *command.FinalizeEndGroupAsset:
		return nil, d.eng.FinalizeEndGroupAsset(caller, c.RoundID, c.GroupID, c.AssetIDs)
	case *command.FinalizeStartGroups:
		return nil, d.eng.FinalizeStartGroups(caller, c.RoundID, c.GroupIDs)
	case *command.FinalizeEndGroups:
		return nil, d.eng.FinalizeEndGroups(caller, c.RoundID, c.GroupIDs)

	case *command.SettleSingleRound:
		return nil, d.eng.SettleSingleRound(ctx, caller, c.RoundID, c.BetIDs)
	case *command.SettleGroupRound:
		return nil, d.eng.SettleGroupRound(caller, c.RoundID, c.BetIDs)

	case *command.Deposit:
		return nil, d.eng.Deposit(caller, c.Amount)
	case *command.Withdraw:
		return nil, d.eng.Withdraw(caller, c.Amount)
	case *command.PlaceBet:
		return d.eng.PlaceBet(caller, c.RoundID, c.GroupID, c.Amount, c.Direction)
	case *command.ClaimReward:
		return d.eng.ClaimReward(caller, c.RoundID, c.BetID)

	default:
		return nil, fmt.Errorf("unhandled command type %T", cmd)
	}
}

func (d *Dispatcher) countError(name, reason string) {
	if d.metrics != nil {
		d.metrics.CommandErrors.WithLabelValues(name, reason).Inc()
	}
}
