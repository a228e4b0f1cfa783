package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"RoundLedger/internal/engine"
	"RoundLedger/internal/observability"
)

// Worker drains the engine's persist channel and batch-writes to Postgres.
// The engine blocks on a full persist channel, so if this worker falls
// behind, the engine stalls rather than losing an output.
type Worker struct {
	writer       *Writer
	inputChan    <-chan engine.Output
	batchSize    int
	flushTimeout time.Duration
	log          zerolog.Logger
	metrics      *observability.Metrics
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan engine.Output,
	batchSize int,
	flushTimeout time.Duration,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		writer:       NewWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		log:          log,
		metrics:      metrics,
	}
}

func (w *Worker) Writer() *Writer {
	return w.writer
}

// Run batches incoming outputs and flushes when the batch is full or the
// flush timeout expires. Blocks until ctx is cancelled or the input channel
// closes; either way the remaining batch is flushed before returning.
func (w *Worker) Run(ctx context.Context) error {
	batch := make([]engine.Output, 0, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				if err := w.flush(context.Background(), batch); err != nil {
					w.log.Error().Err(err).Int("outputs", len(batch)).
						Msg("final flush failed")
				}
			}
			return ctx.Err()

		case out, ok := <-w.inputChan:
			if !ok {
				if len(batch) > 0 {
					if err := w.flush(context.Background(), batch); err != nil {
						w.log.Error().Err(err).Int("outputs", len(batch)).
							Msg("final flush failed")
					}
				}
				return nil
			}

			batch = append(batch, out)
			if len(batch) >= w.batchSize {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					w.log.Error().Err(err).Msg("batch flush failed after retries")
				}
				batch = batch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					w.log.Error().Err(err).Msg("timeout flush failed after retries")
				}
				batch = batch[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries indefinitely with exponential backoff. The worker
// never drops a batch: on shutdown it makes one last attempt with a
// background context.
func (w *Worker) flushWithRetry(ctx context.Context, batch []engine.Output) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().Int("attempt", attempt).Dur("backoff", backoff).
				Int("outputs", len(batch)).Msg("persistence retry")
			if w.metrics != nil {
				w.metrics.PersistRetry.Inc()
			}
			select {
			case <-ctx.Done():
				return w.flush(context.Background(), batch)
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, batch)
		if err == nil {
			if attempt > 0 {
				w.log.Info().Int("attempts", attempt).Msg("persistence flush recovered")
			}
			return nil
		}
	}
}

// flush writes the whole batch in one transaction: op log, journal rows,
// then entity projections in sequence order.
func (w *Worker) flush(ctx context.Context, batch []engine.Output) error {
	start := time.Now()

	tx, err := w.writer.db.BeginTx(ctx, nil)
	if err != nil {
		w.countError("tx_begin")
		return err
	}
	defer tx.Rollback()

	ops := make([]OpRow, 0, len(batch))
	journals := make([]JournalRow, 0, len(batch)*2)
	for _, out := range batch {
		ops = append(ops, opRow(out.Envelope))
		for _, j := range out.Journals {
			journals = append(journals, JournalRow{
				JournalID:     j.JournalID.String(),
				BatchID:       j.BatchID.String(),
				OpRef:         j.OpRef,
				Sequence:      out.Envelope.Sequence,
				DebitAccount:  j.DebitAccount.AccountPath(),
				CreditAccount: j.CreditAccount.AccountPath(),
				Amount:        j.Amount,
				JournalType:   int32(j.JournalType),
				Timestamp:     j.Timestamp,
			})
		}
	}

	if err := w.writer.WriteOpBatch(ctx, tx, ops); err != nil {
		w.countError("write_ops")
		return err
	}
	if err := w.writer.WriteJournalBatch(ctx, tx, journals); err != nil {
		w.countError("write_journals")
		return err
	}
	for _, out := range batch {
		if err := w.writeDelta(ctx, tx, out); err != nil {
			w.countError("write_entities")
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		w.countError("tx_commit")
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistBatchSize.Observe(float64(len(batch)))
		w.metrics.PersistOutputsWritten.Add(float64(len(batch)))
		w.metrics.PersistJournalsWritten.Add(float64(len(journals)))
		w.metrics.PersistLastSequence.Set(float64(batch[len(batch)-1].Envelope.Sequence))
	}
	return nil
}

func (w *Worker) writeDelta(ctx context.Context, tx *sql.Tx, out engine.Output) error {
	seq := out.Envelope.Sequence
	if out.Delta.Config != nil {
		if err := w.writer.UpsertConfig(ctx, tx, out.Delta.Config, seq); err != nil {
			return err
		}
	}
	for _, r := range out.Delta.Rounds {
		if err := w.writer.UpsertRound(ctx, tx, r, seq); err != nil {
			return err
		}
	}
	for _, g := range out.Delta.Groups {
		if err := w.writer.UpsertGroup(ctx, tx, g, seq); err != nil {
			return err
		}
	}
	for _, a := range out.Delta.Assets {
		if err := w.writer.UpsertAsset(ctx, tx, a, seq); err != nil {
			return err
		}
	}
	for _, b := range out.Delta.Bets {
		if err := w.writer.UpsertBet(ctx, tx, b, seq); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) countError(stage string) {
	if w.metrics != nil {
		w.metrics.PersistErrors.WithLabelValues(stage).Inc()
	}
}

func opRow(env engine.Envelope) OpRow {
	var roundID *int64
	if env.RoundID != nil {
		v := int64(*env.RoundID)
		roundID = &v
	}
	return OpRow{
		Sequence:       env.Sequence,
		Op:             env.Op,
		IdempotencyKey: env.IdempotencyKey,
		RoundID:        roundID,
		Timestamp:      env.Timestamp,
	}
}
