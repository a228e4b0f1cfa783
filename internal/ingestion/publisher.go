package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"RoundLedger/internal/engine"
	"RoundLedger/internal/observability"
)

// Publisher forwards applied operations to NATS for downstream consumers.
// Subjects follow round.events.{op} with the round id appended when the
// operation has one. The engine's publish channel drops on overflow, so a
// slow NATS never stalls settlement; consumers needing completeness read the
// op log instead.
type Publisher struct {
	js        jetstream.JetStream
	inputChan <-chan engine.Output
	log       zerolog.Logger
	metrics   *observability.Metrics
}

func NewPublisher(
	js jetstream.JetStream,
	inputChan <-chan engine.Output,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Publisher {
	return &Publisher{
		js:        js,
		inputChan: inputChan,
		log:       log,
		metrics:   metrics,
	}
}

type journalEventJSON struct {
	JournalID     string `json:"journal_id"`
	OpRef         string `json:"op_ref"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
}

type operationEventJSON struct {
	Sequence       int64              `json:"sequence"`
	Op             string             `json:"op"`
	IdempotencyKey string             `json:"idempotency_key"`
	RoundID        *uint64            `json:"round_id,omitempty"`
	Timestamp      int64              `json:"timestamp"`
	Journals       []journalEventJSON `json:"journals,omitempty"`
}

// Run publishes until ctx is cancelled or the input channel closes.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out, ok := <-p.inputChan:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, out); err != nil {
				// Non-fatal: the op log remains the source of truth.
				p.log.Warn().Err(err).Int64("sequence", out.Envelope.Sequence).
					Msg("outbound publish failed")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, out engine.Output) error {
	evt := operationEventJSON{
		Sequence:       out.Envelope.Sequence,
		Op:             out.Envelope.Op,
		IdempotencyKey: out.Envelope.IdempotencyKey,
		RoundID:        out.Envelope.RoundID,
		Timestamp:      out.Envelope.Timestamp,
	}
	for _, j := range out.Journals {
		evt.Journals = append(evt.Journals, journalEventJSON{
			JournalID:     j.JournalID.String(),
			OpRef:         j.OpRef,
			DebitAccount:  j.DebitAccount.AccountPath(),
			CreditAccount: j.CreditAccount.AccountPath(),
			Amount:        j.Amount,
			JournalType:   int32(j.JournalType),
		})
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal operation event: %w", err)
	}

	subject := fmt.Sprintf("round.events.%s", evt.Op)
	if evt.RoundID != nil {
		subject = fmt.Sprintf("%s.%d", subject, *evt.RoundID)
	}

	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.EventsPublished.WithLabelValues(evt.Op).Inc()
	}
	return nil
}

// EnsureEventsStream creates the outbound events stream.
func EnsureEventsStream(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "ROUND_EVENTS",
		Subjects:  []string{"round.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create events stream: %w", err)
	}
	log.Info().Str("stream", "ROUND_EVENTS").Msg("stream ensured")
	return nil
}
