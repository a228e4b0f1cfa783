package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"RoundLedger/internal/observability"
)

// RawCommand is a command message off the wire, not yet parsed. Ack/Nak
// control JetStream redelivery.
type RawCommand struct {
	Subject  string
	Data     []byte
	Received time.Time
	Ack      func()
	Nak      func()
}

// SubjectConfig binds a NATS filter subject to a durable consumer.
type SubjectConfig struct {
	Subject      string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects splits command traffic by authority so keeper batch jobs
// and bettor traffic scale independently.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "round.cmd.admin.>", ConsumerName: "round-admin", StreamName: "ROUND_CMDS"},
		{Subject: "round.cmd.keeper.>", ConsumerName: "round-keeper", StreamName: "ROUND_CMDS"},
		{Subject: "round.cmd.bettor.>", ConsumerName: "round-bettor", StreamName: "ROUND_CMDS"},
	}
}

// NATSSubscriber pulls commands from JetStream into the command channel.
type NATSSubscriber struct {
	js          jetstream.JetStream
	commandChan chan<- RawCommand
	consumers   []jetstream.ConsumeContext
	log         zerolog.Logger
}

func NewNATSSubscriber(js jetstream.JetStream, commandChan chan<- RawCommand, log zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		js:          js,
		commandChan: commandChan,
		log:         log,
	}
}

// Subscribe creates a durable consumer per subject. Consumers use explicit
// ACK with bounded redelivery.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		cc, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawCommand{
				Subject:  msg.Subject(),
				Data:     msg.Data(),
				Received: time.Now(),
				Ack:      func() { msg.Ack() },
				Nak:      func() { msg.Nak() },
			}

			select {
			case ns.commandChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, cc)
		ns.log.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).
			Msg("subscribed")
	}

	return nil
}

// Stop stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.log.Info().Msg("nats subscribers stopped")
}

// Consumer drains raw commands, parses them, and submits to the dispatcher.
// Engine rejections are terminal and acked; only submission failures (context
// cancelled mid-flight) are naked for redelivery.
type Consumer struct {
	commandChan <-chan RawCommand
	dispatcher  *Dispatcher
	log         zerolog.Logger
	metrics     *observability.Metrics
}

func NewConsumer(
	commandChan <-chan RawCommand,
	dispatcher *Dispatcher,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Consumer {
	return &Consumer{
		commandChan: commandChan,
		dispatcher:  dispatcher,
		log:         log,
		metrics:     metrics,
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-c.commandChan:
			if !ok {
				return nil
			}
			c.process(ctx, raw)
		}
	}
}

func (c *Consumer) process(ctx context.Context, raw RawCommand) {
	commandType := subjectCommandType(raw.Subject)

	cmd, err := ParseCommand(commandType, raw.Data)
	if err != nil {
		// Malformed payloads never become valid; drop them.
		c.log.Warn().Err(err).Str("subject", raw.Subject).Msg("unparseable command")
		if c.metrics != nil {
			c.metrics.CommandErrors.WithLabelValues(commandType, "parse").Inc()
		}
		raw.Ack()
		return
	}

	_, err = c.dispatcher.Submit(ctx, cmd)
	if c.metrics != nil {
		c.metrics.NATSPullLatency.WithLabelValues(raw.Subject).
			Observe(time.Since(raw.Received).Seconds())
	}

	switch {
	case err == nil, errors.Is(err, ErrDuplicateCommand):
		raw.Ack()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		raw.Nak()
	default:
		// Engine rejection: deterministic, no point redelivering.
		c.log.Debug().Err(err).Str("command", cmd.Name()).Msg("command rejected")
		raw.Ack()
	}
}

// subjectCommandType extracts the command type from the subject's last token,
// e.g. "round.cmd.keeper.start_round" yields "start_round".
func subjectCommandType(subject string) string {
	idx := strings.LastIndexByte(subject, '.')
	if idx < 0 {
		return subject
	}
	return subject[idx+1:]
}

// EnsureStreams creates the command stream if it doesn't exist.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "ROUND_CMDS",
			Subjects:  []string{"round.cmd.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Info().Str("stream", cfg.Name).Msg("stream ensured")
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
