// Package ingestion is the NATS JetStream edge: it consumes broker
// instructions (fill, cancel, funding ticks) into the engine and
// publishes settlement records out to downstream consumers.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	// InstructionStream carries broker-originated instructions.
	InstructionStream = "POOL_INSTRUCTIONS"

	SubjectFillRequests   = "pool.instructions.fill"
	SubjectCancelRequests = "pool.instructions.cancel"
	SubjectFundingTicks   = "pool.instructions.funding"

	// RecordStream carries outbound settlement records.
	RecordStream = "POOL_SETTLEMENT"
)

// RawInstruction is a parsed-but-untyped message from NATS. The consumer
// loop validates and converts it before touching the engine.
type RawInstruction struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // ack after the engine accepted or terminally rejected
	NakFunc   func() // nak for redelivery on transient failure
}

// Subscriber feeds broker instructions into the instruction channel.
type Subscriber struct {
	js        jetstream.JetStream
	inputChan chan<- RawInstruction
	consumers []jetstream.ConsumeContext
	log       zerolog.Logger
}

func NewSubscriber(js jetstream.JetStream, inputChan chan<- RawInstruction, log zerolog.Logger) *Subscriber {
	return &Subscriber{
		js:        js,
		inputChan: inputChan,
		log:       log,
	}
}

// Subscribe creates durable explicit-ack consumers for every instruction
// subject. Redelivery caps at 5 attempts with a 30s ack window.
func (s *Subscriber) Subscribe(ctx context.Context) error {
	subjects := []struct {
		subject  string
		consumer string
	}{
		{SubjectFillRequests + ".>", "pool-fills"},
		{SubjectCancelRequests + ".>", "pool-cancels"},
		{SubjectFundingTicks + ".>", "pool-funding"},
	}

	for _, cfg := range subjects {
		consumer, err := s.js.CreateOrUpdateConsumer(ctx, InstructionStream, jetstream.ConsumerConfig{
			Durable:       cfg.consumer,
			FilterSubject: cfg.subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.consumer, err)
		}

		consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawInstruction{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case s.inputChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.consumer, err)
		}

		s.consumers = append(s.consumers, consumeCtx)
		s.log.Info().Str("subject", cfg.subject).Str("consumer", cfg.consumer).Msg("subscribed")
	}

	return nil
}

// Stop gracefully stops all consumers.
func (s *Subscriber) Stop() {
	for _, cc := range s.consumers {
		cc.Stop()
	}
	s.log.Info().Msg("instruction consumers stopped")
}

// EnsureStreams creates the instruction and settlement streams if absent.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      InstructionStream,
			Subjects:  []string{"pool.instructions.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      RecordStream,
			Subjects:  []string{"pool.settlement.>"},
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
		log.Info().Str("stream", cfg.Name).Msg("ensured stream")
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
