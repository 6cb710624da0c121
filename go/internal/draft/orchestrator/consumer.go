package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// ConnectNATS creates a NATS connection with JetStream.
func ConnectNATS(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	opts := []nats.Option{
		nats.Name("draft-expiry-scheduler"),
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}

	return nc, js, nil
}

// ensureConsumer creates or gets the JetStream consumer for timer events. Only new
// events are delivered; armed schedules from before startup come from the table.
func (o *Orchestrator) ensureConsumer(ctx context.Context) error {
	stream, err := o.js.Stream(ctx, o.cfg.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		Description:   "Draft clock expiration scheduler",
		FilterSubject: o.cfg.SubjectPrefix + ".timer.>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    consumerMaxDeliver,
		AckWait:       consumerAckWait,
		MaxAckPending: consumerMaxAckPending,
	}

	consumer, err := stream.Consumer(ctx, consumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().Str("consumer", consumerName).Msg("created JetStream consumer for scheduler")
	} else {
		log.Info().Str("consumer", consumerName).Msg("using existing JetStream consumer for scheduler")
	}

	o.consumer = consumer
	return nil
}

// processEvent decodes a stream message and feeds it to the timer event handler.
func (o *Orchestrator) processEvent(msg jetstream.Msg) error {
	var event DomainEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}

	draftID, err := uuid.Parse(event.DraftID)
	if err != nil {
		return fmt.Errorf("parse draft ID: %w", err)
	}

	log.Debug().
		Str("subject", msg.Subject()).
		Str("draft_id", event.DraftID).
		Str("event_type", event.EventType).
		Msg("processing scheduler event")

	return o.HandleDomainEvent(event.EventType, draftID, event.Payload)
}

// Close closes the NATS connection if the scheduler owns one.
func (o *Orchestrator) Close() error {
	if o.nc != nil {
		o.nc.Close()
	}
	return nil
}
