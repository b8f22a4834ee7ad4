// Package ingester consumes gateway events from NATS JetStream and feeds
// them to the engine. Delivery is at-least-once; session opens and closes
// are idempotent, so redelivered events are harmless.
package ingester

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/pulse/internal/engine"
	"github.com/MikeSquared-Agency/pulse/internal/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type Ingester struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	engine *engine.Engine
	subs   []jetstream.ConsumeContext
	ctx    context.Context
	cancel context.CancelFunc
}

// streamSubjects maps JetStream stream names to the gateway subjects each
// stream captures. The guild id rides in the subject's last token.
var streamSubjects = map[string][]string{
	"PRESENCE_EVENTS": {"gateway.presence.>"},
	"VOICE_EVENTS":    {"gateway.voice.>"},
	"MESSAGE_EVENTS":  {"gateway.message.>"},
}

func New(natsURL string, eng *engine.Engine) (*Ingester, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	ictx, ican := context.WithCancel(context.Background())
	return &Ingester{
		nc:     nc,
		js:     js,
		engine: eng,
		ctx:    ictx,
		cancel: ican,
	}, nil
}

// Start binds to durable consumers on each stream and begins consuming.
func (ing *Ingester) Start() error {
	ctx := context.Background()

	for stream, subjects := range streamSubjects {
		if err := ing.ensureStream(ctx, stream, subjects); err != nil {
			slog.Warn("stream not available, skipping", "stream", stream, "error", err)
			continue
		}

		consumerName := fmt.Sprintf("pulse-%s", stream)
		if err := ing.subscribe(ctx, stream, consumerName); err != nil {
			return fmt.Errorf("subscribe to %s: %w", stream, err)
		}

		slog.Info("subscribed to stream", "stream", stream, "consumer", consumerName)
	}

	return nil
}

func (ing *Ingester) ensureStream(ctx context.Context, name string, subjects []string) error {
	// Try to get existing stream first.
	_, err := ing.js.Stream(ctx, name)
	if err == nil {
		return nil
	}

	// Create stream if it doesn't exist.
	_, err = ing.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  subjects,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", name, err)
	}

	slog.Info("created stream", "name", name, "subjects", subjects)
	return nil
}

func (ing *Ingester) subscribe(ctx context.Context, stream, consumerName string) error {
	consumer, err := ing.js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    3,
		AckWait:       30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		ing.handleMessage(msg)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", consumerName, err)
	}

	ing.subs = append(ing.subs, cc)
	return nil
}

func (ing *Ingester) handleMessage(msg jetstream.Msg) {
	if err := dispatch(ing.ctx, ing.engine, msg.Subject(), msg.Data()); err != nil {
		slog.Warn("malformed event, skipping",
			"subject", msg.Subject(),
			"error", err,
		)
	}

	// Ack either way: broken messages would fail identically on redelivery.
	if err := msg.Ack(); err != nil {
		slog.Warn("failed to ack message", "subject", msg.Subject(), "error", err)
	}
}

// dispatch routes one raw message to the engine by subject prefix.
func dispatch(ctx context.Context, eng *engine.Engine, subject string, data []byte) error {
	switch {
	case strings.HasPrefix(subject, "gateway.presence."):
		ev, err := events.NormalizePresence(data)
		if err != nil {
			return fmt.Errorf("presence event: %w", err)
		}
		eng.HandlePresence(ctx, ev)
	case strings.HasPrefix(subject, "gateway.voice."):
		ev, err := events.NormalizeVoice(data)
		if err != nil {
			return fmt.Errorf("voice event: %w", err)
		}
		eng.HandleVoice(ctx, ev)
	case strings.HasPrefix(subject, "gateway.message."):
		ev, err := events.NormalizeMessage(data)
		if err != nil {
			return fmt.Errorf("message event: %w", err)
		}
		eng.HandleMessage(ctx, ev)
	default:
		return fmt.Errorf("unroutable subject %s", subject)
	}
	return nil
}

// NATSConn returns the underlying NATS connection (for sharing with the
// gateway state client).
func (ing *Ingester) NATSConn() *nats.Conn {
	return ing.nc
}

// Publish sends a message to NATS (used for announcing session lifecycle).
func (ing *Ingester) Publish(subject string, data []byte) error {
	return ing.nc.Publish(subject, data)
}

// Close drains subscriptions and closes the NATS connection.
func (ing *Ingester) Close() {
	ing.cancel()
	for _, cc := range ing.subs {
		cc.Stop()
	}
	ing.nc.Drain()
}
