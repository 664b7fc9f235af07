package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsBus publishes triggered events onto a NATS JetStream stream, one
// subject per event name. Mirrors the publisher shape used by
// 0xkanth-polymarket-indexer's internal/nats package for the same
// "watch chain, publish what happened" pipeline.
type NatsBus struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	prefix string
	log    *slog.Logger
}

const (
	streamCreateTimeout = 10 * time.Second
	duplicateWindow     = 20 * time.Minute
)

// NewNatsBus connects to natsURL and ensures a stream exists covering
// `<prefix>.>` subjects, retaining events for retention.
func NewNatsBus(natsURL, prefix string, retention time.Duration, log *slog.Logger) (*NatsBus, error) {
	if log == nil {
		log = slog.Default()
	}

	nc, err := nats.Connect(natsURL,
		nats.Name("chain-monitor"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn(fmt.Sprintf("eventbus: nats disconnected: %v", err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("eventbus: failed to connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("eventbus: failed to create jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), streamCreateTimeout)
	defer cancel()

	streamName := prefix
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       streamName,
		Subjects:   []string{prefix + ".>"},
		MaxAge:     retention,
		Storage:    jetstream.FileStorage,
		Duplicates: duplicateWindow,
		Retention:  jetstream.LimitsPolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("eventbus: failed to create stream: %w", err)
	}

	return &NatsBus{nc: nc, js: js, prefix: prefix, log: log}, nil
}

// Trigger publishes the event to `<prefix>.<eventName>`. Publish failures
// are logged, never returned: the bus is fire-and-forget by contract.
func (b *NatsBus) Trigger(ctx context.Context, eventName string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Warn(fmt.Sprintf("eventbus: failed to marshal payload for %s: %v", eventName, err))
		return
	}

	subject := b.prefix + "." + eventName
	if _, err := b.js.Publish(ctx, subject, data); err != nil {
		b.log.Warn(fmt.Sprintf("eventbus: failed to publish %s: %v", eventName, err))
	}
}

func (b *NatsBus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}
