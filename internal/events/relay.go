// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

//go:build nats

package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/fourtytwo42/soraFeed-sub001/internal/config"
	"github.com/fourtytwo42/soraFeed-sub001/internal/logging"
)

// relayTopics are the suffixes the relay mirrors out to NATS.
var relayTopics = []string{
	TopicStateDelta,
	TopicCommandStatus,
	TopicDisplayStatus,
	TopicTimelineReset,
	TopicPlaylistEmpty,
	TopicScanCycle,
}

// Relay republishes in-process bus topics to NATS so additional instances
// (dashboards, recorders) can subscribe without touching this process.
type Relay struct {
	bus       *Bus
	cfg       *config.EventsConfig
	publisher message.Publisher
	embedded  *EmbeddedServer

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewRelay creates a NATS relay for the bus. When cfg.NATSEmbedded is set
// an in-process NATS server is started and dialed instead of cfg.NATSURL.
func NewRelay(bus *Bus, cfg *config.EventsConfig) (*Relay, error) {
	r := &Relay{bus: bus, cfg: cfg}

	url := cfg.NATSURL
	if cfg.NATSEmbedded {
		embedded, err := NewEmbeddedServer(cfg)
		if err != nil {
			return nil, err
		}
		r.embedded = embedded
		url = embedded.ClientURL()
	}

	publisher, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL: url,
		NatsOptions: []natsgo.Option{
			natsgo.RetryOnFailedConnect(true),
			natsgo.MaxReconnects(-1),
			natsgo.ReconnectWait(time.Second),
		},
		Marshaler: &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{Disabled: true},
	}, NewLoggerAdapter())
	if err != nil {
		if r.embedded != nil {
			_ = r.embedded.Shutdown(context.Background())
		}
		return nil, fmt.Errorf("create NATS publisher: %w", err)
	}
	r.publisher = publisher
	return r, nil
}

// Start begins mirroring bus topics to NATS.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("relay is already running")
	}
	r.running = true

	relayCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for _, suffix := range relayTopics {
		messages, err := r.bus.Subscribe(relayCtx, suffix)
		if err != nil {
			cancel()
			r.running = false
			return fmt.Errorf("subscribe %s: %w", suffix, err)
		}

		topic := r.bus.Topic(suffix)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for msg := range messages {
				if err := r.publisher.Publish(topic, msg); err != nil {
					logging.Warn().Err(err).Str("topic", topic).Msg("NATS relay publish failed")
					msg.Nack()
					continue
				}
				msg.Ack()
			}
		}()
	}

	logging.Info().Int("topics", len(relayTopics)).Msg("NATS relay started")
	return nil
}

// Stop halts the relay and shuts the embedded server down, if any.
func (r *Relay) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return fmt.Errorf("relay is not running")
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()

	if err := r.publisher.Close(); err != nil {
		logging.Warn().Err(err).Msg("failed to close NATS publisher")
	}
	if r.embedded != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return r.embedded.Shutdown(ctx)
	}
	return nil
}
