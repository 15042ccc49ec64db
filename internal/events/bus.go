// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

// Package events is the in-process pub/sub layer between the playback
// machine, the scanner and the realtime hub. An optional NATS relay
// (build tag nats) republishes topics for multi-instance fan-out.
package events

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/fourtytwo42/soraFeed-sub001/internal/logging"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

// Topic suffixes. The configured prefix is prepended on the wire.
const (
	TopicStateDelta    = "playback.state"
	TopicCommandStatus = "playback.command_status"
	TopicDisplayStatus = "display.status"
	TopicTimelineReset = "timeline.reset"
	TopicPlaylistEmpty = "playback.playlist_empty"
	TopicScanCycle     = "scanner.cycle"
)

// Bus is the in-process event bus. Publishing never blocks the caller
// beyond the channel buffer; subscribers that fall behind drop deltas,
// which is acceptable for broadcast state.
type Bus struct {
	pubsub *gochannel.GoChannel
	prefix string
}

// NewBus creates the in-process bus.
func NewBus(topicPrefix string) *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, NewLoggerAdapter()),
		prefix: topicPrefix,
	}
}

// Topic returns the full wire topic for a suffix.
func (b *Bus) Topic(suffix string) string {
	if b.prefix == "" {
		return suffix
	}
	return b.prefix + "." + suffix
}

// Subscribe returns a channel of messages for the topic suffix.
func (b *Bus) Subscribe(ctx context.Context, suffix string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, b.Topic(suffix))
}

// Close shuts the bus down, closing all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

func (b *Bus) publish(suffix string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error().Err(err).Str("topic", suffix).Msg("failed to marshal event")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("published_at", time.Now().UTC().Format(time.RFC3339Nano))
	if err := b.pubsub.Publish(b.Topic(suffix), msg); err != nil {
		logging.Error().Err(err).Str("topic", suffix).Msg("failed to publish event")
	}
}

// PublishStateDelta broadcasts a display's playback state.
func (b *Bus) PublishStateDelta(delta models.StateDelta) {
	b.publish(TopicStateDelta, delta)
}

// PublishCommandStatus reports a command delivery outcome.
func (b *Bus) PublishCommandStatus(evt models.CommandStatusEvent) {
	b.publish(TopicCommandStatus, evt)
}

// PublishDisplayStatus reports a display liveness transition.
func (b *Bus) PublishDisplayStatus(evt models.DisplayStatusEvent) {
	b.publish(TopicDisplayStatus, evt)
}

// PublishTimelineReset reports a wiped timeline.
func (b *Bus) PublishTimelineReset(displayCode string) {
	b.publish(TopicTimelineReset, models.TimelineResetEvent{
		Code: displayCode,
		At:   time.Now().UTC(),
	})
}

// PublishPlaylistEmpty reports a display that ran out of queued videos.
func (b *Bus) PublishPlaylistEmpty(evt models.PlaylistEmptyEvent) {
	b.publish(TopicPlaylistEmpty, evt)
}

// PublishScanCycle broadcasts a completed ingestion cycle summary.
func (b *Bus) PublishScanCycle(cycle models.ScanCycle) {
	b.publish(TopicScanCycle, cycle)
}
