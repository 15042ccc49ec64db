// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package hub

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/fourtytwo42/soraFeed-sub001/internal/config"
	"github.com/fourtytwo42/soraFeed-sub001/internal/logging"
	"github.com/fourtytwo42/soraFeed-sub001/internal/metrics"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was
	// canceled. This is the normal graceful shutdown path (e.g. SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was
	// exceeded. This may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types for WebSocket communication.
const (
	// Client -> server
	MessageTypeRegisterAdmin   = "registerAdmin"
	MessageTypeRegisterDisplay = "registerDisplay"
	MessageTypeHeartbeat       = "heartbeat"
	MessageTypeVideoEnded      = "videoEnded"

	// Server -> client
	MessageTypeStateDelta    = "stateDelta"
	MessageTypeCommand       = "command"
	MessageTypeDisplaced     = "displaced"
	MessageTypeDisplayStatus = "displayStatus"
	MessageTypeCommandStatus = "commandStatus"
	MessageTypePlaylistEmpty = "playlistEmpty"
	MessageTypeTimelineReset = "timelineReset"
	MessageTypeError         = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// envelope is the inbound wire form; Data stays raw until the type is known.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type registerAdminData struct {
	AdminID  string   `json:"admin_id"`
	Displays []string `json:"displays"`
	Token    string   `json:"token,omitempty"`
}

type registerDisplayData struct {
	Code  string `json:"code"`
	Token string `json:"token,omitempty"`
}

type heartbeatData struct {
	Code          string   `json:"code"`
	VideoProgress *float64 `json:"video_progress,omitempty"`
}

type videoEndedData struct {
	Code string `json:"code"`
}

type errorData struct {
	Message string `json:"message"`
}

// inbound is a parsed client message queued for the run loop.
type inbound struct {
	client *Client
	typ    string
	data   json.RawMessage
}

// Store is the display persistence the hub needs.
type Store interface {
	GetDisplay(ctx context.Context, code string) (*models.Display, error)
	ListDisplays(ctx context.Context) ([]models.Display, error)
	TouchPing(ctx context.Context, code string, at time.Time) error
}

// Player receives playback reports forwarded from display sessions.
type Player interface {
	VideoEnded(ctx context.Context, code string) error
	ReportProgress(ctx context.Context, code string, fraction float64)
}

// CommandSource is the durable per-display command journal the hub
// drains into live display sessions.
type CommandSource interface {
	Deliver(code string) (*models.Command, error)
	Confirm(commandID string) error
	Sweep(now time.Time) ([]models.Command, error)
}

// Bus is the slice of the event bus the hub consumes and feeds.
type Bus interface {
	Subscribe(ctx context.Context, suffix string) (<-chan *message.Message, error)
	PublishDisplayStatus(evt models.DisplayStatusEvent)
	PublishCommandStatus(evt models.CommandStatusEvent)
}

// TokenVerifier validates a display ownership token and returns the
// display code it was issued for.
type TokenVerifier interface {
	VerifyDisplay(token string) (string, error)
}

// busEvent is a decoded bus message queued for the run loop.
type busEvent struct {
	suffix  string
	payload []byte
}

// Hub maintains the set of active websocket sessions and routes playback
// state between displays, admins and the event bus. Displays register one
// session per code; admins subscribe to the displays they watch. All
// membership mutation and message routing happens on the run loop, so
// deltas for one display reach its watchers in publication order.
type Hub struct {
	db       Store
	player   Player
	commands CommandSource
	bus      Bus
	tokens   TokenVerifier
	cfg      *config.HubConfig

	Register   chan *Client
	Unregister chan *Client

	inbound chan inbound
	events  chan busEvent
	wake    chan string

	mu       sync.RWMutex
	clients  map[*Client]bool
	displays map[string]*Client          // code -> active display session
	watchers map[string]map[*Client]bool // code -> admin sessions
	online   map[string]bool             // last observed liveness per code
}

// NewHub creates a hub. tokens may be nil, in which case display
// registration is not token-checked.
func NewHub(db Store, player Player, commands CommandSource, bus Bus, tokens TokenVerifier, cfg *config.HubConfig) *Hub {
	return &Hub{
		db:         db,
		player:     player,
		commands:   commands,
		bus:        bus,
		tokens:     tokens,
		cfg:        cfg,
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		inbound:    make(chan inbound, 256),
		events:     make(chan busEvent, 256),
		wake:       make(chan string, 64),
		clients:    make(map[*Client]bool),
		displays:   make(map[string]*Client),
		watchers:   make(map[string]map[*Client]bool),
		online:     make(map[string]bool),
	}
}

// busTopics are the bus suffixes the hub fans out to watching admins.
// display.status and playback.command_status originate inside the hub
// itself and are not subscribed, to avoid echoing them back.
var busTopics = []string{
	"playback.state",
	"playback.playlist_empty",
	"timeline.reset",
}

// RunWithContext runs the hub until the context is canceled. Designed for
// suture supervision: on cancellation every session is closed and the
// context error is returned so the supervisor sees a clean stop.
//
// Priority-based selection keeps behavior predictable when multiple
// channels are ready: shutdown first, then client lifecycle, then
// everything else (inbound messages, bus events, tickers).
func (h *Hub) RunWithContext(ctx context.Context) error {
	if err := h.subscribeBus(ctx); err != nil {
		return err
	}

	offline := time.NewTicker(h.cfg.HeartbeatInterval)
	defer offline.Stop()
	sweep := time.NewTicker(h.cfg.CommandTTL)
	defer sweep.Stop()

	for {
		// Priority 1: shutdown (non-blocking check)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: client lifecycle (non-blocking check)
		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		// Priority 3: everything else (blocking wait)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.addClient(client)

		case client := <-h.Unregister:
			h.removeClient(client)

		case in := <-h.inbound:
			h.handleInbound(ctx, in)

		case ev := <-h.events:
			h.dispatchBusEvent(ev)

		case code := <-h.wake:
			h.drainCommands(code)

		case <-offline.C:
			h.checkOffline(ctx)

		case <-sweep.C:
			h.sweepCommands()
		}
	}
}

// WakeDisplay asks the run loop to drain the command journal for a
// connected display, so a freshly enqueued command does not wait for the
// next heartbeat. Non-blocking; a missed wake is recovered by the
// heartbeat drain.
func (h *Hub) WakeDisplay(code string) {
	select {
	case h.wake <- code:
	default:
	}
}

func (h *Hub) subscribeBus(ctx context.Context) error {
	for _, suffix := range busTopics {
		messages, err := h.bus.Subscribe(ctx, suffix)
		if err != nil {
			return err
		}
		suffix := suffix
		go func() {
			for msg := range messages {
				select {
				case h.events <- busEvent{suffix: suffix, payload: msg.Payload}:
				default:
					logging.Warn().Str("topic", suffix).Msg("hub event channel full, dropping bus message")
				}
				msg.Ack()
			}
		}()
	}
	return nil
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)

	switch client.role {
	case roleDisplay:
		if h.displays[client.code] == client {
			delete(h.displays, client.code)
		}
		metrics.HubConnections.WithLabelValues("display").Dec()
	case roleAdmin:
		for code, set := range h.watchers {
			if set[client] {
				delete(set, client)
				if len(set) == 0 {
					delete(h.watchers, code)
				}
			}
		}
		metrics.HubConnections.WithLabelValues("admin").Dec()
	}
	total := len(h.clients)
	h.mu.Unlock()
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

func (h *Hub) handleInbound(ctx context.Context, in inbound) {
	metrics.HubMessagesReceived.Inc()

	switch in.typ {
	case MessageTypeRegisterAdmin:
		var data registerAdminData
		if err := json.Unmarshal(in.data, &data); err != nil || data.AdminID == "" {
			h.sendError(in.client, "invalid registerAdmin payload")
			return
		}
		h.registerAdmin(in.client, data)

	case MessageTypeRegisterDisplay:
		var data registerDisplayData
		if err := json.Unmarshal(in.data, &data); err != nil || data.Code == "" {
			h.sendError(in.client, "invalid registerDisplay payload")
			return
		}
		h.registerDisplay(ctx, in.client, data)

	case MessageTypeHeartbeat:
		var data heartbeatData
		if err := json.Unmarshal(in.data, &data); err != nil {
			h.sendError(in.client, "invalid heartbeat payload")
			return
		}
		h.heartbeat(ctx, in.client, data)

	case MessageTypeVideoEnded:
		var data videoEndedData
		if err := json.Unmarshal(in.data, &data); err != nil {
			h.sendError(in.client, "invalid videoEnded payload")
			return
		}
		h.videoEnded(ctx, in.client, data)

	default:
		logging.Debug().Str("type", in.typ).Msg("ignoring unknown websocket message")
	}
}

func (h *Hub) registerAdmin(client *Client, data registerAdminData) {
	h.mu.Lock()
	if client.role == "" {
		metrics.HubConnections.WithLabelValues("admin").Inc()
	}
	client.role = roleAdmin
	client.adminID = data.AdminID

	// Re-registration replaces the subscription set.
	for code, set := range h.watchers {
		if set[client] {
			delete(set, client)
			if len(set) == 0 {
				delete(h.watchers, code)
			}
		}
	}
	for _, code := range data.Displays {
		set := h.watchers[code]
		if set == nil {
			set = make(map[*Client]bool)
			h.watchers[code] = set
		}
		set[client] = true
	}
	h.mu.Unlock()

	logging.Info().
		Str("admin_id", data.AdminID).
		Int("displays", len(data.Displays)).
		Msg("admin subscribed")
}

func (h *Hub) registerDisplay(ctx context.Context, client *Client, data registerDisplayData) {
	if h.tokens != nil {
		code, err := h.tokens.VerifyDisplay(data.Token)
		if err != nil || code != data.Code {
			metrics.HubErrors.WithLabelValues("auth").Inc()
			h.sendError(client, "invalid display token")
			return
		}
	}

	if _, err := h.db.GetDisplay(ctx, data.Code); err != nil {
		h.sendError(client, "unknown display code")
		return
	}

	h.mu.Lock()
	if prev := h.displays[data.Code]; prev != nil && prev != client {
		// A display code owns exactly one session; the newcomer wins.
		h.trySend(prev, Message{Type: MessageTypeDisplaced})
		delete(h.clients, prev)
		close(prev.send)
		metrics.HubConnections.WithLabelValues("display").Dec()
		logging.Info().Str("code", data.Code).Msg("displaced previous display session")
	}
	if client.role == "" {
		metrics.HubConnections.WithLabelValues("display").Inc()
	}
	client.role = roleDisplay
	client.code = data.Code
	h.displays[data.Code] = client
	h.mu.Unlock()

	if err := h.db.TouchPing(ctx, data.Code, time.Now().UTC()); err != nil {
		logging.Warn().Err(err).Str("code", data.Code).Msg("failed to record registration ping")
	}
	h.markOnline(data.Code, true)
	h.drainCommands(data.Code)
}

func (h *Hub) heartbeat(ctx context.Context, client *Client, data heartbeatData) {
	if client.role != roleDisplay || client.code != data.Code {
		h.sendError(client, "heartbeat from unregistered session")
		return
	}

	if err := h.db.TouchPing(ctx, data.Code, time.Now().UTC()); err != nil {
		logging.Warn().Err(err).Str("code", data.Code).Msg("failed to record heartbeat")
		return
	}
	h.markOnline(data.Code, true)

	if data.VideoProgress != nil {
		h.player.ReportProgress(ctx, data.Code, *data.VideoProgress)
	}
	h.drainCommands(data.Code)
}

func (h *Hub) videoEnded(ctx context.Context, client *Client, data videoEndedData) {
	if client.role != roleDisplay || client.code != data.Code {
		h.sendError(client, "videoEnded from unregistered session")
		return
	}
	if err := h.player.VideoEnded(ctx, data.Code); err != nil {
		logging.Warn().Err(err).Str("code", data.Code).Msg("videoEnded handling failed")
	}
}

// drainCommands delivers every journaled command to the display's live
// session. Each delivery is confirmed once the message is queued on the
// session's send buffer; with no live session the journal keeps the
// command for the sweep.
func (h *Hub) drainCommands(code string) {
	h.mu.RLock()
	client := h.displays[code]
	h.mu.RUnlock()
	if client == nil {
		return
	}

	for {
		cmd, err := h.commands.Deliver(code)
		if err != nil {
			logging.Warn().Err(err).Str("code", code).Msg("command delivery failed")
			metrics.HubErrors.WithLabelValues("command_delivery").Inc()
			return
		}
		if cmd == nil {
			return
		}

		msg := Message{Type: MessageTypeCommand, Data: cmd}
		h.mu.Lock()
		ok := h.trySend(client, msg)
		h.mu.Unlock()
		if !ok {
			// Send buffer full; leave the command delivered and let the
			// sweep reclaim it if the session never drains.
			return
		}

		if err := h.commands.Confirm(cmd.ID); err != nil {
			logging.Warn().Err(err).Str("command_id", cmd.ID).Msg("command confirm failed")
		}
		status := models.CommandStatusEvent{
			CommandID: cmd.ID,
			Code:      code,
			Type:      cmd.Type,
			Status:    models.CommandDelivered,
			At:        time.Now().UTC(),
		}
		h.bus.PublishCommandStatus(status)
		h.fanOut(code, Message{Type: MessageTypeCommandStatus, Data: status})
	}
}

// sweepCommands expires delivered-but-unconfirmed and never-delivered
// commands past the TTL and tells watchers about each one.
func (h *Hub) sweepCommands() {
	swept, err := h.commands.Sweep(time.Now().UTC())
	if err != nil {
		logging.Warn().Err(err).Msg("command sweep failed")
		return
	}
	for _, cmd := range swept {
		status := models.CommandStatusEvent{
			CommandID: cmd.ID,
			Code:      cmd.Code,
			Type:      cmd.Type,
			Status:    models.CommandUndelivered,
			At:        time.Now().UTC(),
		}
		h.bus.PublishCommandStatus(status)
		h.fanOut(cmd.Code, Message{Type: MessageTypeCommandStatus, Data: status})
	}
}

// checkOffline walks all displays and broadcasts liveness transitions.
// A display missing two heartbeat intervals is reported offline; a fresh
// ping flips it back within one interval.
func (h *Hub) checkOffline(ctx context.Context) {
	displays, err := h.db.ListDisplays(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("offline check failed to list displays")
		return
	}

	now := time.Now().UTC()
	onlineCount := 0
	for i := range displays {
		d := &displays[i]
		isOnline := d.IsOnline(now)
		if isOnline {
			onlineCount++
		}
		h.markOnline(d.Code, isOnline)
	}
	metrics.HubDisplaysOnline.Set(float64(onlineCount))
}

// markOnline records the liveness observation and broadcasts the
// transition when it changed.
func (h *Hub) markOnline(code string, isOnline bool) {
	h.mu.Lock()
	prev, seen := h.online[code]
	h.online[code] = isOnline
	h.mu.Unlock()

	if seen && prev == isOnline {
		return
	}
	evt := models.DisplayStatusEvent{Code: code, Online: isOnline, At: time.Now().UTC()}
	h.bus.PublishDisplayStatus(evt)
	h.fanOut(code, Message{Type: MessageTypeDisplayStatus, Data: evt})
	logging.Info().Str("code", code).Bool("online", isOnline).Msg("display liveness changed")
}

// dispatchBusEvent routes a decoded bus message to the admins watching
// the display it concerns.
func (h *Hub) dispatchBusEvent(ev busEvent) {
	var (
		code string
		msg  Message
	)

	switch ev.suffix {
	case "playback.state":
		var delta models.StateDelta
		if err := json.Unmarshal(ev.payload, &delta); err != nil {
			logging.Warn().Err(err).Msg("failed to decode state delta")
			return
		}
		code = delta.Code
		msg = Message{Type: MessageTypeStateDelta, Data: delta}

	case "playback.playlist_empty":
		var evt models.PlaylistEmptyEvent
		if err := json.Unmarshal(ev.payload, &evt); err != nil {
			logging.Warn().Err(err).Msg("failed to decode playlist empty event")
			return
		}
		code = evt.Code
		msg = Message{Type: MessageTypePlaylistEmpty, Data: evt}

	case "timeline.reset":
		var evt models.TimelineResetEvent
		if err := json.Unmarshal(ev.payload, &evt); err != nil {
			logging.Warn().Err(err).Msg("failed to decode timeline reset event")
			return
		}
		code = evt.Code
		msg = Message{Type: MessageTypeTimelineReset, Data: evt}

	default:
		return
	}

	h.fanOut(code, msg)
}

// fanOut sends a message to every admin watching the display, in client
// ID order so delivery is deterministic. Clients with a full send buffer
// are dropped; their pumps shut the connection down.
func (h *Hub) fanOut(code string, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.watchers[code]
	if len(set) == 0 {
		return
	}
	targets := make([]*Client, 0, len(set))
	for client := range set {
		targets = append(targets, client)
	}
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].id < targets[j].id
	})

	for _, client := range targets {
		if !h.trySend(client, msg) {
			delete(set, client)
			delete(h.clients, client)
			close(client.send)
			metrics.HubConnections.WithLabelValues("admin").Dec()
			logging.Warn().Str("admin_id", client.adminID).Msg("dropping stuck admin session")
		}
	}
	if len(set) == 0 {
		delete(h.watchers, code)
	}
}

// trySend queues a message without blocking. Callers hold h.mu.
func (h *Hub) trySend(client *Client, msg Message) bool {
	select {
	case client.send <- msg:
		metrics.HubMessagesSent.Inc()
		return true
	default:
		return false
	}
}

func (h *Hub) sendError(client *Client, text string) {
	metrics.HubErrors.WithLabelValues("bad_message").Inc()
	h.mu.Lock()
	h.trySend(client, Message{Type: MessageTypeError, Data: errorData{Message: text}})
	h.mu.Unlock()
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// WatcherCount returns how many admin sessions watch the display.
func (h *Hub) WatcherCount(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers[code])
}

// DisplaySession reports whether the display code has a live session.
func (h *Hub) DisplaySession(code string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.displays[code] != nil
}

// logGracefulShutdown closes every session and logs the stop with
// structured fields. ctx.Err() is not logged as an error because
// cancellation is the expected shutdown path.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// closeAllClients closes sessions in ID order for a consistent shutdown.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.displays = make(map[string]*Client)
	h.watchers = make(map[string]map[*Client]bool)
}
