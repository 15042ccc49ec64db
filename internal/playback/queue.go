// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package playback

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/logging"
	"github.com/fourtytwo42/soraFeed-sub001/internal/metrics"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

const (
	cmdKeyPrefix = "cmd:"

	// maxPendingPerDisplay bounds how many commands may pile up while a
	// display is offline.
	maxPendingPerDisplay = 64
)

// queueRecord is the journal value: the command plus delivery bookkeeping.
type queueRecord struct {
	Command     models.Command `json:"command"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
}

// CommandQueue is a durable per-display FIFO of pending commands backed by
// a BadgerDB journal. Commands survive restarts; stale ones are swept to
// undelivered.
type CommandQueue struct {
	db  *badger.DB
	ttl time.Duration
	seq atomic.Uint64
}

// OpenCommandQueue opens (or creates) the journal at path. ttl is the
// staleness window after which unconfirmed commands are dropped.
func OpenCommandQueue(path string, ttl time.Duration) (*CommandQueue, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = true
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open command journal: %w", err)
	}

	q := &CommandQueue{db: db, ttl: ttl}
	if err := q.recoverSequence(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logging.Info().Str("path", path).Dur("ttl", ttl).Msg("command journal opened")
	return q, nil
}

// recoverSequence seeds the sequence counter past every persisted key so
// ordering survives restarts.
func (q *CommandQueue) recoverSequence() error {
	return q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var max uint64
		prefix := []byte(cmdKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var seq uint64
			key := it.Item().Key()
			// cmd:<code>:<seq>
			if _, err := fmt.Sscanf(string(key[len(key)-16:]), "%016x", &seq); err == nil && seq > max {
				max = seq
			}
		}
		q.seq.Store(max)
		return nil
	})
}

func cmdKey(code string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%016x", cmdKeyPrefix, code, seq))
}

// Enqueue appends a command for the display. The queue is bounded per
// display; overflow conflicts.
func (q *CommandQueue) Enqueue(code string, cmdType models.CommandType, payload map[string]interface{}) (*models.Command, error) {
	const op = "playback.Enqueue"

	if !cmdType.Valid() {
		return nil, apperr.Newf(apperr.KindBadInput, op, "unknown command type %q", cmdType)
	}

	pending, err := q.pendingCount(code)
	if err != nil {
		return nil, err
	}
	if pending >= maxPendingPerDisplay {
		return nil, apperr.Newf(apperr.KindConflict, op, "display %s has %d pending commands", code, pending)
	}

	cmd := &models.Command{
		ID:         uuid.NewString(),
		Code:       code,
		Type:       cmdType,
		Payload:    payload,
		Status:     models.CommandPending,
		EnqueuedAt: time.Now().UTC(),
	}

	seq := q.seq.Add(1)
	value, err := json.Marshal(queueRecord{Command: *cmd})
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}
	if err := q.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cmdKey(code, seq), value)
	}); err != nil {
		return nil, fmt.Errorf("journal command: %w", err)
	}

	metrics.CommandsEnqueued.WithLabelValues(string(cmdType)).Inc()
	return cmd, nil
}

// Deliver claims the display's oldest pending command, marking it
// delivered. Returns nil when nothing is pending.
func (q *CommandQueue) Deliver(code string) (*models.Command, error) {
	var claimed *models.Command

	err := q.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(cmdKeyPrefix + code + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var rec queueRecord
			if err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			}); err != nil {
				return fmt.Errorf("decode command record: %w", err)
			}
			if rec.Command.Status != models.CommandPending {
				continue
			}

			now := time.Now().UTC()
			rec.Command.Status = models.CommandDelivered
			rec.DeliveredAt = &now
			value, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal command record: %w", err)
			}
			if err := txn.Set(item.KeyCopy(nil), value); err != nil {
				return err
			}
			claimed = &rec.Command
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Confirm acknowledges a delivered command and drops it from the journal.
func (q *CommandQueue) Confirm(commandID string) error {
	const op = "playback.Confirm"

	found := false
	err := q.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(cmdKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var rec queueRecord
			if err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			}); err != nil {
				return fmt.Errorf("decode command record: %w", err)
			}
			if rec.Command.ID != commandID {
				continue
			}
			found = true
			return txn.Delete(item.KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !found {
		return apperr.Newf(apperr.KindNotFound, op, "command %s not found", commandID)
	}
	metrics.CommandsDelivered.WithLabelValues("confirmed").Inc()
	return nil
}

// Sweep drops every unconfirmed command older than the staleness window
// and returns them with status undelivered, for command-status events.
func (q *CommandQueue) Sweep(now time.Time) ([]models.Command, error) {
	var swept []models.Command

	err := q.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		var stale [][]byte
		prefix := []byte(cmdKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var rec queueRecord
			if err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			}); err != nil {
				return fmt.Errorf("decode command record: %w", err)
			}
			if now.Sub(rec.Command.EnqueuedAt) <= q.ttl {
				continue
			}
			rec.Command.Status = models.CommandUndelivered
			swept = append(swept, rec.Command)
			stale = append(stale, item.KeyCopy(nil))
		}
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for range swept {
		metrics.CommandsDelivered.WithLabelValues("undelivered").Inc()
	}
	if len(swept) > 0 {
		logging.Warn().Int("count", len(swept)).Msg("stale commands swept to undelivered")
	}
	return swept, nil
}

// Pending returns the display's pending commands in FIFO order.
func (q *CommandQueue) Pending(code string) ([]models.Command, error) {
	var cmds []models.Command
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(cmdKeyPrefix + code + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec queueRecord
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			}); err != nil {
				return fmt.Errorf("decode command record: %w", err)
			}
			if rec.Command.Status == models.CommandPending {
				cmds = append(cmds, rec.Command)
			}
		}
		return nil
	})
	return cmds, err
}

func (q *CommandQueue) pendingCount(code string) (int, error) {
	cmds, err := q.Pending(code)
	if err != nil {
		return 0, err
	}
	return len(cmds), nil
}

// Close shuts the journal down.
func (q *CommandQueue) Close() error {
	return q.db.Close()
}
