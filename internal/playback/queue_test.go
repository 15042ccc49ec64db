// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package playback

import (
	"testing"
	"time"

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

func newTestQueue(t *testing.T) *CommandQueue {
	t.Helper()
	q, err := OpenCommandQueue(t.TempDir(), 10*time.Second)
	if err != nil {
		t.Fatalf("failed to open command queue: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("failed to close command queue: %v", err)
		}
	})
	return q
}

func TestEnqueueDeliverConfirm(t *testing.T) {
	q := newTestQueue(t)

	first, err := q.Enqueue("ABC123", models.CommandPlay, nil)
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	second, err := q.Enqueue("ABC123", models.CommandSetMuted, map[string]interface{}{"muted": true})
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != models.CommandPending || first.ID == "" {
		t.Errorf("enqueued command = %+v", first)
	}

	// FIFO delivery.
	got, err := q.Deliver("ABC123")
	if err != nil {
		t.Fatalf("Deliver() error: %v", err)
	}
	if got == nil || got.ID != first.ID || got.Status != models.CommandDelivered {
		t.Errorf("first delivery = %+v, want %s delivered", got, first.ID)
	}
	got, err = q.Deliver("ABC123")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != second.ID {
		t.Errorf("second delivery = %+v, want %s", got, second.ID)
	}
	if got.Payload["muted"] != true {
		t.Errorf("payload = %v", got.Payload)
	}

	// Nothing left to deliver.
	got, err = q.Deliver("ABC123")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("extra delivery = %+v", got)
	}

	if err := q.Confirm(first.ID); err != nil {
		t.Errorf("Confirm() error: %v", err)
	}
	if err := q.Confirm(first.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("double confirm kind = %v, want NotFound", apperr.KindOf(err))
	}
}

func TestQueueIsPerDisplay(t *testing.T) {
	q := newTestQueue(t)

	if _, err := q.Enqueue("ABC123", models.CommandPlay, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue("XYZ789", models.CommandStop, nil); err != nil {
		t.Fatal(err)
	}

	got, err := q.Deliver("XYZ789")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Type != models.CommandStop || got.Code != "XYZ789" {
		t.Errorf("cross-display delivery = %+v", got)
	}

	pending, err := q.Pending("ABC123")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Type != models.CommandPlay {
		t.Errorf("pending for ABC123 = %+v", pending)
	}
}

func TestEnqueueRejectsInvalidAndOverflow(t *testing.T) {
	q := newTestQueue(t)

	if _, err := q.Enqueue("ABC123", models.CommandType("rewind"), nil); apperr.KindOf(err) != apperr.KindBadInput {
		t.Errorf("invalid type kind = %v, want BadInput", apperr.KindOf(err))
	}

	for i := 0; i < maxPendingPerDisplay; i++ {
		if _, err := q.Enqueue("ABC123", models.CommandNext, nil); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if _, err := q.Enqueue("ABC123", models.CommandNext, nil); apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("overflow kind = %v, want Conflict", apperr.KindOf(err))
	}
}

func TestSweepDropsStaleCommands(t *testing.T) {
	q := newTestQueue(t)

	cmd, err := q.Enqueue("ABC123", models.CommandPlay, nil)
	if err != nil {
		t.Fatal(err)
	}
	delivered, err := q.Enqueue("ABC123", models.CommandPause, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := q.Deliver("ABC123"); err != nil {
		t.Fatal(err)
	}

	// Inside the window nothing is swept.
	swept, err := q.Sweep(time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(swept) != 0 {
		t.Errorf("premature sweep = %+v", swept)
	}

	// Past the window both the undelivered and the unconfirmed-delivered
	// commands drop.
	swept, err = q.Sweep(time.Now().Add(11 * time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if len(swept) != 2 {
		t.Fatalf("swept %d commands, want 2", len(swept))
	}
	ids := map[string]models.CommandStatus{}
	for _, c := range swept {
		ids[c.ID] = c.Status
	}
	if ids[cmd.ID] != models.CommandUndelivered || ids[delivered.ID] != models.CommandUndelivered {
		t.Errorf("swept statuses = %v", ids)
	}

	if got, err := q.Deliver("ABC123"); err != nil || got != nil {
		t.Errorf("delivery after sweep = %+v, %v", got, err)
	}
}

func TestQueueSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	q, err := OpenCommandQueue(dir, 10*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	first, err := q.Enqueue("ABC123", models.CommandPlay, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}

	q, err = OpenCommandQueue(dir, 10*time.Second)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() {
		if err := q.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	}()

	// The journaled command survives, and new sequence numbers keep FIFO
	// order across the restart.
	second, err := q.Enqueue("ABC123", models.CommandPause, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := q.Deliver("ABC123")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != first.ID {
		t.Errorf("first delivery after restart = %+v, want %s", got, first.ID)
	}
	got, err = q.Deliver("ABC123")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != second.ID {
		t.Errorf("second delivery after restart = %+v, want %s", got, second.ID)
	}
}
