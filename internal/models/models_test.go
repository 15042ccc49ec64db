// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package models

import (
	"testing"
	"time"
)

func TestVideoFormat(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		want          VideoFormat
	}{
		{"wide", 1920, 1080, FormatWide},
		{"tall", 1080, 1920, FormatTall},
		{"square", 720, 720, FormatSquare},
		{"zero dimensions", 0, 0, FormatUnknown},
		{"zero width", 0, 1080, FormatUnknown},
		{"zero height", 1920, 0, FormatUnknown},
		{"negative width", -1, 1080, FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &Video{Width: tt.width, Height: tt.height}
			if got := v.Format(); got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBlockFormatAccepts(t *testing.T) {
	tests := []struct {
		block BlockFormat
		video VideoFormat
		want  bool
	}{
		{BlockFormatMixed, FormatWide, true},
		{BlockFormatMixed, FormatTall, true},
		{BlockFormatMixed, FormatSquare, true},
		{BlockFormatMixed, FormatUnknown, true},
		{BlockFormatWide, FormatWide, true},
		{BlockFormatWide, FormatTall, false},
		{BlockFormatWide, FormatSquare, false},
		{BlockFormatWide, FormatUnknown, false},
		{BlockFormatTall, FormatTall, true},
		{BlockFormatTall, FormatWide, false},
		{BlockFormatTall, FormatSquare, false},
		{BlockFormatTall, FormatUnknown, false},
	}

	for _, tt := range tests {
		if got := tt.block.Accepts(tt.video); got != tt.want {
			t.Errorf("%s.Accepts(%s) = %v, want %v", tt.block, tt.video, got, tt.want)
		}
	}
}

func TestBlockFormatValid(t *testing.T) {
	for _, f := range []BlockFormat{BlockFormatMixed, BlockFormatWide, BlockFormatTall} {
		if !f.Valid() {
			t.Errorf("%q should be valid", f)
		}
	}
	for _, f := range []BlockFormat{"", "square", "unknown", "Wide"} {
		if f.Valid() {
			t.Errorf("%q should be invalid", f)
		}
	}
}

func TestFetchModeValid(t *testing.T) {
	if !FetchNewest.Valid() || !FetchRandom.Valid() {
		t.Error("newest and random should be valid")
	}
	if FetchMode("oldest").Valid() || FetchMode("").Valid() {
		t.Error("unknown fetch modes should be invalid")
	}
}

func TestPlaybackStateValid(t *testing.T) {
	for _, s := range []PlaybackState{StateIdle, StatePlaying, StatePaused} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if PlaybackState("stopped").Valid() {
		t.Error("stopped should be invalid")
	}
}

func TestCommandTypeValid(t *testing.T) {
	for _, c := range []CommandType{CommandPlay, CommandPause, CommandStop, CommandNext, CommandSetMuted} {
		if !c.Valid() {
			t.Errorf("%q should be valid", c)
		}
	}
	for _, c := range []CommandType{"", "mute", "setmuted", "skip"} {
		if c.Valid() {
			t.Errorf("%q should be invalid", c)
		}
	}
}

func TestValidDisplayCode(t *testing.T) {
	valid := []string{"ABC123", "000000", "ZZZZZZ"}
	for _, code := range valid {
		if !ValidDisplayCode(code) {
			t.Errorf("ValidDisplayCode(%q) = false, want true", code)
		}
	}

	invalid := []string{"", "abc123", "ABC12", "ABC1234", "ABC-12", "ABC 12", "ÀBC123"}
	for _, code := range invalid {
		if ValidDisplayCode(code) {
			t.Errorf("ValidDisplayCode(%q) = true, want false", code)
		}
	}
}

func TestDisplayIsOnline(t *testing.T) {
	now := time.Now()

	d := &Display{}
	if d.IsOnline(now) {
		t.Error("display with no ping should be offline")
	}

	recent := now.Add(-3 * time.Second)
	d.LastPingAt = &recent
	if !d.IsOnline(now) {
		t.Error("display pinged 3s ago should be online")
	}

	edge := now.Add(-OfflineAfter)
	d.LastPingAt = &edge
	if !d.IsOnline(now) {
		t.Error("display at exactly the staleness threshold should still be online")
	}

	stale := now.Add(-OfflineAfter - time.Second)
	d.LastPingAt = &stale
	if d.IsOnline(now) {
		t.Error("display pinged 11s ago should be offline")
	}
}
