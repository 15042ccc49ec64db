// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"disabled", zerolog.Disabled},
		{"INFO", zerolog.InfoLevel},
		{"garbage", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestInitAndLog(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Info().Str("code", "ABC123").Msg("display registered")

	out := buf.String()
	if !strings.Contains(out, `"code":"ABC123"`) {
		t.Errorf("expected structured field in output, got: %s", out)
	}
	if !strings.Contains(out, "display registered") {
		t.Errorf("expected message in output, got: %s", out)
	}
}

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	old := Logger()
	defer SetLogger(old)

	SetLogger(NewTestLogger(&buf))
	Warn().Msg("replaced")

	if !strings.Contains(buf.String(), "replaced") {
		t.Errorf("SetLogger output not captured: %s", buf.String())
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	old := Logger()
	defer SetLogger(old)
	SetLogger(zerolog.New(&buf))

	logger := WithComponent("scanner")
	logger.Info().Msg("cycle done")

	if !strings.Contains(buf.String(), `"component":"scanner"`) {
		t.Errorf("component field missing: %s", buf.String())
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()

	if got := RequestIDFromContext(ctx); got != "" {
		t.Errorf("RequestIDFromContext(empty) = %q, want empty", got)
	}

	ctx = ContextWithRequestID(ctx, "req-42")
	if got := RequestIDFromContext(ctx); got != "req-42" {
		t.Errorf("RequestIDFromContext = %q, want req-42", got)
	}
}

func TestCtxAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	old := Logger()
	defer SetLogger(old)
	SetLogger(zerolog.New(&buf))

	ctx := ContextWithRequestID(context.Background(), "req-7")
	Ctx(ctx).Info().Msg("with id")

	if !strings.Contains(buf.String(), `"request_id":"req-7"`) {
		t.Errorf("request_id field missing: %s", buf.String())
	}
}

func TestNewSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	old := Logger()
	defer SetLogger(old)
	SetLogger(zerolog.New(&buf).Level(zerolog.TraceLevel))

	slogger := NewSlogLogger()
	if slogger == nil {
		t.Fatal("NewSlogLogger() = nil")
	}

	slogger.Info("from slog", "key", "value")

	out := buf.String()
	if !strings.Contains(out, "from slog") {
		t.Errorf("slog message not bridged: %s", out)
	}
	if !strings.Contains(out, `"key":"value"`) {
		t.Errorf("slog attr not bridged: %s", out)
	}
}
