// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package events

import (
	"github.com/ThreeDotsLabs/watermill"

	"github.com/fourtytwo42/soraFeed-sub001/internal/logging"
)

// loggerAdapter routes watermill's internal logging through the global
// zerolog logger. Trace output is dropped.
type loggerAdapter struct {
	fields watermill.LogFields
}

// NewLoggerAdapter creates a watermill logger backed by the global logger.
func NewLoggerAdapter() watermill.LoggerAdapter {
	return &loggerAdapter{}
}

func (l *loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	ev := logging.Error().Err(err)
	for k, v := range l.fields.Add(fields) {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *loggerAdapter) Info(msg string, fields watermill.LogFields) {
	ev := logging.Debug()
	for k, v := range l.fields.Add(fields) {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	ev := logging.Debug()
	for k, v := range l.fields.Add(fields) {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *loggerAdapter) Trace(string, watermill.LogFields) {}

func (l *loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &loggerAdapter{fields: l.fields.Add(fields)}
}
