// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

// Package apperr defines the error taxonomy shared by every component.
//
// Errors are classified by Kind so that boundaries can make uniform
// decisions: the scanner retries Transient and Credentials internally,
// the timeline manager surfaces InvariantViolation without persisting,
// and the API maps kinds onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for boundary handling.
type Kind int

const (
	// KindUnknown is the zero value for unclassified errors.
	KindUnknown Kind = iota

	// KindBadInput marks input rejected at the API boundary.
	KindBadInput

	// KindNotFound marks a missing entity.
	KindNotFound

	// KindConflict marks a failed state or ownership precondition,
	// such as editing a block while its display is not idle or
	// creating a display with a duplicate code.
	KindConflict

	// KindInvariantViolation marks a computed result that would break
	// a timeline invariant. It is surfaced, never persisted.
	KindInvariantViolation

	// KindUpstream marks an unavailable or malformed upstream feed.
	KindUpstream

	// KindCredentials marks rejected upstream authentication.
	KindCredentials

	// KindTransient marks retryable network or database failures.
	KindTransient

	// KindFatal marks unrecoverable failures such as a lost database.
	KindFatal
)

// String returns the kind name used in logs and error payloads.
func (k Kind) String() string {
	switch k {
	case KindBadInput:
		return "bad_input"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvariantViolation:
		return "invariant_violation"
	case KindUpstream:
		return "upstream"
	case KindCredentials:
		return "credentials"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error carries a classified error with optional structured detail.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Op names the operation that failed, e.g. "timeline.materialize".
	Op string

	// Err is the underlying cause, if any.
	Err error

	// Detail holds structured payload fields surfaced to callers,
	// e.g. {"block_id": ..., "reason": ...} for a failed materialize.
	Detail map[string]interface{}
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with a fixed message.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies an existing error. A nil err returns nil.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithDetail attaches a structured payload field and returns the error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]interface{})
	}
	e.Detail[key] = value
	return e
}

// KindOf walks the error chain and returns the first classified kind.
// Unclassified errors report KindUnknown.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// DetailOf returns the structured detail of the first classified error
// in the chain, or nil.
func DetailOf(err error) map[string]interface{} {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Detail
	}
	return nil
}

// Is reports whether the error chain contains the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
