// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/logging"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
	"github.com/fourtytwo42/soraFeed-sub001/internal/validation"
)

// sanitizeLogValue removes control characters from strings to prevent
// log injection through attacker-controlled values.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// respondJSON sends a JSON response with proper headers.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Vary", "Accept-Encoding")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("ETag", generateETag(data))

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondOK wraps data in a success envelope.
func respondOK(w http.ResponseWriter, status int, data interface{}) {
	respondJSON(w, status, &models.APIResponse{
		Status: "success",
		Data:   data,
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
		},
	})
}

// generateETag creates a simple ETag from data using FNV-1a.
func generateETag(data []byte) string {
	hash := uint32(2166136261)
	for _, b := range data {
		hash ^= uint32(b)
		hash *= 16777619
	}
	return strconv.FormatUint(uint64(hash), 16)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().Str("code", sanitizeLogValue(code)).Str("error", sanitizeLogValue(err.Error())).Msg("API Error")
	}

	respondJSON(w, status, &models.APIResponse{
		Status: "error",
		Data:   nil,
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
		},
		Error: &models.APIError{
			Code:    code,
			Message: message,
		},
	})
}

// statusForKind maps a classified error kind to an HTTP status.
func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindBadInput:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindInvariantViolation:
		return http.StatusUnprocessableEntity
	case apperr.KindUpstream, apperr.KindCredentials:
		return http.StatusBadGateway
	case apperr.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondAppError maps a classified error onto the HTTP surface. The
// error kind becomes the status; the kind name becomes the error code.
func respondAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := statusForKind(kind)

	code := strings.ToUpper(kind.String())
	message := err.Error()
	details := apperr.DetailOf(err)
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Err != nil {
		message = appErr.Err.Error()
	}

	if status >= http.StatusInternalServerError {
		logging.Error().Err(err).Msg("API Error")
		// Do not leak internals for 5xx.
		message = "internal error"
		details = nil
	}

	respondJSON(w, status, &models.APIResponse{
		Status: "error",
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
		},
		Error: &models.APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// validateRequest validates a struct using go-playground/validator and
// returns the API error shape on failure.
func validateRequest(v interface{}) *models.APIError {
	validationErr := validation.ValidateStruct(v)
	if validationErr == nil {
		return nil
	}
	apiErr := validationErr.ToAPIError()
	return &models.APIError{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
	}
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v interface{}) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(apperr.KindBadInput, "api.decodeBody", err)
	}
	return nil
}

// parseIntParam parses an integer from a string with a default value.
// Uses fmt.Sscanf for lenient parsing of values like " 10 ".
func parseIntParam(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(value, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// latestCursor is the opaque pagination cursor of the latest feed.
type latestCursor struct {
	OffsetFromStart int `json:"offsetFromStart"`
}

// encodeCursor serializes a cursor to an opaque base64 token.
func encodeCursor(cursor *latestCursor) string {
	data, err := json.Marshal(cursor)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// decodeCursor parses an opaque cursor token.
func decodeCursor(encoded string) (*latestCursor, error) {
	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBadInput, "api.decodeCursor", err)
	}
	var cursor latestCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, apperr.Wrap(apperr.KindBadInput, "api.decodeCursor", err)
	}
	if cursor.OffsetFromStart < 0 {
		return nil, apperr.New(apperr.KindBadInput, "api.decodeCursor", "negative cursor offset")
	}
	return &cursor, nil
}
