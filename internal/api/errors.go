package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error is a failed exchange with the service. StatusCode is zero when the
// request never got a response.
type Error struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "":
		return fmt.Sprintf("transcription service returned %d: %s", e.StatusCode, e.Detail)
	case e.StatusCode != 0 && e.Err == nil:
		return fmt.Sprintf("transcription service returned status %d", e.StatusCode)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "transcription service request failed"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// DetailOr returns the server-provided detail, or fallback if there is none.
func DetailOr(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return fallback
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound reports a 404 from the service.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsUnauthorized reports a rejected credential.
func IsUnauthorized(err error) bool {
	code := StatusCode(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// parseDetail extracts a string "detail" field. Validation responses carry a
// list there instead, which is not a user-facing message.
func parseDetail(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}
	var detail string
	if err := json.Unmarshal(body.Detail, &detail); err != nil {
		return ""
	}
	return detail
}
