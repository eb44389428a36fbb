package upstream

import (
	"errors"
	"fmt"
)

// NetworkError means no usable response was received for an attempt.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("upstream: network failure: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AuthError is an authorization rejection that survived the single forced
// token refresh, or occurred where no retry is possible.
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string {
	if e.Msg == "" {
		return "upstream: authorization rejected"
	}
	return "upstream: authorization rejected: " + e.Msg
}

// UpstreamError is any non-success status other than 401. Body is kept raw
// for diagnostics.
type UpstreamError struct {
	Status int
	Body   []byte
}

func (e *UpstreamError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256]
	}
	return fmt.Sprintf("upstream: status %d: %s", e.Status, body)
}

// ValidationError is malformed caller input; no network call was attempted.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "upstream: invalid input: " + e.Msg
}

func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

func IsUpstreamError(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
