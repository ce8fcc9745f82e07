package gateway

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidConfig = errors.New("gateway_invalid_config")

// AuthError reports rejected gateway credentials.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e.Status == 0 {
		return "gateway auth failed: " + e.Message
	}
	return fmt.Sprintf("gateway auth failed (%d): %s", e.Status, e.Message)
}

// APIError is a non-2xx response from the gateway.
type APIError struct {
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway %s failed (%d): %s", e.Op, e.Status, e.Message)
}

// TimeoutError marks a call that exceeded its bounded timeout. Callers may retry.
type TimeoutError struct {
	Op    string
	After time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("gateway %s timed out after %s", e.Op, e.After)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
