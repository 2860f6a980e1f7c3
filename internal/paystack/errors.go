package paystack

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingSecretKey means no credential is configured for the active
	// mode. Surfaced before any network call is made.
	ErrMissingSecretKey = errors.New("paystack_missing_secret_key")

	ErrInvalidSignature    = errors.New("paystack_invalid_signature")
	ErrUnsupportedCurrency = errors.New("paystack_unsupported_currency")
)

// APIError is a typed failure from the Paystack API carrying the remote
// error code, human message and the raw HTTP status/body.
type APIError struct {
	Code       string
	Message    string
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paystack: %s (status %d): %s", e.Code, e.StatusCode, e.Message)
}

// Recoverable reports whether a retry (webhook replay or reconciliation
// pass) may complete the operation. Timeouts, rate limits and 5xx are
// recoverable; 4xx business rejections are terminal.
func (e *APIError) Recoverable() bool {
	if e.StatusCode == 0 {
		return true // transport failure
	}
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return e.StatusCode >= http.StatusInternalServerError
}

// IsRecoverable reports whether err represents a transient remote failure.
func IsRecoverable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Recoverable()
	}
	return false
}
