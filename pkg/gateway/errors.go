package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable is returned when the breaker is open or retries are
// exhausted. Callers must surface it rather than retry at their own layer.
var ErrUnavailable = errors.New("payment gateway temporarily unavailable")

// GatewayError carries a humanized message suitable for showing to an
// operator, plus whether the underlying failure class is worth retrying.
type GatewayError struct {
	Message   string
	Retryable bool
	raw       error
}

func (e *GatewayError) Error() string { return e.Message }
func (e *GatewayError) Unwrap() error { return e.raw }

// humanize maps known gateway error substrings to operator-friendly
// messages and classifies retry eligibility. Only transient classes
// (network, rate limit, 5xx) are retried.
func humanize(err error) *GatewayError {
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "invalid key"):
		return &GatewayError{Message: "gateway rejected the API key; check configuration", raw: err}
	case strings.Contains(lower, "invalid email"):
		return &GatewayError{Message: "the customer email address is not valid", raw: err}
	case strings.Contains(lower, "invalid amount"):
		return &GatewayError{Message: "the payment amount is not valid", raw: err}
	case strings.Contains(lower, "rate limit"):
		return &GatewayError{Message: "gateway rate limit hit, try again shortly", Retryable: true, raw: err}
	case strings.Contains(lower, "network error"),
		strings.Contains(lower, "timeout"),
		strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "eof"):
		return &GatewayError{Message: "could not reach the payment gateway", Retryable: true, raw: err}
	default:
		return &GatewayError{Message: fmt.Sprintf("payment gateway error: %s", msg), raw: err}
	}
}

// IsRetryable reports whether err represents a transient gateway failure.
func IsRetryable(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Retryable
	}
	return false
}
