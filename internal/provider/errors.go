package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind classifies a provider failure.
type Kind string

const (
	// Transient failures may succeed on retry.
	Transient Kind = "Transient"
	// BillingBlocked means the account cannot pay; retrying is pointless.
	BillingBlocked Kind = "BillingBlocked"
	// Fatal failures will not succeed with the same input.
	Fatal Kind = "Fatal"
)

// Error is the only error type a Provider returns for a failed generation.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider error (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s provider error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or Fatal when err is not a provider Error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return Fatal
}

var billingKeywords = []string{
	"payment required",
	"insufficient credit",
	"insufficient funds",
	"insufficient balance",
	"out of credits",
	"billing",
	"credits exhausted",
	"quota exceeded for billing",
}

// Classify turns an HTTP status, response body or transport error into a
// provider Error. Every adapter routes its failures through here, for both
// submit and poll requests.
func Classify(statusCode int, body []byte, err error) *Error {
	msg := strings.TrimSpace(truncateString(string(body), 300))
	if err != nil {
		if msg == "" {
			msg = err.Error()
		}
		return &Error{Kind: classifyTransport(err), StatusCode: statusCode, Message: msg, Err: err}
	}

	lower := strings.ToLower(string(body))
	switch {
	case statusCode == http.StatusPaymentRequired:
		return &Error{Kind: BillingBlocked, StatusCode: statusCode, Message: msg}
	case containsAny(lower, billingKeywords):
		return &Error{Kind: BillingBlocked, StatusCode: statusCode, Message: msg}
	case statusCode == http.StatusRequestTimeout,
		statusCode == http.StatusTooManyRequests,
		statusCode >= 500:
		return &Error{Kind: Transient, StatusCode: statusCode, Message: msg}
	default:
		if msg == "" {
			msg = http.StatusText(statusCode)
		}
		return &Error{Kind: Fatal, StatusCode: statusCode, Message: msg}
	}
}

// Malformed builds a Fatal error for a response that could not be understood.
func Malformed(format string, args ...any) *Error {
	return &Error{Kind: Fatal, Message: fmt.Sprintf(format, args...)}
}

func classifyTransport(err error) Kind {
	if errors.Is(err, context.Canceled) {
		return Fatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Transient
	}
	lower := strings.ToLower(err.Error())
	if containsAny(lower, []string{"connection reset", "connection refused", "eof", "broken pipe", "timeout"}) {
		return Transient
	}
	if containsAny(lower, billingKeywords) {
		return BillingBlocked
	}
	return Fatal
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
