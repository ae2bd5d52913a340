package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// TransientError represents a temporary error that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string { return e.err.Error() }
func (e *TransientError) Unwrap() error { return e.err }

func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError represents a permanent error that should not be retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string { return e.err.Error() }
func (e *FatalError) Unwrap() error { return e.err }

func NewFatalError(err error) error {
	return &FatalError{err: err}
}

func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// Classify wraps a provider error as transient or fatal. Cancellation of the
// caller's context is returned unchanged.
func Classify(err error) error {
	if err == nil || IsTransient(err) || IsFatal(err) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTransientError(err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewTransientError(err)
	}

	return classifyMessage(err)
}

func classifyStatus(status int, err error) error {
	switch {
	case status == 0:
		return classifyMessage(err)
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return NewTransientError(err)
	default:
		return NewFatalError(err)
	}
}

var fatalMarkers = []string{
	"401", "403", "unauthorized", "permission denied", "invalid api key", "invalid_api_key",
	"invalid x-api-key", "model not found", "not_found_error", "invalid_request_error",
}

var transientMarkers = []string{
	"429", "500", "502", "503", "504", "529", "rate limit", "rate_limit", "overloaded",
	"timeout", "timed out", "temporarily", "unavailable", "connection reset", "connection refused", "eof",
}

func classifyMessage(err error) error {
	msg := strings.ToLower(err.Error())
	for _, m := range fatalMarkers {
		if strings.Contains(msg, m) {
			return NewFatalError(err)
		}
	}
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return NewTransientError(err)
		}
	}
	// Unknown failures are retried; the retry budget bounds the cost.
	return NewTransientError(err)
}
