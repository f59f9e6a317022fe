package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a failed completion call.
type ErrorKind string

const (
	KindTimeout         ErrorKind = "timeout"
	KindServer          ErrorKind = "server_error"
	KindClient          ErrorKind = "client_error"
	KindNetwork         ErrorKind = "network_error"
	KindConfiguration   ErrorKind = "configuration_error"
	KindInvalidResponse ErrorKind = "invalid_response_shape"
	KindCanceled        ErrorKind = "canceled"
)

// Sentinels for errors.Is matching against a *CompletionError.
var (
	ErrTimeout              = errors.New("request timed out")
	ErrServerError          = errors.New("server error")
	ErrClientError          = errors.New("client error")
	ErrNetworkError         = errors.New("network error")
	ErrConfiguration        = errors.New("request configuration error")
	ErrInvalidResponseShape = errors.New("invalid response shape")
	ErrCanceled             = errors.New("request canceled")
)

//nolint:gochecknoglobals // Read-only lookup table
var kindSentinels = map[ErrorKind]error{
	KindTimeout:         ErrTimeout,
	KindServer:          ErrServerError,
	KindClient:          ErrClientError,
	KindNetwork:         ErrNetworkError,
	KindConfiguration:   ErrConfiguration,
	KindInvalidResponse: ErrInvalidResponseShape,
	KindCanceled:        ErrCanceled,
}

// Retryable reports whether a failure of this kind may be retried.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindServer, KindNetwork:
		return true
	default:
		return false
	}
}

// CompletionError is the typed failure returned by the completion layer.
type CompletionError struct {
	Kind       ErrorKind
	StatusCode int
	Attempts   int
	Message    string
	Err        error
}

func (e *CompletionError) Error() string {
	var b strings.Builder

	switch e.Kind {
	case KindTimeout:
		b.WriteString("request timed out")
	case KindServer:
		b.WriteString("server error")
	case KindClient:
		b.WriteString("API call failed")
	case KindNetwork:
		b.WriteString("network request failed")
	case KindConfiguration:
		b.WriteString("request configuration error")
	case KindInvalidResponse:
		b.WriteString("API returned an invalid response")
	case KindCanceled:
		b.WriteString("request canceled")
	default:
		b.WriteString("completion failed")
	}

	if e.StatusCode > 0 {
		fmt.Fprintf(&b, ": %d", e.StatusCode)
		if e.Message != "" {
			b.WriteString(" - ")
			b.WriteString(e.Message)
		}
	} else if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}

	if e.Attempts > 1 {
		fmt.Fprintf(&b, " (after %d attempts)", e.Attempts)
	}

	return b.String()
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *CompletionError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// NewInvalidResponseError builds a terminal InvalidResponseShape error.
func NewInvalidResponseError(message string) *CompletionError {
	return &CompletionError{
		Kind:    KindInvalidResponse,
		Message: message,
	}
}

// KindOf returns the kind of a *CompletionError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
