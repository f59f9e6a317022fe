package siliconflow

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/davidbz/promptfmt/internal/domain"
)

// verdictState is the outcome of one attempt:
// Attempting(n) -> success | retry -> Attempting(n+1) | terminal.
type verdictState int

const (
	stateSuccess verdictState = iota
	stateRetry
	stateTerminal
)

type verdict struct {
	state verdictState
	resp  *domain.CompletionResponse
	err   *domain.CompletionError
	delay time.Duration
}

// isTimeout reports whether err is a connection or response timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

// errorEnvelope covers both the OpenAI error shape and SiliconFlow's flat one.
type errorEnvelope struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

// providerMessage extracts the server-provided message, falling back to the
// status text.
func providerMessage(payload []byte, status int) string {
	var envelope errorEnvelope
	if err := json.Unmarshal(payload, &envelope); err == nil {
		if len(envelope.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(envelope.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}

			var plain string
			if json.Unmarshal(envelope.Error, &plain) == nil && plain != "" {
				return plain
			}
		}

		if envelope.Message != "" {
			return envelope.Message
		}
	}

	return http.StatusText(status)
}
