package domain

import (
	"errors"
	"fmt"
)

// Message roles accepted by the chat-completion endpoint.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionRequest is the chat-completion request body.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // user, assistant, system
	Content string `json:"content"`
}

// CompletionResponse is the chat-completion response body.
type CompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is one candidate completion. Only the first one is consumed.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Float returns a pointer to v, for optional request fields.
func Float(v float64) *float64 {
	return &v
}

// Validate checks the request invariants before it is sent.
func (r *CompletionRequest) Validate() error {
	if r == nil {
		return errors.New("request cannot be nil")
	}

	if r.Model == "" {
		return errors.New("model cannot be empty")
	}

	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 1) {
		return fmt.Errorf("temperature must be between 0.0 and 1.0, got %g", *r.Temperature)
	}

	hasUser := false
	for i, msg := range r.Messages {
		switch msg.Role {
		case RoleUser:
			hasUser = true
		case RoleSystem:
			if hasUser {
				return fmt.Errorf("system message at index %d must precede the user message", i)
			}
		case RoleAssistant:
		default:
			return fmt.Errorf("unknown message role %q", msg.Role)
		}
	}

	if !hasUser {
		return errors.New("request must carry at least one user message")
	}

	return nil
}

// FirstContent returns the content of the first choice.
// A response without choices is an InvalidResponseShape error.
func (r *CompletionResponse) FirstContent() (string, error) {
	if r == nil || len(r.Choices) == 0 {
		return "", NewInvalidResponseError("response contains no choices")
	}
	return r.Choices[0].Message.Content, nil
}
