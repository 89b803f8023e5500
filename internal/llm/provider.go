// Package llm defines the LLM provider boundary and the privacy-aware
// router that selects among registered providers (C6).
package llm

import (
	"context"
	"errors"
)

// ErrNoProviderAvailable is returned when routing finds no provider
// satisfying the configured preference.
var ErrNoProviderAvailable = errors.New("llm: no provider available")

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a conversation.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest is a request for a single completion.
type CompletionRequest struct {
	Messages      []Message
	MaxTokens     *int
	Temperature   *float32
	SystemPrompt  string
	StopSequences []string
}

// NewCompletionRequest builds a single-user-message request.
func NewCompletionRequest(content string) CompletionRequest {
	return CompletionRequest{Messages: []Message{{Role: RoleUser, Content: content}}}
}

// Usage reports token accounting for a completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// TotalTokens returns InputTokens + OutputTokens.
func (u Usage) TotalTokens() int { return u.InputTokens + u.OutputTokens }

// CompletionResponse is the result of a non-streaming completion.
type CompletionResponse struct {
	Content    string
	Model      string
	StopReason string
	Usage      *Usage
}

// StreamChunk is one increment of a streaming completion.
type StreamChunk struct {
	Delta      string
	IsFinal    bool
	StopReason string
}

// ProviderCapabilities describes what the router needs to know to pick
// among providers: locality, context size, and relative cost.
type ProviderCapabilities struct {
	MaxContextTokens         int
	IsLocal                  bool
	SupportsVision           bool
	SupportsToolUse          bool
	SupportsStructuredOutput bool
	ModelName                string
	// CostTier is 0 for free/local, higher for more expensive.
	CostTier uint8
}

// Provider is implemented by every LLM backend, local or cloud.
type Provider interface {
	Complete(ctx context.Context, request CompletionRequest) (CompletionResponse, error)
	Stream(ctx context.Context, request CompletionRequest) (<-chan StreamChunk, error)
	Capabilities() ProviderCapabilities
	ProviderID() string
}
