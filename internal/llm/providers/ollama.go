// Package providers implements llm.Provider backends: a local Ollama HTTP
// client and a cloud Anthropic client.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/infiniteinsight/spectral/internal/llm"
)

// defaultOllamaURL is the standard local Ollama HTTP endpoint.
const defaultOllamaURL = "http://localhost:11434"

// defaultOllamaModel is used when no model is specified.
const defaultOllamaModel = "llama3.1:8b"

// Ollama is a local-only provider that talks to a running Ollama daemon
// over its HTTP API. Every instance is is_local, cost_tier 0.
type Ollama struct {
	model   string
	baseURL string
	client  *http.Client
}

// NewOllama builds a provider for the default model at the default URL.
func NewOllama() *Ollama {
	return NewOllamaWithURL(defaultOllamaURL, defaultOllamaModel)
}

// NewOllamaWithModel builds a provider for a specific model at the default
// URL.
func NewOllamaWithModel(model string) *Ollama {
	return NewOllamaWithURL(defaultOllamaURL, model)
}

// NewOllamaWithURL builds a provider against a custom Ollama base URL.
func NewOllamaWithURL(baseURL, model string) *Ollama {
	return &Ollama{
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type ollamaOptions struct {
	Temperature *float32 `json:"temperature,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// toPrompt flattens the conversation into Ollama's single-prompt format,
// matching the reference provider's "Role: content" transcript rendering.
func (o *Ollama) toPrompt(request llm.CompletionRequest) string {
	var parts []string
	if request.SystemPrompt != "" {
		parts = append(parts, "System: "+request.SystemPrompt)
	}
	for _, m := range request.Messages {
		var prefix string
		switch m.Role {
		case llm.RoleUser:
			prefix = "User:"
		case llm.RoleAssistant:
			prefix = "Assistant:"
		default:
			prefix = "System:"
		}
		parts = append(parts, prefix+" "+m.Content)
	}
	parts = append(parts, "Assistant:")

	prompt := parts[0]
	for _, p := range parts[1:] {
		prompt += "\n\n" + p
	}
	return prompt
}

// Complete issues a non-streaming /api/generate request.
func (o *Ollama) Complete(ctx context.Context, request llm.CompletionRequest) (llm.CompletionResponse, error) {
	apiReq := ollamaRequest{
		Model:  o.model,
		Prompt: o.toPrompt(request),
		Stream: false,
		Options: ollamaOptions{
			Temperature: request.Temperature,
			Stop:        request.StopSequences,
		},
	}
	if request.MaxTokens != nil {
		apiReq.Options.NumPredict = request.MaxTokens
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return llm.CompletionResponse{}, fmt.Errorf("ollama: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return llm.CompletionResponse{}, fmt.Errorf("ollama: failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return llm.CompletionResponse{}, fmt.Errorf("ollama: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return llm.CompletionResponse{}, fmt.Errorf("ollama: api error (status %d): %s", resp.StatusCode, string(errBody))
	}

	var apiResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return llm.CompletionResponse{}, fmt.Errorf("ollama: failed to parse response: %w", err)
	}

	stopReason := ""
	if apiResp.Done {
		stopReason = "stop"
	}
	return llm.CompletionResponse{
		Content:    apiResp.Response,
		Model:      apiResp.Model,
		StopReason: stopReason,
	}, nil
}

// Stream issues a streaming /api/generate request and forwards each
// newline-delimited JSON chunk as it arrives.
func (o *Ollama) Stream(ctx context.Context, request llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	apiReq := ollamaRequest{
		Model:  o.model,
		Prompt: o.toPrompt(request),
		Stream: true,
		Options: ollamaOptions{
			Temperature: request.Temperature,
			Stop:        request.StopSequences,
		},
	}
	if request.MaxTokens != nil {
		apiReq.Options.NumPredict = request.MaxTokens
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("ollama: api error (status %d): %s", resp.StatusCode, string(errBody))
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer resp.Body.Close()
		defer close(out)

		decoder := json.NewDecoder(resp.Body)
		for decoder.More() {
			var chunk ollamaResponse
			if err := decoder.Decode(&chunk); err != nil {
				return
			}
			select {
			case out <- llm.StreamChunk{Delta: chunk.Response, IsFinal: chunk.Done, StopReason: stopReasonIf(chunk.Done)}:
			case <-ctx.Done():
				return
			}
			if chunk.Done {
				return
			}
		}
	}()
	return out, nil
}

func stopReasonIf(done bool) string {
	if done {
		return "stop"
	}
	return ""
}

// Capabilities reports Ollama's defaults for an 8B-class local model.
func (o *Ollama) Capabilities() llm.ProviderCapabilities {
	return llm.ProviderCapabilities{
		MaxContextTokens: 8192,
		IsLocal:          true,
		ModelName:        o.model,
		CostTier:         0,
	}
}

// ProviderID identifies this provider to the router and to settings keys.
func (o *Ollama) ProviderID() string { return "ollama" }
