package providers

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/infiniteinsight/spectral/internal/llm"
)

// defaultAnthropicModel is used when the caller does not override it.
const defaultAnthropicModel = anthropic.ModelClaude3_5SonnetLatest

// defaultAnthropicMaxTokens bounds a completion when the caller supplies
// none; the Anthropic API requires max_tokens on every request.
const defaultAnthropicMaxTokens = 1024

// Anthropic is a cloud provider backed by the Anthropic Messages API. It is
// never is_local: every request routed here has already passed through the
// router's PII filter.
type Anthropic struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropic builds a provider using apiKey and the default model.
func NewAnthropic(apiKey string) *Anthropic {
	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  defaultAnthropicModel,
	}
}

// NewAnthropicWithModel builds a provider using apiKey and a specific model.
func NewAnthropicWithModel(apiKey string, model anthropic.Model) *Anthropic {
	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func toAnthropicMessages(request llm.CompletionRequest) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(request.Messages))
	for _, m := range request.Messages {
		block := anthropic.NewTextBlock(m.Content)
		switch m.Role {
		case llm.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(block))
		default:
			// System messages are sent via the top-level system prompt, not
			// as a message turn, so anything that isn't Assistant goes in
			// as a user turn here.
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	return messages
}

func (a *Anthropic) buildParams(request llm.CompletionRequest) anthropic.MessageNewParams {
	maxTokens := int64(defaultAnthropicMaxTokens)
	if request.MaxTokens != nil {
		maxTokens = int64(*request.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: maxTokens,
		Messages:  toAnthropicMessages(request),
	}
	if request.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: request.SystemPrompt}}
	}
	if request.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*request.Temperature))
	}
	if len(request.StopSequences) > 0 {
		params.StopSequences = request.StopSequences
	}
	return params
}

// Complete sends a single Messages.New call and flattens the returned
// content blocks into plain text.
func (a *Anthropic) Complete(ctx context.Context, request llm.CompletionRequest) (llm.CompletionResponse, error) {
	params := a.buildParams(request)

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, fmt.Errorf("anthropic: request failed: %w", err)
	}

	var content string
	for _, block := range message.Content {
		if text := block.Text; text != "" {
			content += text
		}
	}

	return llm.CompletionResponse{
		Content:    content,
		Model:      string(message.Model),
		StopReason: string(message.StopReason),
		Usage: &llm.Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
		},
	}, nil
}

// Stream sends a streaming Messages.New call and forwards each text delta.
func (a *Anthropic) Stream(ctx context.Context, request llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	params := a.buildParams(request)
	stream := a.client.Messages.NewStreaming(ctx, params)

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)

		var message anthropic.Message
		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				return
			}

			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if textDelta, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && textDelta.Text != "" {
					select {
					case out <- llm.StreamChunk{Delta: textDelta.Text}:
					case <-ctx.Done():
						return
					}
				}
			}
		}

		stopReason := string(message.StopReason)
		select {
		case out <- llm.StreamChunk{IsFinal: true, StopReason: stopReason}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}

// Capabilities reports Claude 3.5 Sonnet's defaults. CostTier is nonzero:
// this is always a paid, non-local provider.
func (a *Anthropic) Capabilities() llm.ProviderCapabilities {
	return llm.ProviderCapabilities{
		MaxContextTokens:         200_000,
		IsLocal:                  false,
		SupportsVision:           true,
		SupportsToolUse:          true,
		SupportsStructuredOutput: false,
		ModelName:                string(a.model),
		CostTier:                 2,
	}
}

// ProviderID identifies this provider to the router and to settings keys.
func (a *Anthropic) ProviderID() string { return "anthropic" }
