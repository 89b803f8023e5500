package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/infiniteinsight/spectral/internal/piifilter"
)

// TaskType distinguishes request purposes for routing decisions.
type TaskType string

const (
	TaskGeneral           TaskType = "general"
	TaskPiiSensitive      TaskType = "pii_sensitive"
	TaskBrowserAutomation TaskType = "browser_automation"
	TaskEmailGeneration   TaskType = "email_generation"
	TaskNaturalLanguage   TaskType = "natural_language"
)

// PreferenceKind names a RoutingPreference variant.
type PreferenceKind string

const (
	PreferenceLocalOnly     PreferenceKind = "local_only"
	PreferenceLocalPreferred PreferenceKind = "prefer_local"
	PreferenceBestAvailable PreferenceKind = "best_available"
)

// RoutingPreference controls how the router picks a provider.
//
//   - LocalOnly: only ever use an is_local provider.
//   - PreferLocal: use a local provider if one exists; otherwise fall back
//     to a cloud provider only when CloudAllowedTasks contains the task.
//   - BestAvailable: rank by (is_local desc, max_context_tokens desc,
//     cost_tier asc) and take the best.
type RoutingPreference struct {
	Kind              PreferenceKind
	CloudAllowedTasks []TaskType
}

// DefaultRoutingPreference is PreferLocal with General cloud-allowed,
// matching the reference router's default.
func DefaultRoutingPreference() RoutingPreference {
	return RoutingPreference{Kind: PreferenceLocalPreferred, CloudAllowedTasks: []TaskType{TaskGeneral}}
}

func (p RoutingPreference) cloudAllowed(task TaskType) bool {
	for _, t := range p.CloudAllowedTasks {
		if t == task {
			return true
		}
	}
	return false
}

// Router selects a Provider per request, filters PII before any non-local
// dispatch, and detokenizes the response afterward.
type Router struct {
	mu         sync.RWMutex
	providers  []Provider
	filter     *piifilter.Filter
	preference RoutingPreference
}

// NewRouter returns a Router with no providers registered and the given
// preference. The PII filter defaults to Tokenize, matching the reference
// router, so a cloud round trip can be reversed once the response returns.
func NewRouter(preference RoutingPreference) *Router {
	return &Router{
		filter:     piifilter.NewWithStrategy(piifilter.StrategyTokenize),
		preference: preference,
	}
}

// AddProvider registers a provider. Order matters for LocalOnly/PreferLocal
// ties: the first matching provider wins.
func (r *Router) AddProvider(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
}

// SetFilterStrategy replaces the router's PII filter strategy.
func (r *Router) SetFilterStrategy(strategy piifilter.Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filter = piifilter.NewWithStrategy(strategy)
}

// Preference returns the current routing preference.
func (r *Router) Preference() RoutingPreference {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.preference
}

// SetPreference replaces the routing preference.
func (r *Router) SetPreference(preference RoutingPreference) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preference = preference
}

// Providers returns the registered providers in registration order.
func (r *Router) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// AllCapabilities returns every registered provider's id and capabilities.
func (r *Router) AllCapabilities() map[string]ProviderCapabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]ProviderCapabilities, len(r.providers))
	for _, p := range r.providers {
		out[p.ProviderID()] = p.Capabilities()
	}
	return out
}

// Complete routes request to a selected provider, filtering PII before any
// non-local dispatch and detokenizing the result afterward.
func (r *Router) Complete(ctx context.Context, request CompletionRequest, task TaskType) (CompletionResponse, error) {
	provider, err := r.selectProvider(task)
	if err != nil {
		return CompletionResponse{}, err
	}

	filtered, tokenMap, err := r.filterForProvider(provider, request)
	if err != nil {
		return CompletionResponse{}, err
	}

	response, err := provider.Complete(ctx, filtered)
	if err != nil {
		return CompletionResponse{}, err
	}

	if tokenMap != nil {
		response.Content = piifilter.Detokenize(response.Content, tokenMap)
	}
	return response, nil
}

// Stream routes request to a selected provider. PII filtering is applied
// (text is still rewritten before leaving the machine) but, matching the
// reference router, the stream is not detokenized: re-injecting tokens
// into an incremental chunk stream would require buffering it whole,
// defeating the point of streaming.
func (r *Router) Stream(ctx context.Context, request CompletionRequest, task TaskType) (<-chan StreamChunk, error) {
	provider, err := r.selectProvider(task)
	if err != nil {
		return nil, err
	}

	filtered, _, err := r.filterForProvider(provider, request)
	if err != nil {
		return nil, err
	}

	return provider.Stream(ctx, filtered)
}

func (r *Router) filterForProvider(provider Provider, request CompletionRequest) (CompletionRequest, map[string]string, error) {
	if provider.Capabilities().IsLocal {
		return request, nil, nil
	}

	text := extractText(request)
	result, err := r.currentFilter().Filter(text)
	if err != nil {
		return CompletionRequest{}, nil, err
	}

	filtered := request
	if len(filtered.Messages) > 0 {
		filtered.Messages = append([]Message(nil), request.Messages...)
		last := len(filtered.Messages) - 1
		filtered.Messages[last].Content = result.FilteredText
	}
	return filtered, result.TokenMap, nil
}

func (r *Router) currentFilter() *piifilter.Filter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter
}

// extractText joins the system prompt and every message's content with a
// newline, matching the reference router's PII-scan input construction.
func extractText(request CompletionRequest) string {
	parts := make([]string, 0, len(request.Messages)+1)
	if request.SystemPrompt != "" {
		parts = append(parts, request.SystemPrompt)
	}
	for _, m := range request.Messages {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n")
}

// selectProvider implements the three RoutingPreference variants.
func (r *Router) selectProvider(task TaskType) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.providers) == 0 {
		return nil, ErrNoProviderAvailable
	}

	switch r.preference.Kind {
	case PreferenceLocalOnly:
		for _, p := range r.providers {
			if p.Capabilities().IsLocal {
				return p, nil
			}
		}
		return nil, ErrNoProviderAvailable

	case PreferenceLocalPreferred:
		for _, p := range r.providers {
			if p.Capabilities().IsLocal {
				return p, nil
			}
		}
		if !r.preference.cloudAllowed(task) {
			return nil, ErrNoProviderAvailable
		}
		for _, p := range r.providers {
			if !p.Capabilities().IsLocal {
				return p, nil
			}
		}
		return nil, ErrNoProviderAvailable

	case PreferenceBestAvailable:
		var best Provider
		var bestCaps ProviderCapabilities
		for _, p := range r.providers {
			caps := p.Capabilities()
			if best == nil || betterCapabilities(caps, bestCaps) {
				best, bestCaps = p, caps
			}
		}
		if best == nil {
			return nil, ErrNoProviderAvailable
		}
		return best, nil

	default:
		return nil, ErrNoProviderAvailable
	}
}

// betterCapabilities ranks (is_local desc, max_context_tokens desc,
// cost_tier asc), matching the reference router's max_by_key tuple.
func betterCapabilities(candidate, current ProviderCapabilities) bool {
	if candidate.IsLocal != current.IsLocal {
		return candidate.IsLocal
	}
	if candidate.MaxContextTokens != current.MaxContextTokens {
		return candidate.MaxContextTokens > current.MaxContextTokens
	}
	return candidate.CostTier < current.CostTier
}
