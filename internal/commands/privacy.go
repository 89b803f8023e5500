package commands

import (
	"context"
	"fmt"

	"github.com/infiniteinsight/spectral/internal/cipher"
	"github.com/infiniteinsight/spectral/internal/llm"
	"github.com/infiniteinsight/spectral/internal/llm/providers"
	"github.com/infiniteinsight/spectral/internal/privacy"
	"github.com/infiniteinsight/spectral/internal/repositories"
)

// Settings keys under the namespace get_llm_provider_settings/
// set_llm_* read and write.
const (
	settingsKeyPrimaryProvider = "llm.primary_provider"
	settingsKeyTaskProvider    = "llm.task."    // + task + ".provider"
	settingsKeyProviderAPIKey  = "llm.provider." // + provider + ".api_key"
)

func taskProviderKey(task string) string { return settingsKeyTaskProvider + task + ".provider" }
func providerAPIKeyKey(provider string) string { return settingsKeyProviderAPIKey + provider + ".api_key" }

var knownProviders = map[string]bool{"ollama": true, "anthropic": true}

// PrivacySettings is the response to get_privacy_settings.
type PrivacySettings struct {
	Level Level
	Flags FeatureFlags
}

// Level mirrors privacy.Level across the command boundary.
type Level = privacy.Level

// FeatureFlags mirrors privacy.FeatureFlags across the command boundary.
type FeatureFlags = privacy.FeatureFlags

// GetPrivacySettings reports a vault's current privacy level and the
// feature flags actually in force.
func (s *Service) GetPrivacySettings(ctx context.Context, vaultID string) (PrivacySettings, *Error) {
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return PrivacySettings{}, cmdErr
	}
	level, err := sess.privacy.Level(ctx)
	if err != nil {
		return PrivacySettings{}, translate(err)
	}
	flags, err := sess.privacy.EffectiveFlags(ctx)
	if err != nil {
		return PrivacySettings{}, translate(err)
	}
	return PrivacySettings{Level: level, Flags: flags}, nil
}

// SetPrivacyLevel switches the vault to a predefined privacy level.
func (s *Service) SetPrivacyLevel(ctx context.Context, vaultID string, level Level) *Error {
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return cmdErr
	}
	if err := sess.privacy.SetLevel(ctx, level); err != nil {
		return translate(err)
	}
	return nil
}

// SetCustomFeatureFlags stores a custom flag set and switches the vault
// to the Custom privacy level.
func (s *Service) SetCustomFeatureFlags(ctx context.Context, vaultID string, flags FeatureFlags) *Error {
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return cmdErr
	}
	if err := sess.privacy.SetCustomFlags(ctx, flags); err != nil {
		return translate(err)
	}
	return nil
}

// LLMProviderSettings is the response to get_llm_provider_settings.
type LLMProviderSettings struct {
	PrimaryProvider    string
	TaskProviders       map[string]string
	AvailableProviders  []string
	HasAnthropicAPIKey  bool
}

// GetLLMProviderSettings reports the vault's configured primary and
// per-task LLM providers, and which cloud providers have a stored key.
func (s *Service) GetLLMProviderSettings(ctx context.Context, vaultID string) (LLMProviderSettings, *Error) {
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return LLMProviderSettings{}, cmdErr
	}
	out := LLMProviderSettings{
		AvailableProviders: []string{"ollama", "anthropic"},
		TaskProviders:      make(map[string]string),
	}
	if setting, err := sess.settings.Get(ctx, settingsKeyPrimaryProvider); err == nil {
		out.PrimaryProvider = string(setting.Value)
	}
	if _, err := sess.settings.Get(ctx, providerAPIKeyKey("anthropic")); err == nil {
		out.HasAnthropicAPIKey = true
	}
	tasks := []llm.TaskType{llm.TaskGeneral, llm.TaskPiiSensitive, llm.TaskBrowserAutomation, llm.TaskEmailGeneration, llm.TaskNaturalLanguage}
	for _, task := range tasks {
		if setting, err := sess.settings.Get(ctx, taskProviderKey(string(task))); err == nil {
			out.TaskProviders[string(task)] = string(setting.Value)
		}
	}
	return out, nil
}

// SetLLMPrimaryProvider persists the preferred default provider and
// rebuilds the vault's router provider list. The router's provider
// selection does not read this setting; it is reported back by
// GetLLMProviderSettings.
func (s *Service) SetLLMPrimaryProvider(ctx context.Context, vaultID, provider string) *Error {
	if !knownProviders[provider] {
		return newError(CodeValidationError, "unrecognized provider").withDetail("field", "provider")
	}
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return cmdErr
	}
	if err := sess.settings.Set(ctx, settingsKeyPrimaryProvider, cipher.EncryptedString(provider)); err != nil {
		return translate(err)
	}
	if err := s.reconfigureRouter(ctx, sess); err != nil {
		return translate(err)
	}
	return nil
}

// SetLLMTaskProvider persists a provider choice for a specific task type.
// The setting is reported back by GetLLMProviderSettings; the router's
// provider selection does not read it.
func (s *Service) SetLLMTaskProvider(ctx context.Context, vaultID, task, provider string) *Error {
	if !knownProviders[provider] {
		return newError(CodeValidationError, "unrecognized provider").withDetail("field", "provider")
	}
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return cmdErr
	}
	if err := sess.settings.Set(ctx, taskProviderKey(task), cipher.EncryptedString(provider)); err != nil {
		return translate(err)
	}
	return nil
}

// SetLLMAPIKey stores a cloud provider's API key, gated on the vault's
// privacy settings allowing cloud LLM use, and rebuilds the router so a
// newly configured provider becomes selectable.
func (s *Service) SetLLMAPIKey(ctx context.Context, vaultID, provider, apiKey string) *Error {
	if provider != "anthropic" {
		return newError(CodeValidationError, "only the anthropic provider accepts an api key").withDetail("field", "provider")
	}
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return cmdErr
	}
	decision, err := sess.privacy.CheckPermission(ctx, privacy.FeatureCloudLLM)
	if err != nil {
		return translate(err)
	}
	if !decision.Allowed {
		return newError(CodeNoProviderAvail, decision.Reason)
	}
	if err := sess.settings.Set(ctx, providerAPIKeyKey(provider), cipher.EncryptedString(apiKey)); err != nil {
		return translate(err)
	}
	if err := s.reconfigureRouter(ctx, sess); err != nil {
		return translate(err)
	}
	return nil
}

// reconfigureRouter rebuilds a session's router's provider list from its
// stored settings: Ollama is always registered as the local provider;
// Anthropic is registered only once an API key has been saved for it.
func (s *Service) reconfigureRouter(ctx context.Context, sess *session) error {
	router := llm.NewRouter(sess.router.Preference())
	router.AddProvider(providers.NewOllama())
	if setting, err := sess.settings.Get(ctx, providerAPIKeyKey("anthropic")); err == nil {
		router.AddProvider(providers.NewAnthropic(string(setting.Value)))
	} else if err != repositories.ErrNotFound {
		return err
	}
	sess.router = router
	return nil
}

// TestLLMProviderResult is the response to test_llm_provider.
type TestLLMProviderResult struct {
	Success bool
	Message string
}

// TestLLMProvider sends a minimal completion request directly to a named
// provider, bypassing routing preference, to confirm it is reachable and
// configured correctly.
func (s *Service) TestLLMProvider(ctx context.Context, vaultID, provider string) (TestLLMProviderResult, *Error) {
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return TestLLMProviderResult{}, cmdErr
	}
	for _, p := range sess.router.Providers() {
		if p.ProviderID() != provider {
			continue
		}
		_, err := p.Complete(ctx, llm.NewCompletionRequest("respond with the single word ok"))
		if err != nil {
			return TestLLMProviderResult{Success: false, Message: err.Error()}, nil
		}
		return TestLLMProviderResult{Success: true, Message: "provider responded"}, nil
	}
	return TestLLMProviderResult{}, newError(CodeNoProviderAvail, fmt.Sprintf("provider %q is not configured", provider))
}
