// Package privacy implements the Privacy Engine (C11): a privacy level
// plus a set of feature flags it implies, and CheckPermission, which
// decides whether a feature is allowed. The command boundary calls
// CheckPermission before storing a cloud LLM API key; the LLM Router,
// scanner, removal worker and mail poller do not call it.
package privacy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/infiniteinsight/spectral/internal/audit"
	"github.com/infiniteinsight/spectral/internal/cipher"
	"github.com/infiniteinsight/spectral/internal/repositories"
)

// Settings keys under the settings table.
const (
	settingsKeyLevel = "privacy_level"
	settingsKeyFlags = "feature_flags"
)

// Level is one of the four privacy levels a vault can be configured with.
type Level string

const (
	LevelParanoid     Level = "Paranoid"
	LevelLocalPrivacy Level = "LocalPrivacy"
	LevelBalanced     Level = "Balanced"
	LevelCustom       Level = "Custom"
)

func (l Level) valid() bool {
	switch l {
	case LevelParanoid, LevelLocalPrivacy, LevelBalanced, LevelCustom:
		return true
	default:
		return false
	}
}

// Feature names a single gated capability. These match FeatureFlags'
// fields one for one.
type Feature string

const (
	FeatureLocalLLM          Feature = "allow_local_llm"
	FeatureCloudLLM          Feature = "allow_cloud_llm"
	FeatureBrowserAutomation Feature = "allow_browser_automation"
	FeatureEmailSending      Feature = "allow_email_sending"
	FeatureIMAPMonitoring    Feature = "allow_imap_monitoring"
	FeaturePIIScanning       Feature = "allow_pii_scanning"
)

// FeatureFlags is the full set of gated capabilities. Only consulted
// directly when Level is Custom; predefined levels compute their flags
// on the fly via Level.flags.
type FeatureFlags struct {
	AllowLocalLLM          bool `json:"allow_local_llm"`
	AllowCloudLLM          bool `json:"allow_cloud_llm"`
	AllowBrowserAutomation bool `json:"allow_browser_automation"`
	AllowEmailSending      bool `json:"allow_email_sending"`
	AllowIMAPMonitoring    bool `json:"allow_imap_monitoring"`
	AllowPIIScanning       bool `json:"allow_pii_scanning"`
}

func (f FeatureFlags) get(feature Feature) bool {
	switch feature {
	case FeatureLocalLLM:
		return f.AllowLocalLLM
	case FeatureCloudLLM:
		return f.AllowCloudLLM
	case FeatureBrowserAutomation:
		return f.AllowBrowserAutomation
	case FeatureEmailSending:
		return f.AllowEmailSending
	case FeatureIMAPMonitoring:
		return f.AllowIMAPMonitoring
	case FeaturePIIScanning:
		return f.AllowPIIScanning
	default:
		return false
	}
}

var allTrue = FeatureFlags{
	AllowLocalLLM:          true,
	AllowCloudLLM:          true,
	AllowBrowserAutomation: true,
	AllowEmailSending:      true,
	AllowIMAPMonitoring:    true,
	AllowPIIScanning:       true,
}

var allFalse = FeatureFlags{}

// flags resolves the flag set a predefined level implies. Custom returns
// the zero value — callers must use the stored flags instead.
func (l Level) flags() FeatureFlags {
	switch l {
	case LevelParanoid:
		return allFalse
	case LevelLocalPrivacy:
		flags := allTrue
		flags.AllowCloudLLM = false
		return flags
	case LevelBalanced:
		return allTrue
	default:
		return allFalse
	}
}

// Decision is the result of a permission check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Engine holds the current privacy level and custom flag set, persisted
// through SettingsRepository so it survives a vault lock/unlock cycle.
// Every check, grant, and revoke is mirrored to the audit log (C12).
type Engine struct {
	settings repositories.SettingsRepository
	audit    *audit.Log
}

// New returns an Engine backed by settings and auditLog.
func New(settings repositories.SettingsRepository, auditLog *audit.Log) *Engine {
	return &Engine{settings: settings, audit: auditLog}
}

// Level returns the currently configured privacy level, defaulting to
// Balanced when nothing has been set yet.
func (e *Engine) Level(ctx context.Context) (Level, error) {
	setting, err := e.settings.Get(ctx, settingsKeyLevel)
	if err == repositories.ErrNotFound {
		return LevelBalanced, nil
	}
	if err != nil {
		return "", fmt.Errorf("privacy: failed to load level: %w", err)
	}
	level := Level(setting.Value)
	if !level.valid() {
		return "", fmt.Errorf("privacy: stored privacy_level %q is not a recognized level", setting.Value)
	}
	return level, nil
}

// CustomFlags returns the stored custom flag set, all-false if none has
// been saved yet.
func (e *Engine) CustomFlags(ctx context.Context) (FeatureFlags, error) {
	setting, err := e.settings.Get(ctx, settingsKeyFlags)
	if err == repositories.ErrNotFound {
		return FeatureFlags{}, nil
	}
	if err != nil {
		return FeatureFlags{}, fmt.Errorf("privacy: failed to load feature flags: %w", err)
	}
	var flags FeatureFlags
	if err := json.Unmarshal([]byte(setting.Value), &flags); err != nil {
		return FeatureFlags{}, fmt.Errorf("privacy: failed to decode feature flags: %w", err)
	}
	return flags, nil
}

// EffectiveFlags resolves the flag set actually in force: a predefined
// level's implied flags, or the stored custom flags when Level is Custom.
func (e *Engine) EffectiveFlags(ctx context.Context) (FeatureFlags, error) {
	level, err := e.Level(ctx)
	if err != nil {
		return FeatureFlags{}, err
	}
	if level != LevelCustom {
		return level.flags(), nil
	}
	return e.CustomFlags(ctx)
}

// SetLevel switches to a predefined level. Switching away from Custom
// does not discard the stored custom flags; switching back to Custom
// later resumes them.
func (e *Engine) SetLevel(ctx context.Context, level Level) error {
	if !level.valid() {
		return fmt.Errorf("privacy: %q is not a recognized privacy level", level)
	}
	if err := e.settings.Set(ctx, settingsKeyLevel, cipher.EncryptedString(level)); err != nil {
		return fmt.Errorf("privacy: failed to set level: %w", err)
	}
	if e.audit != nil {
		_ = e.audit.Granted(ctx, "privacy_level:"+string(level), "")
	}
	return nil
}

// SetCustomFlags stores a custom flag set and switches the level to
// Custom so it takes effect immediately.
func (e *Engine) SetCustomFlags(ctx context.Context, flags FeatureFlags) error {
	encoded, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("privacy: failed to encode feature flags: %w", err)
	}
	if err := e.settings.Set(ctx, settingsKeyFlags, cipher.EncryptedString(encoded)); err != nil {
		return fmt.Errorf("privacy: failed to set feature flags: %w", err)
	}
	return e.SetLevel(ctx, LevelCustom)
}

// CheckPermission reports whether feature is allowed under the vault's
// current level and flags. For a predefined level the denial
// reason names the level; for Custom it names the feature.
func (e *Engine) CheckPermission(ctx context.Context, feature Feature) (Decision, error) {
	level, err := e.Level(ctx)
	if err != nil {
		return Decision{}, err
	}

	var flags FeatureFlags
	if level == LevelCustom {
		flags, err = e.CustomFlags(ctx)
		if err != nil {
			return Decision{}, err
		}
	} else {
		flags = level.flags()
	}

	decision := e.resolve(feature, level, flags)
	if e.audit != nil {
		_ = e.audit.Checked(ctx, string(feature), decision.Allowed)
	}
	return decision, nil
}

func (e *Engine) resolve(feature Feature, level Level, flags FeatureFlags) Decision {
	if flags.get(feature) {
		return Decision{Allowed: true}
	}
	if level == LevelCustom {
		return Decision{Allowed: false, Reason: fmt.Sprintf("%s is disabled in the current custom feature settings", feature)}
	}
	return Decision{Allowed: false, Reason: fmt.Sprintf("%s is disabled by the %s privacy level", feature, level)}
}
