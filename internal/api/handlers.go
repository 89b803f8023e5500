package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/infiniteinsight/spectral/internal/commands"
)

// Handler wraps a commands.Service and exposes every command the service
// defines as a POST /api/v1/invoke/{command} endpoint. This mirrors the
// desktop shell's original IPC model (invoke(name, args)) over the
// loopback HTTP surface instead: the command name is the one piece of
// routing information, and the request body is that command's argument
// struct as JSON.
type Handler struct {
	svc      *commands.Service
	logger   *zap.Logger
	commands map[string]commandFunc
}

// commandFunc decodes raw into a command-specific request, invokes the
// matching Service method, and returns its result (or nil for a
// command that only returns an error).
type commandFunc func(ctx context.Context, raw json.RawMessage) (any, *commands.Error)

// NewHandler builds a Handler with every command registered.
func NewHandler(svc *commands.Service, logger *zap.Logger) *Handler {
	h := &Handler{svc: svc, logger: logger}
	h.commands = h.buildCommandTable()
	return h
}

// decode unmarshals raw into a zero value of T, returning a validation
// *commands.Error on failure instead of the bare json error, so invoke's
// response shape stays the stable {code, message} envelope even for a
// malformed request body.
func decode[T any](raw json.RawMessage) (T, *commands.Error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, &commands.Error{Code: commands.CodeValidationError, Message: "invalid request body: " + err.Error()}
	}
	return v, nil
}

type vaultOnlyRequest struct {
	VaultID string
}

type renameVaultRequest struct {
	VaultID string
	NewName string
}

type deleteVaultRequest struct {
	VaultID  string
	Password string
}

type profileGetRequest struct {
	VaultID   string
	ProfileID string
}

type profileCreateRequest struct {
	VaultID string
	commands.ProfileInput
}

type profileUpdateRequest struct {
	VaultID   string
	ProfileID string
	commands.ProfileInput
}

type brokerDetailRequest struct {
	BrokerID string
	VaultID  string
}

type scanStatusRequest struct {
	VaultID   string
	ScanJobID string
}

type submitRemovalsForConfirmedRequest struct {
	VaultID   string
	ScanJobID string
}

type processRemovalBatchRequest struct {
	VaultID    string
	AttemptIDs []string
}

type submitRemovalRequest struct {
	VaultID   string
	AttemptID string
}

type discoveryFindingsRequest struct {
	VaultID string
	Limit   int
	Offset  int
}

type markRemediatedRequest struct {
	VaultID   string
	FindingID string
}

type runJobNowRequest struct {
	VaultID string
	JobType string
}

type setPrivacyLevelRequest struct {
	VaultID string
	Level   commands.Level
}

type setCustomFlagsRequest struct {
	VaultID string
	Flags   commands.FeatureFlags
}

type setLLMPrimaryProviderRequest struct {
	VaultID  string
	Provider string
}

type setLLMTaskProviderRequest struct {
	VaultID  string
	Task     string
	Provider string
}

type setLLMAPIKeyRequest struct {
	VaultID  string
	Provider string
	APIKey   string
}

type testLLMProviderRequest struct {
	VaultID  string
	Provider string
}

// buildCommandTable wires every command name to a closure that decodes its
// request body and calls the matching Service method.
func (h *Handler) buildCommandTable() map[string]commandFunc {
	s := h.svc
	return map[string]commandFunc{
		"vault_create": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[commands.VaultCreateRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return nil, s.VaultCreate(req)
		},
		"vault_unlock": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[commands.VaultUnlockRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return nil, s.VaultUnlock(req)
		},
		"vault_lock": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[vaultOnlyRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return nil, s.VaultLock(req.VaultID)
		},
		"vault_status": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[vaultOnlyRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return s.VaultStatus(req.VaultID)
		},
		"list_vaults": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			return s.ListVaults()
		},
		"rename_vault": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[renameVaultRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return nil, s.RenameVault(req.VaultID, req.NewName)
		},
		"change_vault_password": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[commands.ChangeVaultPasswordRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return nil, s.ChangeVaultPassword(ctx, req)
		},
		"delete_vault": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[deleteVaultRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return nil, s.DeleteVault(req.VaultID, req.Password)
		},
		"profile_create": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[profileCreateRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return s.ProfileCreate(req.VaultID, req.ProfileInput)
		},
		"profile_get": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[profileGetRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return s.ProfileGet(req.VaultID, req.ProfileID)
		},
		"profile_update": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[profileUpdateRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return s.ProfileUpdate(req.VaultID, req.ProfileID, req.ProfileInput)
		},
		"profile_list": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[vaultOnlyRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return s.ProfileList(req.VaultID)
		},
		"get_profile_completeness": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[vaultOnlyRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return s.GetProfileCompleteness(req.VaultID)
		},
		"list_brokers": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			return s.ListBrokers(), nil
		},
		"get_broker_detail": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[brokerDetailRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return s.GetBrokerDetail(req.BrokerID, req.VaultID)
		},
		"start_scan": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[commands.StartScanRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return s.StartScan(ctx, req)
		},
		"get_scan_status": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[scanStatusRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return s.GetScanStatus(ctx, req.VaultID, req.ScanJobID)
		},
		"get_findings": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[commands.GetFindingsRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return s.GetFindings(ctx, req)
		},
		"verify_finding": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[commands.VerifyFindingRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return nil, s.VerifyFinding(ctx, req)
		},
		"submit_removals_for_confirmed": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[submitRemovalsForConfirmedRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return s.SubmitRemovalsForConfirmed(ctx, req.VaultID, req.ScanJobID)
		},
		"process_removal_batch": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[processRemovalBatchRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return nil, s.ProcessRemovalBatch(ctx, req.VaultID, req.AttemptIDs)
		},
		"submit_removal": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[submitRemovalRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return nil, s.SubmitRemoval(ctx, req.VaultID, req.AttemptID)
		},
		"get_captcha_queue": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[vaultOnlyRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return s.GetCaptchaQueue(ctx, req.VaultID)
		},
		"get_failed_queue": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[vaultOnlyRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return s.GetFailedQueue(ctx, req.VaultID)
		},
		"start_discovery_scan": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[vaultOnlyRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return nil, s.StartDiscoveryScan(req.VaultID)
		},
		"get_discovery_findings": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[discoveryFindingsRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return s.GetDiscoveryFindings(ctx, req.VaultID, req.Limit, req.Offset)
		},
		"mark_finding_remediated": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[markRemediatedRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return nil, s.MarkFindingRemediated(ctx, req.VaultID, req.FindingID)
		},
		"get_scheduled_jobs": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[vaultOnlyRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return s.GetScheduledJobs(ctx, req.VaultID)
		},
		"update_scheduled_job": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[commands.UpdateScheduledJobRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return nil, s.UpdateScheduledJob(ctx, req)
		},
		"run_job_now": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[runJobNowRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return nil, s.RunJobNow(ctx, req.VaultID, req.JobType)
		},
		"get_privacy_settings": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[vaultOnlyRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return s.GetPrivacySettings(ctx, req.VaultID)
		},
		"set_privacy_level": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[setPrivacyLevelRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return nil, s.SetPrivacyLevel(ctx, req.VaultID, req.Level)
		},
		"set_custom_feature_flags": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[setCustomFlagsRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return nil, s.SetCustomFeatureFlags(ctx, req.VaultID, req.Flags)
		},
		"get_llm_provider_settings": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[vaultOnlyRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return s.GetLLMProviderSettings(ctx, req.VaultID)
		},
		"set_llm_primary_provider": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[setLLMPrimaryProviderRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return nil, s.SetLLMPrimaryProvider(ctx, req.VaultID, req.Provider)
		},
		"set_llm_task_provider": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[setLLMTaskProviderRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return nil, s.SetLLMTaskProvider(ctx, req.VaultID, req.Task, req.Provider)
		},
		"set_llm_api_key": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[setLLMAPIKeyRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return nil, s.SetLLMAPIKey(ctx, req.VaultID, req.Provider, req.APIKey)
		},
		"test_llm_provider": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[testLLMProviderRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return s.TestLLMProvider(ctx, req.VaultID, req.Provider)
		},
		"draft_email": func(ctx context.Context, raw json.RawMessage) (any, *commands.Error) {
			req, derr := decode[commands.DraftEmailRequest](raw)
			if derr != nil {
				return nil, derr
			}
			return s.DraftEmail(ctx, req)
		},
	}
}

// Invoke handles POST /api/v1/invoke/{command}. It looks up the command by
// name, decodes the request body into that command's argument struct, and
// writes either the result or the command's *commands.Error.
func (h *Handler) Invoke(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "command")
	fn, ok := h.commands[name]
	if !ok {
		ErrNotFound(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		ErrBadRequest(w, "failed to read request body")
		return
	}

	result, cmdErr := fn(r.Context(), raw)
	if cmdErr != nil {
		WriteCommandError(w, cmdErr)
		return
	}
	if result == nil {
		NoContent(w)
		return
	}
	Ok(w, result)
}
