package commands

import (
	"errors"
	"fmt"

	"github.com/infiniteinsight/spectral/internal/repositories"
	"github.com/infiniteinsight/spectral/internal/vault"
)

// Error is the stable {code, message, details?} shape every command
// returns on failure. translate maps the known repository and vault
// sentinel errors to fixed messages; any other error's text becomes the
// Message of a DATABASE_ERROR, and some commands put a collaborator's
// error text in Message directly. Details carry identifiers such as
// field names.
type Error struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) withDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Error codes forming the command boundary's closed taxonomy.
const (
	CodeVaultLocked       = "VAULT_LOCKED"
	CodeVaultNotFound     = "VAULT_NOT_FOUND"
	CodeVaultExists       = "VAULT_ALREADY_EXISTS"
	CodeInvalidPassword   = "INVALID_PASSWORD"
	CodeInvalidVaultID    = "VALIDATION_ERROR"
	CodeEncryptionFailed  = "ENCRYPTION_FAILED"
	CodeDatabaseError     = "DATABASE_ERROR"
	CodeRecordNotFound    = "RECORD_NOT_FOUND"
	CodeValidationError   = "VALIDATION_ERROR"
	CodeBrokerNotFound    = "BROKER_NOT_FOUND"
	CodeMissingFields     = "MISSING_REQUIRED_FIELDS"
	CodeNoProfile         = "NO_PROFILE"
	CodeSubmissionFailed  = "SUBMISSION_FAILED"
	CodeJobNotFound       = "JOB_NOT_FOUND"
	CodeUnknownJobType    = "VALIDATION_ERROR"
	CodeNoProviderAvail   = "NO_PROVIDER_AVAILABLE"
	CodeAPIKeyMissing     = "API_KEY_MISSING"
	CodeFilesystemError   = "FILESYSTEM_ERROR"
	CodeInternal          = "INTERNAL_ERROR"
)

// translate converts a collaborator error into the command boundary's
// serializable shape. Every command's non-nil error return passes through
// here so no internal error type leaks past the boundary.
func translate(err error) *Error {
	if err == nil {
		return nil
	}
	var cmdErr *Error
	if errors.As(err, &cmdErr) {
		return cmdErr
	}
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return newError(CodeRecordNotFound, "record not found")
	case errors.Is(err, repositories.ErrConflict):
		return newError("CONFLICT", "record already exists")
	case errors.Is(err, vault.ErrProfileNotFound):
		return newError(CodeNoProfile, "profile not found")
	case errors.Is(err, vault.ErrInvalidPassword):
		return newError(CodeInvalidPassword, "incorrect password")
	case errors.Is(err, vault.ErrAlreadyExists):
		return newError(CodeVaultExists, "vault already exists")
	case errors.Is(err, vault.ErrNotFound):
		return newError(CodeVaultNotFound, "vault does not exist")
	case errors.Is(err, vault.ErrInvalidVaultID):
		return newError(CodeInvalidVaultID, "invalid vault id")
	default:
		return newError(CodeDatabaseError, err.Error())
	}
}
