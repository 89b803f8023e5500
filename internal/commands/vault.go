package commands

import (
	"context"

	"github.com/infiniteinsight/spectral/internal/vault"
)

// VaultCreateRequest is the input to vault_create.
type VaultCreateRequest struct {
	VaultID     string
	DisplayName string
	Password    string
}

// VaultCreate creates a new vault, unlocks it immediately (matching the
// original implementation: a freshly created vault starts in the unlocked
// session map), and leaves its session ready for profile/scan commands.
func (s *Service) VaultCreate(req VaultCreateRequest) *Error {
	v, err := vault.Create(s.dataDir, req.VaultID, req.DisplayName, req.Password, s.logger)
	if err != nil {
		return translate(err)
	}
	if _, err := s.addSession(req.VaultID, v); err != nil {
		return translate(err)
	}
	return nil
}

// VaultUnlockRequest is the input to vault_unlock.
type VaultUnlockRequest struct {
	VaultID  string
	Password string
}

// VaultUnlock unlocks an existing vault. Idempotent: unlocking an
// already-unlocked vault succeeds without re-deriving the key.
func (s *Service) VaultUnlock(req VaultUnlockRequest) *Error {
	if s.isUnlocked(req.VaultID) {
		return nil
	}
	v, err := vault.Unlock(s.dataDir, req.VaultID, req.Password, s.logger)
	if err != nil {
		return translate(err)
	}
	if _, err := s.addSession(req.VaultID, v); err != nil {
		return translate(err)
	}
	return nil
}

// VaultLock locks a vault, tearing down its scheduler and zeroing its key.
// Idempotent: locking an already-locked vault succeeds.
func (s *Service) VaultLock(vaultID string) *Error {
	s.mu.RLock()
	sess, ok := s.sessions[vaultID]
	s.mu.RUnlock()
	if ok {
		_ = sess.vault.Lock()
	}
	s.removeSession(vaultID)
	return nil
}

// VaultStatus is the response to vault_status.
type VaultStatus struct {
	Exists      bool
	Unlocked    bool
	DisplayName string
}

// VaultStatus reports whether a vault exists and is currently unlocked.
func (s *Service) VaultStatus(vaultID string) (VaultStatus, *Error) {
	metas, err := vault.ListVaults(s.dataDir)
	if err != nil {
		return VaultStatus{}, translate(err)
	}
	status := VaultStatus{Unlocked: s.isUnlocked(vaultID)}
	for _, m := range metas {
		if m.VaultID == vaultID {
			status.Exists = true
			status.DisplayName = m.DisplayName
			break
		}
	}
	return status, nil
}

// VaultInfo is one entry in list_vaults' response.
type VaultInfo struct {
	VaultID      string
	DisplayName  string
	CreatedAt    string
	LastAccessed string
	Unlocked     bool
}

// ListVaults returns every vault under the data directory, most recently
// created metadata first is not guaranteed — callers sort client-side if
// they want an order.
func (s *Service) ListVaults() ([]VaultInfo, *Error) {
	metas, err := vault.ListVaults(s.dataDir)
	if err != nil {
		return nil, translate(err)
	}
	infos := make([]VaultInfo, 0, len(metas))
	for _, m := range metas {
		infos = append(infos, VaultInfo{
			VaultID:      m.VaultID,
			DisplayName:  m.DisplayName,
			CreatedAt:    m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			LastAccessed: m.LastAccessed.Format("2006-01-02T15:04:05Z07:00"),
			Unlocked:     s.isUnlocked(m.VaultID),
		})
	}
	return infos, nil
}

// RenameVault updates a vault's display name in its metadata file. Does
// not require the vault to be unlocked.
func (s *Service) RenameVault(vaultID, newName string) *Error {
	if err := vault.RenameVault(s.dataDir, vaultID, newName); err != nil {
		return translate(err)
	}
	return nil
}

// ChangeVaultPasswordRequest is the input to change_vault_password.
type ChangeVaultPasswordRequest struct {
	VaultID     string
	OldPassword string
	NewPassword string
}

// ChangeVaultPassword rekeys the vault under a new password. The vault
// must currently be unlocked (its session holds the *vault.Vault the
// rekey operates on).
func (s *Service) ChangeVaultPassword(ctx context.Context, req ChangeVaultPasswordRequest) *Error {
	sess, cmdErr := s.getSession(req.VaultID)
	if cmdErr != nil {
		return cmdErr
	}
	if err := sess.vault.ChangePassword(ctx, req.OldPassword, req.NewPassword); err != nil {
		return translate(err)
	}
	return nil
}

// DeleteVault verifies the password, locks the vault if it was unlocked,
// and removes its directory from disk.
func (s *Service) DeleteVault(vaultID, password string) *Error {
	if _, err := vault.Unlock(s.dataDir, vaultID, password, s.logger); err != nil {
		return translate(err)
	}
	_ = s.VaultLock(vaultID)
	if err := vault.DeleteVault(s.dataDir, vaultID); err != nil {
		return translate(err)
	}
	return nil
}
