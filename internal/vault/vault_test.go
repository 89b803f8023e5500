package vault_test

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/infiniteinsight/spectral/internal/vault"
)

func testLogger(t *testing.T) *zap.Logger {
	t.Helper()
	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("build logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Sync() })
	return logger
}

func TestCreateThenUnlockRoundTrip(t *testing.T) {
	dataDir := t.TempDir()
	logger := testLogger(t)

	v, err := vault.Create(dataDir, "primary", "Primary Vault", "hunter2-correct-battery", logger)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !v.IsUnlocked() {
		t.Fatal("expected vault to be unlocked after create")
	}
	if err := v.Lock(); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if v.IsUnlocked() {
		t.Fatal("expected vault to be locked after Lock")
	}

	v2, err := vault.Unlock(dataDir, "primary", "hunter2-correct-battery", logger)
	if err != nil {
		t.Fatalf("unlock with correct password: %v", err)
	}
	if !v2.IsUnlocked() {
		t.Fatal("expected vault to be unlocked after Unlock")
	}
	_ = v2.Lock()
}

func TestUnlockWrongPasswordRejected(t *testing.T) {
	dataDir := t.TempDir()
	logger := testLogger(t)

	v, err := vault.Create(dataDir, "primary", "Primary Vault", "correct-password", logger)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = v.Lock()

	if _, err := vault.Unlock(dataDir, "primary", "wrong-password", logger); err != vault.ErrInvalidPassword {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestCreateRejectsDuplicateVaultID(t *testing.T) {
	dataDir := t.TempDir()
	logger := testLogger(t)

	if _, err := vault.Create(dataDir, "dupe", "First", "password-one", logger); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := vault.Create(dataDir, "dupe", "Second", "password-two", logger); !errors.Is(err, vault.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestCreateRejectsInvalidVaultID(t *testing.T) {
	dataDir := t.TempDir()
	logger := testLogger(t)

	if _, err := vault.Create(dataDir, "../escape", "Bad", "password", logger); !errors.Is(err, vault.ErrInvalidVaultID) {
		t.Fatalf("expected ErrInvalidVaultID, got %v", err)
	}
}

func TestOperationsOnLockedVaultFail(t *testing.T) {
	dataDir := t.TempDir()
	logger := testLogger(t)

	v, err := vault.Create(dataDir, "primary", "Primary Vault", "password", logger)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = v.Lock()

	if _, err := v.EncryptionKey(); err != vault.ErrLocked {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if _, err := v.ListProfiles(); err != vault.ErrLocked {
		t.Fatalf("expected ErrLocked from ListProfiles, got %v", err)
	}
}

func TestListAndDeleteAndRenameVaults(t *testing.T) {
	dataDir := t.TempDir()
	logger := testLogger(t)

	v, err := vault.Create(dataDir, "alpha", "Alpha", "password", logger)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = v.Lock()

	metas, err := vault.ListVaults(dataDir)
	if err != nil {
		t.Fatalf("list vaults: %v", err)
	}
	if len(metas) != 1 || metas[0].VaultID != "alpha" {
		t.Fatalf("unexpected vault listing: %+v", metas)
	}

	if err := vault.RenameVault(dataDir, "alpha", "Renamed Alpha"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	metas, err = vault.ListVaults(dataDir)
	if err != nil {
		t.Fatalf("list vaults after rename: %v", err)
	}
	if metas[0].DisplayName != "Renamed Alpha" {
		t.Fatalf("expected renamed display name, got %q", metas[0].DisplayName)
	}

	if err := vault.DeleteVault(dataDir, "alpha"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	metas, err = vault.ListVaults(dataDir)
	if err != nil {
		t.Fatalf("list vaults after delete: %v", err)
	}
	if len(metas) != 0 {
		t.Fatalf("expected no vaults after delete, got %+v", metas)
	}
}

func TestChangePassword(t *testing.T) {
	dataDir := t.TempDir()
	logger := testLogger(t)

	v, err := vault.Create(dataDir, "primary", "Primary", "old-password", logger)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := v.SaveProfile("", testProfileData()); err != nil {
		t.Fatalf("save profile: %v", err)
	}

	if err := v.ChangePassword(t.Context(), "old-password", "new-password"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	_ = v.Lock()

	if _, err := vault.Unlock(dataDir, "primary", "old-password", logger); err != vault.ErrInvalidPassword {
		t.Fatalf("expected old password rejected, got %v", err)
	}

	v2, err := vault.Unlock(dataDir, "primary", "new-password", logger)
	if err != nil {
		t.Fatalf("unlock with new password: %v", err)
	}
	defer v2.Lock()

	profiles, err := v2.ListProfiles()
	if err != nil {
		t.Fatalf("list profiles after rekey: %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("expected profile to survive rekey, got %d profiles", len(profiles))
	}
}
