// Package vault implements the vault lifecycle (C4): create, unlock, lock,
// and profile persistence on top of the KDF (C1), AEAD field cipher (C2),
// and encrypted store (C3).
package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	spcipher "github.com/infiniteinsight/spectral/internal/cipher"
	"github.com/infiniteinsight/spectral/internal/db"
	"github.com/infiniteinsight/spectral/internal/kdf"
)

// vaultIDPattern enforces that vault_id matches this pattern and must not
// contain "/", "\", or "..".
var vaultIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// verificationPlaintext is the known plaintext sealed into the reserved
// marker row on create, and checked against on every unlock.
const verificationPlaintext = "spectral-vault-verification-v1"

// Metadata is the plaintext sidecar file persisted alongside the database
// at vaults/<vault_id>/metadata.json.
type Metadata struct {
	VaultID      string    `json:"vault_id"`
	DisplayName  string    `json:"display_name"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
}

// Vault is a password-gated container holding the 256-bit key (only while
// unlocked), the persisted salt, and a handle to the encrypted store.
type Vault struct {
	mu       sync.RWMutex
	id       string
	dir      string
	key      [spcipher.KeySize]byte
	database *gorm.DB
	logger   *zap.Logger
	unlocked bool
}

func validateVaultID(id string) error {
	if !vaultIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidVaultID, id)
	}
	return nil
}

func vaultDir(dataDir, vaultID string) string {
	return filepath.Join(dataDir, "vaults", vaultID)
}

// Create generates a salt, derives a key, writes the salt file, opens the
// store, runs migrations, writes the verification marker, and returns the
// vault in the unlocked state.
func Create(dataDir, vaultID, displayName, password string, logger *zap.Logger) (*Vault, error) {
	if err := validateVaultID(vaultID); err != nil {
		return nil, err
	}

	dir := vaultDir(dataDir, vaultID)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, vaultID)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("vault: failed to create vault directory: %w", err)
	}

	salt, err := kdf.GenerateSalt()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, "salt"), salt, 0o600); err != nil {
		return nil, fmt.Errorf("vault: failed to write salt: %w", err)
	}

	key, err := kdf.DeriveKey(password, salt)
	if err != nil {
		return nil, err
	}

	database, err := db.Open(db.Config{Path: filepath.Join(dir, "vault.db"), Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("vault: failed to open store: %w", err)
	}

	ciphertext, nonce, err := spcipher.Seal(key, []byte(verificationPlaintext))
	if err != nil {
		_ = db.Close(database)
		return nil, err
	}
	marker := db.Profile{ID: db.VaultVerificationMarkerID, Ciphertext: ciphertext, Nonce: nonce}
	if err := database.Create(&marker).Error; err != nil {
		_ = db.Close(database)
		return nil, fmt.Errorf("vault: failed to write verification marker: %w", err)
	}

	now := time.Now().UTC()
	meta := Metadata{VaultID: vaultID, DisplayName: displayName, CreatedAt: now, LastAccessed: now}
	if err := writeMetadata(dir, meta); err != nil {
		_ = db.Close(database)
		return nil, err
	}

	spcipher.SetActiveKey(&key)

	return &Vault{
		id:       vaultID,
		dir:      dir,
		key:      key,
		database: database,
		logger:   logger.Named("vault").With(zap.String("vault_id", vaultID)),
		unlocked: true,
	}, nil
}

// Unlock reads the salt, derives the key, opens the store, and verifies the
// marker. On mismatch it fails with ErrInvalidPassword and the store is
// closed without ever installing the derived key as the active cipher key.
func Unlock(dataDir, vaultID, password string, logger *zap.Logger) (*Vault, error) {
	if err := validateVaultID(vaultID); err != nil {
		return nil, err
	}

	dir := vaultDir(dataDir, vaultID)
	salt, err := os.ReadFile(filepath.Join(dir, "salt"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, vaultID)
		}
		return nil, fmt.Errorf("vault: failed to read salt: %w", err)
	}

	key, err := kdf.DeriveKey(password, salt)
	if err != nil {
		return nil, err
	}

	database, err := db.Open(db.Config{Path: filepath.Join(dir, "vault.db"), Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("vault: failed to open store: %w", err)
	}

	var marker db.Profile
	if err := database.First(&marker, "id = ?", db.VaultVerificationMarkerID).Error; err != nil {
		_ = db.Close(database)
		return nil, fmt.Errorf("vault: failed to read verification marker: %w", err)
	}

	plaintext, err := spcipher.Open(key, marker.Ciphertext, marker.Nonce)
	if err != nil || string(plaintext) != verificationPlaintext {
		_ = db.Close(database)
		return nil, ErrInvalidPassword
	}

	spcipher.SetActiveKey(&key)

	meta, err := readMetadata(dir)
	if err == nil {
		meta.LastAccessed = time.Now().UTC()
		_ = writeMetadata(dir, meta)
	}

	return &Vault{
		id:       vaultID,
		dir:      dir,
		key:      key,
		database: database,
		logger:   logger.Named("vault").With(zap.String("vault_id", vaultID)),
		unlocked: true,
	}, nil
}

// Lock drops the connection pool and zeroizes the key. Idempotent.
func (v *Vault) Lock() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.unlocked {
		return nil
	}
	if err := db.Close(v.database); err != nil {
		v.logger.Warn("error closing store on lock", zap.Error(err))
	}
	spcipher.SetActiveKey(nil)
	kdf.Zero(&v.key)
	v.unlocked = false
	v.database = nil
	return nil
}

// EncryptionKey returns a copy of the key, valid only while unlocked.
func (v *Vault) EncryptionKey() ([spcipher.KeySize]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.unlocked {
		return [spcipher.KeySize]byte{}, ErrLocked
	}
	return v.key, nil
}

// DB returns the underlying store handle, valid only while unlocked.
func (v *Vault) DB() (*gorm.DB, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.unlocked {
		return nil, ErrLocked
	}
	return v.database, nil
}

// ID returns the vault's identifier.
func (v *Vault) ID() string { return v.id }

// IsUnlocked reports whether the vault currently holds its key in memory.
func (v *Vault) IsUnlocked() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.unlocked
}

func writeMetadata(dir string, meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("vault: failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0o600); err != nil {
		return fmt.Errorf("vault: failed to write metadata: %w", err)
	}
	return nil
}

func readMetadata(dir string) (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, err
	}
	return meta, nil
}

// ListVaults returns the metadata of every vault directory under dataDir.
func ListVaults(dataDir string) ([]Metadata, error) {
	root := filepath.Join(dataDir, "vaults")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("vault: failed to list vaults: %w", err)
	}

	var out []Metadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := readMetadata(filepath.Join(root, entry.Name()))
		if err != nil {
			continue
		}
		out = append(out, meta)
	}
	return out, nil
}

// DeleteVault removes a vault's entire directory. The vault must not be the
// currently unlocked instance held by the caller.
func DeleteVault(dataDir, vaultID string) error {
	if err := validateVaultID(vaultID); err != nil {
		return err
	}
	dir := vaultDir(dataDir, vaultID)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, vaultID)
		}
		return err
	}
	return os.RemoveAll(dir)
}

// RenameVault updates a vault's display name in its metadata file.
func RenameVault(dataDir, vaultID, newDisplayName string) error {
	dir := vaultDir(dataDir, vaultID)
	meta, err := readMetadata(dir)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, vaultID)
	}
	meta.DisplayName = newDisplayName
	return writeMetadata(dir, meta)
}

// ChangePassword re-derives the key from newPassword, rewrites the marker
// and every encrypted column under the new key, and rewrites the salt file
// last. Implemented as write-then-swap (see DESIGN.md open
// question 3): the rekeyed database is written to a sibling file and
// renamed into place only after a full, successful rewrite, so a crash
// mid-rekey leaves the original vault.db and salt untouched.
func (v *Vault) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.unlocked {
		return ErrLocked
	}

	oldSalt, err := os.ReadFile(filepath.Join(v.dir, "salt"))
	if err != nil {
		return fmt.Errorf("vault: failed to read salt: %w", err)
	}
	oldKey, err := kdf.DeriveKey(oldPassword, oldSalt)
	if err != nil {
		return err
	}
	if oldKey != v.key {
		return ErrInvalidPassword
	}

	newSalt, err := kdf.GenerateSalt()
	if err != nil {
		return err
	}
	newKey, err := kdf.DeriveKey(newPassword, newSalt)
	if err != nil {
		return err
	}

	rekeyPath := filepath.Join(v.dir, "vault.db.rekey")
	_ = os.Remove(rekeyPath)

	if err := rekeyDatabase(ctx, v.database, v.key, newKey, rekeyPath, v.logger); err != nil {
		_ = os.Remove(rekeyPath)
		return fmt.Errorf("vault: rekey failed: %w", err)
	}

	if err := db.Close(v.database); err != nil {
		return fmt.Errorf("vault: failed to close store before swap: %w", err)
	}

	dbPath := filepath.Join(v.dir, "vault.db")
	if err := os.Rename(rekeyPath, dbPath); err != nil {
		return fmt.Errorf("vault: failed to swap rekeyed database into place: %w", err)
	}
	if err := os.WriteFile(filepath.Join(v.dir, "salt"), newSalt, 0o600); err != nil {
		return fmt.Errorf("vault: failed to swap salt into place: %w", err)
	}

	database, err := db.Open(db.Config{Path: dbPath, Logger: v.logger})
	if err != nil {
		return fmt.Errorf("vault: failed to reopen rekeyed store: %w", err)
	}

	v.database = database
	v.key = newKey
	spcipher.SetActiveKey(&v.key)
	return nil
}

// rekeyDatabase copies every row from the currently open store into a fresh
// store at rekeyPath, re-encrypting profile blobs and settings values under
// newKey. oldKey/newKey are copies local to this call; they are not zeroed
// on exit.
func rekeyDatabase(ctx context.Context, source *gorm.DB, oldKey, newKey [spcipher.KeySize]byte, rekeyPath string, logger *zap.Logger) error {
	target, err := db.Open(db.Config{Path: rekeyPath, Logger: logger})
	if err != nil {
		return err
	}
	defer db.Close(target)

	var profiles []db.Profile
	if err := source.Find(&profiles).Error; err != nil {
		return err
	}
	for i := range profiles {
		p := profiles[i]
		if p.ID != db.VaultVerificationMarkerID {
			plaintext, err := spcipher.Open(oldKey, p.Ciphertext, p.Nonce)
			if err != nil {
				return err
			}
			ciphertext, nonce, err := spcipher.Seal(newKey, plaintext)
			if err != nil {
				return err
			}
			p.Ciphertext, p.Nonce = ciphertext, nonce
		} else {
			ciphertext, nonce, err := spcipher.Seal(newKey, []byte(verificationPlaintext))
			if err != nil {
				return err
			}
			p.Ciphertext, p.Nonce = ciphertext, nonce
		}
		if err := target.Create(&p).Error; err != nil {
			return err
		}
	}

	var settings []db.Setting
	if err := source.Find(&settings).Error; err != nil {
		return err
	}
	spcipher.SetActiveKey(&oldKey)
	for i := range settings {
		value := settings[i].Value
		spcipher.SetActiveKey(&newKey)
		settings[i].Value = value
		if err := target.Create(&settings[i]).Error; err != nil {
			return err
		}
		spcipher.SetActiveKey(&oldKey)
	}

	return copyRemainingTables(ctx, source, target)
}

// copyRemainingTables copies the tables that carry no field-level
// encryption (scan/removal/scheduling/audit history) verbatim.
func copyRemainingTables(ctx context.Context, source, target *gorm.DB) error {
	var scanJobs []db.ScanJob
	if err := source.Find(&scanJobs).Error; err != nil {
		return err
	}
	if len(scanJobs) > 0 {
		if err := target.Create(&scanJobs).Error; err != nil {
			return err
		}
	}

	var brokerScans []db.BrokerScan
	if err := source.Find(&brokerScans).Error; err != nil {
		return err
	}
	if len(brokerScans) > 0 {
		if err := target.Create(&brokerScans).Error; err != nil {
			return err
		}
	}

	var findings []db.Finding
	if err := source.Find(&findings).Error; err != nil {
		return err
	}
	if len(findings) > 0 {
		if err := target.Create(&findings).Error; err != nil {
			return err
		}
	}

	var attempts []db.RemovalAttempt
	if err := source.Find(&attempts).Error; err != nil {
		return err
	}
	if len(attempts) > 0 {
		if err := target.Create(&attempts).Error; err != nil {
			return err
		}
	}

	var scheduled []db.ScheduledJob
	if err := source.Find(&scheduled).Error; err != nil {
		return err
	}
	if len(scheduled) > 0 {
		if err := target.Create(&scheduled).Error; err != nil {
			return err
		}
	}

	var entries []db.AuditEntry
	if err := source.Find(&entries).Error; err != nil {
		return err
	}
	if len(entries) > 0 {
		if err := target.Create(&entries).Error; err != nil {
			return err
		}
	}

	return nil
}
