// Package cipher implements the AEAD field cipher: ChaCha20-Poly1305 with a
// fresh 12-byte nonce per call, the primitive every encrypted cell in the
// vault (profile blobs, settings values, broker credentials) is built on.
package cipher

import (
	"crypto/rand"
	"database/sql/driver"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length in bytes of the symmetric key (256 bits).
const KeySize = chacha20poly1305.KeySize

// NonceSize is the length in bytes of the nonce (96 bits).
const NonceSize = chacha20poly1305.NonceSize

// Sentinel errors for the two ways an AEAD operation can fail.
var (
	ErrEncryption = errors.New("cipher: encryption failed")
	ErrDecryption = errors.New("cipher: decryption failed")
)

// Seal encrypts plaintext under key, returning the ciphertext (with its
// 16-byte Poly1305 tag appended) and the freshly generated nonce used.
// Never reuses a nonce: every call draws NonceSize bytes from crypto/rand.
func Seal(key [KeySize]byte, plaintext []byte) (ciphertext, nonce []byte, err error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("%w: nonce generation: %v", ErrEncryption, err)
	}

	ciphertext = aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Open decrypts ciphertext under key and nonce, verifying the Poly1305 tag.
// Fails on wrong key, tampered ciphertext, tampered nonce, or truncated input.
func Open(key [KeySize]byte, ciphertext, nonce []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrDecryption, NonceSize, len(nonce))
	}

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return plaintext, nil
}

// -----------------------------------------------------------------------------
// EncryptedString: a GORM-transparent column type for individual sensitive
// fields (settings values, broker credentials), distinct from the whole-blob
// profile encryption the vault performs directly with Seal/Open.
// -----------------------------------------------------------------------------

// activeKey is the process-wide key used by EncryptedString's Value/Scan.
// Set once via SetActiveKey when a vault is unlocked; cleared on lock.
var activeKey *[KeySize]byte

// SetActiveKey installs the key EncryptedString uses for column-level
// encryption. Pass nil to clear it (on vault lock) so no further column I/O
// can occur with a stale key.
func SetActiveKey(key *[KeySize]byte) {
	activeKey = key
}

// EncryptedString is a string column transparently sealed with the active
// vault key before being written, and opened after being read. The stored
// representation is base64(nonce || ciphertext).
type EncryptedString string

// Value implements driver.Valuer.
func (e EncryptedString) Value() (driver.Value, error) {
	if e == "" {
		return "", nil
	}
	if activeKey == nil {
		return nil, errors.New("cipher: no active key, vault must be unlocked")
	}

	ciphertext, nonce, err := Seal(*activeKey, []byte(e))
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, len(nonce)+len(ciphertext))
	buf = append(buf, nonce...)
	buf = append(buf, ciphertext...)
	return base64.StdEncoding.EncodeToString(buf), nil
}

// Scan implements sql.Scanner.
func (e *EncryptedString) Scan(value interface{}) error {
	if value == nil {
		*e = ""
		return nil
	}

	str, ok := value.(string)
	if !ok {
		return fmt.Errorf("cipher: EncryptedString.Scan: expected string, got %T", value)
	}
	if str == "" {
		*e = ""
		return nil
	}
	if activeKey == nil {
		return errors.New("cipher: no active key, vault must be unlocked")
	}

	raw, err := base64.StdEncoding.DecodeString(str)
	if err != nil {
		return fmt.Errorf("cipher: failed to decode base64: %w", err)
	}
	if len(raw) < NonceSize {
		return fmt.Errorf("%w: stored value too short to contain a nonce", ErrDecryption)
	}

	nonce, ciphertext := raw[:NonceSize], raw[NonceSize:]
	plaintext, err := Open(*activeKey, ciphertext, nonce)
	if err != nil {
		return err
	}

	*e = EncryptedString(plaintext)
	return nil
}
