// Package kdf derives vault encryption keys from a master password using
// Argon2id, tuned for a desktop machine rather than a server fleet.
package kdf

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// KeyLength is the length in bytes of the derived key (256 bits).
const KeyLength = 32

// SaltLength is the length in bytes of the salt.
const SaltLength = 32

// Argon2id tuning. 256 MiB / 2 iterations / 1 thread balances security and
// responsiveness for an interactive unlock on a laptop-class machine.
const (
	MemoryCostKiB = 262_144
	TimeCost      = 2
	Parallelism   = 1
)

// ErrKeyDerivation is returned when salt validation or derivation fails.
var ErrKeyDerivation = errors.New("kdf: key derivation failed")

// GenerateSalt returns a cryptographically random 32-byte salt suitable for
// persisting alongside the vault database.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDerivation, err)
	}
	return salt, nil
}

// DeriveKey derives a 32-byte key from password and salt using Argon2id.
// Pure function of its inputs: the same (password, salt) pair always
// produces the same key, and changing either input changes the output.
func DeriveKey(password string, salt []byte) ([KeyLength]byte, error) {
	var key [KeyLength]byte

	if len(salt) != SaltLength {
		return key, fmt.Errorf("%w: invalid salt length: expected %d bytes, got %d", ErrKeyDerivation, SaltLength, len(salt))
	}

	derived := argon2.IDKey([]byte(password), salt, TimeCost, MemoryCostKiB, Parallelism, KeyLength)
	copy(key[:], derived)
	return key, nil
}

// Zero overwrites a derived key's bytes in place. Callers should defer this
// immediately after deriving a short-lived key (e.g. during a rekey).
func Zero(key *[KeyLength]byte) {
	for i := range key {
		key[i] = 0
	}
}
