package vault

import "errors"

// Sentinel errors for the vault's auth/key and storage failure modes.
var (
	// ErrLocked is returned by any operation other than unlock/create/lock
	// when the vault's key is not currently resident in memory.
	ErrLocked = errors.New("vault: locked")

	// ErrInvalidPassword is returned by Unlock when the derived key fails
	// to open the verification marker.
	ErrInvalidPassword = errors.New("vault: invalid password")

	// ErrInvalidVaultID is returned when a vault id fails the
	// ^[A-Za-z0-9_-]+$ / no path-traversal validation.
	ErrInvalidVaultID = errors.New("vault: invalid vault id")

	// ErrAlreadyExists is returned by Create when the vault directory
	// already exists.
	ErrAlreadyExists = errors.New("vault: already exists")

	// ErrNotFound is returned when a vault id has no on-disk directory.
	ErrNotFound = errors.New("vault: not found")

	// ErrProfileNotFound is returned by LoadProfile/DeleteProfile for an
	// unknown profile id.
	ErrProfileNotFound = errors.New("vault: profile not found")
)
