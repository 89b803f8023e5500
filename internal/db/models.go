package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/infiniteinsight/spectral/internal/cipher"
)

// base contains the common fields shared by most models. ID uses UUID v7
// (time-ordered) for natural chronological ordering without a separate
// created_at sort. CreatedAt and UpdatedAt are managed automatically by GORM.
type base struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a new UUID v7 if the ID is not already set.
func (b *base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == (uuid.UUID{}) {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	return nil
}

// -----------------------------------------------------------------------------
// Profile (§3 Profile, §4.4 Vault)
// -----------------------------------------------------------------------------

// VaultVerificationMarkerID is the well-known id of the reserved row written
// on vault creation to let unlock reject a wrong password deterministically.
// list_profiles excludes it; it is otherwise a profile row like any other.
const VaultVerificationMarkerID = "__vault_verification__"

// Profile stores one user profile as a single encrypted blob. The plaintext
// fields (name, email, address, ...) never touch a database column — they
// are JSON-serialized and sealed as one unit via the AEAD field cipher, so
// ID deliberately is not a uuid.UUID: the verification marker row shares
// this table with a fixed, non-UUID id.
type Profile struct {
	ID         string `gorm:"type:text;primaryKey"`
	Ciphertext []byte `gorm:"type:blob;not null"`
	Nonce      []byte `gorm:"type:blob;not null"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		id, err := uuid.NewRandom()
		if err != nil {
			return err
		}
		p.ID = id.String()
	}
	return nil
}

// -----------------------------------------------------------------------------
// Scan (§3 ScanJob, BrokerScan, Finding; §4.7 Scan Orchestrator)
// -----------------------------------------------------------------------------

const (
	ScanJobStatusInProgress = "InProgress"
	ScanJobStatusCompleted  = "Completed"
	ScanJobStatusFailed     = "Failed"
	ScanJobStatusCancelled  = "Cancelled"
)

type ScanJob struct {
	base
	ProfileID        string `gorm:"type:text;not null;index"`
	StartedAt        time.Time `gorm:"not null"`
	CompletedAt      *time.Time
	Status           string `gorm:"not null;default:'InProgress'"`
	TotalBrokers     int    `gorm:"not null;default:0"`
	CompletedBrokers int    `gorm:"not null;default:0"`
	ErrorMessage     string `gorm:"type:text;default:''"`
}

const (
	BrokerScanStatusPending = "Pending"
	BrokerScanStatusSuccess = "Success"
	BrokerScanStatusFailed  = "Failed"
	BrokerScanStatusSkipped = "Skipped"
)

type BrokerScan struct {
	base
	ScanJobID     uuid.UUID `gorm:"type:text;not null;index"`
	BrokerID      string    `gorm:"not null;index"`
	Status        string    `gorm:"not null;default:'Pending'"`
	StartedAt     *time.Time
	CompletedAt   *time.Time
	ErrorMessage  string `gorm:"type:text;default:''"`
	FindingsCount int    `gorm:"not null;default:0"`
}

const (
	FindingStatusPendingVerification = "PendingVerification"
	FindingStatusConfirmed           = "Confirmed"
	FindingStatusRejected            = "Rejected"
)

// Finding. ExtractedData is stored as a JSON blob (name?, age?, addresses[],
// phone_numbers[], relatives[], emails[]) — it is scan output, not profile
// PII supplied by the user, so it is not sealed under the field cipher; it
// still never leaves the encrypted store file.
type Finding struct {
	base
	BrokerScanID       uuid.UUID `gorm:"type:text;not null;index:idx_finding_dedupe,unique"`
	BrokerID           string    `gorm:"not null"`
	ProfileID          string    `gorm:"type:text;not null;index"`
	ListingURL         string    `gorm:"not null;index:idx_finding_dedupe,unique"`
	VerificationStatus string    `gorm:"not null;default:'PendingVerification'"`
	ExtractedData      string    `gorm:"type:text;default:'{}'"`
	DiscoveredAt       time.Time `gorm:"not null"`
	VerifiedAt         *time.Time
	VerifiedByUser     string     `gorm:"default:''"`
	RemovalAttemptID   *uuid.UUID `gorm:"type:text"`
}

// -----------------------------------------------------------------------------
// Removal (§3 RemovalAttempt; §4.9 Removal Worker)
// -----------------------------------------------------------------------------

const (
	RemovalStatusPending   = "Pending"
	RemovalStatusSubmitted = "Submitted"
	RemovalStatusCompleted = "Completed"
	RemovalStatusFailed    = "Failed"
)

type RemovalAttempt struct {
	base
	FindingID    uuid.UUID `gorm:"type:text;not null;index"`
	BrokerID     string    `gorm:"not null"`
	Status       string    `gorm:"not null;default:'Pending'"`
	SubmittedAt  *time.Time
	CompletedAt  *time.Time
	ErrorMessage string `gorm:"type:text;default:''"`
}

// RemovalEvidence records a non-PII pointer (path or message-id) supporting
// a completed removal attempt.
type RemovalEvidence struct {
	base
	RemovalAttemptID uuid.UUID `gorm:"type:text;not null;index"`
	Kind             string    `gorm:"not null"` // "screenshot" | "email_message_id"
	Reference        string    `gorm:"not null"`
}

// -----------------------------------------------------------------------------
// Discovery (supplemental feature, filesystem PII scan)
// -----------------------------------------------------------------------------

type DiscoveryFinding struct {
	base
	Path         string `gorm:"not null"`
	PiiKinds     string `gorm:"type:text;default:'[]'"` // JSON array of kind strings
	MatchCount   int    `gorm:"not null;default:0"`
	Remediated   bool   `gorm:"not null;default:false"`
	RemediatedAt *time.Time
}

// -----------------------------------------------------------------------------
// Scheduler (§3 ScheduledJob; §4.10)
// -----------------------------------------------------------------------------

const (
	ScheduledJobTypeScanAll        = "scan_all"
	ScheduledJobTypeVerifyRemovals = "verify_removals"
)

type ScheduledJob struct {
	base
	JobType      string    `gorm:"not null"` // "scan_all" | "verify_removals"
	IntervalDays int       `gorm:"not null"`
	NextRunAt    time.Time `gorm:"not null;index"`
	LastRunAt    *time.Time
	Enabled      bool `gorm:"not null;default:true"`
}

// -----------------------------------------------------------------------------
// Audit log (§3 AuditEntry; §4.12). Append-only: no update or delete method
// is exposed by its repository.
// -----------------------------------------------------------------------------

type AuditEntry struct {
	ID         uuid.UUID `gorm:"type:text;primaryKey"`
	Timestamp  time.Time `gorm:"not null;index"`
	Event      string    `gorm:"not null"` // "checked" | "granted" | "denied" | "revoked"
	Permission string    `gorm:"not null"`
	ActorMeta  string    `gorm:"type:text;default:''"`
}

func (a *AuditEntry) BeforeCreate(tx *gorm.DB) error {
	if a.ID == (uuid.UUID{}) {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		a.ID = id
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	return nil
}

// -----------------------------------------------------------------------------
// Settings (§6 Settings key namespace)
// -----------------------------------------------------------------------------

// Setting is a generic key-value entry, namespaced by convention (see §6:
// privacy_level, llm.primary_provider, llm.provider.<id>.api_key, ...).
// Every value is sealed under the vault key regardless of sensitivity —
// the store already lives behind the same key, and a uniform column type
// avoids a second code path for "sensitive vs. not" settings.
type Setting struct {
	Key       string                 `gorm:"primaryKey"`
	Value     cipher.EncryptedString `gorm:"type:text;not null"`
	UpdatedAt time.Time              `gorm:"not null;autoUpdateTime"`
}
