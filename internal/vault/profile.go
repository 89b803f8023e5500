package vault

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/infiniteinsight/spectral/internal/cipher"
	"github.com/infiniteinsight/spectral/internal/db"
)

// ProfileData holds the personal-information fields a Profile carries. It
// is never stored column-by-column: the whole struct is JSON-marshaled and
// sealed as a single AEAD unit, so adding a field here never requires a
// migration.
type ProfileData struct {
	FirstName   string `json:"first_name"`
	MiddleName  string `json:"middle_name,omitempty"`
	LastName    string `json:"last_name"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Street      string `json:"street,omitempty"`
	City        string `json:"city,omitempty"`
	Region      string `json:"region,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	Country     string `json:"country,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Employer    string `json:"employer,omitempty"`
	JobTitle    string `json:"job_title,omitempty"`

	PreviousAddresses []string `json:"previous_addresses,omitempty"`
	Relatives         []string `json:"relatives,omitempty"`
	SocialHandles     []string `json:"social_handles,omitempty"`
}

// ProfileSummary is the light-weight projection returned by list_profiles:
// callers see a name and an email without the vault having to decrypt
// every blob's full contents into an API response.
type ProfileSummary struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// requiredFields maps the field names a broker may declare in
// required_input_fields to an accessor against ProfileData, for the scan
// orchestrator's profile-completeness gate.
var requiredFields = map[string]func(ProfileData) string{
	"first_name":   func(p ProfileData) string { return p.FirstName },
	"last_name":    func(p ProfileData) string { return p.LastName },
	"email":        func(p ProfileData) string { return p.Email },
	"phone":        func(p ProfileData) string { return p.Phone },
	"street":       func(p ProfileData) string { return p.Street },
	"city":         func(p ProfileData) string { return p.City },
	"region":       func(p ProfileData) string { return p.Region },
	"postal_code":  func(p ProfileData) string { return p.PostalCode },
	"country":      func(p ProfileData) string { return p.Country },
	"date_of_birth": func(p ProfileData) string { return p.DateOfBirth },
}

// Field looks up a named field for completeness checking. The second
// return value is false for unrecognized field names, distinguishing
// "broker declared a field we don't model" from "field is present but
// empty".
func (p ProfileData) Field(name string) (string, bool) {
	accessor, ok := requiredFields[name]
	if !ok {
		return "", false
	}
	return accessor(p), true
}

// MissingFields reports which of the given required field names are either
// unrecognized or empty on this profile, in the order supplied.
func (p ProfileData) MissingFields(required []string) []string {
	var missing []string
	for _, name := range required {
		value, ok := p.Field(name)
		if !ok || strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// FullName joins the name parts the way profile summaries show them:
// first, optional middle, last, single-spaced.
func (p ProfileData) FullName() string {
	parts := make([]string, 0, 3)
	if p.FirstName != "" {
		parts = append(parts, p.FirstName)
	}
	if p.MiddleName != "" {
		parts = append(parts, p.MiddleName)
	}
	if p.LastName != "" {
		parts = append(parts, p.LastName)
	}
	return strings.Join(parts, " ")
}

// SaveProfile creates or updates a profile's encrypted blob. An empty id
// creates a new profile and returns its generated id.
func (v *Vault) SaveProfile(id string, data ProfileData) (string, error) {
	key, err := v.EncryptionKey()
	if err != nil {
		return "", err
	}
	database, err := v.DB()
	if err != nil {
		return "", err
	}
	if id == db.VaultVerificationMarkerID {
		return "", fmt.Errorf("vault: %q is a reserved profile id", id)
	}

	plaintext, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("vault: failed to marshal profile: %w", err)
	}
	ciphertext, nonce, err := cipher.Seal(key, plaintext)
	if err != nil {
		return "", err
	}

	record := db.Profile{ID: id, Ciphertext: ciphertext, Nonce: nonce}
	if err := database.Save(&record).Error; err != nil {
		return "", fmt.Errorf("vault: failed to save profile: %w", err)
	}
	return record.ID, nil
}

// LoadProfile decrypts and unmarshals a single profile by id.
func (v *Vault) LoadProfile(id string) (ProfileData, error) {
	var data ProfileData
	if id == db.VaultVerificationMarkerID {
		return data, ErrProfileNotFound
	}

	key, err := v.EncryptionKey()
	if err != nil {
		return data, err
	}
	database, err := v.DB()
	if err != nil {
		return data, err
	}

	var record db.Profile
	if err := database.First(&record, "id = ?", id).Error; err != nil {
		return data, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}

	plaintext, err := cipher.Open(key, record.Ciphertext, record.Nonce)
	if err != nil {
		return data, err
	}
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return data, fmt.Errorf("vault: failed to unmarshal profile: %w", err)
	}
	return data, nil
}

// ListProfiles decrypts every non-marker profile and returns a summary for
// each, ordered by id (UUIDs are random, not time-ordered, so callers that
// want recency should sort on the result elsewhere).
func (v *Vault) ListProfiles() ([]ProfileSummary, error) {
	key, err := v.EncryptionKey()
	if err != nil {
		return nil, err
	}
	database, err := v.DB()
	if err != nil {
		return nil, err
	}

	var records []db.Profile
	if err := database.Where("id <> ?", db.VaultVerificationMarkerID).Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("vault: failed to list profiles: %w", err)
	}

	summaries := make([]ProfileSummary, 0, len(records))
	for _, record := range records {
		plaintext, err := cipher.Open(key, record.Ciphertext, record.Nonce)
		if err != nil {
			return nil, err
		}
		var data ProfileData
		if err := json.Unmarshal(plaintext, &data); err != nil {
			return nil, fmt.Errorf("vault: failed to unmarshal profile: %w", err)
		}
		summaries = append(summaries, ProfileSummary{ID: record.ID, FullName: data.FullName(), Email: data.Email})
	}
	return summaries, nil
}

// DeleteProfile removes a profile by id. Deleting the verification marker
// is refused.
func (v *Vault) DeleteProfile(id string) error {
	if id == db.VaultVerificationMarkerID {
		return fmt.Errorf("vault: %q is a reserved profile id", id)
	}
	database, err := v.DB()
	if err != nil {
		return err
	}

	result := database.Delete(&db.Profile{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("vault: failed to delete profile: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	return nil
}
