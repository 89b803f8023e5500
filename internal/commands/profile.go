package commands

import (
	"github.com/infiniteinsight/spectral/internal/vault"
)

// ProfileInput is the shared request shape for profile_create and
// profile_update.
type ProfileInput struct {
	FirstName         string
	MiddleName        string
	LastName          string
	Email             string
	Phone             string
	Street            string
	City              string
	Region            string
	PostalCode        string
	Country           string
	DateOfBirth       string
	Employer          string
	JobTitle          string
	PreviousAddresses []string
	Relatives         []string
	SocialHandles     []string
}

func (in ProfileInput) validate() *Error {
	if in.FirstName == "" {
		return newError(CodeValidationError, "first_name is required").withDetail("field", "first_name")
	}
	if in.LastName == "" {
		return newError(CodeValidationError, "last_name is required").withDetail("field", "last_name")
	}
	return nil
}

func (in ProfileInput) toData() vault.ProfileData {
	return vault.ProfileData{
		FirstName:         in.FirstName,
		MiddleName:        in.MiddleName,
		LastName:          in.LastName,
		Email:             in.Email,
		Phone:             in.Phone,
		Street:            in.Street,
		City:              in.City,
		Region:            in.Region,
		PostalCode:        in.PostalCode,
		Country:           in.Country,
		DateOfBirth:       in.DateOfBirth,
		Employer:          in.Employer,
		JobTitle:          in.JobTitle,
		PreviousAddresses: in.PreviousAddresses,
		Relatives:         in.Relatives,
		SocialHandles:     in.SocialHandles,
	}
}

// ProfileOutput is the response shape for every profile command that
// returns a full profile.
type ProfileOutput struct {
	ID string
	ProfileInput
}

func outputFrom(id string, data vault.ProfileData) ProfileOutput {
	return ProfileOutput{
		ID: id,
		ProfileInput: ProfileInput{
			FirstName:         data.FirstName,
			MiddleName:        data.MiddleName,
			LastName:          data.LastName,
			Email:             data.Email,
			Phone:             data.Phone,
			Street:            data.Street,
			City:              data.City,
			Region:            data.Region,
			PostalCode:        data.PostalCode,
			Country:           data.Country,
			DateOfBirth:       data.DateOfBirth,
			Employer:          data.Employer,
			JobTitle:          data.JobTitle,
			PreviousAddresses: data.PreviousAddresses,
			Relatives:         data.Relatives,
			SocialHandles:     data.SocialHandles,
		},
	}
}

// ProfileCreate creates a profile in the named vault.
func (s *Service) ProfileCreate(vaultID string, input ProfileInput) (ProfileOutput, *Error) {
	if verr := input.validate(); verr != nil {
		return ProfileOutput{}, verr
	}
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return ProfileOutput{}, cmdErr
	}
	id, err := sess.vault.SaveProfile("", input.toData())
	if err != nil {
		return ProfileOutput{}, translate(err)
	}
	return outputFrom(id, input.toData()), nil
}

// ProfileGet loads a single profile by id.
func (s *Service) ProfileGet(vaultID, profileID string) (ProfileOutput, *Error) {
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return ProfileOutput{}, cmdErr
	}
	data, err := sess.vault.LoadProfile(profileID)
	if err != nil {
		return ProfileOutput{}, translate(err)
	}
	return outputFrom(profileID, data), nil
}

// ProfileUpdate overwrites an existing profile's fields.
func (s *Service) ProfileUpdate(vaultID, profileID string, input ProfileInput) (ProfileOutput, *Error) {
	if verr := input.validate(); verr != nil {
		return ProfileOutput{}, verr
	}
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return ProfileOutput{}, cmdErr
	}
	if _, err := sess.vault.LoadProfile(profileID); err != nil {
		return ProfileOutput{}, translate(err)
	}
	id, err := sess.vault.SaveProfile(profileID, input.toData())
	if err != nil {
		return ProfileOutput{}, translate(err)
	}
	return outputFrom(id, input.toData()), nil
}

// ProfileSummary is one entry in profile_list's response.
type ProfileSummary struct {
	ID       string
	FullName string
	Email    string
}

// ProfileList returns a lightweight summary of every profile in the vault.
func (s *Service) ProfileList(vaultID string) ([]ProfileSummary, *Error) {
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return nil, cmdErr
	}
	summaries, err := sess.vault.ListProfiles()
	if err != nil {
		return nil, translate(err)
	}
	out := make([]ProfileSummary, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, ProfileSummary{ID: sum.ID, FullName: sum.FullName, Email: sum.Email})
	}
	return out, nil
}

// requiredCompletenessFields is the field set get_profile_completeness
// scores against. Scan eligibility is decided separately, per broker, by
// that broker's own required fields.
var requiredCompletenessFields = []string{
	"first_name", "last_name", "email", "phone",
	"street", "city", "region", "postal_code", "country",
}

// ProfileCompleteness is the response to get_profile_completeness.
type ProfileCompleteness struct {
	FilledFields int
	TotalFields  int
	Score        float64
	MissingFields []string
}

// GetProfileCompleteness scores the first profile found in the vault: the
// scan/removal flows never address more than one profile at a time
// either, so this single-profile assumption matches how the rest of the
// system uses a vault.
func (s *Service) GetProfileCompleteness(vaultID string) (ProfileCompleteness, *Error) {
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return ProfileCompleteness{}, cmdErr
	}
	summaries, err := sess.vault.ListProfiles()
	if err != nil {
		return ProfileCompleteness{}, translate(err)
	}
	if len(summaries) == 0 {
		return ProfileCompleteness{}, newError(CodeNoProfile, "no profile found in vault")
	}
	data, err := sess.vault.LoadProfile(summaries[0].ID)
	if err != nil {
		return ProfileCompleteness{}, translate(err)
	}

	missing := data.MissingFields(requiredCompletenessFields)
	total := len(requiredCompletenessFields)
	filled := total - len(missing)
	return ProfileCompleteness{
		FilledFields:  filled,
		TotalFields:   total,
		Score:         float64(filled) / float64(total),
		MissingFields: missing,
	}, nil
}
