package vault_test

import (
	"errors"
	"testing"

	"github.com/infiniteinsight/spectral/internal/vault"
)

func testProfileData() vault.ProfileData {
	return vault.ProfileData{
		FirstName:   "Jane",
		MiddleName:  "Q",
		LastName:    "Doe",
		Email:       "jane.doe@example.com",
		Phone:       "555-0100",
		Street:      "123 Main St",
		City:        "Springfield",
		Region:      "IL",
		PostalCode:  "62704",
		Country:     "US",
		DateOfBirth: "1990-01-01",
		Employer:    "Acme Corp",
		JobTitle:    "Engineer",

		PreviousAddresses: []string{"456 Old Rd, Springfield, IL"},
		Relatives:         []string{"John Doe"},
		SocialHandles:     []string{"@janedoe"},
	}
}

func newUnlockedVault(t *testing.T) *vault.Vault {
	t.Helper()
	dataDir := t.TempDir()
	v, err := vault.Create(dataDir, "primary", "Primary", "password", testLogger(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { _ = v.Lock() })
	return v
}

func TestSaveLoadProfileRoundTrip(t *testing.T) {
	v := newUnlockedVault(t)
	data := testProfileData()

	id, err := v.SaveProfile("", data)
	if err != nil {
		t.Fatalf("save profile: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated profile id")
	}

	loaded, err := v.LoadProfile(id)
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if loaded.FullName() != "Jane Q Doe" {
		t.Fatalf("unexpected full name: %q", loaded.FullName())
	}
	if loaded.Email != data.Email {
		t.Fatalf("expected email %q, got %q", data.Email, loaded.Email)
	}
	if len(loaded.Relatives) != 1 || loaded.Relatives[0] != "John Doe" {
		t.Fatalf("unexpected relatives: %+v", loaded.Relatives)
	}
}

func TestSaveProfileUpdateExisting(t *testing.T) {
	v := newUnlockedVault(t)
	data := testProfileData()

	id, err := v.SaveProfile("", data)
	if err != nil {
		t.Fatalf("save profile: %v", err)
	}

	data.City = "Shelbyville"
	if _, err := v.SaveProfile(id, data); err != nil {
		t.Fatalf("update profile: %v", err)
	}

	loaded, err := v.LoadProfile(id)
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if loaded.City != "Shelbyville" {
		t.Fatalf("expected updated city, got %q", loaded.City)
	}
}

func TestSaveProfileRejectsReservedID(t *testing.T) {
	v := newUnlockedVault(t)
	if _, err := v.SaveProfile("__vault_verification__", testProfileData()); err == nil {
		t.Fatal("expected error saving over reserved profile id")
	}
}

func TestLoadProfileNotFound(t *testing.T) {
	v := newUnlockedVault(t)
	if _, err := v.LoadProfile("does-not-exist"); !errors.Is(err, vault.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestListProfilesExcludesVerificationMarker(t *testing.T) {
	v := newUnlockedVault(t)
	if _, err := v.SaveProfile("", testProfileData()); err != nil {
		t.Fatalf("save profile: %v", err)
	}

	summaries, err := v.ListProfiles()
	if err != nil {
		t.Fatalf("list profiles: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected exactly one profile in listing, got %d", len(summaries))
	}
	if summaries[0].FullName != "Jane Q Doe" || summaries[0].Email != "jane.doe@example.com" {
		t.Fatalf("unexpected summary: %+v", summaries[0])
	}
}

func TestDeleteProfile(t *testing.T) {
	v := newUnlockedVault(t)
	id, err := v.SaveProfile("", testProfileData())
	if err != nil {
		t.Fatalf("save profile: %v", err)
	}

	if err := v.DeleteProfile(id); err != nil {
		t.Fatalf("delete profile: %v", err)
	}
	if _, err := v.LoadProfile(id); !errors.Is(err, vault.ErrProfileNotFound) {
		t.Fatalf("expected deleted profile to be not found, got %v", err)
	}
}

func TestDeleteProfileRejectsReservedID(t *testing.T) {
	v := newUnlockedVault(t)
	if err := v.DeleteProfile("__vault_verification__"); err == nil {
		t.Fatal("expected error deleting reserved profile id")
	}
}

func TestMissingFields(t *testing.T) {
	data := vault.ProfileData{FirstName: "Jane"}
	missing := data.MissingFields([]string{"first_name", "last_name", "email", "unknown_field"})

	want := map[string]bool{"last_name": true, "email": true, "unknown_field": true}
	if len(missing) != len(want) {
		t.Fatalf("expected %d missing fields, got %+v", len(want), missing)
	}
	for _, name := range missing {
		if !want[name] {
			t.Fatalf("unexpected missing field %q", name)
		}
	}
}
