package broker_test

import (
	"testing"

	"github.com/infiniteinsight/spectral/internal/broker"
)

func validDefinition() broker.Definition {
	submitButton := "button[type='submit']"
	return broker.Definition{
		Broker: broker.Metadata{
			ID:                  "test-broker",
			Name:                "Test Broker",
			URL:                 "https://test.com",
			Domain:              "test.com",
			Category:            broker.CategoryPeopleSearch,
			Difficulty:          broker.DifficultyEasy,
			TypicalRemovalDays:  7,
			RecheckIntervalDays: 30,
			LastVerified:        "2025-05-01",
		},
		Search: broker.SearchMethod{
			Kind:           broker.SearchURLTemplate,
			Template:       "https://test.com/{first}-{last}",
			RequiresFields: []string{"first_name", "last_name"},
		},
		Removal: broker.RemovalMethod{
			Kind:          broker.RemovalWebForm,
			URL:           "https://test.com/optout",
			Fields:        map[string]string{"email": "{user_email}"},
			FormSelectors: &broker.FormSelectors{SubmitButton: submitButton},
			Confirmation:  broker.ConfirmationEmailVerification,
		},
	}
}

func TestValidDefinitionPasses(t *testing.T) {
	if err := validDefinition().Validate(); err != nil {
		t.Fatalf("expected valid definition, got %v", err)
	}
}

func TestInvalidTypicalRemovalDaysRejected(t *testing.T) {
	def := validDefinition()
	def.Broker.TypicalRemovalDays = 0
	if err := def.Validate(); err == nil {
		t.Fatal("expected error for typical_removal_days = 0")
	}
}

func TestInvalidRecheckIntervalDaysRejected(t *testing.T) {
	def := validDefinition()
	def.Broker.RecheckIntervalDays = 500
	if err := def.Validate(); err == nil {
		t.Fatal("expected error for recheck_interval_days = 500")
	}
}

func TestEmptyBrokerNameRejected(t *testing.T) {
	def := validDefinition()
	def.Broker.Name = ""
	if err := def.Validate(); err == nil {
		t.Fatal("expected error for empty broker name")
	}
}

func TestURLTemplateRequiresFields(t *testing.T) {
	def := validDefinition()
	def.Search.RequiresFields = nil
	if err := def.Validate(); err == nil {
		t.Fatal("expected error for url-template with no required fields")
	}
}

func TestURLTemplateEmptyTemplateRejected(t *testing.T) {
	def := validDefinition()
	def.Search.Template = ""
	if err := def.Validate(); err == nil {
		t.Fatal("expected error for empty template")
	}
}

func TestWebFormRemovalRequiresSubmitButton(t *testing.T) {
	def := validDefinition()
	def.Removal.FormSelectors = &broker.FormSelectors{}
	if err := def.Validate(); err == nil {
		t.Fatal("expected error for missing submit_button")
	}
}

func TestEmailRemovalValidation(t *testing.T) {
	def := validDefinition()
	def.Removal = broker.RemovalMethod{
		Kind:         broker.RemovalEmail,
		To:           "privacy@example.com",
		Subject:      "Removal Request",
		Body:         "Please remove my data",
		ResponseDays: 7,
	}
	if err := def.Validate(); err != nil {
		t.Fatalf("expected valid email removal, got %v", err)
	}

	def.Removal.ResponseDays = 0
	if err := def.Validate(); err == nil {
		t.Fatal("expected error for response_days = 0")
	}

	def.Removal.ResponseDays = 91
	if err := def.Validate(); err == nil {
		t.Fatal("expected error for response_days = 91")
	}
}

func TestDifficultyOrdering(t *testing.T) {
	if !(broker.DifficultyEasy < broker.DifficultyMedium) {
		t.Fatal("expected Easy < Medium")
	}
	if !(broker.DifficultyMedium < broker.DifficultyHard) {
		t.Fatal("expected Medium < Hard")
	}
}

func TestCategoryDisplayName(t *testing.T) {
	if broker.CategoryPeopleSearch.DisplayName() != "People Search" {
		t.Fatalf("unexpected display name: %q", broker.CategoryPeopleSearch.DisplayName())
	}
}
