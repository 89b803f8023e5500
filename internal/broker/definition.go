// Package broker defines the on-disk BrokerDefinition format Spectral
// consumes (never authors) and the in-memory registry scans and removals
// are driven from.
package broker

import (
	"fmt"
)

// Category classifies what kind of data a broker deals in.
type Category string

const (
	CategoryPeopleSearch      Category = "people-search"
	CategoryBackgroundCheck   Category = "background-check"
	CategoryDataAggregator    Category = "data-aggregator"
	CategoryFinancial         Category = "financial"
	CategoryGovernmentRecords Category = "government-records"
	CategoryMarketing         Category = "marketing"
	CategorySocialMedia       Category = "social-media"
	CategoryOther             Category = "other"
)

// DisplayName returns a human-readable label for a category.
func (c Category) DisplayName() string {
	switch c {
	case CategoryPeopleSearch:
		return "People Search"
	case CategoryBackgroundCheck:
		return "Background Check"
	case CategoryDataAggregator:
		return "Data Aggregator"
	case CategoryFinancial:
		return "Financial"
	case CategoryGovernmentRecords:
		return "Government Records"
	case CategoryMarketing:
		return "Marketing"
	case CategorySocialMedia:
		return "Social Media"
	default:
		return "Other"
	}
}

// Difficulty ranks how hard removal from a broker tends to be. The
// ordering (Easy < Medium < Hard) matters for UI sort order.
type Difficulty int

const (
	DifficultyEasy Difficulty = iota
	DifficultyMedium
	DifficultyHard
)

func (d Difficulty) String() string {
	switch d {
	case DifficultyEasy:
		return "easy"
	case DifficultyMedium:
		return "medium"
	default:
		return "hard"
	}
}

// Metadata holds the broker-identifying fields shared by every definition.
type Metadata struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	URL                  string     `json:"url"`
	Domain               string     `json:"domain"`
	Category             Category   `json:"category"`
	Difficulty           Difficulty `json:"difficulty"`
	TypicalRemovalDays   int        `json:"typical_removal_days"`
	RecheckIntervalDays  int        `json:"recheck_interval_days"`
	// LastVerified is a bare "YYYY-MM-DD" date, not a full RFC 3339 timestamp.
	LastVerified string `json:"last_verified"`
}

// SearchMethodKind discriminates SearchMethod's tagged-union variants.
type SearchMethodKind string

const (
	SearchURLTemplate SearchMethodKind = "url-template"
	SearchWebForm      SearchMethodKind = "web-form"
	SearchManual       SearchMethodKind = "manual"
)

// ResultSelectors are the CSS selectors the scanner's HTML parser uses
// against a broker's search results page.
type ResultSelectors struct {
	ResultsContainer  string  `json:"results_container"`
	ResultItem        string  `json:"result_item"`
	ListingURL        string  `json:"listing_url"`
	Name              *string `json:"name,omitempty"`
	Age               *string `json:"age,omitempty"`
	Location          *string `json:"location,omitempty"`
	Relatives         *string `json:"relatives,omitempty"`
	Phones            *string `json:"phones,omitempty"`
	Emails            *string `json:"emails,omitempty"`
	NoResultsIndicator *string `json:"no_results_indicator,omitempty"`
	CaptchaRequired    *string `json:"captcha_required,omitempty"`
}

// SearchMethod is a tagged union: exactly one of UrlTemplate, WebForm, or
// Manual fields is populated, selected by Kind.
type SearchMethod struct {
	Kind SearchMethodKind `json:"method"`

	// UrlTemplate fields.
	Template        string           `json:"template,omitempty"`
	RequiresFields  []string         `json:"requires_fields,omitempty"`
	ResultSelectors *ResultSelectors `json:"result_selectors,omitempty"`

	// WebForm fields (search form, distinct from removal's WebForm).
	FormURL    string            `json:"form_url,omitempty"`
	FormFields map[string]string `json:"form_fields,omitempty"`

	// Manual fields.
	ManualURL          string `json:"manual_url,omitempty"`
	ManualInstructions string `json:"manual_instructions,omitempty"`
}

func (s SearchMethod) validate(brokerID string) error {
	switch s.Kind {
	case SearchURLTemplate:
		if s.Template == "" {
			return validationErr(brokerID, "URL template cannot be empty")
		}
		if len(s.RequiresFields) == 0 {
			return validationErr(brokerID, "url-template requires at least one PII field")
		}
	case SearchWebForm:
		if s.FormURL == "" {
			return validationErr(brokerID, "web-form search URL cannot be empty")
		}
		if len(s.FormFields) == 0 {
			return validationErr(brokerID, "web-form search requires at least one field mapping")
		}
		if len(s.RequiresFields) == 0 {
			return validationErr(brokerID, "web-form search requires at least one PII field")
		}
	case SearchManual:
		if s.ManualURL == "" {
			return validationErr(brokerID, "manual search URL cannot be empty")
		}
		if s.ManualInstructions == "" {
			return validationErr(brokerID, "manual search instructions cannot be empty")
		}
	default:
		return validationErr(brokerID, fmt.Sprintf("unknown search method %q", s.Kind))
	}
	return nil
}

// FormSelectors are the CSS selectors the removal worker uses to drive a
// broker's opt-out web form.
type FormSelectors struct {
	ListingURLInput  *string `json:"listing_url_input,omitempty"`
	EmailInput       *string `json:"email_input,omitempty"`
	FirstNameInput   *string `json:"first_name_input,omitempty"`
	LastNameInput    *string `json:"last_name_input,omitempty"`
	SubmitButton     string  `json:"submit_button"`
	CaptchaFrame     *string `json:"captcha_frame,omitempty"`
	SuccessIndicator *string `json:"success_indicator,omitempty"`
}

// ConfirmationType describes how a removal is confirmed once submitted.
type ConfirmationType string

const (
	ConfirmationEmailVerification ConfirmationType = "email-verification"
	ConfirmationAutomatic         ConfirmationType = "automatic"
	ConfirmationManual            ConfirmationType = "manual"
)

// RemovalMethodKind discriminates RemovalMethod's tagged-union variants.
type RemovalMethodKind string

const (
	RemovalWebForm RemovalMethodKind = "web-form"
	RemovalEmail   RemovalMethodKind = "email"
	RemovalPhone   RemovalMethodKind = "phone"
	RemovalManual  RemovalMethodKind = "manual"
)

// RemovalMethod is a tagged union describing how to opt out of a broker.
type RemovalMethod struct {
	Kind RemovalMethodKind `json:"method"`

	// WebForm fields.
	URL            string            `json:"url,omitempty"`
	Fields         map[string]string `json:"fields,omitempty"`
	FormSelectors  *FormSelectors    `json:"form_selectors,omitempty"`
	Confirmation   ConfirmationType  `json:"confirmation,omitempty"`

	// Email fields.
	To           string `json:"to,omitempty"`
	Subject      string `json:"subject,omitempty"`
	Body         string `json:"body,omitempty"`
	ResponseDays int    `json:"response_days,omitempty"`

	// Phone fields.
	Phone string `json:"phone,omitempty"`

	// Manual/shared instructions (Phone, Manual).
	Instructions string `json:"instructions,omitempty"`

	Notes string `json:"notes,omitempty"`
}

func (r RemovalMethod) validate(brokerID string) error {
	switch r.Kind {
	case RemovalWebForm:
		if r.URL == "" {
			return validationErr(brokerID, "removal.url cannot be empty for web-form method")
		}
		if len(r.Fields) == 0 {
			return validationErr(brokerID, "removal.fields cannot be empty for web-form method")
		}
		if r.FormSelectors == nil || r.FormSelectors.SubmitButton == "" {
			return validationErr(brokerID, "removal.form_selectors.submit_button is required")
		}
	case RemovalEmail:
		if r.To == "" {
			return validationErr(brokerID, "email removal requires a recipient address")
		}
		if r.Subject == "" {
			return validationErr(brokerID, "email removal requires a subject template")
		}
		if r.Body == "" {
			return validationErr(brokerID, "email removal requires a body template")
		}
		if r.ResponseDays < 1 || r.ResponseDays > 90 {
			return validationErr(brokerID, fmt.Sprintf("response_days must be 1-90, got %d", r.ResponseDays))
		}
	case RemovalPhone:
		if r.Phone == "" {
			return validationErr(brokerID, "phone removal requires a phone number")
		}
		if r.Instructions == "" {
			return validationErr(brokerID, "phone removal requires instructions")
		}
	case RemovalManual:
		if r.Instructions == "" {
			return validationErr(brokerID, "manual removal requires instructions")
		}
	default:
		return validationErr(brokerID, fmt.Sprintf("unknown removal method %q", r.Kind))
	}
	return nil
}

// Definition is a complete broker record, consumed read-only from disk.
type Definition struct {
	Broker  Metadata      `json:"broker"`
	Search  SearchMethod  `json:"search"`
	Removal RemovalMethod `json:"removal"`
}

// ID returns the broker's identifier.
func (d Definition) ID() string { return d.Broker.ID }

// Validate enforces the broker definition validation rules. The loader
// skips (with a warning) any definition that fails this check.
func (d Definition) Validate() error {
	if d.Broker.Name == "" {
		return validationErr(d.Broker.ID, "broker name cannot be empty")
	}
	if d.Broker.URL == "" {
		return validationErr(d.Broker.ID, "broker URL cannot be empty")
	}
	if d.Broker.TypicalRemovalDays < 1 || d.Broker.TypicalRemovalDays > 365 {
		return validationErr(d.Broker.ID, fmt.Sprintf("typical_removal_days must be 1-365, got %d", d.Broker.TypicalRemovalDays))
	}
	if d.Broker.RecheckIntervalDays < 1 || d.Broker.RecheckIntervalDays > 365 {
		return validationErr(d.Broker.ID, fmt.Sprintf("recheck_interval_days must be 1-365, got %d", d.Broker.RecheckIntervalDays))
	}
	if err := d.Search.validate(d.Broker.ID); err != nil {
		return err
	}
	if err := d.Removal.validate(d.Broker.ID); err != nil {
		return err
	}
	return nil
}

func validationErr(brokerID, reason string) error {
	return fmt.Errorf("%w: broker %q: %s", ErrValidation, brokerID, reason)
}
