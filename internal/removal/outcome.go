// Package removal drives a confirmed Finding through a RemovalAttempt:
// building broker-specific field values from the profile, submitting via
// the broker's declared RemovalMethod, and recording the outcome.
package removal

// Outcome is the result of one removal submission attempt. It carries more
// detail than the four RemovalAttempt statuses the database stores;
// worker.go collapses it down before persisting.
type Outcome struct {
	Kind Kind

	// RequiresEmailVerification fields.
	Email  string
	SentTo string

	// RequiresCaptcha fields.
	CaptchaURL string

	// Failed fields.
	Reason       string
	ErrorDetails string
}

// Kind discriminates Outcome's variants.
type Kind string

const (
	KindSubmitted                 Kind = "submitted"
	KindRequiresEmailVerification Kind = "requires_email_verification"
	KindRequiresCaptcha           Kind = "requires_captcha"
	KindRequiresAccountCreation   Kind = "requires_account_creation"
	KindFailed                    Kind = "failed"
)

// RequiresUserAction reports whether this outcome cannot proceed without a
// person completing a step the automated worker can't.
func (o Outcome) RequiresUserAction() bool {
	switch o.Kind {
	case KindRequiresEmailVerification, KindRequiresCaptcha, KindRequiresAccountCreation:
		return true
	default:
		return false
	}
}

// IsFailure reports whether this outcome is a terminal failure.
func (o Outcome) IsFailure() bool { return o.Kind == KindFailed }

// IsSuccess reports whether the broker accepted the request outright.
func (o Outcome) IsSuccess() bool { return o.Kind == KindSubmitted }
