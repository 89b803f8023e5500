package removal

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/infiniteinsight/spectral/internal/broker"
	"github.com/infiniteinsight/spectral/internal/browser"
)

// WebFormSubmitter drives a broker's web-form opt-out flow: navigate/fill/
// submit via the browser collaborator, then inspect the resulting HTML for
// a CAPTCHA or success indicator.
type WebFormSubmitter struct {
	actions browser.Actions
}

// NewWebFormSubmitter returns a submitter driving actions.
func NewWebFormSubmitter(actions browser.Actions) *WebFormSubmitter {
	return &WebFormSubmitter{actions: actions}
}

// fieldSelector maps a field name recognized by buildFieldValues to the
// FormSelectors entry that should receive it.
func fieldSelector(selectors *broker.FormSelectors, fieldName string) *string {
	switch fieldName {
	case "listing_url":
		return selectors.ListingURLInput
	case "email":
		return selectors.EmailInput
	case "first_name":
		return selectors.FirstNameInput
	case "last_name":
		return selectors.LastNameInput
	default:
		return nil
	}
}

// Submit fills and submits broker's declared web form with fieldValues,
// returning the outcome it observed.
func (s *WebFormSubmitter) Submit(ctx context.Context, def broker.Definition, fieldValues map[string]string) (Outcome, error) {
	method := def.Removal
	if method.Kind != broker.RemovalWebForm {
		return Outcome{}, fmt.Errorf("removal: broker %q is not a web-form removal method", def.Broker.ID)
	}
	selectors := method.FormSelectors
	if selectors == nil {
		return Outcome{}, fmt.Errorf("removal: broker %q has no form_selectors", def.Broker.ID)
	}

	formFields := make(map[string]string)
	for name, value := range fieldValues {
		if sel := fieldSelector(selectors, name); sel != nil {
			formFields[*sel] = value
		}
	}

	html, err := s.actions.SubmitForm(ctx, method.URL, formFields, selectors.SubmitButton)
	if err != nil {
		return Outcome{}, fmt.Errorf("removal: form submission failed for broker %q: %w", def.Broker.ID, err)
	}

	if selectors.CaptchaFrame != nil && *selectors.CaptchaFrame != "" {
		if htmlMatches(html, *selectors.CaptchaFrame) {
			return Outcome{Kind: KindRequiresCaptcha, CaptchaURL: method.URL}, nil
		}
	}

	if selectors.SuccessIndicator == nil || *selectors.SuccessIndicator == "" {
		return Outcome{Kind: KindSubmitted}, nil
	}

	if !htmlMatches(html, *selectors.SuccessIndicator) {
		return Outcome{Kind: KindFailed, Reason: "Success confirmation not detected"}, nil
	}

	email := fieldValues["email"]
	return Outcome{Kind: KindRequiresEmailVerification, Email: email, SentTo: email}, nil
}

func htmlMatches(html, selector string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	return doc.Find(selector).Length() > 0
}

// Sender submits a removal request by email. It's a capability boundary
// like browser.Actions: the core consumes it, the outbound SMTP transport
// lives in internal/mail.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SubmitEmail formats the broker's subject/body templates against
// fieldValues and hands them to sender. Templates use the same {placeholder}
// substitution style as broker.ResultSelectors/search templates.
func SubmitEmail(ctx context.Context, sender Sender, def broker.Definition, fieldValues map[string]string) (Outcome, error) {
	method := def.Removal
	if method.Kind != broker.RemovalEmail {
		return Outcome{}, fmt.Errorf("removal: broker %q is not an email removal method", def.Broker.ID)
	}

	replacer := templateReplacer(fieldValues)
	subject := replacer.Replace(method.Subject)
	body := replacer.Replace(method.Body)

	if err := sender.Send(ctx, method.To, subject, body); err != nil {
		return Outcome{}, fmt.Errorf("removal: email submission failed for broker %q: %w", def.Broker.ID, err)
	}
	return Outcome{Kind: KindSubmitted}, nil
}

func templateReplacer(fieldValues map[string]string) *strings.Replacer {
	pairs := make([]string, 0, len(fieldValues)*2)
	for name, value := range fieldValues {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...)
}
