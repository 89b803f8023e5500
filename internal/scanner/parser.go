package scanner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/infiniteinsight/spectral/internal/broker"
)

// ErrCaptchaRequired signals that a broker's results page matched its
// captcha_required selector. The broker-scan ends Failed with this error's
// message, never retried.
type ErrCaptchaRequired struct {
	BrokerID string
}

func (e *ErrCaptchaRequired) Error() string { return "CAPTCHA_REQUIRED" }

// ErrSelectorsOutdated signals that one of a broker's required selectors
// (results_container, result_item, listing_url) is empty.
type ErrSelectorsOutdated struct {
	BrokerID string
	Reason   string
}

func (e *ErrSelectorsOutdated) Error() string {
	return fmt.Sprintf("scanner: selectors outdated for broker %q: %s", e.BrokerID, e.Reason)
}

// ExtractedData is the semi-structured payload parsed from one listing,
// matching Finding.ExtractedData's shape.
type ExtractedData struct {
	Name         *string  `json:"name,omitempty"`
	Age          *int     `json:"age,omitempty"`
	Addresses    []string `json:"addresses,omitempty"`
	PhoneNumbers []string `json:"phone_numbers,omitempty"`
	Relatives    []string `json:"relatives,omitempty"`
	Emails       []string `json:"emails,omitempty"`
}

// ListingMatch is one parsed search result.
type ListingMatch struct {
	ListingURL    string
	ExtractedData ExtractedData
}

// ParseResults runs selectors.ResultSelectors against html, using baseURL
// to absolutize relative listing URLs. It returns (nil, ErrCaptchaRequired)
// if the captcha selector matches, (empty, nil) if the no-results selector
// matches, and (matches, nil) otherwise. An empty results_container,
// result_item or listing_url selector fails the whole parse with
// ErrSelectorsOutdated. Selectors are not checked for valid CSS syntax: a
// selector that does not parse matches nothing, so it yields no matches
// rather than an error.
func ParseResults(brokerID, baseURL string, selectors *broker.ResultSelectors, html string) ([]ListingMatch, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("scanner: failed to parse HTML for broker %q: %w", brokerID, err)
	}

	if selectors.CaptchaRequired != nil && *selectors.CaptchaRequired != "" {
		if doc.Find(*selectors.CaptchaRequired).Length() > 0 {
			return nil, &ErrCaptchaRequired{BrokerID: brokerID}
		}
	}

	if selectors.NoResultsIndicator != nil && *selectors.NoResultsIndicator != "" {
		if doc.Find(*selectors.NoResultsIndicator).Length() > 0 {
			return nil, nil
		}
	}

	if selectors.ResultsContainer == "" {
		return nil, &ErrSelectorsOutdated{BrokerID: brokerID, Reason: "results_container is empty"}
	}
	if selectors.ResultItem == "" {
		return nil, &ErrSelectorsOutdated{BrokerID: brokerID, Reason: "result_item is empty"}
	}
	if selectors.ListingURL == "" {
		return nil, &ErrSelectorsOutdated{BrokerID: brokerID, Reason: "listing_url is empty"}
	}

	var matches []ListingMatch
	var parseErr error
	doc.Find(selectors.ResultItem).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		match, ok, err := parseItem(baseURL, selectors, item)
		if err != nil {
			parseErr = &ErrSelectorsOutdated{BrokerID: brokerID, Reason: err.Error()}
			return false
		}
		if ok {
			matches = append(matches, match)
		}
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return matches, nil
}

func parseItem(baseURL string, selectors *broker.ResultSelectors, item *goquery.Selection) (ListingMatch, bool, error) {
	link := item.Find(selectors.ListingURL).First()
	if link.Length() == 0 {
		return ListingMatch{}, false, nil
	}
	href, exists := link.Attr("href")
	if !exists || href == "" {
		return ListingMatch{}, false, nil
	}

	listingURL := href
	if !strings.HasPrefix(href, "http") {
		listingURL = baseURL + href
	}

	extracted := ExtractedData{}
	if name := extractText(item, selectors.Name); name != "" {
		extracted.Name = &name
	}
	if ageText := extractText(item, selectors.Age); ageText != "" {
		if age, err := strconv.Atoi(ageText); err == nil {
			extracted.Age = &age
		}
	}
	if location := extractText(item, selectors.Location); location != "" {
		extracted.Addresses = []string{location}
	}
	if relatives := extractText(item, selectors.Relatives); relatives != "" {
		extracted.Relatives = splitList(relatives)
	}
	if phones := extractText(item, selectors.Phones); phones != "" {
		extracted.PhoneNumbers = splitList(phones)
	}
	if emails := extractText(item, selectors.Emails); emails != "" {
		extracted.Emails = splitList(emails)
	}

	return ListingMatch{ListingURL: listingURL, ExtractedData: extracted}, true, nil
}

func extractText(item *goquery.Selection, selector *string) string {
	if selector == nil || *selector == "" {
		return ""
	}
	found := item.Find(*selector).First()
	if found.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(found.Text())
}

// splitList splits a comma-separated field (relatives, phones, emails) into
// trimmed, non-empty parts.
func splitList(text string) []string {
	parts := strings.Split(text, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
