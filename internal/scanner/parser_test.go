package scanner

import (
	"testing"

	"github.com/infiniteinsight/spectral/internal/broker"
)

func strPtr(s string) *string { return &s }

const searchResultsHTML = `
<div class="search-results">
    <div class="result-card">
        <a class="profile-link" href="/profile/john-doe-123">View Profile</a>
        <div class="name">John Doe</div>
        <div class="age">35</div>
        <div class="location">Springfield, CA</div>
    </div>
    <div class="result-card">
        <a class="profile-link" href="/profile/jane-doe-456">View Profile</a>
        <div class="name">Jane Doe</div>
        <div class="age">32</div>
        <div class="location">Los Angeles, CA</div>
    </div>
</div>
`

func TestParseResultsExtractsTwoListings(t *testing.T) {
	selectors := &broker.ResultSelectors{
		ResultsContainer: ".search-results",
		ResultItem:       ".result-card",
		ListingURL:       "a.profile-link",
		Name:             strPtr(".name"),
		Age:              strPtr(".age"),
		Location:         strPtr(".location"),
	}

	matches, err := ParseResults("test-broker", "https://example.com", selectors, searchResultsHTML)
	if err != nil {
		t.Fatalf("parse results: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}

	first := matches[0]
	if first.ListingURL != "https://example.com/profile/john-doe-123" {
		t.Fatalf("unexpected listing url: %q", first.ListingURL)
	}
	if first.ExtractedData.Name == nil || *first.ExtractedData.Name != "John Doe" {
		t.Fatalf("unexpected name: %+v", first.ExtractedData.Name)
	}
	if first.ExtractedData.Age == nil || *first.ExtractedData.Age != 35 {
		t.Fatalf("unexpected age: %+v", first.ExtractedData.Age)
	}
	if len(first.ExtractedData.Addresses) != 1 || first.ExtractedData.Addresses[0] != "Springfield, CA" {
		t.Fatalf("unexpected addresses: %+v", first.ExtractedData.Addresses)
	}

	second := matches[1]
	if second.ListingURL != "https://example.com/profile/jane-doe-456" {
		t.Fatalf("unexpected listing url: %q", second.ListingURL)
	}
	if second.ExtractedData.Name == nil || *second.ExtractedData.Name != "Jane Doe" {
		t.Fatalf("unexpected name: %+v", second.ExtractedData.Name)
	}
}

func TestParseResultsAbsoluteHref(t *testing.T) {
	html := `<div class="search-results"><div class="result-card">
		<a class="profile-link" href="https://other.com/p/1">x</a>
	</div></div>`
	selectors := &broker.ResultSelectors{
		ResultsContainer: ".search-results",
		ResultItem:       ".result-card",
		ListingURL:       "a.profile-link",
	}

	matches, err := ParseResults("test-broker", "https://example.com", selectors, html)
	if err != nil {
		t.Fatalf("parse results: %v", err)
	}
	if len(matches) != 1 || matches[0].ListingURL != "https://other.com/p/1" {
		t.Fatalf("expected absolute href preserved, got %+v", matches)
	}
}

func TestParseResultsCaptchaRequired(t *testing.T) {
	html := `<div class="captcha-wall">Please verify you are human</div>`
	selectors := &broker.ResultSelectors{
		ResultsContainer: ".search-results",
		ResultItem:       ".result-card",
		ListingURL:       "a.profile-link",
		CaptchaRequired:  strPtr(".captcha-wall"),
	}

	_, err := ParseResults("test-broker", "https://example.com", selectors, html)
	if err == nil {
		t.Fatal("expected a captcha error")
	}
	captchaErr, ok := err.(*ErrCaptchaRequired)
	if !ok {
		t.Fatalf("expected *ErrCaptchaRequired, got %T", err)
	}
	if captchaErr.BrokerID != "test-broker" {
		t.Fatalf("unexpected broker id: %q", captchaErr.BrokerID)
	}
}

func TestParseResultsNoResultsIndicator(t *testing.T) {
	html := `<div class="no-results">No records found</div>`
	selectors := &broker.ResultSelectors{
		ResultsContainer:   ".search-results",
		ResultItem:         ".result-card",
		ListingURL:         "a.profile-link",
		NoResultsIndicator: strPtr(".no-results"),
	}

	matches, err := ParseResults("test-broker", "https://example.com", selectors, html)
	if err != nil {
		t.Fatalf("parse results: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(matches))
	}
}

func TestParseResultsSkipsItemsWithoutListingURL(t *testing.T) {
	html := `<div class="search-results"><div class="result-card"><div class="name">No Link</div></div></div>`
	selectors := &broker.ResultSelectors{
		ResultsContainer: ".search-results",
		ResultItem:       ".result-card",
		ListingURL:       "a.profile-link",
		Name:             strPtr(".name"),
	}

	matches, err := ParseResults("test-broker", "https://example.com", selectors, html)
	if err != nil {
		t.Fatalf("parse results: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected items without a listing url to be skipped, got %d", len(matches))
	}
}

func TestParseResultsRejectsEmptySelectors(t *testing.T) {
	selectors := &broker.ResultSelectors{}
	_, err := ParseResults("test-broker", "https://example.com", selectors, searchResultsHTML)
	if err == nil {
		t.Fatal("expected an error for empty selectors")
	}
	if _, ok := err.(*ErrSelectorsOutdated); !ok {
		t.Fatalf("expected *ErrSelectorsOutdated, got %T", err)
	}
}
