package piifilter_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/infiniteinsight/spectral/internal/piifilter"
)

func TestEmailDetection(t *testing.T) {
	f := piifilter.New()
	result, err := f.Filter("Contact me at john.doe@example.com")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if !result.HasPII() || len(result.Detections) != 1 {
		t.Fatalf("expected exactly one detection, got %+v", result.Detections)
	}
	if result.Detections[0].Kind != piifilter.KindEmail {
		t.Fatalf("expected email kind, got %v", result.Detections[0].Kind)
	}
}

func TestPhoneDetection(t *testing.T) {
	f := piifilter.New()
	result, err := f.Filter("Call me at (555) 123-4567")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(result.Detections) != 1 || result.Detections[0].Kind != piifilter.KindPhone {
		t.Fatalf("unexpected detections: %+v", result.Detections)
	}
}

func TestSSNDetection(t *testing.T) {
	f := piifilter.New()
	result, err := f.Filter("SSN: 123-45-6789")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(result.Detections) != 1 || result.Detections[0].Kind != piifilter.KindSSN {
		t.Fatalf("unexpected detections: %+v", result.Detections)
	}
}

func TestIPv4Detection(t *testing.T) {
	f := piifilter.New()
	result, err := f.Filter("Server at 192.168.1.1")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(result.Detections) != 1 || result.Detections[0].Kind != piifilter.KindIPv4 {
		t.Fatalf("unexpected detections: %+v", result.Detections)
	}
}

func TestRedactionStrategy(t *testing.T) {
	f := piifilter.NewWithStrategy(piifilter.StrategyRedact)
	result, err := f.Filter("Email: test@example.com")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if !strings.Contains(result.FilteredText, "[REDACTED_EMAIL]") {
		t.Fatalf("expected redaction placeholder, got %q", result.FilteredText)
	}
	if strings.Contains(result.FilteredText, "test@example.com") {
		t.Fatal("expected original email to be removed")
	}
}

func TestTokenizationRoundTrip(t *testing.T) {
	f := piifilter.NewWithStrategy(piifilter.StrategyTokenize)
	result, err := f.Filter("Email: test@example.com")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if !strings.Contains(result.FilteredText, "__PII_TOKEN_") {
		t.Fatalf("expected token placeholder, got %q", result.FilteredText)
	}
	if result.TokenMap == nil {
		t.Fatal("expected token map to be populated")
	}

	detokenized := piifilter.Detokenize(result.FilteredText, result.TokenMap)
	if detokenized != "Email: test@example.com" {
		t.Fatalf("expected round trip, got %q", detokenized)
	}
}

func TestBlockStrategy(t *testing.T) {
	f := piifilter.NewWithStrategy(piifilter.StrategyBlock)
	_, err := f.Filter("Email: test@example.com")
	if err == nil {
		t.Fatal("expected block error")
	}
	var blocked *piifilter.ErrBlocked
	if !errors.As(err, &blocked) {
		t.Fatalf("expected ErrBlocked, got %T: %v", err, err)
	}
	if !strings.Contains(blocked.Error(), "EMAIL") {
		t.Fatalf("expected error to name EMAIL, got %q", blocked.Error())
	}
}

func TestBlockStrategyNeverMutatesOnNoPII(t *testing.T) {
	f := piifilter.NewWithStrategy(piifilter.StrategyBlock)
	result, err := f.Filter("This is a normal message with no PII")
	if err != nil {
		t.Fatalf("expected no error for pii-free text, got %v", err)
	}
	if result.FilteredText != "This is a normal message with no PII" {
		t.Fatalf("expected text unchanged, got %q", result.FilteredText)
	}
}

func TestNoPII(t *testing.T) {
	f := piifilter.New()
	result, err := f.Filter("This is a normal message with no PII")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if result.HasPII() {
		t.Fatalf("expected no detections, got %+v", result.Detections)
	}
	if result.FilteredText != "This is a normal message with no PII" {
		t.Fatalf("expected text unchanged, got %q", result.FilteredText)
	}
}

func TestMultiplePIITypes(t *testing.T) {
	f := piifilter.New()
	result, err := f.Filter("Contact: john@example.com or call (555) 123-4567")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(result.Detections) != 2 {
		t.Fatalf("expected 2 detections, got %d: %+v", len(result.Detections), result.Detections)
	}

	kinds := map[piifilter.Kind]bool{}
	for _, d := range result.Detections {
		kinds[d.Kind] = true
	}
	if !kinds[piifilter.KindEmail] || !kinds[piifilter.KindPhone] {
		t.Fatalf("expected email and phone kinds, got %+v", kinds)
	}
}

func TestRedactionIsIdempotentOnAlreadyFilteredText(t *testing.T) {
	f := piifilter.NewWithStrategy(piifilter.StrategyRedact)
	first, err := f.Filter("Email: test@example.com")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	second, err := f.Filter(first.FilteredText)
	if err != nil {
		t.Fatalf("second filter: %v", err)
	}
	if second.FilteredText != first.FilteredText {
		t.Fatalf("expected redaction to be idempotent, got %q then %q", first.FilteredText, second.FilteredText)
	}
}
