package mail

import (
	"strings"
	"testing"
)

func TestMatchesBrokerSenderExact(t *testing.T) {
	brokers := []string{"optout@spokeo.com"}
	if !matchesBrokerSender("optout@spokeo.com", brokers) {
		t.Fatal("expected an exact match")
	}
}

func TestMatchesBrokerSenderCaseInsensitive(t *testing.T) {
	brokers := []string{"OptOut@Spokeo.com"}
	if !matchesBrokerSender("optout@spokeo.com", brokers) {
		t.Fatal("expected a case-insensitive match")
	}
}

func TestMatchesBrokerSenderNoMatch(t *testing.T) {
	brokers := []string{"optout@spokeo.com"}
	if matchesBrokerSender("noreply@random.com", brokers) {
		t.Fatal("expected no match")
	}
}

func TestBuildMessageIncludesHeaders(t *testing.T) {
	msg := string(buildMessage("spectral@example.com", "optout@broker.com", "Opt-Out Request", "Please remove me."))
	if !strings.Contains(msg, "From: spectral@example.com") ||
		!strings.Contains(msg, "To: optout@broker.com") ||
		!strings.Contains(msg, "Subject: Opt-Out Request") {
		t.Fatalf("missing expected headers in message: %s", msg)
	}
	if !strings.Contains(msg, "Please remove me.") {
		t.Fatalf("missing body in message: %s", msg)
	}
}
