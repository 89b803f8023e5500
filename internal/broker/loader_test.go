package broker_test

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/infiniteinsight/spectral/internal/broker"
)

const validJSON = `{
  "broker": {
    "id": "example-broker",
    "name": "Example Broker",
    "url": "https://example.com",
    "domain": "example.com",
    "category": "people-search",
    "difficulty": 0,
    "typical_removal_days": 7,
    "recheck_interval_days": 30,
    "last_verified": "2025-05-01"
  },
  "search": {
    "method": "url-template",
    "template": "https://example.com/{first}-{last}",
    "requires_fields": ["first_name", "last_name"]
  },
  "removal": {
    "method": "web-form",
    "url": "https://example.com/optout",
    "fields": {"email": "{user_email}"},
    "form_selectors": {"submit_button": "button[type='submit']"},
    "confirmation": "email-verification"
  }
}`

const invalidJSONBadID = `{
  "broker": {
    "id": "x",
    "name": "Bad Broker",
    "url": "https://bad.com",
    "domain": "bad.com",
    "category": "other",
    "difficulty": 0,
    "typical_removal_days": 7,
    "recheck_interval_days": 30,
    "last_verified": "2025-05-01"
  },
  "search": {"method": "manual", "manual_url": "https://bad.com", "manual_instructions": "do it yourself"},
  "removal": {"method": "manual", "instructions": "call them"}
}`

func TestLoadDirectorySkipsInvalidAndLoadsValid(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "good.json"), []byte(validJSON), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad-id.json"), []byte(invalidJSONBadID), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "garbage.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	logger := zap.NewNop()
	registry, err := broker.LoadDirectory(dir, logger)
	if err != nil {
		t.Fatalf("load directory: %v", err)
	}

	if registry.Len() != 1 {
		t.Fatalf("expected exactly one valid broker loaded, got %d", registry.Len())
	}
	def, err := registry.Get("example-broker")
	if err != nil {
		t.Fatalf("get example-broker: %v", err)
	}
	if def.Broker.Name != "Example Broker" {
		t.Fatalf("unexpected broker name: %q", def.Broker.Name)
	}
}

func TestRegistryResolveFilters(t *testing.T) {
	registry := broker.NewRegistry()
	registry.Add(broker.Definition{Broker: broker.Metadata{ID: "a", Category: broker.CategoryPeopleSearch}})
	registry.Add(broker.Definition{Broker: broker.Metadata{ID: "b", Category: broker.CategoryFinancial}})
	registry.Add(broker.Definition{Broker: broker.Metadata{ID: "c", Category: broker.CategoryPeopleSearch}})

	all := registry.Resolve(broker.AllBrokers())
	if len(all) != 3 {
		t.Fatalf("expected 3 brokers, got %d", len(all))
	}

	byCategory := registry.Resolve(broker.ByCategory(broker.CategoryPeopleSearch))
	if len(byCategory) != 2 {
		t.Fatalf("expected 2 people-search brokers, got %d", len(byCategory))
	}

	specific := registry.Resolve(broker.BySpecificIDs([]string{"b", "does-not-exist"}))
	if len(specific) != 1 || specific[0].Broker.ID != "b" {
		t.Fatalf("unexpected specific filter result: %+v", specific)
	}
}

func TestRegistryGetNotFound(t *testing.T) {
	registry := broker.NewRegistry()
	if _, err := registry.Get("missing"); err != broker.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
