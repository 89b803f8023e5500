package broker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// idPattern enforces the kebab-case identifier shape a broker id must
// have: 3-50 chars, lowercase alphanumerics and hyphens, not starting or
// ending with a hyphen.
var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,48}[a-z0-9]$`)

// LoadDirectory reads every *.json file in dir, tolerantly pre-validates
// it with gjson (catching structurally malformed files cheaply before the
// strict decode), strictly decodes it, validates it against the broker
// definition rules, and registers it. Invalid files are skipped with a
// warning rather than aborting the whole load.
func LoadDirectory(dir string, logger *zap.Logger) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("broker: failed to read definitions directory: %w", err)
	}

	registry := NewRegistry()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		def, err := loadFile(path)
		if err != nil {
			logger.Warn("skipping invalid broker definition", zap.String("path", path), zap.Error(err))
			continue
		}
		registry.Add(def)
	}

	return registry, nil
}

func loadFile(path string) (Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("failed to read file: %w", err)
	}

	if !gjson.ValidBytes(raw) {
		return Definition{}, fmt.Errorf("not valid JSON")
	}
	if !gjson.GetBytes(raw, "broker.id").Exists() {
		return Definition{}, fmt.Errorf("missing required broker.id field")
	}

	var def Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return Definition{}, fmt.Errorf("failed to decode: %w", err)
	}

	if !idPattern.MatchString(def.Broker.ID) {
		return Definition{}, fmt.Errorf("broker id %q does not match required pattern", def.Broker.ID)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}

	return def, nil
}
