// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"shop-assistant/internal/models"
	"shop-assistant/internal/nlu/classifier"
)

// LoadRegistry reads an intent registry file and compiles it into classifier
// definitions, preserving file order. Order matters: earlier intents win
// score ties.
func LoadRegistry(path string) ([]classifier.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var reg IntentRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, err
	}
	return Compile(&reg)
}

// Compile turns a registry into classifier definitions, validating every
// pattern.
func Compile(reg *IntentRegistry) ([]classifier.Definition, error) {
	defs := make([]classifier.Definition, 0, len(reg.Intents))
	for _, entry := range reg.Intents {
		def := classifier.Definition{
			Intent:   models.Intent(entry.Intent),
			Keywords: entry.Keywords,
			Weight:   entry.Weight,
		}
		for _, raw := range entry.Patterns {
			pattern, err := regexp.Compile(raw)
			if err != nil {
				return nil, fmt.Errorf("intent %q pattern %q: %w", entry.Intent, raw, err)
			}
			def.Patterns = append(def.Patterns, pattern)
		}
		defs = append(defs, def)
	}
	return defs, nil
}
