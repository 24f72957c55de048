package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-assistant/internal/models"
)

const sampleRegistry = `{
	"version": "1",
	"intents": [
		{
			"intent": "deny",
			"patterns": ["不对|不要"],
			"keywords": ["不对"],
			"weight": 1.0
		},
		{
			"intent": "retail_quote",
			"patterns": ["多少钱"],
			"keywords": ["多少钱", "买"],
			"weight": 0.7
		}
	]
}`

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intents.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleRegistry), 0o644))

	defs, err := LoadRegistry(path)
	require.NoError(t, err)

	require.Len(t, defs, 2)
	assert.Equal(t, models.IntentDeny, defs[0].Intent)
	assert.Equal(t, 1.0, defs[0].Weight)
	assert.True(t, defs[0].Patterns[0].MatchString("不对"))
	assert.Equal(t, models.IntentRetailQuote, defs[1].Intent)
}

func TestLoadRegistry_MissingFile(t *testing.T) {
	_, err := LoadRegistry("/nonexistent/intents.json")
	assert.Error(t, err)
}

func TestCompile_BadPattern(t *testing.T) {
	reg := &IntentRegistry{Intents: []IntentEntry{
		{Intent: "confirm", Patterns: []string{"("}},
	}}

	_, err := Compile(reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confirm")
}
