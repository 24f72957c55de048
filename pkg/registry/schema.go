// pkg/registry/schema.go
package registry

// IntentRegistry is the on-disk intent table format. Shops can override the
// built-in intent patterns without a rebuild.
type IntentRegistry struct {
	Version     string        `json:"version"`
	LastUpdated string        `json:"lastUpdated"`
	Intents     []IntentEntry `json:"intents"`
}

// IntentEntry is one intent's patterns and keywords, in priority order.
type IntentEntry struct {
	Intent   string   `json:"intent"`
	Patterns []string `json:"patterns"`
	Keywords []string `json:"keywords"`
	Weight   float64  `json:"weight"`
}
