package llm

// ProviderProfile is the static description of a provider: where it lives
// and which models the settings screen offers.
type ProviderProfile struct {
	ID               ProviderID `json:"id"`
	DisplayName      string     `json:"display_name"`
	DefaultEndpoint  string     `json:"default_endpoint,omitempty"`
	Models           []string   `json:"models"`
	RequiresAPIKey   bool       `json:"requires_api_key"`
	RequiresEndpoint bool       `json:"requires_endpoint"`
	Loopback         bool       `json:"loopback"`
}

// DefaultModel returns the first listed model, or "" for custom endpoints.
func (p ProviderProfile) DefaultModel() string {
	if len(p.Models) == 0 {
		return ""
	}
	return p.Models[0]
}

var providerOrder = []ProviderID{ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderCustom}

var profiles = map[ProviderID]ProviderProfile{
	ProviderOpenAI: {
		ID:              ProviderOpenAI,
		DisplayName:     "OpenAI",
		DefaultEndpoint: "https://api.openai.com/v1/chat/completions",
		Models:          []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-4", "gpt-3.5-turbo"},
		RequiresAPIKey:  true,
	},
	ProviderAnthropic: {
		ID:              ProviderAnthropic,
		DisplayName:     "Anthropic",
		DefaultEndpoint: "https://api.anthropic.com/v1/messages",
		Models: []string{
			"claude-sonnet-4-20250514",
			"claude-3-5-sonnet-20241022",
			"claude-3-5-haiku-20241022",
			"claude-3-haiku-20240307",
			"claude-3-opus-20240229",
		},
		RequiresAPIKey: true,
	},
	ProviderOllama: {
		ID:              ProviderOllama,
		DisplayName:     "Ollama",
		DefaultEndpoint: "http://localhost:11434/api/chat",
		Models:          []string{"llama3.2", "llama3.1", "mistral", "mixtral", "codellama"},
		Loopback:        true,
	},
	ProviderCustom: {
		ID:               ProviderCustom,
		DisplayName:      "Custom endpoint",
		Models:           []string{},
		RequiresAPIKey:   true,
		RequiresEndpoint: true,
	},
}

// LookupProfile returns the profile for id. The table is total over the four
// provider ids; anything else is a configuration error.
func LookupProfile(id ProviderID) (ProviderProfile, error) {
	p, ok := profiles[id]
	if !ok {
		return ProviderProfile{}, ConfigError("unknown provider: %q", string(id))
	}
	p.Models = append(make([]string, 0, len(p.Models)), p.Models...)
	return p, nil
}

// Profiles lists every provider profile in a stable order.
func Profiles() []ProviderProfile {
	out := make([]ProviderProfile, 0, len(providerOrder))
	for _, id := range providerOrder {
		p, _ := LookupProfile(id)
		out = append(out, p)
	}
	return out
}
