package llm

import (
	"net/http"
	"strings"
)

// ProviderID identifies one of the supported LLM back ends.
type ProviderID string

const (
	ProviderOpenAI    ProviderID = "openai"
	ProviderAnthropic ProviderID = "anthropic"
	ProviderOllama    ProviderID = "ollama"
	ProviderCustom    ProviderID = "custom"
)

// ParseProvider maps a configured provider name to its ProviderID.
// Unknown names are a configuration error, never a silent fallback.
func ParseProvider(name string) (ProviderID, error) {
	id := ProviderID(strings.ToLower(strings.TrimSpace(name)))
	switch id {
	case ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderCustom:
		return id, nil
	default:
		return "", ConfigError("unknown provider: %q", name)
	}
}

// NetworkProfile describes what the host process is able to reach.
// Mobile hosts cannot talk to a loopback Ollama daemon.
type NetworkProfile struct {
	AllowsLocalLoopback bool `json:"allows_local_loopback" yaml:"allows_local_loopback"`
}

// DesktopNetwork is the profile of a regular desktop or server host.
var DesktopNetwork = NetworkProfile{AllowsLocalLoopback: true}

// Settings is the caller-supplied generation configuration.
// It is passed by value and never modified by the engine.
type Settings struct {
	Provider    ProviderID `json:"provider" yaml:"provider"`
	APIKey      string     `json:"-" yaml:"api_key"`
	Endpoint    string     `json:"endpoint,omitempty" yaml:"endpoint"`
	Model       string     `json:"model" yaml:"model"`
	MaxTokens   int        `json:"max_tokens" yaml:"max_tokens"`
	Temperature float64    `json:"temperature" yaml:"temperature"`
}

// DefaultSettings mirrors the defaults a fresh installation starts with.
func DefaultSettings() Settings {
	return Settings{
		Provider:    ProviderOpenAI,
		Model:       "gpt-4o-mini",
		MaxTokens:   2000,
		Temperature: 0.7,
	}
}

// Validate checks everything that can be checked without a network call.
func (s Settings) Validate(network NetworkProfile) error {
	profile, err := LookupProfile(s.Provider)
	if err != nil {
		return err
	}
	if strings.TrimSpace(s.Model) == "" {
		return ConfigError("model is required for provider %s", s.Provider)
	}
	if profile.RequiresAPIKey && strings.TrimSpace(s.APIKey) == "" {
		return ConfigError("API key is required for provider %s", profile.DisplayName)
	}
	if profile.RequiresEndpoint && strings.TrimSpace(s.Endpoint) == "" {
		return ConfigError("endpoint is required for provider %s", profile.DisplayName)
	}
	if s.MaxTokens <= 0 {
		return ConfigError("max tokens must be positive, got %d", s.MaxTokens)
	}
	if profile.Loopback && !network.AllowsLocalLoopback {
		return ConfigError("%s is not supported on mobile; use a remote provider instead", profile.DisplayName)
	}
	return nil
}

// ResolvedEndpoint returns the URL a request for these settings goes to.
// OpenAI and Anthropic always use their fixed endpoint.
func (s Settings) ResolvedEndpoint() string {
	switch s.Provider {
	case ProviderOllama:
		if s.Endpoint != "" {
			return s.Endpoint
		}
		return profiles[ProviderOllama].DefaultEndpoint
	case ProviderCustom:
		return s.Endpoint
	default:
		if p, ok := profiles[s.Provider]; ok {
			return p.DefaultEndpoint
		}
		return ""
	}
}

// Usage is the token accounting reported by a provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Response is the result of a buffered generation.
// Content is "" when the provider body lacked text.
type Response struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   *Usage `json:"usage,omitempty"`
}

// StreamChunk is one decoded unit of a streamed generation.
// Content on a Done chunk is ignored.
type StreamChunk struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
}

// Request is a fully built provider request, ready for the transport.
type Request struct {
	Endpoint string
	Header   http.Header
	Body     []byte
}
