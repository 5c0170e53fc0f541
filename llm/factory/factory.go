// Package factory maps a provider id to its Adapter. It imports all
// provider sub-packages, breaking the import cycle that would occur if
// this logic lived in the llm package directly.
package factory

import (
	"github.com/BaSui01/wonderland/llm"
	"github.com/BaSui01/wonderland/llm/providers/anthropic"
	"github.com/BaSui01/wonderland/llm/providers/ollama"
	"github.com/BaSui01/wonderland/llm/providers/openai"
	"github.com/BaSui01/wonderland/llm/providers/openaicompat"
)

// Options 是各 Adapter 的可选附加配置
type Options struct {
	OpenAIOrganization string `json:"openai_organization,omitempty" yaml:"openai_organization,omitempty"`
}

// Option 修改 Options
type Option func(*Options)

// WithOpenAIOrganization 为 OpenAI 请求附加 OpenAI-Organization header.
func WithOpenAIOrganization(org string) Option {
	return func(o *Options) { o.OpenAIOrganization = org }
}

// NewAdapter validates the settings against the host network profile and
// returns the adapter for s.Provider. Validation failures are
// CONFIGURATION_ERROR and happen before any network attempt.
func NewAdapter(s llm.Settings, network llm.NetworkProfile, opts ...Option) (llm.Adapter, error) {
	if err := s.Validate(network); err != nil {
		return nil, err
	}
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return adapterFor(s.Provider, o)
}

func adapterFor(id llm.ProviderID, o Options) (llm.Adapter, error) {
	switch id {
	case llm.ProviderOpenAI:
		return openai.New(openai.WithOrganization(o.OpenAIOrganization)), nil
	case llm.ProviderAnthropic:
		return anthropic.New(), nil
	case llm.ProviderOllama:
		return ollama.New(), nil
	case llm.ProviderCustom:
		return openaicompat.New(openaicompat.Config{Provider: llm.ProviderCustom}), nil
	default:
		return nil, llm.ConfigError("unknown provider: %q", string(id))
	}
}

// SupportedProviders returns the list of built-in provider ids.
func SupportedProviders() []llm.ProviderID {
	profiles := llm.Profiles()
	out := make([]llm.ProviderID, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p.ID)
	}
	return out
}
