package openai

import (
	"testing"

	"github.com/BaSui01/wonderland/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapter_Provider(t *testing.T) {
	assert.Equal(t, llm.ProviderOpenAI, New().Provider())
}

func TestAdapter_FixedEndpointAndBearer(t *testing.T) {
	s := llm.Settings{
		Provider:  llm.ProviderOpenAI,
		APIKey:    "sk-test",
		Endpoint:  "https://proxy.example.com/v1/chat/completions",
		Model:     "gpt-4o-mini",
		MaxTokens: 100,
	}
	req, err := New().BuildRequest("Hi", "System", false, s)
	require.NoError(t, err)

	assert.Equal(t, "https://api.openai.com/v1/chat/completions", req.Endpoint)
	assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Empty(t, req.Header.Get("OpenAI-Organization"))
	assert.Contains(t, string(req.Body), `"stream":false`)
}

func TestAdapter_WithOrganization(t *testing.T) {
	s := llm.Settings{Provider: llm.ProviderOpenAI, APIKey: "sk", Model: "gpt-4o", MaxTokens: 10}
	req, err := New(WithOrganization(" org-123 ")).BuildRequest("Hi", "", false, s)
	require.NoError(t, err)
	assert.Equal(t, "org-123", req.Header.Get("OpenAI-Organization"))
}

func TestAdapter_ParseResponse(t *testing.T) {
	resp := New().ParseResponse([]byte(`{"model":"gpt-4o","choices":[{"message":{"content":"ok"}}]}`))
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, "gpt-4o", resp.Model)
	assert.Nil(t, resp.Usage)
}
