// Package openaicompat provides a shared base implementation of the
// OpenAI chat completions wire format.
//
// The openai adapter embeds openaicompat.Adapter and only overrides the
// headers; custom OpenAI-compatible endpoints use it as is:
//
//	a := openaicompat.New(openaicompat.Config{
//	    Provider: llm.ProviderCustom,
//	})
//	req, err := a.BuildRequest(prompt, system, false, settings)
//
// Request bodies are {model, messages, max_tokens, temperature, stream};
// response and stream parsing are lenient and never fail.
package openaicompat
