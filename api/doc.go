// Package api defines the request and response types of the Wonderland HTTP API.
//
// # API Overview
//
// Wonderland exposes one text-generation capability over several providers
// (OpenAI, Anthropic, a local Ollama daemon, or any OpenAI-compatible endpoint):
//   - POST /v1/generate              buffered generation, retried on transient failures
//   - POST /v1/generate/stream       server-sent events, never retried
//   - POST /v1/generate/batch        independent generations with bounded concurrency
//   - POST /v1/connection/test       send a minimal request to the configured provider
//   - GET/PUT /v1/settings           read or update the generation settings
//   - GET /v1/providers              provider catalogue and availability
//   - GET /v1/usage                  accumulated token usage and estimated cost
//   - GET /health, /healthz, /ready  liveness and readiness
//
// # Authentication
//
// When API keys are configured, requests carry the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// When a JWT secret is configured, an HS256 bearer token is accepted as well:
//
//	Authorization: Bearer <token>
//
// # Errors
//
// Every failure uses the same envelope; error.code is one of the generation
// error codes (RATE_LIMIT, INVALID_API_KEY, ...) or a request-level code
// (INVALID_REQUEST, UNAUTHORIZED, INTERNAL_ERROR). error.friendly_message is
// safe to show to end users.
//
// # Base URL
//
//	http://localhost:8080
package api
