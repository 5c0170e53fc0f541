// Package ollama adapts the local Ollama chat API (/api/chat).
//
// The default endpoint is http://localhost:11434/api/chat and can be
// overridden through settings. Hosts whose network profile disallows
// loopback connections reject this provider during validation.
package ollama
