// Package providers contains the shared plumbing for the concrete provider
// adapters: per-provider configuration structs, HTTP status to error-code
// mapping, transport error classification, and the OpenAI-compatible wire
// types reused by every OpenAI-style API.
//
// Concrete adapters live in the sub-packages (ollama, openai, anthropic,
// grok, gemini); the factory maps a provider kind to its constructor so that
// adding a provider never touches the conversation loop or the retry policy.
package providers
