package types

import (
	"fmt"
	"strings"
	"time"
)

// ProviderKind identifies one of the supported AI providers.
type ProviderKind string

const (
	ProviderOllama    ProviderKind = "ollama"
	ProviderOpenAI    ProviderKind = "openai"
	ProviderAnthropic ProviderKind = "anthropic"
	ProviderGrok      ProviderKind = "grok"
	ProviderGemini    ProviderKind = "gemini"
)

// KnownProviderKinds lists every provider kind the factory can build.
var KnownProviderKinds = []ProviderKind{
	ProviderOllama,
	ProviderOpenAI,
	ProviderAnthropic,
	ProviderGrok,
	ProviderGemini,
}

// Valid reports whether the kind is one of the supported providers.
func (k ProviderKind) Valid() bool {
	for _, known := range KnownProviderKinds {
		if k == known {
			return true
		}
	}
	return false
}

// AgentConfig is the immutable per-agent configuration. It is created once
// before a session starts and never mutated during a session. The credential
// is an opaque reference resolved by the configuration loader and must never
// be logged.
type AgentConfig struct {
	Kind         ProviderKind  `json:"kind" yaml:"kind"`
	Model        string        `json:"model" yaml:"model"`
	Name         string        `json:"name,omitempty" yaml:"name,omitempty"`
	SystemPrompt string        `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	APIKey       string        `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL      string        `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Validate checks that the configuration can produce a working adapter.
// Violations are reported as ErrInvalidConfig before any network call.
func (c AgentConfig) Validate() error {
	if !c.Kind.Valid() {
		return NewError(ErrInvalidConfig, fmt.Sprintf("unknown provider kind %q", c.Kind))
	}
	if strings.TrimSpace(c.Model) == "" {
		return NewError(ErrInvalidConfig, fmt.Sprintf("agent %q: model is required", c.Name))
	}
	// Ollama is local and unauthenticated; every remote provider needs a key.
	if c.Kind != ProviderOllama && strings.TrimSpace(c.APIKey) == "" {
		return NewError(ErrInvalidConfig, fmt.Sprintf("agent %q: api key is required for provider %s", c.Name, c.Kind))
	}
	if c.Timeout < 0 {
		return NewError(ErrInvalidConfig, fmt.Sprintf("agent %q: timeout must not be negative", c.Name))
	}
	return nil
}

// SessionConfig holds per-session conversation parameters.
type SessionConfig struct {
	// InitialPrompt seeds the first speaker's context as a user message.
	// An empty prompt is passed through unchanged; adapters decide whether
	// that is an error.
	InitialPrompt string `json:"initial_prompt" yaml:"initial_prompt"`

	// MaxTurns is the number of turns after which the session completes.
	// Zero completes immediately with no adapter calls.
	MaxTurns int `json:"max_turns" yaml:"max_turns"`

	// TurnDelay is the wait between consecutive turns.
	TurnDelay time.Duration `json:"turn_delay" yaml:"turn_delay"`

	// KeepLastMessages, when positive, limits each context snapshot to the
	// last N non-system messages. Zero disables count-based trimming.
	KeepLastMessages int `json:"keep_last_messages,omitempty" yaml:"keep_last_messages,omitempty"`

	// MaxContextTokens, when positive, trims each context snapshot to a
	// token budget using the session tokenizer. Zero disables it.
	MaxContextTokens int `json:"max_context_tokens,omitempty" yaml:"max_context_tokens,omitempty"`
}

// Validate checks session parameters. MaxTurns of zero is legal and means
// "complete immediately".
func (c SessionConfig) Validate() error {
	if c.MaxTurns < 0 {
		return NewError(ErrInvalidConfig, "max_turns must not be negative")
	}
	if c.TurnDelay < 0 {
		return NewError(ErrInvalidConfig, "turn_delay must not be negative")
	}
	if c.KeepLastMessages < 0 {
		return NewError(ErrInvalidConfig, "keep_last_messages must not be negative")
	}
	if c.MaxContextTokens < 0 {
		return NewError(ErrInvalidConfig, "max_context_tokens must not be negative")
	}
	return nil
}
