// Package duotalk provides a top-level convenience entry point for wiring
// two agents into a conversation with minimal boilerplate.
//
// Usage:
//
//	import "github.com/duotalk/duotalk"
//
//	a, err := duotalk.NewAgent(duotalk.WithOpenAI("gpt-4o-mini"))
//	b, err := duotalk.NewAgent(duotalk.WithOllama("llama3.2"))
//	sess, err := duotalk.NewSession(a, b, "Argue about tabs vs spaces", 6)
//	state, err := sess.Run(ctx)
//
// This is a thin wrapper around [quick.NewAgent]; both produce identical
// results. Use this package when you prefer the shorter import path.
package duotalk

import (
	"github.com/duotalk/duotalk/conversation"
	"github.com/duotalk/duotalk/quick"
)

// Option configures the agent created by [NewAgent].
type Option = quick.Option

// NewAgent creates a [conversation.Agent] with minimal configuration.
// At minimum, a provider must be specified via [WithOllama], [WithOpenAI],
// [WithAnthropic], [WithGrok], [WithGemini], or [WithProvider].
func NewAgent(opts ...Option) (*conversation.Agent, error) {
	return quick.NewAgent(opts...)
}

// NewSession wires two agents into a ready-to-run session.
func NewSession(agent1, agent2 *conversation.Agent, prompt string, maxTurns int) (*conversation.Session, error) {
	return quick.NewSession(agent1, agent2, prompt, maxTurns)
}

// Re-export provider shortcuts so callers never need to import quick/.

// WithProvider sets a pre-built provider adapter.
var WithProvider = quick.WithProvider

// WithOllama creates a local Ollama provider. No API key required.
var WithOllama = quick.WithOllama

// WithOpenAI creates an OpenAI provider. API key from OPENAI_API_KEY env.
var WithOpenAI = quick.WithOpenAI

// WithAnthropic creates an Anthropic Claude provider. API key from ANTHROPIC_API_KEY env.
var WithAnthropic = quick.WithAnthropic

// WithGrok creates an xAI Grok provider. API key from XAI_API_KEY env.
var WithGrok = quick.WithGrok

// WithGemini creates a Google Gemini provider. API key from GEMINI_API_KEY env.
var WithGemini = quick.WithGemini

// WithModel overrides the model name.
var WithModel = quick.WithModel

// WithName sets the agent's display name.
var WithName = quick.WithName

// WithSystemPrompt sets the system prompt.
var WithSystemPrompt = quick.WithSystemPrompt

// WithLogger sets a custom zap logger.
var WithLogger = quick.WithLogger

// WithAPIKey overrides the API key for provider shortcuts.
var WithAPIKey = quick.WithAPIKey
