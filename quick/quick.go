// =============================================================================
// Package quick — One-Line Agent Construction
// =============================================================================
// Provides a convenience entry point for creating conversation agents with
// minimal boilerplate. Delegates to llm/factory internally.
//
// The package lives under quick/ (not root) so the root package can re-export
// it without pulling the whole provider tree into every import graph.
//
// Usage:
//
//	import "github.com/duotalk/duotalk/quick"
//
//	a, err := quick.NewAgent(quick.WithOpenAI("gpt-4o-mini"))
//	b, err := quick.NewAgent(quick.WithOllama("llama3.2"))
//	sess, err := quick.NewSession(a, b, "Discuss compilers", 6)
//
// =============================================================================
package quick

import (
	"os"

	"go.uber.org/zap"

	"github.com/duotalk/duotalk/conversation"
	"github.com/duotalk/duotalk/llm"
	"github.com/duotalk/duotalk/llm/factory"
	"github.com/duotalk/duotalk/types"
)

// Option configures the agent created by NewAgent.
type Option func(*options)

type options struct {
	name         string
	model        string
	systemPrompt string
	provider     llm.Provider
	logger       *zap.Logger

	// Provider shortcut fields — used when provider is nil.
	kind   types.ProviderKind
	apiKey string
}

// WithProvider sets a pre-built provider adapter.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithOllama creates a local Ollama provider using the given model.
// No API key is required.
func WithOllama(model string) Option {
	return func(o *options) {
		o.kind = types.ProviderOllama
		o.model = model
	}
}

// WithOpenAI creates an OpenAI provider using the given model.
// API key is read from OPENAI_API_KEY environment variable.
func WithOpenAI(model string) Option {
	return func(o *options) {
		o.kind = types.ProviderOpenAI
		o.model = model
		if o.apiKey == "" {
			o.apiKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

// WithAnthropic creates an Anthropic Claude provider using the given model.
// API key is read from ANTHROPIC_API_KEY environment variable.
func WithAnthropic(model string) Option {
	return func(o *options) {
		o.kind = types.ProviderAnthropic
		o.model = model
		if o.apiKey == "" {
			o.apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
}

// WithGrok creates an xAI Grok provider using the given model.
// API key is read from XAI_API_KEY environment variable.
func WithGrok(model string) Option {
	return func(o *options) {
		o.kind = types.ProviderGrok
		o.model = model
		if o.apiKey == "" {
			o.apiKey = os.Getenv("XAI_API_KEY")
		}
	}
}

// WithGemini creates a Google Gemini provider using the given model.
// API key is read from GEMINI_API_KEY environment variable.
func WithGemini(model string) Option {
	return func(o *options) {
		o.kind = types.ProviderGemini
		o.model = model
		if o.apiKey == "" {
			o.apiKey = os.Getenv("GEMINI_API_KEY")
		}
	}
}

// WithModel sets the model name. Overrides the model set by provider shortcuts.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithName sets the agent's display name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithSystemPrompt sets the system prompt for the agent.
func WithSystemPrompt(prompt string) Option {
	return func(o *options) { o.systemPrompt = prompt }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithAPIKey overrides the API key for provider shortcuts (WithOpenAI, etc.).
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// NewAgent creates a conversation agent with minimal configuration.
// At minimum, a provider must be specified via one of the shortcuts or
// WithProvider.
func NewAgent(opts ...Option) (*conversation.Agent, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	cfg := types.AgentConfig{
		Kind:         o.kind,
		Model:        o.model,
		Name:         o.name,
		SystemPrompt: o.systemPrompt,
		APIKey:       o.apiKey,
	}
	if cfg.Name == "" {
		cfg.Name = string(cfg.Kind)
	}

	provider := o.provider
	if provider == nil {
		built, err := factory.New(cfg, o.logger)
		if err != nil {
			return nil, err
		}
		provider = built
	}

	return &conversation.Agent{Config: cfg, Provider: provider}, nil
}

// NewSession wires two agents into a ready-to-run session.
func NewSession(agent1, agent2 *conversation.Agent, prompt string, maxTurns int) (*conversation.Session, error) {
	return conversation.NewSession(agent1, agent2, conversation.Options{
		Session: types.SessionConfig{
			InitialPrompt: prompt,
			MaxTurns:      maxTurns,
		},
	})
}
