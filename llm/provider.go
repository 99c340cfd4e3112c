package llm

import (
	"context"
	"strings"
	"time"

	"github.com/duotalk/duotalk/types"
)

// ChatRequest is the normalized outbound request built from a context store
// snapshot. Provider-specific fields are translated at the adapter boundary
// only and never leak back into the stores.
type ChatRequest struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature,omitempty"`
	TopP        float32         `json:"top_p,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
	Timeout     time.Duration   `json:"timeout,omitempty"`
}

type ChatChoice struct {
	Index        int           `json:"index"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Message      types.Message `json:"message"`
}

type ChatResponse struct {
	ID        string           `json:"id,omitempty"`
	Provider  string           `json:"provider,omitempty"`
	Model     string           `json:"model"`
	Choices   []ChatChoice     `json:"choices"`
	Usage     types.TokenUsage `json:"usage,omitempty"`
	CreatedAt time.Time        `json:"created_at,omitempty"`
}

// FirstContent returns the text of the first choice. Adapters guarantee a
// non-empty first choice on success, so an empty return only ever shows up
// in hand-built test fixtures.
func (r *ChatResponse) FirstContent() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Model describes one model available from a provider.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// HealthStatus represents the result of a provider health check.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// Provider is the normalized adapter contract, one implementation per AI
// provider. Adapters are stateless with respect to the conversation: the
// whole context arrives in every ChatRequest. Adapters never retry
// internally; retry is strictly the caller's responsibility.
//
// On failure every method returns a *types.Error so the caller can make a
// retry decision from Code and Retryable alone.
type Provider interface {
	// Completion sends one turn and returns the complete response.
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// ListModels returns the models currently served by the provider.
	ListModels(ctx context.Context) ([]Model, error)

	// HealthCheck performs a lightweight reachability probe.
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Name returns the provider's unique identifier.
	Name() string
}

// ValidateReply enforces the adapter success contract: a response must carry
// a non-empty text reply, otherwise it is a provider-side contract violation
// classified as ErrMalformedResponse (terminal, never retried).
func ValidateReply(resp *ChatResponse, provider string) error {
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return types.NewError(types.ErrMalformedResponse, "response contains no text reply").
			WithProvider(provider)
	}
	return nil
}
