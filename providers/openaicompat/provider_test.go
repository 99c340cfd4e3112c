package openaicompat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/duotalk/duotalk/llm"
	"github.com/duotalk/duotalk/providers"
	"github.com/duotalk/duotalk/types"
)

func newTestProvider(baseURL string) *Provider {
	return New(Config{
		ProviderName: "compat-test",
		APIKey:       "sk-test",
		BaseURL:      baseURL,
		DefaultModel: "test-model",
		Timeout:      5 * time.Second,
	}, zap.NewNop())
}

func TestCompletion_Success(t *testing.T) {
	var gotReq providers.OpenAICompatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		resp := providers.OpenAICompatResponse{
			ID:    "chatcmpl-123",
			Model: "test-model",
			Choices: []providers.OpenAICompatChoice{{
				Index:        0,
				FinishReason: "stop",
				Message:      providers.OpenAICompatMessage{Role: "assistant", Content: "mocked reply"},
			}},
			Usage: &providers.OpenAICompatUsage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	resp, err := p.Completion(t.Context(), &llm.ChatRequest{
		Messages: []types.Message{
			types.NewSystemMessage("be brief"),
			types.NewUserMessage("hello"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "mocked reply", resp.FirstContent())
	assert.Equal(t, "compat-test", resp.Provider)
	assert.Equal(t, 7, resp.Usage.TotalTokens)

	// 请求体必须带上完整历史与默认模型
	assert.Equal(t, "test-model", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.False(t, gotReq.Stream)
}

func TestCompletion_ErrorMapping(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		expectedCode types.ErrorCode
		retryable    bool
	}{
		{
			name:         "401 bad key",
			status:       http.StatusUnauthorized,
			body:         `{"error":{"message":"Incorrect API key"}}`,
			expectedCode: types.ErrUnauthorized,
		},
		{
			name:         "429 rate limited",
			status:       http.StatusTooManyRequests,
			body:         `{"error":{"message":"Rate limit reached"}}`,
			expectedCode: types.ErrRateLimited,
			retryable:    true,
		},
		{
			name:         "503 unavailable",
			status:       http.StatusServiceUnavailable,
			body:         `upstream down`,
			expectedCode: types.ErrUpstreamError,
			retryable:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p := newTestProvider(server.URL)
			_, err := p.Completion(t.Context(), &llm.ChatRequest{
				Messages: []types.Message{types.NewUserMessage("hi")},
			})
			require.Error(t, err)
			assert.Equal(t, tt.expectedCode, types.GetErrorCode(err))
			assert.Equal(t, tt.retryable, types.IsRetryable(err))
		})
	}
}

func TestCompletion_EmptyChoicesIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(providers.OpenAICompatResponse{ID: "x", Model: "m"})
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	_, err := p.Completion(t.Context(), &llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrMalformedResponse, types.GetErrorCode(err))
	assert.False(t, types.IsRetryable(err))
}

func TestCompletion_EmptyContentIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := providers.OpenAICompatResponse{
			ID: "x", Model: "m",
			Choices: []providers.OpenAICompatChoice{{
				Message: providers.OpenAICompatMessage{Role: "assistant", Content: ""},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	_, err := p.Completion(t.Context(), &llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrMalformedResponse, types.GetErrorCode(err))
}

func TestCompletion_UnreachableHostIsNetwork(t *testing.T) {
	p := newTestProvider("http://127.0.0.1:1")
	_, err := p.Completion(t.Context(), &llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.Error(t, err)
	code := types.GetErrorCode(err)
	assert.Contains(t, []types.ErrorCode{types.ErrNetwork, types.ErrUpstreamTimeout}, code)
	assert.True(t, types.IsRetryable(err))
}

func TestListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"id":"model-a","owned_by":"org"},{"id":"model-b"}]}`))
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	models, err := p.ListModels(t.Context())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "model-a", models[0].ID)
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":[]}`))
		}))
		defer server.Close()

		p := newTestProvider(server.URL)
		status, err := p.HealthCheck(t.Context())
		require.NoError(t, err)
		assert.True(t, status.Healthy)
	})

	t.Run("unhealthy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		p := newTestProvider(server.URL)
		status, err := p.HealthCheck(t.Context())
		require.Error(t, err)
		assert.False(t, status.Healthy)
	})
}

func TestInvalidBaseURLReturnsTypedError(t *testing.T) {
	// 无法构造请求也必须返回分类后的 *types.Error
	p := newTestProvider("http://bad host\n")

	_, err := p.ListModels(t.Context())
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}
