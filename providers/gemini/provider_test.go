package gemini

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

func newTestProvider(baseURL string) *GeminiProvider {
	return NewGeminiProvider(providers.GeminiConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  "gm-test",
			BaseURL: baseURL,
			Model:   "gemini-2.0-flash",
			Timeout: 5 * time.Second,
		},
	}, zap.NewNop())
}

func TestCompletion_Success(t *testing.T) {
	var gotReq geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 模型名在路径里
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "gm-test", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		resp := geminiResponse{
			Candidates: []geminiCandidate{{
				Content: geminiContent{
					Role:  "model",
					Parts: []geminiPart{{Text: "gemini says hi"}},
				},
				FinishReason: "STOP",
			}},
			UsageMetadata: &geminiUsage{PromptTokenCount: 9, CandidatesTokenCount: 3, TotalTokenCount: 12},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	resp, err := p.Completion(t.Context(), &llm.ChatRequest{
		Messages: []types.Message{
			types.NewSystemMessage("be helpful"),
			types.NewUserMessage("hello"),
			types.NewAssistantMessage("hey"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "gemini says hi", resp.FirstContent())
	assert.Equal(t, 12, resp.Usage.TotalTokens)

	// system 走 systemInstruction；assistant 改名 model
	require.NotNil(t, gotReq.SystemInstruction)
	assert.Equal(t, "be helpful", gotReq.SystemInstruction.Parts[0].Text)
	require.Len(t, gotReq.Contents, 2)
	assert.Equal(t, "user", gotReq.Contents[0].Role)
	assert.Equal(t, "model", gotReq.Contents[1].Role)
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
			name:         "403 forbidden",
			status:       http.StatusForbidden,
			body:         `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`,
			expectedCode: types.ErrForbidden,
		},
		{
			name:         "429 resource exhausted",
			status:       http.StatusTooManyRequests,
			body:         `{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`,
			expectedCode: types.ErrRateLimited,
			retryable:    true,
		},
		{
			name:         "503 unavailable",
			status:       http.StatusServiceUnavailable,
			body:         `{"error":{"code":503,"message":"The service is currently unavailable","status":"UNAVAILABLE"}}`,
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

func TestCompletion_NoCandidatesIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(geminiResponse{})
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	_, err := p.Completion(t.Context(), &llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrMalformedResponse, types.GetErrorCode(err))
}

func TestListModels_StripsPrefix(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"models/gemini-2.0-flash","displayName":"Gemini 2.0 Flash"},{"name":"models/gemini-1.5-pro"}]}`))
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	models, err := p.ListModels(t.Context())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "gemini-2.0-flash", models[0].ID)
	assert.Equal(t, "gemini-1.5-pro", models[1].ID)
}

func TestConvertToGeminiContents(t *testing.T) {
	system, contents := convertToGeminiContents([]types.Message{
		types.NewSystemMessage("sys"),
		types.NewUserMessage("u"),
		types.NewAssistantMessage("a"),
	})

	require.NotNil(t, system)
	assert.Equal(t, "sys", system.Parts[0].Text)
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "a", contents[1].Parts[0].Text)
}

func TestInvalidBaseURLReturnsTypedError(t *testing.T) {
	// 无法构造请求也必须返回分类后的 *types.Error
	p := newTestProvider("http://bad host\n")

	_, err := p.ListModels(t.Context())
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}
