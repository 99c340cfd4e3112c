package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/duotalk/duotalk/internal/tlsutil"
	"github.com/duotalk/duotalk/llm"
	"github.com/duotalk/duotalk/providers"
	"github.com/duotalk/duotalk/types"
)

// OllamaProvider 实现本地 Ollama 的聊天适配器。
// Ollama 使用自己的原生 API（/api/chat），不需要认证，
// 默认监听 http://localhost:11434。
type OllamaProvider struct {
	cfg    providers.OllamaConfig
	client *http.Client
	logger *zap.Logger
}

// NewOllamaProvider 创建 Ollama 适配器。
func NewOllamaProvider(cfg providers.OllamaConfig, logger *zap.Logger) *OllamaProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second // 本地推理可能很慢
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OllamaProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(timeout),
		logger: logger,
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float32  `json:"temperature,omitempty"`
	TopP        float32  `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	CreatedAt       string        `json:"created_at"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
}

// HealthCheck 通过 /api/tags 探测本地服务是否在线。
func (p *OllamaProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	endpoint := fmt.Sprintf("%s/api/tags", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("failed to create request: %v", err)).
			WithProvider(p.Name())
	}

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, providers.MapTransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readOllamaErrMsg(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency}, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// ListModels 返回本地已拉取的模型列表（/api/tags）。
func (p *OllamaProvider) ListModels(ctx context.Context) ([]llm.Model, error) {
	endpoint := fmt.Sprintf("%s/api/tags", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("failed to create request: %v", err)).
			WithProvider(p.Name())
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.MapTransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readOllamaErrMsg(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var tagsResp struct {
		Models []struct {
			Name       string `json:"name"`
			ModifiedAt string `json:"modified_at"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tagsResp); err != nil {
		return nil, types.NewError(types.ErrMalformedResponse, err.Error()).
			WithHTTPStatus(resp.StatusCode).WithProvider(p.Name())
	}

	models := make([]llm.Model, 0, len(tagsResp.Models))
	for _, m := range tagsResp.Models {
		models = append(models, llm.Model{ID: m.Name})
	}
	return models, nil
}

// Completion 发起一次非流式聊天请求（stream 必须显式设为 false）。
func (p *OllamaProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	messages := make([]ollamaMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, ollamaMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	body := ollamaRequest{
		Model:    chooseOllamaModel(req, p.cfg.Model),
		Messages: messages,
		Stream:   false,
	}
	if req.Temperature != 0 || req.TopP != 0 || req.MaxTokens != 0 || len(req.Stop) > 0 {
		body.Options = &ollamaOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			NumPredict:  req.MaxTokens,
			Stop:        req.Stop,
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("failed to marshal request: %v", err)).
			WithProvider(p.Name())
	}
	endpoint := fmt.Sprintf("%s/api/chat", strings.TrimRight(p.cfg.BaseURL, "/"))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("failed to create request: %v", err)).
			WithProvider(p.Name())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.MapTransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readOllamaErrMsg(resp.Body)
		// 404 通常意味着模型没拉取
		if resp.StatusCode == http.StatusNotFound {
			return nil, types.NewError(types.ErrInvalidConfig,
				fmt.Sprintf("model not found, pull it first: %s", msg)).
				WithHTTPStatus(resp.StatusCode).WithProvider(p.Name())
		}
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var ollamaResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, types.NewError(types.ErrMalformedResponse, err.Error()).
			WithHTTPStatus(resp.StatusCode).WithProvider(p.Name())
	}

	result := toChatResponse(ollamaResp, p.Name())
	if err := llm.ValidateReply(result, p.Name()); err != nil {
		return nil, err
	}
	return result, nil
}

func toChatResponse(or ollamaResponse, provider string) *llm.ChatResponse {
	return &llm.ChatResponse{
		Provider: provider,
		Model:    or.Model,
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: or.DoneReason,
			Message: types.Message{
				Role:    types.RoleAssistant,
				Content: or.Message.Content,
			},
		}},
		Usage: types.TokenUsage{
			PromptTokens:     or.PromptEvalCount,
			CompletionTokens: or.EvalCount,
			TotalTokens:      or.PromptEvalCount + or.EvalCount,
		},
	}
}

func readOllamaErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error != "" {
		return errResp.Error
	}
	return string(data)
}

func chooseOllamaModel(req *llm.ChatRequest, defaultModel string) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	if defaultModel != "" {
		return defaultModel
	}
	return "llama3.2"
}
