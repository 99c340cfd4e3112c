// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持固定响应、脚本化响应序列与错误注入场景。
package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/duotalk/duotalk/llm"
	"github.com/duotalk/duotalk/types"
)

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.RWMutex

	// 响应配置
	name      string
	response  string
	script    []string // 脚本化响应序列，按调用次序消费
	models    []llm.Model
	err       error
	errScript map[int]error // 指定第 N 次调用（从 1 开始）返回的错误

	// Token 使用统计
	promptTokens     int
	completionTokens int

	// 调用记录
	calls          []MockProviderCall
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	// 行为控制
	delay     time.Duration
	failAfter int // 在第 N 次成功调用后开始失败，0 表示不启用
	callCount int
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request  *llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name:             "mock",
		response:         "Mock response",
		errScript:        map[int]error{},
		promptTokens:     10,
		completionTokens: 20,
	}
}

// WithName 设置 Provider 名称
func (m *MockProvider) WithName(name string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithScript 设置脚本化响应序列，依次返回；耗尽后回落到固定响应
func (m *MockProvider) WithScript(responses ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = responses
	return m
}

// WithError 设置所有调用都返回的错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithErrorOnCall 设置第 N 次调用（从 1 开始）返回的错误
func (m *MockProvider) WithErrorOnCall(n int, err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errScript[n] = err
	return m
}

// WithFailAfter 设置在第 N 次成功调用后开始失败
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithTokenUsage 设置 Token 使用量
func (m *MockProvider) WithTokenUsage(prompt, completion int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens = prompt
	m.completionTokens = completion
	return m
}

// WithDelay 设置响应延迟
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithModels 设置 ListModels 返回的模型列表
func (m *MockProvider) WithModels(ids ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models = m.models[:0]
	for _, id := range ids {
		m.models = append(m.models, llm.Model{ID: id})
	}
	return m
}

// WithCompletionFunc 完全接管 Completion 行为
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// --- llm.Provider 实现 ---

func (m *MockProvider) Name() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.name
}

// Completion 返回配置好的响应或注入的错误，并记录调用。
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.callCount++
	call := m.callCount
	fn := m.completionFunc
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if fn != nil {
		resp, err := fn(ctx, req)
		m.record(req, resp, err)
		return resp, err
	}

	m.mu.Lock()
	var err error
	switch {
	case m.err != nil:
		err = m.err
	case m.errScript[call] != nil:
		err = m.errScript[call]
	case m.failAfter > 0 && call > m.failAfter:
		err = types.NewError(types.ErrNetwork, "mock: injected failure").
			WithRetryable(true).WithProvider(m.name)
	}
	if err != nil {
		m.mu.Unlock()
		m.record(req, nil, err)
		return nil, err
	}

	content := m.response
	if len(m.script) > 0 {
		content = m.script[0]
		m.script = m.script[1:]
	}
	resp := &llm.ChatResponse{
		ID:       fmt.Sprintf("mock-%d", call),
		Provider: m.name,
		Model:    req.Model,
		Choices: []llm.ChatChoice{{
			Message:      types.NewAssistantMessage(content),
			FinishReason: "stop",
		}},
		Usage: types.TokenUsage{
			PromptTokens:     m.promptTokens,
			CompletionTokens: m.completionTokens,
			TotalTokens:      m.promptTokens + m.completionTokens,
		},
		CreatedAt: time.Now(),
	}
	m.mu.Unlock()

	m.record(req, resp, nil)
	return resp, nil
}

// ListModels 返回配置的模型列表。
func (m *MockProvider) ListModels(ctx context.Context) ([]llm.Model, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]llm.Model, len(m.models))
	copy(out, m.models)
	return out, nil
}

// HealthCheck 总是健康，除非设置了错误。
func (m *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return &llm.HealthStatus{Healthy: false}, m.err
	}
	return &llm.HealthStatus{Healthy: true}, nil
}

// --- 调用记录 ---

func (m *MockProvider) record(req *llm.ChatRequest, resp *llm.ChatResponse, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockProviderCall{Request: req, Response: resp, Error: err})
}

// CallCount 返回 Completion 的调用次数
func (m *MockProvider) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount
}

// Calls 返回调用记录的副本
func (m *MockProvider) Calls() []MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MockProviderCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Reset 清空调用记录和计数
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.callCount = 0
}

var _ llm.Provider = (*MockProvider)(nil)
