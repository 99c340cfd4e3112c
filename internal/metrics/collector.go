// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/duotalk/duotalk/conversation"
	"github.com/duotalk/duotalk/types"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。
// 实现 conversation.Observer，由回合循环在每次 Provider 调用和每轮结束时调用。
type Collector struct {
	// Provider 指标
	providerRequestsTotal   *prometheus.CounterVec
	providerRequestDuration *prometheus.HistogramVec
	retryAttemptsTotal      *prometheus.CounterVec
	tokensUsed              *prometheus.CounterVec

	// 会话指标
	turnsTotal       *prometheus.CounterVec
	stateTransitions *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// Provider 指标
	c.providerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.providerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Provider request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.retryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Extra attempts spent retrying provider calls",
		},
		[]string{"agent"},
	)

	c.tokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"agent", "type"}, // type: prompt, completion
	)

	// 会话指标
	c.turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by outcome",
		},
		[]string{"agent", "status"}, // status: completed, failed
	)

	c.stateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_state_transitions_total",
			Help:      "Total number of session state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🤖 Provider 指标记录
// =============================================================================

// RecordProviderRequest 记录一次 Provider 请求
func (c *Collector) RecordProviderRequest(provider, model, status string, duration time.Duration) {
	c.providerRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.providerRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// ProviderRequest 由回合循环在每次 Provider 调用（含重试）后触发
func (c *Collector) ProviderRequest(session, provider, model string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	c.RecordProviderRequest(provider, model, status, duration)
}

// =============================================================================
// 🎭 会话指标记录（conversation.Observer 实现）
// =============================================================================

// TurnCompleted 记录一次成功回合
func (c *Collector) TurnCompleted(session, agent string, attempts int, usage types.TokenUsage) {
	c.turnsTotal.WithLabelValues(agent, "completed").Inc()
	if attempts > 1 {
		c.retryAttemptsTotal.WithLabelValues(agent).Add(float64(attempts - 1))
	}
	c.tokensUsed.WithLabelValues(agent, "prompt").Add(float64(usage.PromptTokens))
	c.tokensUsed.WithLabelValues(agent, "completion").Add(float64(usage.CompletionTokens))
}

// TurnFailed 记录一次失败回合
func (c *Collector) TurnFailed(session, agent string, attempts int) {
	c.turnsTotal.WithLabelValues(agent, "failed").Inc()
	if attempts > 1 {
		c.retryAttemptsTotal.WithLabelValues(agent).Add(float64(attempts - 1))
	}
}

// StateChanged 记录会话状态转换
func (c *Collector) StateChanged(session string, from, to conversation.State) {
	c.stateTransitions.WithLabelValues(string(from), string(to)).Inc()
}

var _ conversation.Observer = (*Collector)(nil)
