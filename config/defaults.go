package config

import "time"

// DefaultConfig 返回带合理默认值的配置。
// YAML 文件和环境变量在此基础上覆盖。
func DefaultConfig() *Config {
	return &Config{
		Agent1: AgentConfig{
			Provider: "ollama",
			Name:     "agent1",
			Timeout:  60 * time.Second,
		},
		Agent2: AgentConfig{
			Provider: "ollama",
			Name:     "agent2",
			Timeout:  60 * time.Second,
		},
		Session: SessionConfig{
			MaxTurns:  10,
			TurnDelay: 1 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			OutputPaths: []string{"stderr"},
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Addr:      ":9090",
			Namespace: "duotalk",
		},
	}
}
