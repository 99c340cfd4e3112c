// =============================================================================
// duotalk 主入口
// =============================================================================
// 让两个 AI Agent 自动对话的命令行工具
//
// 使用方法:
//
//	duotalk run                        # 运行一场对话
//	duotalk run --config config.yaml   # 指定配置文件
//	duotalk models                     # 列出两个 Provider 的可用模型
//	duotalk version                    # 显示版本信息
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/duotalk/duotalk/config"
	"github.com/duotalk/duotalk/conversation"
	"github.com/duotalk/duotalk/internal/metrics"
	"github.com/duotalk/duotalk/llm/factory"
	"github.com/duotalk/duotalk/llm/retry"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runConversation(os.Args[2:])
	case "models":
		runListModels(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🗣️ run 命令
// =============================================================================

func runConversation(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	prompt := fs.String("prompt", "", "Override the initial prompt")
	turns := fs.Int("turns", 0, "Override the number of turns")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if *prompt != "" {
		cfg.Session.InitialPrompt = *prompt
	}
	if *turns > 0 {
		cfg.Session.MaxTurns = *turns
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting duotalk",
		zap.String("version", Version),
		zap.String("agent1", cfg.Agent1.Name),
		zap.String("agent2", cfg.Agent2.Name),
	)

	// 构建两个 Provider
	p1, err := factory.New(cfg.Agent1.ToTypes(), logger)
	if err != nil {
		logger.Fatal("Failed to build provider for agent1", zap.Error(err))
	}
	p2, err := factory.New(cfg.Agent2.ToTypes(), logger)
	if err != nil {
		logger.Fatal("Failed to build provider for agent2", zap.Error(err))
	}

	opts := conversation.Options{
		Session: cfg.Session.ToTypes(),
		RetryPolicy: &retry.Policy{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Multiplier:   cfg.Retry.Multiplier,
			Jitter:       cfg.Retry.Jitter,
		},
		Logger: logger,
	}

	// 可选的 Prometheus 指标端点
	if cfg.Metrics.Enabled {
		collector := metrics.NewCollector(cfg.Metrics.Namespace, logger)
		opts.Observer = collector

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("metrics endpoint listening", zap.String("addr", cfg.Metrics.Addr))
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				logger.Warn("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	sess, err := conversation.NewSession(
		&conversation.Agent{Config: cfg.Agent1.ToTypes(), Provider: p1},
		&conversation.Agent{Config: cfg.Agent2.ToTypes(), Provider: p2},
		opts,
	)
	if err != nil {
		logger.Fatal("Failed to create session", zap.Error(err))
	}

	// SIGINT / SIGTERM → 协作式取消
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 事件流驱动的实时转写输出
	printerDone := make(chan struct{})
	go func() {
		defer close(printerDone)
		for evt := range sess.Events() {
			switch evt.Type {
			case conversation.EventMessageAppended:
				if evt.Message != nil {
					fmt.Printf("\n[%s] %s\n", evt.Agent, evt.Message.Content)
				}
			case conversation.EventStateChanged:
				logger.Debug("state changed",
					zap.String("from", string(evt.From)),
					zap.String("to", string(evt.To)),
				)
			}
		}
	}()

	state, runErr := sess.Run(ctx)
	<-printerDone

	switch state {
	case conversation.StateCompleted:
		logger.Info("conversation completed", zap.Int("turns", sess.Turns()))
	case conversation.StateCancelled:
		logger.Info("conversation cancelled", zap.Int("turns", sess.Turns()))
	case conversation.StateFailed:
		logger.Error("conversation failed", zap.Error(runErr))
		os.Exit(1)
	}
}

// =============================================================================
// 📚 models 命令
// =============================================================================

func runListModels(args []string) {
	fs := flag.NewFlagSet("models", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	for _, agent := range []config.AgentConfig{cfg.Agent1, cfg.Agent2} {
		tc := agent.ToTypes()
		if err := tc.Validate(); err != nil {
			fmt.Printf("%s (%s): skipped: %v\n", agent.Name, agent.Provider, err)
			continue
		}

		p, err := factory.New(tc, logger)
		if err != nil {
			fmt.Printf("%s (%s): %v\n", agent.Name, agent.Provider, err)
			continue
		}

		models, err := p.ListModels(ctx)
		if err != nil {
			fmt.Printf("%s (%s): unreachable: %v\n", agent.Name, agent.Provider, err)
			continue
		}

		fmt.Printf("%s (%s):\n", agent.Name, agent.Provider)
		for _, m := range models {
			fmt.Printf("  %s\n", m.ID)
		}
	}
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("duotalk %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`duotalk - let two AI agents talk to each other

Usage:
  duotalk <command> [options]

Commands:
  run       Run a two-agent conversation
  models    List available models for both configured providers
  version   Show version information
  help      Show this help message

Options for 'run':
  --config <path>   Path to configuration file (YAML)
  --prompt <text>   Override the initial prompt
  --turns <n>       Override the number of turns

Examples:
  duotalk run
  duotalk run --config duotalk.yaml --turns 6
  duotalk run --prompt "Debate the best sorting algorithm"
  duotalk models --config duotalk.yaml
  duotalk version`)
}

// =============================================================================
// 🔧 配置与日志初始化
// =============================================================================

func loadConfig(path string) *config.Config {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	// 构建配置
	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	// 构建 logger
	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
