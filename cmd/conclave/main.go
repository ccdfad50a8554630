// Command conclave boots the orchestrator: it loads configuration, wires the
// configured LLM vendor backend behind the rate-limited adapter, and runs
// until it receives SIGINT/SIGTERM.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"conclave/pkg/config"
	"conclave/pkg/events"
	"conclave/pkg/eventlog"
	"conclave/pkg/llm"
	"conclave/pkg/llm/provider/anthropic"
	"conclave/pkg/llm/provider/google"
	"conclave/pkg/llm/provider/ollama"
	"conclave/pkg/llm/provider/openai"
	"conclave/pkg/logx"
	"conclave/pkg/memory"
	"conclave/pkg/metrics"
	"conclave/pkg/orchestrator"
	"conclave/pkg/queue"
	"conclave/pkg/ratelimit"
)

func main() {
	var configPath string
	var logDir string
	var metricsAddr string
	flag.StringVar(&configPath, "config", "conclave.yaml", "Path to the orchestrator's YAML configuration file")
	flag.StringVar(&logDir, "logdir", "logs", "Directory for the daily-rotated event audit log")
	flag.StringVar(&metricsAddr, "metrics-addr", ":9090", "Listen address for the Prometheus /metrics endpoint")
	flag.Parse()

	logger := logx.NewLogger("conclave")

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load configuration from %s: %v", configPath, err)
		os.Exit(1)
	}

	backend, err := buildBackend(cfg)
	if err != nil {
		logger.Error("failed to build LLM backend: %v", err)
		os.Exit(1)
	}

	limits := ratelimit.NewPair(
		ratelimit.Config{MaxRequests: cfg.RateLimit.PerMinuteMaxRequests, Window: time.Minute, MaxRetries: cfg.RateLimit.MaxRetries, RetryDelay: millis(cfg.RateLimit.RetryDelayMs)},
		ratelimit.Config{MaxRequests: cfg.RateLimit.PerDayMaxRequests, Window: 24 * time.Hour, MaxRetries: cfg.RateLimit.MaxRetries, RetryDelay: millis(cfg.RateLimit.RetryDelayMs)},
		logx.NewLogger("ratelimit"),
	)
	adapter := llm.NewAdapter(backend, limits, logx.NewLogger("llm"))

	memCfg := memory.Config{
		Path:           cfg.Orchestrator.MemoryPath,
		SoftMaxEntries: cfg.Memory.SoftMaxEntries,
		MaxAge:         millis(cfg.Memory.MaxAgeMs),
		AutoFlush:      millis(cfg.Memory.AutoFlushMs),
		ContextLimit:   cfg.Memory.ContextLimit,
		SummaryChars:   cfg.Memory.SummaryChars,
	}
	store := memory.New(memCfg, logx.NewLogger("memory"))
	store.Initialize()

	elog, err := eventlog.NewWriter(logDir)
	if err != nil {
		logger.Error("failed to open event log: %v", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := elog.Close(); closeErr != nil {
			logger.Warn("failed to close event log: %v", closeErr)
		}
	}()

	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(registry)
	go serveMetrics(metricsAddr, registry, logger)

	bus := events.New()
	bus.OnAgentFailed(func(f events.AgentFailure) {
		logger.Warn("agent %s failed on task %s: %v", f.AgentID, f.TaskID, f.Err)
	})

	orch := orchestrator.New(orchestrator.Config{
		MaxAgents:       cfg.Orchestrator.MaxAgents,
		AgentGrace:      millis(cfg.Orchestrator.AgentGraceMs),
		ShutdownTimeout: millis(cfg.Orchestrator.ShutdownTimeMs),
	}, queue.New(), store, adapter, bus, elog, recorder, logx.NewLogger("orchestrator"))

	if err := orch.Start(); err != nil {
		logger.Error("failed to start orchestrator: %v", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal %v, shutting down", sig)

	if err := orch.Stop(); err != nil {
		logger.Error("shutdown did not complete cleanly: %v", err)
		if flushErr := store.Flush(); flushErr != nil {
			logger.Warn("final memory flush failed: %v", flushErr)
		}
		os.Exit(1)
	}
	if err := store.Flush(); err != nil {
		logger.Warn("final memory flush failed: %v", err)
	}
	logger.Info("shutdown complete")
}

// buildBackend selects and constructs the single configured vendor backend.
// Only the first entry in cfg.Models is used; multi-model routing is left
// to a future revision.
func buildBackend(cfg config.Config) (llm.Backend, error) {
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("no models configured")
	}
	m := cfg.Models[0]
	switch m.Backend {
	case "anthropic":
		return anthropic.New(m.APIKey, m.Model), nil
	case "openai":
		return openai.New(m.APIKey, m.Model), nil
	case "ollama":
		return ollama.New(m.HostURL, m.Model), nil
	case "google":
		return google.New(m.APIKey, m.Model), nil
	default:
		return nil, fmt.Errorf("unrecognized backend %q", m.Backend)
	}
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *logx.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil { //nolint:gosec // internal metrics endpoint, no externally-facing timeouts needed
		logger.Warn("metrics server stopped: %v", err)
	}
}
