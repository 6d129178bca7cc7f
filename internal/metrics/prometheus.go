package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"concierge/pkg/logger"
)

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concierge_turns_total",
		Help: "Processed conversation turns by thread and outcome",
	}, []string{"workspace_id", "thread", "outcome"})

	turnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "concierge_turn_duration_seconds",
		Help:    "End-to-end turn processing latency",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"workspace_id", "thread"})

	toolExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concierge_tool_executions_total",
		Help: "Tool executions by tool name and result",
	}, []string{"tool", "success"})

	toolExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "concierge_tool_execution_duration_seconds",
		Help:    "Tool execution latency",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
	}, []string{"tool"})

	providerTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concierge_provider_tokens_total",
		Help: "Reasoning provider tokens consumed",
	}, []string{"workspace_id", "kind"})

	handoffsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concierge_handoffs_total",
		Help: "Escalations to human operators by trigger",
	}, []string{"workspace_id", "trigger"})

	memoryExtractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concierge_memory_extractions_total",
		Help: "Long-term memory extraction attempts by result",
	}, []string{"result"})
)

// RecordTurn tracks one completed turn
func RecordTurn(workspaceID, thread, outcome string, duration time.Duration) {
	turnsTotal.WithLabelValues(workspaceID, thread, outcome).Inc()
	turnDuration.WithLabelValues(workspaceID, thread).Observe(duration.Seconds())
}

// RecordToolExecution tracks one tool call
func RecordToolExecution(tool string, success bool, duration time.Duration) {
	label := "false"
	if success {
		label = "true"
	}
	toolExecutionsTotal.WithLabelValues(tool, label).Inc()
	toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordTokens tracks provider token usage for a turn
func RecordTokens(workspaceID string, promptTokens, completionTokens int) {
	providerTokensTotal.WithLabelValues(workspaceID, "prompt").Add(float64(promptTokens))
	providerTokensTotal.WithLabelValues(workspaceID, "completion").Add(float64(completionTokens))
}

// RecordHandoff tracks one escalation
func RecordHandoff(workspaceID, trigger string) {
	handoffsTotal.WithLabelValues(workspaceID, trigger).Inc()
}

// RecordMemoryExtraction tracks one extraction attempt
func RecordMemoryExtraction(result string) {
	memoryExtractionsTotal.WithLabelValues(result).Inc()
}

// Server exposes the metrics endpoint
type Server struct {
	srv *http.Server
	log *logger.Logger
}

// NewServer creates the metrics HTTP server
func NewServer(port string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		srv: &http.Server{
			Addr:    ":" + port,
			Handler: mux,
		},
		log: logger.Get().With("component", "metrics_server"),
	}
}

// Start serves metrics until the listener fails or the server is shut down
func (s *Server) Start() {
	s.log.Infow("Metrics server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Errorw("Metrics server stopped", "error", err)
	}
}

// Shutdown stops the metrics server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
