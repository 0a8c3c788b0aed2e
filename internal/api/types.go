package api

import (
	"time"

	"github.com/obsidianstack/trapbridge/internal/dispatch"
	"github.com/obsidianstack/trapbridge/pkg/types"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	// State is "ok" while the collector is connected or nothing is queued,
	// "degraded" when events are waiting on a disconnected collector and
	// "stopped" when the daemon is not running.
	State              string               `json:"state"`
	Collector          string               `json:"collector"`
	CollectorConnected bool                 `json:"collector_connected"`
	CollectorCert      *dispatch.CertStatus `json:"collector_cert,omitempty"`
	QueueDepth         int                  `json:"queue_depth"`
	RuleCount          int                  `json:"rule_count"`
	SourceCount        int                  `json:"source_count"`
	StartedAt          string               `json:"started_at,omitempty"` // RFC3339
	GeneratedAt        time.Time            `json:"generated_at"`
}

// RuleResponse is one entry of GET /api/v1/rules, in match order.
type RuleResponse struct {
	ID       string            `json:"id"`
	Trap     string            `json:"trap"`
	Args     map[string]string `json:"args"` // token -> identity
	Name     string            `json:"name"`
	Output   string            `json:"output"`
	Severity string            `json:"severity"`
	Handlers []string          `json:"handlers"`
}

// QueueResponse is the payload for GET /api/v1/queue.
type QueueResponse struct {
	Depth  int                 `json:"depth"`
	Events []*types.AlertEvent `json:"events"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
