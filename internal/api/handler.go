package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/obsidianstack/trapbridge/internal/daemon"
	"github.com/obsidianstack/trapbridge/internal/rules"
	"github.com/obsidianstack/trapbridge/internal/store"
	"github.com/obsidianstack/trapbridge/pkg/types"
)

// Backend is the daemon state the API reads. *daemon.Coordinator implements it.
type Backend interface {
	Status() daemon.Status
	Rules() *rules.RuleSet
	Pending() []*types.AlertEvent
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	backend Backend
	store   *store.Store
	mux     *http.ServeMux
}

// New creates a Handler and registers all routes. st may be nil, in which
// case the source endpoints return empty results.
func New(b Backend, st *store.Store) http.Handler {
	h := &Handler{backend: b, store: st, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/rules", h.listRules)
	h.mux.HandleFunc("/api/v1/queue", h.queue)
	h.mux.HandleFunc("/api/v1/sources", h.listSources)
	h.mux.HandleFunc("/api/v1/sources/", h.getSource) // subtree, extracts {address}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	st := h.backend.Status()
	resp := HealthResponse{
		State:              healthState(st),
		Collector:          st.Collector,
		CollectorConnected: st.CollectorConnected,
		CollectorCert:      st.CollectorCert,
		QueueDepth:         st.QueueDepth,
		RuleCount:          st.Rules,
		SourceCount:        st.Sources,
		GeneratedAt:        time.Now().UTC(),
	}
	if !st.StartedAt.IsZero() {
		resp.StartedAt = st.StartedAt.UTC().Format(time.RFC3339)
	}
	jsonResp(w, http.StatusOK, resp)
}

// listRules returns GET /api/v1/rules, in match order.
func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rs := h.backend.Rules().Rules()
	out := make([]RuleResponse, 0, len(rs))
	for _, rule := range rs {
		out = append(out, toRuleResponse(rule))
	}
	jsonResp(w, http.StatusOK, out)
}

// queue returns GET /api/v1/queue, oldest event first.
func (h *Handler) queue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	pending := h.backend.Pending()
	if pending == nil {
		pending = []*types.AlertEvent{}
	}
	jsonResp(w, http.StatusOK, QueueResponse{Depth: len(pending), Events: pending})
}

// listSources returns GET /api/v1/sources.
func (h *Handler) listSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.store == nil {
		jsonResp(w, http.StatusOK, []store.Source{})
		return
	}
	jsonResp(w, http.StatusOK, h.store.List())
}

// getSource returns GET /api/v1/sources/{address}.
func (h *Handler) getSource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	addr := strings.TrimPrefix(r.URL.Path, "/api/v1/sources/")
	if addr == "" {
		h.listSources(w, r)
		return
	}
	if h.store == nil {
		jsonErr(w, http.StatusNotFound, "source not found")
		return
	}

	src, ok := h.store.Get(addr)
	if !ok {
		jsonErr(w, http.StatusNotFound, "source not found")
		return
	}
	jsonResp(w, http.StatusOK, src)
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

func healthState(st daemon.Status) string {
	switch {
	case !st.Running:
		return "stopped"
	case !st.CollectorConnected && st.QueueDepth > 0:
		return "degraded"
	default:
		return "ok"
	}
}

func toRuleResponse(r *rules.Rule) RuleResponse {
	args := make(map[string]string, len(r.Args))
	for sym, token := range r.Args {
		args[token] = sym.String()
	}
	handlers := r.Handlers
	if handlers == nil {
		handlers = []string{}
	}
	return RuleResponse{
		ID:       r.ID,
		Trap:     r.Trap.String(),
		Args:     args,
		Name:     r.NameTemplate,
		Output:   r.OutputTemplate,
		Severity: r.Severity.String(),
		Handlers: handlers,
	}
}
