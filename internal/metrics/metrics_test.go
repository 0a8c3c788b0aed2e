package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/obsidianstack/trapbridge/internal/dispatch"
)

var _ dispatch.Recorder = (*Metrics)(nil)

// family returns the gathered metric family with the given full name.
func family(t *testing.T, m *Metrics, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %q not gathered", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestCounters(t *testing.T) {
	m := New(nil)
	m.TrapReceived()
	m.TrapReceived()
	m.TrapUnmatched()
	m.TransformFailed()
	m.EventEnqueued()

	cases := map[string]float64{
		"trapbridge_traps_received_total":   2,
		"trapbridge_traps_unmatched_total":  1,
		"trapbridge_transform_errors_total": 1,
		"trapbridge_events_enqueued_total":  1,
	}
	for name, want := range cases {
		got := family(t, m, name).GetMetric()[0].GetCounter().GetValue()
		if got != want {
			t.Errorf("%s: got %v, want %v", name, got, want)
		}
	}
}

func TestRecorder(t *testing.T) {
	m := New(nil)
	m.DispatchFailed(dispatch.ReasonConnect)
	m.DispatchFailed(dispatch.ReasonConnect)
	m.DispatchFailed(dispatch.ReasonAck)
	m.EventDelivered(250 * time.Millisecond)
	m.CollectorConnected(true)

	byReason := map[string]float64{}
	for _, metric := range family(t, m, "trapbridge_dispatch_failures_total").GetMetric() {
		byReason[labelValue(metric, "reason")] = metric.GetCounter().GetValue()
	}
	if byReason["connect"] != 2 || byReason["ack"] != 1 {
		t.Errorf("dispatch failures by reason: got %v", byReason)
	}

	h := family(t, m, "trapbridge_delivery_latency_seconds").GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 1 {
		t.Errorf("latency samples: got %d, want 1", h.GetSampleCount())
	}
	if up := family(t, m, "trapbridge_collector_connected").GetMetric()[0].GetGauge().GetValue(); up != 1 {
		t.Errorf("collector_connected: got %v, want 1", up)
	}

	m.CollectorConnected(false)
	if up := family(t, m, "trapbridge_collector_connected").GetMetric()[0].GetGauge().GetValue(); up != 0 {
		t.Errorf("collector_connected after disconnect: got %v, want 0", up)
	}
}

func TestQueueDepthSampledOnGather(t *testing.T) {
	depth := 3
	m := New(func() int { return depth })

	if got := family(t, m, "trapbridge_queue_depth").GetMetric()[0].GetGauge().GetValue(); got != 3 {
		t.Errorf("queue_depth: got %v, want 3", got)
	}
	depth = 7
	if got := family(t, m, "trapbridge_queue_depth").GetMetric()[0].GetGauge().GetValue(); got != 7 {
		t.Errorf("queue_depth after change: got %v, want 7", got)
	}
}

func TestRulesAndReloads(t *testing.T) {
	m := New(nil)
	m.SetRules(12)
	m.RuleReload(true)
	m.RuleReload(false)
	m.RuleReload(false)

	if got := family(t, m, "trapbridge_rules_loaded").GetMetric()[0].GetGauge().GetValue(); got != 12 {
		t.Errorf("rules_loaded: got %v, want 12", got)
	}
	results := map[string]float64{}
	for _, metric := range family(t, m, "trapbridge_rule_reloads_total").GetMetric() {
		results[labelValue(metric, "result")] = metric.GetCounter().GetValue()
	}
	if results["success"] != 1 || results["failure"] != 2 {
		t.Errorf("rule reloads: got %v", results)
	}
}

func TestHandler(t *testing.T) {
	m := New(func() int { return 0 })
	m.TrapRejected("community")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	for _, want := range []string{
		`trapbridge_traps_rejected_total{reason="community"} 1`,
		"trapbridge_queue_depth 0",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
