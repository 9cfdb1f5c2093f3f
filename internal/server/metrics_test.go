package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/studyhall-ai/studyhall-go/internal/orchestrator"
)

// newMetricsTestServer builds a Server backed by a fresh isolated registry so
// tests do not pollute prometheus.DefaultRegisterer.
func newMetricsTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s := &Server{
		answerer: &fakeAnswerer{result: &orchestrator.Result{}},
		cfg: &Config{
			QueryTimeout:    time.Minute,
			MetricsRegistry: reg,
			MetricsGatherer: reg,
		},
		metrics: newServerMetrics(reg),
	}
	return s, reg
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	_, reg := newMetricsTestServer(t)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

// Test_Metrics_QueryCounterIncremented verifies a handled query records the
// outcome counter in the instance registry.
func Test_Metrics_QueryCounterIncremented(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	w := postQuery(t, s, `{"query":"What is MCP?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("query failed: %d", w.Code)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	found := false
	for _, mf := range mfs {
		if mf.GetName() == "studyhall_query_requests_total" {
			for _, m := range mf.GetMetric() {
				for _, lp := range m.GetLabel() {
					if lp.GetName() == "outcome" && lp.GetValue() == "ok" {
						if m.GetCounter().GetValue() != 1 {
							t.Errorf("want counter=1, got %v", m.GetCounter().GetValue())
						}
						found = true
					}
				}
			}
		}
	}
	if !found {
		t.Error("studyhall_query_requests_total{outcome=\"ok\"} not found in gathered metrics")
	}
}

// Test_Metrics_ErrorOutcomeRecorded verifies that a failed query increments
// the "error" outcome rather than "ok".
func Test_Metrics_ErrorOutcomeRecorded(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)
	s.answerer = &fakeAnswerer{err: http.ErrServerClosed}

	w := postQuery(t, s, `{"query":"boom"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("want 502, got %d", w.Code)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	for _, mf := range mfs {
		if mf.GetName() != "studyhall_query_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "outcome" && lp.GetValue() == "error" {
					if m.GetCounter().GetValue() != 1 {
						t.Errorf("want error counter=1, got %v", m.GetCounter().GetValue())
					}
					return
				}
			}
		}
	}
	t.Error("studyhall_query_requests_total{outcome=\"error\"} not found in gathered metrics")
}

// Test_Metrics_InFlightGauge verifies the in-flight gauge moves.
func Test_Metrics_InFlightGauge(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	s.metrics.queryInFlight.Inc()
	s.metrics.queryInFlight.Inc()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	for _, mf := range mfs {
		if mf.GetName() == "studyhall_query_in_flight" {
			v := mf.GetMetric()[0].GetGauge().GetValue()
			if v != 2 {
				t.Errorf("want in_flight=2, got %v", v)
			}
			return
		}
	}
	t.Error("studyhall_query_in_flight not found in gathered metrics")
}
