package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/studyhall-ai/studyhall-go/internal/orchestrator"
	"github.com/studyhall-ai/studyhall-go/internal/tools"
)

// fakeAnswerer implements the answerer interface for tests.
type fakeAnswerer struct {
	// result is returned on success.
	result *orchestrator.Result
	// err is returned instead of result when non-nil.
	err error
	// gotQuery and gotSession record the last call's arguments.
	gotQuery   string
	gotSession string
}

func (f *fakeAnswerer) Answer(_ context.Context, query, sessionID string) (*orchestrator.Result, error) {
	f.gotQuery = query
	f.gotSession = sessionID
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeCatalog implements the courseCatalog interface for tests.
type fakeCatalog struct {
	titles []string
	err    error
}

func (f *fakeCatalog) CourseTitles(_ context.Context) ([]string, error) {
	return f.titles, f.err
}

// newTestServer builds a minimal *Server for handler tests. Each call gets a
// fresh metrics registry so tests stay hermetic.
func newTestServer() *Server {
	return newTestServerWith(&fakeAnswerer{result: &orchestrator.Result{}}, &fakeCatalog{})
}

func newTestServerWith(a answerer, catalog courseCatalog) *Server {
	reg := prometheus.NewRegistry()
	return &Server{
		answerer: a,
		catalog:  catalog,
		cfg: &Config{
			QueryTimeout:    time.Minute,
			MetricsRegistry: reg,
			MetricsGatherer: reg,
		},
		metrics: newServerMetrics(reg),
	}
}

func postQuery(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
	w := httptest.NewRecorder()
	s.handleQuery(w, req)
	return w
}

// TestHandleQuery_OK verifies a successful query returns the answer, its
// sources, and the session ID as JSON.
func TestHandleQuery_OK(t *testing.T) {
	t.Parallel()

	fake := &fakeAnswerer{result: &orchestrator.Result{
		Answer: "MCP stands for Model Context Protocol.",
		Sources: []tools.Citation{
			{Text: "MCP Basics - Lesson 1", Link: "https://example.com/lesson/1"},
		},
		SessionID: "session_abc",
	}}
	s := newTestServerWith(fake, &fakeCatalog{})

	w := postQuery(t, s, `{"query":"What is MCP?","session_id":"session_abc"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if fake.gotQuery != "What is MCP?" {
		t.Errorf("query passed through: got %q", fake.gotQuery)
	}
	if fake.gotSession != "session_abc" {
		t.Errorf("session passed through: got %q", fake.gotSession)
	}

	var resp queryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "MCP stands for Model Context Protocol." {
		t.Errorf("answer: got %q", resp.Answer)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Link != "https://example.com/lesson/1" {
		t.Errorf("sources: got %+v", resp.Sources)
	}
	if resp.SessionID != "session_abc" {
		t.Errorf("session_id: got %q", resp.SessionID)
	}
}

// TestHandleQuery_NilSourcesEncodedAsEmptyArray verifies the sources field is
// never JSON null, even when the answer used no search.
func TestHandleQuery_NilSourcesEncodedAsEmptyArray(t *testing.T) {
	t.Parallel()

	fake := &fakeAnswerer{result: &orchestrator.Result{
		Answer:    "Hello!",
		SessionID: "session_x",
	}}
	s := newTestServerWith(fake, &fakeCatalog{})

	w := postQuery(t, s, `{"query":"hi"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"sources":[]`) {
		t.Errorf("expected empty sources array, got body: %s", w.Body.String())
	}
}

// TestHandleQuery_MissingQuery verifies an empty or whitespace-only query is
// rejected with 400.
func TestHandleQuery_MissingQuery(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	for _, body := range []string{`{}`, `{"query":""}`, `{"query":"   "}`} {
		w := postQuery(t, s, body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, w.Code)
		}
	}
}

// TestHandleQuery_InvalidJSON verifies a malformed body is rejected with 400.
func TestHandleQuery_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	w := postQuery(t, s, `{"query":`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// TestHandleQuery_AnswererError verifies a failed query returns 502 without
// leaking the internal error to the client.
func TestHandleQuery_AnswererError(t *testing.T) {
	t.Parallel()

	fake := &fakeAnswerer{err: errors.New("model backend unreachable")}
	s := newTestServerWith(fake, &fakeCatalog{})

	w := postQuery(t, s, `{"query":"What is MCP?"}`)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "unreachable") {
		t.Errorf("internal error leaked to client: %s", w.Body.String())
	}
}

// TestHandleQuery_Timeout verifies a deadline-exceeded query returns 504.
func TestHandleQuery_Timeout(t *testing.T) {
	t.Parallel()

	fake := &fakeAnswerer{err: context.DeadlineExceeded}
	s := newTestServerWith(fake, &fakeCatalog{})

	w := postQuery(t, s, `{"query":"slow one"}`)

	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", w.Code)
	}
}

// TestHandleCourses_OK verifies GET /api/courses returns the titles and count.
func TestHandleCourses_OK(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{titles: []string{"MCP Basics", "Prompt Engineering"}}
	s := newTestServerWith(&fakeAnswerer{result: &orchestrator.Result{}}, catalog)

	req := httptest.NewRequest(http.MethodGet, "/api/courses", nil)
	w := httptest.NewRecorder()
	s.handleCourses(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp coursesResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalCourses != 2 {
		t.Errorf("total_courses: expected 2, got %d", resp.TotalCourses)
	}
	if len(resp.CourseTitles) != 2 || resp.CourseTitles[0] != "MCP Basics" {
		t.Errorf("course_titles: got %v", resp.CourseTitles)
	}
}

// TestHandleCourses_Empty verifies an empty catalog encodes as an empty array.
func TestHandleCourses_Empty(t *testing.T) {
	t.Parallel()

	s := newTestServerWith(&fakeAnswerer{result: &orchestrator.Result{}}, &fakeCatalog{})

	req := httptest.NewRequest(http.MethodGet, "/api/courses", nil)
	w := httptest.NewRecorder()
	s.handleCourses(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"course_titles":[]`) {
		t.Errorf("expected empty titles array, got: %s", w.Body.String())
	}
}

// TestHandleCourses_CatalogError verifies a catalog failure returns 500.
func TestHandleCourses_CatalogError(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{err: errors.New("qdrant scroll failed")}
	s := newTestServerWith(&fakeAnswerer{result: &orchestrator.Result{}}, catalog)

	req := httptest.NewRequest(http.MethodGet, "/api/courses", nil)
	w := httptest.NewRecorder()
	s.handleCourses(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

// TestNew_NilAnswerer verifies New rejects a nil answerer.
func TestNew_NilAnswerer(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, nil, nil); err == nil {
		t.Error("expected error for nil answerer")
	}
}

// TestNew_Defaults verifies zero-value config fields are filled in.
func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	s, err := New(&fakeAnswerer{result: &orchestrator.Result{}}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)

	if s.cfg.Host != "127.0.0.1" {
		t.Errorf("host default: got %q", s.cfg.Host)
	}
	if s.cfg.Port != 8000 {
		t.Errorf("port default: got %d", s.cfg.Port)
	}
	if s.cfg.QueryTimeout != 2*time.Minute {
		t.Errorf("query timeout default: got %v", s.cfg.QueryTimeout)
	}
	if s.cfg.MetricsRegistry == nil || s.cfg.MetricsGatherer == nil {
		t.Error("expected a private metrics registry by default")
	}
}
