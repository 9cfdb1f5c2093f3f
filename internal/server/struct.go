package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/studyhall-ai/studyhall-go/internal/orchestrator"
	"github.com/studyhall-ai/studyhall-go/internal/tools"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// QueryTimeout bounds a single POST /api/query request end to end,
	// including retrieval and both model calls. Defaults to 2 minutes.
	QueryTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives all Prometheus metric registrations.
	// If nil, a fresh private registry is created. Tests inject their own
	// registry to stay hermetic.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs the GET /metrics endpoint. Must gather from the
	// same registry that MetricsRegistry registers into.
	MetricsGatherer prometheus.Gatherer
}

// answerer is the interface handleQuery calls to run one question through
// the retrieval loop. *orchestrator.Orchestrator satisfies it; tests inject
// a fake.
type answerer interface {
	Answer(ctx context.Context, query, sessionID string) (*orchestrator.Result, error)
}

// courseCatalog is the interface handleCourses uses to list ingested courses.
// *rag.VectorIndex satisfies it.
type courseCatalog interface {
	CourseTitles(ctx context.Context) ([]string, error)
}

// Server is the HTTP server that fronts the course-materials assistant.
type Server struct {
	// answerer runs user questions through the retrieval loop.
	answerer answerer
	// catalog lists ingested courses for GET /api/courses.
	catalog courseCatalog
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server instance.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// Query is the user's question about the course materials.
	Query string `json:"query"`
	// SessionID continues an existing conversation when set. When empty the
	// server mints a new session and returns its ID in the response.
	SessionID string `json:"session_id,omitempty"`
}

// queryResponse is the JSON response for POST /api/query.
type queryResponse struct {
	// Answer is the assistant's final answer text.
	Answer string `json:"answer"`
	// Sources lists the course chunks the answer was grounded on. Always
	// present; empty when the question was answered without searching.
	Sources []tools.Citation `json:"sources"`
	// SessionID identifies the conversation for follow-up questions.
	SessionID string `json:"session_id"`
}

// coursesResponse is the JSON response for GET /api/courses.
type coursesResponse struct {
	// TotalCourses is the number of ingested courses.
	TotalCourses int `json:"total_courses"`
	// CourseTitles lists the canonical title of every ingested course.
	CourseTitles []string `json:"course_titles"`
}
