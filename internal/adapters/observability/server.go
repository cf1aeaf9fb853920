package observability

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/helpers/metadata"
	"github.com/eleven-am/loom/internal/helpers/netutil"
	json "github.com/eleven-am/loom/internal/xjson"
)

// WorkflowSource is anything that can list the nodes it runs.
type WorkflowSource interface {
	Name() string
	Snapshot() []domain.NodeStatus
}

// ReadyFunc reports why the process cannot serve yet; nil means ready.
type ReadyFunc func() error

type Server struct {
	config   domain.ObservabilityConfig
	server   *http.Server
	logger   *slog.Logger
	meta     *metadata.Provider
	gatherer prometheus.Gatherer
	workflow WorkflowSource
	ready    ReadyFunc
}

type Option func(*Server)

func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

func WithWorkflow(w WorkflowSource) Option {
	return func(s *Server) { s.workflow = w }
}

func WithReady(fn ReadyFunc) Option {
	return func(s *Server) { s.ready = fn }
}

func WithMetadata(meta *metadata.Provider) Option {
	return func(s *Server) { s.meta = meta }
}

type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	BootID    string         `json:"boot_id"`
	Launched  time.Time      `json:"launched"`
	Hostname  string         `json:"hostname"`
	Uptime    string         `json:"uptime"`
	Runtime   RuntimeMetrics `json:"runtime"`
	Nodes     map[string]int `json:"nodes,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type RuntimeMetrics struct {
	GoVersion    string `json:"go_version"`
	NumCPU       int    `json:"num_cpu"`
	NumGoroutine int    `json:"num_goroutine"`
	HeapAlloc    uint64 `json:"heap_alloc_bytes"`
}

type WorkflowResponse struct {
	Name  string              `json:"name"`
	Nodes []domain.NodeStatus `json:"nodes"`
}

func NewServer(config domain.ObservabilityConfig, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config:   config,
		logger:   logger.With("component", "observability"),
		meta:     metadata.NewProvider(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/live", s.handleLive)
	mux.HandleFunc("/workflow", s.handleWorkflow)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return s.withLogging(mux)
}

// Start serves until ctx ends, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	listener, err := netutil.Listen(ctx, "", s.config.Port)
	if err != nil {
		return err
	}
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.logger.Info("starting observability server", "port", netutil.Port(listener), "boot_id", s.meta.BootID())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("observability server error", "error", err)
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return domain.NewTransportError("observability", "server failed", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("shutting down observability server")
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	info := s.meta.Info()
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		BootID:    info.BootID,
		Launched:  info.Launched,
		Hostname:  info.Hostname,
		Uptime:    s.meta.Uptime().String(),
		Runtime: RuntimeMetrics{
			GoVersion:    runtime.Version(),
			NumCPU:       runtime.NumCPU(),
			NumGoroutine: runtime.NumGoroutine(),
			HeapAlloc:    mem.HeapAlloc,
		},
	}

	if s.workflow != nil {
		response.Nodes = make(map[string]int)
		for _, node := range s.workflow.Snapshot() {
			response.Nodes[node.State.String()]++
		}
	}

	status := http.StatusOK
	if s.ready != nil {
		if err := s.ready(); err != nil {
			response.Status = "unhealthy"
			response.Error = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	s.writeJSON(w, status, response)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("live"))
}

func (s *Server) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	if s.workflow == nil {
		http.Error(w, "no workflow attached", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, WorkflowResponse{
		Name:  s.workflow.Name(),
		Nodes: s.workflow.Snapshot(),
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
