package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	applog "elsa/internal/log"
	"elsa/internal/middleware/trace"
	"elsa/internal/services"
	"elsa/internal/sink"
)

// Deps are the services the API serves.
type Deps struct {
	Hub     *services.Hub
	Exports *services.ExportService
	Records *services.RecordService
	// Archive receives exports requested with POST /export/{kind}. Nil
	// disables that route.
	Archive sink.Sink
}

// Options tune the server.
type Options struct {
	WriteLimit  int
	WriteWindow time.Duration
	Now         func() time.Time
}

func DefaultOptions() Options {
	return Options{WriteLimit: 60, WriteWindow: time.Minute, Now: time.Now}
}

type Server struct {
	http.Server
	deps        Deps
	logger      *applog.Logger
	now         func() time.Time
	rateLimiter *rateLimiter
	tracer      *trace.Middleware
	upgrader    websocket.Upgrader

	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps, logger *applog.Logger, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.WriteLimit <= 0 {
		opts.WriteLimit = DefaultOptions().WriteLimit
	}
	if opts.WriteWindow <= 0 {
		opts.WriteWindow = DefaultOptions().WriteWindow
	}
	logger = applog.OrNop(logger).WithComponent(applog.ComponentHTTP)

	s := &Server{
		deps:        deps,
		logger:      logger,
		now:         opts.Now,
		rateLimiter: newRateLimiter(opts.WriteLimit, opts.WriteWindow),
		tracer:      trace.NewMiddleware(logger, extractClientIP),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /export/{kind}", s.withOwner(s.handleExportDownload))
	mux.HandleFunc("POST /export/{kind}", s.withOwner(s.handleExportArchive))

	mux.HandleFunc("GET /chart/expenses", s.withOwner(s.handleChart))
	mux.HandleFunc("GET /ws/expenses", s.withOwner(s.handleChartSocket))

	mux.HandleFunc("POST /transactions", s.withOwner(s.handleCreateTransaction))
	mux.HandleFunc("PUT /transactions/{id}", s.withOwner(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /transactions/{id}", s.withOwner(s.handleDeleteTransaction))
	mux.HandleFunc("POST /debts", s.withOwner(s.handleCreateDebt))
	mux.HandleFunc("PATCH /debts/{id}", s.withOwner(s.handleSetDebtPaid))
	mux.HandleFunc("DELETE /debts/{id}", s.withOwner(s.handleDeleteDebt))
	mux.HandleFunc("POST /goals", s.withOwner(s.handleCreateGoal))
	mux.HandleFunc("POST /goals/{id}/contributions", s.withOwner(s.handleContribute))
	mux.HandleFunc("DELETE /goals/{id}", s.withOwner(s.handleDeleteGoal))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.tracer.Handler(s.withSecurityHeaders(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown stops background routines and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Metrics exposes request counters.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

func (s *Server) withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w.Header())
		next.ServeHTTP(w, r)
	})
}

type ownerHandler func(w http.ResponseWriter, r *http.Request, owner string)

// withOwner rejects anonymous requests and rate-limits writes per owner.
func (s *Server) withOwner(next ownerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := ownerFrom(r)
		if owner == "" {
			UnauthorizedError().Write(w)
			return
		}
		if r.Method != http.MethodGet && !s.rateLimiter.allow(owner) {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
				applog.FieldOwner, owner, applog.FieldMethod, r.Method, applog.FieldPath, r.URL.Path)
			ErrorResponse(http.StatusTooManyRequests, msgRateLimited).Header("Retry-After", "60").Write(w)
			return
		}
		next(w, r, owner)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Records != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Records.Store().Ping(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
