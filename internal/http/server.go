package http

import (
	"context"
	"net/http"
	"time"

	"budgetflow/internal/log"
	"budgetflow/internal/metrics"
	"budgetflow/internal/middleware/ratelimit"
	"budgetflow/internal/middleware/security"
	"budgetflow/internal/middleware/trace"
	"budgetflow/internal/period"
	"budgetflow/internal/services"
)

// HeaderOwnerID carries the authenticated owner, set by the gateway in front
// of this service.
const HeaderOwnerID = "X-Owner-ID"

// Pinger reports store readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the API exposes.
type Deps struct {
	Transactions *services.TransactionService
	Categories   *services.CategoryService
	Preferences  *services.PreferencesService
	Inbox        *services.AlertInbox
	Checks       *services.CheckService
	Store        Pinger
	Metrics      *metrics.Registry
	Calendar     period.Calendar
	RateLimit    ratelimit.Config
	Logger       *log.Logger
	Clock        func() time.Time
}

// Server wraps http.Server with the API routes and middleware chain.
type Server struct {
	*http.Server
	deps     Deps
	limiter  *ratelimit.Limiter
	detector *security.Detector
	logger   *log.Logger
}

func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.Default(log.ComponentHTTP)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Calendar.Location == nil {
		deps.Calendar.Location = time.UTC
	}

	s := &Server{
		deps:     deps,
		limiter:  ratelimit.NewLimiter(deps.RateLimit),
		detector: security.NewDetector(),
		logger:   deps.Logger,
	}

	mux := http.NewServeMux()
	s.routes(mux)

	s.Server = &http.Server{
		Addr:              addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.deps.Metrics.Handler())

	mux.HandleFunc("POST /transactions", s.withOwner(s.handleCreateTransaction))
	mux.HandleFunc("GET /transactions", s.withOwner(s.handleListTransactions))
	mux.HandleFunc("GET /transactions/{id}", s.withOwner(s.handleGetTransaction))
	mux.HandleFunc("PUT /transactions/{id}", s.withOwner(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /transactions/{id}", s.withOwner(s.handleDeleteTransaction))

	mux.HandleFunc("POST /categories", s.withOwner(s.handleCreateCategory))
	mux.HandleFunc("GET /categories", s.withOwner(s.handleListCategories))
	mux.HandleFunc("PUT /categories/{id}/limit", s.withOwner(s.handleSetCategoryLimit))
	mux.HandleFunc("GET /ledger", s.withOwner(s.handleLedger))

	mux.HandleFunc("GET /preferences", s.withOwner(s.handleGetPreferences))
	mux.HandleFunc("PUT /preferences", s.withOwner(s.handlePutPreferences))

	mux.HandleFunc("GET /alerts", s.withOwner(s.handleListAlerts))
	mux.HandleFunc("PUT /alerts/read", s.withOwner(s.handleMarkAllRead))
	mux.HandleFunc("GET /alerts/{id}", s.withOwner(s.handleGetAlert))
	mux.HandleFunc("PUT /alerts/{id}/read", s.withOwner(s.handleMarkRead))
	mux.HandleFunc("PUT /alerts/{id}/resolve", s.withOwner(s.handleMarkResolved))
	mux.HandleFunc("DELETE /alerts/{id}", s.withOwner(s.handleDeleteAlert))
	mux.HandleFunc("POST /alerts/check", s.withOwner(s.handleRunChecks))
}

// middleware is applied outermost first: tracing, security headers, rate limit.
func (s *Server) middleware(next http.Handler) http.Handler {
	h := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded", RequestID: trace.GetRequestID(r.Context())})
	})(next)
	h = s.flagSuspicious(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	return trace.NewMiddleware(s.logger, s.detector.ExtractClientIP).Middleware(h)
}

func (s *Server) flagSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldClientIP, s.detector.ExtractClientIP(r),
				log.FieldUserAgent, r.UserAgent())
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Store.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Shutdown drains connections and stops the limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}
