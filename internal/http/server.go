package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ledger/internal/auth"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
)

// ExpenseService is the expense ledger as seen by the HTTP layer.
type ExpenseService interface {
	ListByEvent(ctx context.Context, eventID string) ([]core.Expense, error)
	Summary(ctx context.Context, eventID string) ([]core.SummaryRow, error)
	Create(ctx context.Context, caller core.User, in core.ExpenseInput) (*core.Expense, error)
	CreateBulk(ctx context.Context, caller core.User, in core.BulkExpenseInput) ([]core.Expense, error)
	Update(ctx context.Context, id string, patch core.ExpensePatch) (*core.Expense, error)
	Delete(ctx context.Context, id string) error
}

// Store is what the server needs from persistence directly: caller upserts
// during authentication and the readiness ping.
type Store interface {
	auth.UserStore
	Ping(ctx context.Context) error
}

type Config struct {
	Addr               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	RateLimitPerMinute int
}

// Server embeds http.Server and owns the rate limiter's lifetime.
type Server struct {
	http.Server

	expenses     ExpenseService
	store        Store
	limiter      *ratelimit.Limiter
	logger       *log.Logger
	startedAt    time.Time
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, expenses ExpenseService, store Store, authenticator *auth.Authenticator, logger *log.Logger) *Server {
	logger = logger.WithComponent(log.ComponentHTTP)
	ipExtractor := security.NewIPExtractor()

	s := &Server{
		Server: http.Server{
			Addr:              cfg.Addr,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		expenses:  expenses,
		store:     store,
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		logger:    logger,
		startedAt: time.Now(),
	}

	authenticate := auth.Middleware(authenticator, store, s.writeError)
	mutation := []func(http.Handler) http.Handler{
		s.limiter.Middleware(ipExtractor.ClientIP, s.writeRateLimited),
		authenticate,
		auth.RequireRole(core.ExpenseEditors, s.writeError),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.Handle("GET /api/expenses/event/{eventId}", chain(http.HandlerFunc(s.handleListByEvent), authenticate))
	mux.Handle("GET /api/expenses/event/{eventId}/summary", chain(http.HandlerFunc(s.handleSummary), authenticate))
	mux.Handle("POST /api/expenses", chain(http.HandlerFunc(s.handleCreate), mutation...))
	mux.Handle("POST /api/expenses/{$}", chain(http.HandlerFunc(s.handleCreate), mutation...))
	mux.Handle("POST /api/expenses/bulk", chain(http.HandlerFunc(s.handleCreateBulk), mutation...))
	mux.Handle("PUT /api/expenses/{id}", chain(http.HandlerFunc(s.handleUpdate), mutation...))
	mux.Handle("DELETE /api/expenses/{id}", chain(http.HandlerFunc(s.handleDelete), mutation...))

	handler := chain(mux,
		security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware,
		trace.NewMiddleware(logger, ipExtractor.ClientIP).Middleware,
	)
	s.Handler = otelhttp.NewHandler(handler, "ledger")
	return s
}

// chain applies middlewares so the first one listed runs first.
func chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// Shutdown stops accepting requests, waits for in-flight ones and stops the
// rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
		s.limiter.Stop()
	})
	return err
}
