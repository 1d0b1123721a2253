// Package v1 wires the HTTP surface of the trip settlement service.
// It keeps handlers thin, delegating business rules to the service layer.
package v1

import (
	"log/slog"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/tinoosan/tripsettle/internal/cache"
	"github.com/tinoosan/tripsettle/internal/service/balance"
	"github.com/tinoosan/tripsettle/internal/service/expense"
	"github.com/tinoosan/tripsettle/internal/service/trip"
)

// Services bundles the business services the handlers delegate to.
type Services struct {
	Trips    trip.Service
	Expenses expense.Service
	Balances balance.Service
}

// Server wires handlers and middleware using Chi.
type Server struct {
	trips    trip.Service
	expenses expense.Service
	balances balance.Service
	ready    ReadyChecker
	batches  *cache.LRU[storedBatch]
	auth     *AuthConfig
	log      *slog.Logger
	rt       *chi.Mux
}

type Option func(*Server)

// WithAuth enables bearer token checks on every non-public route.
func WithAuth(cfg AuthConfig) Option {
	return func(s *Server) {
		if cfg.Secret != "" {
			s.auth = &cfg
		}
	}
}

// New constructs the HTTP server with routes and middleware.
// The logger is used by request logging and panic recovery.
func New(svc Services, ready ReadyChecker, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		trips:    svc.Trips,
		expenses: svc.Expenses,
		balances: svc.Balances,
		ready:    ready,
		batches:  cache.NewLRU[storedBatch](1024, 24*time.Hour),
		log:      logger,
		rt:       chi.NewRouter(),
	}
	for _, o := range opts {
		o(s)
	}

	s.rt.Use(chimw.RequestID)
	s.rt.Use(requestLogger(logger))
	s.rt.Use(recoverer(logger))
	s.rt.Use(metricsMiddleware)
	if s.auth != nil {
		s.rt.Use(authJWT(*s.auth))
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// BatchReplays exposes the batch replay cache so it can be swept periodically.
func (s *Server) BatchReplays() cache.Cleaner { return s.batches }

// routes declares the public HTTP API endpoints and attaches any per-route middleware.
func (s *Server) routes() {
	s.rt.Route("/v1", func(r chi.Router) {
		r.With(s.validatePostTrip).Post("/trips", s.postTrip)
		r.Get("/trips", s.listTrips)
		r.Route("/trips/{tripID}", func(r chi.Router) {
			r.Use(s.tripParam)
			r.Get("/", s.getTrip)
			r.Post("/participants", s.addParticipant)
			r.Delete("/participants/{participantID}", s.removeParticipant)

			r.With(s.validatePostExpense).Post("/expenses", s.postExpense)
			r.Get("/expenses", s.listExpenses)
			r.Post("/expenses/batch", s.postExpensesBatch)
			r.Route("/expenses/{expenseID}", func(r chi.Router) {
				r.Use(s.expenseParam)
				r.Get("/", s.getExpense)
				r.Patch("/", s.patchExpense)
				r.Delete("/", s.deleteExpense)
			})

			r.Get("/balances", s.getBalances)
			r.Get("/balances/{month}", s.getMonthBalances)
		})
		r.Get("/dictionary/categories", s.getCategories)
		r.Get("/dictionary/split-types", s.getSplitTypes)
	})
	// Health and metrics (unversioned)
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Handle("/metrics", metricsHandler())
}
