package v1

import (
	"context"
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tinoosan/tripsettle/internal/ledger"
	"github.com/tinoosan/tripsettle/internal/meta"
)

type ctxKey string

const (
	ctxKeyPostTrip    ctxKey = "validatedPostTrip"
	ctxKeyPostExpense ctxKey = "validatedPostExpense"
	ctxKeyTripID      ctxKey = "tripID"
	ctxKeyExpenseID   ctxKey = "expenseID"
	ctxKeySubject     ctxKey = "subject"
)

func tripIDFrom(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ctxKeyTripID).(uuid.UUID)
	return id
}

func expenseIDFrom(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ctxKeyExpenseID).(uuid.UUID)
	return id
}

// subjectFrom returns the authenticated token subject, if any.
func subjectFrom(ctx context.Context) string {
	sub, _ := ctx.Value(ctxKeySubject).(string)
	return sub
}

// uuidParam parses the named path parameter and stores it under key.
func uuidParam(name string, key ctxKey) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(chi.URLParam(r, name))
			if err != nil {
				badRequest(w, "invalid "+name)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), key, id)))
		})
	}
}

func (s *Server) tripParam(next http.Handler) http.Handler {
	return uuidParam("tripID", ctxKeyTripID)(next)
}

func (s *Server) expenseParam(next http.Handler) http.Handler {
	return uuidParam("expenseID", ctxKeyExpenseID)(next)
}

// validatePostTrip decodes POST /v1/trips, checks it against the trip rules
// and stores the validated trip in the request context for the handler to use.
func (s *Server) validatePostTrip(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req postTripRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		t := ledger.Trip{
			Name:         strings.TrimSpace(req.Name),
			OwnerID:      strings.TrimSpace(req.OwnerID),
			Participants: req.Participants,
		}
		// Authenticated callers own the trips they create unless told otherwise.
		if t.OwnerID == "" {
			t.OwnerID = subjectFrom(r.Context())
		}
		if req.Metadata != nil {
			t.Metadata = meta.New(req.Metadata)
		}
		if err := s.trips.ValidateCreate(t); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyPostTrip, t)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validatePostExpense decodes POST .../expenses and validates the draft
// against the trip's participants and the settlement rules.
func (s *Server) validatePostExpense(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req postExpenseRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		e, err := toExpenseDomain(tripIDFrom(r.Context()), req)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if err := s.expenses.Validate(r.Context(), e); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyPostExpense, e)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
