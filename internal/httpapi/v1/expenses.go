package v1

import (
	"net/http"
	"strings"

	"github.com/tinoosan/tripsettle/internal/ledger"
)

// POST /v1/trips/{tripID}/expenses
// An Idempotency-Key header makes retries safe: a replay answers 200 with the
// originally created expense.
func (s *Server) postExpense(w http.ResponseWriter, r *http.Request) {
	e, ok := r.Context().Value(ctxKeyPostExpense).(ledger.Expense)
	if !ok {
		badRequest(w, "invalid request")
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	created, replayed, err := s.expenses.Create(r.Context(), e, key)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if replayed {
		toJSON(w, http.StatusOK, toExpenseResponse(created))
		return
	}
	toJSON(w, http.StatusCreated, toExpenseResponse(created))
}

// GET /v1/trips/{tripID}/expenses
func (s *Server) listExpenses(w http.ResponseWriter, r *http.Request) {
	es, err := s.expenses.List(r.Context(), tripIDFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := listExpensesResponse{Expenses: make([]expenseResponse, 0, len(es))}
	for _, e := range es {
		out.Expenses = append(out.Expenses, toExpenseResponse(e))
	}
	toJSON(w, http.StatusOK, out)
}

// GET /v1/trips/{tripID}/expenses/{expenseID}
func (s *Server) getExpense(w http.ResponseWriter, r *http.Request) {
	e, err := s.expenses.Get(r.Context(), tripIDFrom(r.Context()), expenseIDFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toExpenseResponse(e))
}

// PATCH /v1/trips/{tripID}/expenses/{expenseID}
func (s *Server) patchExpense(w http.ResponseWriter, r *http.Request) {
	var req patchExpenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	current, err := s.expenses.Get(r.Context(), tripIDFrom(r.Context()), expenseIDFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	next, err := applyPatch(current, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	updated, err := s.expenses.Update(r.Context(), next)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toExpenseResponse(updated))
}

// DELETE /v1/trips/{tripID}/expenses/{expenseID}
func (s *Server) deleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.expenses.Delete(r.Context(), tripIDFrom(r.Context()), expenseIDFrom(r.Context())); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
