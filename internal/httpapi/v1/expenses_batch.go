package v1

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tinoosan/tripsettle/internal/ledger"
	"github.com/tinoosan/tripsettle/internal/service/expense"
)

// postExpensesBatch handles POST /v1/trips/{tripID}/expenses/batch.
// Atomic: all-or-nothing. Returns 201 with {expenses:[...]} or 422 with {errors:[...]}.
// With an Idempotency-Key the first response is replayed for identical bodies.
func (s *Server) postExpensesBatch(w http.ResponseWriter, r *http.Request) {
	var req postExpensesBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Expenses) == 0 {
		badRequest(w, "expenses is required")
		return
	}
	if len(req.Expenses) > expense.MaxBatch {
		unprocessable(w, "too_many_items", "too_many_items")
		return
	}
	tripID := tripIDFrom(r.Context())

	var rw http.ResponseWriter = w
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		nb, _ := json.Marshal(req)
		h := hashBytes(nb)
		cacheKey := tripID.String() + ":" + key
		if prev, ok := s.batches.Get(cacheKey); ok {
			if prev.BodyHash != h {
				writeErr(w, http.StatusConflict, "idempotency_mismatch", "idempotency_mismatch")
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(prev.Status)
			_, _ = w.Write(prev.Payload)
			return
		}
		cw := &captureWriter{ResponseWriter: w}
		defer s.storeBatch(cacheKey, h, cw)
		rw = cw
	}

	drafts := make([]ledger.Expense, 0, len(req.Expenses))
	var itemErrs []batchItemError
	for i, item := range req.Expenses {
		e, err := toExpenseDomain(tripID, item)
		if err != nil {
			itemErrs = append(itemErrs, batchItemError{Index: i, Code: expense.ErrorCode(err), Error: err.Error()})
			continue
		}
		drafts = append(drafts, e)
	}
	if len(itemErrs) > 0 {
		toJSON(rw, http.StatusUnprocessableEntity, struct {
			Errors []batchItemError `json:"errors"`
		}{Errors: itemErrs})
		return
	}

	created, errsList, err := s.expenses.CreateBatch(r.Context(), tripID, drafts)
	if err != nil {
		s.writeServiceError(rw, r, err)
		return
	}
	if len(errsList) > 0 {
		out := struct {
			Errors []batchItemError `json:"errors"`
		}{Errors: make([]batchItemError, 0, len(errsList))}
		for _, e := range errsList {
			out.Errors = append(out.Errors, batchItemError{Index: e.Index, Code: e.Code, Error: e.Err.Error()})
		}
		toJSON(rw, http.StatusUnprocessableEntity, out)
		return
	}
	resp := listExpensesResponse{Expenses: make([]expenseResponse, 0, len(created))}
	for _, e := range created {
		resp.Expenses = append(resp.Expenses, toExpenseResponse(e))
	}
	s.log.InfoContext(r.Context(), "expenses imported", "trip_id", tripID, "count", len(created))
	toJSON(rw, http.StatusCreated, resp)
}
