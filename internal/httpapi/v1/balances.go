package v1

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/tinoosan/tripsettle/internal/ledger"
)

// GET /v1/trips/{tripID}/balances
func (s *Server) getBalances(w http.ResponseWriter, r *http.Request) {
	tripID := tripIDFrom(r.Context())
	bs, err := s.balances.MonthlyBalances(r.Context(), tripID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toBalancesResponse(tripID, bs))
}

// GET /v1/trips/{tripID}/balances/{month}
func (s *Server) getMonthBalances(w http.ResponseWriter, r *http.Request) {
	month, err := ledger.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		badRequest(w, "month must be YYYY-MM")
		return
	}
	tripID := tripIDFrom(r.Context())
	bs, err := s.balances.Month(r.Context(), tripID, month)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toBalancesResponse(tripID, bs))
}
