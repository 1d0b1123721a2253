package v1

import (
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"
	"github.com/tinoosan/tripsettle/internal/ledger"
)

// POST /v1/trips
func (s *Server) postTrip(w http.ResponseWriter, r *http.Request) {
	t, ok := r.Context().Value(ctxKeyPostTrip).(ledger.Trip)
	if !ok {
		badRequest(w, "invalid request")
		return
	}
	created, err := s.trips.Create(r.Context(), t)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.log.InfoContext(r.Context(), "trip created", "trip_id", created.ID, "participants", len(created.Participants))
	toJSON(w, http.StatusCreated, toTripResponse(created))
}

// GET /v1/trips?owner_id=
func (s *Server) listTrips(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.URL.Query().Get("owner_id"))
	if owner == "" {
		owner = subjectFrom(r.Context())
	}
	if owner == "" {
		badRequest(w, "owner_id is required")
		return
	}
	trips, err := s.trips.List(r.Context(), owner)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := listTripsResponse{Trips: make([]tripResponse, 0, len(trips))}
	for _, t := range trips {
		out.Trips = append(out.Trips, toTripResponse(t))
	}
	toJSON(w, http.StatusOK, out)
}

// GET /v1/trips/{tripID}
func (s *Server) getTrip(w http.ResponseWriter, r *http.Request) {
	t, err := s.trips.Get(r.Context(), tripIDFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toTripResponse(t))
}

// POST /v1/trips/{tripID}/participants
func (s *Server) addParticipant(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := s.trips.AddParticipant(r.Context(), tripIDFrom(r.Context()), req.ParticipantID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toTripResponse(t))
}

// DELETE /v1/trips/{tripID}/participants/{participantID}
func (s *Server) removeParticipant(w http.ResponseWriter, r *http.Request) {
	t, err := s.trips.RemoveParticipant(r.Context(), tripIDFrom(r.Context()), chi.URLParam(r, "participantID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toTripResponse(t))
}
