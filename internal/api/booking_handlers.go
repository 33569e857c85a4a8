package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Shashwathi05/deskhop/internal/session"
	"github.com/Shashwathi05/deskhop/internal/storage"
)

// HandleCreateBooking books a desk slot for the caller
func (s *RESTServer) HandleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeskNumber string `json:"deskNumber" validate:"required"`
		Date       string `json:"date" validate:"required,datetime=2006-01-02"`
		Timeslot   string `json:"timeslot" validate:"required"`
		Floor      int    `json:"floor" validate:"min=0"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	booking, err := s.sessions.Book(r.Context(), s.actorFrom(r), req.DeskNumber, req.Date, req.Timeslot, req.Floor)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "desk or timeslot already booked")
			return
		}
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusCreated, booking)
}

// HandleListBookings lists the caller's bookings, newest first
func (s *RESTServer) HandleListBookings(w http.ResponseWriter, r *http.Request) {
	claims := s.claimsFrom(r)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	bookings, total, err := s.store.ListUserBookings(r.Context(), claims.UserID, limit, offset)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"bookings": bookings,
		"total":    total,
	})
}

// bookingID pulls the booking ID out of the route
func bookingID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

// HandleStartSession activates an upcoming booking
func (s *RESTServer) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	id, err := bookingID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	booking, err := s.sessions.Start(r.Context(), id, s.actorFrom(r))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, booking)
}

// HandlePauseSession records a pause on an active session. The booking
// row itself does not change state.
func (s *RESTServer) HandlePauseSession(w http.ResponseWriter, r *http.Request) {
	id, err := bookingID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	// A missing body means an unexplained pause, not an error.
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := s.sessions.Pause(r.Context(), id, s.actorFrom(r), req.Reason); err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// HandleResumeSession re-authenticates the caller to resume a paused
// session. Failures are retryable and logged.
func (s *RESTServer) HandleResumeSession(w http.ResponseWriter, r *http.Request) {
	id, err := bookingID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	var req struct {
		Password string `json:"password" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.sessions.ResumeAuthenticate(r.Context(), id, s.actorFrom(r), req.Password); err != nil {
		if errors.Is(err, session.ErrResumeAuthFailed) {
			s.respondError(w, http.StatusUnauthorized, "resume authentication failed")
			return
		}
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// HandleEndSession completes an active booking
func (s *RESTServer) HandleEndSession(w http.ResponseWriter, r *http.Request) {
	id, err := bookingID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	booking, err := s.sessions.End(r.Context(), id, s.actorFrom(r))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, booking)
}
