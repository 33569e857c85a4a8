package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Shashwathi05/deskhop/internal/registry"
)

// HandleRegisterDevice registers the caller's current device or folds
// the request into an existing record. The outcome tells the client
// whether a new approval is now pending.
func (s *RESTServer) HandleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registry.Registration

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := s.claimsFrom(r)
	user, err := s.store.GetUser(r.Context(), claims.UserID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	device, outcome, err := s.registry.RegisterOrUpdate(r.Context(), user, req, clientIP(r))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	registrationsTotal.WithLabelValues(string(outcome)).Inc()

	status := http.StatusOK
	if outcome == registry.OutcomeCreated {
		status = http.StatusCreated
	}

	s.respondJSON(w, status, map[string]interface{}{
		"outcome": outcome,
		"device":  device,
	})
}

// HandleListDevices lists the caller's devices, newest first
func (s *RESTServer) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	claims := s.claimsFrom(r)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	devices, total, err := s.store.ListDevices(r.Context(), &claims.UserID, limit, offset)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"devices": devices,
		"total":   total,
	})
}

// HandleDeleteDevice removes a device. Owners may delete their own
// devices; admins may delete any.
func (s *RESTServer) HandleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	if err := s.registry.Delete(r.Context(), id, s.actorFrom(r)); err != nil {
		s.respondDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleApproveDevice marks a pending device as approved
func (s *RESTServer) HandleApproveDevice(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	device, err := s.registry.Approve(r.Context(), id, s.actorFrom(r))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, device)
}

// HandleRejectDevice marks a device as rejected
func (s *RESTServer) HandleRejectDevice(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	device, err := s.registry.Reject(r.Context(), id, s.actorFrom(r))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, device)
}
