package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Shashwathi05/deskhop/internal/storage"
)

// HandleAdminDashboard returns the compliance overview counts
func (s *RESTServer) HandleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	total, pending, err := s.store.CountDevices(ctx)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	owners, err := s.store.CountDeviceOwners(ctx)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	_, pendingUsers, err := s.store.ListUsers(ctx, storage.UserFilters{PendingOnly: true}, 1, 0)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"devices_total":   total,
		"devices_pending": pending,
		"device_owners":   owners,
		"users_pending":   pendingUsers,
	})
}

// HandleAdminListDevices lists all registered devices
func (s *RESTServer) HandleAdminListDevices(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 50
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	devices, total, err := s.store.ListDevices(r.Context(), nil, limit, offset)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"devices": devices,
		"total":   total,
	})
}

// HandleAdminDeviceLogs returns a device's activity trail together with
// the alerts computed from it.
func (s *RESTServer) HandleAdminDeviceLogs(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	ctx := r.Context()

	// 404 for unknown devices rather than an empty trail
	if _, err := s.store.GetDevice(ctx, id); err != nil {
		s.respondDomainError(w, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 100
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	logs, total, err := s.recorder.Query(ctx, storage.ActivityLogFilters{DeviceID: &id}, limit, offset)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	alerts, err := s.sessions.Alerts(ctx, id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": logs,
		"total":  total,
		"alerts": alerts,
	})
}

// HandleAdminPendingUsers lists verified accounts awaiting approval
func (s *RESTServer) HandleAdminPendingUsers(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 50
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	users, total, err := s.store.ListUsers(r.Context(), storage.UserFilters{PendingOnly: true}, limit, offset)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
		"total": total,
	})
}

// HandleAdminApproveUser clears a user's approval hold
func (s *RESTServer) HandleAdminApproveUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := s.store.GetUser(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	if !user.IsApproved {
		user.IsApproved = true
		if err := s.store.UpdateUser(r.Context(), user); err != nil {
			s.respondDomainError(w, err)
			return
		}
	}

	s.respondJSON(w, http.StatusOK, user)
}
