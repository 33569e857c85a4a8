package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Shashwathi05/deskhop/internal/authz"
	"github.com/Shashwathi05/deskhop/internal/events"
	"github.com/Shashwathi05/deskhop/internal/fingerprint"
	"github.com/Shashwathi05/deskhop/internal/gate"
	"github.com/Shashwathi05/deskhop/internal/models"
	"github.com/Shashwathi05/deskhop/internal/registry"
	"github.com/Shashwathi05/deskhop/internal/session"
	"github.com/Shashwathi05/deskhop/internal/storage"
	"github.com/Shashwathi05/deskhop/pkg/crypto"
)

// ========== Auth handlers ==========

// HandleSignup registers a new account. The account starts unverified
// and unapproved; a verification mail is sent best-effort.
func (s *RESTServer) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username" validate:"required,min=3,max=64"`
		Email    string `json:"email" validate:"required,email"`
		EmpID    string `json:"empId"`
		Password string `json:"password" validate:"required,min=8"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		EmpID:        req.EmpID,
		PasswordHash: hash,
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "username or email already taken")
			return
		}
		s.respondDomainError(w, err)
		return
	}

	token, err := s.auth.GenerateVerificationToken(user.ID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	if err := s.mailer.SendVerification(user.Email, user.Username, token); err != nil {
		log.Warn().Err(err).Str("email", user.Email).Msg("Verification mail failed")
		if _, rerr := s.recorder.Record(r.Context(), events.Entry{
			Kind:    models.EventEmailSendFailed,
			UserID:  &user.ID,
			Details: err.Error(),
			IP:      clientIP(r),
		}); rerr != nil {
			s.respondDomainError(w, rerr)
			return
		}
	}

	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"id":      user.ID,
		"message": "account created, check your mail for the verification link",
	})
}

// HandleVerifyEmail confirms the address behind a verification token
func (s *RESTServer) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.ValidateVerificationToken(chi.URLParam(r, "token"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid or expired verification token")
		return
	}

	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	if !user.IsVerified {
		user.IsVerified = true
		if err := s.store.UpdateUser(r.Context(), user); err != nil {
			s.respondDomainError(w, err)
			return
		}
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"message": "email verified, your account now awaits admin approval",
	})
}

// HandleLogin checks credentials and runs the access gate. The response
// always carries a `next` destination; tokens are only issued when the
// gate lets the user in. An unknown device described in the request is
// auto-registered as Pending so the approval queue sees it.
func (s *RESTServer) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string                 `json:"username" validate:"required"`
		Password string                 `json:"password" validate:"required"`
		Device   *registry.Registration `json:"device"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ip := clientIP(r)
	ctx := r.Context()

	user, err := s.store.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.recordLoginFailed(r, nil, req.Username)
			s.respondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.respondDomainError(w, err)
		return
	}

	if !crypto.VerifyPassword(req.Password, user.PasswordHash) {
		s.recordLoginFailed(r, user, req.Username)
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	// Unknown devices presented at login enter the approval queue
	// before the gate looks at device state. Accounts the gate will
	// refuse on user state never reach the queue.
	if req.Device != nil && !user.IsAdmin && user.IsVerified && user.IsApproved {
		if err := s.autoRegisterDevice(r, user, *req.Device); err != nil {
			s.respondDomainError(w, err)
			return
		}
	}

	result, err := gate.Evaluate(ctx, s.store, user)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	gateDecisionsTotal.WithLabelValues(string(result.Decision)).Inc()

	if result.Decision == gate.DecisionDenied {
		kind := models.EventLoginFailed
		if result.Reason == gate.ReasonPendingUserApproval {
			kind = models.EventLoginBlockedUnapproved
		}
		if _, err := s.recorder.Record(ctx, events.Entry{
			Kind: kind, UserID: &user.ID, Details: result.Reason, IP: ip,
		}); err != nil {
			s.respondDomainError(w, err)
			return
		}
		s.respondJSON(w, http.StatusForbidden, map[string]interface{}{
			"next":   result.Decision,
			"reason": result.Reason,
		})
		return
	}

	// Only an approved device is bound into the session token.
	var device *models.Device
	if result.Decision == gate.DecisionBooking {
		device = result.Device
	}

	accessToken, refreshToken, err := s.auth.GenerateTokenPair(user, device)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	kind := models.EventLoginSuccess
	switch {
	case user.IsAdmin:
		kind = models.EventAdminLogin
	case result.Device != nil && result.Device.Status == models.DeviceStatusRejected:
		kind = models.EventLoginDeviceRejected
	}

	var deviceID *uuid.UUID
	if result.Device != nil {
		deviceID = &result.Device.ID
	}
	if _, err := s.recorder.Record(ctx, events.Entry{
		Kind: kind, UserID: &user.ID, DeviceID: deviceID, IP: ip,
	}); err != nil {
		s.respondDomainError(w, err)
		return
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := s.store.UpdateUser(ctx, user); err != nil {
		log.Warn().Err(err).Str("user", user.Username).Msg("Failed to record last login")
	}

	resp := map[string]interface{}{
		"next":          result.Decision,
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(s.config.JWT.AccessTokenTTL.Seconds()),
		"token_type":    "Bearer",
	}
	if device != nil {
		resp["device_id"] = device.ID
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// recordLoginFailed logs a failed credential check. Best effort: a
// refused login must not turn into a 500 because the log write raced.
func (s *RESTServer) recordLoginFailed(r *http.Request, user *models.User, username string) {
	e := events.Entry{
		Kind:    models.EventLoginFailed,
		Details: "login attempt for " + username,
		IP:      clientIP(r),
	}
	if user != nil {
		e.UserID = &user.ID
	}
	if _, err := s.recorder.Record(r.Context(), e); err != nil {
		log.Warn().Err(err).Msg("Failed to record login failure")
	}
}

// autoRegisterDevice folds the device payload from a login request into
// the registry when its fingerprint is not yet on file.
func (s *RESTServer) autoRegisterDevice(r *http.Request, user *models.User, reg registry.Registration) error {
	ctx := r.Context()
	fp := fingerprint.Compute(reg.Payload)

	_, err := s.store.GetDeviceByFingerprint(ctx, user.ID, fp)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	device, outcome, err := s.registry.RegisterOrUpdate(ctx, user, reg, clientIP(r))
	if err != nil {
		return err
	}
	registrationsTotal.WithLabelValues(string(outcome)).Inc()

	_, err = s.recorder.Record(ctx, events.Entry{
		Kind:     models.EventDeviceAutoRegistered,
		UserID:   &user.ID,
		DeviceID: &device.ID,
		IP:       clientIP(r),
	})
	return err
}

// HandleRefresh handles token refresh. The device binding is recomputed
// from the store so a device rejected after login loses its binding on
// the next refresh.
func (s *RESTServer) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, err := s.auth.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	var device *models.Device
	if !user.IsAdmin {
		latest, err := s.store.GetLatestDevice(r.Context(), user.ID)
		if err == nil && latest.Status == models.DeviceStatusApproved {
			device = latest
		} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.respondDomainError(w, err)
			return
		}
	}

	accessToken, refreshToken, err := s.auth.GenerateTokenPair(user, device)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(s.config.JWT.AccessTokenTTL.Seconds()),
		"token_type":    "Bearer",
	})
}

// HandleLogout revokes the presented access token
func (s *RESTServer) HandleLogout(w http.ResponseWriter, r *http.Request) {
	claims := s.claimsFrom(r)

	if claims.ExpiresAt != nil {
		if err := s.revoker.Revoke(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
			log.Warn().Err(err).Msg("Failed to revoke token")
		}
	}

	if _, err := s.recorder.Record(r.Context(), events.Entry{
		Kind:   models.EventLogout,
		UserID: &claims.UserID,
		IP:     clientIP(r),
	}); err != nil {
		s.respondDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ========== Helper methods ==========

// HandleHealth health check
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
	})
}

// HandleRoot root handler
func (s *RESTServer) HandleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": s.config.Server.Name,
		"version": s.config.Server.Version,
		"health":  "/api/v1/health",
	})
}

// respondJSON responds with JSON
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError responds with error
func (s *RESTServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondDomainError maps domain errors onto HTTP status codes. Store
// unavailability is surfaced as server_error with the cause attached.
func (s *RESTServer) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authz.ErrForbidden):
		s.respondError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, session.ErrHoneypot):
		s.respondError(w, http.StatusForbidden, "desk unavailable")
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, session.ErrInvalidTransition):
		s.respondError(w, http.StatusConflict, "invalid session transition")
	case errors.Is(err, storage.ErrDuplicateKey):
		s.respondError(w, http.StatusConflict, "conflict")
	case errors.Is(err, session.ErrResumeAuthFailed):
		s.respondError(w, http.StatusUnauthorized, "resume authentication failed")
	default:
		log.Error().Err(err).Msg("Request failed")
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  "server_error",
			"detail": err.Error(),
		})
	}
}
