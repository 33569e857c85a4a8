package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Shashwathi05/deskhop/internal/config"
	"github.com/Shashwathi05/deskhop/internal/events"
	"github.com/Shashwathi05/deskhop/internal/models"
	"github.com/Shashwathi05/deskhop/internal/notify"
	"github.com/Shashwathi05/deskhop/internal/storage"
	"github.com/Shashwathi05/deskhop/pkg/crypto"
)

func newTestServer(t *testing.T) (*RESTServer, *storage.MemoryStore) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.Name = "deskhop"
	cfg.Server.Version = "test"
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.AccessTokenTTL = 15 * time.Minute
	cfg.JWT.RefreshTokenTTL = time.Hour
	cfg.JWT.VerifyTokenTTL = time.Hour

	store := storage.NewMemoryStore()
	recorder := events.NewRecorder(store, nil)
	s := NewRESTServer(cfg, store, recorder, nil, notify.NewSMTPMailer(&cfg.SMTP))
	return s, store
}

func seedAdmin(t *testing.T, store *storage.MemoryStore) *models.User {
	t.Helper()
	hash, err := crypto.HashPassword("admin-pass")
	if err != nil {
		t.Fatal(err)
	}
	admin := &models.User{
		Username:     "root",
		Email:        "root@example.com",
		PasswordHash: hash,
		IsVerified:   true,
		IsApproved:   true,
		IsAdmin:      true,
	}
	if err := store.CreateUser(context.Background(), admin); err != nil {
		t.Fatal(err)
	}
	return admin
}

func doJSON(t *testing.T, s *RESTServer, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "10.1.2.3:54321"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	}
	return rec, decoded
}

func login(t *testing.T, s *RESTServer, username, password string, device map[string]interface{}) (int, map[string]interface{}) {
	t.Helper()
	body := map[string]interface{}{"username": username, "password": password}
	if device != nil {
		body["device"] = device
	}
	rec, resp := doJSON(t, s, http.MethodPost, "/api/v1/auth/login", "", body)
	return rec.Code, resp
}

func devicePayload() map[string]interface{} {
	return map[string]interface{}{
		"userAgent":  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36",
		"platform":   "Win32",
		"cpuThreads": "8",
		"screen":     "1920x1080",
		"timezone":   "Europe/Berlin",
	}
}

func TestSignupLoginAndComplianceFlow(t *testing.T) {
	s, store := newTestServer(t)
	admin := seedAdmin(t, store)
	ctx := context.Background()

	// Signup.
	rec, resp := doJSON(t, s, http.MethodPost, "/api/v1/auth/signup", "", map[string]interface{}{
		"username": "dave",
		"email":    "dave@example.com",
		"empId":    "E-1042",
		"password": "correct horse",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body %v", rec.Code, resp)
	}

	// Duplicate signup conflicts.
	rec, _ = doJSON(t, s, http.MethodPost, "/api/v1/auth/signup", "", map[string]interface{}{
		"username": "dave", "email": "dave@example.com", "password": "correct horse",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate signup status = %d, want 409", rec.Code)
	}

	user, err := store.GetUserByUsername(ctx, "dave")
	if err != nil {
		t.Fatal(err)
	}

	// Unverified login is refused.
	code, resp := login(t, s, "dave", "correct horse", nil)
	if code != http.StatusForbidden || resp["reason"] != "unverified" {
		t.Fatalf("unverified login: code %d, resp %v", code, resp)
	}

	// Email verification.
	token, err := s.auth.GenerateVerificationToken(user.ID)
	if err != nil {
		t.Fatal(err)
	}
	rec, _ = doJSON(t, s, http.MethodGet, "/api/v1/auth/verify/"+token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d", rec.Code)
	}

	// Verified but not yet approved by an admin.
	code, resp = login(t, s, "dave", "correct horse", nil)
	if code != http.StatusForbidden || resp["reason"] != "pending_user_approval" {
		t.Fatalf("unapproved login: code %d, resp %v", code, resp)
	}

	// Admin approves the account.
	code, resp = login(t, s, admin.Username, "admin-pass", nil)
	if code != http.StatusOK || resp["next"] != "admin_dashboard" {
		t.Fatalf("admin login: code %d, resp %v", code, resp)
	}
	adminToken := resp["access_token"].(string)

	rec, _ = doJSON(t, s, http.MethodPost, "/api/v1/admin/users/"+user.ID.String()+"/approve", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve user status = %d", rec.Code)
	}

	// No device registered yet.
	code, resp = login(t, s, "dave", "correct horse", nil)
	if code != http.StatusOK || resp["next"] != "device_registration" {
		t.Fatalf("no-device login: code %d, resp %v", code, resp)
	}
	userToken := resp["access_token"].(string)

	// Register this device.
	rec, resp = doJSON(t, s, http.MethodPost, "/api/v1/devices", userToken, devicePayload())
	if rec.Code != http.StatusCreated || resp["outcome"] != "created" {
		t.Fatalf("register device: code %d, resp %v", rec.Code, resp)
	}
	device := resp["device"].(map[string]interface{})
	deviceID := device["id"].(string)

	// Same payload again folds into the existing record.
	rec, resp = doJSON(t, s, http.MethodPost, "/api/v1/devices", userToken, devicePayload())
	if rec.Code != http.StatusOK || resp["outcome"] != "updated" {
		t.Fatalf("re-register device: code %d, resp %v", rec.Code, resp)
	}

	// Pending device holds the user at the approval screen.
	code, resp = login(t, s, "dave", "correct horse", nil)
	if code != http.StatusOK || resp["next"] != "await_device_approval" {
		t.Fatalf("pending-device login: code %d, resp %v", code, resp)
	}

	// Admin approves the device.
	rec, _ = doJSON(t, s, http.MethodPost, "/api/v1/devices/"+deviceID+"/approve", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve device status = %d", rec.Code)
	}

	// Non-admin cannot approve.
	rec, _ = doJSON(t, s, http.MethodPost, "/api/v1/devices/"+deviceID+"/approve", userToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("user approve status = %d, want 403", rec.Code)
	}

	// Approved device reaches booking with the device bound.
	code, resp = login(t, s, "dave", "correct horse", nil)
	if code != http.StatusOK || resp["next"] != "booking" {
		t.Fatalf("approved login: code %d, resp %v", code, resp)
	}
	if resp["device_id"] != deviceID {
		t.Errorf("device_id = %v, want %s", resp["device_id"], deviceID)
	}
}

func TestBookingSessionFlow(t *testing.T) {
	s, store := newTestServer(t)
	admin := seedAdmin(t, store)
	ctx := context.Background()

	hash, _ := crypto.HashPassword("pass-word1")
	user := &models.User{
		Username: "erin", Email: "erin@example.com", PasswordHash: hash,
		IsVerified: true, IsApproved: true,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatal(err)
	}

	// Register and approve a device so login binds it.
	code, resp := login(t, s, "erin", "pass-word1", devicePayload())
	if code != http.StatusOK {
		t.Fatalf("login: %d %v", code, resp)
	}
	device, err := store.GetLatestDevice(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	device.Status = models.DeviceStatusApproved
	device.Compliant = true
	if err := store.UpdateDevice(ctx, device); err != nil {
		t.Fatal(err)
	}

	code, resp = login(t, s, "erin", "pass-word1", nil)
	if code != http.StatusOK || resp["next"] != "booking" {
		t.Fatalf("login: %d %v", code, resp)
	}
	userToken := resp["access_token"].(string)

	// Honeypot desk is refused and logged.
	rec, _ := doJSON(t, s, http.MethodPost, "/api/v1/bookings", userToken, map[string]interface{}{
		"deskNumber": "HP-01", "date": "2026-09-01", "timeslot": "09:00-13:00", "floor": 1,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("honeypot booking status = %d, want 403", rec.Code)
	}

	// Real booking.
	rec, resp = doJSON(t, s, http.MethodPost, "/api/v1/bookings", userToken, map[string]interface{}{
		"deskNumber": "D-07", "date": "2026-09-01", "timeslot": "09:00-13:00", "floor": 1,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("booking status = %d, body %v", rec.Code, resp)
	}
	bookingID := resp["id"].(string)

	// Conflicting slot.
	rec, _ = doJSON(t, s, http.MethodPost, "/api/v1/bookings", userToken, map[string]interface{}{
		"deskNumber": "D-08", "date": "2026-09-01", "timeslot": "09:00-13:00", "floor": 1,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("conflict status = %d, want 409", rec.Code)
	}

	// Start, pause, fail resume twice, resume, end.
	rec, _ = doJSON(t, s, http.MethodPost, "/api/v1/bookings/"+bookingID+"/start", userToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d", rec.Code)
	}
	rec, _ = doJSON(t, s, http.MethodPost, "/api/v1/bookings/"+bookingID+"/start", userToken, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("double start status = %d, want 409", rec.Code)
	}

	rec, _ = doJSON(t, s, http.MethodPost, "/api/v1/bookings/"+bookingID+"/pause", userToken,
		map[string]interface{}{"reason": "coffee"})
	if rec.Code != http.StatusOK {
		t.Fatalf("pause status = %d", rec.Code)
	}

	for i := 0; i < 2; i++ {
		rec, _ = doJSON(t, s, http.MethodPost, "/api/v1/bookings/"+bookingID+"/resume", userToken,
			map[string]interface{}{"password": "wrong"})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("bad resume status = %d, want 401", rec.Code)
		}
	}
	rec, _ = doJSON(t, s, http.MethodPost, "/api/v1/bookings/"+bookingID+"/resume", userToken,
		map[string]interface{}{"password": "pass-word1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("resume status = %d", rec.Code)
	}

	rec, _ = doJSON(t, s, http.MethodPost, "/api/v1/bookings/"+bookingID+"/end", userToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("end status = %d", rec.Code)
	}

	// The device trail shows the whole story; thresholds were not hit.
	code, resp = login(t, s, admin.Username, "admin-pass", nil)
	if code != http.StatusOK {
		t.Fatal("admin login failed")
	}
	adminToken := resp["access_token"].(string)

	rec, resp = doJSON(t, s, http.MethodGet, "/api/v1/admin/devices/"+device.ID.String()+"/logs", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("device logs status = %d", rec.Code)
	}
	if alerts, ok := resp["alerts"].([]interface{}); ok && len(alerts) != 0 {
		t.Errorf("alerts = %v, want none", alerts)
	}

	counts := map[string]int{}
	for _, raw := range resp["events"].([]interface{}) {
		e := raw.(map[string]interface{})
		counts[e["event"].(string)]++
	}
	want := map[string]int{
		models.EventResumeAuthFailed:  2,
		models.EventSessionResume:     1,
		models.EventSessionPause:      1,
		models.EventSessionStart:      1,
		models.EventSessionEnd:        1,
		models.EventBookingCreated:    1,
		models.EventHoneypotTriggered: 1,
	}
	for kind, n := range want {
		if counts[kind] != n {
			t.Errorf("%s events = %d, want %d", kind, counts[kind], n)
		}
	}
}

func TestDeniedLoginRegistersNoDevice(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()

	hash, _ := crypto.HashPassword("pass-word1")
	unverified := &models.User{
		Username: "frank", Email: "frank@example.com", PasswordHash: hash,
	}
	if err := store.CreateUser(ctx, unverified); err != nil {
		t.Fatal(err)
	}
	unapproved := &models.User{
		Username: "grace", Email: "grace@example.com", PasswordHash: hash,
		IsVerified: true,
	}
	if err := store.CreateUser(ctx, unapproved); err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		username string
		user     *models.User
		reason   string
	}{
		{"frank", unverified, "unverified"},
		{"grace", unapproved, "pending_user_approval"},
	} {
		code, resp := login(t, s, tc.username, "pass-word1", devicePayload())
		if code != http.StatusForbidden || resp["reason"] != tc.reason {
			t.Fatalf("%s login: code %d, resp %v", tc.username, code, resp)
		}
		_, total, err := store.ListDevices(ctx, &tc.user.ID, 10, 0)
		if err != nil {
			t.Fatal(err)
		}
		if total != 0 {
			t.Errorf("%s: %d device rows after denied login, want 0", tc.username, total)
		}
	}
}

func TestRegisterDeviceWithoutUserAgent(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()

	hash, _ := crypto.HashPassword("pass-word1")
	user := &models.User{
		Username: "heidi", Email: "heidi@example.com", PasswordHash: hash,
		IsVerified: true, IsApproved: true,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatal(err)
	}

	code, resp := login(t, s, "heidi", "pass-word1", nil)
	if code != http.StatusOK {
		t.Fatalf("login: %d %v", code, resp)
	}
	token := resp["access_token"].(string)

	rec, resp := doJSON(t, s, http.MethodPost, "/api/v1/devices", token,
		map[string]interface{}{"screen": "1024x768"})
	if rec.Code != http.StatusCreated || resp["outcome"] != "created" {
		t.Fatalf("register without userAgent: code %d, resp %v", rec.Code, resp)
	}
	device := resp["device"].(map[string]interface{})
	if device["name"] != "Device_heidi" {
		t.Errorf("device name = %v, want Device_heidi", device["name"])
	}
}

func TestClientIP(t *testing.T) {
	for _, tc := range []struct {
		remoteAddr string
		want       string
	}{
		{"10.0.0.1:54321", "10.0.0.1"},
		{"10.0.0.1", "10.0.0.1"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"2001:db8::1", "2001:db8::1"},
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remoteAddr
		if got := clientIP(req); got != tc.want {
			t.Errorf("clientIP(%q) = %q, want %q", tc.remoteAddr, got, tc.want)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	s, _ := newTestServer(t)

	rec, _ := doJSON(t, s, http.MethodGet, "/api/v1/devices", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", rec.Code)
	}

	rec, _ = doJSON(t, s, http.MethodGet, "/api/v1/devices", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", rec.Code)
	}
}

func TestAdminDashboardCounts(t *testing.T) {
	s, store := newTestServer(t)
	admin := seedAdmin(t, store)
	ctx := context.Background()

	hash, _ := crypto.HashPassword("pw")
	for _, name := range []string{"u1", "u2"} {
		u := &models.User{
			Username: name, Email: name + "@example.com", PasswordHash: hash,
			IsVerified: true,
		}
		if err := store.CreateUser(ctx, u); err != nil {
			t.Fatal(err)
		}
		d := &models.Device{UserID: u.ID, Fingerprint: "fp-" + name, Status: models.DeviceStatusPending}
		if err := store.CreateDevice(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	code, resp := login(t, s, admin.Username, "admin-pass", nil)
	if code != http.StatusOK {
		t.Fatal("admin login failed")
	}
	adminToken := resp["access_token"].(string)

	rec, resp := doJSON(t, s, http.MethodGet, "/api/v1/admin/dashboard", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d", rec.Code)
	}
	if resp["devices_total"].(float64) != 2 || resp["devices_pending"].(float64) != 2 {
		t.Errorf("device counts = %v/%v, want 2/2", resp["devices_total"], resp["devices_pending"])
	}
	if resp["users_pending"].(float64) != 2 {
		t.Errorf("users_pending = %v, want 2", resp["users_pending"])
	}

	rec, resp = doJSON(t, s, http.MethodGet, "/api/v1/admin/users/pending", adminToken, nil)
	if rec.Code != http.StatusOK || resp["total"].(float64) != 2 {
		t.Errorf("pending users total = %v, want 2", resp["total"])
	}
}
