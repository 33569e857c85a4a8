package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Shashwathi05/deskhop/internal/authz"
	"github.com/Shashwathi05/deskhop/internal/events"
	"github.com/Shashwathi05/deskhop/internal/fingerprint"
	"github.com/Shashwathi05/deskhop/internal/models"
	"github.com/Shashwathi05/deskhop/internal/storage"
)

func newTestRegistry(t *testing.T) (*Registry, *storage.MemoryStore, *models.User) {
	t.Helper()

	store := storage.NewMemoryStore()
	reg := New(store, events.NewRecorder(store, nil))

	user := &models.User{
		Username:   "alice",
		Email:      "alice@example.com",
		IsVerified: true,
		IsApproved: true,
	}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return reg, store, user
}

func chromeRegistration() Registration {
	return Registration{
		Payload: fingerprint.Payload{
			UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36",
			Platform:   "Win32",
			CPUThreads: "8",
			Screen:     "1920x1080",
			Timezone:   "Europe/Berlin",
		},
	}
}

func countEvents(t *testing.T, store *storage.MemoryStore, kind string) int64 {
	t.Helper()
	logs, _, err := store.ListActivityLogs(context.Background(),
		storage.ActivityLogFilters{Event: &kind}, 0, 0)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	return int64(len(logs))
}

func TestRegisterCreatesPendingDevice(t *testing.T) {
	reg, store, user := newTestRegistry(t)
	ctx := context.Background()

	device, outcome, err := reg.RegisterOrUpdate(ctx, user, chromeRegistration(), "10.0.0.1")
	if err != nil {
		t.Fatalf("RegisterOrUpdate: %v", err)
	}
	if outcome != OutcomeCreated {
		t.Fatalf("outcome = %s, want created", outcome)
	}
	if device.Status != models.DeviceStatusPending {
		t.Errorf("status = %s, want Pending", device.Status)
	}
	if device.Compliant {
		t.Error("new device must not be compliant")
	}
	if device.Fingerprint == "" {
		t.Error("fingerprint not computed")
	}
	if device.Name != "Chrome on Windows" {
		t.Errorf("derived name = %q", device.Name)
	}
	if n := countEvents(t, store, models.EventDeviceRegistered); n != 1 {
		t.Errorf("device_registered events = %d, want 1", n)
	}
}

func TestRegisterIsIdempotentPerFingerprint(t *testing.T) {
	reg, store, user := newTestRegistry(t)
	ctx := context.Background()

	first, _, err := reg.RegisterOrUpdate(ctx, user, chromeRegistration(), "10.0.0.1")
	if err != nil {
		t.Fatal(err)
	}

	second, outcome, err := reg.RegisterOrUpdate(ctx, user, chromeRegistration(), "10.0.0.2")
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeUpdated {
		t.Fatalf("outcome = %s, want updated", outcome)
	}
	if second.ID != first.ID {
		t.Error("same fingerprint created a second row")
	}
	if second.IPAddress != "10.0.0.2" {
		t.Error("update did not refresh the source IP")
	}

	if _, total, err := store.ListDevices(ctx, &user.ID, 0, 0); err != nil || total != 1 {
		t.Errorf("device count = %d (err %v), want 1", total, err)
	}
}

func TestRegisterNeverDowngradesApprovedDevice(t *testing.T) {
	reg, _, user := newTestRegistry(t)
	ctx := context.Background()
	admin := authz.Actor{UserID: uuid.New(), IsAdmin: true}

	device, _, err := reg.RegisterOrUpdate(ctx, user, chromeRegistration(), "10.0.0.1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Approve(ctx, device.ID, admin); err != nil {
		t.Fatalf("approve: %v", err)
	}

	again, outcome, err := reg.RegisterOrUpdate(ctx, user, chromeRegistration(), "10.0.0.9")
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeAlreadyApproved {
		t.Fatalf("outcome = %s, want already_approved", outcome)
	}
	if again.Status != models.DeviceStatusApproved {
		t.Error("approved device was downgraded by re-registration")
	}
	if again.IPAddress == "10.0.0.9" {
		t.Error("approved device record must stay untouched")
	}
}

func TestRegisterDedupWindow(t *testing.T) {
	reg, store, user := newTestRegistry(t)
	ctx := context.Background()

	if _, _, err := reg.RegisterOrUpdate(ctx, user, chromeRegistration(), "10.0.0.1"); err != nil {
		t.Fatal(err)
	}

	// A different fingerprint from the same IP moments later is a
	// client retry, not a second device.
	other := chromeRegistration()
	other.Timezone = "Asia/Tokyo"

	_, outcome, err := reg.RegisterOrUpdate(ctx, user, other, "10.0.0.1")
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeDedupUpdated {
		t.Fatalf("outcome = %s, want dedup_updated", outcome)
	}
	if _, total, _ := store.ListDevices(ctx, &user.ID, 0, 0); total != 1 {
		t.Errorf("device count = %d, want 1", total)
	}
	if n := countEvents(t, store, models.EventDeviceRegisterDedup); n != 1 {
		t.Errorf("dedup events = %d, want 1", n)
	}
}

func TestRegisterDedupDoesNotCrossIPOrWindow(t *testing.T) {
	reg, store, user := newTestRegistry(t)
	ctx := context.Background()

	if _, _, err := reg.RegisterOrUpdate(ctx, user, chromeRegistration(), "10.0.0.1"); err != nil {
		t.Fatal(err)
	}

	other := chromeRegistration()
	other.Timezone = "Asia/Tokyo"

	// Different IP: a genuine second device.
	_, outcome, err := reg.RegisterOrUpdate(ctx, user, other, "192.168.1.5")
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeCreated {
		t.Fatalf("outcome = %s, want created", outcome)
	}

	// Same IP but past the window.
	reg.now = func() time.Time { return time.Now().Add(time.Minute) }
	third := chromeRegistration()
	third.Timezone = "Australia/Sydney"
	_, outcome, err = reg.RegisterOrUpdate(ctx, user, third, "192.168.1.5")
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeCreated {
		t.Fatalf("outcome after window = %s, want created", outcome)
	}

	if _, total, _ := store.ListDevices(ctx, &user.ID, 0, 0); total != 3 {
		t.Errorf("device count = %d, want 3", total)
	}
}

func TestApproveRequiresAdmin(t *testing.T) {
	reg, _, user := newTestRegistry(t)
	ctx := context.Background()

	device, _, err := reg.RegisterOrUpdate(ctx, user, chromeRegistration(), "10.0.0.1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := reg.Approve(ctx, device.ID, authz.Actor{UserID: user.ID}); !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("non-admin approve error = %v, want ErrForbidden", err)
	}

	admin := authz.Actor{UserID: uuid.New(), IsAdmin: true}
	approved, err := reg.Approve(ctx, device.ID, admin)
	if err != nil {
		t.Fatalf("admin approve: %v", err)
	}
	if approved.Status != models.DeviceStatusApproved || !approved.Compliant {
		t.Error("approve did not mark the device compliant")
	}

	if _, err := reg.Approve(ctx, uuid.New(), admin); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown device error = %v, want ErrNotFound", err)
	}
}

func TestRejectMarksNonCompliant(t *testing.T) {
	reg, store, user := newTestRegistry(t)
	ctx := context.Background()
	admin := authz.Actor{UserID: uuid.New(), IsAdmin: true}

	device, _, err := reg.RegisterOrUpdate(ctx, user, chromeRegistration(), "10.0.0.1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Approve(ctx, device.ID, admin); err != nil {
		t.Fatal(err)
	}

	rejected, err := reg.Reject(ctx, device.ID, admin)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != models.DeviceStatusRejected || rejected.Compliant {
		t.Error("reject did not clear compliance")
	}
	if n := countEvents(t, store, models.EventDeviceRejected); n != 1 {
		t.Errorf("device_rejected events = %d, want 1", n)
	}
}

func TestDeleteOwnerOrAdminOnly(t *testing.T) {
	reg, store, user := newTestRegistry(t)
	ctx := context.Background()

	device, _, err := reg.RegisterOrUpdate(ctx, user, chromeRegistration(), "10.0.0.1")
	if err != nil {
		t.Fatal(err)
	}

	stranger := authz.Actor{UserID: uuid.New()}
	if err := reg.Delete(ctx, device.ID, stranger); !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("stranger delete error = %v, want ErrForbidden", err)
	}

	owner := authz.Actor{UserID: user.ID}
	if err := reg.Delete(ctx, device.ID, owner); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if _, err := store.GetDevice(ctx, device.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Error("device still present after delete")
	}
}
