// Package registry owns device records and their approval lifecycle.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	ua "github.com/mileusna/useragent"

	"github.com/Shashwathi05/deskhop/internal/authz"
	"github.com/Shashwathi05/deskhop/internal/events"
	"github.com/Shashwathi05/deskhop/internal/fingerprint"
	"github.com/Shashwathi05/deskhop/internal/models"
	"github.com/Shashwathi05/deskhop/internal/storage"
)

// Outcome reports what RegisterOrUpdate did with the payload
type Outcome string

const (
	OutcomeCreated         Outcome = "created"
	OutcomeUpdated         Outcome = "updated"
	OutcomeDedupUpdated    Outcome = "dedup_updated"
	OutcomeAlreadyApproved Outcome = "already_approved"
)

// dedupWindow is the age under which a just-created device from the same
// source IP absorbs a follow-up registration instead of a new row being
// created. Double-submits from client-side retries land inside it.
const dedupWindow = 5 * time.Second

// Registration is the client-supplied registration request
type Registration struct {
	fingerprint.Payload

	Name      string `json:"name"`
	OSVersion string `json:"osVersion"`
}

// Registry implements the device approval state machine over the store.
// RegisterOrUpdate runs inside a transaction with row locks so that two
// concurrent registrations for the same (user, fingerprint) serialize;
// the unique index on that pair is the backstop for the create race.
type Registry struct {
	store  storage.Store
	events *events.Recorder
	now    func() time.Time
}

// New creates a device registry
func New(store storage.Store, recorder *events.Recorder) *Registry {
	return &Registry{store: store, events: recorder, now: time.Now}
}

// RegisterOrUpdate registers the device described by the payload for the
// user, or folds the request into an existing record. Safe to call
// repeatedly with identical payloads: one physical device ends up as
// exactly one row.
func (r *Registry) RegisterOrUpdate(ctx context.Context, user *models.User, reg Registration, sourceIP string) (*models.Device, Outcome, error) {
	fp := fingerprint.Compute(reg.Payload)
	score := fingerprint.Score(reg.Payload)

	device, outcome, err := r.register(ctx, user, reg, fp, score, sourceIP)
	if errors.Is(err, storage.ErrDuplicateKey) {
		// Lost a concurrent create race; the row exists now, so a second
		// pass takes the update path.
		device, outcome, err = r.register(ctx, user, reg, fp, score, sourceIP)
	}
	return device, outcome, err
}

func (r *Registry) register(ctx context.Context, user *models.User, reg Registration, fp string, score int, sourceIP string) (*models.Device, Outcome, error) {
	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return nil, "", err
	}
	defer tx.Rollback()

	existing, err := tx.GetDeviceByFingerprint(ctx, user.ID, fp)
	if err == nil {
		if existing.Status == models.DeviceStatusApproved {
			// Re-registration from a trusted device must not downgrade it.
			return existing, OutcomeAlreadyApproved, nil
		}

		r.applyPayload(existing, reg, fp, score, sourceIP)
		if err := tx.UpdateDevice(ctx, existing); err != nil {
			return nil, "", err
		}

		if _, err := r.events.RecordIn(ctx, tx, events.Entry{
			Kind:     models.EventDeviceRegisterUpdate,
			UserID:   &user.ID,
			DeviceID: &existing.ID,
			IP:       sourceIP,
		}); err != nil {
			return nil, "", err
		}

		if err := tx.Commit(); err != nil {
			return nil, "", err
		}
		return existing, OutcomeUpdated, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, "", err
	}

	// Dedup guard: a device created moments ago from the same IP absorbs
	// this request instead of becoming a second row.
	recent, err := tx.GetLatestDevice(ctx, user.ID)
	if err == nil && recent.IPAddress == sourceIP && r.now().Sub(recent.CreatedAt) < dedupWindow {
		r.applyPayload(recent, reg, fp, score, sourceIP)
		if err := tx.UpdateDevice(ctx, recent); err != nil {
			return nil, "", err
		}

		if _, err := r.events.RecordIn(ctx, tx, events.Entry{
			Kind:     models.EventDeviceRegisterDedup,
			UserID:   &user.ID,
			DeviceID: &recent.ID,
			IP:       sourceIP,
		}); err != nil {
			return nil, "", err
		}

		if err := tx.Commit(); err != nil {
			return nil, "", err
		}
		return recent, OutcomeDedupUpdated, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, "", err
	}

	device := &models.Device{
		UserID:      user.ID,
		Name:        deviceName(reg, user.Username),
		OSVersion:   osVersion(reg),
		UserAgent:   reg.UserAgent,
		Platform:    reg.Platform,
		CPUThreads:  reg.CPUThreads,
		Screen:      reg.Screen,
		Timezone:    reg.Timezone,
		IPAddress:   sourceIP,
		Fingerprint: fp,
		RiskScore:   score,
		Status:      models.DeviceStatusPending,
		Compliant:   false,
	}

	if err := tx.CreateDevice(ctx, device); err != nil {
		return nil, "", err
	}

	if _, err := r.events.RecordIn(ctx, tx, events.Entry{
		Kind:     models.EventDeviceRegistered,
		UserID:   &user.ID,
		DeviceID: &device.ID,
		IP:       sourceIP,
	}); err != nil {
		return nil, "", err
	}

	if err := tx.Commit(); err != nil {
		return nil, "", err
	}
	return device, OutcomeCreated, nil
}

// applyPayload overwrites the mutable attributes and forces the record
// back to Pending for re-approval.
func (r *Registry) applyPayload(device *models.Device, reg Registration, fp string, score int, sourceIP string) {
	if reg.Name != "" {
		device.Name = reg.Name
	}
	if reg.OSVersion != "" {
		device.OSVersion = reg.OSVersion
	}
	device.UserAgent = reg.UserAgent
	device.Platform = reg.Platform
	device.CPUThreads = reg.CPUThreads
	device.Screen = reg.Screen
	device.Timezone = reg.Timezone
	device.IPAddress = sourceIP
	device.Fingerprint = fp
	device.RiskScore = score
	device.Status = models.DeviceStatusPending
	device.Compliant = false
}

// Approve marks a device trusted. Admin only.
func (r *Registry) Approve(ctx context.Context, deviceID uuid.UUID, actor authz.Actor) (*models.Device, error) {
	return r.setStatus(ctx, deviceID, actor, models.DeviceStatusApproved, models.EventDeviceApproved)
}

// Reject marks a device untrusted. Admin only.
func (r *Registry) Reject(ctx context.Context, deviceID uuid.UUID, actor authz.Actor) (*models.Device, error) {
	return r.setStatus(ctx, deviceID, actor, models.DeviceStatusRejected, models.EventDeviceRejected)
}

func (r *Registry) setStatus(ctx context.Context, deviceID uuid.UUID, actor authz.Actor, status models.DeviceStatus, event string) (*models.Device, error) {
	if err := authz.RequireAdmin(actor); err != nil {
		return nil, err
	}

	device, err := r.store.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	device.Status = status
	device.Compliant = status == models.DeviceStatusApproved

	if err := r.store.UpdateDevice(ctx, device); err != nil {
		return nil, err
	}

	if _, err := r.events.Record(ctx, events.Entry{
		Kind:     event,
		UserID:   &device.UserID,
		DeviceID: &device.ID,
		IP:       actor.IP,
	}); err != nil {
		return nil, err
	}

	return device, nil
}

// Delete removes a device. Allowed for the owner or an admin.
func (r *Registry) Delete(ctx context.Context, deviceID uuid.UUID, actor authz.Actor) error {
	device, err := r.store.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}

	if err := authz.RequireOwnerOrAdmin(actor, device.UserID); err != nil {
		return err
	}

	if err := r.store.DeleteDevice(ctx, deviceID); err != nil {
		return err
	}

	_, err = r.events.Record(ctx, events.Entry{
		Kind:     models.EventDeviceDeleted,
		UserID:   &device.UserID,
		DeviceID: &device.ID,
		Details:  fmt.Sprintf("deleted by %s", actor.UserID),
		IP:       actor.IP,
	})
	return err
}

// deviceName picks a display name: the client-supplied one, a readable
// description of the browser, or the username-based fallback.
func deviceName(reg Registration, username string) string {
	if reg.Name != "" {
		return reg.Name
	}

	parsed := ua.Parse(reg.UserAgent)
	if parsed.Name != "" && parsed.OS != "" {
		return parsed.Name + " on " + parsed.OS
	}

	return "Device_" + username
}

func osVersion(reg Registration) string {
	if reg.OSVersion != "" {
		return reg.OSVersion
	}
	return reg.Platform
}
