// Package session drives the lifecycle of a booked desk session:
// Upcoming -> Active -> Completed, with pause/resume re-authentication
// gating re-entry and threshold-based anomaly alerts on top of the
// event log.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Shashwathi05/deskhop/internal/authz"
	"github.com/Shashwathi05/deskhop/internal/events"
	"github.com/Shashwathi05/deskhop/internal/models"
	"github.com/Shashwathi05/deskhop/internal/storage"
	"github.com/Shashwathi05/deskhop/pkg/crypto"
)

var (
	// ErrInvalidTransition means the booking is not in the state the
	// operation requires.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrResumeAuthFailed is the retryable failure returned when the
	// resume credential check does not match. It is logged but carries
	// no lockout.
	ErrResumeAuthFailed = errors.New("resume authentication failed")

	// ErrHoneypot is returned for booking attempts against decoy desks.
	ErrHoneypot = errors.New("desk unavailable")
)

// honeypotPrefix marks decoy desk identifiers. Booking one is always
// rejected and logged as a security signal.
const honeypotPrefix = "HP"

// Alerting thresholds over a rolling one-hour window, computed at read
// time from the event log. Alerts surface information only; escalation
// is a manual admin action.
const (
	alertWindow           = time.Hour
	failedResumeThreshold = 3
	pauseThreshold        = 5
)

// Controller manages desk session state transitions
type Controller struct {
	store  storage.Store
	events *events.Recorder
	now    func() time.Time
}

// NewController creates a session controller
func NewController(store storage.Store, recorder *events.Recorder) *Controller {
	return &Controller{store: store, events: recorder, now: time.Now}
}

// Book creates an Upcoming booking for the actor. Decoy desks are
// rejected unconditionally and logged; slot conflicts surface as
// storage.ErrDuplicateKey.
func (c *Controller) Book(ctx context.Context, actor authz.Actor, desk, date, timeslot string, floor int) (*models.Booking, error) {
	if strings.HasPrefix(desk, honeypotPrefix) {
		if _, err := c.events.Record(ctx, events.Entry{
			Kind:     models.EventHoneypotTriggered,
			UserID:   &actor.UserID,
			DeviceID: actor.DeviceID,
			Details:  fmt.Sprintf("booking attempt on decoy desk %s", desk),
			IP:       actor.IP,
		}); err != nil {
			return nil, err
		}
		return nil, ErrHoneypot
	}

	booking := &models.Booking{
		UserID:     actor.UserID,
		DeskNumber: desk,
		Date:       date,
		Timeslot:   timeslot,
		Floor:      floor,
		Status:     models.BookingStatusUpcoming,
	}

	if err := c.store.CreateBooking(ctx, booking); err != nil {
		return nil, err
	}

	if _, err := c.events.Record(ctx, events.Entry{
		Kind:     models.EventBookingCreated,
		UserID:   &actor.UserID,
		DeviceID: actor.DeviceID,
		Details:  fmt.Sprintf("desk %s on %s (%s)", desk, date, timeslot),
		IP:       actor.IP,
	}); err != nil {
		return nil, err
	}

	return booking, nil
}

// Start transitions a booking from Upcoming to Active and stamps the
// session start. The store-level conditional write makes a concurrent
// double-start lose cleanly.
func (c *Controller) Start(ctx context.Context, bookingID uuid.UUID, actor authz.Actor) (*models.Booking, error) {
	booking, err := c.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if err := authz.RequireOwner(actor, booking.UserID); err != nil {
		return nil, err
	}

	if booking.Status != models.BookingStatusUpcoming {
		return nil, ErrInvalidTransition
	}

	start := c.now()
	err = c.store.UpdateBookingStatus(ctx, bookingID,
		models.BookingStatusUpcoming, models.BookingStatusActive, &start, nil)
	if errors.Is(err, storage.ErrNotFound) {
		// Status moved between the read and the conditional write.
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}

	if _, err := c.events.Record(ctx, events.Entry{
		Kind:     models.EventSessionStart,
		UserID:   &actor.UserID,
		DeviceID: actor.DeviceID,
		IP:       actor.IP,
	}); err != nil {
		return nil, err
	}

	booking.Status = models.BookingStatusActive
	booking.SessionStart = &start
	return booking, nil
}

// Pause records a pause event for an active session. It does not change
// booking status; the pause only gates re-entry through
// ResumeAuthenticate.
func (c *Controller) Pause(ctx context.Context, bookingID uuid.UUID, actor authz.Actor, reason string) error {
	booking, err := c.store.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}

	if err := authz.RequireOwner(actor, booking.UserID); err != nil {
		return err
	}

	_, err = c.events.Record(ctx, events.Entry{
		Kind:     models.EventSessionPause,
		UserID:   &actor.UserID,
		DeviceID: actor.DeviceID,
		Details:  reason,
		IP:       actor.IP,
	})
	return err
}

// ResumeAuthenticate re-validates the owner's current password after a
// pause. A mismatch is recorded and returned as ErrResumeAuthFailed,
// which the caller may retry; a match records the resume and returns the
// user to the still-Active session.
func (c *Controller) ResumeAuthenticate(ctx context.Context, bookingID uuid.UUID, actor authz.Actor, password string) error {
	booking, err := c.store.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}

	if err := authz.RequireOwner(actor, booking.UserID); err != nil {
		return err
	}

	user, err := c.store.GetUser(ctx, actor.UserID)
	if err != nil {
		return err
	}

	if !crypto.VerifyPassword(password, user.PasswordHash) {
		if _, err := c.events.Record(ctx, events.Entry{
			Kind:     models.EventResumeAuthFailed,
			UserID:   &actor.UserID,
			DeviceID: actor.DeviceID,
			IP:       actor.IP,
		}); err != nil {
			return err
		}
		return ErrResumeAuthFailed
	}

	_, err = c.events.Record(ctx, events.Entry{
		Kind:     models.EventSessionResume,
		UserID:   &actor.UserID,
		DeviceID: actor.DeviceID,
		IP:       actor.IP,
	})
	return err
}

// End transitions a booking from Active to Completed and stamps the
// session end. Completed is final.
func (c *Controller) End(ctx context.Context, bookingID uuid.UUID, actor authz.Actor) (*models.Booking, error) {
	booking, err := c.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if err := authz.RequireOwner(actor, booking.UserID); err != nil {
		return nil, err
	}

	if booking.Status != models.BookingStatusActive {
		return nil, ErrInvalidTransition
	}

	end := c.now()
	err = c.store.UpdateBookingStatus(ctx, bookingID,
		models.BookingStatusActive, models.BookingStatusCompleted, nil, &end)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}

	if _, err := c.events.Record(ctx, events.Entry{
		Kind:     models.EventSessionEnd,
		UserID:   &actor.UserID,
		DeviceID: actor.DeviceID,
		IP:       actor.IP,
	}); err != nil {
		return nil, err
	}

	booking.Status = models.BookingStatusCompleted
	booking.SessionEnd = &end
	return booking, nil
}

// Alerts computes the anomaly alerts for a device over the rolling
// window ending now. Purely informational; nothing is locked.
func (c *Controller) Alerts(ctx context.Context, deviceID uuid.UUID) ([]string, error) {
	since := c.now().Add(-alertWindow)

	var alerts []string

	failed, err := c.store.CountActivityEvents(ctx, deviceID, models.EventResumeAuthFailed, since)
	if err != nil {
		return nil, err
	}
	if failed >= failedResumeThreshold {
		alerts = append(alerts, fmt.Sprintf("%d failed resume attempts last hour.", failed))
	}

	pauses, err := c.store.CountActivityEvents(ctx, deviceID, models.EventSessionPause, since)
	if err != nil {
		return nil, err
	}
	if pauses >= pauseThreshold {
		alerts = append(alerts, fmt.Sprintf("%d pauses last hour.", pauses))
	}

	return alerts, nil
}
