// Package events owns the append-only security event log.
package events

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/Shashwathi05/deskhop/internal/models"
	"github.com/Shashwathi05/deskhop/internal/storage"
)

// SubjectPrefix is the NATS subject prefix for published events; the
// event kind is appended, e.g. "deskhop.events.session_pause".
const SubjectPrefix = "deskhop.events."

// Recorder appends security events to the activity log and fans them out
// over NATS when a connection is configured. The store append is
// authoritative: if it fails the enclosing operation must fail with it.
// The NATS publish is best-effort and never fails the caller.
type Recorder struct {
	store storage.Store
	nc    *nats.Conn
}

// NewRecorder creates a recorder. nc may be nil to disable fan-out.
func NewRecorder(store storage.Store, nc *nats.Conn) *Recorder {
	return &Recorder{store: store, nc: nc}
}

// Entry describes one event to record
type Entry struct {
	Kind     string
	UserID   *uuid.UUID
	DeviceID *uuid.UUID
	Details  string
	IP       string
}

// Record appends one entry through the recorder's own store
func (r *Recorder) Record(ctx context.Context, e Entry) (*models.ActivityLog, error) {
	return r.RecordIn(ctx, r.store, e)
}

// RecordIn appends one entry through the given store, so callers holding
// a transaction can make the event part of it.
func (r *Recorder) RecordIn(ctx context.Context, st storage.Store, e Entry) (*models.ActivityLog, error) {
	entry := &models.ActivityLog{
		UserID:    e.UserID,
		DeviceID:  e.DeviceID,
		Event:     e.Kind,
		Details:   e.Details,
		IPAddress: e.IP,
	}

	if err := st.CreateActivityLog(ctx, entry); err != nil {
		return nil, err
	}

	r.publish(entry)
	return entry, nil
}

// Query lists recorded events, newest first
func (r *Recorder) Query(ctx context.Context, filters storage.ActivityLogFilters, limit, offset int) ([]*models.ActivityLog, int64, error) {
	return r.store.ListActivityLogs(ctx, filters, limit, offset)
}

func (r *Recorder) publish(entry *models.ActivityLog) {
	if r.nc == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal event for publish")
		return
	}

	if err := r.nc.Publish(SubjectPrefix+entry.Event, data); err != nil {
		log.Warn().Err(err).Str("event", entry.Event).Msg("Failed to publish event")
	}
}
