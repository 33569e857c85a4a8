package models

import (
	"time"

	"github.com/google/uuid"
)

// ActivityLog is an immutable record of one security-relevant event.
// Entries are append-only; nothing in the normal flow updates or deletes
// them.
type ActivityLog struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	UserID   *uuid.UUID `json:"userId,omitempty" db:"user_id"`
	DeviceID *uuid.UUID `json:"deviceId,omitempty" db:"device_id"`

	Event     string `json:"event" db:"event"`
	Details   string `json:"details,omitempty" db:"details"`
	IPAddress string `json:"ipAddress,omitempty" db:"ip_address"`
}

// Event kinds written by the auth, registry and session flows.
const (
	EventLoginFailed            = "login_failed"
	EventLoginSuccess           = "login_success"
	EventLoginBlockedUnapproved = "login_blocked_unapproved"
	EventLoginDeviceRejected    = "login_device_rejected"
	EventAdminLogin             = "admin_login"
	EventLogout                 = "logout"
	EventEmailSendFailed        = "email_send_failed"

	EventDeviceRegistered     = "device_registered"
	EventDeviceRegisterUpdate = "device_register_update"
	EventDeviceRegisterDedup  = "device_register_dedup"
	EventDeviceAutoRegistered = "device_auto_registered_pending"
	EventDeviceApproved       = "device_approved"
	EventDeviceRejected       = "device_rejected"
	EventDeviceDeleted        = "device_deleted"

	EventBookingCreated    = "booking_created"
	EventSessionStart      = "session_start"
	EventSessionPause      = "session_pause"
	EventSessionResume     = "session_resume"
	EventResumeAuthFailed  = "resume_auth_failed"
	EventSessionEnd        = "session_end"
	EventHoneypotTriggered = "honeypot_triggered"
)
