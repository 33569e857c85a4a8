package models

import (
	"github.com/google/uuid"
)

// DeviceStatus represents the approval lifecycle state of a device
type DeviceStatus string

const (
	DeviceStatusPending  DeviceStatus = "Pending"
	DeviceStatusApproved DeviceStatus = "Approved"
	DeviceStatusRejected DeviceStatus = "Rejected"
)

// Device represents one claimed client endpoint for one user.
// The fingerprint is derived server-side from the raw attributes and is
// never taken from the client directly.
type Device struct {
	BaseModel

	UserID uuid.UUID `json:"userId" db:"user_id"`

	Name      string `json:"name" db:"name"`
	OSVersion string `json:"osVersion,omitempty" db:"os_version"`

	// Raw client-reported attributes, kept for admin inspection and for
	// recomputing the fingerprint on re-registration.
	UserAgent  string `json:"userAgent" db:"user_agent"`
	Platform   string `json:"platform" db:"platform"`
	CPUThreads string `json:"cpuThreads,omitempty" db:"cpu_threads"`
	Screen     string `json:"screen,omitempty" db:"screen"`
	Timezone   string `json:"timezone,omitempty" db:"timezone"`

	IPAddress   string `json:"ipAddress" db:"ip_address"`
	Fingerprint string `json:"fingerprint" db:"fingerprint"`

	RiskScore int          `json:"riskScore" db:"risk_score"`
	Status    DeviceStatus `json:"status" db:"status"`

	// Compliant mirrors Status == Approved, kept as a column for the
	// admin dashboard queries.
	Compliant bool `json:"compliant" db:"compliant"`
}
