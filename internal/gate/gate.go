// Package gate decides whether a user may proceed past login into
// booking, composing account state with the device approval lifecycle.
package gate

import (
	"context"
	"errors"

	"github.com/Shashwathi05/deskhop/internal/models"
	"github.com/Shashwathi05/deskhop/internal/storage"
)

// Decision is where the client is sent after a successful credential
// check.
type Decision string

const (
	DecisionAdminDashboard      Decision = "admin_dashboard"
	DecisionDeviceRegistration  Decision = "device_registration"
	DecisionAwaitDeviceApproval Decision = "await_device_approval"
	DecisionBooking             Decision = "booking"
	DecisionDenied              Decision = "denied"
)

// Denial reasons
const (
	ReasonInvalidCredentials  = "invalid_credentials"
	ReasonUnverified          = "unverified"
	ReasonPendingUserApproval = "pending_user_approval"
)

// Result carries the decision plus the device bound to the session when
// the decision is DecisionBooking.
type Result struct {
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason,omitempty"`

	Device *models.Device `json:"-"`
}

// Denied builds a denial result
func Denied(reason string) Result {
	return Result{Decision: DecisionDenied, Reason: reason}
}

// Evaluate applies the gate policy, in order: verification, admin
// bypass, account approval, then the state of the user's most recent
// device. Admins bypass device compliance entirely.
func Evaluate(ctx context.Context, st storage.Store, user *models.User) (Result, error) {
	if !user.IsVerified {
		return Denied(ReasonUnverified), nil
	}

	if user.IsAdmin {
		return Result{Decision: DecisionAdminDashboard}, nil
	}

	if !user.IsApproved {
		return Denied(ReasonPendingUserApproval), nil
	}

	latest, err := st.GetLatestDevice(ctx, user.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{Decision: DecisionDeviceRegistration}, nil
	}
	if err != nil {
		return Result{}, err
	}

	switch latest.Status {
	case models.DeviceStatusRejected:
		// A rejected device must be re-registered before it can be
		// approved again.
		return Result{Decision: DecisionDeviceRegistration, Device: latest}, nil
	case models.DeviceStatusApproved:
		return Result{Decision: DecisionBooking, Device: latest}, nil
	default:
		return Result{Decision: DecisionAwaitDeviceApproval, Device: latest}, nil
	}
}
