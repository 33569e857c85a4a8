// Package authz holds the single authorization capability check used by
// every mutating registry and session operation, instead of re-deriving
// admin/ownership rules per call site.
package authz

import (
	"errors"

	"github.com/google/uuid"
)

// ErrForbidden means the caller is not allowed to perform the operation
var ErrForbidden = errors.New("forbidden")

// Actor identifies the caller of a protected operation, as established
// from the verified session token.
type Actor struct {
	UserID   uuid.UUID
	DeviceID *uuid.UUID
	IsAdmin  bool
	IP       string
}

// RequireAdmin fails unless the actor is an admin
func RequireAdmin(actor Actor) error {
	if !actor.IsAdmin {
		return ErrForbidden
	}
	return nil
}

// RequireOwner fails unless the actor owns the resource. Admins do not
// get a pass here; operations that allow admin override combine this
// with RequireAdmin explicitly.
func RequireOwner(actor Actor, ownerID uuid.UUID) error {
	if actor.UserID != ownerID {
		return ErrForbidden
	}
	return nil
}

// RequireOwnerOrAdmin fails unless the actor owns the resource or is an
// admin
func RequireOwnerOrAdmin(actor Actor, ownerID uuid.UUID) error {
	if actor.UserID == ownerID || actor.IsAdmin {
		return nil
	}
	return ErrForbidden
}
