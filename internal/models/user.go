package models

import (
	"time"
)

// User represents a system user
type User struct {
	BaseModel

	Username string `json:"username" db:"username"`
	Email    string `json:"email" db:"email"`
	EmpID    string `json:"empId,omitempty" db:"emp_id"`

	PasswordHash string `json:"-" db:"password_hash"`

	// IsVerified is set once the email verification link is followed.
	// IsApproved is an admin action; unapproved accounts cannot proceed
	// past login even with valid credentials.
	IsVerified bool `json:"isVerified" db:"is_verified"`
	IsApproved bool `json:"isApproved" db:"is_approved"`
	IsAdmin    bool `json:"isAdmin" db:"is_admin"`

	LastLoginAt *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`
}
