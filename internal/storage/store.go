package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Shashwathi05/deskhop/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrUnavailable  = errors.New("store unavailable")
)

// Store defines the storage interface
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// User methods
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	ListUsers(ctx context.Context, filters UserFilters, limit, offset int) ([]*models.User, int64, error)

	// Device methods
	CreateDevice(ctx context.Context, device *models.Device) error
	GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error)
	GetDeviceByFingerprint(ctx context.Context, userID uuid.UUID, fingerprint string) (*models.Device, error)
	GetLatestDevice(ctx context.Context, userID uuid.UUID) (*models.Device, error)
	UpdateDevice(ctx context.Context, device *models.Device) error
	DeleteDevice(ctx context.Context, id uuid.UUID) error
	ListDevices(ctx context.Context, userID *uuid.UUID, limit, offset int) ([]*models.Device, int64, error)
	CountDevices(ctx context.Context) (total, pending int64, err error)
	CountDeviceOwners(ctx context.Context) (int64, error)

	// Booking methods
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	// UpdateBookingStatus is a conditional write: the row is only
	// changed when its current status equals from. ErrNotFound means the
	// precondition did not hold (or the row is gone).
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus, sessionStart, sessionEnd *time.Time) error
	ListUserBookings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Booking, int64, error)

	// Activity log methods (append-only)
	CreateActivityLog(ctx context.Context, entry *models.ActivityLog) error
	ListActivityLogs(ctx context.Context, filters ActivityLogFilters, limit, offset int) ([]*models.ActivityLog, int64, error)
	CountActivityEvents(ctx context.Context, deviceID uuid.UUID, event string, since time.Time) (int64, error)

	// Close the store
	Close() error
}

// UserFilters represents filters for user listing
type UserFilters struct {
	PendingOnly bool
}

// ActivityLogFilters represents filters for activity log queries
type ActivityLogFilters struct {
	UserID    *uuid.UUID
	DeviceID  *uuid.UUID
	Event     *string
	StartTime *time.Time
	EndTime   *time.Time
}
