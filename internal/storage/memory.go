package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shashwathi05/deskhop/internal/models"
)

// MemoryStore implements Store in process memory. It backs unit tests and
// the dev mode (empty DSN); every method takes the store lock, so single
// operations are atomic but cross-call transactions are not isolated the
// way PostgreSQL transactions are.
type MemoryStore struct {
	mu sync.Mutex

	users    map[uuid.UUID]*models.User
	devices  map[uuid.UUID]*models.Device
	bookings map[uuid.UUID]*models.Booking
	logs     []*models.ActivityLog
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[uuid.UUID]*models.User),
		devices:  make(map[uuid.UUID]*models.Device),
		bookings: make(map[uuid.UUID]*models.Booking),
	}
}

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

// BeginTx returns the store itself; commit and rollback are no-ops
func (s *MemoryStore) BeginTx(ctx context.Context) (Store, error) { return s, nil }

// Commit is a no-op
func (s *MemoryStore) Commit() error { return nil }

// Rollback is a no-op
func (s *MemoryStore) Rollback() error { return nil }

// ========== User methods ==========

func cloneUser(u *models.User) *models.User {
	c := *u
	return &c
}

// CreateUser creates a new user
func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == user.Username || u.Email == user.Email {
			return ErrDuplicateKey
		}
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	s.users[user.ID] = cloneUser(user)
	return nil
}

// GetUser gets a user by ID
func (s *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(user), nil
}

// GetUserByUsername gets a user by username
func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

// GetUserByEmail gets a user by email
func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

// UpdateUser updates a user
func (s *MemoryStore) UpdateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return ErrNotFound
	}
	user.UpdatedAt = time.Now()
	s.users[user.ID] = cloneUser(user)
	return nil
}

// DeleteUser deletes a user and cascades to its devices
func (s *MemoryStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)

	for did, d := range s.devices {
		if d.UserID == id {
			delete(s.devices, did)
		}
	}
	return nil
}

// ListUsers lists users, newest first
func (s *MemoryStore) ListUsers(ctx context.Context, filters UserFilters, limit, offset int) ([]*models.User, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var users []*models.User
	for _, u := range s.users {
		if filters.PendingOnly && (u.IsApproved || u.IsAdmin) {
			continue
		}
		users = append(users, cloneUser(u))
	}

	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})

	total := int64(len(users))
	return page(users, limit, offset), total, nil
}

// ========== Device methods ==========

func cloneDevice(d *models.Device) *models.Device {
	c := *d
	return &c
}

// CreateDevice creates a new device
func (s *MemoryStore) CreateDevice(ctx context.Context, device *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.devices {
		if d.UserID == device.UserID && d.Fingerprint == device.Fingerprint {
			return ErrDuplicateKey
		}
	}

	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}
	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now

	s.devices[device.ID] = cloneDevice(device)
	return nil
}

// GetDevice gets a device by ID
func (s *MemoryStore) GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	device, ok := s.devices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDevice(device), nil
}

// GetDeviceByFingerprint gets a device by its natural dedup key
func (s *MemoryStore) GetDeviceByFingerprint(ctx context.Context, userID uuid.UUID, fingerprint string) (*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.devices {
		if d.UserID == userID && d.Fingerprint == fingerprint {
			return cloneDevice(d), nil
		}
	}
	return nil, ErrNotFound
}

// GetLatestDevice gets the user's most recently created device
func (s *MemoryStore) GetLatestDevice(ctx context.Context, userID uuid.UUID) (*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *models.Device
	for _, d := range s.devices {
		if d.UserID != userID {
			continue
		}
		if latest == nil || d.CreatedAt.After(latest.CreatedAt) {
			latest = d
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return cloneDevice(latest), nil
}

// UpdateDevice updates a device
func (s *MemoryStore) UpdateDevice(ctx context.Context, device *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.devices[device.ID]
	if !ok {
		return ErrNotFound
	}

	for _, d := range s.devices {
		if d.ID != device.ID && d.UserID == device.UserID && d.Fingerprint == device.Fingerprint {
			return ErrDuplicateKey
		}
	}

	device.CreatedAt = existing.CreatedAt
	device.UpdatedAt = time.Now()
	s.devices[device.ID] = cloneDevice(device)
	return nil
}

// DeleteDevice deletes a device by ID
func (s *MemoryStore) DeleteDevice(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[id]; !ok {
		return ErrNotFound
	}
	delete(s.devices, id)
	return nil
}

// ListDevices lists devices, newest first, optionally scoped to one user
func (s *MemoryStore) ListDevices(ctx context.Context, userID *uuid.UUID, limit, offset int) ([]*models.Device, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var devices []*models.Device
	for _, d := range s.devices {
		if userID != nil && d.UserID != *userID {
			continue
		}
		devices = append(devices, cloneDevice(d))
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].CreatedAt.After(devices[j].CreatedAt)
	})

	total := int64(len(devices))
	return page(devices, limit, offset), total, nil
}

// CountDevices counts all devices and the non-compliant subset
func (s *MemoryStore) CountDevices(ctx context.Context) (total, pending int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.devices {
		total++
		if !d.Compliant {
			pending++
		}
	}
	return total, pending, nil
}

// CountDeviceOwners counts distinct users that registered at least one device
func (s *MemoryStore) CountDeviceOwners(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owners := make(map[uuid.UUID]struct{})
	for _, d := range s.devices {
		owners[d.UserID] = struct{}{}
	}
	return int64(len(owners)), nil
}

// ========== Booking methods ==========

func cloneBooking(b *models.Booking) *models.Booking {
	c := *b
	if b.SessionStart != nil {
		t := *b.SessionStart
		c.SessionStart = &t
	}
	if b.SessionEnd != nil {
		t := *b.SessionEnd
		c.SessionEnd = &t
	}
	return &c
}

// CreateBooking creates a new booking, enforcing the slot invariants
func (s *MemoryStore) CreateBooking(ctx context.Context, booking *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.bookings {
		if b.Status == models.BookingStatusCompleted {
			continue
		}
		if b.UserID == booking.UserID && b.Date == booking.Date && b.Timeslot == booking.Timeslot {
			return ErrDuplicateKey
		}
		if b.DeskNumber == booking.DeskNumber && b.Date == booking.Date &&
			b.Timeslot == booking.Timeslot && b.Floor == booking.Floor {
			return ErrDuplicateKey
		}
	}

	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	now := time.Now()
	booking.CreatedAt = now
	booking.UpdatedAt = now

	s.bookings[booking.ID] = cloneBooking(booking)
	return nil
}

// GetBooking gets a booking by ID
func (s *MemoryStore) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	booking, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBooking(booking), nil
}

// UpdateBookingStatus performs a conditional status transition
func (s *MemoryStore) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus, sessionStart, sessionEnd *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	booking, ok := s.bookings[id]
	if !ok || booking.Status != from {
		return ErrNotFound
	}

	booking.Status = to
	booking.UpdatedAt = time.Now()
	if sessionStart != nil {
		t := *sessionStart
		booking.SessionStart = &t
	}
	if sessionEnd != nil {
		t := *sessionEnd
		booking.SessionEnd = &t
	}
	return nil
}

// ListUserBookings lists a user's bookings, newest first
func (s *MemoryStore) ListUserBookings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Booking, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var bookings []*models.Booking
	for _, b := range s.bookings {
		if b.UserID == userID {
			bookings = append(bookings, cloneBooking(b))
		}
	}

	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].CreatedAt.After(bookings[j].CreatedAt)
	})

	total := int64(len(bookings))
	return page(bookings, limit, offset), total, nil
}

// ========== Activity log methods ==========

// CreateActivityLog appends an activity log entry
func (s *MemoryStore) CreateActivityLog(ctx context.Context, entry *models.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	c := *entry
	s.logs = append(s.logs, &c)
	return nil
}

// ListActivityLogs lists activity log entries with filters, newest first
func (s *MemoryStore) ListActivityLogs(ctx context.Context, filters ActivityLogFilters, limit, offset int) ([]*models.ActivityLog, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []*models.ActivityLog
	// Walk backwards: append order is creation order.
	for i := len(s.logs) - 1; i >= 0; i-- {
		e := s.logs[i]
		if filters.UserID != nil && (e.UserID == nil || *e.UserID != *filters.UserID) {
			continue
		}
		if filters.DeviceID != nil && (e.DeviceID == nil || *e.DeviceID != *filters.DeviceID) {
			continue
		}
		if filters.Event != nil && e.Event != *filters.Event {
			continue
		}
		if filters.StartTime != nil && e.CreatedAt.Before(*filters.StartTime) {
			continue
		}
		if filters.EndTime != nil && e.CreatedAt.After(*filters.EndTime) {
			continue
		}
		c := *e
		entries = append(entries, &c)
	}

	total := int64(len(entries))
	return page(entries, limit, offset), total, nil
}

// CountActivityEvents counts events of one kind for a device since a
// point in time
func (s *MemoryStore) CountActivityEvents(ctx context.Context, deviceID uuid.UUID, event string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, e := range s.logs {
		if e.DeviceID != nil && *e.DeviceID == deviceID && e.Event == event && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// page applies limit/offset to a sorted slice
func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
