package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Shashwathi05/deskhop/internal/models"
)

// ========== Booking Methods ==========

const bookingColumns = `id, created_at, updated_at, user_id, desk_number,
       date, timeslot, floor, status, session_start, session_end`

// CreateBooking creates a new booking. Partial unique indexes on
// (user_id, date, timeslot) and (desk_number, date, timeslot, floor) over
// non-completed rows surface double bookings as ErrDuplicateKey.
func (s *PostgresStore) CreateBooking(ctx context.Context, booking *models.Booking) error {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}

	now := time.Now()
	booking.CreatedAt = now
	booking.UpdatedAt = now

	query := `
        INSERT INTO bookings (
            id, created_at, updated_at, user_id, desk_number, date,
            timeslot, floor, status
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.getDB().ExecContext(ctx, query,
		booking.ID, booking.CreatedAt, booking.UpdatedAt, booking.UserID,
		booking.DeskNumber, booking.Date, booking.Timeslot, booking.Floor,
		booking.Status,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetBooking gets a booking by ID
func (s *PostgresStore) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1` + s.forUpdate()

	booking := &models.Booking{}
	err := s.getDB().QueryRowContext(ctx, query, id).Scan(
		&booking.ID, &booking.CreatedAt, &booking.UpdatedAt, &booking.UserID,
		&booking.DeskNumber, &booking.Date, &booking.Timeslot, &booking.Floor,
		&booking.Status, &booking.SessionStart, &booking.SessionEnd,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return booking, nil
}

// UpdateBookingStatus performs a conditional status transition. No row is
// touched unless the current status equals from, which guards against
// double-start and double-end under concurrent requests.
func (s *PostgresStore) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus, sessionStart, sessionEnd *time.Time) error {
	query := `
        UPDATE bookings SET
            updated_at = $3,
            status = $4,
            session_start = COALESCE($5, session_start),
            session_end = COALESCE($6, session_end)
        WHERE id = $1 AND status = $2`

	result, err := s.getDB().ExecContext(ctx, query,
		id, from, time.Now(), to, sessionStart, sessionEnd,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ListUserBookings lists a user's bookings, newest first
func (s *PostgresStore) ListUserBookings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Booking, int64, error) {
	var count int64
	err := s.getDB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings
        WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := s.getDB().QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		booking := &models.Booking{}
		err := rows.Scan(
			&booking.ID, &booking.CreatedAt, &booking.UpdatedAt,
			&booking.UserID, &booking.DeskNumber, &booking.Date,
			&booking.Timeslot, &booking.Floor, &booking.Status,
			&booking.SessionStart, &booking.SessionEnd,
		)
		if err != nil {
			return nil, 0, err
		}
		bookings = append(bookings, booking)
	}

	return bookings, count, nil
}
