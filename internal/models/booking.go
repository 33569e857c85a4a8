package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the lifecycle state of a desk booking
type BookingStatus string

const (
	BookingStatusUpcoming  BookingStatus = "Upcoming"
	BookingStatusActive    BookingStatus = "Active"
	BookingStatusCompleted BookingStatus = "Completed"
)

// Booking represents one user's claim on a desk for a date and timeslot,
// and the live workspace session built on it once started.
type Booking struct {
	BaseModel

	UserID uuid.UUID `json:"userId" db:"user_id"`

	DeskNumber string `json:"deskNumber" db:"desk_number"`
	Date       string `json:"date" db:"date"`
	Timeslot   string `json:"timeslot" db:"timeslot"`
	Floor      int    `json:"floor" db:"floor"`

	Status BookingStatus `json:"status" db:"status"`

	SessionStart *time.Time `json:"sessionStart,omitempty" db:"session_start"`
	SessionEnd   *time.Time `json:"sessionEnd,omitempty" db:"session_end"`
}
