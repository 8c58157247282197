package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

// DateLayout is the calendar-day format used everywhere bookings travel.
// Days are exchanged as plain strings in the store's local timezone; no UTC
// normalization is applied.
const DateLayout = "2006-01-02"

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingWaitlist  BookingStatus = "waitlist"
	BookingCancelled BookingStatus = "cancelled" // terminal
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingWaitlist, BookingCancelled:
		return true
	}
	return false
}

// Active reports whether the booking still holds a claim of any kind.
func (s BookingStatus) Active() bool {
	return s != BookingCancelled
}

// OccupiesSpot reports whether the booking ties up a concrete spot for its
// day. Waitlist entries never do.
func (s BookingStatus) OccupiesSpot() bool {
	return s == BookingPending || s == BookingConfirmed
}

type Booking struct {
	ID                int           `json:"id"`
	UserID            int           `json:"user_id"`
	SpotID            null.Int      `json:"spot_id"` // null for pool/waitlist requests
	Date              string        `json:"date"`
	Status            BookingStatus `json:"status"`
	CarpoolWithUserID null.Int      `json:"carpool_with_user_id"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

type CreateBookingDTO struct {
	SpotID int    `json:"spot_id" binding:"required"`
	Date   string `json:"date" binding:"required"`
}

type PoolBookingDTO struct {
	Date string `json:"date" binding:"required"`
}

type SetBookingStatusDTO struct {
	Status BookingStatus `json:"status" binding:"required"`
}

type SetCarpoolDTO struct {
	CompanionID *int `json:"companion_id"` // null detaches the companion
}

type BookingFilterDTO struct {
	Status   *string `form:"status"`
	Date     *string `form:"date"`
	DateFrom *string `form:"from"`
	DateTo   *string `form:"to"`
}
