package domain

import (
	"encoding/json"
	"time"
)

type NotificationKind string

const (
	NotifyBookingConfirmed NotificationKind = "booking_confirmed"
	NotifyBookingRequested NotificationKind = "booking_requested"
)

// Notification is the persisted copy of an emitted sink event; the delivery
// pipeline (push, mail) consumes the queue, not these rows.
type Notification struct {
	ID        int              `json:"id"`
	EventID   string           `json:"event_id"`
	UserID    int              `json:"user_id"`
	Kind      NotificationKind `json:"kind"`
	Payload   json.RawMessage  `json:"payload"`
	CreatedAt time.Time        `json:"created_at"`
}

type PushToken struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RegisterPushTokenDTO struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform,omitempty"`
}

// BookingChangeNotification is what websocket clients receive. The payload
// deliberately carries no booking data: clients refetch the day instead of
// trusting it.
type BookingChangeNotification struct {
	Kind string `json:"kind"` // always "bookings_changed"
	Date string `json:"date"`
}
