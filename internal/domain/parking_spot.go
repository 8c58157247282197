package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

// NormalPoolSize is the number of general-use spots. Spots with ID 1..8 form
// the shared pool; higher IDs are reserved for executives.
const NormalPoolSize = 8

type SpotStatus string

const (
	SpotFree              SpotStatus = "free"
	SpotOccupied          SpotStatus = "occupied"
	SpotReservedByMe      SpotStatus = "reserved_by_me"
	SpotReservedPending   SpotStatus = "reserved_by_me_pending"
	SpotBlocked           SpotStatus = "blocked"
	SpotExecutiveAssigned SpotStatus = "executive_assigned"
	SpotExecutiveReleased SpotStatus = "executive_released"
)

type ParkingSpot struct {
	ID          int       `json:"id"`
	Label       string    `json:"label"`
	IsBlocked   bool      `json:"is_blocked"` // permanent, admin-set
	IsExecutive bool      `json:"is_executive"`
	AssignedTo  null.Int  `json:"assigned_to"`
	IsReleased  bool      `json:"is_released"` // only meaningful while assigned
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s ParkingSpot) InNormalPool() bool {
	return !s.IsExecutive && s.ID >= 1 && s.ID <= NormalPoolSize
}

// OwnershipKind classifies an executive spot for a single day. It is computed
// once per query so the map page and the booking guard branch on the same
// value instead of re-deriving flag combinations independently.
type OwnershipKind int

const (
	Unowned OwnershipKind = iota
	OwnedActive
	OwnedReleased
	OwnedIdleToday // owner has no booking that day but has not released the spot
)

type SpotOwnership struct {
	Kind         OwnershipKind
	OwnerID      int
	OwnerBooking *Booking // set only for OwnedActive
}

// SpotDayView is the per-spot row returned to the map page.
type SpotDayView struct {
	Spot      ParkingSpot `json:"spot"`
	Date      string      `json:"date"`
	Status    SpotStatus  `json:"status"`
	BookingID null.Int    `json:"booking_id"`
}

type DayCapacity struct {
	Date      string `json:"date"`
	Occupied  int    `json:"occupied"`
	Available int    `json:"available"`
	Full      bool   `json:"full"`
}
