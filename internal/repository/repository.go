package repository

import (
	"context"
	"errors"

	"office_parking/internal/domain"
)

var ErrNotFound = errors.New("record not found")
var ErrDuplicateEntry = errors.New("record already exists")

// Unique-index violations on the bookings table are expected outcomes of
// cross-session races, not internal faults. The partial indexes over
// non-cancelled rows are the last line of defense; callers translate these
// into their own conflict results and re-read day state.
var ErrSpotDayConflict = errors.New("spot already has an active booking for that date")
var ErrUserDayConflict = errors.New("user already has an active booking for that date")

type ProfileRepository interface {
	Create(ctx context.Context, profile *domain.Profile) (*domain.Profile, error)
	FindByEmail(ctx context.Context, email string) (*domain.Profile, error)
	FindByID(ctx context.Context, id int) (*domain.Profile, error)
	FindByIDs(ctx context.Context, ids []int) ([]domain.Profile, error)
	FindByRole(ctx context.Context, role domain.Role) ([]domain.Profile, error)
	UpdateRole(ctx context.Context, id int, role domain.Role) error
	UpdateVerified(ctx context.Context, id int, verified bool) error
}

type ParkingSpotRepository interface {
	FindByID(ctx context.Context, id int) (*domain.ParkingSpot, error)
	FindAll(ctx context.Context) ([]domain.ParkingSpot, error)
	FindFirstUnassignedExecutive(ctx context.Context) (*domain.ParkingSpot, error)
	FindByAssignedTo(ctx context.Context, userID int) (*domain.ParkingSpot, error)
	UpdateAssignment(ctx context.Context, id int, assignedTo *int, isReleased bool) error
	UpdateReleased(ctx context.Context, id int, isReleased bool) error
}

type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) (*domain.Booking, error)
	FindByID(ctx context.Context, id int) (*domain.Booking, error)
	FindActiveByUserAndDate(ctx context.Context, userID int, date string) (*domain.Booking, error)
	// FindOccupyingBySpotAndDate returns the booking holding the spot on the
	// given day: non-cancelled, non-waitlist.
	FindOccupyingBySpotAndDate(ctx context.Context, spotID int, date string) (*domain.Booking, error)
	FindByDate(ctx context.Context, date string) ([]domain.Booking, error)
	FindWaitlistByDate(ctx context.Context, date string) ([]domain.Booking, error)
	FindActiveByUserSpotFromDate(ctx context.Context, userID int, spotID int, fromDate string) ([]domain.Booking, error)
	FindOccupyingBySpotFromDateExcludingUser(ctx context.Context, spotID int, fromDate string, excludeUserID int) ([]domain.Booking, error)
	Find(ctx context.Context, userID int, filter domain.BookingFilterDTO) ([]domain.Booking, error)
	FindPending(ctx context.Context, date *string) ([]domain.Booking, error)
	UpdateStatus(ctx context.Context, id int, status domain.BookingStatus) error
	UpdateCarpool(ctx context.Context, id int, companionID *int) error
	CancelStaleBefore(ctx context.Context, date string) (int64, error)
}

type SpotBlockRepository interface {
	Create(ctx context.Context, block *domain.SpotBlock) (*domain.SpotBlock, error)
	FindByID(ctx context.Context, id int) (*domain.SpotBlock, error)
	FindByDate(ctx context.Context, date string) ([]domain.SpotBlock, error)
	FindByDateRange(ctx context.Context, from, to string) ([]domain.SpotBlock, error)
	Delete(ctx context.Context, id int) error
}

type PushTokenRepository interface {
	CreateOrUpdate(ctx context.Context, token *domain.PushToken) (*domain.PushToken, error)
	DeleteByToken(ctx context.Context, userID int, token string) error
	FindByUserID(ctx context.Context, userID int) ([]domain.PushToken, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	FindByUserID(ctx context.Context, userID int, limit int) ([]domain.Notification, error)
}
