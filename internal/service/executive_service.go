package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"office_parking/internal/domain"
	"office_parking/internal/repository"

	"gopkg.in/guregu/null.v4"
)

// ExecutiveService handles the side effects of the directivo role: a
// dedicated spot plus a pre-generated year of weekday bookings, and the
// per-day release/reoccupy toggle.
type ExecutiveService struct {
	spotRepo    repository.ParkingSpotRepository
	bookingRepo repository.BookingRepository
	profileRepo repository.ProfileRepository
	broadcaster ChangeBroadcaster

	now func() time.Time
}

func NewExecutiveService(
	spotRepo repository.ParkingSpotRepository,
	bookingRepo repository.BookingRepository,
	profileRepo repository.ProfileRepository,
	broadcaster ChangeBroadcaster,
) *ExecutiveService {
	if broadcaster == nil {
		broadcaster = noopBroadcaster{}
	}
	return &ExecutiveService{
		spotRepo:    spotRepo,
		bookingRepo: bookingRepo,
		profileRepo: profileRepo,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

func (s *ExecutiveService) today() string {
	return s.now().Format(domain.DateLayout)
}

func (s *ExecutiveService) broadcastAll() {
	s.broadcaster.BroadcastBookingChange(domain.BookingChangeNotification{Kind: "bookings_changed"})
}

// SetRole changes a profile's role; moving in or out of directivo drags the
// executive spot lifecycle along.
func (s *ExecutiveService) SetRole(ctx context.Context, userID int, role domain.Role) (*domain.Profile, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidStatus, role)
	}

	profile, err := s.profileRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("error loading profile: %w", err)
	}
	if profile.Role == role {
		return profile, nil
	}

	wasDirectivo := profile.Role == domain.RoleDirectivo
	if role == domain.RoleDirectivo && !wasDirectivo {
		if err := s.AssignExecutiveSpot(ctx, userID); err != nil {
			return nil, err
		}
	}
	if wasDirectivo && role != domain.RoleDirectivo {
		if err := s.RevokeExecutiveSpot(ctx, userID); err != nil {
			return nil, err
		}
	}

	if err := s.profileRepo.UpdateRole(ctx, userID, role); err != nil {
		return nil, fmt.Errorf("error updating role: %w", err)
	}
	profile.Role = role
	return profile, nil
}

// AssignExecutiveSpot binds the first free executive spot to the user and
// pre-generates a year of confirmed weekday bookings. Individual duplicate
// rows within the batch are skipped so a retried assignment converges instead
// of aborting.
func (s *ExecutiveService) AssignExecutiveSpot(ctx context.Context, userID int) error {
	spot, err := s.spotRepo.FindFirstUnassignedExecutive(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNoExecutiveSpotAvailable
		}
		return fmt.Errorf("error finding executive spot: %w", err)
	}

	if err := s.spotRepo.UpdateAssignment(ctx, spot.ID, &userID, false); err != nil {
		return fmt.Errorf("error assigning executive spot: %w", err)
	}

	start := s.now()
	created, skipped := 0, 0
	for d := start; d.Before(start.AddDate(1, 0, 0)); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
			continue
		}
		booking := &domain.Booking{
			UserID: userID,
			SpotID: null.IntFrom(int64(spot.ID)),
			Date:   d.Format(domain.DateLayout),
			Status: domain.BookingConfirmed,
		}
		_, err := s.bookingRepo.Create(ctx, booking)
		switch {
		case err == nil:
			created++
		case errors.Is(err, repository.ErrSpotDayConflict), errors.Is(err, repository.ErrUserDayConflict):
			skipped++
		default:
			return fmt.Errorf("error bulk-creating executive bookings: %w", err)
		}
	}
	log.Printf("ExecutiveService: assigned spot %d to user %d (%d bookings created, %d already present)",
		spot.ID, userID, created, skipped)

	s.broadcastAll()
	return nil
}

// RevokeExecutiveSpot unbinds the user's spot and cancels their bookings on
// it from today onward. No spot assigned is a no-op so the role change
// remains idempotent.
func (s *ExecutiveService) RevokeExecutiveSpot(ctx context.Context, userID int) error {
	spot, err := s.spotRepo.FindByAssignedTo(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("error finding assigned spot: %w", err)
	}

	if err := s.spotRepo.UpdateAssignment(ctx, spot.ID, nil, false); err != nil {
		return fmt.Errorf("error clearing spot assignment: %w", err)
	}

	bookings, err := s.bookingRepo.FindActiveByUserSpotFromDate(ctx, userID, spot.ID, s.today())
	if err != nil {
		return fmt.Errorf("error loading executive bookings: %w", err)
	}
	for _, b := range bookings {
		if err := s.bookingRepo.UpdateStatus(ctx, b.ID, domain.BookingCancelled); err != nil {
			return fmt.Errorf("error cancelling executive booking %d: %w", b.ID, err)
		}
	}
	log.Printf("ExecutiveService: revoked spot %d from user %d (%d future bookings cancelled)",
		spot.ID, userID, len(bookings))

	s.broadcastAll()
	return nil
}

// Release opens the owner's spot to other users until reoccupied.
func (s *ExecutiveService) Release(ctx context.Context, spotID int, userID int) (*domain.ParkingSpot, error) {
	spot, err := s.ownedSpot(ctx, spotID, userID)
	if err != nil {
		return nil, err
	}
	if spot.IsReleased {
		return spot, nil
	}
	if err := s.spotRepo.UpdateReleased(ctx, spot.ID, true); err != nil {
		return nil, fmt.Errorf("error releasing spot: %w", err)
	}
	spot.IsReleased = true
	s.broadcastAll()
	return spot, nil
}

// Reoccupy takes the spot back: bookings other users made into the gap from
// today onward are cancelled before the flag flips.
func (s *ExecutiveService) Reoccupy(ctx context.Context, spotID int, userID int) (*domain.ParkingSpot, error) {
	spot, err := s.ownedSpot(ctx, spotID, userID)
	if err != nil {
		return nil, err
	}

	interlopers, err := s.bookingRepo.FindOccupyingBySpotFromDateExcludingUser(ctx, spot.ID, s.today(), userID)
	if err != nil {
		return nil, fmt.Errorf("error loading interloper bookings: %w", err)
	}
	for _, b := range interlopers {
		if err := s.bookingRepo.UpdateStatus(ctx, b.ID, domain.BookingCancelled); err != nil {
			return nil, fmt.Errorf("error cancelling booking %d: %w", b.ID, err)
		}
	}
	if len(interlopers) > 0 {
		log.Printf("ExecutiveService: reoccupy of spot %d cancelled %d bookings", spot.ID, len(interlopers))
	}

	if err := s.spotRepo.UpdateReleased(ctx, spot.ID, false); err != nil {
		return nil, fmt.Errorf("error reoccupying spot: %w", err)
	}
	spot.IsReleased = false
	s.broadcastAll()
	return spot, nil
}

func (s *ExecutiveService) ownedSpot(ctx context.Context, spotID int, userID int) (*domain.ParkingSpot, error) {
	spot, err := s.spotRepo.FindByID(ctx, spotID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("error loading spot: %w", err)
	}
	if !spot.IsExecutive || !spot.AssignedTo.Valid || int(spot.AssignedTo.Int64) != userID {
		return nil, ErrPermissionDenied
	}
	return spot, nil
}
