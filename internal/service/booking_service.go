package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"office_parking/internal/domain"
	"office_parking/internal/repository"

	"gopkg.in/guregu/null.v4"
)

// NotificationSink receives fire-and-forget events. A failing sink must never
// roll back the booking mutation that triggered it.
type NotificationSink interface {
	Emit(ctx context.Context, kind domain.NotificationKind, userID int, payload interface{})
}

// ChangeBroadcaster pushes "something changed, refetch" hints to connected
// clients. Declared here to avoid a handler import cycle.
type ChangeBroadcaster interface {
	BroadcastBookingChange(event domain.BookingChangeNotification)
}

type noopSink struct{}

func (noopSink) Emit(context.Context, domain.NotificationKind, int, interface{}) {}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastBookingChange(domain.BookingChangeNotification) {}

// BookingService owns every booking state transition. There are no store
// transactions: every write is preceded by fresh existence checks and the
// partial unique indexes are the authoritative guard for races.
type BookingService struct {
	bookingRepo  repository.BookingRepository
	spotRepo     repository.ParkingSpotRepository
	blockRepo    repository.SpotBlockRepository
	profileRepo  repository.ProfileRepository
	availability *AvailabilityService
	sink         NotificationSink
	broadcaster  ChangeBroadcaster

	// Re-entrancy guard: one in-flight mutation per operation key. Guards a
	// double-tapping client, not cross-session races.
	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

func NewBookingService(
	bookingRepo repository.BookingRepository,
	spotRepo repository.ParkingSpotRepository,
	blockRepo repository.SpotBlockRepository,
	profileRepo repository.ProfileRepository,
	availability *AvailabilityService,
	sink NotificationSink,
	broadcaster ChangeBroadcaster,
) *BookingService {
	if sink == nil {
		sink = noopSink{}
	}
	if broadcaster == nil {
		broadcaster = noopBroadcaster{}
	}
	return &BookingService{
		bookingRepo:  bookingRepo,
		spotRepo:     spotRepo,
		blockRepo:    blockRepo,
		profileRepo:  profileRepo,
		availability: availability,
		sink:         sink,
		broadcaster:  broadcaster,
		inflight:     make(map[string]struct{}),
	}
}

func (s *BookingService) acquire(key string) error {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return ErrOperationInFlight
	}
	s.inflight[key] = struct{}{}
	return nil
}

func (s *BookingService) release(key string) {
	s.inflightMu.Lock()
	delete(s.inflight, key)
	s.inflightMu.Unlock()
}

func (s *BookingService) dayChanged(ctx context.Context, date string) {
	s.availability.InvalidateDay(ctx, date)
	s.broadcaster.BroadcastBookingChange(domain.BookingChangeNotification{
		Kind: "bookings_changed",
		Date: date,
	})
}

func (s *BookingService) verifiedProfile(ctx context.Context, userID int) (*domain.Profile, error) {
	profile, err := s.profileRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("error loading profile: %w", err)
	}
	if !profile.IsVerified {
		return nil, ErrNotVerified
	}
	return profile, nil
}

func (s *BookingService) spotBlockedOn(ctx context.Context, spot *domain.ParkingSpot, date string) (bool, error) {
	if spot.IsBlocked {
		return true, nil
	}
	blocks, err := s.blockRepo.FindByDate(ctx, date)
	if err != nil {
		return false, fmt.Errorf("error loading spot blocks: %w", err)
	}
	for _, block := range blocks {
		if block.SpotID == spot.ID {
			return true, nil
		}
	}
	return false, nil
}

// CreateDirectBooking reserves a concrete spot for a day. All checks run
// against fresh reads immediately before the insert; losing the race anyway
// surfaces as ErrSpotTaken plus a forced day re-read, never a blind retry.
func (s *BookingService) CreateDirectBooking(ctx context.Context, userID int, dto domain.CreateBookingDTO) (*domain.Booking, error) {
	if _, err := time.Parse(domain.DateLayout, dto.Date); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, dto.Date)
	}

	opKey := fmt.Sprintf("create:%d:%s", userID, dto.Date)
	if err := s.acquire(opKey); err != nil {
		return nil, err
	}
	defer s.release(opKey)

	if _, err := s.verifiedProfile(ctx, userID); err != nil {
		return nil, err
	}

	spot, err := s.spotRepo.FindByID(ctx, dto.SpotID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("error loading spot: %w", err)
	}

	if spot.IsExecutive && spot.AssignedTo.Valid {
		dayBookings, err := s.bookingRepo.FindByDate(ctx, dto.Date)
		if err != nil {
			return nil, fmt.Errorf("error loading day bookings: %w", err)
		}
		switch ResolveOwnership(*spot, dto.Date, dayBookings).Kind {
		case domain.OwnedActive:
			return nil, ErrSpotTaken
		case domain.OwnedIdleToday:
			// Owner skipped the day without releasing the spot: the map may
			// render it free, but it cannot be claimed.
			return nil, ErrSpotUnavailable
		}
	}

	if existing, err := s.bookingRepo.FindActiveByUserAndDate(ctx, userID, dto.Date); err == nil && existing != nil {
		return nil, ErrAlreadyBooked
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("error checking user bookings: %w", err)
	}

	if taken, err := s.bookingRepo.FindOccupyingBySpotAndDate(ctx, spot.ID, dto.Date); err == nil && taken != nil {
		return nil, ErrSpotTaken
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("error checking spot bookings: %w", err)
	}

	blocked, err := s.spotBlockedOn(ctx, spot, dto.Date)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ErrSpotBlocked
	}

	booking := &domain.Booking{
		UserID: userID,
		SpotID: null.IntFrom(int64(spot.ID)),
		Date:   dto.Date,
		Status: domain.BookingPending,
	}
	created, err := s.bookingRepo.Create(ctx, booking)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSpotDayConflict):
			log.Printf("BookingService: lost the race for spot %d on %s, refreshing day state", spot.ID, dto.Date)
			s.dayChanged(ctx, dto.Date)
			return nil, ErrSpotTaken
		case errors.Is(err, repository.ErrUserDayConflict):
			s.dayChanged(ctx, dto.Date)
			return nil, ErrAlreadyBooked
		}
		return nil, fmt.Errorf("error creating booking: %w", err)
	}

	s.sink.Emit(ctx, domain.NotifyBookingRequested, userID, created)
	s.dayChanged(ctx, dto.Date)
	return created, nil
}

// RequestPoolBooking files a day-level request with no specific spot. Every
// pool request lands on the waitlist for admin triage, even when capacity is
// free.
func (s *BookingService) RequestPoolBooking(ctx context.Context, userID int, date string) (*domain.Booking, error) {
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}

	opKey := fmt.Sprintf("pool:%d:%s", userID, date)
	if err := s.acquire(opKey); err != nil {
		return nil, err
	}
	defer s.release(opKey)

	if _, err := s.verifiedProfile(ctx, userID); err != nil {
		return nil, err
	}

	if existing, err := s.bookingRepo.FindActiveByUserAndDate(ctx, userID, date); err == nil && existing != nil {
		return nil, ErrAlreadyBooked
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("error checking user bookings: %w", err)
	}

	booking := &domain.Booking{
		UserID: userID,
		Date:   date,
		Status: domain.BookingWaitlist,
	}
	created, err := s.bookingRepo.Create(ctx, booking)
	if err != nil {
		if errors.Is(err, repository.ErrUserDayConflict) {
			s.dayChanged(ctx, date)
			return nil, ErrAlreadyBooked
		}
		return nil, fmt.Errorf("error creating pool booking: %w", err)
	}

	s.sink.Emit(ctx, domain.NotifyBookingRequested, userID, created)
	s.dayChanged(ctx, date)
	return created, nil
}

// Cancel marks a booking cancelled and, when a real claim was freed, promotes
// the longest-waiting waitlist entry for that day. Cancelling an already
// cancelled booking is a no-op and never promotes twice.
func (s *BookingService) Cancel(ctx context.Context, bookingID int, actorID int, actorRole domain.Role) (*domain.Booking, error) {
	opKey := fmt.Sprintf("cancel:%d", bookingID)
	if err := s.acquire(opKey); err != nil {
		return nil, err
	}
	defer s.release(opKey)

	booking, err := s.bookingRepo.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("error loading booking: %w", err)
	}

	if booking.UserID != actorID && actorRole != domain.RoleAdmin {
		return nil, ErrPermissionDenied
	}

	if booking.Status == domain.BookingCancelled {
		return booking, nil
	}

	priorStatus := booking.Status
	if err := s.bookingRepo.UpdateStatus(ctx, booking.ID, domain.BookingCancelled); err != nil {
		return nil, fmt.Errorf("error cancelling booking: %w", err)
	}
	booking.Status = domain.BookingCancelled

	// Cancelling a waitlist entry frees nothing.
	if priorStatus != domain.BookingWaitlist {
		if err := s.promoteFromWaitlist(ctx, booking.Date); err != nil {
			log.Printf("BookingService: waitlist promotion for %s failed: %v", booking.Date, err)
		}
	}

	s.dayChanged(ctx, booking.Date)
	return booking, nil
}

// promoteFromWaitlist promotes the earliest-created, non-executive waitlist
// entry for the day - exactly one, since exactly one claim was freed. When
// blocks have eaten the whole pool, no promotion happens.
func (s *BookingService) promoteFromWaitlist(ctx context.Context, date string) error {
	// The cached counters predate the cancellation that freed the claim;
	// promotion must decide on a fresh read.
	s.availability.InvalidateDay(ctx, date)
	capacity, err := s.availability.DayCapacityFor(ctx, date)
	if err != nil {
		return err
	}
	if capacity.Available <= 0 || capacity.Occupied >= capacity.Available {
		return nil
	}

	waitlist, err := s.bookingRepo.FindWaitlistByDate(ctx, date)
	if err != nil {
		return fmt.Errorf("error loading waitlist: %w", err)
	}
	if len(waitlist) == 0 {
		return nil
	}

	ownerIDs := make([]int, 0, len(waitlist))
	for _, w := range waitlist {
		ownerIDs = append(ownerIDs, w.UserID)
	}
	owners, err := s.profileRepo.FindByIDs(ctx, ownerIDs)
	if err != nil {
		return fmt.Errorf("error loading waitlist owners: %w", err)
	}
	directivo := make(map[int]bool, len(owners))
	for _, p := range owners {
		directivo[p.ID] = p.Role == domain.RoleDirectivo
	}

	for _, candidate := range waitlist { // already ordered by created_at ASC
		if directivo[candidate.UserID] {
			continue
		}
		if err := s.bookingRepo.UpdateStatus(ctx, candidate.ID, domain.BookingPending); err != nil {
			return fmt.Errorf("error promoting booking %d: %w", candidate.ID, err)
		}
		log.Printf("BookingService: promoted waitlist booking %d (user %d) for %s", candidate.ID, candidate.UserID, date)
		return nil
	}
	return nil
}

// AdminSetStatus overwrites a booking's status from the triage surface.
func (s *BookingService) AdminSetStatus(ctx context.Context, bookingID int, newStatus domain.BookingStatus) (*domain.Booking, error) {
	switch newStatus {
	case domain.BookingConfirmed, domain.BookingPending, domain.BookingCancelled:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}

	booking, err := s.bookingRepo.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("error loading booking: %w", err)
	}

	if booking.Status == newStatus {
		return booking, nil
	}
	if booking.Status == domain.BookingCancelled {
		return nil, ErrBookingFinal
	}

	priorStatus := booking.Status
	if err := s.bookingRepo.UpdateStatus(ctx, booking.ID, newStatus); err != nil {
		if errors.Is(err, repository.ErrSpotDayConflict) {
			s.dayChanged(ctx, booking.Date)
			return nil, ErrSpotTaken
		}
		return nil, fmt.Errorf("error updating booking status: %w", err)
	}
	booking.Status = newStatus

	if newStatus == domain.BookingConfirmed {
		s.sink.Emit(ctx, domain.NotifyBookingConfirmed, booking.UserID, booking)
	}
	if newStatus == domain.BookingCancelled && priorStatus != domain.BookingWaitlist {
		if err := s.promoteFromWaitlist(ctx, booking.Date); err != nil {
			log.Printf("BookingService: waitlist promotion for %s failed: %v", booking.Date, err)
		}
	}

	s.dayChanged(ctx, booking.Date)
	return booking, nil
}

// SetCarpoolCompanion attaches or detaches a companion. Informational only,
// no capacity impact.
func (s *BookingService) SetCarpoolCompanion(ctx context.Context, bookingID int, ownerID int, companionID *int) (*domain.Booking, error) {
	booking, err := s.bookingRepo.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("error loading booking: %w", err)
	}
	if booking.UserID != ownerID {
		return nil, ErrPermissionDenied
	}
	if booking.Status == domain.BookingCancelled {
		return nil, ErrBookingFinal
	}
	if companionID != nil {
		if _, err := s.profileRepo.FindByID(ctx, *companionID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, repository.ErrNotFound
			}
			return nil, fmt.Errorf("error loading companion profile: %w", err)
		}
	}

	if err := s.bookingRepo.UpdateCarpool(ctx, booking.ID, companionID); err != nil {
		return nil, fmt.Errorf("error updating carpool companion: %w", err)
	}
	if companionID != nil {
		booking.CarpoolWithUserID = null.IntFrom(int64(*companionID))
	} else {
		booking.CarpoolWithUserID = null.Int{}
	}
	return booking, nil
}

func (s *BookingService) ListOwn(ctx context.Context, userID int, filter domain.BookingFilterDTO) ([]domain.Booking, error) {
	return s.bookingRepo.Find(ctx, userID, filter)
}

func (s *BookingService) ListPending(ctx context.Context, date *string) ([]domain.Booking, error) {
	return s.bookingRepo.FindPending(ctx, date)
}

// CancelStale sweeps pending and waitlist entries whose day has passed.
func (s *BookingService) CancelStale(ctx context.Context, today string) (int64, error) {
	return s.bookingRepo.CancelStaleBefore(ctx, today)
}

// --- Spot blocks (admin) ---

func (s *BookingService) CreateSpotBlock(ctx context.Context, adminID int, dto domain.CreateSpotBlockDTO) (*domain.SpotBlock, error) {
	if _, err := time.Parse(domain.DateLayout, dto.Date); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, dto.Date)
	}
	if _, err := s.spotRepo.FindByID(ctx, dto.SpotID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("error loading spot: %w", err)
	}

	block := &domain.SpotBlock{
		SpotID:    dto.SpotID,
		Date:      dto.Date,
		CreatedBy: adminID,
	}
	created, err := s.blockRepo.Create(ctx, block)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating spot block: %w", err)
	}
	s.dayChanged(ctx, dto.Date)
	return created, nil
}

func (s *BookingService) DeleteSpotBlock(ctx context.Context, id int) error {
	block, err := s.blockRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("error loading spot block: %w", err)
	}
	if err := s.blockRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("error deleting spot block: %w", err)
	}
	s.dayChanged(ctx, block.Date)
	return nil
}

func (s *BookingService) ListSpotBlocks(ctx context.Context, from, to string) ([]domain.SpotBlock, error) {
	if _, err := time.Parse(domain.DateLayout, from); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, from)
	}
	if _, err := time.Parse(domain.DateLayout, to); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, to)
	}
	return s.blockRepo.FindByDateRange(ctx, from, to)
}
