package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"office_parking/internal/domain"
	"office_parking/internal/kv"
	"office_parking/internal/repository"

	"gopkg.in/guregu/null.v4"
)

// ResolveOwnership classifies an executive spot for one day. Non-executive
// and unassigned spots are Unowned. The result is computed once per query so
// the map page and the booking guard never branch on raw flags separately.
func ResolveOwnership(spot domain.ParkingSpot, date string, bookings []domain.Booking) domain.SpotOwnership {
	if !spot.IsExecutive || !spot.AssignedTo.Valid {
		return domain.SpotOwnership{Kind: domain.Unowned}
	}
	owner := int(spot.AssignedTo.Int64)
	for i := range bookings {
		b := &bookings[i]
		if b.UserID == owner && b.SpotID.Valid && int(b.SpotID.Int64) == spot.ID &&
			b.Date == date && b.Status.OccupiesSpot() {
			return domain.SpotOwnership{Kind: domain.OwnedActive, OwnerID: owner, OwnerBooking: b}
		}
	}
	if spot.IsReleased {
		return domain.SpotOwnership{Kind: domain.OwnedReleased, OwnerID: owner}
	}
	// The executive dropped just this day without releasing the spot. The
	// day renders as free; direct booking still refuses it.
	return domain.SpotOwnership{Kind: domain.OwnedIdleToday, OwnerID: owner}
}

func findActiveBySpot(spotID int, date string, bookings []domain.Booking) *domain.Booking {
	for i := range bookings {
		b := &bookings[i]
		if b.SpotID.Valid && int(b.SpotID.Int64) == spotID && b.Date == date && b.Status.Active() {
			return b
		}
	}
	return nil
}

func viewerStatus(b *domain.Booking, viewerID int) domain.SpotStatus {
	if b.UserID == viewerID {
		if b.Status == domain.BookingPending {
			return domain.SpotReservedPending
		}
		return domain.SpotReservedByMe
	}
	return domain.SpotOccupied
}

// ResolveSpotStatus computes what one spot looks like on one day for one
// viewer. Precedence: blocks win over everything, then occupancy, then the
// executive ownership rules.
func ResolveSpotStatus(spot domain.ParkingSpot, date string, bookings []domain.Booking, blocks []domain.SpotBlock, viewerID int) domain.SpotStatus {
	if spot.IsBlocked {
		return domain.SpotBlocked
	}
	for _, block := range blocks {
		if block.SpotID == spot.ID && block.Date == date {
			return domain.SpotBlocked
		}
	}

	if !spot.IsExecutive || !spot.AssignedTo.Valid {
		// Normal spots and transitionally ownerless executive spots resolve
		// the same way: whoever holds an active booking holds the spot.
		if b := findActiveBySpot(spot.ID, date, bookings); b != nil {
			return viewerStatus(b, viewerID)
		}
		return domain.SpotFree
	}

	ownership := ResolveOwnership(spot, date, bookings)
	switch ownership.Kind {
	case domain.OwnedActive:
		if ownership.OwnerID == viewerID {
			return domain.SpotReservedByMe
		}
		return domain.SpotExecutiveAssigned
	case domain.OwnedReleased:
		if b := findActiveBySpot(spot.ID, date, bookings); b != nil {
			return viewerStatus(b, viewerID)
		}
		return domain.SpotExecutiveReleased
	default: // OwnedIdleToday
		if b := findActiveBySpot(spot.ID, date, bookings); b != nil {
			return viewerStatus(b, viewerID)
		}
		return domain.SpotFree
	}
}

// ResolveDayCapacity computes the pool counters for a day. Capacity is the
// 8-spot pool minus date blocks on pool spot ids; occupancy counts confirmed
// bookings whose owner is not an executive. Waitlist entries and pending
// requests without a spot never count.
func ResolveDayCapacity(date string, bookings []domain.Booking, blocks []domain.SpotBlock, directivoIDs map[int]struct{}) domain.DayCapacity {
	available := domain.NormalPoolSize
	for _, block := range blocks {
		if block.Date == date && block.SpotID >= 1 && block.SpotID <= domain.NormalPoolSize {
			available--
		}
	}

	occupied := 0
	for _, b := range bookings {
		if b.Date != date || b.Status != domain.BookingConfirmed {
			continue
		}
		if _, isExec := directivoIDs[b.UserID]; isExec {
			continue
		}
		occupied++
	}

	return domain.DayCapacity{
		Date:      date,
		Occupied:  occupied,
		Available: available,
		Full:      occupied >= available,
	}
}

// AvailabilityService assembles day views from bulk reads. It is read-only;
// the redis cache (optional) only holds viewer-independent day counters.
type AvailabilityService struct {
	spotRepo    repository.ParkingSpotRepository
	bookingRepo repository.BookingRepository
	blockRepo   repository.SpotBlockRepository
	profileRepo repository.ProfileRepository
	cache       *kv.Client
}

func NewAvailabilityService(
	spotRepo repository.ParkingSpotRepository,
	bookingRepo repository.BookingRepository,
	blockRepo repository.SpotBlockRepository,
	profileRepo repository.ProfileRepository,
	cache *kv.Client,
) *AvailabilityService {
	return &AvailabilityService{
		spotRepo:    spotRepo,
		bookingRepo: bookingRepo,
		blockRepo:   blockRepo,
		profileRepo: profileRepo,
		cache:       cache,
	}
}

const dayCapacityCacheTTL = 30 * time.Second

func dayCapacityCacheKey(date string) string {
	return "daycap:" + date
}

func (s *AvailabilityService) directivoIDs(ctx context.Context) (map[int]struct{}, error) {
	execs, err := s.profileRepo.FindByRole(ctx, domain.RoleDirectivo)
	if err != nil {
		return nil, fmt.Errorf("error loading executive profiles: %w", err)
	}
	ids := make(map[int]struct{}, len(execs))
	for _, p := range execs {
		ids[p.ID] = struct{}{}
	}
	return ids, nil
}

// DayOverview returns the per-spot statuses and the pool counters for one day
// as seen by viewerID.
func (s *AvailabilityService) DayOverview(ctx context.Context, date string, viewerID int) ([]domain.SpotDayView, domain.DayCapacity, error) {
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return nil, domain.DayCapacity{}, fmt.Errorf("%w: bad date %q", ErrInvalidDate, date)
	}

	spots, err := s.spotRepo.FindAll(ctx)
	if err != nil {
		return nil, domain.DayCapacity{}, fmt.Errorf("error loading spots: %w", err)
	}
	bookings, err := s.bookingRepo.FindByDate(ctx, date)
	if err != nil {
		return nil, domain.DayCapacity{}, fmt.Errorf("error loading bookings: %w", err)
	}
	blocks, err := s.blockRepo.FindByDate(ctx, date)
	if err != nil {
		return nil, domain.DayCapacity{}, fmt.Errorf("error loading spot blocks: %w", err)
	}
	directivos, err := s.directivoIDs(ctx)
	if err != nil {
		return nil, domain.DayCapacity{}, err
	}

	views := make([]domain.SpotDayView, 0, len(spots))
	for _, spot := range spots {
		view := domain.SpotDayView{
			Spot:   spot,
			Date:   date,
			Status: ResolveSpotStatus(spot, date, bookings, blocks, viewerID),
		}
		if b := findActiveBySpot(spot.ID, date, bookings); b != nil && b.UserID == viewerID {
			view.BookingID = null.IntFrom(int64(b.ID))
		}
		views = append(views, view)
	}

	capacity := ResolveDayCapacity(date, bookings, blocks, directivos)
	s.cacheCapacity(ctx, capacity)
	return views, capacity, nil
}

// DayCapacityFor computes (or reads back) the counters for a single day.
func (s *AvailabilityService) DayCapacityFor(ctx context.Context, date string) (domain.DayCapacity, error) {
	if cached, ok := s.cache.Get(ctx, dayCapacityCacheKey(date)); ok {
		var capacity domain.DayCapacity
		if err := json.Unmarshal([]byte(cached), &capacity); err == nil {
			return capacity, nil
		}
	}

	bookings, err := s.bookingRepo.FindByDate(ctx, date)
	if err != nil {
		return domain.DayCapacity{}, fmt.Errorf("error loading bookings: %w", err)
	}
	blocks, err := s.blockRepo.FindByDate(ctx, date)
	if err != nil {
		return domain.DayCapacity{}, fmt.Errorf("error loading spot blocks: %w", err)
	}
	directivos, err := s.directivoIDs(ctx)
	if err != nil {
		return domain.DayCapacity{}, err
	}

	capacity := ResolveDayCapacity(date, bookings, blocks, directivos)
	s.cacheCapacity(ctx, capacity)
	return capacity, nil
}

// DayRange returns counters for each day in [from, to], bounded to avoid
// unbounded scans from a bad query string.
func (s *AvailabilityService) DayRange(ctx context.Context, from, to string) ([]domain.DayCapacity, error) {
	start, err := time.Parse(domain.DateLayout, from)
	if err != nil {
		return nil, fmt.Errorf("%w: bad date %q", ErrInvalidDate, from)
	}
	end, err := time.Parse(domain.DateLayout, to)
	if err != nil {
		return nil, fmt.Errorf("%w: bad date %q", ErrInvalidDate, to)
	}
	if end.Before(start) || end.Sub(start) > 62*24*time.Hour {
		return nil, fmt.Errorf("%w: range %s..%s", ErrInvalidDate, from, to)
	}

	var days []domain.DayCapacity
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		capacity, err := s.DayCapacityFor(ctx, d.Format(domain.DateLayout))
		if err != nil {
			return nil, err
		}
		days = append(days, capacity)
	}
	return days, nil
}

func (s *AvailabilityService) cacheCapacity(ctx context.Context, capacity domain.DayCapacity) {
	if payload, err := json.Marshal(capacity); err == nil {
		s.cache.Set(ctx, dayCapacityCacheKey(capacity.Date), string(payload), dayCapacityCacheTTL)
	}
}

// InvalidateDay drops the cached counters after any mutation touching date.
func (s *AvailabilityService) InvalidateDay(ctx context.Context, date string) {
	s.cache.Delete(ctx, dayCapacityCacheKey(date))
}
