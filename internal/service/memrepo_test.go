package service

import (
	"context"
	"sort"
	"time"

	"office_parking/internal/domain"
	"office_parking/internal/repository"

	"gopkg.in/guregu/null.v4"
)

// In-memory repositories for service tests. The booking fake enforces the
// same uniqueness rules as the partial indexes in postgres: one occupying
// booking per (spot, date) and one non-cancelled booking per (user, date).

type memProfileRepo struct {
	profiles map[int]*domain.Profile
	nextID   int
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{profiles: make(map[int]*domain.Profile), nextID: 1}
}

func (r *memProfileRepo) add(p domain.Profile) *domain.Profile {
	if p.ID == 0 {
		p.ID = r.nextID
	}
	if p.ID >= r.nextID {
		r.nextID = p.ID + 1
	}
	copied := p
	r.profiles[copied.ID] = &copied
	detached := copied
	return &detached
}

func (r *memProfileRepo) Create(_ context.Context, p *domain.Profile) (*domain.Profile, error) {
	for _, existing := range r.profiles {
		if existing.Email == p.Email {
			return nil, repository.ErrDuplicateEntry
		}
	}
	return r.add(*p), nil
}

func (r *memProfileRepo) FindByEmail(_ context.Context, email string) (*domain.Profile, error) {
	for _, p := range r.profiles {
		if p.Email == email {
			copied := *p
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memProfileRepo) FindByID(_ context.Context, id int) (*domain.Profile, error) {
	p, ok := r.profiles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *memProfileRepo) FindByIDs(_ context.Context, ids []int) ([]domain.Profile, error) {
	var out []domain.Profile
	for _, id := range ids {
		if p, ok := r.profiles[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memProfileRepo) FindByRole(_ context.Context, role domain.Role) ([]domain.Profile, error) {
	var out []domain.Profile
	for _, p := range r.profiles {
		if p.Role == role {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memProfileRepo) UpdateRole(_ context.Context, id int, role domain.Role) error {
	p, ok := r.profiles[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Role = role
	return nil
}

func (r *memProfileRepo) UpdateVerified(_ context.Context, id int, verified bool) error {
	p, ok := r.profiles[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.IsVerified = verified
	return nil
}

type memSpotRepo struct {
	spots map[int]*domain.ParkingSpot
}

func newMemSpotRepo() *memSpotRepo {
	return &memSpotRepo{spots: make(map[int]*domain.ParkingSpot)}
}

func (r *memSpotRepo) add(s domain.ParkingSpot) *domain.ParkingSpot {
	copied := s
	r.spots[copied.ID] = &copied
	return &copied
}

func (r *memSpotRepo) FindByID(_ context.Context, id int) (*domain.ParkingSpot, error) {
	s, ok := r.spots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *memSpotRepo) FindAll(_ context.Context) ([]domain.ParkingSpot, error) {
	ids := make([]int, 0, len(r.spots))
	for id := range r.spots {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]domain.ParkingSpot, 0, len(ids))
	for _, id := range ids {
		out = append(out, *r.spots[id])
	}
	return out, nil
}

func (r *memSpotRepo) FindFirstUnassignedExecutive(_ context.Context) (*domain.ParkingSpot, error) {
	ids := make([]int, 0, len(r.spots))
	for id := range r.spots {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		s := r.spots[id]
		if s.IsExecutive && !s.AssignedTo.Valid {
			copied := *s
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memSpotRepo) FindByAssignedTo(_ context.Context, userID int) (*domain.ParkingSpot, error) {
	for _, s := range r.spots {
		if s.AssignedTo.Valid && int(s.AssignedTo.Int64) == userID {
			copied := *s
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memSpotRepo) UpdateAssignment(_ context.Context, id int, assignedTo *int, isReleased bool) error {
	s, ok := r.spots[id]
	if !ok {
		return repository.ErrNotFound
	}
	if assignedTo != nil {
		s.AssignedTo = null.IntFrom(int64(*assignedTo))
	} else {
		s.AssignedTo = null.Int{}
	}
	s.IsReleased = isReleased
	return nil
}

func (r *memSpotRepo) UpdateReleased(_ context.Context, id int, isReleased bool) error {
	s, ok := r.spots[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.IsReleased = isReleased
	return nil
}

type memBookingRepo struct {
	bookings []*domain.Booking
	nextID   int
}

func newMemBookingRepo() *memBookingRepo {
	return &memBookingRepo{nextID: 1}
}

func (r *memBookingRepo) conflict(candidate *domain.Booking, skipID int) error {
	for _, b := range r.bookings {
		if b.ID == skipID || b.Date != candidate.Date {
			continue
		}
		if candidate.Status.OccupiesSpot() && b.Status.OccupiesSpot() &&
			candidate.SpotID.Valid && b.SpotID.Valid && candidate.SpotID.Int64 == b.SpotID.Int64 {
			return repository.ErrSpotDayConflict
		}
		if candidate.Status.Active() && b.Status.Active() && b.UserID == candidate.UserID {
			return repository.ErrUserDayConflict
		}
	}
	return nil
}

func (r *memBookingRepo) Create(_ context.Context, booking *domain.Booking) (*domain.Booking, error) {
	copied := *booking
	copied.ID = r.nextID
	if err := r.conflict(&copied, 0); err != nil {
		return nil, err
	}
	r.nextID++
	copied.CreatedAt = time.Now()
	r.bookings = append(r.bookings, &copied)
	out := copied
	return &out, nil
}

func (r *memBookingRepo) byID(id int) *domain.Booking {
	for _, b := range r.bookings {
		if b.ID == id {
			return b
		}
	}
	return nil
}

func (r *memBookingRepo) FindByID(_ context.Context, id int) (*domain.Booking, error) {
	if b := r.byID(id); b != nil {
		copied := *b
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memBookingRepo) FindActiveByUserAndDate(_ context.Context, userID int, date string) (*domain.Booking, error) {
	for _, b := range r.bookings {
		if b.UserID == userID && b.Date == date && b.Status.Active() {
			copied := *b
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memBookingRepo) FindOccupyingBySpotAndDate(_ context.Context, spotID int, date string) (*domain.Booking, error) {
	for _, b := range r.bookings {
		if b.SpotID.Valid && int(b.SpotID.Int64) == spotID && b.Date == date && b.Status.OccupiesSpot() {
			copied := *b
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memBookingRepo) FindByDate(_ context.Context, date string) ([]domain.Booking, error) {
	var out []domain.Booking
	for _, b := range r.bookings {
		if b.Date == date {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *memBookingRepo) FindWaitlistByDate(_ context.Context, date string) ([]domain.Booking, error) {
	var out []domain.Booking
	for _, b := range r.bookings { // insertion order doubles as created_at ASC
		if b.Date == date && b.Status == domain.BookingWaitlist {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *memBookingRepo) FindActiveByUserSpotFromDate(_ context.Context, userID int, spotID int, fromDate string) ([]domain.Booking, error) {
	var out []domain.Booking
	for _, b := range r.bookings {
		if b.UserID == userID && b.SpotID.Valid && int(b.SpotID.Int64) == spotID &&
			b.Date >= fromDate && b.Status.Active() {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *memBookingRepo) FindOccupyingBySpotFromDateExcludingUser(_ context.Context, spotID int, fromDate string, excludeUserID int) ([]domain.Booking, error) {
	var out []domain.Booking
	for _, b := range r.bookings {
		if b.SpotID.Valid && int(b.SpotID.Int64) == spotID && b.Date >= fromDate &&
			b.UserID != excludeUserID && b.Status.OccupiesSpot() {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *memBookingRepo) Find(_ context.Context, userID int, filter domain.BookingFilterDTO) ([]domain.Booking, error) {
	var out []domain.Booking
	for _, b := range r.bookings {
		if b.UserID != userID {
			continue
		}
		if filter.Status != nil && string(b.Status) != *filter.Status {
			continue
		}
		if filter.Date != nil && b.Date != *filter.Date {
			continue
		}
		if filter.DateFrom != nil && b.Date < *filter.DateFrom {
			continue
		}
		if filter.DateTo != nil && b.Date > *filter.DateTo {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (r *memBookingRepo) FindPending(_ context.Context, date *string) ([]domain.Booking, error) {
	var out []domain.Booking
	for _, b := range r.bookings {
		if b.Status != domain.BookingPending {
			continue
		}
		if date != nil && b.Date != *date {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (r *memBookingRepo) UpdateStatus(_ context.Context, id int, status domain.BookingStatus) error {
	b := r.byID(id)
	if b == nil {
		return repository.ErrNotFound
	}
	candidate := *b
	candidate.Status = status
	if err := r.conflict(&candidate, b.ID); err != nil {
		return err
	}
	b.Status = status
	return nil
}

func (r *memBookingRepo) UpdateCarpool(_ context.Context, id int, companionID *int) error {
	b := r.byID(id)
	if b == nil {
		return repository.ErrNotFound
	}
	if companionID != nil {
		b.CarpoolWithUserID = null.IntFrom(int64(*companionID))
	} else {
		b.CarpoolWithUserID = null.Int{}
	}
	return nil
}

func (r *memBookingRepo) CancelStaleBefore(_ context.Context, date string) (int64, error) {
	var count int64
	for _, b := range r.bookings {
		if b.Date < date && (b.Status == domain.BookingPending || b.Status == domain.BookingWaitlist) {
			b.Status = domain.BookingCancelled
			count++
		}
	}
	return count, nil
}

type memSpotBlockRepo struct {
	blocks []*domain.SpotBlock
	nextID int
}

func newMemSpotBlockRepo() *memSpotBlockRepo {
	return &memSpotBlockRepo{nextID: 1}
}

func (r *memSpotBlockRepo) Create(_ context.Context, block *domain.SpotBlock) (*domain.SpotBlock, error) {
	for _, b := range r.blocks {
		if b.SpotID == block.SpotID && b.Date == block.Date {
			return nil, repository.ErrDuplicateEntry
		}
	}
	copied := *block
	copied.ID = r.nextID
	r.nextID++
	r.blocks = append(r.blocks, &copied)
	out := copied
	return &out, nil
}

func (r *memSpotBlockRepo) FindByID(_ context.Context, id int) (*domain.SpotBlock, error) {
	for _, b := range r.blocks {
		if b.ID == id {
			copied := *b
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memSpotBlockRepo) FindByDate(_ context.Context, date string) ([]domain.SpotBlock, error) {
	var out []domain.SpotBlock
	for _, b := range r.blocks {
		if b.Date == date {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *memSpotBlockRepo) FindByDateRange(_ context.Context, from, to string) ([]domain.SpotBlock, error) {
	var out []domain.SpotBlock
	for _, b := range r.blocks {
		if b.Date >= from && b.Date <= to {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *memSpotBlockRepo) Delete(_ context.Context, id int) error {
	for i, b := range r.blocks {
		if b.ID == id {
			r.blocks = append(r.blocks[:i], r.blocks[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

// recordingSink captures emitted notification events.
type recordingSink struct {
	events []domain.NotificationKind
}

func (s *recordingSink) Emit(_ context.Context, kind domain.NotificationKind, _ int, _ interface{}) {
	s.events = append(s.events, kind)
}

// recordingBroadcaster captures change hints pushed to clients.
type recordingBroadcaster struct {
	events []domain.BookingChangeNotification
}

func (b *recordingBroadcaster) BroadcastBookingChange(event domain.BookingChangeNotification) {
	b.events = append(b.events, event)
}
