package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"office_parking/internal/domain"
	"office_parking/internal/kv"
	"office_parking/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"gopkg.in/guregu/null.v4"
)

type bookingFixture struct {
	svc          *BookingService
	availability *AvailabilityService
	spots        *memSpotRepo
	bookings     *memBookingRepo
	blocks       *memSpotBlockRepo
	profiles     *memProfileRepo
	sink         *recordingSink
	bcast        *recordingBroadcaster
}

func newBookingFixture() *bookingFixture {
	return newBookingFixtureWithCache(nil)
}

func newBookingFixtureWithCache(cache *kv.Client) *bookingFixture {
	f := &bookingFixture{
		spots:    newMemSpotRepo(),
		bookings: newMemBookingRepo(),
		blocks:   newMemSpotBlockRepo(),
		profiles: newMemProfileRepo(),
		sink:     &recordingSink{},
		bcast:    &recordingBroadcaster{},
	}
	f.availability = NewAvailabilityService(f.spots, f.bookings, f.blocks, f.profiles, cache)
	f.svc = NewBookingService(f.bookings, f.spots, f.blocks, f.profiles, f.availability, f.sink, f.bcast)

	for i := 1; i <= domain.NormalPoolSize; i++ {
		f.spots.add(normalSpot(i))
	}
	f.profiles.add(domain.Profile{ID: 1, Email: "u1@corp.test", Role: domain.RoleUser, IsVerified: true})
	f.profiles.add(domain.Profile{ID: 2, Email: "u2@corp.test", Role: domain.RoleUser, IsVerified: true})
	f.profiles.add(domain.Profile{ID: 3, Email: "u3@corp.test", Role: domain.RoleUser, IsVerified: true})
	f.profiles.add(domain.Profile{ID: 9, Email: "unverified@corp.test", Role: domain.RoleUser, IsVerified: false})
	f.profiles.add(domain.Profile{ID: 30, Email: "boss@corp.test", Role: domain.RoleDirectivo, IsVerified: true})
	return f
}

func TestCreateDirectBooking(t *testing.T) {
	ctx := context.Background()
	date := "2026-09-01"

	t.Run("reserves a free spot as pending", func(t *testing.T) {
		f := newBookingFixture()
		got, err := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 3, Date: date})
		if err != nil {
			t.Fatalf("CreateDirectBooking failed: %v", err)
		}
		if got.Status != domain.BookingPending {
			t.Errorf("status = %q, want %q", got.Status, domain.BookingPending)
		}
		if !got.SpotID.Valid || got.SpotID.Int64 != 3 {
			t.Errorf("spot id = %+v, want 3", got.SpotID)
		}
		if len(f.sink.events) != 1 || f.sink.events[0] != domain.NotifyBookingRequested {
			t.Errorf("sink events = %v, want one booking_requested", f.sink.events)
		}
		if len(f.bcast.events) != 1 || f.bcast.events[0].Date != date {
			t.Errorf("broadcast events = %v, want one for %s", f.bcast.events, date)
		}
	})

	t.Run("rejects a spot someone else holds", func(t *testing.T) {
		f := newBookingFixture()
		if _, err := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 3, Date: date}); err != nil {
			t.Fatalf("seeding booking failed: %v", err)
		}
		_, err := f.svc.CreateDirectBooking(ctx, 2, domain.CreateBookingDTO{SpotID: 3, Date: date})
		if !errors.Is(err, ErrSpotTaken) {
			t.Errorf("err = %v, want ErrSpotTaken", err)
		}
	})

	t.Run("rejects a second booking by the same user on the same day", func(t *testing.T) {
		f := newBookingFixture()
		if _, err := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 3, Date: date}); err != nil {
			t.Fatalf("seeding booking failed: %v", err)
		}
		_, err := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 4, Date: date})
		if !errors.Is(err, ErrAlreadyBooked) {
			t.Errorf("err = %v, want ErrAlreadyBooked", err)
		}
	})

	t.Run("rejects a blocked spot", func(t *testing.T) {
		f := newBookingFixture()
		if _, err := f.blocks.Create(ctx, &domain.SpotBlock{SpotID: 3, Date: date}); err != nil {
			t.Fatalf("seeding block failed: %v", err)
		}
		_, err := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 3, Date: date})
		if !errors.Is(err, ErrSpotBlocked) {
			t.Errorf("err = %v, want ErrSpotBlocked", err)
		}
	})

	t.Run("rejects unverified accounts", func(t *testing.T) {
		f := newBookingFixture()
		_, err := f.svc.CreateDirectBooking(ctx, 9, domain.CreateBookingDTO{SpotID: 3, Date: date})
		if !errors.Is(err, ErrNotVerified) {
			t.Errorf("err = %v, want ErrNotVerified", err)
		}
	})

	t.Run("rejects malformed dates", func(t *testing.T) {
		f := newBookingFixture()
		_, err := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 3, Date: "01-09-2026"})
		if !errors.Is(err, ErrInvalidDate) {
			t.Errorf("err = %v, want ErrInvalidDate", err)
		}
	})
}

func TestCreateDirectBooking_ExecutiveSpots(t *testing.T) {
	ctx := context.Background()
	date := "2026-09-01"

	t.Run("owner booked that day", func(t *testing.T) {
		f := newBookingFixture()
		f.spots.add(executiveSpot(9, 30, false))
		if _, err := f.bookings.Create(ctx, &domain.Booking{UserID: 30, SpotID: null.IntFrom(9), Date: date, Status: domain.BookingConfirmed}); err != nil {
			t.Fatalf("seeding booking failed: %v", err)
		}
		_, err := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 9, Date: date})
		if !errors.Is(err, ErrSpotTaken) {
			t.Errorf("err = %v, want ErrSpotTaken", err)
		}
	})

	t.Run("owner idle that day without releasing", func(t *testing.T) {
		f := newBookingFixture()
		f.spots.add(executiveSpot(9, 30, false))
		_, err := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 9, Date: date})
		if !errors.Is(err, ErrSpotUnavailable) {
			t.Errorf("err = %v, want ErrSpotUnavailable", err)
		}
	})

	t.Run("released spot can be claimed", func(t *testing.T) {
		f := newBookingFixture()
		f.spots.add(executiveSpot(9, 30, true))
		got, err := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 9, Date: date})
		if err != nil {
			t.Fatalf("CreateDirectBooking failed: %v", err)
		}
		if got.Status != domain.BookingPending {
			t.Errorf("status = %q, want %q", got.Status, domain.BookingPending)
		}
	})
}

func TestRequestPoolBooking(t *testing.T) {
	ctx := context.Background()
	date := "2026-09-01"

	t.Run("always lands on the waitlist, even when the day is empty", func(t *testing.T) {
		f := newBookingFixture()
		got, err := f.svc.RequestPoolBooking(ctx, 1, date)
		if err != nil {
			t.Fatalf("RequestPoolBooking failed: %v", err)
		}
		if got.Status != domain.BookingWaitlist {
			t.Errorf("status = %q, want %q", got.Status, domain.BookingWaitlist)
		}
		if got.SpotID.Valid {
			t.Errorf("spot id = %+v, want null", got.SpotID)
		}
	})

	t.Run("rejects a second request on the same day", func(t *testing.T) {
		f := newBookingFixture()
		if _, err := f.svc.RequestPoolBooking(ctx, 1, date); err != nil {
			t.Fatalf("seeding request failed: %v", err)
		}
		_, err := f.svc.RequestPoolBooking(ctx, 1, date)
		if !errors.Is(err, ErrAlreadyBooked) {
			t.Errorf("err = %v, want ErrAlreadyBooked", err)
		}
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	date := "2026-09-01"

	t.Run("promotes the longest-waiting entry, exactly one", func(t *testing.T) {
		f := newBookingFixture()
		held, err := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 1, Date: date})
		if err != nil {
			t.Fatalf("seeding booking failed: %v", err)
		}
		w1, err := f.svc.RequestPoolBooking(ctx, 2, date)
		if err != nil {
			t.Fatalf("seeding waitlist 1 failed: %v", err)
		}
		w2, err := f.svc.RequestPoolBooking(ctx, 3, date)
		if err != nil {
			t.Fatalf("seeding waitlist 2 failed: %v", err)
		}

		if _, err := f.svc.Cancel(ctx, held.ID, 1, domain.RoleUser); err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}

		first, _ := f.bookings.FindByID(ctx, w1.ID)
		second, _ := f.bookings.FindByID(ctx, w2.ID)
		if first.Status != domain.BookingPending {
			t.Errorf("first waitlist entry status = %q, want %q", first.Status, domain.BookingPending)
		}
		if second.Status != domain.BookingWaitlist {
			t.Errorf("second waitlist entry status = %q, want %q", second.Status, domain.BookingWaitlist)
		}
	})

	t.Run("double cancel is a no-op and never promotes twice", func(t *testing.T) {
		f := newBookingFixture()
		held, err := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 1, Date: date})
		if err != nil {
			t.Fatalf("seeding booking failed: %v", err)
		}
		w1, _ := f.svc.RequestPoolBooking(ctx, 2, date)
		w2, _ := f.svc.RequestPoolBooking(ctx, 3, date)

		if _, err := f.svc.Cancel(ctx, held.ID, 1, domain.RoleUser); err != nil {
			t.Fatalf("first Cancel failed: %v", err)
		}
		got, err := f.svc.Cancel(ctx, held.ID, 1, domain.RoleUser)
		if err != nil {
			t.Fatalf("second Cancel failed: %v", err)
		}
		if got.Status != domain.BookingCancelled {
			t.Errorf("status = %q, want %q", got.Status, domain.BookingCancelled)
		}

		first, _ := f.bookings.FindByID(ctx, w1.ID)
		second, _ := f.bookings.FindByID(ctx, w2.ID)
		if first.Status != domain.BookingPending || second.Status != domain.BookingWaitlist {
			t.Errorf("waitlist after double cancel = %q/%q, want pending/waitlist", first.Status, second.Status)
		}
	})

	t.Run("cancelling a waitlist entry frees nothing", func(t *testing.T) {
		f := newBookingFixture()
		w1, _ := f.svc.RequestPoolBooking(ctx, 1, date)
		w2, _ := f.svc.RequestPoolBooking(ctx, 2, date)

		if _, err := f.svc.Cancel(ctx, w1.ID, 1, domain.RoleUser); err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}
		second, _ := f.bookings.FindByID(ctx, w2.ID)
		if second.Status != domain.BookingWaitlist {
			t.Errorf("status = %q, want %q (no promotion)", second.Status, domain.BookingWaitlist)
		}
	})

	t.Run("no promotion when blocks have eaten the pool", func(t *testing.T) {
		f := newBookingFixture()
		held, err := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 1, Date: date})
		if err != nil {
			t.Fatalf("seeding booking failed: %v", err)
		}
		w1, _ := f.svc.RequestPoolBooking(ctx, 2, date)
		for i := 1; i <= domain.NormalPoolSize; i++ {
			if _, err := f.blocks.Create(ctx, &domain.SpotBlock{SpotID: i, Date: date}); err != nil {
				t.Fatalf("seeding block failed: %v", err)
			}
		}

		if _, err := f.svc.Cancel(ctx, held.ID, 1, domain.RoleUser); err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}
		first, _ := f.bookings.FindByID(ctx, w1.ID)
		if first.Status != domain.BookingWaitlist {
			t.Errorf("status = %q, want %q (pool exhausted)", first.Status, domain.BookingWaitlist)
		}
	})

	t.Run("executive waitlist entries are skipped", func(t *testing.T) {
		f := newBookingFixture()
		held, err := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 1, Date: date})
		if err != nil {
			t.Fatalf("seeding booking failed: %v", err)
		}
		wExec, _ := f.svc.RequestPoolBooking(ctx, 30, date)
		wUser, _ := f.svc.RequestPoolBooking(ctx, 2, date)

		if _, err := f.svc.Cancel(ctx, held.ID, 1, domain.RoleUser); err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}
		execEntry, _ := f.bookings.FindByID(ctx, wExec.ID)
		userEntry, _ := f.bookings.FindByID(ctx, wUser.ID)
		if execEntry.Status != domain.BookingWaitlist {
			t.Errorf("executive entry status = %q, want %q", execEntry.Status, domain.BookingWaitlist)
		}
		if userEntry.Status != domain.BookingPending {
			t.Errorf("user entry status = %q, want %q", userEntry.Status, domain.BookingPending)
		}
	})

	t.Run("only the owner or an admin may cancel", func(t *testing.T) {
		f := newBookingFixture()
		held, err := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 1, Date: date})
		if err != nil {
			t.Fatalf("seeding booking failed: %v", err)
		}

		if _, err := f.svc.Cancel(ctx, held.ID, 2, domain.RoleUser); !errors.Is(err, ErrPermissionDenied) {
			t.Errorf("err = %v, want ErrPermissionDenied", err)
		}
		if _, err := f.svc.Cancel(ctx, held.ID, 99, domain.RoleAdmin); err != nil {
			t.Errorf("admin cancel failed: %v", err)
		}
	})

	t.Run("unknown booking", func(t *testing.T) {
		f := newBookingFixture()
		if _, err := f.svc.Cancel(ctx, 404, 1, domain.RoleUser); !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestAdminSetStatus(t *testing.T) {
	ctx := context.Background()
	date := "2026-09-01"

	t.Run("confirming emits a notification", func(t *testing.T) {
		f := newBookingFixture()
		b, err := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 1, Date: date})
		if err != nil {
			t.Fatalf("seeding booking failed: %v", err)
		}
		f.sink.events = nil

		got, err := f.svc.AdminSetStatus(ctx, b.ID, domain.BookingConfirmed)
		if err != nil {
			t.Fatalf("AdminSetStatus failed: %v", err)
		}
		if got.Status != domain.BookingConfirmed {
			t.Errorf("status = %q, want %q", got.Status, domain.BookingConfirmed)
		}
		if len(f.sink.events) != 1 || f.sink.events[0] != domain.NotifyBookingConfirmed {
			t.Errorf("sink events = %v, want one booking_confirmed", f.sink.events)
		}
	})

	t.Run("rejecting promotes from the waitlist", func(t *testing.T) {
		f := newBookingFixture()
		b, _ := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 1, Date: date})
		w1, _ := f.svc.RequestPoolBooking(ctx, 2, date)

		if _, err := f.svc.AdminSetStatus(ctx, b.ID, domain.BookingCancelled); err != nil {
			t.Fatalf("AdminSetStatus failed: %v", err)
		}
		first, _ := f.bookings.FindByID(ctx, w1.ID)
		if first.Status != domain.BookingPending {
			t.Errorf("status = %q, want %q", first.Status, domain.BookingPending)
		}
	})

	t.Run("cancelled bookings are final", func(t *testing.T) {
		f := newBookingFixture()
		b, _ := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 1, Date: date})
		if _, err := f.svc.Cancel(ctx, b.ID, 1, domain.RoleUser); err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}
		if _, err := f.svc.AdminSetStatus(ctx, b.ID, domain.BookingConfirmed); !errors.Is(err, ErrBookingFinal) {
			t.Errorf("err = %v, want ErrBookingFinal", err)
		}
	})

	t.Run("waitlist is not a valid admin target", func(t *testing.T) {
		f := newBookingFixture()
		b, _ := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 1, Date: date})
		if _, err := f.svc.AdminSetStatus(ctx, b.ID, domain.BookingWaitlist); !errors.Is(err, ErrInvalidStatus) {
			t.Errorf("err = %v, want ErrInvalidStatus", err)
		}
	})
}

func TestSetCarpoolCompanion(t *testing.T) {
	ctx := context.Background()
	date := "2026-09-01"

	f := newBookingFixture()
	b, err := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 1, Date: date})
	if err != nil {
		t.Fatalf("seeding booking failed: %v", err)
	}

	companion := 2
	got, err := f.svc.SetCarpoolCompanion(ctx, b.ID, 1, &companion)
	if err != nil {
		t.Fatalf("SetCarpoolCompanion failed: %v", err)
	}
	if !got.CarpoolWithUserID.Valid || got.CarpoolWithUserID.Int64 != 2 {
		t.Errorf("companion = %+v, want 2", got.CarpoolWithUserID)
	}

	got, err = f.svc.SetCarpoolCompanion(ctx, b.ID, 1, nil)
	if err != nil {
		t.Fatalf("detaching companion failed: %v", err)
	}
	if got.CarpoolWithUserID.Valid {
		t.Errorf("companion = %+v, want null", got.CarpoolWithUserID)
	}

	if _, err := f.svc.SetCarpoolCompanion(ctx, b.ID, 2, &companion); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}

	missing := 404
	if _, err := f.svc.SetCarpoolCompanion(ctx, b.ID, 1, &missing); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound for unknown companion", err)
	}
}

func TestCancelStale(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture()

	stale, _ := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 1, Date: "2026-08-20"})
	staleWait, _ := f.svc.RequestPoolBooking(ctx, 2, "2026-08-20")
	fresh, _ := f.svc.CreateDirectBooking(ctx, 3, domain.CreateBookingDTO{SpotID: 2, Date: "2026-09-01"})

	count, err := f.svc.CancelStale(ctx, "2026-08-28")
	if err != nil {
		t.Fatalf("CancelStale failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	for _, id := range []int{stale.ID, staleWait.ID} {
		b, _ := f.bookings.FindByID(ctx, id)
		if b.Status != domain.BookingCancelled {
			t.Errorf("booking %d status = %q, want cancelled", id, b.Status)
		}
	}
	b, _ := f.bookings.FindByID(ctx, fresh.ID)
	if b.Status != domain.BookingPending {
		t.Errorf("fresh booking status = %q, want pending", b.Status)
	}
}

func TestSpotBlocks(t *testing.T) {
	ctx := context.Background()
	date := "2026-09-01"

	t.Run("duplicate block is rejected", func(t *testing.T) {
		f := newBookingFixture()
		if _, err := f.svc.CreateSpotBlock(ctx, 99, domain.CreateSpotBlockDTO{SpotID: 1, Date: date}); err != nil {
			t.Fatalf("CreateSpotBlock failed: %v", err)
		}
		if _, err := f.svc.CreateSpotBlock(ctx, 99, domain.CreateSpotBlockDTO{SpotID: 1, Date: date}); !errors.Is(err, repository.ErrDuplicateEntry) {
			t.Errorf("err = %v, want ErrDuplicateEntry", err)
		}
	})

	t.Run("unknown spot is rejected", func(t *testing.T) {
		f := newBookingFixture()
		if _, err := f.svc.CreateSpotBlock(ctx, 99, domain.CreateSpotBlockDTO{SpotID: 77, Date: date}); !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete removes the block from range listings", func(t *testing.T) {
		f := newBookingFixture()
		block, err := f.svc.CreateSpotBlock(ctx, 99, domain.CreateSpotBlockDTO{SpotID: 1, Date: date})
		if err != nil {
			t.Fatalf("CreateSpotBlock failed: %v", err)
		}
		if err := f.svc.DeleteSpotBlock(ctx, block.ID); err != nil {
			t.Fatalf("DeleteSpotBlock failed: %v", err)
		}
		blocks, err := f.svc.ListSpotBlocks(ctx, date, date)
		if err != nil {
			t.Fatalf("ListSpotBlocks failed: %v", err)
		}
		if len(blocks) != 0 {
			t.Errorf("got %d blocks, want 0", len(blocks))
		}
	})
}

// seedFullDay fills every pool spot with a confirmed booking and parks one
// extra user on the waitlist. Returns the first confirmed booking and the
// waitlist entry.
func seedFullDay(t *testing.T, ctx context.Context, f *bookingFixture, date string) (*domain.Booking, *domain.Booking) {
	t.Helper()
	for i := 4; i <= domain.NormalPoolSize; i++ {
		f.profiles.add(domain.Profile{ID: i, Email: fmt.Sprintf("u%d@corp.test", i), Role: domain.RoleUser, IsVerified: true})
	}
	f.profiles.add(domain.Profile{ID: 10, Email: "u10@corp.test", Role: domain.RoleUser, IsVerified: true})

	var first *domain.Booking
	for i := 1; i <= domain.NormalPoolSize; i++ {
		b, err := f.bookings.Create(ctx, &domain.Booking{UserID: i, SpotID: null.IntFrom(int64(i)), Date: date, Status: domain.BookingConfirmed})
		if err != nil {
			t.Fatalf("seeding booking on spot %d failed: %v", i, err)
		}
		if first == nil {
			first = b
		}
	}
	waiting, err := f.svc.RequestPoolBooking(ctx, 10, date)
	if err != nil {
		t.Fatalf("seeding waitlist entry failed: %v", err)
	}
	return first, waiting
}

func TestPromotionWithWarmCapacityCache(t *testing.T) {
	ctx := context.Background()
	date := "2026-09-01"

	newCachedFixture := func(t *testing.T) *bookingFixture {
		t.Helper()
		mr := miniredis.RunT(t)
		cache, err := kv.New(mr.Addr(), "")
		if err != nil {
			t.Fatalf("connecting to test redis failed: %v", err)
		}
		t.Cleanup(func() { cache.Close() })
		return newBookingFixtureWithCache(cache)
	}

	t.Run("cancel promotes even when the full-day counters are cached", func(t *testing.T) {
		f := newCachedFixture(t)
		first, waiting := seedFullDay(t, ctx, f, date)

		// Warm the cache the way a map read would, right before the cancel.
		capacity, err := f.availability.DayCapacityFor(ctx, date)
		if err != nil {
			t.Fatalf("DayCapacityFor failed: %v", err)
		}
		if !capacity.Full {
			t.Fatalf("capacity = %+v, want a full day before the cancel", capacity)
		}

		if _, err := f.svc.Cancel(ctx, first.ID, first.UserID, domain.RoleUser); err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}

		promoted, _ := f.bookings.FindByID(ctx, waiting.ID)
		if promoted.Status != domain.BookingPending {
			t.Errorf("waitlist entry status = %q, want %q", promoted.Status, domain.BookingPending)
		}
	})

	t.Run("admin reject promotes even when the full-day counters are cached", func(t *testing.T) {
		f := newCachedFixture(t)
		first, waiting := seedFullDay(t, ctx, f, date)

		if _, err := f.availability.DayCapacityFor(ctx, date); err != nil {
			t.Fatalf("DayCapacityFor failed: %v", err)
		}

		if _, err := f.svc.AdminSetStatus(ctx, first.ID, domain.BookingCancelled); err != nil {
			t.Fatalf("AdminSetStatus failed: %v", err)
		}

		promoted, _ := f.bookings.FindByID(ctx, waiting.ID)
		if promoted.Status != domain.BookingPending {
			t.Errorf("waitlist entry status = %q, want %q", promoted.Status, domain.BookingPending)
		}
	})
}

func TestBookingOperationInFlightGuard(t *testing.T) {
	ctx := context.Background()
	date := "2026-09-01"

	t.Run("overlapping create is refused while the first holds the key", func(t *testing.T) {
		f := newBookingFixture()
		key := fmt.Sprintf("create:%d:%s", 1, date)
		if err := f.svc.acquire(key); err != nil {
			t.Fatalf("acquire failed: %v", err)
		}

		if _, err := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 3, Date: date}); !errors.Is(err, ErrOperationInFlight) {
			t.Errorf("err = %v, want ErrOperationInFlight", err)
		}

		f.svc.release(key)
		if _, err := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 3, Date: date}); err != nil {
			t.Errorf("retry after release failed: %v", err)
		}
	})

	t.Run("overlapping pool request is refused", func(t *testing.T) {
		f := newBookingFixture()
		key := fmt.Sprintf("pool:%d:%s", 1, date)
		if err := f.svc.acquire(key); err != nil {
			t.Fatalf("acquire failed: %v", err)
		}
		if _, err := f.svc.RequestPoolBooking(ctx, 1, date); !errors.Is(err, ErrOperationInFlight) {
			t.Errorf("err = %v, want ErrOperationInFlight", err)
		}
	})
}

// racingBookingRepo slips a rival booking in between the service's pre-write
// checks and its own insert, reproducing a lost cross-session race at the
// store's unique index.
type racingBookingRepo struct {
	*memBookingRepo
	rival    *domain.Booking
	injected bool
}

func (r *racingBookingRepo) Create(ctx context.Context, booking *domain.Booking) (*domain.Booking, error) {
	if r.rival != nil && !r.injected {
		r.injected = true
		if _, err := r.memBookingRepo.Create(ctx, r.rival); err != nil {
			return nil, err
		}
	}
	return r.memBookingRepo.Create(ctx, booking)
}

func newRacingFixture(rival *domain.Booking) *bookingFixture {
	f := newBookingFixture()
	racing := &racingBookingRepo{memBookingRepo: f.bookings, rival: rival}
	f.svc = NewBookingService(racing, f.spots, f.blocks, f.profiles, f.availability, f.sink, f.bcast)
	return f
}

func TestCreateDirectBooking_LostRace(t *testing.T) {
	ctx := context.Background()
	date := "2026-09-01"

	t.Run("spot claimed between check and insert surfaces SpotTaken", func(t *testing.T) {
		f := newRacingFixture(&domain.Booking{UserID: 2, SpotID: null.IntFrom(3), Date: date, Status: domain.BookingConfirmed})

		_, err := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 3, Date: date})
		if !errors.Is(err, ErrSpotTaken) {
			t.Fatalf("err = %v, want ErrSpotTaken", err)
		}

		// Losing the race still forces a day re-read for connected clients.
		if len(f.bcast.events) != 1 || f.bcast.events[0].Date != date {
			t.Errorf("broadcast events = %v, want one refetch hint for %s", f.bcast.events, date)
		}
	})

	t.Run("own booking landed elsewhere surfaces AlreadyBooked", func(t *testing.T) {
		f := newRacingFixture(&domain.Booking{UserID: 1, SpotID: null.IntFrom(5), Date: date, Status: domain.BookingPending})

		_, err := f.svc.CreateDirectBooking(ctx, 1, domain.CreateBookingDTO{SpotID: 3, Date: date})
		if !errors.Is(err, ErrAlreadyBooked) {
			t.Fatalf("err = %v, want ErrAlreadyBooked", err)
		}
		if len(f.bcast.events) != 1 {
			t.Errorf("broadcast events = %v, want one refetch hint", f.bcast.events)
		}
	})
}
