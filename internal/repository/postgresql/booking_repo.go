package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"office_parking/internal/domain"
	"office_parking/internal/repository"

	"github.com/lib/pq"
)

type pgBookingRepository struct {
	db *sql.DB
}

func NewPgBookingRepository(db *sql.DB) repository.BookingRepository {
	return &pgBookingRepository{db: db}
}

// Dates round-trip as YYYY-MM-DD strings; the column holds a plain DATE in the
// store's local timezone.
const bookingColumns = `id, user_id, spot_id, to_char(date, 'YYYY-MM-DD'), status, carpool_with_user_id, created_at, updated_at`

func scanBooking(row interface{ Scan(...interface{}) error }, b *domain.Booking) error {
	return row.Scan(&b.ID, &b.UserID, &b.SpotID, &b.Date, &b.Status, &b.CarpoolWithUserID, &b.CreatedAt, &b.UpdatedAt)
}

// mapBookingConflict turns unique-index violations into the typed conflicts
// the service layer treats as normal control flow.
func mapBookingConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		switch pqErr.Constraint {
		case "bookings_spot_date_active_key":
			return repository.ErrSpotDayConflict
		case "bookings_user_date_active_key":
			return repository.ErrUserDayConflict
		}
	}
	return nil
}

func (r *pgBookingRepository) Create(ctx context.Context, booking *domain.Booking) (*domain.Booking, error) {
	query := `INSERT INTO bookings (user_id, spot_id, date, status, carpool_with_user_id, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           RETURNING id, created_at, updated_at`

	var spotIDVal sql.NullInt64
	if booking.SpotID.Valid {
		spotIDVal = sql.NullInt64{Int64: booking.SpotID.Int64, Valid: true}
	}
	var carpoolVal sql.NullInt64
	if booking.CarpoolWithUserID.Valid {
		carpoolVal = sql.NullInt64{Int64: booking.CarpoolWithUserID.Int64, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query,
		booking.UserID, spotIDVal, booking.Date, booking.Status, carpoolVal,
	).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		if conflict := mapBookingConflict(err); conflict != nil {
			return nil, conflict
		}
		return nil, fmt.Errorf("BookingRepository.Create: %w", err)
	}
	booking.CreatedAt = booking.CreatedAt.In(time.UTC)
	booking.UpdatedAt = booking.UpdatedAt.In(time.UTC)
	return booking, nil
}

func (r *pgBookingRepository) FindByID(ctx context.Context, id int) (*domain.Booking, error) {
	booking := &domain.Booking{}
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	err := scanBooking(r.db.QueryRowContext(ctx, query, id), booking)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("BookingRepository.FindByID: %w", err)
	}
	return booking, nil
}

func (r *pgBookingRepository) FindActiveByUserAndDate(ctx context.Context, userID int, date string) (*domain.Booking, error) {
	booking := &domain.Booking{}
	query := `SELECT ` + bookingColumns + ` FROM bookings
	           WHERE user_id = $1 AND date = $2 AND status <> $3
	           ORDER BY created_at DESC LIMIT 1`
	err := scanBooking(r.db.QueryRowContext(ctx, query, userID, date, domain.BookingCancelled), booking)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("BookingRepository.FindActiveByUserAndDate: %w", err)
	}
	return booking, nil
}

func (r *pgBookingRepository) FindOccupyingBySpotAndDate(ctx context.Context, spotID int, date string) (*domain.Booking, error) {
	booking := &domain.Booking{}
	query := `SELECT ` + bookingColumns + ` FROM bookings
	           WHERE spot_id = $1 AND date = $2 AND status NOT IN ($3, $4)
	           ORDER BY created_at DESC LIMIT 1`
	err := scanBooking(r.db.QueryRowContext(ctx, query, spotID, date, domain.BookingCancelled, domain.BookingWaitlist), booking)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("BookingRepository.FindOccupyingBySpotAndDate: %w", err)
	}
	return booking, nil
}

func (r *pgBookingRepository) FindByDate(ctx context.Context, date string) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE date = $1 ORDER BY created_at`
	return r.queryBookings(ctx, "FindByDate", query, date)
}

func (r *pgBookingRepository) FindWaitlistByDate(ctx context.Context, date string) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
	           WHERE date = $1 AND status = $2
	           ORDER BY created_at ASC`
	return r.queryBookings(ctx, "FindWaitlistByDate", query, date, domain.BookingWaitlist)
}

func (r *pgBookingRepository) FindActiveByUserSpotFromDate(ctx context.Context, userID int, spotID int, fromDate string) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
	           WHERE user_id = $1 AND spot_id = $2 AND date >= $3 AND status <> $4
	           ORDER BY date`
	return r.queryBookings(ctx, "FindActiveByUserSpotFromDate", query, userID, spotID, fromDate, domain.BookingCancelled)
}

func (r *pgBookingRepository) FindOccupyingBySpotFromDateExcludingUser(ctx context.Context, spotID int, fromDate string, excludeUserID int) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
	           WHERE spot_id = $1 AND date >= $2 AND user_id <> $3 AND status NOT IN ($4, $5)
	           ORDER BY date`
	return r.queryBookings(ctx, "FindOccupyingBySpotFromDateExcludingUser", query,
		spotID, fromDate, excludeUserID, domain.BookingCancelled, domain.BookingWaitlist)
}

func (r *pgBookingRepository) Find(ctx context.Context, userID int, filter domain.BookingFilterDTO) ([]domain.Booking, error) {
	baseQuery := `SELECT ` + bookingColumns + ` FROM bookings`

	conditions := []string{"user_id = $1"}
	args := []interface{}{userID}
	argID := 2

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argID))
		args = append(args, *filter.Status)
		argID++
	}
	if filter.Date != nil {
		conditions = append(conditions, fmt.Sprintf("date = $%d", argID))
		args = append(args, *filter.Date)
		argID++
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", argID))
		args = append(args, *filter.DateFrom)
		argID++
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("date <= $%d", argID))
		args = append(args, *filter.DateTo)
		argID++
	}

	query := baseQuery + " WHERE " + strings.Join(conditions, " AND ") + " ORDER BY date, created_at"
	return r.queryBookings(ctx, "Find", query, args...)
}

func (r *pgBookingRepository) FindPending(ctx context.Context, date *string) ([]domain.Booking, error) {
	if date != nil {
		query := `SELECT ` + bookingColumns + ` FROM bookings
		           WHERE status = $1 AND date = $2 ORDER BY created_at`
		return r.queryBookings(ctx, "FindPending", query, domain.BookingPending, *date)
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings
	           WHERE status = $1 ORDER BY date, created_at`
	return r.queryBookings(ctx, "FindPending", query, domain.BookingPending)
}

func (r *pgBookingRepository) UpdateStatus(ctx context.Context, id int, status domain.BookingStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`, status, id)
	if err != nil {
		if conflict := mapBookingConflict(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("BookingRepository.UpdateStatus: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *pgBookingRepository) UpdateCarpool(ctx context.Context, id int, companionID *int) error {
	var companionVal sql.NullInt64
	if companionID != nil {
		companionVal = sql.NullInt64{Int64: int64(*companionID), Valid: true}
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET carpool_with_user_id = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`,
		companionVal, id)
	if err != nil {
		return fmt.Errorf("BookingRepository.UpdateCarpool: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CancelStaleBefore cancels pending and waitlist entries whose day has
// passed; confirmed history is left untouched.
func (r *pgBookingRepository) CancelStaleBefore(ctx context.Context, date string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET status = $1, updated_at = CURRENT_TIMESTAMP
		  WHERE date < $2 AND status IN ($3, $4)`,
		domain.BookingCancelled, date, domain.BookingPending, domain.BookingWaitlist)
	if err != nil {
		return 0, fmt.Errorf("BookingRepository.CancelStaleBefore: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *pgBookingRepository) queryBookings(ctx context.Context, op string, query string, args ...interface{}) ([]domain.Booking, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("BookingRepository.%s: %w", op, err)
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		var booking domain.Booking
		if err := scanBooking(rows, &booking); err != nil {
			return nil, fmt.Errorf("BookingRepository.%s (scanning row): %w", op, err)
		}
		booking.CreatedAt = booking.CreatedAt.In(time.UTC)
		booking.UpdatedAt = booking.UpdatedAt.In(time.UTC)
		bookings = append(bookings, booking)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("BookingRepository.%s (rows error): %w", op, err)
	}
	return bookings, nil
}
