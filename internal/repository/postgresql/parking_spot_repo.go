package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"office_parking/internal/domain"
	"office_parking/internal/repository"
)

type pgParkingSpotRepository struct {
	db *sql.DB
}

func NewPgParkingSpotRepository(db *sql.DB) repository.ParkingSpotRepository {
	return &pgParkingSpotRepository{db: db}
}

const spotColumns = `id, label, is_blocked, is_executive, assigned_to, is_released, created_at, updated_at`

func scanSpot(row interface{ Scan(...interface{}) error }, s *domain.ParkingSpot) error {
	return row.Scan(&s.ID, &s.Label, &s.IsBlocked, &s.IsExecutive, &s.AssignedTo, &s.IsReleased, &s.CreatedAt, &s.UpdatedAt)
}

func (r *pgParkingSpotRepository) FindByID(ctx context.Context, id int) (*domain.ParkingSpot, error) {
	spot := &domain.ParkingSpot{}
	query := `SELECT ` + spotColumns + ` FROM parking_spots WHERE id = $1`
	err := scanSpot(r.db.QueryRowContext(ctx, query, id), spot)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ParkingSpotRepository.FindByID: %w", err)
	}
	return spot, nil
}

func (r *pgParkingSpotRepository) FindAll(ctx context.Context) ([]domain.ParkingSpot, error) {
	query := `SELECT ` + spotColumns + ` FROM parking_spots ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ParkingSpotRepository.FindAll: %w", err)
	}
	defer rows.Close()

	var spots []domain.ParkingSpot
	for rows.Next() {
		var spot domain.ParkingSpot
		if err := scanSpot(rows, &spot); err != nil {
			return nil, fmt.Errorf("ParkingSpotRepository.FindAll (scanning row): %w", err)
		}
		spots = append(spots, spot)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ParkingSpotRepository.FindAll (rows error): %w", err)
	}
	return spots, nil
}

func (r *pgParkingSpotRepository) FindFirstUnassignedExecutive(ctx context.Context) (*domain.ParkingSpot, error) {
	spot := &domain.ParkingSpot{}
	query := `SELECT ` + spotColumns + ` FROM parking_spots
	           WHERE is_executive = TRUE AND assigned_to IS NULL
	           ORDER BY id LIMIT 1`
	err := scanSpot(r.db.QueryRowContext(ctx, query), spot)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ParkingSpotRepository.FindFirstUnassignedExecutive: %w", err)
	}
	return spot, nil
}

func (r *pgParkingSpotRepository) FindByAssignedTo(ctx context.Context, userID int) (*domain.ParkingSpot, error) {
	spot := &domain.ParkingSpot{}
	query := `SELECT ` + spotColumns + ` FROM parking_spots WHERE assigned_to = $1 LIMIT 1`
	err := scanSpot(r.db.QueryRowContext(ctx, query, userID), spot)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ParkingSpotRepository.FindByAssignedTo: %w", err)
	}
	return spot, nil
}

func (r *pgParkingSpotRepository) UpdateAssignment(ctx context.Context, id int, assignedTo *int, isReleased bool) error {
	var assignedVal sql.NullInt64
	if assignedTo != nil {
		assignedVal = sql.NullInt64{Int64: int64(*assignedTo), Valid: true}
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE parking_spots SET assigned_to = $1, is_released = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $3`,
		assignedVal, isReleased, id)
	if err != nil {
		return fmt.Errorf("ParkingSpotRepository.UpdateAssignment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *pgParkingSpotRepository) UpdateReleased(ctx context.Context, id int, isReleased bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE parking_spots SET is_released = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`,
		isReleased, id)
	if err != nil {
		return fmt.Errorf("ParkingSpotRepository.UpdateReleased: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
