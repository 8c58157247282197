package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"office_parking/internal/domain"
	"office_parking/internal/repository"

	"github.com/lib/pq"
)

type pgSpotBlockRepository struct {
	db *sql.DB
}

func NewPgSpotBlockRepository(db *sql.DB) repository.SpotBlockRepository {
	return &pgSpotBlockRepository{db: db}
}

const spotBlockColumns = `id, spot_id, to_char(date, 'YYYY-MM-DD'), created_by, created_at`

func scanSpotBlock(row interface{ Scan(...interface{}) error }, b *domain.SpotBlock) error {
	return row.Scan(&b.ID, &b.SpotID, &b.Date, &b.CreatedBy, &b.CreatedAt)
}

func (r *pgSpotBlockRepository) Create(ctx context.Context, block *domain.SpotBlock) (*domain.SpotBlock, error) {
	query := `INSERT INTO spot_blocks (spot_id, date, created_by, created_at)
	           VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
	           RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, block.SpotID, block.Date, block.CreatedBy).
		Scan(&block.ID, &block.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, fmt.Errorf("%w: spot %d is already blocked for %s", repository.ErrDuplicateEntry, block.SpotID, block.Date)
		}
		return nil, fmt.Errorf("SpotBlockRepository.Create: %w", err)
	}
	block.CreatedAt = block.CreatedAt.In(time.UTC)
	return block, nil
}

func (r *pgSpotBlockRepository) FindByID(ctx context.Context, id int) (*domain.SpotBlock, error) {
	block := &domain.SpotBlock{}
	query := `SELECT ` + spotBlockColumns + ` FROM spot_blocks WHERE id = $1`
	err := scanSpotBlock(r.db.QueryRowContext(ctx, query, id), block)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("SpotBlockRepository.FindByID: %w", err)
	}
	return block, nil
}

func (r *pgSpotBlockRepository) FindByDate(ctx context.Context, date string) ([]domain.SpotBlock, error) {
	query := `SELECT ` + spotBlockColumns + ` FROM spot_blocks WHERE date = $1 ORDER BY spot_id`
	return r.queryBlocks(ctx, "FindByDate", query, date)
}

func (r *pgSpotBlockRepository) FindByDateRange(ctx context.Context, from, to string) ([]domain.SpotBlock, error) {
	query := `SELECT ` + spotBlockColumns + ` FROM spot_blocks
	           WHERE date >= $1 AND date <= $2 ORDER BY date, spot_id`
	return r.queryBlocks(ctx, "FindByDateRange", query, from, to)
}

func (r *pgSpotBlockRepository) Delete(ctx context.Context, id int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM spot_blocks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("SpotBlockRepository.Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *pgSpotBlockRepository) queryBlocks(ctx context.Context, op string, query string, args ...interface{}) ([]domain.SpotBlock, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("SpotBlockRepository.%s: %w", op, err)
	}
	defer rows.Close()

	var blocks []domain.SpotBlock
	for rows.Next() {
		var block domain.SpotBlock
		if err := scanSpotBlock(rows, &block); err != nil {
			return nil, fmt.Errorf("SpotBlockRepository.%s (scanning row): %w", op, err)
		}
		block.CreatedAt = block.CreatedAt.In(time.UTC)
		blocks = append(blocks, block)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("SpotBlockRepository.%s (rows error): %w", op, err)
	}
	return blocks, nil
}
