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

type pgProfileRepository struct {
	db *sql.DB
}

func NewPgProfileRepository(db *sql.DB) repository.ProfileRepository {
	return &pgProfileRepository{db: db}
}

const profileColumns = `id, email, password_hash, full_name, role, is_verified, created_at, updated_at`

func scanProfile(row interface{ Scan(...interface{}) error }, p *domain.Profile) error {
	return row.Scan(&p.ID, &p.Email, &p.PasswordHash, &p.FullName, &p.Role, &p.IsVerified, &p.CreatedAt, &p.UpdatedAt)
}

func (r *pgProfileRepository) Create(ctx context.Context, profile *domain.Profile) (*domain.Profile, error) {
	query := `INSERT INTO profiles (email, password_hash, full_name, role, is_verified, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		profile.Email, profile.PasswordHash, profile.FullName, profile.Role, profile.IsVerified,
	).Scan(&profile.ID, &profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code.Name() == "unique_violation" && pqErr.Constraint == "profiles_email_key" {
				return nil, fmt.Errorf("%w: email '%s' is already registered", repository.ErrDuplicateEntry, profile.Email)
			}
		}
		return nil, fmt.Errorf("ProfileRepository.Create: %w", err)
	}
	profile.CreatedAt = profile.CreatedAt.In(time.UTC)
	profile.UpdatedAt = profile.UpdatedAt.In(time.UTC)
	return profile, nil
}

func (r *pgProfileRepository) FindByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	profile := &domain.Profile{}
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE email = $1`
	err := scanProfile(r.db.QueryRowContext(ctx, query, email), profile)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ProfileRepository.FindByEmail: %w", err)
	}
	return profile, nil
}

func (r *pgProfileRepository) FindByID(ctx context.Context, id int) (*domain.Profile, error) {
	profile := &domain.Profile{}
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	err := scanProfile(r.db.QueryRowContext(ctx, query, id), profile)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ProfileRepository.FindByID: %w", err)
	}
	return profile, nil
}

func (r *pgProfileRepository) FindByIDs(ctx context.Context, ids []int) ([]domain.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = ANY($1)`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("ProfileRepository.FindByIDs: %w", err)
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		var profile domain.Profile
		if err := scanProfile(rows, &profile); err != nil {
			return nil, fmt.Errorf("ProfileRepository.FindByIDs (scanning row): %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ProfileRepository.FindByIDs (rows error): %w", err)
	}
	return profiles, nil
}

func (r *pgProfileRepository) FindByRole(ctx context.Context, role domain.Role) ([]domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE role = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, role)
	if err != nil {
		return nil, fmt.Errorf("ProfileRepository.FindByRole: %w", err)
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		var profile domain.Profile
		if err := scanProfile(rows, &profile); err != nil {
			return nil, fmt.Errorf("ProfileRepository.FindByRole (scanning row): %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ProfileRepository.FindByRole (rows error): %w", err)
	}
	return profiles, nil
}

func (r *pgProfileRepository) UpdateRole(ctx context.Context, id int, role domain.Role) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET role = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`, role, id)
	if err != nil {
		return fmt.Errorf("ProfileRepository.UpdateRole: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *pgProfileRepository) UpdateVerified(ctx context.Context, id int, verified bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET is_verified = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`, verified, id)
	if err != nil {
		return fmt.Errorf("ProfileRepository.UpdateVerified: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
