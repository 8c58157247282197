package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"office_parking/internal/domain"
	"office_parking/internal/repository"
)

type pgPushTokenRepository struct {
	db *sql.DB
}

func NewPgPushTokenRepository(db *sql.DB) repository.PushTokenRepository {
	return &pgPushTokenRepository{db: db}
}

// CreateOrUpdate upserts on the token itself: a device token that changes
// hands moves to the new user.
func (r *pgPushTokenRepository) CreateOrUpdate(ctx context.Context, token *domain.PushToken) (*domain.PushToken, error) {
	query := `INSERT INTO push_tokens (user_id, token, platform, created_at, updated_at)
	           VALUES ($1, $2, $3, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           ON CONFLICT (token) DO UPDATE
	           SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform, updated_at = CURRENT_TIMESTAMP
	           RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, token.UserID, token.Token, token.Platform).
		Scan(&token.ID, &token.CreatedAt, &token.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("PushTokenRepository.CreateOrUpdate: %w", err)
	}
	token.CreatedAt = token.CreatedAt.In(time.UTC)
	token.UpdatedAt = token.UpdatedAt.In(time.UTC)
	return token, nil
}

func (r *pgPushTokenRepository) DeleteByToken(ctx context.Context, userID int, token string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM push_tokens WHERE user_id = $1 AND token = $2`, userID, token)
	if err != nil {
		return fmt.Errorf("PushTokenRepository.DeleteByToken: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *pgPushTokenRepository) FindByUserID(ctx context.Context, userID int) ([]domain.PushToken, error) {
	query := `SELECT id, user_id, token, platform, created_at, updated_at
	           FROM push_tokens WHERE user_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("PushTokenRepository.FindByUserID: %w", err)
	}
	defer rows.Close()

	var tokens []domain.PushToken
	for rows.Next() {
		var t domain.PushToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Token, &t.Platform, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("PushTokenRepository.FindByUserID (scanning row): %w", err)
		}
		tokens = append(tokens, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("PushTokenRepository.FindByUserID (rows error): %w", err)
	}
	return tokens, nil
}
