package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"office_parking/internal/domain"
	"office_parking/internal/repository"
)

type pgNotificationRepository struct {
	db *sql.DB
}

func NewPgNotificationRepository(db *sql.DB) repository.NotificationRepository {
	return &pgNotificationRepository{db: db}
}

func (r *pgNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	query := `INSERT INTO notifications (event_id, user_id, kind, payload, created_at)
	           VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
	           RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, n.EventID, n.UserID, n.Kind, []byte(n.Payload)).
		Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("NotificationRepository.Create: %w", err)
	}
	n.CreatedAt = n.CreatedAt.In(time.UTC)
	return nil
}

func (r *pgNotificationRepository) FindByUserID(ctx context.Context, userID int, limit int) ([]domain.Notification, error) {
	query := `SELECT id, event_id, user_id, kind, payload, created_at
	           FROM notifications WHERE user_id = $1
	           ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("NotificationRepository.FindByUserID: %w", err)
	}
	defer rows.Close()

	var notifications []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var payload sql.RawBytes
		if err := rows.Scan(&n.ID, &n.EventID, &n.UserID, &n.Kind, &payload, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("NotificationRepository.FindByUserID (scanning row): %w", err)
		}
		n.Payload = append(n.Payload, payload...)
		n.CreatedAt = n.CreatedAt.In(time.UTC)
		notifications = append(notifications, n)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("NotificationRepository.FindByUserID (rows error): %w", err)
	}
	return notifications, nil
}
