package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shenikar/incident_dispatch/internal/models"
	"github.com/shenikar/incident_dispatch/internal/notification"
)

// NotificationRepository is the persistent in-app notification log.
type NotificationRepository struct {
	db *pgxpool.Pool
}

func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: db}
}

var _ notification.Store = (*NotificationRepository)(nil)

func (r *NotificationRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (user_id, title, message, category, target_id, target_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, is_read, created_at;
	`
	err := r.db.QueryRow(ctx, query,
		n.UserID,
		n.Title,
		n.Message,
		string(n.Category),
		n.TargetID,
		n.TargetType,
	).Scan(&n.ID, &n.IsRead, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}
