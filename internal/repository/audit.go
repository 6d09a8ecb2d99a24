package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shenikar/incident_dispatch/internal/audit"
	"github.com/shenikar/incident_dispatch/internal/models"
)

// AuditRepository appends to audit_logs. Rows are never updated or deleted.
type AuditRepository struct {
	db *pgxpool.Pool
}

func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

var _ audit.Sink = (*AuditRepository)(nil)

func (r *AuditRepository) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	query := `
		INSERT INTO audit_logs (action, entity_name, entity_id, description, actor_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, COALESCE($7, NOW()))
		RETURNING id, created_at;
	`
	err = r.db.QueryRow(ctx, query,
		entry.Action,
		entry.EntityName,
		entry.EntityID,
		entry.Description,
		entry.ActorID,
		string(payload),
		nullTime(entry.CreatedAt),
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
