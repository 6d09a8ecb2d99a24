package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shenikar/incident_dispatch/internal/dispatch"
	"github.com/shenikar/incident_dispatch/internal/models"
)

// ResponderRepository serves the read-only snapshots dispatch works from.
type ResponderRepository struct {
	db *pgxpool.Pool
}

func NewResponderRepository(db *pgxpool.Pool) *ResponderRepository {
	return &ResponderRepository{db: db}
}

var (
	_ dispatch.ResponderReader     = (*ResponderRepository)(nil)
	_ dispatch.FallbackAdminReader = (*ResponderRepository)(nil)
)

// eligibleRespondersQuery selects the columns scanResponder reads, in order.
const eligibleRespondersQuery = `
	SELECT
		r.id,
		r.user_id,
		r.agency_id,
		r.status,
		r.is_verified,
		ST_Y(r.location::geometry) AS latitude,
		ST_X(r.location::geometry) AS longitude,
		r.capabilities,
		r.specialties,
		u.email,
		u.full_name,
		u.role,
		u.is_active,
		u.is_deleted,
		u.email_verified,
		a.name,
		a.is_active,
		a.is_deleted,
		a.admin_user_id,
		a.supported_incident_types,
		a.supported_work_types,
		au.email,
		au.full_name,
		au.role,
		au.is_active,
		au.is_deleted,
		au.email_verified
	FROM responders r
	JOIN users u ON u.id = r.user_id
	JOIN agencies a ON a.id = r.agency_id
	LEFT JOIN users au ON au.id = a.admin_user_id
	WHERE
		r.status = 'available'
		AND r.is_verified
		AND r.location IS NOT NULL
		AND a.is_active AND NOT a.is_deleted
		AND u.is_active AND NOT u.is_deleted AND u.email_verified
		AND ($1 = ANY(a.supported_incident_types) OR $1 = ANY(r.specialties));
`

// ReadEligibleResponders pre-filters in SQL and embeds the owning user and
// agency (with its admin) in every responder.
func (r *ResponderRepository) ReadEligibleResponders(ctx context.Context, incidentType models.IncidentType) ([]models.Responder, error) {
	rows, err := r.db.Query(ctx, eligibleRespondersQuery, string(incidentType))
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible responders: %w", err)
	}
	defer rows.Close()

	responders := make([]models.Responder, 0)
	for rows.Next() {
		responder, err := scanResponder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan responder row: %w", err)
		}
		responders = append(responders, responder)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error responder iteration: %w", err)
	}
	return responders, nil
}

func scanResponder(row pgx.Row) (models.Responder, error) {
	var (
		responder              models.Responder
		user                   models.User
		agency                 models.Agency
		agencyID               uuid.UUID
		status, role           string
		latitude, longitude    *float64
		specialties, supported []string
		adminEmail, adminName  *string
		adminRole              *string
		adminActive, adminDel  *bool
		adminVerified          *bool
	)
	err := row.Scan(
		&responder.ID,
		&responder.UserID,
		&agencyID,
		&status,
		&responder.IsVerified,
		&latitude,
		&longitude,
		&responder.Capabilities,
		&specialties,
		&user.Email,
		&user.FullName,
		&role,
		&user.IsActive,
		&user.IsDeleted,
		&user.EmailVerified,
		&agency.Name,
		&agency.IsActive,
		&agency.IsDeleted,
		&agency.AdminUserID,
		&supported,
		&agency.SupportedWorkTypes,
		&adminEmail,
		&adminName,
		&adminRole,
		&adminActive,
		&adminDel,
		&adminVerified,
	)
	if err != nil {
		return models.Responder{}, err
	}

	responder.Status = models.ResponderStatus(status)
	responder.Specialties = toIncidentTypes(specialties)
	if latitude != nil && longitude != nil {
		responder.Location = &models.Coordinate{Latitude: *latitude, Longitude: *longitude}
	}

	user.ID = responder.UserID
	user.Role = models.UserRole(role)
	responder.User = &user

	agency.ID = agencyID
	agency.SupportedIncidentTypes = toIncidentTypes(supported)
	if agency.AdminUserID != nil && adminEmail != nil {
		agency.Admin = &models.User{
			ID:            *agency.AdminUserID,
			Email:         *adminEmail,
			FullName:      deref(adminName),
			Role:          models.UserRole(deref(adminRole)),
			IsActive:      adminActive != nil && *adminActive,
			IsDeleted:     adminDel != nil && *adminDel,
			EmailVerified: adminVerified != nil && *adminVerified,
		}
	}
	responder.AgencyID = &agency.ID
	responder.Agency = &agency

	return responder, nil
}

// ReadFallbackAdmin returns the oldest active super admin, or nil when none exists.
func (r *ResponderRepository) ReadFallbackAdmin(ctx context.Context) (*models.User, error) {
	query := `
		SELECT id, email, full_name, role, is_active, is_deleted, email_verified
		FROM users
		WHERE role = 'super_admin' AND is_active AND NOT is_deleted
		ORDER BY created_at ASC
		LIMIT 1;
	`
	var (
		user models.User
		role string
	)
	err := r.db.QueryRow(ctx, query).Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&role,
		&user.IsActive,
		&user.IsDeleted,
		&user.EmailVerified,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read fallback admin: %w", err)
	}
	user.Role = models.UserRole(role)
	return &user, nil
}

func toIncidentTypes(values []string) []models.IncidentType {
	out := make([]models.IncidentType, len(values))
	for i, v := range values {
		out[i] = models.IncidentType(v)
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
