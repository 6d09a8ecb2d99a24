package models

import (
	"slices"

	"github.com/google/uuid"
)

// ResponderStatus is the current operational state of a responder.
type ResponderStatus string

const (
	ResponderStatusAvailable   ResponderStatus = "available"
	ResponderStatusOnDuty      ResponderStatus = "on_duty"
	ResponderStatusOffDuty     ResponderStatus = "off_duty"
	ResponderStatusBusy        ResponderStatus = "busy"
	ResponderStatusUnreachable ResponderStatus = "unreachable"
)

// UserRole is the platform role of a user account.
type UserRole string

const (
	RoleUser        UserRole = "user"
	RoleResponder   UserRole = "responder"
	RoleAgencyAdmin UserRole = "agency_admin"
	RoleSuperAdmin  UserRole = "super_admin"
)

// User is a read-only snapshot of an account.
type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name"`
	Role          UserRole  `json:"role"`
	IsActive      bool      `json:"is_active"`
	IsDeleted     bool      `json:"is_deleted"`
	EmailVerified bool      `json:"email_verified"`
}

// Usable reports whether the account may receive notifications.
func (u *User) Usable() bool {
	return u != nil && u.IsActive && !u.IsDeleted
}

// Agency is a read-only snapshot of a responding organisation.
type Agency struct {
	ID                     uuid.UUID      `json:"id"`
	Name                   string         `json:"name"`
	IsActive               bool           `json:"is_active"`
	IsDeleted              bool           `json:"is_deleted"`
	AdminUserID            *uuid.UUID     `json:"admin_user_id,omitempty"`
	Admin                  *User          `json:"admin,omitempty"`
	SupportedIncidentTypes []IncidentType `json:"supported_incident_types"`
	SupportedWorkTypes     []string       `json:"supported_work_types"`
}

// Usable reports whether the agency is active and not soft-deleted.
func (a *Agency) Usable() bool {
	return a != nil && a.IsActive && !a.IsDeleted
}

// Supports reports whether the agency handles the incident type.
func (a *Agency) Supports(t IncidentType) bool {
	return a != nil && slices.Contains(a.SupportedIncidentTypes, t)
}

// Responder is a read-only snapshot of a responder with its owning user and
// agency embedded.
type Responder struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	AgencyID     *uuid.UUID      `json:"agency_id,omitempty"`
	Status       ResponderStatus `json:"status"`
	IsVerified   bool            `json:"is_verified"`
	Location     *Coordinate     `json:"location,omitempty"`
	Capabilities []string        `json:"capabilities"`
	Specialties  []IncidentType  `json:"specialties"`
	User         *User           `json:"user,omitempty"`
	Agency       *Agency         `json:"agency,omitempty"`
}

// HasSpecialty reports whether the responder lists the incident type as a specialty.
func (r *Responder) HasSpecialty(t IncidentType) bool {
	return slices.Contains(r.Specialties, t)
}
