package v1

import (
	"time"

	"github.com/google/uuid"
)

// CreateIncidentRequest - payload for reporting a new incident
type CreateIncidentRequest struct {
	Type        string   `json:"type" validate:"required,oneof=fire robbery medical flood accident assault kidnapping building_collapse other" example:"fire"`
	Title       string   `json:"title" validate:"required,min=3,max=255" example:"Warehouse fire"`
	Description string   `json:"description" validate:"max=2000" example:"Smoke visible from the second floor"`
	Latitude    *float64 `json:"latitude" validate:"required,latitude" example:"6.5244"`
	Longitude   *float64 `json:"longitude" validate:"required,longitude" example:"3.3792"`
	Address     string   `json:"address" validate:"max=500" example:"12 Marina Road, Lagos"`
	ReportedBy  string   `json:"reported_by,omitempty" validate:"omitempty,uuid" example:"a3e1c5a0-7c1f-4b7e-9a57-4c1e9f0d2b11"`
}

// UpdateStatusRequest - payload for moving an incident through its lifecycle
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending reported in_progress resolved escalated cancelled" example:"in_progress"`
}

// IncidentResponse - incident as returned by the API
type IncidentResponse struct {
	ID          uuid.UUID  `json:"id"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	Address     string     `json:"address,omitempty"`
	ReportedBy  *uuid.UUID `json:"reported_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// DispatchDecisionResponse - result of a manual re-dispatch
type DispatchDecisionResponse struct {
	IncidentID           uuid.UUID   `json:"incident_id"`
	Outcome              string      `json:"outcome"`
	NotifiedResponderIDs []uuid.UUID `json:"notified_responder_ids"`
	CandidateCount       int         `json:"candidate_count"`
	RadiusKm             float64     `json:"radius_km"`
	Rationale            string      `json:"rationale"`
	Timestamp            time.Time   `json:"timestamp"`
}
