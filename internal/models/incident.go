package models

import (
	"time"

	"github.com/google/uuid"
)

// IncidentType is the reported category of an emergency.
type IncidentType string

const (
	IncidentTypeFire     IncidentType = "fire"
	IncidentTypeRobbery  IncidentType = "robbery"
	IncidentTypeMedical  IncidentType = "medical"
	IncidentTypeFlood    IncidentType = "flood"
	IncidentTypeAccident IncidentType = "accident"
	IncidentTypeAssault  IncidentType = "assault"
	IncidentTypeKidnap   IncidentType = "kidnapping"
	IncidentTypeCollapse IncidentType = "building_collapse"
	IncidentTypeOther    IncidentType = "other"
)

// IncidentStatus is the lifecycle state of an incident.
type IncidentStatus string

const (
	IncidentStatusPending    IncidentStatus = "pending"
	IncidentStatusReported   IncidentStatus = "reported"
	IncidentStatusInProgress IncidentStatus = "in_progress"
	IncidentStatusResolved   IncidentStatus = "resolved"
	IncidentStatusEscalated  IncidentStatus = "escalated"
	IncidentStatusCancelled  IncidentStatus = "cancelled"
)

// statusRank orders the forward lifecycle. Cancelled is handled separately.
var statusRank = map[IncidentStatus]int{
	IncidentStatusPending:    0,
	IncidentStatusReported:   1,
	IncidentStatusInProgress: 2,
	IncidentStatusResolved:   3,
	IncidentStatusEscalated:  3,
}

// IsTerminal reports whether no further transition is allowed.
func (s IncidentStatus) IsTerminal() bool {
	return s == IncidentStatusResolved || s == IncidentStatusEscalated || s == IncidentStatusCancelled
}

// CanTransitionTo allows forward moves only; cancellation is allowed from any
// non-terminal state.
func (s IncidentStatus) CanTransitionTo(next IncidentStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == IncidentStatusCancelled {
		return true
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// Coordinate is a latitude/longitude pair in degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Incident struct {
	ID          uuid.UUID      `json:"id"`
	Type        IncidentType   `json:"type"`
	Status      IncidentStatus `json:"status"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Location    *Coordinate    `json:"location"`
	Address     string         `json:"address,omitempty"`
	ReportedBy  *uuid.UUID     `json:"reported_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
