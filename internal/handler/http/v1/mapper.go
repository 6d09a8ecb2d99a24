package v1

import (
	"github.com/google/uuid"
	"github.com/shenikar/incident_dispatch/internal/models"
)

// DTOToIncidentModel converts a validated request into an incident model
func DTOToIncidentModel(dto CreateIncidentRequest) *models.Incident {
	incident := &models.Incident{
		Type:        models.IncidentType(dto.Type),
		Title:       dto.Title,
		Description: dto.Description,
		Address:     dto.Address,
	}
	if dto.Latitude != nil && dto.Longitude != nil {
		incident.Location = &models.Coordinate{Latitude: *dto.Latitude, Longitude: *dto.Longitude}
	}
	if dto.ReportedBy != "" {
		if id, err := uuid.Parse(dto.ReportedBy); err == nil {
			incident.ReportedBy = &id
		}
	}
	return incident
}

func ModelToIncidentResponse(model *models.Incident) IncidentResponse {
	resp := IncidentResponse{
		ID:          model.ID,
		Type:        string(model.Type),
		Status:      string(model.Status),
		Title:       model.Title,
		Description: model.Description,
		Address:     model.Address,
		ReportedBy:  model.ReportedBy,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
	if model.Location != nil {
		resp.Latitude = model.Location.Latitude
		resp.Longitude = model.Location.Longitude
	}
	return resp
}

func ModelsToIncidentResponses(models []*models.Incident) []IncidentResponse {
	responses := make([]IncidentResponse, 0, len(models))
	for _, model := range models {
		responses = append(responses, ModelToIncidentResponse(model))
	}
	return responses
}

func ModelToDispatchDecisionResponse(decision *models.DispatchDecision) DispatchDecisionResponse {
	ids := decision.NotifiedResponderIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return DispatchDecisionResponse{
		IncidentID:           decision.IncidentID,
		Outcome:              string(decision.Outcome),
		NotifiedResponderIDs: ids,
		CandidateCount:       decision.CandidateCount,
		RadiusKm:             decision.RadiusKm,
		Rationale:            decision.Rationale,
		Timestamp:            decision.Timestamp,
	}
}
