package dispatch

import (
	"context"
	"fmt"

	"github.com/shenikar/incident_dispatch/internal/models"
)

// EligibilityFilter narrows the responder population to those structurally
// able to take an incident of a given type, regardless of distance.
type EligibilityFilter struct {
	reader ResponderReader
}

func NewEligibilityFilter(reader ResponderReader) *EligibilityFilter {
	return &EligibilityFilter{reader: reader}
}

// Eligible returns the eligible responders for incidentType. An empty result
// is not an error; only a failing reader is.
func (f *EligibilityFilter) Eligible(ctx context.Context, incidentType models.IncidentType) ([]models.Responder, error) {
	population, err := f.reader.ReadEligibleResponders(ctx, incidentType)
	if err != nil {
		return nil, fmt.Errorf("dispatch: could not read responders: %w", err)
	}

	eligible := make([]models.Responder, 0, len(population))
	for _, r := range population {
		if IsEligible(r, incidentType) {
			eligible = append(eligible, r)
		}
	}
	return eligible, nil
}

// IsEligible applies every structural precondition to a single responder.
// The store may pre-filter, this check is authoritative.
func IsEligible(r models.Responder, incidentType models.IncidentType) bool {
	if r.Status != models.ResponderStatusAvailable || !r.IsVerified || r.Location == nil {
		return false
	}
	if !r.Agency.Usable() {
		return false
	}
	if !r.User.Usable() || !r.User.EmailVerified {
		return false
	}
	return r.Agency.Supports(incidentType) || r.HasSpecialty(incidentType)
}
