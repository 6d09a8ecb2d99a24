package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/shenikar/incident_dispatch/internal/geo"
	"github.com/shenikar/incident_dispatch/internal/models"
)

// Candidate is an eligible responder inside the search radius.
type Candidate struct {
	Responder  models.Responder
	DistanceKm float64
}

// GeoMatcher ranks eligible responders by distance from an incident.
type GeoMatcher struct {
	filter *EligibilityFilter
}

func NewGeoMatcher(filter *EligibilityFilter) *GeoMatcher {
	return &GeoMatcher{filter: filter}
}

// FindCandidates returns the eligible responders within radiusKm of location,
// nearest first. Equal distances are ordered by responder ID.
func (m *GeoMatcher) FindCandidates(ctx context.Context, location *models.Coordinate, incidentType models.IncidentType, radiusKm float64) ([]Candidate, error) {
	if location == nil {
		return nil, ErrMissingLocation
	}
	if math.IsNaN(radiusKm) || radiusKm <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive, got %v", ErrContractViolation, radiusKm)
	}

	eligible, err := m.filter.Eligible(ctx, incidentType)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(eligible))
	for _, r := range eligible {
		d := geo.Distance(*location, *r.Location)
		if d <= radiusKm {
			candidates = append(candidates, Candidate{Responder: r, DistanceKm: d})
		}
	}

	slices.SortStableFunc(candidates, compareCandidates)
	return candidates, nil
}

func compareCandidates(a, b Candidate) int {
	switch {
	case a.DistanceKm < b.DistanceKm:
		return -1
	case a.DistanceKm > b.DistanceKm:
		return 1
	}
	return bytes.Compare(a.Responder.ID[:], b.Responder.ID[:])
}

// TopK returns the first k candidates of an already ranked slice.
func TopK(candidates []Candidate, k int) []Candidate {
	if k < 0 {
		k = 0
	}
	if len(candidates) <= k {
		return candidates
	}
	return candidates[:k]
}
