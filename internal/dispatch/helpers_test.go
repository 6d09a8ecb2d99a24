package dispatch

import (
	"math"

	"github.com/google/uuid"
	"github.com/shenikar/incident_dispatch/internal/geo"
	"github.com/shenikar/incident_dispatch/internal/models"
)

var lagos = models.Coordinate{Latitude: 6.5244, Longitude: 3.3792}

// northOf returns the point km kilometres due north of base.
func northOf(base models.Coordinate, km float64) models.Coordinate {
	return models.Coordinate{
		Latitude:  base.Latitude + km/geo.EarthRadiusKm*180/math.Pi,
		Longitude: base.Longitude,
	}
}

func testAgency(types ...models.IncidentType) *models.Agency {
	return &models.Agency{
		ID:                     uuid.New(),
		Name:                   "Lagos State Fire Service",
		IsActive:               true,
		SupportedIncidentTypes: types,
	}
}

func testUser(role models.UserRole) *models.User {
	return &models.User{
		ID:            uuid.New(),
		Email:         "user-" + uuid.NewString()[:8] + "@example.org",
		FullName:      "Test User",
		Role:          role,
		IsActive:      true,
		EmailVerified: true,
	}
}

// eligibleResponder builds a responder that passes every structural check for
// fire incidents through its agency.
func eligibleResponder(loc models.Coordinate) models.Responder {
	user := testUser(models.RoleResponder)
	agency := testAgency(models.IncidentTypeFire)
	return models.Responder{
		ID:         uuid.New(),
		UserID:     user.ID,
		AgencyID:   &agency.ID,
		Status:     models.ResponderStatusAvailable,
		IsVerified: true,
		Location:   &loc,
		User:       user,
		Agency:     agency,
	}
}

func testIncident(t models.IncidentType) *models.Incident {
	loc := lagos
	return &models.Incident{
		ID:       uuid.New(),
		Type:     t,
		Status:   models.IncidentStatusReported,
		Title:    "Warehouse fire",
		Location: &loc,
	}
}
