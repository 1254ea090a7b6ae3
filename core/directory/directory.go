// Package directory abstracts the provider directory the dispatch core
// queries for broadcast candidates. The marketplace's user service owns
// the data; the core only reads it.
package directory

import (
	"context"

	"github.com/fixnow/dispatch/core/model"
)

// Candidate is one provider eligible for a broadcast, with the location
// it reported at lookup time.
type Candidate struct {
	ProviderID string
	Location   model.Location
}

// ProviderDirectory resolves providers by capability and position.
type ProviderDirectory interface {
	// FindEligible returns the active providers offering the given
	// service type within radiusKm of center.
	FindEligible(ctx context.Context, serviceTypeID string, center model.Location, radiusKm float64) ([]Candidate, error)
	// GetLocation returns the provider's current location.
	GetLocation(ctx context.Context, providerID string) (model.Location, error)
}
