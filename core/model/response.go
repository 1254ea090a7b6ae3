package model

import (
	"fmt"
	"time"
)

// ResponseType defines the kind of reply a provider gave to a broadcast.
type ResponseType int

const (
	NoResponse ResponseType = iota
	AcceptedOffer
	Declined
	CounterOffer
)

// String returns a human-readable representation of the response type.
func (t ResponseType) String() string {
	switch t {
	case NoResponse:
		return "NO_RESPONSE"
	case AcceptedOffer:
		return "ACCEPTED_OFFER"
	case Declined:
		return "DECLINED"
	case CounterOffer:
		return "COUNTER_OFFER"
	default:
		return "unknown"
	}
}

// MaxProposedPrice is the upper bound accepted for any offer.
const MaxProposedPrice = 100000

// MaxResponseNotesLen bounds the free-text notes attached to a response.
const MaxResponseNotesLen = 200

// ProviderResponse is one provider's reply to one emergency request.
// At most one exists per (request, provider) pair. Distance and arrival
// estimate are computed once at intake from the provider's location at
// that moment and never recomputed.
type ProviderResponse struct {
	ID                          string
	ProviderID                  string
	RequestID                   string
	Type                        ResponseType
	ResponseTime                time.Time
	Notes                       string
	ProposedPrice               float64
	EstimatedArrivalTimeMinutes int
	DistanceKm                  float64
	Selected                    bool
}

// Accepted reports whether the provider accepted the offer as broadcast.
func (r ProviderResponse) Accepted() bool { return r.Type == AcceptedOffer }

// Validate checks the field-level constraints of the response.
func (r ProviderResponse) Validate() error {
	if r.ProviderID == "" || r.RequestID == "" {
		return fmt.Errorf("provider and request ids must not be empty")
	}
	if len(r.Notes) > MaxResponseNotesLen {
		return fmt.Errorf("notes exceed %d characters", MaxResponseNotesLen)
	}
	switch r.Type {
	case AcceptedOffer, CounterOffer:
		if r.ProposedPrice <= 0 || r.ProposedPrice > MaxProposedPrice {
			return fmt.Errorf("proposed price %v out of range (0,%d]", r.ProposedPrice, MaxProposedPrice)
		}
	case Declined:
	default:
		return fmt.Errorf("response type %s cannot be submitted", r.Type)
	}
	if r.EstimatedArrivalTimeMinutes < 1 || r.EstimatedArrivalTimeMinutes > 120 {
		return fmt.Errorf("estimated arrival %d out of range [1,120]", r.EstimatedArrivalTimeMinutes)
	}
	if r.DistanceKm < 0 || r.DistanceKm > 100 {
		return fmt.Errorf("distance %v out of range [0,100]", r.DistanceKm)
	}
	return nil
}
