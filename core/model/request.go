package model

import (
	"fmt"
	"time"
)

// EmergencyStatus is the lifecycle state of an emergency request.
// BROADCASTING is initial; the other three states are terminal.
type EmergencyStatus int

const (
	StatusBroadcasting EmergencyStatus = iota
	StatusMatched
	StatusExpired
	StatusCancelled
)

// String returns a human-readable representation of the status.
func (s EmergencyStatus) String() string {
	switch s {
	case StatusBroadcasting:
		return "BROADCASTING"
	case StatusMatched:
		return "MATCHED"
	case StatusExpired:
		return "EXPIRED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status admits no further transitions.
func (s EmergencyStatus) Terminal() bool { return s != StatusBroadcasting }

const (
	// DefaultFeeMultiplier applies when a request does not specify one.
	DefaultFeeMultiplier = 1.5
	// DefaultSearchRadiusKm applies when a request does not specify one.
	DefaultSearchRadiusKm = 10
	// MaxDescriptionLen bounds the free-text description of a request.
	MaxDescriptionLen = 500
)

// EmergencyRequest is the aggregate root of the dispatch core: one
// consumer's time-bounded call for help, the responses collected for it
// and its selection outcome. Responses are kept in insertion order;
// ordering is part of the tie-break contract of winner selection.
type EmergencyRequest struct {
	ID                     string
	ConsumerID             string
	ServiceTypeID          string
	Location               Location
	Status                 EmergencyStatus
	EmergencyFeeMultiplier float64
	Responses              []ProviderResponse
	SelectedProviderID     string
	CreatedAt              time.Time
	ExpiresAt              time.Time
	Description            string
	SearchRadiusKm         float64
}

// Validate checks the field-level constraints of the request.
func (r EmergencyRequest) Validate() error {
	if r.ConsumerID == "" {
		return fmt.Errorf("consumer id must not be empty")
	}
	if r.ServiceTypeID == "" {
		return fmt.Errorf("service type id must not be empty")
	}
	if err := r.Location.Validate(); err != nil {
		return err
	}
	if r.EmergencyFeeMultiplier < 1.0 || r.EmergencyFeeMultiplier > 3.0 {
		return fmt.Errorf("fee multiplier %v out of range [1.0,3.0]", r.EmergencyFeeMultiplier)
	}
	if r.SearchRadiusKm < 1 || r.SearchRadiusKm > 50 {
		return fmt.Errorf("search radius %v out of range [1,50]", r.SearchRadiusKm)
	}
	if len(r.Description) > MaxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters", MaxDescriptionLen)
	}
	if !r.ExpiresAt.After(r.CreatedAt) {
		return fmt.Errorf("expiry must be after creation time")
	}
	return nil
}

// PriceFloor returns the minimum price a response may propose.
func (r EmergencyRequest) PriceFloor(basePrice float64) float64 {
	return basePrice * r.EmergencyFeeMultiplier
}

// ResponseFrom returns the response submitted by the given provider, if any.
func (r EmergencyRequest) ResponseFrom(providerID string) (ProviderResponse, bool) {
	for _, resp := range r.Responses {
		if resp.ProviderID == providerID {
			return resp, true
		}
	}
	return ProviderResponse{}, false
}

// Clone returns a deep copy safe to hand out while the original keeps
// being mutated under the coordinator's lock.
func (r EmergencyRequest) Clone() EmergencyRequest {
	cp := r
	cp.Responses = append([]ProviderResponse(nil), r.Responses...)
	return cp
}
