// Package events defines the event types the dispatch core publishes on
// the internal bus. Subscribers observe dispatch activity without
// touching coordinator state.
package events

import (
	"time"

	"github.com/fixnow/dispatch/core/model"
)

// RequestEvent is published when a request is created and broadcast.
type RequestEvent struct {
	Request    model.EmergencyRequest
	Candidates int
}

// ResponseEvent is published for every accepted intake.
type ResponseEvent struct {
	RequestID  string
	ProviderID string
	Type       model.ResponseType
	Price      float64
	DistanceKm float64
}

// EarlyCandidateEvent is published when the first accepted offer lands
// on a broadcasting request. It signals that an early close is possible;
// it does not close anything itself.
type EarlyCandidateEvent struct {
	RequestID  string
	ProviderID string
	Price      float64
}

// MatchEvent is published when a request commits to a winner.
type MatchEvent struct {
	RequestID  string
	ProviderID string
	Price      float64
	Responders int
	Decided    time.Time
}

// ClosedEvent is published when a request reaches a terminal state.
type ClosedEvent struct {
	RequestID string
	Status    model.EmergencyStatus
}
