// Package notify abstracts the outbound notification channel. Delivery is
// fire-and-forget from the dispatch core's perspective: a failed delivery
// is logged and counted but never affects request state.
package notify

import "context"

// Kind identifies the notification being delivered.
type Kind string

const (
	// KindEmergencyBroadcast invites a provider to respond to a request.
	KindEmergencyBroadcast Kind = "emergency_broadcast"
	// KindOfferWon tells the selected provider the job is theirs.
	KindOfferWon Kind = "offer_won"
	// KindOfferLost tells a responder another provider was selected.
	KindOfferLost Kind = "offer_lost"
	// KindMatchFound tells the consumer a provider was committed.
	KindMatchFound Kind = "match_found"
	// KindRequestCancelled tells responders the consumer cancelled.
	KindRequestCancelled Kind = "request_cancelled"
	// KindNoMatch tells the consumer the request expired unmatched.
	KindNoMatch Kind = "no_match"
)

// Payload carries the request context a notification refers to.
type Payload struct {
	RequestID     string  `json:"request_id"`
	ServiceTypeID string  `json:"service_type_id"`
	ProviderID    string  `json:"provider_id,omitempty"`
	Price         float64 `json:"price,omitempty"`
	ExpiresAtUnix int64   `json:"expires_at,omitempty"`
	Message       string  `json:"message,omitempty"`
}

// Notifier delivers a notification to one user.
type Notifier interface {
	Notify(ctx context.Context, userID string, kind Kind, payload Payload) error
}
