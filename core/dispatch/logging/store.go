package logging

import (
	"context"
	"time"

	"github.com/fixnow/dispatch/core/model"
)

// MatchRecord captures one terminal dispatch decision: the request, the
// responses collected during its broadcast window and the outcome.
type MatchRecord struct {
	Timestamp     time.Time                `json:"timestamp"`
	RequestID     string                   `json:"request_id"`
	ConsumerID    string                   `json:"consumer_id"`
	ServiceTypeID string                   `json:"service_type_id"`
	Status        model.EmergencyStatus    `json:"status"`
	WinnerID      string                   `json:"winner_id,omitempty"`
	WinningPrice  float64                  `json:"winning_price,omitempty"`
	Candidates    []string                 `json:"candidates"`
	Responses     []model.ProviderResponse `json:"responses"`
}

// Query defines filters for retrieving match records.
type Query struct {
	Start      time.Time
	End        time.Time
	ProviderID string
	Status     model.EmergencyStatus
	HasStatus  bool
}

// LogStore persists MatchRecords and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec MatchRecord) error
	Query(ctx context.Context, q Query) ([]MatchRecord, error)
	Close() error
}

// matches reports whether rec satisfies the provider and status filters.
// Time filters are backend-specific and applied before this.
func (q Query) matches(rec MatchRecord) bool {
	if q.HasStatus && rec.Status != q.Status {
		return false
	}
	if q.ProviderID != "" {
		found := false
		for _, id := range rec.Candidates {
			if id == q.ProviderID {
				found = true
				break
			}
		}
		if !found {
			for _, r := range rec.Responses {
				if r.ProviderID == q.ProviderID {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}
	return true
}
