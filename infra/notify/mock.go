package notify

import (
	"context"
	"fmt"
	"sync"

	corenotify "github.com/fixnow/dispatch/core/notify"
)

// Delivery records one notification handed to the MockNotifier.
type Delivery struct {
	UserID  string
	Kind    corenotify.Kind
	Payload corenotify.Payload
}

// MockNotifier is a Notifier used in tests. Deliveries to ids present in
// FailIDs return an error.
type MockNotifier struct {
	mu         sync.Mutex
	Deliveries []Delivery
	FailIDs    map[string]bool
}

// NewMockNotifier creates a new MockNotifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{FailIDs: make(map[string]bool)}
}

// Notify records the delivery or fails if configured to.
func (m *MockNotifier) Notify(ctx context.Context, userID string, kind corenotify.Kind, payload corenotify.Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[userID] {
		return fmt.Errorf("delivery to %s failed", userID)
	}
	m.Deliveries = append(m.Deliveries, Delivery{UserID: userID, Kind: kind, Payload: payload})
	return nil
}

// Sent returns the deliveries of the given kind, for one user if userID
// is non-empty.
func (m *MockNotifier) Sent(kind corenotify.Kind, userID string) []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Delivery
	for _, d := range m.Deliveries {
		if d.Kind != kind {
			continue
		}
		if userID != "" && d.UserID != userID {
			continue
		}
		out = append(out, d)
	}
	return out
}
