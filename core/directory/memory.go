package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fixnow/dispatch/core/geo"
	"github.com/fixnow/dispatch/core/model"
)

// Entry describes one provider registered in the in-memory directory.
type Entry struct {
	ProviderID   string
	ServiceTypes []string
	Location     model.Location
	Active       bool
}

// MemoryDirectory is a ProviderDirectory backed by an in-process map.
// It serves tests, the broadcast CLI command and single-node deployments;
// production wires the marketplace's user service instead.
type MemoryDirectory struct {
	mu   sync.RWMutex
	data map[string]Entry
}

// NewMemoryDirectory creates an empty MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{data: map[string]Entry{}}
}

// Set registers or replaces a provider entry.
func (d *MemoryDirectory) Set(e Entry) {
	d.mu.Lock()
	d.data[e.ProviderID] = e
	d.mu.Unlock()
}

// SetLocation updates the stored location of a provider.
func (d *MemoryDirectory) SetLocation(providerID string, loc model.Location) {
	d.mu.Lock()
	if e, ok := d.data[providerID]; ok {
		e.Location = loc
		d.data[providerID] = e
	}
	d.mu.Unlock()
}

// FindEligible returns active providers offering the service type within
// radiusKm of center, ordered by provider id for reproducibility.
func (d *MemoryDirectory) FindEligible(ctx context.Context, serviceTypeID string, center model.Location, radiusKm float64) ([]Candidate, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Candidate
	for _, e := range d.data {
		if !e.Active || !e.offers(serviceTypeID) {
			continue
		}
		dist, err := geo.DistanceKm(center, e.Location)
		if err != nil {
			continue
		}
		if dist <= radiusKm {
			out = append(out, Candidate{ProviderID: e.ProviderID, Location: e.Location})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out, nil
}

// GetLocation returns the provider's current location.
func (d *MemoryDirectory) GetLocation(ctx context.Context, providerID string) (model.Location, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.data[providerID]
	if !ok {
		return model.Location{}, fmt.Errorf("provider %s not registered", providerID)
	}
	return e.Location, nil
}

func (e Entry) offers(serviceTypeID string) bool {
	for _, st := range e.ServiceTypes {
		if st == serviceTypeID {
			return true
		}
	}
	return false
}
