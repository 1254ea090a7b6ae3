// Package catalog abstracts the service-type reference data used to
// derive the price floor of emergency offers.
package catalog

import (
	"fmt"
	"sync"

	"github.com/fixnow/dispatch/core/model"
)

// Catalog resolves service types by id.
type Catalog interface {
	ServiceType(id string) (model.ServiceType, error)
}

// MemoryCatalog is a Catalog backed by an in-process map.
type MemoryCatalog struct {
	mu   sync.RWMutex
	data map[string]model.ServiceType
}

// NewMemoryCatalog creates a catalog pre-populated with the given entries.
// Invalid entries are rejected.
func NewMemoryCatalog(entries ...model.ServiceType) (*MemoryCatalog, error) {
	c := &MemoryCatalog{data: map[string]model.ServiceType{}}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("service type %s: %w", e.ID, err)
		}
		c.data[e.ID] = e
	}
	return c, nil
}

// Set registers or replaces a service type.
func (c *MemoryCatalog) Set(st model.ServiceType) error {
	if err := st.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.data[st.ID] = st
	c.mu.Unlock()
	return nil
}

// ServiceType returns the catalog entry for the given id.
func (c *MemoryCatalog) ServiceType(id string) (model.ServiceType, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.data[id]
	if !ok {
		return model.ServiceType{}, fmt.Errorf("service type %s not found", id)
	}
	return st, nil
}
