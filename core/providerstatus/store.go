package providerstatus

import (
	"sort"
	"sync"
	"time"

	"github.com/fixnow/dispatch/core/model"
)

// LastResponse summarizes the most recent reply a provider submitted.
type LastResponse struct {
	RequestID  string             `json:"request_id"`
	Type       model.ResponseType `json:"type"`
	Price      float64            `json:"price"`
	DistanceKm float64            `json:"distance_km"`
	Timestamp  time.Time          `json:"timestamp"`
}

// LastWin summarizes the most recent request a provider was selected for.
type LastWin struct {
	RequestID     string    `json:"request_id"`
	ServiceTypeID string    `json:"service_type_id"`
	Price         float64   `json:"price"`
	Timestamp     time.Time `json:"timestamp"`
}

// Status captures the current known dispatch standing of a provider.
type Status struct {
	ProviderID   string       `json:"provider_id"`
	City         string       `json:"city,omitempty"`
	ServiceTypes []string     `json:"service_types,omitempty"`
	LastResponse LastResponse `json:"last_response"`
	LastWin      LastWin      `json:"last_win"`
	ResponseCnt  int          `json:"response_count"`
	WinCnt       int          `json:"win_count"`
}

// Filter narrows the providers returned by List.
type Filter struct {
	City        string
	ServiceType string
}

// Store tracks per-provider dispatch standing.
type Store interface {
	Set(Status)
	List(Filter) []Status
	RecordResponse(id string, r LastResponse)
	RecordWin(id string, w LastWin)
}

// MemoryStore is the in-process Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Status
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]Status{}}
}

func (s *MemoryStore) Set(st Status) {
	s.mu.Lock()
	s.data[st.ProviderID] = st
	s.mu.Unlock()
}

func (s *MemoryStore) RecordResponse(id string, r LastResponse) {
	s.mu.Lock()
	st := s.data[id]
	if st.ProviderID == "" {
		st.ProviderID = id
	}
	st.LastResponse = r
	st.ResponseCnt++
	s.data[id] = st
	s.mu.Unlock()
}

func (s *MemoryStore) RecordWin(id string, w LastWin) {
	s.mu.Lock()
	st := s.data[id]
	if st.ProviderID == "" {
		st.ProviderID = id
	}
	st.LastWin = w
	st.WinCnt++
	s.data[id] = st
	s.mu.Unlock()
}

func (s *MemoryStore) List(f Filter) []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Status, 0, len(s.data))
	for _, st := range s.data {
		if f.City != "" && st.City != f.City {
			continue
		}
		if f.ServiceType != "" && !contains(st.ServiceTypes, f.ServiceType) {
			continue
		}
		res = append(res, st)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ProviderID < res[j].ProviderID })
	return res
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
