package providerstatus

import (
	"testing"
	"time"

	"github.com/fixnow/dispatch/core/model"
)

func TestMemoryStoreRecordResponse(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	s.RecordResponse("p1", LastResponse{RequestID: "req-1", Type: model.AcceptedOffer, Price: 150, Timestamp: now})
	s.RecordResponse("p1", LastResponse{RequestID: "req-2", Type: model.Declined, Timestamp: now.Add(time.Minute)})

	res := s.List(Filter{})
	if len(res) != 1 {
		t.Fatalf("expected 1 provider, got %d", len(res))
	}
	st := res[0]
	if st.ProviderID != "p1" || st.ResponseCnt != 2 {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.LastResponse.RequestID != "req-2" || st.LastResponse.Type != model.Declined {
		t.Fatalf("last response not updated: %+v", st.LastResponse)
	}
}

func TestMemoryStoreRecordWin(t *testing.T) {
	s := NewMemoryStore()
	s.RecordWin("p1", LastWin{RequestID: "req-1", ServiceTypeID: "plumbing", Price: 150, Timestamp: time.Now()})

	res := s.List(Filter{})
	if len(res) != 1 || res[0].WinCnt != 1 || res[0].LastWin.RequestID != "req-1" {
		t.Fatalf("unexpected status: %+v", res)
	}
}

func TestMemoryStoreListFilters(t *testing.T) {
	s := NewMemoryStore()
	s.Set(Status{ProviderID: "p1", City: "cairo", ServiceTypes: []string{"plumbing"}})
	s.Set(Status{ProviderID: "p2", City: "giza", ServiceTypes: []string{"plumbing", "electrical"}})
	s.Set(Status{ProviderID: "p3", City: "cairo", ServiceTypes: []string{"electrical"}})

	cairo := s.List(Filter{City: "cairo"})
	if len(cairo) != 2 || cairo[0].ProviderID != "p1" || cairo[1].ProviderID != "p3" {
		t.Fatalf("city filter: %+v", cairo)
	}
	electric := s.List(Filter{ServiceType: "electrical"})
	if len(electric) != 2 || electric[0].ProviderID != "p2" || electric[1].ProviderID != "p3" {
		t.Fatalf("service filter: %+v", electric)
	}
	both := s.List(Filter{City: "giza", ServiceType: "plumbing"})
	if len(both) != 1 || both[0].ProviderID != "p2" {
		t.Fatalf("combined filter: %+v", both)
	}
}
