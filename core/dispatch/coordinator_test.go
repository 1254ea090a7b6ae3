package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fixnow/dispatch/core/catalog"
	"github.com/fixnow/dispatch/core/directory"
	"github.com/fixnow/dispatch/core/model"
	corenotify "github.com/fixnow/dispatch/core/notify"
	"github.com/fixnow/dispatch/core/providerstatus"
	"github.com/fixnow/dispatch/infra/logger"
	"github.com/fixnow/dispatch/infra/notify"
)

var (
	cairo = model.Location{Latitude: 30.0444, Longitude: 31.2357, City: "Cairo"}
	giza  = model.Location{Latitude: 29.9870, Longitude: 31.2118, City: "Giza"}
)

func newTestCoordinator(t *testing.T) (*Coordinator, *directory.MemoryDirectory, *notify.MockNotifier) {
	t.Helper()
	dir := directory.NewMemoryDirectory()
	cat, err := catalog.NewMemoryCatalog(model.ServiceType{
		ID: "plumbing", Name: "Plumbing", RiskLevel: model.RiskMedium,
		BasePrice: 100, DefaultPriceType: model.PricePerHour, EstimatedDurationMinutes: 60,
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	mock := notify.NewMockNotifier()
	coord, err := NewCoordinator(dir, cat, mock, Config{}, nil, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}
	return coord, dir, mock
}

func seedProviders(dir *directory.MemoryDirectory, n int) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("p%d", i+1)
		dir.Set(directory.Entry{
			ProviderID:   id,
			ServiceTypes: []string{"plumbing"},
			Location:     giza,
			Active:       true,
		})
		ids = append(ids, id)
	}
	return ids
}

func broadcast(t *testing.T, coord *Coordinator, ttl time.Duration) *model.EmergencyRequest {
	t.Helper()
	req, err := coord.CreateAndBroadcast(context.Background(), CreateParams{
		ConsumerID:    "consumer-1",
		ServiceTypeID: "plumbing",
		Location:      cairo,
		TTL:           ttl,
	})
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	return req
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestCreateAndBroadcast_NotifiesEveryCandidate(t *testing.T) {
	coord, dir, mock := newTestCoordinator(t)
	ids := seedProviders(dir, 3)

	req := broadcast(t, coord, time.Hour)
	if req.Status != model.StatusBroadcasting {
		t.Fatalf("expected BROADCASTING got %s", req.Status)
	}
	waitFor(t, func() bool {
		return len(mock.Sent(corenotify.KindEmergencyBroadcast, "")) == len(ids)
	})
}

func TestCreateAndBroadcast_NoEligibleProviders(t *testing.T) {
	coord, _, mock := newTestCoordinator(t)

	req := broadcast(t, coord, time.Hour)
	if req.Status != model.StatusExpired {
		t.Fatalf("expected EXPIRED got %s", req.Status)
	}
	if len(mock.Sent(corenotify.KindEmergencyBroadcast, "")) != 0 {
		t.Fatal("nothing should be broadcast without candidates")
	}
	// The request still exists for status queries.
	cur, err := coord.GetStatus(req.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if cur.Status != model.StatusExpired {
		t.Fatalf("expected EXPIRED got %s", cur.Status)
	}
}

func TestCreateAndBroadcast_InvalidInput(t *testing.T) {
	coord, dir, _ := newTestCoordinator(t)
	seedProviders(dir, 1)

	cases := []CreateParams{
		{ConsumerID: "", ServiceTypeID: "plumbing", Location: cairo, TTL: time.Hour},
		{ConsumerID: "c", ServiceTypeID: "plumbing", Location: model.Location{Latitude: 91}, TTL: time.Hour},
		{ConsumerID: "c", ServiceTypeID: "plumbing", Location: cairo, TTL: time.Hour, FeeMultiplier: 5},
		{ConsumerID: "c", ServiceTypeID: "plumbing", Location: cairo, TTL: time.Hour, RadiusKm: 80},
		{ConsumerID: "c", ServiceTypeID: "unknown", Location: cairo, TTL: time.Hour},
	}
	for i, p := range cases {
		if _, err := coord.CreateAndBroadcast(context.Background(), p); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput got %v", i, err)
		}
	}
}

func TestSubmitResponse_PriceFloor(t *testing.T) {
	coord, dir, _ := newTestCoordinator(t)
	seedProviders(dir, 2)
	req := broadcast(t, coord, time.Hour)

	// basePrice 100 x multiplier 1.5 = 150.00
	_, err := coord.SubmitResponse(context.Background(), SubmitParams{
		RequestID: req.ID, ProviderID: "p1", Type: model.AcceptedOffer, ProposedPrice: 149.99,
	})
	if !errors.Is(err, ErrPriceTooLow) {
		t.Fatalf("expected ErrPriceTooLow got %v", err)
	}
	resp, err := coord.SubmitResponse(context.Background(), SubmitParams{
		RequestID: req.ID, ProviderID: "p1", Type: model.AcceptedOffer, ProposedPrice: 150.00,
	})
	if err != nil {
		t.Fatalf("submit at floor: %v", err)
	}
	if resp.DistanceKm <= 0 || resp.EstimatedArrivalTimeMinutes < 1 {
		t.Fatalf("expected distance and arrival to be derived, got %+v", resp)
	}
}

func TestSubmitResponse_EligibilityGating(t *testing.T) {
	coord, dir, _ := newTestCoordinator(t)
	seedProviders(dir, 2)
	req := broadcast(t, coord, time.Hour)

	// p3 registers after the broadcast; the candidate set is fixed.
	dir.Set(directory.Entry{ProviderID: "p3", ServiceTypes: []string{"plumbing"}, Location: giza, Active: true})
	_, err := coord.SubmitResponse(context.Background(), SubmitParams{
		RequestID: req.ID, ProviderID: "p3", Type: model.AcceptedOffer, ProposedPrice: 200,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput got %v", err)
	}
	cur, _ := coord.GetStatus(req.ID)
	if len(cur.Responses) != 0 {
		t.Fatal("rejected submission must not mutate the response set")
	}
}

func TestSubmitResponse_Duplicate(t *testing.T) {
	coord, dir, _ := newTestCoordinator(t)
	seedProviders(dir, 2)
	req := broadcast(t, coord, time.Hour)

	if _, err := coord.SubmitResponse(context.Background(), SubmitParams{
		RequestID: req.ID, ProviderID: "p1", Type: model.Declined,
	}); err != nil {
		t.Fatalf("first submission: %v", err)
	}
	_, err := coord.SubmitResponse(context.Background(), SubmitParams{
		RequestID: req.ID, ProviderID: "p1", Type: model.AcceptedOffer, ProposedPrice: 200,
	})
	if !errors.Is(err, ErrDuplicateResponse) {
		t.Fatalf("expected ErrDuplicateResponse got %v", err)
	}
}

func TestSubmitResponse_AfterExpiryInstant(t *testing.T) {
	coord, dir, _ := newTestCoordinator(t)
	seedProviders(dir, 1)
	req := broadcast(t, coord, time.Hour)

	// Advance the clock past the deadline without firing the timer.
	coord.now = func() time.Time { return req.ExpiresAt }
	_, err := coord.SubmitResponse(context.Background(), SubmitParams{
		RequestID: req.ID, ProviderID: "p1", Type: model.AcceptedOffer, ProposedPrice: 200,
	})
	if !errors.Is(err, ErrRequestClosed) {
		t.Fatalf("expected ErrRequestClosed got %v", err)
	}
}

func TestExpireOrClose_CommitsSingleWinner(t *testing.T) {
	coord, dir, mock := newTestCoordinator(t)
	seedProviders(dir, 3)
	req := broadcast(t, coord, time.Hour)

	for i, price := range []float64{180, 160, 170} {
		if _, err := coord.SubmitResponse(context.Background(), SubmitParams{
			RequestID: req.ID, ProviderID: fmt.Sprintf("p%d", i+1), Type: model.AcceptedOffer, ProposedPrice: price,
		}); err != nil {
			t.Fatalf("submit p%d: %v", i+1, err)
		}
	}
	closed, err := coord.ExpireOrClose(req.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != model.StatusMatched {
		t.Fatalf("expected MATCHED got %s", closed.Status)
	}
	if closed.SelectedProviderID != "p2" {
		t.Fatalf("expected cheapest provider p2 got %s", closed.SelectedProviderID)
	}
	selected := 0
	for _, r := range closed.Responses {
		if r.Selected {
			selected++
			if r.ProviderID != "p2" {
				t.Fatalf("wrong response selected: %s", r.ProviderID)
			}
		}
	}
	if selected != 1 {
		t.Fatalf("expected exactly one selected response got %d", selected)
	}
	waitFor(t, func() bool {
		return len(mock.Sent(corenotify.KindOfferWon, "p2")) == 1 &&
			len(mock.Sent(corenotify.KindOfferLost, "")) == 2 &&
			len(mock.Sent(corenotify.KindMatchFound, "consumer-1")) == 1
	})
	confirm := mock.Sent(corenotify.KindMatchFound, "consumer-1")[0]
	if confirm.Payload.ProviderID != "p2" || confirm.Payload.Price != 160 {
		t.Fatalf("match confirmation payload: %+v", confirm.Payload)
	}
}

func TestExpireOrClose_NoCandidateExpires(t *testing.T) {
	coord, dir, mock := newTestCoordinator(t)
	seedProviders(dir, 2)
	req := broadcast(t, coord, time.Hour)

	if _, err := coord.SubmitResponse(context.Background(), SubmitParams{
		RequestID: req.ID, ProviderID: "p1", Type: model.Declined,
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	closed, err := coord.ExpireOrClose(req.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != model.StatusExpired {
		t.Fatalf("expected EXPIRED got %s", closed.Status)
	}
	waitFor(t, func() bool {
		return len(mock.Sent(corenotify.KindNoMatch, "consumer-1")) == 1
	})
}

func TestExpireOrClose_Idempotent(t *testing.T) {
	coord, dir, mock := newTestCoordinator(t)
	seedProviders(dir, 2)
	req := broadcast(t, coord, time.Hour)

	if _, err := coord.SubmitResponse(context.Background(), SubmitParams{
		RequestID: req.ID, ProviderID: "p1", Type: model.AcceptedOffer, ProposedPrice: 150,
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	first, err := coord.ExpireOrClose(req.ID)
	if err != nil {
		t.Fatalf("first close: %v", err)
	}
	waitFor(t, func() bool { return len(mock.Sent(corenotify.KindOfferWon, "p1")) == 1 })

	second, err := coord.ExpireOrClose(req.ID)
	if err != nil {
		t.Fatalf("second close: %v", err)
	}
	if second.Status != first.Status || second.SelectedProviderID != first.SelectedProviderID {
		t.Fatalf("second close changed state: %+v vs %+v", second, first)
	}
	time.Sleep(50 * time.Millisecond)
	if got := len(mock.Sent(corenotify.KindOfferWon, "p1")); got != 1 {
		t.Fatalf("winner notified %d times", got)
	}
}

func TestSubmitResponse_AfterClosure(t *testing.T) {
	coord, dir, _ := newTestCoordinator(t)
	seedProviders(dir, 2)
	req := broadcast(t, coord, time.Hour)

	if _, err := coord.ExpireOrClose(req.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	for i := 0; i < 3; i++ {
		_, err := coord.SubmitResponse(context.Background(), SubmitParams{
			RequestID: req.ID, ProviderID: "p1", Type: model.AcceptedOffer, ProposedPrice: 200,
		})
		if !errors.Is(err, ErrRequestClosed) {
			t.Fatalf("attempt %d: expected ErrRequestClosed got %v", i, err)
		}
	}
	cur, _ := coord.GetStatus(req.ID)
	if len(cur.Responses) != 0 {
		t.Fatal("response set must be unchanged after closure")
	}
}

func TestCancel(t *testing.T) {
	coord, dir, mock := newTestCoordinator(t)
	seedProviders(dir, 2)
	req := broadcast(t, coord, time.Hour)

	if _, err := coord.SubmitResponse(context.Background(), SubmitParams{
		RequestID: req.ID, ProviderID: "p1", Type: model.AcceptedOffer, ProposedPrice: 160,
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	cancelled, err := coord.Cancel(req.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled {
		t.Fatalf("expected CANCELLED got %s", cancelled.Status)
	}
	waitFor(t, func() bool {
		return len(mock.Sent(corenotify.KindRequestCancelled, "p1")) == 1
	})

	if _, err := coord.Cancel(req.ID); !errors.Is(err, ErrRequestClosed) {
		t.Fatalf("expected ErrRequestClosed got %v", err)
	}
}

func TestConcurrentSubmissionsSingleCommit(t *testing.T) {
	coord, dir, _ := newTestCoordinator(t)
	ids := seedProviders(dir, 16)
	req := broadcast(t, coord, time.Hour)

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, _ = coord.SubmitResponse(context.Background(), SubmitParams{
				RequestID:     req.ID,
				ProviderID:    id,
				Type:          model.AcceptedOffer,
				ProposedPrice: 150 + float64(i),
			})
		}(i, id)
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = coord.ExpireOrClose(req.ID)
		}()
	}
	wg.Wait()

	final, err := coord.GetStatus(req.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !final.Status.Terminal() {
		t.Fatalf("expected terminal status got %s", final.Status)
	}
	selected := 0
	for _, r := range final.Responses {
		if r.Selected {
			selected++
		}
	}
	if selected > 1 {
		t.Fatalf("more than one selected response: %d", selected)
	}
	switch final.Status {
	case model.StatusMatched:
		if selected != 1 || final.SelectedProviderID == "" {
			t.Fatalf("matched without a committed winner: %+v", final)
		}
	case model.StatusExpired:
		if selected != 0 || len(final.Responses) != 0 {
			t.Fatalf("expired with accepted responses: %+v", final)
		}
	default:
		t.Fatalf("unexpected status %s", final.Status)
	}
	// Late submissions are rejected uniformly once closed.
	_, err = coord.SubmitResponse(context.Background(), SubmitParams{
		RequestID: req.ID, ProviderID: ids[0], Type: model.CounterOffer, ProposedPrice: 500,
	})
	if !errors.Is(err, ErrRequestClosed) && !errors.Is(err, ErrDuplicateResponse) {
		t.Fatalf("expected closed or duplicate got %v", err)
	}
}

func TestExpiryTimerFires(t *testing.T) {
	coord, dir, _ := newTestCoordinator(t)
	seedProviders(dir, 1)
	req := broadcast(t, coord, 100*time.Millisecond)

	waitFor(t, func() bool {
		cur, err := coord.GetStatus(req.ID)
		return err == nil && cur.Status == model.StatusExpired
	})
}

func TestExpireOverdue(t *testing.T) {
	coord, dir, _ := newTestCoordinator(t)
	seedProviders(dir, 1)
	req := broadcast(t, coord, time.Hour)

	if n := coord.ExpireOverdue(); n != 0 {
		t.Fatalf("nothing is overdue yet, closed %d", n)
	}
	coord.now = func() time.Time { return req.ExpiresAt.Add(time.Second) }
	if n := coord.ExpireOverdue(); n != 1 {
		t.Fatalf("expected 1 overdue close got %d", n)
	}
	cur, _ := coord.GetStatus(req.ID)
	if cur.Status != model.StatusExpired {
		t.Fatalf("expected EXPIRED got %s", cur.Status)
	}
}

func TestExpireOverdue_EvictsAfterRetention(t *testing.T) {
	coord, dir, _ := newTestCoordinator(t)
	coord.cfg.RetentionSeconds = 60
	seedProviders(dir, 1)
	req := broadcast(t, coord, time.Hour)

	if _, err := coord.ExpireOrClose(req.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Within the retention window the terminal request stays queryable.
	coord.ExpireOverdue()
	if _, err := coord.GetStatus(req.ID); err != nil {
		t.Fatalf("status within retention: %v", err)
	}

	coord.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	coord.ExpireOverdue()
	if _, err := coord.GetStatus(req.ID); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("expected eviction after retention, got %v", err)
	}
}

func TestGetStatus_Unknown(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	if _, err := coord.GetStatus("missing"); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("expected ErrUnknownRequest got %v", err)
	}
}

func TestCoordinator_RecordsProviderStatus(t *testing.T) {
	coord, dir, _ := newTestCoordinator(t)
	seedProviders(dir, 2)
	store := providerstatus.NewMemoryStore()
	coord.SetStatusStore(store)
	req := broadcast(t, coord, time.Hour)

	if _, err := coord.SubmitResponse(context.Background(), SubmitParams{
		RequestID: req.ID, ProviderID: "p1", Type: model.AcceptedOffer, ProposedPrice: 150,
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := coord.ExpireOrClose(req.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	list := store.List(providerstatus.Filter{})
	if len(list) != 1 {
		t.Fatalf("expected 1 provider got %d", len(list))
	}
	st := list[0]
	if st.ResponseCnt != 1 || st.WinCnt != 1 {
		t.Fatalf("unexpected counters: %+v", st)
	}
	if st.LastWin.RequestID != req.ID {
		t.Fatalf("win not recorded: %+v", st.LastWin)
	}
}
