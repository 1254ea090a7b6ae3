package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fixnow/dispatch/core/catalog"
	"github.com/fixnow/dispatch/core/directory"
	"github.com/fixnow/dispatch/core/dispatch/logging"
	"github.com/fixnow/dispatch/core/events"
	"github.com/fixnow/dispatch/core/geo"
	"github.com/fixnow/dispatch/core/logger"
	"github.com/fixnow/dispatch/core/metrics"
	"github.com/fixnow/dispatch/core/model"
	"github.com/fixnow/dispatch/core/notify"
	"github.com/fixnow/dispatch/core/providerstatus"
	"github.com/fixnow/dispatch/internal/eventbus"
)

const notifyTimeout = 5 * time.Second

// Coordinator orchestrates the emergency dispatch lifecycle: broadcast to
// eligible providers, concurrent response intake until expiry, and the
// exclusive commit of exactly one winner. It is the only component
// allowed to drive a request into a terminal state.
type Coordinator struct {
	directory directory.ProviderDirectory
	catalog   catalog.Catalog
	notifier  notify.Notifier
	cfg       Config
	logger    logger.Logger
	metrics   metrics.MetricsSink
	bus       eventbus.EventBus
	store     logging.LogStore
	status    providerstatus.Store
	now       func() time.Time

	mu       sync.RWMutex
	requests map[string]*requestState
}

// NewCoordinator creates a new Coordinator. The metrics sink and event
// bus may be nil.
func NewCoordinator(dir directory.ProviderDirectory, cat catalog.Catalog, notifier notify.Notifier, cfg Config, sink metrics.MetricsSink, bus eventbus.EventBus, log logger.Logger) (*Coordinator, error) {
	if dir == nil || cat == nil || notifier == nil || log == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewCoordinator")
	}
	cfg.SetDefaults()
	return &Coordinator{
		directory: dir,
		catalog:   cat,
		notifier:  notifier,
		cfg:       cfg,
		logger:    log,
		metrics:   sink,
		bus:       bus,
		now:       time.Now,
		requests:  map[string]*requestState{},
	}, nil
}

// SetLogStore configures the store used to persist match records.
func (c *Coordinator) SetLogStore(store logging.LogStore) {
	c.mu.Lock()
	c.store = store
	c.mu.Unlock()
}

// SetStatusStore configures the store used to track provider standing.
func (c *Coordinator) SetStatusStore(store providerstatus.Store) {
	c.mu.Lock()
	c.status = store
	c.mu.Unlock()
}

// Close releases resources held by the coordinator. Pending expiry
// timers are stopped; live requests are left untouched.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	for _, st := range c.requests {
		st.mu.Lock()
		st.stopTimer()
		st.mu.Unlock()
	}
	store := c.store
	c.mu.Unlock()
	if c.bus != nil {
		c.bus.Close()
	}
	if store != nil {
		return store.Close()
	}
	return nil
}

// CreateParams defines a new emergency request. Zero values for
// FeeMultiplier, RadiusKm and TTL take the configured defaults.
type CreateParams struct {
	ConsumerID    string
	ServiceTypeID string
	Location      model.Location
	Description   string
	RadiusKm      float64
	FeeMultiplier float64
	TTL           time.Duration
}

// CreateAndBroadcast creates a request and fans the broadcast out to
// every eligible provider. An empty candidate set is not an error: the
// request is created already EXPIRED and returned as such.
func (c *Coordinator) CreateAndBroadcast(ctx context.Context, p CreateParams) (*model.EmergencyRequest, error) {
	if p.FeeMultiplier == 0 {
		p.FeeMultiplier = model.DefaultFeeMultiplier
	}
	if p.RadiusKm == 0 {
		p.RadiusKm = model.DefaultSearchRadiusKm
	}
	if p.TTL <= 0 {
		p.TTL = c.cfg.DefaultTTL()
	}
	now := c.now()
	req := model.EmergencyRequest{
		ID:                     uuid.NewString(),
		ConsumerID:             p.ConsumerID,
		ServiceTypeID:          p.ServiceTypeID,
		Location:               p.Location,
		Status:                 model.StatusBroadcasting,
		EmergencyFeeMultiplier: p.FeeMultiplier,
		CreatedAt:              now,
		ExpiresAt:              now.Add(p.TTL),
		Description:            p.Description,
		SearchRadiusKm:         p.RadiusKm,
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if _, err := c.catalog.ServiceType(p.ServiceTypeID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	candidates, err := c.directory.FindEligible(ctx, p.ServiceTypeID, p.Location, p.RadiusKm)
	if err != nil {
		return nil, fmt.Errorf("provider lookup: %w", err)
	}

	st := newRequestState(req, candidates)
	if len(candidates) == 0 {
		// No one to ask: the request is born terminal. Callers read the
		// outcome from the status, not from an error.
		st.req.Status = model.StatusExpired
		st.closedAt = now
		c.register(st)
		c.logger.Warnf("request %s: no eligible providers for %s within %.0f km", req.ID, p.ServiceTypeID, p.RadiusKm)
		requestsClosed.WithLabelValues(st.req.Status.String()).Inc()
		snap := st.req.Clone()
		c.afterClose(&snap, st)
		return &snap, nil
	}

	c.register(st)
	st.mu.Lock()
	st.timer = time.AfterFunc(p.TTL, func() {
		if _, err := c.ExpireOrClose(req.ID); err != nil {
			c.logger.Errorf("expiry of request %s: %v", req.ID, err)
		}
	})
	st.mu.Unlock()

	requestsBroadcast.WithLabelValues(p.ServiceTypeID).Inc()
	if c.bus != nil {
		c.bus.Publish(events.RequestEvent{Request: req.Clone(), Candidates: len(candidates)})
	}
	c.logger.Infof("request %s: broadcasting %s to %d providers", req.ID, p.ServiceTypeID, len(candidates))

	payload := notify.Payload{
		RequestID:     req.ID,
		ServiceTypeID: req.ServiceTypeID,
		ExpiresAtUnix: req.ExpiresAt.Unix(),
		Message:       req.Description,
	}
	targets := make([]notifyTarget, 0, len(candidates))
	for _, cand := range candidates {
		targets = append(targets, notifyTarget{userID: cand.ProviderID, kind: notify.KindEmergencyBroadcast, payload: payload})
	}
	go c.fanOut(targets)

	snap := st.req.Clone()
	return &snap, nil
}

// SubmitParams is one provider's reply to a broadcast.
type SubmitParams struct {
	RequestID     string
	ProviderID    string
	Type          model.ResponseType
	ProposedPrice float64
	Notes         string
}

// SubmitResponse validates and records a provider's reply. All checks run
// before any mutation; a rejected submission leaves the request unchanged
// and fails identically on retry.
func (c *Coordinator) SubmitResponse(ctx context.Context, p SubmitParams) (*model.ProviderResponse, error) {
	st, err := c.state(p.RequestID)
	if err != nil {
		return nil, err
	}
	if p.Type == model.NoResponse {
		return nil, fmt.Errorf("%w: response type %s cannot be submitted", ErrInvalidInput, p.Type)
	}
	cand, eligible := st.candidates[p.ProviderID]
	if !eligible {
		return nil, fmt.Errorf("%w: provider %s was not broadcast to for request %s", ErrInvalidInput, p.ProviderID, p.RequestID)
	}
	serviceType, err := c.catalog.ServiceType(st.req.ServiceTypeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	// Directory lookup happens outside the lock; the broadcast-time
	// position is the fallback when the directory cannot answer.
	loc, err := c.directory.GetLocation(ctx, p.ProviderID)
	if err != nil {
		c.logger.Warnf("location of provider %s unavailable, using broadcast-time position: %v", p.ProviderID, err)
		loc = cand.Location
	}
	dist, err := geo.DistanceKm(loc, st.req.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	resp := model.ProviderResponse{
		ID:                          uuid.NewString(),
		ProviderID:                  p.ProviderID,
		RequestID:                   p.RequestID,
		Type:                        p.Type,
		ResponseTime:                c.now(),
		Notes:                       p.Notes,
		ProposedPrice:               p.ProposedPrice,
		EstimatedArrivalTimeMinutes: geo.EstimateArrivalMinutes(dist),
		DistanceKm:                  dist,
	}
	if err := resp.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	st.mu.Lock()
	if st.req.Status.Terminal() || !resp.ResponseTime.Before(st.req.ExpiresAt) {
		st.mu.Unlock()
		return nil, fmt.Errorf("%w: request %s no longer accepts responses", ErrRequestClosed, p.RequestID)
	}
	if prev, ok := st.req.ResponseFrom(p.ProviderID); ok && prev.Type != model.NoResponse {
		st.mu.Unlock()
		return nil, fmt.Errorf("%w: provider %s already answered request %s", ErrDuplicateResponse, p.ProviderID, p.RequestID)
	}
	if p.Type == model.AcceptedOffer || p.Type == model.CounterOffer {
		if floor := st.req.PriceFloor(serviceType.BasePrice); p.ProposedPrice < floor {
			st.mu.Unlock()
			return nil, fmt.Errorf("%w: proposed %.2f, floor %.2f", ErrPriceTooLow, p.ProposedPrice, floor)
		}
	}
	firstAccept := resp.Accepted()
	if firstAccept {
		for _, r := range st.req.Responses {
			if r.Accepted() {
				firstAccept = false
				break
			}
		}
	}
	st.req.Responses = append(st.req.Responses, resp)
	st.mu.Unlock()

	responsesReceived.WithLabelValues(resp.Type.String()).Inc()
	if c.bus != nil {
		c.bus.Publish(events.ResponseEvent{
			RequestID:  resp.RequestID,
			ProviderID: resp.ProviderID,
			Type:       resp.Type,
			Price:      resp.ProposedPrice,
			DistanceKm: resp.DistanceKm,
		})
		if firstAccept {
			c.bus.Publish(events.EarlyCandidateEvent{RequestID: resp.RequestID, ProviderID: resp.ProviderID, Price: resp.ProposedPrice})
		}
	}
	if store := c.statusStore(); store != nil {
		store.RecordResponse(resp.ProviderID, providerstatus.LastResponse{
			RequestID:  resp.RequestID,
			Type:       resp.Type,
			Price:      resp.ProposedPrice,
			DistanceKm: resp.DistanceKm,
			Timestamp:  resp.ResponseTime,
		})
	}
	c.logger.Debugw("response recorded", map[string]any{
		"request_id":  resp.RequestID,
		"provider_id": resp.ProviderID,
		"type":        resp.Type.String(),
		"price":       resp.ProposedPrice,
		"distance_km": resp.DistanceKm,
	})
	out := resp
	return &out, nil
}

// ExpireOrClose drives the request into its terminal state. It is the
// single authorized terminal mutator: the expiry timer, the reaper and
// manual closes all route through it. Calling it on an already-terminal
// request returns the existing state without side effects.
func (c *Coordinator) ExpireOrClose(requestID string) (*model.EmergencyRequest, error) {
	st, err := c.state(requestID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	if st.req.Status.Terminal() {
		snap := st.snapshot()
		st.mu.Unlock()
		return snap, nil
	}
	// Authoritative selection runs under the lock against the final
	// response set; speculative callers use SelectWinner directly.
	winner, found := SelectWinner(st.req.Responses)
	if found {
		st.req.Status = model.StatusMatched
		st.req.SelectedProviderID = winner.ProviderID
		for i := range st.req.Responses {
			if st.req.Responses[i].ID == winner.ID {
				st.req.Responses[i].Selected = true
				break
			}
		}
	} else {
		st.req.Status = model.StatusExpired
	}
	st.stopTimer()
	st.closedAt = c.now()
	snap := st.snapshot()
	st.mu.Unlock()

	decided := c.now()
	requestsClosed.WithLabelValues(snap.Status.String()).Inc()
	decisionLatency.WithLabelValues(snap.Status.String()).Observe(decided.Sub(snap.CreatedAt).Seconds())

	if found {
		c.logger.Infof("request %s: matched provider %s at %.2f", snap.ID, winner.ProviderID, winner.ProposedPrice)
		if c.bus != nil {
			c.bus.Publish(events.MatchEvent{
				RequestID:  snap.ID,
				ProviderID: winner.ProviderID,
				Price:      winner.ProposedPrice,
				Responders: len(snap.Responses),
				Decided:    decided,
			})
		}
		if store := c.statusStore(); store != nil {
			store.RecordWin(winner.ProviderID, providerstatus.LastWin{
				RequestID:     snap.ID,
				ServiceTypeID: snap.ServiceTypeID,
				Price:         winner.ProposedPrice,
				Timestamp:     decided,
			})
		}
		targets := []notifyTarget{{
			userID: winner.ProviderID,
			kind:   notify.KindOfferWon,
			payload: notify.Payload{
				RequestID:     snap.ID,
				ServiceTypeID: snap.ServiceTypeID,
				ProviderID:    winner.ProviderID,
				Price:         winner.ProposedPrice,
			},
		}}
		for _, r := range snap.Responses {
			if r.ProviderID == winner.ProviderID {
				continue
			}
			targets = append(targets, notifyTarget{
				userID:  r.ProviderID,
				kind:    notify.KindOfferLost,
				payload: notify.Payload{RequestID: snap.ID, ServiceTypeID: snap.ServiceTypeID},
			})
		}
		targets = append(targets, notifyTarget{
			userID: snap.ConsumerID,
			kind:   notify.KindMatchFound,
			payload: notify.Payload{
				RequestID:     snap.ID,
				ServiceTypeID: snap.ServiceTypeID,
				ProviderID:    winner.ProviderID,
				Price:         winner.ProposedPrice,
			},
		})
		go c.fanOut(targets)
	} else {
		c.logger.Infof("request %s: expired with no accepted offer (%d responses)", snap.ID, len(snap.Responses))
		go c.fanOut([]notifyTarget{{
			userID:  snap.ConsumerID,
			kind:    notify.KindNoMatch,
			payload: notify.Payload{RequestID: snap.ID, ServiceTypeID: snap.ServiceTypeID},
		}})
	}
	if c.bus != nil {
		c.bus.Publish(events.ClosedEvent{RequestID: snap.ID, Status: snap.Status})
	}
	c.afterClose(snap, st)
	return snap, nil
}

// Cancel closes a request on the consumer's behalf. It only succeeds
// while the request is still broadcasting; racing with expiry is
// resolved by whichever acquires the request lock first.
func (c *Coordinator) Cancel(requestID string) (*model.EmergencyRequest, error) {
	st, err := c.state(requestID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	if st.req.Status.Terminal() {
		snap := st.snapshot()
		st.mu.Unlock()
		return snap, fmt.Errorf("%w: request %s is %s", ErrRequestClosed, requestID, snap.Status)
	}
	st.req.Status = model.StatusCancelled
	st.stopTimer()
	st.closedAt = c.now()
	snap := st.snapshot()
	st.mu.Unlock()

	requestsClosed.WithLabelValues(snap.Status.String()).Inc()
	decisionLatency.WithLabelValues(snap.Status.String()).Observe(c.now().Sub(snap.CreatedAt).Seconds())
	c.logger.Infof("request %s: cancelled after %d responses", snap.ID, len(snap.Responses))
	if c.bus != nil {
		c.bus.Publish(events.ClosedEvent{RequestID: snap.ID, Status: snap.Status})
	}
	targets := make([]notifyTarget, 0, len(snap.Responses))
	for _, r := range snap.Responses {
		targets = append(targets, notifyTarget{
			userID:  r.ProviderID,
			kind:    notify.KindRequestCancelled,
			payload: notify.Payload{RequestID: snap.ID, ServiceTypeID: snap.ServiceTypeID},
		})
	}
	go c.fanOut(targets)
	c.afterClose(snap, st)
	return snap, nil
}

// GetStatus returns a snapshot of the request.
func (c *Coordinator) GetStatus(requestID string) (*model.EmergencyRequest, error) {
	st, err := c.state(requestID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	snap := st.snapshot()
	st.mu.Unlock()
	return snap, nil
}

// ExpireOverdue closes every live request whose deadline has passed and
// returns how many transitions it made. It backstops the per-request
// timers, which do not survive a process restart. Terminal requests
// older than the retention window are evicted from memory in the same
// sweep; the decision log keeps their durable record.
func (c *Coordinator) ExpireOverdue() int {
	now := c.now()
	c.mu.RLock()
	ids := make([]string, 0, len(c.requests))
	var evict []string
	for id, st := range c.requests {
		st.mu.Lock()
		overdue := !st.req.Status.Terminal() && !now.Before(st.req.ExpiresAt)
		stale := !st.closedAt.IsZero() && now.Sub(st.closedAt) >= c.cfg.Retention()
		st.mu.Unlock()
		if overdue {
			ids = append(ids, id)
		}
		if stale {
			evict = append(evict, id)
		}
	}
	c.mu.RUnlock()
	closed := 0
	for _, id := range ids {
		req, err := c.ExpireOrClose(id)
		if err != nil {
			c.logger.Errorf("reaper: expire %s: %v", id, err)
			continue
		}
		if req.Status.Terminal() {
			closed++
		}
	}
	if len(evict) > 0 {
		c.mu.Lock()
		for _, id := range evict {
			delete(c.requests, id)
		}
		c.mu.Unlock()
		c.logger.Debugf("reaper: evicted %d retained requests", len(evict))
	}
	return closed
}

func (c *Coordinator) register(st *requestState) {
	c.mu.Lock()
	c.requests[st.req.ID] = st
	c.mu.Unlock()
}

func (c *Coordinator) state(requestID string) (*requestState, error) {
	c.mu.RLock()
	st, ok := c.requests[requestID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}
	return st, nil
}

func (c *Coordinator) statusStore() providerstatus.Store {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Coordinator) logStore() logging.LogStore {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store
}

// afterClose persists the terminal decision to the log store and the
// metrics sink. st may be nil when the request was born terminal.
func (c *Coordinator) afterClose(snap *model.EmergencyRequest, st *requestState) {
	if store := c.logStore(); store != nil {
		var candidates []string
		if st != nil {
			candidates = st.candidateIDs()
		}
		rec := logging.MatchRecord{
			Timestamp:     c.now(),
			RequestID:     snap.ID,
			ConsumerID:    snap.ConsumerID,
			ServiceTypeID: snap.ServiceTypeID,
			Status:        snap.Status,
			WinnerID:      snap.SelectedProviderID,
			Candidates:    candidates,
			Responses:     snap.Responses,
		}
		if snap.Status == model.StatusMatched {
			if r, ok := snap.ResponseFrom(snap.SelectedProviderID); ok {
				rec.WinningPrice = r.ProposedPrice
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := store.Append(ctx, rec); err != nil {
			c.logger.Errorf("match record append: %v", err)
		}
	}
	if c.metrics != nil {
		accepted := 0
		for _, r := range snap.Responses {
			if r.Accepted() {
				accepted++
			}
		}
		res := metrics.MatchResult{
			RequestID:     snap.ID,
			ServiceTypeID: snap.ServiceTypeID,
			Status:        snap.Status,
			ProviderID:    snap.SelectedProviderID,
			Responders:    len(snap.Responses),
			AcceptedCount: accepted,
			BroadcastAt:   snap.CreatedAt,
			DecidedAt:     c.now(),
		}
		if r, ok := snap.ResponseFrom(snap.SelectedProviderID); ok {
			res.Price = r.ProposedPrice
			res.DistanceKm = r.DistanceKm
		}
		if err := c.metrics.RecordMatchResult([]metrics.MatchResult{res}); err != nil {
			c.logger.Errorf("metrics error: %v", err)
		}
	}
}

type notifyTarget struct {
	userID  string
	kind    notify.Kind
	payload notify.Payload
}

// fanOut delivers notifications concurrently. A failed delivery is
// counted and logged; it never propagates to request state.
func (c *Coordinator) fanOut(targets []notifyTarget) {
	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(t notifyTarget) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			if err := c.notifier.Notify(ctx, t.userID, t.kind, t.payload); err != nil {
				notifyFailure.Inc()
				c.logger.Errorf("notify %s (%s): %v", t.userID, t.kind, err)
				return
			}
			notifySuccess.Inc()
		}(t)
	}
	wg.Wait()
}
