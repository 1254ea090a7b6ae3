package dispatch

import (
	"sync"
	"time"

	"github.com/fixnow/dispatch/core/directory"
	"github.com/fixnow/dispatch/core/model"
)

// requestState is the exclusive-access boundary around one live request.
// Its mutex serializes intake against the terminal transition: a response
// submitted in the same instant as expiry either lands before the status
// flips or is rejected as closed, never both. States for different
// requests never contend.
type requestState struct {
	mu         sync.Mutex
	req        model.EmergencyRequest
	candidates map[string]directory.Candidate
	timer      *time.Timer
	closedAt   time.Time
}

func newRequestState(req model.EmergencyRequest, candidates []directory.Candidate) *requestState {
	st := &requestState{
		req:        req,
		candidates: make(map[string]directory.Candidate, len(candidates)),
	}
	for _, c := range candidates {
		st.candidates[c.ProviderID] = c
	}
	return st
}

// snapshot returns a deep copy of the request. Callers must hold mu.
func (st *requestState) snapshot() *model.EmergencyRequest {
	cp := st.req.Clone()
	return &cp
}

// stopTimer cancels the pending expiry timer, if any. Callers must hold mu.
func (st *requestState) stopTimer() {
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
}

// candidateIDs returns the broadcast candidate set.
func (st *requestState) candidateIDs() []string {
	ids := make([]string, 0, len(st.candidates))
	for id := range st.candidates {
		ids = append(ids, id)
	}
	return ids
}
