package dispatch

import (
	"sort"

	"github.com/fixnow/dispatch/core/model"
)

// SelectWinner ranks the accepted offers in the response sequence and
// returns the single best one. It is a pure function over its input and
// may be called repeatedly; committing the result is the coordinator's
// responsibility. The second return value is false when no response
// accepted the offer.
//
// Ranking is ascending on (price, arrival estimate, distance, response
// time), with the response id as a final tie-break so the order is total
// and reproducible.
func SelectWinner(responses []model.ProviderResponse) (model.ProviderResponse, bool) {
	var candidates []model.ProviderResponse
	for _, r := range responses {
		if r.Accepted() {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return model.ProviderResponse{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.ProposedPrice != b.ProposedPrice {
			return a.ProposedPrice < b.ProposedPrice
		}
		if a.EstimatedArrivalTimeMinutes != b.EstimatedArrivalTimeMinutes {
			return a.EstimatedArrivalTimeMinutes < b.EstimatedArrivalTimeMinutes
		}
		if a.DistanceKm != b.DistanceKm {
			return a.DistanceKm < b.DistanceKm
		}
		if !a.ResponseTime.Equal(b.ResponseTime) {
			return a.ResponseTime.Before(b.ResponseTime)
		}
		return a.ID < b.ID
	})
	return candidates[0], true
}
