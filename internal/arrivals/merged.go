package arrivals

import (
	"context"

	"github.com/sourcegraph/conc/pool"

	"github.com/Dreaming-Lion/Re-Route/internal/models"
)

// Merged queries several providers concurrently and concatenates their
// predictions, soonest first. Each provider bounds its own latency.
type Merged struct {
	providers []Provider
}

// NewMerged ignores nil providers.
func NewMerged(providers ...Provider) *Merged {
	m := &Merged{}
	for _, p := range providers {
		if p != nil {
			m.providers = append(m.providers, p)
		}
	}
	return m
}

func (m *Merged) Arrivals(ctx context.Context, stopID string) []models.ArrivalPrediction {
	switch len(m.providers) {
	case 0:
		return nil
	case 1:
		return m.providers[0].Arrivals(ctx, stopID)
	}

	p := pool.NewWithResults[[]models.ArrivalPrediction]().WithMaxGoroutines(len(m.providers))
	for _, provider := range m.providers {
		p.Go(func() []models.ArrivalPrediction {
			return provider.Arrivals(ctx, stopID)
		})
	}

	var out []models.ArrivalPrediction
	for _, preds := range p.Wait() {
		out = append(out, preds...)
	}
	sortPredictions(out)
	return out
}

// EarliestByRoute returns the smallest non-negative ETA per route ID.
func EarliestByRoute(preds []models.ArrivalPrediction) map[string]int {
	out := make(map[string]int)
	for _, p := range preds {
		if p.RouteID == "" || p.ETAMinutes < 0 {
			continue
		}
		if cur, ok := out[p.RouteID]; !ok || p.ETAMinutes < cur {
			out[p.RouteID] = p.ETAMinutes
		}
	}
	return out
}
