package router

import (
	"fmt"

	"advisor/pkg/config"
)

// costShareThreshold is the fraction of total spend above which a backend is
// considered overused.
const costShareThreshold = 0.5

// Recommendation flags a backend whose spend could move to a cheaper
// alternative of comparable capability.
type Recommendation struct {
	Backend     string
	Alternative string
	Reason      string
}

// blendedPrice is the combined per-million-token price used to compare
// backends. Models absent from the pricing registry (local runtimes) price
// at zero.
func blendedPrice(model string) float64 {
	if info, exists := config.KnownModels[model]; exists {
		return info.InputCPM + info.OutputCPM
	}
	return 0
}

// Recommendations inspects the running usage totals and flags backends that
// dominate spend when a cheaper backend within one capability tier is
// available. The capability floor keeps advice from pointing at models too
// weak for the workload.
func (r *Router) Recommendations() []Recommendation {
	r.mu.Lock()
	defer r.mu.Unlock()

	var totalCost float64
	for _, u := range r.usage {
		totalCost += u.CostUSD
	}
	if totalCost == 0 {
		return nil
	}

	var recs []Recommendation
	for _, e := range r.entries {
		name := e.raw.Name()
		u := r.usage[name]
		share := u.CostUSD / totalCost
		if share < costShareThreshold || u.CostUSD == 0 {
			continue
		}

		price := blendedPrice(e.raw.ModelName())
		tier := config.ModelCapability(e.raw.ModelName())

		for _, alt := range r.entries {
			altName := alt.raw.Name()
			if altName == name || !r.healthyLocked(altName) {
				continue
			}
			altPrice := blendedPrice(alt.raw.ModelName())
			altTier := config.ModelCapability(alt.raw.ModelName())
			if altPrice < price && altTier >= tier-1 {
				recs = append(recs, Recommendation{
					Backend:     name,
					Alternative: altName,
					Reason: fmt.Sprintf(
						"%s carries %.0f%% of spend ($%.4f); %s (%s) is cheaper at comparable capability",
						name, share*100, u.CostUSD, altName, alt.raw.ModelName()),
				})
				break
			}
		}
	}
	return recs
}
