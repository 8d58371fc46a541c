package match

import "github.com/fieldserv/matchd/core/model"

// Selector filters a provider directory snapshot down to the providers
// eligible for a request. It is a pure read; ranking happens separately.
type Selector struct{}

// Eligible reports whether the provider may be contacted for the request.
// A provider qualifies when it is active, available, under capacity, lists
// the requested service type and either covers the request zone or sits
// within its own service radius of the request coordinates.
func (Selector) Eligible(p model.Provider, req model.Request) bool {
	if p.Status != model.ProviderActive || p.Availability != model.Available {
		return false
	}
	if !p.HasCapacity() {
		return false
	}
	if !p.HasSpecialty(req.ServiceType) {
		return false
	}
	if p.CoversZone(req.Location.Zone) {
		return true
	}
	return p.DistanceKm(req.Location) <= p.ServiceRadiusKm
}

// Candidates returns the unordered eligible subset of the snapshot,
// excluding the ids listed in exclude (already-contacted providers).
// An empty result is valid and signals that no candidate is available.
func (s Selector) Candidates(snapshot []model.Provider, req model.Request, exclude map[string]struct{}) []model.Provider {
	var out []model.Provider
	for _, p := range snapshot {
		if _, skip := exclude[p.ID]; skip {
			continue
		}
		if s.Eligible(p, req) {
			out = append(out, p)
		}
	}
	return out
}
