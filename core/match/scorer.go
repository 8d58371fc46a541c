package match

import (
	"sort"
	"time"

	"github.com/fieldserv/matchd/core/model"
)

// NewProviderGracePeriod is how long after joining a provider still receives
// the new-provider boost.
const NewProviderGracePeriod = 30 * 24 * time.Hour

// partialSpecialtyFactor is the specialization factor applied when the
// service type is listed but is not the provider's primary specialty.
const partialSpecialtyFactor = 0.5

// responseTimeCeilingMinutes normalizes average response times: anything at
// or above one hour scores zero on the response-time factor.
const responseTimeCeilingMinutes = 60.0

// ScoredCandidate pairs a provider with its computed match score.
type ScoredCandidate struct {
	Provider model.Provider
	Score    float64
}

// Score computes the deterministic match score in [0,100] for a candidate.
// Each raw factor is normalized to [0,1] before weighting. The new-provider
// boost is a flat additive amount; the total is capped at 100.
func Score(p model.Provider, req model.Request, w ScoringWeights, now time.Time) float64 {
	distFactor := 0.0
	if p.CoversZone(req.Location.Zone) {
		distFactor = 1
	} else if d := p.DistanceKm(req.Location); p.ServiceRadiusKm > 0 && d <= p.ServiceRadiusKm {
		distFactor = 1 - d/p.ServiceRadiusKm
	}

	ratingFactor := p.Rating / 5
	if ratingFactor < 0 {
		ratingFactor = 0
	}
	if ratingFactor > 1 {
		ratingFactor = 1
	}

	respFactor := 1 - p.AvgResponseMinutes/responseTimeCeilingMinutes
	if respFactor < 0 {
		respFactor = 0
	}
	if respFactor > 1 {
		respFactor = 1
	}

	specFactor := 0.0
	if p.PrimarySpecialty(req.ServiceType) {
		specFactor = 1
	} else if p.HasSpecialty(req.ServiceType) {
		specFactor = partialSpecialtyFactor
	}

	score := float64(w.Distance)*distFactor +
		float64(w.Rating)*ratingFactor +
		float64(w.ResponseTime)*respFactor +
		float64(w.Specialization)*specFactor
	if now.Sub(p.JoinedAt) < NewProviderGracePeriod {
		score += float64(w.NewProviderBoost)
	}
	if score > 100 {
		score = 100
	}
	return score
}

// Rank scores the candidates and orders them for contact. The ordering is
// fully deterministic: score descending, then rating descending, then
// average response time ascending, then earlier JoinedAt, then id ascending.
func Rank(candidates []model.Provider, req model.Request, w ScoringWeights, now time.Time) []ScoredCandidate {
	ranked := make([]ScoredCandidate, 0, len(candidates))
	for _, p := range candidates {
		ranked = append(ranked, ScoredCandidate{Provider: p, Score: Score(p, req, w, now)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Provider.Rating != b.Provider.Rating {
			return a.Provider.Rating > b.Provider.Rating
		}
		if a.Provider.AvgResponseMinutes != b.Provider.AvgResponseMinutes {
			return a.Provider.AvgResponseMinutes < b.Provider.AvgResponseMinutes
		}
		if !a.Provider.JoinedAt.Equal(b.Provider.JoinedAt) {
			return a.Provider.JoinedAt.Before(b.Provider.JoinedAt)
		}
		return a.Provider.ID < b.Provider.ID
	})
	return ranked
}
