package match

import "fmt"

// ScoringWeights defines the configurable weighting of the match score.
// The first four weights partition 100 points; NewProviderBoost is an
// additive bonus on top of the weighted sum.
type ScoringWeights struct {
	Distance         int `json:"distance_weight"`
	Rating           int `json:"rating_weight"`
	ResponseTime     int `json:"response_time_weight"`
	Specialization   int `json:"specialization_weight"`
	NewProviderBoost int `json:"new_provider_boost"`
}

// DefaultWeights returns the stock scoring configuration.
func DefaultWeights() ScoringWeights {
	return ScoringWeights{
		Distance:         40,
		Rating:           30,
		ResponseTime:     20,
		Specialization:   10,
		NewProviderBoost: 5,
	}
}

// Validate rejects out-of-range weights. Values are never clamped or
// auto-corrected; a bad configuration must fail loudly at load time.
func (w ScoringWeights) Validate() error {
	for _, f := range []struct {
		name  string
		value int
	}{
		{"distance_weight", w.Distance},
		{"rating_weight", w.Rating},
		{"response_time_weight", w.ResponseTime},
		{"specialization_weight", w.Specialization},
		{"new_provider_boost", w.NewProviderBoost},
	} {
		if f.value < 0 || f.value > 100 {
			return fmt.Errorf("%s must be between 0 and 100, got %d", f.name, f.value)
		}
	}
	if sum := w.Distance + w.Rating + w.ResponseTime + w.Specialization; sum != 100 {
		return fmt.Errorf("distance_weight+rating_weight+response_time_weight+specialization_weight must sum to 100, got %d", sum)
	}
	return nil
}
