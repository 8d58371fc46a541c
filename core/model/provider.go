package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// ProviderStatus is the administrative state of a provider account.
type ProviderStatus int

const (
	ProviderActive ProviderStatus = iota
	ProviderInactive
	ProviderSuspended
)

// String returns a human-readable representation of the provider status.
func (s ProviderStatus) String() string {
	switch s {
	case ProviderActive:
		return "active"
	case ProviderInactive:
		return "inactive"
	case ProviderSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the status as its string form.
func (s ProviderStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the string form of a provider status.
func (s *ProviderStatus) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	for st := ProviderActive; st <= ProviderSuspended; st++ {
		if st.String() == v {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown provider status: %q", v)
}

// Availability is the live presence state of a provider.
type Availability int

const (
	Available Availability = iota
	Busy
	Offline
)

// String returns a human-readable representation of the availability.
func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case Busy:
		return "busy"
	case Offline:
		return "offline"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the availability as its string form.
func (a Availability) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes the string form of an availability.
func (a *Availability) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	for av := Available; av <= Offline; av++ {
		if av.String() == v {
			*a = av
			return nil
		}
	}
	return fmt.Errorf("unknown availability: %q", v)
}

// Provider represents a service provider that can take assignments.
type Provider struct {
	ID                  string         `json:"id"`
	Specialties         []string       `json:"specialties"` // first entry is the primary specialty
	CoverageZones       []string       `json:"coverage_zones"`
	Lat                 float64        `json:"lat"`
	Lon                 float64        `json:"lon"`
	ServiceRadiusKm     float64        `json:"service_radius_km"`
	Rating              float64        `json:"rating"` // 0 to 5
	AvgResponseMinutes  float64        `json:"avg_response_minutes"`
	JoinedAt            time.Time      `json:"joined_at"`
	Status              ProviderStatus `json:"status"`
	Availability        Availability   `json:"availability"`
	ActiveAssignments   int            `json:"active_assignments"`
	MaxSimultaneousJobs int            `json:"max_simultaneous_jobs"`
}

// HasSpecialty reports whether the provider lists the given service type.
func (p Provider) HasSpecialty(serviceType string) bool {
	for _, s := range p.Specialties {
		if s == serviceType {
			return true
		}
	}
	return false
}

// PrimarySpecialty reports whether the given service type is the provider's
// first-listed specialty.
func (p Provider) PrimarySpecialty(serviceType string) bool {
	return len(p.Specialties) > 0 && p.Specialties[0] == serviceType
}

// CoversZone reports whether the provider serves the given coverage zone.
func (p Provider) CoversZone(zone string) bool {
	if zone == "" {
		return false
	}
	for _, z := range p.CoverageZones {
		if z == zone {
			return true
		}
	}
	return false
}

// HasCapacity reports whether the provider can take one more assignment.
func (p Provider) HasCapacity() bool {
	return p.ActiveAssignments < p.MaxSimultaneousJobs
}

// DistanceKm returns the haversine distance between the provider and the
// request location. It returns +Inf when the request has no coordinates so
// radius checks fail closed.
func (p Provider) DistanceKm(loc Location) float64 {
	if !loc.HasCoordinates() {
		return math.Inf(1)
	}
	return haversineKm(p.Lat, p.Lon, *loc.Lat, *loc.Lon)
}

const earthRadiusKm = 6371.0

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
