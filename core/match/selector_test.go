package match

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fieldserv/matchd/core/model"
)

func eligibleProvider(id string) model.Provider {
	return model.Provider{
		ID:                  id,
		Specialties:         []string{"plumbing"},
		CoverageZones:       []string{"zone-1"},
		Status:              model.ProviderActive,
		Availability:        model.Available,
		MaxSimultaneousJobs: 2,
		JoinedAt:            veteran(),
	}
}

func TestEligible(t *testing.T) {
	req := zoneRequest("plumbing", "zone-1")
	sel := Selector{}

	tests := []struct {
		name   string
		mutate func(*model.Provider)
		want   bool
	}{
		{"baseline", func(*model.Provider) {}, true},
		{"inactive", func(p *model.Provider) { p.Status = model.ProviderInactive }, false},
		{"suspended", func(p *model.Provider) { p.Status = model.ProviderSuspended }, false},
		{"busy", func(p *model.Provider) { p.Availability = model.Busy }, false},
		{"offline", func(p *model.Provider) { p.Availability = model.Offline }, false},
		{"at capacity", func(p *model.Provider) { p.ActiveAssignments = 2 }, false},
		{"wrong specialty", func(p *model.Provider) { p.Specialties = []string{"heating"} }, false},
		{"secondary specialty", func(p *model.Provider) { p.Specialties = []string{"heating", "plumbing"} }, true},
		{"wrong zone no coords", func(p *model.Provider) { p.CoverageZones = []string{"zone-2"} }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := eligibleProvider("p1")
			tt.mutate(&p)
			assert.Equal(t, tt.want, sel.Eligible(p, req))
		})
	}
}

func TestEligibleRadiusFallback(t *testing.T) {
	sel := Selector{}
	lat, lon := 48.8566, 2.3522
	req := model.Request{
		ServiceType: "plumbing",
		Location:    model.Location{Zone: "zone-9", Lat: &lat, Lon: &lon},
	}
	p := eligibleProvider("p1")
	p.CoverageZones = nil
	p.Lat, p.Lon = lat, lon
	p.ServiceRadiusKm = 10
	assert.True(t, sel.Eligible(p, req))

	// ~73 km away is outside the 10 km radius.
	p.Lon = lon + 1
	assert.False(t, sel.Eligible(p, req))
}

func TestCandidatesExcludesContacted(t *testing.T) {
	sel := Selector{}
	req := zoneRequest("plumbing", "zone-1")
	snapshot := []model.Provider{eligibleProvider("p1"), eligibleProvider("p2"), eligibleProvider("p3")}
	got := sel.Candidates(snapshot, req, map[string]struct{}{"p2": {}})
	ids := make([]string, 0, len(got))
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"p1", "p3"}, ids)
}

func TestCandidatesCapacityExclusion(t *testing.T) {
	// A provider at its simultaneous job limit never shows up as a
	// candidate for new requests.
	sel := Selector{}
	req := zoneRequest("plumbing", "zone-1")
	full := eligibleProvider("full")
	full.ActiveAssignments = full.MaxSimultaneousJobs
	free := eligibleProvider("free")
	got := sel.Candidates([]model.Provider{full, free}, req, nil)
	assert.Len(t, got, 1)
	assert.Equal(t, "free", got[0].ID)
}

func TestCandidatesEmptyIsValid(t *testing.T) {
	sel := Selector{}
	got := sel.Candidates(nil, zoneRequest("plumbing", "zone-1"), nil)
	assert.Empty(t, got)
}
