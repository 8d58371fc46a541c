package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// RequestStatus is the state-machine state of a service request.
type RequestStatus int

const (
	StatusPending RequestStatus = iota
	StatusProviderNotified
	StatusAssigned
	StatusInProgress
	StatusCompleted
	StatusCancelled
	StatusFailed
)

// String returns a human-readable representation of the status.
func (s RequestStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProviderNotified:
		return "provider_notified"
	case StatusAssigned:
		return "assigned"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further automatic transition may occur.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// MarshalJSON encodes the status as its string form.
func (s RequestStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the string form of a status.
func (s *RequestStatus) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	for st := StatusPending; st <= StatusFailed; st++ {
		if st.String() == v {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown request status: %q", v)
}

// Priority classifies how urgent a request is.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// String returns a human-readable representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// ParsePriority converts the string form of a priority. The empty string
// maps to PriorityNormal.
func ParsePriority(v string) (Priority, error) {
	switch v {
	case "low":
		return PriorityLow, nil
	case "", "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "urgent":
		return PriorityUrgent, nil
	default:
		return PriorityNormal, fmt.Errorf("unknown priority: %q", v)
	}
}

// MarshalJSON encodes the priority as its string form.
func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes the string form of a priority.
func (p *Priority) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := ParsePriority(v)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Location describes where a request takes place. Zone is a resolved coverage
// zone identifier; coordinates are optional and only used for radius checks.
type Location struct {
	Zone     string   `json:"zone"`
	Lat      *float64 `json:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty"`
	RadiusKm float64  `json:"radius_km,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (l Location) HasCoordinates() bool {
	return l.Lat != nil && l.Lon != nil
}

// TimelineEvent is one audit entry in a request's history.
type TimelineEvent struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// Request represents a service request moving through the assignment engine.
type Request struct {
	ID                   string          `json:"id"`
	ServiceType          string          `json:"service_type"`
	Location             Location        `json:"location"`
	Priority             Priority        `json:"priority"`
	Status               RequestStatus   `json:"status"`
	ClientContact        string          `json:"client_contact,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	ContactedProviderIDs []string        `json:"contacted_provider_ids"`
	AssignedProviderID   *string         `json:"assigned_provider_id,omitempty"`
	Escalated            bool            `json:"escalated"`
	Timeline             []TimelineEvent `json:"timeline"`

	// ResponseDeadline is the persisted expiry of the outstanding provider
	// response timer. Nil when no contact attempt is pending.
	ResponseDeadline *time.Time `json:"response_deadline,omitempty"`

	// Version is an optimistic counter incremented on every mutation.
	Version int64 `json:"version"`
}

// Validate checks that the request is structurally sound.
func (r Request) Validate() error {
	if r.ServiceType == "" {
		return fmt.Errorf("service type is required")
	}
	if r.Location.Zone == "" && !r.Location.HasCoordinates() {
		return fmt.Errorf("location requires a zone or coordinates")
	}
	return nil
}

// Contacted reports whether the given provider was already contacted.
func (r Request) Contacted(providerID string) bool {
	for _, id := range r.ContactedProviderIDs {
		if id == providerID {
			return true
		}
	}
	return false
}

// Record appends a timeline event and bumps UpdatedAt.
func (r *Request) Record(event string, at time.Time) {
	r.Timeline = append(r.Timeline, TimelineEvent{Event: event, Timestamp: at})
	r.UpdatedAt = at
}
