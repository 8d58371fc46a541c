package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// AttemptOutcome is the result of one provider contact attempt.
type AttemptOutcome int

const (
	AttemptPending AttemptOutcome = iota
	AttemptAccepted
	AttemptRejected
	AttemptTimedOut
)

// String returns a human-readable representation of the outcome.
func (o AttemptOutcome) String() string {
	switch o {
	case AttemptPending:
		return "pending"
	case AttemptAccepted:
		return "accepted"
	case AttemptRejected:
		return "rejected"
	case AttemptTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the outcome as its string form.
func (o AttemptOutcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// UnmarshalJSON decodes the string form of an outcome.
func (o *AttemptOutcome) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	for oc := AttemptPending; oc <= AttemptTimedOut; oc++ {
		if oc.String() == v {
			*o = oc
			return nil
		}
	}
	return fmt.Errorf("unknown attempt outcome: %q", v)
}

// AssignmentAttempt records one contact of one provider for one request.
type AssignmentAttempt struct {
	RequestID   string         `json:"request_id"`
	ProviderID  string         `json:"provider_id"`
	ContactedAt time.Time      `json:"contacted_at"`
	Outcome     AttemptOutcome `json:"outcome"`
	RespondedAt *time.Time     `json:"responded_at,omitempty"`
	Score       float64        `json:"score"`
}
