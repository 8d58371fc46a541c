// Package events defines the bus events emitted by the assignment engine.
// External collaborators (notification dispatch, analytics) subscribe to
// these instead of being called synchronously from the state machine.
package events

import (
	"time"

	"github.com/fieldserv/matchd/core/model"
)

// Event is the marker for everything published on the engine bus.
type Event interface{ isEvent() }

// TransitionEvent is published for every request status change.
type TransitionEvent struct {
	RequestID string
	From      model.RequestStatus
	To        model.RequestStatus
	Reason    string
	At        time.Time
}

// AttemptEvent is published when a contact attempt resolves.
type AttemptEvent struct {
	RequestID  string
	ProviderID string
	Outcome    model.AttemptOutcome
	Score      float64
	Latency    time.Duration
}

// EscalationEvent is published when a request is flagged for admin attention.
type EscalationEvent struct {
	RequestID string
	Reason    string
	At        time.Time
}

func (TransitionEvent) isEvent() {}
func (AttemptEvent) isEvent()    {}
func (EscalationEvent) isEvent() {}
