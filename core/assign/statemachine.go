package assign

import (
	"fmt"

	"github.com/fieldserv/matchd/core/model"
)

// legalTransition encodes the request state machine. Cancellation is legal
// from any non-terminal state; every other edge is explicit.
func legalTransition(from, to model.RequestStatus) bool {
	if to == model.StatusCancelled {
		return !from.Terminal()
	}
	switch from {
	case model.StatusPending:
		return to == model.StatusProviderNotified || to == model.StatusFailed
	case model.StatusProviderNotified:
		return to == model.StatusAssigned || to == model.StatusPending
	case model.StatusAssigned:
		return to == model.StatusInProgress
	case model.StatusInProgress:
		return to == model.StatusCompleted
	default:
		return false
	}
}

// transitionError builds the error for an attempted illegal edge.
func transitionError(from, to model.RequestStatus) error {
	return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidStateTransition)
}
