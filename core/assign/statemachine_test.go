package assign

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fieldserv/matchd/core/model"
)

func TestLegalTransitions(t *testing.T) {
	all := []model.RequestStatus{
		model.StatusPending,
		model.StatusProviderNotified,
		model.StatusAssigned,
		model.StatusInProgress,
		model.StatusCompleted,
		model.StatusCancelled,
		model.StatusFailed,
	}
	legal := map[[2]model.RequestStatus]bool{
		{model.StatusPending, model.StatusProviderNotified}:  true,
		{model.StatusPending, model.StatusFailed}:            true,
		{model.StatusProviderNotified, model.StatusAssigned}: true,
		{model.StatusProviderNotified, model.StatusPending}:  true,
		{model.StatusAssigned, model.StatusInProgress}:       true,
		{model.StatusInProgress, model.StatusCompleted}:      true,
	}
	for _, from := range all {
		for _, to := range all {
			want := legal[[2]model.RequestStatus{from, to}]
			// Cancellation is legal from any non-terminal state.
			if to == model.StatusCancelled && !from.Terminal() {
				want = true
			}
			assert.Equalf(t, want, legalTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTransitionError(t *testing.T) {
	err := transitionError(model.StatusCancelled, model.StatusAssigned)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.Contains(t, err.Error(), "cancelled -> assigned")
}
