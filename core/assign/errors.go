package assign

import "errors"

// ErrInvalidStateTransition is returned when a caller attempts an edge the
// state machine does not define. The request is left unchanged.
var ErrInvalidStateTransition = errors.New("invalid state transition")

// ErrConflict is returned when an operation lost a race: a capacity
// reservation failed or a response arrived after the request already moved
// on. It is non-fatal; the orchestrator proceeds with the next candidate.
var ErrConflict = errors.New("conflict")

// ErrNoCandidateAvailable signals an empty eligible set on the first
// selection round.
var ErrNoCandidateAvailable = errors.New("no candidate available")
