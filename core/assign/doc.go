// Package assign implements the request-to-provider assignment engine.
//
// An incoming service request is driven through a per-request state machine:
// eligible providers are selected and scored, the best candidate is
// contacted, and the request either binds to an accepting provider or falls
// back to the next candidate on rejection or timeout. When automatic
// attempts are exhausted the request escalates to admin attention, and once
// its auto-cancel deadline elapses it is failed without further action.
//
// Key components:
//   - Manager: owns the per-request workers and routes external events
//     (accept, reject, cancel, start, complete) to them.
//   - worker: one goroutine per open request; owns that request's timers.
//   - EscalationController: exhaustion, admin escalation and auto-cancel.
//   - Sweeper: cron-driven deadline re-check, durable across restarts.
//
// Every transition is a compare-and-swap on the request's version, so a
// late-firing timeout can never clobber a state that already advanced.
// Timers are stored as expiry timestamps with the request; restart recovery
// recomputes the remaining time and fires immediately when overdue.
package assign
