package models

import "time"

// Event lifecycle phases, always derived from the clock rather than stored
const (
	PhaseScheduled = "scheduled"
	PhaseActive    = "active"
	PhaseCompleted = "completed"
	PhaseCancelled = "cancelled"
)

// Phase derives the event lifecycle phase at the given instant
func (e *Event) Phase(now time.Time) string {
	if e.Cancelled {
		return PhaseCancelled
	}
	switch {
	case now.Before(e.StartsAt):
		return PhaseScheduled
	case now.Before(e.EndsAt):
		return PhaseActive
	default:
		return PhaseCompleted
	}
}

// CheckInWindow returns the open and close instants of the check-in window.
// Explicit overrides win; otherwise the window opens the event's agent
// creation buffer (or the supplied default) before start and closes at end.
func (e *Event) CheckInWindow(defaultBuffer time.Duration) (time.Time, time.Time) {
	buffer := defaultBuffer
	if e.AgentCreationBuffer > 0 {
		buffer = time.Duration(e.AgentCreationBuffer) * time.Minute
	}

	open := e.StartsAt.Add(-buffer)
	if e.CheckInOpensAt != nil {
		open = *e.CheckInOpensAt
	}

	close := e.EndsAt
	if e.CheckInClosesAt != nil {
		close = *e.CheckInClosesAt
	}

	return open, close
}

// InCheckInWindow reports whether now falls inside the check-in window
func (e *Event) InCheckInWindow(now time.Time, defaultBuffer time.Duration) bool {
	open, close := e.CheckInWindow(defaultBuffer)
	return !now.Before(open) && !now.After(close)
}

// RegistrationOpen reports whether on-site registration of new agents is
// currently permitted: inside the agent creation buffer before start, or
// while the event is running.
func (e *Event) RegistrationOpen(now time.Time) bool {
	if e.Cancelled || e.AgentCreationBuffer <= 0 {
		return false
	}
	open := e.StartsAt.Add(-time.Duration(e.AgentCreationBuffer) * time.Minute)
	return !now.Before(open) && now.Before(e.EndsAt)
}
