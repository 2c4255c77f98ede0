// Package workflow holds the closed state algebra and durable row models
// shared by every activity in the engine.
package workflow

// State is one of the eight closed activity states.
type State string

const (
	Created   State = "CREATED"
	Ready     State = "READY"
	Running   State = "RUNNING"
	Blocked   State = "BLOCKED"
	Suspended State = "SUSPENDED"
	Finished  State = "FINISHED"
	Failed    State = "FAILED"
	Revoked   State = "REVOKED"
)

// Appointment is a pending-intent field, applied opportunistically at the
// next legal transition. The zero value is "no appointment".
type Appointment string

const (
	NoAppointment    Appointment = ""
	AppointSuspended Appointment = Appointment(Suspended)
	AppointRevoked   Appointment = Appointment(Revoked)
)

var archivedStates = map[State]bool{
	Finished: true,
	Failed:   true,
	Revoked:  true,
}

var appointableStates = map[State]bool{
	Suspended: true,
	Revoked:   true,
}

var transitableStates = map[State]bool{
	Ready:    true,
	Running:  true,
	Blocked:  true,
	Finished: true,
	Failed:   true,
}

// transition is the authoritative successor table from spec section 6.
var transition = map[State]map[State]bool{
	Created:   {Ready: true, Failed: true, Revoked: true},
	Ready:     {Running: true, Revoked: true, Suspended: true},
	Running:   {Blocked: true, Finished: true, Failed: true},
	Blocked:   {Ready: true, Revoked: true, Failed: true},
	Suspended: {Ready: true, Revoked: true},
	Finished:  {},
	Failed:    {},
	Revoked:   {},
}

// priority gives each state a rank; used only to reconcile appointments.
var priority = map[State]int{
	Created:   0,
	Ready:     1,
	Running:   1,
	Blocked:   1,
	Suspended: 7,
	Revoked:   8,
	Finished:  9,
	Failed:    9,
}

// CanTransit reports whether from -> to is a legal edge in TRANSITION.
func CanTransit(from, to State) bool {
	succ, ok := transition[from]
	if !ok {
		return false
	}
	return succ[to]
}

// IsTransitable reports membership in TRANSITABLE_STATES.
func IsTransitable(s State) bool { return transitableStates[s] }

// IsAppointable reports membership in APPOINTABLE_STATES.
func IsAppointable(s State) bool { return appointableStates[s] }

// IsArchived reports membership in ARCHIVED_STATES.
func IsArchived(s State) bool { return archivedStates[s] }

// Priority returns P(state); unknown states sort lowest (-1), mirroring
// the source's priority(state) fallback.
func Priority(s State) int {
	if p, ok := priority[s]; ok {
		return p
	}
	return -1
}

// LowerPriority reports P(a) < P(b), the only comparison `_transit`'s
// appointment reconciliation step needs.
func LowerPriority(a, b State) bool {
	return Priority(a) < Priority(b)
}
