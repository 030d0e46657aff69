// Package lifecycle provides run-state management for the realm
// authentication service, including state machine transitions, named
// dependency health checks, and graceful shutdown.
//
// # Service Lifecycle
//
// The service follows a defined lifecycle managed by a finite state
// machine. The [State] type represents the service's current position in
// this lifecycle, and all transitions are validated against the
// [validTransitions] matrix to prevent illegal state changes.
//
// The lifecycle flow for a healthy service is:
//
//	Unknown → Starting → Running → Stopping → Stopped
//
// Any non-terminal state may transition to Failed on error, and both
// terminal states (Stopped, Failed) may transition back to Starting
// for restart.
//
// # Health Checks
//
// A [Service] carries a registry of named health checks, one per backing
// dependency (the user directory database, the role-mapping store, and so
// on). [Service.Health] reports healthy only when the service is running
// and every registered check passes. Checks are registered at construction
// via [WithCheck]:
//
//	svc, err := lifecycle.NewService("realmauth", "1.0.0",
//	    lifecycle.WithCheck("postgres", pgClient.Health),
//	    lifecycle.WithCheck("redis", redisClient.Health),
//	    lifecycle.WithOnStop(func(ctx context.Context) error {
//	        pgClient.Close()
//	        return redisClient.Close()
//	    }),
//	)
//
// # Thread Safety
//
// State management in [Service] is protected by a [sync.RWMutex]. All
// state reads and writes are safe for concurrent use by multiple
// goroutines, including [Service.Start], [Service.Stop], and the state
// queries [Service.State] and [Service.Info].
package lifecycle

// State represents the current lifecycle state of the service. States
// form a finite state machine; use [ValidTransition] to check whether a
// transition between two states is allowed.
type State string

// Lifecycle states, in the order a healthy service passes through them.
const (
	// StateUnknown is the initial state of a newly constructed service,
	// before Start has been called.
	StateUnknown State = "unknown"

	// StateStarting indicates the service is executing its startup
	// sequence (opening store connections, loading realm configuration).
	StateStarting State = "starting"

	// StateRunning indicates the service is fully operational and
	// accepting authentication requests.
	StateRunning State = "running"

	// StateStopping indicates the service is executing its shutdown
	// sequence (draining in-flight requests, closing store connections).
	StateStopping State = "stopping"

	// StateStopped indicates the service has shut down cleanly. This is
	// a terminal state; the service may be restarted.
	StateStopped State = "stopped"

	// StateFailed indicates the service encountered an unrecoverable
	// error during startup, operation, or shutdown. This is a terminal
	// state; the service may be restarted.
	StateFailed State = "failed"
)

// validTransitions defines the allowed lifecycle state transitions. A
// transition from state A to state B is legal only if B appears in the
// slice keyed by A. Same-state transitions are never allowed.
var validTransitions = map[State][]State{
	StateUnknown:  {StateStarting, StateFailed},
	StateStarting: {StateRunning, StateStopping, StateFailed},
	StateRunning:  {StateStopping, StateFailed},
	StateStopping: {StateStopped, StateFailed},
	StateStopped:  {StateStarting},
	StateFailed:   {StateStarting},
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// Valid reports whether s is one of the defined lifecycle states.
func (s State) Valid() bool {
	switch s {
	case StateUnknown, StateStarting, StateRunning,
		StateStopping, StateStopped, StateFailed:
		return true
	}
	return false
}

// IsTerminal reports whether s is a terminal state. Terminal states
// (Stopped, Failed) indicate the service is no longer operating; the only
// transition out of a terminal state is back to Starting for a restart.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// ValidTransition reports whether a transition from the current state to
// the target state is allowed by the lifecycle state machine. Same-state
// transitions are always rejected.
func ValidTransition(from, to State) bool {
	if from == to {
		return false
	}
	for _, allowed := range validTransitions[from] {
		if to == allowed {
			return true
		}
	}
	return false
}
