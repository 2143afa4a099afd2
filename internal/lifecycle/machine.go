package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"ecycle/internal/model"
)

var (
	// ErrInvalidTransition is returned when the target status is not
	// reachable from the snapshot's current status.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrUnauthorized is returned when the acting actor's role or identity
	// does not satisfy the edge's actor constraint.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTerminalState is returned for any mutation attempted on a request
	// already in COMPLETED or CANCELLED.
	ErrTerminalState = errors.New("terminal state")

	// ErrInvalidValue is returned when an estimate or note carries a value
	// of the wrong shape. A validation failure, not a state-machine one.
	ErrInvalidValue = errors.New("invalid value")
)

// actorClass identifies which side of a request an edge belongs to.
type actorClass int

const (
	byHandler actorClass = iota
	byRequester
)

type edge struct {
	to      model.Status
	actor   actorClass
	assigns bool // handler is recorded on this edge if not already set
}

// Machine is a role-gated lifecycle definition. The two instances, Repair and
// Pickup, share all transition and authorization logic and differ only in
// their state sets and handler role.
type Machine struct {
	name        string
	initial     model.Status
	handlerRole model.Role
	states      map[model.Status]bool
	terminal    map[model.Status]bool
	edges       map[model.Status][]edge
}

// Snapshot is the slice of a request the machine reasons about. Services load
// it from a row, run the machine, and persist the result verbatim.
type Snapshot struct {
	ID          string
	RequesterID string
	HandlerID   *string
	Status      model.Status
	UpdatedAt   time.Time
}

// Repair: PENDING -> ASSIGNED -> DIAGNOSING -> REPAIRING -> COMPLETED,
// CANCELLED reachable by the requester from any non-terminal state.
var Repair = &Machine{
	name:        "repair",
	initial:     model.StatusPending,
	handlerRole: model.RoleTechnician,
	states: stateSet(
		model.StatusPending, model.StatusAssigned, model.StatusDiagnosing,
		model.StatusRepairing, model.StatusCompleted, model.StatusCancelled,
	),
	terminal: stateSet(model.StatusCompleted, model.StatusCancelled),
	edges: map[model.Status][]edge{
		model.StatusPending: {
			{to: model.StatusAssigned, actor: byHandler, assigns: true},
			{to: model.StatusCancelled, actor: byRequester},
		},
		model.StatusAssigned: {
			{to: model.StatusDiagnosing, actor: byHandler},
			{to: model.StatusCancelled, actor: byRequester},
		},
		model.StatusDiagnosing: {
			{to: model.StatusRepairing, actor: byHandler},
			{to: model.StatusCancelled, actor: byRequester},
		},
		model.StatusRepairing: {
			{to: model.StatusCompleted, actor: byHandler},
			{to: model.StatusCancelled, actor: byRequester},
		},
	},
}

// Pickup: PENDING -> ACCEPTED -> COMPLETED, CANCELLED reachable by the
// requester from PENDING or ACCEPTED.
var Pickup = &Machine{
	name:        "pickup",
	initial:     model.StatusPending,
	handlerRole: model.RoleRecycler,
	states: stateSet(
		model.StatusPending, model.StatusAccepted,
		model.StatusCompleted, model.StatusCancelled,
	),
	terminal: stateSet(model.StatusCompleted, model.StatusCancelled),
	edges: map[model.Status][]edge{
		model.StatusPending: {
			{to: model.StatusAccepted, actor: byHandler, assigns: true},
			{to: model.StatusCancelled, actor: byRequester},
		},
		model.StatusAccepted: {
			{to: model.StatusCompleted, actor: byHandler},
			{to: model.StatusCancelled, actor: byRequester},
		},
	},
}

func stateSet(states ...model.Status) map[model.Status]bool {
	m := make(map[model.Status]bool, len(states))
	for _, s := range states {
		m[s] = true
	}
	return m
}

// Name returns the lifecycle name ("repair" or "pickup").
func (m *Machine) Name() string { return m.name }

// Initial returns the lifecycle's initial status.
func (m *Machine) Initial() model.Status { return m.initial }

// HandlerRole returns the role that may progress requests of this lifecycle.
func (m *Machine) HandlerRole() model.Role { return m.handlerRole }

// IsTerminal reports whether status permits no further mutation.
func (m *Machine) IsTerminal(status model.Status) bool { return m.terminal[status] }

// Contains reports whether status belongs to this lifecycle's state set.
func (m *Machine) Contains(status model.Status) bool { return m.states[status] }

// AttemptTransition validates a status change against the transition table
// and returns the post-transition snapshot. It has no side effects;
// persistence and audit-event insertion belong to the caller, and only after
// a successful result.
func (m *Machine) AttemptTransition(snap Snapshot, target model.Status, actor model.Actor, now time.Time) (Snapshot, error) {
	if m.terminal[snap.Status] {
		return Snapshot{}, fmt.Errorf("%s %s is %s: %w", m.name, snap.ID, snap.Status, ErrTerminalState)
	}
	if !m.states[snap.Status] {
		return Snapshot{}, fmt.Errorf("unknown status %q: %w", snap.Status, ErrInvalidTransition)
	}

	var found *edge
	for i := range m.edges[snap.Status] {
		if m.edges[snap.Status][i].to == target {
			found = &m.edges[snap.Status][i]
			break
		}
	}
	if found == nil {
		return Snapshot{}, fmt.Errorf("%s -> %s: %w", snap.Status, target, ErrInvalidTransition)
	}

	if err := m.authorize(snap, *found, actor); err != nil {
		return Snapshot{}, err
	}

	next := snap
	next.Status = target
	next.UpdatedAt = now
	if found.assigns && next.HandlerID == nil {
		id := actor.ID
		next.HandlerID = &id
	}
	return next, nil
}

func (m *Machine) authorize(snap Snapshot, e edge, actor model.Actor) error {
	switch e.actor {
	case byRequester:
		if actor.ID != snap.RequesterID {
			return fmt.Errorf("actor %s is not the requester: %w", actor.ID, ErrUnauthorized)
		}
	case byHandler:
		if actor.Role != m.handlerRole {
			return fmt.Errorf("role %s cannot handle %s requests: %w", actor.Role, m.name, ErrUnauthorized)
		}
		// First-assignment edges admit any actor of the handler role; every
		// later handler edge is reserved for the recorded handler.
		if snap.HandlerID != nil && *snap.HandlerID != actor.ID {
			return fmt.Errorf("request is handled by %s: %w", *snap.HandlerID, ErrUnauthorized)
		}
		if snap.HandlerID == nil && !e.assigns {
			return fmt.Errorf("request has no handler: %w", ErrUnauthorized)
		}
	}
	return nil
}
