package lifecycle

import (
	"fmt"
	"time"

	"ecycle/internal/model"
)

// EstimateField names a handler-settable auxiliary estimate.
type EstimateField string

const (
	EstimateCost       EstimateField = "cost"
	EstimateCompletion EstimateField = "completion"
)

// Estimates carries a request's auxiliary estimate fields alongside its
// Snapshot. Settable only by the current handler while the request is not in
// a terminal state.
type Estimates struct {
	Cost       *float64
	Completion *time.Time
}

// SetEstimate validates the handler's right to set field and returns the
// updated estimates plus the audit event summarizing the change. The snapshot
// itself is returned with UpdatedAt refreshed.
func (m *Machine) SetEstimate(snap Snapshot, est Estimates, field EstimateField, value interface{}, actor model.Actor, now time.Time) (Snapshot, Estimates, Event, error) {
	if m.terminal[snap.Status] {
		return Snapshot{}, Estimates{}, Event{}, fmt.Errorf("%s %s is %s: %w", m.name, snap.ID, snap.Status, ErrTerminalState)
	}
	if snap.HandlerID == nil || *snap.HandlerID != actor.ID {
		return Snapshot{}, Estimates{}, Event{}, fmt.Errorf("only the current handler may set estimates: %w", ErrUnauthorized)
	}

	next := est
	var rendered interface{}
	switch field {
	case EstimateCost:
		cost, ok := value.(float64)
		if !ok || cost < 0 {
			return Snapshot{}, Estimates{}, Event{}, fmt.Errorf("estimate cost must be a non-negative number: %w", ErrInvalidValue)
		}
		next.Cost = &cost
		rendered = cost
	case EstimateCompletion:
		at, ok := value.(time.Time)
		if !ok {
			return Snapshot{}, Estimates{}, Event{}, fmt.Errorf("estimate completion must be a timestamp: %w", ErrInvalidValue)
		}
		next.Completion = &at
		rendered = at.Format(time.RFC3339)
	default:
		return Snapshot{}, Estimates{}, Event{}, fmt.Errorf("unknown estimate field %q: %w", field, ErrInvalidValue)
	}

	snap.UpdatedAt = now
	ev := Event{
		RequestID: snap.ID,
		Type:      EventEstimateSet,
		ActorID:   actor.ID,
		At:        now,
		Data: map[string]interface{}{
			"field": string(field),
			"value": rendered,
		},
	}
	return snap, next, ev, nil
}
