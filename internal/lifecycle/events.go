package lifecycle

import (
	"fmt"
	"time"

	"ecycle/internal/model"
)

// EventType classifies structured audit-log entries.
type EventType string

const (
	EventCreated     EventType = "request.created"
	EventAssigned    EventType = "request.assigned"
	EventStatus      EventType = "request.status_changed"
	EventCancelled   EventType = "request.cancelled"
	EventCompleted   EventType = "request.completed"
	EventEstimateSet EventType = "request.estimate_set"
	EventNote        EventType = "request.note"
)

// Event is an append-only, structured audit record attributed to exactly one
// request and one author. The human-readable rendering is a projection, not
// stored text, so the log stays machine-checkable.
type Event struct {
	ID        string                 `json:"id"`
	RequestID string                 `json:"requestId"`
	Type      EventType              `json:"type"`
	ActorID   string                 `json:"actorId"`
	At        time.Time              `json:"at"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// TransitionEvent builds the audit event for a successful transition into
// next.Status. The caller persists it alongside the updated row.
func TransitionEvent(next Snapshot, actor model.Actor, now time.Time) Event {
	ev := Event{
		RequestID: next.ID,
		ActorID:   actor.ID,
		At:        now,
		Data:      map[string]interface{}{"status": string(next.Status)},
	}
	switch next.Status {
	case model.StatusAssigned, model.StatusAccepted:
		ev.Type = EventAssigned
	case model.StatusCancelled:
		ev.Type = EventCancelled
	case model.StatusCompleted:
		ev.Type = EventCompleted
	default:
		ev.Type = EventStatus
	}
	return ev
}

// NoteEvent validates the author against the request and builds a note entry
// for its audit log. The requester and the current handler may write notes;
// terminal requests take no further entries.
func (m *Machine) NoteEvent(snap Snapshot, actor model.Actor, text string, now time.Time) (Event, error) {
	if m.terminal[snap.Status] {
		return Event{}, fmt.Errorf("%s %s is %s: %w", m.name, snap.ID, snap.Status, ErrTerminalState)
	}
	if text == "" {
		return Event{}, fmt.Errorf("note text must not be empty: %w", ErrInvalidValue)
	}
	if actor.ID != snap.RequesterID && (snap.HandlerID == nil || *snap.HandlerID != actor.ID) {
		return Event{}, fmt.Errorf("actor %s does not participate in this request: %w", actor.ID, ErrUnauthorized)
	}
	return Event{
		RequestID: snap.ID,
		Type:      EventNote,
		ActorID:   actor.ID,
		At:        now,
		Data:      map[string]interface{}{"text": text},
	}, nil
}

// Message renders an event as display text. Dashboards show this string; the
// structured fields remain the source of truth.
func (e Event) Message() string {
	switch e.Type {
	case EventCreated:
		return "request created"
	case EventAssigned:
		return fmt.Sprintf("request accepted by %s", e.ActorID)
	case EventCancelled:
		return "request cancelled by requester"
	case EventCompleted:
		return "request completed"
	case EventStatus:
		if s, ok := e.Data["status"].(string); ok {
			return fmt.Sprintf("status changed to %s", s)
		}
		return "status changed"
	case EventEstimateSet:
		field, _ := e.Data["field"].(string)
		value := e.Data["value"]
		return fmt.Sprintf("estimated %s set to %v", field, value)
	case EventNote:
		if text, ok := e.Data["text"].(string); ok {
			return text
		}
		return "note"
	}
	return string(e.Type)
}
