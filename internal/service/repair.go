package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"ecycle/internal/db"
	"ecycle/internal/lifecycle"
	"ecycle/internal/model"
	"ecycle/internal/schema"
)

// staleReminderAfter is how long a request may sit pending before the
// handler pool gets a nudge. Requests never expire on their own.
const staleReminderAfter = 24 * time.Hour

type RepairService struct {
	queries    *db.Queries
	schemaComp *schema.Compiler
	bus        EventBus
	jobClient  JobClient
}

func NewRepairService(queries *db.Queries, schemaComp *schema.Compiler, bus EventBus) *RepairService {
	return &RepairService{
		queries:    queries,
		schemaComp: schemaComp,
		bus:        bus,
	}
}

// SetJobClient sets the client for scheduling background reminders
func (s *RepairService) SetJobClient(client JobClient) {
	s.jobClient = client
}

func (s *RepairService) Create(ctx context.Context, actor model.Actor, payload map[string]interface{}) (*model.RepairRequest, error) {
	if err := s.schemaComp.Validate(ctx, schema.RepairPayload, payload); err != nil {
		return nil, fmt.Errorf("invalid repair payload: %w", err)
	}

	id := ulid.Make().String()
	row, err := s.queries.CreateRepairRequest(ctx, id, actor.ID, payload, string(lifecycle.Repair.Initial()))
	if err != nil {
		return nil, fmt.Errorf("failed to create repair request: %w", err)
	}

	now := time.Now()
	s.appendEvent(ctx, lifecycle.Event{
		RequestID: id,
		Type:      lifecycle.EventCreated,
		ActorID:   actor.ID,
		At:        now,
	})

	req := dbRepairToModel(row)
	record := repairRecord(row)
	_ = s.bus.PublishTable("repairs", map[string]interface{}{
		"type": "repair.created", "op": "insert", "record": record,
	})
	_ = s.bus.PublishActor(actor.ID, map[string]interface{}{
		"type": "repair.created", "requestId": id,
	})
	_ = s.bus.PublishRole(string(model.RoleTechnician), map[string]interface{}{
		"type": "repair.created", "requestId": id,
	})

	if s.jobClient != nil {
		_ = s.jobClient.ScheduleStaleReminder("repair", id, staleReminderAfter)
	}

	return req, nil
}

func (s *RepairService) Get(ctx context.Context, id string) (*model.RepairRequest, error) {
	row, err := s.queries.GetRepairRequestByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("repair request %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get repair request: %w", err)
	}
	return dbRepairToModel(row), nil
}

func (s *RepairService) List(ctx context.Context, actor model.Actor, status *string, limit, offset int) ([]*model.RepairRequest, error) {
	// Requesters see their own requests; the handler role and admins see
	// the whole worklist.
	var requesterID *string
	if actor.Role != lifecycle.Repair.HandlerRole() && actor.Role != model.RoleAdmin {
		requesterID = &actor.ID
	}

	rows, err := s.queries.ListRepairRequests(ctx, requesterID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list repair requests: %w", err)
	}

	out := make([]*model.RepairRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, dbRepairToModel(row))
	}
	return out, nil
}

// Accept claims a pending repair for the acting technician. A request
// already claimed by someone else is refused outright; a request that moved
// out of PENDING between read and write loses the conditional update and
// surfaces as a conflict, so two racing technicians cannot both win.
func (s *RepairService) Accept(ctx context.Context, actor model.Actor, id string) (*model.RepairRequest, error) {
	row, err := s.queries.GetRepairRequestByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("repair request %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get repair request: %w", err)
	}
	if row.HandlerID != nil && *row.HandlerID != actor.ID {
		return nil, fmt.Errorf("repair request %s is handled by %s: %w", id, *row.HandlerID, lifecycle.ErrUnauthorized)
	}
	return s.transition(ctx, actor, row, model.StatusAssigned)
}

// Advance moves an in-progress repair along its happy path.
func (s *RepairService) Advance(ctx context.Context, actor model.Actor, id string, target model.Status) (*model.RepairRequest, error) {
	row, err := s.queries.GetRepairRequestByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("repair request %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get repair request: %w", err)
	}
	return s.transition(ctx, actor, row, target)
}

// Cancel is the requester's self-service exit from any non-terminal state.
func (s *RepairService) Cancel(ctx context.Context, actor model.Actor, id string) (*model.RepairRequest, error) {
	return s.Advance(ctx, actor, id, model.StatusCancelled)
}

func (s *RepairService) transition(ctx context.Context, actor model.Actor, row db.RepairRequest, target model.Status) (*model.RepairRequest, error) {
	snap := repairSnapshot(row)
	now := time.Now()

	next, err := lifecycle.Repair.AttemptTransition(snap, target, actor, now)
	if err != nil {
		return nil, err
	}

	updated, err := s.queries.TransitionRepairRequest(ctx, row.ID, string(snap.Status), string(next.Status), next.HandlerID, now)
	if err != nil {
		if errors.Is(err, db.ErrNoRowsAffected) {
			return nil, fmt.Errorf("repair request %s changed underneath: %w", row.ID, ErrConflict)
		}
		return nil, fmt.Errorf("failed to persist transition: %w", err)
	}

	s.appendEvent(ctx, lifecycle.TransitionEvent(next, actor, now))
	s.publishUpdate(updated, lifecycle.Repair.Name()+"."+eventSuffix(next.Status))

	return dbRepairToModel(updated), nil
}

// SetEstimate sets an auxiliary estimate field; handler only, never on a
// terminal request.
func (s *RepairService) SetEstimate(ctx context.Context, actor model.Actor, id string, field lifecycle.EstimateField, value interface{}) (*model.RepairRequest, error) {
	row, err := s.queries.GetRepairRequestByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("repair request %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get repair request: %w", err)
	}

	now := time.Now()
	_, est, ev, err := lifecycle.Repair.SetEstimate(
		repairSnapshot(row),
		lifecycle.Estimates{Cost: row.EstimateCost, Completion: row.EstimateCompletion},
		field, value, actor, now,
	)
	if err != nil {
		return nil, err
	}

	updated, err := s.queries.SetRepairEstimates(ctx, id, est.Cost, est.Completion, now)
	if err != nil {
		return nil, fmt.Errorf("failed to persist estimate: %w", err)
	}

	s.appendEvent(ctx, ev)
	s.publishUpdate(updated, "repair.estimate_set")

	return dbRepairToModel(updated), nil
}

// AddNote appends a free-text note to the request's audit log. The request
// row itself is untouched.
func (s *RepairService) AddNote(ctx context.Context, actor model.Actor, id, text string) (lifecycle.Event, error) {
	row, err := s.queries.GetRepairRequestByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lifecycle.Event{}, fmt.Errorf("repair request %s: %w", id, ErrNotFound)
		}
		return lifecycle.Event{}, fmt.Errorf("failed to get repair request: %w", err)
	}

	ev, err := lifecycle.Repair.NoteEvent(repairSnapshot(row), actor, text, time.Now())
	if err != nil {
		return lifecycle.Event{}, err
	}
	ev.ID = ulid.Make().String()

	s.appendEvent(ctx, ev)
	_ = s.bus.PublishRequest(id, map[string]interface{}{
		"type": "repair.note", "requestId": id, "actorId": actor.ID, "text": text,
	})
	return ev, nil
}

// Events returns the request's append-only audit log in order.
func (s *RepairService) Events(ctx context.Context, id string) ([]lifecycle.Event, error) {
	rows, err := s.queries.ListRepairEvents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list repair events: %w", err)
	}
	events := make([]lifecycle.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, lifecycle.Event{
			ID:        row.ID,
			RequestID: row.RequestID,
			Type:      lifecycle.EventType(row.Type),
			ActorID:   row.ActorID,
			At:        row.CreatedAt,
			Data:      row.Data,
		})
	}
	return events, nil
}

func (s *RepairService) appendEvent(ctx context.Context, ev lifecycle.Event) {
	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}
	// Audit failure must not roll back an already-persisted transition.
	_, _ = s.queries.AppendRepairEvent(ctx, db.RepairEvent{
		ID:        ev.ID,
		RequestID: ev.RequestID,
		Type:      string(ev.Type),
		ActorID:   ev.ActorID,
		Data:      ev.Data,
		CreatedAt: ev.At,
	})
}

func (s *RepairService) publishUpdate(row db.RepairRequest, eventType string) {
	record := repairRecord(row)
	_ = s.bus.PublishTable("repairs", map[string]interface{}{
		"type": eventType, "op": "update", "record": record,
	})
	_ = s.bus.PublishRequest(row.ID, map[string]interface{}{
		"type": eventType, "requestId": row.ID, "record": record,
	})
	_ = s.bus.PublishActor(row.RequesterID, map[string]interface{}{
		"type": eventType, "requestId": row.ID,
	})
}

func eventSuffix(status model.Status) string {
	switch status {
	case model.StatusAssigned, model.StatusAccepted:
		return "assigned"
	case model.StatusCancelled:
		return "cancelled"
	case model.StatusCompleted:
		return "completed"
	default:
		return "status_changed"
	}
}

func repairSnapshot(r db.RepairRequest) lifecycle.Snapshot {
	return lifecycle.Snapshot{
		ID:          r.ID,
		RequesterID: r.RequesterID,
		HandlerID:   r.HandlerID,
		Status:      model.Status(r.Status),
		UpdatedAt:   r.UpdatedAt,
	}
}

func dbRepairToModel(r db.RepairRequest) *model.RepairRequest {
	return &model.RepairRequest{
		ID:                 r.ID,
		RequesterID:        r.RequesterID,
		HandlerID:          r.HandlerID,
		Status:             model.Status(r.Status),
		Payload:            r.Payload,
		EstimateCost:       r.EstimateCost,
		EstimateCompletion: timePtrToString(r.EstimateCompletion),
		CreatedAt:          formatTime(r.CreatedAt),
		UpdatedAt:          formatTime(r.UpdatedAt),
	}
}

// repairRecord is the change-feed payload for a repair row. It carries only
// columns, so live views merge it without clobbering locally-joined data.
func repairRecord(r db.RepairRequest) map[string]interface{} {
	rec := map[string]interface{}{
		"id":          r.ID,
		"requesterId": r.RequesterID,
		"status":      r.Status,
		"payload":     r.Payload,
		"createdAt":   formatTime(r.CreatedAt),
		"updatedAt":   formatTime(r.UpdatedAt),
	}
	if r.HandlerID != nil {
		rec["handlerId"] = *r.HandlerID
	}
	if r.EstimateCost != nil {
		rec["estimateCost"] = *r.EstimateCost
	}
	if r.EstimateCompletion != nil {
		rec["estimateCompletion"] = formatTime(*r.EstimateCompletion)
	}
	return rec
}
