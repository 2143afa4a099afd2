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

type PickupService struct {
	queries    *db.Queries
	schemaComp *schema.Compiler
	points     *PointsService
	bus        EventBus
	jobClient  JobClient
}

func NewPickupService(queries *db.Queries, schemaComp *schema.Compiler, points *PointsService, bus EventBus) *PickupService {
	return &PickupService{
		queries:    queries,
		schemaComp: schemaComp,
		points:     points,
		bus:        bus,
	}
}

// SetJobClient sets the client for scheduling background reminders
func (s *PickupService) SetJobClient(client JobClient) {
	s.jobClient = client
}

// Create registers a pickup request and credits the requester's points
// balance. Points reward the effort of scheduling a pickup, not its outcome:
// the credit happens here, once, and a later cancellation does not claw it
// back (see PointsService.ForQuantity).
func (s *PickupService) Create(ctx context.Context, actor model.Actor, payload map[string]interface{}) (*model.PickupRequest, error) {
	if err := s.schemaComp.Validate(ctx, schema.PickupPayload, payload); err != nil {
		return nil, fmt.Errorf("invalid pickup payload: %w", err)
	}
	quantity := intField(payload, "quantity")

	id := ulid.Make().String()
	row, err := s.queries.CreatePickupRequest(ctx, id, actor.ID, payload, quantity, string(lifecycle.Pickup.Initial()))
	if err != nil {
		return nil, fmt.Errorf("failed to create pickup request: %w", err)
	}

	if err := s.points.CreditForPickup(ctx, actor.ID, quantity); err != nil {
		// The request exists either way; a failed credit is logged upstream
		// and surfaced on the next balance read.
		_ = s.bus.PublishActor(actor.ID, map[string]interface{}{
			"type": "points.credit_failed", "requestId": id,
		})
	}

	record := pickupRecord(row)
	_ = s.bus.PublishTable("pickups", map[string]interface{}{
		"type": "pickup.created", "op": "insert", "record": record,
	})
	_ = s.bus.PublishActor(actor.ID, map[string]interface{}{
		"type": "pickup.created", "requestId": id,
	})
	_ = s.bus.PublishRole(string(model.RoleRecycler), map[string]interface{}{
		"type": "pickup.created", "requestId": id,
	})

	if s.jobClient != nil {
		_ = s.jobClient.ScheduleStaleReminder("pickup", id, staleReminderAfter)
	}

	return dbPickupToModel(row), nil
}

func (s *PickupService) Get(ctx context.Context, id string) (*model.PickupRequest, error) {
	row, err := s.queries.GetPickupRequestByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pickup request %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get pickup request: %w", err)
	}
	return dbPickupToModel(row), nil
}

func (s *PickupService) List(ctx context.Context, actor model.Actor, status *string, limit, offset int) ([]*model.PickupRequest, error) {
	var requesterID *string
	if actor.Role != lifecycle.Pickup.HandlerRole() && actor.Role != model.RoleAdmin {
		requesterID = &actor.ID
	}

	rows, err := s.queries.ListPickupRequests(ctx, requesterID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list pickup requests: %w", err)
	}

	out := make([]*model.PickupRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, dbPickupToModel(row))
	}
	return out, nil
}

// Accept claims a pending pickup for the acting recycler.
func (s *PickupService) Accept(ctx context.Context, actor model.Actor, id string) (*model.PickupRequest, error) {
	row, err := s.queries.GetPickupRequestByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pickup request %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get pickup request: %w", err)
	}
	if row.HandlerID != nil && *row.HandlerID != actor.ID {
		return nil, fmt.Errorf("pickup request %s is handled by %s: %w", id, *row.HandlerID, lifecycle.ErrUnauthorized)
	}
	return s.transition(ctx, actor, row, model.StatusAccepted)
}

// Complete marks an accepted pickup as collected.
func (s *PickupService) Complete(ctx context.Context, actor model.Actor, id string) (*model.PickupRequest, error) {
	row, err := s.queries.GetPickupRequestByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pickup request %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get pickup request: %w", err)
	}
	return s.transition(ctx, actor, row, model.StatusCompleted)
}

// Cancel is the requester's self-service exit.
func (s *PickupService) Cancel(ctx context.Context, actor model.Actor, id string) (*model.PickupRequest, error) {
	row, err := s.queries.GetPickupRequestByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pickup request %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get pickup request: %w", err)
	}
	return s.transition(ctx, actor, row, model.StatusCancelled)
}

func (s *PickupService) transition(ctx context.Context, actor model.Actor, row db.PickupRequest, target model.Status) (*model.PickupRequest, error) {
	snap := pickupSnapshot(row)
	now := time.Now()

	next, err := lifecycle.Pickup.AttemptTransition(snap, target, actor, now)
	if err != nil {
		return nil, err
	}

	updated, err := s.queries.TransitionPickupRequest(ctx, row.ID, string(snap.Status), string(next.Status), next.HandlerID, now)
	if err != nil {
		if errors.Is(err, db.ErrNoRowsAffected) {
			return nil, fmt.Errorf("pickup request %s changed underneath: %w", row.ID, ErrConflict)
		}
		return nil, fmt.Errorf("failed to persist transition: %w", err)
	}

	eventType := lifecycle.Pickup.Name() + "." + eventSuffix(next.Status)
	record := pickupRecord(updated)
	_ = s.bus.PublishTable("pickups", map[string]interface{}{
		"type": eventType, "op": "update", "record": record,
	})
	_ = s.bus.PublishRequest(updated.ID, map[string]interface{}{
		"type": eventType, "requestId": updated.ID, "record": record,
	})
	_ = s.bus.PublishActor(updated.RequesterID, map[string]interface{}{
		"type": eventType, "requestId": updated.ID,
	})

	return dbPickupToModel(updated), nil
}

func intField(payload map[string]interface{}, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func pickupSnapshot(p db.PickupRequest) lifecycle.Snapshot {
	return lifecycle.Snapshot{
		ID:          p.ID,
		RequesterID: p.RequesterID,
		HandlerID:   p.HandlerID,
		Status:      model.Status(p.Status),
		UpdatedAt:   p.UpdatedAt,
	}
}

func dbPickupToModel(p db.PickupRequest) *model.PickupRequest {
	return &model.PickupRequest{
		ID:          p.ID,
		RequesterID: p.RequesterID,
		HandlerID:   p.HandlerID,
		Status:      model.Status(p.Status),
		Payload:     p.Payload,
		Quantity:    p.Quantity,
		CreatedAt:   formatTime(p.CreatedAt),
		UpdatedAt:   formatTime(p.UpdatedAt),
	}
}

func pickupRecord(p db.PickupRequest) map[string]interface{} {
	rec := map[string]interface{}{
		"id":          p.ID,
		"requesterId": p.RequesterID,
		"status":      p.Status,
		"payload":     p.Payload,
		"quantity":    p.Quantity,
		"createdAt":   formatTime(p.CreatedAt),
		"updatedAt":   formatTime(p.UpdatedAt),
	}
	if p.HandlerID != nil {
		rec["handlerId"] = *p.HandlerID
	}
	return rec
}
