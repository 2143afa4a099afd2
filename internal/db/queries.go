package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoRowsAffected reports a conditional update that matched nothing —
// either the row is gone or its status moved underneath the caller.
var ErrNoRowsAffected = errors.New("no rows affected")

// Queries wraps database queries
type Queries struct {
	*pgxpool.Pool
}

// NewQueries creates a new Queries instance
func NewQueries(pool *pgxpool.Pool) *Queries {
	return &Queries{Pool: pool}
}

// Actor queries

type Actor struct {
	ID        string
	Name      string
	Email     string
	Role      string
	Points    int
	CreatedAt time.Time
}

func (q *Queries) GetActorByID(ctx context.Context, id string) (Actor, error) {
	var a Actor
	err := q.Pool.QueryRow(ctx,
		"SELECT id, name, email, role, points, created_at FROM actors WHERE id = $1",
		id,
	).Scan(&a.ID, &a.Name, &a.Email, &a.Role, &a.Points, &a.CreatedAt)
	return a, err
}

func (q *Queries) UpsertActor(ctx context.Context, id, name, email, role string) (Actor, error) {
	var a Actor
	err := q.Pool.QueryRow(ctx,
		`INSERT INTO actors (id, name, email, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email
		RETURNING id, name, email, role, points, created_at`,
		id, name, email, role,
	).Scan(&a.ID, &a.Name, &a.Email, &a.Role, &a.Points, &a.CreatedAt)
	return a, err
}

// CreditPoints adds amount to an actor's balance.
func (q *Queries) CreditPoints(ctx context.Context, id string, amount int) error {
	result, err := q.Pool.Exec(ctx,
		"UPDATE actors SET points = points + $2 WHERE id = $1",
		id, amount,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// DebitPoints subtracts amount from an actor's balance only if the balance
// covers it; ErrNoRowsAffected means insufficient funds (or unknown actor).
func (q *Queries) DebitPoints(ctx context.Context, id string, amount int) error {
	result, err := q.Pool.Exec(ctx,
		"UPDATE actors SET points = points - $2 WHERE id = $1 AND points >= $2",
		id, amount,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// Repair request queries

type RepairRequest struct {
	ID                 string
	RequesterID        string
	HandlerID          *string
	Status             string
	Payload            map[string]interface{}
	EstimateCost       *float64
	EstimateCompletion *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

const repairColumns = `id, requester_id, handler_id, status, payload,
	estimate_cost, estimate_completion, created_at, updated_at`

func scanRepair(row pgx.Row) (RepairRequest, error) {
	var r RepairRequest
	err := row.Scan(
		&r.ID, &r.RequesterID, &r.HandlerID, &r.Status, &r.Payload,
		&r.EstimateCost, &r.EstimateCompletion, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

func (q *Queries) CreateRepairRequest(ctx context.Context, id, requesterID string, payload map[string]interface{}, status string) (RepairRequest, error) {
	return scanRepair(q.Pool.QueryRow(ctx,
		`INSERT INTO repair_requests (id, requester_id, status, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING `+repairColumns,
		id, requesterID, status, payload,
	))
}

func (q *Queries) GetRepairRequestByID(ctx context.Context, id string) (RepairRequest, error) {
	return scanRepair(q.Pool.QueryRow(ctx,
		`SELECT `+repairColumns+` FROM repair_requests WHERE id = $1`, id,
	))
}

// TransitionRepairRequest applies a status change only if the row's status
// still equals expected, so two racing writers cannot both win the same edge.
func (q *Queries) TransitionRepairRequest(ctx context.Context, id, expected, next string, handlerID *string, updatedAt time.Time) (RepairRequest, error) {
	r, err := scanRepair(q.Pool.QueryRow(ctx,
		`UPDATE repair_requests
		SET status = $3, handler_id = COALESCE(handler_id, $4), updated_at = $5
		WHERE id = $1 AND status = $2
		RETURNING `+repairColumns,
		id, expected, next, handlerID, updatedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return RepairRequest{}, ErrNoRowsAffected
	}
	return r, err
}

func (q *Queries) SetRepairEstimates(ctx context.Context, id string, cost *float64, completion *time.Time, updatedAt time.Time) (RepairRequest, error) {
	return scanRepair(q.Pool.QueryRow(ctx,
		`UPDATE repair_requests
		SET estimate_cost = COALESCE($2, estimate_cost),
			estimate_completion = COALESCE($3, estimate_completion),
			updated_at = $4
		WHERE id = $1
		RETURNING `+repairColumns,
		id, cost, completion, updatedAt,
	))
}

func (q *Queries) ListRepairRequests(ctx context.Context, requesterID *string, status *string, limit, offset int) ([]RepairRequest, error) {
	rows, err := q.Pool.Query(ctx,
		`SELECT `+repairColumns+` FROM repair_requests
		WHERE ($1::text IS NULL OR requester_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		requesterID, status, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := make([]RepairRequest, 0)
	for rows.Next() {
		r, err := scanRepair(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// Pickup request queries

type PickupRequest struct {
	ID          string
	RequesterID string
	HandlerID   *string
	Status      string
	Payload     map[string]interface{}
	Quantity    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const pickupColumns = `id, requester_id, handler_id, status, payload, quantity, created_at, updated_at`

func scanPickup(row pgx.Row) (PickupRequest, error) {
	var p PickupRequest
	err := row.Scan(
		&p.ID, &p.RequesterID, &p.HandlerID, &p.Status, &p.Payload,
		&p.Quantity, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func (q *Queries) CreatePickupRequest(ctx context.Context, id, requesterID string, payload map[string]interface{}, quantity int, status string) (PickupRequest, error) {
	return scanPickup(q.Pool.QueryRow(ctx,
		`INSERT INTO pickup_requests (id, requester_id, status, payload, quantity)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+pickupColumns,
		id, requesterID, status, payload, quantity,
	))
}

func (q *Queries) GetPickupRequestByID(ctx context.Context, id string) (PickupRequest, error) {
	return scanPickup(q.Pool.QueryRow(ctx,
		`SELECT `+pickupColumns+` FROM pickup_requests WHERE id = $1`, id,
	))
}

func (q *Queries) TransitionPickupRequest(ctx context.Context, id, expected, next string, handlerID *string, updatedAt time.Time) (PickupRequest, error) {
	p, err := scanPickup(q.Pool.QueryRow(ctx,
		`UPDATE pickup_requests
		SET status = $3, handler_id = COALESCE(handler_id, $4), updated_at = $5
		WHERE id = $1 AND status = $2
		RETURNING `+pickupColumns,
		id, expected, next, handlerID, updatedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return PickupRequest{}, ErrNoRowsAffected
	}
	return p, err
}

func (q *Queries) ListPickupRequests(ctx context.Context, requesterID *string, status *string, limit, offset int) ([]PickupRequest, error) {
	rows, err := q.Pool.Query(ctx,
		`SELECT `+pickupColumns+` FROM pickup_requests
		WHERE ($1::text IS NULL OR requester_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		requesterID, status, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pickups := make([]PickupRequest, 0)
	for rows.Next() {
		p, err := scanPickup(rows)
		if err != nil {
			return nil, err
		}
		pickups = append(pickups, p)
	}
	return pickups, rows.Err()
}

// ListStalePending returns ids of rows in the given table still PENDING and
// older than cutoff. Used by the reminder jobs only; never mutates.
func (q *Queries) ListStalePending(ctx context.Context, table string, cutoff time.Time) ([]string, error) {
	var query string
	switch table {
	case "repair_requests":
		query = "SELECT id FROM repair_requests WHERE status = 'PENDING' AND created_at < $1"
	case "pickup_requests":
		query = "SELECT id FROM pickup_requests WHERE status = 'PENDING' AND created_at < $1"
	default:
		return nil, errors.New("unknown table: " + table)
	}
	rows, err := q.Pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Event queries

type RepairEvent struct {
	ID        string
	RequestID string
	Type      string
	ActorID   string
	Data      map[string]interface{}
	CreatedAt time.Time
}

func (q *Queries) AppendRepairEvent(ctx context.Context, ev RepairEvent) (RepairEvent, error) {
	var r RepairEvent
	err := q.Pool.QueryRow(ctx,
		`INSERT INTO repair_events (id, request_id, type, actor_id, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, request_id, type, actor_id, data, created_at`,
		ev.ID, ev.RequestID, ev.Type, ev.ActorID, ev.Data, ev.CreatedAt,
	).Scan(&r.ID, &r.RequestID, &r.Type, &r.ActorID, &r.Data, &r.CreatedAt)
	return r, err
}

func (q *Queries) ListRepairEvents(ctx context.Context, requestID string) ([]RepairEvent, error) {
	rows, err := q.Pool.Query(ctx,
		`SELECT id, request_id, type, actor_id, data, created_at
		FROM repair_events
		WHERE request_id = $1
		ORDER BY created_at ASC, id ASC`,
		requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]RepairEvent, 0)
	for rows.Next() {
		var e RepairEvent
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Type, &e.ActorID, &e.Data, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Reward queries

type Reward struct {
	ID        string
	Title     string
	Cost      int
	CreatedAt time.Time
}

func (q *Queries) GetRewardByID(ctx context.Context, id string) (Reward, error) {
	var r Reward
	err := q.Pool.QueryRow(ctx,
		"SELECT id, title, cost, created_at FROM rewards WHERE id = $1",
		id,
	).Scan(&r.ID, &r.Title, &r.Cost, &r.CreatedAt)
	return r, err
}

func (q *Queries) ListRewards(ctx context.Context) ([]Reward, error) {
	rows, err := q.Pool.Query(ctx,
		"SELECT id, title, cost, created_at FROM rewards ORDER BY cost ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rewards := make([]Reward, 0)
	for rows.Next() {
		var r Reward
		if err := rows.Scan(&r.ID, &r.Title, &r.Cost, &r.CreatedAt); err != nil {
			return nil, err
		}
		rewards = append(rewards, r)
	}
	return rewards, rows.Err()
}

type Redemption struct {
	ID       string
	ActorID  string
	RewardID string
	Code     string
	IssuedAt time.Time
}

func (q *Queries) CreateRedemption(ctx context.Context, id, actorID, rewardID, code string) (Redemption, error) {
	var r Redemption
	err := q.Pool.QueryRow(ctx,
		`INSERT INTO redemptions (id, actor_id, reward_id, code)
		VALUES ($1, $2, $3, $4)
		RETURNING id, actor_id, reward_id, code, issued_at`,
		id, actorID, rewardID, code,
	).Scan(&r.ID, &r.ActorID, &r.RewardID, &r.Code, &r.IssuedAt)
	return r, err
}
