package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"ecycle/internal/db"
	"ecycle/internal/model"
)

type ActorService struct {
	queries *db.Queries
}

func NewActorService(queries *db.Queries) *ActorService {
	return &ActorService{queries: queries}
}

// Ensure upserts the authenticated actor's profile row. Called on first
// contact so the points ledger always has a row to credit.
func (s *ActorService) Ensure(ctx context.Context, actor model.Actor) (*model.Actor, error) {
	row, err := s.queries.UpsertActor(ctx, actor.ID, actor.Name, actor.Email, string(actor.Role))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert actor: %w", err)
	}
	return dbActorToModel(row), nil
}

func (s *ActorService) Get(ctx context.Context, id string) (*model.Actor, error) {
	row, err := s.queries.GetActorByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("actor %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get actor: %w", err)
	}
	return dbActorToModel(row), nil
}

func dbActorToModel(a db.Actor) *model.Actor {
	return &model.Actor{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		Role:      model.Role(a.Role),
		Points:    a.Points,
		CreatedAt: formatTime(a.CreatedAt),
	}
}
