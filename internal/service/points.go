package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"ecycle/internal/db"
	"ecycle/internal/model"
)

// PointsPerItem is the fixed multiplier applied to a pickup's quantity.
const PointsPerItem = 10

type PointsService struct {
	queries *db.Queries
	bus     EventBus
}

func NewPointsService(queries *db.Queries, bus EventBus) *PointsService {
	return &PointsService{queries: queries, bus: bus}
}

// ForQuantity is the earning rule: PointsPerItem per item picked up.
// Policy: points are granted when the pickup is created and are not revoked
// if it is later cancelled — the ledger rewards the effort of initiating
// recycling, not the pickup's outcome. The single call site is
// PickupService.Create; moving the grant to completion means moving that one
// call.
func ForQuantity(quantity int) int {
	if quantity < 0 {
		return 0
	}
	return PointsPerItem * quantity
}

// CreditForPickup credits the earning for a new pickup to the requester.
func (s *PointsService) CreditForPickup(ctx context.Context, actorID string, quantity int) error {
	amount := ForQuantity(quantity)
	if amount == 0 {
		return nil
	}
	if err := s.queries.CreditPoints(ctx, actorID, amount); err != nil {
		return fmt.Errorf("failed to credit points: %w", err)
	}
	_ = s.bus.PublishActor(actorID, map[string]interface{}{
		"type": "points.credited", "amount": amount,
	})
	return nil
}

// Redeem exchanges points for a reward. The decrement is conditional on the
// balance covering the cost, so concurrent redemptions cannot drive the
// balance negative; a short balance leaves the ledger untouched.
func (s *PointsService) Redeem(ctx context.Context, actor model.Actor, rewardID string) (*model.Redemption, error) {
	reward, err := s.queries.GetRewardByID(ctx, rewardID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("reward %s: %w", rewardID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get reward: %w", err)
	}

	if err := s.queries.DebitPoints(ctx, actor.ID, reward.Cost); err != nil {
		if errors.Is(err, db.ErrNoRowsAffected) {
			return nil, fmt.Errorf("reward costs %d points: %w", reward.Cost, ErrInsufficientBalance)
		}
		return nil, fmt.Errorf("failed to debit points: %w", err)
	}

	id := ulid.Make().String()
	redemption, err := s.queries.CreateRedemption(ctx, id, actor.ID, reward.ID, RedemptionCode())
	if err != nil {
		// The debit landed but the redemption row did not; refund so the
		// ledger stays consistent.
		_ = s.queries.CreditPoints(ctx, actor.ID, reward.Cost)
		return nil, fmt.Errorf("failed to record redemption: %w", err)
	}

	_ = s.bus.PublishActor(actor.ID, map[string]interface{}{
		"type": "points.redeemed", "rewardId": reward.ID, "code": redemption.Code,
	})

	return &model.Redemption{
		ID:       redemption.ID,
		ActorID:  redemption.ActorID,
		RewardID: redemption.RewardID,
		Code:     redemption.Code,
		IssuedAt: formatTime(redemption.IssuedAt),
	}, nil
}

// Rewards lists the redeemable catalog, cheapest first.
func (s *PointsService) Rewards(ctx context.Context) ([]*model.Reward, error) {
	rows, err := s.queries.ListRewards(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}
	out := make([]*model.Reward, 0, len(rows))
	for _, row := range rows {
		out = append(out, &model.Reward{
			ID:        row.ID,
			Title:     row.Title,
			Cost:      row.Cost,
			CreatedAt: formatTime(row.CreatedAt),
		})
	}
	return out, nil
}

// RedemptionCode generates the human-readable voucher code handed to the
// redeeming actor. ULID randomness, short enough to read over a counter.
func RedemptionCode() string {
	id := ulid.Make().String()
	return "ECO-" + strings.ToUpper(id[len(id)-8:])
}
