package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ecycle/internal/auth"
	"ecycle/internal/db"
	"ecycle/internal/liveview"
	"ecycle/internal/pubsub"
	"ecycle/internal/schema"
	"ecycle/internal/service"
	"ecycle/internal/ws"
)

type Dependencies struct {
	DB        *db.Pool
	Bus       *pubsub.Bus
	Hub       *ws.Hub
	Log       *zap.Logger
	JWT       *auth.JWTConfig
	JobClient service.JobClient

	// Server-hosted live views, fed by the bus; nil views disable snapshots.
	RepairView *liveview.Store
	PickupView *liveview.Store
}

type handlers struct {
	Dependencies
	actors  *service.ActorService
	repairs *service.RepairService
	pickups *service.PickupService
	points  *service.PointsService
}

func Routes(d Dependencies) http.Handler {
	schemaComp := schema.NewCompilerWithCache(64)
	points := service.NewPointsService(d.DB.Queries, d.Bus)
	repairs := service.NewRepairService(d.DB.Queries, schemaComp, d.Bus)
	pickups := service.NewPickupService(d.DB.Queries, schemaComp, points, d.Bus)
	if d.JobClient != nil {
		repairs.SetJobClient(d.JobClient)
		pickups.SetJobClient(d.JobClient)
	}

	h := &handlers{
		Dependencies: d,
		actors:       service.NewActorService(d.DB.Queries),
		repairs:      repairs,
		pickups:      pickups,
		points:       points,
	}

	r := chi.NewRouter()
	r.Use(RequestLogger(d.Log))
	r.Use(d.JWT.Middleware)

	// Repair lifecycle
	r.Post("/repairs", h.createRepair)
	r.Get("/repairs", h.listRepairs)
	r.Get("/repairs/{id}", h.getRepair)
	r.Post("/repairs/{id}/accept", h.acceptRepair)
	r.Post("/repairs/{id}/status", h.advanceRepair)
	r.Post("/repairs/{id}/cancel", h.cancelRepair)
	r.Post("/repairs/{id}/estimate", h.setRepairEstimate)
	r.Post("/repairs/{id}/notes", h.addRepairNote)
	r.Get("/repairs/{id}/events", h.listRepairEvents)

	// Pickup lifecycle
	r.Post("/pickups", h.createPickup)
	r.Get("/pickups", h.listPickups)
	r.Get("/pickups/{id}", h.getPickup)
	r.Post("/pickups/{id}/accept", h.acceptPickup)
	r.Post("/pickups/{id}/complete", h.completePickup)
	r.Post("/pickups/{id}/cancel", h.cancelPickup)

	// Points and rewards
	r.Get("/rewards", h.listRewards)
	r.Post("/rewards/{id}/redeem", h.redeemReward)
	r.Get("/me", h.me)

	// WebSocket feed
	r.Get("/ws", h.wsHandler)

	return r
}
