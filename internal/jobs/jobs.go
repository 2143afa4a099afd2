package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"ecycle/internal/db"
	"ecycle/internal/model"
	"ecycle/internal/pubsub"
)

// Task types. Reminders republish attention events for requests that linger
// in PENDING; they never transition a request. There is no timeout-driven
// cancellation anywhere in this system.
const (
	TaskRepairStale = "repair:stale"
	TaskPickupStale = "pickup:stale"
)

type stalePayload struct {
	RequestID string `json:"requestId"`
}

type JobServer struct {
	server *asynq.Server
	client *asynq.Client
	db     *db.Pool
	bus    *pubsub.Bus
	log    *zap.Logger
}

func NewJobServer(redisAddr string, dbPool *db.Pool, bus *pubsub.Bus, log *zap.Logger) (*JobServer, *asynq.Client) {
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 3,
				"low":     1,
			},
		},
	)

	client := asynq.NewClient(redisOpt)

	return &JobServer{
		server: server,
		client: client,
		db:     dbPool,
		bus:    bus,
		log:    log,
	}, client
}

func (js *JobServer) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskRepairStale, js.handleRepairStale)
	mux.HandleFunc(TaskPickupStale, js.handlePickupStale)
	return js.server.Start(mux)
}

func (js *JobServer) Stop() {
	js.server.Shutdown()
	js.client.Close()
}

func (js *JobServer) handleRepairStale(ctx context.Context, t *asynq.Task) error {
	var p stalePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("bad payload: %w", err)
	}

	req, err := js.db.Queries.GetRepairRequestByID(ctx, p.RequestID)
	if err != nil {
		return fmt.Errorf("failed to get repair request: %w", err)
	}

	// Moved past PENDING already; nothing to nudge.
	if req.Status != string(model.StatusPending) {
		return nil
	}

	_ = js.bus.PublishRole(string(model.RoleTechnician), map[string]interface{}{
		"type":      "repair.needs_attention",
		"requestId": p.RequestID,
	})
	_ = js.bus.PublishActor(req.RequesterID, map[string]interface{}{
		"type":      "repair.still_pending",
		"requestId": p.RequestID,
	})

	js.log.Info("Stale repair reminder sent", zap.String("request_id", p.RequestID))
	return nil
}

func (js *JobServer) handlePickupStale(ctx context.Context, t *asynq.Task) error {
	var p stalePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("bad payload: %w", err)
	}

	req, err := js.db.Queries.GetPickupRequestByID(ctx, p.RequestID)
	if err != nil {
		return fmt.Errorf("failed to get pickup request: %w", err)
	}

	if req.Status != string(model.StatusPending) {
		return nil
	}

	_ = js.bus.PublishRole(string(model.RoleRecycler), map[string]interface{}{
		"type":      "pickup.needs_attention",
		"requestId": p.RequestID,
	})
	_ = js.bus.PublishActor(req.RequesterID, map[string]interface{}{
		"type":      "pickup.still_pending",
		"requestId": p.RequestID,
	})

	js.log.Info("Stale pickup reminder sent", zap.String("request_id", p.RequestID))
	return nil
}

// ScheduleStaleReminder enqueues a reminder for a request that may still be
// pending after the delay.
func ScheduleStaleReminder(client *asynq.Client, lifecycle, requestID string, after time.Duration) error {
	var taskType string
	switch lifecycle {
	case "repair":
		taskType = TaskRepairStale
	case "pickup":
		taskType = TaskPickupStale
	default:
		return fmt.Errorf("unknown lifecycle %q", lifecycle)
	}

	payload, err := json.Marshal(stalePayload{RequestID: requestID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(taskType, payload)
	_, err = client.Enqueue(task, asynq.ProcessIn(after), asynq.Queue("low"))
	return err
}
