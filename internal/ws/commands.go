package ws

import (
	"context"

	"go.uber.org/zap"

	"ecycle/internal/lifecycle"
	"ecycle/internal/liveview"
	"ecycle/internal/model"
)

// CommandHandler processes request/response style commands sent over an
// established WebSocket connection. Snapshots are answered from the server's
// live views, so a freshly connected dashboard gets a consistent starting
// state without a REST round trip, then folds the feed on top of it.
type CommandHandler struct {
	repairView *liveview.Store
	pickupView *liveview.Store
	log        *zap.Logger
}

func NewCommandHandler(repairView, pickupView *liveview.Store, log *zap.Logger) *CommandHandler {
	return &CommandHandler{
		repairView: repairView,
		pickupView: pickupView,
		log:        log,
	}
}

// HandleCommand processes a WebSocket command
func (h *CommandHandler) HandleCommand(ctx context.Context, conn *Conn, cmd map[string]interface{}) {
	op, _ := cmd["op"].(string)
	data, _ := cmd["data"].(map[string]interface{})
	msgID, _ := cmd["id"].(string)

	switch op {
	case "snapshot":
		h.handleSnapshot(conn, msgID, data)
	default:
		h.sendError(conn, msgID, "unknown_command", "Unknown command: "+op)
	}
}

func (h *CommandHandler) handleSnapshot(conn *Conn, msgID string, data map[string]interface{}) {
	table, _ := data["table"].(string)

	var view *liveview.Store
	var handlerRole model.Role
	switch table {
	case "repairs":
		view, handlerRole = h.repairView, lifecycle.Repair.HandlerRole()
	case "pickups":
		view, handlerRole = h.pickupView, lifecycle.Pickup.HandlerRole()
	default:
		h.sendError(conn, msgID, "invalid_input", "table must be repairs or pickups")
		return
	}
	if view == nil {
		h.sendError(conn, msgID, "unavailable", "live view not running")
		return
	}

	items := make([]liveview.Record, 0)
	for _, rec := range view.Snapshot() {
		if visibleTo(conn.actor, handlerRole, rec) {
			items = append(items, rec)
		}
	}

	conn.sendJSON(map[string]interface{}{
		"type":  "result",
		"id":    msgID,
		"table": table,
		"items": items,
	})
}

// visibleTo applies the same role/ownership rules the REST list endpoints
// use: requesters see their own rows, the table's handler role and admins
// see everything.
func visibleTo(actor model.Actor, handlerRole model.Role, rec liveview.Record) bool {
	if actor.Role == model.RoleAdmin || actor.Role == handlerRole {
		return true
	}
	requesterID, _ := rec["requesterId"].(string)
	return requesterID == actor.ID
}

func (h *CommandHandler) sendError(conn *Conn, msgID, code, message string) {
	h.log.Warn("WebSocket command failed",
		zap.String("code", code),
		zap.String("message", message),
	)
	conn.sendJSON(map[string]interface{}{
		"type":    "error",
		"id":      msgID,
		"code":    code,
		"message": message,
	})
}
