package api

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ecycle/internal/auth"
	"ecycle/internal/ws"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Dashboards are served from configurable origins; the token gate in
		// the JWT middleware is the real barrier here.
		return true
	},
}

func (h *handlers) wsHandler(w http.ResponseWriter, r *http.Request) {
	if h.Hub == nil {
		h.Log.Error("WebSocket hub not initialized")
		http.Error(w, "WebSocket hub not initialized", http.StatusInternalServerError)
		return
	}

	actor, ok := auth.GetActor(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	h.Log.Info("WebSocket connection established",
		zap.String("actor", actor.ID),
		zap.String("role", string(actor.Role)),
	)

	wsConn := ws.NewConn(conn, h.Hub, actor)
	h.Hub.Register(wsConn)

	go wsConn.WritePump()
	go wsConn.ReadPump()
}
