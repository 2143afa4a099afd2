package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ecycle/internal/auth"
)

func (h *handlers) createPickup(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.GetActor(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized", "Missing actor", h.Log)
		return
	}

	var body struct {
		Payload map[string]interface{} `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Payload == nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", h.Log)
		return
	}

	if _, err := h.actors.Ensure(r.Context(), actor); err != nil {
		WriteServiceError(w, err, h.Log)
		return
	}

	req, err := h.pickups.Create(r.Context(), actor, body.Payload)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "create_failed", err.Error(), h.Log)
		return
	}

	WriteJSON(w, http.StatusCreated, req)
}

func (h *handlers) getPickup(w http.ResponseWriter, r *http.Request) {
	req, err := h.pickups.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteServiceError(w, err, h.Log)
		return
	}
	WriteJSON(w, http.StatusOK, req)
}

func (h *handlers) listPickups(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.GetActor(r.Context())
	status := queryStatus(r)
	limit, offset := pagination(r)

	requests, err := h.pickups.List(r.Context(), actor, status, limit, offset)
	if err != nil {
		WriteServiceError(w, err, h.Log)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"items": requests})
}

func (h *handlers) acceptPickup(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.GetActor(r.Context())

	// First contact for most recyclers; handler_id references actors.
	if _, err := h.actors.Ensure(r.Context(), actor); err != nil {
		WriteServiceError(w, err, h.Log)
		return
	}

	req, err := h.pickups.Accept(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		WriteServiceError(w, err, h.Log)
		return
	}
	WriteJSON(w, http.StatusOK, req)
}

func (h *handlers) completePickup(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.GetActor(r.Context())

	req, err := h.pickups.Complete(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		WriteServiceError(w, err, h.Log)
		return
	}
	WriteJSON(w, http.StatusOK, req)
}

func (h *handlers) cancelPickup(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.GetActor(r.Context())

	req, err := h.pickups.Cancel(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		WriteServiceError(w, err, h.Log)
		return
	}
	WriteJSON(w, http.StatusOK, req)
}
