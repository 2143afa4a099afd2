package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ecycle/internal/auth"
	"ecycle/internal/lifecycle"
	"ecycle/internal/model"
)

func (h *handlers) createRepair(w http.ResponseWriter, r *http.Request) {
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

	// Make sure the ledger has a row for this actor before anything else
	// references it.
	if _, err := h.actors.Ensure(r.Context(), actor); err != nil {
		WriteServiceError(w, err, h.Log)
		return
	}

	req, err := h.repairs.Create(r.Context(), actor, body.Payload)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "create_failed", err.Error(), h.Log)
		return
	}

	WriteJSON(w, http.StatusCreated, req)
}

func (h *handlers) getRepair(w http.ResponseWriter, r *http.Request) {
	req, err := h.repairs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteServiceError(w, err, h.Log)
		return
	}
	WriteJSON(w, http.StatusOK, req)
}

func (h *handlers) listRepairs(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.GetActor(r.Context())
	status := queryStatus(r)
	limit, offset := pagination(r)

	requests, err := h.repairs.List(r.Context(), actor, status, limit, offset)
	if err != nil {
		WriteServiceError(w, err, h.Log)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"items": requests})
}

func (h *handlers) acceptRepair(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.GetActor(r.Context())

	// The accepting technician may be hitting the service for the first
	// time; the handler_id column references actors.
	if _, err := h.actors.Ensure(r.Context(), actor); err != nil {
		WriteServiceError(w, err, h.Log)
		return
	}

	req, err := h.repairs.Accept(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		WriteServiceError(w, err, h.Log)
		return
	}
	WriteJSON(w, http.StatusOK, req)
}

func (h *handlers) advanceRepair(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.GetActor(r.Context())

	var body struct {
		Status model.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "status required", h.Log)
		return
	}
	if !lifecycle.Repair.Contains(body.Status) {
		WriteError(w, http.StatusBadRequest, "invalid_request", "unknown status", h.Log)
		return
	}

	req, err := h.repairs.Advance(r.Context(), actor, chi.URLParam(r, "id"), body.Status)
	if err != nil {
		WriteServiceError(w, err, h.Log)
		return
	}
	WriteJSON(w, http.StatusOK, req)
}

func (h *handlers) cancelRepair(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.GetActor(r.Context())

	req, err := h.repairs.Cancel(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		WriteServiceError(w, err, h.Log)
		return
	}
	WriteJSON(w, http.StatusOK, req)
}

func (h *handlers) setRepairEstimate(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.GetActor(r.Context())

	var body struct {
		Field string          `json:"field"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", h.Log)
		return
	}

	field := lifecycle.EstimateField(body.Field)
	var value interface{}
	switch field {
	case lifecycle.EstimateCost:
		var cost float64
		if err := json.Unmarshal(body.Value, &cost); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request", "cost must be a number", h.Log)
			return
		}
		value = cost
	case lifecycle.EstimateCompletion:
		var raw string
		if err := json.Unmarshal(body.Value, &raw); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request", "completion must be a timestamp string", h.Log)
			return
		}
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request", "completion must be RFC3339", h.Log)
			return
		}
		value = at
	default:
		WriteError(w, http.StatusBadRequest, "invalid_request", "field must be cost or completion", h.Log)
		return
	}

	req, err := h.repairs.SetEstimate(r.Context(), actor, chi.URLParam(r, "id"), field, value)
	if err != nil {
		WriteServiceError(w, err, h.Log)
		return
	}
	WriteJSON(w, http.StatusOK, req)
}

func (h *handlers) addRepairNote(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.GetActor(r.Context())

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", h.Log)
		return
	}

	ev, err := h.repairs.AddNote(r.Context(), actor, chi.URLParam(r, "id"), body.Text)
	if err != nil {
		WriteServiceError(w, err, h.Log)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"id":      ev.ID,
		"type":    ev.Type,
		"actorId": ev.ActorID,
		"at":      ev.At.Format(time.RFC3339),
		"message": ev.Message(),
	})
}

func (h *handlers) listRepairEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.repairs.Events(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteServiceError(w, err, h.Log)
		return
	}

	items := make([]map[string]interface{}, 0, len(events))
	for _, ev := range events {
		items = append(items, map[string]interface{}{
			"id":      ev.ID,
			"type":    ev.Type,
			"actorId": ev.ActorID,
			"at":      ev.At.Format(time.RFC3339),
			"data":    ev.Data,
			"message": ev.Message(),
		})
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func queryStatus(r *http.Request) *string {
	if s := r.URL.Query().Get("status"); s != "" {
		return &s
	}
	return nil
}

func pagination(r *http.Request) (limit, offset int) {
	limit, offset = 50, 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
