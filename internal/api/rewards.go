package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"ecycle/internal/auth"
)

func (h *handlers) listRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.points.Rewards(r.Context())
	if err != nil {
		WriteServiceError(w, err, h.Log)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"items": rewards})
}

func (h *handlers) redeemReward(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.GetActor(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized", "Missing actor", h.Log)
		return
	}

	if _, err := h.actors.Ensure(r.Context(), actor); err != nil {
		WriteServiceError(w, err, h.Log)
		return
	}

	redemption, err := h.points.Redeem(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		WriteServiceError(w, err, h.Log)
		return
	}
	WriteJSON(w, http.StatusCreated, redemption)
}

// me returns the authenticated actor's profile and current points balance.
func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.GetActor(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized", "Missing actor", h.Log)
		return
	}

	profile, err := h.actors.Ensure(r.Context(), actor)
	if err != nil {
		WriteServiceError(w, err, h.Log)
		return
	}
	WriteJSON(w, http.StatusOK, profile)
}
