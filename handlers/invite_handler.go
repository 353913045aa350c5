package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pongarena/backend/middleware"
	"github.com/pongarena/backend/services"
)

type InviteHandler struct {
	invites *services.InviteService
}

func NewInviteHandler(invites *services.InviteService) *InviteHandler {
	return &InviteHandler{invites: invites}
}

func (h *InviteHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var input struct {
		ReceiverID int `json:"receiver_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	inv, err := h.invites.Invite(r.Context(), identity.UserID, input.ReceiverID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	_ = writeJSON(w, http.StatusCreated, jsonResponse{"invitation": inv})
}

// Accept consumes the invitation and returns the match both players
// should connect to.
func (h *InviteHandler) Accept(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "invitationID"))
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid invitation ID")
		return
	}

	match, err := h.invites.Accept(r.Context(), id, identity.UserID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, jsonResponse{"match": match})
}
