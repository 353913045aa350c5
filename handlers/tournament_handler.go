package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pongarena/backend/middleware"
	"github.com/pongarena/backend/services"
)

// TournamentHandler exposes the small HTTP surface around tournaments:
// creation, joining and reading the bracket. The live room itself is a
// websocket concern.
type TournamentHandler struct {
	tournaments *services.TournamentService
}

func NewTournamentHandler(tournaments *services.TournamentService) *TournamentHandler {
	return &TournamentHandler{tournaments: tournaments}
}

func (h *TournamentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name string `json:"name"`
	}
	if err := readJSON(w, r, &input); err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.tournaments.Create(r.Context(), input.Name)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	_ = writeJSON(w, http.StatusCreated, jsonResponse{"tournament": t})
}

func (h *TournamentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "tournamentID"))
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid tournament ID")
		return
	}

	t, err := h.tournaments.Snapshot(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, jsonResponse{"tournament": t})
}

// Join registers the authenticated caller. The fourth join pairs the
// bracket, so the returned snapshot may already carry the semifinals.
func (h *TournamentHandler) Join(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "tournamentID"))
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid tournament ID")
		return
	}

	t, err := h.tournaments.Join(r.Context(), id, identity.UserID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, jsonResponse{"tournament": t})
}
