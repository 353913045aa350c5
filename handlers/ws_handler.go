package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pongarena/backend/game"
	"github.com/pongarena/backend/middleware"
	"github.com/pongarena/backend/realtime"
	"github.com/pongarena/backend/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin filtering is handled by the deployment proxy.
		return true
	},
}

type userStatusEvent struct {
	Type     string `json:"type"`
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

// WebSocketHandler upgrades and dispatches every realtime endpoint: match
// channels, tournament rooms, invitation rooms and the global presence
// feed.
type WebSocketHandler struct {
	hub         *realtime.Hub
	registry    *game.Registry
	store       game.Store
	tournaments *services.TournamentService
	auth        *middleware.Authenticator
	log         *slog.Logger
}

func NewWebSocketHandler(
	hub *realtime.Hub,
	registry *game.Registry,
	store game.Store,
	tournaments *services.TournamentService,
	auth *middleware.Authenticator,
	log *slog.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		registry:    registry,
		store:       store,
		tournaments: tournaments,
		auth:        auth,
		log:         log,
	}
}

// upgrade accepts the socket and wires the write pump so rejection frames
// can still be flushed before closing.
func (h *WebSocketHandler) upgrade(w http.ResponseWriter, r *http.Request) (*realtime.Client, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	client := realtime.NewClient(h.hub, conn, h.log)
	go client.WritePump()
	return client, nil
}

// reject sends a single error frame and closes the connection, the shape
// every admission failure takes on the wire.
func (h *WebSocketHandler) reject(client *realtime.Client, message string) {
	if err := client.Send(game.NewErrorEvent(message)); err != nil {
		h.log.Debug("failed to send rejection frame", slog.Any("error", err))
	}
	client.Close()
}

// ServeGame handles the match channel: /ws/game/{gameID}.
func (h *WebSocketHandler) ServeGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	identity, authErr := h.auth.FromRequest(r)

	client, err := h.upgrade(w, r)
	if err != nil {
		h.log.Debug("websocket upgrade failed", slog.Any("error", err))
		return
	}
	if authErr != nil {
		h.reject(client, "Unauthorized")
		return
	}

	match, side, err := game.Admit(r.Context(), h.store, gameID, identity.UserID)
	if err != nil {
		h.reject(client, admissionMessage(err))
		return
	}

	session, _ := h.registry.GetOrCreate(match.ID, func() *game.Session {
		return game.NewSession(match, h.store, h.hub, h.log, h.onGameOver, h.registry.Remove)
	})

	if err := h.store.SetMatchStarted(r.Context(), match.ID, time.Now()); err != nil {
		h.log.Error("failed to record match date", slog.Int("match_id", match.ID), slog.Any("error", err))
	}

	h.hub.Subscribe(session.Topic(), client)

	gw := game.NewGateway(session, h.registry, h.hub, client, h.log, side, identity.Username)
	client.OnMessage = func(data []byte) {
		gw.HandleMessage(context.Background(), data)
	}
	client.OnClose = func() {
		gw.HandleClose(context.Background())
		h.publishPresence(identity, false)
		if session.State().Terminal() {
			h.registry.Remove(match.ID)
		}
	}
	go client.ReadPump()

	gw.Connect()
	h.publishPresence(identity, true)
}

// ServeTournament handles the tournament room: /ws/tournaments/{tournamentID}.
func (h *WebSocketHandler) ServeTournament(w http.ResponseWriter, r *http.Request) {
	identity, authErr := h.auth.FromRequest(r)
	tournamentID, idErr := strconv.Atoi(chi.URLParam(r, "tournamentID"))

	client, err := h.upgrade(w, r)
	if err != nil {
		h.log.Debug("websocket upgrade failed", slog.Any("error", err))
		return
	}
	if authErr != nil {
		h.reject(client, "Unauthorized")
		return
	}
	if idErr != nil {
		h.reject(client, "Tournament not found")
		return
	}

	// Room topic for shared events plus a private topic: start_game is
	// addressed to a single participant and must not reach the room.
	topic := services.TournamentTopic(tournamentID)
	h.hub.Subscribe(topic, client)
	h.hub.Subscribe(services.TournamentParticipantTopic(tournamentID, identity.UserID), client)

	if _, err := h.tournaments.HandleConnect(r.Context(), tournamentID, identity.UserID); err != nil {
		h.hub.Drop(client)
		h.reject(client, tournamentRejectionMessage(err))
		return
	}

	client.OnMessage = func(data []byte) {
		var frame struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type != "start" {
			return
		}
		if err := h.tournaments.HandleStart(context.Background(), tournamentID, identity.UserID); err != nil {
			h.log.Error("start signal handling failed",
				slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		}
	}
	client.OnClose = func() {
		h.hub.Publish(topic, jsonResponse{
			"message": identity.Username + " disconnected from the tournament.",
		})
	}
	go client.ReadPump()
}

// ServeInvitation handles the invitation room relay: /ws/invitations/{room}.
func (h *WebSocketHandler) ServeInvitation(w http.ResponseWriter, r *http.Request) {
	_, authErr := h.auth.FromRequest(r)
	room := chi.URLParam(r, "room")

	client, err := h.upgrade(w, r)
	if err != nil {
		h.log.Debug("websocket upgrade failed", slog.Any("error", err))
		return
	}
	if authErr != nil {
		h.reject(client, "Unauthorized")
		return
	}
	if room == "" {
		h.reject(client, "No invitation room provided")
		return
	}

	h.hub.Subscribe(services.InvitationTopic(room), client)
	go client.ReadPump()
}

// ServeOnlineStatus subscribes the caller to the global presence feed.
func (h *WebSocketHandler) ServeOnlineStatus(w http.ResponseWriter, r *http.Request) {
	_, authErr := h.auth.FromRequest(r)

	client, err := h.upgrade(w, r)
	if err != nil {
		h.log.Debug("websocket upgrade failed", slog.Any("error", err))
		return
	}
	if authErr != nil {
		h.reject(client, "Unauthorized")
		return
	}

	h.hub.Subscribe(realtime.OnlineStatusTopic, client)
	go client.ReadPump()
}

// onGameOver forwards session terminations of tournament matches to the
// bracket coordinator.
func (h *WebSocketHandler) onGameOver(tournamentID, matchID int) {
	if err := h.tournaments.HandleGameOver(context.Background(), tournamentID, matchID); err != nil {
		h.log.Error("bracket advancement failed",
			slog.Int("tournament_id", tournamentID),
			slog.Int("game_id", matchID),
			slog.Any("error", err))
	}
}

func (h *WebSocketHandler) publishPresence(identity *middleware.Identity, online bool) {
	h.hub.Publish(realtime.OnlineStatusTopic, userStatusEvent{
		Type:     "user_status",
		UserID:   identity.UserID,
		Username: identity.Username,
		Online:   online,
	})
}

// admissionMessage keeps internal errors off the wire: only the known
// rejection texts reach a client.
func admissionMessage(err error) string {
	switch {
	case errors.Is(err, game.ErrNoGameID),
		errors.Is(err, game.ErrGameNotFound),
		errors.Is(err, game.ErrNotAPlayer),
		errors.Is(err, game.ErrGameFinished):
		return err.Error()
	default:
		return "Internal error"
	}
}

func tournamentRejectionMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrTournamentNotFound):
		return "Tournament not found"
	case errors.Is(err, services.ErrNotAParticipant):
		return "You are not a participant in this tournament"
	case errors.Is(err, services.ErrTournamentNotOngoing):
		return "Tournament is not ongoing"
	default:
		return "Internal error"
	}
}
