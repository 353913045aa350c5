package game

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/pongarena/backend/models"
)

// Admission errors. The text of each is the error frame sent to the
// rejected connection before it is closed.
var (
	ErrNoGameID     = errors.New("No game ID provided")
	ErrGameNotFound = errors.New("Game not found")
	ErrNotAPlayer   = errors.New("You are not a player in this game")
	ErrGameFinished = errors.New("Game is finished")
)

// Admit validates a connection attempt against the persisted match and
// returns the match plus the caller's side. It mutates nothing: a
// rejected caller leaves no trace.
func Admit(ctx context.Context, store Store, gameID string, userID int) (*models.Match, int, error) {
	if gameID == "" {
		return nil, 0, ErrNoGameID
	}
	id, err := strconv.Atoi(gameID)
	if err != nil {
		return nil, 0, ErrGameNotFound
	}

	match, err := store.LoadMatch(ctx, id)
	if err != nil {
		if errors.Is(err, ErrGameNotFound) {
			return nil, 0, ErrGameNotFound
		}
		return nil, 0, err
	}

	side, ok := match.SideOf(userID)
	if !ok {
		return nil, 0, ErrNotAPlayer
	}
	if match.WinnerID != nil || match.Status.Terminal() {
		return nil, 0, ErrGameFinished
	}
	return match, side, nil
}

// Conn is the transport half the gateway drives: a direct frame to this
// one socket, and the ability to close it.
type Conn interface {
	Send(v any) error
	Close()
}

// Gateway is the per-connection actor for one admitted participant. It
// translates inbound frames into session events and announces this side's
// lifecycle on the match topic.
type Gateway struct {
	session  *Session
	registry *Registry
	hub      Broadcaster
	conn     Conn
	log      *slog.Logger

	matchID  int
	side     int
	username string
}

func NewGateway(
	session *Session,
	registry *Registry,
	hub Broadcaster,
	conn Conn,
	log *slog.Logger,
	side int,
	username string,
) *Gateway {
	return &Gateway{
		session:  session,
		registry: registry,
		hub:      hub,
		conn:     conn,
		log:      log.With(slog.Int("match_id", session.matchID), slog.Int("side", side)),
		matchID:  session.matchID,
		side:     side,
		username: username,
	}
}

// Connect attaches this side to the session and brings both ends up to
// date: the caller gets its side assignment plus a replay of the peer's
// current connection/readiness state, and the topic learns about the new
// arrival. Send failures are best effort throughout.
func (g *Gateway) Connect() {
	if both := g.session.HandleConnect(g.side, g.username); both {
		g.registry.CancelGuard(g.matchID)
	}

	if err := g.conn.Send(NewConnectionEstablished(g.side, g.matchID)); err != nil {
		g.log.Debug("failed to send connection_established", slog.Any("error", err))
	}

	peer := 1 - g.side
	if connected, ready, name := g.session.PeerState(peer); connected {
		if err := g.conn.Send(NewPlayerConnected(name, peer)); err != nil {
			g.log.Debug("failed to replay peer connection", slog.Any("error", err))
		}
		if ready {
			if err := g.conn.Send(NewPlayerReady(peer)); err != nil {
				g.log.Debug("failed to replay peer readiness", slog.Any("error", err))
			}
		}
	}

	g.hub.Publish(g.session.Topic(), NewPlayerConnected(g.username, g.side))
}

// HandleMessage dispatches one inbound frame. Unknown frames are dropped,
// matching the tolerance of the wire protocol.
func (g *Gateway) HandleMessage(ctx context.Context, data []byte) {
	ev, err := ParseInbound(data)
	if err != nil {
		g.log.Debug("dropping malformed frame", slog.Any("error", err))
		return
	}

	switch ev.Kind {
	case InboundReady:
		if err := g.session.HandleReady(ctx, g.side); err != nil {
			g.log.Error("readiness handling failed", slog.Any("error", err))
		}
	case InboundKeyDown, InboundKeyUp:
		g.session.HandleKey(g.side, ev)
	case InboundUnknown:
		// Tolerated and dropped.
	}
}

// HandleClose runs when the transport goes away: the topic hears about
// the departure and the session decides whether this interrupts the match.
func (g *Gateway) HandleClose(ctx context.Context) {
	g.hub.Publish(g.session.Topic(), NewPlayerDisconnected(g.side))
	if err := g.session.HandleDisconnect(ctx, g.side); err != nil {
		g.log.Error("disconnect handling failed", slog.Any("error", err))
	}
}
