package game

import (
	"encoding/json"
	"fmt"
)

// InboundKind enumerates every message a client may send on the match
// channel. Parsing into a closed set keeps the dispatch switch exhaustive
// instead of branching on raw type strings all over the gateway.
type InboundKind int

const (
	InboundUnknown InboundKind = iota
	InboundReady
	InboundKeyDown
	InboundKeyUp
)

const (
	KeyUp   = "w"
	KeyDown = "s"
)

// InboundEvent is one parsed client frame.
type InboundEvent struct {
	Kind InboundKind
	Key  string
}

// ParseInbound decodes a raw websocket frame into an InboundEvent. Frames
// with an unknown type, or key events with a key other than "w"/"s", come
// back as InboundUnknown and are ignored by the caller.
func ParseInbound(data []byte) (InboundEvent, error) {
	var frame struct {
		Type string `json:"type"`
		Key  string `json:"key"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return InboundEvent{}, fmt.Errorf("malformed frame: %w", err)
	}

	switch frame.Type {
	case "ready":
		return InboundEvent{Kind: InboundReady}, nil
	case "keydown":
		if frame.Key != KeyUp && frame.Key != KeyDown {
			return InboundEvent{}, nil
		}
		return InboundEvent{Kind: InboundKeyDown, Key: frame.Key}, nil
	case "keyup":
		if frame.Key != KeyUp && frame.Key != KeyDown {
			return InboundEvent{}, nil
		}
		return InboundEvent{Kind: InboundKeyUp, Key: frame.Key}, nil
	default:
		return InboundEvent{}, nil
	}
}

// Outbound frames published on the match topic or sent to a single socket.
// Constructors bake in the wire "type" tag so callers cannot mislabel one.

type ConnectionEstablished struct {
	Type   string `json:"type"`
	Side   int    `json:"side"`
	GameID int    `json:"game_id"`
}

func NewConnectionEstablished(side, gameID int) ConnectionEstablished {
	return ConnectionEstablished{Type: "connection_established", Side: side, GameID: gameID}
}

type PlayerConnected struct {
	Type   string `json:"type"`
	Player string `json:"player"`
	Side   int    `json:"side"`
}

func NewPlayerConnected(player string, side int) PlayerConnected {
	return PlayerConnected{Type: "player_connected", Player: player, Side: side}
}

type PlayerDisconnected struct {
	Type string `json:"type"`
	Side int    `json:"side"`
}

func NewPlayerDisconnected(side int) PlayerDisconnected {
	return PlayerDisconnected{Type: "player_disconnected", Side: side}
}

type PlayerReady struct {
	Type string `json:"type"`
	Side int    `json:"side"`
}

func NewPlayerReady(side int) PlayerReady {
	return PlayerReady{Type: "player_ready", Side: side}
}

type BallState struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	SpeedX float64 `json:"speed_x"`
	SpeedY float64 `json:"speed_y"`
}

type PaddleState struct {
	Y float64 `json:"y"`
}

type GameState struct {
	Type    string         `json:"type"`
	Ball    BallState      `json:"ball"`
	Paddles [2]PaddleState `json:"paddles"`
}

// NewGameState snapshots the simulation with all coordinates truncated to
// two decimal places, matching what clients render.
func NewGameState(ball Ball, paddles [2]Paddle) GameState {
	return GameState{
		Type: "gameState",
		Ball: BallState{
			X:      truncate2(ball.X),
			Y:      truncate2(ball.Y),
			SpeedX: truncate2(ball.SpeedX),
			SpeedY: truncate2(ball.SpeedY),
		},
		Paddles: [2]PaddleState{
			{Y: truncate2(paddles[0].Y)},
			{Y: truncate2(paddles[1].Y)},
		},
	}
}

type ScoreUpdate struct {
	Type  string `json:"type"`
	Score [2]int `json:"score"`
}

func NewScoreUpdate(score [2]int) ScoreUpdate {
	return ScoreUpdate{Type: "score", Score: score}
}

type EndGame struct {
	Type    string  `json:"type"`
	Score   *[2]int `json:"score,omitempty"`
	Message string  `json:"message,omitempty"`
}

func NewEndGame(score [2]int) EndGame {
	return EndGame{Type: "endGame", Score: &score}
}

func NewEndGameMessage(message string) EndGame {
	return EndGame{Type: "endGame", Message: message}
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: "error", Message: message}
}
