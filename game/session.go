package game

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pongarena/backend/models"
)

// Tick cadence of the authoritative simulation. Every tick pushes a full
// gameState snapshot; every scoreBroadcastEvery ticks a score frame goes
// out regardless of scoring events.
const (
	DefaultTickInterval = 100 * time.Millisecond

	scoreBroadcastEvery = 10
)

// State is the lifecycle phase of a live session.
type State int

const (
	StateAwaitingPlayers State = iota
	StateRunning
	StateCompleted
	StateInterrupted
)

func (s State) String() string {
	switch s {
	case StateAwaitingPlayers:
		return "awaiting_players"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the session can never run again.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateInterrupted
}

// Store is the narrow persistence contract the session engine writes
// through. Calls are awaited inside state transitions: a transition is not
// considered done (and nothing is broadcast) until its writes returned.
type Store interface {
	LoadMatch(ctx context.Context, id int) (*models.Match, error)
	SaveMatchStatus(ctx context.Context, id int, status models.MatchStatus) error
	SaveMatchScore(ctx context.Context, id, scoreP1, scoreP2 int) error
	SaveMatchWinner(ctx context.Context, id, winnerID int) error
	IncrementPlayerStats(ctx context.Context, winnerID, loserID int) error
	SetMatchStarted(ctx context.Context, id int, at time.Time) error
}

// Broadcaster publishes a payload to every subscriber of a topic.
// Delivery is best effort; the next tick resends current state anyway.
type Broadcaster interface {
	Publish(topic string, payload any)
}

// TopicCloser is optionally implemented by a Broadcaster that can close
// every connection still subscribed to a topic.
type TopicCloser interface {
	CloseTopic(topic string)
}

// GroupName is the broadcast topic of a match.
func GroupName(matchID int) string {
	return fmt.Sprintf("game_%d", matchID)
}

// Session owns one match's live simulation: physics state, scores,
// readiness and connection flags, and the tick loop. All mutable state is
// guarded by a single mutex shared between the tick loop and inbound
// input handlers.
type Session struct {
	matchID int
	topic   string
	store   Store
	hub     Broadcaster
	log     *slog.Logger

	// onFinished receives (tournamentID, matchID) after a terminal
	// transition of a tournament match; onTerminal evicts the session
	// from its registry. Both run on their own goroutine so the
	// coordinator and registry locks never nest inside the session lock.
	onFinished func(tournamentID, matchID int)
	onTerminal func(matchID int)

	tickInterval time.Duration
	cancelTick   context.CancelFunc
	done         chan struct{}

	mu        sync.Mutex
	match     *models.Match
	state     State
	ball      Ball
	paddles   [2]Paddle
	score     [2]int
	ready     [2]bool
	connected [2]bool
	names     [2]string
}

// NewSession builds the in-memory counterpart of a persisted match.
func NewSession(
	match *models.Match,
	store Store,
	hub Broadcaster,
	log *slog.Logger,
	onFinished func(tournamentID, matchID int),
	onTerminal func(matchID int),
) *Session {
	s := &Session{
		matchID:      match.ID,
		topic:        GroupName(match.ID),
		store:        store,
		hub:          hub,
		log:          log.With(slog.Int("match_id", match.ID)),
		onFinished:   onFinished,
		onTerminal:   onTerminal,
		tickInterval: DefaultTickInterval,
		done:         make(chan struct{}),
		match:        match,
		state:        StateAwaitingPlayers,
	}
	s.resetPositionsLocked()
	return s
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Score returns the current score pair.
func (s *Session) Score() [2]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

// Topic returns the broadcast topic of this session's match.
func (s *Session) Topic() string {
	return s.topic
}

// HandleConnect marks a side connected and reports whether both sides are
// now attached (which cancels the join-grace guard).
func (s *Session) HandleConnect(side int, username string) (bothConnected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected[side] = true
	s.names[side] = username
	return s.connected[0] && s.connected[1]
}

// PeerState exposes the given side's connection/readiness flags so a late
// joiner can be brought up to date on arrival instead of waiting for the
// next event.
func (s *Session) PeerState(side int) (connected, ready bool, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected[side], s.ready[side], s.names[side]
}

// HandleReady records a readiness signal. Repeats are no-ops. Once both
// sides are ready the match transitions to running exactly once; if the
// status write fails the transition aborts and a later ready frame
// retries it.
func (s *Session) HandleReady(ctx context.Context, side int) error {
	s.mu.Lock()
	if s.state != StateAwaitingPlayers {
		s.mu.Unlock()
		return nil
	}
	first := !s.ready[side]
	s.ready[side] = true
	both := s.ready[0] && s.ready[1]
	s.mu.Unlock()

	if first {
		s.hub.Publish(s.topic, NewPlayerReady(side))
	}
	if !both {
		return nil
	}
	return s.start(ctx)
}

func (s *Session) start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.state != StateAwaitingPlayers {
		s.mu.Unlock()
		cancel()
		return nil
	}
	if err := s.store.SaveMatchStatus(ctx, s.matchID, models.MatchStatusInProgress); err != nil {
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("start match %d: %w", s.matchID, err)
	}
	s.state = StateRunning
	s.cancelTick = cancel
	snapshot := NewGameState(s.ball, s.paddles)
	s.mu.Unlock()

	s.hub.Publish(s.topic, snapshot)
	go s.run(loopCtx)
	s.log.Info("match started")
	return nil
}

// HandleKey applies a key event to the side's paddle velocity. Events
// overwrite the velocity directly, so repeats are harmless and a
// keydown/keyup pair always nets out to zero.
func (s *Session) HandleKey(side int, ev InboundEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return
	}
	switch ev.Kind {
	case InboundKeyDown:
		if ev.Key == KeyUp {
			s.paddles[side].Moving = -PaddleSpeed
		} else {
			s.paddles[side].Moving = PaddleSpeed
		}
	case InboundKeyUp:
		s.paddles[side].Moving = 0
	default:
	}
}

// HandleDisconnect marks the side gone. A disconnect mid-run finalizes
// the match as interrupted with the leading side as winner. Before the
// start, losing the last connection evicts the session so a fresh one
// (with a fresh join-grace guard) is built on the next connect.
func (s *Session) HandleDisconnect(ctx context.Context, side int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected[side] = false
	s.ready[side] = false
	if s.state != StateRunning {
		if s.state == StateAwaitingPlayers && !s.connected[0] && !s.connected[1] && s.onTerminal != nil {
			mid := s.matchID
			go s.onTerminal(mid)
		}
		return nil
	}

	winner := s.winnerByScoreLocked()
	if err := s.finalizeLocked(ctx, models.MatchStatusInterrupted, winner); err != nil {
		return err
	}
	s.hub.Publish(s.topic, NewEndGameMessage("User disconnected"))
	return nil
}

// InterruptTimeout ends a session whose opponent never joined within the
// grace window. A session that already started (or already ended) is left
// alone.
func (s *Session) InterruptTimeout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingPlayers {
		return nil
	}
	if err := s.store.SaveMatchStatus(ctx, s.matchID, models.MatchStatusInterrupted); err != nil {
		return fmt.Errorf("interrupt match %d on timeout: %w", s.matchID, err)
	}
	s.state = StateInterrupted
	s.hub.Publish(s.topic, NewEndGameMessage("Game join timeout"))
	if closer, ok := s.hub.(TopicCloser); ok {
		closer.CloseTopic(s.topic)
	}
	s.notifyLocked()
	s.log.Info("match interrupted, opponent never joined")
	return nil
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	counter := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counter++
			if stop := s.step(ctx, counter); stop {
				return
			}
		}
	}
}

// step runs one simulation tick. It returns true when the loop must stop.
func (s *Session) step(ctx context.Context, counter int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return true
	}

	if counter%scoreBroadcastEvery == 0 {
		s.hub.Publish(s.topic, NewScoreUpdate(s.score))
	}

	if s.score[0] >= WinningScore || s.score[1] >= WinningScore {
		winner := 0
		if s.score[1] >= WinningScore {
			winner = 1
		}
		if err := s.finalizeLocked(ctx, models.MatchStatusCompleted, &winner); err != nil {
			// Transition aborted; the match stays running and the next
			// tick retries the finalize.
			s.log.Error("failed to finalize match", slog.Any("error", err))
			return false
		}
		return true
	}

	s.ball.Update()
	s.paddles[0].Update()
	s.paddles[1].Update()

	for i := range s.paddles {
		if s.ball.Collides(&s.paddles[i]) {
			s.ball.CalculateAngle(&s.paddles[i])
		}
	}

	if s.ball.X < s.paddles[0].X {
		s.resetPositionsLocked()
		s.score[1]++
		s.hub.Publish(s.topic, NewScoreUpdate(s.score))
	} else if s.ball.X+BallSize > s.paddles[1].X+PaddleWidth {
		s.resetPositionsLocked()
		s.score[0]++
		s.hub.Publish(s.topic, NewScoreUpdate(s.score))
	}

	s.hub.Publish(s.topic, NewGameState(s.ball, s.paddles))
	return false
}

// finalizeLocked runs the terminal transition: persist score, stats,
// winner and status, stop the tick loop, then broadcast endGame and fire
// the termination hooks. Any persistence failure aborts the transition
// before anything is broadcast.
func (s *Session) finalizeLocked(ctx context.Context, status models.MatchStatus, winnerSide *int) error {
	if err := s.store.SaveMatchScore(ctx, s.matchID, s.score[0], s.score[1]); err != nil {
		return fmt.Errorf("save score for match %d: %w", s.matchID, err)
	}

	if winnerSide != nil {
		winnerID := s.match.PlayerIDOf(*winnerSide)
		loserID := s.match.PlayerIDOf(1 - *winnerSide)
		if winnerID != nil && loserID != nil {
			if err := s.store.IncrementPlayerStats(ctx, *winnerID, *loserID); err != nil {
				return fmt.Errorf("update stats for match %d: %w", s.matchID, err)
			}
		}
		if winnerID != nil {
			if err := s.store.SaveMatchWinner(ctx, s.matchID, *winnerID); err != nil {
				return fmt.Errorf("save winner for match %d: %w", s.matchID, err)
			}
		}
	}

	if err := s.store.SaveMatchStatus(ctx, s.matchID, status); err != nil {
		return fmt.Errorf("save status for match %d: %w", s.matchID, err)
	}

	if status == models.MatchStatusCompleted {
		s.state = StateCompleted
	} else {
		s.state = StateInterrupted
	}
	if s.cancelTick != nil {
		s.cancelTick()
	}

	s.hub.Publish(s.topic, NewEndGame(s.score))
	s.notifyLocked()
	s.log.Info("match finalized",
		slog.String("status", string(status)),
		slog.Int("score_p1", s.score[0]),
		slog.Int("score_p2", s.score[1]),
	)
	return nil
}

// winnerByScoreLocked applies the interruption tie-break: the leading side
// wins, a tied score records no winner.
func (s *Session) winnerByScoreLocked() *int {
	switch {
	case s.score[0] > s.score[1]:
		side := 0
		return &side
	case s.score[1] > s.score[0]:
		side := 1
		return &side
	default:
		return nil
	}
}

func (s *Session) notifyLocked() {
	if s.onFinished != nil && s.match.TournamentID != nil {
		tid := *s.match.TournamentID
		mid := s.matchID
		go s.onFinished(tid, mid)
	}
	if s.onTerminal != nil {
		mid := s.matchID
		go s.onTerminal(mid)
	}
}

// resetPositionsLocked restores the canonical serve layout after a point.
func (s *Session) resetPositionsLocked() {
	s.ball = NewBall()
	s.paddles[0] = NewPaddle(0)
	s.paddles[1] = NewPaddle(1)
}
