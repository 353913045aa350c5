package game

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pongarena/backend/models"
)

type fakeStore struct {
	mu sync.Mutex

	match      *models.Match
	statuses   []models.MatchStatus
	scores     [][2]int
	winnerID   *int
	statsCalls [][2]int
	started    []time.Time

	failStatus error
	failScore  error
}

func (f *fakeStore) LoadMatch(ctx context.Context, id int) (*models.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.match == nil || f.match.ID != id {
		return nil, ErrGameNotFound
	}
	return f.match, nil
}

func (f *fakeStore) SaveMatchStatus(ctx context.Context, id int, status models.MatchStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStatus != nil {
		return f.failStatus
	}
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeStore) SaveMatchScore(ctx context.Context, id, scoreP1, scoreP2 int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failScore != nil {
		return f.failScore
	}
	f.scores = append(f.scores, [2]int{scoreP1, scoreP2})
	return nil
}

func (f *fakeStore) SaveMatchWinner(ctx context.Context, id, winnerID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.winnerID = &winnerID
	return nil
}

func (f *fakeStore) IncrementPlayerStats(ctx context.Context, winnerID, loserID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsCalls = append(f.statsCalls, [2]int{winnerID, loserID})
	return nil
}

func (f *fakeStore) SetMatchStarted(ctx context.Context, id int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, at)
	return nil
}

func (f *fakeStore) lastStatus() models.MatchStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return ""
	}
	return f.statuses[len(f.statuses)-1]
}

type fakeHub struct {
	mu           sync.Mutex
	events       []any
	closedTopics []string
}

func (h *fakeHub) Publish(topic string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, payload)
}

func (h *fakeHub) CloseTopic(topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closedTopics = append(h.closedTopics, topic)
}

func (h *fakeHub) eventsOfType(target string) []any {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []any
	for _, ev := range h.events {
		switch e := ev.(type) {
		case PlayerReady:
			if e.Type == target {
				out = append(out, e)
			}
		case EndGame:
			if e.Type == target {
				out = append(out, e)
			}
		case ScoreUpdate:
			if e.Type == target {
				out = append(out, e)
			}
		case GameState:
			if e.Type == target {
				out = append(out, e)
			}
		}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMatch() *models.Match {
	p1, p2 := 10, 20
	return &models.Match{
		ID:        7,
		Player1ID: &p1,
		Player2ID: &p2,
		Status:    models.MatchStatusNotStarted,
	}
}

func newTestSession(store Store, hub Broadcaster) *Session {
	return NewSession(testMatch(), store, hub, testLogger(), nil, nil)
}

func TestSession_ReadyStartsOnce(t *testing.T) {
	store := &fakeStore{}
	hub := &fakeHub{}
	s := newTestSession(store, hub)
	ctx := context.Background()

	require.NoError(t, s.HandleReady(ctx, 0))
	assert.Equal(t, StateAwaitingPlayers, s.State())

	// Duplicate readiness from the same side changes nothing.
	require.NoError(t, s.HandleReady(ctx, 0))
	assert.Equal(t, StateAwaitingPlayers, s.State())
	assert.Len(t, hub.eventsOfType("player_ready"), 1)

	require.NoError(t, s.HandleReady(ctx, 1))
	assert.Equal(t, StateRunning, s.State())
	assert.Equal(t, models.MatchStatusInProgress, store.lastStatus())
	assert.Len(t, hub.eventsOfType("player_ready"), 2)

	// Ready frames after the start are no-ops.
	require.NoError(t, s.HandleReady(ctx, 1))
	assert.Len(t, hub.eventsOfType("player_ready"), 2)

	s.cancelTick()
}

func TestSession_StartRetriedByLaterReady(t *testing.T) {
	store := &fakeStore{failStatus: errors.New("db down")}
	hub := &fakeHub{}
	s := newTestSession(store, hub)
	ctx := context.Background()

	require.NoError(t, s.HandleReady(ctx, 0))
	require.Error(t, s.HandleReady(ctx, 1))
	assert.Equal(t, StateAwaitingPlayers, s.State())

	store.mu.Lock()
	store.failStatus = nil
	store.mu.Unlock()

	// Any later ready frame retries the aborted transition.
	require.NoError(t, s.HandleReady(ctx, 1))
	assert.Equal(t, StateRunning, s.State())
	s.cancelTick()
}

func TestSession_HandleKey(t *testing.T) {
	s := newTestSession(&fakeStore{}, &fakeHub{})

	// Input before the match runs is dropped.
	s.HandleKey(0, InboundEvent{Kind: InboundKeyDown, Key: KeyUp})
	assert.Zero(t, s.paddles[0].Moving)

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()

	s.HandleKey(0, InboundEvent{Kind: InboundKeyDown, Key: KeyUp})
	assert.Equal(t, -PaddleSpeed, s.paddles[0].Moving)

	s.HandleKey(0, InboundEvent{Kind: InboundKeyDown, Key: KeyDown})
	assert.Equal(t, PaddleSpeed, s.paddles[0].Moving)

	s.HandleKey(0, InboundEvent{Kind: InboundKeyUp, Key: KeyDown})
	assert.Zero(t, s.paddles[0].Moving)

	s.HandleKey(1, InboundEvent{Kind: InboundKeyDown, Key: KeyUp})
	assert.Equal(t, -PaddleSpeed, s.paddles[1].Moving)
}

func TestSession_StepScoresAndResets(t *testing.T) {
	store := &fakeStore{}
	hub := &fakeHub{}
	s := newTestSession(store, hub)

	s.mu.Lock()
	s.state = StateRunning
	// Ball about to leave past the left paddle, away from its face.
	s.ball = Ball{X: 0.001, Y: 0.7, SpeedX: -0.02, SpeedY: 0}
	s.paddles[0].Y = 0
	s.mu.Unlock()

	stop := s.step(context.Background(), 1)
	require.False(t, stop)

	assert.Equal(t, [2]int{0, 1}, s.Score())

	s.mu.Lock()
	assert.Equal(t, BallStartX, s.ball.X)
	assert.Equal(t, BallStartY, s.ball.Y)
	assert.Equal(t, PaddleStartY, s.paddles[0].Y)
	s.mu.Unlock()

	// Scoring broadcasts the score immediately, not just every 10th tick.
	assert.NotEmpty(t, hub.eventsOfType("score"))
	assert.NotEmpty(t, hub.eventsOfType("gameState"))
}

func TestSession_PeriodicScoreBroadcast(t *testing.T) {
	hub := &fakeHub{}
	s := newTestSession(&fakeStore{}, hub)

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()

	s.step(context.Background(), 1)
	assert.Empty(t, hub.eventsOfType("score"))

	s.step(context.Background(), scoreBroadcastEvery)
	assert.Len(t, hub.eventsOfType("score"), 1)
}

func TestSession_WinFinalizesMatch(t *testing.T) {
	store := &fakeStore{}
	hub := &fakeHub{}
	s := newTestSession(store, hub)

	s.mu.Lock()
	s.state = StateRunning
	s.score = [2]int{WinningScore, 1}
	s.mu.Unlock()

	stop := s.step(context.Background(), 1)
	require.True(t, stop)

	assert.Equal(t, StateCompleted, s.State())
	assert.Equal(t, models.MatchStatusCompleted, store.lastStatus())
	require.NotNil(t, store.winnerID)
	assert.Equal(t, 10, *store.winnerID)
	require.Len(t, store.statsCalls, 1)
	assert.Equal(t, [2]int{10, 20}, store.statsCalls[0])
	assert.Equal(t, [][2]int{{WinningScore, 1}}, store.scores)

	ends := hub.eventsOfType("endGame")
	require.Len(t, ends, 1)
	end := ends[0].(EndGame)
	require.NotNil(t, end.Score)
	assert.Equal(t, [2]int{WinningScore, 1}, *end.Score)
}

func TestSession_FinalizeRetriedNextTick(t *testing.T) {
	store := &fakeStore{failScore: errors.New("db down")}
	hub := &fakeHub{}
	s := newTestSession(store, hub)

	s.mu.Lock()
	s.state = StateRunning
	s.score = [2]int{WinningScore, 0}
	s.mu.Unlock()

	stop := s.step(context.Background(), 1)
	require.False(t, stop)
	assert.Equal(t, StateRunning, s.State())
	// Nothing broadcast until the transition persisted.
	assert.Empty(t, hub.eventsOfType("endGame"))

	store.mu.Lock()
	store.failScore = nil
	store.mu.Unlock()

	stop = s.step(context.Background(), 2)
	require.True(t, stop)
	assert.Equal(t, StateCompleted, s.State())
	assert.Len(t, hub.eventsOfType("endGame"), 1)
}

func TestSession_DisconnectInterruptsWithLeaderWinning(t *testing.T) {
	store := &fakeStore{}
	hub := &fakeHub{}
	s := newTestSession(store, hub)

	s.mu.Lock()
	s.state = StateRunning
	s.score = [2]int{1, 2}
	s.mu.Unlock()

	require.NoError(t, s.HandleDisconnect(context.Background(), 1))

	assert.Equal(t, StateInterrupted, s.State())
	assert.Equal(t, models.MatchStatusInterrupted, store.lastStatus())
	require.NotNil(t, store.winnerID)
	assert.Equal(t, 20, *store.winnerID)

	ends := hub.eventsOfType("endGame")
	require.Len(t, ends, 2)
	assert.Equal(t, "User disconnected", ends[1].(EndGame).Message)
}

func TestSession_TiedDisconnectRecordsNoWinner(t *testing.T) {
	store := &fakeStore{}
	s := newTestSession(store, &fakeHub{})

	s.mu.Lock()
	s.state = StateRunning
	s.score = [2]int{2, 2}
	s.mu.Unlock()

	require.NoError(t, s.HandleDisconnect(context.Background(), 0))

	assert.Equal(t, StateInterrupted, s.State())
	assert.Nil(t, store.winnerID)
	assert.Empty(t, store.statsCalls)
}

func TestSession_DisconnectBeforeStartIsHarmless(t *testing.T) {
	store := &fakeStore{}
	s := newTestSession(store, &fakeHub{})

	require.NoError(t, s.HandleDisconnect(context.Background(), 0))
	assert.Equal(t, StateAwaitingPlayers, s.State())
	assert.Empty(t, store.statuses)
}

func TestSession_AbandonedBeforeStartGetsEvicted(t *testing.T) {
	store := &fakeStore{}
	terminal := make(chan int, 1)
	s := NewSession(testMatch(), store, &fakeHub{}, testLogger(),
		nil,
		func(matchID int) { terminal <- matchID },
	)
	ctx := context.Background()

	s.HandleConnect(0, "alice")
	s.HandleConnect(1, "bob")

	// One player leaving keeps the session waiting for a rejoin.
	require.NoError(t, s.HandleDisconnect(ctx, 0))
	select {
	case <-terminal:
		t.Fatal("session evicted while a player was still connected")
	case <-time.After(20 * time.Millisecond):
	}

	// The last player leaving abandons the session entirely.
	require.NoError(t, s.HandleDisconnect(ctx, 1))
	select {
	case got := <-terminal:
		assert.Equal(t, 7, got)
	case <-time.After(time.Second):
		t.Fatal("abandoned session was never evicted")
	}

	assert.Equal(t, StateAwaitingPlayers, s.State())
	assert.Empty(t, store.statuses)
}

func TestSession_InterruptTimeout(t *testing.T) {
	store := &fakeStore{}
	hub := &fakeHub{}
	s := newTestSession(store, hub)

	require.NoError(t, s.InterruptTimeout(context.Background()))
	assert.Equal(t, StateInterrupted, s.State())
	assert.Equal(t, models.MatchStatusInterrupted, store.lastStatus())
	assert.Equal(t, []string{GroupName(7)}, hub.closedTopics)

	ends := hub.eventsOfType("endGame")
	require.Len(t, ends, 1)
	assert.Equal(t, "Game join timeout", ends[0].(EndGame).Message)
}

func TestSession_InterruptTimeoutIgnoresRunningMatch(t *testing.T) {
	store := &fakeStore{}
	s := newTestSession(store, &fakeHub{})

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()

	require.NoError(t, s.InterruptTimeout(context.Background()))
	assert.Equal(t, StateRunning, s.State())
}

func TestSession_TerminationHooks(t *testing.T) {
	store := &fakeStore{}
	finished := make(chan [2]int, 1)
	terminal := make(chan int, 1)

	match := testMatch()
	tid := 3
	match.TournamentID = &tid

	s := NewSession(match, store, &fakeHub{}, testLogger(),
		func(tournamentID, matchID int) { finished <- [2]int{tournamentID, matchID} },
		func(matchID int) { terminal <- matchID },
	)

	s.mu.Lock()
	s.state = StateRunning
	s.score = [2]int{WinningScore, 0}
	s.mu.Unlock()

	require.True(t, s.step(context.Background(), 1))

	select {
	case got := <-finished:
		assert.Equal(t, [2]int{3, 7}, got)
	case <-time.After(time.Second):
		t.Fatal("onFinished hook never fired")
	}
	select {
	case got := <-terminal:
		assert.Equal(t, 7, got)
	case <-time.After(time.Second):
		t.Fatal("onTerminal hook never fired")
	}
}

func TestSession_ConnectTracking(t *testing.T) {
	s := newTestSession(&fakeStore{}, &fakeHub{})

	assert.False(t, s.HandleConnect(0, "alice"))
	assert.True(t, s.HandleConnect(1, "bob"))

	connected, ready, name := s.PeerState(0)
	assert.True(t, connected)
	assert.False(t, ready)
	assert.Equal(t, "alice", name)
}
