package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pongarena/backend/models"
	"github.com/pongarena/backend/repositories"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type publishedEvent struct {
	Topic   string
	Payload any
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (b *fakeBroadcaster) Publish(topic string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, publishedEvent{Topic: topic, Payload: payload})
}

// typeOf digs the wire "type" tag out of any published payload.
func typeOf(payload any) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	var frame struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(raw, &frame)
	return frame.Type
}

func (b *fakeBroadcaster) eventsOfType(target string) []publishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []publishedEvent
	for _, ev := range b.events {
		if typeOf(ev.Payload) == target {
			out = append(out, ev)
		}
	}
	return out
}

// captureSubscriber records the raw frames a real hub delivers to it.
type captureSubscriber struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *captureSubscriber) Enqueue(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return true
}

func (s *captureSubscriber) Close() {}

func (s *captureSubscriber) framesOfType(target string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out [][]byte
	for _, frame := range s.frames {
		var tag struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(frame, &tag); err == nil && tag.Type == target {
			out = append(out, frame)
		}
	}
	return out
}

type fakeTournamentRepo struct {
	mu          sync.Mutex
	tournament  *models.Tournament
	users       []models.User
	addedUsers  []int
	winnerSet   *int
	endDateSet  *time.Time
	addErr      error
	stageCalled []models.BracketStage
}

func (r *fakeTournamentRepo) Create(ctx context.Context, t *models.Tournament) error {
	t.ID = 1
	t.StartDate = time.Now()
	r.tournament = t
	return nil
}

func (r *fakeTournamentRepo) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tournament == nil || r.tournament.ID != id {
		return nil, repositories.ErrTournamentNotFound
	}
	clone := *r.tournament
	return &clone, nil
}

func (r *fakeTournamentRepo) AddParticipant(ctx context.Context, tournamentID, userID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.addErr != nil {
		return r.addErr
	}
	r.addedUsers = append(r.addedUsers, userID)
	r.users = append(r.users, models.User{ID: userID})
	return nil
}

func (r *fakeTournamentRepo) ListParticipants(ctx context.Context, tournamentID int) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.User, len(r.users))
	copy(out, r.users)
	return out, nil
}

func (r *fakeTournamentRepo) SetStageGame(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, stage models.BracketStage, gameID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stageCalled = append(r.stageCalled, stage)
	return nil
}

func (r *fakeTournamentRepo) SetEndDate(ctx context.Context, id int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endDateSet = &at
	return nil
}

func (r *fakeTournamentRepo) SetWinner(ctx context.Context, id, winnerID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.winnerSet = &winnerID
	return nil
}

type slotUpdate struct {
	GameID int
	Slot   int
	UserID int
}

type fakeMatchRepo struct {
	mu          sync.Mutex
	matches     map[int]*models.Match
	nextID      int
	slotUpdates []slotUpdate
	recorded    []int
	unrecorded  []*models.Match
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{matches: make(map[int]*models.Match), nextID: 100}
}

func (r *fakeMatchRepo) Create(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	match.ID = r.nextID
	match.DatePlayed = time.Now()
	r.matches[match.ID] = match
	return nil
}

func (r *fakeMatchRepo) GetByID(ctx context.Context, id int) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	clone := *m
	return &clone, nil
}

func (r *fakeMatchRepo) UpdateStatus(ctx context.Context, id int, status models.MatchStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.matches[id]; ok {
		m.Status = status
		return nil
	}
	return repositories.ErrMatchNotFound
}

func (r *fakeMatchRepo) UpdateScore(ctx context.Context, id, scoreP1, scoreP2 int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.matches[id]; ok {
		m.ScorePlayer1, m.ScorePlayer2 = scoreP1, scoreP2
		return nil
	}
	return repositories.ErrMatchNotFound
}

func (r *fakeMatchRepo) UpdateWinner(ctx context.Context, id, winnerID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.matches[id]; ok {
		m.WinnerID = &winnerID
		return nil
	}
	return repositories.ErrMatchNotFound
}

func (r *fakeMatchRepo) UpdateMatchDate(ctx context.Context, id int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.matches[id]; ok {
		m.MatchDate = &at
		return nil
	}
	return repositories.ErrMatchNotFound
}

func (r *fakeMatchRepo) UpdatePlayerSlot(ctx context.Context, exec repositories.SQLExecutor, id, slot, userID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slotUpdates = append(r.slotUpdates, slotUpdate{GameID: id, Slot: slot, UserID: userID})
	if m, ok := r.matches[id]; ok {
		if slot == 1 {
			m.Player1ID = &userID
		} else {
			m.Player2ID = &userID
		}
	}
	return nil
}

func (r *fakeMatchRepo) ListFinalizedUnrecorded(ctx context.Context, limit int) ([]*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.unrecorded) > limit {
		return r.unrecorded[:limit], nil
	}
	return r.unrecorded, nil
}

func (r *fakeMatchRepo) MarkRecordedOnLedger(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded = append(r.recorded, id)
	return nil
}

func (r *fakeMatchRepo) ListStaleInProgress(ctx context.Context, olderThan time.Time) ([]*models.Match, error) {
	return nil, nil
}

func (r *fakeMatchRepo) put(m *models.Match) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches[m.ID] = m
}

type fakeInviteRepo struct {
	mu       sync.Mutex
	invites  map[int]*models.GameInvitation
	nextID   int
	accepted map[int]int
	expired  []int
}

func newFakeInviteRepo() *fakeInviteRepo {
	return &fakeInviteRepo{invites: make(map[int]*models.GameInvitation), accepted: make(map[int]int)}
}

func (r *fakeInviteRepo) Create(ctx context.Context, inv *models.GameInvitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	inv.ID = r.nextID
	inv.CreatedAt = time.Now()
	r.invites[inv.ID] = inv
	return nil
}

func (r *fakeInviteRepo) GetByID(ctx context.Context, id int) (*models.GameInvitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invites[id]
	if !ok {
		return nil, repositories.ErrInvitationNotFound
	}
	clone := *inv
	return &clone, nil
}

func (r *fakeInviteRepo) MarkAccepted(ctx context.Context, id, gameID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accepted[id] = gameID
	if inv, ok := r.invites[id]; ok {
		inv.Status = models.InvitationAccepted
		inv.GameID = &gameID
	}
	return nil
}

func (r *fakeInviteRepo) MarkExpired(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired = append(r.expired, id)
	if inv, ok := r.invites[id]; ok {
		inv.Status = models.InvitationExpired
	}
	return nil
}

type fakeUserRepo struct {
	users map[int]*models.User
	stats [][2]int
}

func newFakeUserRepo(users ...models.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[int]*models.User)}
	for i := range users {
		u := users[i]
		r.users[u.ID] = &u
	}
	return r
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int) (*models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetStats(ctx context.Context, userID int) (*models.PlayerStats, error) {
	return &models.PlayerStats{UserID: userID}, nil
}

func (r *fakeUserRepo) IncrementStats(ctx context.Context, winnerID, loserID int) error {
	r.stats = append(r.stats, [2]int{winnerID, loserID})
	return nil
}
