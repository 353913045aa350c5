package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/pongarena/backend/game"
	"github.com/pongarena/backend/models"
	"github.com/pongarena/backend/repositories"
)

// TournamentTopic is the broadcast topic of a tournament room.
func TournamentTopic(tournamentID int) string {
	return fmt.Sprintf("tournament_%d", tournamentID)
}

// TournamentParticipantTopic is one participant's private topic inside a
// tournament room. start_game goes here, never to the whole room.
func TournamentParticipantTopic(tournamentID, userID int) string {
	return fmt.Sprintf("tournament_%d_user_%d", tournamentID, userID)
}

// Outbound frames for the tournament topic.

type TournamentJoinEvent struct {
	Type          string             `json:"type"`
	Tournament    *models.Tournament `json:"tournament"`
	ParticipantID int                `json:"participant_id"`
}

type StartGameEvent struct {
	Type          string `json:"type"`
	GameURL       string `json:"game_url"`
	ParticipantID int    `json:"participant_id"`
}

type TournamentGameOverEvent struct {
	Type       string             `json:"type"`
	GameID     int                `json:"game_id"`
	Tournament *models.Tournament `json:"tournament"`
}

// TournamentService is the bracket coordinator for fixed four-player
// tournaments: two semifinals feeding one final. It owns the per-stage
// start-signal sets and consumes session termination events to advance
// winners through the bracket.
type TournamentService struct {
	db          *sql.DB
	tournaments repositories.TournamentRepository
	matches     repositories.MatchRepository
	hub         game.Broadcaster
	log         *slog.Logger

	now     func() time.Time
	shuffle func(n int, swap func(i, j int))

	mu           sync.Mutex
	startSignals map[int]map[models.BracketStage]map[int]struct{}
}

func NewTournamentService(
	db *sql.DB,
	tournaments repositories.TournamentRepository,
	matches repositories.MatchRepository,
	hub game.Broadcaster,
	log *slog.Logger,
) *TournamentService {
	return &TournamentService{
		db:           db,
		tournaments:  tournaments,
		matches:      matches,
		hub:          hub,
		log:          log,
		now:          time.Now,
		shuffle:      rand.Shuffle,
		startSignals: make(map[int]map[models.BracketStage]map[int]struct{}),
	}
}

// Create opens a new empty tournament of the fixed bracket size.
func (s *TournamentService) Create(ctx context.Context, name string) (*models.Tournament, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: tournament name is required", ErrValidationFailed)
	}
	t := &models.Tournament{Name: name, ParticipantsAmount: models.BracketSize}
	if err := s.tournaments.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Snapshot loads a tournament with its participants and stage games
// resolved, the shape broadcast to the tournament room.
func (s *TournamentService) Snapshot(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	t, err := s.tournaments.GetByID(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}

	if t.Participants, err = s.tournaments.ListParticipants(ctx, tournamentID); err != nil {
		return nil, err
	}

	load := func(id *int) (*models.Match, error) {
		if id == nil {
			return nil, nil
		}
		return s.matches.GetByID(ctx, *id)
	}
	if t.Semifinal1Game, err = load(t.Semifinal1GameID); err != nil {
		return nil, err
	}
	if t.Semifinal2Game, err = load(t.Semifinal2GameID); err != nil {
		return nil, err
	}
	if t.FinalGame, err = load(t.FinalGameID); err != nil {
		return nil, err
	}
	return t, nil
}

// Join registers a participant. Reaching the bracket size pairs the field
// into two semifinals plus an empty final in one transaction.
func (s *TournamentService) Join(ctx context.Context, tournamentID, userID int) (*models.Tournament, error) {
	t, err := s.Snapshot(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if !t.Ongoing() || t.Semifinal1GameID != nil {
		return nil, ErrTournamentNotOngoing
	}
	if len(t.Participants) >= t.ParticipantsAmount {
		return nil, ErrTournamentFull
	}

	if err := s.tournaments.AddParticipant(ctx, tournamentID, userID); err != nil {
		if errors.Is(err, repositories.ErrTournamentParticipantExists) {
			return nil, fmt.Errorf("%w: user %d", repositories.ErrTournamentParticipantExists, userID)
		}
		return nil, err
	}

	participants, err := s.tournaments.ListParticipants(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if len(participants) == t.ParticipantsAmount {
		if err := s.pairParticipants(ctx, tournamentID, participants); err != nil {
			return nil, err
		}
	}
	return s.Snapshot(ctx, tournamentID)
}

// pairParticipants shuffles the full field and splits it into two
// semifinals. The final row is created up front with empty slots so
// advancement is a plain slot update.
func (s *TournamentService) pairParticipants(ctx context.Context, tournamentID int, participants []models.User) error {
	shuffled := make([]models.User, len(participants))
	copy(shuffled, participants)
	s.shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin pairing transaction: %w", err)
	}
	defer tx.Rollback()

	createStage := func(stage models.BracketStage, p1, p2 *int) error {
		match := &models.Match{
			Player1ID:    p1,
			Player2ID:    p2,
			Status:       models.MatchStatusNotStarted,
			TournamentID: &tournamentID,
		}
		if err := s.matches.Create(ctx, tx, match); err != nil {
			return fmt.Errorf("failed to create %s match: %w", stage, err)
		}
		return s.tournaments.SetStageGame(ctx, tx, tournamentID, stage, match.ID)
	}

	if err := createStage(models.StageSemifinal1, &shuffled[0].ID, &shuffled[1].ID); err != nil {
		return err
	}
	if err := createStage(models.StageSemifinal2, &shuffled[2].ID, &shuffled[3].ID); err != nil {
		return err
	}
	if err := createStage(models.StageFinal, nil, nil); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pairing transaction: %w", err)
	}
	s.log.Info("tournament paired", slog.Int("tournament_id", tournamentID))
	return nil
}

// HandleConnect validates a tournament room connection and announces the
// join with a fresh snapshot. Non-participants and finished tournaments
// are rejected the same way the match gateway rejects strangers.
func (s *TournamentService) HandleConnect(ctx context.Context, tournamentID, userID int) (*models.Tournament, error) {
	t, err := s.Snapshot(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if !t.HasParticipant(userID) {
		return nil, ErrNotAParticipant
	}
	if !t.Ongoing() {
		return nil, ErrTournamentNotOngoing
	}

	s.hub.Publish(TournamentTopic(tournamentID), TournamentJoinEvent{
		Type:          "join",
		Tournament:    t,
		ParticipantID: userID,
	})
	return t, nil
}

// HandleStart records one participant's start signal for their current
// bracket stage. Once both expected participants of the stage have
// signaled, a start_game event is pushed for each of them and the stage's
// signal set is cleared.
func (s *TournamentService) HandleStart(ctx context.Context, tournamentID, userID int) error {
	t, err := s.Snapshot(ctx, tournamentID)
	if err != nil {
		return err
	}

	stage, match := stageOf(t, userID)
	if match == nil || match.Player1ID == nil || match.Player2ID == nil {
		return nil
	}

	s.mu.Lock()
	stages, ok := s.startSignals[tournamentID]
	if !ok {
		stages = make(map[models.BracketStage]map[int]struct{})
		s.startSignals[tournamentID] = stages
	}
	signals, ok := stages[stage]
	if !ok {
		signals = make(map[int]struct{})
		stages[stage] = signals
	}
	signals[userID] = struct{}{}

	_, p1Signaled := signals[*match.Player1ID]
	_, p2Signaled := signals[*match.Player2ID]
	bothSignaled := p1Signaled && p2Signaled
	if bothSignaled {
		delete(stages, stage)
	}
	s.mu.Unlock()

	if !bothSignaled {
		return nil
	}

	// Only the two stage participants hear where to go; the rest of the
	// room learns about the game from its outcome.
	for _, pid := range []int{*match.Player1ID, *match.Player2ID} {
		s.hub.Publish(TournamentParticipantTopic(tournamentID, pid), StartGameEvent{
			Type:          "start_game",
			GameURL:       fmt.Sprintf("/game/%d", match.ID),
			ParticipantID: pid,
		})
	}
	s.log.Info("bracket stage started",
		slog.Int("tournament_id", tournamentID),
		slog.String("stage", string(stage)),
		slog.Int("game_id", match.ID),
	)
	return nil
}

// HandleGameOver consumes a session termination event for one of the
// tournament's own matches: semifinal winners advance into the final's
// slots, the final stamps the tournament's end. The room then receives
// the game-over event with an updated snapshot.
func (s *TournamentService) HandleGameOver(ctx context.Context, tournamentID, gameID int) error {
	t, err := s.Snapshot(ctx, tournamentID)
	if err != nil {
		return err
	}

	switch {
	case t.Semifinal1GameID != nil && *t.Semifinal1GameID == gameID:
		err = s.advanceWinner(ctx, t, t.Semifinal1Game, 1)
	case t.Semifinal2GameID != nil && *t.Semifinal2GameID == gameID:
		err = s.advanceWinner(ctx, t, t.Semifinal2Game, 2)
	case t.FinalGameID != nil && *t.FinalGameID == gameID:
		err = s.concludeTournament(ctx, t)
	default:
		return fmt.Errorf("%w: game %d does not belong to tournament %d", ErrMatchNotFound, gameID, tournamentID)
	}
	if err != nil {
		return err
	}

	updated, err := s.Snapshot(ctx, tournamentID)
	if err != nil {
		return err
	}
	s.hub.Publish(TournamentTopic(tournamentID), TournamentGameOverEvent{
		Type:       "game_over",
		GameID:     gameID,
		Tournament: updated,
	})
	return nil
}

func (s *TournamentService) advanceWinner(ctx context.Context, t *models.Tournament, semifinal *models.Match, slot int) error {
	if semifinal == nil {
		return fmt.Errorf("tournament %d semifinal not loaded", t.ID)
	}
	if semifinal.WinnerID == nil {
		// Interrupted tie: nobody advances; the slot stays open.
		s.log.Warn("semifinal ended without a winner",
			slog.Int("tournament_id", t.ID), slog.Int("game_id", semifinal.ID))
		return nil
	}
	if t.FinalGameID == nil {
		return fmt.Errorf("tournament %d has no final game to advance into", t.ID)
	}
	return s.matches.UpdatePlayerSlot(ctx, s.db, *t.FinalGameID, slot, *semifinal.WinnerID)
}

func (s *TournamentService) concludeTournament(ctx context.Context, t *models.Tournament) error {
	if err := s.tournaments.SetEndDate(ctx, t.ID, s.now()); err != nil {
		return err
	}
	if t.FinalGame != nil && t.FinalGame.WinnerID != nil {
		if err := s.tournaments.SetWinner(ctx, t.ID, *t.FinalGame.WinnerID); err != nil {
			return err
		}
	}

	s.mu.Lock()
	delete(s.startSignals, t.ID)
	s.mu.Unlock()

	s.log.Info("tournament ended", slog.Int("tournament_id", t.ID))
	return nil
}

// stageOf finds the first unfinished bracket match the user plays in.
func stageOf(t *models.Tournament, userID int) (models.BracketStage, *models.Match) {
	for _, stage := range []models.BracketStage{models.StageSemifinal1, models.StageSemifinal2, models.StageFinal} {
		match := t.StageGame(stage)
		if match == nil || match.WinnerID != nil || match.Status.Terminal() {
			continue
		}
		if _, ok := match.SideOf(userID); ok {
			return stage, match
		}
	}
	return "", nil
}
