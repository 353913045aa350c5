package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pongarena/backend/game"
	"github.com/pongarena/backend/models"
	"github.com/pongarena/backend/repositories"
)

// MatchStore bridges the session engine's persistence contract onto the
// repositories. The session never sees SQL, the repositories never see
// simulation state.
type MatchStore struct {
	matches repositories.MatchRepository
	users   repositories.UserRepository
}

var _ game.Store = (*MatchStore)(nil)

func NewMatchStore(matches repositories.MatchRepository, users repositories.UserRepository) *MatchStore {
	return &MatchStore{matches: matches, users: users}
}

// LoadMatch returns the match row with both bound players resolved, so
// the gateway can show display names and the session can update stats.
func (s *MatchStore) LoadMatch(ctx context.Context, id int) (*models.Match, error) {
	match, err := s.matches.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, game.ErrGameNotFound
		}
		return nil, fmt.Errorf("load match %d: %w", id, err)
	}

	if match.Player1ID != nil {
		if match.Player1, err = s.users.GetByID(ctx, *match.Player1ID); err != nil {
			return nil, fmt.Errorf("load player1 of match %d: %w", id, err)
		}
	}
	if match.Player2ID != nil {
		if match.Player2, err = s.users.GetByID(ctx, *match.Player2ID); err != nil {
			return nil, fmt.Errorf("load player2 of match %d: %w", id, err)
		}
	}
	return match, nil
}

func (s *MatchStore) SaveMatchStatus(ctx context.Context, id int, status models.MatchStatus) error {
	return s.matches.UpdateStatus(ctx, id, status)
}

func (s *MatchStore) SaveMatchScore(ctx context.Context, id, scoreP1, scoreP2 int) error {
	return s.matches.UpdateScore(ctx, id, scoreP1, scoreP2)
}

func (s *MatchStore) SaveMatchWinner(ctx context.Context, id, winnerID int) error {
	return s.matches.UpdateWinner(ctx, id, winnerID)
}

func (s *MatchStore) IncrementPlayerStats(ctx context.Context, winnerID, loserID int) error {
	return s.users.IncrementStats(ctx, winnerID, loserID)
}

func (s *MatchStore) SetMatchStarted(ctx context.Context, id int, at time.Time) error {
	return s.matches.UpdateMatchDate(ctx, id, at)
}
