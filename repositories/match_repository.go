package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/pongarena/backend/models"
)

var (
	ErrMatchNotFound      = errors.New("match not found")
	ErrMatchPlayerInvalid = errors.New("match player conflict or invalid")
	ErrMatchWinnerInvalid = errors.New("match winner conflict or invalid")
	ErrMatchSlotInvalid   = errors.New("match player slot out of range")
)

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	UpdateStatus(ctx context.Context, id int, status models.MatchStatus) error
	UpdateScore(ctx context.Context, id, scoreP1, scoreP2 int) error
	UpdateWinner(ctx context.Context, id, winnerID int) error
	UpdateMatchDate(ctx context.Context, id int, at time.Time) error
	UpdatePlayerSlot(ctx context.Context, exec SQLExecutor, id, slot, userID int) error
	ListFinalizedUnrecorded(ctx context.Context, limit int) ([]*models.Match, error)
	MarkRecordedOnLedger(ctx context.Context, id int) error
	ListStaleInProgress(ctx context.Context, olderThan time.Time) ([]*models.Match, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

const matchColumns = `
	id, player1_id, player2_id, channel_group_name, winner_id,
	score_player1, score_player2, status, date_played, match_date,
	tournament_id, recorded_on_ledger`

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	query := `
		INSERT INTO games
			(player1_id, player2_id, status, tournament_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, date_played`

	err := exec.QueryRowContext(ctx, query,
		match.Player1ID,
		match.Player2ID,
		match.Status,
		match.TournamentID,
	).Scan(&match.ID, &match.DatePlayed)
	if err != nil {
		return r.handleMatchError(err)
	}

	// The broadcast topic is derived from the generated id.
	match.ChannelGroupName = fmt.Sprintf("game_%d", match.ID)
	_, err = exec.ExecContext(ctx,
		`UPDATE games SET channel_group_name = $1 WHERE id = $2`,
		match.ChannelGroupName, match.ID)
	return r.handleMatchError(err)
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `SELECT` + matchColumns + ` FROM games WHERE id = $1`

	match := &models.Match{}
	err := scanMatch(r.db.QueryRowContext(ctx, query, id), match)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match by id %d: %w", id, err)
	}
	return match, nil
}

func (r *postgresMatchRepository) UpdateStatus(ctx context.Context, id int, status models.MatchStatus) error {
	query := `UPDATE games SET status = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) UpdateScore(ctx context.Context, id, scoreP1, scoreP2 int) error {
	query := `UPDATE games SET score_player1 = $1, score_player2 = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, scoreP1, scoreP2, id)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) UpdateWinner(ctx context.Context, id, winnerID int) error {
	query := `UPDATE games SET winner_id = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, winnerID, id)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) UpdateMatchDate(ctx context.Context, id int, at time.Time) error {
	query := `UPDATE games SET match_date = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

// UpdatePlayerSlot binds a user into an empty player slot (1 or 2), used
// by the bracket coordinator to advance semifinal winners into the final.
func (r *postgresMatchRepository) UpdatePlayerSlot(ctx context.Context, exec SQLExecutor, id, slot, userID int) error {
	var query string
	switch slot {
	case 1:
		query = `UPDATE games SET player1_id = $1 WHERE id = $2`
	case 2:
		query = `UPDATE games SET player2_id = $1 WHERE id = $2`
	default:
		return ErrMatchSlotInvalid
	}
	result, err := exec.ExecContext(ctx, query, userID, id)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

// ListFinalizedUnrecorded returns terminal matches the ledger mirror has
// not pushed yet, oldest first.
func (r *postgresMatchRepository) ListFinalizedUnrecorded(ctx context.Context, limit int) ([]*models.Match, error) {
	query := `
		SELECT` + matchColumns + `
		FROM games
		WHERE status IN ($1, $2) AND recorded_on_ledger = FALSE
		ORDER BY id ASC
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query,
		models.MatchStatusCompleted, models.MatchStatusInterrupted, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unrecorded matches: %w", err)
	}
	defer rows.Close()

	return collectMatches(rows)
}

func (r *postgresMatchRepository) MarkRecordedOnLedger(ctx context.Context, id int) error {
	query := `UPDATE games SET recorded_on_ledger = TRUE WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

// ListStaleInProgress surfaces rows stuck in_progress since before the
// given time, typically sessions lost to a process restart.
func (r *postgresMatchRepository) ListStaleInProgress(ctx context.Context, olderThan time.Time) ([]*models.Match, error) {
	query := `
		SELECT` + matchColumns + `
		FROM games
		WHERE status = $1 AND match_date IS NOT NULL AND match_date < $2
		ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, models.MatchStatusInProgress, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale matches: %w", err)
	}
	defer rows.Close()

	return collectMatches(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMatch(row rowScanner, match *models.Match) error {
	return row.Scan(
		&match.ID,
		&match.Player1ID,
		&match.Player2ID,
		&match.ChannelGroupName,
		&match.WinnerID,
		&match.ScorePlayer1,
		&match.ScorePlayer2,
		&match.Status,
		&match.DatePlayed,
		&match.MatchDate,
		&match.TournamentID,
		&match.RecordedOnLedger,
	)
}

func collectMatches(rows *sql.Rows) ([]*models.Match, error) {
	matches := make([]*models.Match, 0)
	for rows.Next() {
		var match models.Match
		if err := scanMatch(rows, &match); err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		matches = append(matches, &match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Constraint {
		case "games_player1_id_fkey", "games_player2_id_fkey":
			return ErrMatchPlayerInvalid
		case "games_winner_id_fkey":
			return ErrMatchWinnerInvalid
		}
	}
	return err
}
