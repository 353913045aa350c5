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
	ErrTournamentNotFound           = errors.New("tournament not found")
	ErrTournamentParticipantExists  = errors.New("user is already a tournament participant")
	ErrTournamentParticipantInvalid = errors.New("tournament participant conflict or invalid")
	ErrTournamentStageInvalid       = errors.New("unknown bracket stage")
)

type TournamentRepository interface {
	Create(ctx context.Context, tournament *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	AddParticipant(ctx context.Context, tournamentID, userID int) error
	ListParticipants(ctx context.Context, tournamentID int) ([]models.User, error)
	SetStageGame(ctx context.Context, exec SQLExecutor, tournamentID int, stage models.BracketStage, gameID int) error
	SetEndDate(ctx context.Context, id int, at time.Time) error
	SetWinner(ctx context.Context, id, winnerID int) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) Create(ctx context.Context, tournament *models.Tournament) error {
	query := `
		INSERT INTO tournaments (name, participants_amount)
		VALUES ($1, $2)
		RETURNING id, start_date`

	err := r.db.QueryRowContext(ctx, query,
		tournament.Name,
		tournament.ParticipantsAmount,
	).Scan(&tournament.ID, &tournament.StartDate)
	if err != nil {
		return fmt.Errorf("failed to create tournament: %w", err)
	}
	return nil
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	query := `
		SELECT id, name, start_date, end_date, participants_amount,
		       semifinal_1_game_id, semifinal_2_game_id, final_game_id, winner_id
		FROM tournaments
		WHERE id = $1`

	t := &models.Tournament{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID,
		&t.Name,
		&t.StartDate,
		&t.EndDate,
		&t.ParticipantsAmount,
		&t.Semifinal1GameID,
		&t.Semifinal2GameID,
		&t.FinalGameID,
		&t.WinnerID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to scan tournament by id %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) AddParticipant(ctx context.Context, tournamentID, userID int) error {
	query := `INSERT INTO tournament_participants (tournament_id, user_id) VALUES ($1, $2)`
	_, err := r.db.ExecContext(ctx, query, tournamentID, userID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Constraint {
			case "tournament_participants_pkey":
				return ErrTournamentParticipantExists
			case "tournament_participants_tournament_id_fkey":
				return ErrTournamentNotFound
			case "tournament_participants_user_id_fkey":
				return ErrTournamentParticipantInvalid
			}
		}
		return fmt.Errorf("failed to add participant %d to tournament %d: %w", userID, tournamentID, err)
	}
	return nil
}

func (r *postgresTournamentRepository) ListParticipants(ctx context.Context, tournamentID int) ([]models.User, error) {
	query := `
		SELECT u.id, u.username, u.email, u.created_at
		FROM tournament_participants tp
		JOIN users u ON u.id = tp.user_id
		WHERE tp.tournament_id = $1
		ORDER BY tp.joined_at ASC, u.id ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	participants := make([]models.User, 0)
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Username, &user.Email, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", err)
		}
		participants = append(participants, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during participant rows iteration: %w", err)
	}
	return participants, nil
}

func (r *postgresTournamentRepository) SetStageGame(ctx context.Context, exec SQLExecutor, tournamentID int, stage models.BracketStage, gameID int) error {
	var column string
	switch stage {
	case models.StageSemifinal1:
		column = "semifinal_1_game_id"
	case models.StageSemifinal2:
		column = "semifinal_2_game_id"
	case models.StageFinal:
		column = "final_game_id"
	default:
		return ErrTournamentStageInvalid
	}

	query := fmt.Sprintf(`UPDATE tournaments SET %s = $1 WHERE id = $2`, column)
	result, err := exec.ExecContext(ctx, query, gameID, tournamentID)
	if err != nil {
		return fmt.Errorf("failed to bind %s game for tournament %d: %w", stage, tournamentID, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) SetEndDate(ctx context.Context, id int, at time.Time) error {
	query := `UPDATE tournaments SET end_date = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to set end date for tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) SetWinner(ctx context.Context, id, winnerID int) error {
	query := `UPDATE tournaments SET winner_id = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, winnerID, id)
	if err != nil {
		return fmt.Errorf("failed to set winner for tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}
