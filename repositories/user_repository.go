package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pongarena/backend/models"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	GetByID(ctx context.Context, id int) (*models.User, error)
	GetStats(ctx context.Context, userID int) (*models.PlayerStats, error)
	IncrementStats(ctx context.Context, winnerID, loserID int) error
}

type postgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) UserRepository {
	return &postgresUserRepository{db: db}
}

func (r *postgresUserRepository) GetByID(ctx context.Context, id int) (*models.User, error) {
	query := `SELECT id, username, email, created_at FROM users WHERE id = $1`

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user by id %d: %w", id, err)
	}
	return user, nil
}

func (r *postgresUserRepository) GetStats(ctx context.Context, userID int) (*models.PlayerStats, error) {
	query := `SELECT user_id, total_matches, wins, losses FROM player_stats WHERE user_id = $1`

	stats := &models.PlayerStats{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&stats.UserID,
		&stats.TotalMatches,
		&stats.Wins,
		&stats.Losses,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan stats for user %d: %w", userID, err)
	}
	return stats, nil
}

// IncrementStats applies one finished match to both players' aggregates
// in a single transaction, so a crash between the two updates cannot
// leave a half-counted match.
func (r *postgresUserRepository) IncrementStats(ctx context.Context, winnerID, loserID int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin stats transaction: %w", err)
	}
	defer tx.Rollback()

	winQuery := `
		UPDATE player_stats
		SET total_matches = total_matches + 1, wins = wins + 1
		WHERE user_id = $1`
	result, err := tx.ExecContext(ctx, winQuery, winnerID)
	if err != nil {
		return fmt.Errorf("failed to update winner stats for user %d: %w", winnerID, err)
	}
	if err := checkAffectedRows(result, ErrUserNotFound); err != nil {
		return err
	}

	lossQuery := `
		UPDATE player_stats
		SET total_matches = total_matches + 1, losses = losses + 1
		WHERE user_id = $1`
	result, err = tx.ExecContext(ctx, lossQuery, loserID)
	if err != nil {
		return fmt.Errorf("failed to update loser stats for user %d: %w", loserID, err)
	}
	if err := checkAffectedRows(result, ErrUserNotFound); err != nil {
		return err
	}

	return tx.Commit()
}
