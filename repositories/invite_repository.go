package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pongarena/backend/models"
)

var ErrInvitationNotFound = errors.New("game invitation not found")

type InviteRepository interface {
	Create(ctx context.Context, invitation *models.GameInvitation) error
	GetByID(ctx context.Context, id int) (*models.GameInvitation, error)
	MarkAccepted(ctx context.Context, id, gameID int) error
	MarkExpired(ctx context.Context, id int) error
}

type postgresInviteRepository struct {
	db *sql.DB
}

func NewPostgresInviteRepository(db *sql.DB) InviteRepository {
	return &postgresInviteRepository{db: db}
}

func (r *postgresInviteRepository) Create(ctx context.Context, invitation *models.GameInvitation) error {
	query := `
		INSERT INTO game_invitations (sender_id, receiver_id, room, status, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		invitation.SenderID,
		invitation.ReceiverID,
		invitation.Room,
		invitation.Status,
		invitation.ExpiresAt,
	).Scan(&invitation.ID, &invitation.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create game invitation: %w", err)
	}
	return nil
}

func (r *postgresInviteRepository) GetByID(ctx context.Context, id int) (*models.GameInvitation, error) {
	query := `
		SELECT id, sender_id, receiver_id, game_id, room, status, created_at, expires_at
		FROM game_invitations
		WHERE id = $1`

	inv := &models.GameInvitation{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&inv.ID,
		&inv.SenderID,
		&inv.ReceiverID,
		&inv.GameID,
		&inv.Room,
		&inv.Status,
		&inv.CreatedAt,
		&inv.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("failed to scan invitation by id %d: %w", id, err)
	}
	return inv, nil
}

func (r *postgresInviteRepository) MarkAccepted(ctx context.Context, id, gameID int) error {
	query := `UPDATE game_invitations SET status = $1, game_id = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, models.InvitationAccepted, gameID, id)
	if err != nil {
		return fmt.Errorf("failed to accept invitation %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrInvitationNotFound)
}

func (r *postgresInviteRepository) MarkExpired(ctx context.Context, id int) error {
	query := `UPDATE game_invitations SET status = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, models.InvitationExpired, id)
	if err != nil {
		return fmt.Errorf("failed to expire invitation %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrInvitationNotFound)
}
