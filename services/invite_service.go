package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pongarena/backend/game"
	"github.com/pongarena/backend/models"
	"github.com/pongarena/backend/repositories"
)

const invitationTTL = 10 * time.Minute

// InvitationTopic is the room both parties of an invitation listen on.
func InvitationTopic(room string) string {
	return fmt.Sprintf("game_invitation_%s", room)
}

type GameInvitedEvent struct {
	Type       string                 `json:"type"`
	Invitation *models.GameInvitation `json:"invitation"`
}

type GameAcceptedEvent struct {
	Type    string `json:"type"`
	GameURL string `json:"game_url"`
}

// InviteService issues match invitations and relays their lifecycle over
// the invitation room topic. Accepting one creates the match row both
// players connect to.
type InviteService struct {
	invites repositories.InviteRepository
	matches repositories.MatchRepository
	exec    repositories.SQLExecutor
	hub     game.Broadcaster

	now func() time.Time
}

func NewInviteService(
	invites repositories.InviteRepository,
	matches repositories.MatchRepository,
	exec repositories.SQLExecutor,
	hub game.Broadcaster,
) *InviteService {
	return &InviteService{
		invites: invites,
		matches: matches,
		exec:    exec,
		hub:     hub,
		now:     time.Now,
	}
}

// Invite creates a pending invitation with a fresh room identifier and
// announces it on the room topic.
func (s *InviteService) Invite(ctx context.Context, senderID, receiverID int) (*models.GameInvitation, error) {
	if senderID == receiverID {
		return nil, ErrSelfInvitation
	}

	inv := &models.GameInvitation{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Room:       uuid.NewString(),
		Status:     models.InvitationPending,
		ExpiresAt:  s.now().Add(invitationTTL),
	}
	if err := s.invites.Create(ctx, inv); err != nil {
		return nil, err
	}

	s.hub.Publish(InvitationTopic(inv.Room), GameInvitedEvent{
		Type:       "game_invited",
		Invitation: inv,
	})
	return inv, nil
}

// Accept consumes a pending invitation: the match row is created with
// both players bound and the room hears where to go.
func (s *InviteService) Accept(ctx context.Context, invitationID, userID int) (*models.Match, error) {
	inv, err := s.invites.GetByID(ctx, invitationID)
	if err != nil {
		if errors.Is(err, repositories.ErrInvitationNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, err
	}
	if inv.ReceiverID != userID {
		return nil, ErrNotInviteReceiver
	}
	if inv.Status != models.InvitationPending {
		return nil, ErrInvitationConsumed
	}
	if inv.Expired(s.now()) {
		if err := s.invites.MarkExpired(ctx, inv.ID); err != nil {
			return nil, err
		}
		return nil, ErrInvitationExpired
	}

	match := &models.Match{
		Player1ID: &inv.SenderID,
		Player2ID: &inv.ReceiverID,
		Status:    models.MatchStatusNotStarted,
	}
	if err := s.matches.Create(ctx, s.exec, match); err != nil {
		return nil, err
	}
	if err := s.invites.MarkAccepted(ctx, inv.ID, match.ID); err != nil {
		return nil, err
	}

	s.hub.Publish(InvitationTopic(inv.Room), GameAcceptedEvent{
		Type:    "game_accepted",
		GameURL: fmt.Sprintf("/game/%d", match.ID),
	})
	return match, nil
}
