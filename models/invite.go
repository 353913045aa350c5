package models

import "time"

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
)

// GameInvitation is a pending challenge from one user to another. Accepting
// it creates the Match both players will connect to.
type GameInvitation struct {
	ID         int              `json:"id" db:"id"`
	SenderID   int              `json:"sender_id" db:"sender_id"`
	ReceiverID int              `json:"receiver_id" db:"receiver_id"`
	GameID     *int             `json:"game_id,omitempty" db:"game_id"`
	Room       string           `json:"room" db:"room"`
	Status     InvitationStatus `json:"status" db:"status"`
	CreatedAt  time.Time        `json:"created_at" db:"created_at"`
	ExpiresAt  time.Time        `json:"expires_at" db:"expires_at"`
}

// Expired reports whether the invitation can no longer be accepted.
func (i *GameInvitation) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
