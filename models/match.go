package models

import "time"

type MatchStatus string

const (
	MatchStatusNotStarted  MatchStatus = "not_started"
	MatchStatusInProgress  MatchStatus = "in_progress"
	MatchStatusCompleted   MatchStatus = "completed"
	MatchStatusInterrupted MatchStatus = "interrupted"
)

// Terminal reports whether no further status transition is allowed.
func (s MatchStatus) Terminal() bool {
	return s == MatchStatusCompleted || s == MatchStatusInterrupted
}

// Match is the persisted row for one pong game. A nil player slot means the
// slot has not been bound yet (e.g. a tournament final before the semifinals
// have produced their winners).
type Match struct {
	ID               int         `json:"id" db:"id"`
	Player1ID        *int        `json:"player1_id,omitempty" db:"player1_id"`
	Player2ID        *int        `json:"player2_id,omitempty" db:"player2_id"`
	ChannelGroupName string      `json:"-" db:"channel_group_name"`
	WinnerID         *int        `json:"winner_id,omitempty" db:"winner_id"`
	ScorePlayer1     int         `json:"score_player1" db:"score_player1"`
	ScorePlayer2     int         `json:"score_player2" db:"score_player2"`
	Status           MatchStatus `json:"status" db:"status"`
	DatePlayed       time.Time   `json:"date_played" db:"date_played"`
	MatchDate        *time.Time  `json:"match_date,omitempty" db:"match_date"`
	TournamentID     *int        `json:"tournament_id,omitempty" db:"tournament_id"`
	RecordedOnLedger bool        `json:"-" db:"recorded_on_ledger"`

	// Опциональные связанные сущности (не мапятся напрямую)
	Player1 *User `json:"player1,omitempty" db:"-"`
	Player2 *User `json:"player2,omitempty" db:"-"`
}

// SideOf returns 0 or 1 for a bound participant, false for anyone else.
func (m *Match) SideOf(userID int) (int, bool) {
	switch {
	case m.Player1ID != nil && *m.Player1ID == userID:
		return 0, true
	case m.Player2ID != nil && *m.Player2ID == userID:
		return 1, true
	default:
		return 0, false
	}
}

// PlayerIDOf returns the user bound to the given side, if any.
func (m *Match) PlayerIDOf(side int) *int {
	if side == 0 {
		return m.Player1ID
	}
	return m.Player2ID
}
