package models

import "time"

// BracketSize is the fixed tournament bracket: two semifinals and a final.
const BracketSize = 4

// BracketStage identifies one match of the fixed four-player bracket.
type BracketStage string

const (
	StageSemifinal1 BracketStage = "semifinal_1"
	StageSemifinal2 BracketStage = "semifinal_2"
	StageFinal      BracketStage = "final"
)

// Tournament представляет турнир из четырёх участников.
type Tournament struct {
	ID                 int        `json:"id" db:"id"`
	Name               string     `json:"name" db:"name"`
	StartDate          time.Time  `json:"start_date" db:"start_date"`
	EndDate            *time.Time `json:"end_date,omitempty" db:"end_date"`
	ParticipantsAmount int        `json:"participants_amount" db:"participants_amount"`
	Semifinal1GameID   *int       `json:"semifinal_1_game_id,omitempty" db:"semifinal_1_game_id"`
	Semifinal2GameID   *int       `json:"semifinal_2_game_id,omitempty" db:"semifinal_2_game_id"`
	FinalGameID        *int       `json:"final_game_id,omitempty" db:"final_game_id"`
	WinnerID           *int       `json:"winner_id,omitempty" db:"winner_id"`

	// Опциональные связанные сущности (не мапятся напрямую)
	Participants   []User `json:"participants,omitempty" db:"-"`
	Semifinal1Game *Match `json:"semifinal_1_game,omitempty" db:"-"`
	Semifinal2Game *Match `json:"semifinal_2_game,omitempty" db:"-"`
	FinalGame      *Match `json:"final_game,omitempty" db:"-"`
}

// Ongoing reports whether the tournament is still being played.
func (t *Tournament) Ongoing() bool {
	return t.EndDate == nil
}

// HasParticipant reports whether the user joined this tournament.
func (t *Tournament) HasParticipant(userID int) bool {
	for _, p := range t.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// StageGame returns the match bound to the given bracket stage, if created.
func (t *Tournament) StageGame(stage BracketStage) *Match {
	switch stage {
	case StageSemifinal1:
		return t.Semifinal1Game
	case StageSemifinal2:
		return t.Semifinal2Game
	case StageFinal:
		return t.FinalGame
	default:
		return nil
	}
}
