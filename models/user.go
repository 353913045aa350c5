package models

import "time"

type User struct {
	ID        int       `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Email     string    `json:"email,omitempty" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PlayerStats агрегирует результаты матчей пользователя.
type PlayerStats struct {
	UserID       int `json:"user_id" db:"user_id"`
	TotalMatches int `json:"total_matches" db:"total_matches"`
	Wins         int `json:"wins" db:"wins"`
	Losses       int `json:"losses" db:"losses"`
}
