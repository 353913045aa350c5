package services

import "errors"

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	// Ресурс не найден (универсальная)
	ErrNotFound = errors.New("requested resource not found")

	// Ошибки валидации и бизнес-правил
	ErrValidationFailed     = errors.New("validation failed")
	ErrTournamentNotOngoing = errors.New("tournament is not ongoing")
	ErrTournamentFull       = errors.New("tournament registration is full")
	ErrNotAParticipant      = errors.New("user is not a tournament participant")
	ErrSelfInvitation       = errors.New("cannot invite yourself to a game")
	ErrInvitationExpired    = errors.New("game invitation has expired")
	ErrInvitationConsumed   = errors.New("game invitation was already handled")
	ErrNotInviteReceiver    = errors.New("only the invited player can accept")

	// Ошибки, специфичные для сущностей
	ErrUserNotFound       = errors.New("user not found")
	ErrMatchNotFound      = errors.New("match not found")
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrInvitationNotFound = errors.New("game invitation not found")
)
