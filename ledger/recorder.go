package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pongarena/backend/models"
)

// GameRecord is the flattened, immutable view of a finished match that
// gets pushed to the external ledger gateway and archived.
type GameRecord struct {
	GameID       int        `json:"game_id"`
	Player1ID    *int       `json:"player1_id"`
	Player2ID    *int       `json:"player2_id"`
	WinnerID     *int       `json:"winner_id"`
	ScorePlayer1 int        `json:"score_player1"`
	ScorePlayer2 int        `json:"score_player2"`
	Status       string     `json:"status"`
	DatePlayed   time.Time  `json:"date_played"`
	MatchDate    *time.Time `json:"match_date"`
	TournamentID *int       `json:"tournament_id"`
}

// NewGameRecord flattens a terminal match into its ledger form.
func NewGameRecord(m *models.Match) GameRecord {
	return GameRecord{
		GameID:       m.ID,
		Player1ID:    m.Player1ID,
		Player2ID:    m.Player2ID,
		WinnerID:     m.WinnerID,
		ScorePlayer1: m.ScorePlayer1,
		ScorePlayer2: m.ScorePlayer2,
		Status:       string(m.Status),
		DatePlayed:   m.DatePlayed,
		MatchDate:    m.MatchDate,
		TournamentID: m.TournamentID,
	}
}

// Recorder pushes one record to the external chain gateway.
type Recorder interface {
	Record(ctx context.Context, record GameRecord) error
}

// HTTPRecorder talks to the chain gateway over plain HTTP. The gateway
// owns keys and transaction mechanics; this side only submits records.
type HTTPRecorder struct {
	endpoint string
	client   *http.Client
}

func NewHTTPRecorder(endpoint string) *HTTPRecorder {
	return &HTTPRecorder{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (r *HTTPRecorder) Record(ctx context.Context, record GameRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record for game %d: %w", record.GameID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build ledger request for game %d: %w", record.GameID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("ledger gateway unreachable for game %d: %w", record.GameID, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ledger gateway rejected game %d: status %d", record.GameID, resp.StatusCode)
	}
	return nil
}
