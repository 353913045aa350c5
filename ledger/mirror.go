package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pongarena/backend/models"
	"github.com/pongarena/backend/repositories"
	"github.com/pongarena/backend/storage"
)

const (
	mirrorBatchSize   = 50
	mirrorConcurrency = 4
)

// Mirror periodically sweeps finalized matches that have not been pushed
// to the ledger yet, submits each record through the Recorder and marks
// the row once the push succeeded. A failed push just leaves the row for
// the next sweep. When an Archiver is configured, every pushed record is
// also dropped into the object store as a JSON snapshot.
type Mirror struct {
	matches  repositories.MatchRepository
	recorder Recorder
	archiver storage.Archiver // optional
	log      *slog.Logger

	interval  time.Duration
	scheduler gocron.Scheduler
}

func NewMirror(
	matches repositories.MatchRepository,
	recorder Recorder,
	archiver storage.Archiver,
	interval time.Duration,
	log *slog.Logger,
) *Mirror {
	return &Mirror{
		matches:  matches,
		recorder: recorder,
		archiver: archiver,
		log:      log,
		interval: interval,
	}
}

// Start schedules the periodic sweep. The first run happens immediately.
func (m *Mirror) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create mirror scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(m.interval),
		gocron.NewTask(func() {
			if err := m.Sweep(context.Background()); err != nil {
				m.log.Error("ledger sweep failed", slog.Any("error", err))
			}
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule ledger sweep: %w", err)
	}

	sched.Start()
	m.scheduler = sched
	m.log.Info("ledger mirror started", slog.Duration("interval", m.interval))
	return nil
}

// Shutdown stops the scheduler. Running sweeps finish on their own.
func (m *Mirror) Shutdown() error {
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.Shutdown()
}

// Sweep pushes one batch of unrecorded terminal matches. Per-match
// failures are logged and skipped so one bad row never blocks the rest.
func (m *Mirror) Sweep(ctx context.Context) error {
	batch, err := m.matches.ListFinalizedUnrecorded(ctx, mirrorBatchSize)
	if err != nil {
		return fmt.Errorf("failed to list unrecorded matches: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(mirrorConcurrency)
	for _, match := range batch {
		match := match
		g.Go(func() error {
			if err := m.push(gctx, match); err != nil {
				m.log.Error("failed to mirror match",
					slog.Int("game_id", match.ID), slog.Any("error", err))
			}
			return nil
		})
	}
	_ = g.Wait()

	m.log.Info("ledger sweep finished", slog.Int("batch", len(batch)))
	return nil
}

func (m *Mirror) push(ctx context.Context, match *models.Match) error {
	record := NewGameRecord(match)

	if err := m.recorder.Record(ctx, record); err != nil {
		return err
	}
	if err := m.archive(ctx, record); err != nil {
		// Запись уже в реестре; архив лучший из возможных.
		m.log.Warn("failed to archive ledger record",
			slog.Int("game_id", record.GameID), slog.Any("error", err))
	}

	return m.matches.MarkRecordedOnLedger(ctx, match.ID)
}

func (m *Mirror) archive(ctx context.Context, record GameRecord) error {
	if m.archiver == nil {
		return nil
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("games/%d-%s.json", record.GameID, uuid.NewString())
	_, err = m.archiver.Upload(ctx, key, "application/json", bytes.NewReader(payload))
	return err
}
