package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/sitescout-backend/internal/crawl"
	crawlrepos "github.com/yungbote/sitescout-backend/internal/data/repos/crawl"
	distrepos "github.com/yungbote/sitescout-backend/internal/data/repos/districts"
	crawldomain "github.com/yungbote/sitescout-backend/internal/domain/crawl"
	"github.com/yungbote/sitescout-backend/internal/events"
	"github.com/yungbote/sitescout-backend/internal/observability"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
	"github.com/yungbote/sitescout-backend/internal/pkg/pointers"
)

const defaultClaimInterval = 5 * time.Second

// CrawlRunService queues crawl runs and owns the worker that executes them.
// StartRun only writes the queued batch row; RunWorker claims queued rows one
// at a time, so several API replicas can share one database without crawling
// the same batch twice.
type CrawlRunService interface {
	StartRun(ctx context.Context, notes string) (*crawldomain.Batch, error)
	GetRun(ctx context.Context, id uuid.UUID) (*crawldomain.Batch, error)
	ListRecentRuns(ctx context.Context, limit int) ([]crawldomain.Batch, error)
	RunWorker(ctx context.Context)
}

type crawlRunService struct {
	db            *gorm.DB
	log           *logger.Logger
	batches       crawlrepos.BatchRepo
	attempts      crawlrepos.AttemptRepo
	districts     distrepos.DistrictRepo
	orchestrator  *crawl.Orchestrator
	bus           events.Bus
	claimInterval time.Duration
}

func NewCrawlRunService(
	db *gorm.DB,
	baseLog *logger.Logger,
	batches crawlrepos.BatchRepo,
	attempts crawlrepos.AttemptRepo,
	districts distrepos.DistrictRepo,
	orchestrator *crawl.Orchestrator,
	bus events.Bus,
	claimInterval time.Duration,
) CrawlRunService {
	if claimInterval <= 0 {
		claimInterval = defaultClaimInterval
	}
	if bus == nil {
		bus = events.NopBus{}
	}
	return &crawlRunService{
		db:            db,
		log:           baseLog.With("service", "CrawlRunService"),
		batches:       batches,
		attempts:      attempts,
		districts:     districts,
		orchestrator:  orchestrator,
		bus:           bus,
		claimInterval: claimInterval,
	}
}

func (s *crawlRunService) StartRun(ctx context.Context, notes string) (*crawldomain.Batch, error) {
	total, err := s.districts.Count(ctx, nil)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, fmt.Errorf("no districts loaded, nothing to crawl")
	}
	batch := &crawldomain.Batch{
		Status:         crawldomain.BatchQueued,
		DistrictsTotal: int(total),
		Notes:          notes,
	}
	if err := s.batches.Create(ctx, nil, batch); err != nil {
		return nil, err
	}
	s.log.Info("crawl run queued", "batch_id", batch.ID, "districts", total)
	return batch, nil
}

func (s *crawlRunService) GetRun(ctx context.Context, id uuid.UUID) (*crawldomain.Batch, error) {
	return s.batches.GetByID(ctx, nil, id)
}

func (s *crawlRunService) ListRecentRuns(ctx context.Context, limit int) ([]crawldomain.Batch, error) {
	return s.batches.ListRecent(ctx, nil, limit)
}

// RunWorker polls for queued batches until ctx is canceled. Claimed batches
// run to completion on this goroutine; cancellation mid-batch lets in-flight
// districts finish and finalizes the batch as interrupted.
func (s *crawlRunService) RunWorker(ctx context.Context) {
	ticker := time.NewTicker(s.claimInterval)
	defer ticker.Stop()

	s.log.Info("crawl run worker started", "claim_interval", s.claimInterval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("crawl run worker stopped")
			return
		case <-ticker.C:
		}

		batch, err := s.batches.ClaimNextQueued(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("failed to claim queued batch", "error", err)
			}
			continue
		}
		if batch == nil {
			continue
		}
		s.execute(ctx, batch)
	}
}

func (s *crawlRunService) execute(ctx context.Context, batch *crawldomain.Batch) {
	ctx, span := observability.StartRunSpan(ctx, events.KindCrawl, batch.ID)
	defer span.End()
	log := s.log.With("batch_id", batch.ID)

	list, err := s.districts.ListAll(ctx, nil)
	if err != nil {
		log.Error("failed to load districts for batch", "error", err)
		s.finalize(ctx, batch, nil, fmt.Errorf("load districts: %w", err))
		return
	}
	batch.DistrictsTotal = len(list)

	s.publish(ctx, events.RunEvent{
		RunID: batch.ID,
		Kind:  events.KindCrawl,
		Stage: events.StageStarted,
		Detail: map[string]any{
			"districts_total": len(list),
		},
	})
	log.Info("crawl batch started", "districts", len(list))

	summary := s.orchestrator.RunBatch(ctx, batch.ID, list)
	s.finalize(ctx, batch, summary, ctx.Err())
}

// finalize writes the batch outcome row and publishes the closing event. It
// runs on a detached context so a shutdown that interrupted the batch still
// records what happened.
func (s *crawlRunService) finalize(ctx context.Context, batch *crawldomain.Batch, summary *crawl.BatchSummary, runErr error) {
	dctx := context.WithoutCancel(ctx)
	log := s.log.With("batch_id", batch.ID)

	batch.FinishedAt = pointers.Time(time.Now().UTC())
	batch.Status = crawldomain.BatchCompleted
	if runErr != nil {
		batch.Status = crawldomain.BatchFailed
		batch.Notes = appendNote(batch.Notes, runErr.Error())
	}

	detail := map[string]any{}
	if summary != nil {
		batch.DistrictsTotal = summary.DistrictsTotal
		batch.DistrictsSucceeded = summary.DistrictsSucceeded
		batch.DistrictsFailed = summary.DistrictsFailed
		if raw, err := json.Marshal(summary.StrategyCounts); err == nil {
			batch.StrategyCounts = datatypes.JSON(raw)
		}
		detail["districts_total"] = summary.DistrictsTotal
		detail["districts_succeeded"] = summary.DistrictsSucceeded
		detail["districts_failed"] = summary.DistrictsFailed
	}

	counts, err := s.attempts.CountByBatchOutcome(dctx, nil, batch.ID)
	if err != nil {
		log.Warn("failed to count batch attempts", "error", err)
	} else if raw, err := json.Marshal(counts); err == nil {
		batch.AttemptCounts = datatypes.JSON(raw)
		detail["attempts"] = counts
	}

	if err := s.batches.Update(dctx, nil, batch); err != nil {
		log.Error("failed to finalize batch", "error", err)
	}

	stage := events.StageFinished
	if runErr != nil {
		stage = events.StageFailed
		detail["error"] = runErr.Error()
	}
	s.publish(dctx, events.RunEvent{
		RunID:  batch.ID,
		Kind:   events.KindCrawl,
		Stage:  stage,
		Detail: detail,
	})

	log.Info("crawl batch finished",
		"status", batch.Status,
		"succeeded", batch.DistrictsSucceeded,
		"failed", batch.DistrictsFailed)
}

func (s *crawlRunService) publish(ctx context.Context, ev events.RunEvent) {
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.log.Warn("failed to publish run event", "kind", ev.Kind, "stage", ev.Stage, "error", err)
	}
}

func appendNote(notes, extra string) string {
	if notes == "" {
		return extra
	}
	return notes + "; " + extra
}
