package services

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/sitescout-backend/internal/embedding"
	"github.com/yungbote/sitescout-backend/internal/events"
	"github.com/yungbote/sitescout-backend/internal/observability"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
)

// ErrRunInProgress rejects a second concurrent embedding run.
var ErrRunInProgress = errors.New("embedding run already in progress")

// EmbeddingRunService runs the chunk/embed pipeline in the background. At
// most one run at a time: the pipeline pages the whole missing-chunk backlog
// itself, so overlapping runs would only duplicate work.
type EmbeddingRunService interface {
	Start(ctx context.Context) (uuid.UUID, error)
	Stop()
	Running() bool
}

type embeddingRunService struct {
	log      *logger.Logger
	pipeline *embedding.Pipeline
	bus      events.Bus

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

func NewEmbeddingRunService(baseLog *logger.Logger, pipeline *embedding.Pipeline, bus events.Bus) EmbeddingRunService {
	if bus == nil {
		bus = events.NopBus{}
	}
	return &embeddingRunService{
		log:      baseLog.With("service", "EmbeddingRunService"),
		pipeline: pipeline,
		bus:      bus,
	}
}

// Start launches a run and returns its ephemeral id. The run detaches from
// the caller's context (an API request should not abort it) but honors Stop.
func (s *embeddingRunService) Start(ctx context.Context) (uuid.UUID, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return uuid.Nil, ErrRunInProgress
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()

	runID := uuid.New()
	log := s.log.With("run_id", runID)

	go func() {
		runCtx, span := observability.StartRunSpan(runCtx, events.KindEmbed, runID)
		defer func() {
			span.End()
			cancel()
			s.mu.Lock()
			s.running = false
			s.cancel = nil
			s.mu.Unlock()
		}()

		s.publish(runCtx, events.RunEvent{
			RunID: runID,
			Kind:  events.KindEmbed,
			Stage: events.StageStarted,
		})

		report, err := s.pipeline.Run(runCtx)

		stage := events.StageFinished
		detail := map[string]any{
			"documents_embedded":     report.DocumentsEmbedded,
			"documents_deduplicated": report.DocumentsDeduplicated,
			"documents_failed":       report.DocumentsFailed,
			"chunks_stored":          report.ChunksStored,
			"prompt_tokens":          report.PromptTokens,
		}
		if err != nil {
			stage = events.StageFailed
			detail["error"] = err.Error()
			log.Warn("embedding run ended early", "error", err)
		}
		s.publish(context.WithoutCancel(runCtx), events.RunEvent{
			RunID:  runID,
			Kind:   events.KindEmbed,
			Stage:  stage,
			Detail: detail,
		})
	}()

	log.Info("embedding run started")
	return runID, nil
}

// Stop cancels the current run, if any. The pipeline lets in-flight batches
// finish and persist before returning.
func (s *embeddingRunService) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *embeddingRunService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *embeddingRunService) publish(ctx context.Context, ev events.RunEvent) {
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.log.Warn("failed to publish run event", "kind", ev.Kind, "stage", ev.Stage, "error", err)
	}
}
