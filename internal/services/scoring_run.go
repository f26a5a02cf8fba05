package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	distrepos "github.com/yungbote/sitescout-backend/internal/data/repos/districts"
	docrepos "github.com/yungbote/sitescout-backend/internal/data/repos/documents"
	scorerepos "github.com/yungbote/sitescout-backend/internal/data/repos/scoring"
	"github.com/yungbote/sitescout-backend/internal/domain/districts"
	scoringdomain "github.com/yungbote/sitescout-backend/internal/domain/scoring"
	"github.com/yungbote/sitescout-backend/internal/events"
	"github.com/yungbote/sitescout-backend/internal/observability"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
	"github.com/yungbote/sitescout-backend/internal/scoring"
)

// ScoreRunSummary aggregates one full scoring pass.
type ScoreRunSummary struct {
	RunID             uuid.UUID   `json:"run_id"`
	DistrictsScored   int         `json:"districts_scored"`
	DistrictsFailed   int         `json:"districts_failed"`
	TierCounts        map[int]int `json:"tier_counts"`
	DocumentsAnalyzed int         `json:"documents_analyzed"`
}

// ScoringService recomputes keyword scores from stored documents. Scoring is
// pure recomputation over the corpus, so runs are synchronous and repeatable.
type ScoringService interface {
	ScoreAll(ctx context.Context) (*ScoreRunSummary, error)
	ScoreDistrict(ctx context.Context, districtID uuid.UUID) (*scoringdomain.KeywordScore, error)
	GetDistrictScore(ctx context.Context, districtID uuid.UUID) (*scoringdomain.KeywordScore, error)
	ListTopScores(ctx context.Context, limit int) ([]scoringdomain.KeywordScore, error)
}

type scoringService struct {
	db        *gorm.DB
	log       *logger.Logger
	tax       *scoring.Taxonomy
	districts distrepos.DistrictRepo
	documents docrepos.DocumentRepo
	scores    scorerepos.KeywordScoreRepo
	bus       events.Bus
}

func NewScoringService(
	db *gorm.DB,
	baseLog *logger.Logger,
	tax *scoring.Taxonomy,
	districts distrepos.DistrictRepo,
	documents docrepos.DocumentRepo,
	scores scorerepos.KeywordScoreRepo,
	bus events.Bus,
) ScoringService {
	if bus == nil {
		bus = events.NopBus{}
	}
	return &scoringService{
		db:        db,
		log:       baseLog.With("service", "ScoringService"),
		tax:       tax,
		districts: districts,
		documents: documents,
		scores:    scores,
		bus:       bus,
	}
}

func (s *scoringService) ScoreAll(ctx context.Context) (*ScoreRunSummary, error) {
	list, err := s.districts.ListAll(ctx, nil)
	if err != nil {
		return nil, err
	}

	summary := &ScoreRunSummary{
		RunID:      uuid.New(),
		TierCounts: map[int]int{},
	}
	ctx, span := observability.StartRunSpan(ctx, events.KindScore, summary.RunID)
	defer span.End()

	s.publish(ctx, events.RunEvent{
		RunID: summary.RunID,
		Kind:  events.KindScore,
		Stage: events.StageStarted,
		Detail: map[string]any{
			"districts_total": len(list),
		},
	})

	now := time.Now().UTC()
	for i := range list {
		if err := ctx.Err(); err != nil {
			s.publishDone(ctx, summary, err)
			return summary, err
		}
		row, err := s.scoreOne(ctx, &list[i], now)
		if err != nil {
			summary.DistrictsFailed++
			s.log.Warn("failed to score district",
				"district_id", list[i].ID, "district", list[i].Name, "error", err)
			continue
		}
		summary.DistrictsScored++
		summary.TierCounts[row.Tier]++
		summary.DocumentsAnalyzed += row.DocumentsAnalyzed
	}

	s.publishDone(ctx, summary, nil)
	s.log.Info("scoring run finished",
		"run_id", summary.RunID,
		"scored", summary.DistrictsScored,
		"failed", summary.DistrictsFailed,
		"tier_counts", summary.TierCounts)
	return summary, nil
}

func (s *scoringService) ScoreDistrict(ctx context.Context, districtID uuid.UUID) (*scoringdomain.KeywordScore, error) {
	d, err := s.districts.GetByID(ctx, nil, districtID)
	if err != nil {
		return nil, err
	}
	return s.scoreOne(ctx, d, time.Now().UTC())
}

func (s *scoringService) GetDistrictScore(ctx context.Context, districtID uuid.UUID) (*scoringdomain.KeywordScore, error) {
	return s.scores.GetByDistrict(ctx, nil, districtID)
}

// ListTopScores returns the highest composite scores, best first.
func (s *scoringService) ListTopScores(ctx context.Context, limit int) ([]scoringdomain.KeywordScore, error) {
	if limit <= 0 {
		limit = 25
	}
	return s.scores.ListTop(ctx, nil, limit)
}

// scoreOne recomputes and replaces one district's score row. Districts with
// no usable documents still get a row: all zeros, tier 3, so ranked exports
// cover the whole corpus.
func (s *scoringService) scoreOne(ctx context.Context, d *districts.District, now time.Time) (*scoringdomain.KeywordScore, error) {
	docs, err := s.documents.ListByDistrict(ctx, nil, d.ID, scoring.MinScoredTextLength)
	if err != nil {
		return nil, err
	}

	res := scoring.Score(s.tax, docs, now)

	row := &scoringdomain.KeywordScore{
		DistrictID:        d.ID,
		ReadinessScore:    res.Readiness,
		TechnologyScore:   res.Technology,
		FundingScore:      res.Funding,
		EngagementScore:   res.Engagement,
		CompositeScore:    res.Composite,
		Tier:              res.Tier,
		DocumentsAnalyzed: res.DocumentsAnalyzed,
		ScoredAt:          now,
	}
	if raw, err := json.Marshal(res.Matches); err == nil {
		row.MatchDetail = datatypes.JSON(raw)
	}

	if err := s.scores.Upsert(ctx, nil, row); err != nil {
		return nil, err
	}
	if metrics := observability.Current(); metrics != nil {
		metrics.IncScoreComputed(row.Tier)
	}
	return row, nil
}

func (s *scoringService) publishDone(ctx context.Context, summary *ScoreRunSummary, runErr error) {
	stage := events.StageFinished
	detail := map[string]any{
		"districts_scored": summary.DistrictsScored,
		"districts_failed": summary.DistrictsFailed,
	}
	if runErr != nil {
		stage = events.StageFailed
		detail["error"] = runErr.Error()
	}
	s.publish(context.WithoutCancel(ctx), events.RunEvent{
		RunID:  summary.RunID,
		Kind:   events.KindScore,
		Stage:  stage,
		Detail: detail,
	})
}

func (s *scoringService) publish(ctx context.Context, ev events.RunEvent) {
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.log.Warn("failed to publish run event", "kind", ev.Kind, "stage", ev.Stage, "error", err)
	}
}
