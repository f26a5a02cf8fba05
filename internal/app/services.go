package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/yungbote/sitescout-backend/internal/crawl"
	"github.com/yungbote/sitescout-backend/internal/discovery"
	"github.com/yungbote/sitescout-backend/internal/embedding"
	"github.com/yungbote/sitescout-backend/internal/events"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
	"github.com/yungbote/sitescout-backend/internal/scoring"
	"github.com/yungbote/sitescout-backend/internal/services"
)

type Services struct {
	CrawlRun  services.CrawlRunService
	Scoring   services.ScoringService
	Embedding services.EmbeddingRunService
	Search    services.SearchService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	// Discovery
	prober := discovery.NewProber(log)
	var searcher discovery.SiteSearcher
	if clients.WebSearch != nil {
		searcher = clients.WebSearch
	}
	waterfall := discovery.NewWaterfall(prober, searcher, log)

	// Crawl engine. One limiter for all workers keeps the global request
	// budget independent of concurrency.
	limiter := rate.NewLimiter(cfg.CrawlRPS, cfg.CrawlBurst)
	fetcher := crawl.NewFetcher(limiter, log)
	robots := crawl.NewRobotsCache(log)

	orchestrator, err := crawl.NewOrchestrator(crawl.OrchestratorDeps{
		Waterfall:       waterfall,
		Fetcher:         fetcher,
		Robots:          robots,
		DocumentRepo:    repos.Document,
		AttemptRepo:     repos.Attempt,
		CorrectionRepo:  repos.Correction,
		Log:             log,
		Concurrency:     cfg.CrawlConcurrency,
		PolitenessDelay: cfg.PolitenessDelay,
		OnDistrictDone: func(batchID, districtID uuid.UUID, name string, ok bool) {
			_ = clients.RunBus.Publish(context.Background(), events.RunEvent{
				RunID: batchID,
				Kind:  events.KindCrawl,
				Stage: events.StageProgress,
				Detail: map[string]any{
					"district_id": districtID,
					"district":    name,
					"ok":          ok,
				},
			})
		},
	})
	if err != nil {
		return Services{}, fmt.Errorf("init crawl orchestrator: %w", err)
	}

	// Scoring
	tax, err := scoring.LoadTaxonomy()
	if err != nil {
		return Services{}, fmt.Errorf("load scoring taxonomy: %w", err)
	}

	// Embeddings
	pipeline, err := embedding.NewPipeline(embedding.PipelineDeps{
		DB:        db,
		Documents: repos.Document,
		Chunks:    repos.Chunk,
		Districts: repos.District,
		AI:        clients.AI,
		Log:       log,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init embedding pipeline: %w", err)
	}

	crawlRunService := services.NewCrawlRunService(db, log, repos.Batch, repos.Attempt, repos.District, orchestrator, clients.RunBus, cfg.ClaimInterval)
	scoringService := services.NewScoringService(db, log, tax, repos.District, repos.Document, repos.Score, clients.RunBus)
	embeddingRunService := services.NewEmbeddingRunService(log, pipeline, clients.RunBus)
	searchService := services.NewSearchService(db, log, clients.AI, repos.Chunk)

	return Services{
		CrawlRun:  crawlRunService,
		Scoring:   scoringService,
		Embedding: embeddingRunService,
		Search:    searchService,
	}, nil
}
