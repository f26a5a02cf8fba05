package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/yungbote/sitescout-backend/internal/crawl"
	"github.com/yungbote/sitescout-backend/internal/discovery"
	crawldomain "github.com/yungbote/sitescout-backend/internal/domain/crawl"
	"github.com/yungbote/sitescout-backend/internal/domain/districts"
	"github.com/yungbote/sitescout-backend/internal/events"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
)

func newCrawlRunFixture(t *testing.T, store *svcStore, bus events.Bus) CrawlRunService {
	t.Helper()
	log := logger.NewNop()

	prober := discovery.NewProber(log)
	waterfall := discovery.NewWaterfall(prober, nil, log)
	fetcher := crawl.NewFetcher(rate.NewLimiter(rate.Inf, 1), log)
	robots := crawl.NewRobotsCache(log)

	orch, err := crawl.NewOrchestrator(crawl.OrchestratorDeps{
		Waterfall:       waterfall,
		Fetcher:         fetcher,
		Robots:          robots,
		DocumentRepo:    &svcDocRepo{s: store},
		AttemptRepo:     &svcAttemptRepo{s: store},
		CorrectionRepo:  &svcCorrectionRepo{s: store},
		Log:             log,
		Concurrency:     2,
		PolitenessDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}

	return NewCrawlRunService(
		nil,
		log,
		&svcBatchRepo{s: store},
		&svcAttemptRepo{s: store},
		&svcDistrictRepo{s: store},
		orch,
		bus,
		10*time.Millisecond,
	)
}

func TestStartRunRequiresDistricts(t *testing.T) {
	store := newSvcStore()
	svc := newCrawlRunFixture(t, store, nil)

	if _, err := svc.StartRun(context.Background(), ""); err == nil {
		t.Fatal("expected error with an empty district roster")
	}
}

func TestStartRunQueuesBatch(t *testing.T) {
	store := newSvcStore()
	store.addDistrict(&districts.District{Name: "Example Unified", State: "CA"})
	svc := newCrawlRunFixture(t, store, nil)

	batch, err := svc.StartRun(context.Background(), "nightly")
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	if batch.Status != crawldomain.BatchQueued {
		t.Fatalf("status = %q, want queued", batch.Status)
	}
	if batch.DistrictsTotal != 1 {
		t.Fatalf("districts_total = %d, want 1", batch.DistrictsTotal)
	}
	if batch.Notes != "nightly" {
		t.Fatalf("notes = %q", batch.Notes)
	}

	got, err := svc.GetRun(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.ID != batch.ID || got.Status != crawldomain.BatchQueued {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

// TestRunWorkerExecutesQueuedBatch drives the full path: queue a batch, let
// the worker claim it, crawl one district against a local site, and finalize.
func TestRunWorkerExecutesQueuedBatch(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Example Unified School District</title></head>` +
			`<body><h1>Welcome</h1><p>Our strategic plan guides district goals for every school year.</p></body></html>`))
	}))
	defer site.Close()

	store := newSvcStore()
	store.addDistrict(&districts.District{
		Name:        "Example Unified",
		State:       "CA",
		RegistryURL: site.URL,
	})

	bus := &svcBus{}
	svc := newCrawlRunFixture(t, store, bus)

	batch, err := svc.StartRun(context.Background(), "")
	if err != nil {
		t.Fatalf("start run: %v", err)
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		svc.RunWorker(workerCtx)
		close(workerDone)
	}()

	deadline := time.Now().Add(10 * time.Second)
	var final *crawldomain.Batch
	for {
		got, err := svc.GetRun(context.Background(), batch.ID)
		if err != nil {
			t.Fatalf("get run: %v", err)
		}
		if got.Status == crawldomain.BatchCompleted || got.Status == crawldomain.BatchFailed {
			final = got
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("batch never finalized, status = %q", got.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}
	stopWorker()
	<-workerDone

	if final.Status != crawldomain.BatchCompleted {
		t.Fatalf("status = %q, want completed, notes = %q", final.Status, final.Notes)
	}
	if final.DistrictsSucceeded != 1 || final.DistrictsFailed != 0 {
		t.Fatalf("succeeded = %d failed = %d", final.DistrictsSucceeded, final.DistrictsFailed)
	}
	if final.FinishedAt == nil {
		t.Fatal("finished_at not set")
	}
	if len(final.StrategyCounts) == 0 {
		t.Fatal("strategy counts not recorded")
	}
	if len(final.AttemptCounts) == 0 {
		t.Fatal("attempt counts not recorded")
	}

	store.mu.Lock()
	docCount := len(store.docs)
	store.mu.Unlock()
	if docCount == 0 {
		t.Fatal("no documents stored")
	}

	stages := bus.stages(events.KindCrawl)
	if len(stages) != 2 || stages[0] != events.StageStarted || stages[1] != events.StageFinished {
		t.Fatalf("event stages = %v", stages)
	}
}

func TestAppendNote(t *testing.T) {
	if got := appendNote("", "interrupted"); got != "interrupted" {
		t.Fatalf("got %q", got)
	}
	if got := appendNote("nightly", "interrupted"); got != "nightly; interrupted" {
		t.Fatalf("got %q", got)
	}
}
