package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/sitescout-backend/internal/domain/districts"
	"github.com/yungbote/sitescout-backend/internal/domain/documents"
	"github.com/yungbote/sitescout-backend/internal/embedding"
	"github.com/yungbote/sitescout-backend/internal/events"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
)

func svcVectors(n int) [][]float32 {
	vecs := make([][]float32, n)
	for i := range vecs {
		vec := make([]float32, documents.EmbeddingDim)
		vec[0] = float32(i + 1)
		vecs[i] = vec
	}
	return vecs
}

func seedEmbeddableDoc(store *svcStore) {
	d := &districts.District{Name: "Alder Unified", State: "CA"}
	store.addDistrict(d)
	doc := &documents.Document{
		ID:           uuid.New(),
		DistrictID:   d.ID,
		URL:          "https://alderunified.org/plan",
		Category:     documents.CategoryStrategicPlan,
		Text:         "A short strategic plan summary for embedding.",
		TextLength:   45,
		ContentHash:  "hash-alder-plan",
		DiscoveredAt: time.Now().UTC(),
	}
	store.docs[doc.ID] = doc
}

func newEmbeddingFixture(t *testing.T, store *svcStore, docs *svcDocRepo, ai *svcAI, bus events.Bus) EmbeddingRunService {
	t.Helper()
	log := logger.NewNop()
	pipe, err := embedding.NewPipeline(embedding.PipelineDeps{
		DB:        &gorm.DB{},
		Documents: docs,
		Chunks:    &svcChunkRepo{s: store},
		Districts: &svcDistrictRepo{s: store},
		AI:        ai,
		Log:       log,
	})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	return NewEmbeddingRunService(log, pipe, bus)
}

func waitNotRunning(t *testing.T, svc EmbeddingRunService) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for svc.Running() {
		if time.Now().After(deadline) {
			t.Fatal("run never finished")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEmbeddingRunSingleFlight(t *testing.T) {
	store := newSvcStore()
	seedEmbeddableDoc(store)

	release := make(chan struct{})
	ai := &svcAI{embedFn: func(inputs []string) ([][]float32, error) {
		<-release
		return svcVectors(len(inputs)), nil
	}}
	bus := &svcBus{}
	svc := newEmbeddingFixture(t, store, &svcDocRepo{s: store}, ai, bus)

	runID, err := svc.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if runID == uuid.Nil {
		t.Fatal("run id not assigned")
	}
	if !svc.Running() {
		t.Fatal("service should report running")
	}

	if _, err := svc.Start(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("second start err = %v, want ErrRunInProgress", err)
	}

	close(release)
	waitNotRunning(t, svc)

	store.mu.Lock()
	chunkCount := len(store.chunks)
	store.mu.Unlock()
	if chunkCount == 0 {
		t.Fatal("no chunk rows persisted")
	}

	stages := bus.stages(events.KindEmbed)
	if len(stages) != 2 || stages[0] != events.StageStarted || stages[1] != events.StageFinished {
		t.Fatalf("event stages = %v", stages)
	}

	// The slot frees once the run ends.
	if _, err := svc.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	waitNotRunning(t, svc)
}

func TestEmbeddingRunStop(t *testing.T) {
	store := newSvcStore()
	seedEmbeddableDoc(store)

	docs := &svcDocRepo{s: store, blockHashes: true}
	bus := &svcBus{}
	svc := newEmbeddingFixture(t, store, docs, &svcAI{}, bus)

	if _, err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	svc.Stop()
	waitNotRunning(t, svc)

	stages := bus.stages(events.KindEmbed)
	if len(stages) != 2 || stages[1] != events.StageFailed {
		t.Fatalf("event stages = %v, want failed finish", stages)
	}
}

func TestEmbeddingRunDetachesFromCaller(t *testing.T) {
	store := newSvcStore()
	seedEmbeddableDoc(store)

	svc := newEmbeddingFixture(t, store, &svcDocRepo{s: store}, &svcAI{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Start(ctx); err != nil {
		t.Fatalf("start with canceled caller: %v", err)
	}
	waitNotRunning(t, svc)

	store.mu.Lock()
	chunkCount := len(store.chunks)
	store.mu.Unlock()
	if chunkCount == 0 {
		t.Fatal("canceled API context must not abort the run")
	}
}
