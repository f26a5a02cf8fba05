package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/sitescout-backend/internal/data/db"
	distrepos "github.com/yungbote/sitescout-backend/internal/data/repos/districts"
	docrepos "github.com/yungbote/sitescout-backend/internal/data/repos/documents"
	"github.com/yungbote/sitescout-backend/internal/domain/documents"
	"github.com/yungbote/sitescout-backend/internal/observability"
	"github.com/yungbote/sitescout-backend/internal/pkg/httpx"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
	"github.com/yungbote/sitescout-backend/internal/platform/openai"
)

const (
	// pageSize bounds how many documents one pager round loads.
	pageSize = 200
	// skipListCap bounds the per-run exclusion list handed to the pager.
	// Documents past the cap wait for the next run.
	skipListCap = 1000
	// batchChunkLimit caps chunks per embedding request.
	batchChunkLimit = 64
	// embedConcurrency is how many embedding requests run at once.
	embedConcurrency = 4
	// rebuildThreshold is the new-vector count after which the ivfflat
	// index's list count is considered stale.
	rebuildThreshold = 500
)

// PipelineDeps wires the pipeline. All fields except Retry are required;
// a zero Retry takes the embedding-service default.
type PipelineDeps struct {
	DB        *gorm.DB
	Documents docrepos.DocumentRepo
	Chunks    docrepos.DocumentChunkRepo
	Districts distrepos.DistrictRepo
	AI        openai.Client
	Log       *logger.Logger
	Retry     httpx.RetryPolicy
}

// Report is what one Run did.
type Report struct {
	DocumentsEmbedded     int
	DocumentsDeduplicated int
	DocumentsFailed       int
	ChunksStored          int
	BatchesDispatched     int
	BatchesFailed         int
	PromptTokens          int
	IndexRebuilt          bool
}

// Pipeline turns un-embedded documents into chunk rows with vectors. Chunk
// rows are the durable record of progress: a run can stop at any point and
// the next one picks up exactly the documents still missing rows.
type Pipeline struct {
	deps  PipelineDeps
	retry httpx.RetryPolicy
	log   *logger.Logger
}

func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	if deps.DB == nil || deps.Documents == nil || deps.Chunks == nil || deps.Districts == nil {
		return nil, fmt.Errorf("embedding: missing pipeline dependencies")
	}
	if deps.AI == nil {
		return nil, fmt.Errorf("embedding: missing embeddings client")
	}
	if deps.Log == nil {
		return nil, fmt.Errorf("embedding: missing logger")
	}
	retry := deps.Retry
	if retry.MaxAttempts <= 0 {
		retry = httpx.RetryPolicy{
			MaxAttempts:    5,
			InitialBackoff: time.Second,
			MaxSleep:       30 * time.Second,
		}
	}
	return &Pipeline{
		deps:  deps,
		retry: retry,
		log:   deps.Log.With("component", "EmbeddingPipeline"),
	}, nil
}

type districtHeader struct {
	Name  string
	State string
}

type embedItem struct {
	docID uuid.UUID
	index int
	text  string
}

type embedBatch struct {
	items  []embedItem
	docIDs []uuid.UUID
}

// Run pages through documents lacking chunk rows, highest-value categories
// first, and embeds them. Cancellation stops new batch dispatch; batches
// already in flight finish and persist.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	hashes, err := p.deps.Documents.ListEmbeddedHashes(ctx, nil)
	if err != nil {
		return report, err
	}
	embedded := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		embedded[h] = struct{}{}
	}

	headers := make(map[uuid.UUID]districtHeader)
	skipped := make([]uuid.UUID, 0)

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if len(skipped) > skipListCap {
			p.log.Warn("skip list at capacity, ending run early",
				"skipped", len(skipped),
			)
			break
		}

		docs, err := p.deps.Documents.ListMissingChunks(ctx, nil, skipped, pageSize)
		if err != nil {
			return report, err
		}
		if len(docs) == 0 {
			break
		}

		interrupted, err := p.processPage(ctx, docs, embedded, headers, &skipped, report)
		if err != nil {
			return report, err
		}
		if interrupted {
			p.logSummary(report)
			return report, ctx.Err()
		}
	}

	p.maybeRebuildIndex(ctx, report)
	p.logSummary(report)
	return report, nil
}

func (p *Pipeline) logSummary(report *Report) {
	p.log.Info("embedding run finished",
		"documents_embedded", report.DocumentsEmbedded,
		"documents_deduplicated", report.DocumentsDeduplicated,
		"documents_failed", report.DocumentsFailed,
		"chunks_stored", report.ChunksStored,
		"batches_dispatched", report.BatchesDispatched,
		"batches_failed", report.BatchesFailed,
		"prompt_tokens", report.PromptTokens,
		"index_rebuilt", report.IndexRebuilt,
	)
}

// processPage chunks and embeds one pager round. It reports whether dispatch
// was cut short by cancellation.
func (p *Pipeline) processPage(
	ctx context.Context,
	docs []documents.Document,
	embedded map[string]struct{},
	headers map[uuid.UUID]districtHeader,
	skipped *[]uuid.UUID,
	report *Report,
) (bool, error) {
	// Hash-deduplicated documents never gain chunk rows, so they must join
	// the exclusion list or the pager would hand them back forever. A second
	// document with the same hash inside this page is deferred instead: the
	// next round sees it after the first copy's rows exist.
	pending := make([]*documents.Document, 0, len(docs))
	pageHashes := make(map[string]struct{})
	for i := range docs {
		doc := &docs[i]
		if doc.ContentHash != "" {
			if _, ok := embedded[doc.ContentHash]; ok {
				report.DocumentsDeduplicated++
				*skipped = append(*skipped, doc.ID)
				continue
			}
			if _, ok := pageHashes[doc.ContentHash]; ok {
				continue
			}
			pageHashes[doc.ContentHash] = struct{}{}
		}
		pending = append(pending, doc)
	}
	if len(pending) == 0 {
		return false, nil
	}

	if err := p.loadHeaders(ctx, pending, headers); err != nil {
		return false, err
	}

	chunkedDocs := make([]*documents.Document, 0, len(pending))
	items := make([]embedItem, 0, len(pending))
	for _, doc := range pending {
		h := headers[doc.DistrictID]
		chunks := Chunk(ChunkInput{
			DistrictName: h.Name,
			State:        h.State,
			Category:     doc.Category,
			Text:         doc.Text,
		})
		if len(chunks) == 0 {
			report.DocumentsFailed++
			*skipped = append(*skipped, doc.ID)
			continue
		}
		chunkedDocs = append(chunkedDocs, doc)
		for idx, text := range chunks {
			items = append(items, embedItem{docID: doc.ID, index: idx, text: text})
		}
	}
	if len(items) == 0 {
		return false, nil
	}

	batches := make([]embedBatch, 0, len(items)/batchChunkLimit+1)
	for start := 0; start < len(items); start += batchChunkLimit {
		end := start + batchChunkLimit
		if end > len(items) {
			end = len(items)
		}
		b := embedBatch{items: items[start:end]}
		seen := make(map[uuid.UUID]struct{})
		for _, it := range b.items {
			if _, ok := seen[it.docID]; !ok {
				seen[it.docID] = struct{}{}
				b.docIDs = append(b.docIDs, it.docID)
			}
		}
		batches = append(batches, b)
	}

	var (
		mu        sync.Mutex
		failed    = make(map[uuid.UUID]struct{})
		persisted = make(map[uuid.UUID]struct{})
	)

	g := new(errgroup.Group)
	g.SetLimit(embedConcurrency)

	dispatched := 0
	for i := range batches {
		if ctx.Err() != nil {
			break
		}
		batch := batches[i]
		report.BatchesDispatched++
		g.Go(func() error {
			p.runBatch(ctx, batch, &mu, failed, persisted, report)
			return nil
		})
		dispatched++
	}
	_ = g.Wait()

	undone := make(map[uuid.UUID]struct{})
	for _, b := range batches[dispatched:] {
		for _, id := range b.docIDs {
			undone[id] = struct{}{}
		}
	}

	// Documents with a failed batch, or caught straddling the cancellation
	// cut, may hold a partial chunk set from a sibling batch. Clearing those
	// rows puts them back in the pager's view for the next run.
	cleanupCtx := context.WithoutCancel(ctx)
	for _, doc := range chunkedDocs {
		if _, ok := failed[doc.ID]; ok {
			p.clearPartial(cleanupCtx, doc.ID, persisted)
			report.DocumentsFailed++
			*skipped = append(*skipped, doc.ID)
			continue
		}
		if _, ok := undone[doc.ID]; ok {
			p.clearPartial(cleanupCtx, doc.ID, persisted)
			continue
		}
		report.DocumentsEmbedded++
		if doc.ContentHash != "" {
			embedded[doc.ContentHash] = struct{}{}
		}
	}

	return dispatched < len(batches), nil
}

func (p *Pipeline) clearPartial(ctx context.Context, docID uuid.UUID, persisted map[uuid.UUID]struct{}) {
	if _, ok := persisted[docID]; !ok {
		return
	}
	if err := p.deps.Chunks.DeleteByDocument(ctx, nil, docID); err != nil {
		p.log.Warn("failed to clear partial chunks",
			"document_id", docID,
			"error", err,
		)
	}
}

// loadHeaders fills the district name/state cache for every district on the
// page that is not cached yet.
func (p *Pipeline) loadHeaders(ctx context.Context, docs []*documents.Document, cache map[uuid.UUID]districtHeader) error {
	missing := make([]uuid.UUID, 0)
	for _, doc := range docs {
		if _, ok := cache[doc.DistrictID]; ok {
			continue
		}
		cache[doc.DistrictID] = districtHeader{}
		missing = append(missing, doc.DistrictID)
	}
	if len(missing) == 0 {
		return nil
	}
	list, err := p.deps.Districts.ListByIDs(ctx, nil, missing)
	if err != nil {
		return err
	}
	for _, d := range list {
		cache[d.ID] = districtHeader{Name: d.Name, State: d.State}
	}
	return nil
}

// runBatch embeds one batch and persists its rows. Failures are recorded,
// never propagated: one bad batch must not stop its siblings.
func (p *Pipeline) runBatch(
	ctx context.Context,
	batch embedBatch,
	mu *sync.Mutex,
	failed map[uuid.UUID]struct{},
	persisted map[uuid.UUID]struct{},
	report *Report,
) {
	markFailed := func() {
		mu.Lock()
		report.BatchesFailed++
		for _, id := range batch.docIDs {
			failed[id] = struct{}{}
		}
		mu.Unlock()
	}

	vecs, tokens, err := p.embedItems(ctx, batch.items)
	mu.Lock()
	report.PromptTokens += tokens
	mu.Unlock()
	if err != nil {
		p.log.Error("embedding batch failed",
			"chunks", len(batch.items),
			"documents", len(batch.docIDs),
			"error", err,
		)
		markFailed()
		return
	}

	rows := make([]*documents.DocumentChunk, len(batch.items))
	for i, it := range batch.items {
		rows[i] = &documents.DocumentChunk{
			DocumentID: it.docID,
			ChunkIndex: it.index,
			Text:       it.text,
			Embedding:  pgvector.NewVector(vecs[i]),
		}
	}

	// Rows must land even when the run is shutting down.
	stored, err := p.persistChunks(context.WithoutCancel(ctx), rows)
	mu.Lock()
	report.ChunksStored += stored
	mu.Unlock()
	if stored > 0 {
		if metrics := observability.Current(); metrics != nil {
			metrics.AddChunksStored(stored)
		}
		mu.Lock()
		for _, id := range batch.docIDs {
			persisted[id] = struct{}{}
		}
		mu.Unlock()
	}
	if err != nil {
		p.log.Error("chunk persistence incomplete",
			"stored", stored,
			"total", len(rows),
			"error", err,
		)
		markFailed()
	}
}

// embedItems embeds one batch, bisecting on oversize rejections until the
// request fits or a single chunk still will not go through.
func (p *Pipeline) embedItems(ctx context.Context, items []embedItem) ([][]float32, int, error) {
	vecs, tokens, err := p.embedWithRetry(ctx, items)
	if err == nil {
		return vecs, tokens, nil
	}
	if !openai.IsRequestTooLarge(err) || len(items) <= 1 {
		return nil, tokens, err
	}

	if metrics := observability.Current(); metrics != nil {
		metrics.IncEmbedBisect()
	}
	mid := len(items) / 2
	left, ltok, err := p.embedItems(ctx, items[:mid])
	if err != nil {
		return nil, ltok, err
	}
	right, rtok, err := p.embedItems(ctx, items[mid:])
	if err != nil {
		return nil, ltok + rtok, err
	}
	return append(left, right...), ltok + rtok, nil
}

// embedWithRetry runs the embedding-service retry policy over one request.
// Requests already in flight at shutdown complete; only further retry rounds
// are abandoned.
func (p *Pipeline) embedWithRetry(ctx context.Context, items []embedItem) ([][]float32, int, error) {
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.text
	}
	callCtx := context.WithoutCancel(ctx)

	var lastErr error
	for attempt := 1; attempt <= p.retry.MaxAttempts; attempt++ {
		vecs, usage, err := p.deps.AI.Embed(callCtx, texts)
		if err == nil {
			if len(vecs) != len(texts) {
				return nil, usage.PromptTokens, fmt.Errorf("embedding count mismatch (got %d want %d)", len(vecs), len(texts))
			}
			for i := range vecs {
				if len(vecs[i]) != documents.EmbeddingDim {
					return nil, usage.PromptTokens, fmt.Errorf("embedding dimension mismatch (got %d want %d)", len(vecs[i]), documents.EmbeddingDim)
				}
			}
			return vecs, usage.PromptTokens, nil
		}
		lastErr = err

		if openai.IsRequestTooLarge(err) || !retryableEmbedError(err) {
			return nil, 0, err
		}
		if attempt == p.retry.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return nil, 0, fmt.Errorf("embedding retry abandoned at shutdown: %w", lastErr)
		}

		sleep := httpx.JitterSleep(p.retry.BackoffFor(attempt, nil))
		p.log.Warn("embedding request retrying",
			"attempt", attempt,
			"max_attempts", p.retry.MaxAttempts,
			"chunks", len(texts),
			"sleep", sleep.String(),
			"error", err.Error(),
		)
		time.Sleep(sleep)
	}
	return nil, 0, fmt.Errorf("embedding failed after %d attempts: %w", p.retry.MaxAttempts, lastErr)
}

// retryableEmbedError: overload answers (408, 429, 5xx) and transport drops
// are worth the policy's backoff; anything else the service said on purpose.
func retryableEmbedError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var sc httpx.HTTPStatusCoder
	if errors.As(err, &sc) {
		return httpx.IsRetryableHTTPStatus(sc.HTTPStatusCode())
	}
	return true
}

// persistChunks writes rows grouped, then one by one if the grouped write
// fails. Returns how many landed.
func (p *Pipeline) persistChunks(ctx context.Context, rows []*documents.DocumentChunk) (int, error) {
	err := p.deps.Chunks.CreateBatch(ctx, nil, rows)
	if err == nil {
		return len(rows), nil
	}
	p.log.Warn("grouped chunk write failed, retrying per row",
		"rows", len(rows),
		"error", err,
	)

	stored := 0
	var lastErr error
	for _, row := range rows {
		if err := p.deps.Chunks.Create(ctx, nil, row); err != nil {
			lastErr = err
			continue
		}
		stored++
	}
	if lastErr != nil {
		return stored, fmt.Errorf("per-row chunk writes incomplete (%d of %d): %w", stored, len(rows), lastErr)
	}
	return stored, nil
}

// maybeRebuildIndex recreates the ivfflat index when the run added enough
// vectors for the old list count to be stale. lists follows sqrt(total),
// clamped inside EnsureVectorIndex.
func (p *Pipeline) maybeRebuildIndex(ctx context.Context, report *Report) {
	if report.ChunksStored < rebuildThreshold {
		return
	}
	total, err := p.deps.Chunks.CountAll(ctx, nil)
	if err != nil {
		p.log.Warn("chunk count for index rebuild failed", "error", err)
		return
	}
	lists := int(math.Round(math.Sqrt(float64(total))))
	if err := db.RebuildVectorIndex(p.deps.DB, lists); err != nil {
		p.log.Error("vector index rebuild failed", "lists", lists, "error", err)
		return
	}
	report.IndexRebuilt = true
	p.log.Info("vector index rebuilt", "total_chunks", total, "lists", lists)
}
