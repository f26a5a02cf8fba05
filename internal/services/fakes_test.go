package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	crawlrepos "github.com/yungbote/sitescout-backend/internal/data/repos/crawl"
	distrepos "github.com/yungbote/sitescout-backend/internal/data/repos/districts"
	docrepos "github.com/yungbote/sitescout-backend/internal/data/repos/documents"
	scorerepos "github.com/yungbote/sitescout-backend/internal/data/repos/scoring"
	crawldomain "github.com/yungbote/sitescout-backend/internal/domain/crawl"
	"github.com/yungbote/sitescout-backend/internal/domain/districts"
	"github.com/yungbote/sitescout-backend/internal/domain/documents"
	scoringdomain "github.com/yungbote/sitescout-backend/internal/domain/scoring"
	"github.com/yungbote/sitescout-backend/internal/events"
	apperrors "github.com/yungbote/sitescout-backend/internal/pkg/errors"
	"github.com/yungbote/sitescout-backend/internal/platform/openai"
)

// svcStore backs the repo fakes for service tests. One store per test, shared
// by every fake so cross-repo effects (attempt counts, chunk presence) line up.
type svcStore struct {
	mu        sync.Mutex
	districts map[uuid.UUID]*districts.District
	docs      map[uuid.UUID]*documents.Document
	chunks    []*documents.DocumentChunk
	batches   map[uuid.UUID]*crawldomain.Batch
	attempts  []*crawldomain.Attempt
	scores    map[uuid.UUID]*scoringdomain.KeywordScore
}

func newSvcStore() *svcStore {
	return &svcStore{
		districts: map[uuid.UUID]*districts.District{},
		docs:      map[uuid.UUID]*documents.Document{},
		batches:   map[uuid.UUID]*crawldomain.Batch{},
		scores:    map[uuid.UUID]*scoringdomain.KeywordScore{},
	}
}

func (s *svcStore) addDistrict(d *districts.District) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	s.districts[d.ID] = d
}

func (s *svcStore) docHasChunks(docID uuid.UUID) bool {
	for _, c := range s.chunks {
		if c.DocumentID == docID {
			return true
		}
	}
	return false
}

type svcDistrictRepo struct{ s *svcStore }

var _ distrepos.DistrictRepo = (*svcDistrictRepo)(nil)

func (r *svcDistrictRepo) Create(_ context.Context, _ *gorm.DB, d *districts.District) error {
	r.s.addDistrict(d)
	return nil
}

func (r *svcDistrictRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*districts.District, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.districts[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *svcDistrictRepo) ListAll(_ context.Context, _ *gorm.DB) ([]districts.District, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]districts.District, 0, len(r.s.districts))
	for _, d := range r.s.districts {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *svcDistrictRepo) ListByState(_ context.Context, _ *gorm.DB, state string) ([]districts.District, error) {
	all, _ := r.ListAll(nil, nil)
	out := all[:0]
	for _, d := range all {
		if d.State == state {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *svcDistrictRepo) ListByIDs(_ context.Context, _ *gorm.DB, ids []uuid.UUID) ([]districts.District, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]districts.District, 0, len(ids))
	for _, id := range ids {
		if d, ok := r.s.districts[id]; ok {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *svcDistrictRepo) Count(_ context.Context, _ *gorm.DB) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.districts)), nil
}

type svcDocRepo struct {
	s *svcStore

	// listErrFor makes ListByDistrict fail for one district.
	listErrFor map[uuid.UUID]error

	// blockHashes parks ListEmbeddedHashes until the caller's context ends.
	blockHashes bool
}

var _ docrepos.DocumentRepo = (*svcDocRepo)(nil)

func (r *svcDocRepo) Upsert(_ context.Context, _ *gorm.DB, doc *documents.Document) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.docs {
		if existing.DistrictID == doc.DistrictID && existing.URL == doc.URL {
			doc.ID = existing.ID
			*existing = *doc
			return nil
		}
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	cp := *doc
	r.s.docs[doc.ID] = &cp
	return nil
}

func (r *svcDocRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*documents.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.docs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *svcDocRepo) GetByDistrictAndURL(_ context.Context, _ *gorm.DB, districtID uuid.UUID, url string) (*documents.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, d := range r.s.docs {
		if d.DistrictID == districtID && d.URL == url {
			cp := *d
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *svcDocRepo) ListByDistrict(_ context.Context, _ *gorm.DB, districtID uuid.UUID, minTextLength int) ([]documents.Document, error) {
	if err := r.listErrFor[districtID]; err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []documents.Document
	for _, d := range r.s.docs {
		if d.DistrictID == districtID && d.TextLength >= minTextLength {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func (r *svcDocRepo) ListMissingChunks(_ context.Context, _ *gorm.DB, excludeIDs []uuid.UUID, limit int) ([]documents.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	excluded := map[uuid.UUID]bool{}
	for _, id := range excludeIDs {
		excluded[id] = true
	}
	var out []documents.Document
	for _, d := range r.s.docs {
		if excluded[d.ID] || r.s.docHasChunks(d.ID) {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *svcDocRepo) ListEmbeddedHashes(ctx context.Context, _ *gorm.DB) ([]string, error) {
	if r.blockHashes {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, d := range r.s.docs {
		if r.s.docHasChunks(d.ID) && !seen[d.ContentHash] {
			seen[d.ContentHash] = true
			out = append(out, d.ContentHash)
		}
	}
	return out, nil
}

func (r *svcDocRepo) CountByDistrict(_ context.Context, _ *gorm.DB, districtID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, d := range r.s.docs {
		if d.DistrictID == districtID {
			n++
		}
	}
	return n, nil
}

type svcChunkRepo struct {
	s *svcStore

	searchResults []docrepos.ChunkMatch
	lastLimit     int
}

var _ docrepos.DocumentChunkRepo = (*svcChunkRepo)(nil)

func (r *svcChunkRepo) CreateBatch(_ context.Context, _ *gorm.DB, chunks []*documents.DocumentChunk) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range chunks {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		cp := *c
		r.s.chunks = append(r.s.chunks, &cp)
	}
	return nil
}

func (r *svcChunkRepo) Create(_ context.Context, _ *gorm.DB, chunk *documents.DocumentChunk) error {
	return r.CreateBatch(nil, nil, []*documents.DocumentChunk{chunk})
}

func (r *svcChunkRepo) DeleteByDocument(_ context.Context, _ *gorm.DB, documentID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.chunks[:0]
	for _, c := range r.s.chunks {
		if c.DocumentID != documentID {
			kept = append(kept, c)
		}
	}
	r.s.chunks = kept
	return nil
}

func (r *svcChunkRepo) CountAll(_ context.Context, _ *gorm.DB) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.chunks)), nil
}

func (r *svcChunkRepo) HasChunks(_ context.Context, _ *gorm.DB, documentID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.docHasChunks(documentID), nil
}

func (r *svcChunkRepo) Search(_ context.Context, _ *gorm.DB, _ pgvector.Vector, limit int) ([]docrepos.ChunkMatch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.lastLimit = limit
	return r.searchResults, nil
}

type svcBatchRepo struct{ s *svcStore }

var _ crawlrepos.BatchRepo = (*svcBatchRepo)(nil)

func (r *svcBatchRepo) Create(_ context.Context, _ *gorm.DB, batch *crawldomain.Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	cp := *batch
	r.s.batches[batch.ID] = &cp
	return nil
}

func (r *svcBatchRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*crawldomain.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *svcBatchRepo) Update(_ context.Context, _ *gorm.DB, batch *crawldomain.Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *batch
	r.s.batches[batch.ID] = &cp
	return nil
}

func (r *svcBatchRepo) ClaimNextQueued(_ context.Context) (*crawldomain.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var oldest *crawldomain.Batch
	for _, b := range r.s.batches {
		if b.Status != crawldomain.BatchQueued {
			continue
		}
		if oldest == nil || b.CreatedAt.Before(oldest.CreatedAt) {
			oldest = b
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.Status = crawldomain.BatchRunning
	cp := *oldest
	return &cp, nil
}

func (r *svcBatchRepo) ListRecent(_ context.Context, _ *gorm.DB, limit int) ([]crawldomain.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]crawldomain.Batch, 0, len(r.s.batches))
	for _, b := range r.s.batches {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type svcAttemptRepo struct{ s *svcStore }

var _ crawlrepos.AttemptRepo = (*svcAttemptRepo)(nil)

func (r *svcAttemptRepo) Create(_ context.Context, _ *gorm.DB, attempt *crawldomain.Attempt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	cp := *attempt
	r.s.attempts = append(r.s.attempts, &cp)
	return nil
}

func (r *svcAttemptRepo) ListByBatch(_ context.Context, _ *gorm.DB, batchID uuid.UUID) ([]crawldomain.Attempt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []crawldomain.Attempt
	for _, a := range r.s.attempts {
		if a.BatchID == batchID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *svcAttemptRepo) ListByDistrict(_ context.Context, _ *gorm.DB, districtID uuid.UUID, limit int) ([]crawldomain.Attempt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []crawldomain.Attempt
	for _, a := range r.s.attempts {
		if a.DistrictID == districtID {
			out = append(out, *a)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *svcAttemptRepo) CountByBatchOutcome(_ context.Context, _ *gorm.DB, batchID uuid.UUID) (map[crawldomain.Outcome]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[crawldomain.Outcome]int{}
	for _, a := range r.s.attempts {
		if a.BatchID == batchID {
			out[a.Outcome]++
		}
	}
	return out, nil
}

type svcCorrectionRepo struct{ s *svcStore }

var _ crawlrepos.URLCorrectionRepo = (*svcCorrectionRepo)(nil)

func (r *svcCorrectionRepo) Create(_ context.Context, _ *gorm.DB, _ *crawldomain.URLCorrection) error {
	return nil
}

func (r *svcCorrectionRepo) ListByDistrict(_ context.Context, _ *gorm.DB, _ uuid.UUID) ([]crawldomain.URLCorrection, error) {
	return nil, nil
}

func (r *svcCorrectionRepo) ListUnvalidated(_ context.Context, _ *gorm.DB, _ int) ([]crawldomain.URLCorrection, error) {
	return nil, nil
}

type svcScoreRepo struct{ s *svcStore }

var _ scorerepos.KeywordScoreRepo = (*svcScoreRepo)(nil)

func (r *svcScoreRepo) Upsert(_ context.Context, _ *gorm.DB, score *scoringdomain.KeywordScore) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *score
	r.s.scores[score.DistrictID] = &cp
	return nil
}

func (r *svcScoreRepo) GetByDistrict(_ context.Context, _ *gorm.DB, districtID uuid.UUID) (*scoringdomain.KeywordScore, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sc, ok := r.s.scores[districtID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *sc
	return &cp, nil
}

func (r *svcScoreRepo) ListByTier(_ context.Context, _ *gorm.DB, tier int) ([]scoringdomain.KeywordScore, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []scoringdomain.KeywordScore
	for _, sc := range r.s.scores {
		if sc.Tier == tier {
			out = append(out, *sc)
		}
	}
	return out, nil
}

func (r *svcScoreRepo) ListTop(_ context.Context, _ *gorm.DB, limit int) ([]scoringdomain.KeywordScore, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []scoringdomain.KeywordScore
	for _, sc := range r.s.scores {
		out = append(out, *sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompositeScore > out[j].CompositeScore })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// svcBus records published run events.
type svcBus struct {
	mu     sync.Mutex
	events []events.RunEvent
}

var _ events.Bus = (*svcBus)(nil)

func (b *svcBus) Publish(_ context.Context, ev events.RunEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return nil
}

func (b *svcBus) Close() error { return nil }

func (b *svcBus) stages(kind string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, ev := range b.events {
		if ev.Kind == kind {
			out = append(out, ev.Stage)
		}
	}
	return out
}

// svcAI embeds inputs locally so service tests never touch the network.
type svcAI struct {
	mu      sync.Mutex
	calls   int
	embedFn func(inputs []string) ([][]float32, error)
}

var _ openai.Client = (*svcAI)(nil)

func (a *svcAI) Embed(_ context.Context, inputs []string) ([][]float32, openai.Usage, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.embedFn != nil {
		vecs, err := a.embedFn(inputs)
		return vecs, openai.Usage{PromptTokens: 7 * len(inputs)}, err
	}
	vecs := make([][]float32, len(inputs))
	for i := range inputs {
		vec := make([]float32, documents.EmbeddingDim)
		vec[0] = float32(i + 1)
		vecs[i] = vec
	}
	return vecs, openai.Usage{PromptTokens: 7 * len(inputs)}, nil
}

func (a *svcAI) EmbedModel() string { return "text-embedding-3-small" }

func (a *svcAI) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}
