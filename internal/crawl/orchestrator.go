package crawl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/yungbote/sitescout-backend/internal/data/repos/crawl"
	docrepos "github.com/yungbote/sitescout-backend/internal/data/repos/documents"
	"github.com/yungbote/sitescout-backend/internal/discovery"
	crawldomain "github.com/yungbote/sitescout-backend/internal/domain/crawl"
	"github.com/yungbote/sitescout-backend/internal/domain/districts"
	"github.com/yungbote/sitescout-backend/internal/domain/documents"
	"github.com/yungbote/sitescout-backend/internal/observability"
	"github.com/yungbote/sitescout-backend/internal/pkg/httpx"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
)

const (
	collectInternalCap = 20
	collectDocumentCap = 10
	topInternalLinks   = 3
	topDocumentLinks   = 2
)

// OrchestratorDeps wires the orchestrator. All fields except OnDistrictDone
// are required.
type OrchestratorDeps struct {
	Waterfall       *discovery.Waterfall
	Fetcher         *Fetcher
	Robots          *RobotsCache
	DocumentRepo    docrepos.DocumentRepo
	AttemptRepo     crawl.AttemptRepo
	CorrectionRepo  crawl.URLCorrectionRepo
	Log             *logger.Logger
	Concurrency     int
	PolitenessDelay time.Duration

	// OnDistrictDone, when set, observes each finished district.
	OnDistrictDone func(batchID, districtID uuid.UUID, name string, ok bool)
}

// BatchSummary is what one RunBatch pass produced, aggregated in memory;
// attempt-level counts live in the crawl_attempt table.
type BatchSummary struct {
	DistrictsTotal     int
	DistrictsSucceeded int
	DistrictsFailed    int
	StrategyCounts     map[string]int
}

// Orchestrator runs the discover → fetch → extract → store → log cycle over
// districts with a bounded worker pool. One district's failure never stops
// the batch.
type Orchestrator struct {
	deps OrchestratorDeps
	log  *logger.Logger
}

func NewOrchestrator(deps OrchestratorDeps) (*Orchestrator, error) {
	if deps.Waterfall == nil || deps.Fetcher == nil || deps.Robots == nil {
		return nil, fmt.Errorf("orchestrator: missing crawl dependencies")
	}
	if deps.DocumentRepo == nil || deps.AttemptRepo == nil || deps.CorrectionRepo == nil {
		return nil, fmt.Errorf("orchestrator: missing repositories")
	}
	if deps.Log == nil {
		return nil, fmt.Errorf("orchestrator: missing logger")
	}
	if deps.Concurrency <= 0 {
		deps.Concurrency = 8
	}
	if deps.PolitenessDelay <= 0 {
		deps.PolitenessDelay = time.Second
	}
	return &Orchestrator{deps: deps, log: deps.Log.With("component", "Orchestrator")}, nil
}

// RunBatch crawls every district through the worker pool and returns the
// in-memory summary. Cancellation stops scheduling new districts; districts
// already running finish and persist.
func (o *Orchestrator) RunBatch(ctx context.Context, batchID uuid.UUID, list []districts.District) *BatchSummary {
	summary := &BatchSummary{
		DistrictsTotal: len(list),
		StrategyCounts: make(map[string]int),
	}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(o.deps.Concurrency)

	for i := range list {
		if ctx.Err() != nil {
			break
		}
		d := list[i]
		g.Go(func() error {
			ok, strategy := o.CrawlDistrict(ctx, &d, batchID)

			mu.Lock()
			if ok {
				summary.DistrictsSucceeded++
			} else {
				summary.DistrictsFailed++
			}
			summary.StrategyCounts[strategy]++
			mu.Unlock()

			if o.deps.OnDistrictDone != nil {
				o.deps.OnDistrictDone(batchID, d.ID, d.Name, ok)
			}
			return nil
		})
	}
	_ = g.Wait()
	return summary
}

// CrawlDistrict resolves one district's site and crawls its entry page plus a
// small link expansion. Returns whether a depth-0 document was stored and the
// name of the discovery strategy that won ("none" if discovery failed).
func (o *Orchestrator) CrawlDistrict(ctx context.Context, d *districts.District, batchID uuid.UUID) (bool, string) {
	log := o.log.With("district_id", d.ID, "district", d.Name)

	disc, err := o.deps.Waterfall.Discover(ctx, d)
	if err != nil {
		log.Warn("discovery aborted", "error", err)
		return false, "none"
	}
	if disc == nil {
		o.recordAttempt(ctx, &crawldomain.Attempt{
			DistrictID:  d.ID,
			BatchID:     batchID,
			URL:         firstOr(d.HintURLs(), ""),
			URLRole:     crawldomain.RoleEntry,
			Outcome:     crawldomain.OutcomeFailed,
			ErrorDetail: "discovery exhausted: no strategy produced a live url",
		})
		log.Info("district unresolvable", "hints", len(d.HintURLs()))
		if metrics := observability.Current(); metrics != nil {
			metrics.IncDiscoveryMiss()
		}
		return false, "none"
	}
	if metrics := observability.Current(); metrics != nil {
		metrics.ObserveDiscovery(string(disc.Strategy))
	}

	if discovery.NeedsCorrection(disc, d.HintURLs()) {
		correction := &crawldomain.URLCorrection{
			DistrictID: d.ID,
			OldURL:     firstOr(d.HintURLs(), ""),
			NewURL:     disc.URL,
			Strategy:   string(disc.Strategy),
			Confidence: disc.Confidence,
			Detail:     disc.Detail,
			Validated:  true,
		}
		if err := o.deps.CorrectionRepo.Create(ctx, nil, correction); err != nil {
			log.Warn("failed to record url correction", "error", err)
		} else if metrics := observability.Current(); metrics != nil {
			metrics.IncCorrection()
		}
	}

	entryDoc, links := o.fetchAndStore(ctx, d, batchID, disc.URL, crawldomain.RoleEntry, 0, entryOptions(disc))
	if entryDoc == nil {
		return false, string(disc.Strategy)
	}

	o.expandLinks(ctx, d, batchID, entryDoc, links)
	return true, string(disc.Strategy)
}

// entryOptions maps the winning discovery strategy onto fetch options, so a
// site that only answered the error-specific retry is fetched the same way.
func entryOptions(disc *discovery.Discovery) FetchOptions {
	if disc.Strategy != discovery.StrategyErrorRetry {
		return FetchOptions{}
	}
	return FetchOptions{
		ExtendedTimeout: strings.Contains(disc.Detail, "timeout"),
		InsecureTLS:     strings.Contains(disc.Detail, "bypassed"),
		BrowserProfile:  strings.Contains(disc.Detail, "browser"),
	}
}

// fetchAndStore performs one fetch, always records the attempt, and upserts a
// document when extraction succeeds. The returned links come from HTML pages
// only.
func (o *Orchestrator) fetchAndStore(
	ctx context.Context,
	d *districts.District,
	batchID uuid.UUID,
	rawURL string,
	role crawldomain.URLRole,
	depth int,
	opts FetchOptions,
) (*documents.Document, *ExtractResult) {
	log := o.log.With("district_id", d.ID, "url", rawURL)

	attempt := &crawldomain.Attempt{
		DistrictID: d.ID,
		BatchID:    batchID,
		URL:        rawURL,
		URLRole:    role,
	}

	result, err := o.deps.Fetcher.Fetch(ctx, rawURL, opts)
	if err != nil {
		attempt.Outcome = crawldomain.OutcomeFailed
		if httpx.Classify(err, 0) == httpx.FailureTimeout {
			attempt.Outcome = crawldomain.OutcomeTimeout
		}
		attempt.ErrorDetail = err.Error()
		o.recordAttempt(ctx, attempt)
		if metrics := observability.Current(); metrics != nil {
			metrics.ObserveFetch(string(attempt.Outcome), 0)
		}
		log.Debug("fetch failed", "error", err, "outcome", attempt.Outcome)
		return nil, nil
	}

	attempt.HTTPStatus = result.StatusCode
	attempt.ContentType = result.ContentType
	attempt.LatencyMS = result.Latency.Milliseconds()

	if result.StatusCode < 200 || result.StatusCode >= 300 {
		attempt.Outcome = crawldomain.OutcomeFailed
		attempt.ErrorDetail = fmt.Sprintf("http status %d", result.StatusCode)
		o.recordAttempt(ctx, attempt)
		if metrics := observability.Current(); metrics != nil {
			metrics.ObserveFetch(string(attempt.Outcome), result.Latency)
		}
		return nil, nil
	}

	base, _ := url.Parse(result.FinalURL)
	extracted, err := Extract(result.Body, result.ContentType, base)
	if err != nil {
		attempt.Outcome = crawldomain.OutcomeFailed
		attempt.ErrorDetail = "extraction failed: " + err.Error()
		o.recordAttempt(ctx, attempt)
		if metrics := observability.Current(); metrics != nil {
			metrics.ObserveFetch(string(attempt.Outcome), result.Latency)
		}
		log.Debug("extraction failed", "error", err)
		return nil, nil
	}

	matched := DetectKeywords(extracted.Text)
	category := Categorize(result.FinalURL, extracted.Title, extracted.Text)

	now := time.Now().UTC()
	doc := &documents.Document{
		DistrictID:       d.ID,
		URL:              result.FinalURL,
		ContentType:      contentTypeFor(extracted.Method, role),
		Title:            extracted.Title,
		Category:         category,
		Text:             extracted.Text,
		TextLength:       len(extracted.Text),
		ExtractionMethod: extracted.Method,
		LinkDepth:        depth,
		ContentHash:      ContentHash(extracted.Text),
		DiscoveredAt:     now,
		LastCrawledAt:    now,
	}
	if err := o.deps.DocumentRepo.Upsert(context.WithoutCancel(ctx), nil, doc); err != nil {
		attempt.Outcome = crawldomain.OutcomeFailed
		attempt.ErrorDetail = "store failed: " + err.Error()
		o.recordAttempt(ctx, attempt)
		log.Error("document upsert failed", "error", err)
		return nil, nil
	}

	attempt.Outcome = crawldomain.OutcomeSuccess
	attempt.Extracted = true
	if len(matched) > 0 {
		if raw, err := json.Marshal(matched); err == nil {
			attempt.MatchedKeywords = datatypes.JSON(raw)
		}
	}
	o.recordAttempt(ctx, attempt)
	if metrics := observability.Current(); metrics != nil {
		metrics.ObserveFetch(string(crawldomain.OutcomeSuccess), result.Latency)
		metrics.IncDocumentStored(string(doc.ContentType))
	}

	log.Debug("stored document",
		"category", category, "depth", depth, "text_len", doc.TextLength, "keywords", len(matched))
	return doc, extracted
}

// expandLinks crawls the best few internal and document links one hop deep.
// Fetches are sequential with the politeness delay between them; robots.txt
// denials are recorded as skipped attempts.
func (o *Orchestrator) expandLinks(ctx context.Context, d *districts.District, batchID uuid.UUID, entry *documents.Document, extracted *ExtractResult) {
	if extracted == nil {
		return
	}
	internal := topLinks(extracted.InternalLinks, collectInternalCap, topInternalLinks, true)
	docLinks := topLinks(extracted.DocumentLinks, collectDocumentCap, topDocumentLinks, false)

	type expansion struct {
		link Link
		role crawldomain.URLRole
		opts FetchOptions
	}
	var queue []expansion
	for _, l := range internal {
		queue = append(queue, expansion{l, crawldomain.RoleInternalLink, FetchOptions{Referer: entry.URL}})
	}
	for _, l := range docLinks {
		queue = append(queue, expansion{l, crawldomain.RoleDocumentLink, FetchOptions{BinaryMode: true, Referer: entry.URL}})
	}

	for _, item := range queue {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(o.deps.PolitenessDelay):
		}

		if !o.deps.Robots.Allowed(ctx, item.link.URL) {
			o.recordAttempt(ctx, &crawldomain.Attempt{
				DistrictID:  d.ID,
				BatchID:     batchID,
				URL:         item.link.URL,
				URLRole:     item.role,
				Outcome:     crawldomain.OutcomeSkipped,
				ErrorDetail: "disallowed by robots.txt",
			})
			if metrics := observability.Current(); metrics != nil {
				metrics.IncRobotsDenied()
			}
			continue
		}
		o.fetchAndStore(ctx, d, batchID, item.link.URL, item.role, 1, item.opts)
	}
}

// topLinks caps the candidate list, scores it, and keeps the best few.
// requirePositive drops zero-score candidates (used for internal pages;
// document links are inherently worth fetching).
func topLinks(links []Link, collectCap, keep int, requirePositive bool) []Link {
	if len(links) > collectCap {
		links = links[:collectCap]
	}
	type scored struct {
		link  Link
		score int
	}
	ranked := make([]scored, 0, len(links))
	for _, l := range links {
		s := scoreLink(l)
		if requirePositive && s <= 0 {
			continue
		}
		ranked = append(ranked, scored{l, s})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > keep {
		ranked = ranked[:keep]
	}
	out := make([]Link, len(ranked))
	for i, r := range ranked {
		out[i] = r.link
	}
	return out
}

// scoreLink rates a link's crawl value: discovery keywords in the URL or
// anchor, a bonus for shallow paths, a penalty for query strings.
func scoreLink(l Link) int {
	haystack := strings.ToLower(l.URL + " " + l.Anchor)
	score := 0
	for _, kw := range discoveryKeywords {
		if strings.Contains(haystack, kw.Pattern) {
			score += 2
		}
	}
	if u, err := url.Parse(l.URL); err == nil {
		segments := 0
		for _, part := range strings.Split(u.Path, "/") {
			if part != "" {
				segments++
			}
		}
		if segments <= 2 {
			score++
		}
		if u.RawQuery != "" {
			score--
		}
	}
	return score
}

// recordAttempt writes the audit row. The write is detached from run
// cancellation: an aborted fetch still leaves its attempt behind.
func (o *Orchestrator) recordAttempt(ctx context.Context, attempt *crawldomain.Attempt) {
	if err := o.deps.AttemptRepo.Create(context.WithoutCancel(ctx), nil, attempt); err != nil {
		o.log.Error("failed to record crawl attempt", "url", attempt.URL, "error", err)
	}
}

func contentTypeFor(method documents.ExtractionMethod, role crawldomain.URLRole) documents.ContentType {
	if method != documents.ExtractionPDFParse {
		return documents.ContentTypeHTML
	}
	if role == crawldomain.RoleDocumentLink {
		return documents.ContentTypePDFEmbedded
	}
	return documents.ContentTypePDF
}

// ContentHash digests extracted text for exact-duplicate detection.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func firstOr(list []string, fallback string) string {
	if len(list) > 0 {
		return list[0]
	}
	return fallback
}
