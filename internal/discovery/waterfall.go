package discovery

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/sitescout-backend/internal/domain/districts"
	"github.com/yungbote/sitescout-backend/internal/pkg/httpx"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
)

// Strategy names one rung of the discovery ladder. The names are recorded on
// URL corrections and batch summaries, so they are part of the data contract.
type Strategy string

const (
	StrategyRepairKnown  Strategy = "repair_known"
	StrategyHintVariants Strategy = "hint_variants"
	StrategyEmailDomain  Strategy = "email_domain"
	StrategyNamePattern  Strategy = "name_pattern"
	StrategyWebSearch    Strategy = "web_search"
	StrategyErrorRetry   Strategy = "error_retry"
)

// strategyConfidence is the fixed confidence recorded when a strategy's URL
// becomes a correction. Name patterns are guesses; repairs of known hints are
// nearly certain.
var strategyConfidence = map[Strategy]float64{
	StrategyRepairKnown:  0.95,
	StrategyHintVariants: 0.90,
	StrategyEmailDomain:  0.85,
	StrategyNamePattern:  0.60,
	StrategyWebSearch:    0.75,
	StrategyErrorRetry:   0.90,
}

// Discovery is the waterfall's answer: a live URL plus provenance.
type Discovery struct {
	URL        string
	Strategy   Strategy
	Confidence float64
	Detail     string
}

// SiteSearcher finds a site origin for a named district. Implemented by the
// websearch client; nil disables the web-search strategy.
type SiteSearcher interface {
	FindSite(ctx context.Context, name, state string) (string, error)
}

const extendedTimeout = 30 * time.Second

// Waterfall resolves a working site URL for a district by trying cheap,
// likely strategies before expensive ones. Each strategy runs only if every
// earlier one produced nothing live.
type Waterfall struct {
	prober *Prober
	search SiteSearcher
	log    *logger.Logger

	slowClient     *http.Client
	insecureClient *http.Client
	plainClient    *http.Client
}

func NewWaterfall(prober *Prober, search SiteSearcher, log *logger.Logger) *Waterfall {
	return &Waterfall{
		prober: prober,
		search: search,
		log:    log.With("component", "Waterfall"),
		slowClient: &http.Client{
			Timeout: extendedTimeout,
		},
		insecureClient: &http.Client{
			Timeout: probeTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		plainClient: &http.Client{
			Timeout: probeTimeout,
		},
	}
}

// Discover walks the six strategies and returns the first live URL with its
// provenance. All-strategies-failed is the normal miss case and returns
// (nil, nil); the only error is context cancellation.
func (w *Waterfall) Discover(ctx context.Context, d *districts.District) (*Discovery, error) {
	hints := d.HintURLs()
	log := w.log.With("district_id", d.ID, "district", d.Name)

	// The primary hint's failure class steers the last-resort strategy.
	var primaryURL string
	var primaryFailure httpx.FailureClass

	// Strategy 1: normalize + repair each known hint.
	for hi, hint := range hints {
		for ci, cand := range RepairVariants(hint) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			live, status, err := w.prober.Check(ctx, cand)
			if hi == 0 && ci == 0 {
				primaryURL = cand
				if !live {
					primaryFailure = httpx.Classify(err, status)
				}
			}
			if live {
				log.Debug("discovery hit", "strategy", StrategyRepairKnown, "url", cand)
				return w.found(StrategyRepairKnown, cand, fmt.Sprintf("repaired from %q", hint)), nil
			}
		}
	}

	// Strategy 2: www/scheme permutations of every hint.
	for _, hint := range hints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if live := w.prober.FirstLive(ctx, HostPermutations(hint)); live != "" {
			log.Debug("discovery hit", "strategy", StrategyHintVariants, "url", live)
			return w.found(StrategyHintVariants, live, fmt.Sprintf("permuted from %q", hint)), nil
		}
	}

	// Strategy 3: contact-email domain.
	if d.ContactEmail != "" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if live := w.prober.FirstLive(ctx, EmailDomainCandidates(d.ContactEmail)); live != "" {
			log.Debug("discovery hit", "strategy", StrategyEmailDomain, "url", live)
			return w.found(StrategyEmailDomain, live, "derived from contact email domain"), nil
		}
	}

	// Strategy 4: name/jurisdiction hostname patterns.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if live := w.prober.FirstLive(ctx, NameCandidates(d.Name, d.State)); live != "" {
		log.Debug("discovery hit", "strategy", StrategyNamePattern, "url", live)
		return w.found(StrategyNamePattern, live, "matched name pattern candidate"), nil
	}

	// Strategy 5: web search.
	if w.search != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		origin, err := w.search.FindSite(ctx, d.Name, d.State)
		if err != nil {
			log.Warn("web search failed", "error", err)
		} else if origin != "" {
			if normalized, ok := Normalize(origin); ok && w.prober.Live(ctx, normalized) {
				log.Debug("discovery hit", "strategy", StrategyWebSearch, "url", normalized)
				return w.found(StrategyWebSearch, normalized, "first non-blacklisted search result"), nil
			}
		}
	}

	// Strategy 6: error-specific retry of the primary hint.
	if primaryURL != "" && primaryFailure != "" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if disc := w.errorRetry(ctx, d, primaryURL, primaryFailure); disc != nil {
			log.Debug("discovery hit", "strategy", StrategyErrorRetry, "url", disc.URL)
			return disc, nil
		}
	}

	log.Debug("discovery exhausted", "hints", len(hints))
	return nil, nil
}

// errorRetry is the last resort: one targeted retry shaped by how the primary
// hint failed.
func (w *Waterfall) errorRetry(ctx context.Context, d *districts.District, failedURL string, class httpx.FailureClass) *Discovery {
	switch class {
	case httpx.FailureTimeout:
		if w.checkWith(ctx, w.slowClient, failedURL, "") {
			return w.found(StrategyErrorRetry, failedURL, "succeeded with extended timeout")
		}
	case httpx.FailureTLS:
		if downgraded, ok := downgradeScheme(failedURL); ok {
			if w.checkWith(ctx, w.plainClient, downgraded, "") {
				return w.found(StrategyErrorRetry, downgraded, "succeeded over http after tls failure")
			}
		}
		if w.checkWith(ctx, w.insecureClient, failedURL, "") {
			return w.found(StrategyErrorRetry, failedURL, "succeeded with tls verification bypassed")
		}
	case httpx.FailureDenied:
		referer := "https://www.google.com/search?q=" +
			url.QueryEscape(d.Name+" "+d.State+" school district")
		if w.checkWith(ctx, w.plainClient, failedURL, referer) {
			return w.found(StrategyErrorRetry, failedURL, "succeeded with browser profile")
		}
	}
	return nil
}

// checkWith issues one GET through the given client, optionally with the full
// browser header profile.
func (w *Waterfall) checkWith(ctx context.Context, client *http.Client, rawURL, referer string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false
	}
	if referer != "" {
		httpx.SetBrowserHeaders(req, referer)
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 400
}

func (w *Waterfall) found(s Strategy, liveURL, detail string) *Discovery {
	return &Discovery{
		URL:        liveURL,
		Strategy:   s,
		Confidence: strategyConfidence[s],
		Detail:     detail,
	}
}

func downgradeScheme(rawURL string) (string, bool) {
	if strings.HasPrefix(rawURL, "https://") {
		return "http://" + strings.TrimPrefix(rawURL, "https://"), true
	}
	return "", false
}

// NeedsCorrection reports whether a discovery landed somewhere none of the
// hints pointed, which is what warrants a URL correction row.
func NeedsCorrection(disc *Discovery, hints []string) bool {
	if disc == nil {
		return false
	}
	for _, h := range hints {
		normalized, ok := Normalize(h)
		if !ok {
			continue
		}
		if SameRegistrableDomain(disc.URL, normalized) {
			return false
		}
	}
	return true
}
