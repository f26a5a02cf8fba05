package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/yungbote/sitescout-backend/internal/domain/districts"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
)

func testLog(t *testing.T) *logger.Logger {
	t.Helper()
	return logger.NewNop()
}

func TestProberCheck_HeadOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewProber(testLog(t))
	live, status, err := p.Check(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !live || status != http.StatusOK {
		t.Fatalf("expected live 200, got live=%v status=%d", live, status)
	}
}

func TestProberCheck_MethodNotAllowedFallsBackToRangedGet(t *testing.T) {
	var sawRange atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get("Range") == "bytes=0-1023" {
			sawRange.Store(true)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewProber(testLog(t))
	live, status, err := p.Check(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !live || status != http.StatusOK {
		t.Fatalf("expected live 200 after GET fallback, got live=%v status=%d", live, status)
	}
	if !sawRange.Load() {
		t.Fatal("expected the fallback GET to carry a Range header")
	}
}

func TestProberCheck_NotFoundIsDead(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	p := NewProber(testLog(t))
	live, status, err := p.Check(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if live || status != http.StatusNotFound {
		t.Fatalf("expected dead 404, got live=%v status=%d", live, status)
	}
}

func TestProberResolves_IPLiteralAndCache(t *testing.T) {
	p := NewProber(testLog(t))
	ctx := context.Background()

	if !p.Resolves(ctx, "127.0.0.1:9999") {
		t.Fatal("expected IP literal to resolve")
	}

	// Seeded cache entries short-circuit the resolver entirely.
	p.mu.Lock()
	p.dns["cached-live.example"] = true
	p.dns["cached-dead.example"] = false
	p.mu.Unlock()

	if !p.Resolves(ctx, "cached-live.example") {
		t.Fatal("expected cached positive entry to resolve")
	}
	if p.Resolves(ctx, "cached-dead.example:443") {
		t.Fatal("expected cached negative entry not to resolve")
	}
}

func TestProberFirstLive(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	defer dead.Close()
	alive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer alive.Close()

	p := NewProber(testLog(t))
	if got := p.FirstLive(context.Background(), []string{dead.URL, alive.URL}); got != alive.URL {
		t.Fatalf("expected %q, got %q", alive.URL, got)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if got := p.FirstLive(cancelled, []string{alive.URL}); got != "" {
		t.Fatalf("expected empty result under cancelled context, got %q", got)
	}
}

// quietDistrict has a name that produces no hostname candidates, so a test
// controls exactly which strategies have anything to try.
func quietDistrict(hint string) *districts.District {
	return &districts.District{
		Name:        "School District No. 7",
		State:       "CA",
		RegistryURL: hint,
	}
}

func TestWaterfallDiscover_RepairKnownHit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWaterfall(NewProber(testLog(t)), nil, testLog(t))
	disc, err := w.Discover(context.Background(), quietDistrict(srv.URL))
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if disc == nil {
		t.Fatal("expected a discovery")
	}
	if disc.Strategy != StrategyRepairKnown {
		t.Fatalf("expected strategy %q, got %q", StrategyRepairKnown, disc.Strategy)
	}
	if disc.URL != srv.URL {
		t.Fatalf("expected %q, got %q", srv.URL, disc.URL)
	}
	if disc.Confidence != 0.95 {
		t.Fatalf("expected confidence 0.95, got %v", disc.Confidence)
	}
}

func TestWaterfallDiscover_DeniedRetriesWithBrowserProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if !strings.Contains(r.Header.Get("User-Agent"), "Mozilla/5.0") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWaterfall(NewProber(testLog(t)), nil, testLog(t))
	disc, err := w.Discover(context.Background(), quietDistrict(srv.URL))
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if disc == nil {
		t.Fatal("expected the denied hint to succeed with a browser profile")
	}
	if disc.Strategy != StrategyErrorRetry {
		t.Fatalf("expected strategy %q, got %q", StrategyErrorRetry, disc.Strategy)
	}
	if disc.URL != srv.URL {
		t.Fatalf("expected %q, got %q", srv.URL, disc.URL)
	}
	if disc.Detail != "succeeded with browser profile" {
		t.Fatalf("unexpected detail %q", disc.Detail)
	}
}

func TestWaterfallDiscover_AllStrategiesMiss(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	w := NewWaterfall(NewProber(testLog(t)), nil, testLog(t))
	disc, err := w.Discover(context.Background(), quietDistrict(srv.URL))
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if disc != nil {
		t.Fatalf("expected no discovery, got %+v", disc)
	}
}

type fixedSearcher struct {
	origin string
	calls  atomic.Int32
}

func (f *fixedSearcher) FindSite(ctx context.Context, name, state string) (string, error) {
	f.calls.Add(1)
	return f.origin, nil
}

func TestWaterfallDiscover_WebSearchFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	search := &fixedSearcher{origin: srv.URL}
	w := NewWaterfall(NewProber(testLog(t)), search, testLog(t))

	// No hints and a candidate-free name leave web search as the only rung.
	d := &districts.District{Name: "School District No. 7", State: "CA"}
	disc, err := w.Discover(context.Background(), d)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if disc == nil {
		t.Fatal("expected the search result to be used")
	}
	if disc.Strategy != StrategyWebSearch {
		t.Fatalf("expected strategy %q, got %q", StrategyWebSearch, disc.Strategy)
	}
	if disc.URL != srv.URL {
		t.Fatalf("expected %q, got %q", srv.URL, disc.URL)
	}
	if search.calls.Load() != 1 {
		t.Fatalf("expected one search call, got %d", search.calls.Load())
	}
}

func TestWaterfallDiscover_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewWaterfall(NewProber(testLog(t)), nil, testLog(t))
	d := &districts.District{Name: "School District No. 7", State: "CA"}
	if _, err := w.Discover(ctx, d); err == nil {
		t.Fatal("expected context error")
	}
}

func TestNeedsCorrection(t *testing.T) {
	disc := &Discovery{URL: "https://www.newsite.org", Strategy: StrategyWebSearch}

	if !NeedsCorrection(disc, []string{"https://oldsite.org"}) {
		t.Fatal("expected a correction when the discovery left the hint domain")
	}
	if NeedsCorrection(disc, []string{"http://newsite.org/welcome"}) {
		t.Fatal("expected no correction when a hint shares the domain")
	}
	if NeedsCorrection(nil, []string{"https://oldsite.org"}) {
		t.Fatal("expected no correction for a nil discovery")
	}
	if !NeedsCorrection(disc, []string{"n/a"}) {
		t.Fatal("expected junk hints to be ignored when comparing domains")
	}
}
