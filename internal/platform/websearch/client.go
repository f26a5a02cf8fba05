package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/yungbote/sitescout-backend/internal/pkg/httpx"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
	"github.com/yungbote/sitescout-backend/internal/utils"
)

// blacklistedHosts are domains a search can surface that are never the
// district's own site: social networks, review aggregators, reference sites.
var blacklistedHosts = []string{
	"facebook.com",
	"twitter.com",
	"x.com",
	"instagram.com",
	"linkedin.com",
	"youtube.com",
	"wikipedia.org",
	"yelp.com",
	"greatschools.org",
	"niche.com",
	"usnews.com",
	"publicschoolreview.com",
	"schooldigger.com",
	"zillow.com",
	"realtor.com",
	"indeed.com",
	"glassdoor.com",
	"mapquest.com",
	"patch.com",
	"ballotpedia.org",
}

type Config struct {
	BaseURL     string
	MinInterval time.Duration
	Timeout     time.Duration
}

// Client queries an HTML search endpoint and extracts result origins. Search
// traffic is rate limited far more conservatively than crawl traffic: this is
// the strategy most likely to get the whole process blocked.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger
}

func NewClient(log *logger.Logger) *Client {
	cfg := Config{
		BaseURL:     utils.GetEnv("WEBSEARCH_BASE_URL", "https://html.duckduckgo.com/html/", log),
		MinInterval: time.Duration(utils.GetEnvAsInt("WEBSEARCH_MIN_INTERVAL_SECONDS", 3, log)) * time.Second,
		Timeout:     time.Duration(utils.GetEnvAsInt("WEBSEARCH_TIMEOUT_SECONDS", 15, log)) * time.Second,
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		log:        log.With("client", "WebSearchClient"),
	}
}

// FindSite searches for the district's website and returns the first
// non-blacklisted result's origin (scheme + host, path discarded), or "" when
// nothing usable came back.
func (c *Client) FindSite(ctx context.Context, name, state string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	query := fmt.Sprintf("%q %s school district website", name, state)
	reqURL := c.cfg.BaseURL + "?q=" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("build search request: %w", err)
	}
	httpx.SetBrowserHeaders(req, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse search results: %w", err)
	}

	origin := ""
	doc.Find("a.result__a, a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		resultURL := unwrapRedirect(href)
		u, err := url.Parse(resultURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return true
		}
		if isBlacklisted(u.Host) {
			return true
		}
		origin = u.Scheme + "://" + u.Host
		return false
	})

	if origin == "" {
		c.log.Debug("search produced no usable result", "query", query)
	}
	return origin, nil
}

// unwrapRedirect extracts the destination from redirect-style result links
// (the uddg query parameter); plain links pass through.
func unwrapRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if dest := u.Query().Get("uddg"); dest != "" {
		return dest
	}
	return href
}

func isBlacklisted(host string) bool {
	host = strings.ToLower(host)
	for _, blocked := range blacklistedHosts {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return true
		}
	}
	return false
}
