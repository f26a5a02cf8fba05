package crawl

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
)

const crawlerAgent = "sitescout-crawler"

// RobotsCache fetches and caches robots.txt per host for link-expansion
// fetches. A host whose robots.txt is missing, unreadable, or unparseable is
// treated as allowing everything; entry-point fetches bypass robots entirely
// since discovery already probed them.
type RobotsCache struct {
	client *http.Client
	log    *logger.Logger

	mu    sync.Mutex
	hosts map[string]*robotstxt.RobotsData
}

func NewRobotsCache(log *logger.Logger) *RobotsCache {
	return &RobotsCache{
		client: &http.Client{Timeout: 5 * time.Second},
		log:    log.With("component", "RobotsCache"),
		hosts:  make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether the crawler may fetch rawURL per the host's
// robots.txt.
func (rc *RobotsCache) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}

	data := rc.dataFor(ctx, u)
	if data == nil {
		return true
	}
	return data.TestAgent(u.Path, crawlerAgent)
}

func (rc *RobotsCache) dataFor(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	rc.mu.Lock()
	data, ok := rc.hosts[u.Host]
	rc.mu.Unlock()
	if ok {
		return data
	}

	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err == nil {
		if resp, err := rc.client.Do(req); err == nil {
			parsed, parseErr := robotstxt.FromResponse(resp)
			resp.Body.Close()
			if parseErr == nil {
				data = parsed
			} else {
				rc.log.Debug("unparseable robots.txt, allowing host", "host", u.Host, "error", parseErr)
			}
		}
	}

	rc.mu.Lock()
	rc.hosts[u.Host] = data
	rc.mu.Unlock()
	return data
}
