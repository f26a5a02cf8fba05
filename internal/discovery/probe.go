package discovery

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
)

const (
	dnsTimeout   = 2 * time.Second
	probeTimeout = 5 * time.Second
)

// Prober answers "is this URL worth crawling" as cheaply as possible: a short
// DNS lookup first (cached for the run), then a HEAD request following at most
// one redirect. Anything under 400 after that counts as live.
type Prober struct {
	resolver *net.Resolver
	client   *http.Client
	log      *logger.Logger

	mu  sync.Mutex
	dns map[string]bool
}

func NewProber(log *logger.Logger) *Prober {
	return &Prober{
		resolver: net.DefaultResolver,
		client: &http.Client{
			Timeout: probeTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 2 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		log: log.With("component", "Prober"),
		dns: make(map[string]bool),
	}
}

// Resolves reports whether the host has DNS records, consulting the per-run
// cache first. IP literals pass trivially.
func (p *Prober) Resolves(ctx context.Context, host string) bool {
	if host == "" {
		return false
	}
	if ip := net.ParseIP(stripPort(host)); ip != nil {
		return true
	}
	hostname := stripPort(host)

	p.mu.Lock()
	cached, ok := p.dns[hostname]
	p.mu.Unlock()
	if ok {
		return cached
	}

	lookupCtx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()
	addrs, err := p.resolver.LookupHost(lookupCtx, hostname)
	resolved := err == nil && len(addrs) > 0

	p.mu.Lock()
	p.dns[hostname] = resolved
	p.mu.Unlock()
	return resolved
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// Check probes one URL. DNS failure short-circuits before any connection is
// attempted. The returned status and error feed the waterfall's last-resort
// strategy; callers that only care about liveness use Live.
func (p *Prober) Check(ctx context.Context, rawURL string) (bool, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false, 0, err
	}
	if !p.Resolves(ctx, req.URL.Host) {
		return false, 0, &net.DNSError{Err: "no such host", Name: req.URL.Hostname(), IsNotFound: true}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, 0, err
	}
	resp.Body.Close()

	// Some servers reject HEAD outright. Retry those with a ranged GET.
	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		getReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return false, resp.StatusCode, err
		}
		getReq.Header.Set("Range", "bytes=0-1023")
		getResp, err := p.client.Do(getReq)
		if err != nil {
			return false, 0, err
		}
		getResp.Body.Close()
		resp = getResp
	}

	return resp.StatusCode < 400, resp.StatusCode, nil
}

func (p *Prober) Live(ctx context.Context, rawURL string) bool {
	live, _, _ := p.Check(ctx, rawURL)
	return live
}

// FirstLive probes candidates in order and returns the first live one, or ""
// when none respond.
func (p *Prober) FirstLive(ctx context.Context, candidates []string) string {
	for _, c := range candidates {
		if ctx.Err() != nil {
			return ""
		}
		if p.Live(ctx, c) {
			return c
		}
	}
	return ""
}
