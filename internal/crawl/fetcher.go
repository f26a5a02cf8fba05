package crawl

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/yungbote/sitescout-backend/internal/pkg/httpx"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
)

const (
	defaultFetchTimeout = 15 * time.Second
	slowFetchTimeout    = 45 * time.Second
	maxTextBody         = 2 << 20  // 2 MB
	maxBinaryBody       = 20 << 20 // 20 MB
	maxRedirects        = 10
)

// FetchOptions tune one request. The zero value is a plain text-mode fetch.
type FetchOptions struct {
	ExtendedTimeout bool
	InsecureTLS     bool
	BrowserProfile  bool
	BinaryMode      bool
	Referer         string
}

// FetchResult is a completed fetch. StatusCode is set whenever the server
// answered, even for non-2xx responses; Body is capped by mode.
type FetchResult struct {
	StatusCode  int
	Body        []byte
	FinalURL    string
	ContentType string
	Latency     time.Duration
}

// Fetcher is the one HTTP door for crawl traffic. Every request passes the
// shared limiter, so the global request budget holds no matter how many
// workers are running.
type Fetcher struct {
	client         *http.Client
	slowClient     *http.Client
	insecureClient *http.Client
	limiter        *rate.Limiter
	retry          httpx.RetryPolicy
	log            *logger.Logger
}

func NewFetcher(limiter *rate.Limiter, log *logger.Logger) *Fetcher {
	checkRedirect := func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}
	return &Fetcher{
		client: &http.Client{
			Timeout:       defaultFetchTimeout,
			CheckRedirect: checkRedirect,
		},
		slowClient: &http.Client{
			Timeout:       slowFetchTimeout,
			CheckRedirect: checkRedirect,
		},
		insecureClient: &http.Client{
			Timeout:       defaultFetchTimeout,
			CheckRedirect: checkRedirect,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		limiter: limiter,
		retry: httpx.RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: 500 * time.Millisecond,
			MaxSleep:       10 * time.Second,
		},
		log: log.With("component", "Fetcher"),
	}
}

// Fetch performs one rate-limited GET. Transient transport errors and
// retryable statuses are retried within the fetch policy; any served response
// is returned without error so callers can classify the status themselves.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts FetchOptions) (*FetchResult, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var lastErr error
	for attempt := 0; attempt < f.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			sleep := httpx.JitterSleep(f.retry.BackoffFor(attempt, nil))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(sleep):
			}
		}

		result, retryable, err := f.once(ctx, rawURL, opts)
		if err == nil {
			if result != nil && retryable && attempt < f.retry.MaxAttempts-1 {
				lastErr = fmt.Errorf("status %d from %s", result.StatusCode, rawURL)
				continue
			}
			return result, nil
		}
		lastErr = err
		if !httpx.IsRetryableError(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (f *Fetcher) once(ctx context.Context, rawURL string, opts FetchOptions) (*FetchResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	if opts.BrowserProfile {
		httpx.SetBrowserHeaders(req, opts.Referer)
	} else {
		req.Header.Set("User-Agent", "sitescout-crawler/1.0")
		if opts.Referer != "" {
			req.Header.Set("Referer", opts.Referer)
		}
	}

	client := f.client
	switch {
	case opts.InsecureTLS:
		client = f.insecureClient
	case opts.ExtendedTimeout:
		client = f.slowClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	bodyCap := int64(maxTextBody)
	if opts.BinaryMode {
		bodyCap = maxBinaryBody
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, bodyCap))
	if err != nil {
		return nil, false, fmt.Errorf("read body: %w", err)
	}

	result := &FetchResult{
		StatusCode:  resp.StatusCode,
		Body:        body,
		FinalURL:    resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
		Latency:     time.Since(start),
	}
	return result, httpx.IsRetryableHTTPStatus(resp.StatusCode), nil
}
