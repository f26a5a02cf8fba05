package httpx

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPStatusCoder is implemented by errors that carry a remote HTTP status.
type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

func IsRetryableHTTPStatus(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

// IsRetryableError reports whether a failed request is worth repeating.
// Context cancellation is not retryable: it means the run is shutting down.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}
	var sc HTTPStatusCoder
	if errors.As(err, &sc) {
		return IsRetryableHTTPStatus(sc.HTTPStatusCode())
	}
	return false
}

// RetryPolicy parameterizes the retry loops around remote calls. Call sites
// keep their own loops; the policy only answers "how many" and "how long".
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxSleep       time.Duration
}

// BackoffFor returns the sleep before attempt n (1-based, so the first retry
// passes n=1). The base doubles per attempt, a Retry-After header on resp
// overrides it, and MaxSleep caps the result.
func (p RetryPolicy) BackoffFor(attempt int, resp *http.Response) time.Duration {
	base := p.InitialBackoff
	if base <= 0 {
		base = time.Second
	}
	for i := 1; i < attempt; i++ {
		base *= 2
		if p.MaxSleep > 0 && base >= p.MaxSleep {
			base = p.MaxSleep
			break
		}
	}
	return RetryAfterDuration(resp, base, p.MaxSleep)
}

func RetryAfterDuration(resp *http.Response, fallback, max time.Duration) time.Duration {
	sleepFor := fallback
	if resp != nil {
		if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				sleepFor = time.Duration(secs) * time.Second
			}
		}
	}
	if max > 0 && sleepFor > max {
		sleepFor = max
	}
	return sleepFor
}

func JitterSleep(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	j := 0.2
	delta := base.Seconds() * j
	low := base.Seconds() - delta
	high := base.Seconds() + delta
	if low < 0 {
		low = 0
	}
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}

// SetBrowserHeaders fills in a desktop-browser request profile. Some district
// sites refuse anything that does not look like a real browser.
func SetBrowserHeaders(req *http.Request, referer string) {
	req.Header.Set("User-Agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	req.Header.Set("Accept",
		"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
}

// FailureClass buckets a failed fetch for the discovery fallback ladder.
type FailureClass string

const (
	FailureTimeout     FailureClass = "timeout"
	FailureTLS         FailureClass = "tls"
	FailureDenied      FailureClass = "denied"
	FailureUnreachable FailureClass = "unreachable"
)

// Classify maps a transport error or HTTP status onto a FailureClass.
// statusCode is 0 when no response was received.
func Classify(err error, statusCode int) FailureClass {
	if statusCode == http.StatusForbidden || statusCode == http.StatusUnauthorized {
		return FailureDenied
	}
	if err == nil {
		return FailureUnreachable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	var certErr *tls.CertificateVerificationError
	var hostErr x509.HostnameError
	var authErr x509.UnknownAuthorityError
	var invErr x509.CertificateInvalidError
	if errors.As(err, &certErr) || errors.As(err, &hostErr) ||
		errors.As(err, &authErr) || errors.As(err, &invErr) {
		return FailureTLS
	}
	if msg := err.Error(); strings.Contains(msg, "x509:") || strings.Contains(msg, "tls:") {
		return FailureTLS
	}
	return FailureUnreachable
}
