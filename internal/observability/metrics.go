package observability

import (
	"context"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/sitescout-backend/internal/domain/crawl"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	discoveryStrategy *CounterVec
	discoveryMisses   *Counter
	corrections       *Counter

	fetchTotal   *CounterVec
	fetchLatency *HistogramVec
	robotsDenied *Counter

	documentsStored *CounterVec

	embedRequests *CounterVec
	embedLatency  *HistogramVec
	embedTokens   *Counter
	embedBisects  *Counter
	chunksStored  *Counter

	scoresComputed *CounterVec

	batchDepth *GaugeVec
	pgStats    *GaugeVec
	redisUp    *Gauge
	redisPing  *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	v := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS"))
	if v == "" {
		return 10 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = &Metrics{
			apiRequests: NewCounterVec("ss_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
			apiLatency: NewHistogramVec(
				"ss_api_request_duration_seconds",
				"API request latency in seconds by method/route/status.",
				[]string{"method", "route", "status"},
				[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			),
			apiInflight: NewGauge("ss_api_inflight_requests", "In-flight API requests."),
			discoveryStrategy: NewCounterVec(
				"ss_discovery_hits_total",
				"Successful URL discoveries by strategy.",
				[]string{"strategy"},
			),
			discoveryMisses: NewCounter("ss_discovery_misses_total", "Districts where every discovery strategy failed."),
			corrections:     NewCounter("ss_url_corrections_total", "URL corrections recorded."),
			fetchTotal:      NewCounterVec("ss_crawl_fetches_total", "Page fetches by outcome.", []string{"outcome"}),
			fetchLatency: NewHistogramVec(
				"ss_crawl_fetch_duration_seconds",
				"Page fetch latency in seconds by outcome.",
				[]string{"outcome"},
				[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30, 45},
			),
			robotsDenied:    NewCounter("ss_crawl_robots_denied_total", "Link fetches skipped by robots.txt."),
			documentsStored: NewCounterVec("ss_documents_stored_total", "Documents stored by content type.", []string{"content_type"}),
			embedRequests:   NewCounterVec("ss_embedding_requests_total", "Embedding API requests by status.", []string{"status"}),
			embedLatency: NewHistogramVec(
				"ss_embedding_request_duration_seconds",
				"Embedding API request latency in seconds by status.",
				[]string{"status"},
				[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			),
			embedTokens:  NewCounter("ss_embedding_tokens_total", "Tokens consumed by embedding requests."),
			embedBisects: NewCounter("ss_embedding_batch_bisects_total", "Embedding batches split after an oversize rejection."),
			chunksStored: NewCounter("ss_document_chunks_stored_total", "Document chunks persisted with embeddings."),
			scoresComputed: NewCounterVec(
				"ss_keyword_scores_computed_total",
				"District keyword scores computed by tier.",
				[]string{"tier"},
			),
			batchDepth: NewGaugeVec("ss_crawl_batch_depth", "Crawl batches by status.", []string{"status"}),
			pgStats:    NewGaugeVec("ss_pg_pool_stats", "Postgres connection pool stats.", []string{"stat"}),
			redisUp:    NewGauge("ss_redis_up", "Redis availability (1 up, 0 down)."),
			redisPing:  NewGauge("ss_redis_ping_seconds", "Redis ping latency in seconds."),
		}
		if log != nil {
			log.Info("metrics registry initialized")
		}
	})
	return instance
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	if err := m.apiRequests.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.apiLatency.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.apiInflight.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.discoveryStrategy.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.discoveryMisses.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.corrections.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.fetchTotal.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.fetchLatency.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.robotsDenied.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.documentsStored.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.embedRequests.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.embedLatency.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.embedTokens.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.embedBisects.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.chunksStored.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.scoresComputed.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.batchDepth.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.pgStats.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.redisUp.WritePrometheus(w); err != nil {
		return err
	}
	return m.redisPing.WritePrometheus(w)
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveDiscovery(strategy string) {
	if m == nil {
		return
	}
	if strategy == "" {
		strategy = "unknown"
	}
	m.discoveryStrategy.Inc(strategy)
}

func (m *Metrics) IncDiscoveryMiss() {
	if m == nil {
		return
	}
	m.discoveryMisses.Inc()
}

func (m *Metrics) IncCorrection() {
	if m == nil {
		return
	}
	m.corrections.Inc()
}

func (m *Metrics) ObserveFetch(outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.fetchTotal.Inc(outcome)
	m.fetchLatency.Observe(dur.Seconds(), outcome)
}

func (m *Metrics) IncRobotsDenied() {
	if m == nil {
		return
	}
	m.robotsDenied.Inc()
}

func (m *Metrics) IncDocumentStored(contentType string) {
	if m == nil {
		return
	}
	if contentType == "" {
		contentType = "unknown"
	}
	m.documentsStored.Inc(contentType)
}

func (m *Metrics) ObserveEmbedRequest(status string, dur time.Duration, tokens int) {
	if m == nil {
		return
	}
	if status == "" {
		status = "0"
	}
	m.embedRequests.Inc(status)
	m.embedLatency.Observe(dur.Seconds(), status)
	if tokens > 0 {
		m.embedTokens.Add(float64(tokens))
	}
}

func (m *Metrics) IncEmbedBisect() {
	if m == nil {
		return
	}
	m.embedBisects.Inc()
}

func (m *Metrics) AddChunksStored(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.chunksStored.Add(float64(n))
}

func (m *Metrics) IncScoreComputed(tier int) {
	if m == nil {
		return
	}
	m.scoresComputed.Inc(strconv.Itoa(tier))
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: postgres stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
				m.pgStats.Set(float64(stats.InUse), "in_use")
				m.pgStats.Set(float64(stats.Idle), "idle")
				m.pgStats.Set(float64(stats.WaitCount), "wait_count")
				m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
				m.pgStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	interval := scrapeInterval()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = rdb.Close()
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

func (m *Metrics) StartBatchCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	statuses := []crawl.BatchStatus{crawl.BatchQueued, crawl.BatchRunning, crawl.BatchCompleted, crawl.BatchFailed}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, s := range statuses {
					m.batchDepth.Set(0, string(s))
				}
				var rows []struct {
					Status string
					Count  int64
				}
				if err := db.WithContext(ctx).
					Model(&crawl.Batch{}).
					Select("status, count(*) as count").
					Group("status").
					Scan(&rows).Error; err != nil {
					if log != nil {
						log.Warn("metrics: batch depth query failed", "error", err)
					}
					continue
				}
				for _, row := range rows {
					status := strings.TrimSpace(row.Status)
					if status == "" {
						status = "unknown"
					}
					m.batchDepth.Set(float64(row.Count), status)
				}
			}
		}
	}()
}
