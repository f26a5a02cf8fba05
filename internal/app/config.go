package app

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
	"github.com/yungbote/sitescout-backend/internal/utils"
)

type Config struct {
	Port         string
	JWTSecretKey string
	MetricsAddr  string

	CrawlConcurrency int
	CrawlRPS         rate.Limit
	CrawlBurst       int
	PolitenessDelay  time.Duration
	ClaimInterval    time.Duration

	WebsearchEnabled bool
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Port:         utils.GetEnv("PORT", "8080", log),
		JWTSecretKey: utils.GetEnv("JWT_SECRET_KEY", "", log),
		MetricsAddr:  utils.GetEnv("METRICS_ADDR", "", log),

		CrawlConcurrency: utils.GetEnvAsInt("CRAWL_CONCURRENCY", 8, log),
		CrawlRPS:         rate.Limit(utils.GetEnvAsFloat("CRAWL_REQUESTS_PER_SECOND", 2, log)),
		CrawlBurst:       utils.GetEnvAsInt("CRAWL_BURST", 4, log),
		PolitenessDelay:  time.Duration(utils.GetEnvAsInt("CRAWL_POLITENESS_MS", 1000, log)) * time.Millisecond,
		ClaimInterval:    time.Duration(utils.GetEnvAsInt("CRAWL_CLAIM_INTERVAL_SECONDS", 5, log)) * time.Second,

		WebsearchEnabled: utils.GetEnvAsBool("WEBSEARCH_ENABLED", true, log),
	}
}
