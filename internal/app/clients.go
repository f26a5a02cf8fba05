package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/yungbote/sitescout-backend/internal/events"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
	"github.com/yungbote/sitescout-backend/internal/platform/openai"
	"github.com/yungbote/sitescout-backend/internal/platform/websearch"
)

type Clients struct {
	AI        openai.Client
	RunBus    events.Bus
	WebSearch *websearch.Client
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	aiClient, err := openai.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}

	// Redis
	var bus events.Bus = events.NopBus{}
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		b, err := events.NewRedisBus(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis run bus: %w", err)
		}
		bus = b
	}

	// Web search fallback for districts whose hint URLs all dead-end.
	var search *websearch.Client
	if cfg.WebsearchEnabled {
		search = websearch.NewClient(log)
	}

	return Clients{
		AI:        aiClient,
		RunBus:    bus,
		WebSearch: search,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.RunBus != nil {
		_ = c.RunBus.Close()
	}
}
