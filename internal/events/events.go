package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Run kinds.
const (
	KindCrawl = "crawl"
	KindScore = "score"
	KindEmbed = "embed"
)

// Run stages.
const (
	StageStarted  = "started"
	StageProgress = "progress"
	StageFinished = "finished"
	StageFailed   = "failed"
)

// RunEvent describes one step of a crawl, scoring, or embedding run.
type RunEvent struct {
	RunID  uuid.UUID      `json:"run_id"`
	Kind   string         `json:"kind"`
	Stage  string         `json:"stage"`
	Detail map[string]any `json:"detail,omitempty"`
	At     time.Time      `json:"at"`
}

type Bus interface {
	Publish(ctx context.Context, ev RunEvent) error
	Close() error
}

// NopBus drops every event. Wired when no broker is configured so
// services can publish unconditionally.
type NopBus struct{}

func (NopBus) Publish(context.Context, RunEvent) error { return nil }
func (NopBus) Close() error                            { return nil }
