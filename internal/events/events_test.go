package events

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
)

func TestNewRedisBusRequiresAddr(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	log := logger.NewNop()
	if _, err := NewRedisBus(log); err == nil {
		t.Fatal("expected error without REDIS_ADDR")
	}
}

func TestNopBusPublishes(t *testing.T) {
	var bus Bus = NopBus{}
	ev := RunEvent{RunID: uuid.New(), Kind: KindCrawl, Stage: StageStarted}
	if err := bus.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRunEventJSONShape(t *testing.T) {
	ev := RunEvent{
		RunID: uuid.MustParse("6b7ce6a0-54e5-4bbb-9a2c-16d872209d3d"),
		Kind:  KindEmbed,
		Stage: StageFinished,
		At:    time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC),
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(raw)
	for _, want := range []string{`"run_id":"6b7ce6a0-54e5-4bbb-9a2c-16d872209d3d"`, `"kind":"embed"`, `"stage":"finished"`} {
		if !strings.Contains(s, want) {
			t.Fatalf("payload missing %s: %s", want, s)
		}
	}
	if strings.Contains(s, "detail") {
		t.Fatalf("empty detail should be omitted: %s", s)
	}
}
