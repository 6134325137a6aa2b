package bootstrap

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"gatherly/contexts/collaboration/group-coordination/adapters/memory"
	"gatherly/contexts/collaboration/group-coordination/application/commands"
	"gatherly/contexts/collaboration/group-coordination/ports"
	"gatherly/internal/platform/messaging"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNormalizeAddr(t *testing.T) {
	cases := map[string]string{
		"":       ":8080",
		"9090":   ":9090",
		":7070":  ":7070",
		" 8081 ": ":8081",
	}
	for input, want := range cases {
		if got := normalizeAddr(input); got != want {
			t.Fatalf("normalizeAddr(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestBuildAPIWithInMemoryStore(t *testing.T) {
	t.Setenv("USE_IN_MEMORY_STORE", "true")
	t.Setenv("HTTP_PORT", "0")

	app, err := BuildAPI(context.Background())
	if err != nil {
		t.Fatalf("build api: %v", err)
	}
	if app.postgres != nil {
		t.Fatalf("expected no postgres handle for in-memory store")
	}
	if err := app.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestBuildWorkerRequiresDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	if _, err := BuildWorker(context.Background()); err == nil {
		t.Fatal("expected error without POSTGRES_DSN")
	}
}

func TestBuildAPIWithInMemoryStoreRelaysEvents(t *testing.T) {
	t.Setenv("USE_IN_MEMORY_STORE", "true")
	app, err := BuildAPI(context.Background())
	if err != nil {
		t.Fatalf("build api: %v", err)
	}
	defer app.Close()
	if app.events == nil {
		t.Fatal("expected the in-memory api to relay its own outbox")
	}
}

func TestEventPipelineDeliversRowsRelayedOnFirstTick(t *testing.T) {
	store := memory.NewStore()
	if err := store.AppendOutbox(context.Background(), ports.EventEnvelope{
		EventID:       "evt_first_tick",
		EventType:     commands.EventGroupCreated,
		OccurredAtUTC: time.Now().UTC(),
		PartitionKey:  "group_seed_1",
	}); err != nil {
		t.Fatalf("append outbox: %v", err)
	}

	var logs lockedBuffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	bus, err := messaging.NewKafka(nil, logger)
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}
	// An hour-long interval leaves the first cycle as the only one.
	pipeline := newEventPipeline(bus, store, store, 10, time.Hour, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pipeline.run(ctx) }()

	deadline := time.After(2 * time.Second)
	for !activityLogged(logs.String(), "evt_first_tick") {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("first tick event never reached the activity log:\n%s", logs.String())
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("close bus: %v", err)
	}
	if got := store.PendingOutboxCount(); got != 0 {
		t.Fatalf("expected the row to be published, %d pending", got)
	}
}

func activityLogged(logs string, eventID string) bool {
	for _, line := range strings.Split(logs, "\n") {
		if strings.Contains(line, "group_activity_consumed") && strings.Contains(line, eventID) {
			return true
		}
	}
	return false
}
