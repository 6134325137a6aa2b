package workers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"gatherly/contexts/collaboration/group-coordination/adapters/memory"
	"gatherly/contexts/collaboration/group-coordination/ports"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	failOn string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event.EventID == p.failOn {
		return errors.New("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	return nil
}

func appendEvents(t *testing.T, store *memory.Store, ids ...string) {
	t.Helper()
	base := time.Now().UTC()
	for idx, id := range ids {
		if err := store.AppendOutbox(context.Background(), ports.EventEnvelope{
			EventID:       id,
			EventType:     "membership.joined",
			OccurredAtUTC: base.Add(time.Duration(idx) * time.Second),
			PartitionKey:  "group_seed_1",
		}); err != nil {
			t.Fatalf("append outbox: %v", err)
		}
	}
}

func TestOutboxRelayPublishesAndMarks(t *testing.T) {
	store := memory.NewStore()
	appendEvents(t, store, "evt_1", "evt_2")
	publisher := &recordingPublisher{}
	relay := OutboxRelay{Outbox: store, Publisher: publisher, Clock: store, BatchSize: 10, Logger: slog.Default()}

	published, err := relay.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if published != 2 || len(publisher.topics) != 2 || publisher.topics[0] != "membership.joined" {
		t.Fatalf("unexpected publish result: count=%d topics=%v", published, publisher.topics)
	}
	if got := store.PendingOutboxCount(); got != 0 {
		t.Fatalf("expected no pending rows, got %d", got)
	}

	published, err = relay.RunOnce(context.Background())
	if err != nil || published != 0 {
		t.Fatalf("expected idle cycle, got count=%d err=%v", published, err)
	}
}

func TestOutboxRelayStopsAtFirstFailure(t *testing.T) {
	store := memory.NewStore()
	appendEvents(t, store, "evt_1", "evt_2", "evt_3")
	publisher := &recordingPublisher{failOn: "evt_2"}
	relay := OutboxRelay{Outbox: store, Publisher: publisher, Clock: store}

	published, err := relay.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected publish error")
	}
	if published != 1 {
		t.Fatalf("expected 1 published row, got %d", published)
	}
	if got := store.PendingOutboxCount(); got != 2 {
		t.Fatalf("expected 2 pending rows, got %d", got)
	}
}

type captureSubscriber struct {
	topics   []string
	handlers []func(context.Context, ports.EventEnvelope) error
}

func (s *captureSubscriber) Subscribe(
	_ context.Context,
	topic string,
	_ string,
	handler func(context.Context, ports.EventEnvelope) error,
) error {
	s.topics = append(s.topics, topic)
	s.handlers = append(s.handlers, handler)
	return nil
}

func TestActivityLogConsumerSubscribesEveryTopic(t *testing.T) {
	subscriber := &captureSubscriber{}
	consumer := ActivityLogConsumer{
		Subscriber: subscriber,
		Topics:     []string{"group.created", "poll.vote_cast"},
		Logger:     slog.Default(),
	}
	if err := consumer.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(subscriber.topics) != 2 {
		t.Fatalf("expected 2 subscriptions, got %v", subscriber.topics)
	}
	if err := subscriber.handlers[1](context.Background(), ports.EventEnvelope{EventID: "evt_1", EventType: "poll.vote_cast"}); err != nil {
		t.Fatalf("handler: %v", err)
	}
}

type staticOutbox struct {
	rows      []ports.OutboxMessage
	published []string
	failed    []string
}

func (o *staticOutbox) ListPendingOutbox(_ context.Context, _ int) ([]ports.OutboxMessage, error) {
	return o.rows, nil
}

func (o *staticOutbox) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	o.published = append(o.published, outboxID)
	return nil
}

func (o *staticOutbox) MarkOutboxFailed(_ context.Context, outboxID string, _ string, _ time.Time) error {
	o.failed = append(o.failed, outboxID)
	return nil
}

func TestOutboxRelayParksUndecodableRow(t *testing.T) {
	outbox := &staticOutbox{rows: []ports.OutboxMessage{
		{OutboxID: "evt_bad", EventType: "group.created", Payload: []byte("{not json")},
		{OutboxID: "evt_good", EventType: "group.created", Payload: []byte(`{"event_id":"evt_good","event_type":"group.created"}`)},
	}}
	publisher := &recordingPublisher{}
	relay := OutboxRelay{Outbox: outbox, Publisher: publisher, Logger: slog.Default()}

	published, err := relay.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if published != 1 || len(publisher.topics) != 1 {
		t.Fatalf("expected the good row to publish, count=%d topics=%v", published, publisher.topics)
	}
	if len(outbox.failed) != 1 || outbox.failed[0] != "evt_bad" {
		t.Fatalf("expected evt_bad to be parked, got %v", outbox.failed)
	}
	if len(outbox.published) != 1 || outbox.published[0] != "evt_good" {
		t.Fatalf("expected evt_good to be marked published, got %v", outbox.published)
	}
}
