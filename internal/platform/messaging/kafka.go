package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"gatherly/internal/shared/events"
)

var ErrBusClosed = errors.New("event bus closed")

// Kafka is the event bus used by the outbox relay and the activity consumer.
// Delivery is in-process; brokers are recorded for the log line only until an
// external client is wired.
type Kafka struct {
	mu          sync.RWMutex
	subscribers map[string][]subscriber
	brokers     []string
	logger      *slog.Logger
	closed      bool
	wg          sync.WaitGroup
}

type subscriber struct {
	consumerGroup string
	ch            chan events.Envelope
}

func NewKafka(brokers []string, logger *slog.Logger) (*Kafka, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("event bus ready",
		"event", "kafka_bus_ready",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"brokers", brokers,
	)
	return &Kafka{
		subscribers: make(map[string][]subscriber),
		brokers:     append([]string(nil), brokers...),
		logger:      logger,
	}, nil
}

func (k *Kafka) Publish(ctx context.Context, topic string, event events.Envelope) error {
	k.mu.RLock()
	if k.closed {
		k.mu.RUnlock()
		return ErrBusClosed
	}
	subs := append([]subscriber(nil), k.subscribers[topic]...)
	k.mu.RUnlock()

	for _, sub := range subs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub.ch <- event:
		default:
			k.logger.Warn("dropping event for slow subscriber",
				"event", "kafka_publish_drop",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"topic", topic,
				"consumer_group", sub.consumerGroup,
				"event_id", event.EventID,
			)
		}
	}

	k.logger.Debug("event published",
		"event", "kafka_publish",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"topic", topic,
		"event_id", event.EventID,
		"event_type", event.EventType,
		"partition_key", event.PartitionKey,
	)
	return nil
}

// Subscribe registers handler for topic until ctx is cancelled. Events are
// handled sequentially per subscription.
func (k *Kafka) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, events.Envelope) error,
) error {
	sub := subscriber{consumerGroup: consumerGroup, ch: make(chan events.Envelope, 128)}

	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return ErrBusClosed
	}
	k.subscribers[topic] = append(k.subscribers[topic], sub)
	k.wg.Add(1)
	k.mu.Unlock()

	go func() {
		defer k.wg.Done()
		for {
			select {
			case <-ctx.Done():
				k.removeSubscriber(topic, sub.ch)
				return
			case event := <-sub.ch:
				if err := handler(ctx, event); err != nil {
					k.logger.Error("consumer handler failed",
						"event", "kafka_consume_failed",
						"module", "internal/platform/messaging",
						"layer", "platform",
						"topic", topic,
						"consumer_group", consumerGroup,
						"event_id", event.EventID,
						"event_type", event.EventType,
						"error", err.Error(),
					)
				}
			}
		}
	}()
	return nil
}

// Close rejects further publishes and waits for every subscription goroutine
// to exit. Cancel the subscription contexts first.
func (k *Kafka) Close() error {
	k.mu.Lock()
	k.closed = true
	k.mu.Unlock()
	k.wg.Wait()
	return nil
}

func (k *Kafka) removeSubscriber(topic string, target chan events.Envelope) {
	k.mu.Lock()
	defer k.mu.Unlock()

	items := k.subscribers[topic]
	if len(items) == 0 {
		return
	}
	filtered := make([]subscriber, 0, len(items))
	for _, item := range items {
		if item.ch != target {
			filtered = append(filtered, item)
		}
	}
	k.subscribers[topic] = filtered
}
