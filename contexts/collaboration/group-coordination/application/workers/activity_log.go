package workers

import (
	"context"
	"log/slog"

	application "gatherly/contexts/collaboration/group-coordination/application"
	"gatherly/contexts/collaboration/group-coordination/ports"
)

// ActivityLogConsumer subscribes to the group event topics and writes one
// structured log record per event. It gives the worker a live view of what the
// relay publishes.
type ActivityLogConsumer struct {
	Subscriber    ports.EventSubscriber
	Topics        []string
	ConsumerGroup string
	Logger        *slog.Logger
}

func (c ActivityLogConsumer) Start(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	group := c.ConsumerGroup
	if group == "" {
		group = "group-coordination-activity-log"
	}
	for _, topic := range c.Topics {
		if err := c.Subscriber.Subscribe(ctx, topic, group, func(_ context.Context, event ports.EventEnvelope) error {
			logger.Info("group activity",
				"event", "group_activity_consumed",
				"module", application.Module,
				"layer", "worker",
				"event_type", event.EventType,
				"event_id", event.EventID,
				"entity_type", event.EntityType,
				"entity_id", event.EntityID,
				"group_id", event.PartitionKey,
			)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}
