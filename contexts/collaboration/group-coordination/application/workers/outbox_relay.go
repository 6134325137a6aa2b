package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "gatherly/contexts/collaboration/group-coordination/application"
	"gatherly/contexts/collaboration/group-coordination/ports"
)

// OutboxRelay publishes persisted outbox rows to the event bus.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

// RunOnce publishes a bounded batch of pending rows and marks each one
// published only after the publish succeeded. It stops at the first publish
// failure so the next cycle retries the remaining rows in order. A row whose
// payload cannot be decoded will never publish, so it is marked failed and the
// batch continues.
func (r OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("outbox list failed",
			"event", "group_outbox_list_failed",
			"module", application.Module,
			"layer", "worker",
			"error", err.Error(),
		)
		return 0, err
	}
	if len(pending) == 0 {
		logger.Debug("outbox relay found no pending rows",
			"event", "group_outbox_relay_noop",
			"module", application.Module,
			"layer", "worker",
		)
		return 0, nil
	}

	now := time.Now().UTC()
	if r.Clock != nil {
		now = r.Clock.Now().UTC()
	}

	published := 0
	for _, row := range pending {
		var event ports.EventEnvelope
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			logger.Error("outbox decode failed",
				"event", "group_outbox_decode_failed",
				"module", application.Module,
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"event_type", row.EventType,
				"error", err.Error(),
			)
			if markErr := r.Outbox.MarkOutboxFailed(ctx, row.OutboxID, err.Error(), now); markErr != nil {
				logger.Error("outbox mark failed failed",
					"event", "group_outbox_mark_failed_failed",
					"module", application.Module,
					"layer", "worker",
					"outbox_id", row.OutboxID,
					"error", markErr.Error(),
				)
				return published, markErr
			}
			continue
		}
		topic := event.Topic()
		if topic == "" {
			topic = row.EventType
		}
		if err := r.Publisher.Publish(ctx, topic, event); err != nil {
			logger.Error("outbox publish failed",
				"event", "group_outbox_publish_failed",
				"module", application.Module,
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"event_type", event.EventType,
				"error", err.Error(),
			)
			return published, err
		}
		if err := r.Outbox.MarkOutboxPublished(ctx, row.OutboxID, now); err != nil {
			logger.Error("outbox mark published failed",
				"event", "group_outbox_mark_published_failed",
				"module", application.Module,
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return published, err
		}
		published++
	}

	logger.Info("outbox relay cycle completed",
		"event", "group_outbox_relay_completed",
		"module", application.Module,
		"layer", "worker",
		"published_count", published,
	)
	return published, nil
}
