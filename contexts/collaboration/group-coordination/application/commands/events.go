package commands

import (
	"context"
	"encoding/json"
	"time"

	"gatherly/contexts/collaboration/group-coordination/ports"
)

const (
	EventGroupCreated      = "group.created"
	EventGroupUpdated      = "group.updated"
	EventGroupDeleted      = "group.deleted"
	EventMemberJoined      = "membership.joined"
	EventMemberLeft        = "membership.left"
	EventMemberRemoved     = "membership.removed"
	EventMemberRoleChanged = "membership.role_changed"
	EventPollCreated       = "poll.created"
	EventPollUpdated       = "poll.updated"
	EventPollDeleted       = "poll.deleted"
	EventVoteCast          = "poll.vote_cast"
	EventUserProfileSaved  = "user.profile_saved"
)

// EventTypes lists every event type the commands emit.
func EventTypes() []string {
	return []string{
		EventGroupCreated,
		EventGroupUpdated,
		EventGroupDeleted,
		EventMemberJoined,
		EventMemberLeft,
		EventMemberRemoved,
		EventMemberRoleChanged,
		EventPollCreated,
		EventPollUpdated,
		EventPollDeleted,
		EventVoteCast,
		EventUserProfileSaved,
	}
}

func newEnvelope(
	eventID string,
	eventType string,
	actorID string,
	entityType string,
	entityID string,
	groupID string,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	// Group events are partitioned by group so consumers see one group's history
	// in order; profile events use the user id.
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:        eventID,
		EventType:      eventType,
		SourceService:  "group-coordination",
		OccurredAtUTC:  occurredAt.UTC(),
		ActorID:        actorID,
		EntityType:     entityType,
		EntityID:       entityID,
		PartitionKey:   groupID,
		PayloadVersion: 1,
		Payload:        payload,
	}, nil
}

// appendEvent writes an outbox row through the transactional repository.
func appendEvent(
	ctx context.Context,
	repo ports.Repository,
	idGen ports.IDGenerator,
	eventType string,
	actorID string,
	entityType string,
	entityID string,
	groupID string,
	occurredAt time.Time,
	data map[string]any,
) error {
	eventID, err := idGen.NewID(ctx)
	if err != nil {
		return err
	}
	envelope, err := newEnvelope(eventID, eventType, actorID, entityType, entityID, groupID, occurredAt, data)
	if err != nil {
		return err
	}
	return repo.AppendOutbox(ctx, envelope)
}
