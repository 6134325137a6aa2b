package ports

import (
	"context"
	"time"

	"gatherly/contexts/collaboration/group-coordination/domain/entities"
	"gatherly/internal/shared/events"
)

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// Repository is the persistence view used inside one unit of work. Reads that
// return groups include their memberships; reads that return polls include
// options in position order with their votes.
type Repository interface {
	GetUser(ctx context.Context, userID string) (entities.User, error)
	// SaveUser upserts the directory entry for user.UserID.
	SaveUser(ctx context.Context, user entities.User) error
	ListUsers(ctx context.Context, userIDs []string) ([]entities.User, error)

	CreateGroup(ctx context.Context, group entities.Group) error
	GetGroup(ctx context.Context, groupID string) (entities.Group, error)
	// LockGroup reads the group and holds a write lock on it until the
	// surrounding transaction ends.
	LockGroup(ctx context.Context, groupID string) (entities.Group, error)
	// LockGroupForShare reads the group and blocks LockGroup holders until the
	// surrounding transaction ends. Concurrent share holders do not block each other.
	LockGroupForShare(ctx context.Context, groupID string) (entities.Group, error)
	UpdateGroup(ctx context.Context, group entities.Group) error
	DeleteGroup(ctx context.Context, groupID string) error
	ListPublicGroups(ctx context.Context, afterID string, limit int) ([]entities.Group, error)

	AddMembership(ctx context.Context, membership entities.Membership) error
	UpdateMembershipRole(ctx context.Context, groupID string, userID string, role entities.Role) error
	DeleteMembership(ctx context.Context, groupID string, userID string) error

	SavePoll(ctx context.Context, poll entities.Poll) error
	// ReplacePoll overwrites the poll row and drops every previous option and vote.
	ReplacePoll(ctx context.Context, poll entities.Poll) error
	GetPoll(ctx context.Context, pollID string) (entities.Poll, error)
	LockPoll(ctx context.Context, pollID string) (entities.Poll, error)
	ListPollsByGroup(ctx context.Context, groupID string) ([]entities.Poll, error)
	DeletePoll(ctx context.Context, pollID string) error
	SaveVote(ctx context.Context, vote entities.PollVote) error

	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

// UnitOfWork runs fn against a transactional Repository. All writes made by fn
// commit together or not at all.
type UnitOfWork interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}

// EventEnvelope reuses the shared outbox/bus envelope.
type EventEnvelope = events.Envelope

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
	// MarkOutboxFailed parks a row the relay can never publish so it stops
	// blocking the rows behind it.
	MarkOutboxFailed(ctx context.Context, outboxID string, reason string, failedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}
