package postgresadapter

import (
	"time"

	"gatherly/contexts/collaboration/group-coordination/domain/entities"
)

type userModel struct {
	ID       string `gorm:"column:id;primaryKey"`
	Username string `gorm:"column:username;not null"`
}

func (userModel) TableName() string {
	return "users"
}

type groupModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	Name        string    `gorm:"column:name;not null"`
	Description string    `gorm:"column:description"`
	Visibility  string    `gorm:"column:visibility;not null;index"`
	CreatedBy   string    `gorm:"column:created_by;not null"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (groupModel) TableName() string {
	return "collab_groups"
}

type membershipModel struct {
	GroupID  string    `gorm:"column:group_id;not null;uniqueIndex:idx_group_memberships_group_user,priority:1"`
	UserID   string    `gorm:"column:user_id;not null;uniqueIndex:idx_group_memberships_group_user,priority:2"`
	Role     string    `gorm:"column:role;not null"`
	JoinedAt time.Time `gorm:"column:joined_at"`
}

func (membershipModel) TableName() string {
	return "group_memberships"
}

type pollModel struct {
	ID        string     `gorm:"column:id;primaryKey"`
	GroupID   string     `gorm:"column:group_id;not null;index"`
	AuthorID  string     `gorm:"column:author_id;not null"`
	Question  string     `gorm:"column:question;not null"`
	Deadline  *time.Time `gorm:"column:deadline"`
	Anonymous bool       `gorm:"column:anonymous;not null"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at"`
}

func (pollModel) TableName() string {
	return "polls"
}

type pollOptionModel struct {
	ID       string `gorm:"column:id;primaryKey"`
	PollID   string `gorm:"column:poll_id;not null;index"`
	Text     string `gorm:"column:text;not null"`
	Position int    `gorm:"column:position;not null"`
}

func (pollOptionModel) TableName() string {
	return "poll_options"
}

type pollVoteModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	PollID    string    `gorm:"column:poll_id;not null;uniqueIndex:idx_poll_votes_poll_user,priority:1"`
	OptionID  string    `gorm:"column:option_id;not null;index"`
	UserID    string    `gorm:"column:user_id;not null;uniqueIndex:idx_poll_votes_poll_user,priority:2"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (pollVoteModel) TableName() string {
	return "poll_votes"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
	FailedAt     *time.Time `gorm:"column:failed_at"`
	LastError    string     `gorm:"column:last_error"`
}

func (outboxModel) TableName() string {
	return "group_outbox"
}

func groupModelFromEntity(group entities.Group) groupModel {
	return groupModel{
		ID:          group.GroupID,
		Name:        group.Name,
		Description: group.Description,
		Visibility:  string(group.Visibility),
		CreatedBy:   group.CreatedBy,
		CreatedAt:   group.CreatedAt.UTC(),
		UpdatedAt:   group.UpdatedAt.UTC(),
	}
}

func (m groupModel) toEntity(memberships []membershipModel) entities.Group {
	group := entities.Group{
		GroupID:     m.ID,
		Name:        m.Name,
		Description: m.Description,
		Visibility:  entities.Visibility(m.Visibility),
		CreatedBy:   m.CreatedBy,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
		Memberships: make([]entities.Membership, 0, len(memberships)),
	}
	for _, row := range memberships {
		group.Memberships = append(group.Memberships, row.toEntity())
	}
	entities.SortMemberships(group.Memberships)
	return group
}

func membershipModelFromEntity(membership entities.Membership) membershipModel {
	return membershipModel{
		GroupID:  membership.GroupID,
		UserID:   membership.UserID,
		Role:     string(membership.Role),
		JoinedAt: membership.JoinedAt.UTC(),
	}
}

func (m membershipModel) toEntity() entities.Membership {
	return entities.Membership{
		GroupID:  m.GroupID,
		UserID:   m.UserID,
		Role:     entities.Role(m.Role),
		JoinedAt: m.JoinedAt.UTC(),
	}
}

func pollModelFromEntity(poll entities.Poll) pollModel {
	return pollModel{
		ID:        poll.PollID,
		GroupID:   poll.GroupID,
		AuthorID:  poll.AuthorID,
		Question:  poll.Question,
		Deadline:  normalizeOptionalTime(poll.Deadline),
		Anonymous: poll.Anonymous,
		CreatedAt: poll.CreatedAt.UTC(),
		UpdatedAt: poll.UpdatedAt.UTC(),
	}
}

// toEntity assembles the poll aggregate from its rows. options and votes may
// contain rows of other polls; only matching rows are attached.
func (m pollModel) toEntity(options []pollOptionModel, votes []pollVoteModel) entities.Poll {
	poll := entities.Poll{
		PollID:    m.ID,
		GroupID:   m.GroupID,
		AuthorID:  m.AuthorID,
		Question:  m.Question,
		Deadline:  normalizeOptionalTime(m.Deadline),
		Anonymous: m.Anonymous,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
		Options:   []entities.PollOption{},
	}
	votesByOption := make(map[string][]entities.PollVote)
	for _, vote := range votes {
		if vote.PollID != m.ID {
			continue
		}
		votesByOption[vote.OptionID] = append(votesByOption[vote.OptionID], entities.PollVote{
			VoteID:    vote.ID,
			PollID:    vote.PollID,
			OptionID:  vote.OptionID,
			UserID:    vote.UserID,
			CreatedAt: vote.CreatedAt.UTC(),
		})
	}
	for _, option := range options {
		if option.PollID != m.ID {
			continue
		}
		poll.Options = append(poll.Options, entities.PollOption{
			OptionID: option.ID,
			PollID:   option.PollID,
			Text:     option.Text,
			Position: option.Position,
			Votes:    votesByOption[option.ID],
		})
	}
	entities.SortOptions(poll.Options)
	return poll
}

func optionModelsFromEntity(poll entities.Poll) []pollOptionModel {
	rows := make([]pollOptionModel, 0, len(poll.Options))
	for _, option := range poll.Options {
		rows = append(rows, pollOptionModel{
			ID:       option.OptionID,
			PollID:   poll.PollID,
			Text:     option.Text,
			Position: option.Position,
		})
	}
	return rows
}

func normalizeOptionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	timestamp := value.UTC()
	return &timestamp
}
