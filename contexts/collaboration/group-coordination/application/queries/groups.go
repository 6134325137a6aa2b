package queries

import (
	"context"
	"iter"
	"log/slog"
	"time"

	application "gatherly/contexts/collaboration/group-coordination/application"
	"gatherly/contexts/collaboration/group-coordination/domain/entities"
	"gatherly/contexts/collaboration/group-coordination/ports"
)

const defaultGroupPageSize = 50

// Member is a directory user together with the membership they hold.
type Member struct {
	User     entities.User
	Role     entities.Role
	JoinedAt time.Time
}

type GroupQueries struct {
	Repository ports.Repository
	PageSize   int
	Logger     *slog.Logger
}

// ListPublicGroups returns a lazy sequence over public groups. Pages are
// fetched on demand by id keyset; ranging over the sequence again restarts
// from the first page. Iteration stops after the first error is yielded.
func (q GroupQueries) ListPublicGroups(ctx context.Context) iter.Seq2[entities.Group, error] {
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = defaultGroupPageSize
	}
	return func(yield func(entities.Group, error) bool) {
		afterID := ""
		for {
			page, err := q.Repository.ListPublicGroups(ctx, afterID, pageSize)
			if err != nil {
				application.ResolveLogger(q.Logger).Error("public group page load failed",
					"event", "group_list_public_failed",
					"module", application.Module,
					"layer", "application",
					"after_id", afterID,
					"error", err.Error(),
				)
				yield(entities.Group{}, err)
				return
			}
			for _, group := range page {
				if !yield(group, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			afterID = page[len(page)-1].GroupID
		}
	}
}

func (q GroupQueries) GetGroup(ctx context.Context, groupID string) (entities.Group, error) {
	return q.Repository.GetGroup(ctx, groupID)
}

// ListMembers returns members in join order. Users missing from the directory
// are reported by id.
func (q GroupQueries) ListMembers(ctx context.Context, groupID string) ([]Member, error) {
	group, err := q.Repository.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	userIDs := make([]string, 0, len(group.Memberships))
	for _, membership := range group.Memberships {
		userIDs = append(userIDs, membership.UserID)
	}
	users, err := q.Repository.ListUsers(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]entities.User, len(users))
	for _, user := range users {
		byID[user.UserID] = user
	}

	members := make([]Member, 0, len(group.Memberships))
	for _, membership := range group.Memberships {
		user, ok := byID[membership.UserID]
		if !ok {
			user = entities.User{UserID: membership.UserID, Username: membership.UserID}
		}
		members = append(members, Member{
			User:     user,
			Role:     membership.Role,
			JoinedAt: membership.JoinedAt,
		})
	}
	return members, nil
}
