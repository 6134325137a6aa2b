package queries

import (
	"context"

	"gatherly/contexts/collaboration/group-coordination/domain/entities"
	"gatherly/contexts/collaboration/group-coordination/domain/services"
	"gatherly/contexts/collaboration/group-coordination/ports"
)

// PollQueries serves member-only poll reads.
type PollQueries struct {
	Repository ports.Repository
}

func (q PollQueries) ListPolls(ctx context.Context, groupID string, callerID string) ([]entities.Poll, error) {
	if _, err := q.requireMember(ctx, groupID, callerID); err != nil {
		return nil, err
	}
	return q.Repository.ListPollsByGroup(ctx, groupID)
}

func (q PollQueries) GetPoll(ctx context.Context, groupID string, pollID string, callerID string) (entities.Poll, error) {
	if _, err := q.requireMember(ctx, groupID, callerID); err != nil {
		return entities.Poll{}, err
	}
	poll, err := q.Repository.GetPoll(ctx, pollID)
	if err != nil {
		return entities.Poll{}, err
	}
	if err := services.RequirePollInGroup(poll, groupID); err != nil {
		return entities.Poll{}, err
	}
	return poll, nil
}

func (q PollQueries) GetPollResult(ctx context.Context, groupID string, pollID string, callerID string) (entities.PollResult, error) {
	poll, err := q.GetPoll(ctx, groupID, pollID, callerID)
	if err != nil {
		return entities.PollResult{}, err
	}
	return q.BuildResult(ctx, poll)
}

// BuildResult resolves voter usernames and projects the poll. Anonymous polls
// skip the directory lookup entirely.
func (q PollQueries) BuildResult(ctx context.Context, poll entities.Poll) (entities.PollResult, error) {
	usernames := map[string]string{}
	if !poll.Anonymous {
		userIDs := make([]string, 0, poll.TotalVotes())
		for _, option := range poll.Options {
			for _, vote := range option.Votes {
				userIDs = append(userIDs, vote.UserID)
			}
		}
		if len(userIDs) > 0 {
			users, err := q.Repository.ListUsers(ctx, userIDs)
			if err != nil {
				return entities.PollResult{}, err
			}
			for _, user := range users {
				usernames[user.UserID] = user.Username
			}
		}
	}
	return services.BuildResult(poll, usernames), nil
}

func (q PollQueries) requireMember(ctx context.Context, groupID string, callerID string) (entities.Group, error) {
	group, err := q.Repository.GetGroup(ctx, groupID)
	if err != nil {
		return entities.Group{}, err
	}
	if _, err := services.RequireMembership(group, callerID); err != nil {
		return entities.Group{}, err
	}
	return group, nil
}
