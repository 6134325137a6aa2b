package services

import (
	"fmt"

	"gatherly/contexts/collaboration/group-coordination/domain/entities"
	domainerrors "gatherly/contexts/collaboration/group-coordination/domain/errors"
)

// RequireMembership fails with ErrNotMember unless userID belongs to the group.
func RequireMembership(group entities.Group, userID string) (entities.Membership, error) {
	membership, ok := group.MembershipOf(userID)
	if !ok {
		return entities.Membership{}, fmt.Errorf("%w: user %s group %s", domainerrors.ErrNotMember, userID, group.GroupID)
	}
	return membership, nil
}

// RequireAdmin fails with ErrAdminAccessDenied unless userID holds the admin role.
// A caller without any membership is also denied admin access.
func RequireAdmin(group entities.Group, userID string) (entities.Membership, error) {
	membership, ok := group.MembershipOf(userID)
	if !ok || !membership.IsAdmin() {
		return entities.Membership{}, fmt.Errorf("%w: user %s group %s", domainerrors.ErrAdminAccessDenied, userID, group.GroupID)
	}
	return membership, nil
}

func RequirePollAuthor(poll entities.Poll, userID string) error {
	if poll.AuthorID != userID {
		return fmt.Errorf("%w: user %s poll %s", domainerrors.ErrNotPollAuthor, userID, poll.PollID)
	}
	return nil
}

// RequirePollInGroup guards against a poll id addressed through the wrong group.
func RequirePollInGroup(poll entities.Poll, groupID string) error {
	if poll.GroupID != groupID {
		return fmt.Errorf("%w: poll %s group %s", domainerrors.ErrPollGroupMismatch, poll.PollID, groupID)
	}
	return nil
}
