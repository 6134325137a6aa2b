package services

import (
	"fmt"

	"gatherly/contexts/collaboration/group-coordination/domain/entities"
	domainerrors "gatherly/contexts/collaboration/group-coordination/domain/errors"
)

// EnsureAdminRemains checks the last-admin rule against the state after the
// change: the membership of userID is removed when nextRole is nil, otherwise
// it takes nextRole. The change is rejected only when memberships would remain
// without any admin among them.
func EnsureAdminRemains(group entities.Group, userID string, nextRole *entities.Role) error {
	remaining := 0
	admins := 0
	for _, membership := range group.Memberships {
		role := membership.Role
		if membership.UserID == userID {
			if nextRole == nil {
				continue
			}
			role = *nextRole
		}
		remaining++
		if role == entities.RoleAdmin {
			admins++
		}
	}
	if remaining > 0 && admins == 0 {
		return fmt.Errorf("%w: group %s user %s", domainerrors.ErrLastAdmin, group.GroupID, userID)
	}
	return nil
}
