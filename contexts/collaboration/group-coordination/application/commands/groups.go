package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	application "gatherly/contexts/collaboration/group-coordination/application"
	"gatherly/contexts/collaboration/group-coordination/domain/entities"
	domainerrors "gatherly/contexts/collaboration/group-coordination/domain/errors"
	"gatherly/contexts/collaboration/group-coordination/domain/services"
	"gatherly/contexts/collaboration/group-coordination/ports"
)

type CreateGroupCommand struct {
	ActorID     string
	Name        string
	Description string
	Visibility  entities.Visibility
}

type UpdateGroupCommand struct {
	GroupID     string
	ActorID     string
	Name        string
	Description string
	Visibility  entities.Visibility
}

// RemoveMemberCommand removes TargetUserID from the group on behalf of ActorID.
type RemoveMemberCommand struct {
	GroupID      string
	ActorID      string
	TargetUserID string
}

type ChangeMemberRoleCommand struct {
	GroupID      string
	ActorID      string
	TargetUserID string
	Role         entities.Role
}

// GroupUseCase owns group lifecycle and membership mutations. Every method runs
// its precondition checks and writes inside one unit of work so concurrent
// requests cannot both pass a check and then break the invariant it guards.
type GroupUseCase struct {
	UnitOfWork ports.UnitOfWork
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Logger     *slog.Logger
}

func (uc GroupUseCase) CreateGroup(ctx context.Context, cmd CreateGroupCommand) (entities.Group, error) {
	logger := application.ResolveLogger(uc.Logger)
	actorID := strings.TrimSpace(cmd.ActorID)
	name := strings.TrimSpace(cmd.Name)
	visibility, err := normalizeVisibility(cmd.Visibility)
	if err != nil || actorID == "" || name == "" {
		logger.Warn("group create validation failed",
			"event", "group_create_validation_failed",
			"module", application.Module,
			"layer", "application",
			"actor_id", actorID,
		)
		return entities.Group{}, fmt.Errorf("%w: group name and a public or private visibility are required", domainerrors.ErrInvalidRequest)
	}

	groupID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Group{}, err
	}
	now := uc.now()
	group := entities.Group{
		GroupID:     groupID,
		Name:        name,
		Description: strings.TrimSpace(cmd.Description),
		Visibility:  visibility,
		CreatedBy:   actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Memberships: []entities.Membership{{
			GroupID:  groupID,
			UserID:   actorID,
			Role:     entities.RoleAdmin,
			JoinedAt: now,
		}},
	}

	err = uc.UnitOfWork.WithinTransaction(ctx, func(ctx context.Context, repo ports.Repository) error {
		if _, err := repo.GetUser(ctx, actorID); err != nil {
			return err
		}
		if err := repo.CreateGroup(ctx, group); err != nil {
			return err
		}
		return appendEvent(ctx, repo, uc.IDGen, EventGroupCreated, actorID, "group", groupID, groupID, now, map[string]any{
			"group_id":   groupID,
			"name":       group.Name,
			"visibility": string(group.Visibility),
			"created_by": actorID,
		})
	})
	if err != nil {
		logRejected(logger, "group_create_failed", err, "actor_id", actorID)
		return entities.Group{}, err
	}

	logger.Info("group created",
		"event", "group_created",
		"module", application.Module,
		"layer", "application",
		"group_id", groupID,
		"actor_id", actorID,
	)
	return group, nil
}

func (uc GroupUseCase) UpdateGroup(ctx context.Context, cmd UpdateGroupCommand) (entities.Group, error) {
	logger := application.ResolveLogger(uc.Logger)
	name := strings.TrimSpace(cmd.Name)
	visibility, err := normalizeVisibility(cmd.Visibility)
	if err != nil || name == "" || strings.TrimSpace(cmd.GroupID) == "" {
		return entities.Group{}, fmt.Errorf("%w: group name and a public or private visibility are required", domainerrors.ErrInvalidRequest)
	}

	now := uc.now()
	var updated entities.Group
	err = uc.UnitOfWork.WithinTransaction(ctx, func(ctx context.Context, repo ports.Repository) error {
		group, err := repo.LockGroup(ctx, cmd.GroupID)
		if err != nil {
			return err
		}
		if _, err := services.RequireAdmin(group, cmd.ActorID); err != nil {
			return err
		}
		group.Name = name
		group.Description = strings.TrimSpace(cmd.Description)
		group.Visibility = visibility
		group.UpdatedAt = now
		if err := repo.UpdateGroup(ctx, group); err != nil {
			return err
		}
		updated = group
		return appendEvent(ctx, repo, uc.IDGen, EventGroupUpdated, cmd.ActorID, "group", group.GroupID, group.GroupID, now, map[string]any{
			"group_id":   group.GroupID,
			"name":       group.Name,
			"visibility": string(group.Visibility),
		})
	})
	if err != nil {
		logRejected(logger, "group_update_failed", err, "group_id", cmd.GroupID, "actor_id", cmd.ActorID)
		return entities.Group{}, err
	}
	logger.Info("group updated",
		"event", "group_updated",
		"module", application.Module,
		"layer", "application",
		"group_id", updated.GroupID,
		"actor_id", cmd.ActorID,
	)
	return updated, nil
}

// DeleteGroup removes the group with its memberships, polls, options and votes.
func (uc GroupUseCase) DeleteGroup(ctx context.Context, groupID string, actorID string) error {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()
	err := uc.UnitOfWork.WithinTransaction(ctx, func(ctx context.Context, repo ports.Repository) error {
		group, err := repo.LockGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if _, err := services.RequireAdmin(group, actorID); err != nil {
			return err
		}
		if err := repo.DeleteGroup(ctx, groupID); err != nil {
			return err
		}
		return appendEvent(ctx, repo, uc.IDGen, EventGroupDeleted, actorID, "group", groupID, groupID, now, map[string]any{
			"group_id":     groupID,
			"member_count": len(group.Memberships),
		})
	})
	if err != nil {
		logRejected(logger, "group_delete_failed", err, "group_id", groupID, "actor_id", actorID)
		return err
	}
	logger.Info("group deleted",
		"event", "group_deleted",
		"module", application.Module,
		"layer", "application",
		"group_id", groupID,
		"actor_id", actorID,
	)
	return nil
}

// Join adds userID as a plain member.
func (uc GroupUseCase) Join(ctx context.Context, groupID string, userID string) (entities.Membership, error) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()
	membership := entities.Membership{
		GroupID:  groupID,
		UserID:   userID,
		Role:     entities.RoleMember,
		JoinedAt: now,
	}
	err := uc.UnitOfWork.WithinTransaction(ctx, func(ctx context.Context, repo ports.Repository) error {
		group, err := repo.LockGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if _, err := repo.GetUser(ctx, userID); err != nil {
			return err
		}
		if _, exists := group.MembershipOf(userID); exists {
			return fmt.Errorf("%w: user %s group %s", domainerrors.ErrAlreadyMember, userID, groupID)
		}
		if err := repo.AddMembership(ctx, membership); err != nil {
			return err
		}
		return appendEvent(ctx, repo, uc.IDGen, EventMemberJoined, userID, "membership", userID, groupID, now, map[string]any{
			"group_id": groupID,
			"user_id":  userID,
			"role":     string(membership.Role),
		})
	})
	if err != nil {
		logRejected(logger, "group_join_failed", err, "group_id", groupID, "user_id", userID)
		return entities.Membership{}, err
	}
	logger.Info("group joined",
		"event", "group_member_joined",
		"module", application.Module,
		"layer", "application",
		"group_id", groupID,
		"user_id", userID,
	)
	return membership, nil
}

// Leave removes the caller's own membership, subject to the last-admin rule.
func (uc GroupUseCase) Leave(ctx context.Context, groupID string, userID string) error {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()
	err := uc.UnitOfWork.WithinTransaction(ctx, func(ctx context.Context, repo ports.Repository) error {
		group, err := repo.LockGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if _, err := services.RequireMembership(group, userID); err != nil {
			return err
		}
		if err := services.EnsureAdminRemains(group, userID, nil); err != nil {
			return err
		}
		if err := repo.DeleteMembership(ctx, groupID, userID); err != nil {
			return err
		}
		return appendEvent(ctx, repo, uc.IDGen, EventMemberLeft, userID, "membership", userID, groupID, now, map[string]any{
			"group_id":          groupID,
			"user_id":           userID,
			"remaining_members": len(group.Memberships) - 1,
		})
	})
	if err != nil {
		logRejected(logger, "group_leave_failed", err, "group_id", groupID, "user_id", userID)
		return err
	}
	logger.Info("group left",
		"event", "group_member_left",
		"module", application.Module,
		"layer", "application",
		"group_id", groupID,
		"user_id", userID,
	)
	return nil
}

func (uc GroupUseCase) RemoveMember(ctx context.Context, cmd RemoveMemberCommand) error {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()
	err := uc.UnitOfWork.WithinTransaction(ctx, func(ctx context.Context, repo ports.Repository) error {
		group, err := repo.LockGroup(ctx, cmd.GroupID)
		if err != nil {
			return err
		}
		if _, err := services.RequireAdmin(group, cmd.ActorID); err != nil {
			return err
		}
		if _, err := services.RequireMembership(group, cmd.TargetUserID); err != nil {
			return err
		}
		if err := services.EnsureAdminRemains(group, cmd.TargetUserID, nil); err != nil {
			return err
		}
		if err := repo.DeleteMembership(ctx, cmd.GroupID, cmd.TargetUserID); err != nil {
			return err
		}
		return appendEvent(ctx, repo, uc.IDGen, EventMemberRemoved, cmd.ActorID, "membership", cmd.TargetUserID, cmd.GroupID, now, map[string]any{
			"group_id":   cmd.GroupID,
			"user_id":    cmd.TargetUserID,
			"removed_by": cmd.ActorID,
		})
	})
	if err != nil {
		logRejected(logger, "group_remove_member_failed", err,
			"group_id", cmd.GroupID,
			"actor_id", cmd.ActorID,
			"target_user_id", cmd.TargetUserID,
		)
		return err
	}
	logger.Info("group member removed",
		"event", "group_member_removed",
		"module", application.Module,
		"layer", "application",
		"group_id", cmd.GroupID,
		"actor_id", cmd.ActorID,
		"target_user_id", cmd.TargetUserID,
	)
	return nil
}

// ChangeMemberRole promotes or demotes a member. Demoting the last admin of a
// group that still has other members is rejected.
func (uc GroupUseCase) ChangeMemberRole(ctx context.Context, cmd ChangeMemberRoleCommand) (entities.Membership, error) {
	logger := application.ResolveLogger(uc.Logger)
	if !cmd.Role.Valid() {
		return entities.Membership{}, fmt.Errorf("%w: role %q", domainerrors.ErrInvalidRequest, cmd.Role)
	}
	now := uc.now()
	var changed entities.Membership
	err := uc.UnitOfWork.WithinTransaction(ctx, func(ctx context.Context, repo ports.Repository) error {
		group, err := repo.LockGroup(ctx, cmd.GroupID)
		if err != nil {
			return err
		}
		if _, err := services.RequireAdmin(group, cmd.ActorID); err != nil {
			return err
		}
		target, err := services.RequireMembership(group, cmd.TargetUserID)
		if err != nil {
			return err
		}
		if target.Role == cmd.Role {
			changed = target
			return nil
		}
		role := cmd.Role
		if err := services.EnsureAdminRemains(group, cmd.TargetUserID, &role); err != nil {
			return err
		}
		if err := repo.UpdateMembershipRole(ctx, cmd.GroupID, cmd.TargetUserID, role); err != nil {
			return err
		}
		target.Role = role
		changed = target
		return appendEvent(ctx, repo, uc.IDGen, EventMemberRoleChanged, cmd.ActorID, "membership", cmd.TargetUserID, cmd.GroupID, now, map[string]any{
			"group_id": cmd.GroupID,
			"user_id":  cmd.TargetUserID,
			"role":     string(role),
		})
	})
	if err != nil {
		logRejected(logger, "group_change_role_failed", err,
			"group_id", cmd.GroupID,
			"actor_id", cmd.ActorID,
			"target_user_id", cmd.TargetUserID,
		)
		return entities.Membership{}, err
	}
	logger.Info("group member role changed",
		"event", "group_member_role_changed",
		"module", application.Module,
		"layer", "application",
		"group_id", cmd.GroupID,
		"target_user_id", cmd.TargetUserID,
		"role", string(changed.Role),
	)
	return changed, nil
}

func (uc GroupUseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}

func normalizeVisibility(value entities.Visibility) (entities.Visibility, error) {
	normalized := entities.Visibility(strings.ToLower(strings.TrimSpace(string(value))))
	if normalized == "" {
		return entities.VisibilityPublic, nil
	}
	if !normalized.Valid() {
		return "", fmt.Errorf("%w: visibility %q", domainerrors.ErrInvalidRequest, value)
	}
	return normalized, nil
}

// logRejected logs business rule rejections at warn and everything else at error.
func logRejected(logger *slog.Logger, event string, err error, attrs ...any) {
	fields := make([]any, 0, len(attrs)+10)
	fields = append(fields,
		"event", event,
		"module", application.Module,
		"layer", "application",
		"error_kind", string(domainerrors.KindOf(err)),
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	if domainerrors.KindOf(err) == domainerrors.KindUnknown {
		logger.Error("operation failed", fields...)
		return
	}
	logger.Warn("operation rejected", fields...)
}
