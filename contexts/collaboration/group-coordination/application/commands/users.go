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
	"gatherly/contexts/collaboration/group-coordination/ports"
)

type SaveProfileCommand struct {
	UserID   string
	Username string
}

// UserUseCase keeps the local user directory in step with the identity the
// boundary resolved. Membership and vote rules only read the directory.
type UserUseCase struct {
	UnitOfWork ports.UnitOfWork
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Logger     *slog.Logger
}

// SaveProfile creates or renames the caller's directory entry.
func (uc UserUseCase) SaveProfile(ctx context.Context, cmd SaveProfileCommand) (entities.User, error) {
	logger := application.ResolveLogger(uc.Logger)
	user := entities.User{
		UserID:   strings.TrimSpace(cmd.UserID),
		Username: strings.TrimSpace(cmd.Username),
	}
	if user.UserID == "" || user.Username == "" {
		err := fmt.Errorf("%w: user id and username are required", domainerrors.ErrInvalidRequest)
		logRejected(logger, "user_profile_save_failed", err, "user_id", user.UserID)
		return entities.User{}, err
	}
	now := uc.now()
	err := uc.UnitOfWork.WithinTransaction(ctx, func(ctx context.Context, repo ports.Repository) error {
		if err := repo.SaveUser(ctx, user); err != nil {
			return err
		}
		return appendEvent(ctx, repo, uc.IDGen, EventUserProfileSaved, user.UserID, "user", user.UserID, user.UserID, now, map[string]any{
			"user_id":  user.UserID,
			"username": user.Username,
		})
	})
	if err != nil {
		logRejected(logger, "user_profile_save_failed", err, "user_id", user.UserID)
		return entities.User{}, err
	}
	logger.Info("user profile saved",
		"event", "user_profile_saved",
		"module", application.Module,
		"layer", "application",
		"user_id", user.UserID,
	)
	return user, nil
}

func (uc UserUseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}
