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

// PollSpec is the author-controlled part of a poll. Options are kept in the
// given order.
type PollSpec struct {
	Question  string
	Options   []string
	Anonymous bool
	Deadline  *time.Time
}

type CreatePollCommand struct {
	GroupID  string
	AuthorID string
	Spec     PollSpec
}

type UpdatePollCommand struct {
	GroupID string
	PollID  string
	ActorID string
	Spec    PollSpec
}

type VoteCommand struct {
	GroupID  string
	PollID   string
	OptionID string
	UserID   string
}

// PollUseCase owns poll mutations and vote recording.
type PollUseCase struct {
	UnitOfWork ports.UnitOfWork
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Logger     *slog.Logger
}

func (uc PollUseCase) CreatePoll(ctx context.Context, cmd CreatePollCommand) (entities.Poll, error) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()
	spec, err := normalizePollSpec(cmd.Spec, now)
	if err != nil {
		logger.Warn("poll create validation failed",
			"event", "poll_create_validation_failed",
			"module", application.Module,
			"layer", "application",
			"group_id", cmd.GroupID,
			"author_id", cmd.AuthorID,
			"error", err.Error(),
		)
		return entities.Poll{}, err
	}

	var created entities.Poll
	err = uc.UnitOfWork.WithinTransaction(ctx, func(ctx context.Context, repo ports.Repository) error {
		group, err := repo.LockGroupForShare(ctx, cmd.GroupID)
		if err != nil {
			return err
		}
		if _, err := services.RequireMembership(group, cmd.AuthorID); err != nil {
			return err
		}
		pollID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return err
		}
		options, err := uc.buildOptions(ctx, pollID, spec.Options)
		if err != nil {
			return err
		}
		poll := entities.Poll{
			PollID:    pollID,
			GroupID:   group.GroupID,
			AuthorID:  cmd.AuthorID,
			Question:  spec.Question,
			Deadline:  spec.Deadline,
			Anonymous: spec.Anonymous,
			Options:   options,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.SavePoll(ctx, poll); err != nil {
			return err
		}
		created = poll
		return appendEvent(ctx, repo, uc.IDGen, EventPollCreated, cmd.AuthorID, "poll", pollID, group.GroupID, now, map[string]any{
			"poll_id":      pollID,
			"group_id":     group.GroupID,
			"author_id":    cmd.AuthorID,
			"option_count": len(options),
			"anonymous":    spec.Anonymous,
		})
	})
	if err != nil {
		logRejected(logger, "poll_create_failed", err, "group_id", cmd.GroupID, "author_id", cmd.AuthorID)
		return entities.Poll{}, err
	}
	logger.Info("poll created",
		"event", "poll_created",
		"module", application.Module,
		"layer", "application",
		"group_id", created.GroupID,
		"poll_id", created.PollID,
		"author_id", created.AuthorID,
	)
	return created, nil
}

// Vote records one vote for the caller. The one-vote-per-poll check and the
// insert share a transaction that holds a share lock on the group, so the
// voter cannot be removed mid-vote, and the poll row lock.
func (uc PollUseCase) Vote(ctx context.Context, cmd VoteCommand) (entities.Poll, error) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()
	var updated entities.Poll
	err := uc.UnitOfWork.WithinTransaction(ctx, func(ctx context.Context, repo ports.Repository) error {
		group, err := repo.LockGroupForShare(ctx, cmd.GroupID)
		if err != nil {
			return err
		}
		poll, err := repo.LockPoll(ctx, cmd.PollID)
		if err != nil {
			return err
		}
		if err := services.RequirePollInGroup(poll, group.GroupID); err != nil {
			return err
		}
		if _, err := services.RequireMembership(group, cmd.UserID); err != nil {
			return err
		}
		if _, ok := poll.Option(cmd.OptionID); !ok {
			return fmt.Errorf("%w: option %s poll %s", domainerrors.ErrOptionNotFound, cmd.OptionID, poll.PollID)
		}
		if poll.ClosedAt(now) {
			return fmt.Errorf("%w: poll %s closed at %s", domainerrors.ErrPollClosed, poll.PollID, poll.Deadline.UTC().Format(time.RFC3339))
		}
		if poll.HasVoted(cmd.UserID) {
			return fmt.Errorf("%w: user %s poll %s", domainerrors.ErrAlreadyVoted, cmd.UserID, poll.PollID)
		}

		voteID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return err
		}
		if err := repo.SaveVote(ctx, entities.PollVote{
			VoteID:    voteID,
			PollID:    poll.PollID,
			OptionID:  cmd.OptionID,
			UserID:    cmd.UserID,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		actorID := cmd.UserID
		if poll.Anonymous {
			actorID = ""
		}
		if err := appendEvent(ctx, repo, uc.IDGen, EventVoteCast, actorID, "poll_vote", voteID, group.GroupID, now, voteEventData(poll, cmd)); err != nil {
			return err
		}
		updated, err = repo.GetPoll(ctx, poll.PollID)
		return err
	})
	if err != nil {
		logRejected(logger, "poll_vote_failed", err,
			"group_id", cmd.GroupID,
			"poll_id", cmd.PollID,
			"option_id", cmd.OptionID,
			"user_id", cmd.UserID,
		)
		return entities.Poll{}, err
	}
	logger.Info("poll vote recorded",
		"event", "poll_vote_recorded",
		"module", application.Module,
		"layer", "application",
		"group_id", cmd.GroupID,
		"poll_id", cmd.PollID,
		"option_id", cmd.OptionID,
		"user_id", cmd.UserID,
	)
	return updated, nil
}

// UpdatePoll replaces the poll content wholesale. Previous options and every
// vote cast on them are discarded.
func (uc PollUseCase) UpdatePoll(ctx context.Context, cmd UpdatePollCommand) (entities.Poll, error) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()
	spec, err := normalizePollSpec(cmd.Spec, now)
	if err != nil {
		return entities.Poll{}, err
	}

	var replaced entities.Poll
	err = uc.UnitOfWork.WithinTransaction(ctx, func(ctx context.Context, repo ports.Repository) error {
		poll, err := uc.lockAuthoredPoll(ctx, repo, cmd.GroupID, cmd.PollID, cmd.ActorID)
		if err != nil {
			return err
		}
		options, err := uc.buildOptions(ctx, poll.PollID, spec.Options)
		if err != nil {
			return err
		}
		discarded := poll.TotalVotes()
		poll.Question = spec.Question
		poll.Deadline = spec.Deadline
		poll.Anonymous = spec.Anonymous
		poll.Options = options
		poll.UpdatedAt = now
		if err := repo.ReplacePoll(ctx, poll); err != nil {
			return err
		}
		replaced = poll
		return appendEvent(ctx, repo, uc.IDGen, EventPollUpdated, cmd.ActorID, "poll", poll.PollID, poll.GroupID, now, map[string]any{
			"poll_id":         poll.PollID,
			"group_id":        poll.GroupID,
			"option_count":    len(options),
			"discarded_votes": discarded,
		})
	})
	if err != nil {
		logRejected(logger, "poll_update_failed", err, "group_id", cmd.GroupID, "poll_id", cmd.PollID, "actor_id", cmd.ActorID)
		return entities.Poll{}, err
	}
	logger.Info("poll replaced",
		"event", "poll_updated",
		"module", application.Module,
		"layer", "application",
		"group_id", cmd.GroupID,
		"poll_id", cmd.PollID,
	)
	return replaced, nil
}

func (uc PollUseCase) DeletePoll(ctx context.Context, groupID string, pollID string, actorID string) error {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()
	err := uc.UnitOfWork.WithinTransaction(ctx, func(ctx context.Context, repo ports.Repository) error {
		poll, err := uc.lockAuthoredPoll(ctx, repo, groupID, pollID, actorID)
		if err != nil {
			return err
		}
		if err := repo.DeletePoll(ctx, poll.PollID); err != nil {
			return err
		}
		return appendEvent(ctx, repo, uc.IDGen, EventPollDeleted, actorID, "poll", poll.PollID, poll.GroupID, now, map[string]any{
			"poll_id":  poll.PollID,
			"group_id": poll.GroupID,
		})
	})
	if err != nil {
		logRejected(logger, "poll_delete_failed", err, "group_id", groupID, "poll_id", pollID, "actor_id", actorID)
		return err
	}
	logger.Info("poll deleted",
		"event", "poll_deleted",
		"module", application.Module,
		"layer", "application",
		"group_id", groupID,
		"poll_id", pollID,
	)
	return nil
}

func (uc PollUseCase) lockAuthoredPoll(
	ctx context.Context,
	repo ports.Repository,
	groupID string,
	pollID string,
	actorID string,
) (entities.Poll, error) {
	if _, err := repo.LockGroupForShare(ctx, groupID); err != nil {
		return entities.Poll{}, err
	}
	poll, err := repo.LockPoll(ctx, pollID)
	if err != nil {
		return entities.Poll{}, err
	}
	if err := services.RequirePollInGroup(poll, groupID); err != nil {
		return entities.Poll{}, err
	}
	if err := services.RequirePollAuthor(poll, actorID); err != nil {
		return entities.Poll{}, err
	}
	return poll, nil
}

func (uc PollUseCase) buildOptions(ctx context.Context, pollID string, texts []string) ([]entities.PollOption, error) {
	options := make([]entities.PollOption, 0, len(texts))
	for idx, text := range texts {
		optionID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return nil, err
		}
		options = append(options, entities.PollOption{
			OptionID: optionID,
			PollID:   pollID,
			Text:     text,
			Position: idx,
		})
	}
	return options, nil
}

func (uc PollUseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}

func normalizePollSpec(spec PollSpec, now time.Time) (PollSpec, error) {
	question := strings.TrimSpace(spec.Question)
	if question == "" {
		return PollSpec{}, fmt.Errorf("%w: poll question is required", domainerrors.ErrInvalidRequest)
	}
	if len(spec.Options) == 0 {
		return PollSpec{}, fmt.Errorf("%w: poll needs at least one option", domainerrors.ErrInvalidRequest)
	}
	options := make([]string, 0, len(spec.Options))
	for idx, option := range spec.Options {
		text := strings.TrimSpace(option)
		if text == "" {
			return PollSpec{}, fmt.Errorf("%w: option %d is blank", domainerrors.ErrInvalidRequest, idx)
		}
		options = append(options, text)
	}
	var deadline *time.Time
	if spec.Deadline != nil {
		value := spec.Deadline.UTC()
		if !value.After(now) {
			return PollSpec{}, fmt.Errorf("%w: deadline %s is not in the future", domainerrors.ErrInvalidRequest, value.Format(time.RFC3339))
		}
		deadline = &value
	}
	return PollSpec{
		Question:  question,
		Options:   options,
		Anonymous: spec.Anonymous,
		Deadline:  deadline,
	}, nil
}

func voteEventData(poll entities.Poll, cmd VoteCommand) map[string]any {
	data := map[string]any{
		"poll_id":   poll.PollID,
		"group_id":  poll.GroupID,
		"option_id": cmd.OptionID,
	}
	// Anonymous polls never publish who voted.
	if !poll.Anonymous {
		data["user_id"] = cmd.UserID
	}
	return data
}
