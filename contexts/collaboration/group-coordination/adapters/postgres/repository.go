package postgresadapter

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gatherly/contexts/collaboration/group-coordination/domain/entities"
	domainerrors "gatherly/contexts/collaboration/group-coordination/domain/errors"
	"gatherly/contexts/collaboration/group-coordination/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
	outboxStatusFailed    = "failed"
)

type Repository struct {
	db          *gorm.DB
	logger      *slog.Logger
	lockTimeout time.Duration
}

// NewRepository builds the gorm-backed store. lockTimeout bounds how long a
// transaction waits on a row lock before failing with a transient conflict.
func NewRepository(db *gorm.DB, logger *slog.Logger, lockTimeout time.Duration) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:          db,
		logger:      logger,
		lockTimeout: lockTimeout,
	}
}

// Migrate creates or updates the tables, including the unique indexes on
// (group_id, user_id) memberships and (poll_id, user_id) votes.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(
		&userModel{},
		&groupModel{},
		&membershipModel{},
		&pollModel{},
		&pollOptionModel{},
		&pollVoteModel{},
		&outboxModel{},
	); err != nil {
		return r.logError("group_repo_migrate_failed", err)
	}
	return nil
}

// WithinTransaction runs fn in a read committed transaction. Use cases take a
// row lock (LockGroup, LockPoll) before their checks, and every statement after
// the lock sees rows committed by the previous holder, so a losing request
// fails its business check instead of a serialization check. Deadlocks and lock
// timeouts surface as ErrTransientConflict.
func (r *Repository) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repo ports.Repository) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if r.lockTimeout > 0 {
			statement := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
			if err := tx.Exec(statement).Error; err != nil {
				return err
			}
		}
		return fn(ctx, &Repository{db: tx, logger: r.logger, lockTimeout: r.lockTimeout})
	}, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil && isTransientConflict(err) {
		r.logger.Warn("group transaction aborted by storage conflict",
			"event", "group_repo_transaction_conflict",
			"module", "collaboration/group-coordination",
			"layer", "adapter",
			"error", err.Error(),
		)
		return fmt.Errorf("%w: %v", domainerrors.ErrTransientConflict, err)
	}
	return err
}

func (r *Repository) GetUser(ctx context.Context, userID string) (entities.User, error) {
	var row userModel
	err := r.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(userID)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.User{}, fmt.Errorf("%w: user %s", domainerrors.ErrUserNotFound, userID)
		}
		return entities.User{}, r.logError("group_repo_get_user_failed", err, "user_id", userID)
	}
	return entities.User{UserID: row.ID, Username: row.Username}, nil
}

// SaveUser upserts the caller's directory entry.
func (r *Repository) SaveUser(ctx context.Context, user entities.User) error {
	row := userModel{ID: strings.TrimSpace(user.UserID), Username: strings.TrimSpace(user.Username)}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username"}),
	}).Create(&row).Error; err != nil {
		return r.logError("group_repo_save_user_failed", err, "user_id", user.UserID)
	}
	return nil
}

func (r *Repository) ListUsers(ctx context.Context, userIDs []string) ([]entities.User, error) {
	if len(userIDs) == 0 {
		return []entities.User{}, nil
	}
	var rows []userModel
	if err := r.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&rows).Error; err != nil {
		return nil, r.logError("group_repo_list_users_failed", err, "user_count", len(userIDs))
	}
	items := make([]entities.User, 0, len(rows))
	for _, row := range rows {
		items = append(items, entities.User{UserID: row.ID, Username: row.Username})
	}
	return items, nil
}

func (r *Repository) CreateGroup(ctx context.Context, group entities.Group) error {
	row := groupModelFromEntity(group)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return r.logError("group_repo_create_group_failed", err, "group_id", group.GroupID)
	}
	if len(group.Memberships) == 0 {
		return nil
	}
	members := make([]membershipModel, 0, len(group.Memberships))
	for _, membership := range group.Memberships {
		members = append(members, membershipModelFromEntity(membership))
	}
	if err := r.db.WithContext(ctx).Create(&members).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: group %s", domainerrors.ErrAlreadyMember, group.GroupID)
		}
		return r.logError("group_repo_create_memberships_failed", err, "group_id", group.GroupID)
	}
	return nil
}

func (r *Repository) GetGroup(ctx context.Context, groupID string) (entities.Group, error) {
	return r.loadGroup(ctx, r.db.WithContext(ctx), groupID)
}

func (r *Repository) LockGroup(ctx context.Context, groupID string) (entities.Group, error) {
	return r.loadGroup(ctx, r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), groupID)
}

func (r *Repository) LockGroupForShare(ctx context.Context, groupID string) (entities.Group, error) {
	return r.loadGroup(ctx, r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "SHARE"}), groupID)
}

func (r *Repository) loadGroup(ctx context.Context, query *gorm.DB, groupID string) (entities.Group, error) {
	var row groupModel
	if err := query.Where("id = ?", strings.TrimSpace(groupID)).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Group{}, fmt.Errorf("%w: group %s", domainerrors.ErrGroupNotFound, groupID)
		}
		return entities.Group{}, r.logError("group_repo_get_group_failed", err, "group_id", groupID)
	}
	var members []membershipModel
	if err := r.db.WithContext(ctx).
		Where("group_id = ?", row.ID).
		Order("joined_at ASC, user_id ASC").
		Find(&members).Error; err != nil {
		return entities.Group{}, r.logError("group_repo_list_memberships_failed", err, "group_id", groupID)
	}
	return row.toEntity(members), nil
}

func (r *Repository) UpdateGroup(ctx context.Context, group entities.Group) error {
	result := r.db.WithContext(ctx).
		Model(&groupModel{}).
		Where("id = ?", group.GroupID).
		Updates(map[string]any{
			"name":        group.Name,
			"description": group.Description,
			"visibility":  string(group.Visibility),
			"updated_at":  group.UpdatedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("group_repo_update_group_failed", result.Error, "group_id", group.GroupID)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: group %s", domainerrors.ErrGroupNotFound, group.GroupID)
	}
	return nil
}

// DeleteGroup fans the delete out over votes, options, polls and memberships
// before removing the group row.
func (r *Repository) DeleteGroup(ctx context.Context, groupID string) error {
	db := r.db.WithContext(ctx)
	pollIDs := db.Model(&pollModel{}).Select("id").Where("group_id = ?", groupID)
	if err := db.Where("poll_id IN (?)", pollIDs).Delete(&pollVoteModel{}).Error; err != nil {
		return r.logError("group_repo_delete_group_votes_failed", err, "group_id", groupID)
	}
	if err := db.Where("poll_id IN (?)", pollIDs).Delete(&pollOptionModel{}).Error; err != nil {
		return r.logError("group_repo_delete_group_options_failed", err, "group_id", groupID)
	}
	if err := db.Where("group_id = ?", groupID).Delete(&pollModel{}).Error; err != nil {
		return r.logError("group_repo_delete_group_polls_failed", err, "group_id", groupID)
	}
	if err := db.Where("group_id = ?", groupID).Delete(&membershipModel{}).Error; err != nil {
		return r.logError("group_repo_delete_group_memberships_failed", err, "group_id", groupID)
	}
	result := db.Where("id = ?", groupID).Delete(&groupModel{})
	if result.Error != nil {
		return r.logError("group_repo_delete_group_failed", result.Error, "group_id", groupID)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: group %s", domainerrors.ErrGroupNotFound, groupID)
	}
	return nil
}

func (r *Repository) ListPublicGroups(ctx context.Context, afterID string, limit int) ([]entities.Group, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []groupModel
	if err := r.db.WithContext(ctx).
		Where("visibility = ?", string(entities.VisibilityPublic)).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("group_repo_list_public_groups_failed", err, "after_id", afterID)
	}
	if len(rows) == 0 {
		return []entities.Group{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	var members []membershipModel
	if err := r.db.WithContext(ctx).Where("group_id IN ?", ids).Find(&members).Error; err != nil {
		return nil, r.logError("group_repo_list_public_group_memberships_failed", err, "after_id", afterID)
	}
	byGroup := make(map[string][]membershipModel, len(rows))
	for _, member := range members {
		byGroup[member.GroupID] = append(byGroup[member.GroupID], member)
	}

	items := make([]entities.Group, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity(byGroup[row.ID]))
	}
	return items, nil
}

func (r *Repository) AddMembership(ctx context.Context, membership entities.Membership) error {
	row := membershipModelFromEntity(membership)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %s group %s", domainerrors.ErrAlreadyMember, membership.UserID, membership.GroupID)
		}
		return r.logError("group_repo_add_membership_failed", err,
			"group_id", membership.GroupID,
			"user_id", membership.UserID,
		)
	}
	return nil
}

func (r *Repository) UpdateMembershipRole(ctx context.Context, groupID string, userID string, role entities.Role) error {
	result := r.db.WithContext(ctx).
		Model(&membershipModel{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Update("role", string(role))
	if result.Error != nil {
		return r.logError("group_repo_update_membership_role_failed", result.Error,
			"group_id", groupID,
			"user_id", userID,
		)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: user %s group %s", domainerrors.ErrNotMember, userID, groupID)
	}
	return nil
}

func (r *Repository) DeleteMembership(ctx context.Context, groupID string, userID string) error {
	result := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&membershipModel{})
	if result.Error != nil {
		return r.logError("group_repo_delete_membership_failed", result.Error,
			"group_id", groupID,
			"user_id", userID,
		)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: user %s group %s", domainerrors.ErrNotMember, userID, groupID)
	}
	return nil
}

func (r *Repository) SavePoll(ctx context.Context, poll entities.Poll) error {
	row := pollModelFromEntity(poll)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return r.logError("group_repo_save_poll_failed", err, "poll_id", poll.PollID)
	}
	return r.insertOptions(ctx, poll)
}

func (r *Repository) ReplacePoll(ctx context.Context, poll entities.Poll) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("poll_id = ?", poll.PollID).Delete(&pollVoteModel{}).Error; err != nil {
		return r.logError("group_repo_replace_poll_votes_failed", err, "poll_id", poll.PollID)
	}
	if err := db.Where("poll_id = ?", poll.PollID).Delete(&pollOptionModel{}).Error; err != nil {
		return r.logError("group_repo_replace_poll_options_failed", err, "poll_id", poll.PollID)
	}
	result := db.Model(&pollModel{}).
		Where("id = ?", poll.PollID).
		Updates(map[string]any{
			"question":   poll.Question,
			"deadline":   normalizeOptionalTime(poll.Deadline),
			"anonymous":  poll.Anonymous,
			"updated_at": poll.UpdatedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("group_repo_replace_poll_failed", result.Error, "poll_id", poll.PollID)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: poll %s", domainerrors.ErrPollNotFound, poll.PollID)
	}
	return r.insertOptions(ctx, poll)
}

func (r *Repository) insertOptions(ctx context.Context, poll entities.Poll) error {
	options := optionModelsFromEntity(poll)
	if len(options) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&options).Error; err != nil {
		return r.logError("group_repo_insert_options_failed", err, "poll_id", poll.PollID)
	}
	return nil
}

func (r *Repository) GetPoll(ctx context.Context, pollID string) (entities.Poll, error) {
	return r.loadPoll(ctx, r.db.WithContext(ctx), pollID)
}

func (r *Repository) LockPoll(ctx context.Context, pollID string) (entities.Poll, error) {
	return r.loadPoll(ctx, r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), pollID)
}

func (r *Repository) loadPoll(ctx context.Context, query *gorm.DB, pollID string) (entities.Poll, error) {
	var row pollModel
	if err := query.Where("id = ?", strings.TrimSpace(pollID)).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Poll{}, fmt.Errorf("%w: poll %s", domainerrors.ErrPollNotFound, pollID)
		}
		return entities.Poll{}, r.logError("group_repo_get_poll_failed", err, "poll_id", pollID)
	}
	polls, err := r.attachChildren(ctx, []pollModel{row})
	if err != nil {
		return entities.Poll{}, err
	}
	return polls[0], nil
}

func (r *Repository) ListPollsByGroup(ctx context.Context, groupID string) ([]entities.Poll, error) {
	var rows []pollModel
	if err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("group_repo_list_polls_failed", err, "group_id", groupID)
	}
	return r.attachChildren(ctx, rows)
}

func (r *Repository) attachChildren(ctx context.Context, rows []pollModel) ([]entities.Poll, error) {
	if len(rows) == 0 {
		return []entities.Poll{}, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	var options []pollOptionModel
	if err := r.db.WithContext(ctx).
		Where("poll_id IN ?", ids).
		Order("position ASC").
		Find(&options).Error; err != nil {
		return nil, r.logError("group_repo_list_options_failed", err, "poll_count", len(ids))
	}
	var votes []pollVoteModel
	if err := r.db.WithContext(ctx).
		Where("poll_id IN ?", ids).
		Order("created_at ASC, id ASC").
		Find(&votes).Error; err != nil {
		return nil, r.logError("group_repo_list_votes_failed", err, "poll_count", len(ids))
	}
	items := make([]entities.Poll, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity(options, votes))
	}
	return items, nil
}

func (r *Repository) DeletePoll(ctx context.Context, pollID string) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("poll_id = ?", pollID).Delete(&pollVoteModel{}).Error; err != nil {
		return r.logError("group_repo_delete_poll_votes_failed", err, "poll_id", pollID)
	}
	if err := db.Where("poll_id = ?", pollID).Delete(&pollOptionModel{}).Error; err != nil {
		return r.logError("group_repo_delete_poll_options_failed", err, "poll_id", pollID)
	}
	result := db.Where("id = ?", pollID).Delete(&pollModel{})
	if result.Error != nil {
		return r.logError("group_repo_delete_poll_failed", result.Error, "poll_id", pollID)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: poll %s", domainerrors.ErrPollNotFound, pollID)
	}
	return nil
}

func (r *Repository) SaveVote(ctx context.Context, vote entities.PollVote) error {
	row := pollVoteModel{
		ID:        vote.VoteID,
		PollID:    vote.PollID,
		OptionID:  vote.OptionID,
		UserID:    vote.UserID,
		CreatedAt: vote.CreatedAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %s poll %s", domainerrors.ErrAlreadyVoted, vote.UserID, vote.PollID)
		}
		return r.logError("group_repo_save_vote_failed", err,
			"poll_id", vote.PollID,
			"user_id", vote.UserID,
		)
	}
	return nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("group_repo_append_outbox_marshal_failed", err,
			"event_id", envelope.EventID,
			"event_type", envelope.EventType,
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAtUTC.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row).Error; err != nil {
		return r.logError("group_repo_append_outbox_insert_failed", err, "outbox_id", row.OutboxID)
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC, outbox_id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("group_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("group_repo_mark_outbox_published_failed", result.Error, "outbox_id", outboxID)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("outbox row %s not found", outboxID)
	}
	return nil
}

func (r *Repository) MarkOutboxFailed(ctx context.Context, outboxID string, reason string, failedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":     outboxStatusFailed,
			"last_error": reason,
			"failed_at":  failedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("group_repo_mark_outbox_failed_failed", result.Error, "outbox_id", outboxID)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("outbox row %s not found", outboxID)
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "collaboration/group-coordination",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("group repository operation failed", fields...)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isTransientConflict matches serialization_failure, deadlock_detected and
// lock_not_available.
func isTransientConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "55P03":
		return true
	default:
		return false
	}
}

var _ ports.Repository = (*Repository)(nil)
var _ ports.UnitOfWork = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
