package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"gatherly/contexts/collaboration/group-coordination/domain/entities"
	domainerrors "gatherly/contexts/collaboration/group-coordination/domain/errors"
	"gatherly/contexts/collaboration/group-coordination/ports"

	"github.com/google/uuid"
)

// tables is the full in-memory dataset. Store guards one instance with its
// mutex; transactions work on a clone and swap it in on success. Outbox rows a
// transaction appends are staged on the clone and moved to the store's outbox
// on commit, so the clone never copies the outbox.
type tables struct {
	users       map[string]entities.User
	groups      map[string]entities.Group
	memberships map[string]map[string]entities.Membership
	polls       map[string]entities.Poll
	// unique (poll_id, user_id) index mirroring idx_poll_votes_poll_user.
	voteIndex map[string]string
	staged    []ports.OutboxMessage
}

type Store struct {
	mu   sync.RWMutex
	data *tables
	// outbox holds pending rows only; published rows are dropped and failed
	// rows are parked in failed.
	outbox map[string]ports.OutboxMessage
	failed map[string]ports.OutboxMessage

	// clock has its own lock so it can be read inside a transaction.
	clockMu sync.RWMutex
	clock   func() time.Time
}

func NewStore() *Store {
	data := newTables()
	for _, user := range []entities.User{
		{UserID: "user_alice", Username: "alice"},
		{UserID: "user_bob", Username: "bob"},
		{UserID: "user_carol", Username: "carol"},
		{UserID: "user_dave", Username: "dave"},
		{UserID: "user_erin", Username: "erin"},
	} {
		data.users[user.UserID] = user
	}

	now := time.Now().UTC()
	seed := entities.Group{
		GroupID:     "group_seed_1",
		Name:        "Weekend Hikers",
		Description: "Planning group for weekend trips",
		Visibility:  entities.VisibilityPublic,
		CreatedBy:   "user_alice",
		CreatedAt:   now.Add(-7 * 24 * time.Hour),
		UpdatedAt:   now.Add(-7 * 24 * time.Hour),
		Memberships: []entities.Membership{
			{GroupID: "group_seed_1", UserID: "user_alice", Role: entities.RoleAdmin, JoinedAt: now.Add(-7 * 24 * time.Hour)},
			{GroupID: "group_seed_1", UserID: "user_bob", Role: entities.RoleMember, JoinedAt: now.Add(-6 * 24 * time.Hour)},
		},
	}
	_ = data.CreateGroup(context.Background(), seed)

	return &Store{
		data:   data,
		outbox: make(map[string]ports.OutboxMessage),
		failed: make(map[string]ports.OutboxMessage),
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

func newTables() *tables {
	return &tables{
		users:       make(map[string]entities.User),
		groups:      make(map[string]entities.Group),
		memberships: make(map[string]map[string]entities.Membership),
		polls:       make(map[string]entities.Poll),
		voteIndex:   make(map[string]string),
	}
}

// SetClock overrides the store clock.
func (s *Store) SetClock(clock func() time.Time) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	s.clock = clock
}

// PutUser upserts a directory entry.
func (s *Store) PutUser(user entities.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.users[user.UserID] = user
}

func (s *Store) Now() time.Time {
	s.clockMu.RLock()
	clock := s.clock
	s.clockMu.RUnlock()
	return clock().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

// WithinTransaction serializes fn against every other store access and
// discards its writes when fn fails.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repo ports.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.data.clone()
	if err := fn(ctx, working); err != nil {
		return err
	}
	for _, message := range working.staged {
		s.addOutbox(message)
	}
	working.staged = nil
	s.data = working
	return nil
}

func (s *Store) addOutbox(message ports.OutboxMessage) {
	if _, exists := s.outbox[message.OutboxID]; exists {
		return
	}
	if _, exists := s.failed[message.OutboxID]; exists {
		return
	}
	s.outbox[message.OutboxID] = message
}

func (s *Store) GetUser(ctx context.Context, userID string) (entities.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetUser(ctx, userID)
}

func (s *Store) ListUsers(ctx context.Context, userIDs []string) ([]entities.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListUsers(ctx, userIDs)
}

func (s *Store) CreateGroup(ctx context.Context, group entities.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CreateGroup(ctx, group)
}

func (s *Store) GetGroup(ctx context.Context, groupID string) (entities.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetGroup(ctx, groupID)
}

func (s *Store) LockGroup(ctx context.Context, groupID string) (entities.Group, error) {
	return s.GetGroup(ctx, groupID)
}

func (s *Store) LockGroupForShare(ctx context.Context, groupID string) (entities.Group, error) {
	return s.GetGroup(ctx, groupID)
}

func (s *Store) UpdateGroup(ctx context.Context, group entities.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UpdateGroup(ctx, group)
}

func (s *Store) DeleteGroup(ctx context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.DeleteGroup(ctx, groupID)
}

func (s *Store) ListPublicGroups(ctx context.Context, afterID string, limit int) ([]entities.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListPublicGroups(ctx, afterID, limit)
}

func (s *Store) AddMembership(ctx context.Context, membership entities.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.AddMembership(ctx, membership)
}

func (s *Store) UpdateMembershipRole(ctx context.Context, groupID string, userID string, role entities.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UpdateMembershipRole(ctx, groupID, userID, role)
}

func (s *Store) DeleteMembership(ctx context.Context, groupID string, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.DeleteMembership(ctx, groupID, userID)
}

func (s *Store) SavePoll(ctx context.Context, poll entities.Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.SavePoll(ctx, poll)
}

func (s *Store) ReplacePoll(ctx context.Context, poll entities.Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ReplacePoll(ctx, poll)
}

func (s *Store) GetPoll(ctx context.Context, pollID string) (entities.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetPoll(ctx, pollID)
}

func (s *Store) LockPoll(ctx context.Context, pollID string) (entities.Poll, error) {
	return s.GetPoll(ctx, pollID)
}

func (s *Store) ListPollsByGroup(ctx context.Context, groupID string) ([]entities.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListPollsByGroup(ctx, groupID)
}

func (s *Store) DeletePoll(ctx context.Context, pollID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.DeletePoll(ctx, pollID)
}

func (s *Store) SaveVote(ctx context.Context, vote entities.PollVote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.SaveVote(ctx, vote)
}

func (s *Store) SaveUser(ctx context.Context, user entities.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.SaveUser(ctx, user)
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	message, err := newOutboxMessage(envelope)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addOutbox(message)
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, message := range s.outbox {
		items = append(items, message)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].OutboxID < items[j].OutboxID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// MarkOutboxPublished drops the row; nothing reads published rows back.
func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.outbox[outboxID]; !ok {
		return fmt.Errorf("outbox row %s not found", outboxID)
	}
	delete(s.outbox, outboxID)
	return nil
}

func (s *Store) MarkOutboxFailed(_ context.Context, outboxID string, _ string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	message, ok := s.outbox[outboxID]
	if !ok {
		return fmt.Errorf("outbox row %s not found", outboxID)
	}
	delete(s.outbox, outboxID)
	s.failed[outboxID] = message
	return nil
}

// PendingOutboxCount is a test helper.
func (s *Store) PendingOutboxCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.outbox)
}

// FailedOutboxCount is a test helper.
func (s *Store) FailedOutboxCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.failed)
}

// MembershipCount is a test helper.
func (s *Store) MembershipCount(groupID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.memberships[groupID])
}

func (t *tables) GetUser(_ context.Context, userID string) (entities.User, error) {
	user, ok := t.users[userID]
	if !ok {
		return entities.User{}, fmt.Errorf("%w: user %s", domainerrors.ErrUserNotFound, userID)
	}
	return user, nil
}

func (t *tables) SaveUser(_ context.Context, user entities.User) error {
	t.users[user.UserID] = user
	return nil
}

func (t *tables) ListUsers(_ context.Context, userIDs []string) ([]entities.User, error) {
	items := make([]entities.User, 0, len(userIDs))
	for _, userID := range userIDs {
		if user, ok := t.users[userID]; ok {
			items = append(items, user)
		}
	}
	return items, nil
}

func (t *tables) CreateGroup(_ context.Context, group entities.Group) error {
	if _, exists := t.groups[group.GroupID]; exists {
		return fmt.Errorf("group %s already exists", group.GroupID)
	}
	members := make(map[string]entities.Membership, len(group.Memberships))
	for _, membership := range group.Memberships {
		if _, dup := members[membership.UserID]; dup {
			return fmt.Errorf("%w: user %s group %s", domainerrors.ErrAlreadyMember, membership.UserID, group.GroupID)
		}
		members[membership.UserID] = membership
	}
	group.Memberships = nil
	t.groups[group.GroupID] = group
	t.memberships[group.GroupID] = members
	return nil
}

func (t *tables) GetGroup(_ context.Context, groupID string) (entities.Group, error) {
	group, ok := t.groups[groupID]
	if !ok {
		return entities.Group{}, fmt.Errorf("%w: group %s", domainerrors.ErrGroupNotFound, groupID)
	}
	return t.withMemberships(group), nil
}

func (t *tables) LockGroup(ctx context.Context, groupID string) (entities.Group, error) {
	return t.GetGroup(ctx, groupID)
}

func (t *tables) LockGroupForShare(ctx context.Context, groupID string) (entities.Group, error) {
	return t.GetGroup(ctx, groupID)
}

func (t *tables) UpdateGroup(_ context.Context, group entities.Group) error {
	existing, ok := t.groups[group.GroupID]
	if !ok {
		return fmt.Errorf("%w: group %s", domainerrors.ErrGroupNotFound, group.GroupID)
	}
	existing.Name = group.Name
	existing.Description = group.Description
	existing.Visibility = group.Visibility
	existing.UpdatedAt = group.UpdatedAt
	t.groups[group.GroupID] = existing
	return nil
}

func (t *tables) DeleteGroup(ctx context.Context, groupID string) error {
	if _, ok := t.groups[groupID]; !ok {
		return fmt.Errorf("%w: group %s", domainerrors.ErrGroupNotFound, groupID)
	}
	for pollID, poll := range t.polls {
		if poll.GroupID == groupID {
			if err := t.DeletePoll(ctx, pollID); err != nil {
				return err
			}
		}
	}
	delete(t.memberships, groupID)
	delete(t.groups, groupID)
	return nil
}

func (t *tables) ListPublicGroups(_ context.Context, afterID string, limit int) ([]entities.Group, error) {
	if limit <= 0 {
		limit = 50
	}
	ids := make([]string, 0, len(t.groups))
	for id, group := range t.groups {
		if group.Visibility == entities.VisibilityPublic && id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	items := make([]entities.Group, 0, len(ids))
	for _, id := range ids {
		items = append(items, t.withMemberships(t.groups[id]))
	}
	return items, nil
}

func (t *tables) AddMembership(_ context.Context, membership entities.Membership) error {
	members, ok := t.memberships[membership.GroupID]
	if _, exists := t.groups[membership.GroupID]; !exists || !ok {
		return fmt.Errorf("%w: group %s", domainerrors.ErrGroupNotFound, membership.GroupID)
	}
	if _, exists := members[membership.UserID]; exists {
		return fmt.Errorf("%w: user %s group %s", domainerrors.ErrAlreadyMember, membership.UserID, membership.GroupID)
	}
	members[membership.UserID] = membership
	return nil
}

func (t *tables) UpdateMembershipRole(_ context.Context, groupID string, userID string, role entities.Role) error {
	membership, ok := t.memberships[groupID][userID]
	if !ok {
		return fmt.Errorf("%w: user %s group %s", domainerrors.ErrNotMember, userID, groupID)
	}
	membership.Role = role
	t.memberships[groupID][userID] = membership
	return nil
}

func (t *tables) DeleteMembership(_ context.Context, groupID string, userID string) error {
	if _, ok := t.memberships[groupID][userID]; !ok {
		return fmt.Errorf("%w: user %s group %s", domainerrors.ErrNotMember, userID, groupID)
	}
	delete(t.memberships[groupID], userID)
	return nil
}

func (t *tables) SavePoll(_ context.Context, poll entities.Poll) error {
	if _, ok := t.groups[poll.GroupID]; !ok {
		return fmt.Errorf("%w: group %s", domainerrors.ErrGroupNotFound, poll.GroupID)
	}
	if _, exists := t.polls[poll.PollID]; exists {
		return fmt.Errorf("poll %s already exists", poll.PollID)
	}
	t.polls[poll.PollID] = clonePoll(poll)
	t.indexVotes(poll)
	return nil
}

func (t *tables) ReplacePoll(_ context.Context, poll entities.Poll) error {
	existing, ok := t.polls[poll.PollID]
	if !ok {
		return fmt.Errorf("%w: poll %s", domainerrors.ErrPollNotFound, poll.PollID)
	}
	t.unindexVotes(existing)
	t.polls[poll.PollID] = clonePoll(poll)
	t.indexVotes(poll)
	return nil
}

func (t *tables) GetPoll(_ context.Context, pollID string) (entities.Poll, error) {
	poll, ok := t.polls[pollID]
	if !ok {
		return entities.Poll{}, fmt.Errorf("%w: poll %s", domainerrors.ErrPollNotFound, pollID)
	}
	out := clonePoll(poll)
	entities.SortOptions(out.Options)
	return out, nil
}

func (t *tables) LockPoll(ctx context.Context, pollID string) (entities.Poll, error) {
	return t.GetPoll(ctx, pollID)
}

func (t *tables) ListPollsByGroup(ctx context.Context, groupID string) ([]entities.Poll, error) {
	items := make([]entities.Poll, 0)
	for pollID, poll := range t.polls {
		if poll.GroupID != groupID {
			continue
		}
		item, err := t.GetPoll(ctx, pollID)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].PollID < items[j].PollID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (t *tables) DeletePoll(_ context.Context, pollID string) error {
	poll, ok := t.polls[pollID]
	if !ok {
		return fmt.Errorf("%w: poll %s", domainerrors.ErrPollNotFound, pollID)
	}
	t.unindexVotes(poll)
	delete(t.polls, pollID)
	return nil
}

func (t *tables) SaveVote(_ context.Context, vote entities.PollVote) error {
	poll, ok := t.polls[vote.PollID]
	if !ok {
		return fmt.Errorf("%w: poll %s", domainerrors.ErrPollNotFound, vote.PollID)
	}
	key := pollUserKey(vote.PollID, vote.UserID)
	if _, exists := t.voteIndex[key]; exists {
		return fmt.Errorf("%w: user %s poll %s", domainerrors.ErrAlreadyVoted, vote.UserID, vote.PollID)
	}
	for idx := range poll.Options {
		if poll.Options[idx].OptionID == vote.OptionID {
			poll.Options[idx].Votes = append(poll.Options[idx].Votes, vote)
			t.polls[vote.PollID] = poll
			t.voteIndex[key] = vote.VoteID
			return nil
		}
	}
	return fmt.Errorf("%w: option %s poll %s", domainerrors.ErrOptionNotFound, vote.OptionID, vote.PollID)
}

func (t *tables) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	message, err := newOutboxMessage(envelope)
	if err != nil {
		return err
	}
	t.staged = append(t.staged, message)
	return nil
}

func newOutboxMessage(envelope ports.EventEnvelope) (ports.OutboxMessage, error) {
	outboxID := envelope.EventID
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return ports.OutboxMessage{}, err
	}
	return ports.OutboxMessage{
		OutboxID:     outboxID,
		EventType:    envelope.EventType,
		PartitionKey: envelope.PartitionKey,
		Payload:      payload,
		CreatedAt:    envelope.OccurredAtUTC.UTC(),
	}, nil
}

func (t *tables) withMemberships(group entities.Group) entities.Group {
	members := t.memberships[group.GroupID]
	group.Memberships = make([]entities.Membership, 0, len(members))
	for _, membership := range members {
		group.Memberships = append(group.Memberships, membership)
	}
	entities.SortMemberships(group.Memberships)
	return group
}

func (t *tables) indexVotes(poll entities.Poll) {
	for _, option := range poll.Options {
		for _, vote := range option.Votes {
			t.voteIndex[pollUserKey(poll.PollID, vote.UserID)] = vote.VoteID
		}
	}
}

func (t *tables) unindexVotes(poll entities.Poll) {
	for _, option := range poll.Options {
		for _, vote := range option.Votes {
			delete(t.voteIndex, pollUserKey(poll.PollID, vote.UserID))
		}
	}
}

func (t *tables) clone() *tables {
	out := newTables()
	for id, user := range t.users {
		out.users[id] = user
	}
	for id, group := range t.groups {
		out.groups[id] = group
	}
	for groupID, members := range t.memberships {
		copied := make(map[string]entities.Membership, len(members))
		for userID, membership := range members {
			copied[userID] = membership
		}
		out.memberships[groupID] = copied
	}
	for id, poll := range t.polls {
		out.polls[id] = clonePoll(poll)
	}
	for key, voteID := range t.voteIndex {
		out.voteIndex[key] = voteID
	}
	return out
}

func clonePoll(poll entities.Poll) entities.Poll {
	if poll.Deadline != nil {
		deadline := *poll.Deadline
		poll.Deadline = &deadline
	}
	options := make([]entities.PollOption, len(poll.Options))
	for idx, option := range poll.Options {
		option.Votes = append([]entities.PollVote(nil), option.Votes...)
		options[idx] = option
	}
	poll.Options = options
	return poll
}

func pollUserKey(pollID string, userID string) string {
	return pollID + "|" + userID
}

var _ ports.Repository = (*Store)(nil)
var _ ports.Repository = (*tables)(nil)
var _ ports.UnitOfWork = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
