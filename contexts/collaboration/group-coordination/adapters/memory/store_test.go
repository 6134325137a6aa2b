package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"gatherly/contexts/collaboration/group-coordination/domain/entities"
	domainerrors "gatherly/contexts/collaboration/group-coordination/domain/errors"
	"gatherly/contexts/collaboration/group-coordination/ports"
)

func seedPoll(t *testing.T, store *Store) entities.Poll {
	t.Helper()
	now := time.Now().UTC()
	poll := entities.Poll{
		PollID:   "poll_1",
		GroupID:  "group_seed_1",
		AuthorID: "user_alice",
		Question: "Where?",
		Options: []entities.PollOption{
			{OptionID: "opt_b", PollID: "poll_1", Text: "Ridge", Position: 1},
			{OptionID: "opt_a", PollID: "poll_1", Text: "Lake", Position: 0},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.SavePoll(context.Background(), poll); err != nil {
		t.Fatalf("save poll: %v", err)
	}
	return poll
}

func TestWithinTransactionRollsBackOnError(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithinTransaction(ctx, func(ctx context.Context, repo ports.Repository) error {
		if err := repo.AddMembership(ctx, entities.Membership{
			GroupID: "group_seed_1",
			UserID:  "user_carol",
			Role:    entities.RoleMember,
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := store.MembershipCount("group_seed_1"); got != 2 {
		t.Fatalf("expected rollback to keep 2 members, got %d", got)
	}
}

func TestWithinTransactionCommits(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	err := store.WithinTransaction(ctx, func(ctx context.Context, repo ports.Repository) error {
		return repo.AddMembership(ctx, entities.Membership{
			GroupID: "group_seed_1",
			UserID:  "user_carol",
			Role:    entities.RoleMember,
		})
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if got := store.MembershipCount("group_seed_1"); got != 3 {
		t.Fatalf("expected 3 members, got %d", got)
	}
}

func TestGetPollSortsOptionsByPosition(t *testing.T) {
	store := NewStore()
	seedPoll(t, store)

	poll, err := store.GetPoll(context.Background(), "poll_1")
	if err != nil {
		t.Fatalf("get poll: %v", err)
	}
	if poll.Options[0].OptionID != "opt_a" || poll.Options[1].OptionID != "opt_b" {
		t.Fatalf("unexpected option order: %+v", poll.Options)
	}
}

func TestSaveVoteEnforcesUniquePollUser(t *testing.T) {
	store := NewStore()
	seedPoll(t, store)
	ctx := context.Background()

	if err := store.SaveVote(ctx, entities.PollVote{VoteID: "v1", PollID: "poll_1", OptionID: "opt_a", UserID: "user_bob"}); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	err := store.SaveVote(ctx, entities.PollVote{VoteID: "v2", PollID: "poll_1", OptionID: "opt_b", UserID: "user_bob"})
	if !errors.Is(err, domainerrors.ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}
	err = store.SaveVote(ctx, entities.PollVote{VoteID: "v3", PollID: "poll_1", OptionID: "opt_x", UserID: "user_alice"})
	if !errors.Is(err, domainerrors.ErrOptionNotFound) {
		t.Fatalf("expected ErrOptionNotFound, got %v", err)
	}
}

func TestReplacePollClearsVoteIndex(t *testing.T) {
	store := NewStore()
	poll := seedPoll(t, store)
	ctx := context.Background()
	if err := store.SaveVote(ctx, entities.PollVote{VoteID: "v1", PollID: "poll_1", OptionID: "opt_a", UserID: "user_bob"}); err != nil {
		t.Fatalf("vote: %v", err)
	}

	poll.Options = []entities.PollOption{{OptionID: "opt_c", PollID: "poll_1", Text: "Canyon"}}
	if err := store.ReplacePoll(ctx, poll); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := store.SaveVote(ctx, entities.PollVote{VoteID: "v2", PollID: "poll_1", OptionID: "opt_c", UserID: "user_bob"}); err != nil {
		t.Fatalf("vote after replace: %v", err)
	}
}

func TestDeleteGroupCascadesPolls(t *testing.T) {
	store := NewStore()
	seedPoll(t, store)
	ctx := context.Background()

	if err := store.DeleteGroup(ctx, "group_seed_1"); err != nil {
		t.Fatalf("delete group: %v", err)
	}
	if _, err := store.GetPoll(ctx, "poll_1"); !errors.Is(err, domainerrors.ErrPollNotFound) {
		t.Fatalf("expected ErrPollNotFound, got %v", err)
	}
	if _, err := store.GetGroup(ctx, "group_seed_1"); !errors.Is(err, domainerrors.ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestListPublicGroupsPagesByID(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	for _, group := range []entities.Group{
		{GroupID: "group_a", Name: "A", Visibility: entities.VisibilityPublic, CreatedBy: "user_carol"},
		{GroupID: "group_b", Name: "B", Visibility: entities.VisibilityPrivate, CreatedBy: "user_carol"},
		{GroupID: "group_c", Name: "C", Visibility: entities.VisibilityPublic, CreatedBy: "user_carol"},
	} {
		if err := store.CreateGroup(ctx, group); err != nil {
			t.Fatalf("create %s: %v", group.GroupID, err)
		}
	}

	page, err := store.ListPublicGroups(ctx, "", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].GroupID != "group_a" || page[1].GroupID != "group_c" {
		t.Fatalf("unexpected first page: %+v", page)
	}
	page, err = store.ListPublicGroups(ctx, "group_c", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 1 || page[0].GroupID != "group_seed_1" {
		t.Fatalf("unexpected second page: %+v", page)
	}
}

func TestOutboxPendingAndPublished(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()
	for idx, id := range []string{"evt_2", "evt_1"} {
		if err := store.AppendOutbox(ctx, ports.EventEnvelope{
			EventID:       id,
			EventType:     "group.created",
			OccurredAtUTC: now.Add(time.Duration(-idx) * time.Minute),
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	pending, err := store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 || pending[0].OutboxID != "evt_1" {
		t.Fatalf("expected oldest first, got %+v", pending)
	}
	if err := store.MarkOutboxPublished(ctx, "evt_1", now); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if got := store.PendingOutboxCount(); got != 1 {
		t.Fatalf("expected 1 pending, got %d", got)
	}
}

func TestTransactionOutboxRowsLandOnlyOnCommit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	appendIn := func(id string, fail bool) error {
		return store.WithinTransaction(ctx, func(ctx context.Context, repo ports.Repository) error {
			if err := repo.AppendOutbox(ctx, ports.EventEnvelope{EventID: id, EventType: "group.updated"}); err != nil {
				return err
			}
			if fail {
				return errors.New("abort")
			}
			return nil
		})
	}

	if err := appendIn("evt_rolled_back", true); err == nil {
		t.Fatal("expected abort")
	}
	if got := store.PendingOutboxCount(); got != 0 {
		t.Fatalf("rolled back row must not be pending, got %d", got)
	}
	if err := appendIn("evt_committed", false); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := store.PendingOutboxCount(); got != 1 {
		t.Fatalf("expected 1 pending row, got %d", got)
	}
	if len(store.data.staged) != 0 {
		t.Fatalf("committed tables must not keep staged rows, got %d", len(store.data.staged))
	}
}

func TestPublishedOutboxRowsArePruned(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	if err := store.AppendOutbox(ctx, ports.EventEnvelope{EventID: "evt_1", EventType: "group.created"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.MarkOutboxPublished(ctx, "evt_1", time.Now()); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if got := store.PendingOutboxCount(); got != 0 {
		t.Fatalf("expected no pending rows, got %d", got)
	}
	if err := store.MarkOutboxPublished(ctx, "evt_1", time.Now()); err == nil {
		t.Fatal("published row should be gone")
	}
}

func TestFailedOutboxRowsLeavePending(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	for _, id := range []string{"evt_bad", "evt_good"} {
		if err := store.AppendOutbox(ctx, ports.EventEnvelope{EventID: id, EventType: "group.created"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := store.MarkOutboxFailed(ctx, "evt_bad", "decode", time.Now()); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	pending, err := store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].OutboxID != "evt_good" || store.FailedOutboxCount() != 1 {
		t.Fatalf("unexpected outbox state: pending=%+v failed=%d", pending, store.FailedOutboxCount())
	}
}

func TestSaveUserUpsertsDirectoryEntry(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	if err := store.SaveUser(ctx, entities.User{UserID: "user_zed", Username: "zed"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveUser(ctx, entities.User{UserID: "user_zed", Username: "zed2"}); err != nil {
		t.Fatalf("save again: %v", err)
	}
	user, err := store.GetUser(ctx, "user_zed")
	if err != nil || user.Username != "zed2" {
		t.Fatalf("expected renamed user, got %+v err=%v", user, err)
	}
}
