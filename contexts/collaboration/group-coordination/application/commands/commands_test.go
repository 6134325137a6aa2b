package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gatherly/contexts/collaboration/group-coordination/adapters/memory"
	"gatherly/contexts/collaboration/group-coordination/domain/entities"
	domainerrors "gatherly/contexts/collaboration/group-coordination/domain/errors"
	"gatherly/contexts/collaboration/group-coordination/domain/services"
	"gatherly/contexts/collaboration/group-coordination/ports"
)

func newUseCases() (GroupUseCase, PollUseCase, *memory.Store) {
	store := memory.NewStore()
	groups := GroupUseCase{UnitOfWork: store, Clock: store, IDGen: store, Logger: slog.Default()}
	polls := PollUseCase{UnitOfWork: store, Clock: store, IDGen: store, Logger: slog.Default()}
	return groups, polls, store
}

func createPoll(t *testing.T, polls PollUseCase, spec PollSpec) entities.Poll {
	t.Helper()
	poll, err := polls.CreatePoll(context.Background(), CreatePollCommand{
		GroupID:  "group_seed_1",
		AuthorID: "user_alice",
		Spec:     spec,
	})
	if err != nil {
		t.Fatalf("create poll: %v", err)
	}
	return poll
}

func TestCreateGroupAppendsEventAndAdmin(t *testing.T) {
	groups, _, store := newUseCases()
	group, err := groups.CreateGroup(context.Background(), CreateGroupCommand{
		ActorID: "user_carol",
		Name:    "  Book Club  ",
	})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if group.Name != "Book Club" || group.Visibility != entities.VisibilityPublic {
		t.Fatalf("unexpected group: %+v", group)
	}
	membership, ok := group.MembershipOf("user_carol")
	if !ok || !membership.IsAdmin() {
		t.Fatalf("creator should be admin, got %+v", group.Memberships)
	}
	if got := store.PendingOutboxCount(); got != 1 {
		t.Fatalf("expected one outbox row, got %d", got)
	}
}

func TestCreateGroupRejectsInvalidInput(t *testing.T) {
	groups, _, store := newUseCases()
	cases := []CreateGroupCommand{
		{ActorID: "user_carol", Name: " "},
		{ActorID: "user_carol", Name: "Club", Visibility: "secret"},
	}
	for _, cmd := range cases {
		if _, err := groups.CreateGroup(context.Background(), cmd); !errors.Is(err, domainerrors.ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for %+v, got %v", cmd, err)
		}
	}
	if got := store.PendingOutboxCount(); got != 0 {
		t.Fatalf("rejected commands must not emit events, got %d", got)
	}
}

func TestCreateGroupUnknownUser(t *testing.T) {
	groups, _, _ := newUseCases()
	_, err := groups.CreateGroup(context.Background(), CreateGroupCommand{ActorID: "user_ghost", Name: "Ghosts"})
	if !errors.Is(err, domainerrors.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestJoinRejectsDuplicateAndUnknownGroup(t *testing.T) {
	groups, _, _ := newUseCases()
	ctx := context.Background()
	if _, err := groups.Join(ctx, "group_seed_1", "user_bob"); !errors.Is(err, domainerrors.ErrAlreadyMember) {
		t.Fatalf("expected ErrAlreadyMember, got %v", err)
	}
	if _, err := groups.Join(ctx, "group_missing", "user_carol"); !errors.Is(err, domainerrors.ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestLeaveSoleMemberAdminSucceeds(t *testing.T) {
	groups, _, store := newUseCases()
	ctx := context.Background()
	group, err := groups.CreateGroup(ctx, CreateGroupCommand{ActorID: "user_carol", Name: "Solo"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := groups.Leave(ctx, group.GroupID, "user_carol"); err != nil {
		t.Fatalf("sole admin should be able to leave: %v", err)
	}
	if got := store.MembershipCount(group.GroupID); got != 0 {
		t.Fatalf("expected empty group, got %d members", got)
	}
}

func TestLastAdminRules(t *testing.T) {
	groups, _, _ := newUseCases()
	ctx := context.Background()

	if err := groups.Leave(ctx, "group_seed_1", "user_alice"); !errors.Is(err, domainerrors.ErrLastAdmin) {
		t.Fatalf("expected ErrLastAdmin on leave, got %v", err)
	}
	_, err := groups.ChangeMemberRole(ctx, ChangeMemberRoleCommand{
		GroupID:      "group_seed_1",
		ActorID:      "user_alice",
		TargetUserID: "user_alice",
		Role:         entities.RoleMember,
	})
	if !errors.Is(err, domainerrors.ErrLastAdmin) {
		t.Fatalf("expected ErrLastAdmin on demotion, got %v", err)
	}
	err = groups.RemoveMember(ctx, RemoveMemberCommand{
		GroupID:      "group_seed_1",
		ActorID:      "user_alice",
		TargetUserID: "user_alice",
	})
	if !errors.Is(err, domainerrors.ErrLastAdmin) {
		t.Fatalf("expected ErrLastAdmin on self removal, got %v", err)
	}
}

func TestRemoveMemberRequiresAdmin(t *testing.T) {
	groups, _, _ := newUseCases()
	err := groups.RemoveMember(context.Background(), RemoveMemberCommand{
		GroupID:      "group_seed_1",
		ActorID:      "user_bob",
		TargetUserID: "user_alice",
	})
	if !errors.Is(err, domainerrors.ErrAdminAccessDenied) {
		t.Fatalf("expected ErrAdminAccessDenied, got %v", err)
	}
}

func TestRemoveMemberTargetMustBeMember(t *testing.T) {
	groups, _, _ := newUseCases()
	err := groups.RemoveMember(context.Background(), RemoveMemberCommand{
		GroupID:      "group_seed_1",
		ActorID:      "user_alice",
		TargetUserID: "user_dave",
	})
	if !errors.Is(err, domainerrors.ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
}

func TestChangeMemberRoleSameRoleIsNoop(t *testing.T) {
	groups, _, store := newUseCases()
	before := store.PendingOutboxCount()
	membership, err := groups.ChangeMemberRole(context.Background(), ChangeMemberRoleCommand{
		GroupID:      "group_seed_1",
		ActorID:      "user_alice",
		TargetUserID: "user_bob",
		Role:         entities.RoleMember,
	})
	if err != nil {
		t.Fatalf("change role: %v", err)
	}
	if membership.Role != entities.RoleMember {
		t.Fatalf("unexpected role %q", membership.Role)
	}
	if store.PendingOutboxCount() != before {
		t.Fatalf("no-op role change must not emit an event")
	}
}

func TestCreatePollRequiresMembership(t *testing.T) {
	_, polls, _ := newUseCases()
	_, err := polls.CreatePoll(context.Background(), CreatePollCommand{
		GroupID:  "group_seed_1",
		AuthorID: "user_carol",
		Spec:     PollSpec{Question: "Where?", Options: []string{"Lake"}},
	})
	if !errors.Is(err, domainerrors.ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
}

func TestCreatePollAssignsPositions(t *testing.T) {
	_, polls, _ := newUseCases()
	poll := createPoll(t, polls, PollSpec{Question: " Where? ", Options: []string{" Lake ", "Ridge"}})
	if poll.Question != "Where?" {
		t.Fatalf("expected trimmed question, got %q", poll.Question)
	}
	for idx, option := range poll.Options {
		if option.Position != idx || option.PollID != poll.PollID {
			t.Fatalf("unexpected option %d: %+v", idx, option)
		}
	}
	if poll.Options[0].Text != "Lake" {
		t.Fatalf("expected trimmed option, got %q", poll.Options[0].Text)
	}
}

func TestVoteChecks(t *testing.T) {
	_, polls, _ := newUseCases()
	ctx := context.Background()
	poll := createPoll(t, polls, PollSpec{Question: "Where?", Options: []string{"Lake", "Ridge"}})

	_, err := polls.Vote(ctx, VoteCommand{GroupID: "group_seed_1", PollID: poll.PollID, OptionID: poll.Options[0].OptionID, UserID: "user_carol"})
	if !errors.Is(err, domainerrors.ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
	_, err = polls.Vote(ctx, VoteCommand{GroupID: "group_seed_1", PollID: poll.PollID, OptionID: "opt_missing", UserID: "user_bob"})
	if !errors.Is(err, domainerrors.ErrOptionNotFound) {
		t.Fatalf("expected ErrOptionNotFound, got %v", err)
	}
	_, err = polls.Vote(ctx, VoteCommand{GroupID: "group_seed_1", PollID: "poll_missing", OptionID: "x", UserID: "user_bob"})
	if !errors.Is(err, domainerrors.ErrPollNotFound) {
		t.Fatalf("expected ErrPollNotFound, got %v", err)
	}

	updated, err := polls.Vote(ctx, VoteCommand{GroupID: "group_seed_1", PollID: poll.PollID, OptionID: poll.Options[1].OptionID, UserID: "user_bob"})
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if !updated.HasVoted("user_bob") || updated.TotalVotes() != 1 {
		t.Fatalf("vote not recorded: %+v", updated)
	}
	_, err = polls.Vote(ctx, VoteCommand{GroupID: "group_seed_1", PollID: poll.PollID, OptionID: poll.Options[0].OptionID, UserID: "user_bob"})
	if !errors.Is(err, domainerrors.ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}
}

func TestVoteRejectsPollFromOtherGroup(t *testing.T) {
	groups, polls, _ := newUseCases()
	ctx := context.Background()
	poll := createPoll(t, polls, PollSpec{Question: "Where?", Options: []string{"Lake"}})
	other, err := groups.CreateGroup(ctx, CreateGroupCommand{ActorID: "user_bob", Name: "Other"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	_, err = polls.Vote(ctx, VoteCommand{GroupID: other.GroupID, PollID: poll.PollID, OptionID: poll.Options[0].OptionID, UserID: "user_bob"})
	if !errors.Is(err, domainerrors.ErrPollGroupMismatch) {
		t.Fatalf("expected ErrPollGroupMismatch, got %v", err)
	}
}

func TestVoteAfterDeadline(t *testing.T) {
	_, polls, store := newUseCases()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return base })
	deadline := base.Add(time.Hour)
	poll := createPoll(t, polls, PollSpec{Question: "Where?", Options: []string{"Lake"}, Deadline: &deadline})

	store.SetClock(func() time.Time { return deadline })
	_, err := polls.Vote(context.Background(), VoteCommand{GroupID: "group_seed_1", PollID: poll.PollID, OptionID: poll.Options[0].OptionID, UserID: "user_bob"})
	if !errors.Is(err, domainerrors.ErrPollClosed) {
		t.Fatalf("expected ErrPollClosed at the deadline, got %v", err)
	}
}

func TestAnonymousVoteEventOmitsVoter(t *testing.T) {
	_, polls, store := newUseCases()
	ctx := context.Background()
	poll := createPoll(t, polls, PollSpec{Question: "Rate", Options: []string{"Good"}, Anonymous: true})
	if _, err := polls.Vote(ctx, VoteCommand{GroupID: "group_seed_1", PollID: poll.PollID, OptionID: poll.Options[0].OptionID, UserID: "user_bob"}); err != nil {
		t.Fatalf("vote: %v", err)
	}

	pending, err := store.ListPendingOutbox(ctx, 100)
	if err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	found := false
	for _, row := range pending {
		if row.EventType != EventVoteCast {
			continue
		}
		found = true
		var envelope ports.EventEnvelope
		if err := json.Unmarshal(row.Payload, &envelope); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if envelope.ActorID != "" {
			t.Fatalf("anonymous vote leaked actor %q", envelope.ActorID)
		}
		var data map[string]any
		if err := json.Unmarshal(envelope.Payload, &data); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if _, ok := data["user_id"]; ok {
			t.Fatalf("anonymous vote payload carries user_id: %v", data)
		}
	}
	if !found {
		t.Fatalf("expected a %s event", EventVoteCast)
	}
}

func TestUpdatePollDiscardsVotes(t *testing.T) {
	_, polls, _ := newUseCases()
	ctx := context.Background()
	poll := createPoll(t, polls, PollSpec{Question: "Where?", Options: []string{"Lake"}})
	if _, err := polls.Vote(ctx, VoteCommand{GroupID: "group_seed_1", PollID: poll.PollID, OptionID: poll.Options[0].OptionID, UserID: "user_bob"}); err != nil {
		t.Fatalf("vote: %v", err)
	}

	_, err := polls.UpdatePoll(ctx, UpdatePollCommand{
		GroupID: "group_seed_1",
		PollID:  poll.PollID,
		ActorID: "user_bob",
		Spec:    PollSpec{Question: "Which?", Options: []string{"A"}},
	})
	if !errors.Is(err, domainerrors.ErrNotPollAuthor) {
		t.Fatalf("expected ErrNotPollAuthor, got %v", err)
	}

	replaced, err := polls.UpdatePoll(ctx, UpdatePollCommand{
		GroupID: "group_seed_1",
		PollID:  poll.PollID,
		ActorID: "user_alice",
		Spec:    PollSpec{Question: "Which?", Options: []string{"A", "B"}},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if replaced.TotalVotes() != 0 || len(replaced.Options) != 2 {
		t.Fatalf("unexpected replaced poll: %+v", replaced)
	}
	if _, err := polls.Vote(ctx, VoteCommand{GroupID: "group_seed_1", PollID: poll.PollID, OptionID: replaced.Options[1].OptionID, UserID: "user_bob"}); err != nil {
		t.Fatalf("vote after replace should succeed: %v", err)
	}
}

func TestDeleteGroupRemovesPolls(t *testing.T) {
	groups, polls, store := newUseCases()
	ctx := context.Background()
	poll := createPoll(t, polls, PollSpec{Question: "Where?", Options: []string{"Lake"}})
	if err := groups.DeleteGroup(ctx, "group_seed_1", "user_alice"); err != nil {
		t.Fatalf("delete group: %v", err)
	}
	if _, err := store.GetPoll(ctx, poll.PollID); !errors.Is(err, domainerrors.ErrPollNotFound) {
		t.Fatalf("expected poll to be removed, got %v", err)
	}
}

func TestConcurrentVotesRecordExactlyOne(t *testing.T) {
	_, polls, store := newUseCases()
	ctx := context.Background()
	poll := createPoll(t, polls, PollSpec{Question: "Where?", Options: []string{"Lake", "Ridge"}})

	const attempts = 32
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		duplicate atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := polls.Vote(ctx, VoteCommand{
				GroupID:  "group_seed_1",
				PollID:   poll.PollID,
				OptionID: poll.Options[i%2].OptionID,
				UserID:   "user_bob",
			})
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, domainerrors.ErrAlreadyVoted):
				duplicate.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if successes.Load() != 1 || duplicate.Load() != attempts-1 {
		t.Fatalf("expected 1 success and %d duplicates, got %d and %d", attempts-1, successes.Load(), duplicate.Load())
	}
	stored, err := store.GetPoll(ctx, poll.PollID)
	if err != nil {
		t.Fatalf("get poll: %v", err)
	}
	if stored.TotalVotes() != 1 {
		t.Fatalf("expected 1 stored vote, got %d", stored.TotalVotes())
	}
}

func TestConcurrentDoubleJoinAddsOneMembership(t *testing.T) {
	groups, _, store := newUseCases()
	ctx := context.Background()
	before := store.MembershipCount("group_seed_1")

	const attempts = 24
	var wg sync.WaitGroup
	var successes, duplicate atomic.Int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := groups.Join(ctx, "group_seed_1", "user_carol")
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, domainerrors.ErrAlreadyMember):
				duplicate.Add(1)
			}
		}()
	}
	wg.Wait()

	if successes.Load() != 1 || duplicate.Load() != attempts-1 {
		t.Fatalf("expected 1 success and %d duplicates, got %d and %d", attempts-1, successes.Load(), duplicate.Load())
	}
	if got := store.MembershipCount("group_seed_1"); got != before+1 {
		t.Fatalf("expected %d members, got %d", before+1, got)
	}
}

func TestConcurrentLeaveKeepsAnAdmin(t *testing.T) {
	groups, _, store := newUseCases()
	ctx := context.Background()
	if _, err := groups.ChangeMemberRole(ctx, ChangeMemberRoleCommand{
		GroupID:      "group_seed_1",
		ActorID:      "user_alice",
		TargetUserID: "user_bob",
		Role:         entities.RoleAdmin,
	}); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if _, err := groups.Join(ctx, "group_seed_1", "user_carol"); err != nil {
		t.Fatalf("join: %v", err)
	}

	// Both admins try to leave at once; one must be refused.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for idx, userID := range []string{"user_alice", "user_bob"} {
		wg.Add(1)
		go func(idx int, userID string) {
			defer wg.Done()
			errs[idx] = groups.Leave(ctx, "group_seed_1", userID)
		}(idx, userID)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			if !errors.Is(err, domainerrors.ErrLastAdmin) {
				t.Fatalf("unexpected error: %v", err)
			}
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("expected exactly one refused leave, got %d", failures)
	}
	group, err := store.GetGroup(ctx, "group_seed_1")
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if group.AdminCount() != 1 {
		t.Fatalf("expected one admin left, got %d", group.AdminCount())
	}
}

func TestConcurrentJoinsAllLand(t *testing.T) {
	groups, _, store := newUseCases()
	ctx := context.Background()
	const joiners = 20
	for i := 0; i < joiners; i++ {
		store.PutUser(entities.User{UserID: fmt.Sprintf("user_%02d", i), Username: fmt.Sprintf("u%02d", i)})
	}

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := groups.Join(ctx, "group_seed_1", fmt.Sprintf("user_%02d", i)); err != nil {
				failures.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if failures.Load() != 0 {
		t.Fatalf("expected all joins to succeed, %d failed", failures.Load())
	}
	if got := store.MembershipCount("group_seed_1"); got != joiners+2 {
		t.Fatalf("expected %d members, got %d", joiners+2, got)
	}
}

func TestMeetingDayScenario(t *testing.T) {
	_, polls, _ := newUseCases()
	ctx := context.Background()
	poll := createPoll(t, polls, PollSpec{Question: "Meeting day?", Options: []string{"Mon", "Tue"}})
	mon, tue := poll.Options[0].OptionID, poll.Options[1].OptionID

	if _, err := polls.Vote(ctx, VoteCommand{GroupID: "group_seed_1", PollID: poll.PollID, OptionID: mon, UserID: "user_alice"}); err != nil {
		t.Fatalf("alice vote: %v", err)
	}
	if _, err := polls.Vote(ctx, VoteCommand{GroupID: "group_seed_1", PollID: poll.PollID, OptionID: tue, UserID: "user_bob"}); err != nil {
		t.Fatalf("bob vote: %v", err)
	}
	_, err := polls.Vote(ctx, VoteCommand{GroupID: "group_seed_1", PollID: poll.PollID, OptionID: tue, UserID: "user_alice"})
	if !errors.Is(err, domainerrors.ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}

	stored, err := polls.UnitOfWork.(*memory.Store).GetPoll(ctx, poll.PollID)
	if err != nil {
		t.Fatalf("get poll: %v", err)
	}
	result := services.BuildResult(stored, map[string]string{"user_alice": "alice", "user_bob": "bob"})
	if result.Options[0].Text != "Mon" || result.Options[0].VoteCount != 1 || result.Options[0].Voters[0] != "alice" {
		t.Fatalf("unexpected Mon result: %+v", result.Options[0])
	}
	if result.Options[1].VoteCount != 1 || result.Options[1].Voters[0] != "bob" {
		t.Fatalf("unexpected Tue result: %+v", result.Options[1])
	}
}

func TestSaveProfileLetsNewUserJoin(t *testing.T) {
	groups, _, store := newUseCases()
	users := UserUseCase{UnitOfWork: store, Clock: store, IDGen: store, Logger: slog.Default()}
	ctx := context.Background()

	if _, err := groups.Join(ctx, "group_seed_1", "user_newcomer"); !errors.Is(err, domainerrors.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound before the profile exists, got %v", err)
	}
	user, err := users.SaveProfile(ctx, SaveProfileCommand{UserID: "user_newcomer", Username: "  newcomer "})
	if err != nil {
		t.Fatalf("save profile: %v", err)
	}
	if user.Username != "newcomer" {
		t.Fatalf("expected trimmed username, got %q", user.Username)
	}
	if _, err := groups.Join(ctx, "group_seed_1", "user_newcomer"); err != nil {
		t.Fatalf("join after profile: %v", err)
	}
	pending, err := store.ListPendingOutbox(ctx, 100)
	if err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	types := map[string]bool{}
	for _, row := range pending {
		types[row.EventType] = true
	}
	if len(pending) != 2 || !types[EventUserProfileSaved] || !types[EventMemberJoined] {
		t.Fatalf("expected profile and join events, got %+v", pending)
	}
}

func TestSaveProfileRequiresUsername(t *testing.T) {
	_, _, store := newUseCases()
	users := UserUseCase{UnitOfWork: store, Clock: store, IDGen: store}
	_, err := users.SaveProfile(context.Background(), SaveProfileCommand{UserID: "user_x", Username: " "})
	if !errors.Is(err, domainerrors.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
