package services

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"gatherly/contexts/collaboration/group-coordination/domain/entities"
	domainerrors "gatherly/contexts/collaboration/group-coordination/domain/errors"
)

func groupWith(memberships ...entities.Membership) entities.Group {
	return entities.Group{GroupID: "group_1", Memberships: memberships}
}

func TestEnsureAdminRemainsRejectsLastAdminWithMembers(t *testing.T) {
	group := groupWith(
		entities.Membership{GroupID: "group_1", UserID: "alice", Role: entities.RoleAdmin},
		entities.Membership{GroupID: "group_1", UserID: "bob", Role: entities.RoleMember},
	)
	err := EnsureAdminRemains(group, "alice", nil)
	if !errors.Is(err, domainerrors.ErrLastAdmin) {
		t.Fatalf("expected last admin violation, got %v", err)
	}
	demoted := entities.RoleMember
	if err := EnsureAdminRemains(group, "alice", &demoted); !errors.Is(err, domainerrors.ErrLastAdmin) {
		t.Fatalf("expected last admin violation on demotion, got %v", err)
	}
}

func TestEnsureAdminRemainsAllowsEmptyingGroup(t *testing.T) {
	group := groupWith(entities.Membership{GroupID: "group_1", UserID: "alice", Role: entities.RoleAdmin})
	if err := EnsureAdminRemains(group, "alice", nil); err != nil {
		t.Fatalf("expected sole member removal to pass, got %v", err)
	}
}

func TestEnsureAdminRemainsAllowsWhenAnotherAdminStays(t *testing.T) {
	group := groupWith(
		entities.Membership{GroupID: "group_1", UserID: "alice", Role: entities.RoleAdmin},
		entities.Membership{GroupID: "group_1", UserID: "carol", Role: entities.RoleAdmin},
		entities.Membership{GroupID: "group_1", UserID: "bob", Role: entities.RoleMember},
	)
	if err := EnsureAdminRemains(group, "alice", nil); err != nil {
		t.Fatalf("expected removal to pass, got %v", err)
	}
	if err := EnsureAdminRemains(group, "bob", nil); err != nil {
		t.Fatalf("expected member removal to pass, got %v", err)
	}
}

func TestRequireAdminDeniesMemberAndOutsider(t *testing.T) {
	group := groupWith(
		entities.Membership{GroupID: "group_1", UserID: "alice", Role: entities.RoleAdmin},
		entities.Membership{GroupID: "group_1", UserID: "bob", Role: entities.RoleMember},
	)
	if _, err := RequireAdmin(group, "bob"); !errors.Is(err, domainerrors.ErrAdminAccessDenied) {
		t.Fatalf("expected admin access denied for member, got %v", err)
	}
	if _, err := RequireAdmin(group, "mallory"); !errors.Is(err, domainerrors.ErrAdminAccessDenied) {
		t.Fatalf("expected admin access denied for outsider, got %v", err)
	}
	if _, err := RequireMembership(group, "mallory"); !errors.Is(err, domainerrors.ErrNotMember) {
		t.Fatalf("expected not member, got %v", err)
	}
	if _, err := RequireAdmin(group, "alice"); err != nil {
		t.Fatalf("expected admin to pass, got %v", err)
	}
}

func votingPoll(anonymous bool) entities.Poll {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return entities.Poll{
		PollID:    "poll_1",
		GroupID:   "group_1",
		AuthorID:  "alice",
		Question:  "When?",
		Anonymous: anonymous,
		Options: []entities.PollOption{
			{OptionID: "opt_tue", PollID: "poll_1", Text: "Tue", Position: 1},
			{OptionID: "opt_mon", PollID: "poll_1", Text: "Mon", Position: 0, Votes: []entities.PollVote{
				{VoteID: "v2", PollID: "poll_1", OptionID: "opt_mon", UserID: "carol", CreatedAt: base.Add(time.Minute)},
				{VoteID: "v1", PollID: "poll_1", OptionID: "opt_mon", UserID: "bob", CreatedAt: base},
			}},
		},
	}
}

func TestBuildResultOrdersOptionsAndVoters(t *testing.T) {
	result := BuildResult(votingPoll(false), map[string]string{"bob": "Bob"})
	if len(result.Options) != 2 || result.Options[0].Text != "Mon" || result.Options[1].Text != "Tue" {
		t.Fatalf("unexpected option order: %+v", result.Options)
	}
	if result.Options[0].VoteCount != 2 || !reflect.DeepEqual(result.Options[0].Voters, []string{"Bob", "carol"}) {
		t.Fatalf("unexpected voters: %+v", result.Options[0])
	}
	if result.Options[1].VoteCount != 0 || len(result.Options[1].Voters) != 0 {
		t.Fatalf("expected empty Tue, got %+v", result.Options[1])
	}
}

func TestBuildResultHidesVotersWhenAnonymous(t *testing.T) {
	poll := votingPoll(true)
	first := BuildResult(poll, map[string]string{"bob": "Bob"})
	second := BuildResult(poll, map[string]string{"bob": "Bob"})
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical projections, got %+v vs %+v", first, second)
	}
	for _, option := range first.Options {
		if len(option.Voters) != 0 {
			t.Fatalf("expected hidden voters, got %+v", option)
		}
	}
	if first.Options[0].VoteCount != 2 {
		t.Fatalf("expected vote count to stay visible, got %d", first.Options[0].VoteCount)
	}
	if poll.Options[0].Text != "Tue" || poll.Options[1].Votes[0].VoteID != "v2" {
		t.Fatal("expected input poll to stay untouched")
	}
}
