package httpadapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	application "gatherly/contexts/collaboration/group-coordination/application"
	"gatherly/contexts/collaboration/group-coordination/application/commands"
	"gatherly/contexts/collaboration/group-coordination/application/queries"
	"gatherly/contexts/collaboration/group-coordination/domain/entities"
	domainerrors "gatherly/contexts/collaboration/group-coordination/domain/errors"
	"gatherly/contexts/collaboration/group-coordination/ports"
	httptransport "gatherly/contexts/collaboration/group-coordination/transport/http"
)

type Handler struct {
	Users      commands.UserUseCase
	Groups     commands.GroupUseCase
	Polls      commands.PollUseCase
	GroupReads queries.GroupQueries
	PollReads  queries.PollQueries
	Clock      ports.Clock
	Logger     *slog.Logger
}

// SaveProfileHandler godoc
// @Summary Save the caller's profile
// @Description Creates or renames the caller's entry in the user directory.
// @Tags users
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Caller user id"
// @Param request body httptransport.SaveProfileRequest true "Profile"
// @Success 200 {object} httptransport.UserResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Router /api/users/me [put]
func (h Handler) SaveProfileHandler(
	ctx context.Context,
	userID string,
	req httptransport.SaveProfileRequest,
) (httptransport.UserResponse, error) {
	user, err := h.Users.SaveProfile(ctx, commands.SaveProfileCommand{
		UserID:   userID,
		Username: req.Username,
	})
	if err != nil {
		return httptransport.UserResponse{}, err
	}
	return httptransport.UserResponse{UserID: user.UserID, Username: user.Username}, nil
}

// ListGroupsHandler godoc
// @Summary List public groups
// @Description Returns every public group ordered by id.
// @Tags groups
// @Produce json
// @Success 200 {object} httptransport.ListGroupsResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /api/groups [get]
func (h Handler) ListGroupsHandler(ctx context.Context) (httptransport.ListGroupsResponse, error) {
	items := make([]httptransport.GroupResponse, 0)
	for group, err := range h.GroupReads.ListPublicGroups(ctx) {
		if err != nil {
			return httptransport.ListGroupsResponse{}, err
		}
		items = append(items, mapGroup(group))
	}
	return httptransport.ListGroupsResponse{Items: items}, nil
}

// CreateGroupHandler godoc
// @Summary Create a group
// @Description Creates a group; the caller becomes its first admin.
// @Tags groups
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Caller user id"
// @Param request body httptransport.CreateGroupRequest true "Group"
// @Success 201 {object} httptransport.GroupResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /api/groups [post]
func (h Handler) CreateGroupHandler(
	ctx context.Context,
	userID string,
	req httptransport.CreateGroupRequest,
) (httptransport.GroupResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Info("create group request received",
		"event", "http_group_create_received",
		"module", application.Module,
		"layer", "transport",
		"user_id", userID,
	)
	group, err := h.Groups.CreateGroup(ctx, commands.CreateGroupCommand{
		ActorID:     userID,
		Name:        req.Name,
		Description: req.Description,
		Visibility:  entities.Visibility(req.Visibility),
	})
	if err != nil {
		return httptransport.GroupResponse{}, err
	}
	return mapGroup(group), nil
}

// GetGroupHandler godoc
// @Summary Get a group
// @Tags groups
// @Produce json
// @Param group_id path string true "Group id"
// @Success 200 {object} httptransport.GroupResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /api/groups/{group_id} [get]
func (h Handler) GetGroupHandler(ctx context.Context, groupID string) (httptransport.GroupResponse, error) {
	group, err := h.GroupReads.GetGroup(ctx, groupID)
	if err != nil {
		return httptransport.GroupResponse{}, err
	}
	return mapGroup(group), nil
}

// UpdateGroupHandler godoc
// @Summary Update a group
// @Description Admin only. Replaces name, description and visibility.
// @Tags groups
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Caller user id"
// @Param group_id path string true "Group id"
// @Param request body httptransport.UpdateGroupRequest true "Group"
// @Success 200 {object} httptransport.GroupResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /api/groups/{group_id} [put]
func (h Handler) UpdateGroupHandler(
	ctx context.Context,
	userID string,
	groupID string,
	req httptransport.UpdateGroupRequest,
) (httptransport.GroupResponse, error) {
	group, err := h.Groups.UpdateGroup(ctx, commands.UpdateGroupCommand{
		GroupID:     groupID,
		ActorID:     userID,
		Name:        req.Name,
		Description: req.Description,
		Visibility:  entities.Visibility(req.Visibility),
	})
	if err != nil {
		return httptransport.GroupResponse{}, err
	}
	return mapGroup(group), nil
}

// DeleteGroupHandler godoc
// @Summary Delete a group
// @Description Admin only. Removes memberships, polls, options and votes.
// @Tags groups
// @Param X-User-Id header string true "Caller user id"
// @Param group_id path string true "Group id"
// @Success 204
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /api/groups/{group_id} [delete]
func (h Handler) DeleteGroupHandler(ctx context.Context, userID string, groupID string) error {
	return h.Groups.DeleteGroup(ctx, groupID, userID)
}

// ListMembersHandler godoc
// @Summary List group members
// @Tags groups
// @Produce json
// @Param group_id path string true "Group id"
// @Success 200 {object} httptransport.ListMembersResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /api/groups/{group_id}/members [get]
func (h Handler) ListMembersHandler(ctx context.Context, groupID string) (httptransport.ListMembersResponse, error) {
	members, err := h.GroupReads.ListMembers(ctx, groupID)
	if err != nil {
		return httptransport.ListMembersResponse{}, err
	}
	items := make([]httptransport.MemberResponse, 0, len(members))
	for _, member := range members {
		items = append(items, httptransport.MemberResponse{
			UserID:   member.User.UserID,
			Username: member.User.Username,
			Role:     string(member.Role),
			JoinedAt: formatTime(member.JoinedAt),
		})
	}
	return httptransport.ListMembersResponse{GroupID: groupID, Items: items}, nil
}

// JoinGroupHandler godoc
// @Summary Join a group
// @Tags groups
// @Produce json
// @Param X-User-Id header string true "Caller user id"
// @Param group_id path string true "Group id"
// @Success 201 {object} httptransport.MembershipResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Router /api/groups/{group_id}/join [post]
func (h Handler) JoinGroupHandler(ctx context.Context, userID string, groupID string) (httptransport.MembershipResponse, error) {
	membership, err := h.Groups.Join(ctx, groupID, userID)
	if err != nil {
		return httptransport.MembershipResponse{}, err
	}
	return mapMembership(membership), nil
}

// LeaveGroupHandler godoc
// @Summary Leave a group
// @Description The last admin cannot leave while other members remain.
// @Tags groups
// @Param X-User-Id header string true "Caller user id"
// @Param group_id path string true "Group id"
// @Success 204
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /api/groups/{group_id}/leave [delete]
func (h Handler) LeaveGroupHandler(ctx context.Context, userID string, groupID string) error {
	return h.Groups.Leave(ctx, groupID, userID)
}

// RemoveMemberHandler godoc
// @Summary Remove a member
// @Description Admin only. The last admin cannot be removed while other members remain.
// @Tags groups
// @Param X-User-Id header string true "Caller user id"
// @Param group_id path string true "Group id"
// @Param user_id path string true "Member user id"
// @Success 204
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /api/groups/{group_id}/members/{user_id} [delete]
func (h Handler) RemoveMemberHandler(ctx context.Context, userID string, groupID string, targetUserID string) error {
	return h.Groups.RemoveMember(ctx, commands.RemoveMemberCommand{
		GroupID:      groupID,
		ActorID:      userID,
		TargetUserID: targetUserID,
	})
}

// ChangeMemberRoleHandler godoc
// @Summary Change a member role
// @Description Admin only. Demoting the last admin is rejected while other members remain.
// @Tags groups
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Caller user id"
// @Param group_id path string true "Group id"
// @Param user_id path string true "Member user id"
// @Param request body httptransport.ChangeRoleRequest true "Role"
// @Success 200 {object} httptransport.MembershipResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Router /api/groups/{group_id}/members/{user_id}/role [put]
func (h Handler) ChangeMemberRoleHandler(
	ctx context.Context,
	userID string,
	groupID string,
	targetUserID string,
	req httptransport.ChangeRoleRequest,
) (httptransport.MembershipResponse, error) {
	membership, err := h.Groups.ChangeMemberRole(ctx, commands.ChangeMemberRoleCommand{
		GroupID:      groupID,
		ActorID:      userID,
		TargetUserID: targetUserID,
		Role:         entities.Role(strings.ToLower(strings.TrimSpace(req.Role))),
	})
	if err != nil {
		return httptransport.MembershipResponse{}, err
	}
	return mapMembership(membership), nil
}

// ListPollsHandler godoc
// @Summary List polls of a group
// @Description Members only. Each poll carries its current results.
// @Tags polls
// @Produce json
// @Param X-User-Id header string true "Caller user id"
// @Param group_id path string true "Group id"
// @Success 200 {object} httptransport.ListPollsResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /api/groups/{group_id}/polls [get]
func (h Handler) ListPollsHandler(ctx context.Context, userID string, groupID string) (httptransport.ListPollsResponse, error) {
	polls, err := h.PollReads.ListPolls(ctx, groupID, userID)
	if err != nil {
		return httptransport.ListPollsResponse{}, err
	}
	items := make([]httptransport.PollResponse, 0, len(polls))
	for _, poll := range polls {
		item, err := h.mapPoll(ctx, poll)
		if err != nil {
			return httptransport.ListPollsResponse{}, err
		}
		items = append(items, item)
	}
	return httptransport.ListPollsResponse{GroupID: groupID, Items: items}, nil
}

// CreatePollHandler godoc
// @Summary Create a poll
// @Description Members only. Options keep the given order.
// @Tags polls
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Caller user id"
// @Param group_id path string true "Group id"
// @Param request body httptransport.CreatePollRequest true "Poll"
// @Success 201 {object} httptransport.PollResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /api/groups/{group_id}/polls [post]
func (h Handler) CreatePollHandler(
	ctx context.Context,
	userID string,
	groupID string,
	req httptransport.CreatePollRequest,
) (httptransport.PollResponse, error) {
	deadline, err := parseDeadline(req.Deadline)
	if err != nil {
		return httptransport.PollResponse{}, err
	}
	poll, err := h.Polls.CreatePoll(ctx, commands.CreatePollCommand{
		GroupID:  groupID,
		AuthorID: userID,
		Spec: commands.PollSpec{
			Question:  req.Question,
			Options:   req.Options,
			Anonymous: req.Anonymous,
			Deadline:  deadline,
		},
	})
	if err != nil {
		return httptransport.PollResponse{}, err
	}
	return h.mapPoll(ctx, poll)
}

// GetPollHandler godoc
// @Summary Get a poll
// @Tags polls
// @Produce json
// @Param X-User-Id header string true "Caller user id"
// @Param group_id path string true "Group id"
// @Param poll_id path string true "Poll id"
// @Success 200 {object} httptransport.PollResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Router /api/groups/{group_id}/polls/{poll_id} [get]
func (h Handler) GetPollHandler(ctx context.Context, userID string, groupID string, pollID string) (httptransport.PollResponse, error) {
	poll, err := h.PollReads.GetPoll(ctx, groupID, pollID, userID)
	if err != nil {
		return httptransport.PollResponse{}, err
	}
	return h.mapPoll(ctx, poll)
}

// UpdatePollHandler godoc
// @Summary Replace a poll
// @Description Author only. Options are replaced and existing votes are discarded.
// @Tags polls
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Caller user id"
// @Param group_id path string true "Group id"
// @Param poll_id path string true "Poll id"
// @Param request body httptransport.UpdatePollRequest true "Poll"
// @Success 200 {object} httptransport.PollResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /api/groups/{group_id}/polls/{poll_id} [put]
func (h Handler) UpdatePollHandler(
	ctx context.Context,
	userID string,
	groupID string,
	pollID string,
	req httptransport.UpdatePollRequest,
) (httptransport.PollResponse, error) {
	deadline, err := parseDeadline(req.Deadline)
	if err != nil {
		return httptransport.PollResponse{}, err
	}
	poll, err := h.Polls.UpdatePoll(ctx, commands.UpdatePollCommand{
		GroupID: groupID,
		PollID:  pollID,
		ActorID: userID,
		Spec: commands.PollSpec{
			Question:  req.Question,
			Options:   req.Options,
			Anonymous: req.Anonymous,
			Deadline:  deadline,
		},
	})
	if err != nil {
		return httptransport.PollResponse{}, err
	}
	return h.mapPoll(ctx, poll)
}

// DeletePollHandler godoc
// @Summary Delete a poll
// @Description Author only.
// @Tags polls
// @Param X-User-Id header string true "Caller user id"
// @Param group_id path string true "Group id"
// @Param poll_id path string true "Poll id"
// @Success 204
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /api/groups/{group_id}/polls/{poll_id} [delete]
func (h Handler) DeletePollHandler(ctx context.Context, userID string, groupID string, pollID string) error {
	return h.Polls.DeletePoll(ctx, groupID, pollID, userID)
}

// VoteHandler godoc
// @Summary Vote in a poll
// @Description Members only, one vote per poll.
// @Tags polls
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Caller user id"
// @Param group_id path string true "Group id"
// @Param poll_id path string true "Poll id"
// @Param request body httptransport.VoteRequest true "Vote"
// @Success 200 {object} httptransport.PollResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Failure 503 {object} httptransport.ErrorResponse
// @Router /api/groups/{group_id}/polls/{poll_id}/vote [post]
func (h Handler) VoteHandler(
	ctx context.Context,
	userID string,
	groupID string,
	pollID string,
	req httptransport.VoteRequest,
) (httptransport.PollResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Info("vote request received",
		"event", "http_poll_vote_received",
		"module", application.Module,
		"layer", "transport",
		"group_id", groupID,
		"poll_id", pollID,
		"user_id", userID,
	)
	poll, err := h.Polls.Vote(ctx, commands.VoteCommand{
		GroupID:  groupID,
		PollID:   pollID,
		OptionID: strings.TrimSpace(req.OptionID),
		UserID:   userID,
	})
	if err != nil {
		return httptransport.PollResponse{}, err
	}
	return h.mapPoll(ctx, poll)
}

// PollResultHandler godoc
// @Summary Poll results
// @Description Vote counts per option; voter names only for non-anonymous polls.
// @Tags polls
// @Produce json
// @Param X-User-Id header string true "Caller user id"
// @Param group_id path string true "Group id"
// @Param poll_id path string true "Poll id"
// @Success 200 {object} httptransport.PollResultResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /api/groups/{group_id}/polls/{poll_id}/results [get]
func (h Handler) PollResultHandler(ctx context.Context, userID string, groupID string, pollID string) (httptransport.PollResultResponse, error) {
	result, err := h.PollReads.GetPollResult(ctx, groupID, pollID, userID)
	if err != nil {
		return httptransport.PollResultResponse{}, err
	}
	return httptransport.PollResultResponse{
		PollID:    result.PollID,
		GroupID:   result.GroupID,
		Question:  result.Question,
		Anonymous: result.Anonymous,
		Options:   mapOptionResults(result.Options),
	}, nil
}

func (h Handler) mapPoll(ctx context.Context, poll entities.Poll) (httptransport.PollResponse, error) {
	result, err := h.PollReads.BuildResult(ctx, poll)
	if err != nil {
		return httptransport.PollResponse{}, err
	}
	now := time.Now().UTC()
	if h.Clock != nil {
		now = h.Clock.Now()
	}
	resp := httptransport.PollResponse{
		PollID:     poll.PollID,
		GroupID:    poll.GroupID,
		AuthorID:   poll.AuthorID,
		Question:   poll.Question,
		Anonymous:  poll.Anonymous,
		Closed:     poll.ClosedAt(now),
		TotalVotes: poll.TotalVotes(),
		Options:    mapOptionResults(result.Options),
		CreatedAt:  formatTime(poll.CreatedAt),
		UpdatedAt:  formatTime(poll.UpdatedAt),
	}
	if poll.Deadline != nil {
		resp.Deadline = formatTime(*poll.Deadline)
	}
	return resp, nil
}

func mapOptionResults(options []entities.OptionResult) []httptransport.OptionResultResponse {
	items := make([]httptransport.OptionResultResponse, 0, len(options))
	for _, option := range options {
		items = append(items, httptransport.OptionResultResponse{
			OptionID:  option.OptionID,
			Text:      option.Text,
			VoteCount: option.VoteCount,
			Voters:    append([]string{}, option.Voters...),
		})
	}
	return items
}

func mapGroup(group entities.Group) httptransport.GroupResponse {
	return httptransport.GroupResponse{
		GroupID:     group.GroupID,
		Name:        group.Name,
		Description: group.Description,
		Visibility:  string(group.Visibility),
		CreatedBy:   group.CreatedBy,
		MemberCount: len(group.Memberships),
		AdminCount:  group.AdminCount(),
		CreatedAt:   formatTime(group.CreatedAt),
		UpdatedAt:   formatTime(group.UpdatedAt),
	}
}

func mapMembership(membership entities.Membership) httptransport.MembershipResponse {
	return httptransport.MembershipResponse{
		GroupID:  membership.GroupID,
		UserID:   membership.UserID,
		Role:     string(membership.Role),
		JoinedAt: formatTime(membership.JoinedAt),
	}
}

func parseDeadline(raw string) (*time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("%w: deadline must be RFC3339", domainerrors.ErrInvalidRequest)
	}
	parsed = parsed.UTC()
	return &parsed, nil
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339)
}
