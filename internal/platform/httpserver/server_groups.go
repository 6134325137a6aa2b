package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	groupdomainerrors "gatherly/contexts/collaboration/group-coordination/domain/errors"
	grouphttp "gatherly/contexts/collaboration/group-coordination/transport/http"
)

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireGroupUser(w, r)
	if !ok {
		return
	}
	var req grouphttp.SaveProfileRequest
	if !decodeGroupRequest(w, r, &req) {
		return
	}
	resp, err := s.groups.Handler.SaveProfileHandler(r.Context(), userID, req)
	if err != nil {
		writeGroupDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	resp, err := s.groups.Handler.ListGroupsHandler(r.Context())
	if err != nil {
		writeGroupDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireGroupUser(w, r)
	if !ok {
		return
	}
	var req grouphttp.CreateGroupRequest
	if !decodeGroupRequest(w, r, &req) {
		return
	}
	resp, err := s.groups.Handler.CreateGroupHandler(r.Context(), userID, req)
	if err != nil {
		writeGroupDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	resp, err := s.groups.Handler.GetGroupHandler(r.Context(), r.PathValue("group_id"))
	if err != nil {
		writeGroupDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireGroupUser(w, r)
	if !ok {
		return
	}
	var req grouphttp.UpdateGroupRequest
	if !decodeGroupRequest(w, r, &req) {
		return
	}
	resp, err := s.groups.Handler.UpdateGroupHandler(r.Context(), userID, r.PathValue("group_id"), req)
	if err != nil {
		writeGroupDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireGroupUser(w, r)
	if !ok {
		return
	}
	if err := s.groups.Handler.DeleteGroupHandler(r.Context(), userID, r.PathValue("group_id")); err != nil {
		writeGroupDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	resp, err := s.groups.Handler.ListMembersHandler(r.Context(), r.PathValue("group_id"))
	if err != nil {
		writeGroupDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJoinGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireGroupUser(w, r)
	if !ok {
		return
	}
	resp, err := s.groups.Handler.JoinGroupHandler(r.Context(), userID, r.PathValue("group_id"))
	if err != nil {
		writeGroupDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleLeaveGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireGroupUser(w, r)
	if !ok {
		return
	}
	if err := s.groups.Handler.LeaveGroupHandler(r.Context(), userID, r.PathValue("group_id")); err != nil {
		writeGroupDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireGroupUser(w, r)
	if !ok {
		return
	}
	err := s.groups.Handler.RemoveMemberHandler(
		r.Context(),
		userID,
		r.PathValue("group_id"),
		r.PathValue("user_id"),
	)
	if err != nil {
		writeGroupDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChangeMemberRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireGroupUser(w, r)
	if !ok {
		return
	}
	var req grouphttp.ChangeRoleRequest
	if !decodeGroupRequest(w, r, &req) {
		return
	}
	resp, err := s.groups.Handler.ChangeMemberRoleHandler(
		r.Context(),
		userID,
		r.PathValue("group_id"),
		r.PathValue("user_id"),
		req,
	)
	if err != nil {
		writeGroupDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeGroupError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, grouphttp.ErrorResponse{Code: code, Message: message})
}

func writeGroupDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, groupdomainerrors.ErrGroupNotFound):
		writeGroupError(w, http.StatusNotFound, "group_not_found", err.Error())
	case errors.Is(err, groupdomainerrors.ErrPollNotFound):
		writeGroupError(w, http.StatusNotFound, "poll_not_found", err.Error())
	case errors.Is(err, groupdomainerrors.ErrUserNotFound):
		writeGroupError(w, http.StatusNotFound, "user_not_found", err.Error())
	case errors.Is(err, groupdomainerrors.ErrAlreadyMember):
		writeGroupError(w, http.StatusConflict, "already_member", err.Error())
	case errors.Is(err, groupdomainerrors.ErrAlreadyVoted):
		writeGroupError(w, http.StatusConflict, "already_voted", err.Error())
	case errors.Is(err, groupdomainerrors.ErrPollClosed):
		writeGroupError(w, http.StatusConflict, "poll_closed", err.Error())
	case errors.Is(err, groupdomainerrors.ErrNotMember):
		writeGroupError(w, http.StatusForbidden, "not_member", err.Error())
	case errors.Is(err, groupdomainerrors.ErrAdminAccessDenied):
		writeGroupError(w, http.StatusForbidden, "admin_required", err.Error())
	case errors.Is(err, groupdomainerrors.ErrNotPollAuthor):
		writeGroupError(w, http.StatusForbidden, "not_poll_author", err.Error())
	case errors.Is(err, groupdomainerrors.ErrLastAdmin):
		writeGroupError(w, http.StatusBadRequest, "last_admin", err.Error())
	case errors.Is(err, groupdomainerrors.ErrInvalidRequest):
		writeGroupError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, groupdomainerrors.ErrPollGroupMismatch),
		errors.Is(err, groupdomainerrors.ErrOptionNotFound):
		writeGroupError(w, http.StatusUnprocessableEntity, "integrity_violation", err.Error())
	case errors.Is(err, groupdomainerrors.ErrTransientConflict):
		w.Header().Set("Retry-After", "1")
		writeGroupError(w, http.StatusServiceUnavailable, "transient_conflict", err.Error())
	default:
		writeGroupError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func requireGroupUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if userID == "" {
		writeGroupError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return "", false
	}
	return userID, true
}

func decodeGroupRequest(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		writeGroupError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return false
	}
	return true
}
