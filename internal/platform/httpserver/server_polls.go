package httpserver

import (
	"net/http"

	grouphttp "gatherly/contexts/collaboration/group-coordination/transport/http"
)

func (s *Server) handleListPolls(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireGroupUser(w, r)
	if !ok {
		return
	}
	resp, err := s.groups.Handler.ListPollsHandler(r.Context(), userID, r.PathValue("group_id"))
	if err != nil {
		writeGroupDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreatePoll(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireGroupUser(w, r)
	if !ok {
		return
	}
	var req grouphttp.CreatePollRequest
	if !decodeGroupRequest(w, r, &req) {
		return
	}
	resp, err := s.groups.Handler.CreatePollHandler(r.Context(), userID, r.PathValue("group_id"), req)
	if err != nil {
		writeGroupDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetPoll(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireGroupUser(w, r)
	if !ok {
		return
	}
	resp, err := s.groups.Handler.GetPollHandler(
		r.Context(),
		userID,
		r.PathValue("group_id"),
		r.PathValue("poll_id"),
	)
	if err != nil {
		writeGroupDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdatePoll(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireGroupUser(w, r)
	if !ok {
		return
	}
	var req grouphttp.UpdatePollRequest
	if !decodeGroupRequest(w, r, &req) {
		return
	}
	resp, err := s.groups.Handler.UpdatePollHandler(
		r.Context(),
		userID,
		r.PathValue("group_id"),
		r.PathValue("poll_id"),
		req,
	)
	if err != nil {
		writeGroupDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeletePoll(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireGroupUser(w, r)
	if !ok {
		return
	}
	err := s.groups.Handler.DeletePollHandler(
		r.Context(),
		userID,
		r.PathValue("group_id"),
		r.PathValue("poll_id"),
	)
	if err != nil {
		writeGroupDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireGroupUser(w, r)
	if !ok {
		return
	}
	var req grouphttp.VoteRequest
	if !decodeGroupRequest(w, r, &req) {
		return
	}
	resp, err := s.groups.Handler.VoteHandler(
		r.Context(),
		userID,
		r.PathValue("group_id"),
		r.PathValue("poll_id"),
		req,
	)
	if err != nil {
		writeGroupDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePollResults(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireGroupUser(w, r)
	if !ok {
		return
	}
	resp, err := s.groups.Handler.PollResultHandler(
		r.Context(),
		userID,
		r.PathValue("group_id"),
		r.PathValue("poll_id"),
	)
	if err != nil {
		writeGroupDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
