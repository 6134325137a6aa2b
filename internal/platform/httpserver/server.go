package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	groupcoordination "gatherly/contexts/collaboration/group-coordination"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "gatherly/internal/platform/httpserver/docs"
)

type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
	addr   string
	groups groupcoordination.Module
	srv    *http.Server
}

func New(
	groups groupcoordination.Module,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:    http.NewServeMux(),
		logger: logger,
		addr:   addr,
		groups: groups,
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server stopping",
		"event", "http_server_stopping",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return s.srv.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("PUT /api/users/me", s.handleSaveProfile)

	s.mux.HandleFunc("GET /api/groups", s.handleListGroups)
	s.mux.HandleFunc("POST /api/groups", s.handleCreateGroup)
	s.mux.HandleFunc("GET /api/groups/{group_id}", s.handleGetGroup)
	s.mux.HandleFunc("PUT /api/groups/{group_id}", s.handleUpdateGroup)
	s.mux.HandleFunc("DELETE /api/groups/{group_id}", s.handleDeleteGroup)
	s.mux.HandleFunc("GET /api/groups/{group_id}/members", s.handleListMembers)
	s.mux.HandleFunc("POST /api/groups/{group_id}/join", s.handleJoinGroup)
	s.mux.HandleFunc("DELETE /api/groups/{group_id}/leave", s.handleLeaveGroup)
	s.mux.HandleFunc("DELETE /api/groups/{group_id}/members/{user_id}", s.handleRemoveMember)
	s.mux.HandleFunc("PUT /api/groups/{group_id}/members/{user_id}/role", s.handleChangeMemberRole)

	s.mux.HandleFunc("GET /api/groups/{group_id}/polls", s.handleListPolls)
	s.mux.HandleFunc("POST /api/groups/{group_id}/polls", s.handleCreatePoll)
	s.mux.HandleFunc("GET /api/groups/{group_id}/polls/{poll_id}", s.handleGetPoll)
	s.mux.HandleFunc("PUT /api/groups/{group_id}/polls/{poll_id}", s.handleUpdatePoll)
	s.mux.HandleFunc("DELETE /api/groups/{group_id}/polls/{poll_id}", s.handleDeletePoll)
	s.mux.HandleFunc("POST /api/groups/{group_id}/polls/{poll_id}/vote", s.handleVote)
	s.mux.HandleFunc("GET /api/groups/{group_id}/polls/{poll_id}/results", s.handlePollResults)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
