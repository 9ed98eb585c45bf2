package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/broadcaster/internal/session/sandbox"
)

// SandboxServer exposes the messages captured by the sandbox session
type SandboxServer struct {
	storage *sandbox.Storage
}

// NewSandboxServer creates a new sandbox server
func NewSandboxServer(storage *sandbox.Storage) *SandboxServer {
	return &SandboxServer{storage: storage}
}

// RegisterRoutes registers sandbox API routes
func (s *SandboxServer) RegisterRoutes(r chi.Router) {
	r.Route("/sandbox", func(r chi.Router) {
		r.Get("/messages", s.handleList)
		r.Get("/messages/{id}", s.handleGet)
		r.Delete("/messages", s.handleClear)
		r.Delete("/messages/{id}", s.handleDelete)
		r.Get("/stats", s.handleStats)
	})
}

// SandboxListResponse is the response for GET /api/v1/sandbox/messages
type SandboxListResponse struct {
	Messages []*sandbox.Message `json:"messages"`
	Total    int                `json:"total"`
}

// SandboxClearResponse is the response for DELETE /api/v1/sandbox/messages
type SandboxClearResponse struct {
	Deleted int `json:"deleted"`
}

// handleList handles GET /api/v1/sandbox/messages
func (s *SandboxServer) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := sandbox.ListFilter{
		ChatID: q.Get("chat_id"),
		Limit:  100,
	}

	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if offset := q.Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil && n >= 0 {
			filter.Offset = n
		}
	}
	if failed := q.Get("failed"); failed != "" {
		v, err := strconv.ParseBool(failed)
		if err != nil {
			sendError(w, http.StatusBadRequest, "Invalid failed filter")
			return
		}
		filter.Failed = &v
	}

	messages, err := s.storage.List(r.Context(), filter)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to list messages")
		return
	}
	if messages == nil {
		messages = []*sandbox.Message{}
	}

	sendJSON(w, http.StatusOK, SandboxListResponse{
		Messages: messages,
		Total:    len(messages),
	})
}

// handleGet handles GET /api/v1/sandbox/messages/{id}
func (s *SandboxServer) handleGet(w http.ResponseWriter, r *http.Request) {
	msg, err := s.storage.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		status := classify(err, http.StatusInternalServerError)
		sendError(w, status, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, msg)
}

// handleDelete handles DELETE /api/v1/sandbox/messages/{id}
func (s *SandboxServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		status := classify(err, http.StatusInternalServerError)
		sendError(w, status, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClear handles DELETE /api/v1/sandbox/messages
func (s *SandboxServer) handleClear(w http.ResponseWriter, r *http.Request) {
	var olderThan time.Duration
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			sendError(w, http.StatusBadRequest, "Invalid older_than duration")
			return
		}
		olderThan = d
	}

	n, err := s.storage.Clear(r.Context(), r.URL.Query().Get("chat_id"), olderThan)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to clear messages")
		return
	}
	sendJSON(w, http.StatusOK, SandboxClearResponse{Deleted: n})
}

// handleStats handles GET /api/v1/sandbox/stats
func (s *SandboxServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.storage.Stats(r.Context())
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to get stats")
		return
	}
	sendJSON(w, http.StatusOK, stats)
}
