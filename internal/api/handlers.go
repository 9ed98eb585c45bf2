package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/broadcaster/internal/contact"
	"github.com/foxzi/broadcaster/internal/group"
	"github.com/foxzi/broadcaster/internal/list"
	"github.com/foxzi/broadcaster/internal/selection"
	"github.com/foxzi/broadcaster/internal/session"
	"github.com/foxzi/broadcaster/internal/session/sandbox"
	"github.com/foxzi/broadcaster/internal/state"
	"github.com/foxzi/broadcaster/internal/template"
)

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Ready   bool   `json:"session_ready"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// ContactsResponse is the response for GET /api/v1/contacts
type ContactsResponse struct {
	Contacts []contact.Recipient `json:"contacts"`
	Total    int                 `json:"total"`
	Selected int                 `json:"selected"`
}

// CountResponse reports how many recipients an operation touched
type CountResponse struct {
	Count int `json:"count"`
}

// ListRequest is the request body for POST /lists and PUT /lists/{id}
type ListRequest struct {
	Name     string              `json:"name"`
	Contacts []contact.Recipient `json:"contacts,omitempty"`
}

// ListsResponse is the response for GET /api/v1/lists
type ListsResponse struct {
	Lists    []list.List `json:"lists"`
	ActiveID string      `json:"active_id,omitempty"`
}

// GroupsResponse is the response for GET /api/v1/groups
type GroupsResponse struct {
	Groups []group.Group `json:"groups"`
}

// BroadcastsResponse is the response for GET /api/v1/broadcasts
type BroadcastsResponse struct {
	Broadcasts []state.Job `json:"broadcasts"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
		Ready:   s.state.Status().Ready,
	})
}

// handleStatus handles GET /api/v1/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, s.state.Status())
}

// handleSessionStart handles POST /api/v1/session/start
func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if err := s.state.StartSession(r.Context()); err != nil {
		s.sendStateError(w, err, http.StatusBadGateway)
		return
	}
	sendJSON(w, http.StatusAccepted, s.state.Status())
}

// handleLogout handles POST /api/v1/session/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.state.Logout(r.Context()); err != nil {
		s.sendStateError(w, err, http.StatusBadGateway)
		return
	}
	sendJSON(w, http.StatusOK, s.state.Status())
}

// handleSessionEvent handles POST /api/v1/session/events, the webhook the
// session gateway pushes events to
func (s *Server) handleSessionEvent(w http.ResponseWriter, r *http.Request) {
	var e session.Event
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := e.Validate(); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	s.state.Notify(e)
	w.WriteHeader(http.StatusAccepted)
}

// handleContacts handles GET /api/v1/contacts
func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	contacts := s.state.Contacts(r.URL.Query().Get("q"))
	if contacts == nil {
		contacts = []contact.Recipient{}
	}

	st := s.state.Status()
	sendJSON(w, http.StatusOK, ContactsResponse{
		Contacts: contacts,
		Total:    st.Contacts,
		Selected: st.Selected,
	})
}

// handleRefreshContacts handles POST /api/v1/contacts/refresh
func (s *Server) handleRefreshContacts(w http.ResponseWriter, r *http.Request) {
	n, err := s.state.RefreshContacts(r.Context())
	if err != nil {
		s.sendStateError(w, err, http.StatusBadGateway)
		return
	}
	sendJSON(w, http.StatusOK, CountResponse{Count: n})
}

// handleToggle handles POST /api/v1/contacts/{id}/toggle
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	rec, err := s.state.Toggle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendStateError(w, err, http.StatusInternalServerError)
		return
	}
	sendJSON(w, http.StatusOK, rec)
}

// handleSelectAll handles POST /api/v1/contacts/select-all
func (s *Server) handleSelectAll(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, CountResponse{Count: s.state.SelectAll()})
}

// handleDeselectAll handles POST /api/v1/contacts/deselect-all
func (s *Server) handleDeselectAll(w http.ResponseWriter, r *http.Request) {
	s.state.DeselectAll()
	sendJSON(w, http.StatusOK, CountResponse{Count: 0})
}

// handleLists handles GET /api/v1/lists
func (s *Server) handleLists(w http.ResponseWriter, r *http.Request) {
	lists := s.state.Lists()
	if lists == nil {
		lists = []list.List{}
	}
	sendJSON(w, http.StatusOK, ListsResponse{
		Lists:    lists,
		ActiveID: s.state.Status().ActiveListID,
	})
}

// handleCreateList handles POST /api/v1/lists. The list holds the currently
// selected contacts.
func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var req ListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	l, err := s.state.CreateList(r.Context(), req.Name)
	if err != nil {
		s.sendStateError(w, err, http.StatusInternalServerError)
		return
	}
	sendJSON(w, http.StatusCreated, l)
}

// handleGetList handles GET /api/v1/lists/{id}
func (s *Server) handleGetList(w http.ResponseWriter, r *http.Request) {
	l, ok := s.state.List(chi.URLParam(r, "id"))
	if !ok {
		s.sendStateError(w, list.ErrNotFound, http.StatusNotFound)
		return
	}
	sendJSON(w, http.StatusOK, l)
}

// handleEditList handles PUT /api/v1/lists/{id}
func (s *Server) handleEditList(w http.ResponseWriter, r *http.Request) {
	var req ListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	l, err := s.state.EditList(r.Context(), list.List{
		ID:       chi.URLParam(r, "id"),
		Name:     req.Name,
		Contacts: req.Contacts,
	})
	if err != nil {
		s.sendStateError(w, err, http.StatusInternalServerError)
		return
	}
	sendJSON(w, http.StatusOK, l)
}

// handleDeleteList handles DELETE /api/v1/lists/{id}
func (s *Server) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	if err := s.state.DeleteList(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.sendStateError(w, err, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleActivateList handles POST /api/v1/lists/{id}/activate
func (s *Server) handleActivateList(w http.ResponseWriter, r *http.Request) {
	n, err := s.state.SelectList(chi.URLParam(r, "id"))
	if err != nil {
		s.sendStateError(w, err, http.StatusInternalServerError)
		return
	}
	sendJSON(w, http.StatusOK, CountResponse{Count: n})
}

// handleDeactivateList handles DELETE /api/v1/lists/active
func (s *Server) handleDeactivateList(w http.ResponseWriter, r *http.Request) {
	s.state.SelectList("")
	w.WriteHeader(http.StatusNoContent)
}

// handleGroups handles GET /api/v1/groups
func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.state.Groups(r.Context())
	if err != nil {
		s.sendStateError(w, err, http.StatusBadGateway)
		return
	}
	if groups == nil {
		groups = []group.Group{}
	}
	sendJSON(w, http.StatusOK, GroupsResponse{Groups: groups})
}

// handleImportGroup handles POST /api/v1/groups/{id}/import
func (s *Server) handleImportGroup(w http.ResponseWriter, r *http.Request) {
	var req state.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.GroupID = chi.URLParam(r, "id")

	l, err := s.state.ImportGroup(r.Context(), req)
	if err != nil {
		s.sendStateError(w, err, http.StatusBadGateway)
		return
	}
	sendJSON(w, http.StatusOK, l)
}

// handleBroadcasts handles GET /api/v1/broadcasts
func (s *Server) handleBroadcasts(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, BroadcastsResponse{Broadcasts: s.state.Broadcasts()})
}

// handleStartBroadcast handles POST /api/v1/broadcasts
func (s *Server) handleStartBroadcast(w http.ResponseWriter, r *http.Request) {
	var req state.BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	job, err := s.state.StartBroadcast(r.Context(), req)
	if err != nil {
		s.sendStateError(w, err, http.StatusInternalServerError)
		return
	}
	sendJSON(w, http.StatusAccepted, job)
}

// handleGetBroadcast handles GET /api/v1/broadcasts/{id}
func (s *Server) handleGetBroadcast(w http.ResponseWriter, r *http.Request) {
	job, err := s.state.Broadcast(chi.URLParam(r, "id"))
	if err != nil {
		s.sendStateError(w, err, http.StatusInternalServerError)
		return
	}
	sendJSON(w, http.StatusOK, job)
}

// handleCancelBroadcast handles POST /api/v1/broadcasts/{id}/cancel
func (s *Server) handleCancelBroadcast(w http.ResponseWriter, r *http.Request) {
	job, err := s.state.CancelBroadcast(chi.URLParam(r, "id"))
	if err != nil {
		s.sendStateError(w, err, http.StatusInternalServerError)
		return
	}
	sendJSON(w, http.StatusAccepted, job)
}

// handlePreview handles POST /api/v1/preview
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req state.PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	p, err := s.state.Preview(r.Context(), req)
	if err != nil {
		s.sendStateError(w, err, http.StatusInternalServerError)
		return
	}
	sendJSON(w, http.StatusOK, p)
}

// sendStateError maps domain errors to HTTP statuses. Anything unrecognized
// gets fallback, which is 502 for operations that call the session.
func (s *Server) sendStateError(w http.ResponseWriter, err error, fallback int) {
	status := classify(err, fallback)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	sendError(w, status, err.Error())
}

func classify(err error, fallback int) int {
	switch {
	case errors.Is(err, list.ErrPersist):
		return http.StatusInternalServerError

	case errors.Is(err, list.ErrEmptyName),
		errors.Is(err, list.ErrInvalidPhone),
		errors.Is(err, list.ErrDuplicateID),
		errors.Is(err, state.ErrEmptySelection),
		errors.Is(err, state.ErrEmptyMessage),
		errors.Is(err, state.ErrNoActiveList),
		errors.Is(err, state.ErrNoRecipients),
		errors.Is(err, template.ErrEmptyName),
		errors.Is(err, template.ErrEmptyText):
		return http.StatusBadRequest

	case errors.Is(err, list.ErrNotFound),
		errors.Is(err, selection.ErrUnknownRecipient),
		errors.Is(err, state.ErrGroupNotFound),
		errors.Is(err, state.ErrJobNotFound),
		errors.Is(err, template.ErrNotFound),
		errors.Is(err, sandbox.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, state.ErrBroadcastRunning),
		errors.Is(err, state.ErrSessionChanged),
		errors.Is(err, template.ErrNameExists):
		return http.StatusConflict
	}
	return fallback
}

// Helper functions

func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, ErrorResponse{Error: message})
}
