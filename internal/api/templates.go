package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/broadcaster/internal/template"
)

// TemplateServer handles template API endpoints
type TemplateServer struct {
	storage *template.Storage
	logger  *slog.Logger
}

// NewTemplateServer creates a new template server
func NewTemplateServer(storage *template.Storage, logger *slog.Logger) *TemplateServer {
	return &TemplateServer{
		storage: storage,
		logger:  logger,
	}
}

// RegisterRoutes registers template API routes
func (s *TemplateServer) RegisterRoutes(r chi.Router) {
	r.Route("/templates", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)
		r.Get("/{id}", s.handleGet)
		r.Put("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
	})
}

// TemplateRequest is the request for creating or updating a template.
// On update, empty fields keep their stored value.
type TemplateRequest struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Text        string              `json:"text"`
	Variables   []template.Variable `json:"variables,omitempty"`
}

// TemplateResponse is a template with its placeholder analysis
type TemplateResponse struct {
	*template.Template
	Placeholders []template.Placeholder `json:"placeholders"`
}

// TemplateListResponse is the response for listing templates
type TemplateListResponse struct {
	Templates []*TemplateResponse `json:"templates"`
	Total     int                 `json:"total"`
}

// handleList handles GET /api/v1/templates
func (s *TemplateServer) handleList(w http.ResponseWriter, r *http.Request) {
	filter := template.ListFilter{
		Search: r.URL.Query().Get("search"),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	templates, err := s.storage.List(r.Context(), filter)
	if err != nil {
		s.sendError(w, err)
		return
	}

	resp := TemplateListResponse{Templates: make([]*TemplateResponse, 0, len(templates))}
	for _, tmpl := range templates {
		resp.Templates = append(resp.Templates, templateToResponse(tmpl))
	}
	resp.Total = len(resp.Templates)

	sendJSON(w, http.StatusOK, resp)
}

// handleCreate handles POST /api/v1/templates
func (s *TemplateServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tmpl := &template.Template{
		Name:        req.Name,
		Description: req.Description,
		Text:        req.Text,
		Variables:   req.Variables,
	}
	if err := s.storage.Create(r.Context(), tmpl); err != nil {
		s.sendError(w, err)
		return
	}

	sendJSON(w, http.StatusCreated, templateToResponse(tmpl))
}

// handleGet handles GET /api/v1/templates/{id}; the id may also be a name
func (s *TemplateServer) handleGet(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.storage.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, templateToResponse(tmpl))
}

// handleUpdate handles PUT /api/v1/templates/{id}
func (s *TemplateServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tmpl, err := s.storage.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendError(w, err)
		return
	}

	// Update fields
	if req.Name != "" {
		tmpl.Name = req.Name
	}
	if req.Description != "" {
		tmpl.Description = req.Description
	}
	if req.Text != "" {
		tmpl.Text = req.Text
	}
	if req.Variables != nil {
		tmpl.Variables = req.Variables
	}

	if err := s.storage.Update(r.Context(), tmpl); err != nil {
		s.sendError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, templateToResponse(tmpl))
}

// handleDelete handles DELETE /api/v1/templates/{id}
func (s *TemplateServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.sendError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *TemplateServer) sendError(w http.ResponseWriter, err error) {
	status := classify(err, http.StatusInternalServerError)

	if status == http.StatusInternalServerError {
		s.logger.Error("template request failed", "error", err)
		sendError(w, status, "Template storage error")
		return
	}
	if errors.Is(err, template.ErrNotFound) {
		sendError(w, status, "Template not found")
		return
	}
	sendError(w, status, err.Error())
}

func templateToResponse(tmpl *template.Template) *TemplateResponse {
	return &TemplateResponse{
		Template:     tmpl,
		Placeholders: template.Analyze(tmpl.Text, tmpl.Variables),
	}
}
