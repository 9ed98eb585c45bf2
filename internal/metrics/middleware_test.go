package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMiddlewareDefaultStatus(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	r := chi.NewRouter()
	r.Use(HTTPMiddleware)
	r.Get("/api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/status", nil))

	if v := testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues("GET", "/api/v1/status", "200")); v != 1 {
		t.Errorf("requests = %v, want 1", v)
	}
}

func TestHTTPMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	r := chi.NewRouter()
	r.Use(HTTPMiddleware)
	r.Get("/api/v1/lists/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"1717171717171", "1717171717172"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/lists/"+id, nil))
	}

	got := testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues("GET", "/api/v1/lists/{id}", "404"))
	if got != 2 {
		t.Errorf("requests for pattern = %v, want 2", got)
	}
	if v := testutil.ToFloat64(m.APIErrorsTotal.WithLabelValues("not_found")); v != 2 {
		t.Errorf("not_found errors = %v, want 2", v)
	}
}

func TestHTTPMiddlewareNoMetrics(t *testing.T) {
	SetGlobal(nil)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	HTTPMiddleware(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestNormalizePathFallback(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/templates/550e8400-e29b-41d4-a716-446655440000", "/api/v1/templates/{id}"},
		{"/api/v1/lists/1717171717171/activate", "/api/v1/lists/{id}/activate"},
		{"/api/v1/contacts", "/api/v1/contacts"},
		{"/api/v1/contacts/33600000001@c.us/toggle", "/api/v1/contacts/{id}/toggle"},
		{"/api/v1/groups/120363000000000001@g.us/import", "/api/v1/groups/{id}/import"},
		{"/api/v1/broadcasts/bc:1717171717171000000", "/api/v1/broadcasts/{id}"},
		{"/api/v1/lists/active", "/api/v1/lists/active"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", tt.path, nil)
		if got := normalizePath(req); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestIsUUID(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"550e8400-e29b-41d4-a716-446655440000", true},
		{"550E8400-E29B-41D4-A716-446655440000", true},
		{"not-a-uuid", false},
		{"550e8400e29b41d4a716446655440000", false},
		{"{550e8400-e29b-41d4-a716-446655440000}", false},
		{"550e8400-e29b-41d4-a716-44665544000g", false},
		{"", false},
	}

	for _, tt := range tests {
		if result := isUUID(tt.input); result != tt.expected {
			t.Errorf("isUUID(%q) = %v, expected %v", tt.input, result, tt.expected)
		}
	}
}

func TestCategorizeStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{500, "server_error"},
		{502, "session_error"},
		{503, "server_error"},
		{409, "conflict"},
		{401, "auth_error"},
		{403, "auth_error"},
		{404, "not_found"},
		{400, "bad_request"},
		{422, "client_error"},
		{200, "unknown"},
	}

	for _, tt := range tests {
		if result := categorizeStatus(tt.status); result != tt.expected {
			t.Errorf("categorizeStatus(%d) = %q, expected %q", tt.status, result, tt.expected)
		}
	}
}
