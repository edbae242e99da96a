package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// TestNormalizePath проверяет нормализацию путей для лейблов метрик.
func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health/live", "/health/live"},
		{"/metrics", "/metrics"},
		{"/api/v1/elements", "/api/v1/elements"},
		{"/api/v1/elements/3", "/api/v1/elements/{index}"},
		{"/api/v1/elements/12/caption", "/api/v1/elements/{index}/caption"},
		{"/api/v1/elements/12/unknown", "other"},
		{"/api/v1/elements/", "other"},
		{"/api/v1/graph-types", "/api/v1/graph-types"},
		{"/image.png", "/image.png"},
		{"/favicon.ico", "other"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, ожидалось %q", tt.path, got, tt.want)
		}
	}
}

// TestRequestLogger_Levels проверяет уровень записи по статусу и пути.
func TestRequestLogger_Levels(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		want   string
	}{
		{"ok", "/api/v1/elements", http.StatusOK, "level=INFO"},
		{"not found", "/api/v1/elements/9", http.StatusNotFound, "level=WARN"},
		{"unavailable", "/image.png", http.StatusServiceUnavailable, "level=ERROR"},
		{"probe", "/health/live", http.StatusOK, "level=DEBUG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			h := chimw.RequestID(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			})))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			out := buf.String()
			if !strings.Contains(out, tt.want) {
				t.Errorf("запись %q не содержит %q", out, tt.want)
			}
			if !strings.Contains(out, "bytes=4") {
				t.Errorf("запись %q не содержит размер ответа", out)
			}
			if !strings.Contains(out, "request_id=") {
				t.Errorf("запись %q не содержит request_id", out)
			}
		})
	}
}

// TestMetricsMiddleware_PassThrough проверяет, что middleware не меняет ответ.
func TestMetricsMiddleware_PassThrough(t *testing.T) {
	h := MetricsMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/elements/1", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("статус = %d, ожидался %d", rec.Code, http.StatusTeapot)
	}
}
