package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMiddlewareLogsCompletionByStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := New(Config{Component: ComponentApp, Handler: slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})})

	r := gin.New()
	r.Use(Middleware(logger, func(*gin.Context) string { return "req-1" }))
	r.GET("/missing/:id", func(c *gin.Context) {
		if FromContext(c.Request.Context()).Component() != ComponentHTTP {
			t.Error("handler should see the request logger")
		}
		c.Status(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing/42", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["level"] != "WARN" || entry[FieldRequestID] != "req-1" || entry[FieldRoute] != "/missing/:id" {
		t.Fatalf("unexpected completion entry %v", entry)
	}
	if entry[FieldStatusCode] != float64(404) || entry[FieldComponent] != ComponentHTTP {
		t.Fatalf("unexpected completion entry %v", entry)
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if l := FromContext(req.Context()); l == nil || l.Component() != "unknown" {
		t.Fatalf("fallback logger = %+v", l)
	}
}
