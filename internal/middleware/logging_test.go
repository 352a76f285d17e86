package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

func TestLogger(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"ok", http.StatusOK, "level=INFO"},
		{"client error", http.StatusUnauthorized, "level=WARN"},
		{"server error", http.StatusInternalServerError, "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("hello"))
			})
			h := chimiddleware.RequestID(Logger(logger)(inner))

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/user/reset?token=secret", nil))

			out := buf.String()
			for _, want := range []string{tt.wantLevel, "method=GET", "path=/user/reset", "bytes=5", "request_id="} {
				if !strings.Contains(out, want) {
					t.Errorf("log line %q missing %q", out, want)
				}
			}
			if strings.Contains(out, "secret") {
				t.Errorf("log line %q leaks the query string", out)
			}
			if strings.Contains(out, `request_id=""`) {
				t.Errorf("log line %q has no request ID", out)
			}
		})
	}
}
