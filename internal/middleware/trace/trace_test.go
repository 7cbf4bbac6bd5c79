package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	applog "receipts/internal/log"
)

func TestHandlerAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Level: slog.LevelDebug, Output: &buf})
	var seen string
	var ctxLogger *slog.Logger
	h := NewMiddleware(logger, func(*http.Request) string { return "10.0.0.1" }).Handler(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = RequestID(r.Context())
			ctxLogger = applog.FromContext(r.Context())
			w.WriteHeader(http.StatusTeapot)
		}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ui/month?year=2024", nil))

	if !strings.HasPrefix(seen, "req_") || len(seen) != len("req_")+16 {
		t.Fatalf("unexpected request id %q", seen)
	}
	if rec.Header().Get(HeaderRequestID) != seen {
		t.Fatalf("response header should echo request id")
	}
	if ctxLogger == nil || ctxLogger == slog.Default() {
		t.Fatalf("expected request-scoped logger in context")
	}
	out := buf.String()
	if !strings.Contains(out, "status_code=418") || !strings.Contains(out, "request_id="+seen) {
		t.Fatalf("unexpected log output %q", out)
	}
	if !strings.Contains(out, "level=WARN") {
		t.Fatalf("4xx should log at warn: %q", out)
	}
}
