package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	blobmem "receipts/internal/blobstore/memory"
	"receipts/internal/core"
	"receipts/internal/export"
	"receipts/internal/middleware/ratelimit"
	"receipts/internal/ocr"
	recmem "receipts/internal/recordstore/memory"
	"receipts/internal/services"
)

// fakeOCR reads the amount from images of the form "total=<n>".
var fakeOCR = ocr.Func(func(_ context.Context, image []byte) (int64, error) {
	s := string(image)
	if !strings.HasPrefix(s, "total=") {
		return 0, nil
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(s, "total="), 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
})

type testEnv struct {
	srv     *Server
	blobs   *blobmem.Store
	records *recmem.Store
	ready   error
}

// fixedNow puts the default period at 2024-02.
var fixedNow = func() time.Time { return time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC) }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithLimit(t, 100)
}

func newTestEnvWithLimit(t *testing.T, requests int) *testEnv {
	t.Helper()
	env := &testEnv{blobs: blobmem.New(), records: recmem.New()}
	receipts := services.NewReceiptStore(env.blobs, core.NewMonotonicClock(nil), nil)
	reconciler := services.NewReconciler(receipts, env.records, nil, nil)
	history := services.NewHistory(receipts, env.records, 0, "", nil)
	env.srv = NewServer(":0", Deps{
		Batches:    services.NewBatches(receipts, reconciler, fakeOCR, nil),
		Reconciler: reconciler,
		History:    history,
		Exporter:   export.NewService(history, nil),
		Ready:      func(context.Context) error { return env.ready },
	}, Options{
		MaxUploadBytes: 1 << 20,
		RateLimit:      ratelimit.Config{Requests: requests, Window: time.Minute},
		Now:            fixedNow,
	})
	t.Cleanup(func() { env.srv.limiter.Stop() })
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) seed(t *testing.T, key string) {
	t.Helper()
	if err := e.blobs.Put(context.Background(), key, []byte("img"), "image/jpeg"); err != nil {
		t.Fatalf("seed %s: %v", key, err)
	}
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile(uploadField, name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		_, _ = io.WriteString(fw, content)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func formRequest(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestIndexAndHealth(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "Monthly receipts") {
		t.Fatalf("index body missing heading")
	}
	if !strings.Contains(body, `<option value="2024" selected>`) || !strings.Contains(body, `<option value="2" selected>`) {
		t.Fatalf("index should preselect the previous month: %s", body)
	}
	if !strings.Contains(body, `<option value="2022"`) || !strings.Contains(body, `<option value="2025"`) {
		t.Fatalf("index should offer years 2022-2025")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing security headers")
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	if rr := env.do(httptest.NewRequest(http.MethodGet, "/nope", nil)); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown path status=%d", rr.Code)
	}
}

func TestReadyReportsStorageFailure(t *testing.T) {
	env := newTestEnv(t)
	env.ready = errors.New("database is locked")

	rr := env.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var resp struct {
		Status string         `json:"status"`
		Checks map[string]any `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "not_ready" || !strings.Contains(resp.Checks["storage"].(string), "database is locked") {
		t.Fatalf("unexpected readiness body %+v", resp)
	}
}

func TestReplacePeriod(t *testing.T) {
	env := newTestEnv(t)
	old := "receipts/2024/02/2024_02_999_20240201_000000_000001.jpg"
	env.seed(t, old)

	req := multipartRequest(t, "/periods/replace",
		map[string]string{"year": "2024", "month": "2"},
		map[string]string{"a.jpg": "total=10000", "b.jpg": "total=30000", "c.png": "blurry"})
	rr := env.do(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	agg, _ := env.records.Get(context.Background(), core.Period{Year: 2024, Month: 2})
	if agg == nil || agg.TotalAmount != 40000 || agg.ReceiptCount != 2 {
		t.Fatalf("unexpected aggregate %+v", agg)
	}
	if _, err := env.blobs.Get(context.Background(), old); err == nil {
		t.Fatal("old receipt should be removed")
	}

	body := rr.Body.String()
	for _, want := range []string{"₩40,000", "no total recognized", "1 previous receipts removed"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q: %s", want, body)
		}
	}
	trigger := rr.Header().Get("HX-Trigger")
	if !strings.Contains(trigger, EventPeriodUpdated) || !strings.Contains(trigger, `"type":"warning"`) {
		t.Errorf("unexpected HX-Trigger %s", trigger)
	}
}

func TestUploadValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		req    *http.Request
		status int
	}{
		{
			name:   "wrong method",
			req:    httptest.NewRequest(http.MethodGet, "/periods/replace", nil),
			status: http.StatusMethodNotAllowed,
		},
		{
			name:   "no files",
			req:    multipartRequest(t, "/periods/receipts", map[string]string{"year": "2024", "month": "2"}, nil),
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "bad extension",
			req:    multipartRequest(t, "/periods/receipts", map[string]string{"year": "2024", "month": "2"}, map[string]string{"notes.txt": "total=1"}),
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "invalid month",
			req:    multipartRequest(t, "/periods/receipts", map[string]string{"year": "2024", "month": "13"}, map[string]string{"a.jpg": "total=1"}),
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "too large",
			req:    multipartRequest(t, "/periods/receipts", map[string]string{"year": "2024", "month": "2"}, map[string]string{"a.jpg": strings.Repeat("x", 2<<20)}),
			status: http.StatusRequestEntityTooLarge,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(tt.req)
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
		})
	}
	if env.blobs.Len() != 0 {
		t.Fatalf("rejected uploads must not store anything, got %d blobs", env.blobs.Len())
	}
}

func TestAddDeleteAndRecalculate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := core.Period{Year: 2024, Month: 2}

	rr := env.do(multipartRequest(t, "/periods/receipts",
		map[string]string{"year": "2024", "month": "2"},
		map[string]string{"a.jpg": "total=15000"}))
	if rr.Code != http.StatusOK {
		t.Fatalf("add status=%d body=%s", rr.Code, rr.Body.String())
	}
	rr = env.do(multipartRequest(t, "/periods/receipts",
		map[string]string{"year": "2024", "month": "2"},
		map[string]string{"b.jpg": "total=25000"}))
	if rr.Code != http.StatusOK {
		t.Fatalf("second add status=%d", rr.Code)
	}
	agg, _ := env.records.Get(ctx, p)
	if agg == nil || agg.TotalAmount != 40000 || agg.ReceiptCount != 2 {
		t.Fatalf("after add: %+v", agg)
	}

	keys, _ := env.blobs.List(ctx, p.Prefix())
	var target string
	for _, k := range keys {
		if a, _ := core.ParseAmount(k); a == 25000 {
			target = k
		}
	}

	// A key from another period is refused.
	rr = env.do(formRequest("/receipts/delete", url.Values{"year": {"2024"}, "month": {"3"}, "key": {target}}))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("cross-period delete status=%d", rr.Code)
	}

	rr = env.do(formRequest("/receipts/delete", url.Values{"year": {"2024"}, "month": {"2"}, "key": {target}}))
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "₩15,000") {
		t.Errorf("delete body should show new total: %s", rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), EventReceiptDeleted) {
		t.Errorf("missing receipt:deleted trigger")
	}

	// Out-of-band change, then explicit recalculation.
	env.seed(t, "receipts/2024/02/2024_02_5000_20240210_000000_000001.jpg")
	rr = env.do(formRequest("/periods/recalculate", url.Values{"year": {"2024"}, "month": {"2"}}))
	if rr.Code != http.StatusOK {
		t.Fatalf("recalculate status=%d", rr.Code)
	}
	agg, _ = env.records.Get(ctx, p)
	if agg == nil || agg.TotalAmount != 20000 || agg.ReceiptCount != 2 {
		t.Fatalf("after recalculate: %+v", agg)
	}

	rr = env.do(formRequest("/receipts/delete", url.Values{"year": {"2024"}, "month": {"2"}}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing key status=%d", rr.Code)
	}
}

func TestMonthAndYearViews(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "receipts/2024/02/2024_02_12000_20240201_000000_000001.jpg")
	env.seed(t, "receipts/2024/02/legacy_photo.jpg")
	if _, err := env.srv.reconciler.ReconcileAndPersist(context.Background(), core.Period{Year: 2024, Month: 2}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	rr := env.do(httptest.NewRequest(http.MethodGet, "/ui/month?year=2024&month=2&edit=1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("month status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"₩12,000", "1 receipts", "unknown", "/receipts/image?key=", "/receipts/delete"} {
		if !strings.Contains(body, want) {
			t.Errorf("month body missing %q", want)
		}
	}

	rr = env.do(httptest.NewRequest(http.MethodGet, "/ui/month?year=2024&month=5", nil))
	if !strings.Contains(rr.Body.String(), "No total recorded") {
		t.Errorf("empty month should say so: %s", rr.Body.String())
	}

	rr = env.do(httptest.NewRequest(http.MethodGet, "/ui/month?year=abc", nil))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad year status=%d", rr.Code)
	}

	rr = env.do(httptest.NewRequest(http.MethodGet, "/ui/year?year=2024", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("year status=%d", rr.Code)
	}
	body = rr.Body.String()
	if !strings.Contains(body, "February") || !strings.Contains(body, "no data") || !strings.Contains(body, "₩12,000") {
		t.Errorf("unexpected year body %s", body)
	}
}

func TestReceiptImageAndExport(t *testing.T) {
	env := newTestEnv(t)
	key := "receipts/2024/02/2024_02_100_20240201_000000_000001.jpg"
	env.seed(t, key)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/receipts/image?key="+url.QueryEscape(key), nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "img" {
		t.Fatalf("image status=%d body=%q", rr.Code, rr.Body.String())
	}

	rr = env.do(httptest.NewRequest(http.MethodGet, "/receipts/image?key=secrets/creds.json", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("non-receipt key status=%d", rr.Code)
	}

	rr = env.do(httptest.NewRequest(http.MethodGet, "/export/year.xlsx?year=2024", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("export status=%d", rr.Code)
	}
	if rr.Header().Get("Content-Type") != xlsxContentType {
		t.Errorf("unexpected content type %s", rr.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")) {
		t.Errorf("export body is not a zip archive")
	}
}

func TestPostRateLimited(t *testing.T) {
	env := newTestEnvWithLimit(t, 1)

	values := url.Values{"year": {"2024"}, "month": {"2"}}
	if rr := env.do(formRequest("/periods/recalculate", values)); rr.Code != http.StatusOK {
		t.Fatalf("first request status=%d", rr.Code)
	}
	rr := env.do(formRequest("/periods/recalculate", values))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status=%d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	// GETs are not limited.
	if rr := env.do(httptest.NewRequest(http.MethodGet, "/ui/year?year=2024", nil)); rr.Code != http.StatusOK {
		t.Fatalf("GET should not be limited, got %d", rr.Code)
	}
}
