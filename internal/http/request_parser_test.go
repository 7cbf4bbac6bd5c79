package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"receipts/internal/core"
)

func TestParseSelection(t *testing.T) {
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		values  url.Values
		want    Selection
		wantErr error
	}{
		{
			name:   "defaults to previous month across a year boundary",
			values: url.Values{},
			want:   Selection{Period: core.Period{Year: 2023, Month: 12}},
		},
		{
			name:   "explicit period and key",
			values: url.Values{"year": {"2024"}, "month": {" 6 "}, "key": {" receipts/2024/06/x.jpg\x00"}},
			want:   Selection{Period: core.Period{Year: 2024, Month: 6}, Key: "receipts/2024/06/x.jpg"},
		},
		{
			name:   "only month",
			values: url.Values{"month": {"3"}},
			want:   Selection{Period: core.Period{Year: 2023, Month: 3}},
		},
		{
			name:    "month out of range",
			values:  url.Values{"year": {"2024"}, "month": {"13"}},
			wantErr: core.ErrInvalidMonth,
		},
		{
			name:    "year zero",
			values:  url.Values{"year": {"0"}, "month": {"1"}},
			wantErr: core.ErrInvalidYear,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSelection(tt.values, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseSelection() = %+v, want %+v", got, tt.want)
			}
		})
	}

	if _, err := ParseSelection(url.Values{"month": {"abc"}}, now); err == nil {
		t.Error("non-numeric month should be rejected")
	}
}

func TestParseYear(t *testing.T) {
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	if y, err := ParseYear(url.Values{}, now); err != nil || y != 2023 {
		t.Fatalf("default year = %d, %v", y, err)
	}
	if y, err := ParseYear(url.Values{"year": {"2025"}}, now); err != nil || y != 2025 {
		t.Fatalf("explicit year = %d, %v", y, err)
	}
	if _, err := ParseYear(url.Values{"year": {"-1"}}, now); !errors.Is(err, core.ErrInvalidYear) {
		t.Fatalf("expected ErrInvalidYear, got %v", err)
	}
}

func TestParseUploads(t *testing.T) {
	req := multipartRequest(t, "/periods/receipts", map[string]string{"year": "2024"},
		map[string]string{"../../etc/a.JPG": "total=1"})
	uploads, err := ParseUploads(httptest.NewRecorder(), req, 1<<20)
	if err != nil {
		t.Fatalf("ParseUploads: %v", err)
	}
	if len(uploads) != 1 || uploads[0].Filename != "a.JPG" || string(uploads[0].Data) != "total=1" {
		t.Fatalf("unexpected uploads %+v", uploads)
	}
	if req.Form.Get("year") != "2024" {
		t.Errorf("form values should be parsed alongside files")
	}

	req = multipartRequest(t, "/periods/receipts", nil, nil)
	if _, err := ParseUploads(httptest.NewRecorder(), req, 1<<20); !errors.Is(err, ErrNoUploads) {
		t.Fatalf("expected ErrNoUploads, got %v", err)
	}
}

func TestRequireMethod(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if resp := RequirePOST(req); resp == nil {
		t.Fatal("GET should be rejected by RequirePOST")
	} else {
		rr := httptest.NewRecorder()
		resp.Write(rr)
		if rr.Code != http.StatusMethodNotAllowed || rr.Header().Get("Allow") != "POST" {
			t.Errorf("unexpected response %d %q", rr.Code, rr.Header().Get("Allow"))
		}
	}
	if resp := RequireGET(req); resp != nil {
		t.Error("GET should pass RequireGET")
	}
	if resp := RequireGET(httptest.NewRequest(http.MethodHead, "/", nil)); resp != nil {
		t.Error("HEAD should pass RequireGET")
	}
}
