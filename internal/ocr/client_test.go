package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	applog "receipts/internal/log"
)

func TestParseTotal(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"15000", 15000},
		{"Total: 15000 won", 15000},
		{"12 items, 34500", 12},
		{"no number here", 0},
		{"", 0},
		{"99999999999999999999999", 0},
		{"1000000000000", MaxTotal},
		{"1000000000001", 0},
		{"9000000000000000000", 0},
	}
	for _, tc := range cases {
		if got := ParseTotal(tc.in); got != tc.want {
			t.Fatalf("ParseTotal(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestClientExtractTotal(t *testing.T) {
	image := []byte{0xff, 0xd8, 0xff}
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer hf_test" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":" 40000 "}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "hf_test", BaseURL: srv.URL + "/v1/"}, nil)
	total, err := c.ExtractTotal(context.Background(), image)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if total != 40000 {
		t.Fatalf("expected 40000, got %d", total)
	}

	if got.Model != DefaultModel {
		t.Fatalf("expected default model, got %q", got.Model)
	}
	if len(got.Messages) != 1 || len(got.Messages[0].Content) != 2 {
		t.Fatalf("unexpected message shape %+v", got.Messages)
	}
	part := got.Messages[0].Content[1]
	want := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)
	if part.Type != "image_url" || part.ImageURL == nil || part.ImageURL.URL != want {
		t.Fatalf("unexpected image part %+v", part)
	}
}

func TestClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	if _, err := c.ExtractTotal(context.Background(), []byte("x")); err == nil {
		t.Fatalf("expected error on 503")
	}
}

func TestClientNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	if _, err := c.ExtractTotal(context.Background(), []byte("x")); err == nil {
		t.Fatalf("expected error without choices")
	}
}

func TestUnconfigured(t *testing.T) {
	n, err := Unconfigured.ExtractTotal(context.Background(), []byte("img"))
	if !errors.Is(err, ErrNotConfigured) || n != 0 {
		t.Fatalf("Unconfigured = %d, %v", n, err)
	}
}

func TestClientLogsWithFieldNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"12000"}}]}`))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := applog.New(applog.Config{Level: slog.LevelDebug, Component: applog.ComponentOCR, Output: &buf})
	c := NewClient(Config{BaseURL: srv.URL}, logger)
	if _, err := c.ExtractTotal(context.Background(), []byte("img")); err != nil {
		t.Fatalf("extract: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		`msg="Extracting receipt total"`,
		`msg="Receipt total extracted"`,
		applog.FieldRequestID + "=",
		applog.FieldAmount + "=12000",
		applog.FieldDuration + "=",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "req_id") || strings.Contains(out, "ocr.extract") {
		t.Fatalf("unexpected legacy log keys:\n%s", out)
	}
}
