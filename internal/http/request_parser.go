// Package http serves the receipts dashboard.
//
// This file parses the request-scoped selection (period, receipt key) and
// multipart receipt uploads.
package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"receipts/internal/core"
	"receipts/internal/services"
)

// uploadField is the multipart field carrying receipt images.
const uploadField = "receipts"

var (
	ErrNoUploads       = errors.New("upload at least one receipt image")
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrUploadTooLarge  = errors.New("upload too large")
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Selection is what the user picked on the page. It is parsed from every
// request; nothing is kept between requests.
type Selection struct {
	Period core.Period
	Key    string
}

// ParseSelection reads year, month and key from values. Missing year or
// month default to the previous calendar month; present but invalid values
// are an error.
func ParseSelection(values url.Values, now time.Time) (Selection, error) {
	def := core.DefaultPeriod(now)
	year, err := parseIntField(values, "year", def.Year)
	if err != nil {
		return Selection{}, err
	}
	month, err := parseIntField(values, "month", def.Month)
	if err != nil {
		return Selection{}, err
	}
	p, err := core.NewPeriod(year, month)
	if err != nil {
		return Selection{}, err
	}
	return Selection{Period: p, Key: sanitizeInput(values.Get("key"))}, nil
}

// ParseYear reads the year parameter, defaulting to the year of the
// previous calendar month.
func ParseYear(values url.Values, now time.Time) (int, error) {
	year, err := parseIntField(values, "year", core.DefaultPeriod(now).Year)
	if err != nil {
		return 0, err
	}
	if err := (core.Period{Year: year, Month: 1}).Validate(); err != nil {
		return 0, err
	}
	return year, nil
}

func parseIntField(values url.Values, name string, def int) (int, error) {
	v := strings.TrimSpace(values.Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}

// ParseUploads reads the multipart form and returns the receipt images in
// submission order. The body is capped at maxBytes.
func ParseUploads(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]services.Upload, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, ErrUploadTooLarge
		}
		return nil, fmt.Errorf("parse multipart form: %w", err)
	}

	headers := r.MultipartForm.File[uploadField]
	if len(headers) == 0 {
		return nil, ErrNoUploads
	}
	uploads := make([]services.Upload, 0, len(headers))
	for _, fh := range headers {
		name := filepath.Base(sanitizeInput(fh.Filename))
		if !allowedExtensions[strings.ToLower(filepath.Ext(name))] {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, name)
		}
		data, err := readPart(fh)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		uploads = append(uploads, services.Upload{Filename: name, Data: data})
	}
	return uploads, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// RequireMethod checks if the request method matches the expected method(s).
// Returns an error response builder if the method doesn't match.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// RequirePOST is a convenience function for POST-only handlers.
func RequirePOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

// RequireGET is a convenience function for read-only handlers.
func RequireGET(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodGet, http.MethodHead)
}

// ParseFormOrFail parses the request form and returns an error response on failure.
// Returns nil on success.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Malformed request")
	}
	return nil
}
