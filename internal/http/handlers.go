package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"receipts/internal/blobstore"
	"receipts/internal/core"
	applog "receipts/internal/log"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type receiptView struct {
	Key    string
	Amount int64
	Known  bool
	URL    string
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks templates and the record store.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			checks["storage"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["storage"] = "ok"
		}
	} else {
		checks["storage"] = "ok"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
	}

	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	now := s.now()
	sel, err := ParseSelection(r.URL.Query(), now)
	if err != nil {
		sel = Selection{Period: core.DefaultPeriod(now)}
	}
	data := struct {
		Years    []int
		Months   []int
		Selected core.Period
	}{
		Years:    yearOptions(now),
		Months:   []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		Selected: sel.Period,
	}
	s.render(w, r, "index.html", data)
}

// handleMonth renders the aggregate and the receipt grid of one period.
func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	sel, err := ParseSelection(r.URL.Query(), s.now())
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	agg, err := s.history.GetAggregate(ctx, sel.Period)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read aggregate",
			applog.FieldYear, sel.Period.Year,
			applog.FieldMonth, sel.Period.Month,
			applog.FieldError, err)
		InternalServerError("Could not load the monthly total").Write(w)
		return
	}
	list, err := s.history.ListReceipts(ctx, sel.Period)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to list receipts",
			applog.FieldYear, sel.Period.Year,
			applog.FieldMonth, sel.Period.Month,
			applog.FieldError, err)
		InternalServerError("Could not list receipts").Write(w)
		return
	}

	views := make([]receiptView, 0, len(list))
	for _, rc := range list {
		views = append(views, receiptView{
			Key:    rc.Key,
			Amount: rc.Amount,
			Known:  rc.Known,
			URL:    s.history.ReceiptURL(ctx, rc.Key),
		})
	}

	s.render(w, r, "month.html", struct {
		Period    core.Period
		Aggregate *core.Aggregate
		Receipts  []receiptView
		Editable  bool
	}{
		Period:    sel.Period,
		Aggregate: agg,
		Receipts:  views,
		Editable:  r.URL.Query().Get("edit") == "1",
	})
}

func (s *Server) handleYear(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	year, err := ParseYear(r.URL.Query(), s.now())
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	sum, err := s.history.YearSummary(ctx, year)
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to build year summary",
			applog.FieldYear, year,
			applog.FieldError, err)
		InternalServerError("Could not load the yearly summary").Write(w)
		return
	}
	s.render(w, r, "year.html", sum)
}

func (s *Server) handleReceiptImage(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	key := sanitizeInput(r.URL.Query().Get("key"))
	if key == "" {
		BadRequestError("Missing receipt key").Write(w)
		return
	}
	data, err := s.history.ReceiptImage(ctx, key)
	if errors.Is(err, blobstore.ErrNotFound) {
		NotFoundError("Receipt not found").Write(w)
		return
	}
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to read receipt image",
			applog.FieldReceiptKey, key,
			applog.FieldError, err)
		InternalServerError("Could not load the receipt").Write(w)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(data)
	}
}

func (s *Server) handleExportYear(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	year, err := ParseYear(r.URL.Query(), s.now())
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	data, err := s.exporter.YearXLSX(ctx, year)
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to export year",
			applog.FieldYear, year,
			applog.FieldError, err)
		InternalServerError("Could not export the workbook").Write(w)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="receipts-%d.xlsx"`, year))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// statusFor maps service errors to a response status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidYear),
		errors.Is(err, core.ErrInvalidMonth),
		errors.Is(err, core.ErrKeyOutsidePeriod),
		errors.Is(err, core.ErrNegativeAmount),
		errors.Is(err, core.ErrEmptyImage),
		errors.Is(err, ErrNoUploads),
		errors.Is(err, ErrUnsupportedFile):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
