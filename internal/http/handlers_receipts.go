package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"receipts/internal/core"
	applog "receipts/internal/log"
	"receipts/internal/services"
)

type batchView struct {
	Title  string
	Result *services.BatchResult
}

// handleReplacePeriod removes every receipt of the period and stores the
// uploads in their place.
func (s *Server) handleReplacePeriod(w http.ResponseWriter, r *http.Request) {
	s.handleBatch(w, r, "Period recalculated", s.batches.ReplacePeriod)
}

// handleAddReceipts stores the uploads next to the existing receipts.
func (s *Server) handleAddReceipts(w http.ResponseWriter, r *http.Request) {
	s.handleBatch(w, r, "Receipts added", s.batches.AddReceipts)
}

type batchFunc func(ctx context.Context, p core.Period, uploads []services.Upload) (*services.BatchResult, error)

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request, title string, run batchFunc) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	uploads, err := ParseUploads(w, r, s.maxUpload)
	if err != nil {
		logger.WarnContext(ctx, "Rejected upload", applog.FieldError, err)
		if errors.Is(err, ErrUploadTooLarge) {
			RequestTooLargeError(uploadMessage(err)).Write(w)
			return
		}
		ErrorResponse(statusFor(err), uploadMessage(err)).Write(w)
		return
	}
	sel, err := ParseSelection(r.Form, s.now())
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	res, err := run(ctx, sel.Period, uploads)
	if err != nil {
		logger.ErrorContext(ctx, "Batch failed",
			applog.FieldYear, sel.Period.Year,
			applog.FieldMonth, sel.Period.Month,
			applog.FieldError, err)
		ErrorResponse(statusFor(err), "Could not update the period: "+err.Error()).Write(w)
		return
	}

	body, err := s.renderString("batch_result.html", batchView{Title: title, Result: res})
	if err != nil {
		logger.ErrorContext(ctx, "Template execution failed", applog.FieldError, err)
		InternalServerError("Could not render the result").Write(w)
		return
	}

	b := NewHTMXResponse().
		TriggerPeriodUpdated(sel.Period.Year, sel.Period.Month).
		BodyHTML(body)
	if failed := len(res.Failed()); failed > 0 {
		b.TriggerWarningNotification(fmt.Sprintf("%d of %d receipts were not recognized", failed, len(res.Items)))
	} else {
		b.TriggerSuccessNotification(fmt.Sprintf("%d receipts saved", res.Stored()))
	}
	b.Write(w)
}

// handleRecalculate reconciles the selected period from its stored receipts.
func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	sel, err := ParseSelection(r.Form, s.now())
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	agg, err := s.reconciler.ReconcileAndPersist(ctx, sel.Period)
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Reconcile failed",
			applog.FieldYear, sel.Period.Year,
			applog.FieldMonth, sel.Period.Month,
			applog.FieldError, err)
		ErrorResponse(statusFor(err), "Could not recalculate the period").Write(w)
		return
	}

	msg := fmt.Sprintf("%s has no receipts", sel.Period)
	if agg != nil {
		msg = fmt.Sprintf("%s total: %s (%d receipts)", sel.Period, formatAmount(agg.TotalAmount), agg.ReceiptCount)
	}
	NewHTMXResponse().
		TriggerPeriodUpdated(sel.Period.Year, sel.Period.Month).
		TriggerSuccessNotification(msg).
		BodyHTML(`<div class="success">` + template.HTMLEscapeString(msg) + `</div>`).
		Write(w)
}

// handleDeleteReceipt removes one receipt and reconciles its period.
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	sel, err := ParseSelection(r.Form, s.now())
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	if sel.Key == "" {
		BadRequestError("Missing receipt key").Write(w)
		return
	}

	res, err := s.batches.RemoveReceipt(ctx, sel.Period, sel.Key)
	if err != nil {
		logger.WarnContext(ctx, "Receipt delete failed",
			applog.FieldReceiptKey, sel.Key,
			applog.FieldError, err)
		ErrorResponse(statusFor(err), "Could not delete the receipt: "+err.Error()).Write(w)
		return
	}
	if !res.Deleted {
		NewHTMXResponse().
			Status(http.StatusBadGateway).
			TriggerPeriodUpdated(sel.Period.Year, sel.Period.Month).
			TriggerErrorNotification("Delete failed").
			BodyHTML(`<div class="error">Delete failed</div>`).
			Write(w)
		return
	}

	msg := "All receipts of the period were deleted"
	if res.Aggregate != nil {
		msg = fmt.Sprintf("Deleted. New total: %s (%d receipts)", formatAmount(res.Aggregate.TotalAmount), res.Aggregate.ReceiptCount)
	}
	NewHTMXResponse().
		TriggerReceiptDeleted(sel.Key).
		TriggerPeriodUpdated(sel.Period.Year, sel.Period.Month).
		TriggerSuccessNotification(msg).
		BodyHTML(`<div class="success">` + template.HTMLEscapeString(msg) + `</div>`).
		Write(w)
}

func uploadMessage(err error) string {
	switch statusFor(err) {
	case http.StatusRequestEntityTooLarge:
		return "The upload is too large"
	case http.StatusUnprocessableEntity:
		return err.Error()
	default:
		return "Malformed upload"
	}
}
