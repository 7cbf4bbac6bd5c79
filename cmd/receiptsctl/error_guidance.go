package main

import (
	"context"
	"errors"

	"receipts/internal/core"
	"receipts/internal/ocr"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	switch {
	case errors.Is(err, core.ErrInvalidYear), errors.Is(err, core.ErrInvalidMonth):
		lines = append(lines, "hint: periods are given as <year> <month>, e.g. 2024 3.")
	case errors.Is(err, core.ErrKeyOutsidePeriod):
		lines = append(lines, "hint: run `receiptsctl list <year> <month>` to see the keys of a period.")
	case errors.Is(err, ocr.ErrNotConfigured):
		lines = append(lines, "hint: set OCR_API_KEY (or HF_TOKEN) to recognize receipt totals.")
	case errors.Is(err, context.DeadlineExceeded):
		lines = append(lines, "hint: the request timed out; check connectivity to the storage backend.")
	}
	return lines
}
