package core

import (
	"errors"
	"fmt"
	"time"
)

type (
	// Period identifies one calendar month.
	Period struct {
		Year  int
		Month int
	}

	// Aggregate is the persisted monthly total for a Period.
	Aggregate struct {
		Year         int
		Month        int
		TotalAmount  int64
		ReceiptCount int
		UpdatedAt    time.Time
	}

	// Receipt is a stored receipt key together with the amount parsed from it.
	Receipt struct {
		Key    string
		Amount int64
		Known  bool
	}

	// MonthSummary is one row of a yearly view. Aggregate is nil when no
	// record exists for the month.
	MonthSummary struct {
		Month     int
		Aggregate *Aggregate
	}

	YearSummary struct {
		Year         int
		Months       []MonthSummary
		TotalAmount  int64
		ReceiptCount int
	}
)

// UpdatedAtLayout is the ISO-8601 UTC form stored in aggregate records.
const UpdatedAtLayout = "2006-01-02T15:04:05.000000Z"

var (
	ErrInvalidYear      = errors.New("invalid year")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrNegativeAmount   = errors.New("negative amount")
	ErrEmptyImage       = errors.New("empty image")
	ErrKeyOutsidePeriod = errors.New("receipt key outside period")
)

func NewPeriod(year, month int) (Period, error) {
	p := Period{Year: year, Month: month}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

func (p Period) Validate() error {
	if p.Year <= 0 || p.Year > 9999 {
		return ErrInvalidYear
	}
	if p.Month < 1 || p.Month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Prefix returns the blob key prefix shared by every receipt of the period.
func (p Period) Prefix() string {
	return fmt.Sprintf("receipts/%04d/%02d/", p.Year, p.Month)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// DefaultPeriod returns the calendar month before now.
func DefaultPeriod(now time.Time) Period {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	prev := first.AddDate(0, -1, 0)
	return Period{Year: prev.Year(), Month: int(prev.Month())}
}

func (a Aggregate) Period() Period {
	return Period{Year: a.Year, Month: a.Month}
}

// UpdatedAtString renders UpdatedAt in UpdatedAtLayout.
func (a Aggregate) UpdatedAtString() string {
	return a.UpdatedAt.UTC().Format(UpdatedAtLayout)
}

// ParseUpdatedAt accepts UpdatedAtLayout and falls back to RFC 3339.
func ParseUpdatedAt(s string) (time.Time, error) {
	if t, err := time.Parse(UpdatedAtLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse updated_at %q: %w", s, err)
	}
	return t.UTC(), nil
}
