// Package google writes monthly totals to a Google spreadsheet through the
// Sheets v4 API using service account credentials.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"receipts/internal/core"
	applog "receipts/internal/log"
	"receipts/internal/sheets"
)

var _ sheets.MonthWriter = (*Client)(nil)

// Config selects the spreadsheet and credentials. CredentialsJSON wins over
// CredentialsFile.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	log           *slog.Logger
	knownSheets   map[string]bool
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName, logger), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetBase string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetBase,
		log:           logger.With(applog.FieldComponent, applog.ComponentSheets),
		knownSheets:   make(map[string]bool),
	}
}

func credentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// WriteMonth writes the header and the period's row, or clears the row when
// agg is nil. The yearly tab is created on first use.
func (c *Client) WriteMonth(ctx context.Context, p core.Period, agg *core.Aggregate) error {
	if err := p.Validate(); err != nil {
		return err
	}
	sheet := sheets.YearSheetName(c.sheetBase, p.Year)
	if err := c.ensureSheet(ctx, sheet); err != nil {
		return err
	}
	row := sheets.RowNumber(p.Month)

	if agg == nil {
		rng := fmt.Sprintf("%s!A%d:D%d", quote(sheet), row, row)
		_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
			Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("clear %s: %w", rng, err)
		}
		c.log.InfoContext(ctx, "Cleared month row", "range", rng)
		return nil
	}

	req := &gsheet.BatchUpdateValuesRequest{
		ValueInputOption: "USER_ENTERED",
		Data: []*gsheet.ValueRange{
			{Range: fmt.Sprintf("%s!A1:D1", quote(sheet)), Values: [][]any{sheets.Header}},
			{Range: fmt.Sprintf("%s!A%d:D%d", quote(sheet), row, row), Values: [][]any{sheets.Row(*agg)}},
		},
	}
	if _, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	c.log.InfoContext(ctx, "Wrote month row",
		"sheet", sheet,
		applog.FieldMonth, p.Month,
		applog.FieldTotalAmount, agg.TotalAmount)
	return nil
}

// ensureSheet adds the tab if the spreadsheet does not have it yet.
func (c *Client) ensureSheet(ctx context.Context, name string) error {
	if c.knownSheets[name] {
		return nil
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			c.knownSheets[s.Properties.Title] = true
		}
	}
	if c.knownSheets[name] {
		return nil
	}
	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: name}},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("add sheet %q: %w", name, err)
	}
	c.log.InfoContext(ctx, "Created yearly sheet", "sheet", name)
	c.knownSheets[name] = true
	return nil
}

// quote wraps a sheet name for A1 notation.
func quote(sheet string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}
