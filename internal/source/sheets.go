package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"shipment_parser/internal/sheet"
)

// SheetsSource fetches rows from one worksheet of a Google spreadsheet
// using a service-account credential.
type SheetsSource struct {
	SpreadsheetID string
	Worksheet     string

	svc *sheetsapi.Service
}

// NewSheetsSource authenticates with the service-account JSON payload
// and prepares a read-only client. No network call happens until Fetch.
func NewSheetsSource(ctx context.Context, spreadsheetID, worksheet string, credentialJSON []byte) (*SheetsSource, error) {
	svc, err := sheetsapi.NewService(ctx,
		option.WithCredentialsJSON(credentialJSON),
		option.WithScopes(sheetsapi.SpreadsheetsReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return &SheetsSource{
		SpreadsheetID: spreadsheetID,
		Worksheet:     worksheet,
		svc:           svc,
	}, nil
}

// Fetch resolves the worksheet by title, then returns every row on it.
// A missing spreadsheet or worksheet maps to the package sentinels so
// callers can report the configured identifiers.
func (s *SheetsSource) Fetch(ctx context.Context) (*sheet.Table, error) {
	meta, err := s.svc.Spreadsheets.Get(s.SpreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrSpreadsheetNotFound, s.SpreadsheetID)
		}
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}

	found := false
	for _, ws := range meta.Sheets {
		if ws.Properties != nil && ws.Properties.Title == s.Worksheet {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrWorksheetNotFound, s.Worksheet)
	}

	resp, err := s.svc.Spreadsheets.Values.Get(s.SpreadsheetID, rangeRef(s.Worksheet)).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetch worksheet values: %w", err)
	}

	table := &sheet.Table{Worksheet: s.Worksheet, FetchedAt: time.Now().UTC()}
	for i, raw := range resp.Values {
		cells := make([]string, len(raw))
		for j, v := range raw {
			cells[j] = sheet.CellString(v)
		}
		table.Rows = append(table.Rows, sheet.Row{Index: i + 1, Cells: cells})
	}
	return table, nil
}

// rangeRef quotes the worksheet title for A1 notation, which is required
// whenever the title contains spaces or punctuation.
func rangeRef(worksheet string) string {
	return "'" + strings.ReplaceAll(worksheet, "'", "''") + "'"
}
