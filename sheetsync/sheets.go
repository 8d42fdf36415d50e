package sheetsync

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/realcrm/realty_backend/utils"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsSource reads the corpus from a Google Sheets worksheet. The Sheets
// API returns the requested range in one response, so paging of the backing
// API is hidden behind ReadAll.
type SheetsSource struct {
	spreadsheetID   string
	worksheetName   string
	credentialsFile string
	svc             *sheets.Service
}

func NewSheetsSourceFromEnv() (*SheetsSource, error) {
	s := &SheetsSource{
		spreadsheetID:   strings.TrimSpace(os.Getenv("SHEET_SPREADSHEET_ID")),
		worksheetName:   worksheetNameFromEnv(),
		credentialsFile: strings.TrimSpace(os.Getenv("SHEET_CREDENTIALS_FILE")),
	}
	if s.spreadsheetID == "" {
		return nil, utils.KindErrorf(utils.ErrorKindFatal, "SHEET_SPREADSHEET_ID is required")
	}
	return s, nil
}

func (s *SheetsSource) Authenticate(ctx context.Context) error {
	if s.svc != nil {
		return nil
	}

	var (
		svc *sheets.Service
		err error
	)
	if s.credentialsFile != "" {
		if _, statErr := os.Stat(s.credentialsFile); statErr != nil {
			return utils.KindErrorf(utils.ErrorKindFatal, "sheets credentials file %q: %v", s.credentialsFile, statErr)
		}
		svc, err = sheets.NewService(ctx,
			option.WithCredentialsFile(s.credentialsFile),
			option.WithScopes(sheets.SpreadsheetsReadonlyScope),
		)
	} else {
		// Application Default Credentials (Cloud Run service account or
		// GOOGLE_APPLICATION_CREDENTIALS).
		svc, err = sheets.NewService(ctx, option.WithScopes(sheets.SpreadsheetsReadonlyScope))
	}
	if err != nil {
		return utils.WrapError(utils.ErrorKindTransientIO, fmt.Errorf("sheets auth: %w", err))
	}
	s.svc = svc
	return nil
}

func (s *SheetsSource) ReadAll(ctx context.Context) ([]string, [][]string, error) {
	grid, err := s.readRange(ctx, s.worksheetName)
	if err != nil {
		return nil, nil, err
	}
	if len(grid) == 0 {
		return nil, nil, utils.KindErrorf(utils.ErrorKindValidation, "worksheet %q is empty", s.worksheetName)
	}
	return grid[0], grid[1:], nil
}

func (s *SheetsSource) ReadRange(ctx context.Context, rangeSpec string) ([][]string, error) {
	return s.readRange(ctx, fmt.Sprintf("%s!%s", s.worksheetName, rangeSpec))
}

func (s *SheetsSource) readRange(ctx context.Context, readRange string) ([][]string, error) {
	if err := s.Authenticate(ctx); err != nil {
		return nil, err
	}

	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, readRange).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).Do()
	if err != nil {
		return nil, utils.WrapError(utils.ErrorKindTransientIO, fmt.Errorf("sheets read %q: %w", readRange, err))
	}

	grid := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			cells = append(cells, cellString(cell))
		}
		grid = append(grid, cells)
	}
	return grid, nil
}

func cellString(cell interface{}) string {
	if cell == nil {
		return ""
	}
	if s, ok := cell.(string); ok {
		return s
	}
	return fmt.Sprint(cell)
}
