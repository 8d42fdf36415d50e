package sheetsync

import (
	"context"
	"os"
	"strings"

	"github.com/realcrm/realty_backend/utils"
)

// Source is the abstract spreadsheet the corpus of record is read from.
// The first row of the read range is the header row; headers are free text
// and may change between runs, so the mapping table is the contract, not
// the positional order.
type Source interface {
	// Authenticate establishes credentials. An authentication failure is a
	// run-level failure.
	Authenticate(ctx context.Context) error
	// ReadAll materializes the whole corpus: header row plus every data row.
	ReadAll(ctx context.Context) (headers []string, rows [][]string, err error)
	// ReadRange reads a small slice (header checks, diagnostics).
	ReadRange(ctx context.Context, rangeSpec string) ([][]string, error)
}

// NewSourceFromEnv picks the configured source implementation.
//
// Env:
// - SHEET_SOURCE=sheets|xlsx (default sheets)
// - sheets: SHEET_SPREADSHEET_ID, SHEET_WORKSHEET_NAME, SHEET_CREDENTIALS_FILE
// - xlsx: SHEET_XLSX_PATH (path or URL), SHEET_WORKSHEET_NAME
func NewSourceFromEnv() (Source, error) {
	kind := strings.ToLower(strings.TrimSpace(os.Getenv("SHEET_SOURCE")))
	switch kind {
	case "", "sheets":
		return NewSheetsSourceFromEnv()
	case "xlsx":
		return NewXlsxSourceFromEnv()
	}
	return nil, utils.KindErrorf(utils.ErrorKindFatal, "unknown SHEET_SOURCE %q", kind)
}

func worksheetNameFromEnv() string {
	name := strings.TrimSpace(os.Getenv("SHEET_WORKSHEET_NAME"))
	if name == "" {
		name = "Sheet1"
	}
	return name
}
