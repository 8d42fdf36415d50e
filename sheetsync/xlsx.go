package sheetsync

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/realcrm/realty_backend/utils"
	"github.com/xuri/excelize/v2"
)

// XlsxSource reads the corpus from an .xlsx workbook, either a local path
// or a downloadable URL (staff exports dropped into object storage).
type XlsxSource struct {
	location      string
	worksheetName string
}

func NewXlsxSourceFromEnv() (*XlsxSource, error) {
	s := &XlsxSource{
		location:      strings.TrimSpace(os.Getenv("SHEET_XLSX_PATH")),
		worksheetName: worksheetNameFromEnv(),
	}
	if s.location == "" {
		return nil, utils.KindErrorf(utils.ErrorKindFatal, "SHEET_XLSX_PATH is required")
	}
	return s, nil
}

func (s *XlsxSource) Authenticate(ctx context.Context) error {
	// Local files need no credentials; URL access is checked on read.
	return nil
}

func (s *XlsxSource) ReadAll(ctx context.Context) ([]string, [][]string, error) {
	f, err := s.open(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(s.worksheetName)
	if err != nil {
		return nil, nil, utils.KindErrorf(utils.ErrorKindValidation, "unable to read sheet %q: %v", s.worksheetName, err)
	}
	if len(rows) == 0 {
		return nil, nil, utils.KindErrorf(utils.ErrorKindValidation, "worksheet %q is empty", s.worksheetName)
	}
	return rows[0], rows[1:], nil
}

func (s *XlsxSource) ReadRange(ctx context.Context, rangeSpec string) ([][]string, error) {
	// Range reads are only used for header checks; the workbook is small
	// enough to materialize either way.
	headers, rows, err := s.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	return append([][]string{headers}, rows...), nil
}

func (s *XlsxSource) open(ctx context.Context) (*excelize.File, error) {
	if strings.HasPrefix(s.location, "http://") || strings.HasPrefix(s.location, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.location, nil)
		if err != nil {
			return nil, utils.WrapError(utils.ErrorKindFatal, err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, utils.WrapError(utils.ErrorKindTransientIO, fmt.Errorf("failed to download workbook: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, utils.KindErrorf(utils.ErrorKindTransientIO, "failed to download workbook: received status code %d", resp.StatusCode)
		}

		f, err := excelize.OpenReader(resp.Body)
		if err != nil {
			return nil, utils.KindErrorf(utils.ErrorKindValidation, "failed to open workbook: %v", err)
		}
		return f, nil
	}

	f, err := excelize.OpenFile(s.location)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, utils.KindErrorf(utils.ErrorKindFatal, "workbook %q not found", s.location)
		}
		return nil, utils.KindErrorf(utils.ErrorKindValidation, "failed to open workbook: %v", err)
	}
	return f, nil
}
