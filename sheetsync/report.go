package sheetsync

import (
	"context"
	"fmt"

	"github.com/realcrm/realty_backend/models"
	"github.com/realcrm/realty_backend/utils"
	"github.com/xuri/excelize/v2"
)

const reportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// writeRunReport renders the run summary, per-record errors and manual
// review queue into a workbook and uploads it to the report bucket.
func writeRunReport(ctx context.Context, bucket string, run *models.SheetSyncRun, stats *RunStats, errs []RecordError) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "Summary"
	f.SetSheetName("Sheet1", summarySheet)
	summary := [][]interface{}{
		{"Run ID", run.ID},
		{"Status", run.Status},
		{"Triggered by", run.TriggeredBy},
		{"Source rows", stats.SourceRows},
		{"Skipped rows", stats.SkippedRows},
		{"Added", stats.Added},
		{"Updated", stats.Updated},
		{"Deleted", stats.Deleted},
		{"Errors", len(errs)},
		{"Manual review", len(stats.ManualReview)},
		{"Duration (ms)", run.DurationMs},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return "", err
		}
	}

	if len(errs) > 0 {
		sheet := "Errors"
		if _, err := f.NewSheet(sheet); err != nil {
			return "", err
		}
		header := []interface{}{"Seller No.", "Phase", "Kind", "Message"}
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return "", err
		}
		for i, e := range errs {
			cell, _ := excelize.CoordinatesToCellName(1, i+2)
			row := []interface{}{e.BusinessKey, e.Phase, string(e.Kind), e.Message}
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				return "", err
			}
		}
	}

	if len(stats.ManualReview) > 0 {
		sheet := "Manual Review"
		if _, err := f.NewSheet(sheet); err != nil {
			return "", err
		}
		header := []interface{}{"Seller No.", "Reason"}
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return "", err
		}
		for i, item := range stats.ManualReview {
			cell, _ := excelize.CoordinatesToCellName(1, i+2)
			row := []interface{}{item.BusinessKey, item.Reason}
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				return "", err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return "", err
	}
	objectName := fmt.Sprintf("sync-reports/run-%d-%s.xlsx", run.ID, utils.GenerateUniqueFilename())
	return utils.UploadObjectToGCS(ctx, bucket, objectName, reportContentType, buf)
}
