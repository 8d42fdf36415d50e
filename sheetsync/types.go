package sheetsync

import (
	"encoding/json"
	"time"

	"github.com/realcrm/realty_backend/models"
)

type TriggerSyncRequest struct {
	// SellerNumber restricts the run to one record.
	SellerNumber string `json:"sellerNumber"`
}

type RecoverRequest struct {
	SellerNumber string `json:"sellerNumber" binding:"required"`
}

type StatusResponse struct {
	Enabled             bool             `json:"enabled"`
	DeletionSyncEnabled bool             `json:"deletionSyncEnabled"`
	StrictValidation    bool             `json:"strictValidation"`
	LastRun             *SyncRunResponse `json:"lastRun,omitempty"`
}

type SyncRunResponse struct {
	ID                uint      `json:"id"`
	Status            string    `json:"status"`
	State             string    `json:"state"`
	TriggeredBy       string    `json:"triggeredBy"`
	SellerNumber      string    `json:"sellerNumber,omitempty"`
	Added             int       `json:"added"`
	Updated           int       `json:"updated"`
	Deleted           int       `json:"deleted"`
	ErrorCount        int       `json:"errorCount"`
	ManualReviewCount int       `json:"manualReviewCount"`
	ReportURL         string    `json:"reportUrl,omitempty"`
	StartedAt         *string   `json:"startedAt"`
	FinishedAt        *string   `json:"finishedAt"`
	DurationMs        int64     `json:"durationMs"`
	Stats             *RunStats `json:"stats,omitempty"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

type SyncRunDetailResponse struct {
	SyncRunResponse
	Errors []SyncErrorResponse `json:"errors"`
}

type SyncErrorResponse struct {
	ID           uint   `json:"id"`
	SellerNumber string `json:"sellerNumber"`
	Phase        string `json:"phase"`
	ErrorKind    string `json:"errorKind"`
	Message      string `json:"message"`
	Retryable    bool   `json:"retryable"`
}

type DeletionLogResponse struct {
	Items []DeletionLogEntry `json:"items"`
}

type DeletionLogEntry struct {
	ID                uint    `json:"id"`
	SellerNumber      string  `json:"sellerNumber"`
	DeletedAt         string  `json:"deletedAt"`
	DeletedBy         string  `json:"deletedBy"`
	Reason            string  `json:"reason"`
	PropertiesDeleted int     `json:"propertiesDeleted"`
	CanRecover        bool    `json:"canRecover"`
	RecoveredAt       *string `json:"recoveredAt"`
	RecoveredBy       string  `json:"recoveredBy,omitempty"`
}

func mapRunToResponse(run models.SheetSyncRun, withStats bool) SyncRunResponse {
	resp := SyncRunResponse{
		ID:                run.ID,
		Status:            run.Status,
		State:             run.State,
		TriggeredBy:       run.TriggeredBy,
		SellerNumber:      run.BusinessKey,
		Added:             run.Added,
		Updated:           run.Updated,
		Deleted:           run.Deleted,
		ErrorCount:        run.ErrorCount,
		ManualReviewCount: run.ManualReviewCount,
		ReportURL:         run.ReportURL,
		StartedAt:         formatTime(run.StartedAt),
		FinishedAt:        formatTime(run.FinishedAt),
		DurationMs:        run.DurationMs,
	}
	if withStats && len(run.StatsJSON) > 0 {
		var stats RunStats
		if err := json.Unmarshal(run.StatsJSON, &stats); err == nil {
			resp.Stats = &stats
		}
	}
	return resp
}

func mapSyncErrors(rows []models.SheetSyncError) []SyncErrorResponse {
	out := make([]SyncErrorResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, SyncErrorResponse{
			ID:           row.ID,
			SellerNumber: row.BusinessKey,
			Phase:        row.Phase,
			ErrorKind:    row.ErrorKind,
			Message:      row.Message,
			Retryable:    row.Retryable,
		})
	}
	return out
}

func mapDeletionLog(rows []models.SellerDeletionLog) []DeletionLogEntry {
	out := make([]DeletionLogEntry, 0, len(rows))
	for _, row := range rows {
		canRecover := row.CanRecover == nil || *row.CanRecover
		deletedAt := row.DeletedAt
		out = append(out, DeletionLogEntry{
			ID:                row.ID,
			SellerNumber:      row.SellerNumber,
			DeletedAt:         deletedAt.UTC().Format(time.RFC3339),
			DeletedBy:         row.DeletedBy,
			Reason:            row.Reason,
			PropertiesDeleted: row.PropertiesDeleted,
			CanRecover:        canRecover,
			RecoveredAt:       formatTime(row.RecoveredAt),
			RecoveredBy:       row.RecoveredBy,
		})
	}
	return out
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
