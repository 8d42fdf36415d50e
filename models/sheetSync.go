package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual    = "manual"
	SyncTriggeredScheduled = "scheduled"
	SyncTriggeredResync    = "resync"
)

const (
	SyncPhaseMapping  = "mapping"
	SyncPhaseAddition = "addition"
	SyncPhaseUpdate   = "update"
	SyncPhaseDeletion = "deletion"
)

// SheetSyncRun is the immutable log entry for one orchestrator invocation.
// It is created when a run is triggered and finalized exactly once; every
// run produces one, even when aborted early.
type SheetSyncRun struct {
	ID          uint   `gorm:"primary_key" json:"id"`
	Status      string `gorm:"size:20;not null" json:"status"`
	State       string `gorm:"size:30" json:"state"`
	TriggeredBy string `gorm:"size:20" json:"triggered_by"`
	// BusinessKey restricts the run to a single seller number (targeted
	// resync). Empty means full corpus.
	BusinessKey       string     `gorm:"size:30" json:"business_key"`
	Added             int        `json:"added"`
	Updated           int        `json:"updated"`
	Deleted           int        `json:"deleted"`
	ErrorCount        int        `json:"error_count"`
	ManualReviewCount int        `json:"manual_review_count"`
	StatsJSON         []byte     `gorm:"type:json" json:"stats"`
	ReportURL         string     `gorm:"size:255" json:"report_url"`
	StartedAt         *time.Time `json:"started_at"`
	FinishedAt        *time.Time `json:"finished_at"`
	DurationMs        int64      `json:"duration_ms"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SheetSyncError is one per-record failure inside a run. Per-record errors
// never abort the batch; they are recorded here and in the run counts.
type SheetSyncError struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	SyncRunId   uint      `gorm:"index;not null" json:"sync_run_id"`
	BusinessKey string    `gorm:"size:30" json:"business_key"`
	Phase       string    `gorm:"size:20" json:"phase"`
	ErrorKind   string    `gorm:"size:30" json:"error_kind"`
	Message     string    `gorm:"type:text" json:"message"`
	Retryable   bool      `gorm:"default:false" json:"retryable"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// SellerDeletionLog is the restorable audit entry written atomically with
// every soft delete. At most one open (non-recovered) entry exists per
// seller number; it is never deleted, only stamped by recovery.
type SellerDeletionLog struct {
	ID                uint       `gorm:"primary_key" json:"id"`
	SellerId          int        `gorm:"index;not null" json:"seller_id"`
	SellerNumber      string     `gorm:"index;size:30;not null" json:"seller_number"`
	DeletedAt         time.Time  `gorm:"not null" json:"deleted_at"`
	DeletedBy         string     `gorm:"size:100" json:"deleted_by"`
	Reason            string     `gorm:"size:255" json:"reason"`
	SnapshotJSON      []byte     `gorm:"type:json" json:"snapshot"`
	PropertiesDeleted int        `json:"properties_deleted"`
	CanRecover        *bool      `gorm:"not null;default:true" json:"can_recover"`
	RecoveredAt       *time.Time `json:"recovered_at"`
	RecoveredBy       string     `gorm:"size:100" json:"recovered_by"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (l *SellerDeletionLog) IsOpen() bool {
	return l.RecoveredAt == nil
}

// GetOpenDeletionLog returns the open (non-recovered) audit entry for a
// seller number, or (nil, nil) when there is none.
func GetOpenDeletionLog(ctx context.Context, db *gorm.DB, sellerNumber string) (*SellerDeletionLog, error) {
	var entry SellerDeletionLog
	err := db.WithContext(ctx).
		Where("seller_number = ? AND recovered_at IS NULL", sellerNumber).
		Order("id DESC").
		Take(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}
