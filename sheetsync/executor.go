package sheetsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/realcrm/realty_backend/config"
	"github.com/realcrm/realty_backend/models"
	"github.com/realcrm/realty_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	DefaultBatchSize  = 5
	DefaultBatchPause = time.Second

	mysqlErrDuplicateEntry = 1062
)

// SourceRecord is one mapped sheet row queued for insertion.
type SourceRecord struct {
	BusinessKey string
	Values      FieldValues
}

// RecordError is a per-record failure that did not abort the run.
type RecordError struct {
	BusinessKey string
	Phase       string
	Kind        utils.ErrorKind
	Message     string
}

// ReviewItem is a deletion candidate held back for an operator.
type ReviewItem struct {
	BusinessKey string
	Reason      string
}

// PhaseResult accumulates the outcome of one executor phase.
type PhaseResult struct {
	Succeeded int
	Errors    []RecordError
	Review    []ReviewItem
}

// SyncExecutor applies detected changes to the database in small batches
// with a pause in between, so a large sheet cannot monopolise the
// connection pool.
type SyncExecutor struct {
	db         *gorm.DB
	mapper     *RecordMapper
	guard      *DeletionGuard
	logger     *logrus.Logger
	batchSize  int
	batchPause time.Duration
}

func NewSyncExecutor(db *gorm.DB, mapper *RecordMapper, guard *DeletionGuard, logger *logrus.Logger, batchSize int, batchPause time.Duration) *SyncExecutor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchPause < 0 {
		batchPause = DefaultBatchPause
	}
	return &SyncExecutor{
		db:         db,
		mapper:     mapper,
		guard:      guard,
		logger:     logger,
		batchSize:  batchSize,
		batchPause: batchPause,
	}
}

// ExecuteAdditions inserts the new records. A duplicate-key collision means
// another writer created the row since the snapshot; that counts as success.
func (e *SyncExecutor) ExecuteAdditions(ctx context.Context, runId uint, records []SourceRecord) (PhaseResult, error) {
	var result PhaseResult
	for i, rec := range records {
		if err := e.pauseBetweenBatches(ctx, i); err != nil {
			return result, err
		}
		seller := e.mapper.BuildSeller(rec.Values)
		if err := seller.Validate(); err != nil {
			e.recordError(ctx, runId, &result, RecordError{
				BusinessKey: rec.BusinessKey,
				Phase:       models.SyncPhaseAddition,
				Kind:        utils.ErrorKindValidation,
				Message:     err.Error(),
			})
			continue
		}
		err := e.db.WithContext(ctx).Create(seller).Error
		if err != nil {
			if isDuplicateKey(err) {
				e.logger.WithFields(logrus.Fields{
					"seller_number": rec.BusinessKey,
					"sync_run_id":   runId,
				}).Info("seller already exists, skipping insert")
				result.Succeeded++
				continue
			}
			e.recordError(ctx, runId, &result, RecordError{
				BusinessKey: rec.BusinessKey,
				Phase:       models.SyncPhaseAddition,
				Kind:        utils.KindOf(err),
				Message:     err.Error(),
			})
			continue
		}
		result.Succeeded++
	}
	return result, nil
}

// ExecuteUpdates applies the changed fields only. An update that matches
// zero rows means the record vanished mid-run; it is recorded per-record
// and the run continues.
func (e *SyncExecutor) ExecuteUpdates(ctx context.Context, runId uint, candidates []UpdateCandidate, sourceRows map[string]FieldValues) (PhaseResult, error) {
	var result PhaseResult
	for i, cand := range candidates {
		if err := e.pauseBetweenBatches(ctx, i); err != nil {
			return result, err
		}
		values, ok := sourceRows[cand.BusinessKey]
		if !ok {
			continue
		}
		fields := make([]string, 0, len(cand.ChangedFields))
		for field := range cand.ChangedFields {
			fields = append(fields, field)
		}
		updates := e.mapper.UpdateColumns(values, fields)
		if len(updates) == 0 {
			continue
		}
		tx := e.db.WithContext(ctx).Model(&models.Seller{}).
			Where("seller_number = ? AND deleted_at IS NULL", cand.BusinessKey).
			Updates(updates)
		if tx.Error != nil {
			e.recordError(ctx, runId, &result, RecordError{
				BusinessKey: cand.BusinessKey,
				Phase:       models.SyncPhaseUpdate,
				Kind:        utils.KindOf(tx.Error),
				Message:     tx.Error.Error(),
			})
			continue
		}
		if tx.RowsAffected == 0 {
			e.recordError(ctx, runId, &result, RecordError{
				BusinessKey: cand.BusinessKey,
				Phase:       models.SyncPhaseUpdate,
				Kind:        utils.ErrorKindConstraint,
				Message:     "record vanished mid-run, no rows updated",
			})
			continue
		}
		result.Succeeded++
	}
	return result, nil
}

// ExecuteDeletions runs each candidate through the guard and soft-deletes
// the allowed ones. The audit entry and the soft delete commit in one
// transaction; the property cascade runs after commit and only warns on
// failure.
func (e *SyncExecutor) ExecuteDeletions(ctx context.Context, runId uint, keys []string, actor string) (PhaseResult, error) {
	var result PhaseResult
	for i, key := range keys {
		if err := e.pauseBetweenBatches(ctx, i); err != nil {
			return result, err
		}
		seller, err := models.GetSellerByNumber(ctx, e.db, key)
		if err != nil {
			e.recordError(ctx, runId, &result, RecordError{
				BusinessKey: key,
				Phase:       models.SyncPhaseDeletion,
				Kind:        utils.ErrorKindTransientIO,
				Message:     err.Error(),
			})
			continue
		}
		verdict, err := e.guard.Validate(ctx, seller)
		if err != nil {
			e.recordError(ctx, runId, &result, RecordError{
				BusinessKey: key,
				Phase:       models.SyncPhaseDeletion,
				Kind:        utils.KindOf(err),
				Message:     err.Error(),
			})
			continue
		}
		if verdict.RequiresManualReview {
			e.logger.WithFields(logrus.Fields{
				"seller_number": key,
				"reason":        verdict.Reason,
				"sync_run_id":   runId,
			}).Warn("deletion held for manual review")
			result.Review = append(result.Review, ReviewItem{BusinessKey: key, Reason: verdict.Reason})
			continue
		}
		if !verdict.CanDelete {
			// Already gone; treat as satisfied.
			result.Succeeded++
			continue
		}
		if err := e.deleteWithAudit(ctx, seller, actor); err != nil {
			e.recordError(ctx, runId, &result, RecordError{
				BusinessKey: key,
				Phase:       models.SyncPhaseDeletion,
				Kind:        utils.KindOf(err),
				Message:     err.Error(),
			})
			continue
		}
		result.Succeeded++
	}
	return result, nil
}

// deleteWithAudit never soft-deletes without a committed audit entry.
func (e *SyncExecutor) deleteWithAudit(ctx context.Context, seller *models.Seller, actor string) error {
	snapshot, err := seller.Snapshot()
	if err != nil {
		return utils.WrapError(utils.ErrorKindFatal, err)
	}
	var propertyCount int64
	if err := e.db.WithContext(ctx).Model(&models.Property{}).
		Where("seller_id = ? AND deleted_at IS NULL", seller.ID).
		Count(&propertyCount).Error; err != nil {
		return utils.WrapError(utils.ErrorKindTransientIO, err)
	}
	now := time.Now().UTC()
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry := models.SellerDeletionLog{
			SellerId:          seller.ID,
			SellerNumber:      seller.SellerNumber,
			DeletedAt:         now,
			DeletedBy:         actor,
			Reason:            "source row removed",
			SnapshotJSON:      snapshot,
			PropertiesDeleted: int(propertyCount),
			CanRecover:        utils.NewTrue(),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		res := tx.Model(&models.Seller{}).
			Where("id = ? AND deleted_at IS NULL", seller.ID).
			Update("deleted_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("seller %s deleted concurrently", seller.SellerNumber)
		}
		return nil
	})
	if err != nil {
		return utils.WrapError(utils.ErrorKindTransientIO, err)
	}
	// Cascade to listings after commit. A failure here leaves the primary
	// delete intact and is only logged.
	if err := e.db.WithContext(ctx).Model(&models.Property{}).
		Where("seller_id = ? AND deleted_at IS NULL", seller.ID).
		Update("deleted_at", now).Error; err != nil {
		config.LogError(e.logger, "sheetsync", "deleteWithAudit", "property cascade failed", logrus.Fields{
			"seller_number": seller.SellerNumber,
		}, err)
	}
	return nil
}

func (e *SyncExecutor) recordError(ctx context.Context, runId uint, result *PhaseResult, recErr RecordError) {
	result.Errors = append(result.Errors, recErr)
	e.logger.WithFields(logrus.Fields{
		"seller_number": recErr.BusinessKey,
		"phase":         recErr.Phase,
		"error_kind":    string(recErr.Kind),
		"sync_run_id":   runId,
	}).Error(recErr.Message)
	row := models.SheetSyncError{
		SyncRunId:   runId,
		BusinessKey: recErr.BusinessKey,
		Phase:       recErr.Phase,
		ErrorKind:   string(recErr.Kind),
		Message:     recErr.Message,
		Retryable:   recErr.Kind == utils.ErrorKindTransientIO,
	}
	if err := e.db.WithContext(ctx).Create(&row).Error; err != nil {
		config.LogError(e.logger, "sheetsync", "recordError", "could not persist sync error", nil, err)
	}
}

// pauseBetweenBatches sleeps at each batch boundary, bailing out early when
// the run context is cancelled.
func (e *SyncExecutor) pauseBetweenBatches(ctx context.Context, index int) error {
	if index == 0 || index%e.batchSize != 0 || e.batchPause == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return utils.WrapError(utils.ErrorKindTransientIO, ctx.Err())
	case <-time.After(e.batchPause):
		return nil
	}
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry
}
