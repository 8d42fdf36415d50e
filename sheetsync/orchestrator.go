package sheetsync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/realcrm/realty_backend/config"
	"github.com/realcrm/realty_backend/models"
	"github.com/realcrm/realty_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Run states, persisted on the run row as the pipeline advances. On an
// abort the last state shows exactly how far the run got.
const (
	RunStateIdle               = "idle"
	RunStateInitializing       = "initializing"
	RunStateDetectingAdditions = "detecting_additions"
	RunStateSyncingAdditions   = "syncing_additions"
	RunStateDetectingUpdates   = "detecting_updates"
	RunStateSyncingUpdates     = "syncing_updates"
	RunStateDetectingDeletions = "detecting_deletions"
	RunStateSyncingDeletions   = "syncing_deletions"
	RunStateCompleted          = "completed"
)

// OrchestratorConfig carries the tunables a run needs beyond its collaborators.
type OrchestratorConfig struct {
	MaxDeletionsPerRun int
	ReportBucket       string
}

// RunOptions parameterize a single run.
type RunOptions struct {
	TriggeredBy string
	// BusinessKey restricts the run to one seller number. All three phases
	// still execute, scoped to that key.
	BusinessKey string
}

// RunStats is the JSON blob stored on the run row.
type RunStats struct {
	SourceRows   int          `json:"source_rows"`
	SkippedRows  int          `json:"skipped_rows"`
	Added        int          `json:"added"`
	Updated      int          `json:"updated"`
	Deleted      int          `json:"deleted"`
	ManualReview []ReviewItem `json:"manual_review,omitempty"`
}

// Orchestrator drives one sync run through its phases in a fixed order:
// additions, then updates, then deletions. Deletion candidates come from a
// snapshot taken before any write, so a record added earlier in the same
// run can never be deleted by it.
type Orchestrator struct {
	db       *gorm.DB
	source   Source
	mapper   *RecordMapper
	diff     *DiffEngine
	executor *SyncExecutor
	logger   *logrus.Logger
	cfg      OrchestratorConfig
}

func NewOrchestrator(db *gorm.DB, source Source, mapper *RecordMapper, diff *DiffEngine, executor *SyncExecutor, logger *logrus.Logger, cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		db:       db,
		source:   source,
		mapper:   mapper,
		diff:     diff,
		executor: executor,
		logger:   logger,
		cfg:      cfg,
	}
}

// CreateRun inserts a queued run row without executing it.
func (o *Orchestrator) CreateRun(ctx context.Context, opts RunOptions) (*models.SheetSyncRun, error) {
	run := &models.SheetSyncRun{
		Status:      models.SyncRunStatusQueued,
		State:       RunStateIdle,
		TriggeredBy: opts.TriggeredBy,
		BusinessKey: opts.BusinessKey,
	}
	if err := o.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, utils.WrapError(utils.ErrorKindTransientIO, err)
	}
	return run, nil
}

// Run creates the run row and executes the pipeline against it. The run row
// exists and is finalized even when the pipeline aborts immediately.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*models.SheetSyncRun, error) {
	run, err := o.CreateRun(ctx, opts)
	if err != nil {
		return nil, err
	}
	err = o.Execute(ctx, run, opts)
	return run, err
}

// Execute runs the pipeline for an existing run row.
func (o *Orchestrator) Execute(ctx context.Context, run *models.SheetSyncRun, opts RunOptions) error {
	started := time.Now().UTC()
	run.Status = models.SyncRunStatusRunning
	run.StartedAt = &started
	run.State = RunStateInitializing
	if err := o.db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":     run.Status,
		"state":      run.State,
		"started_at": run.StartedAt,
	}).Error; err != nil {
		config.LogError(o.logger, "sheetsync", "Execute", "could not mark run as running", logrus.Fields{
			"sync_run_id": run.ID,
		}, err)
	}

	var (
		stats     RunStats
		allErrors []RecordError
		runErr    error
	)
	defer func() {
		o.finalize(ctx, run, &stats, allErrors, started, runErr)
	}()

	if err := o.source.Authenticate(ctx); err != nil {
		runErr = err
		return runErr
	}
	headers, rows, err := o.source.ReadAll(ctx)
	if err != nil {
		runErr = err
		return runErr
	}

	// Map every row up front. A row that fails mapping is recorded and
	// skipped; it never aborts the run.
	sourceRows := make(map[string]FieldValues, len(rows))
	sourceKeys := make([]string, 0, len(rows))
	for i, cells := range rows {
		key, values, err := o.mapper.MapRow(headers, cells)
		if err != nil {
			if utils.IsRunFatal(err) {
				runErr = err
				return runErr
			}
			stats.SkippedRows++
			o.executor.recordError(ctx, run.ID, &PhaseResult{}, RecordError{
				BusinessKey: key,
				Phase:       models.SyncPhaseMapping,
				Kind:        utils.KindOf(err),
				Message:     fmt.Sprintf("row %d: %v", i+2, err),
			})
			allErrors = append(allErrors, RecordError{BusinessKey: key, Phase: models.SyncPhaseMapping, Kind: utils.KindOf(err), Message: err.Error()})
			continue
		}
		if opts.BusinessKey != "" && key != opts.BusinessKey {
			continue
		}
		if _, seen := sourceRows[key]; seen {
			stats.SkippedRows++
			o.logger.WithFields(logrus.Fields{
				"seller_number": key,
				"sync_run_id":   run.ID,
			}).Warn("duplicate seller number in sheet, keeping first occurrence")
			continue
		}
		sourceRows[key] = values
		sourceKeys = append(sourceKeys, key)
	}
	stats.SourceRows = len(sourceKeys)

	// Deletion candidates always come from this pre-run census.
	snapshot, err := o.diff.LoadKeySnapshot(ctx, opts.BusinessKey)
	if err != nil {
		runErr = err
		return runErr
	}

	// Phase 1: additions.
	o.setState(ctx, run, RunStateDetectingAdditions)
	additionKeys := o.diff.DetectAdditions(sourceKeys, snapshot)
	additions := make([]SourceRecord, 0, len(additionKeys))
	for _, key := range additionKeys {
		additions = append(additions, SourceRecord{BusinessKey: key, Values: sourceRows[key]})
	}
	o.setState(ctx, run, RunStateSyncingAdditions)
	addResult, err := o.executor.ExecuteAdditions(ctx, run.ID, additions)
	stats.Added = addResult.Succeeded
	allErrors = append(allErrors, addResult.Errors...)
	if err != nil {
		runErr = err
		return runErr
	}

	// Phase 2: updates.
	o.setState(ctx, run, RunStateDetectingUpdates)
	candidates, err := o.diff.DetectUpdates(ctx, sourceRows, opts.BusinessKey)
	if err != nil {
		runErr = err
		return runErr
	}
	o.setState(ctx, run, RunStateSyncingUpdates)
	updResult, err := o.executor.ExecuteUpdates(ctx, run.ID, candidates, sourceRows)
	stats.Updated = updResult.Succeeded
	allErrors = append(allErrors, updResult.Errors...)
	if err != nil {
		runErr = err
		return runErr
	}

	// Phase 3: deletions, behind the feature flag and the per-run cap.
	o.setState(ctx, run, RunStateDetectingDeletions)
	sourceSet := make(map[string]bool, len(sourceKeys))
	for _, key := range sourceKeys {
		sourceSet[key] = true
	}
	deletionKeys := o.diff.DetectDeletions(sourceSet, snapshot)
	switch {
	case !config.DeletionSyncEnabled():
		if len(deletionKeys) > 0 {
			o.logger.WithFields(logrus.Fields{
				"candidates":  len(deletionKeys),
				"sync_run_id": run.ID,
			}).Info("deletion sync disabled, skipping deletion phase")
		}
	case o.cfg.MaxDeletionsPerRun > 0 && len(deletionKeys) > o.cfg.MaxDeletionsPerRun:
		// A cap breach usually means a broken sheet export, not a real
		// mass deletion. Hold everything for review.
		msg := fmt.Sprintf("%d deletion candidates exceed the per-run cap of %d", len(deletionKeys), o.cfg.MaxDeletionsPerRun)
		o.logger.WithField("sync_run_id", run.ID).Warn(msg)
		for _, key := range deletionKeys {
			stats.ManualReview = append(stats.ManualReview, ReviewItem{BusinessKey: key, Reason: msg})
		}
	default:
		o.setState(ctx, run, RunStateSyncingDeletions)
		delResult, err := o.executor.ExecuteDeletions(ctx, run.ID, deletionKeys, opts.TriggeredBy)
		stats.Deleted = delResult.Succeeded
		stats.ManualReview = append(stats.ManualReview, delResult.Review...)
		allErrors = append(allErrors, delResult.Errors...)
		if err != nil {
			runErr = err
			return runErr
		}
	}

	o.setState(ctx, run, RunStateCompleted)
	return nil
}

func (o *Orchestrator) setState(ctx context.Context, run *models.SheetSyncRun, state string) {
	run.State = state
	if err := o.db.WithContext(ctx).Model(run).
		Updates(map[string]interface{}{"state": state, "status": run.Status}).Error; err != nil {
		config.LogError(o.logger, "sheetsync", "setState", "could not persist run state", logrus.Fields{
			"sync_run_id": run.ID,
			"state":       state,
		}, err)
	}
}

// finalize stamps the run row exactly once, whatever path got us here.
func (o *Orchestrator) finalize(ctx context.Context, run *models.SheetSyncRun, stats *RunStats, allErrors []RecordError, started time.Time, runErr error) {
	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.DurationMs = finished.Sub(started).Milliseconds()
	run.Added = stats.Added
	run.Updated = stats.Updated
	run.Deleted = stats.Deleted
	run.ErrorCount = len(allErrors)
	run.ManualReviewCount = len(stats.ManualReview)

	switch {
	case runErr != nil:
		run.Status = models.SyncRunStatusFailed
	case run.ErrorCount > 0 || run.ManualReviewCount > 0:
		run.Status = models.SyncRunStatusPartial
	default:
		run.Status = models.SyncRunStatusSuccess
	}

	if encoded, err := json.Marshal(stats); err == nil {
		run.StatsJSON = encoded
	}

	if o.cfg.ReportBucket != "" && runErr == nil {
		url, err := writeRunReport(ctx, o.cfg.ReportBucket, run, stats, allErrors)
		if err != nil {
			config.LogError(o.logger, "sheetsync", "finalize", "run report upload failed", logrus.Fields{
				"sync_run_id": run.ID,
			}, err)
		} else {
			run.ReportURL = url
		}
	}

	if err := o.db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":              run.Status,
		"state":               run.State,
		"added":               run.Added,
		"updated":             run.Updated,
		"deleted":             run.Deleted,
		"error_count":         run.ErrorCount,
		"manual_review_count": run.ManualReviewCount,
		"stats_json":          run.StatsJSON,
		"report_url":          run.ReportURL,
		"finished_at":         run.FinishedAt,
		"duration_ms":         run.DurationMs,
	}).Error; err != nil {
		config.LogError(o.logger, "sheetsync", "finalize", "could not finalize run row", logrus.Fields{
			"sync_run_id": run.ID,
		}, err)
	}

	// The status endpoint caches the last run; this run supersedes it.
	if err := config.RemoveRedisKey(statusCacheKey); err != nil {
		config.LogError(o.logger, "sheetsync", "finalize", "could not drop status cache", logrus.Fields{
			"sync_run_id": run.ID,
		}, err)
	}

	entry := o.logger.WithFields(logrus.Fields{
		"sync_run_id": run.ID,
		"status":      run.Status,
		"added":       run.Added,
		"updated":     run.Updated,
		"deleted":     run.Deleted,
		"errors":      run.ErrorCount,
		"duration_ms": run.DurationMs,
	})
	if runErr != nil {
		entry.WithError(runErr).Error("sheet sync run aborted")
	} else {
		entry.Info("sheet sync run finished")
	}
}
