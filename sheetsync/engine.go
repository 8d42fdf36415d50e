package sheetsync

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/realcrm/realty_backend/config"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	DefaultDiffPageSize       = 1000
	DefaultMaxDeletionsPerRun = 20
)

// Engine wires the whole sync pipeline together. Everything hangs off the
// database handle and logger passed in, so a test can stand one up against
// a container.
type Engine struct {
	Orchestrator *Orchestrator
	Scheduler    *Scheduler
	Recovery     *RecoveryService
	Handlers     *Handlers
}

// NewEngine builds the pipeline from explicit parts.
func NewEngine(db *gorm.DB, source Source, logger *logrus.Logger) (*Engine, error) {
	mapper := NewRecordMapper(DefaultSellerTable())
	diff := NewDiffEngine(db, mapper, intEnvDefault("SYNC_PAGE_SIZE", DefaultDiffPageSize))
	guard := NewDeletionGuard(db, config.DeletionStrictValidation(), intEnvDefault("RECENT_ACTIVITY_WINDOW_DAYS", DefaultRecentActivityDays))
	executor := NewSyncExecutor(
		db,
		mapper,
		guard,
		logger,
		intEnvDefault("SYNC_BATCH_SIZE", DefaultBatchSize),
		time.Duration(intEnvDefault("SYNC_BATCH_PAUSE_MS", int(DefaultBatchPause/time.Millisecond)))*time.Millisecond,
	)
	orchestrator := NewOrchestrator(db, source, mapper, diff, executor, logger, OrchestratorConfig{
		MaxDeletionsPerRun: intEnvDefault("MAX_DELETIONS_PER_RUN", DefaultMaxDeletionsPerRun),
		ReportBucket:       strings.TrimSpace(os.Getenv("SYNC_REPORT_BUCKET")),
	})
	scheduler := NewScheduler(orchestrator, logger)
	recovery := NewRecoveryService(db, logger)
	handlers := NewHandlers(db, scheduler, recovery, logger)

	return &Engine{
		Orchestrator: orchestrator,
		Scheduler:    scheduler,
		Recovery:     recovery,
		Handlers:     handlers,
	}, nil
}

// NewEngineFromEnv builds the pipeline with the source named by SHEET_SOURCE.
func NewEngineFromEnv(db *gorm.DB, logger *logrus.Logger) (*Engine, error) {
	source, err := NewSourceFromEnv()
	if err != nil {
		return nil, err
	}
	return NewEngine(db, source, logger)
}

func intEnvDefault(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return v
	}
	return def
}
