package sheetsync

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/realcrm/realty_backend/config"
	"github.com/realcrm/realty_backend/models"
	"github.com/realcrm/realty_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Handlers bundles the sync HTTP surface around its collaborators instead
// of reaching for package globals, so tests can build one against a
// throwaway database.
type Handlers struct {
	db        *gorm.DB
	scheduler *Scheduler
	recovery  *RecoveryService
	logger    *logrus.Logger
}

func NewHandlers(db *gorm.DB, scheduler *Scheduler, recovery *RecoveryService, logger *logrus.Logger) *Handlers {
	return &Handlers{
		db:        db,
		scheduler: scheduler,
		recovery:  recovery,
		logger:    logger,
	}
}

// Register mounts the sync endpoints on a router group.
func (h *Handlers) Register(group *gin.RouterGroup) {
	group.GET("/status", h.Status)
	group.POST("/runs", h.TriggerSync)
	group.GET("/runs", h.SyncHistory)
	group.GET("/runs/:id", h.SyncRunDetail)
	group.GET("/deletions", h.DeletionLog)
	group.POST("/recover", h.Recover)
	group.POST("/pubsub/push", PubSubPushHandler(h.scheduler))
}

// Status polls hit this endpoint far more often than runs finish, so the
// last-run payload is cached in redis and invalidated when a run finalizes.
const (
	statusCacheKey = "cache:sheet-sync:last-run"
	statusCacheTTL = 5 * time.Minute
)

func (h *Handlers) Status(c *gin.Context) {
	resp := StatusResponse{
		Enabled:             config.SheetSyncEnabled(),
		DeletionSyncEnabled: config.DeletionSyncEnabled(),
		StrictValidation:    config.DeletionStrictValidation(),
	}

	var cached SyncRunResponse
	if found, err := config.GetRedisObject(statusCacheKey, &cached); err == nil && found {
		resp.LastRun = &cached
		c.JSON(http.StatusOK, resp)
		return
	}

	var run models.SheetSyncRun
	err := h.db.WithContext(c.Request.Context()).Order("id desc").Take(&run).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err == nil {
		last := mapRunToResponse(run, false)
		resp.LastRun = &last
		if err := config.SetRedisObject(statusCacheKey, last, statusCacheTTL); err != nil {
			config.LogError(h.logger, "sheetsync", "Status", "cache last run", nil, err)
		}
	}
	c.JSON(http.StatusOK, resp)
}

// TriggerSync queues a run and executes it off-request. When pubsub handoff
// is configured the push subscription picks the run up instead.
func (h *Handlers) TriggerSync(c *gin.Context) {
	if !config.SheetSyncEnabled() {
		c.JSON(http.StatusConflict, gin.H{"error": "sheet sync is disabled"})
		return
	}

	var req TriggerSyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	opts := RunOptions{
		TriggeredBy: models.SyncTriggeredManual,
		BusinessKey: strings.TrimSpace(req.SellerNumber),
	}
	if opts.BusinessKey != "" {
		opts.TriggeredBy = models.SyncTriggeredResync
	}

	run, err := h.scheduler.orchestrator.CreateRun(c.Request.Context(), opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if envBoolDefault("SYNC_VIA_PUBSUB", false) {
		if err := PublishSyncRun(c.Request.Context(), run.ID, opts); err != nil {
			config.LogError(h.logger, "sheetsync", "TriggerSync", "pubsub publish failed", logrus.Fields{
				"sync_run_id": run.ID,
			}, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not queue run"})
			return
		}
	} else {
		go func() {
			if err := h.scheduler.ExecuteQueuedRun(context.Background(), run.ID); err != nil {
				if errors.Is(err, ErrRunInProgress) {
					h.logger.WithField("sync_run_id", run.ID).Info("triggered run waiting, another run in progress")
					return
				}
				config.LogError(h.logger, "sheetsync", "TriggerSync", "triggered run failed", logrus.Fields{
					"sync_run_id": run.ID,
				}, err)
			}
		}()
	}

	c.JSON(http.StatusAccepted, gin.H{"id": run.ID})
}

func (h *Handlers) SyncHistory(c *gin.Context) {
	limit := 20
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	var runs []models.SheetSyncRun
	if err := h.db.WithContext(c.Request.Context()).
		Order("id desc").
		Limit(limit).
		Find(&runs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]SyncRunResponse, 0, len(runs))
	for _, run := range runs {
		items = append(items, mapRunToResponse(run, false))
	}
	c.JSON(http.StatusOK, SyncHistoryResponse{Items: items})
}

func (h *Handlers) SyncRunDetail(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	var run models.SheetSyncRun
	if err := h.db.WithContext(c.Request.Context()).Where("id = ?", id).Take(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var errs []models.SheetSyncError
	if err := h.db.WithContext(c.Request.Context()).
		Where("sync_run_id = ?", run.ID).
		Order("id desc").
		Find(&errs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, SyncRunDetailResponse{
		SyncRunResponse: mapRunToResponse(run, true),
		Errors:          mapSyncErrors(errs),
	})
}

func (h *Handlers) DeletionLog(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).Order("id desc").Limit(100)
	if sellerNumber := strings.TrimSpace(c.Query("sellerNumber")); sellerNumber != "" {
		query = query.Where("seller_number = ?", sellerNumber)
	}
	if c.Query("open") == "true" {
		query = query.Where("recovered_at IS NULL")
	}

	var rows []models.SellerDeletionLog
	if err := query.Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, DeletionLogResponse{Items: mapDeletionLog(rows)})
}

func (h *Handlers) Recover(c *gin.Context) {
	var req RecoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sellerNumber is required"})
		return
	}

	actor := "operator"
	if name, ok := utils.GetUserNameFromContext(c.Request.Context()); ok && name != "" {
		actor = name
	}

	result, err := h.recovery.Recover(c.Request.Context(), strings.TrimSpace(req.SellerNumber), actor)
	if err != nil {
		if utils.KindOf(err) == utils.ErrorKindBusinessRule {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
