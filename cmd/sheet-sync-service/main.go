package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/realcrm/realty_backend/config"
	"github.com/realcrm/realty_backend/models"
	"github.com/realcrm/realty_backend/sheetsync"
	"github.com/realcrm/realty_backend/utils"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("SHEET_SYNC_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Routes are registered before the database is reachable (Cloud Run
	// wants the port open early), so the handlers live behind a holder that
	// stays empty until the engine is built.
	var engineHolder atomic.Pointer[sheetsync.Engine]

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		// Cloud Run IAP forwards the caller's identity; recovery audit rows
		// record it as the acting operator.
		if user := c.GetHeader("X-Goog-Authenticated-User-Email"); user != "" {
			user = strings.TrimPrefix(user, "accounts.google.com:")
			c.Request = c.Request.WithContext(utils.SetUserNameInContext(c.Request.Context(), user))
		}
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if engineHolder.Load() == nil || config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api/sheet-sync")
	registerHeldRoutes(api, &engineHolder)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	engine, err := sheetsync.NewEngineFromEnv(db, logger)
	if err != nil {
		logger.WithError(err).Fatal("could not build sync engine")
	}
	engineHolder.Store(engine)
	engine.Scheduler.Start(sigCtx)

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

// registerHeldRoutes mirrors Handlers.Register but dereferences the holder
// per request. The readiness middleware already rejects requests until the
// engine exists.
func registerHeldRoutes(group *gin.RouterGroup, holder *atomic.Pointer[sheetsync.Engine]) {
	handler := func(fn func(*sheetsync.Handlers, *gin.Context)) gin.HandlerFunc {
		return func(c *gin.Context) {
			engine := holder.Load()
			if engine == nil {
				c.AbortWithStatus(http.StatusServiceUnavailable)
				return
			}
			fn(engine.Handlers, c)
		}
	}
	group.GET("/status", handler((*sheetsync.Handlers).Status))
	group.POST("/runs", handler((*sheetsync.Handlers).TriggerSync))
	group.GET("/runs", handler((*sheetsync.Handlers).SyncHistory))
	group.GET("/runs/:id", handler((*sheetsync.Handlers).SyncRunDetail))
	group.GET("/deletions", handler((*sheetsync.Handlers).DeletionLog))
	group.POST("/recover", handler((*sheetsync.Handlers).Recover))
	group.POST("/pubsub/push", func(c *gin.Context) {
		engine := holder.Load()
		if engine == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		sheetsync.PubSubPushHandler(engine.Scheduler)(c)
	})
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}
