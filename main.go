package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"boost-pipeline/config"
	"boost-pipeline/models"
	"boost-pipeline/pipeline"
	"boost-pipeline/queue"
	"boost-pipeline/services"
	"boost-pipeline/sources"
	"boost-pipeline/storage"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var submittedRecordsCounter prometheus.Counter

func init() {
	submittedRecordsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "boost_records_submitted_total",
			Help: "Total number of records submitted to the compute queue.",
		},
	)
	prometheus.MustRegister(submittedRecordsCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Ranking-Tabelle ist Pflicht: ohne Doctype-Ränge und Collection-Gewichte
	// kann kein Boost berechnet werden.
	rankings, err := config.LoadRankings(cfg.RankingFile)
	if err != nil {
		logging.Fatal("Ranking table load error", zap.String("file", cfg.RankingFile), zap.Error(err))
	}
	logging.Info("Ranking table loaded", zap.String("file", cfg.RankingFile))

	// Setup Database Connection
	// TranslateError, damit Unique-Verletzungen als gorm.ErrDuplicatedKey
	// ankommen und der Store sie als permanent einstufen kann.
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to boost factors database.")

	// Auto-Migration
	logging.Info("Running database auto-migration...")
	db.AutoMigrate(&models.BoostFactors{})

	// Setup Queue Broker
	broker, err := queue.NewRedisBroker(cfg, logging)
	if err != nil {
		logging.Fatal("Failed to connect to redis", zap.Error(err))
	}
	logging.Info("Successfully connected to redis broker.")

	// Setup Services
	normalizer := services.NewNormalizer(logging)
	calculator := services.NewCalculator(cfg, rankings, logging)
	storeService := services.NewStoreService(db, logging)
	responder := services.NewResponder(cfg, broker, logging)
	orchestrator := services.NewOrchestrator(cfg, broker, normalizer, logging)

	// S3 nur anbinden, wenn der Export dorthin konfiguriert ist.
	var s3Client *s3.Client
	if cfg.ExportToS3 {
		s3Client, err = storage.NewS3Client(cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
	}
	exportService := services.NewExportService(cfg, db, s3Client, logging)

	// Setup Pipeline Workers
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	worker := queue.NewWorker(cfg, broker, logging)
	pipe := pipeline.New(cfg, broker, normalizer, calculator, storeService, responder, logging)
	pipe.Register(worker)
	worker.Start(workerCtx)
	logging.Info("Pipeline workers started",
		zap.Int("workers_per_stage", cfg.WorkersPerStage))

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Setup Routes
	setupBoostRoutes(router, cfg, broker, orchestrator, logging)
	setupBoostFactorRoutes(router, storeService, logging)
	setupExportRoutes(router, cfg, exportService, logging)

	// Setup Cron
	cronScheduler := cron.New()
	if cfg.ExportToS3 {
		cronScheduler.AddFunc(cfg.ExportSchedule, func() {
			logging.Info("Running scheduled export job...")
			link, err := exportService.ExportToS3(context.Background())
			if err != nil {
				logging.Error("Cron export failed", zap.Error(err))
			} else {
				logging.Info("Cron export completed", zap.String("link", link))
			}
		})
	}
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupBoostRoutes(router *gin.Engine, cfg *config.Config, broker queue.Broker, orchestrator *services.Orchestrator, log *zap.Logger) {
	rg := router.Group("/boost")

	// Einzelne Master-Pipeline-Nachricht: landet unverändert auf der
	// Intake-Queue, die Normalisierung passiert asynchron im Worker.
	rg.POST("/", func(c *gin.Context) {
		var raw json.RawMessage
		if err := c.ShouldBindJSON(&raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		if err := broker.Enqueue(c.Request.Context(), cfg.IntakeQueue, queue.Task{Payload: raw}); err != nil {
			log.Error("Failed to enqueue boost request", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "queue error"})
			return
		}
		submittedRecordsCounter.Inc()
		c.JSON(http.StatusAccepted, gin.H{"message": "Boost request accepted."})
	})

	// Batch-Einreichung: Records werden synchron normalisiert und in
	// Batches auf die Compute-Queue gelegt, die Antwort fasst die
	// Einreichung zusammen.
	rg.POST("/batch", func(c *gin.Context) {
		var req struct {
			Records   []json.RawMessage `json:"records" binding:"required"`
			BatchSize int               `json:"batch_size"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. 'records' field is required."})
			return
		}

		result := orchestrator.SubmitRaw(c.Request.Context(), req.Records, req.BatchSize)
		submittedRecordsCounter.Add(float64(result.Submitted))
		c.JSON(http.StatusOK, result)
	})

	// Bulk-Einreichung aus einer Datei (JSON-Array oder CSV). Läuft
	// asynchron, weil Quellen beliebig groß sein können.
	rg.POST("/file", func(c *gin.Context) {
		var req struct {
			Path      string `json:"path" binding:"required"`
			BatchSize int    `json:"batch_size"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. 'path' field is required."})
			return
		}

		src, err := sources.Open(req.Path)
		if err != nil {
			log.Error("Failed to open bulk source", zap.String("path", req.Path), zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot open source file"})
			return
		}

		go func() {
			defer src.Close()
			result, err := orchestrator.SubmitSource(context.Background(), src, req.BatchSize)
			if err != nil {
				log.Error("Async bulk submission failed", zap.String("source", src.Name()), zap.Error(err))
			}
			submittedRecordsCounter.Add(float64(result.Submitted))
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Bulk submission triggered.", "source": req.Path})
	})
}

func setupBoostFactorRoutes(router *gin.Engine, store *services.StoreService, log *zap.Logger) {
	rg := router.Group("/boost-factors")

	// GET über Bibcode oder SciX-ID.
	rg.GET("/:id", func(c *gin.Context) {
		id := c.Param("id")
		bf, err := store.Get(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Boost factors not found"})
				return
			}
			log.Error("Database query for boost factors failed", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, bf)
	})
}

func setupExportRoutes(router *gin.Engine, cfg *config.Config, exportService *services.ExportService, log *zap.Logger) {
	router.POST("/export", func(c *gin.Context) {
		var req struct {
			Path string `json:"path"`
			ToS3 bool   `json:"to_s3"`
		}
		// Body ist optional, Default ist ein lokaler Export.
		_ = c.ShouldBindJSON(&req)

		if req.ToS3 {
			link, err := exportService.ExportToS3(c.Request.Context())
			if err != nil {
				log.Error("S3 export failed", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"link": link})
			return
		}

		path := req.Path
		if path == "" {
			path = defaultExportPath(cfg)
		}
		count, err := exportService.ExportCSV(c.Request.Context(), path)
		if err != nil {
			log.Error("CSV export failed", zap.String("path", path), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"path": path, "records": count})
	})
}

func defaultExportPath(cfg *config.Config) string {
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05Z")
	return filepath.Join(cfg.ExportDir, fmt.Sprintf("boost-factors-%s.csv", stamp))
}
