package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"labshare/authorization"
	"labshare/config"
	"labshare/models"
	"labshare/notifier"
	"labshare/providers"
	"labshare/providers/database"
	"labshare/providers/solr"
	"labshare/services"
	"labshare/storage"
)

// appServices bündelt alle Services, die von den Routen genutzt werden.
type appServices struct {
	Assets  *services.AssetService
	Strains *services.StrainService
	Publish *services.PublishService
	Search  *services.SearchService
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

const actorKey = "actor"

// actorMiddleware lädt die Person aus X-USER-ID. Ohne Header ist der Aufruf anonym.
func actorMiddleware(db *gorm.DB, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-USER-ID")
		if raw == "" {
			c.Next()
			return
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid X-USER-ID"})
			return
		}
		var person models.Person
		if err := db.WithContext(c.Request.Context()).Preload("Projects").First(&person, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
				return
			}
			log.Error("DB error loading actor", zap.Uint64("user_id", id), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.Set(actorKey, authorization.ActorFor(&person))
		c.Next()
	}
}

// actorFrom liefert den Akteur des Requests oder nil für anonyme Aufrufe.
func actorFrom(c *gin.Context) *authorization.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(*authorization.Actor); ok {
			return actor
		}
	}
	return nil
}

func setupRouter(cfg *config.Config, db *gorm.DB, svc *appServices, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/")
	api.Use(apiKeyAuthMiddleware(cfg), actorMiddleware(db, log))
	setupPresentationRoutes(api, svc.Assets, log)
	setupStrainRoutes(api, svc.Strains, log)
	setupPublishRoutes(api, svc.Publish, log)
	setupSearchRoutes(api, svc.Search, log)
	return router
}

func newServices(cfg *config.Config, db *gorm.DB, blobs storage.BlobStore, n notifier.Notifier, provider providers.Provider, log *zap.Logger) *appServices {
	publish := services.NewPublishService(db, n, log, cfg.GatekeeperStrict)
	sharing := services.NewSharingService(publish, log)
	return &appServices{
		Assets:  services.NewAssetService(db, blobs, sharing, publish, log),
		Strains: services.NewStrainService(db, sharing, publish, log),
		Publish: publish,
		Search:  services.NewSearchService(db, provider, log, cfg.SearchLimit),
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

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	logging.Info("Running database auto-migration...")
	if err := db.AutoMigrate(models.All()...); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}
	seedDefaultOrganisms(db, logging)

	blobs, err := storage.NewBlobStore(cfg)
	if err != nil {
		logging.Fatal("Blob store creation failed", zap.Error(err))
	}

	var n notifier.Notifier
	switch cfg.Notifier {
	case "webhook":
		n = notifier.NewWebhookNotifier(cfg.NotifyWebhookURL, logging)
	default:
		n = notifier.NewLogNotifier(logging)
	}

	var provider providers.Provider
	switch cfg.SearchProvider {
	case "solr":
		provider = solr.NewFetcher(cfg, logging)
	default:
		provider = database.NewFetcher(db, logging)
	}
	logging.Info("Active components loaded",
		zap.String("blob_driver", cfg.BlobDriver),
		zap.String("notifier", cfg.Notifier),
		zap.String("search_provider", provider.Name()),
		zap.Bool("gatekeeper_strict", cfg.GatekeeperStrict))

	svc := newServices(cfg, db, blobs, n, provider, logging)
	router := setupRouter(cfg, db, svc, logging)

	// Wartende Freigabe-Anträge regelmäßig als Metrik melden
	cronScheduler := cron.New()
	if _, err := cronScheduler.AddFunc(cfg.PendingLogCron, func() {
		if err := svc.Publish.RefreshWaitingGauge(context.Background()); err != nil {
			logging.Error("Cron job failed", zap.Error(err))
		}
	}); err != nil {
		logging.Fatal("Invalid PENDING_LOG_CRON", zap.String("schedule", cfg.PendingLogCron), zap.Error(err))
	}
	cronScheduler.Start()
	defer cronScheduler.Stop()

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

func seedDefaultOrganisms(db *gorm.DB, logger *zap.Logger) {
	organisms := []models.Organism{
		{Title: "Escherichia coli"},
		{Title: "Saccharomyces cerevisiae"},
		{Title: "Bacillus subtilis"},
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&organisms).Error; err != nil {
		logger.Warn("Failed to seed default organisms", zap.Error(err))
	} else {
		logger.Info("Default organisms seeded.")
	}
}
