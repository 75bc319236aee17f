package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/asafgershon/esim-go-sub012/app/repository"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/cache"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/catalog"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/catalogsync"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/database"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/env"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/metrics"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/provider"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/router"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/snapshot"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/syncqueue"
)

func main() {
	syncProvider := flag.String("sync", "", "run one full catalog sync for the given provider and exit")
	clean := flag.Bool("clean", false, "prune old sync job history and exit")
	flag.Parse()

	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	metrics.Register()

	db := database.GetDB()
	redisClient := cache.GetClient()
	repos := repository.NewRepositories(db)

	clients := []provider.Client{
		provider.NewESIMGoClient(provider.ESIMGoConfigFromEnv()),
		provider.NewMayaClient(provider.MayaConfigFromEnv()),
		provider.NewAiraloClient(provider.AiraloConfigFromEnv()),
	}

	var archiver catalogsync.Archiver
	snapCfg, err := snapshot.LoadConfig()
	if err != nil {
		log.Fatalf("[Main] Invalid snapshot config: %v", err)
	}
	if snapCfg.IsEnabled() {
		arch, err := snapshot.NewArchiver(snapCfg)
		if err != nil {
			log.Fatalf("[Main] Failed to initialize snapshot archiver: %v", err)
		}
		archiver = arch
	}

	service := catalogsync.NewService(clients, catalog.NewTransformer(), repos, redisClient, archiver, catalogsync.ConfigFromEnv())

	if *syncProvider != "" {
		runOneSync(service, *syncProvider)
		return
	}
	if *clean {
		runCleanup(service)
		return
	}

	registry := syncqueue.NewRegistry()
	service.RegisterHandlers(registry)

	queue := syncqueue.NewQueue(redisClient, repos.SyncJob, registry, syncqueue.Config{
		Workers:              env.GetEnvInt("SYNC_WORKER_COUNT", 3),
		Retry:                syncqueue.DefaultRetryPolicy(),
		StalledAge:           env.GetEnvDuration("SYNC_STUCK_THRESHOLD_MINUTES", 30, time.Minute),
		StalledSweepInterval: env.GetEnvDuration("SYNC_STALLED_SWEEP_SECONDS", 60, time.Second),
	})
	manager := syncqueue.NewManager(queue, repos.SyncJob, service)
	manager.Start()

	app := newApplication(router.Deps{
		DB:      db,
		Redis:   redisClient,
		Queue:   queue,
		Manager: manager,
		Service: service,
		Repos:   repos,
	})

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "0.0.0.0"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatalf("[Main] Server error: %v", err)
		}
	}()

	// Graceful shutdown: drain in-flight jobs before exiting
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[Main] Shutting down...")
	_ = app.Shutdown()
	manager.Stop()
}

func newApplication(deps router.Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "esim-catalog-sync",
	})
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app, deps)
	return app
}

func runOneSync(service *catalogsync.Service, providerName string) {
	summary, err := service.SyncFullCatalog(context.Background(), providerName)
	if err != nil {
		log.Fatalf("[Main] Full sync for %s failed: %v", providerName, err)
	}
	if summary.Skipped {
		log.Infof("[Main] Full sync for %s skipped: lock held", providerName)
		return
	}
	log.Infof("[Main] Full sync for %s: %d processed, %d added, %d updated",
		providerName, summary.Processed, summary.Added, summary.Updated)
}

func runCleanup(service *catalogsync.Service) {
	deleted, err := service.CleanupJobHistory(context.Background())
	if err != nil {
		log.Fatalf("[Main] Cleanup failed: %v", err)
	}
	log.Infof("[Main] Deleted %d old sync job records", deleted)
}
