package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"traffic-monitor/backend/config"
	"traffic-monitor/backend/handlers"
	"traffic-monitor/backend/services"
	"traffic-monitor/backend/store"
	"traffic-monitor/backend/system"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config (empty: defaults and environment)")
	flag.Parse()

	// 0. Load configuration. Any error here is fatal.
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("CRITICAL: %v", err)
	}

	// 1. Initialize Logger
	if err := system.InitLogger(cfg.Log.Dir, cfg.Log.Level); err != nil {
		log.Printf("Warning: Could not initialize file logger: %v", err)
	}
	defer system.Close()

	system.Info("Traffic monitor starting (source: %s)...", cfg.Capture.Source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Setup Database
	st, err := store.Open(cfg.Database.Path, store.Options{WAL: *cfg.Database.WAL})
	if err != nil {
		system.Error("Failed to open database: %v", err)
		log.Fatalf("CRITICAL: Failed to open database: %v", err)
	}
	system.Info("Database connected: %s", cfg.Database.Path)

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Server.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("CRITICAL: Failed to hash admin password: %v", err)
	}
	if created, err := st.EnsureAdmin(ctx, string(hash)); err != nil {
		system.Error("Failed to seed admin user: %v", err)
	} else if created {
		system.Info("Created default admin user")
	}

	// 3. Check the capture feed before anything starts reading it
	executor := system.NewExecutor()
	if cfg.Capture.Source == config.SourceTshark {
		banner, err := services.CheckCaptureBinary(executor, cfg.Capture.TsharkPath)
		if err != nil {
			system.Error("Capture unavailable: %v", err)
			log.Fatalf("CRITICAL: %v", err)
		}
		system.Info("Capture binary: %s", banner)

		if err := services.CheckCaptureInterface(executor, cfg.Capture.TsharkPath, cfg.Capture.Interface); err != nil {
			system.Error("Capture unavailable: %v", err)
			log.Fatalf("CRITICAL: %v", err)
		}
	}

	if _, err := services.SyncInterfaces(ctx, st, cfg.Capture.Interface); err != nil {
		system.Warn("Failed to sync network interfaces: %v", err)
	}

	src, err := services.NewFeedSource(cfg.Capture)
	if err != nil {
		log.Fatalf("CRITICAL: %v", err)
	}

	// 4. Setup Services
	geoipService, err := services.NewGeoIPService(cfg.GeoIP.Database)
	if err != nil {
		system.Warn("GeoIP disabled: %v", err)
		geoipService, _ = services.NewGeoIPService("")
	}
	defer geoipService.Close()

	webhookService := services.NewWebhookService(cfg.Notify.WebhookURL)
	var notifiers []services.AlertNotifier
	if webhookService.IsEnabled() {
		notifiers = append(notifiers, webhookService)
	}
	if cfg.Notify.NATSURL != "" {
		natsNotifier, err := services.NewNATSNotifier(cfg.Notify.NATSURL, cfg.Notify.NATSSubject)
		if err != nil {
			system.Warn("NATS notifications disabled: %v", err)
		} else {
			defer natsNotifier.Close()
			notifiers = append(notifiers, natsNotifier)
		}
	}
	dispatcher := services.NewAlertDispatcher(cfg.Notify.QueueSize, notifiers...)
	dispatcher.Start()
	system.Info("Alert dispatcher started with %d notifiers", len(notifiers))

	ingestor := services.NewIngestor(st, services.NewEmitter(cfg.Alerting.ThresholdBytes), dispatcher)
	ingestDone := make(chan struct{})
	go func() {
		defer close(ingestDone)
		err := ingestor.RunWithRestart(ctx, src, cfg.Capture.RestartDelay)
		if err != nil && !errors.Is(err, context.Canceled) {
			handlers.AddEvent("error", "Ingestion stopped: "+err.Error())
			return
		}
		handlers.AddEvent("info", "Ingestion finished: "+src.Name())
	}()
	handlers.AddEvent("success", "Ingestion started: "+src.Name())

	var retention *services.RetentionJob
	if cfg.Retention.Enabled {
		retention, err = services.NewRetentionJob(st, cfg.Retention.Schedule, cfg.Retention.MaxAge)
		if err != nil {
			log.Fatalf("CRITICAL: %v", err)
		}
		retention.Start()
		system.Info("Retention enabled: packets older than %s purged on %q", cfg.Retention.MaxAge, cfg.Retention.Schedule)
	}

	// 5. Setup Web Server
	app := fiber.New(fiber.Config{
		AppName:      "Traffic Monitor",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	app.Use(logger.New())
	app.Use(cors.New())

	h := handlers.NewHandler(st, ingestor, cfg.Server.JWTSecret)
	h.GeoIP = geoipService
	h.Webhook = webhookService
	h.SetupRoutes(app)

	// Graceful Shutdown Handling
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c // Wait for signal
		system.Info("Gracefully shutting down...")

		cancel()
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	system.Info("Server starting on %s (Mode: %s)", cfg.Server.ListenAddr, executor.GetOS())
	if err := app.Listen(cfg.Server.ListenAddr); err != nil {
		system.Error("Server error: %v", err)
	}

	// Stop the feed first so no alert is dispatched after the queue closes.
	cancel()
	<-ingestDone
	if retention != nil {
		retention.Stop()
	}
	dispatcher.Close()

	if err := st.Close(); err != nil {
		system.Warn("Failed to close database: %v", err)
	}
	system.Info("Shutdown complete")
}
