package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"

	"github.com/campx/campx-backend/internal/apperr"
	"github.com/campx/campx-backend/internal/config"
	"github.com/campx/campx-backend/internal/database"
	"github.com/campx/campx-backend/internal/dto"
	"github.com/campx/campx-backend/internal/handlers"
	"github.com/campx/campx-backend/internal/logging"
	"github.com/campx/campx-backend/internal/middleware"
	"github.com/campx/campx-backend/internal/notify"
	"github.com/campx/campx-backend/internal/realtime"
	"github.com/campx/campx-backend/internal/routes"
	"github.com/campx/campx-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup()

	cfg := config.Load()

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}

	if err := database.Migrate(database.DB); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// Database log handler (ERROR+ async batch)
	dbLogHandler := logging.NewDBHandler(database.DB)
	slog.SetDefault(slog.New(logging.NewMultiHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		dbLogHandler,
	)))

	// Log and snapshot cleanup (daily)
	cleanupDone := make(chan struct{})
	logging.StartCleanup(database.DB, cleanupDone)

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		slog.Error("upload dir unavailable", "path", cfg.UploadDir, "error", err)
		os.Exit(1)
	}

	// Realtime hub
	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := realtime.NewHub()
	go hub.Run(hubCtx)

	// Notifications
	mailer := notify.NewSMTPMailer(cfg)
	dispatcher := notify.NewDispatcher(mailer, notify.NewTwilioSMS(cfg), cfg.NotifyTimeout)
	if !cfg.SMTPEnabled() {
		slog.Info("SMTP not configured, booking and account emails disabled")
	}
	if !cfg.SMSEnabled() {
		slog.Info("Twilio not configured, booking SMS disabled")
	}

	// Services
	moderationService := services.NewModerationService()
	authService := services.NewAuthService(database.DB, cfg, mailer)
	listingService := services.NewListingService(database.DB, moderationService, cfg.MaxListingImages)
	cascadeService := services.NewCascadeService(database.DB, cfg.RecentlyDeletedTTL)
	bookingService := services.NewBookingService(database.DB, dispatcher, hub)
	reviewService := services.NewReviewService(database.DB, moderationService)
	messageService := services.NewMessageService(database.DB, moderationService, hub)
	adminService := services.NewAdminService(database.DB, listingService)
	aiService := services.NewAIService(cfg)

	// Sentry error tracking
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      os.Getenv("APP_ENV"),
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    12 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${locals:requestid}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))

	app.Static(handlers.UploadURLPrefix, cfg.UploadDir)

	// Routes
	routes.Setup(app, cfg, database.DB, routes.Handlers{
		Auth:     handlers.NewAuthHandler(authService),
		Health:   handlers.NewHealthHandler(database.DB),
		Listing:  handlers.NewListingHandler(listingService, cascadeService, cfg.UploadDir, cfg.MaxListingImages),
		Sale:     handlers.NewSaleHandler(bookingService),
		Review:   handlers.NewReviewHandler(reviewService),
		Message:  handlers.NewMessageHandler(messageService),
		Admin:    handlers.NewAdminHandler(adminService, cascadeService, messageService, bookingService),
		AI:       handlers.NewAIHandler(aiService),
		Upload:   handlers.NewUploadHandler(cfg.UploadDir),
		Realtime: handlers.NewWSHandler(hub),
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	stopHub()
	close(cleanupDone)
	dbLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	// Close database connections
	if sqlDB, err := database.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	kind := apperr.KindInternal
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
		kind = kindForStatus(code)
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(dto.ErrorResponse{
		Error:   true,
		Code:    string(kind),
		Message: message,
	})
}

func kindForStatus(code int) apperr.Kind {
	switch code {
	case fiber.StatusNotFound:
		return apperr.KindNotFound
	case fiber.StatusUnauthorized:
		return apperr.KindUnauthenticated
	case fiber.StatusForbidden:
		return apperr.KindForbidden
	case fiber.StatusConflict:
		return apperr.KindConflict
	}
	if code >= 400 && code < 500 {
		return apperr.KindInvalidArgument
	}
	return apperr.KindInternal
}
