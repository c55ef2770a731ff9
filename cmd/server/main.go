package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ekklesia/backend/internal/config"
	"github.com/ekklesia/backend/internal/database"
	"github.com/ekklesia/backend/internal/handlers"
	"github.com/ekklesia/backend/internal/jobs"
	"github.com/ekklesia/backend/internal/middleware"
	"github.com/ekklesia/backend/internal/services"
	"github.com/ekklesia/backend/internal/storage"
	"github.com/ekklesia/backend/pkg/logger"
	"github.com/ekklesia/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)
	utils.ConfigureEncryption(cfg.JWT.Secret)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	storageClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := storageClient.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring minio bucket: %v", err)
	}

	auditService := services.NewAuditService(db, storageClient)
	twoFactorService := services.NewTwoFactorService(db)
	dispatcher := services.NewDeliveryDispatcher(
		services.NewSMTPMailer(cfg.Mail),
		services.NewSMSGateway(cfg.SMS),
	)

	scheduler := jobs.NewScheduler(db, auditService, cfg.Jobs)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("scheduler start failed: %v", err)
	}
	defer scheduler.Stop()

	authHandler := handlers.NewAuthHandler(db, auditService, twoFactorService, dispatcher)
	totpHandler := handlers.NewTOTPHandler(db, auditService)
	userHandler := handlers.NewUserHandler(db, auditService)
	roomHandler := handlers.NewRoomHandler(db, auditService)
	childHandler := handlers.NewChildHandler(db, auditService)
	monitorHandler := handlers.NewMonitorHandler(db, auditService)
	activityHandler := handlers.NewActivityHandler(db, auditService)
	worshipHandler := handlers.NewWorshipHandler(db, auditService)
	financeHandler := handlers.NewFinanceHandler(db, auditService)
	paymentHandler := handlers.NewPaymentHandler(db, auditService)
	presenceHandler := handlers.NewPresenceHandler(db, auditService)
	postHandler := handlers.NewPostHandler(db, auditService)
	mediaHandler := handlers.NewMediaHandler(db, storageClient, auditService)
	notificationHandler := handlers.NewNotificationHandler(db)
	auditHandler := handlers.NewAuditHandler(db)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", handlers.HealthCheck)
	app.Get("/version", handlers.GetVersion)

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/login/verify", authHandler.VerifyCode)
	authRoutes.Post("/login/resend", authHandler.ResendCode)
	authRoutes.Post("/login/totp", totpHandler.VerifyTOTP)
	authRoutes.Post("/login/recovery", totpHandler.VerifyRecovery)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/me", authMiddleware.RequireAuth, authHandler.UpdateMe)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)

	totpRoutes := api.Group("/auth/totp", authMiddleware.RequireAuth)
	totpRoutes.Get("/status", totpHandler.Status)
	totpRoutes.Post("/setup", totpHandler.Setup)
	totpRoutes.Post("/verify-setup", totpHandler.VerifySetup)
	totpRoutes.Post("/disable", totpHandler.Disable)

	userRoutes := api.Group("/users", authMiddleware.RequireAuth, middleware.AdminOnly)
	userRoutes.Get("/", userHandler.List)
	userRoutes.Get("/:id", userHandler.Get)
	userRoutes.Put("/:id", userHandler.Update)
	userRoutes.Delete("/:id", userHandler.Delete)

	roomRoutes := api.Group("/rooms", authMiddleware.RequireAuth)
	roomRoutes.Get("/", roomHandler.List)
	roomRoutes.Get("/:id", roomHandler.Get)
	roomRoutes.Get("/:id/members", roomHandler.Members)
	roomRoutes.Post("/", middleware.RequirePermission("rooms.manage"), roomHandler.Create)
	roomRoutes.Put("/:id", middleware.RequirePermission("rooms.manage"), roomHandler.Update)
	roomRoutes.Delete("/:id", middleware.RequirePermission("rooms.manage"), roomHandler.Delete)

	childRoutes := api.Group("/children", authMiddleware.RequireAuth)
	childRoutes.Get("/", childHandler.List)
	childRoutes.Get("/:id", childHandler.Get)
	childRoutes.Post("/", middleware.RequirePermission("children.manage"), childHandler.Create)
	childRoutes.Put("/:id", middleware.RequirePermission("children.manage"), childHandler.Update)
	childRoutes.Delete("/:id", middleware.RequirePermission("children.manage"), childHandler.Delete)

	monitorRoutes := api.Group("/monitors", authMiddleware.RequireAuth)
	monitorRoutes.Get("/", monitorHandler.List)
	monitorRoutes.Get("/:id", monitorHandler.Get)
	monitorRoutes.Post("/", middleware.RequirePermission("monitors.manage"), monitorHandler.Create)
	monitorRoutes.Put("/:id", middleware.RequirePermission("monitors.manage"), monitorHandler.Update)
	monitorRoutes.Delete("/:id", middleware.RequirePermission("monitors.manage"), monitorHandler.Delete)

	activityRoutes := api.Group("/activities", authMiddleware.RequireAuth)
	activityRoutes.Get("/", activityHandler.List)
	activityRoutes.Get("/:id", activityHandler.Get)
	activityRoutes.Get("/:id/stats", activityHandler.Stats)
	activityRoutes.Post("/", middleware.RequirePermission("activities.manage"), activityHandler.Create)
	activityRoutes.Put("/:id", middleware.RequirePermission("activities.manage"), activityHandler.Update)
	activityRoutes.Delete("/:id", middleware.RequirePermission("activities.manage"), activityHandler.Delete)

	worshipRoutes := api.Group("/worship-reports", authMiddleware.RequireAuth)
	worshipRoutes.Get("/", worshipHandler.List)
	worshipRoutes.Get("/stats", worshipHandler.Stats)
	worshipRoutes.Get("/:id", worshipHandler.Get)
	worshipRoutes.Post("/", middleware.RequirePermission("worship.manage"), worshipHandler.Create)
	worshipRoutes.Put("/:id", middleware.RequirePermission("worship.manage"), worshipHandler.Update)
	worshipRoutes.Delete("/:id", middleware.RequirePermission("worship.manage"), worshipHandler.Delete)

	financeRoutes := api.Group("/caisse", authMiddleware.RequireAuth, middleware.RequirePermission("finance.manage"))
	financeRoutes.Get("/", financeHandler.List)
	financeRoutes.Get("/summary", financeHandler.Summary)
	financeRoutes.Post("/", financeHandler.Create)
	financeRoutes.Delete("/:id", financeHandler.Delete)

	paymentRoutes := api.Group("/payments", authMiddleware.RequireAuth, middleware.RequirePermission("finance.manage"))
	paymentRoutes.Get("/", paymentHandler.List)
	paymentRoutes.Post("/", paymentHandler.Create)
	paymentRoutes.Delete("/:id", paymentHandler.Delete)

	presenceRoutes := api.Group("/presences", authMiddleware.RequireAuth)
	presenceRoutes.Get("/", presenceHandler.List)
	presenceRoutes.Post("/", middleware.RequirePermission("presences.manage"), presenceHandler.Record)
	presenceRoutes.Delete("/:id", middleware.RequirePermission("presences.manage"), presenceHandler.Delete)

	postRoutes := api.Group("/posts", authMiddleware.OptionalAuth)
	postRoutes.Get("/", postHandler.List)
	postRoutes.Get("/:slug", postHandler.GetBySlug)

	blogRoutes := api.Group("/blog", authMiddleware.RequireAuth, middleware.RequirePermission("blog.manage"))
	blogRoutes.Post("/", postHandler.Create)
	blogRoutes.Put("/:id", postHandler.Update)
	blogRoutes.Post("/:id/publish", postHandler.Publish)
	blogRoutes.Post("/:id/unpublish", postHandler.Unpublish)
	blogRoutes.Delete("/:id", postHandler.Delete)

	mediaRoutes := api.Group("/media", authMiddleware.RequireAuth)
	mediaRoutes.Get("/", mediaHandler.List)
	mediaRoutes.Post("/upload", mediaHandler.Upload)
	mediaRoutes.Get("/:id/download-url", mediaHandler.DownloadURL)
	mediaRoutes.Delete("/:id", mediaHandler.Delete)

	notificationRoutes := api.Group("/notifications", authMiddleware.RequireAuth)
	notificationRoutes.Get("/", notificationHandler.List)
	notificationRoutes.Get("/unread-count", notificationHandler.UnreadCount)
	notificationRoutes.Put("/:id/read", notificationHandler.MarkRead)
	notificationRoutes.Put("/read-all", notificationHandler.MarkAllRead)

	auditRoutes := api.Group("/audit", authMiddleware.RequireAuth, middleware.AdminOnly)
	auditRoutes.Get("/", auditHandler.List)
	auditRoutes.Get("/export", auditHandler.Export)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			// No new requests past this point; flush buffered audit rows.
			auditService.Stop()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
