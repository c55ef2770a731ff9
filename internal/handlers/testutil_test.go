package handlers

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ekklesia/backend/internal/middleware"
	"github.com/ekklesia/backend/internal/models"
	"github.com/ekklesia/backend/internal/services"
	"github.com/ekklesia/backend/pkg/logger"
	"github.com/ekklesia/backend/pkg/utils"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

// fakeMailer captures delivered codes instead of talking SMTP.
type fakeMailer struct {
	lastTo   string
	lastCode string
	fail     bool
}

func (f *fakeMailer) SendCode(_ context.Context, to, code string) error {
	if f.fail {
		return errors.New("mailer down")
	}
	f.lastTo = to
	f.lastCode = code
	return nil
}

// fakeSMS captures the normalized message instead of calling the gateway.
type fakeSMS struct {
	lastPhone   string
	lastMessage string
	fail        bool
}

func (f *fakeSMS) Send(_ context.Context, phone, message string) error {
	if f.fail {
		return errors.New("gateway down")
	}
	f.lastPhone = phone
	f.lastMessage = message
	return nil
}

type testEnv struct {
	app    *fiber.App
	db     *gorm.DB
	mailer *fakeMailer
	sms    *fakeSMS
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
		utils.ConfigureEncryption("test-secret")
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	err = db.AutoMigrate(
		&models.User{},
		&models.TOTPConfig{},
		&models.Room{},
		&models.Child{},
		&models.Monitor{},
		&models.Activity{},
		&models.WorshipReport{},
		&models.CashTransaction{},
		&models.Payment{},
		&models.Presence{},
		&models.Post{},
		&models.Media{},
		&models.Notification{},
		&models.AuditLog{},
		&models.AuditExportCursor{},
	)
	if err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	auditService := services.NewAuditService(db, nil)
	twoFactorService := services.NewTwoFactorService(db)
	mailer := &fakeMailer{}
	sms := &fakeSMS{}
	dispatcher := services.NewDeliveryDispatcher(mailer, sms)

	authHandler := NewAuthHandler(db, auditService, twoFactorService, dispatcher)
	totpHandler := NewTOTPHandler(db, auditService)
	userHandler := NewUserHandler(db, auditService)
	roomHandler := NewRoomHandler(db, auditService)
	childHandler := NewChildHandler(db, auditService)
	monitorHandler := NewMonitorHandler(db, auditService)
	activityHandler := NewActivityHandler(db, auditService)
	worshipHandler := NewWorshipHandler(db, auditService)
	financeHandler := NewFinanceHandler(db, auditService)
	paymentHandler := NewPaymentHandler(db, auditService)
	presenceHandler := NewPresenceHandler(db, auditService)
	postHandler := NewPostHandler(db, auditService)
	notificationHandler := NewNotificationHandler(db)
	auditHandler := NewAuditHandler(db)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", HealthCheck)
	app.Get("/version", GetVersion)

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

	notificationRoutes := api.Group("/notifications", authMiddleware.RequireAuth)
	notificationRoutes.Get("/", notificationHandler.List)
	notificationRoutes.Get("/unread-count", notificationHandler.UnreadCount)
	notificationRoutes.Put("/:id/read", notificationHandler.MarkRead)
	notificationRoutes.Put("/read-all", notificationHandler.MarkAllRead)

	auditRoutes := api.Group("/audit", authMiddleware.RequireAuth, middleware.AdminOnly)
	auditRoutes.Get("/", auditHandler.List)
	auditRoutes.Get("/export", auditHandler.Export)

	return &testEnv{app: app, db: db, mailer: mailer, sms: sms}
}

func createTestUser(t *testing.T, db *gorm.DB, email, password string, role models.UserRole) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func grantPermissions(t *testing.T, db *gorm.DB, user *models.User, slugs ...string) {
	t.Helper()

	encoded, err := models.EncodePermissions(slugs)
	if err != nil {
		t.Fatalf("failed encoding permissions: %v", err)
	}
	if err := db.Model(user).Update("permissions", encoded).Error; err != nil {
		t.Fatalf("failed granting permissions: %v", err)
	}
	user.Permissions = encoded
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func dataMap(t *testing.T, payload map[string]any) map[string]any {
	t.Helper()
	data, ok := payload["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %+v", payload)
	}
	return data
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}
