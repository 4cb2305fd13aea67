package handlers

import (
	"time"

	"traffic-monitor/backend/services"
	"traffic-monitor/backend/store"

	"github.com/gofiber/fiber/v2"
)

// IngestStatus exposes the live ingestion counters.
type IngestStatus interface {
	Stats() services.IngestStats
}

type Handler struct {
	Store     *store.Store
	Ingest    IngestStatus
	GeoIP     *services.GeoIPService
	SysInfo   *services.SysInfoService
	Webhook   *services.WebhookService
	jwtSecret []byte
	now       func() time.Time
}

func NewHandler(st *store.Store, ingest IngestStatus, jwtSecret string) *Handler {
	return &Handler{
		Store:     st,
		Ingest:    ingest,
		SysInfo:   services.NewSysInfoService(),
		jwtSecret: []byte(jwtSecret),
		now:       time.Now,
	}
}

// SetupRoutes registers the dashboard API on app.
func (h *Handler) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// ===== Public Routes (No Auth Required) =====
	api.Post("/login", h.Login)
	api.Get("/traffic_stats", h.GetTrafficStats)
	api.Get("/traffic_trend", h.GetTrafficTrend)

	// ===== Protected Routes (JWT Required) =====
	protected := api.Group("", h.JWTAuthMiddleware())

	protected.Put("/auth/password", h.ChangePassword)

	// Packets & Alerts
	protected.Get("/packets", h.GetPackets)
	protected.Get("/alerts", h.GetAlerts)
	protected.Post("/alerts/:id/resolve", h.ResolveAlert)

	// Traffic
	protected.Get("/traffic/top_sources", h.GetTopSources)

	// Interfaces
	protected.Get("/interfaces", h.GetInterfaces)
	protected.Post("/interfaces/:id/toggle", h.ToggleInterface)

	// System Status
	protected.Get("/status", h.GetSystemStatus)
	protected.Get("/events", h.GetEvents)

	// Webhook
	protected.Post("/webhook/test", h.TestWebhook)

	// User Management
	admin := protected.Group("/users", AdminOnly())
	admin.Get("", h.GetUsers)
	admin.Post("", h.CreateUser)
	admin.Delete("/:id", h.DeleteUser)
	admin.Post("/:id/reset_password", h.ResetPassword)
}
