package handlers

import (
	"errors"
	"net/http"

	"traffic-monitor/backend/store"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultPacketLimit = 1000
	defaultAlertLimit  = 100
	maxListLimit       = 10000
)

func queryLimit(c *fiber.Ctx, def int) int {
	limit := c.QueryInt("limit", def)
	if limit < 1 {
		return def
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// GetPackets returns the most recent packets, newest first
// GET /api/packets?limit=1000
func (h *Handler) GetPackets(c *fiber.Ctx) error {
	packets, err := h.Store.ListRecentPackets(c.UserContext(), queryLimit(c, defaultPacketLimit))
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(packets)
}

// GetAlerts returns the most recent alerts, newest first
// GET /api/alerts?limit=100
func (h *Handler) GetAlerts(c *fiber.Ctx) error {
	alerts, err := h.Store.ListRecentAlerts(c.UserContext(), queryLimit(c, defaultAlertLimit))
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(alerts)
}

// ResolveAlert marks an alert resolved. Resolving twice keeps the first
// resolution time.
// POST /api/alerts/:id/resolve
func (h *Handler) ResolveAlert(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid alert id"})
	}

	alert, err := h.Store.ResolveAlert(c.UserContext(), uint(id))
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Alert not found"})
	}
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	AddEvent("info", "Alert resolved by "+currentUser(c))
	return c.JSON(fiber.Map{"success": true, "alert": alert})
}
