package handlers

import (
	"fmt"
	"net/http"
	"time"

	"traffic-monitor/backend/store"

	"github.com/gofiber/fiber/v2"
)

const trendPoints = 30

// GetTrafficStats returns the dashboard summary counters
// GET /api/traffic_stats
func (h *Handler) GetTrafficStats(c *fiber.Ctx) error {
	summary, err := h.Store.Summary(c.UserContext(), h.now())
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(summary)
}

// GetTrafficTrend returns one point per minute for the last 30 minutes
// GET /api/traffic_trend
func (h *Handler) GetTrafficTrend(c *fiber.Ctx) error {
	points, err := h.Store.TrafficTrend(c.UserContext(), h.now(), trendPoints)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(points)
}

// GetTopSources returns the busiest source addresses
// GET /api/traffic/top_sources?minutes=60&limit=10
func (h *Handler) GetTopSources(c *fiber.Ctx) error {
	minutes := c.QueryInt("minutes", 60)
	limit := c.QueryInt("limit", 10)
	if minutes < 1 {
		minutes = 60
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	window := store.Last(time.Duration(minutes)*time.Minute, h.now())
	rows, err := h.Store.TopSources(c.UserContext(), window, limit)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if h.GeoIP != nil {
		h.GeoIP.Annotate(rows)
	}

	result := make([]fiber.Map, 0, len(rows))
	for _, r := range rows {
		result = append(result, fiber.Map{
			"source_ip":    r.SourceIP,
			"country_code": r.CountryCode,
			"packets":      r.Packets,
			"bytes":        r.Bytes,
			"volume":       formatBytes(r.Bytes),
		})
	}

	return c.JSON(fiber.Map{
		"minutes": minutes,
		"sources": result,
	})
}

func formatBytes(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	} else if bytes < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024.0)
	} else {
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024.0*1024.0))
	}
}
