package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"traffic-monitor/backend/store"

	"github.com/gofiber/fiber/v2"
)

func (h *Handler) GetInterfaces(c *fiber.Ctx) error {
	ifaces, err := h.Store.ListInterfaces(c.UserContext())
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(ifaces)
}

// ToggleInterface flips the monitored flag. The capture interface itself is
// fixed by configuration.
func (h *Handler) ToggleInterface(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid interface id"})
	}

	iface, err := h.Store.ToggleInterface(c.UserContext(), uint(id))
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Interface not found"})
	}
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	AddEvent("info", fmt.Sprintf("Interface %s monitored=%t", iface.Name, iface.IsMonitored))
	return c.JSON(fiber.Map{"success": true, "is_monitored": iface.IsMonitored})
}
