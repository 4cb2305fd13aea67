package handlers

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"traffic-monitor/backend/services"
	"traffic-monitor/backend/system"

	"github.com/gofiber/fiber/v2"
)

const maxEvents = 100

// SystemStatus represents the current system state
type SystemStatus struct {
	OS        string                `json:"os"`
	Ingestion *services.IngestStats `json:"ingestion"`
	Host      *services.HostStats   `json:"host,omitempty"`
	HostError string                `json:"host_error,omitempty"`
	Events    []SystemEvent         `json:"events"`
}

type SystemEvent struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, warning, error, success
	Message string `json:"message"`
}

// Event log storage with mutex for thread safety
var (
	eventLog   []SystemEvent
	eventMutex sync.RWMutex
)

// AddEvent adds a new event to the log
func AddEvent(eventType, message string) {
	eventMutex.Lock()
	defer eventMutex.Unlock()

	event := SystemEvent{
		Time:    time.Now().Format("15:04:05"),
		Type:    eventType,
		Message: message,
	}
	eventLog = append([]SystemEvent{event}, eventLog...)
	if len(eventLog) > maxEvents {
		eventLog = eventLog[:maxEvents]
	}

	// Also log to file
	switch eventType {
	case "error":
		system.Error("%s", message)
	case "warning":
		system.Warn("%s", message)
	default:
		system.Info("%s", message)
	}
}

// GetEventLog returns a copy of the event log
func GetEventLog() []SystemEvent {
	eventMutex.RLock()
	defer eventMutex.RUnlock()

	result := make([]SystemEvent, len(eventLog))
	copy(result, eventLog)
	return result
}

// GetSystemStatus returns ingestion counters and host stats
// GET /api/status
func (h *Handler) GetSystemStatus(c *fiber.Ctx) error {
	status := SystemStatus{
		OS:     runtime.GOOS,
		Events: GetEventLog(),
	}

	if h.Ingest != nil {
		stats := h.Ingest.Stats()
		status.Ingestion = &stats
	}

	if h.SysInfo != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()
		host, err := h.SysInfo.Collect(ctx)
		if err != nil {
			// Just log, don't fail the whole request
			system.Warn("Failed to collect host stats: %v", err)
			status.HostError = err.Error()
		}
		status.Host = host
	}

	return c.JSON(status)
}

// GetEvents returns recent events
func (h *Handler) GetEvents(c *fiber.Ctx) error {
	return c.JSON(GetEventLog())
}

// TestWebhook sends a test notification to the configured Discord webhook
func (h *Handler) TestWebhook(c *fiber.Ctx) error {
	if h.Webhook == nil || !h.Webhook.IsEnabled() {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Discord webhook URL not configured"})
	}

	if err := h.Webhook.SendTestAlert(c.UserContext()); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"message": "Test notification sent successfully"})
}
