package services

import (
	"fmt"
	"time"

	"traffic-monitor/backend/config"
	"traffic-monitor/backend/models"
)

// Emitter applies the per-minute traffic volume rule to closed buckets.
type Emitter struct {
	Threshold uint64
	now       func() time.Time
}

// NewEmitter returns an emitter for the given threshold; zero selects the
// default of 10 MiB.
func NewEmitter(threshold uint64) *Emitter {
	if threshold == 0 {
		threshold = config.DefaultThresholdBytes
	}
	return &Emitter{Threshold: threshold, now: time.Now}
}

// MaybeAlert returns a high_traffic alert when the closed bucket carried
// strictly more bytes than the threshold, and nil otherwise. The alert is
// stamped with the emission time, not the bucket time.
func (e *Emitter) MaybeAlert(r Rollover) *models.Alert {
	if r.Bytes <= e.Threshold {
		return nil
	}

	return &models.Alert{
		Timestamp:   e.now().UTC(),
		AlertType:   models.AlertTypeHighTraffic,
		Description: fmt.Sprintf("Traffic reached %d bytes in one minute (%s)", r.Bytes, r.Start.UTC().Format("2006-01-02 15:04")),
		SourceIP:    "*",
		Status:      models.AlertStatusActive,
		Severity:    models.SeverityWarning,
		Category:    "traffic",
	}
}
