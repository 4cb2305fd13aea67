package services

import (
	"math"
	"strings"
	"testing"
	"time"

	"traffic-monitor/backend/models"
)

var minute0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestWindow_PrimingNeverRollsOver(t *testing.T) {
	var w Window
	if r := w.Observe(minute0.Add(30*time.Second), 100); r != nil {
		t.Fatalf("First observation rolled over: %+v", r)
	}
	start, bytes, ok := w.Current()
	if !ok || !start.Equal(minute0) || bytes != 100 {
		t.Errorf("Unexpected window after priming: %s %d %v", start, bytes, ok)
	}
}

func TestWindow_SameMinuteAccumulates(t *testing.T) {
	var w Window
	w.Observe(minute0, 1)
	for s := 1; s < 60; s++ {
		if r := w.Observe(minute0.Add(time.Duration(s)*time.Second), 1); r != nil {
			t.Fatalf("Unexpected rollover at second %d", s)
		}
	}
	if _, bytes, _ := w.Current(); bytes != 60 {
		t.Errorf("Expected 60 bytes, got %d", bytes)
	}
}

func TestWindow_RolloverSequence(t *testing.T) {
	var w Window
	if r := w.Observe(minute0.Add(5*time.Second), 5_000_000); r != nil {
		t.Fatalf("Unexpected rollover on priming")
	}
	if r := w.Observe(minute0.Add(40*time.Second), 6_000_000); r != nil {
		t.Fatalf("Unexpected rollover in same minute")
	}

	r := w.Observe(minute0.Add(time.Minute+time.Second), 1)
	if r == nil {
		t.Fatalf("Expected rollover on next minute")
	}
	if !r.Start.Equal(minute0) || r.Bytes != 11_000_000 {
		t.Errorf("Unexpected rollover: %+v", r)
	}
	start, bytes, _ := w.Current()
	if !start.Equal(minute0.Add(time.Minute)) || bytes != 1 {
		t.Errorf("New bucket should start with the triggering packet, got %s %d", start, bytes)
	}
}

func TestWindow_GapAndBackwardJump(t *testing.T) {
	var w Window
	w.Observe(minute0, 10)

	r := w.Observe(minute0.Add(10*time.Minute), 20)
	if r == nil || r.Bytes != 10 {
		t.Fatalf("Expected rollover across gap, got %+v", r)
	}

	r = w.Observe(minute0.Add(5*time.Minute), 30)
	if r == nil || r.Bytes != 20 || !r.Start.Equal(minute0.Add(10*time.Minute)) {
		t.Fatalf("Expected rollover on backward jump, got %+v", r)
	}
	if start, bytes, _ := w.Current(); !start.Equal(minute0.Add(5*time.Minute)) || bytes != 30 {
		t.Errorf("Unexpected bucket after backward jump: %s %d", start, bytes)
	}
}

func TestWindow_SaturatesInsteadOfWrapping(t *testing.T) {
	var w Window
	w.Observe(minute0, math.MaxUint64-5)
	w.Observe(minute0.Add(time.Second), 10)

	r := w.Observe(minute0.Add(time.Minute), 1)
	if r == nil || r.Bytes != math.MaxUint64 {
		t.Fatalf("Expected a saturated bucket, got %+v", r)
	}
	if NewEmitter(10*1024*1024).MaybeAlert(*r) == nil {
		t.Errorf("Saturated bucket must still raise an alert")
	}
}

func fixedEmitter(threshold uint64, at time.Time) *Emitter {
	e := NewEmitter(threshold)
	e.now = func() time.Time { return at }
	return e
}

func TestEmitter_ThresholdSequence(t *testing.T) {
	emittedAt := minute0.Add(time.Minute + 2*time.Second)

	run := func(threshold uint64) *models.Alert {
		var w Window
		e := fixedEmitter(threshold, emittedAt)
		var alert *models.Alert
		for _, obs := range []struct {
			ts  time.Time
			len uint64
		}{
			{minute0.Add(5 * time.Second), 5_000_000},
			{minute0.Add(40 * time.Second), 6_000_000},
			{minute0.Add(time.Minute + time.Second), 1},
		} {
			if r := w.Observe(obs.ts, obs.len); r != nil {
				alert = e.MaybeAlert(*r)
			}
		}
		return alert
	}

	alert := run(10 * 1024 * 1024)
	if alert == nil {
		t.Fatalf("Expected alert with 10 MiB threshold")
	}
	if alert.AlertType != models.AlertTypeHighTraffic || alert.SourceIP != "*" ||
		alert.Severity != models.SeverityWarning || alert.Category != "traffic" ||
		alert.Status != models.AlertStatusActive {
		t.Errorf("Unexpected alert fields: %+v", alert)
	}
	if !strings.Contains(alert.Description, "11000000") {
		t.Errorf("Description should carry the byte count: %q", alert.Description)
	}
	if !alert.Timestamp.Equal(emittedAt) {
		t.Errorf("Expected emission time %s, got %s", emittedAt, alert.Timestamp)
	}

	if alert := run(20 * 1024 * 1024); alert != nil {
		t.Errorf("Expected no alert with 20 MiB threshold, got %+v", alert)
	}
}

func TestEmitter_StrictlyGreater(t *testing.T) {
	e := NewEmitter(1000)
	if a := e.MaybeAlert(Rollover{Start: minute0, Bytes: 1000}); a != nil {
		t.Errorf("Bytes equal to threshold must not alert")
	}
	if a := e.MaybeAlert(Rollover{Start: minute0, Bytes: 1001}); a == nil {
		t.Errorf("Bytes above threshold must alert")
	}
}

func TestNewEmitter_DefaultThreshold(t *testing.T) {
	if e := NewEmitter(0); e.Threshold != 10_485_760 {
		t.Errorf("Expected default threshold 10485760, got %d", e.Threshold)
	}
}
