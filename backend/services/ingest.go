package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"traffic-monitor/backend/models"
	"traffic-monitor/backend/system"
)

// PacketStore is the write side of the record store used by ingestion.
type PacketStore interface {
	AppendPacket(ctx context.Context, p *models.Packet) error
	AppendAlert(ctx context.Context, a *models.Alert) error
}

// AlertSink receives alerts after they are persisted.
type AlertSink interface {
	Dispatch(alert *models.Alert)
}

// IngestStats is a snapshot of the ingestion counters.
type IngestStats struct {
	Feed          string     `json:"feed"`
	Running       bool       `json:"running"`
	Restarts      int64      `json:"restarts"`
	LinesRead     int64      `json:"lines_read"`
	PacketsStored int64      `json:"packets_stored"`
	ParseFailures int64      `json:"parse_failures"`
	WriteFailures int64      `json:"write_failures"`
	AlertsRaised  int64      `json:"alerts_raised"`
	LastPacketAt  *time.Time `json:"last_packet_at"`
	LastError     string     `json:"last_error,omitempty"`
}

// Ingestor reads the packet feed, persists every parsed packet and raises
// traffic alerts on closed minutes. Run must not be called concurrently.
type Ingestor struct {
	store   PacketStore
	emitter *Emitter
	sink    AlertSink
	window  Window

	linesRead     atomic.Int64
	packetsStored atomic.Int64
	parseFailures atomic.Int64
	writeFailures atomic.Int64
	alertsRaised  atomic.Int64
	restarts      atomic.Int64
	lastPacket    atomic.Int64 // unix seconds of the last stored packet

	mu        sync.Mutex
	feed      string
	running   bool
	lastError string
}

// NewIngestor creates an ingestor. sink may be nil.
func NewIngestor(store PacketStore, emitter *Emitter, sink AlertSink) *Ingestor {
	return &Ingestor{store: store, emitter: emitter, sink: sink}
}

// Run consumes src until it ends or ctx is cancelled. A feed that ends
// cleanly returns nil; a feed whose Close reports a failure, such as a
// non-zero tshark exit, returns that error; cancellation returns ctx.Err().
// Bad lines and failed writes are logged and counted and never stop the loop.
func (ing *Ingestor) Run(ctx context.Context, src FeedSource) error {
	stream, err := src.Open(ctx)
	if err != nil {
		ing.setError(err)
		return fmt.Errorf("failed to open feed %s: %w", src.Name(), err)
	}
	defer stream.Close()

	// Closing the stream is what unblocks a pending read on shutdown.
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()

	ing.setRunning(src.Name(), true)
	defer ing.setRunning(src.Name(), false)
	system.Info("Ingestion started from %s", src.Name())

	reader := bufio.NewReaderSize(stream, 64*1024)
	for {
		line, readErr := reader.ReadString('\n')
		if len(line) > 0 {
			ing.handleLine(ctx, line)
		}

		if readErr == nil {
			continue
		}
		if ctx.Err() != nil {
			system.Info("Ingestion from %s stopped", src.Name())
			return ctx.Err()
		}
		if errors.Is(readErr, io.EOF) {
			// A capture process reports its exit status on Close.
			if err := stream.Close(); err != nil {
				ing.setError(err)
				return fmt.Errorf("feed %s failed: %w", src.Name(), err)
			}
			system.Info("Feed %s ended", src.Name())
			return nil
		}
		ing.setError(readErr)
		return fmt.Errorf("feed %s read failed: %w", src.Name(), readErr)
	}
}

func (ing *Ingestor) handleLine(ctx context.Context, line string) {
	ing.linesRead.Add(1)

	packet, err := ParseLine(line)
	if err != nil {
		n := ing.parseFailures.Add(1)
		system.Debug("Discarding feed line (%d discarded so far): %v", n, err)
		return
	}

	if closed := ing.window.Observe(packet.Timestamp, packet.Length); closed != nil {
		if alert := ing.emitter.MaybeAlert(*closed); alert != nil {
			ing.persistAlert(ctx, alert)
		}
	}

	if err := ing.store.AppendPacket(ctx, packet); err != nil {
		ing.writeFailures.Add(1)
		ing.setError(err)
		system.Error("Failed to store packet %s -> %s: %v", packet.SrcIP, packet.DstIP, err)
		return
	}
	ing.packetsStored.Add(1)
	ing.lastPacket.Store(packet.Timestamp.Unix())
}

func (ing *Ingestor) persistAlert(ctx context.Context, alert *models.Alert) {
	if err := ing.store.AppendAlert(ctx, alert); err != nil {
		ing.writeFailures.Add(1)
		ing.setError(err)
		system.Error("Failed to store %s alert: %v", alert.AlertType, err)
		return
	}
	ing.alertsRaised.Add(1)
	system.Warn("Alert raised: %s", alert.Description)

	if ing.sink != nil {
		ing.sink.Dispatch(alert)
	}
}

func (ing *Ingestor) setRunning(feed string, running bool) {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	ing.feed = feed
	ing.running = running
}

func (ing *Ingestor) setError(err error) {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	ing.lastError = err.Error()
}

// Stats returns a snapshot of the counters. Safe for concurrent use.
func (ing *Ingestor) Stats() IngestStats {
	ing.mu.Lock()
	s := IngestStats{Feed: ing.feed, Running: ing.running, LastError: ing.lastError}
	ing.mu.Unlock()

	s.Restarts = ing.restarts.Load()
	s.LinesRead = ing.linesRead.Load()
	s.PacketsStored = ing.packetsStored.Load()
	s.ParseFailures = ing.parseFailures.Load()
	s.WriteFailures = ing.writeFailures.Load()
	s.AlertsRaised = ing.alertsRaised.Load()
	if ts := ing.lastPacket.Load(); ts != 0 {
		t := time.Unix(ts, 0).UTC()
		s.LastPacketAt = &t
	}
	return s
}

const maxRestartBackoff = 2 * time.Minute

// RunWithRestart runs the ingestor and, when delay is positive, reopens the
// feed after it ends, backing off exponentially up to two minutes. The
// window is kept across restarts. It returns when ctx is cancelled, or after
// the first run when restarts are disabled.
func (ing *Ingestor) RunWithRestart(ctx context.Context, src FeedSource, delay time.Duration) error {
	attempt := 0
	for {
		started := time.Now()
		err := ing.Run(ctx, src)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if delay <= 0 {
			return err
		}

		// A feed that ran for a while counts as healthy again.
		if time.Since(started) > maxRestartBackoff {
			attempt = 0
		}
		backoff := restartBackoff(delay, attempt)
		attempt++
		ing.restarts.Add(1)

		if err != nil {
			system.Warn("Feed %s failed: %v; restarting in %s", src.Name(), err, backoff)
		} else {
			system.Warn("Feed %s ended; restarting in %s", src.Name(), backoff)
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// restartBackoff doubles base per attempt, capped, with jitter.
func restartBackoff(base time.Duration, attempt int) time.Duration {
	backoff := base
	for i := 0; i < attempt && backoff < maxRestartBackoff; i++ {
		backoff *= 2
	}
	if backoff > maxRestartBackoff {
		backoff = maxRestartBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(base)/4 + 1))
	return backoff + jitter
}
