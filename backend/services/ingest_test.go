package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"traffic-monitor/backend/models"
	"traffic-monitor/backend/store"
)

// memStore records writes and can be told to fail.
type memStore struct {
	mu          sync.Mutex
	packets     []models.Packet
	alerts      []models.Alert
	failPackets int
}

func (m *memStore) AppendPacket(ctx context.Context, p *models.Packet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPackets > 0 {
		m.failPackets--
		return errors.New("database is locked")
	}
	m.packets = append(m.packets, *p)
	return nil
}

func (m *memStore) AppendAlert(ctx context.Context, a *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uint(len(m.alerts) + 1)
	m.alerts = append(m.alerts, *a)
	return nil
}

func (m *memStore) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.packets), len(m.alerts)
}

type recordingSink struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (s *recordingSink) Dispatch(a *models.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, *a)
}

func lineAt(ts time.Time, length int) string {
	return fmt.Sprintf("%d.5\t10.0.0.1\t10.0.0.2\tTCP\t%d\t1234\t80\t\t\t0x0010\t64\n", ts.Unix(), length)
}

func TestIngestor_OversizeLengthIsDiscarded(t *testing.T) {
	st := &memStore{}
	ing := NewIngestor(st, fixedEmitter(5, minute0), nil)

	feed := fmt.Sprintf("%d\t10.0.0.1\t10.0.0.2\tTCP\t18446744073709551615\n", minute0.Unix()) +
		lineAt(minute0.Add(time.Second), 10) +
		lineAt(minute0.Add(time.Minute), 1)

	if err := ing.Run(context.Background(), &ReaderSource{Reader: strings.NewReader(feed)}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	stats := ing.Stats()
	if stats.ParseFailures != 1 || stats.WriteFailures != 0 || stats.PacketsStored != 2 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if stats.AlertsRaised != 1 {
		t.Errorf("The 10-byte minute should still alert over a 5-byte threshold, got %d alerts", stats.AlertsRaised)
	}
}

func TestIngestor_ThresholdAlertEndToEnd(t *testing.T) {
	st := &memStore{}
	sink := &recordingSink{}
	ing := NewIngestor(st, NewEmitter(10*1024*1024), sink)

	feed := lineAt(minute0.Add(5*time.Second), 5_000_000) +
		lineAt(minute0.Add(40*time.Second), 6_000_000) +
		lineAt(minute0.Add(time.Minute+time.Second), 1)

	if err := ing.Run(context.Background(), &ReaderSource{Reader: strings.NewReader(feed)}); err != nil {
		t.Fatalf("Run returned error for a finished feed: %v", err)
	}

	packets, alerts := st.counts()
	if packets != 3 {
		t.Errorf("Expected 3 packets, got %d", packets)
	}
	if alerts != 1 {
		t.Fatalf("Expected 1 alert, got %d", alerts)
	}
	if len(sink.alerts) != 1 || sink.alerts[0].ID != 1 {
		t.Errorf("Expected the stored alert to be dispatched, got %+v", sink.alerts)
	}

	stats := ing.Stats()
	if stats.LinesRead != 3 || stats.PacketsStored != 3 || stats.AlertsRaised != 1 || stats.Running {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestIngestor_PacketsStoredInFeedOrder(t *testing.T) {
	st := &memStore{}
	ing := NewIngestor(st, NewEmitter(0), nil)

	var b strings.Builder
	for i := 1; i <= 5; i++ {
		b.WriteString(lineAt(minute0, i))
	}
	if err := ing.Run(context.Background(), &ReaderSource{Reader: strings.NewReader(b.String())}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for i, p := range st.packets {
		if p.Length != uint64(i+1) {
			t.Errorf("Packet %d out of order: length %d", i, p.Length)
		}
	}
}

func TestIngestor_WriteFailureDoesNotStopLoop(t *testing.T) {
	st := &memStore{failPackets: 1}
	ing := NewIngestor(st, NewEmitter(0), nil)

	feed := lineAt(minute0, 10) + lineAt(minute0.Add(time.Second), 20)
	if err := ing.Run(context.Background(), &ReaderSource{Reader: strings.NewReader(feed)}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	packets, _ := st.counts()
	if packets != 1 {
		t.Errorf("Expected 1 stored packet, got %d", packets)
	}
	stats := ing.Stats()
	if stats.WriteFailures != 1 || stats.LastError == "" {
		t.Errorf("Expected write failure to be counted, got %+v", stats)
	}

	// The failed packet's bytes still count toward the window.
	if _, bytes, _ := ing.window.Current(); bytes != 30 {
		t.Errorf("Expected window to hold 30 bytes, got %d", bytes)
	}
}

func TestIngestor_LongLine(t *testing.T) {
	st := &memStore{}
	ing := NewIngestor(st, NewEmitter(0), nil)

	long := strings.TrimSuffix(lineAt(minute0, 60), "\n") + "\t" + strings.Repeat("x", 200*1024) + "\n"
	feed := long + lineAt(minute0, 70)
	if err := ing.Run(context.Background(), &ReaderSource{Reader: strings.NewReader(feed)}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if packets, _ := st.counts(); packets != 2 {
		t.Errorf("Expected 2 packets, got %d", packets)
	}
}

func TestIngestor_OpenFailure(t *testing.T) {
	ing := NewIngestor(&memStore{}, NewEmitter(0), nil)
	err := ing.Run(context.Background(), &FileSource{Path: filepath.Join(t.TempDir(), "missing.txt")})
	if err == nil {
		t.Fatalf("Expected error opening a missing feed")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestIngestor_MalformedLinesWithRealStore(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "ingest.db"), store.Options{WAL: true})
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	defer st.Close()

	ing := NewIngestor(st, NewEmitter(0), nil)
	pr, pw := io.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- ing.Run(ctx, &ReaderSource{Label: "pipe", Reader: pr})
	}()

	feed := "garbage\n" +
		"1700000000\t10.0.0.1\t10.0.0.2\tTCP\tnot-a-number\n" +
		"1700000000\t\t10.0.0.2\tTCP\t60\n" +
		lineAt(minute0, 1500)
	go func() {
		io.WriteString(pw, feed)
	}()

	waitFor(t, "packet to be stored", func() bool { return ing.Stats().PacketsStored == 1 })

	stats := ing.Stats()
	if stats.ParseFailures != 3 {
		t.Errorf("Expected 3 parse failures, got %d", stats.ParseFailures)
	}
	if !stats.Running || stats.Feed != "pipe" {
		t.Errorf("Loop should still be running, got %+v", stats)
	}
	if n, _ := st.CountPackets(context.Background()); n != 1 {
		t.Errorf("Expected 1 packet in store, got %d", n)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}

type countingSource struct {
	mu    sync.Mutex
	opens int
	feed  string
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) Open(ctx context.Context) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	return io.NopCloser(strings.NewReader(s.feed)), nil
}

func (s *countingSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

func TestRunWithRestart_ReopensFeed(t *testing.T) {
	st := &memStore{}
	ing := NewIngestor(st, NewEmitter(0), nil)
	src := &countingSource{feed: lineAt(minute0, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.RunWithRestart(ctx, src, 5*time.Millisecond) }()

	waitFor(t, "feed to be reopened", func() bool { return src.count() >= 3 })
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if ing.Stats().Restarts < 2 {
		t.Errorf("Expected restarts to be counted, got %d", ing.Stats().Restarts)
	}
}

func TestRunWithRestart_DisabledReturnsAfterFirstRun(t *testing.T) {
	ing := NewIngestor(&memStore{}, NewEmitter(0), nil)
	src := &countingSource{feed: lineAt(minute0, 1)}

	if err := ing.RunWithRestart(context.Background(), src, 0); err != nil {
		t.Fatalf("Expected nil, got %v", err)
	}
	if src.count() != 1 {
		t.Errorf("Expected a single open, got %d", src.count())
	}
}

func TestRestartBackoff_Capped(t *testing.T) {
	if b := restartBackoff(time.Second, 0); b < time.Second || b > time.Second+time.Second/4 {
		t.Errorf("Unexpected first backoff %s", b)
	}
	if b := restartBackoff(time.Second, 20); b > maxRestartBackoff+time.Second/4 {
		t.Errorf("Backoff not capped: %s", b)
	}
}
