package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"traffic-monitor/backend/models"

	psnet "github.com/shirou/gopsutil/v3/net"
)

func TestInterfaceRows(t *testing.T) {
	ifaces := psnet.InterfaceStatList{
		{Name: "lo", Flags: []string{"up", "loopback"}, Addrs: psnet.InterfaceAddrList{{Addr: "127.0.0.1/8"}}},
		{
			Name:         "eth0",
			HardwareAddr: "00:11:22:33:44:55",
			Flags:        []string{"up", "broadcast", "multicast"},
			Addrs:        psnet.InterfaceAddrList{{Addr: "fe80::1/64"}, {Addr: "192.168.1.5/24"}},
		},
		{Name: "wlan0", Flags: []string{"broadcast"}, Addrs: psnet.InterfaceAddrList{{Addr: "fe80::2/64"}}},
	}

	rows := InterfaceRows(ifaces, "eth0")
	if len(rows) != 2 {
		t.Fatalf("Expected loopback to be skipped, got %d rows", len(rows))
	}

	eth := rows[0]
	if eth.Name != "eth0" || eth.IPAddress != "192.168.1.5" || eth.MACAddress != "00:11:22:33:44:55" ||
		eth.Status != "up" || !eth.IsMonitored {
		t.Errorf("Unexpected eth0 row: %+v", eth)
	}

	wlan := rows[1]
	if wlan.Status != "down" || wlan.IsMonitored || wlan.IPAddress != "fe80::2" {
		t.Errorf("Unexpected wlan0 row: %+v", wlan)
	}
}

type fakePurger struct {
	cutoff time.Time
	n      int64
	err    error
}

func (f *fakePurger) PurgePacketsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.n, f.err
}

func TestRetentionJob_RunOnce(t *testing.T) {
	p := &fakePurger{n: 42}
	j, err := NewRetentionJob(p, "@hourly", 24*time.Hour)
	if err != nil {
		t.Fatalf("NewRetentionJob failed: %v", err)
	}
	now := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }

	if n := j.RunOnce(context.Background()); n != 42 {
		t.Errorf("Expected 42 purged, got %d", n)
	}
	if !p.cutoff.Equal(now.Add(-24 * time.Hour)) {
		t.Errorf("Unexpected cutoff %s", p.cutoff)
	}

	p.err = errors.New("disk I/O error")
	if n := j.RunOnce(context.Background()); n != 0 {
		t.Errorf("Failed purge should report 0, got %d", n)
	}
}

func TestRetentionJob_Validation(t *testing.T) {
	if _, err := NewRetentionJob(&fakePurger{}, "not a schedule", time.Hour); err == nil {
		t.Errorf("Expected schedule error")
	}
	if _, err := NewRetentionJob(&fakePurger{}, "@hourly", 0); err == nil {
		t.Errorf("Expected max age error")
	}
}

func TestRetentionJob_StartStop(t *testing.T) {
	j, err := NewRetentionJob(&fakePurger{}, "@every 1h", time.Hour)
	if err != nil {
		t.Fatalf("NewRetentionJob failed: %v", err)
	}
	j.Start()
	j.Stop()
}

func TestGeoIPService_Disabled(t *testing.T) {
	g, err := NewGeoIPService("")
	if err != nil {
		t.Fatalf("NewGeoIPService failed: %v", err)
	}
	if g.IsEnabled() {
		t.Errorf("Service without database should be disabled")
	}
	if code := g.GetCountryCode("8.8.8.8"); code != UnknownCountry {
		t.Errorf("Expected %s, got %s", UnknownCountry, code)
	}

	rows := []models.SourceVolume{{SourceIP: "8.8.8.8"}}
	g.Annotate(rows)
	if rows[0].CountryCode != "" {
		t.Errorf("Disabled service must not annotate, got %q", rows[0].CountryCode)
	}
	if err := g.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestGeoIPService_MissingDatabase(t *testing.T) {
	if _, err := NewGeoIPService("/nonexistent/GeoLite2-Country.mmdb"); err == nil {
		t.Errorf("Expected error for missing database")
	}
}

func TestFormatUptime(t *testing.T) {
	d := 50*time.Hour + 7*time.Minute + 30*time.Second
	if got := FormatUptime(d); got != "2d 2h 7m" {
		t.Errorf("Unexpected uptime %q", got)
	}
}
