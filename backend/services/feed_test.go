package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"traffic-monitor/backend/config"
	"traffic-monitor/backend/system"
)

func TestTsharkArgs(t *testing.T) {
	args := TsharkArgs("4")
	want := "-i 4 -l -T fields -e frame.time_epoch -e ip.src -e ip.dst -e _ws.col.Protocol -e frame.len " +
		"-e tcp.srcport -e tcp.dstport -e udp.srcport -e udp.dstport -e tcp.flags -e ip.ttl -e eth.src -e eth.dst"
	if got := strings.Join(args, " "); got != want {
		t.Errorf("Unexpected args:\n got: %s\nwant: %s", got, want)
	}
}

func TestCheckCaptureBinary(t *testing.T) {
	exec := &system.MockExecutor{Outputs: map[string]string{
		"tshark": "TShark (Wireshark) 4.2.2.\n\nCopyright 1998-2024 Gerald Combs",
	}}

	banner, err := CheckCaptureBinary(exec, "tshark")
	if err != nil {
		t.Fatalf("CheckCaptureBinary failed: %v", err)
	}
	if banner != "TShark (Wireshark) 4.2.2." {
		t.Errorf("Unexpected banner %q", banner)
	}
	if len(exec.Calls) != 1 || exec.Calls[0] != "tshark -v" {
		t.Errorf("Unexpected calls: %v", exec.Calls)
	}
}

func TestCheckCaptureBinary_Missing(t *testing.T) {
	exec := &system.MockExecutor{Missing: map[string]bool{"tshark": true}}
	_, err := CheckCaptureBinary(exec, "tshark")
	if !errors.Is(err, ErrCaptureUnavailable) {
		t.Fatalf("Expected ErrCaptureUnavailable, got %v", err)
	}
	if len(exec.Calls) != 0 {
		t.Errorf("Binary must not be executed when missing")
	}
}

const tsharkInterfaces = `1. eth0
2. any
3. lo (Loopback)
4. bluetooth-monitor
`

func TestCheckCaptureInterface(t *testing.T) {
	exec := &system.MockExecutor{Outputs: map[string]string{"tshark -D": tsharkInterfaces}}

	for _, iface := range []string{"eth0", "lo", "any", "3"} {
		if err := CheckCaptureInterface(exec, "tshark", iface); err != nil {
			t.Errorf("Interface %s should be accepted: %v", iface, err)
		}
	}
	if exec.Calls[0] != "tshark -D" {
		t.Errorf("Unexpected call %q", exec.Calls[0])
	}
}

func TestCheckCaptureInterface_Unknown(t *testing.T) {
	exec := &system.MockExecutor{Outputs: map[string]string{"tshark -D": tsharkInterfaces}}

	err := CheckCaptureInterface(exec, "tshark", "bogus0")
	if !errors.Is(err, ErrCaptureUnavailable) {
		t.Fatalf("Expected ErrCaptureUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "bogus0") {
		t.Errorf("Error should name the interface: %v", err)
	}

	missing := &system.MockExecutor{Missing: map[string]bool{"tshark": true}}
	if err := CheckCaptureInterface(missing, "tshark", "eth0"); !errors.Is(err, ErrCaptureUnavailable) {
		t.Errorf("Expected ErrCaptureUnavailable for missing binary, got %v", err)
	}
}

func TestListedInterfaces(t *testing.T) {
	got := ListedInterfaces(tsharkInterfaces + "\n\ngarbage\n")
	if len(got) != 4 {
		t.Fatalf("Expected 4 interfaces, got %+v", got)
	}
	if got[2] != (ListedInterface{Index: "3", Name: "lo"}) {
		t.Errorf("Unexpected entry %+v", got[2])
	}
}

// fakeTshark writes an executable script standing in for tshark.
func fakeTshark(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts need a unix shell")
	}
	path := filepath.Join(t.TempDir(), "tshark")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}
	return path
}

func TestTsharkSource_FailedExitIsReported(t *testing.T) {
	path := fakeTshark(t, "echo \"Capture session could not be initiated on interface 'bogus0'\" >&2\nexit 2\n")

	ing := NewIngestor(&memStore{}, NewEmitter(0), nil)
	err := ing.Run(context.Background(), &TsharkSource{Path: path, Interface: "bogus0"})
	if err == nil {
		t.Fatalf("Expected an error for a failed capture")
	}
	if !strings.Contains(err.Error(), "exit status 2") || !strings.Contains(err.Error(), "bogus0") {
		t.Errorf("Error should carry the exit status and the last stderr line: %v", err)
	}
	if last := ing.Stats().LastError; !strings.Contains(last, "exit status 2") {
		t.Errorf("LastError not recorded: %q", last)
	}
}

func TestTsharkSource_CleanExit(t *testing.T) {
	path := fakeTshark(t, "printf '1714564800.5\\t10.0.0.1\\t10.0.0.2\\tTCP\\t60\\n'\n")

	st := &memStore{}
	ing := NewIngestor(st, NewEmitter(0), nil)
	if err := ing.Run(context.Background(), &TsharkSource{Path: path, Interface: "eth0"}); err != nil {
		t.Fatalf("Clean exit should not fail: %v", err)
	}
	if packets, _ := st.counts(); packets != 1 {
		t.Errorf("Expected 1 packet, got %d", packets)
	}
}

func TestNewFeedSource(t *testing.T) {
	src, err := NewFeedSource(config.CaptureConfig{Source: config.SourceTshark, TsharkPath: "tshark", Interface: "eth0"})
	if err != nil {
		t.Fatalf("NewFeedSource failed: %v", err)
	}
	if src.Name() != "tshark:eth0" {
		t.Errorf("Unexpected name %q", src.Name())
	}

	if src, _ := NewFeedSource(config.CaptureConfig{Source: config.SourcePcap, File: "x.pcap"}); src.Name() != "pcap:x.pcap" {
		t.Errorf("Unexpected pcap source %q", src.Name())
	}

	if _, err := NewFeedSource(config.CaptureConfig{Source: "netflow"}); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.txt")
	body := lineAt(minute0, 60) + lineAt(minute0, 70)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	rc, err := (&FileSource{Path: path}).Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	if string(data) != body {
		t.Errorf("Unexpected file contents")
	}
}
