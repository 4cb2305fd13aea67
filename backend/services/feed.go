package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"traffic-monitor/backend/config"
	"traffic-monitor/backend/system"
)

// FeedSource produces the line-oriented packet feed. Closing the returned
// stream stops the source.
type FeedSource interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Name() string
}

// TsharkFields is the -e column list; ParseLine depends on this order.
var TsharkFields = []string{
	"frame.time_epoch", "ip.src", "ip.dst",
	"_ws.col.Protocol", "frame.len",
	"tcp.srcport", "tcp.dstport",
	"udp.srcport", "udp.dstport",
	"tcp.flags", "ip.ttl", "eth.src", "eth.dst",
}

// TsharkArgs builds the capture command line for an interface.
func TsharkArgs(iface string) []string {
	args := []string{"-i", iface, "-l", "-T", "fields"}
	for _, f := range TsharkFields {
		args = append(args, "-e", f)
	}
	return args
}

// TsharkSource runs tshark as a subprocess and streams its stdout.
type TsharkSource struct {
	Path      string
	Interface string
}

func (s *TsharkSource) Name() string {
	return fmt.Sprintf("tshark:%s", s.Interface)
}

func (s *TsharkSource) Open(ctx context.Context) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, s.Path, TsharkArgs(s.Interface)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to attach tshark stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to attach tshark stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start tshark: %w", err)
	}
	system.Info("tshark started on interface %s (pid %d)", s.Interface, cmd.Process.Pid)

	ps := &processStream{ReadCloser: stdout, cmd: cmd, ctx: ctx, cancel: cancel, stderrDone: make(chan struct{})}

	// tshark prints capture status and warnings on stderr
	go func() {
		defer close(ps.stderrDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				system.Warn("tshark: %s", line)
				ps.setLastStderr(line)
			}
		}
	}()

	return ps, nil
}

// exitGrace bounds how long Close waits for tshark to exit on its own and
// for the stderr relay to finish.
const exitGrace = 5 * time.Second

// processStream kills and reaps the subprocess on Close. When stdout reached
// EOF the process is left to exit by itself and a failed exit status is
// returned from Close.
type processStream struct {
	io.ReadCloser
	cmd        *exec.Cmd
	ctx        context.Context
	cancel     context.CancelFunc
	stderrDone chan struct{}
	eof        atomic.Bool
	once       sync.Once
	err        error

	mu         sync.Mutex
	lastStderr string
}

func (p *processStream) Read(b []byte) (int, error) {
	n, err := p.ReadCloser.Read(b)
	if errors.Is(err, io.EOF) {
		p.eof.Store(true)
	}
	return n, err
}

func (p *processStream) setLastStderr(line string) {
	p.mu.Lock()
	p.lastStderr = line
	p.mu.Unlock()
}

func (p *processStream) Close() error {
	p.once.Do(func() {
		exited := p.eof.Load()
		if exited {
			kill := time.AfterFunc(exitGrace, p.cancel)
			defer kill.Stop()
		} else {
			p.cancel()
			p.ReadCloser.Close()
		}

		// Wait closes the stderr pipe, so the relay has to finish first.
		select {
		case <-p.stderrDone:
		case <-time.After(exitGrace):
			system.Warn("tshark stderr still open after %s", exitGrace)
		}

		err := p.cmd.Wait()
		stopped := p.ctx.Err() != nil
		p.cancel()
		switch {
		case err == nil:
			system.Info("tshark exited")
		case exited && !stopped:
			p.mu.Lock()
			last := p.lastStderr
			p.mu.Unlock()
			if last != "" {
				p.err = fmt.Errorf("tshark exited: %w (%s)", err, last)
			} else {
				p.err = fmt.Errorf("tshark exited: %w", err)
			}
			system.Warn("%v", p.err)
		default:
			system.Debug("tshark stopped: %v", err)
		}
	})
	return p.err
}

// FileSource replays a file of feed lines, one per line.
type FileSource struct {
	Path string
}

func (s *FileSource) Name() string {
	return "file:" + s.Path
}

func (s *FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feed file: %w", err)
	}
	return f, nil
}

// ReaderSource serves a fixed reader. It is used for tests and stdin.
type ReaderSource struct {
	Label  string
	Reader io.Reader
}

func (s *ReaderSource) Name() string {
	if s.Label == "" {
		return "reader"
	}
	return s.Label
}

func (s *ReaderSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if rc, ok := s.Reader.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(s.Reader), nil
}

// NewFeedSource builds the source selected in the capture config.
func NewFeedSource(cfg config.CaptureConfig) (FeedSource, error) {
	switch cfg.Source {
	case config.SourceTshark, "":
		return &TsharkSource{Path: cfg.TsharkPath, Interface: cfg.Interface}, nil
	case config.SourceFile:
		return &FileSource{Path: cfg.File}, nil
	case config.SourcePcap:
		return &PcapFileSource{Path: cfg.File}, nil
	default:
		return nil, fmt.Errorf("%w: unknown capture source %q", config.ErrInvalidConfig, cfg.Source)
	}
}

// ErrCaptureUnavailable means the configured capture executable cannot run
// or cannot open the configured interface.
var ErrCaptureUnavailable = errors.New("capture unavailable")

// CheckCaptureBinary verifies tshark can be found and started before the
// ingestion loop is launched. It returns the version banner.
func CheckCaptureBinary(executor system.CommandExecutor, path string) (string, error) {
	resolved, err := executor.LookPath(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCaptureUnavailable, path, err)
	}

	out, err := executor.Execute(resolved, "-v")
	if err != nil {
		return "", fmt.Errorf("%w: %s -v: %v", ErrCaptureUnavailable, resolved, err)
	}

	banner := strings.TrimSpace(out)
	if i := strings.IndexByte(banner, '\n'); i >= 0 {
		banner = banner[:i]
	}
	return banner, nil
}

// CheckCaptureInterface asks tshark for its capture interfaces (-D) and
// fails unless iface is listed, either by name or by index.
func CheckCaptureInterface(executor system.CommandExecutor, path, iface string) error {
	resolved, err := executor.LookPath(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCaptureUnavailable, path, err)
	}

	out, err := executor.Execute(resolved, "-D")
	if err != nil {
		return fmt.Errorf("%w: %s -D: %v", ErrCaptureUnavailable, resolved, err)
	}

	names := ListedInterfaces(out)
	for _, li := range names {
		if li.Name == iface || li.Index == iface {
			return nil
		}
	}
	return fmt.Errorf("%w: interface %q not found (tshark lists %d interfaces)", ErrCaptureUnavailable, iface, len(names))
}

// ListedInterface is one line of "tshark -D" output.
type ListedInterface struct {
	Index string
	Name  string
}

// ListedInterfaces parses "tshark -D" output, lines such as
// "1. eth0" or "3. lo (Loopback)".
func ListedInterfaces(out string) []ListedInterface {
	var result []ListedInterface
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		idx, rest, ok := strings.Cut(line, ". ")
		if !ok || idx == "" {
			continue
		}
		name, _, _ := strings.Cut(strings.TrimSpace(rest), " ")
		if name == "" {
			continue
		}
		result = append(result, ListedInterface{Index: idx, Name: name})
	}
	return result
}
