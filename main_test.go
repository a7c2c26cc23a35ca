package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/doridoridoriand/latcheck/internal/cli"
	"github.com/doridoridoriand/latcheck/internal/config"
	"github.com/doridoridoriand/latcheck/internal/events"
	"github.com/doridoridoriand/latcheck/internal/log"
	"github.com/doridoridoriand/latcheck/internal/ping"
	"github.com/doridoridoriand/latcheck/internal/scheduler"
)

func TestBuildOverrides(t *testing.T) {
	t.Run("all overrides set", func(t *testing.T) {
		probes := cli.OptionalInt{Min: config.MinProbeCount, Max: config.MaxProbeCount}
		var timeout cli.OptionalDuration
		var workers cli.OptionalInt
		var level cli.OptionalLevel
		var logFile cli.OptionalString
		var noUI, jsonOut cli.OptionalBool
		mustSet(t, &probes, "12")
		mustSet(t, &timeout, "1s")
		mustSet(t, &workers, "4")
		mustSet(t, &level, "DEBUG")
		mustSet(t, &logFile, "/tmp/latcheck.log")
		mustSet(t, &noUI, "true")
		mustSet(t, &jsonOut, "false")

		o := buildOverrides(probes, timeout, workers, level, logFile, noUI, jsonOut)
		if o.ProbeCount == nil || *o.ProbeCount != 12 {
			t.Errorf("expected probes 12, got %v", o.ProbeCount)
		}
		if o.Timeout == nil || *o.Timeout != time.Second {
			t.Errorf("expected timeout 1s, got %v", o.Timeout)
		}
		if o.Workers == nil || *o.Workers != 4 {
			t.Errorf("expected workers 4, got %v", o.Workers)
		}
		if o.LogLevel == nil || *o.LogLevel != "debug" {
			t.Errorf("expected log level debug, got %v", o.LogLevel)
		}
		if o.LogFile == nil || *o.LogFile != "/tmp/latcheck.log" {
			t.Errorf("unexpected log file %v", o.LogFile)
		}
		if o.UIDisable == nil || !*o.UIDisable {
			t.Errorf("expected no-ui true")
		}
		if o.JSON == nil || *o.JSON {
			t.Errorf("expected explicit json=false")
		}
	})

	t.Run("no overrides set", func(t *testing.T) {
		o := buildOverrides(cli.OptionalInt{}, cli.OptionalDuration{}, cli.OptionalInt{}, cli.OptionalLevel{}, cli.OptionalString{}, cli.OptionalBool{}, cli.OptionalBool{})
		if o.ProbeCount != nil || o.Timeout != nil || o.Workers != nil || o.LogLevel != nil ||
			o.LogFile != nil || o.UIDisable != nil || o.JSON != nil {
			t.Errorf("expected empty overrides, got %+v", o)
		}
	})
}

type setter interface {
	Set(string) error
}

func mustSet(t *testing.T, s setter, value string) {
	t.Helper()
	if err := s.Set(value); err != nil {
		t.Fatalf("Set(%q): %v", value, err)
	}
}

func TestProbeFlagRejectsOutOfRange(t *testing.T) {
	probes := cli.OptionalInt{Min: config.MinProbeCount, Max: config.MaxProbeCount}
	for _, v := range []string{"3", "51"} {
		if err := probes.Set(v); err == nil {
			t.Errorf("expected %s to be rejected", v)
		}
	}
}

func TestLoadConfigDefaultList(t *testing.T) {
	probes := 10
	cfg, path, err := loadConfig(config.LatcheckParser{}, nil, config.CLIOverrides{ProbeCount: &probes})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
	if len(cfg.Targets) != len(config.DefaultTargets()) {
		t.Errorf("expected built-in targets, got %d", len(cfg.Targets))
	}
	if cfg.Global.ProbeCount != 10 {
		t.Errorf("expected probes 10, got %d", cfg.Global.ProbeCount)
	}
}

func TestLoadConfigFileWithOverrides(t *testing.T) {
	path := createTempConfig(t, `# latcheck: probes=5 timeout=1s workers=2
Tokyo Japan 192.0.2.1
Osaka 192.0.2.2
`)
	workers := 6
	cfg, gotPath, err := loadConfig(config.LatcheckParser{}, []string{path}, config.CLIOverrides{Workers: &workers})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if gotPath != path {
		t.Errorf("expected path %q, got %q", path, gotPath)
	}
	if len(cfg.Targets) != 2 || cfg.Targets[0].ID != "Tokyo Japan" {
		t.Fatalf("unexpected targets %+v", cfg.Targets)
	}
	if cfg.Global.ProbeCount != 5 || cfg.Global.Timeout != time.Second {
		t.Errorf("expected directive values, got %+v", cfg.Global)
	}
	if cfg.Global.Workers != 6 {
		t.Errorf("expected CLI workers to win, got %d", cfg.Global.Workers)
	}
}

func TestLoadConfigInvalidFile(t *testing.T) {
	if _, _, err := loadConfig(config.LatcheckParser{}, []string{"/nonexistent/targets.conf"}, config.CLIOverrides{}); err == nil {
		t.Error("expected error for nonexistent targets file")
	}
}

type recordingParser struct {
	config.LatcheckParser
	paths []string
}

func (p *recordingParser) LoadConfig(path string, overrides config.CLIOverrides) (*config.Config, error) {
	p.paths = append(p.paths, path)
	return p.LatcheckParser.LoadConfig(path, overrides)
}

func TestLoadConfigUsesGivenParser(t *testing.T) {
	path := createTempConfig(t, "a 192.0.2.1\n")
	parser := &recordingParser{}
	if _, _, err := loadConfig(parser, []string{path}, config.CLIOverrides{}); err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if _, _, err := loadConfig(parser, nil, config.CLIOverrides{}); err != nil {
		t.Fatalf("loadConfig default: %v", err)
	}
	if len(parser.paths) != 1 || parser.paths[0] != path {
		t.Fatalf("expected parser to load only %q, got %v", path, parser.paths)
	}
}

func TestLoadConfigRejectsOptionLikeAddress(t *testing.T) {
	path := createTempConfig(t, "flood -f\n")
	_, _, err := loadConfig(config.LatcheckParser{}, []string{path}, config.CLIOverrides{})
	if !errors.Is(err, config.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestUseTUI(t *testing.T) {
	tests := []struct {
		name     string
		global   config.GlobalOptions
		terminal bool
		want     bool
	}{
		{"terminal", config.GlobalOptions{}, true, true},
		{"piped", config.GlobalOptions{}, false, false},
		{"no-ui", config.GlobalOptions{UIDisable: true}, true, false},
		{"json", config.GlobalOptions{JSON: true}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := useTUI(tt.global, tt.terminal); got != tt.want {
				t.Errorf("useTUI = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSetupLoggerHeadlessWritesJSON(t *testing.T) {
	var stderr bytes.Buffer
	logger, logs, closeLog, err := setupLogger(config.GlobalOptions{LogLevel: "info"}, false, &stderr)
	if err != nil {
		t.Fatalf("setupLogger: %v", err)
	}
	defer closeLog()
	if logs != nil {
		t.Errorf("headless mode should not allocate a log buffer")
	}

	logger.Info("hello", map[string]interface{}{"target": "A"})
	var entry map[string]interface{}
	if err := json.Unmarshal(stderr.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", stderr.String(), err)
	}
	if entry["message"] != "hello" || entry["target"] != "A" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestSetupLoggerTUIWritesBufferAndFile(t *testing.T) {
	var stderr bytes.Buffer
	logPath := filepath.Join(t.TempDir(), "latcheck.log")
	logger, logs, closeLog, err := setupLogger(config.GlobalOptions{LogLevel: "info", LogFile: logPath}, true, &stderr)
	if err != nil {
		t.Fatalf("setupLogger: %v", err)
	}

	logger.Info("Starting ping test", map[string]interface{}{"target": "Tokyo"})
	closeLog()

	if stderr.Len() != 0 {
		t.Errorf("TUI mode must not write to stderr, got %q", stderr.String())
	}
	lines := logs.Tail(5)
	if len(lines) != 1 || !strings.Contains(lines[0], "Starting ping test") {
		t.Fatalf("unexpected log pane lines %v", lines)
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "target=Tokyo") {
		t.Errorf("expected log file to contain the entry, got %q", data)
	}
}

func TestSetupLoggerBadFile(t *testing.T) {
	_, _, _, err := setupLogger(config.GlobalOptions{LogFile: filepath.Join(t.TempDir(), "missing", "x.log")}, false, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for unwritable log path")
	}
}

func TestSchedulerOptionsWorkers(t *testing.T) {
	targets := []config.Target{{ID: "A", Address: "192.0.2.1"}}
	s := scheduler.NewScheduler(targets, stubPinger(time.Millisecond), events.NewBus(),
		schedulerOptions(config.GlobalOptions{Timeout: time.Second, Workers: 5}, log.Discard())...)
	if s.PoolSize() != 5 {
		t.Errorf("expected pool size 5, got %d", s.PoolSize())
	}

	s = scheduler.NewScheduler(targets, stubPinger(time.Millisecond), events.NewBus(),
		schedulerOptions(config.GlobalOptions{Timeout: time.Second}, log.Discard())...)
	if s.PoolSize() != scheduler.DefaultWorkers() {
		t.Errorf("expected default pool size %d, got %d", scheduler.DefaultWorkers(), s.PoolSize())
	}
}

func TestRunHeadlessText(t *testing.T) {
	cfg := headlessConfig(false)
	s := scheduler.NewScheduler(cfg.Targets, stubPinger(3*time.Millisecond), events.NewBus(), scheduler.WithWorkers(2))

	var out bytes.Buffer
	if err := runHeadless(context.Background(), s, cfg, &out); err != nil {
		t.Fatalf("runHeadless: %v", err)
	}
	text := out.String()
	if strings.Count(text, "4/4") != 2 {
		t.Errorf("expected both targets complete, got:\n%s", text)
	}
	if strings.Contains(text, "stopped") {
		t.Errorf("completed run reported as stopped:\n%s", text)
	}
}

func TestRunHeadlessJSON(t *testing.T) {
	cfg := headlessConfig(true)
	s := scheduler.NewScheduler(cfg.Targets, stubPinger(2*time.Millisecond), events.NewBus())

	var out bytes.Buffer
	if err := runHeadless(context.Background(), s, cfg, &out); err != nil {
		t.Fatalf("runHeadless: %v", err)
	}
	var decoded struct {
		Cancelled bool `json:"cancelled"`
		Targets   []struct {
			ID        string `json:"id"`
			Attempted int    `json:"attempted"`
			LossPct   *int   `json:"loss_pct"`
		} `json:"targets"`
	}
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out.String())
	}
	if decoded.Cancelled || len(decoded.Targets) != 2 {
		t.Fatalf("unexpected report %+v", decoded)
	}
	for _, tgt := range decoded.Targets {
		if tgt.Attempted != 4 || tgt.LossPct == nil || *tgt.LossPct != 0 {
			t.Errorf("unexpected target %+v", tgt)
		}
	}
}

func TestRunHeadlessStopsOnCancel(t *testing.T) {
	cfg := headlessConfig(false)
	release := make(chan struct{})
	var probes sync.WaitGroup
	probes.Add(1)
	var once sync.Once
	pinger := ping.Func(func(ctx context.Context, addr string, timeout time.Duration) (ping.Sample, error) {
		once.Do(probes.Done)
		<-release
		return ping.Reply(time.Millisecond), nil
	})
	inner := scheduler.NewScheduler(cfg.Targets, pinger, events.NewBus(), scheduler.WithWorkers(1))
	ctl := &releasingController{Impl: inner, release: release}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		probes.Wait()
		cancel()
	}()

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- runHeadless(ctx, ctl, cfg, &out) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runHeadless: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runHeadless did not return after cancel")
	}
	text := out.String()
	if !strings.Contains(text, "run stopped before completion") {
		t.Errorf("expected stopped footer:\n%s", text)
	}
	if !strings.Contains(text, "1/4") || !strings.Contains(text, "0/4") {
		t.Errorf("expected one partial and one unstarted target:\n%s", text)
	}
}

func TestRunHeadlessStartError(t *testing.T) {
	cfg := headlessConfig(false)
	cfg.Global.ProbeCount = 2
	s := scheduler.NewScheduler(cfg.Targets, stubPinger(time.Millisecond), events.NewBus())
	err := runHeadless(context.Background(), s, cfg, &bytes.Buffer{})
	if !errors.Is(err, scheduler.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestSignalContextCancellation(t *testing.T) {
	ctx, cancel := signalContext()
	if ctx.Err() != nil {
		t.Fatalf("expected live context, got %v", ctx.Err())
	}
	if _, ok := ctx.Deadline(); ok {
		t.Error("context should not have a deadline")
	}
	cancel()
	select {
	case <-ctx.Done():
		if ctx.Err() != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", ctx.Err())
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("context should be cancelled")
	}
}

// releasingController unblocks the test pinger only after Stop has been
// requested, so the in-flight probe is the last one.
type releasingController struct {
	*scheduler.Impl
	release chan struct{}
	once    sync.Once
}

func (c *releasingController) Stop() {
	c.Impl.Stop()
	c.once.Do(func() { close(c.release) })
}

func stubPinger(rtt time.Duration) ping.Pinger {
	return ping.Func(func(ctx context.Context, addr string, timeout time.Duration) (ping.Sample, error) {
		return ping.Reply(rtt), nil
	})
}

func headlessConfig(jsonOut bool) *config.Config {
	return &config.Config{
		Targets: []config.Target{
			{ID: "A", Address: "192.0.2.1"},
			{ID: "B", Address: "192.0.2.2"},
		},
		Global: config.GlobalOptions{ProbeCount: 4, Timeout: time.Second, JSON: jsonOut},
	}
}

func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "targets.conf")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write targets file: %v", err)
	}
	return path
}
