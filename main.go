package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/doridoridoriand/latcheck/internal/cli"
	"github.com/doridoridoriand/latcheck/internal/config"
	"github.com/doridoridoriand/latcheck/internal/events"
	"github.com/doridoridoriand/latcheck/internal/log"
	"github.com/doridoridoriand/latcheck/internal/ping"
	"github.com/doridoridoriand/latcheck/internal/report"
	"github.com/doridoridoriand/latcheck/internal/scheduler"
	"github.com/doridoridoriand/latcheck/internal/ui"
	"golang.org/x/term"
)

const (
	version    = "0.2.0"
	maxWorkers = 256
)

func main() {
	var (
		flagProbes   = cli.OptionalInt{Min: config.MinProbeCount, Max: config.MaxProbeCount}
		flagWorkers  = cli.OptionalInt{Min: 1, Max: maxWorkers}
		flagTimeout  cli.OptionalDuration
		flagLogFile  cli.OptionalString
		flagLogLevel cli.OptionalLevel
		flagNoUI     cli.OptionalBool
		flagJSON     cli.OptionalBool
		flagVersion  bool
	)

	flag.Var(&flagProbes, "probes", "probes per target, 4-50 (override config)")
	flag.Var(&flagProbes, "p", "probes per target, 4-50 (override config)")
	flag.Var(&flagTimeout, "timeout", "per-probe timeout (override config)")
	flag.Var(&flagTimeout, "t", "per-probe timeout (override config)")
	flag.Var(&flagWorkers, "workers", "targets probed concurrently (override config)")
	flag.Var(&flagWorkers, "w", "targets probed concurrently (override config)")
	flag.Var(&flagNoUI, "no-ui", "disable TUI and print a report when done")
	flag.Var(&flagJSON, "json", "print the report as JSON (implies -no-ui)")
	flag.Var(&flagLogFile, "log", "append logs to this file")
	flag.Var(&flagLogLevel, "log-level", "log level: debug|info|warn|error")
	flag.BoolVar(&flagVersion, "version", false, "show version")
	flag.BoolVar(&flagVersion, "v", false, "show version")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [options] [targets-file]\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Without a targets file the built-in server list is probed.")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
	}

	flag.Parse()

	if flagVersion {
		fmt.Fprintf(os.Stdout, "latcheck version %s\n", version)
		return
	}

	args := flag.Args()
	if len(args) > 1 {
		flag.Usage()
		os.Exit(2)
	}

	overrides := buildOverrides(flagProbes, flagTimeout, flagWorkers, flagLogLevel, flagLogFile, flagNoUI, flagJSON)
	cfg, path, err := loadConfig(config.LatcheckParser{}, args, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	tui := useTUI(cfg.Global, term.IsTerminal(int(os.Stdout.Fd())))
	logger, logs, closeLog, err := setupLogger(cfg.Global, tui, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	logger.LogConfigLoad(true, path, len(cfg.Targets), nil)

	sched := scheduler.NewScheduler(cfg.Targets, ping.NewDefault(), events.NewBus(), schedulerOptions(cfg.Global, logger)...)

	ctx, cancel := signalContext()
	defer cancel()

	if tui {
		err = ui.New(sched, logs, cfg.Global.ProbeCount).Run(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	} else {
		err = runHeadless(ctx, sched, cfg, os.Stdout)
	}
	if err != nil {
		logger.LogError("main", err, nil)
		fmt.Fprintf(os.Stderr, "latcheck: %v\n", err)
		closeLog()
		os.Exit(1)
	}
}

func buildOverrides(
	probes cli.OptionalInt,
	timeout cli.OptionalDuration,
	workers cli.OptionalInt,
	logLevel cli.OptionalLevel,
	logFile cli.OptionalString,
	noUI cli.OptionalBool,
	jsonOut cli.OptionalBool,
) config.CLIOverrides {
	overrides := config.CLIOverrides{}

	if v, ok := probes.Value(); ok {
		value := v
		overrides.ProbeCount = &value
	}
	if v, ok := timeout.Value(); ok {
		value := v
		overrides.Timeout = &value
	}
	if v, ok := workers.Value(); ok {
		value := v
		overrides.Workers = &value
	}
	if v, ok := logLevel.Value(); ok && v != "" {
		value := v
		overrides.LogLevel = &value
	}
	if v, ok := logFile.Value(); ok && v != "" {
		value := v
		overrides.LogFile = &value
	}
	if v, ok := noUI.Value(); ok {
		value := v
		overrides.UIDisable = &value
	}
	if v, ok := jsonOut.Value(); ok {
		value := v
		overrides.JSON = &value
	}

	return overrides
}

// loadConfig reads the targets file when one is given and falls back to the
// built-in list otherwise. The returned path is empty for the built-in list.
func loadConfig(parser config.Parser, args []string, overrides config.CLIOverrides) (*config.Config, string, error) {
	if len(args) == 0 {
		cfg := config.Default(overrides)
		return cfg, "", config.RunConfig{ProbeCount: cfg.Global.ProbeCount, Targets: cfg.Targets}.Validate()
	}
	cfg, err := parser.LoadConfig(args[0], overrides)
	return cfg, args[0], err
}

func useTUI(global config.GlobalOptions, isTerminal bool) bool {
	return isTerminal && !global.UIDisable && !global.JSON
}

// setupLogger builds the process logger. The TUI gets text lines in a log
// buffer for its log pane; headless mode writes JSON to stderr. A log file,
// when configured, receives the same stream.
func setupLogger(global config.GlobalOptions, tui bool, stderr io.Writer) (*log.Logger, *ui.LogBuffer, func(), error) {
	logger := log.NewLogger(log.ParseLevel(global.LogLevel))

	var (
		logs    *ui.LogBuffer
		writers []io.Writer
	)
	if tui {
		logs = ui.NewLogBuffer(0)
		logger.SetFormat(log.FormatText)
		writers = append(writers, logs)
	} else {
		writers = append(writers, stderr)
	}

	closeFn := func() {}
	if global.LogFile != "" {
		f, err := os.OpenFile(global.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, nil, err
		}
		writers = append(writers, f)
		closeFn = func() { _ = f.Close() }
	}

	logger.SetOutput(io.MultiWriter(writers...))
	return logger, logs, closeFn, nil
}

func schedulerOptions(global config.GlobalOptions, logger *log.Logger) []scheduler.Option {
	opts := []scheduler.Option{
		scheduler.WithTimeout(global.Timeout),
		scheduler.WithLogger(logger),
	}
	if global.Workers > 0 {
		opts = append(opts, scheduler.WithWorkers(global.Workers))
	}
	return opts
}

// runController is the scheduler surface headless mode needs.
type runController interface {
	Start(probeCount int) error
	Stop()
	Done() <-chan struct{}
	DrainEvents() []events.Event
}

// runHeadless performs one run, stopping it early when ctx is cancelled, and
// writes the report to w.
func runHeadless(ctx context.Context, sched runController, cfg *config.Config, w io.Writer) error {
	if err := sched.Start(cfg.Global.ProbeCount); err != nil {
		return err
	}

	select {
	case <-sched.Done():
	case <-ctx.Done():
		sched.Stop()
		<-sched.Done()
	}

	res := report.Collect(cfg.Targets, sched.DrainEvents())
	if cfg.Global.JSON {
		return report.WriteJSON(w, res)
	}
	return report.WriteText(w, res)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
