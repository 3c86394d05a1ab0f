package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"

	"github.com/bitobit-development/bms-dashboard-sub000/pkg/log"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/metrics"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/orchestrator"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/storage"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/stream"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/weather"
)

const (
	defaultGenerateDays   = 30
	defaultRunIntervalMin = 5
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: %s <command> [args] [flags]

commands:
  generate [days]     backfill historical readings (default %d days)
  run [interval]      generate readings continuously every 1 or 5 minutes (default %d)
`, os.Args[0], defaultGenerateDays, defaultRunIntervalMin)
	os.Exit(2)
}

// splitArgs pulls the command and its positional arguments off os.Args so
// flag parsing only sees flags.
func splitArgs() (cmd string, positionals []string) {
	rest := []string{os.Args[0]}
	args := os.Args[1:]
	for i, a := range args {
		if strings.HasPrefix(a, "-") {
			rest = append(rest, args[i:]...)
			break
		}
		if cmd == "" {
			cmd = a
		} else {
			positionals = append(positionals, a)
		}
	}
	os.Args = rest
	return cmd, positionals
}

// parseDays reads the backfill day count from the generate positionals.
// Absent means the default; non-numeric or non-positive values are rejected.
func parseDays(positionals []string) (int, bool) {
	if len(positionals) == 0 {
		return defaultGenerateDays, true
	}
	n, err := strconv.Atoi(positionals[0])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// parseInterval reads the run interval from the run positionals. Only 1 and
// 5 minute rounds are supported.
func parseInterval(positionals []string) (int, bool) {
	if len(positionals) == 0 {
		return defaultRunIntervalMin, true
	}
	n, err := strconv.Atoi(positionals[0])
	if err != nil || (n != 1 && n != 5) {
		return 0, false
	}
	return n, true
}

func main() {
	cmd, positionals := splitArgs()

	// reject bad arguments before any flag parsing or storage setup
	var days, interval int
	switch cmd {
	case "generate":
		var ok bool
		if days, ok = parseDays(positionals); !ok {
			fmt.Fprintf(os.Stderr, "invalid days %q\n", positionals[0])
			usage()
		}
	case "run":
		var ok bool
		if interval, ok = parseInterval(positionals); !ok {
			fmt.Fprintf(os.Stderr, "invalid interval %q\n", positionals[0])
			usage()
		}
	case "":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
	}

	// init packages
	mc := metrics.NewCollector("bms_telemetry")
	db := storage.Configured()
	wp := weather.Configured()
	hub := stream.NewHub(func(n int) { mc.StreamClients.Set(float64(n)) })
	srv := stream.Configured(hub)
	o := orchestrator.Configured(db, wp, mc, hub)

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		if err := db.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()

	switch cmd {
	case "generate":
		if err := o.GenerateHistory(ctx, days); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "backfill failed", "error", err)
			os.Exit(1)
		}
		log.Ctx(ctx).InfoContext(ctx, "backfill finished")

	case "run":
		// the admin server and generator stop together
		errChan := make(chan error, 1)
		go func() {
			if err := srv.Run(ctx); err != nil {
				errChan <- err
				cancel()
			}
		}()

		if err := o.Run(ctx, interval); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "run failed", "error", err)
			os.Exit(1)
		}
		select {
		case err := <-errChan:
			log.Ctx(ctx).ErrorContext(ctx, "admin server failed", "error", err)
			os.Exit(1)
		default:
		}
		log.Ctx(ctx).InfoContext(ctx, "exited cleanly")
	}
}
