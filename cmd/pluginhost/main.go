// Command pluginhost runs the Aria plugin host: it discovers, validates,
// loads, and operates plugins under --plugins-dir, exposing them over a
// line-delimited JSON-RPC channel on stdio.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aria-project/pluginhost/discovery"
	"github.com/aria-project/pluginhost/executor"
	"github.com/aria-project/pluginhost/hostconfig"
	"github.com/aria-project/pluginhost/loader"
	"github.com/aria-project/pluginhost/manager"
	"github.com/aria-project/pluginhost/plugin"
	"github.com/aria-project/pluginhost/rpc"
	"github.com/aria-project/pluginhost/shutdown"
	"github.com/aria-project/pluginhost/transport"
)

// version, commit, and date are set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := &cobra.Command{
		Use:           "pluginhost",
		Short:         "Aria plugin host: discovers, loads, and routes calls to voice-assistant plugins",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := hostconfig.BindFlags(rootCmd)

	showVersion := false
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")

	exitCode := 0
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("pluginhost %s (commit %s, built %s)\n", version, commit, date)
			return nil
		}
		exitCode = serve(flags)
		return nil
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return exitCode
}

func serve(flags *hostconfig.Flags) int {
	logger := newLogger(flags.LogLevel)
	slog.SetDefault(logger)

	// The host's own child processes (plugin subprocesses) must not buffer
	// their stdio either, or their handshake and crash diagnostics would
	// arrive late or not at all.
	os.Setenv("PYTHONUNBUFFERED", "1")

	registries, err := hostconfig.Load(flags.ConfigDir)
	if err != nil {
		logger.Error("failed to load config directory", "config_dir", flags.ConfigDir, "error", err)
		return shutdown.CauseFatalError.ExitCode()
	}

	loadOpts := loader.LoadOptions{
		AutoInstallDeps: flags.AutoInstallDeps,
		Logger:          logger,
	}
	loadFunc := func(ctx context.Context, rec discovery.Record) (plugin.Plugin, error) {
		return loader.Load(ctx, rec, loadOpts)
	}
	handshakeFunc := func(ctx context.Context, rec discovery.Record) ([]string, error) {
		return loader.Handshake(ctx, rec, loadOpts.Subprocess)
	}

	mgr := manager.New(flags.PluginsDir, registries.Prefixes, registries.Contracts, loadFunc, handshakeFunc, manager.Hooks{
		OnLoad:   func(name string) { logger.Info("plugin loaded", "plugin", name) },
		OnUnload: func(name string) { logger.Info("plugin unloaded", "plugin", name) },
		OnSwap:   func(oldName, newName string) { logger.Info("plugin swapped", "old", oldName, "new", newName) },
	})

	exec := executor.New(executor.Options{Logger: logger})
	router := rpc.New(mgr, exec)

	inFlight := shutdown.NewInFlightSet()
	coord := shutdown.New(inFlight, shutdown.Options{Logger: logger})
	coord.RegisterCleanup(shutdown.Cleanup{
		Name: "executor",
		Run:  func(ctx context.Context) error { return exec.Shutdown(ctx) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGINT:
				coord.RequestShutdown(shutdown.CauseInterrupt, "interrupt signal received")
			case syscall.SIGTERM:
				coord.RequestShutdown(shutdown.CauseTermination, "termination signal received")
			}
		}
	}()
	defer signal.Stop(sigCh)

	if flags.AutoLoad {
		autoLoad(ctx, mgr, logger)
	}

	writer := transport.NewWriter(os.Stdout)
	loop := transport.NewLoop(os.Stdin, writer, router, coord, inFlight, logger)

	loopErr := loop.Run(ctx)
	switch {
	case loopErr == transport.ErrEndOfInput:
		coord.RequestShutdown(shutdown.CauseEndOfInput, "input stream closed")
	case loopErr != nil:
		logger.Error("main loop terminated abnormally", "error", loopErr)
		coord.RequestShutdown(shutdown.CauseFatalError, loopErr.Error())
	}

	router.SetShuttingDown(true)
	code := coord.Run(context.Background(), mgr.ShutdownAll)
	logger.Info("shutdown complete", "exit_code", code)
	return code
}

// autoLoad loads every discovered plugin whose shallow validation passes.
// Failures are logged and otherwise ignored: a plugin that cannot be
// loaded at startup can still be loaded later via plugin/load.
func autoLoad(ctx context.Context, mgr *manager.Manager, logger *slog.Logger) {
	for _, rec := range mgr.Discover() {
		if !rec.Valid {
			logger.Warn("skipping invalid plugin at startup", "plugin", rec.Name, "errors", rec.Errors)
			continue
		}
		loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		_, err := mgr.Load(loadCtx, rec.Name, nil, true)
		cancel()
		if err != nil {
			logger.Error("auto-load failed", "plugin", rec.Name, "error", err)
		}
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARNING":
		lvl = slog.LevelWarn
	case "ERROR", "CRITICAL":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
