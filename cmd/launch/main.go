// Command launch starts the distributed training launcher on one node,
// built from a YAML config instead of a zoo of environment variables. It
// runs the python side under its own process group, propagates the child's
// exit code, and tears the whole worker tree down on interrupt.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
)

var (
	configPath = flag.String(
		"config",
		"launch.yaml",
		"Path to the launch config file",
	)
	dryRun = flag.Bool(
		"dry-run",
		false,
		"Print the command that would run, without running it",
	)
)

func main() {
	flag.Parse()
	logger := newLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			os.Exit(exitErr.ExitCode())
		}
		logger.Error("top-level error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}

	argv := cfg.Argv()
	if *dryRun {
		words := append(cfg.Environ(), argv...)
		fmt.Println(strings.Join(words, " "))
		return nil
	}

	logger.Info(
		"launching training process",
		slog.String("script", cfg.Script),
		slog.Int("devices_per_node", cfg.DevicesPerNode),
		slog.Int("num_nodes", cfg.NumNodes),
		slog.Int("node_rank", cfg.NodeRank),
	)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = cfg.WorkDir
	cmd.Env = cfg.Environ()
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// Own process group, so cancellation can kill the launcher and every
	// worker process it forked, not just the launcher itself.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("running %s: %w", cfg.Script, err)
	}

	logger.Info("training process exited cleanly")
	return nil
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func newLogger() *slog.Logger {
	var leveler slog.Leveler
	if l, ok := logLevels[strings.ToLower(os.Getenv("LOG_LEVEL"))]; ok {
		leveler = l
	}
	var handler slog.Handler
	if localDev() {
		if leveler == nil {
			leveler = slog.LevelDebug
		}
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: leveler,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: leveler,
		})
	}
	return slog.New(handler)
}

// Cluster nodes are linux; local development happens on laptops.
func localDev() bool {
	return runtime.GOOS == "darwin"
}
