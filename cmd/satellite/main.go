// Command satellite is the rhasspy-community desktop voice-satellite
// daemon: it bridges local microphone and speaker hardware to a remote
// voice-assistant orchestrator over an MQTT bus.
package main

import (
	"fmt"
	"log/slog"
	"log/syslog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/rhasspy-community/desktop-satellite/internal/apperr"
	"github.com/rhasspy-community/desktop-satellite/internal/config"
	"github.com/rhasspy-community/desktop-satellite/internal/satellite"
)

// version is the daemon's release string, printed by --version.
const version = "0.1.0"

func main() {
	verbose := pflag.Bool("verbose", false, "Enable verbose (debug) logging.")
	showVersion := pflag.Bool("version", false, "Print version and exit.")
	configPath := pflag.String("config", config.DefaultPath, "Path to the JSON configuration file.")
	daemon := pflag.Bool("daemon", false, "Detach and log to syslog.")
	pflag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := checkPlatform(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(*verbose, *daemon))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	sat, err := satellite.New(cfg)
	if err != nil {
		slog.Error("failed to start satellite", "error", err)
		os.Exit(1)
	}
	defer sat.Close()

	sat.Run()
	waitForShutdown()
	sat.RequestStop()
	slog.Info("satellite shutting down")
}

// checkPlatform rejects platforms the audio-device adapter does not
// support, before the logger (which may itself depend on a platform-specific
// syslog transport under --daemon) is built.
func checkPlatform() error {
	switch runtime.GOOS {
	case "linux", "darwin", "windows":
		return nil
	default:
		return apperr.New(apperr.UnsupportedPlatform, fmt.Sprintf("unsupported platform: %s", runtime.GOOS))
	}
}

// newLogger builds the daemon's structured logger. Under --daemon, output
// routes to syslog instead of stdout, matching the "detach and log to
// syslog" CLI contract; the detachment itself is the process-daemonization
// wrapper's job and is out of scope for this package.
func newLogger(verbose, daemon bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	if daemon {
		writer, err := syslog.New(syslog.LOG_INFO|syslog.LOG_DAEMON, "rhasspy-desktop-satellite")
		if err == nil {
			return slog.New(slog.NewTextHandler(writer, &slog.HandlerOptions{Level: level}))
		}
		slog.Default().Warn("failed to open syslog, falling back to stdout", "error", err)
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// waitForShutdown blocks until SIGINT, SIGTERM, or SIGQUIT arrives.
func waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-sigCh
}
