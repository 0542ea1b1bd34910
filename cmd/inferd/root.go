package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"inferd/internal/httpapi"
	"inferd/internal/manager"
	"inferd/internal/runtime"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

var logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "inferd",
		Short:         "Load tensor networks and serve inference requests",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", envStr("INFERD_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		setupLogging(logLevel)
	}
	root.AddCommand(newServeCmd(), newRunCmd(), newNetworksCmd(), newVersionCmd())
	return root
}

// setupLogging installs a console logger on terminals and JSON lines
// otherwise, and hands it to every package that logs.
func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if isatty.IsTerminal(os.Stderr.Fd()) {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	logger = logger.Level(lvl)
	httpapi.SetLogger(logger)
	manager.SetLogger(logger)
	runtime.SetLogger(logger)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the inferd version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "inferd "+version)
		},
	}
}

// logPublisher writes runtime and manager events to the logger at debug level.
type logPublisher struct{ l zerolog.Logger }

func (p logPublisher) Publish(e runtime.Event) {
	ev := p.l.Debug().Str("event", e.Name).Str("network", e.Network)
	if e.Request != "" {
		ev = ev.Str("request", e.Request)
	}
	if len(e.Fields) > 0 {
		ev = ev.Fields(e.Fields)
	}
	ev.Msg("event")
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
