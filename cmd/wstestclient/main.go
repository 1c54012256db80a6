// wstestclient - Command-line WebSocket test client and echo server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/gbdevw/gowstestclient/wstestclient"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Environment variables used as flag defaults.
const (
	envLogLevel         = "WSTC_LOG_LEVEL"
	envLibrary          = "WSTC_LIBRARY"
	envAllowInsecureTLS = "WSTC_ALLOW_INSECURE_TLS"
	envOTLPEndpoint     = "WSTC_OTLP_ENDPOINT"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// Build the command tree.
func newRootCommand() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "wstestclient",
		Short:         "WebSocket test client and echo server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", envString(envLogLevel, "info"),
		"Log level: debug, info, warn, error (env "+envLogLevel+")")
	root.AddCommand(newSendCommand(&logLevel), newEchoServerCommand(&logLevel))
	return root
}

// # Description
//
// Build a logger for the provided level. The debug level uses a development logger, other levels
// use a production logger.
func buildLogger(level string) (*zap.Logger, error) {
	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	if atomicLevel.Level() == zap.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = atomicLevel
	return cfg.Build()
}

// Return the value of the environment variable or def if it is not set.
func envString(key string, def string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return def
}

// Return the boolean value of the environment variable or def if it is not set or invalid.
func envBool(key string, def bool) bool {
	value, err := strconv.ParseBool(envString(key, strconv.FormatBool(def)))
	if err != nil {
		return def
	}
	return value
}

// Default library, from the environment.
func defaultLibrary() string {
	return envString(envLibrary, wstestclient.LibraryNhooyr)
}
